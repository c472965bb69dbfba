package dialect

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres is the dialect of PostgreSQL through pgx.
type Postgres struct{}

func (Postgres) Name() string             { return "pg" }
func (Postgres) Placeholder(n int) string { return "$" + strconv.Itoa(n) }
func (Postgres) PrimaryKeyDDL() string    { return "BIGSERIAL PRIMARY KEY" }
func (Postgres) BeginExclusive() string   { return "BEGIN" }

// LockClause skips rows another lease transaction already holds, so a
// concurrent caller never blocks on, or returns, the same task.
func (Postgres) LockClause() string { return " FOR UPDATE SKIP LOCKED" }

func (Postgres) EncodeTime(t time.Time) any { return t.UTC() }

func (d Postgres) ColumnType(k Kind) string {
	switch k {
	case KindPrimaryKey:
		return d.PrimaryKeyDDL()
	case KindInt:
		return "BIGINT"
	case KindReal:
		return "DOUBLE PRECISION"
	case KindBytes:
		return "BYTEA"
	case KindTime:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

func (Postgres) LimitOffset(limit, offset int) string {
	return limitOffset(limit, offset, "")
}

func (Postgres) DecodeTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), nil
	case string:
		return time.Parse(time.RFC3339Nano, x)
	default:
		return time.Time{}, fmt.Errorf("dialect/postgres: cannot decode %T as time", v)
	}
}

// IsForeignKeyViolation checks for foreign_key_violation (23503).
func (Postgres) IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}
