// Package dialect isolates the SQL differences between the relational
// backends: placeholder syntax, column types, timestamp encoding and the
// statement that opens an exclusive transaction.
//
// Queries in store/sqlstore are written once with "?" placeholders and
// rebound per dialect with [Rebind].
package dialect

import (
	"strconv"
	"strings"
	"time"
)

// Dialect is implemented by SQLite and Postgres only.
type Dialect interface {
	// Name returns the connection scheme of the dialect ("sqlite", "pg").
	Name() string

	// Placeholder returns the bind parameter for the n-th (1-based) argument.
	Placeholder(n int) string

	// PrimaryKeyDDL is the column definition of an auto-increment key.
	PrimaryKeyDDL() string

	// ColumnType maps a column kind to the backend type.
	ColumnType(k Kind) string

	// BeginExclusive opens a transaction that serialises concurrent lease
	// attempts, on a dedicated connection.
	BeginExclusive() string

	// LockClause is appended to the lease candidate query. It is empty
	// when BeginExclusive already serialises access.
	LockClause() string

	// LimitOffset renders a LIMIT/OFFSET suffix. Zero limit means none.
	LimitOffset(limit, offset int) string

	// EncodeTime converts t to the bind value stored in timestamp columns.
	EncodeTime(t time.Time) any

	// DecodeTime converts a scanned timestamp column value back.
	DecodeTime(v any) (time.Time, error)

	// IsForeignKeyViolation reports whether err is a foreign key failure.
	IsForeignKeyViolation(err error) bool
}

// Kind is a logical column type.
type Kind int

const (
	KindPrimaryKey Kind = iota
	KindInt
	KindReal
	KindText
	KindBytes
	KindTime
)

// Rebind rewrites "?" placeholders into the dialect's syntax. Queries must
// not contain literal question marks.
func Rebind(d Dialect, query string) string {
	if d.Placeholder(1) == "?" {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteString(d.Placeholder(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func limitOffset(limit, offset int, noLimit string) string {
	switch {
	case limit > 0 && offset > 0:
		return " LIMIT " + strconv.Itoa(limit) + " OFFSET " + strconv.Itoa(offset)
	case limit > 0:
		return " LIMIT " + strconv.Itoa(limit)
	case offset > 0:
		return noLimit + " OFFSET " + strconv.Itoa(offset)
	default:
		return ""
	}
}
