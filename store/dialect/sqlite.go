package dialect

import (
	"fmt"
	"strings"
	"time"
)

// SQLiteTimeLayout is the fixed-width UTC text format of SQLite timestamp
// columns. Fixed width keeps lexical and chronological order identical.
const SQLiteTimeLayout = "2006-01-02 15:04:05.000000"

// SQLite is the dialect of modernc.org/sqlite databases.
type SQLite struct{}

func (SQLite) Name() string           { return "sqlite" }
func (SQLite) Placeholder(int) string { return "?" }
func (SQLite) PrimaryKeyDDL() string  { return "INTEGER PRIMARY KEY AUTOINCREMENT" }
func (SQLite) BeginExclusive() string { return "BEGIN EXCLUSIVE" }
func (SQLite) LockClause() string     { return "" }

func (SQLite) EncodeTime(t time.Time) any { return t.UTC().Format(SQLiteTimeLayout) }

func (d SQLite) ColumnType(k Kind) string {
	switch k {
	case KindPrimaryKey:
		return d.PrimaryKeyDDL()
	case KindInt:
		return "INTEGER"
	case KindReal:
		return "REAL"
	case KindBytes:
		return "BLOB"
	default:
		// Timestamps are stored as text in SQLiteTimeLayout.
		return "TEXT"
	}
}

func (SQLite) LimitOffset(limit, offset int) string {
	return limitOffset(limit, offset, " LIMIT -1")
}

func (SQLite) DecodeTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), nil
	case string:
		return parseSQLiteTime(x)
	case []byte:
		return parseSQLiteTime(string(x))
	default:
		return time.Time{}, fmt.Errorf("dialect/sqlite: cannot decode %T as time", v)
	}
}

func (SQLite) IsForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func parseSQLiteTime(s string) (time.Time, error) {
	for _, layout := range []string{SQLiteTimeLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("dialect/sqlite: cannot parse time %q", s)
}
