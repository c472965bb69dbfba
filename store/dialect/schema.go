package dialect

import "strings"

// Column is a statically declared column of a table.
type Column struct {
	Name    string
	Kind    Kind
	NotNull bool
	// Default is a SQL literal.
	Default string
	// References is "table(column)" for foreign keys.
	References string
	// OnDelete is the foreign key action, e.g. "CASCADE".
	OnDelete string
}

// Table is a statically declared table.
type Table struct {
	Name        string
	Columns     []Column
	Constraints []string
}

// ColumnNames returns the comma separated column list, optionally
// prefixed with a table alias.
func (t Table) ColumnNames(alias string) string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		if alias != "" {
			names[i] = alias + "." + c.Name
		} else {
			names[i] = c.Name
		}
	}
	return strings.Join(names, ", ")
}

// CreateTable renders an idempotent CREATE TABLE statement.
func CreateTable(d Dialect, t Table) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(t.Name)
	b.WriteString(" (\n")
	for i, c := range t.Columns {
		if i > 0 {
			b.WriteString(",\n")
		}
		b.WriteString("\t")
		b.WriteString(c.Name)
		b.WriteString(" ")
		b.WriteString(d.ColumnType(c.Kind))
		if c.NotNull && c.Kind != KindPrimaryKey {
			b.WriteString(" NOT NULL")
		}
		if c.Default != "" {
			b.WriteString(" DEFAULT ")
			b.WriteString(c.Default)
		}
		if c.References != "" {
			b.WriteString(" REFERENCES ")
			b.WriteString(c.References)
			if c.OnDelete != "" {
				b.WriteString(" ON DELETE ")
				b.WriteString(c.OnDelete)
			}
		}
	}
	for _, con := range t.Constraints {
		b.WriteString(",\n\t")
		b.WriteString(con)
	}
	b.WriteString("\n)")
	return b.String()
}
