package cohort

import "slices"

// Record is one subject row: a unique identifier plus named field values.
// Field values are immutable from the engine's perspective; the engine
// never writes through a Record.
type Record struct {
	ID     string
	Fields map[string]Value
}

// Get returns the value of a named field.
// A field absent from the map reads as Null - sparse rows are legal.
func (r Record) Get(field string) Value {
	v, ok := r.Fields[field]
	if !ok {
		return Null{}
	}
	return v
}

// Table is an ordered collection of records with a declared column set.
// Row order is significant: the engine's ordering guarantees are stated
// relative to table input order.
type Table struct {
	Columns []string
	Rows    []Record
}

// NewTable creates a table with the given column set.
func NewTable(columns ...string) *Table {
	return &Table{Columns: slices.Clone(columns)}
}

// Append adds a record to the end of the table.
func (t *Table) Append(rec Record) {
	t.Rows = append(t.Rows, rec)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// HasColumn reports whether the table declares the named column.
func (t *Table) HasColumn(name string) bool {
	return slices.Contains(t.Columns, name)
}
