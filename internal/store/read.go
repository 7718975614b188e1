package store

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/roach88/cohortmatch/internal/cohort"
)

// ReadTable reads an entire table into a cohort.Table in row order.
//
// idColumn names the unique-identifier column; its rendered value
// becomes each record's ID (and stays available as a field). Rows are
// ordered by the id column so reads are stable across runs - the
// engine's ordering guarantees are stated against table order.
//
// An empty idColumn reads the table in insertion (rowid) order with
// positional record IDs. Used for tables without a unique subject
// column, like a matched-set table where controls may repeat.
//
// SQL NULL maps to cohort.Null. TEXT dates stay strings; the engine
// parses them lazily where a date is actually required.
func (s *Store) ReadTable(ctx context.Context, table, idColumn string) (*cohort.Table, error) {
	orderBy := idColumn
	if orderBy == "" {
		orderBy = "rowid"
	}
	query, err := Template("SELECT * FROM {table} ORDER BY {order}", map[string]string{
		"table": table,
		"order": orderBy,
	})
	if err != nil {
		return nil, fmt.Errorf("read table %s: %w", table, err)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("read table %s: %w", table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("get columns: %w", err)
	}
	if idColumn != "" && !slices.Contains(columns, idColumn) {
		return nil, fmt.Errorf("id column %q not present in table %s", idColumn, table)
	}

	t := cohort.NewTable(columns...)

	values := make([]any, len(columns))
	valuePtrs := make([]any, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		fields := make(map[string]cohort.Value, len(columns))
		for i, col := range columns {
			fields[col] = fromSQL(values[i])
		}

		rec := cohort.Record{Fields: fields}
		if idColumn == "" {
			rec.ID = strconv.Itoa(t.Len() + 1)
		} else {
			rec.ID = cohort.Render(fields[idColumn])
			if rec.ID == "" {
				return nil, fmt.Errorf("table %s: row with null %s", table, idColumn)
			}
		}
		t.Append(rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return t, nil
}

// fromSQL converts a database/sql value to a cohort.Value.
func fromSQL(v any) cohort.Value {
	switch val := v.(type) {
	case nil:
		return cohort.Null{}
	case int64:
		return cohort.Int(val)
	case float64:
		return cohort.Float(val)
	case string:
		return cohort.NewString(val)
	case []byte:
		return cohort.NewString(string(val))
	case bool:
		return cohort.Bool(val)
	default:
		return cohort.NewString(fmt.Sprintf("%v", val))
	}
}
