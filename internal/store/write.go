package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/cohortmatch/internal/cohort"
)

// WriteTable creates (or replaces) a table and inserts every row of t
// in order, in a single transaction. Columns are created untyped;
// SQLite's dynamic typing preserves whatever each cell holds.
func (s *Store) WriteTable(ctx context.Context, name string, t *cohort.Table) error {
	if len(t.Columns) == 0 {
		return fmt.Errorf("write table %s: no columns", name)
	}

	qName, err := quoteIdent(name)
	if err != nil {
		return fmt.Errorf("table name: %w", err)
	}

	qCols := make([]string, len(t.Columns))
	placeholders := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		qCols[i], err = quoteIdent(col)
		if err != nil {
			return fmt.Errorf("column name: %w", err)
		}
		placeholders[i] = "?"
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", qName)); err != nil {
		return fmt.Errorf("drop table %s: %w", name, err)
	}
	createSQL := fmt.Sprintf("CREATE TABLE %s (%s)", qName, strings.Join(qCols, ", "))
	if _, err := tx.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("create table %s: %w", name, err)
	}

	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		qName, strings.Join(qCols, ", "), strings.Join(placeholders, ", "))
	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(t.Columns))
	for _, rec := range t.Rows {
		for i, col := range t.Columns {
			args[i] = toSQL(rec.Get(col))
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert row %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// toSQL converts a cohort.Value to a Go native type for a SQL parameter.
// Dates are stored as ISO-8601 TEXT, the form ReadTable hands back.
func toSQL(v cohort.Value) any {
	switch val := v.(type) {
	case nil, cohort.Null:
		return nil
	case cohort.String:
		return string(val)
	case cohort.Int:
		return int64(val)
	case cohort.Float:
		return float64(val)
	case cohort.Bool:
		return bool(val)
	case cohort.Date:
		return val.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
