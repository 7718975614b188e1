// Package export writes cohort tables to files. The matching engine
// produces tables; this package is the format adapter.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/natefinch/atomic"

	"github.com/roach88/cohortmatch/internal/cohort"
)

// WriteCSV renders a table as CSV: header row first, then data rows in
// table order. Nulls render empty, dates ISO-8601.
func WriteCSV(w io.Writer, t *cohort.Table) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(t.Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	row := make([]string, len(t.Columns))
	for _, rec := range t.Rows {
		for i, col := range t.Columns {
			row[i] = cohort.Render(rec.Get(col))
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %s: %w", rec.ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes the table to path atomically: the file appears
// complete or not at all, never truncated mid-export.
func WriteCSVFile(path string, t *cohort.Table) error {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, t); err != nil {
		return err
	}

	if err := atomic.WriteFile(path, &buf); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
