// Package report renders run results: the per-tab output CSV, the JSON run
// summary and the console table, and delivers them to one or more sinks.
package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/example/erp/tools/acctest/internal/runner"
)

// Columns appended to every output sheet.
const (
	StatusColumn   = "AUTOMATED_STATUS"
	CommentsColumn = "ADDITIONAL_COMMENTS"
)

// ErrNoTable is returned when a tab result carries no sheet to write.
var ErrNoTable = errors.New("report: tab result has no table")

// OutputFileName returns the name of a tab's output sheet.
func OutputFileName(tab string) string {
	return tab + "_output.csv"
}

// WriteCSV writes the original columns of the tab followed by the automated
// status and comment of each row.
func WriteCSV(w io.Writer, result runner.TabResult) error {
	if result.Table == nil {
		return ErrNoTable
	}

	cw := csv.NewWriter(w)
	header := make([]string, 0, len(result.Table.Columns)+2)
	header = append(header, result.Table.Columns...)
	header = append(header, StatusColumn, CommentsColumn)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for i, row := range result.Table.Rows {
		status, comment := string(runner.StatusFail), ""
		if i < len(result.Outcomes) {
			o := result.Outcomes[i]
			if o.Status != "" {
				status = string(o.Status)
			}
			comment = o.Comment
		}

		line := make([]string, 0, len(row)+2)
		line = append(line, row...)
		line = append(line, status, comment)
		if err := cw.Write(line); err != nil {
			return fmt.Errorf("writing row %d: %w", i+1, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// TabWriter returns a runner tab hook that renders each tab's output CSV
// and stores it in sink.
func TabWriter(sink Sink) func(ctx context.Context, result runner.TabResult) error {
	return func(ctx context.Context, result runner.TabResult) error {
		var buf bytes.Buffer
		if err := WriteCSV(&buf, result); err != nil {
			return fmt.Errorf("rendering %s: %w", OutputFileName(result.Tab), err)
		}
		return sink.Put(ctx, OutputFileName(result.Tab), buf.Bytes())
	}
}
