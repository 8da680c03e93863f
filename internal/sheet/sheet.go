// Package sheet reads business test case sheets into records.
// A sheet has a two-row header: the top row names a section (optionally
// "SECTION::ENTITY") and the second row names the attribute. Both rows are
// combined into a single upper-cased composite column key.
package sheet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Errors returned by the sheet package.
var (
	// ErrSheetNotFound is returned when no workbook or CSV exists for a tab.
	ErrSheetNotFound = errors.New("sheet: sheet not found")
	// ErrMissingHeader is returned when a sheet has fewer than two header rows.
	ErrMissingHeader = errors.New("sheet: two header rows are required")
)

// KeySeparator joins the parts of a composite column key.
const KeySeparator = "::"

// Record is one test case row keyed by composite column name.
// It must not be modified while the row is being processed.
type Record map[string]string

// Lookup returns the raw cell value for a composite key.
func (r Record) Lookup(key string) (string, bool) {
	v, ok := r[key]
	return v, ok
}

// Table is a parsed sheet: normalized column names and raw row values.
type Table struct {
	// Name is the tab name the table was read for.
	Name string

	// Columns are the composite, upper-cased column names in sheet order.
	Columns []string

	// Rows hold cell values; every row has len(Columns) cells.
	Rows [][]string
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Record returns row i as a Record.
func (t *Table) Record(i int) Record {
	rec := make(Record, len(t.Columns))
	for j, col := range t.Columns {
		rec[col] = t.Rows[i][j]
	}
	return rec
}

// Records returns every row as a Record.
func (t *Table) Records() []Record {
	out := make([]Record, 0, len(t.Rows))
	for i := range t.Rows {
		out = append(out, t.Record(i))
	}
	return out
}

// ReadTab locates and reads the sheet for a tab inside dir.
// "<tab>.xlsx" is preferred; "<tab>.csv" is accepted as a fallback.
func ReadTab(dir, tab string) (*Table, error) {
	xlsxPath := filepath.Join(dir, tab+".xlsx")
	if _, err := os.Stat(xlsxPath); err == nil {
		return ReadXLSX(xlsxPath, tab)
	}

	csvPath := filepath.Join(dir, tab+".csv")
	f, err := os.Open(csvPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s (looked for %s and %s)", ErrSheetNotFound, tab, xlsxPath, csvPath)
		}
		return nil, fmt.Errorf("opening %s: %w", csvPath, err)
	}
	defer f.Close()

	return ReadCSV(f, tab)
}

// ReadXLSX reads the first worksheet of an Excel workbook.
func ReadXLSX(path, tab string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook %s has no worksheets", ErrSheetNotFound, path)
	}

	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("reading worksheet %q: %w", sheets[0], err)
	}

	return build(tab, rows)
}

// ReadCSV reads a sheet exported as CSV with the same two-row header layout.
func ReadCSV(r io.Reader, tab string) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading csv for tab %s: %w", tab, err)
	}

	return build(tab, rows)
}

func build(tab string, rows [][]string) (*Table, error) {
	if len(rows) < 2 {
		return nil, fmt.Errorf("%w: tab %s", ErrMissingHeader, tab)
	}

	columns := Columns(rows[0], rows[1])
	table := &Table{
		Name:    tab,
		Columns: columns,
		Rows:    make([][]string, 0, len(rows)-2),
	}

	// Blank rows inside the sheet are test cases too; only the trailing ones
	// past the last filled row are dropped.
	for _, raw := range rows[2:] {
		row := make([]string, len(columns))
		copy(row, raw)
		table.Rows = append(table.Rows, row)
	}
	for len(table.Rows) > 0 && isEmpty(table.Rows[len(table.Rows)-1]) {
		table.Rows = table.Rows[:len(table.Rows)-1]
	}

	return table, nil
}

// Columns combines the two header rows into composite column names.
// Blank top cells inherit the value to their left, as merged cells do.
func Columns(top, sub []string) []string {
	width := max(len(top), len(sub))
	columns := make([]string, width)

	current := ""
	for i := range width {
		var t, s string
		if i < len(top) {
			t = strings.TrimSpace(top[i])
		}
		if i < len(sub) {
			s = strings.TrimSpace(sub[i])
		}
		if t != "" {
			current = t
		}

		name := current
		if s != "" {
			name = current + KeySeparator + s
		}
		columns[i] = NormalizeHeader(name)
	}

	return columns
}

// NormalizeHeader strips line breaks (real and escaped), trims and upper-cases.
func NormalizeHeader(name string) string {
	name = strings.ReplaceAll(name, "\n", "")
	name = strings.ReplaceAll(name, `\n`, "")
	return strings.ToUpper(strings.TrimSpace(name))
}

func isEmpty(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Dir reads tabs from a directory of workbooks.
type Dir string

// ReadTab implements the runner's table source.
func (d Dir) ReadTab(tab string) (*Table, error) {
	return ReadTab(string(d), tab)
}
