// Package export renders portal records into downloadable files: xlsx
// workbooks (plain and CDISC SDTM shaped) and the quoted CSV audit export.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// ContentTypeXLSX is the MIME type of generated workbooks.
const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Column width bounds, in character widths.
const (
	minColumnWidth = 10
	maxColumnWidth = 50
	columnPadding  = 2
)

var (
	ErrNoSheets       = errors.New("export: at least one sheet is required")
	ErrDuplicateSheet = errors.New("export: duplicate sheet name")
)

// Sheet is one worksheet: a header row followed by one row per record, each
// cell looked up by header.
type Sheet struct {
	Name    string
	Headers []string
	Rows    []map[string]interface{}
}

// Cells returns the sheet as a grid of strings, header row first. Missing and
// nil values become "".
func (s Sheet) Cells() [][]string {
	grid := make([][]string, 0, len(s.Rows)+1)
	grid = append(grid, append([]string(nil), s.Headers...))
	for _, row := range s.Rows {
		line := make([]string, len(s.Headers))
		for i, h := range s.Headers {
			line[i] = CellString(row[h])
		}
		grid = append(grid, line)
	}
	return grid
}

// CellString stringifies one cell value.
func CellString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case *string:
		if t == nil {
			return ""
		}
		return *t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case *float64:
		if t == nil {
			return ""
		}
		return strconv.FormatFloat(*t, 'f', -1, 64)
	case time.Time:
		if t.IsZero() {
			return ""
		}
		return t.UTC().Format(time.RFC3339)
	case *time.Time:
		if t == nil || t.IsZero() {
			return ""
		}
		return t.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return t.String()
	case map[string]interface{}, []interface{}:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	default:
		return fmt.Sprint(t)
	}
}

// ColumnWidths returns one width per header: the longest cell of the column
// (header included, counted in runes), floored at 10, plus 2, capped at 50.
func ColumnWidths(s Sheet) []float64 {
	grid := s.Cells()
	widths := make([]float64, len(s.Headers))
	for col := range s.Headers {
		longest := 0
		for _, line := range grid {
			if n := utf8.RuneCountInString(line[col]); n > longest {
				longest = n
			}
		}
		if longest < minColumnWidth {
			longest = minColumnWidth
		}
		w := longest + columnPadding
		if w > maxColumnWidth {
			w = maxColumnWidth
		}
		widths[col] = float64(w)
	}
	return widths
}

// BuildWorkbook packs sheets into one xlsx file, in order.
func BuildWorkbook(sheets []Sheet) ([]byte, error) {
	if len(sheets) == 0 {
		return nil, ErrNoSheets
	}
	seen := make(map[string]bool, len(sheets))
	for _, s := range sheets {
		key := strings.ToLower(s.Name)
		if seen[key] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateSheet, s.Name)
		}
		seen[key] = true
	}

	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	for i, s := range sheets {
		if i == 0 {
			err = f.SetSheetName(f.GetSheetName(0), s.Name)
		} else {
			_, err = f.NewSheet(s.Name)
		}
		if err != nil {
			return nil, fmt.Errorf("sheet %q: %w", s.Name, err)
		}
		if err := writeSheet(f, s, headerStyle); err != nil {
			return nil, fmt.Errorf("sheet %q: %w", s.Name, err)
		}
	}
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, s Sheet, headerStyle int) error {
	for r, line := range s.Cells() {
		cell, err := excelize.CoordinatesToCellName(1, r+1)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(line))
		for i, v := range line {
			values[i] = v
		}
		if err := f.SetSheetRow(s.Name, cell, &values); err != nil {
			return err
		}
	}
	if len(s.Headers) == 0 {
		return nil
	}
	if err := f.SetRowStyle(s.Name, 1, 1, headerStyle); err != nil {
		return err
	}
	for i, w := range ColumnWidths(s) {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(s.Name, col, col, w); err != nil {
			return err
		}
	}
	return f.SetPanes(s.Name, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

// FileName returns "{base}_{YYYY-MM-DD}.xlsx" for the day of t.
func FileName(base string, t time.Time) string {
	return fmt.Sprintf("%s_%s.xlsx", base, t.Format("2006-01-02"))
}
