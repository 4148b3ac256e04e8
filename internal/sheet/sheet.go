// Package sheet reads roster workbooks into a roster.Matrix.
package sheet

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/unicode/norm"

	"github.com/beekhof/shiftsync/internal/roster"
)

// ErrSheetNotFound is returned when the requested worksheet does not exist.
var ErrSheetNotFound = errors.New("sheet: worksheet not found")

// Load reads the named worksheet of the workbook at path. An empty sheet
// name selects the sheet that was active when the workbook was saved.
func Load(path, sheet string) (roster.Matrix, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer f.Close()
	return read(f, sheet)
}

// Read is Load for a workbook held in r.
func Read(r io.Reader, sheet string) (roster.Matrix, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()
	return read(f, sheet)
}

// Sheets lists the worksheet names of the workbook at path.
func Sheets(path string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer f.Close()
	return f.GetSheetList(), nil
}

func read(f *excelize.File, sheet string) (roster.Matrix, error) {
	if sheet == "" {
		sheet = f.GetSheetName(f.GetActiveSheetIndex())
	}
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrSheetNotFound, sheet)
	}

	date1904 := false
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read worksheet %q: %w", sheet, err)
	}

	styles := dateStyles{file: f, known: map[int]bool{}}
	var m roster.Matrix
	for r, row := range rows {
		for c, raw := range row {
			if strings.TrimSpace(raw) == "" {
				continue
			}
			v, err := styles.value(sheet, r+1, c+1, raw, date1904)
			if err != nil {
				return nil, err
			}
			m.Set(r+1, c+1, v)
		}
	}
	return m, nil
}

// dateStyles caches which cell styles format numbers as dates.
type dateStyles struct {
	file  *excelize.File
	known map[int]bool
}

func (d dateStyles) value(sheet string, row, col int, raw string, date1904 bool) (roster.Value, error) {
	text := roster.Text(norm.NFC.String(raw))

	serial, numErr := strconv.ParseFloat(raw, 64)
	iso, isISO := parseISODate(raw)
	if numErr != nil && !isISO {
		return text, nil
	}
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return roster.Value{}, err
	}
	if isISO {
		// Only cells stored as dates (t="d") hold ISO 8601 text.
		typ, err := d.file.GetCellType(sheet, cell)
		if err != nil {
			return roster.Value{}, fmt.Errorf("failed to read type of %s: %w", cell, err)
		}
		if typ != excelize.CellTypeDate {
			return text, nil
		}
		return roster.DateTime(iso), nil
	}
	styleID, err := d.file.GetCellStyle(sheet, cell)
	if err != nil {
		return roster.Value{}, fmt.Errorf("failed to read style of %s: %w", cell, err)
	}
	if !d.isDate(styleID) {
		return text, nil
	}
	t, err := excelize.ExcelDateToTime(serial, date1904)
	if err != nil {
		return text, nil
	}
	return roster.DateTime(t), nil
}

var isoLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"20060102T150405Z0700",
	"20060102T150405",
}

// parseISODate parses the ISO 8601 forms a date cell may hold. The wall clock
// is kept and the offset dropped, as for serial dates.
func parseISODate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range isoLayouts {
		t, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC), true
	}
	return time.Time{}, false
}

func (d dateStyles) isDate(styleID int) bool {
	if styleID == 0 {
		return false
	}
	if known, ok := d.known[styleID]; ok {
		return known
	}
	isDate := false
	if style, err := d.file.GetStyle(styleID); err == nil {
		switch {
		case style.CustomNumFmt != nil:
			isDate = isDateFormat(*style.CustomNumFmt)
		default:
			isDate = builtinDateFormat(style.NumFmt)
		}
	}
	d.known[styleID] = isDate
	return isDate
}

// builtinDateFormat reports whether the built-in number format id shows a
// date, including the East Asian locale variants.
func builtinDateFormat(id int) bool {
	switch {
	case id >= 14 && id <= 17, id == 22:
		return true
	case id >= 27 && id <= 36, id >= 50 && id <= 58:
		return true
	}
	return false
}

// isDateFormat reports whether a custom format code renders a calendar date.
// Quoted literals, escapes and bracketed sections are ignored.
func isDateFormat(code string) bool {
	var b strings.Builder
	inQuote, inBracket := false, false
	for i := 0; i < len(code); i++ {
		ch := code[i]
		switch {
		case inQuote:
			inQuote = ch != '"'
		case inBracket:
			inBracket = ch != ']'
		case ch == '"':
			inQuote = true
		case ch == '[':
			inBracket = true
		case ch == '\\' || ch == '_' || ch == '*':
			i++
		default:
			b.WriteByte(ch)
		}
	}
	plain := strings.ToLower(b.String())
	return strings.ContainsAny(plain, "dy")
}
