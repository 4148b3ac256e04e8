package roster

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Table is the structure inferred from a roster grid. It is immutable once
// built and safe to share between goroutines.
type Table struct {
	DateRow    int
	NameColumn int
	NameToRow  map[string]int

	grid Grid
}

// Assignment is one raw roster entry for a person: the date of a column in
// the date row and the text found under it.
type Assignment struct {
	Date  time.Time
	Label string
}

// Parse locates the date row and the name column of g and maps every
// recognised name to its row. Either lookup failing is a structural error.
func Parse(g Grid, h Heuristics) (*Table, error) {
	dateRow, err := h.DateRow(g)
	if err != nil {
		return nil, err
	}
	nameColumn, err := h.NameColumn(g)
	if err != nil {
		return nil, err
	}

	candidates := make(map[string]int)
	for row := 1; row <= g.Rows(); row++ {
		cell := g.CellAt(row, nameColumn)
		if !cell.IsText() || strings.TrimSpace(cell.Text) == "" {
			continue
		}
		// The topmost row wins for repeated text, as it does in ExtractNames.
		if _, seen := candidates[cell.Text]; seen {
			continue
		}
		candidates[cell.Text] = row
	}

	return &Table{
		DateRow:    dateRow,
		NameColumn: nameColumn,
		NameToRow:  ExtractNames(candidates),
		grid:       g,
	}, nil
}

// Names returns the recognised names in roster order.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.NameToRow))
	for name := range t.NameToRow {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		ri, rj := t.NameToRow[names[i]], t.NameToRow[names[j]]
		if ri != rj {
			return ri < rj
		}
		return names[i] < names[j]
	})
	return names
}

// Row returns the row holding name.
func (t *Table) Row(name string) (int, error) {
	if strings.TrimSpace(name) == "" {
		return NotFound, ErrNoNameSelected
	}
	row, ok := t.NameToRow[name]
	if !ok {
		return NotFound, fmt.Errorf("%w: %q", ErrUnknownName, name)
	}
	return row, nil
}

// Dates returns every date in the date row, left to right.
func (t *Table) Dates() []time.Time {
	var dates []time.Time
	cols := t.grid.Columns()
	for col := 1; col <= cols; col++ {
		if cell := t.grid.CellAt(t.DateRow, col); cell.IsDateTime() {
			dates = append(dates, cell.Time)
		}
	}
	return dates
}

// Assignments returns the text entries in name's row that sit under a date
// of the date row. Empty and non-text cells carry no assignment.
func (t *Table) Assignments(name string) ([]Assignment, error) {
	row, err := t.Row(name)
	if err != nil {
		return nil, err
	}

	var assignments []Assignment
	cols := t.grid.Columns()
	for col := 1; col <= cols; col++ {
		date := t.grid.CellAt(t.DateRow, col)
		if !date.IsDateTime() {
			continue
		}
		cell := t.grid.CellAt(row, col)
		if !cell.IsText() {
			continue
		}
		assignments = append(assignments, Assignment{Date: date.Time, Label: cell.Text})
	}
	return assignments, nil
}
