package roster

import "time"

// Kind identifies the type of value held by a roster cell.
type Kind int

const (
	KindEmpty Kind = iota
	KindText
	KindDateTime
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindDateTime:
		return "datetime"
	default:
		return "empty"
	}
}

// Value is a typed spreadsheet cell value: text, a date-time, or nothing.
type Value struct {
	Kind Kind
	Text string
	Time time.Time
}

// Text returns a text cell value.
func Text(s string) Value {
	return Value{Kind: KindText, Text: s}
}

// DateTime returns a date-time cell value.
func DateTime(t time.Time) Value {
	return Value{Kind: KindDateTime, Time: t}
}

// Empty returns an empty cell value.
func Empty() Value {
	return Value{}
}

func (v Value) IsText() bool     { return v.Kind == KindText }
func (v Value) IsDateTime() bool { return v.Kind == KindDateTime }
func (v Value) IsEmpty() bool    { return v.Kind == KindEmpty }

// Grid is a rectangular, read-only view of a worksheet.
// Rows and columns are 1-indexed; CellAt returns an empty value for
// coordinates outside the grid.
type Grid interface {
	Rows() int
	Columns() int
	CellAt(row, col int) Value
}

// Matrix is an in-memory Grid. Matrix[0][0] is cell (1, 1); rows may be
// ragged, missing cells read as empty.
type Matrix [][]Value

// Rows returns the number of rows.
func (m Matrix) Rows() int {
	return len(m)
}

// Columns returns the width of the widest row.
func (m Matrix) Columns() int {
	width := 0
	for _, row := range m {
		if len(row) > width {
			width = len(row)
		}
	}
	return width
}

// CellAt returns the value at the 1-indexed row and column.
func (m Matrix) CellAt(row, col int) Value {
	if row < 1 || row > len(m) {
		return Value{}
	}
	cells := m[row-1]
	if col < 1 || col > len(cells) {
		return Value{}
	}
	return cells[col-1]
}

// Set stores v at the 1-indexed row and column, growing the matrix as needed.
func (m *Matrix) Set(row, col int, v Value) {
	for len(*m) < row {
		*m = append(*m, nil)
	}
	cells := (*m)[row-1]
	for len(cells) < col {
		cells = append(cells, Value{})
	}
	cells[col-1] = v
	(*m)[row-1] = cells
}
