package roster

import "regexp"

const (
	// DefaultMinDateRun is half a pay period: a row holding this many
	// adjacent date cells is taken to be the row of roster dates.
	DefaultMinDateRun = 7
	// DefaultMinNameMatches is how many name-like cells a column needs before
	// it is taken to be the column of personnel names.
	DefaultMinNameMatches = 6
)

// NotFound is the row or column index reported alongside a structural
// error. It can never be a valid 1-indexed position.
const NotFound = 0

var nameLikePattern = regexp.MustCompile(`^[A-Z][a-z'-]+\s+[A-Z][a-z'-]+\b`)

// Heuristics holds the thresholds used to locate the roster's structure.
type Heuristics struct {
	MinDateRun     int
	MinNameMatches int
}

// DefaultHeuristics returns the thresholds tuned for fortnightly term rosters.
func DefaultHeuristics() Heuristics {
	return Heuristics{
		MinDateRun:     DefaultMinDateRun,
		MinNameMatches: DefaultMinNameMatches,
	}
}

func (h Heuristics) withDefaults() Heuristics {
	if h.MinDateRun <= 0 {
		h.MinDateRun = DefaultMinDateRun
	}
	if h.MinNameMatches <= 0 {
		h.MinNameMatches = DefaultMinNameMatches
	}
	return h
}

// DateRow scans rows top to bottom and returns the first row containing a
// contiguous run of at least MinDateRun date-time cells.
func (h Heuristics) DateRow(g Grid) (int, error) {
	h = h.withDefaults()
	rows, cols := g.Rows(), g.Columns()
	for row := 1; row <= rows; row++ {
		run := 0
		for col := 1; col <= cols; col++ {
			if !g.CellAt(row, col).IsDateTime() {
				run = 0
				continue
			}
			run++
			if run == h.MinDateRun {
				return row, nil
			}
		}
	}
	return NotFound, ErrDateRowNotFound
}

// NameColumn scans columns left to right and returns the first column with
// at least MinNameMatches text cells that look like "Firstname Lastname".
func (h Heuristics) NameColumn(g Grid) (int, error) {
	h = h.withDefaults()
	rows, cols := g.Rows(), g.Columns()
	for col := 1; col <= cols; col++ {
		matches := 0
		for row := 1; row <= rows; row++ {
			cell := g.CellAt(row, col)
			if !cell.IsText() || !nameLikePattern.MatchString(cell.Text) {
				continue
			}
			matches++
			if matches == h.MinNameMatches {
				return col, nil
			}
		}
	}
	return NotFound, ErrNameColumnNotFound
}
