package roster

import (
	"errors"
	"fmt"
)

var (
	// ErrStructure is the parent of every structural inference failure.
	// A run must not continue past one of these.
	ErrStructure = errors.New("roster: structure could not be inferred")

	ErrDateRowNotFound    = fmt.Errorf("%w: no row with enough contiguous dates", ErrStructure)
	ErrNameColumnNotFound = fmt.Errorf("%w: no column with enough personal names", ErrStructure)

	// ErrNoNameSelected is returned when the caller did not pick a name.
	ErrNoNameSelected = errors.New("roster: no name selected")
	// ErrUnknownName is returned when the selected name is not in the roster.
	ErrUnknownName = errors.New("roster: name not found in roster")
)
