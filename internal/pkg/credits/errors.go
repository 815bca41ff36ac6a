package credits

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the user or session a ledger operation
	// refers to does not exist.
	ErrNotFound = errors.New("credits: not found")
	// ErrInvalidArgument is returned for malformed input such as a
	// non-positive grant amount or an unknown transaction type.
	ErrInvalidArgument = errors.New("credits: invalid argument")
)

// InsufficientCreditsError is the expected business outcome of a deduction
// against a balance that cannot cover the cost. It carries the exact
// shortfall so callers can prompt a top-up.
type InsufficientCreditsError struct {
	Needed  int
	Current int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: need %d, have %d", e.Needed, e.Current)
}

// IsInsufficientCredits reports whether err is an InsufficientCreditsError.
func IsInsufficientCredits(err error) bool {
	var ice *InsufficientCreditsError
	return errors.As(err, &ice)
}
