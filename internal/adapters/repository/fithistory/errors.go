package fithistory

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrMissingID = errors.New("fit record has no id")
	ErrNoFits    = errors.New("no fits recorded yet")
)
