package synthetic

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrInvalidConfig = errors.New("invalid synthetic config")
	ErrTruthShape    = errors.New("truth does not match the fit")
)
