package csvio

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrMissingField = errors.New("required column missing")
	ErrNoRecords    = errors.New("no episode rows")
	ErrBadCell      = errors.New("unparsable cell")
)
