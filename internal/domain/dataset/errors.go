package dataset

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrEmptyDataset     = errors.New("dataset has no rows")
	ErrMissingColumn    = errors.New("required column missing")
	ErrDuplicateEpisode = errors.New("episode already registered")
)
