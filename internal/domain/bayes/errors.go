package bayes

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrEmptyDataset  = errors.New("cannot build model from empty dataset")
	ErrNoSeasons     = errors.New("dataset has no seasons")
	ErrInvalidVotes  = errors.New("vote count below one")
	ErrInvalidBounds = errors.New("invalid rating bounds")
)
