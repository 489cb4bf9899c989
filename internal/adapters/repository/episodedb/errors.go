package episodedb

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrEmptyShowName = errors.New("show name required")
	ErrShowNotFound  = errors.New("show not stored")
	ErrNoEpisodes    = errors.New("no episode rows to store")
)
