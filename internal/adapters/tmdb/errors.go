package tmdb

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrMissingAPIKey  = errors.New("tmdb api key required")
	ErrMissingBaseURL = errors.New("tmdb base url required")
	ErrBadRequest     = errors.New("invalid tmdb request")
	ErrShowNotFound   = errors.New("show not found")
	ErrUpstream       = errors.New("tmdb request failed")
)
