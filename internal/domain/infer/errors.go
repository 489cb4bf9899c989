package infer

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrNotFitted       = errors.New("no fit available yet")
	ErrEpisodeIndex    = errors.New("episode index out of range")
	ErrEpisodeNotFound = errors.New("episode not found")
	ErrSeasonNotFound  = errors.New("season not found")
	ErrTraceShape      = errors.New("trace does not match the model")
)
