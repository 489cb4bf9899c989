package mcmc

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrNilTarget   = errors.New("sampler target is nil")
	ErrEmptyTarget = errors.New("sampler target has no parameters")
	ErrBadInitial  = errors.New("could not find a finite starting point")
	ErrNoDraws     = errors.New("trace has no draws")
)
