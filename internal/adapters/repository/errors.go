package repository

import "errors"

// Sentinel kinds for ranking errors.
var (
	ErrNotFound     = errors.New("episode not ranked")
	ErrInvalidLimit = errors.New("invalid ranking limit")
)
