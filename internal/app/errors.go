package service

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrNoDataset = errors.New("no dataset ingested yet")
)
