package storage

import (
	"errors"
)

// ErrNotTracked is reported when an operation targets an id the cache does not hold.
var ErrNotTracked = errors.New("not tracked")
