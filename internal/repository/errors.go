package repository

import "errors"

// ErrNotFound is returned when a lookup by id matches no row or key.
var ErrNotFound = errors.New("not found")
