package storage

import "errors"

// ErrNotFound is returned by updates that target a record the owner does not have.
var ErrNotFound = errors.New("record not found")
