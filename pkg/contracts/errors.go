package contracts

import "errors"

// ErrNotFound is returned by persistence layers when a row does not exist.
var ErrNotFound = errors.New("not found")
