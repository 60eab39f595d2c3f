package core

import "errors"

// ErrNotFound marks lookups and updates that matched no row. Handlers map it
// to 404.
var ErrNotFound = errors.New("not found")
