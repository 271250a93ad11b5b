package item

import "errors"

// ErrDuplicateModule is returned when two modules in the same run share a
// name.
var ErrDuplicateModule = errors.New("duplicate module name")
