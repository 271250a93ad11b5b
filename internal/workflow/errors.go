package workflow

import "errors"

// ErrGivenPathMissing is returned when a given InputGroup value names a
// path that does not exist on disk.
var ErrGivenPathMissing = errors.New("given input path does not exist")
