package provenance

import "errors"

// ErrInvalidGrouping is returned when a module's group_by names an ancestor
// item key with no provenance path to the grouped input key.
var ErrInvalidGrouping = errors.New("no provenance path for group_by pair")
