package solver

import "errors"

// ErrMissingTarget is returned when a target key has no producing module
// and is not in the given set.
var ErrMissingTarget = errors.New("target key has no producer and is not given")

// ErrNoPlan is returned when the required module set contains a cycle and
// no linear order exists.
var ErrNoPlan = errors.New("no linear plan exists for the required modules")
