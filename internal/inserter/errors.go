package inserter

import "errors"

var (
	// ErrPersistence wraps every failed store write.
	ErrPersistence = errors.New("persistence failed")

	// ErrDependencySkipped marks a step that could not run because a step it
	// depends on did not produce an id.
	ErrDependencySkipped = errors.New("skipped: dependency failed")
)
