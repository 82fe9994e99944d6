package store

import "errors"

var (
	// ErrRequestExists indicates a request with the same id is already registered.
	ErrRequestExists = errors.New("request already exists")

	// ErrInvalidExpected indicates a request was registered expecting fewer than one partial.
	ErrInvalidExpected = errors.New("expected partials must be at least 1")
)
