package inmemory

import "errors"

var (
	// ErrEmptyRequestID is returned when storing a record without request id.
	ErrEmptyRequestID = errors.New("request id must not be empty")
	// ErrEmptyKey is returned when counting usage against an empty key.
	ErrEmptyKey = errors.New("usage key must not be empty")
)
