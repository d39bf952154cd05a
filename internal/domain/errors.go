package domain

import "errors"

var (
	// ErrConnection reports that a store or model endpoint could not be reached.
	ErrConnection = errors.New("connection failure")
	// ErrAuthentication reports a missing or rejected credential.
	ErrAuthentication = errors.New("authentication failure")
	// ErrMalformedResponse reports a provider payload with an unexpected shape.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrEmptyQuery is returned when a search is issued with blank text.
	ErrEmptyQuery = errors.New("query must not be empty")
	// ErrTooManySteps is returned when the model keeps calling tools past the step limit.
	ErrTooManySteps = errors.New("too many model steps")
)
