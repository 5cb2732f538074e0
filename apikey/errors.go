package apikey

import "errors"

var (
	// ErrNotFound is returned when a key does not exist or belongs to
	// another tenant.
	ErrNotFound = errors.New("resthook: api key not found")

	// ErrUnauthenticated is the single result of every failed validation,
	// whatever the cause.
	ErrUnauthenticated = errors.New("resthook: unauthenticated")
)

// ValidationError indicates invalid input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "api key validation: " + e.Field + ": " + e.Message
}
