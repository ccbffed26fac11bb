package recipe

import (
	"errors"
	"fmt"
)

// ErrEmptyStep is returned when a step text has no executor id.
var ErrEmptyStep = errors.New("step text has no executor id")

// ParseError describes a recipe text or catalog parse failure.
type ParseError struct {
	// Source is the recipe id or file the text came from, when known.
	Source string
	Input  string
	Msg    string
	Cause  error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	where := e.Source
	if where == "" {
		where = "recipe"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s %q: %v", where, e.Msg, e.Input, e.Cause)
	}
	return fmt.Sprintf("%s: %s %q", where, e.Msg, e.Input)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Cause
}
