package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidAction marks a validation failure on an incoming action.
var ErrInvalidAction = errors.New("invalid action")

// ValidationError is a single field-level problem.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	if v.Field == "" {
		return v.Message
	}
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

// ValidationErrors aggregates every problem found in one value.
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

// Addf records a formatted problem for field.
func (v *ValidationErrors) Addf(field, format string, args ...any) {
	v.Errors = append(v.Errors, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Err returns nil when nothing was recorded.
func (v *ValidationErrors) Err() error {
	if v == nil || len(v.Errors) == 0 {
		return nil
	}
	return v
}

func (v *ValidationErrors) Error() string {
	if v == nil || len(v.Errors) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(v.Errors))
	for i, err := range v.Errors {
		parts[i] = err.Error()
	}
	return strings.Join(parts, "; ")
}

// Is lets callers match with errors.Is(err, ErrInvalidAction).
func (v *ValidationErrors) Is(target error) bool {
	return target == ErrInvalidAction
}
