package router

import (
	"errors"
	"fmt"
)

// Validation error codes (E200-E299)
const (
	ErrMissingField    = "E201" // required field absent or empty
	ErrNotNumeric      = "E202" // numeric field did not parse
	ErrNegative        = "E203" // numeric field below zero
	ErrRuleShape       = "E204" // rule_set parameters match no rule shape
	ErrBadCommand      = "E205" // undecodable JSON or unknown op
	ErrOutOfRange      = "E206" // value outside its allowed range
	ErrListingInactive = "E207" // offer against a missing or closed listing
)

// ValidationError rejects a command before anything is submitted.
type ValidationError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

func invalid(code, field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Code: code}
}

// NotFoundError reports a query for an absent entity.
type NotFoundError struct {
	Kind string
	ID   string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
