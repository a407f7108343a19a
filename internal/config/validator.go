package config

import (
	"fmt"
	"strings"
)

// FieldError is a single accumulated validation failure.
type FieldError struct {
	Field   string
	Value   any
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validator accumulates field errors across an entire configuration object
// so a user sees every problem in one pass instead of one-at-a-time.
type Validator struct {
	errors []FieldError
}

// NewValidator returns an empty Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Add records a validation failure for field.
func (v *Validator) Add(field, message string, value any) {
	v.errors = append(v.errors, FieldError{Field: field, Value: value, Message: message})
}

// Require adds an error if value is empty.
func (v *Validator) Require(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.Add(field, "must not be empty", value)
	}
}

// Positive adds an error if value is not > 0.
func (v *Validator) Positive(field string, value int) {
	if value <= 0 {
		v.Add(field, "must be positive", value)
	}
}

// OneOf adds an error if value is not a member of allowed.
func (v *Validator) OneOf(field, value string, allowed []string) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	v.Add(field, fmt.Sprintf("must be one of %v", allowed), value)
}

// IsValid reports whether no errors were accumulated.
func (v *Validator) IsValid() bool {
	return len(v.errors) == 0
}

// Errors returns all accumulated field errors.
func (v *Validator) Errors() []FieldError {
	return v.errors
}

// Err returns nil if valid, else a ValidationError bundling every field
// error accumulated so far.
func (v *Validator) Err() error {
	if v.IsValid() {
		return nil
	}
	return ValidationError{errors: append([]FieldError(nil), v.errors...)}
}

// ValidationError bundles multiple FieldErrors into a single error value.
type ValidationError struct {
	errors []FieldError
}

func (e ValidationError) Errors() []FieldError { return e.errors }

func (e ValidationError) Error() string {
	msgs := make([]string, len(e.errors))
	for i, fe := range e.errors {
		msgs[i] = fe.Error()
	}
	return strings.Join(msgs, "; ")
}
