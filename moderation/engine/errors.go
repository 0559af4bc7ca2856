package engine

import "fmt"

// ValidationError marks a rejected request as a caller problem. The HTTP
// layer maps these to 400 instead of 500.
type ValidationError struct {
	Field   string
	Problem string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Problem)
}

func validationErr(field, problem string) error {
	return &ValidationError{Field: field, Problem: problem}
}
