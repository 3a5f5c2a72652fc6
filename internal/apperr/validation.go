package apperr

import (
	"errors"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// FromValidation converts the result of an ozzo-validation call into a
// *ValidationError naming the first offending field (alphabetically, so the
// message is stable). Internal validator errors pass through unchanged.
func FromValidation(err error) error {
	if err == nil {
		return nil
	}
	var internal validation.InternalError
	if errors.As(err, &internal) {
		return err
	}
	var fields validation.Errors
	if !errors.As(err, &fields) || len(fields) == 0 {
		return &ValidationError{Message: err.Error()}
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	first := names[0]
	return &ValidationError{Field: first, Message: fields[first].Error()}
}
