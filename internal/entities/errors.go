package entities

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var ErrInputNotProvided = errors.New("Input data not provided")

// MissingColumnsError lists the required columns absent from an input.
type MissingColumnsError struct {
	Missing []string
}

func (e *MissingColumnsError) Error() string {
	return "Required columns missing. Required columns: " + pythonList(RequiredColumns[:])
}

type InvalidValueError struct {
	Column string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("Column %q must be numeric", e.Column)
}

type MalformedInputError struct {
	Reason string
}

func (e *MalformedInputError) Error() string {
	return "Malformed JSON input: " + e.Reason
}

// IsBadRequest reports whether err was caused by the caller's input.
func IsBadRequest(err error) bool {
	var (
		missing   *MissingColumnsError
		invalid   *InvalidValueError
		malformed *MalformedInputError
	)

	return errors.Is(err, ErrInputNotProvided) ||
		errors.As(err, &missing) ||
		errors.As(err, &invalid) ||
		errors.As(err, &malformed)
}

func pythonList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = "'" + s + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
