package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// DefaultMessage renders a human-readable message for a failed
// validation tag.
func DefaultMessage(field, tag string) string {
	field = strings.ToLower(field)

	switch tag {
	case "required":
		return fmt.Sprintf("%s must not be empty", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "alphanum":
		return fmt.Sprintf("%s may only contain letters and digits", field)
	case "min":
		return fmt.Sprintf("%s is below the minimum length", field)
	case "max":
		return fmt.Sprintf("%s exceeds the maximum length", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// FormatBindingError turns a gin binding failure into a list of field
// messages. Non-validator errors (malformed JSON, wrong content type)
// collapse into a single generic entry.
func FormatBindingError(err error) []string {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return []string{"request body is malformed"}
	}

	messages := make([]string, 0, len(validationErrs))
	for _, fieldErr := range validationErrs {
		messages = append(messages, DefaultMessage(fieldErr.Field(), fieldErr.Tag()))
	}

	return messages
}
