// Package utils provides small helpers shared by the application and transport layers.
package utils

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/turtacn/authcore/pkg/errors"
)

var defaultValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their wire name.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	return v
}

// ValidateStruct validates s against its `validate` tags. Failures are reported as a
// single invalid_request error naming every offending field.
func ValidateStruct(s interface{}) error {
	err := defaultValidator.Struct(s)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !stderrors.As(err, &validationErrors) {
		return errors.ErrInvalidRequest("request could not be validated").WithCause(err)
	}

	problems := make([]string, 0, len(validationErrors))
	details := make(map[string]string, len(validationErrors))
	for _, fe := range validationErrors {
		field := fe.Field()
		msg := formatValidationError(fe)
		details[field] = msg
		problems = append(problems, field+" "+msg)
	}
	sort.Strings(problems)

	authErr := errors.ErrInvalidRequest(strings.Join(problems, "; "))
	for field, msg := range details {
		authErr = authErr.WithMetadata(field, msg)
	}
	return authErr
}

// formatValidationError creates a user-friendly error message for a validation error.
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "url":
		return "must be a valid URL"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return fmt.Sprintf("failed on the '%s' tag", fe.Tag())
	}
}
