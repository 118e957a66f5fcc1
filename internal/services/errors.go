package services

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
)

var validate = newValidator()

// newValidator reports fields by their `form` tag so messages match the
// inputs the user saw.
func newValidator() *validator.Validate {
	instance := validator.New()
	instance.RegisterTagNameFunc(func(field reflect.StructField) string {
		if name := field.Tag.Get("form"); name != "" {
			return name
		}
		return field.Name
	})
	return instance
}

// FieldError is one failed form field, phrased for display.
type FieldError struct {
	Field   string
	Message string
}

// ValidationErrors lists every invalid field of a form submission.
type ValidationErrors []FieldError

func (errs ValidationErrors) Error() string {
	messages := make([]string, len(errs))
	for i, fieldError := range errs {
		messages[i] = fieldError.Message
	}
	return strings.Join(messages, "; ")
}

// validateInput runs struct tag validation and converts failures into
// ValidationErrors.
func validateInput(input any) error {
	err := validate.Struct(input)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("validating input: %w", err)
	}

	var result ValidationErrors
	for _, fieldError := range validationErrors {
		result = append(result, FieldError{
			Field:   fieldError.Field(),
			Message: describeFieldError(fieldError),
		})
	}
	return result
}

func describeFieldError(fieldError validator.FieldError) string {
	field := strings.ReplaceAll(fieldError.Field(), "_", " ")
	switch fieldError.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid e-mail address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fieldError.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fieldError.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", field, fieldError.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fieldError.Param())
	}
	return field + " is invalid"
}
