package serverutils

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidationError lists failed fields in a client-readable form.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, rule := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, rule))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func ValidateRequest(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	fields := make(map[string]string, len(validationErrors))
	for _, fe := range validationErrors {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		fields[fe.Field()] = rule
	}
	return &ValidationError{Fields: fields}
}
