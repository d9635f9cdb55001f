package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// requestValidate checks sanitized request bodies before they reach the AI backend
var requestValidate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks v against its validate tags and reports the first
// offending fields as a validation error
func Validate(v interface{}) error {
	err := requestValidate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return WrapError(KindValidation, "invalid request", err)
	}

	var required, other []string
	for _, fe := range fieldErrs {
		name := lowerFirst(fe.Field())
		switch fe.Tag() {
		case "required":
			required = append(required, name)
		case "max":
			other = append(other, fmt.Sprintf("%s must be at most %s characters", name, fe.Param()))
		default:
			other = append(other, fmt.Sprintf("%s is invalid", name))
		}
	}

	var parts []string
	switch len(required) {
	case 0:
	case 1:
		parts = append(parts, required[0]+" is required")
	default:
		parts = append(parts, strings.Join(required, " and ")+" are required")
	}
	parts = append(parts, other...)

	return NewError(KindValidation, strings.Join(parts, "; "))
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
