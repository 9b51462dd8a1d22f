package http

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"planning-tracker/internal/domain"
)

// RequestValidator plugs go-playground/validator into echo. Failures become
// domain validation errors named by JSON field.
type RequestValidator struct {
	validate *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &RequestValidator{validate: v}
}

func (rv *RequestValidator) Validate(i any) error {
	err := rv.validate.Struct(i)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return domain.Invalidf("invalid payload")
	}
	fe := fieldErrs[0]
	switch fe.Tag() {
	case "email":
		return domain.Invalidf("%s must be a valid email address", fe.Field())
	case "url":
		return domain.Invalidf("%s must be a valid URL", fe.Field())
	case "max":
		return domain.Invalidf("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return domain.Invalidf("%s is invalid", fe.Field())
	}
}
