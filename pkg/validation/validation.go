// Package validation plugs go-playground/validator into Echo so handlers can
// call c.Validate on bound request bodies.
package validation

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var otpCode = regexp.MustCompile(`^[0-9]{6}$`)

var messages = map[string]string{
	"required": "is required",
	"uuid":     "must be a valid UUID",
	"otp":      "must be a 6-digit code",
	"max":      "must be at most %s characters",
	"oneof":    "must be one of: %s",
	"datetime": "must be a date in %s format",
}

// RequestValidator implements echo.Validator.
type RequestValidator struct {
	validate *validator.Validate
}

func New() *RequestValidator {
	v := validator.New()
	v.RegisterValidation("otp", func(fl validator.FieldLevel) bool {
		return otpCode.MatchString(fl.Field().String())
	})
	return &RequestValidator{validate: v}
}

// Validate checks i and reports every failing field in one 400 error.
func (r *RequestValidator) Validate(i interface{}) error {
	err := r.validate.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusBadRequest, FormatErrors(verrs))
}

// FormatErrors renders validation errors as "field message" pairs.
func FormatErrors(verrs validator.ValidationErrors) string {
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg, ok := messages[fe.Tag()]
		if !ok {
			msg = "is invalid"
		}
		if strings.Contains(msg, "%s") {
			msg = fmt.Sprintf(msg, strings.Join(strings.Fields(fe.Param()), ", "))
		}
		parts = append(parts, toSnake(fe.Field())+" "+msg)
	}
	return strings.Join(parts, "; ")
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && !(s[i-1] >= 'A' && s[i-1] <= 'Z') {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
