package features

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/scrypster/lingua/internal/apperr"
)

// validate is the shared validator for request payloads. It reports fields
// by their JSON names and knows the custom "langcode" rule.
var validate *validator.Validate

var langCodePattern = regexp.MustCompile(`^[a-z]{2,3}$`)

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = validate.RegisterValidation("langcode", func(fl validator.FieldLevel) bool {
		return langCodePattern.MatchString(fl.Field().String())
	})
}

// validateRequest runs struct-tag validation on req.
func validateRequest(op string, req any) error {
	if err := validate.Struct(req); err != nil {
		return invalid(op, "", err)
	}
	return nil
}

// invalid converts the first validation failure into an InvalidArgument
// error. field overrides the reported field name for validate.Var calls.
func invalid(op, field string, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.Invalid(op, "invalid request: %v", err)
	}
	fe := verrs[0]
	if field == "" {
		field = fe.Field()
	}
	switch fe.Tag() {
	case "required":
		return apperr.Invalid(op, "%s is required", field)
	case "max":
		return apperr.Invalid(op, "%s exceeds %s characters", field, fe.Param())
	case "langcode":
		return apperr.Invalid(op, "%s must be a 2-3 letter language code", field)
	case "oneof":
		return apperr.Invalid(op, "%s must be one of: %s", field, fe.Param())
	default:
		return apperr.Invalid(op, "%s is invalid", field)
	}
}

// normalizeLang lower-cases and trims a language code.
func normalizeLang(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// coerceLang returns code when it is a well-formed language code and "und"
// otherwise.
func coerceLang(code string) string {
	code = normalizeLang(code)
	if langCodePattern.MatchString(code) {
		return code
	}
	return "und"
}
