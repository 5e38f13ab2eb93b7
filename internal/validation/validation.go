// Package validation wraps go-playground/validator with the project's custom tags and
// converts failures into domain validation errors.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/aristath/riskflow/internal/domain"
	"github.com/go-playground/validator/v10"
)

var (
	currencyCodePattern   = regexp.MustCompile(`^[A-Z]{3}$`)
	capabilityNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[a-z][a-z0-9_]*)+$`)
)

// Validator validates structs against their `validate` tags
type Validator struct {
	validate *validator.Validate
}

// New creates a validator with the custom tags registered:
//   - currency_code: three upper-case letters
//   - capability_name: dotted lower-case name such as risk.dar
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	_ = v.RegisterValidation("currency_code", func(fl validator.FieldLevel) bool {
		return currencyCodePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("capability_name", func(fl validator.FieldLevel) bool {
		return capabilityNamePattern.MatchString(fl.Field().String())
	})

	// Report yaml/json field names instead of Go field names
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		for _, tag := range []string{"yaml", "json"} {
			name := strings.SplitN(field.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return field.Name
	})

	return &Validator{validate: v}
}

// Struct validates s and returns the first failure as a *domain.ValidationError
func (v *Validator) Struct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &domain.ValidationError{Field: fieldPath(fe), Reason: describe(fe)}
	}
	return &domain.ValidationError{Reason: err.Error()}
}

// IsCurrencyCode reports whether code is a three-letter upper-case currency code
func IsCurrencyCode(code string) bool {
	return currencyCodePattern.MatchString(code)
}

// IsCapabilityName reports whether name is a well-formed capability name
func IsCapabilityName(name string) bool {
	return capabilityNamePattern.MatchString(name)
}

// fieldPath drops the root struct name from the namespace (Pattern.steps[0].capability -> steps[0].capability)
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must have at least %s entries", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %v", fe.Param(), fe.Value())
	case "currency_code":
		return fmt.Sprintf("must be a three-letter currency code, got %v", fe.Value())
	case "capability_name":
		return fmt.Sprintf("must be a dotted capability name such as risk.dar, got %v", fe.Value())
	case "gt", "gte", "lt", "lte":
		return fmt.Sprintf("must satisfy %s %s, got %v", fe.Tag(), fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}
