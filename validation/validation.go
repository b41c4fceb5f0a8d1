// Package validation collects field violations (field -> code) for form and JSON inputs.
package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ttacon/libphonenumber"
)

// DefaultRegion is used to parse phone numbers written without a country prefix.
const DefaultRegion = "LK"

type Violations map[string]string

func (v Violations) Empty() bool { return len(v) == 0 }

// Has reports whether field has a violation.
func (v Violations) Has(field string) bool {
	_, ok := v[field]
	return ok
}

// Basic validators
func Required(field, value string, v Violations) {
	if strings.TrimSpace(value) == "" {
		v[field] = "required"
	}
}

func MinLength(field, value string, n int, v Violations) {
	if len(value) < n {
		v[field] = "too_short"
	}
}

func OneOf(field, value string, allowed []string, v Violations) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	v[field] = "invalid_choice"
}

// Phone records a violation when a non-empty value is not a valid phone number.
func Phone(field, value string, v Violations) {
	if value == "" {
		return
	}
	if !IsPhone(value, DefaultRegion) {
		v[field] = "invalid_phone"
	}
}

// IsPhone parses value in region and checks it is a valid number.
func IsPhone(value, region string) bool {
	p, err := libphonenumber.Parse(value, region)
	if err != nil {
		return false
	}
	return libphonenumber.IsValidNumber(p)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report violations under the form/json name instead of the Go field name
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"form", "json"} {
			name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s == "" || IsPhone(s, DefaultRegion)
	})
	return v
}

// Struct validates `validate` tags on s and returns field -> tag violations.
func Struct(s any) Violations {
	out := Violations{}
	err := validate.Struct(s)
	if err == nil {
		return out
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		out["_"] = "invalid"
		return out
	}
	for _, fe := range verrs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}
