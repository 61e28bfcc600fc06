package validator

import (
	"fmt"
	"html"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	routingNumberRe = regexp.MustCompile(`^\d{9}$`)
	swiftCodeRe     = regexp.MustCompile(`^[A-Z]{6}[A-Z0-9]{2}([A-Z0-9]{3})?$`)
	accountNumberRe = regexp.MustCompile(`^[0-9]{4,17}$`)
)

type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := &Validator{
		validate: validator.New(),
	}
	v.registerCustomValidations()
	return v
}

func (v *Validator) Validate(i interface{}) error {
	if err := v.validate.Struct(i); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			var errMessages []string
			for _, e := range validationErrors {
				errMessages = append(errMessages, fmt.Sprintf(
					"Field '%s' failed validation '%s'",
					e.Field(),
					e.Tag(),
				))
			}
			return fmt.Errorf("validation failed: %v", errMessages)
		}
		return err
	}
	return nil
}

// ValidateStructured returns a map of field -> error message for frontend usage
func (v *Validator) ValidateStructured(i interface{}) map[string]string {
	errs := make(map[string]string)
	if err := v.validate.Struct(i); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			for _, e := range validationErrors {
				msg := fmt.Sprintf("failed validation on '%s'", e.Tag())
				switch e.Tag() {
				case "required":
					msg = "This field is required"
				case "gt":
					msg = fmt.Sprintf("Must be greater than %s", e.Param())
				case "gte":
					msg = fmt.Sprintf("Must be at least %s", e.Param())
				case "max":
					msg = fmt.Sprintf("Must be at most %s characters", e.Param())
				case "oneof":
					msg = fmt.Sprintf("Must be one of: %s", e.Param())
				case "routing_number":
					msg = "Routing number must be 9 digits"
				case "swift_code":
					msg = "Invalid SWIFT/BIC code"
				case "bank_account_number":
					msg = "Account number must be 4 to 17 digits"
				case "len":
					msg = fmt.Sprintf("Must be exactly %s characters", e.Param())
				}
				errs[e.Field()] = msg
			}
		} else {
			errs["_global"] = err.Error()
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func (v *Validator) registerCustomValidations() {
	// Register decimal.Decimal to be validated as float64 for gt/lt checks
	v.validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if val, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := val.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	_ = v.validate.RegisterValidation("routing_number", func(fl validator.FieldLevel) bool {
		return routingNumberRe.MatchString(strings.TrimSpace(fl.Field().String()))
	})
	_ = v.validate.RegisterValidation("swift_code", func(fl validator.FieldLevel) bool {
		return swiftCodeRe.MatchString(strings.ToUpper(strings.TrimSpace(fl.Field().String())))
	})
	_ = v.validate.RegisterValidation("bank_account_number", func(fl validator.FieldLevel) bool {
		return accountNumberRe.MatchString(strings.TrimSpace(fl.Field().String()))
	})
}

// ValidRoutingNumber reports whether s is a 9-digit ABA routing number.
func ValidRoutingNumber(s string) bool {
	return routingNumberRe.MatchString(strings.TrimSpace(s))
}

// ValidSwiftCode reports whether s looks like an 8 or 11 character BIC.
func ValidSwiftCode(s string) bool {
	return swiftCodeRe.MatchString(strings.ToUpper(strings.TrimSpace(s)))
}

// ValidAccountNumber reports whether s is a plausible bank account number.
func ValidAccountNumber(s string) bool {
	return accountNumberRe.MatchString(strings.TrimSpace(s))
}

// Sanitize cleans string input to prevent XSS attacks
func Sanitize(input string) string {
	return html.EscapeString(strings.TrimSpace(input))
}
