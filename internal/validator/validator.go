package validator

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator wraps go-playground/validator with domain rules registered.
type Validator struct {
	validate *validator.Validate
}

// New creates a validator with JSON field names and custom rules.
func New() *Validator {
	validate := validator.New()

	// Report the json tag name instead of the Go field name
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	v := &Validator{validate: validate}
	v.registerDomainRules()

	return v
}

// Validate validates a struct and returns a readable error.
func (v *Validator) Validate(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	ok := false
	if validationErrors, ok = err.(validator.ValidationErrors); !ok {
		return err
	}

	messages := make([]string, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		messages = append(messages, formatFieldError(fieldErr))
	}
	return fmt.Errorf("%s", strings.Join(messages, "; "))
}

func (v *Validator) registerDomainRules() {
	// hint_count: sane bound on hints reported per structure
	v.validate.RegisterValidation("hint_count", func(fl validator.FieldLevel) bool {
		n := fl.Field().Int()
		return n >= 0 && n <= 50
	})

	// confidence_level: 0 means unreported, 1..5 is the scale
	v.validate.RegisterValidation("confidence_level", func(fl validator.FieldLevel) bool {
		n := fl.Field().Int()
		return n >= 0 && n <= 5
	})

	// answer_text: answers are short labels, not essays
	v.validate.RegisterValidation("answer_text", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= 500
	})
}

func formatFieldError(fieldErr validator.FieldError) string {
	switch fieldErr.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fieldErr.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fieldErr.Field(), fieldErr.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fieldErr.Field(), fieldErr.Param())
	case "hint_count":
		return fmt.Sprintf("%s must be between 0 and 50", fieldErr.Field())
	case "confidence_level":
		return fmt.Sprintf("%s must be between 0 and 5", fieldErr.Field())
	case "answer_text":
		return fmt.Sprintf("%s is too long", fieldErr.Field())
	default:
		return fmt.Sprintf("%s failed %s validation", fieldErr.Field(), fieldErr.Tag())
	}
}
