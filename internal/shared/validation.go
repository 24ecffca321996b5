package shared

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Credentials is the input to a password-grant login.
type Credentials struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

// Registration is the input to account creation.
type Registration struct {
	Username string `validate:"required,min=3,max=50"`
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

// ValidateCredentials checks login input before any network call.
func ValidateCredentials(c Credentials) error {
	return validateStruct(c)
}

// ValidateRegistration checks registration input, including the configured minimum password length.
func ValidateRegistration(r Registration, minPasswordLength int) error {
	if err := validateStruct(r); err != nil {
		return err
	}
	if len(r.Password) < minPasswordLength {
		return NewValidationError("password", fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}
	return nil
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	fe := fieldErrs[0]
	return NewValidationError(strings.ToLower(fe.Field()), describeTag(fe))
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
