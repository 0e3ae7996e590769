package utils

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/upb/ai-integration-platform/services/providers"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(jsonFieldName)
	if err := validate.RegisterValidation("capability", validateCapability); err != nil {
		panic(err)
	}
}

// jsonFieldName reports fields by their wire name so error details match the request body
func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return fld.Name
	}
	return name
}

// validateCapability accepts a capability name from the closed set
func validateCapability(fl validator.FieldLevel) bool {
	_, err := providers.ParseCapability(fl.Field().String())
	return err == nil
}

// ValidateStruct validates a struct using go-playground/validator
func ValidateStruct(s interface{}) error {
	if err := validate.Struct(s); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return NewValidationError(validationErrors)
		}
		return err
	}
	return nil
}

// ValidationError carries one message per invalid field
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// fieldMessages renders a failed tag. %[1]s is the field, %[2]s the tag parameter.
var fieldMessages = map[string]string{
	"required":         "%[1]s is required",
	"required_without": "%[1]s is required when %[2]s is empty",
	"max":              "%[1]s must be at most %[2]s",
	"min":              "%[1]s must be at least %[2]s",
	"gte":              "%[1]s must be greater than or equal to %[2]s",
	"lte":              "%[1]s must be less than or equal to %[2]s",
	"oneof":            "%[1]s must be one of: %[2]s",
	"capability":       "%[1]s must be a known capability",
}

// NewValidationError creates a ValidationError from validator.ValidationErrors
func NewValidationError(errs validator.ValidationErrors) *ValidationError {
	fields := make(map[string]string, len(errs))
	for _, err := range errs {
		format, ok := fieldMessages[err.Tag()]
		if !ok {
			fields[err.Field()] = fmt.Sprintf("%s failed the %q check", err.Field(), err.Tag())
			continue
		}
		fields[err.Field()] = fmt.Sprintf(format, err.Field(), err.Param())
	}

	return &ValidationError{
		Message: "Validation failed",
		Fields:  fields,
	}
}

// IsValidationError checks if an error is a ValidationError
func IsValidationError(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

// GetValidationFields extracts field errors from a ValidationError
func GetValidationFields(err error) map[string]string {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Fields
	}
	return nil
}
