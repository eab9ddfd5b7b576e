package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate

	handlePattern   = regexp.MustCompile(`^@?[A-Za-z0-9_]{1,50}$`)
	clientIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{8,128}$`)
)

func init() {
	Validate = validator.New()

	if err := Validate.RegisterValidation("social_handle", validateSocialHandle); err != nil {
		panic(fmt.Sprintf("failed to register social_handle validator: %v", err))
	}
	if err := Validate.RegisterValidation("client_id", validateClientID); err != nil {
		panic(fmt.Sprintf("failed to register client_id validator: %v", err))
	}
}

// validateSocialHandle accepts an optional leading '@' followed by 1-50 word characters.
// Surrounding whitespace is ignored.
func validateSocialHandle(fl validator.FieldLevel) bool {
	return handlePattern.MatchString(strings.TrimSpace(fl.Field().String()))
}

func validateClientID(fl validator.FieldLevel) bool {
	return clientIDPattern.MatchString(fl.Field().String())
}

// SanitizeText sanitizes text input by trimming whitespace and removing control characters
func SanitizeText(text string) string {
	text = strings.TrimSpace(text)

	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}

// ValidateHandle validates a social handle outside of struct validation.
func ValidateHandle(handle string) error {
	if !handlePattern.MatchString(strings.TrimSpace(handle)) {
		return fmt.Errorf("invalid handle: %q (letters, digits and underscores, at most 50)", handle)
	}
	return nil
}

// FirstError renders the first field failure of a validator error.
func FirstError(err error) string {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		for _, fieldError := range validationErrors {
			return fmt.Sprintf("Validation failed: %s", fieldError.Error())
		}
	}
	return "Validation failed"
}
