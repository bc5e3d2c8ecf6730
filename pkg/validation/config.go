package validation

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"time"
)

// ConfigValidator provides a fluent interface for validating configuration values.
// It collects all validation errors rather than failing on the first one.
type ConfigValidator struct {
	errors []error
	name   string // section name for error messages
}

// NewConfigValidator creates a new config validator with the given section name.
func NewConfigValidator(section string) *ConfigValidator {
	return &ConfigValidator{
		name:   section,
		errors: make([]error, 0),
	}
}

func (cv *ConfigValidator) fail(field, format string, args ...any) *ConfigValidator {
	cv.errors = append(cv.errors, fmt.Errorf("%s.%s: %s", cv.name, field, fmt.Sprintf(format, args...)))
	return cv
}

// Section validates a nested section, prefixing its errors with this one's name.
func (cv *ConfigValidator) Section(name string, validations func(*ConfigValidator)) *ConfigValidator {
	sub := NewConfigValidator(cv.name + "." + name)
	validations(sub)
	cv.errors = append(cv.errors, sub.errors...)
	return cv
}

// Required validates that a string field is not empty.
func (cv *ConfigValidator) Required(field, value string) *ConfigValidator {
	if value == "" {
		return cv.fail(field, "required field is empty")
	}
	return cv
}

// RangeInt validates that an int field is within the specified range.
func (cv *ConfigValidator) RangeInt(field string, value, min, max int) *ConfigValidator {
	if value < min || value > max {
		return cv.fail(field, "value %d is outside range [%d, %d]", value, min, max)
	}
	return cv
}

// Positive validates that an int field is positive (> 0).
func (cv *ConfigValidator) Positive(field string, value int) *ConfigValidator {
	if value <= 0 {
		return cv.fail(field, "value %d must be positive", value)
	}
	return cv
}

// NonNegative validates that an int field is non-negative (>= 0).
func (cv *ConfigValidator) NonNegative(field string, value int) *ConfigValidator {
	if value < 0 {
		return cv.fail(field, "value %d must be non-negative", value)
	}
	return cv
}

// PositiveFloat validates that a float field is positive (> 0).
func (cv *ConfigValidator) PositiveFloat(field string, value float64) *ConfigValidator {
	if value <= 0 {
		return cv.fail(field, "value %g must be positive", value)
	}
	return cv
}

// MinDuration validates that a duration is at least the minimum.
func (cv *ConfigValidator) MinDuration(field string, value, min time.Duration) *ConfigValidator {
	if value < min {
		return cv.fail(field, "duration %v is below minimum %v", value, min)
	}
	return cv
}

// OneOf validates that a string field is one of the allowed values.
func (cv *ConfigValidator) OneOf(field, value string, allowed []string) *ConfigValidator {
	if !slices.Contains(allowed, value) {
		return cv.fail(field, "value %q must be one of %v", value, allowed)
	}
	return cv
}

// URL validates that a field parses as a URL with one of the given schemes.
func (cv *ConfigValidator) URL(field, value string, schemes ...string) *ConfigValidator {
	u, err := url.Parse(value)
	if err != nil || u.Scheme == "" {
		return cv.fail(field, "%q is not a valid URL", value)
	}
	if len(schemes) > 0 && !slices.Contains(schemes, u.Scheme) {
		return cv.fail(field, "scheme %q must be one of %v", u.Scheme, schemes)
	}
	return cv
}

// Custom applies a custom validation function.
func (cv *ConfigValidator) Custom(field string, fn func() error) *ConfigValidator {
	if err := fn(); err != nil {
		cv.errors = append(cv.errors, fmt.Errorf("%s.%s: %w", cv.name, field, err))
	}
	return cv
}

// When conditionally applies validations if the condition is true.
func (cv *ConfigValidator) When(condition bool, validations func(*ConfigValidator)) *ConfigValidator {
	if condition {
		validations(cv)
	}
	return cv
}

// HasErrors returns true if any validation errors occurred.
func (cv *ConfigValidator) HasErrors() bool {
	return len(cv.errors) > 0
}

// Errors returns all validation errors.
func (cv *ConfigValidator) Errors() []error {
	return cv.errors
}

// Validate returns every collected error joined, or nil.
func (cv *ConfigValidator) Validate() error {
	switch len(cv.errors) {
	case 0:
		return nil
	case 1:
		return cv.errors[0]
	default:
		return fmt.Errorf("%s validation failed with %d errors: %w", cv.name, len(cv.errors), errors.Join(cv.errors...))
	}
}
