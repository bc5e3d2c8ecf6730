package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dd0wney/cluso-bench/pkg/catalog"
)

// validate is a singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
	// report json names so errors match what the client sent
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
}

// GenerationRequest asks for one synthetic dataset
type GenerationRequest struct {
	Users        int `json:"users" validate:"min=0,max=10000000"`
	Products     int `json:"products" validate:"min=0,max=1000000"`
	MaxFollows   int `json:"max_follows" validate:"min=0,max=1000"`
	MaxPurchases int `json:"max_purchases" validate:"min=0,max=1000"`
}

// DefaultGenerationRequest mirrors the defaults of the HTTP endpoint
func DefaultGenerationRequest() GenerationRequest {
	return GenerationRequest{Users: 1000, Products: 100, MaxFollows: 20, MaxPurchases: 5}
}

// BenchmarkRequest asks for one benchmark run. Zero values take the
// runner defaults.
type BenchmarkRequest struct {
	TestType   string `json:"test_type" validate:"omitempty,max=64"`
	MaxLevel   int    `json:"max_level" validate:"min=0"`
	ProductID  string `json:"product_id" validate:"omitempty,number,max=19"`
	UserID     string `json:"user_id" validate:"omitempty,number,max=19"`
	Iterations int    `json:"iterations" validate:"min=0,max=1000"`
}

// ValidateGenerationRequest checks entity counts and fan-out caps
func ValidateGenerationRequest(req *GenerationRequest) error {
	if req == nil {
		return errors.New("generation request cannot be nil")
	}
	if err := validate.Struct(req); err != nil {
		return formatValidationError(err)
	}
	if req.MaxPurchases > 0 && req.Products == 0 && req.Users > 0 {
		return errors.New("max_purchases: purchases need at least one product")
	}
	return nil
}

// ValidateBenchmarkRequest checks a run request. Unknown test types are
// accepted here; the runner falls back to running every operation.
func ValidateBenchmarkRequest(req *BenchmarkRequest) error {
	if req == nil {
		return errors.New("benchmark request cannot be nil")
	}
	if err := validate.Struct(req); err != nil {
		return formatValidationError(err)
	}
	if req.MaxLevel != 0 {
		if err := catalog.ValidateLevel(req.MaxLevel); err != nil {
			return fmt.Errorf("max_level: %w", err)
		}
	}
	return nil
}

// formatValidationError converts validator errors to a more user-friendly format
func formatValidationError(err error) error {
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	// the first failing field is enough for a client to fix its request
	for _, e := range validationErrs {
		field := e.Field()
		param := e.Param()

		switch e.Tag() {
		case "required":
			return fmt.Errorf("%s: field is required", field)
		case "min":
			return fmt.Errorf("%s: must be at least %s", field, param)
		case "max":
			if e.Kind() == reflect.String {
				return fmt.Errorf("%s: must not exceed %s characters", field, param)
			}
			return fmt.Errorf("%s: must not exceed %s", field, param)
		case "number":
			return fmt.Errorf("%s: must be a numeric id", field)
		default:
			return fmt.Errorf("%s: validation failed (%s)", field, e.Tag())
		}
	}

	return err
}
