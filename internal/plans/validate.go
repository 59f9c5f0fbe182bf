package plans

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ayush/fitness-ai/backend/internal/models"
)

// MaxInputBytes bounds a plans.create request body.
const MaxInputBytes = 64 << 10

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON field names rather than Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// DecodeCreateInput reads a plans.create body. Both malformed JSON types and
// failed constraints come back as *ValidationError.
func DecodeCreateInput(r io.Reader) (models.CreatePlanInput, error) {
	var in models.CreatePlanInput

	body, err := io.ReadAll(io.LimitReader(r, MaxInputBytes+1))
	if err != nil {
		return in, fmt.Errorf("read input: %w", err)
	}
	if len(body) > MaxInputBytes {
		verr := &ValidationError{}
		verr.add("input", "Body too large")
		return in, verr
	}
	if len(bytes.TrimSpace(body)) == 0 {
		body = []byte("{}")
	}

	if err := json.Unmarshal(body, &in); err != nil {
		verr := &ValidationError{}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			verr.add(typeErr.Field, fmt.Sprintf("Expected %s, received %s", typeErr.Type.Kind(), typeErr.Value))
		} else {
			verr.add("input", "Malformed JSON body")
		}
		return in, verr
	}
	return in, ValidateCreateInput(in)
}

// ValidateCreateInput checks the struct constraints on in.
func ValidateCreateInput(in models.CreatePlanInput) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate input: %w", err)
	}
	verr := &ValidationError{}
	for _, fe := range fieldErrs {
		verr.add(fe.Field(), fieldMessage(fe))
	}
	return verr
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " must not be empty"
	default:
		return fmt.Sprintf("Failed %q constraint", fe.Tag())
	}
}
