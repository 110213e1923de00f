package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report violations under their yaml key, not the Go field name.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("duration", validDuration); err != nil {
		panic(err)
	}
	return v
}

// validDuration accepts time.ParseDuration syntax. Empty strings pass;
// pair with omitempty where absence is allowed.
func validDuration(fl validator.FieldLevel) bool {
	_, err := time.ParseDuration(fl.Field().String())
	return err == nil
}

// Validate checks the merged configuration tree and reports every
// violation with its yaml path.
func (c PipelineConfig) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid pipeline configuration: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describeViolation(fe))
	}
	return fmt.Errorf("invalid pipeline configuration: %s", strings.Join(msgs, "; "))
}

func describeViolation(fe validator.FieldError) string {
	path := strings.TrimPrefix(fe.Namespace(), "PipelineConfig.")
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", path, fe.Param(), fe.Value())
	case "gte":
		return fmt.Sprintf("%s must be at least %s, got %v", path, fe.Param(), fe.Value())
	case "duration":
		return fmt.Sprintf("%s is not a valid duration: %q", path, fe.Value())
	case "url":
		return fmt.Sprintf("%s is not a valid URL: %q", path, fe.Value())
	default:
		return fmt.Sprintf("%s failed %s validation", path, fe.Tag())
	}
}
