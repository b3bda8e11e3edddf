package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dshills/plughost/internal/event/topic"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks field constraints, plugin name uniqueness and the
// command prefix.
func (f *File) Validate() error {
	if err := validate.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ValidationError{
				Path:    fieldPath(fe.Namespace()),
				Message: fmt.Sprintf("failed %q constraint", fe.Tag()),
			}
		}
		return fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	if prefix := f.Manager.EventPrefix; prefix != "" {
		if t := topic.Topic(prefix); !t.IsValid() || t.IsWildcard() {
			return &ValidationError{
				Path:    "manager.eventPrefix",
				Message: fmt.Sprintf("%q is not a concrete topic", prefix),
			}
		}
	}

	seen := make(map[string]int, len(f.Plugins))
	for i, ps := range f.Plugins {
		if first, ok := seen[ps.Name]; ok {
			return &ValidationError{
				Path:    fmt.Sprintf("plugins[%d].name", i),
				Message: fmt.Sprintf("duplicate plugin name %q (first at plugins[%d])", ps.Name, first),
			}
		}
		seen[ps.Name] = i
	}
	return nil
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}
