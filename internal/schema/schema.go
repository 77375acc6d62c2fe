// Package schema validates untyped payload values against typed Go structs.
//
// Decoding into the struct goes through mapstructure (keyed by json tags, no
// weak typing) and field constraints come from go-playground/validator tags.
// Failures are reported as a list of field-level Violations, which the handler
// packs and returns to the front-end in place of a result.
package schema

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

// RootLoc locates violations that concern the whole value.
const RootLoc = "__root__"

// Violation is one field-level failure.
type Violation struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

// ValidationError carries every violation found in one value.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("%s: %s", strings.Join(v.Loc, "."), v.Msg))
	}
	return fmt.Sprintf("%d validation error(s): %s", len(e.Violations), strings.Join(parts, "; "))
}

// Schema checks a value and returns its typed form. On failure the error is a
// *ValidationError.
type Schema interface {
	Validate(value any) (any, error)
}

// Func adapts a plain function to Schema.
type Func func(value any) (any, error)

func (f Func) Validate(value any) (any, error) { return f(value) }

// Any accepts every value unchanged.
func Any() Schema {
	return Func(func(value any) (any, error) { return value, nil })
}

// StructSchema validates values against T.
type StructSchema[T any] struct {
	validate *validator.Validate
}

// Struct returns a Schema that decodes values into T.
func Struct[T any]() *StructSchema[T] {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return &StructSchema[T]{validate: v}
}

// Validate returns a T on success.
func (s *StructSchema[T]) Validate(value any) (any, error) {
	typed, err := s.Decode(value)
	if err != nil {
		return nil, err
	}
	return typed, nil
}

// Decode is Validate with a typed result.
func (s *StructSchema[T]) Decode(value any) (T, error) {
	var out T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  &out,
	})
	if err != nil {
		return out, err
	}
	if err := dec.Decode(value); err != nil {
		return out, &ValidationError{Violations: decodeViolations(err)}
	}

	if reflect.Indirect(reflect.ValueOf(&out)).Kind() != reflect.Struct {
		return out, nil
	}
	if err := s.validate.Struct(out); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return out, err
		}
		return out, &ValidationError{Violations: fieldViolations(fieldErrs)}
	}
	return out, nil
}

var decodeMsg = regexp.MustCompile(`^'([^']*)' (.*)$`)

func decodeViolations(err error) []Violation {
	msgs := []string{err.Error()}
	var msErr *mapstructure.Error
	if errors.As(err, &msErr) {
		msgs = msErr.Errors
	}
	out := make([]Violation, 0, len(msgs))
	for _, msg := range msgs {
		v := Violation{Loc: []string{RootLoc}, Msg: msg, Type: "type_error"}
		if m := decodeMsg.FindStringSubmatch(msg); m != nil {
			if loc := splitPath(m[1]); len(loc) > 0 {
				v.Loc = loc
			}
			v.Msg = m[2]
		}
		out = append(out, v)
	}
	return out
}

func fieldViolations(errs validator.ValidationErrors) []Violation {
	out := make([]Violation, 0, len(errs))
	for _, fe := range errs {
		loc := splitPath(fe.Namespace())
		if len(loc) > 1 {
			loc = loc[1:] // drop the root struct name
		}
		v := Violation{Loc: loc, Type: "value_error." + fe.Tag()}
		switch fe.Tag() {
		case "required":
			v.Msg = "field required"
			v.Type = "value_error.missing"
		default:
			if fe.Param() != "" {
				v.Msg = fmt.Sprintf("value does not satisfy %s=%s", fe.Tag(), fe.Param())
			} else {
				v.Msg = fmt.Sprintf("value does not satisfy %s", fe.Tag())
			}
		}
		out = append(out, v)
	}
	return out
}

// splitPath turns "items[0].name" into [items 0 name].
func splitPath(path string) []string {
	path = strings.NewReplacer("[", ".", "]", "").Replace(path)
	var out []string
	for _, part := range strings.Split(path, ".") {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
