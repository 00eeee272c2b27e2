// Package validation evaluates declarative field rules.
//
// Rules use the github.com/go-playground/validator tag syntax, e.g. "numeric",
// "required,max=120" or "datetime=2006-01-02".
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ErrUnsupportedValue is returned by Var when rule cannot be applied to the
// value's type at all, such as max=200 on a bool.
var ErrUnsupportedValue = errors.New("unsupported value type for rule")

// Var checks a single value against rule. A value the rule cannot evaluate
// yields ErrUnsupportedValue.
func Var(value any, rule string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w %q: %v", ErrUnsupportedValue, rule, r)
		}
	}()
	return validate.Var(value, rule)
}

// ruleSamples cover the value kinds a decoded JSON body or query string holds.
var ruleSamples = []any{"", 0.0, true, []any{}, map[string]any{}}

// ValidRule reports an error for a rule no value could be checked against:
// an unknown validation function or a malformed parameter.
func ValidRule(rule string) error {
	var last error
	for _, sample := range ruleSamples {
		err := Var(sample, rule)
		if !errors.Is(err, ErrUnsupportedValue) {
			return nil
		}
		last = err
	}
	return fmt.Errorf("invalid rule: %w", last)
}

// Result collects failed rules per field.
type Result struct {
	errors map[string][]string
}

// Fails reports whether any rule failed.
func (r Result) Fails() bool {
	return len(r.errors) > 0
}

// Errors returns the failure messages keyed by field.
func (r Result) Errors() map[string][]string {
	return r.errors
}

// Add records a failure message for field.
func (r *Result) Add(field, message string) {
	if r.errors == nil {
		r.errors = make(map[string][]string)
	}
	r.errors[field] = append(r.errors[field], message)
}

func (r Result) MarshalJSON() ([]byte, error) {
	if r.errors == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(r.errors)
}

// Check validates values against rules, field by field in sorted order. A field
// that is absent from values only fails when its rule contains "required".
func Check(values map[string]any, rules map[string]string) Result {
	var res Result
	for _, field := range slices.Sorted(maps.Keys(rules)) {
		rule := rules[field]
		value, present := values[field]
		if !present || value == nil {
			if isRequired(rule) {
				res.Add(field, fmt.Sprintf("%s is required", field))
			}
			continue
		}
		if err := Var(value, rule); err != nil {
			for _, msg := range messages(field, rule, err) {
				res.Add(field, msg)
			}
		}
	}
	return res
}

func isRequired(rule string) bool {
	return slices.Contains(strings.Split(rule, ","), "required")
}

func messages(field, rule string, err error) []string {
	if errors.Is(err, ErrUnsupportedValue) {
		return []string{fmt.Sprintf("%s has an unsupported type for %s", field, rule)}
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{fmt.Sprintf("%s: %v", field, err)}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			out = append(out, fmt.Sprintf("%s does not satisfy %s=%s", field, fe.Tag(), fe.Param()))
			continue
		}
		out = append(out, fmt.Sprintf("%s does not satisfy %s", field, fe.Tag()))
	}
	return out
}

// Struct checks the `validate` tags of a struct value.
func Struct(v any) error {
	return validate.Struct(v)
}
