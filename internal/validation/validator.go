// Package validation evaluates declarative field rules against accumulated
// workflow data. Failures are returned as data, never as errors.
package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/cel-go/cel"

	"condo-manager/backend/pkg/models"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// dateLayouts are the accepted textual date forms.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04",
	"02/01/2006",
}

// FieldError is one failed rule.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Result is the outcome of validating a rule set.
type Result struct {
	Valid  bool         `json:"valid"`
	Errors []FieldError `json:"errors,omitempty"`
}

// Messages returns the failure messages in rule order.
func (r Result) Messages() []string {
	out := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		out = append(out, e.Message)
	}
	return out
}

// ByField maps each failing field to its first message.
func (r Result) ByField() map[string]string {
	if len(r.Errors) == 0 {
		return nil
	}
	out := make(map[string]string, len(r.Errors))
	for _, e := range r.Errors {
		if _, ok := out[e.Field]; !ok {
			out[e.Field] = e.Message
		}
	}
	return out
}

// Validator runs rule sets. It caches compiled CEL programs and is safe for
// concurrent use.
type Validator struct {
	env   *cel.Env
	mu    sync.RWMutex
	cache map[string]cel.Program
}

// New creates a Validator with the CEL environment used by expression rules.
func New() (*Validator, error) {
	env, err := cel.NewEnv(
		cel.Variable("value", cel.DynType),
		cel.Variable("data", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &Validator{env: env, cache: make(map[string]cel.Program)}, nil
}

// Validate checks every rule against data and collects the failures.
func (v *Validator) Validate(rules []models.ValidationRule, data map[string]any) Result {
	res := Result{Valid: true}
	for _, rule := range rules {
		if v.check(rule, data) {
			continue
		}
		res.Valid = false
		msg := rule.Message
		if msg == "" {
			msg = fmt.Sprintf("%s: %s check failed", rule.Field, rule.Kind)
		}
		res.Errors = append(res.Errors, FieldError{Field: rule.Field, Message: msg})
	}
	return res
}

func (v *Validator) check(rule models.ValidationRule, data map[string]any) bool {
	value := data[rule.Field]
	switch rule.Kind {
	case models.RuleRequired:
		return !isEmpty(value)
	case models.RuleDate:
		return isEmpty(value) || IsDate(value)
	case models.RuleNumber:
		return isEmpty(value) || IsNumber(value)
	case models.RuleEmail:
		return isEmpty(value) || IsEmail(value)
	case models.RuleCustom:
		if rule.Predicate != nil {
			return rule.Predicate(value, data)
		}
		if rule.Expression != "" {
			ok, err := v.Eval(rule.Expression, value, data)
			return err == nil && ok
		}
		return true
	default:
		return false
	}
}

// Eval evaluates a CEL boolean expression with `value` and `data` bound.
func (v *Validator) Eval(expr string, value any, data map[string]any) (bool, error) {
	prg, err := v.program(expr)
	if err != nil {
		return false, err
	}
	in, err := plain(map[string]any{"value": value, "data": data})
	if err != nil {
		return false, err
	}
	out, _, err := prg.Eval(in)
	if err != nil {
		return false, fmt.Errorf("eval: %w", err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression %q did not yield a bool", expr)
	}
	return b, nil
}

// Compile reports whether expr is a valid boolean expression.
func (v *Validator) Compile(expr string) error {
	_, err := v.program(expr)
	return err
}

func (v *Validator) program(expr string) (cel.Program, error) {
	v.mu.RLock()
	prg, hit := v.cache[expr]
	v.mu.RUnlock()
	if hit {
		return prg, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if prg, hit = v.cache[expr]; hit {
		return prg, nil
	}
	ast, issues := v.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile: %w", issues.Err())
	}
	prg, err := v.env.Program(ast, cel.CostLimit(10000))
	if err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}
	v.cache[expr] = prg
	return prg, nil
}

// plain converts typed Go values into the JSON shapes CEL understands.
func plain(in map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encode expression input: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode expression input: %w", err)
	}
	if out["data"] == nil {
		out["data"] = map[string]any{}
	}
	return out, nil
}

func isEmpty(value any) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// IsDate reports whether value is a time.Time or text naming a real calendar date.
func IsDate(value any) bool {
	switch v := value.(type) {
	case time.Time:
		return !v.IsZero()
	case *time.Time:
		return v != nil && !v.IsZero()
	case string:
		_, ok := ParseDate(v)
		return ok
	}
	return false
}

// ParseDate parses s with the accepted layouts.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// IsNumber reports whether value is, or parses to, a finite number.
func IsNumber(value any) bool {
	switch v := value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, models.Permille:
		return true
	case float32:
		return finite(float64(v))
	case float64:
		return finite(v)
	case json.Number:
		f, err := v.Float64()
		return err == nil && finite(f)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return err == nil && finite(f)
	}
	return false
}

// IsEmail applies the simple address pattern.
func IsEmail(value any) bool {
	s, ok := value.(string)
	return ok && emailPattern.MatchString(strings.TrimSpace(s))
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
