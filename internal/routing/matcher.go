package routing

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

type Operator string

const (
	OpEquals      Operator = "equals"
	OpContains    Operator = "contains"
	OpRegex       Operator = "regex"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
	OpRange       Operator = "range"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpExists      Operator = "exists"
	OpNotExists   Operator = "not_exists"
)

var knownOperators = map[Operator]bool{
	OpEquals: true, OpContains: true, OpRegex: true, OpIn: true, OpNotIn: true,
	OpRange: true, OpGreaterThan: true, OpLessThan: true, OpExists: true, OpNotExists: true,
}

func (o Operator) Valid() bool {
	return knownOperators[o]
}

// Matcher is a single predicate on a dot-separated payload path.
type Matcher struct {
	FieldPath string
	Operator  Operator
	Value     interface{}

	re    *regexp.Regexp
	reErr error
}

// NewMatcher builds a Matcher, compiling regex patterns up front.
// A bad pattern is kept and reported on evaluation.
func NewMatcher(fieldPath string, op Operator, value interface{}) Matcher {
	m := Matcher{FieldPath: fieldPath, Operator: op, Value: value}
	if op == OpRegex {
		m.re, m.reErr = compilePattern(value)
	}
	return m
}

func compilePattern(value interface{}) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?i)" + stringify(value))
	if err != nil {
		return nil, fmt.Errorf("invalid regex %q: %w", stringify(value), err)
	}
	return re, nil
}

// Matches reports whether the payload satisfies the predicate. Evaluation
// failures count as no match.
func (m Matcher) Matches(payload map[string]interface{}) bool {
	ok, _ := m.Evaluate(payload)
	return ok
}

// Evaluate is Matches with the evaluation failure, if any, returned.
func (m Matcher) Evaluate(payload map[string]interface{}) (matched bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			matched = false
			err = fmt.Errorf("matcher %s %s panicked: %v", m.FieldPath, m.Operator, r)
		}
	}()

	actual, present := resolvePath(payload, m.FieldPath)

	switch m.Operator {
	case OpExists:
		return present, nil
	case OpNotExists:
		return !present, nil
	}

	if !present {
		return false, nil
	}

	switch m.Operator {
	case OpEquals:
		return valuesEqual(actual, m.Value), nil
	case OpContains:
		return strings.Contains(strings.ToLower(stringify(actual)), strings.ToLower(stringify(m.Value))), nil
	case OpRegex:
		re, reErr := m.re, m.reErr
		if re == nil && reErr == nil {
			re, reErr = compilePattern(m.Value)
		}
		if reErr != nil {
			return false, reErr
		}
		return re.MatchString(stringify(actual)), nil
	case OpIn:
		list, ok := toList(m.Value)
		if !ok {
			return false, nil
		}
		return containsValue(list, actual), nil
	case OpNotIn:
		list, ok := toList(m.Value)
		if !ok {
			return true, nil
		}
		return !containsValue(list, actual), nil
	case OpRange:
		bounds, ok := toList(m.Value)
		if !ok || len(bounds) != 2 {
			return false, fmt.Errorf("range on %s needs [low, high], got %v", m.FieldPath, m.Value)
		}
		lo, err := compareValues(actual, bounds[0])
		if err != nil {
			return false, err
		}
		hi, err := compareValues(actual, bounds[1])
		if err != nil {
			return false, err
		}
		return lo >= 0 && hi <= 0, nil
	case OpGreaterThan:
		c, err := compareValues(actual, m.Value)
		if err != nil {
			return false, err
		}
		return c > 0, nil
	case OpLessThan:
		c, err := compareValues(actual, m.Value)
		if err != nil {
			return false, err
		}
		return c < 0, nil
	default:
		return false, fmt.Errorf("unknown operator %q", m.Operator)
	}
}

// resolvePath walks nested maps and slices. Numeric segments index slices.
func resolvePath(payload map[string]interface{}, path string) (interface{}, bool) {
	if payload == nil || path == "" {
		return nil, false
	}

	var current interface{} = payload
	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]interface{}:
			v, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = v
		case []interface{}:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			v, ok := resolveReflect(current, segment)
			if !ok {
				return nil, false
			}
			current = v
		}
	}
	return current, true
}

func resolveReflect(node interface{}, segment string) (interface{}, bool) {
	rv := reflect.ValueOf(node)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		v := rv.MapIndex(reflect.ValueOf(segment).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil, false
		}
		return v.Interface(), true
	case reflect.Slice, reflect.Array:
		idx, err := strconv.Atoi(segment)
		if err != nil || idx < 0 || idx >= rv.Len() {
			return nil, false
		}
		return rv.Index(idx).Interface(), true
	default:
		return nil, false
	}
}

// nilText is how a null value reads to contains and regex.
const nilText = "None"

func stringify(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return nilText
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprint(v)
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case bool, nil, string:
		return 0, false
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return 0, false
	}
}

func toList(v interface{}) ([]interface{}, bool) {
	if list, ok := v.([]interface{}); ok {
		return list, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	list := make([]interface{}, rv.Len())
	for i := range list {
		list[i] = rv.Index(i).Interface()
	}
	return list, true
}

func valuesEqual(a, b interface{}) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func containsValue(list []interface{}, v interface{}) bool {
	for _, item := range list {
		if valuesEqual(item, v) {
			return true
		}
	}
	return false
}

// compareValues orders two numbers numerically or two strings lexicographically.
func compareValues(a, b interface{}) (int, error) {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return 0, fmt.Errorf("cannot compare %T with %T", a, b)
		}
		switch {
		case fa < fb:
			return -1, nil
		case fa > fb:
			return 1, nil
		default:
			return 0, nil
		}
	}

	sa, okA := a.(string)
	sb, okB := b.(string)
	if okA && okB {
		return strings.Compare(sa, sb), nil
	}
	return 0, fmt.Errorf("cannot compare %T with %T", a, b)
}
