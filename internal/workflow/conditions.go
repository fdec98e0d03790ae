package workflow

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Condition operators.
const (
	OpEq       = "eq"
	OpNe       = "ne"
	OpGt       = "gt"
	OpGte      = "gte"
	OpLt       = "lt"
	OpLte      = "lte"
	OpIn       = "in"
	OpNin      = "nin"
	OpContains = "contains"
	OpExists   = "exists"
)

// EvaluateConditions reports whether every condition holds against data.
func EvaluateConditions(conds []Condition, data map[string]interface{}) (bool, error) {
	for _, c := range conds {
		ok, err := c.Evaluate(data)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// Evaluate tests the condition against data. A missing field fails every operator
// except ne, nin and exists=false.
func (c Condition) Evaluate(data map[string]interface{}) (bool, error) {
	actual, found := Lookup(data, c.Field)

	switch c.Operator {
	case OpExists:
		want := true
		if b, ok := c.Value.(bool); ok {
			want = b
		}
		return (found && actual != nil) == want, nil
	case OpEq:
		return found && valuesEqual(actual, c.Value), nil
	case OpNe:
		return !found || !valuesEqual(actual, c.Value), nil
	case OpGt, OpGte, OpLt, OpLte:
		if !found {
			return false, nil
		}
		cmp, ok := compareValues(actual, c.Value)
		if !ok {
			return false, nil
		}
		switch c.Operator {
		case OpGt:
			return cmp > 0, nil
		case OpGte:
			return cmp >= 0, nil
		case OpLt:
			return cmp < 0, nil
		default:
			return cmp <= 0, nil
		}
	case OpIn, OpNin:
		member := found && inList(actual, c.Value)
		if c.Operator == OpIn {
			return member, nil
		}
		return !member, nil
	case OpContains:
		if !found {
			return false, nil
		}
		switch v := actual.(type) {
		case string:
			s, ok := c.Value.(string)
			return ok && strings.Contains(v, s), nil
		default:
			return inList(c.Value, actual), nil
		}
	}
	return false, fmt.Errorf("unknown condition operator %q", c.Operator)
}

// Lookup resolves a dotted path such as "amount" or "vendor.country" in data.
func Lookup(data map[string]interface{}, path string) (interface{}, bool) {
	if data == nil || path == "" {
		return nil, false
	}
	var current interface{} = data
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// SetPath writes value at a dotted path, creating intermediate objects.
func SetPath(data map[string]interface{}, path string, value interface{}) {
	parts := strings.Split(path, ".")
	current := data
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func valuesEqual(a, b interface{}) bool {
	_, aStr := a.(string)
	_, bStr := b.(string)
	if !aStr || !bStr {
		if fa, ok := toFloat(a); ok {
			if fb, ok := toFloat(b); ok {
				return fa == fb
			}
		}
	}
	return reflect.DeepEqual(a, b)
}

func compareValues(a, b interface{}) (int, bool) {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1, true
			case fa > fb:
				return 1, true
			}
			return 0, true
		}
	}
	sa, aok := a.(string)
	sb, bok := b.(string)
	if aok && bok {
		return strings.Compare(sa, sb), true
	}
	return 0, false
}

func inList(needle, list interface{}) bool {
	items, ok := list.([]interface{})
	if !ok {
		if ss, isStrings := list.([]string); isStrings {
			for _, s := range ss {
				if valuesEqual(needle, s) {
					return true
				}
			}
		}
		return false
	}
	for _, item := range items {
		if valuesEqual(needle, item) {
			return true
		}
	}
	return false
}
