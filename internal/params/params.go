// Package params provides type coercion helpers for free-form
// hyperparameter maps. Request payloads arrive as interface{} values
// (JSON numbers decode as float64), so every algorithm shares the same
// lenient numeric coercion.
package params

import "math"

// Float coerces a hyperparameter value to float64.
func Float(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// Int coerces a hyperparameter value to int. Floats are accepted only
// when integral.
func Int(value interface{}) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v == math.Trunc(v) {
			return int(v), true
		}
		return 0, false
	case float32:
		f := float64(v)
		if f == math.Trunc(f) {
			return int(f), true
		}
		return 0, false
	default:
		return 0, false
	}
}

// Bool coerces a hyperparameter value to bool.
func Bool(value interface{}) (bool, bool) {
	v, ok := value.(bool)
	return v, ok
}

// String coerces a hyperparameter value to string.
func String(value interface{}) (string, bool) {
	v, ok := value.(string)
	return v, ok
}
