// Package config provides configuration loading and parsing for relaxsim.
package config

import (
	"fmt"
	"strconv"
	"strings"
)

// lookupSetting searches for a value in settings using multiple candidate keys.
// It performs case-insensitive matching by also checking lowercase versions.
func lookupSetting(settings map[string]interface{}, candidates ...string) (interface{}, bool) {
	for _, key := range candidates {
		if val, ok := settings[key]; ok {
			return val, true
		}
		lower := strings.ToLower(key)
		if val, ok := settings[lower]; ok {
			return val, true
		}
	}
	return nil, false
}

// asString converts an interface value to a string.
// Handles nil, string, fmt.Stringer, []byte, and falls back to fmt.Sprint.
func asString(value interface{}) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	case []byte:
		return string(v), nil
	default:
		return fmt.Sprint(v), nil
	}
}

// asInt converts an interface value to an int.
// Handles all numeric types and string representations.
func asInt(value interface{}) (int, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case int:
		return v, nil
	case int8:
		return int(v), nil
	case int16:
		return int(v), nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case uint:
		return int(v), nil
	case uint8:
		return int(v), nil
	case uint16:
		return int(v), nil
	case uint32:
		return int(v), nil
	case uint64:
		return int(v), nil
	case float32:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		if strings.TrimSpace(v) == "" {
			return 0, nil
		}
		i, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, err
		}
		return i, nil
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", value)
	}
}

// asFloat64 converts an interface value to a float64.
// Handles all numeric types and string representations.
func asFloat64(value interface{}) (float64, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		if strings.TrimSpace(v) == "" {
			return 0, nil
		}
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	default:
		return 0, fmt.Errorf("unsupported float type %T", value)
	}
}

// asBool converts an interface value to a bool.
// Handles bool and string representations.
func asBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return false, nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, err
		}
		return b, nil
	default:
		return false, fmt.Errorf("unsupported boolean type %T", value)
	}
}

// asStringSlice converts an interface value to a []string.
// Handles []string, []interface{}, and single string values.
func asStringSlice(value interface{}) ([]string, error) {
	if value == nil {
		return nil, nil
	}
	switch v := value.(type) {
	case []string:
		return v, nil
	case []interface{}:
		result := make([]string, len(v))
		for i, item := range v {
			str, err := asString(item)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			result[i] = str
		}
		return result, nil
	case string:
		return []string{v}, nil
	default:
		return nil, fmt.Errorf("unsupported string slice type %T", value)
	}
}

// toStringKeyMap converts a map with various key types to map[string]interface{}.
// Keys are normalized to lowercase.
func toStringKeyMap(value interface{}) (map[string]interface{}, error) {
	result := map[string]interface{}{}
	switch v := value.(type) {
	case map[string]interface{}:
		for key, val := range v {
			result[strings.ToLower(strings.TrimSpace(key))] = val
		}
	case map[interface{}]interface{}:
		for key, val := range v {
			str, err := asString(key)
			if err != nil {
				return nil, err
			}
			result[strings.ToLower(strings.TrimSpace(str))] = val
		}
	default:
		return nil, fmt.Errorf("expected map, got %T", value)
	}
	return result, nil
}

// asUint64 converts an interface value to a uint64. Negative values are rejected.
func asUint64(value interface{}) (uint64, error) {
	switch v := value.(type) {
	case uint64:
		return v, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return 0, nil
		}
		return strconv.ParseUint(strings.TrimSpace(v), 10, 64)
	default:
		i, err := asInt(value)
		if err != nil {
			return 0, err
		}
		if i < 0 {
			return 0, fmt.Errorf("value must be >= 0, got %d", i)
		}
		return uint64(i), nil
	}
}

// asIntSlice converts an interface value to an []int.
// Handles []int, []interface{}, comma separated strings and single numbers.
func asIntSlice(value interface{}) ([]int, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []int:
		return append([]int(nil), v...), nil
	case []interface{}:
		result := make([]int, len(v))
		for i, item := range v {
			n, err := asInt(item)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			result[i] = n
		}
		return result, nil
	case string:
		var result []int
		for _, part := range strings.Split(v, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			n, err := asInt(part)
			if err != nil {
				return nil, err
			}
			result = append(result, n)
		}
		return result, nil
	default:
		n, err := asInt(value)
		if err != nil {
			return nil, err
		}
		return []int{n}, nil
	}
}
