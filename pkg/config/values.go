// Package config reads typed values out of semi-structured trigger and action configs.
package config

import (
	"encoding/json"
	"fmt"
	"math"
)

// Int reads an integral config value. Numbers decoded from JSON arrive as float64.
// ok is false when the key is absent or null.
func Int(config map[string]any, key string) (value int64, ok bool, err error) {
	raw, present := config[key]
	if !present || raw == nil {
		return 0, false, nil
	}

	switch n := raw.(type) {
	case int:
		return int64(n), true, nil
	case int32:
		return int64(n), true, nil
	case int64:
		return n, true, nil
	case float64:
		if n != math.Trunc(n) {
			return 0, false, fmt.Errorf("%s must be an integer, got %v", key, n)
		}

		return int64(n), true, nil
	case json.Number:
		v, err := n.Int64()
		if err != nil {
			return 0, false, fmt.Errorf("%s must be an integer: %w", key, err)
		}

		return v, true, nil
	default:
		return 0, false, fmt.Errorf("%s must be an integer, got %T", key, raw)
	}
}

// String reads an optional string config value.
func String(config map[string]any, key string) (string, error) {
	raw, present := config[key]
	if !present || raw == nil {
		return "", nil
	}

	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string, got %T", key, raw)
	}

	return s, nil
}

// Strings reads an optional list of strings.
func Strings(config map[string]any, key string) ([]string, error) {
	raw, present := config[key]
	if !present || raw == nil {
		return nil, nil
	}

	switch list := raw.(type) {
	case []string:
		return list, nil
	case []any:
		values := make([]string, 0, len(list))

		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s must contain only strings, got %T", key, item)
			}

			values = append(values, s)
		}

		return values, nil
	default:
		return nil, fmt.Errorf("%s must be a list of strings, got %T", key, raw)
	}
}
