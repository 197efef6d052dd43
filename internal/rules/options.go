package rules

import (
	"fmt"
	"strconv"
)

// Rule configuration blocks arrive as decoded YAML (map[string]any with
// []any lists and int/float64 numbers). The helpers below read them with a
// fallback for absent keys.

// StringList returns cfg[key] as a string slice, or def when absent.
func StringList(cfg map[string]any, key string, def []string) ([]string, error) {
	v, ok := cfg[key]
	if !ok || v == nil {
		return def, nil
	}
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...), nil
	case []any:
		out := make([]string, 0, len(t))
		for i, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d]: expected string, got %T", key, i, item)
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		return []string{t}, nil
	}
	return nil, fmt.Errorf("%s: expected list of strings, got %T", key, v)
}

// Bool returns cfg[key] as a bool, or def when absent.
func Bool(cfg map[string]any, key string, def bool) (bool, error) {
	v, ok := cfg[key]
	if !ok || v == nil {
		return def, nil
	}
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		b, err := strconv.ParseBool(t)
		if err != nil {
			return false, fmt.Errorf("%s: %w", key, err)
		}
		return b, nil
	}
	return false, fmt.Errorf("%s: expected bool, got %T", key, v)
}

// Int returns cfg[key] as an int, or def when absent.
func Int(cfg map[string]any, key string, def int) (int, error) {
	v, ok := cfg[key]
	if !ok || v == nil {
		return def, nil
	}
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case float64:
		return int(t), nil
	case string:
		n, err := strconv.Atoi(t)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", key, err)
		}
		return n, nil
	}
	return 0, fmt.Errorf("%s: expected integer, got %T", key, v)
}

// String returns cfg[key] as a string, or def when absent.
func String(cfg map[string]any, key, def string) (string, error) {
	v, ok := cfg[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s: expected string, got %T", key, v)
	}
	return s, nil
}
