package config

import "strconv"

// Values reads free-form tuning knobs with typed accessors. Every accessor
// takes a default that is returned when the key is missing or carries a value
// of the wrong shape, so callers never branch on presence.
type Values interface {
	Number(key string, def float64) float64
	Bool(key string, def bool) bool
	String(key string, def string) string
	Strings(key string, def []string) []string
}

// NewValues wraps a raw key/value map, typically the synthesis.tuning section
// as unmarshaled by koanf. A nil map yields an accessor that always falls
// back to defaults.
func NewValues(m map[string]interface{}) Values {
	return values(m)
}

type values map[string]interface{}

func (v values) Number(key string, def float64) float64 {
	raw, ok := v[key]
	if !ok {
		return def
	}
	switch n := raw.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case uint64:
		return float64(n)
	case string:
		if parsed, err := strconv.ParseFloat(n, 64); err == nil {
			return parsed
		}
	}
	return def
}

func (v values) Bool(key string, def bool) bool {
	raw, ok := v[key]
	if !ok {
		return def
	}
	switch b := raw.(type) {
	case bool:
		return b
	case string:
		if parsed, err := strconv.ParseBool(b); err == nil {
			return parsed
		}
	}
	return def
}

func (v values) String(key string, def string) string {
	raw, ok := v[key]
	if !ok {
		return def
	}
	if s, ok := raw.(string); ok {
		return s
	}
	return def
}

func (v values) Strings(key string, def []string) []string {
	raw, ok := v[key]
	if !ok {
		return def
	}
	switch list := raw.(type) {
	case []string:
		return list
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return def
			}
			out = append(out, s)
		}
		return out
	}
	return def
}
