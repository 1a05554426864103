package api

import "maps"

// Args holds named values such as process variables, trigger payloads, and
// the local data bound to a flow-node instance
type Args map[string]any

// Set creates a new Args with the specified name-value pair added
func (a Args) Set(name string, value any) Args {
	if a == nil {
		return Args{name: value}
	}
	res := maps.Clone(a)
	res[name] = value
	return res
}

// Merge creates a new Args containing the receiver overlaid with other
func (a Args) Merge(other Args) Args {
	res := maps.Clone(a)
	if res == nil {
		res = Args{}
	}
	maps.Copy(res, other)
	return res
}

// GetString retrieves a string value from args, returning defaultValue if not
// found or wrong type
func (a Args) GetString(name string, defaultValue string) string {
	if s, ok := a[name].(string); ok {
		return s
	}
	return defaultValue
}

// GetInt retrieves an integer value from args, returning defaultValue if not
// found or wrong type. Supports both int and float64 (JSON numbers)
func (a Args) GetInt(name string, defaultValue int) int {
	switch v := a[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return defaultValue
	}
}
