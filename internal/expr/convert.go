package expr

import (
	"fmt"
	"math"

	"github.com/tidwall/gjson"
)

// AsBool interprets an expression result as a condition. nil, false, zero
// numbers and empty strings are false
func AsBool(v any) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	case string:
		return v != ""
	default:
		return true
	}
}

// AsInt interprets an expression result as an integer
func AsInt(v any) (int, error) {
	switch v := v.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%w: %v", ErrNotInteger, v)
		}
		return int(v), nil
	case string:
		r := gjson.Parse(v)
		if r.Type == gjson.Number && r.Num == math.Trunc(r.Num) {
			return int(r.Num), nil
		}
	}
	return 0, fmt.Errorf("%w: %v", ErrNotInteger, v)
}

// AsArray interprets a value as a collection. JSON array strings are
// parsed
func AsArray(v any) ([]any, error) {
	switch v := v.(type) {
	case []any:
		return v, nil
	case []string:
		res := make([]any, len(v))
		for i, s := range v {
			res[i] = s
		}
		return res, nil
	case string:
		r := gjson.Parse(v)
		if !r.IsArray() {
			break
		}
		items := r.Array()
		res := make([]any, len(items))
		for i, item := range items {
			res[i] = normalizeJSON(item.Value())
		}
		return res, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrNotArray, v)
}

func normalizeJSON(v any) any {
	switch v := v.(type) {
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
			return int(v)
		}
		return v
	case []any:
		for i, item := range v {
			v[i] = normalizeJSON(item)
		}
		return v
	case map[string]any:
		for k, item := range v {
			v[k] = normalizeJSON(item)
		}
		return v
	default:
		return v
	}
}
