package action

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// IntArg reads an integer argument. Missing keys yield def.
// Numbers decoded from JSON arrive as float64 and must be integral.
func IntArg(args map[string]any, key string, def int64) (int64, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return def, nil
	}
	return toInt(key, v)
}

// NestedIntArg reads an integer at a path of nested mappings, e.g. "close", "id".
func NestedIntArg(args map[string]any, def int64, path ...string) (int64, error) {
	cur := args
	for i, key := range path {
		v, ok := cur[key]
		if !ok || v == nil {
			return def, nil
		}
		if i == len(path)-1 {
			return toInt(strings.Join(path, "."), v)
		}
		next, ok := v.(map[string]any)
		if !ok {
			return 0, fmt.Errorf("%s must be an object", strings.Join(path[:i+1], "."))
		}
		cur = next
	}
	return def, nil
}

func toInt(key string, v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
			return 0, fmt.Errorf("%s must be an integer, got %v", key, n)
		}
		return int64(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("%s must be an integer: %w", key, err)
		}
		return i, nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be an integer, got %q", key, n)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("%s must be an integer, got %T", key, v)
	}
}

// StringArg reads a string argument. Non-string scalars are formatted.
func StringArg(args map[string]any, key, def string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Expand substitutes {name} placeholders.
func Expand(tmpl string, vars map[string]string) string {
	if len(vars) == 0 || !strings.Contains(tmpl, "{") {
		return tmpl
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// CloneData copies a mapping one level deep.
func CloneData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
