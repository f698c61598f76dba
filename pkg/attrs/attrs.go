// Package attrs reads values back out of slog-style key/value slices.
package attrs

// Extract returns the value stored under key in a [k1, v1, k2, v2, ...]
// slice when it has type T.
func Extract[T any](attrs []any, key string) (T, bool) {
	var zero T
	for i := 0; i+1 < len(attrs); i += 2 {
		k, ok := attrs[i].(string)
		if !ok || k != key {
			continue
		}
		if v, ok := attrs[i+1].(T); ok {
			return v, true
		}
		return zero, false
	}
	return zero, false
}

// ExtractString is Extract for strings, returning "" when absent.
func ExtractString(attrs []any, key string) string {
	v, _ := Extract[string](attrs, key)
	return v
}

// ToMap flattens key/value pairs with string keys into a map of their
// printable values. Non-string keys are skipped.
func ToMap(attrs []any) map[string]any {
	out := make(map[string]any, len(attrs)/2)
	for i := 0; i+1 < len(attrs); i += 2 {
		if k, ok := attrs[i].(string); ok {
			out[k] = attrs[i+1]
		}
	}
	return out
}
