package safety

import (
	"encoding/json"
	"reflect"
	"strings"
)

// redactedPlaceholder replaces the value of any matched secret-bearing key.
const redactedPlaceholder = "***"

// secretKeyNeedles are matched case-insensitively as substrings of a map
// key or struct field name, mirroring the closed set of secret-bearing
// field names configuration objects use (api keys, bearer tokens, cookies).
var secretKeyNeedles = []string{
	"api_key",
	"apikey",
	"authorization",
	"token",
	"cookie",
	"secret",
}

// Redact deep-copies obj (maps, slices, and JSON-like structures built from
// map[string]any/[]any/scalars) and replaces the value of any key whose name
// matches a secret needle with a fixed placeholder. Every configuration
// object and every log field must pass through Redact before it is logged
// or persisted. Structs, typed maps, slices and pointers to them are
// converted to that generic form (see redactStructural) and redacted there;
// scalars are returned unchanged.
func Redact(obj any) any {
	switch v := obj.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			if isSecretKey(key) {
				out[key] = redactedPlaceholder
				continue
			}
			out[key] = Redact(val)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = Redact(val)
		}
		return out
	default:
		return redactStructural(v)
	}
}

// redactStructural handles values that are not already map[string]any or
// []any: structs, typed maps, and slices are round-tripped through JSON
// into the generic form and redacted there, so a configuration struct
// logged whole still has its api_key/token/cookie fields masked. Scalars
// pass through untouched.
func redactStructural(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return v
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Struct, reflect.Map, reflect.Slice, reflect.Array:
	default:
		return v
	}

	data, err := json.Marshal(v)
	if err != nil {
		return redactedPlaceholder
	}
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return redactedPlaceholder
	}
	return Redact(decoded)
}

// RedactFields redacts a flat key/value set: a value under a secret key is
// replaced by the placeholder, every other value passes through Redact.
func RedactFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if isSecretKey(k) {
			out[k] = redactedPlaceholder
			continue
		}
		out[k] = Redact(v)
	}
	return out
}

func isSecretKey(key string) bool {
	return IsSecretKey(key)
}

// IsSecretKey reports whether key matches one of the secret-bearing field
// name needles (api_key, authorization, token, cookie, secret),
// case-insensitively. Exposed so logging wrappers can redact scalar
// attributes by name without re-wrapping them in a map.
func IsSecretKey(key string) bool {
	lower := strings.ToLower(key)
	for _, needle := range secretKeyNeedles {
		if strings.Contains(lower, needle) {
			return true
		}
	}
	return false
}
