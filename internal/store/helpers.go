package store

import (
	"encoding/json"
	"strings"
)

// placeholderList returns "?,?,?" for n placeholders.
func placeholderList(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

// stringsToArgs converts []string to []any for use with database/sql.
func stringsToArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

// marshalStrings converts []string to JSON text for storage.
func marshalStrings(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(values)
	return string(b)
}

// unmarshalStrings converts JSON text back to []string.
func unmarshalStrings(s string) []string {
	if s == "" || s == "null" {
		return nil
	}
	var values []string
	_ = json.Unmarshal([]byte(s), &values)
	return values
}
