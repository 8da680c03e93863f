package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// JSONPath extracts a value from decoded JSON using a simplified path
// expression such as "$.data.items[0].sku" or "address.city".
func JSONPath(data any, path string) (any, error) {
	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")

	if path == "" {
		return nil, fmt.Errorf("empty JSONPath")
	}

	current := data
	for _, part := range strings.Split(path, ".") {
		field, indexes, err := splitIndexes(part)
		if err != nil {
			return nil, err
		}

		if field != "" {
			obj, ok := current.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("field not found: %s", field)
			}
			current, ok = obj[field]
			if !ok {
				return nil, fmt.Errorf("field not found: %s", field)
			}
		}

		for _, index := range indexes {
			arr, ok := current.([]any)
			if !ok || index < 0 || index >= len(arr) {
				return nil, fmt.Errorf("array index out of bounds: %d", index)
			}
			current = arr[index]
		}
	}

	return current, nil
}

// splitIndexes parses "items[0][1]" into "items" and [0 1].
func splitIndexes(part string) (string, []int, error) {
	open := strings.Index(part, "[")
	if open < 0 {
		return part, nil, nil
	}

	field := part[:open]
	var indexes []int
	rest := part[open:]
	for rest != "" {
		if rest[0] != '[' {
			return "", nil, fmt.Errorf("invalid path segment: %s", part)
		}
		end := strings.Index(rest, "]")
		if end < 0 {
			return "", nil, fmt.Errorf("unclosed bracket in path segment: %s", part)
		}
		index, err := strconv.Atoi(rest[1:end])
		if err != nil {
			return "", nil, fmt.Errorf("invalid array index: %s", rest[1:end])
		}
		indexes = append(indexes, index)
		rest = rest[end+1:]
	}
	return field, indexes, nil
}

// errorFields are tried in order when extracting a server error message.
var errorFields = []string{
	"message",
	"error",
	"msg",
	"error.message",
	"error.description",
}

// ErrorMessage extracts the server's error message from a response body.
// If no known field holds a string, the raw body is returned.
func ErrorMessage(body []byte) string {
	var data any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&data); err != nil {
		return strings.TrimSpace(string(body))
	}

	for _, field := range errorFields {
		value, err := JSONPath(data, field)
		if err != nil {
			continue
		}
		if s, ok := value.(string); ok && s != "" {
			return s
		}
	}

	return strings.TrimSpace(string(body))
}
