package suggest

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseJSON decodes the first '{' .. last '}' span of a model response,
// tolerating prose or code fences around the object.
func ParseJSON[T any](response string) (T, error) {
	var zero T

	start := strings.IndexByte(response, '{')
	if start == -1 {
		return zero, fmt.Errorf("no JSON object found in response (missing '{')")
	}
	end := strings.LastIndexByte(response, '}')
	if end < start {
		return zero, fmt.Errorf("no JSON object found in response (missing '}')")
	}

	var result T
	if err := json.Unmarshal([]byte(response[start:end+1]), &result); err != nil {
		return zero, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return result, nil
}
