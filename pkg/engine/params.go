package engine

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ExtractParams pulls the first JSON object out of a model completion and
// flattens it into string parameters. Models wrap JSON in prose and code
// fences; everything around the first balanced object is ignored.
func ExtractParams(completion string) (map[string]string, error) {
	raw, err := firstJSONObject(completion)
	if err != nil {
		return nil, err
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("decode parameter object: %w", err)
	}

	params := make(map[string]string, len(decoded))
	for k, v := range decoded {
		params[k] = stringify(v)
	}
	return params, nil
}

// firstJSONObject returns the first balanced {...} in s, honoring strings
// and escapes.
func firstJSONObject(s string) (string, error) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", fmt.Errorf("completion contains no JSON object")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("completion contains an unterminated JSON object")
}

// stringify renders a decoded JSON value as a parameter string.
func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return ""
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}
