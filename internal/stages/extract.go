package stages

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// extractJSON parses a model reply as a JSON object. When the reply is not
// pure JSON, the outermost balanced {...} block is tried once. lenient
// reports whether the second pass was needed.
func extractJSON(text string) (data map[string]any, lenient bool, err error) {
	text = strings.TrimSpace(text)
	if err := json.Unmarshal([]byte(text), &data); err == nil && data != nil {
		return data, false, nil
	}

	block, ok := balancedObject(text)
	if !ok {
		return nil, true, fmt.Errorf("%w: no JSON object in %d bytes", ErrUnparsableResponse, len(text))
	}
	data = nil
	if err := json.Unmarshal([]byte(block), &data); err != nil || data == nil {
		return nil, true, fmt.Errorf("%w: %v", ErrUnparsableResponse, err)
	}
	return data, true, nil
}

// balancedObject returns the first {...} block whose braces balance,
// ignoring braces inside string literals.
func balancedObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
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
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// overlay copies answers over data. Keys with nil values are skipped.
func overlay(data, answers map[string]any) map[string]any {
	out := make(map[string]any, len(data)+len(answers))
	for k, v := range data {
		out[k] = v
	}
	for k, v := range answers {
		if v != nil {
			out[k] = v
		}
	}
	return out
}

func looseString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		return s, s != ""
	case fmt.Stringer:
		s := strings.TrimSpace(t.String())
		return s, s != ""
	case float64, int, int64, bool:
		return fmt.Sprint(t), true
	}
	return "", false
}

func looseInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return int(math.Round(t)), true
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		return int(math.Round(f)), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return int(math.Round(f)), true
	}
	return 0, false
}

func looseBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case float64:
		return t != 0, true
	case int:
		return t != 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "y", "1", "ja":
			return true, true
		case "false", "no", "n", "0", "nein":
			return false, true
		}
	}
	return false, false
}

// looseStrings accepts a list or a single comma separated string. The result
// is never nil.
func looseStrings(v any) []string {
	out := []string{}
	switch t := v.(type) {
	case []string:
		for _, s := range t {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	case []any:
		for _, item := range t {
			if s, ok := looseString(item); ok {
				out = append(out, s)
			}
		}
	case string:
		for _, s := range strings.Split(t, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// normalizeEnum lowercases v and folds spaces and dashes to underscores.
func normalizeEnum(v any) string {
	s, _ := looseString(v)
	s = strings.ToLower(s)
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}
