package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/Veraticus/fundwatch/internal/common"
)

// extractJSON returns the first balanced {...} substring of text. Braces
// inside string literals are ignored.
func extractJSON(text string) (string, error) {
	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end := matchBrace(text, start); end > 0 {
			return text[start : end+1], nil
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", fmt.Errorf("%w: no JSON object in reply", common.ErrMalformedReply)
}

// matchBrace returns the index of the brace closing the one at start, or -1.
func matchBrace(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
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
				return i
			}
		}
	}
	return -1
}

// decodeReply extracts and decodes the JSON object in a model reply.
func decodeReply(text string, v any) error {
	raw, err := extractJSON(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("%w: %w", common.ErrMalformedReply, err)
	}
	return nil
}

// flexString accepts a JSON string, number, bool or null.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*s = ""
	case len(data) > 0 && data[0] == '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(strings.TrimSpace(v))
	default:
		*s = flexString(data)
	}
	return nil
}

// flexFloat accepts a JSON number or a numeric string such as "2,500" or "$750".
// Anything else decodes to nil.
type flexFloat struct {
	v *float64
}

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	f.v = nil
	var s flexString
	if err := s.UnmarshalJSON(data); err != nil {
		return nil //nolint:nilerr // unparseable numbers are treated as absent
	}
	cleaned := strings.NewReplacer(",", "", "$", "", " ", "").Replace(string(s))
	if cleaned == "" {
		return nil
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil //nolint:nilerr // unparseable numbers are treated as absent
	}
	f.v = &v
	return nil
}

// flexBool accepts a JSON bool or the strings "true"/"yes".
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(data); err != nil {
		return err
	}
	switch strings.ToLower(string(s)) {
	case "true", "yes", "1":
		*b = true
	default:
		*b = false
	}
	return nil
}
