package utils

import (
	"encoding/json"
	"strings"
)

// StripCodeFence removes a markdown code fence wrapping model output, e.g.
// ```json ... ``` or a bare ``` pair. Returns the input trimmed if no fence
// is present.
func StripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop an optional language tag on the fence line.
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		first := strings.TrimSpace(s[:idx])
		if first == "" || isFenceTag(first) {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func isFenceTag(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// DecodeObjectArray parses model output expected to be a JSON array of
// objects. Decoding is layered: strip any code fence, try an array parse,
// fall back to treating a single object as a one-element array, and fall
// back to an empty slice on anything else. It never returns an error; a
// malformed response is an empty result, not a failure.
func DecodeObjectArray(raw string) []json.RawMessage {
	s := StripCodeFence(raw)
	if s == "" {
		return []json.RawMessage{}
	}

	var arr []json.RawMessage
	if err := json.Unmarshal([]byte(s), &arr); err == nil {
		out := make([]json.RawMessage, 0, len(arr))
		for _, el := range arr {
			if isJSONObject(el) {
				out = append(out, el)
			}
		}
		return out
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &obj); err == nil {
		return []json.RawMessage{json.RawMessage(s)}
	}

	return []json.RawMessage{}
}

// DecodeObject parses model output expected to be a single JSON object,
// with the same fence-stripping tolerance. Returns false when no object
// could be recovered.
func DecodeObject(raw string) (json.RawMessage, bool) {
	elems := DecodeObjectArray(raw)
	if len(elems) == 0 {
		return nil, false
	}
	return elems[0], true
}

func isJSONObject(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return strings.HasPrefix(s, "{")
}
