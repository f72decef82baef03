package common

import (
	"encoding/json"
	"strings"
)

// SnapshotMaxLen caps the size of request snapshots persisted in tracking
// records. Prompts are kept, but unbounded payloads are truncated.
const SnapshotMaxLen = 64 * 1024

// TruncationSuffix marks truncated snapshot values.
const TruncationSuffix = "...[truncated]"

// secretFieldNames are JSON keys whose values must never reach the request
// log, regardless of nesting depth.
var secretFieldNames = map[string]bool{
	"api_key":       true,
	"apikey":        true,
	"authorization": true,
	"x-api-key":     true,
	"api-key":       true,
}

// SanitizeRequestSnapshot renders a request payload into a JSON string safe to
// persist: secret fields are redacted and the overall size is bounded.
// The input must be JSON-marshalable; on marshal failure an empty object is
// returned so tracking never blocks a live request.
func SanitizeRequestSnapshot(payload any) string {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "{}"
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "{}"
	}

	sanitized, err := json.Marshal(redactSecrets(decoded))
	if err != nil {
		return "{}"
	}
	return TruncateString(string(sanitized), SnapshotMaxLen)
}

func redactSecrets(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, inner := range v {
			if secretFieldNames[strings.ToLower(key)] {
				out[key] = "[redacted]"
				continue
			}
			out[key] = redactSecrets(inner)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, inner := range v {
			out[i] = redactSecrets(inner)
		}
		return out
	default:
		return v
	}
}

// TruncateString truncates a string to limit bytes, appending a marker when
// anything was cut.
func TruncateString(value string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(value) <= limit {
		return value
	}
	if limit <= len(TruncationSuffix) {
		return TruncationSuffix[:limit]
	}
	return value[:limit-len(TruncationSuffix)] + TruncationSuffix
}

// ExcerptBody returns a short single-line excerpt of an upstream response body
// for error messages.
func ExcerptBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	s = strings.ReplaceAll(s, "\n", " ")
	return TruncateString(s, limit)
}
