package common

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeRequestSnapshotRedactsSecrets(t *testing.T) {
	payload := map[string]any{
		"model":  "gpt-4o",
		"prompt": "hello world",
		"api_key": "sk-secret-value-123456",
		"nested": map[string]any{
			"Authorization": "Bearer sk-deep-secret",
			"temperature":   0.5,
		},
	}

	out := SanitizeRequestSnapshot(payload)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Equal(t, "[redacted]", decoded["api_key"])
	require.Equal(t, "hello world", decoded["prompt"])
	nested := decoded["nested"].(map[string]any)
	require.Equal(t, "[redacted]", nested["Authorization"])
	require.NotContains(t, out, "sk-secret-value")
	require.NotContains(t, out, "sk-deep-secret")
}

func TestSanitizeRequestSnapshotUnmarshalable(t *testing.T) {
	require.Equal(t, "{}", SanitizeRequestSnapshot(func() {}))
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		name  string
		value string
		limit int
		want  string
	}{
		{"zero limit", "abc", 0, ""},
		{"fits", "abc", 10, "abc"},
		{"cut", strings.Repeat("a", 100), 20, strings.Repeat("a", 20-len(TruncationSuffix)) + TruncationSuffix},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, TruncateString(tt.value, tt.limit))
		})
	}
}

func TestExcerptBody(t *testing.T) {
	body := []byte("  {\"error\":\n\"bad request\"}  ")
	require.Equal(t, `{"error": "bad request"}`, ExcerptBody(body))

	long := []byte(strings.Repeat("x", 2048))
	excerpt := ExcerptBody(long)
	require.LessOrEqual(t, len(excerpt), 512)
	require.True(t, strings.HasSuffix(excerpt, TruncationSuffix))
}
