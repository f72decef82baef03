package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blackjuly/ultra-mcp/relay/adaptor"
	relaymodel "github.com/blackjuly/ultra-mcp/relay/model"
)

func boolPtr(v bool) *bool { return &v }

func TestSearchGroundingDefaults(t *testing.T) {
	a := New(adaptor.Credentials{APIKey: "k"}, nil)

	tests := []struct {
		name      string
		model     string
		requested *bool
		want      bool
	}{
		{"default pro tier unset", "gemini-2.5-pro", nil, true},
		{"flash unset", "gemini-2.5-flash", nil, false},
		{"pro explicit off", "gemini-2.5-pro", boolPtr(false), false},
		{"flash explicit on", "gemini-2.5-flash", boolPtr(true), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, a.shouldGroundSearch(tt.model, tt.requested))
		})
	}
}

func TestBuildRequestShape(t *testing.T) {
	a := New(adaptor.Credentials{APIKey: "k"}, nil)

	temp := 0.4
	maxOut := 1000
	model, body, err := a.buildRequest(&relaymodel.GenerateRequest{
		Model: "gemini-2.5-pro", Prompt: "question", SystemPrompt: "context",
		Temperature: &temp, MaxOutputTokens: &maxOut,
	})
	require.NoError(t, err)
	require.Equal(t, "gemini-2.5-pro", model)
	require.Len(t, body.Contents, 1)
	require.Equal(t, "user", body.Contents[0].Role)
	require.NotNil(t, body.SystemInstruction)
	require.NotNil(t, body.GenerationConfig)
	require.Equal(t, 0.4, *body.GenerationConfig.Temperature)
	require.Len(t, body.Tools, 1, "grounding defaults on for the pro tier")
}

func TestNotConfigured(t *testing.T) {
	a := New(adaptor.Credentials{}, nil)
	_, err := a.Generate(context.Background(), &relaymodel.GenerateRequest{Prompt: "hi"})
	require.True(t, relaymodel.AsConfigurationMissing(err))
}

func TestGenerateParsesCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/models/gemini-2.5-flash:generateContent", r.URL.Path)
		require.Equal(t, "k", r.Header.Get("x-goog-api-key"))

		var body chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Empty(t, body.Tools)

		fmt.Fprint(w, `{
			"candidates": [{"content":{"role":"model","parts":[{"text":"Hi "},{"text":"there"}]},"finishReason":"STOP"}],
			"usageMetadata": {"promptTokenCount":4,"candidatesTokenCount":2,"totalTokenCount":6}
		}`)
	}))
	t.Cleanup(server.Close)

	a := New(adaptor.Credentials{APIKey: "k", BaseURL: server.URL}, server.Client())
	resp, err := a.Generate(context.Background(), &relaymodel.GenerateRequest{
		Model: "gemini-2.5-flash", Prompt: "hello",
	})
	require.NoError(t, err)
	require.Equal(t, "Hi there", resp.Text)
	require.Equal(t, "STOP", resp.FinishReason)
	require.Equal(t, 6, resp.Usage.TotalTokens)
}

func TestStreamGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/models/gemini-2.5-flash:streamGenerateContent", r.URL.Path)
		require.Equal(t, "sse", r.URL.Query().Get("alt"))
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		chunks := []string{
			`data: {"candidates":[{"content":{"parts":[{"text":"He"}]}}]}`,
			`data: {"candidates":[{"content":{"parts":[{"text":"llo"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":1,"candidatesTokenCount":2,"totalTokenCount":3}}`,
		}
		for _, c := range chunks {
			fmt.Fprintf(w, "%s\n\n", c)
			flusher.Flush()
		}
	}))
	t.Cleanup(server.Close)

	a := New(adaptor.Credentials{APIKey: "k", BaseURL: server.URL}, server.Client())
	ch, err := a.StreamGenerate(context.Background(), &relaymodel.GenerateRequest{
		Model: "gemini-2.5-flash", Prompt: "hello",
	})
	require.NoError(t, err)

	var text string
	var last relaymodel.StreamChunk
	for chunk := range ch {
		require.NoError(t, chunk.Err)
		text += chunk.Content
		last = chunk
	}
	require.Equal(t, "Hello", text)
	require.Equal(t, "STOP", last.FinishReason)
	require.NotNil(t, last.Usage)
	require.Equal(t, 3, last.Usage.TotalTokens)
}

func TestGenerateUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"quota exceeded"}}`, http.StatusForbidden)
	}))
	t.Cleanup(server.Close)

	a := New(adaptor.Credentials{APIKey: "k", BaseURL: server.URL}, server.Client())
	_, err := a.Generate(context.Background(), &relaymodel.GenerateRequest{
		Model: "gemini-2.5-flash", Prompt: "hello",
	})
	upstream, ok := relaymodel.AsUpstreamError(err)
	require.True(t, ok)
	require.Equal(t, http.StatusForbidden, upstream.StatusCode)
	require.Equal(t, "gemini-2.5-flash", upstream.Model)
}
