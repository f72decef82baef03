package openai_compatible

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	relaymodel "github.com/blackjuly/ultra-mcp/relay/model"
)

func newCall(serverURL string) *Call {
	return &Call{
		Provider: "openai",
		Model:    "gpt-4o",
		URL:      serverURL + "/v1/chat/completions",
		Headers:  map[string]string{"Authorization": "Bearer sk-test"},
		Client:   &http.Client{},
		Body: &ChatRequest{
			Model:    "gpt-4o",
			Messages: BuildMessages("", "hi"),
		},
	}
}

func sseServer(t *testing.T, lines ...string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, line := range lines {
			fmt.Fprintf(w, "%s\n\n", line)
			flusher.Flush()
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func collect(t *testing.T, ch <-chan relaymodel.StreamChunk) (text string, last relaymodel.StreamChunk) {
	t.Helper()
	for chunk := range ch {
		require.NoError(t, chunk.Err)
		text += chunk.Content
		last = chunk
	}
	return text, last
}

func TestStreamDecodesDeltas(t *testing.T) {
	server := sseServer(t,
		`data: {"choices":[{"delta":{"content":"He"}}]}`,
		`data: {"choices":[{"delta":{"content":"llo"}}]}`,
		`data: [DONE]`,
	)

	call := newCall(server.URL)
	ch, err := call.Stream(context.Background())
	require.NoError(t, err)

	text, _ := collect(t, ch)
	require.Equal(t, "Hello", text)
}

func TestStreamCapturesUsageAndFinishReason(t *testing.T) {
	server := sseServer(t,
		`data: {"choices":[{"delta":{"content":"ok"}}]}`,
		`data: {"choices":[{"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":7,"completion_tokens":2,"total_tokens":9}}`,
		`data: [DONE]`,
	)

	call := newCall(server.URL)
	ch, err := call.Stream(context.Background())
	require.NoError(t, err)

	text, last := collect(t, ch)
	require.Equal(t, "ok", text)
	require.Equal(t, "stop", last.FinishReason)
	require.NotNil(t, last.Usage)
	require.Equal(t, 9, last.Usage.TotalTokens)
}

func TestStreamSkipsMalformedFragments(t *testing.T) {
	server := sseServer(t,
		`data: {"choices":[{"delta":{"content":"a"}}]}`,
		`data: {not json at all`,
		`: comment line`,
		`event: ping`,
		`data: {"choices":[{"delta":{"content":"b"}}]}`,
		`data: [DONE]`,
	)

	call := newCall(server.URL)
	ch, err := call.Stream(context.Background())
	require.NoError(t, err)

	text, _ := collect(t, ch)
	require.Equal(t, "ab", text)
}

func TestStreamZeroContentChunksTerminatesCleanly(t *testing.T) {
	server := sseServer(t, `data: [DONE]`)

	call := newCall(server.URL)
	ch, err := call.Stream(context.Background())
	require.NoError(t, err)

	var chunks []relaymodel.StreamChunk
	for chunk := range ch {
		require.NoError(t, chunk.Err)
		chunks = append(chunks, chunk)
	}
	// Only the terminal metadata chunk.
	require.Len(t, chunks, 1)
	require.Empty(t, chunks[0].Content)
}

func TestStreamUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	}))
	t.Cleanup(server.Close)

	call := newCall(server.URL)
	_, err := call.Stream(context.Background())
	require.Error(t, err)

	upstream, ok := relaymodel.AsUpstreamError(err)
	require.True(t, ok)
	require.Equal(t, http.StatusTooManyRequests, upstream.StatusCode)
	require.Contains(t, upstream.Body, "rate limited")
}

func TestStreamCancellationAbortsBody(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n\n")
		flusher.Flush()
		<-release
	}))
	t.Cleanup(func() {
		close(release)
		server.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	call := newCall(server.URL)
	ch, err := call.Stream(ctx)
	require.NoError(t, err)

	first := <-ch
	require.Equal(t, "x", first.Content)
	cancel()

	var sawCancel bool
	deadline := time.After(5 * time.Second)
	for {
		select {
		case chunk, ok := <-ch:
			if !ok {
				require.True(t, sawCancel, "channel closed without a cancellation chunk")
				return
			}
			if chunk.Err != nil {
				require.True(t, relaymodel.IsCanceled(chunk.Err))
				sawCancel = true
			}
		case <-deadline:
			t.Fatal("stream did not terminate after cancellation")
		}
	}
}

func TestCompleteParsesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "chatcmpl-1",
			"model": "gpt-4o",
			"choices": [{"index":0,"message":{"role":"assistant","content":"Hello"},"finish_reason":"stop"}],
			"usage": {"prompt_tokens":5,"completion_tokens":1,"total_tokens":6}
		}`)
	}))
	t.Cleanup(server.Close)

	call := newCall(server.URL)
	resp, err := call.Complete(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Hello", resp.Text)
	require.Equal(t, "stop", resp.FinishReason)
	require.Equal(t, 6, resp.Usage.TotalTokens)
}

func TestCompleteTransportError(t *testing.T) {
	call := newCall("http://127.0.0.1:1")
	call.Client = &http.Client{Timeout: 500 * time.Millisecond}

	_, err := call.Complete(context.Background())
	require.Error(t, err)
	var transport *relaymodel.TransportError
	require.ErrorAs(t, err, &transport)
}

func TestFullRequestURL(t *testing.T) {
	tests := []struct {
		base, path, want string
	}{
		{"https://api.openai.com/v1", "/v1/chat/completions", "https://api.openai.com/v1/chat/completions"},
		{"https://api.openai.com/v1/", "/v1/chat/completions", "https://api.openai.com/v1/chat/completions"},
		{"http://localhost:11434", "/v1/chat/completions", "http://localhost:11434/v1/chat/completions"},
		{"https://host/custom", "/v1/embeddings", "https://host/custom/v1/embeddings"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, FullRequestURL(tt.base, tt.path), "%s + %s", tt.base, tt.path)
	}
}

func TestBuildMessages(t *testing.T) {
	msgs := BuildMessages("sys", "hi")
	require.Len(t, msgs, 2)
	require.Equal(t, "system", msgs[0].Role)
	require.Equal(t, "user", msgs[1].Role)

	msgs = BuildMessages("", "hi")
	require.Len(t, msgs, 1)
	require.True(t, strings.EqualFold("user", msgs[0].Role))
}
