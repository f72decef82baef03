package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/blackjuly/ultra-mcp/config"
	"github.com/blackjuly/ultra-mcp/memory"
	"github.com/blackjuly/ultra-mcp/model"
	"github.com/blackjuly/ultra-mcp/relay"
	"github.com/blackjuly/ultra-mcp/tracker"
)

func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"OPENAI_API_KEY", "OPENAI_BASE_URL", "GOOGLE_API_KEY", "GOOGLE_BASE_URL",
		"AZURE_API_KEY", "AZURE_BASE_URL", "AZURE_ENDPOINT", "XAI_API_KEY",
		"XAI_BASE_URL", "DASHSCOPE_API_KEY", "QWEN3_CODER_API_KEY", "DEEPSEEK_R1_API_KEY",
	} {
		t.Setenv(name, "")
	}
}

// echoServer answers every chat completion with a canned reply and reports
// the prompt it saw through lastPrompt.
func echoServer(t *testing.T, reply string, lastPrompt *string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if lastPrompt != nil && len(req.Messages) > 0 {
			*lastPrompt = req.Messages[len(req.Messages)-1].Content
		}

		fmt.Fprintf(w, `{
			"choices": [{"message": {"role": "assistant", "content": %q}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 5, "completion_tokens": 3, "total_tokens": 8}
		}`, reply)
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestServer(t *testing.T, upstream *httptest.Server) (*Server, *gorm.DB) {
	t.Helper()
	clearProviderEnv(t)

	cfgPath := filepath.Join(t.TempDir(), "config.json")
	raw, err := json.Marshal(map[string]any{
		"openaiCompatible": map[string]any{
			"baseURL": upstream.URL,
			"subtype": "ollama",
			"models":  []string{"llama3.2"},
		},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(cfgPath, raw, 0o600))
	store, err := config.Load(cfgPath)
	require.NoError(t, err)

	db, err := model.OpenDB(filepath.Join(t.TempDir(), "mcptools.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = model.CloseDB(db) })

	engine := relay.NewEngine(relay.NewRegistry(store, nil), tracker.New(db, nil))
	return NewServer(engine, memory.New(db), db), db
}

func TestCatalogCoversRequiredTools(t *testing.T) {
	required := []string{
		"deep-reasoning", "investigate", "research", "analyze-code",
		"review-code", "debug-issue", "plan-feature", "generate-docs",
		"planner", "precommit", "secaudit", "tracer",
	}
	byName := map[string]toolDef{}
	for _, def := range promptTools {
		byName[def.Name] = def
	}
	for _, name := range required {
		def, ok := byName[name]
		require.True(t, ok, "missing tool %s", name)
		require.NotEmpty(t, def.Description)
		require.NotEmpty(t, def.SystemPrompt)
	}
}

func TestRunToolGeneratesAndTracks(t *testing.T) {
	var seen string
	server, db := newTestServer(t, echoServer(t, "the answer", &seen))

	text, err := server.runTool(context.Background(), promptTools[0], generateArgs{
		Prompt: "why is the sky blue",
	})
	require.NoError(t, err)
	require.Equal(t, "the answer", text)
	require.Equal(t, "why is the sky blue", seen)

	records, err := model.GetRecentRequests(db, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "deep-reasoning", records[0].ToolName)
	require.Equal(t, model.RequestStatusSuccess, records[0].Status)
}

func TestSessionContinuity(t *testing.T) {
	var seen string
	server, _ := newTestServer(t, echoServer(t, "blue because scattering", &seen))
	ctx := context.Background()

	session, err := server.memory.GetOrCreateSession(ctx, "", "")
	require.NoError(t, err)

	_, err = server.runTool(ctx, promptTools[0], generateArgs{
		Prompt:    "why is the sky blue",
		SessionID: session.ID,
	})
	require.NoError(t, err)

	// Second turn carries the transcript of the first.
	_, err = server.runTool(ctx, promptTools[0], generateArgs{
		Prompt:    "and at sunset?",
		SessionID: session.ID,
	})
	require.NoError(t, err)
	require.Contains(t, seen, "Previous conversation:")
	require.Contains(t, seen, "user: why is the sky blue")
	require.Contains(t, seen, "assistant: blue because scattering")
	require.Contains(t, seen, "and at sunset?")

	view, err := server.memory.GetConversationContext(ctx, session.ID, memory.ContextOptions{})
	require.NoError(t, err)
	require.Len(t, view.Messages, 4, "two user and two assistant turns")
	// The stored user message is the raw prompt, not the transcript.
	require.Equal(t, "and at sunset?", view.Messages[2].Content)
}

func TestChallengePrefix(t *testing.T) {
	require.Contains(t, challengePrefix, "CRITICAL REASSESSMENT")
}
