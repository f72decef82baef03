package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blackjuly/ultra-mcp/config"
	"github.com/blackjuly/ultra-mcp/memory"
	"github.com/blackjuly/ultra-mcp/model"
	"github.com/blackjuly/ultra-mcp/pricing"
	"github.com/blackjuly/ultra-mcp/relay"
	"github.com/blackjuly/ultra-mcp/tracker"
)

func newTestRouter(t *testing.T) (*Server, *tracker.Tracker) {
	t.Helper()
	for _, name := range []string{
		"OPENAI_API_KEY", "OPENAI_BASE_URL", "GOOGLE_API_KEY", "GOOGLE_BASE_URL",
		"AZURE_API_KEY", "AZURE_BASE_URL", "AZURE_ENDPOINT", "XAI_API_KEY",
		"XAI_BASE_URL", "DASHSCOPE_API_KEY", "QWEN3_CODER_API_KEY", "DEEPSEEK_R1_API_KEY",
	} {
		t.Setenv(name, "")
	}

	db, err := model.OpenDB(filepath.Join(t.TempDir(), "dashboard.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = model.CloseDB(db) })

	cfgPath := filepath.Join(t.TempDir(), "config.json")
	raw, err := json.Marshal(map[string]any{
		"grok": map[string]any{"apiKey": "xai-key"},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(cfgPath, raw, 0o600))
	store, err := config.Load(cfgPath)
	require.NoError(t, err)

	pricingSvc := pricing.NewService(filepath.Join(t.TempDir(), "pricing-cache.json"))
	server := New(db, memory.New(db), pricingSvc, relay.NewRegistry(store, nil), nil)
	return server, tracker.New(db, nil)
}

func get(t *testing.T, srv *Server, path string) (int, map[string]any) {
	t.Helper()
	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	srv.Router(false).ServeHTTP(recorder, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	return recorder.Code, body
}

func TestHealth(t *testing.T) {
	srv, _ := newTestRouter(t)
	code, body := get(t, srv, "/health")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ok", body["status"])
}

func TestStatsAndRequests(t *testing.T) {
	srv, trk := newTestRouter(t)
	ctx := context.Background()

	id, err := trk.Start(ctx, tracker.StartOptions{Provider: "grok", Model: "grok-4"})
	require.NoError(t, err)
	require.NoError(t, trk.Complete(ctx, id, tracker.Completion{ResponseText: "hi"}))

	code, body := get(t, srv, "/api/stats")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, true, body["success"])
	data := body["data"].(map[string]any)
	require.EqualValues(t, 1, data["totalRequests"])

	code, body = get(t, srv, "/api/requests?limit=10")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, body["data"].([]any), 1)

	code, body = get(t, srv, "/api/requests/"+id)
	require.Equal(t, http.StatusOK, code)
	record := body["data"].(map[string]any)
	require.Equal(t, "success", record["status"])

	code, _ = get(t, srv, "/api/requests/nope")
	require.Equal(t, http.StatusNotFound, code)
}

func TestProvidersEndpoint(t *testing.T) {
	srv, _ := newTestRouter(t)

	code, body := get(t, srv, "/api/providers")
	require.Equal(t, http.StatusOK, code)

	configured := map[string]bool{}
	for _, raw := range body["data"].([]any) {
		entry := raw.(map[string]any)
		configured[entry["provider"].(string)] = entry["configured"].(bool)
	}
	require.True(t, configured["grok"])
	require.False(t, configured["openai"])
}

func TestSessionsEndpoint(t *testing.T) {
	srv, _ := newTestRouter(t)

	_, err := srv.memory.GetOrCreateSession(context.Background(), "", "demo")
	require.NoError(t, err)

	code, body := get(t, srv, "/api/sessions")
	require.Equal(t, http.StatusOK, code)
	page := body["data"].(map[string]any)
	require.EqualValues(t, 1, page["totalCount"])
}
