// Package adaptor defines the uniform contract every upstream provider
// implementation satisfies, plus the credential bundle the registry hands to
// each one.
package adaptor

import (
	"context"
	"net/http"

	"github.com/blackjuly/ultra-mcp/relay/channeltype"
	relaymodel "github.com/blackjuly/ultra-mcp/relay/model"
)

// Adaptor translates the uniform internal request into one upstream's wire
// format. Implementations do not retry and do not track; both belong to the
// engine wrapping them.
type Adaptor interface {
	// Name returns the provider kind this adaptor serves.
	Name() channeltype.Kind

	// IsConfigured reports whether required credentials are present.
	IsConfigured() bool

	// DefaultModel returns the model used when neither the request nor the
	// credential names one.
	DefaultModel() string

	// ListModels returns the static enumerated model set; never a remote
	// call.
	ListModels() []string

	// Generate performs one blocking completion call.
	Generate(ctx context.Context, req *relaymodel.GenerateRequest) (*relaymodel.GenerateResponse, error)

	// StreamGenerate opens a streaming completion. Chunks arrive in
	// upstream order; the channel closes after the terminal chunk. Closing
	// the context aborts the upstream request and the body reader.
	StreamGenerate(ctx context.Context, req *relaymodel.GenerateRequest) (<-chan relaymodel.StreamChunk, error)
}

// Credentials is the provider-independent credential bundle resolved from the
// configuration store.
type Credentials struct {
	APIKey         string
	BaseURL        string
	PreferredModel string

	// ResourceName is the Azure resource the endpoint URL derives from.
	ResourceName string

	// Subtype refines compatible-mode providers (ollama, openrouter) and
	// Bailian variants (bailian, qwen3-coder, deepseek-r1).
	Subtype string

	// ExtraAPIKeys carries per-subtype keys (Bailian).
	ExtraAPIKeys map[string]string

	// Models enumerates the exposed model list for user-supplied endpoints.
	Models []string
}

// ResolveModel picks the effective model: request, then credential preference,
// then the adaptor's hardcoded default.
func ResolveModel(requested, preferred, fallback string) string {
	if requested != "" {
		return requested
	}
	if preferred != "" {
		return preferred
	}
	return fallback
}

// HTTPClient returns client when non-nil, else the shared default. Keeps
// adaptor constructors terse.
func HTTPClient(client *http.Client, fallback *http.Client) *http.Client {
	if client != nil {
		return client
	}
	return fallback
}
