// Package compatible adapts the uniform generation contract to any
// user-supplied OpenAI-compatible endpoint. The subtype changes only the
// authentication requirement: Ollama runs keyless behind a placeholder,
// OpenRouter needs a real key.
package compatible

import (
	"context"
	"net/http"

	"github.com/blackjuly/ultra-mcp/common/client"
	"github.com/blackjuly/ultra-mcp/relay/adaptor"
	"github.com/blackjuly/ultra-mcp/relay/adaptor/openai_compatible"
	"github.com/blackjuly/ultra-mcp/relay/channeltype"
	relaymodel "github.com/blackjuly/ultra-mcp/relay/model"
)

// placeholderKey is sent to endpoints that require an Authorization header
// syntactically but ignore its value.
const placeholderKey = "ollama"

type Adaptor struct {
	creds adaptor.Credentials
	http  *http.Client
}

func New(creds adaptor.Credentials, httpClient *http.Client) *Adaptor {
	if httpClient == nil {
		httpClient = client.HTTPClient
	}
	return &Adaptor{creds: creds, http: httpClient}
}

func (a *Adaptor) Name() channeltype.Kind { return channeltype.Compatible }

// IsConfigured requires a base URL always, and a real key unless the subtype
// is Ollama.
func (a *Adaptor) IsConfigured() bool {
	if a.creds.BaseURL == "" {
		return false
	}
	if a.creds.Subtype == channeltype.SubtypeOllama {
		return true
	}
	return a.creds.APIKey != ""
}

func (a *Adaptor) DefaultModel() string {
	if a.creds.PreferredModel != "" {
		return a.creds.PreferredModel
	}
	if len(a.creds.Models) > 0 {
		return a.creds.Models[0]
	}
	return channeltype.DefaultModel(channeltype.Compatible)
}

// ListModels returns the user-declared model list; these endpoints have no
// universal builtin set.
func (a *Adaptor) ListModels() []string {
	out := make([]string, len(a.creds.Models))
	copy(out, a.creds.Models)
	return out
}

func (a *Adaptor) apiKey() string {
	if a.creds.APIKey != "" {
		return a.creds.APIKey
	}
	return placeholderKey
}

func (a *Adaptor) buildCall(req *relaymodel.GenerateRequest) (*openai_compatible.Call, error) {
	if !a.IsConfigured() {
		return nil, &relaymodel.ConfigurationMissingError{Provider: string(channeltype.Compatible)}
	}

	model := adaptor.ResolveModel(req.Model, a.creds.PreferredModel, a.DefaultModel())

	return &openai_compatible.Call{
		Provider: string(channeltype.Compatible),
		Model:    model,
		URL:      openai_compatible.FullRequestURL(a.creds.BaseURL, "/v1/chat/completions"),
		Headers:  map[string]string{"Authorization": "Bearer " + a.apiKey()},
		Client:   a.http,
		Body: &openai_compatible.ChatRequest{
			Model:       model,
			Messages:    openai_compatible.BuildMessages(req.SystemPrompt, req.Prompt),
			Temperature: req.Temperature,
			MaxTokens:   req.MaxOutputTokens,
		},
	}, nil
}

func (a *Adaptor) Generate(ctx context.Context, req *relaymodel.GenerateRequest) (*relaymodel.GenerateResponse, error) {
	call, err := a.buildCall(req)
	if err != nil {
		return nil, err
	}
	return call.Complete(ctx)
}

func (a *Adaptor) StreamGenerate(ctx context.Context, req *relaymodel.GenerateRequest) (<-chan relaymodel.StreamChunk, error) {
	call, err := a.buildCall(req)
	if err != nil {
		return nil, err
	}
	return call.Stream(ctx)
}
