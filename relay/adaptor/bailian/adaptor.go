// Package bailian adapts the uniform generation contract to Alibaba
// DashScope's compatible-mode chat endpoint. Three subtypes share the wire
// format but enumerate different models and resolve different API keys:
// bailian (Qwen commercial tier), qwen3-coder, and deepseek-r1.
package bailian

import (
	"context"
	"net/http"

	"github.com/blackjuly/ultra-mcp/common/client"
	"github.com/blackjuly/ultra-mcp/relay/adaptor"
	"github.com/blackjuly/ultra-mcp/relay/adaptor/openai_compatible"
	"github.com/blackjuly/ultra-mcp/relay/channeltype"
	relaymodel "github.com/blackjuly/ultra-mcp/relay/model"
)

// subtypeModels enumerates the exposed model set per subtype.
var subtypeModels = map[string][]string{
	channeltype.SubtypeBailian: {
		"qwen-max", "qwen-plus", "qwen-turbo", "qwen-long",
	},
	channeltype.SubtypeQwen3Coder: {
		"qwen3-coder-plus", "qwen3-coder-flash", "qwen3-coder-480b-a35b-instruct",
	},
	channeltype.SubtypeDeepSeekR1: {
		"deepseek-r1", "deepseek-v3",
	},
}

// subtypeDefaults picks the fallback model per subtype.
var subtypeDefaults = map[string]string{
	channeltype.SubtypeBailian:    "qwen-max",
	channeltype.SubtypeQwen3Coder: "qwen3-coder-plus",
	channeltype.SubtypeDeepSeekR1: "deepseek-r1",
}

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

func (a *Adaptor) Name() channeltype.Kind { return channeltype.Bailian }

func (a *Adaptor) subtype() string {
	if a.creds.Subtype != "" {
		return a.creds.Subtype
	}
	return channeltype.SubtypeBailian
}

// apiKey resolves the subtype-specific key, falling back to the DashScope
// key shared by all subtypes.
func (a *Adaptor) apiKey() string {
	if key, ok := a.creds.ExtraAPIKeys[a.subtype()]; ok && key != "" {
		return key
	}
	return a.creds.APIKey
}

func (a *Adaptor) IsConfigured() bool { return a.apiKey() != "" }

func (a *Adaptor) DefaultModel() string {
	return adaptor.ResolveModel("", a.creds.PreferredModel, subtypeDefaults[a.subtype()])
}

func (a *Adaptor) ListModels() []string {
	models := subtypeModels[a.subtype()]
	out := make([]string, len(models))
	copy(out, models)
	return out
}

func (a *Adaptor) buildCall(req *relaymodel.GenerateRequest) (*openai_compatible.Call, error) {
	if !a.IsConfigured() {
		return nil, &relaymodel.ConfigurationMissingError{Provider: string(channeltype.Bailian)}
	}

	model := adaptor.ResolveModel(req.Model, a.creds.PreferredModel, subtypeDefaults[a.subtype()])
	base := a.creds.BaseURL
	if base == "" {
		base = channeltype.DefaultBaseURL(channeltype.Bailian)
	}

	return &openai_compatible.Call{
		Provider: string(channeltype.Bailian),
		Model:    model,
		URL:      openai_compatible.FullRequestURL(base, "/v1/chat/completions"),
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
