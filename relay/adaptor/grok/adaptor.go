// Package grok adapts the uniform generation contract to the xAI chat
// endpoint, which speaks the OpenAI wire format and accepts the
// reasoning-effort knob. Unlike the OpenAI adaptor it applies no temperature
// override; xAI imposes none.
package grok

import (
	"context"
	"net/http"

	"github.com/blackjuly/ultra-mcp/common/client"
	"github.com/blackjuly/ultra-mcp/relay/adaptor"
	"github.com/blackjuly/ultra-mcp/relay/adaptor/openai_compatible"
	"github.com/blackjuly/ultra-mcp/relay/channeltype"
	relaymodel "github.com/blackjuly/ultra-mcp/relay/model"
)

var grokModels = []string{
	"grok-4", "grok-4-fast", "grok-3", "grok-3-mini", "grok-2-vision",
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

func (a *Adaptor) Name() channeltype.Kind { return channeltype.Grok }

func (a *Adaptor) IsConfigured() bool { return a.creds.APIKey != "" }

func (a *Adaptor) DefaultModel() string {
	return adaptor.ResolveModel("", a.creds.PreferredModel, channeltype.DefaultModel(channeltype.Grok))
}

func (a *Adaptor) ListModels() []string {
	out := make([]string, len(grokModels))
	copy(out, grokModels)
	return out
}

func (a *Adaptor) buildCall(req *relaymodel.GenerateRequest) (*openai_compatible.Call, error) {
	if !a.IsConfigured() {
		return nil, &relaymodel.ConfigurationMissingError{Provider: string(channeltype.Grok)}
	}

	model := adaptor.ResolveModel(req.Model, a.creds.PreferredModel, channeltype.DefaultModel(channeltype.Grok))
	base := a.creds.BaseURL
	if base == "" {
		base = channeltype.DefaultBaseURL(channeltype.Grok)
	}

	return &openai_compatible.Call{
		Provider: string(channeltype.Grok),
		Model:    model,
		URL:      openai_compatible.FullRequestURL(base, "/v1/chat/completions"),
		Headers:  map[string]string{"Authorization": "Bearer " + a.creds.APIKey},
		Client:   a.http,
		Body: &openai_compatible.ChatRequest{
			Model:           model,
			Messages:        openai_compatible.BuildMessages(req.SystemPrompt, req.Prompt),
			Temperature:     req.Temperature,
			MaxTokens:       req.MaxOutputTokens,
			ReasoningEffort: req.ReasoningEffort,
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
