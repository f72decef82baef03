// Package openai adapts the uniform generation contract to the OpenAI
// platform and Azure OpenAI deployments, which share a wire format but differ
// in URL shape and auth header.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/blackjuly/ultra-mcp/common/client"
	"github.com/blackjuly/ultra-mcp/relay/adaptor"
	"github.com/blackjuly/ultra-mcp/relay/adaptor/openai_compatible"
	"github.com/blackjuly/ultra-mcp/relay/channeltype"
	relaymodel "github.com/blackjuly/ultra-mcp/relay/model"
)

const azureAPIVersion = "2024-10-21"

// reasoningModelPrefixes identify models that hard-require temperature 1.0
// upstream.
var reasoningModelPrefixes = []string{"o1", "o3", "gpt-5"}

// effortModelPrefixes identify models accepting the reasoning_effort knob.
var effortModelPrefixes = []string{"o1", "o3"}

var openAIModels = []string{
	"gpt-5", "gpt-5-mini", "gpt-5-nano",
	"gpt-4.1", "gpt-4.1-mini",
	"gpt-4o", "gpt-4o-mini",
	"o3", "o3-mini", "o4-mini", "o1",
}

// Adaptor serves both the openai and azure channels; kind switches the URL
// and auth scheme.
type Adaptor struct {
	kind  channeltype.Kind
	creds adaptor.Credentials
	http  *http.Client
}

// NewOpenAI builds the OpenAI platform adaptor.
func NewOpenAI(creds adaptor.Credentials, httpClient *http.Client) *Adaptor {
	return newAdaptor(channeltype.OpenAI, creds, httpClient)
}

// NewAzure builds the Azure OpenAI adaptor.
func NewAzure(creds adaptor.Credentials, httpClient *http.Client) *Adaptor {
	return newAdaptor(channeltype.Azure, creds, httpClient)
}

func newAdaptor(kind channeltype.Kind, creds adaptor.Credentials, httpClient *http.Client) *Adaptor {
	if httpClient == nil {
		httpClient = client.HTTPClient
	}
	return &Adaptor{kind: kind, creds: creds, http: httpClient}
}

func (a *Adaptor) Name() channeltype.Kind { return a.kind }

func (a *Adaptor) IsConfigured() bool {
	if a.creds.APIKey == "" {
		return false
	}
	if a.kind == channeltype.Azure {
		return a.creds.ResourceName != "" || a.creds.BaseURL != ""
	}
	return true
}

func (a *Adaptor) DefaultModel() string {
	return adaptor.ResolveModel("", a.creds.PreferredModel, channeltype.DefaultModel(a.kind))
}

func (a *Adaptor) ListModels() []string {
	out := make([]string, len(openAIModels))
	copy(out, openAIModels)
	return out
}

// IsReasoningModel reports whether the model requires the forced temperature.
func IsReasoningModel(model string) bool {
	lower := strings.ToLower(model)
	for _, prefix := range reasoningModelPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

func acceptsReasoningEffort(model string) bool {
	lower := strings.ToLower(model)
	for _, prefix := range effortModelPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

func (a *Adaptor) buildCall(req *relaymodel.GenerateRequest) (*openai_compatible.Call, error) {
	if !a.IsConfigured() {
		return nil, &relaymodel.ConfigurationMissingError{Provider: string(a.kind)}
	}

	model := adaptor.ResolveModel(req.Model, a.creds.PreferredModel, channeltype.DefaultModel(a.kind))

	body := &openai_compatible.ChatRequest{
		Model:    model,
		Messages: openai_compatible.BuildMessages(req.SystemPrompt, req.Prompt),
	}

	if IsReasoningModel(model) {
		// Upstream hard requirement: reasoning models reject any other
		// temperature.
		one := 1.0
		body.Temperature = &one
		body.MaxCompletionTokens = req.MaxOutputTokens
		if acceptsReasoningEffort(model) {
			effort := req.ReasoningEffort
			if effort == "" {
				effort = relaymodel.ReasoningEffortMedium
			}
			body.ReasoningEffort = effort
		}
	} else {
		body.Temperature = req.Temperature
		body.MaxTokens = req.MaxOutputTokens
	}

	url, headers, err := a.endpoint(model)
	if err != nil {
		return nil, err
	}

	return &openai_compatible.Call{
		Provider: string(a.kind),
		Model:    model,
		URL:      url,
		Headers:  headers,
		Client:   a.http,
		Body:     body,
	}, nil
}

// endpoint derives the URL and auth headers. Azure routes through per-model
// deployments with api-key auth; OpenAI uses the flat chat endpoint with a
// bearer token.
func (a *Adaptor) endpoint(model string) (string, map[string]string, error) {
	if a.kind == channeltype.Azure {
		base := a.creds.BaseURL
		if base == "" {
			base = fmt.Sprintf("https://%s.openai.azure.com", a.creds.ResourceName)
		}
		url := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
			strings.TrimSuffix(base, "/"), model, azureAPIVersion)
		return url, map[string]string{"api-key": a.creds.APIKey}, nil
	}

	base := a.creds.BaseURL
	if base == "" {
		base = channeltype.DefaultBaseURL(channeltype.OpenAI)
	}
	url := openai_compatible.FullRequestURL(base, "/v1/chat/completions")
	return url, map[string]string{"Authorization": "Bearer " + a.creds.APIKey}, nil
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
