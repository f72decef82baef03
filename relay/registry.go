// Package relay routes uniform generation requests to provider adaptors and
// wraps every call with request tracking.
package relay

import (
	"net/http"

	"github.com/Laisky/errors/v2"

	"github.com/blackjuly/ultra-mcp/common/client"
	"github.com/blackjuly/ultra-mcp/config"
	"github.com/blackjuly/ultra-mcp/relay/adaptor"
	"github.com/blackjuly/ultra-mcp/relay/adaptor/bailian"
	"github.com/blackjuly/ultra-mcp/relay/adaptor/compatible"
	"github.com/blackjuly/ultra-mcp/relay/adaptor/gemini"
	"github.com/blackjuly/ultra-mcp/relay/adaptor/grok"
	"github.com/blackjuly/ultra-mcp/relay/adaptor/openai"
	"github.com/blackjuly/ultra-mcp/relay/channeltype"
	relaymodel "github.com/blackjuly/ultra-mcp/relay/model"
)

// Registry builds provider adaptors from the live configuration. Adaptors are
// constructed per lookup so credential changes take effect without a restart.
type Registry struct {
	store *config.Store
	http  *http.Client
}

// NewRegistry wires the registry to a config store. A nil httpClient selects
// the shared proxy-aware default.
func NewRegistry(store *config.Store, httpClient *http.Client) *Registry {
	if httpClient == nil {
		httpClient = client.HTTPClient
	}
	return &Registry{store: store, http: httpClient}
}

// Get constructs the adaptor for a provider kind, configured or not.
func (r *Registry) Get(kind channeltype.Kind) (adaptor.Adaptor, error) {
	return r.build(kind, "")
}

// build constructs the adaptor, optionally overriding the subtype when the
// request named a subtype alias (qwen3-coder, deepseek-r1) directly.
func (r *Registry) build(kind channeltype.Kind, subtype string) (adaptor.Adaptor, error) {
	creds := r.credentials(kind)
	if subtype != "" {
		creds.Subtype = subtype
	}
	switch kind {
	case channeltype.OpenAI:
		return openai.NewOpenAI(creds, r.http), nil
	case channeltype.Azure:
		return openai.NewAzure(creds, r.http), nil
	case channeltype.Google:
		return gemini.New(creds, r.http), nil
	case channeltype.Grok:
		return grok.New(creds, r.http), nil
	case channeltype.Bailian:
		return bailian.New(creds, r.http), nil
	case channeltype.Compatible:
		return compatible.New(creds, r.http), nil
	default:
		return nil, errors.Errorf("unknown provider kind %q", kind)
	}
}

// Select resolves the adaptor for a request. A named provider must exist and
// be configured; an empty name walks the fixed priority order and returns the
// first configured provider.
func (r *Registry) Select(name string) (adaptor.Adaptor, error) {
	if name != "" {
		kind, ok := channeltype.Parse(name)
		if !ok {
			return nil, errors.Errorf("unknown provider %q", name)
		}
		ad, err := r.build(kind, channeltype.BailianSubtypeOf(name))
		if err != nil {
			return nil, err
		}
		if !ad.IsConfigured() {
			return nil, &relaymodel.ConfigurationMissingError{Provider: string(kind)}
		}
		return ad, nil
	}

	for _, kind := range channeltype.Priority {
		ad, err := r.Get(kind)
		if err != nil {
			return nil, err
		}
		if ad.IsConfigured() {
			return ad, nil
		}
	}
	return nil, &relaymodel.ConfigurationMissingError{Provider: "any"}
}

// ConfiguredProviders returns the configured provider kinds in priority order.
func (r *Registry) ConfiguredProviders() []channeltype.Kind {
	var out []channeltype.Kind
	for _, kind := range channeltype.Priority {
		ad, err := r.Get(kind)
		if err == nil && ad.IsConfigured() {
			out = append(out, kind)
		}
	}
	return out
}

// credentials flattens the configuration document into the adaptor bundle.
func (r *Registry) credentials(kind channeltype.Kind) adaptor.Credentials {
	cfg := r.store.GetConfig()
	switch kind {
	case channeltype.OpenAI:
		return adaptor.Credentials{
			APIKey:         cfg.OpenAI.APIKey,
			BaseURL:        cfg.OpenAI.BaseURL,
			PreferredModel: cfg.OpenAI.PreferredModel,
		}
	case channeltype.Azure:
		return adaptor.Credentials{
			APIKey:         cfg.Azure.APIKey,
			BaseURL:        cfg.Azure.BaseURL,
			PreferredModel: cfg.Azure.PreferredModel,
			ResourceName:   cfg.Azure.ResourceName,
		}
	case channeltype.Google:
		return adaptor.Credentials{
			APIKey:         cfg.Google.APIKey,
			BaseURL:        cfg.Google.BaseURL,
			PreferredModel: cfg.Google.PreferredModel,
		}
	case channeltype.Grok:
		return adaptor.Credentials{
			APIKey:         cfg.Grok.APIKey,
			BaseURL:        cfg.Grok.BaseURL,
			PreferredModel: cfg.Grok.PreferredModel,
		}
	case channeltype.Bailian:
		return adaptor.Credentials{
			APIKey:         cfg.Bailian.APIKey,
			BaseURL:        cfg.Bailian.BaseURL,
			PreferredModel: cfg.Bailian.PreferredModel,
			Subtype:        channeltype.SubtypeBailian,
			ExtraAPIKeys: map[string]string{
				channeltype.SubtypeQwen3Coder: cfg.Bailian.Qwen3CoderAPIKey,
				channeltype.SubtypeDeepSeekR1: cfg.Bailian.DeepSeekR1APIKey,
			},
		}
	case channeltype.Compatible:
		return adaptor.Credentials{
			APIKey:         cfg.Compatible.APIKey,
			BaseURL:        cfg.Compatible.BaseURL,
			PreferredModel: cfg.Compatible.PreferredModel,
			Subtype:        cfg.Compatible.Subtype,
			Models:         cfg.Compatible.Models,
		}
	default:
		return adaptor.Credentials{}
	}
}
