// Package embedding turns text into vectors by reusing the chat providers'
// credentials. It is narrower than a full adaptor: two operations, no
// streaming, no tracking.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Laisky/errors/v2"

	"github.com/blackjuly/ultra-mcp/common"
	"github.com/blackjuly/ultra-mcp/common/client"
	"github.com/blackjuly/ultra-mcp/config"
	"github.com/blackjuly/ultra-mcp/relay/adaptor/openai_compatible"
	"github.com/blackjuly/ultra-mcp/relay/channeltype"
	relaymodel "github.com/blackjuly/ultra-mcp/relay/model"
)

const azureAPIVersion = "2024-10-21"

// vectorPriority is the fallback order when the vector config names no
// provider.
var vectorPriority = []channeltype.Kind{
	channeltype.Azure, channeltype.OpenAI, channeltype.Google, channeltype.Bailian,
}

// Service resolves the embedding provider from the vector configuration and
// issues batch or sequential requests depending on upstream capability.
type Service struct {
	store *config.Store
	http  *http.Client
}

func New(store *config.Store, httpClient *http.Client) *Service {
	if httpClient == nil {
		httpClient = client.HTTPClient
	}
	return &Service{store: store, http: httpClient}
}

// target is the resolved provider, model, endpoint, and auth for one call.
type target struct {
	kind    channeltype.Kind
	model   string
	apiKey  string
	baseURL string
}

// resolve picks the provider: the configured vector provider when set,
// otherwise the first chat provider with credentials.
func (s *Service) resolve() (*target, error) {
	cfg := s.store.GetConfig()

	if cfg.Vector.Provider != "" {
		kind, ok := channeltype.Parse(cfg.Vector.Provider)
		if !ok {
			return nil, errors.Errorf("unknown vector provider %q", cfg.Vector.Provider)
		}
		tgt := s.targetFor(kind, &cfg)
		if tgt == nil {
			return nil, &relaymodel.ConfigurationMissingError{Provider: string(kind)}
		}
		if cfg.Vector.Model != "" {
			tgt.model = cfg.Vector.Model
		}
		return tgt, nil
	}

	for _, kind := range vectorPriority {
		if tgt := s.targetFor(kind, &cfg); tgt != nil {
			if cfg.Vector.Model != "" {
				tgt.model = cfg.Vector.Model
			}
			return tgt, nil
		}
	}
	return nil, &relaymodel.ConfigurationMissingError{Provider: "any"}
}

func (s *Service) targetFor(kind channeltype.Kind, cfg *config.Config) *target {
	tgt := &target{kind: kind, model: channeltype.DefaultEmbeddingModel(kind)}
	switch kind {
	case channeltype.OpenAI:
		tgt.apiKey, tgt.baseURL = cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL
	case channeltype.Azure:
		tgt.apiKey, tgt.baseURL = cfg.Azure.APIKey, cfg.Azure.BaseURL
		if tgt.baseURL == "" && cfg.Azure.ResourceName != "" {
			tgt.baseURL = fmt.Sprintf("https://%s.openai.azure.com", cfg.Azure.ResourceName)
		}
	case channeltype.Google:
		tgt.apiKey, tgt.baseURL = cfg.Google.APIKey, cfg.Google.BaseURL
	case channeltype.Bailian:
		tgt.apiKey, tgt.baseURL = cfg.Bailian.APIKey, cfg.Bailian.BaseURL
	default:
		return nil
	}
	if tgt.apiKey == "" {
		return nil
	}
	if tgt.baseURL == "" {
		tgt.baseURL = channeltype.DefaultBaseURL(kind)
	}
	return tgt
}

// EmbedOne embeds a single text.
func (s *Service) EmbedOne(ctx context.Context, text string) ([]float64, error) {
	vectors, err := s.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, errors.Errorf("expected 1 vector, got %d", len(vectors))
	}
	return vectors[0], nil
}

// EmbedMany embeds a batch. Azure deployments reject batch inputs, so that
// path iterates sequentially and concatenates; every other provider gets one
// batch request.
func (s *Service) EmbedMany(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	tgt, err := s.resolve()
	if err != nil {
		return nil, err
	}

	switch tgt.kind {
	case channeltype.Azure:
		vectors := make([][]float64, 0, len(texts))
		for _, text := range texts {
			batch, err := s.embedOpenAI(ctx, tgt, []string{text})
			if err != nil {
				return nil, err
			}
			vectors = append(vectors, batch...)
		}
		return vectors, nil
	case channeltype.Google:
		return s.embedGemini(ctx, tgt, texts)
	default:
		return s.embedOpenAI(ctx, tgt, texts)
	}
}

// openaiEmbeddingRequest is shared by OpenAI, Azure, and DashScope
// compatible-mode.
type openaiEmbeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openaiEmbeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (s *Service) embedOpenAI(ctx context.Context, tgt *target, texts []string) ([][]float64, error) {
	var url string
	headers := map[string]string{}
	if tgt.kind == channeltype.Azure {
		url = fmt.Sprintf("%s/openai/deployments/%s/embeddings?api-version=%s",
			strings.TrimSuffix(tgt.baseURL, "/"), tgt.model, azureAPIVersion)
		headers["api-key"] = tgt.apiKey
	} else {
		url = openai_compatible.FullRequestURL(tgt.baseURL, "/v1/embeddings")
		headers["Authorization"] = "Bearer " + tgt.apiKey
	}

	var decoded openaiEmbeddingResponse
	err := s.post(ctx, tgt, url, headers, &openaiEmbeddingRequest{
		Model: tgt.model,
		Input: texts,
	}, &decoded)
	if err != nil {
		return nil, err
	}

	if len(decoded.Data) != len(texts) {
		return nil, errors.Errorf("upstream returned %d vectors for %d inputs",
			len(decoded.Data), len(texts))
	}
	vectors := make([][]float64, len(texts))
	for _, item := range decoded.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, errors.Errorf("vector index %d out of range", item.Index)
		}
		vectors[item.Index] = item.Embedding
	}
	return vectors, nil
}

type geminiEmbedRequest struct {
	Requests []geminiEmbedEntry `json:"requests"`
}

type geminiEmbedEntry struct {
	Model   string        `json:"model"`
	Content geminiContent `json:"content"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiEmbedResponse struct {
	Embeddings []struct {
		Values []float64 `json:"values"`
	} `json:"embeddings"`
}

func (s *Service) embedGemini(ctx context.Context, tgt *target, texts []string) ([][]float64, error) {
	url := fmt.Sprintf("%s/models/%s:batchEmbedContents",
		strings.TrimSuffix(tgt.baseURL, "/"), tgt.model)
	headers := map[string]string{"x-goog-api-key": tgt.apiKey}

	body := &geminiEmbedRequest{Requests: make([]geminiEmbedEntry, len(texts))}
	for i, text := range texts {
		body.Requests[i] = geminiEmbedEntry{
			Model:   "models/" + tgt.model,
			Content: geminiContent{Parts: []geminiPart{{Text: text}}},
		}
	}

	var decoded geminiEmbedResponse
	if err := s.post(ctx, tgt, url, headers, body, &decoded); err != nil {
		return nil, err
	}

	if len(decoded.Embeddings) != len(texts) {
		return nil, errors.Errorf("upstream returned %d vectors for %d inputs",
			len(decoded.Embeddings), len(texts))
	}
	vectors := make([][]float64, len(texts))
	for i, item := range decoded.Embeddings {
		vectors[i] = item.Values
	}
	return vectors, nil
}

func (s *Service) post(ctx context.Context, tgt *target, url string, headers map[string]string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "marshal embedding request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return errors.Wrap(err, "build embedding request")
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		if relaymodel.IsCanceled(err) || ctx.Err() != nil {
			return errors.Wrap(context.Canceled, "embedding call canceled")
		}
		return &relaymodel.TransportError{Provider: string(tgt.kind), Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return &relaymodel.TransportError{Provider: string(tgt.kind), Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &relaymodel.UpstreamError{
			Provider:   string(tgt.kind),
			Model:      tgt.model,
			StatusCode: resp.StatusCode,
			Body:       common.ExcerptBody(payload),
		}
	}

	return errors.Wrap(json.Unmarshal(payload, out), "decode embedding response")
}
