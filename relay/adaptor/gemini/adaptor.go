// Package gemini adapts the uniform generation contract to the Google
// generative-language API, including search grounding and SSE streaming.
package gemini

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"

	"github.com/blackjuly/ultra-mcp/common"
	"github.com/blackjuly/ultra-mcp/common/client"
	"github.com/blackjuly/ultra-mcp/common/helper"
	"github.com/blackjuly/ultra-mcp/common/logger"
	"github.com/blackjuly/ultra-mcp/relay/adaptor"
	"github.com/blackjuly/ultra-mcp/relay/channeltype"
	relaymodel "github.com/blackjuly/ultra-mcp/relay/model"
)

var geminiModels = []string{
	"gemini-2.5-pro", "gemini-2.5-flash",
	"gemini-2.0-flash", "gemini-1.5-pro", "gemini-1.5-flash",
}

// Adaptor talks to the generative-language endpoint. Outbound calls honor the
// environment proxy through the shared HTTP client.
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

func (a *Adaptor) Name() channeltype.Kind { return channeltype.Google }

func (a *Adaptor) IsConfigured() bool { return a.creds.APIKey != "" }

func (a *Adaptor) DefaultModel() string {
	return adaptor.ResolveModel("", a.creds.PreferredModel, channeltype.DefaultModel(channeltype.Google))
}

func (a *Adaptor) ListModels() []string {
	out := make([]string, len(geminiModels))
	copy(out, geminiModels)
	return out
}

// Wire types, subset of the generative-language schema.

type part struct {
	Text string `json:"text,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
}

type tool struct {
	GoogleSearch *struct{} `json:"googleSearch,omitempty"`
}

type chatRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
	Tools             []tool            `json:"tools,omitempty"`
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason"`
}

type chatResponse struct {
	Candidates    []candidate    `json:"candidates"`
	UsageMetadata *usageMetadata `json:"usageMetadata"`
}

func (r *chatResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

func (r *chatResponse) usage() *relaymodel.Usage {
	if r.UsageMetadata == nil {
		return nil
	}
	return &relaymodel.Usage{
		InputTokens:  r.UsageMetadata.PromptTokenCount,
		OutputTokens: r.UsageMetadata.CandidatesTokenCount,
		TotalTokens:  r.UsageMetadata.TotalTokenCount,
	}
}

// shouldGroundSearch defaults search grounding on for the default Pro tier
// when the request leaves it unset.
func (a *Adaptor) shouldGroundSearch(model string, requested *bool) bool {
	if requested != nil {
		return *requested
	}
	return strings.HasPrefix(model, channeltype.DefaultModel(channeltype.Google))
}

func (a *Adaptor) buildRequest(req *relaymodel.GenerateRequest) (string, *chatRequest, error) {
	if !a.IsConfigured() {
		return "", nil, &relaymodel.ConfigurationMissingError{Provider: string(channeltype.Google)}
	}

	model := adaptor.ResolveModel(req.Model, a.creds.PreferredModel, channeltype.DefaultModel(channeltype.Google))

	body := &chatRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: req.Prompt}}}},
	}
	if req.SystemPrompt != "" {
		body.SystemInstruction = &content{Parts: []part{{Text: req.SystemPrompt}}}
	}
	if req.Temperature != nil || req.MaxOutputTokens != nil {
		body.GenerationConfig = &generationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxOutputTokens,
		}
	}
	if a.shouldGroundSearch(model, req.UseSearchGrounding) {
		body.Tools = []tool{{GoogleSearch: &struct{}{}}}
	}

	return model, body, nil
}

func (a *Adaptor) baseURL() string {
	if a.creds.BaseURL != "" {
		return strings.TrimSuffix(a.creds.BaseURL, "/")
	}
	return channeltype.DefaultBaseURL(channeltype.Google)
}

func (a *Adaptor) post(ctx context.Context, url string, body *chatRequest) (*http.Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "marshal gemini request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrap(err, "build gemini request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", a.creds.APIKey)

	resp, err := a.http.Do(req)
	if err != nil {
		if relaymodel.IsCanceled(err) || ctx.Err() != nil {
			return nil, errors.Wrap(context.Canceled, "gemini request canceled")
		}
		return nil, &relaymodel.TransportError{Provider: string(channeltype.Google), Cause: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		_ = resp.Body.Close()
		return nil, &relaymodel.UpstreamError{
			Provider:   string(channeltype.Google),
			StatusCode: resp.StatusCode,
			Body:       common.ExcerptBody(raw),
		}
	}
	return resp, nil
}

func (a *Adaptor) Generate(ctx context.Context, req *relaymodel.GenerateRequest) (*relaymodel.GenerateResponse, error) {
	model, body, err := a.buildRequest(req)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", a.baseURL(), model)
	resp, err := a.post(ctx, url, body)
	if err != nil {
		if upstream, ok := relaymodel.AsUpstreamError(err); ok {
			upstream.Model = model
		}
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &relaymodel.TransportError{Provider: string(channeltype.Google), Cause: err}
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, errors.Wrap(err, "parse gemini response")
	}
	if len(parsed.Candidates) == 0 {
		return nil, errors.New("gemini returned no candidates")
	}

	return &relaymodel.GenerateResponse{
		Provider:     string(channeltype.Google),
		Model:        model,
		Text:         parsed.text(),
		FinishReason: parsed.Candidates[0].FinishReason,
		Usage:        parsed.usage(),
	}, nil
}

func (a *Adaptor) StreamGenerate(ctx context.Context, req *relaymodel.GenerateRequest) (<-chan relaymodel.StreamChunk, error) {
	model, body, err := a.buildRequest(req)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", a.baseURL(), model)
	resp, err := a.post(ctx, url, body)
	if err != nil {
		if upstream, ok := relaymodel.AsUpstreamError(err); ok {
			upstream.Model = model
		}
		return nil, err
	}

	ch := make(chan relaymodel.StreamChunk)
	go a.consume(ctx, resp, ch)
	return ch, nil
}

// consume decodes the SSE body. Gemini has no [DONE] marker; the stream ends
// at EOF, with usage in the trailing chunk.
func (a *Adaptor) consume(ctx context.Context, resp *http.Response, ch chan<- relaymodel.StreamChunk) {
	defer close(ch)
	defer resp.Body.Close()

	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			_ = resp.Body.Close()
		case <-watchDone:
		}
	}()

	emit := func(chunk relaymodel.StreamChunk) bool {
		select {
		case ch <- chunk:
			return true
		case <-ctx.Done():
			return false
		}
	}
	emitTerminal := func(chunk relaymodel.StreamChunk) {
		select {
		case ch <- chunk:
		case <-time.After(5 * time.Second):
		}
	}

	var usage *relaymodel.Usage
	var finishReason string

	scanner := bufio.NewScanner(resp.Body)
	helper.ConfigureScannerBuffer(scanner)
	scanner.Split(bufio.ScanLines)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")

		var parsed chatResponse
		if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
			logger.Logger.Debug("skipping unparseable gemini fragment", zap.Error(err))
			continue
		}

		if u := parsed.usage(); u != nil {
			usage = u
		}
		if len(parsed.Candidates) > 0 && parsed.Candidates[0].FinishReason != "" {
			finishReason = parsed.Candidates[0].FinishReason
		}
		if text := parsed.text(); text != "" {
			if !emit(relaymodel.StreamChunk{Content: text}) {
				return
			}
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			emitTerminal(relaymodel.StreamChunk{Err: errors.Wrap(context.Canceled, "stream canceled")})
			return
		}
		emitTerminal(relaymodel.StreamChunk{Err: &relaymodel.TransportError{Provider: string(channeltype.Google), Cause: err}})
		return
	}
	if ctx.Err() != nil {
		emitTerminal(relaymodel.StreamChunk{Err: errors.Wrap(context.Canceled, "stream canceled")})
		return
	}

	emitTerminal(relaymodel.StreamChunk{Usage: usage, FinishReason: finishReason})
}
