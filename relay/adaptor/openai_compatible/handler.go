package openai_compatible

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"

	"github.com/blackjuly/ultra-mcp/common"
	"github.com/blackjuly/ultra-mcp/common/helper"
	"github.com/blackjuly/ultra-mcp/common/logger"
	relaymodel "github.com/blackjuly/ultra-mcp/relay/model"
)

const sseDataPrefix = "data: "
const sseDoneMarker = "[DONE]"

// Call is one prepared upstream invocation.
type Call struct {
	Provider string
	Model    string
	URL      string
	Headers  map[string]string
	Client   *http.Client
	Body     *ChatRequest
}

// do issues the HTTP request and maps failures to the typed error kinds.
// The caller owns the response body on success.
func (c *Call) do(ctx context.Context) (*http.Response, error) {
	raw, err := json.Marshal(c.Body)
	if err != nil {
		return nil, errors.Wrap(err, "marshal chat request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrap(err, "build chat request")
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range c.Headers {
		req.Header.Set(key, value)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		if relaymodel.IsCanceled(err) || ctx.Err() != nil {
			return nil, errors.Wrap(context.Canceled, "upstream request canceled")
		}
		return nil, &relaymodel.TransportError{Provider: c.Provider, Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		_ = resp.Body.Close()
		return nil, &relaymodel.UpstreamError{
			Provider:   c.Provider,
			Model:      c.Model,
			StatusCode: resp.StatusCode,
			Body:       common.ExcerptBody(body),
		}
	}
	return resp, nil
}

// Complete performs one blocking chat call and maps the response to the
// uniform shape.
func (c *Call) Complete(ctx context.Context) (*relaymodel.GenerateResponse, error) {
	resp, err := c.do(ctx)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &relaymodel.TransportError{Provider: c.Provider, Cause: err}
	}

	var parsed ChatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, errors.Wrapf(err, "parse %s chat response", c.Provider)
	}
	if len(parsed.Choices) == 0 {
		return nil, errors.Errorf("%s returned no choices", c.Provider)
	}

	out := &relaymodel.GenerateResponse{
		Provider:     c.Provider,
		Model:        c.Model,
		Text:         parsed.Choices[0].Message.Content,
		FinishReason: parsed.Choices[0].FinishReason,
	}
	if parsed.Usage != nil {
		out.Usage = &relaymodel.Usage{
			InputTokens:  parsed.Usage.PromptTokens,
			OutputTokens: parsed.Usage.CompletionTokens,
			TotalTokens:  parsed.Usage.TotalTokens,
		}
	}
	return out, nil
}

// Stream opens the SSE stream and decodes it chunk by chunk. Lines without
// the data prefix and unparseable payloads are skipped silently; the literal
// [DONE] terminates. The final channel element carries usage and finish
// reason when the upstream emitted them.
func (c *Call) Stream(ctx context.Context) (<-chan relaymodel.StreamChunk, error) {
	c.Body.Stream = true
	if c.Body.StreamOptions == nil {
		c.Body.StreamOptions = &StreamOptions{IncludeUsage: true}
	}

	resp, err := c.do(ctx)
	if err != nil {
		return nil, err
	}

	ch := make(chan relaymodel.StreamChunk)
	go c.consume(ctx, resp, ch)
	return ch, nil
}

func (c *Call) consume(ctx context.Context, resp *http.Response, ch chan<- relaymodel.StreamChunk) {
	defer close(ch)
	defer resp.Body.Close()

	// Release the body reader as soon as the caller cancels; the scanner
	// unblocks with a read error.
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

	// Terminal chunks must reach a consumer that is still draining after
	// cancellation, so they get a bounded send instead of a ctx gate.
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
		if !strings.HasPrefix(line, sseDataPrefix) {
			continue
		}
		payload := strings.TrimPrefix(line, sseDataPrefix)
		if payload == sseDoneMarker {
			break
		}

		var parsed StreamResponse
		if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
			// Malformed fragments are skipped, not fatal.
			logger.Logger.Debug("skipping unparseable stream fragment",
				zap.String("provider", c.Provider), zap.Error(err))
			continue
		}

		if parsed.Usage != nil {
			usage = &relaymodel.Usage{
				InputTokens:  parsed.Usage.PromptTokens,
				OutputTokens: parsed.Usage.CompletionTokens,
				TotalTokens:  parsed.Usage.TotalTokens,
			}
		}
		if len(parsed.Choices) == 0 {
			continue
		}
		choice := parsed.Choices[0]
		if choice.FinishReason != nil && *choice.FinishReason != "" {
			finishReason = *choice.FinishReason
		}
		if choice.Delta.Content != "" {
			if !emit(relaymodel.StreamChunk{Content: choice.Delta.Content}) {
				return
			}
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			emitTerminal(relaymodel.StreamChunk{Err: errors.Wrap(context.Canceled, "stream canceled")})
			return
		}
		emitTerminal(relaymodel.StreamChunk{Err: &relaymodel.TransportError{Provider: c.Provider, Cause: err}})
		return
	}
	if ctx.Err() != nil {
		emitTerminal(relaymodel.StreamChunk{Err: errors.Wrap(context.Canceled, "stream canceled")})
		return
	}

	// Clean termination: surface the trailing metadata.
	emitTerminal(relaymodel.StreamChunk{Usage: usage, FinishReason: finishReason})
}
