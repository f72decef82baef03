package relay

import (
	"context"
	"strings"
	"time"

	"github.com/Laisky/zap"

	"github.com/blackjuly/ultra-mcp/common/logger"
	"github.com/blackjuly/ultra-mcp/relay/adaptor"
	relaymodel "github.com/blackjuly/ultra-mcp/relay/model"
	"github.com/blackjuly/ultra-mcp/tracker"
)

// Engine is the request pipeline: it selects the adaptor, opens a tracking
// record, performs the call, and finalizes the record exactly once with
// success or error.
type Engine struct {
	registry *Registry
	tracker  *tracker.Tracker
}

// NewEngine wires the pipeline. A nil tracker disables persistence; calls
// still flow.
func NewEngine(registry *Registry, trk *tracker.Tracker) *Engine {
	return &Engine{registry: registry, tracker: trk}
}

// Registry exposes the underlying provider registry for enumeration.
func (e *Engine) Registry() *Registry { return e.registry }

// Generate performs one blocking completion with full lifecycle tracking.
func (e *Engine) Generate(ctx context.Context, req *relaymodel.GenerateRequest) (*relaymodel.GenerateResponse, error) {
	ad, err := e.registry.Select(req.Provider)
	if err != nil {
		return nil, err
	}

	requestID := e.start(ctx, ad, req)

	resp, err := ad.Generate(ctx, req)
	if err != nil {
		e.fail(ctx, requestID, err)
		return nil, err
	}

	e.complete(ctx, requestID, resp.Text, resp.Usage, resp.FinishReason)
	resp.RequestID = requestID
	return resp, nil
}

// StreamGenerate opens a streaming completion and returns the request id
// together with the chunk channel. The engine relays chunks unchanged while
// accumulating text and usage; once the upstream channel closes the tracking
// record is finalized. The caller must drain the channel, also after
// cancellation; it closes shortly after the context does.
func (e *Engine) StreamGenerate(ctx context.Context, req *relaymodel.GenerateRequest) (string, <-chan relaymodel.StreamChunk, error) {
	ad, err := e.registry.Select(req.Provider)
	if err != nil {
		return "", nil, err
	}

	requestID := e.start(ctx, ad, req)

	upstream, err := ad.StreamGenerate(ctx, req)
	if err != nil {
		e.fail(ctx, requestID, err)
		return "", nil, err
	}

	out := make(chan relaymodel.StreamChunk)
	go func() {
		defer close(out)

		var text strings.Builder
		var usage *relaymodel.Usage
		var finishReason string
		var streamErr error

		for chunk := range upstream {
			text.WriteString(chunk.Content)
			if chunk.Usage != nil {
				usage = chunk.Usage
			}
			if chunk.FinishReason != "" {
				finishReason = chunk.FinishReason
			}
			if chunk.Err != nil {
				streamErr = chunk.Err
			}
			out <- chunk
		}

		// Finalization must not be lost to the caller's cancellation.
		finalizeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()

		if streamErr != nil {
			e.fail(finalizeCtx, requestID, streamErr)
			return
		}
		e.complete(finalizeCtx, requestID, text.String(), usage, finishReason)
	}()

	return requestID, out, nil
}

func (e *Engine) start(ctx context.Context, ad adaptor.Adaptor, req *relaymodel.GenerateRequest) string {
	if e.tracker == nil {
		return ""
	}

	model := req.Model
	if model == "" {
		model = ad.DefaultModel()
	}

	id, err := e.tracker.Start(ctx, tracker.StartOptions{
		Provider: string(ad.Name()),
		Model:    model,
		ToolName: req.ToolName,
		Request:  req,
	})
	if err != nil {
		// Tracking never blocks a live request.
		logger.Logger.Warn("open tracking record failed", zap.Error(err))
		return ""
	}
	return id
}

func (e *Engine) complete(ctx context.Context, requestID, text string, usage *relaymodel.Usage, finishReason string) {
	if e.tracker == nil || requestID == "" {
		return
	}
	err := e.tracker.Complete(ctx, requestID, tracker.Completion{
		ResponseText: text,
		Usage:        usage,
		FinishReason: finishReason,
	})
	if err != nil {
		logger.Logger.Warn("finalize tracking record failed",
			zap.String("requestID", requestID), zap.Error(err))
	}
}

func (e *Engine) fail(ctx context.Context, requestID string, cause error) {
	if e.tracker == nil || requestID == "" {
		return
	}

	message := cause.Error()
	if relaymodel.IsCanceled(cause) {
		message = "canceled"
	}

	err := e.tracker.Fail(ctx, requestID, tracker.Failure{ErrorMessage: message})
	if err != nil {
		logger.Logger.Warn("finalize tracking record failed",
			zap.String("requestID", requestID), zap.Error(err))
	}
}
