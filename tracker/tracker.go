// Package tracker maintains the request log: one pending record per model
// call, closed exactly once with success or error, with cost resolved at
// completion time.
package tracker

import (
	"context"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"gorm.io/gorm"

	"github.com/blackjuly/ultra-mcp/common"
	"github.com/blackjuly/ultra-mcp/common/helper"
	"github.com/blackjuly/ultra-mcp/common/logger"
	"github.com/blackjuly/ultra-mcp/model"
	"github.com/blackjuly/ultra-mcp/pricing"
	relaymodel "github.com/blackjuly/ultra-mcp/relay/model"
)

// Tracker writes lifecycle records for every model call.
type Tracker struct {
	db      *gorm.DB
	pricing *pricing.Service
}

// New builds a tracker. The pricing service may be nil; cost resolution then
// always yields zero.
func New(db *gorm.DB, pricingSvc *pricing.Service) *Tracker {
	return &Tracker{db: db, pricing: pricingSvc}
}

// StartOptions describes the call being opened.
type StartOptions struct {
	Provider string
	Model    string
	ToolName string
	// Request is the payload snapshot; it is sanitized before persisting
	// (prompt text retained, API keys never included).
	Request any
}

// Start persists a pending record and returns its id.
func (t *Tracker) Start(ctx context.Context, opts StartOptions) (string, error) {
	record := &model.Request{
		ID:             helper.GenRequestID(),
		StartedAt:      helper.GetTimestamp(),
		Provider:       opts.Provider,
		Model:          opts.Model,
		ToolName:       opts.ToolName,
		RequestPayload: common.SanitizeRequestSnapshot(opts.Request),
		Status:         model.RequestStatusPending,
	}
	if err := t.db.WithContext(ctx).Create(record).Error; err != nil {
		return "", errors.Wrap(err, "create tracking record")
	}
	return record.ID, nil
}

// Completion carries the terminal data of a successful call.
type Completion struct {
	ResponseText string
	Usage        *relaymodel.Usage
	FinishReason string
	EndTime      time.Time
}

// Complete finalizes a pending record as success. When usage is present the
// cost is resolved via the pricing service; a failed lookup still completes
// the record with zero cost. A record can receive exactly one terminal
// update; a second call is an error.
func (t *Tracker) Complete(ctx context.Context, requestID string, completion Completion) error {
	endTime := completion.EndTime
	if endTime.IsZero() {
		endTime = time.Now()
	}

	return t.finalize(ctx, requestID, func(record *model.Request) {
		endedAt := endTime.UnixMilli()
		duration := endedAt - record.StartedAt

		record.Status = model.RequestStatusSuccess
		record.EndedAt = &endedAt
		record.DurationMs = &duration
		response := common.TruncateString(completion.ResponseText, common.SnapshotMaxLen)
		record.ResponsePayload = &response
		if completion.FinishReason != "" {
			reason := completion.FinishReason
			record.FinishReason = &reason
		}

		cost := 0.0
		if completion.Usage != nil {
			u := *completion.Usage
			record.InputTokens = &u.InputTokens
			record.OutputTokens = &u.OutputTokens
			record.TotalTokens = &u.TotalTokens
			cost = t.resolveCost(ctx, record.Model, u)
		}
		record.CostUSD = &cost
	})
}

// Failure carries the terminal data of a failed call.
type Failure struct {
	ErrorMessage string
	EndTime      time.Time
}

// Fail finalizes a pending record as error, leaving token and cost fields
// null.
func (t *Tracker) Fail(ctx context.Context, requestID string, failure Failure) error {
	endTime := failure.EndTime
	if endTime.IsZero() {
		endTime = time.Now()
	}

	return t.finalize(ctx, requestID, func(record *model.Request) {
		endedAt := endTime.UnixMilli()
		duration := endedAt - record.StartedAt

		record.Status = model.RequestStatusError
		record.EndedAt = &endedAt
		record.DurationMs = &duration
		message := common.TruncateString(failure.ErrorMessage, 4096)
		record.ErrorMessage = &message
	})
}

// finalize loads the pending record and applies the terminal mutation inside
// one transaction, so concurrent writers cannot interleave within a record.
func (t *Tracker) finalize(ctx context.Context, requestID string, mutate func(*model.Request)) error {
	if requestID == "" {
		return errors.New("request id is empty")
	}

	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record model.Request
		if err := tx.First(&record, "id = ?", requestID).Error; err != nil {
			return errors.Wrapf(err, "load tracking record %s", requestID)
		}
		if record.Status != model.RequestStatusPending {
			return errors.Errorf("tracking record %s already finalized as %s", requestID, record.Status)
		}

		mutate(&record)
		return errors.Wrapf(tx.Save(&record).Error, "finalize tracking record %s", requestID)
	})
	return err
}

// resolveCost never fails the completion: unknown models and unavailable
// pricing both yield zero.
func (t *Tracker) resolveCost(ctx context.Context, modelName string, usage relaymodel.Usage) float64 {
	if t.pricing == nil {
		return 0
	}
	cost, err := t.pricing.CalculateCost(ctx, modelName, usage.InputTokens, usage.OutputTokens)
	if err != nil {
		logger.Logger.Warn("cost resolution failed, recording zero cost",
			zap.String("model", modelName), zap.Error(err))
		return 0
	}
	if cost == nil {
		logger.Logger.Debug("model unknown to pricing catalog",
			zap.String("model", modelName))
		return 0
	}
	return cost.TotalCost
}
