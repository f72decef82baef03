package model

import (
	"github.com/Laisky/errors/v2"
	"gorm.io/gorm"
)

// Request status values. A record is written once as pending and receives
// exactly one terminal update.
const (
	RequestStatusPending = "pending"
	RequestStatusSuccess = "success"
	RequestStatusError   = "error"
)

// Request is one row in the request log: a single model call from start to
// terminal state. Records are independent of sessions; stateless calls produce
// them too.
type Request struct {
	ID        string `json:"id" gorm:"primaryKey;size:32"`
	StartedAt int64  `json:"startedAt" gorm:"bigint;index"`
	Provider  string `json:"provider" gorm:"size:32;index"`
	Model     string `json:"model" gorm:"size:128;index"`
	ToolName  string `json:"toolName,omitempty" gorm:"size:64"`
	// RequestPayload is a sanitized JSON snapshot: prompt text retained,
	// API keys never included.
	RequestPayload string `json:"requestPayload"`
	Status         string `json:"status" gorm:"size:16;index"`

	EndedAt         *int64   `json:"endedAt,omitempty" gorm:"bigint"`
	DurationMs      *int64   `json:"durationMs,omitempty" gorm:"bigint"`
	InputTokens     *int     `json:"inputTokens,omitempty"`
	OutputTokens    *int     `json:"outputTokens,omitempty"`
	TotalTokens     *int     `json:"totalTokens,omitempty"`
	CostUSD         *float64 `json:"costUsd,omitempty"`
	FinishReason    *string  `json:"finishReason,omitempty" gorm:"size:64"`
	ResponsePayload *string  `json:"responsePayload,omitempty"`
	ErrorMessage    *string  `json:"errorMessage,omitempty"`
}

// TableName keeps the table name stable regardless of gorm pluralization
// defaults.
func (Request) TableName() string { return "requests" }

// RequestStats aggregates the request log for the db CLI and the dashboard.
type RequestStats struct {
	TotalRequests   int64   `json:"totalRequests"`
	SuccessRequests int64   `json:"successRequests"`
	ErrorRequests   int64   `json:"errorRequests"`
	PendingRequests int64   `json:"pendingRequests"`
	TotalTokens     int64   `json:"totalTokens"`
	TotalCostUSD    float64 `json:"totalCostUsd"`
}

// GetRequestStats computes aggregate counters over the whole request log.
func GetRequestStats(db *gorm.DB) (*RequestStats, error) {
	stats := &RequestStats{}

	if err := db.Model(&Request{}).Count(&stats.TotalRequests).Error; err != nil {
		return nil, errors.Wrap(err, "count requests")
	}
	counts := []struct {
		status string
		dst    *int64
	}{
		{RequestStatusSuccess, &stats.SuccessRequests},
		{RequestStatusError, &stats.ErrorRequests},
		{RequestStatusPending, &stats.PendingRequests},
	}
	for _, c := range counts {
		if err := db.Model(&Request{}).Where("status = ?", c.status).Count(c.dst).Error; err != nil {
			return nil, errors.Wrapf(err, "count %s requests", c.status)
		}
	}

	type sums struct {
		Tokens int64
		Cost   float64
	}
	var s sums
	err := db.Model(&Request{}).
		Select("COALESCE(SUM(total_tokens),0) AS tokens, COALESCE(SUM(cost_usd),0) AS cost").
		Scan(&s).Error
	if err != nil {
		return nil, errors.Wrap(err, "sum request usage")
	}
	stats.TotalTokens = s.Tokens
	stats.TotalCostUSD = s.Cost
	return stats, nil
}

// GetRecentRequests returns the newest records first.
func GetRecentRequests(db *gorm.DB, limit int) ([]Request, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []Request
	err := db.Order("started_at DESC").Limit(limit).Find(&rows).Error
	return rows, errors.Wrap(err, "load recent requests")
}

// GetRequestByID loads one record.
func GetRequestByID(db *gorm.DB, id string) (*Request, error) {
	if id == "" {
		return nil, errors.New("request id is empty")
	}
	row := &Request{}
	if err := db.First(row, "id = ?", id).Error; err != nil {
		return nil, errors.Wrapf(err, "load request %s", id)
	}
	return row, nil
}
