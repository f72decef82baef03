package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/blackjuly/ultra-mcp/common/helper"
	"github.com/blackjuly/ultra-mcp/common/logger"
	"github.com/blackjuly/ultra-mcp/model"
)

// Context-pruning split between messages and files.
const (
	MessageTokenRatio = 0.7
	FileTokenRatio    = 0.3
)

// Service is the conversation memory subservice.
type Service struct {
	db      *gorm.DB
	counter TokenCounter
}

// Option configures the service.
type Option func(*Service)

// WithTokenCounter replaces the default BPE counter.
func WithTokenCounter(counter TokenCounter) Option {
	return func(s *Service) { s.counter = counter }
}

func New(db *gorm.DB, opts ...Option) *Service {
	s := &Service{db: db, counter: NewBPECounter()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrCreateSession returns the session with the given id, creating it when
// absent. An empty id always creates a fresh session.
func (s *Service) GetOrCreateSession(ctx context.Context, id, name string) (*model.Session, error) {
	if id != "" {
		var existing model.Session
		err := s.db.WithContext(ctx).First(&existing, "id = ?", id).Error
		if err == nil {
			return &existing, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(err, "load session %s", id)
		}
	} else {
		id = uuid.NewString()
	}

	now := helper.GetTimestamp()
	session := &model.Session{
		ID:        id,
		Status:    model.SessionStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if name != "" {
		session.Name = &name
	}

	// A concurrent creator may win the insert; surface its row instead of
	// the conflict.
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(session).Error
	if err != nil {
		return nil, errors.Wrapf(err, "create session %s", id)
	}

	var created model.Session
	if err := s.db.WithContext(ctx).First(&created, "id = ?", id).Error; err != nil {
		return nil, errors.Wrapf(err, "load session %s after create", id)
	}
	return &created, nil
}

// AddMessageOptions carries the optional message fields.
type AddMessageOptions struct {
	ToolName        string
	ParentMessageID string
	Metadata        string
}

// AddMessage appends one message to a session. Index selection, insert, and
// the session's lastMessageAt update share one transaction, so concurrent
// appenders cannot produce duplicate indices.
func (s *Service) AddMessage(ctx context.Context, sessionID, role, content string, opts AddMessageOptions) (*model.ConversationMessage, error) {
	switch role {
	case model.RoleUser, model.RoleAssistant, model.RoleSystem, model.RoleTool:
	default:
		return nil, errors.Errorf("invalid message role %q", role)
	}

	var message *model.ConversationMessage
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session model.Session
		if err := tx.First(&session, "id = ?", sessionID).Error; err != nil {
			return errors.Wrapf(err, "load session %s", sessionID)
		}

		var nextIndex int
		err := tx.Model(&model.ConversationMessage{}).
			Where("session_id = ?", sessionID).
			Select("COALESCE(MAX(message_index) + 1, 0)").
			Scan(&nextIndex).Error
		if err != nil {
			return errors.Wrap(err, "compute next message index")
		}

		now := helper.GetTimestamp()
		message = &model.ConversationMessage{
			ID:           uuid.NewString(),
			SessionID:    sessionID,
			MessageIndex: nextIndex,
			Role:         role,
			Content:      content,
			Timestamp:    now,
		}
		if opts.ToolName != "" {
			message.ToolName = &opts.ToolName
		}
		if opts.ParentMessageID != "" {
			message.ParentMessageID = &opts.ParentMessageID
		}
		if opts.Metadata != "" {
			message.Metadata = &opts.Metadata
		}
		if err := tx.Create(message).Error; err != nil {
			return errors.Wrap(err, "insert message")
		}

		return errors.Wrap(tx.Model(&session).Updates(map[string]any{
			"last_message_at": now,
			"updated_at":      now,
		}).Error, "touch session")
	})
	if err != nil {
		return nil, err
	}
	return message, nil
}

// FileInput is one attachment to add.
type FileInput struct {
	Path    string
	Content string
}

// AddFilesResult reports how many inputs inserted new rows versus bumped
// existing ones.
type AddFilesResult struct {
	Added   int
	Updated int
}

// AddFiles attaches files to a session, deduplicated by content hash. New
// content inserts; already-present content bumps accessCount and refreshes
// lastAccessedAt. One transaction covers the whole batch.
func (s *Service) AddFiles(ctx context.Context, sessionID string, files []FileInput) (*AddFilesResult, error) {
	result := &AddFilesResult{}
	if len(files) == 0 {
		return result, nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session model.Session
		if err := tx.First(&session, "id = ?", sessionID).Error; err != nil {
			return errors.Wrapf(err, "load session %s", sessionID)
		}

		hashes := make([]string, len(files))
		for i, file := range files {
			sum := sha256.Sum256([]byte(file.Content))
			hashes[i] = hex.EncodeToString(sum[:])
		}

		var existing []model.ConversationFile
		err := tx.Where("session_id = ? AND content_hash IN ?", sessionID, hashes).
			Find(&existing).Error
		if err != nil {
			return errors.Wrap(err, "look up existing files")
		}
		known := make(map[string]*model.ConversationFile, len(existing))
		for i := range existing {
			known[existing[i].ContentHash] = &existing[i]
		}

		now := helper.GetTimestamp()
		seen := make(map[string]bool, len(files))
		for i, file := range files {
			hash := hashes[i]
			if seen[hash] {
				continue
			}
			seen[hash] = true

			if row, ok := known[hash]; ok {
				err := tx.Model(row).Updates(map[string]any{
					"access_count":     gorm.Expr("access_count + 1"),
					"last_accessed_at": now,
				}).Error
				if err != nil {
					return errors.Wrap(err, "bump existing file")
				}
				result.Updated++
				continue
			}

			row := &model.ConversationFile{
				ID:             uuid.NewString(),
				SessionID:      sessionID,
				FilePath:       file.Path,
				FileContent:    file.Content,
				ContentHash:    hash,
				AddedAt:        now,
				LastAccessedAt: now,
				AccessCount:    1,
				IsRelevant:     true,
			}
			if err := tx.Create(row).Error; err != nil {
				return errors.Wrap(err, "insert file")
			}
			result.Added++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ContextOptions shapes a context view request.
type ContextOptions struct {
	// MaxTokens bounds the view; nil means unlimited.
	MaxTokens *int
	// IncludeFiles adds relevant attachments to the view.
	IncludeFiles bool
	// Model selects the tokenizer vocabulary.
	Model string
}

// ConversationContext is a token-bounded view over a session.
type ConversationContext struct {
	SessionID   string
	Messages    []model.ConversationMessage
	Files       []model.ConversationFile
	TotalTokens int
	Approximate bool
	Pruned      bool
}

// GetConversationContext loads the session's messages in index order and its
// relevant files by recency, counts tokens, and prunes to MaxTokens when the
// total exceeds it: 70% of the budget goes to messages (newest first, stop on
// first overflow), 30% to files.
func (s *Service) GetConversationContext(ctx context.Context, sessionID string, opts ContextOptions) (*ConversationContext, error) {
	var session model.Session
	if err := s.db.WithContext(ctx).First(&session, "id = ?", sessionID).Error; err != nil {
		return nil, errors.Wrapf(err, "load session %s", sessionID)
	}

	var messages []model.ConversationMessage
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("message_index ASC").
		Find(&messages).Error
	if err != nil {
		return nil, errors.Wrap(err, "load messages")
	}

	var files []model.ConversationFile
	if opts.IncludeFiles {
		err := s.db.WithContext(ctx).
			Where("session_id = ? AND is_relevant = ?", sessionID, true).
			Order("last_accessed_at DESC").
			Find(&files).Error
		if err != nil {
			return nil, errors.Wrap(err, "load files")
		}
	}

	view := &ConversationContext{SessionID: sessionID}

	messageCosts := make([]TokenCount, len(messages))
	messageTotal := assistantPriming
	approximate := false
	for i := range messages {
		messageCosts[i] = messageTokens(s.counter, &messages[i], opts.Model)
		messageTotal += messageCosts[i].Tokens
		approximate = approximate || messageCosts[i].Approximate
	}

	fileCosts := make([]TokenCount, len(files))
	fileTotal := 0
	for i := range files {
		fileCosts[i] = s.counter.CountText(files[i].FileContent, opts.Model)
		fileTotal += fileCosts[i].Tokens
		approximate = approximate || fileCosts[i].Approximate
	}

	total := messageTotal + fileTotal
	if opts.MaxTokens == nil || total <= *opts.MaxTokens {
		view.Messages = messages
		view.Files = files
		view.TotalTokens = total
		view.Approximate = approximate
		return view, nil
	}

	view.Pruned = true
	view.Approximate = approximate

	messageBudget := int(math.Floor(float64(*opts.MaxTokens) * MessageTokenRatio))
	fileBudget := int(math.Floor(float64(*opts.MaxTokens) * FileTokenRatio))

	// Newest to oldest, stop at the first message that does not fit.
	remaining := messageBudget - assistantPriming
	keepFrom := len(messages)
	admitted := 0
	for i := len(messages) - 1; i >= 0; i-- {
		if messageCosts[i].Tokens > remaining {
			break
		}
		remaining -= messageCosts[i].Tokens
		admitted += messageCosts[i].Tokens
		keepFrom = i
	}
	view.Messages = messages[keepFrom:]
	if len(view.Messages) > 0 {
		view.TotalTokens = assistantPriming + admitted
	}

	remaining = fileBudget
	for i := range files {
		if fileCosts[i].Tokens > remaining {
			break
		}
		remaining -= fileCosts[i].Tokens
		view.Files = append(view.Files, files[i])
		view.TotalTokens += fileCosts[i].Tokens
	}

	return view, nil
}

// SetBudget upserts the session's single budget row.
func (s *Service) SetBudget(ctx context.Context, sessionID string, maxTokens *int, maxCostUSD *float64, maxDurationMs *int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session model.Session
		if err := tx.First(&session, "id = ?", sessionID).Error; err != nil {
			return errors.Wrapf(err, "load session %s", sessionID)
		}

		budget := &model.ConversationBudget{
			SessionID:     sessionID,
			MaxTokens:     maxTokens,
			MaxCostUSD:    maxCostUSD,
			MaxDurationMs: maxDurationMs,
		}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "session_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"max_tokens", "max_cost_usd", "max_duration_ms",
			}),
		}).Create(budget).Error
		return errors.Wrap(err, "upsert budget")
	})
}

// UpdateBudgetUsage atomically adds to the used-counters. Best effort: a
// missing budget row is a silent no-op and database errors are logged, not
// returned.
func (s *Service) UpdateBudgetUsage(ctx context.Context, sessionID string, tokens int, costUSD float64, durationMs int64) {
	err := s.db.WithContext(ctx).
		Model(&model.ConversationBudget{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]any{
			"used_tokens":      gorm.Expr("used_tokens + ?", tokens),
			"used_cost_usd":    gorm.Expr("used_cost_usd + ?", costUSD),
			"used_duration_ms": gorm.Expr("used_duration_ms + ?", durationMs),
		}).Error
	if err != nil {
		logger.Logger.Warn("budget usage update failed",
			zap.String("sessionID", sessionID), zap.Error(err))
	}
}

// BudgetStatus reports per-dimension headroom. Dimensions without a cap are
// always within limits, as are sessions without a budget row.
type BudgetStatus struct {
	HasBudget      bool    `json:"hasBudget"`
	TokensWithin   bool    `json:"tokensWithin"`
	CostWithin     bool    `json:"costWithin"`
	DurationWithin bool    `json:"durationWithin"`
	WithinLimits   bool    `json:"withinLimits"`
	UsedTokens     int     `json:"usedTokens"`
	UsedCostUSD    float64 `json:"usedCostUsd"`
	UsedDurationMs int64   `json:"usedDurationMs"`
}

// CheckBudgetLimits evaluates the session's usage against its caps.
func (s *Service) CheckBudgetLimits(ctx context.Context, sessionID string) (*BudgetStatus, error) {
	var budget model.ConversationBudget
	err := s.db.WithContext(ctx).First(&budget, "session_id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &BudgetStatus{
			TokensWithin: true, CostWithin: true, DurationWithin: true,
			WithinLimits: true,
		}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load budget for session %s", sessionID)
	}

	status := &BudgetStatus{
		HasBudget:      true,
		TokensWithin:   budget.MaxTokens == nil || budget.UsedTokens < *budget.MaxTokens,
		CostWithin:     budget.MaxCostUSD == nil || budget.UsedCostUSD < *budget.MaxCostUSD,
		DurationWithin: budget.MaxDurationMs == nil || budget.UsedDurationMs < *budget.MaxDurationMs,
		UsedTokens:     budget.UsedTokens,
		UsedCostUSD:    budget.UsedCostUSD,
		UsedDurationMs: budget.UsedDurationMs,
	}
	status.WithinLimits = status.TokensWithin && status.CostWithin && status.DurationWithin
	return status, nil
}

// SessionSummary is one row of a session listing.
type SessionSummary struct {
	Session      model.Session `json:"session"`
	MessageCount int64         `json:"messageCount"`
	FileCount    int64         `json:"fileCount"`
	TotalTokens  int           `json:"totalTokens"`
	TotalCostUSD float64       `json:"totalCostUsd"`
	LastActivity *int64        `json:"lastActivity,omitempty"`
}

// SessionPage is a paginated session listing.
type SessionPage struct {
	Sessions   []SessionSummary `json:"sessions"`
	TotalCount int64            `json:"totalCount"`
	HasMore    bool             `json:"hasMore"`
}

// ListSessions returns paginated session summaries, newest activity first.
// An empty status lists everything except deleted sessions.
func (s *Service) ListSessions(ctx context.Context, status string, limit, offset int) (*SessionPage, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	query := s.db.WithContext(ctx).Model(&model.Session{})
	if status != "" {
		query = query.Where("status = ?", status)
	} else {
		query = query.Where("status <> ?", model.SessionStatusDeleted)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, errors.Wrap(err, "count sessions")
	}

	var sessions []model.Session
	err := query.
		Order("updated_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&sessions).Error
	if err != nil {
		return nil, errors.Wrap(err, "list sessions")
	}

	page := &SessionPage{
		TotalCount: total,
		HasMore:    int64(offset+len(sessions)) < total,
		Sessions:   make([]SessionSummary, 0, len(sessions)),
	}
	for _, session := range sessions {
		summary := SessionSummary{Session: session, LastActivity: session.LastMessageAt}

		err := s.db.WithContext(ctx).Model(&model.ConversationMessage{}).
			Where("session_id = ?", session.ID).
			Count(&summary.MessageCount).Error
		if err != nil {
			return nil, errors.Wrap(err, "count messages")
		}
		err = s.db.WithContext(ctx).Model(&model.ConversationFile{}).
			Where("session_id = ?", session.ID).
			Count(&summary.FileCount).Error
		if err != nil {
			return nil, errors.Wrap(err, "count files")
		}

		var budget model.ConversationBudget
		err = s.db.WithContext(ctx).First(&budget, "session_id = ?", session.ID).Error
		if err == nil {
			summary.TotalTokens = budget.UsedTokens
			summary.TotalCostUSD = budget.UsedCostUSD
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrap(err, "load budget")
		}

		page.Sessions = append(page.Sessions, summary)
	}
	return page, nil
}

// UpdateSessionStatus transitions a session. Marking a session deleted also
// removes its messages, files, and budget; the session row stays as a
// tombstone.
func (s *Service) UpdateSessionStatus(ctx context.Context, id, status string) error {
	switch status {
	case model.SessionStatusActive, model.SessionStatusArchived, model.SessionStatusDeleted:
	default:
		return errors.Errorf("invalid session status %q", status)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session model.Session
		if err := tx.First(&session, "id = ?", id).Error; err != nil {
			return errors.Wrapf(err, "load session %s", id)
		}

		err := tx.Model(&session).Updates(map[string]any{
			"status":     status,
			"updated_at": helper.GetTimestamp(),
		}).Error
		if err != nil {
			return errors.Wrap(err, "update session status")
		}

		if status != model.SessionStatusDeleted {
			return nil
		}
		for _, target := range []any{
			&model.ConversationMessage{},
			&model.ConversationFile{},
			&model.ConversationBudget{},
		} {
			if err := tx.Where("session_id = ?", id).Delete(target).Error; err != nil {
				return errors.Wrap(err, "cascade delete session data")
			}
		}
		return nil
	})
}
