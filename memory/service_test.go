package memory

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/blackjuly/ultra-mcp/model"
)

// charCounter makes token math deterministic: one token per byte.
type charCounter struct{}

func (charCounter) CountText(text, _ string) TokenCount {
	return TokenCount{Tokens: len(text)}
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := model.OpenDB(filepath.Join(t.TempDir(), "memory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = model.CloseDB(db) })
	return db
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	return New(openTestDB(t), WithTokenCounter(charCounter{}))
}

func TestGetOrCreateSession(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.GetOrCreateSession(ctx, "", "design review")
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Equal(t, model.SessionStatusActive, created.Status)
	require.Equal(t, "design review", *created.Name)

	again, err := svc.GetOrCreateSession(ctx, created.ID, "")
	require.NoError(t, err)
	require.Equal(t, created.ID, again.ID)
	require.Equal(t, "design review", *again.Name)

	named, err := svc.GetOrCreateSession(ctx, "explicit-id", "")
	require.NoError(t, err)
	require.Equal(t, "explicit-id", named.ID)
}

func TestAddMessageDenseIndexing(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	session, err := svc.GetOrCreateSession(ctx, "", "")
	require.NoError(t, err)

	for i, content := range []string{"a", "b", "c"} {
		msg, err := svc.AddMessage(ctx, session.ID, model.RoleUser, content, AddMessageOptions{})
		require.NoError(t, err)
		require.Equal(t, i, msg.MessageIndex)
	}

	refreshed, err := svc.GetOrCreateSession(ctx, session.ID, "")
	require.NoError(t, err)
	require.NotNil(t, refreshed.LastMessageAt)
}

func TestAddMessageConcurrent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	session, err := svc.GetOrCreateSession(ctx, "", "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, content := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func(content string) {
			defer wg.Done()
			_, err := svc.AddMessage(ctx, session.ID, model.RoleUser, content, AddMessageOptions{})
			require.NoError(t, err)
		}(content)
	}
	wg.Wait()

	view, err := svc.GetConversationContext(ctx, session.ID, ContextOptions{})
	require.NoError(t, err)
	require.Len(t, view.Messages, 3)
	indices := map[int]bool{}
	for _, msg := range view.Messages {
		indices[msg.MessageIndex] = true
	}
	require.Equal(t, map[int]bool{0: true, 1: true, 2: true}, indices)
}

func TestAddMessageRejectsUnknownRole(t *testing.T) {
	svc := newTestService(t)
	session, err := svc.GetOrCreateSession(context.Background(), "", "")
	require.NoError(t, err)

	_, err = svc.AddMessage(context.Background(), session.ID, "narrator", "hi", AddMessageOptions{})
	require.Error(t, err)
}

func TestAddFilesDeduplication(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	session, err := svc.GetOrCreateSession(ctx, "", "")
	require.NoError(t, err)

	result, err := svc.AddFiles(ctx, session.ID, []FileInput{
		{Path: "main.go", Content: "package main"},
		{Path: "util.go", Content: "package util"},
	})
	require.NoError(t, err)
	require.Equal(t, 2, result.Added)
	require.Equal(t, 0, result.Updated)

	// Same content under a different path is still a duplicate.
	result, err = svc.AddFiles(ctx, session.ID, []FileInput{
		{Path: "copy-of-main.go", Content: "package main"},
	})
	require.NoError(t, err)
	require.Equal(t, 0, result.Added)
	require.Equal(t, 1, result.Updated)

	view, err := svc.GetConversationContext(ctx, session.ID, ContextOptions{IncludeFiles: true})
	require.NoError(t, err)
	require.Len(t, view.Files, 2)
	for _, file := range view.Files {
		if file.FilePath == "main.go" {
			require.Equal(t, 2, file.AccessCount)
		}
	}
}

func TestGetConversationContextUnbounded(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	session, err := svc.GetOrCreateSession(ctx, "", "")
	require.NoError(t, err)

	_, err = svc.AddMessage(ctx, session.ID, model.RoleUser, "hello", AddMessageOptions{})
	require.NoError(t, err)
	_, err = svc.AddMessage(ctx, session.ID, model.RoleAssistant, "world", AddMessageOptions{})
	require.NoError(t, err)

	view, err := svc.GetConversationContext(ctx, session.ID, ContextOptions{Model: "gpt-4o"})
	require.NoError(t, err)
	require.Len(t, view.Messages, 2)
	require.False(t, view.Pruned)
	// 2 x (5 chars + 3 overhead) + 3 priming.
	require.Equal(t, 19, view.TotalTokens)
}

func TestContextPruning(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	session, err := svc.GetOrCreateSession(ctx, "", "")
	require.NoError(t, err)

	contents := []string{
		"0123456789012345678901234567890123456789", // 40 chars, cost 43
		"0123456789", // 10 chars, cost 13
		"9876543210", // 10 chars, cost 13
	}
	for _, content := range contents {
		_, err := svc.AddMessage(ctx, session.ID, model.RoleUser, content, AddMessageOptions{})
		require.NoError(t, err)
	}
	_, err = svc.AddFiles(ctx, session.ID, []FileInput{
		{Path: "notes.txt", Content: "012345678901234567890123456789"}, // 30 chars
	})
	require.NoError(t, err)

	maxTokens := 60 // message budget 42, file budget 18
	view, err := svc.GetConversationContext(ctx, session.ID, ContextOptions{
		MaxTokens:    &maxTokens,
		IncludeFiles: true,
	})
	require.NoError(t, err)
	require.True(t, view.Pruned)

	// The two newest messages fit (13+13 <= 39); the oldest does not.
	require.Len(t, view.Messages, 2)
	require.Equal(t, 1, view.Messages[0].MessageIndex, "chronological order preserved")
	require.Equal(t, 2, view.Messages[1].MessageIndex)

	// The 30-token file exceeds the 18-token file budget.
	require.Empty(t, view.Files)
	require.Equal(t, 29, view.TotalTokens)
}

func TestContextZeroBudget(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	session, err := svc.GetOrCreateSession(ctx, "", "")
	require.NoError(t, err)
	_, err = svc.AddMessage(ctx, session.ID, model.RoleUser, "hello", AddMessageOptions{})
	require.NoError(t, err)
	_, err = svc.AddFiles(ctx, session.ID, []FileInput{{Path: "a.txt", Content: "abc"}})
	require.NoError(t, err)

	zero := 0
	view, err := svc.GetConversationContext(ctx, session.ID, ContextOptions{
		MaxTokens:    &zero,
		IncludeFiles: true,
	})
	require.NoError(t, err)
	require.Empty(t, view.Messages)
	require.Empty(t, view.Files)
	require.Zero(t, view.TotalTokens)
	require.True(t, view.Pruned)
}

func TestBudgetLifecycle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	session, err := svc.GetOrCreateSession(ctx, "", "")
	require.NoError(t, err)

	// No budget row: everything is within limits.
	status, err := svc.CheckBudgetLimits(ctx, session.ID)
	require.NoError(t, err)
	require.False(t, status.HasBudget)
	require.True(t, status.WithinLimits)

	maxTokens := 100
	maxCost := 0.5
	require.NoError(t, svc.SetBudget(ctx, session.ID, &maxTokens, &maxCost, nil))

	svc.UpdateBudgetUsage(ctx, session.ID, 60, 0.1, 1500)
	svc.UpdateBudgetUsage(ctx, session.ID, 60, 0.1, 1500)

	status, err = svc.CheckBudgetLimits(ctx, session.ID)
	require.NoError(t, err)
	require.True(t, status.HasBudget)
	require.False(t, status.TokensWithin, "120 used of 100")
	require.True(t, status.CostWithin, "0.2 used of 0.5")
	require.True(t, status.DurationWithin, "no duration cap")
	require.False(t, status.WithinLimits)
	require.Equal(t, 120, status.UsedTokens)

	// Re-setting replaces the caps on the same row.
	newMax := 500
	require.NoError(t, svc.SetBudget(ctx, session.ID, &newMax, nil, nil))
	status, err = svc.CheckBudgetLimits(ctx, session.ID)
	require.NoError(t, err)
	require.True(t, status.WithinLimits)
	require.Equal(t, 120, status.UsedTokens, "usage survives cap changes")
}

func TestUpdateBudgetUsageWithoutBudgetIsSilent(t *testing.T) {
	svc := newTestService(t)
	session, err := svc.GetOrCreateSession(context.Background(), "", "")
	require.NoError(t, err)

	// Must not panic or error.
	svc.UpdateBudgetUsage(context.Background(), session.ID, 10, 0.01, 100)
}

func TestListSessions(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	var ids []string
	for range 3 {
		session, err := svc.GetOrCreateSession(ctx, "", "")
		require.NoError(t, err)
		ids = append(ids, session.ID)
		_, err = svc.AddMessage(ctx, session.ID, model.RoleUser, "hi", AddMessageOptions{})
		require.NoError(t, err)
	}
	require.NoError(t, svc.UpdateSessionStatus(ctx, ids[0], model.SessionStatusDeleted))

	page, err := svc.ListSessions(ctx, "", 10, 0)
	require.NoError(t, err)
	require.Equal(t, int64(2), page.TotalCount, "deleted sessions excluded by default")
	require.False(t, page.HasMore)
	for _, summary := range page.Sessions {
		require.Equal(t, int64(1), summary.MessageCount)
		require.NotNil(t, summary.LastActivity)
	}

	page, err = svc.ListSessions(ctx, model.SessionStatusActive, 1, 0)
	require.NoError(t, err)
	require.Len(t, page.Sessions, 1)
	require.Equal(t, int64(2), page.TotalCount)
	require.True(t, page.HasMore)

	page, err = svc.ListSessions(ctx, model.SessionStatusDeleted, 10, 0)
	require.NoError(t, err)
	require.Equal(t, int64(1), page.TotalCount)
}

func TestDeleteCascades(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	db := svc.db

	session, err := svc.GetOrCreateSession(ctx, "", "")
	require.NoError(t, err)
	_, err = svc.AddMessage(ctx, session.ID, model.RoleUser, "hi", AddMessageOptions{})
	require.NoError(t, err)
	_, err = svc.AddFiles(ctx, session.ID, []FileInput{{Path: "a.txt", Content: "a"}})
	require.NoError(t, err)
	maxTokens := 10
	require.NoError(t, svc.SetBudget(ctx, session.ID, &maxTokens, nil, nil))

	require.NoError(t, svc.UpdateSessionStatus(ctx, session.ID, model.SessionStatusDeleted))

	var count int64
	require.NoError(t, db.Model(&model.ConversationMessage{}).Where("session_id = ?", session.ID).Count(&count).Error)
	require.Zero(t, count)
	require.NoError(t, db.Model(&model.ConversationFile{}).Where("session_id = ?", session.ID).Count(&count).Error)
	require.Zero(t, count)
	require.NoError(t, db.Model(&model.ConversationBudget{}).Where("session_id = ?", session.ID).Count(&count).Error)
	require.Zero(t, count)

	// Tombstone survives.
	var tombstone model.Session
	require.NoError(t, db.First(&tombstone, "id = ?", session.ID).Error)
	require.Equal(t, model.SessionStatusDeleted, tombstone.Status)
}

func TestEstimateFallback(t *testing.T) {
	require.Equal(t, 0, estimateTokens(""))
	require.Equal(t, 1, estimateTokens("abc"))
	require.Equal(t, 1, estimateTokens("abcd"))
	require.Equal(t, 2, estimateTokens("abcde"))
}

func TestEncodingSelection(t *testing.T) {
	require.Equal(t, encodingCL100K, encodingForModel("gpt-4o"))
	require.Equal(t, encodingCL100K, encodingForModel("gpt-3.5-turbo"))
	require.Equal(t, encodingP50K, encodingForModel("text-davinci-003"))
	require.Equal(t, encodingP50K, encodingForModel("text-curie-001"))
	require.Equal(t, encodingCL100K, encodingForModel("gemini-2.5-pro"))
	require.Equal(t, encodingCL100K, encodingForModel("qwen-max"))
}
