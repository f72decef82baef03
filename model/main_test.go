package model

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenDBCreatesDirectory(t *testing.T) {
	base := t.TempDir()
	path := filepath.Join(base, "nested", "ultra-mcp.db")

	db, err := OpenDB(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = CloseDB(db) })

	for _, table := range []string{
		"requests", "sessions", "conversation_messages",
		"conversation_files", "conversation_budgets",
	} {
		require.True(t, db.Migrator().HasTable(table), "missing table %s", table)
	}
}

func TestUniqueMessageIndexConstraint(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = CloseDB(db) })

	require.NoError(t, db.Create(&Session{ID: "s1", Status: SessionStatusActive}).Error)
	require.NoError(t, db.Create(&ConversationMessage{
		ID: "m1", SessionID: "s1", MessageIndex: 0, Role: RoleUser, Content: "a",
	}).Error)
	err = db.Create(&ConversationMessage{
		ID: "m2", SessionID: "s1", MessageIndex: 0, Role: RoleUser, Content: "b",
	}).Error
	require.Error(t, err, "duplicate (session, index) must be rejected by the unique index")
}

func TestUniqueFileHashConstraint(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = CloseDB(db) })

	file := ConversationFile{
		ID: "f1", SessionID: "s1", FilePath: "/x.ts",
		FileContent: "HELLO", ContentHash: "abc", AccessCount: 1,
	}
	require.NoError(t, db.Create(&file).Error)

	dup := file
	dup.ID = "f2"
	require.Error(t, db.Create(&dup).Error,
		"duplicate (session, hash) must be rejected by the unique index")

	other := file
	other.ID = "f3"
	other.SessionID = "s2"
	require.NoError(t, db.Create(&other).Error,
		"same hash under another session is a distinct row")
}

func TestRequestStats(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = CloseDB(db) })

	tokens := 150
	cost := 0.0075
	rows := []Request{
		{ID: "r1", Status: RequestStatusSuccess, Provider: "openai", Model: "gpt-4o",
			StartedAt: 1, TotalTokens: &tokens, CostUSD: &cost},
		{ID: "r2", Status: RequestStatusError, Provider: "openai", Model: "gpt-4o", StartedAt: 2},
		{ID: "r3", Status: RequestStatusPending, Provider: "gemini", Model: "gemini-2.5-pro", StartedAt: 3},
	}
	for i := range rows {
		require.NoError(t, db.Create(&rows[i]).Error)
	}

	stats, err := GetRequestStats(db)
	require.NoError(t, err)
	require.EqualValues(t, 3, stats.TotalRequests)
	require.EqualValues(t, 1, stats.SuccessRequests)
	require.EqualValues(t, 1, stats.ErrorRequests)
	require.EqualValues(t, 1, stats.PendingRequests)
	require.EqualValues(t, 150, stats.TotalTokens)
	require.InDelta(t, 0.0075, stats.TotalCostUSD, 1e-9)

	recent, err := GetRecentRequests(db, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, "r3", recent[0].ID)
	require.Equal(t, "r2", recent[1].ID)
}
