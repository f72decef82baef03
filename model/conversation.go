package model

// Session status values. Transitions are explicit; deletion cascades to the
// session's messages, files, and budget.
const (
	SessionStatusActive   = "active"
	SessionStatusArchived = "archived"
	SessionStatusDeleted  = "deleted"
)

// Conversation message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// Session is a named container for an ordered sequence of messages and a bag
// of deduplicated file attachments. Created lazily on first reference.
type Session struct {
	ID            string  `json:"id" gorm:"primaryKey;size:36"`
	Name          *string `json:"name,omitempty" gorm:"size:255"`
	Status        string  `json:"status" gorm:"size:16;index;default:active"`
	CreatedAt     int64   `json:"createdAt" gorm:"bigint"`
	UpdatedAt     int64   `json:"updatedAt" gorm:"bigint"`
	LastMessageAt *int64  `json:"lastMessageAt,omitempty" gorm:"bigint"`
	Metadata      *string `json:"metadata,omitempty"`
}

func (Session) TableName() string { return "sessions" }

// ConversationMessage is one turn inside a session. (SessionID, MessageIndex)
// is unique and MessageIndex is dense-monotonic from 0 per session; index
// selection and insert share a transaction so concurrency cannot violate it.
type ConversationMessage struct {
	ID              string  `json:"id" gorm:"primaryKey;size:36"`
	SessionID       string  `json:"sessionId" gorm:"size:36;uniqueIndex:idx_messages_session_index;index"`
	MessageIndex    int     `json:"messageIndex" gorm:"uniqueIndex:idx_messages_session_index"`
	Role            string  `json:"role" gorm:"size:16"`
	Content         string  `json:"content"`
	ToolName        *string `json:"toolName,omitempty" gorm:"size:64"`
	ParentMessageID *string `json:"parentMessageId,omitempty" gorm:"size:36"`
	Timestamp       int64   `json:"timestamp" gorm:"bigint"`
	Metadata        *string `json:"metadata,omitempty"`
}

func (ConversationMessage) TableName() string { return "conversation_messages" }

// ConversationFile is a deduplicated attachment. (SessionID, ContentHash) is
// unique: re-adding identical content bumps AccessCount instead of inserting.
type ConversationFile struct {
	ID             string `json:"id" gorm:"primaryKey;size:36"`
	SessionID      string `json:"sessionId" gorm:"size:36;uniqueIndex:idx_files_session_hash;index"`
	FilePath       string `json:"filePath" gorm:"size:1024"`
	FileContent    string `json:"fileContent"`
	ContentHash    string `json:"contentHash" gorm:"size:64;uniqueIndex:idx_files_session_hash"`
	AddedAt        int64  `json:"addedAt" gorm:"bigint"`
	LastAccessedAt int64  `json:"lastAccessedAt" gorm:"bigint;index"`
	AccessCount    int    `json:"accessCount"`
	IsRelevant     bool   `json:"isRelevant" gorm:"default:true"`
}

func (ConversationFile) TableName() string { return "conversation_files" }

// ConversationBudget is the at-most-one per-session cap row. Used counters are
// monotonically non-decreasing and updated atomically.
type ConversationBudget struct {
	SessionID      string   `json:"sessionId" gorm:"primaryKey;size:36"`
	MaxTokens      *int     `json:"maxTokens,omitempty"`
	MaxCostUSD     *float64 `json:"maxCostUsd,omitempty"`
	MaxDurationMs  *int64   `json:"maxDurationMs,omitempty" gorm:"bigint"`
	UsedTokens     int      `json:"usedTokens"`
	UsedCostUSD    float64  `json:"usedCostUsd"`
	UsedDurationMs int64    `json:"usedDurationMs" gorm:"bigint"`
}

func (ConversationBudget) TableName() string { return "conversation_budgets" }
