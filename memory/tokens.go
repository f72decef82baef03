// Package memory persists conversation sessions, ordered messages,
// deduplicated file attachments, and per-session budgets, and assembles
// token-bounded context views over them.
package memory

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/blackjuly/ultra-mcp/model"
)

const (
	encodingCL100K = "cl100k_base"
	encodingP50K   = "p50k_base"

	// perMessageOverhead covers the role/start/end markers around each
	// message in a chat sequence.
	perMessageOverhead = 3
	// assistantPriming is the fixed tail reserved for the assistant reply.
	assistantPriming = 3
)

// TokenCount is a token total plus whether it came from the char/4 estimate
// instead of a real tokenizer.
type TokenCount struct {
	Tokens      int
	Approximate bool
}

// TokenCounter counts tokens the way the target model's tokenizer would.
type TokenCounter interface {
	CountText(text, modelName string) TokenCount
}

// encodingForModel selects the BPE vocabulary. Gemini has no public
// tokenizer; cl100k_base is the accepted approximation.
func encodingForModel(modelName string) string {
	m := strings.ToLower(modelName)
	switch {
	case strings.HasPrefix(m, "text-davinci"), strings.HasPrefix(m, "text-curie"):
		return encodingP50K
	default:
		return encodingCL100K
	}
}

// BPECounter counts with tiktoken vocabularies, caching one encoder per
// encoding name. Tokenizer initialization failures degrade to the char/4
// estimate; counting never raises.
type BPECounter struct {
	mu       sync.Mutex
	encoders map[string]*tiktoken.Tiktoken
}

func NewBPECounter() *BPECounter {
	return &BPECounter{encoders: make(map[string]*tiktoken.Tiktoken)}
}

func (c *BPECounter) encoder(name string) (*tiktoken.Tiktoken, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if enc, ok := c.encoders[name]; ok {
		return enc, nil
	}
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, err
	}
	c.encoders[name] = enc
	return enc, nil
}

func (c *BPECounter) CountText(text, modelName string) TokenCount {
	enc, err := c.encoder(encodingForModel(modelName))
	if err != nil {
		return TokenCount{Tokens: estimateTokens(text), Approximate: true}
	}
	return TokenCount{Tokens: len(enc.Encode(text, nil, nil))}
}

// CountMessages totals a chat sequence: per-message cost plus the fixed
// assistant priming tail.
func (c *BPECounter) CountMessages(messages []model.ConversationMessage, modelName string) TokenCount {
	return countMessages(c, messages, modelName)
}

func countMessages(counter TokenCounter, messages []model.ConversationMessage, modelName string) TokenCount {
	total := TokenCount{Tokens: assistantPriming}
	for i := range messages {
		count := messageTokens(counter, &messages[i], modelName)
		total.Tokens += count.Tokens
		total.Approximate = total.Approximate || count.Approximate
	}
	return total
}

// messageTokens is the per-message cost used both for totals and for pruning
// decisions: content plus markers plus the tool name when present.
func messageTokens(counter TokenCounter, message *model.ConversationMessage, modelName string) TokenCount {
	count := counter.CountText(message.Content, modelName)
	count.Tokens += perMessageOverhead
	if message.ToolName != nil && *message.ToolName != "" {
		name := counter.CountText(*message.ToolName, modelName)
		count.Tokens += name.Tokens
		count.Approximate = count.Approximate || name.Approximate
	}
	return count
}

// estimateTokens is the tokenizer-free fallback: one token per four
// characters, rounded up.
func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}
