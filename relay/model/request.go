// Package model defines the uniform request and response shapes shared by all
// provider adaptors.
package model

// Reasoning effort levels accepted by reasoning-capable upstreams.
const (
	ReasoningEffortLow    = "low"
	ReasoningEffortMedium = "medium"
	ReasoningEffortHigh   = "high"
)

// GenerateRequest is the provider-independent text generation request. Empty
// Provider selects the first configured provider in priority order; empty
// Model falls back to the credential's preferred model, then the adaptor
// default.
type GenerateRequest struct {
	Provider           string   `json:"provider,omitempty"`
	Model              string   `json:"model,omitempty"`
	Prompt             string   `json:"prompt"`
	SystemPrompt       string   `json:"systemPrompt,omitempty"`
	Temperature        *float64 `json:"temperature,omitempty"`
	MaxOutputTokens    *int     `json:"maxOutputTokens,omitempty"`
	ReasoningEffort    string   `json:"reasoningEffort,omitempty"`
	UseSearchGrounding *bool    `json:"useSearchGrounding,omitempty"`
	ToolName           string   `json:"toolName,omitempty"`
}

// Usage carries upstream-reported token counts.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
	TotalTokens  int `json:"totalTokens"`
}

// GenerateResponse is the terminal result of a non-streaming call.
type GenerateResponse struct {
	RequestID    string `json:"requestId"`
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	Text         string `json:"text"`
	FinishReason string `json:"finishReason,omitempty"`
	// Usage is nil when the upstream did not report token counts.
	Usage *Usage `json:"usage,omitempty"`
}

// StreamChunk is one element of a streaming response. Content chunks arrive in
// upstream order; the final chunk may carry Usage and FinishReason when the
// upstream emits them. Err is set at most once, on the last chunk before the
// channel closes.
type StreamChunk struct {
	Content      string `json:"content,omitempty"`
	Usage        *Usage `json:"usage,omitempty"`
	FinishReason string `json:"finishReason,omitempty"`
	Err          error  `json:"-"`
}

// EmbeddingRequest asks for vectors over one or more inputs.
type EmbeddingRequest struct {
	Provider string   `json:"provider,omitempty"`
	Model    string   `json:"model,omitempty"`
	Inputs   []string `json:"inputs"`
}
