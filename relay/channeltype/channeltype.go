// Package channeltype enumerates the upstream provider kinds the gateway can
// route to, together with their wire defaults.
package channeltype

import "strings"

// Kind identifies one upstream provider family.
type Kind string

const (
	Azure      Kind = "azure"
	OpenAI     Kind = "openai"
	Google     Kind = "gemini"
	Grok       Kind = "grok"
	Bailian    Kind = "bailian"
	Compatible Kind = "openai-compatible"
)

// Priority is the fixed selection order used when a request does not name a
// provider: the first configured kind in this list wins.
var Priority = []Kind{Azure, OpenAI, Google, Grok, Bailian, Compatible}

// Compatible endpoint subtypes. The subtype changes the authentication
// requirement: Ollama accepts a placeholder key, OpenRouter requires a real
// one.
const (
	SubtypeOllama     = "ollama"
	SubtypeOpenRouter = "openrouter"
)

// Bailian DashScope compatible-mode subtypes, each with its own model set and
// API key environment variable.
const (
	SubtypeBailian    = "bailian"
	SubtypeQwen3Coder = "qwen3-coder"
	SubtypeDeepSeekR1 = "deepseek-r1"
)

// Default base URLs per kind. Azure and Compatible have no global default:
// the base URL is derived from the resource name or supplied by the user.
var defaultBaseURLs = map[Kind]string{
	OpenAI:  "https://api.openai.com/v1",
	Google:  "https://generativelanguage.googleapis.com/v1beta",
	Grok:    "https://api.x.ai/v1",
	Bailian: "https://dashscope.aliyuncs.com/compatible-mode/v1",
}

// DefaultBaseURL returns the builtin base URL for a kind, or empty when the
// kind requires explicit configuration.
func DefaultBaseURL(kind Kind) string {
	return defaultBaseURLs[kind]
}

// DefaultModel returns the hardcoded fallback model used when neither the
// request nor the credential names one.
func DefaultModel(kind Kind) string {
	switch kind {
	case Azure, OpenAI:
		return "gpt-5"
	case Google:
		return "gemini-2.5-pro"
	case Grok:
		return "grok-4"
	case Bailian:
		return "qwen-max"
	case Compatible:
		return "llama3.2"
	default:
		return ""
	}
}

// DefaultEmbeddingModel returns the embedding model used when none is
// configured for the kind.
func DefaultEmbeddingModel(kind Kind) string {
	switch kind {
	case Azure, OpenAI, Compatible:
		return "text-embedding-3-small"
	case Google:
		return "text-embedding-004"
	case Bailian:
		return "text-embedding-v1"
	default:
		return ""
	}
}

// Parse maps a user-supplied provider name to a Kind. Recognizes the "google"
// alias for the Gemini channel. Returns false for unknown names.
func Parse(name string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case string(Azure):
		return Azure, true
	case string(OpenAI):
		return OpenAI, true
	case string(Google), "google":
		return Google, true
	case string(Grok), "xai":
		return Grok, true
	case string(Bailian), "dashscope", SubtypeQwen3Coder, SubtypeDeepSeekR1:
		return Bailian, true
	case string(Compatible), "ollama", "openrouter":
		return Compatible, true
	default:
		return "", false
	}
}

// BailianSubtypeOf returns the DashScope subtype a provider name selects, or
// empty when the name does not refine the channel.
func BailianSubtypeOf(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case SubtypeQwen3Coder:
		return SubtypeQwen3Coder
	case SubtypeDeepSeekR1:
		return SubtypeDeepSeekR1
	default:
		return ""
	}
}

// All returns every routable kind in priority order.
func All() []Kind {
	out := make([]Kind, len(Priority))
	copy(out, Priority)
	return out
}
