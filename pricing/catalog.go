// Package pricing resolves per-model unit costs from the LiteLLM catalog with
// a two-layer (memory + disk) cache and tiered cost math.
package pricing

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/Laisky/errors/v2"
)

// TierThreshold is the token count above which the above-threshold rate
// applies, when the catalog entry carries one.
const TierThreshold = 200_000

// ModelPricing is one retained catalog entry. An entry survives ingest only
// when it has both base token prices or explicit image pricing.
type ModelPricing struct {
	InputCostPerToken           float64  `json:"input_cost_per_token"`
	OutputCostPerToken          float64  `json:"output_cost_per_token"`
	InputCostPerTokenAbove200k  *float64 `json:"input_cost_per_token_above_200k_tokens,omitempty"`
	OutputCostPerTokenAbove200k *float64 `json:"output_cost_per_token_above_200k_tokens,omitempty"`
	InputCostPerImage           *float64 `json:"input_cost_per_image,omitempty"`
	OutputCostPerImage          *float64 `json:"output_cost_per_image,omitempty"`
	MaxInputTokens              *int     `json:"max_input_tokens,omitempty"`
	MaxOutputTokens             *int     `json:"max_output_tokens,omitempty"`
	Mode                        string   `json:"mode,omitempty"`
	SupportsVision              bool     `json:"supports_vision,omitempty"`
	SupportsFunctionCalling     bool     `json:"supports_function_calling,omitempty"`
	SupportsWebSearch           bool     `json:"supports_web_search,omitempty"`
}

// Catalog maps normalized model names to pricing entries.
type Catalog map[string]ModelPricing

// skipNameFragments marks entry names excluded at ingest: non-chat modalities
// and the catalog's own sample entry.
var skipNameFragments = []string{
	"dall-e", "whisper", "tts", "embedding", "moderation",
	"flux", "stable-diffusion", "sample_spec",
}

// flexFloat decodes JSON numbers that may arrive as strings.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return errors.Wrap(err, "unquote numeric string")
		}
		if str == "" {
			return nil
		}
		v, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return errors.Wrapf(err, "parse numeric string %q", str)
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return errors.Wrap(err, "parse number")
	}
	*f = flexFloat(v)
	return nil
}

// rawEntry mirrors the subset of LiteLLM fields the service consumes. Unknown
// fields are ignored so new catalog columns never break ingest.
type rawEntry struct {
	InputCostPerToken           *flexFloat `json:"input_cost_per_token"`
	OutputCostPerToken          *flexFloat `json:"output_cost_per_token"`
	InputCostPerTokenAbove200k  *flexFloat `json:"input_cost_per_token_above_200k_tokens"`
	OutputCostPerTokenAbove200k *flexFloat `json:"output_cost_per_token_above_200k_tokens"`
	InputCostPerImage           *flexFloat `json:"input_cost_per_image"`
	OutputCostPerImage          *flexFloat `json:"output_cost_per_image"`
	MaxInputTokens              *flexFloat `json:"max_input_tokens"`
	MaxOutputTokens             *flexFloat `json:"max_output_tokens"`
	Mode                        string     `json:"mode"`
	SupportsVision              bool       `json:"supports_vision"`
	SupportsFunctionCalling     bool       `json:"supports_function_calling"`
	SupportsWebSearch           bool       `json:"supports_web_search"`
}

// ParseCatalog ingests the raw LiteLLM document, applying the skip list and
// the retention rule.
func ParseCatalog(raw []byte) (Catalog, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "parse pricing document")
	}

	catalog := make(Catalog, len(doc))
	for name, rawValue := range doc {
		if shouldSkipEntry(name) {
			continue
		}
		var entry rawEntry
		if err := json.Unmarshal(rawValue, &entry); err != nil {
			// Malformed single entries never poison the whole catalog.
			continue
		}

		hasTokenPrices := entry.InputCostPerToken != nil && entry.OutputCostPerToken != nil
		hasImagePrices := entry.InputCostPerImage != nil || entry.OutputCostPerImage != nil
		if !hasTokenPrices && !hasImagePrices {
			continue
		}

		mp := ModelPricing{
			Mode:                    entry.Mode,
			SupportsVision:          entry.SupportsVision,
			SupportsFunctionCalling: entry.SupportsFunctionCalling,
			SupportsWebSearch:       entry.SupportsWebSearch,
		}
		if entry.InputCostPerToken != nil {
			mp.InputCostPerToken = float64(*entry.InputCostPerToken)
		}
		if entry.OutputCostPerToken != nil {
			mp.OutputCostPerToken = float64(*entry.OutputCostPerToken)
		}
		mp.InputCostPerTokenAbove200k = floatPtr(entry.InputCostPerTokenAbove200k)
		mp.OutputCostPerTokenAbove200k = floatPtr(entry.OutputCostPerTokenAbove200k)
		mp.InputCostPerImage = floatPtr(entry.InputCostPerImage)
		mp.OutputCostPerImage = floatPtr(entry.OutputCostPerImage)
		mp.MaxInputTokens = intPtr(entry.MaxInputTokens)
		mp.MaxOutputTokens = intPtr(entry.MaxOutputTokens)

		catalog[name] = mp
	}
	return catalog, nil
}

func shouldSkipEntry(name string) bool {
	lower := strings.ToLower(name)
	for _, fragment := range skipNameFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

func floatPtr(f *flexFloat) *float64 {
	if f == nil {
		return nil
	}
	v := float64(*f)
	return &v
}

func intPtr(f *flexFloat) *int {
	if f == nil {
		return nil
	}
	v := int(*f)
	return &v
}
