package pricing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCatalogFiltersModalities(t *testing.T) {
	raw := []byte(`{
		"gpt-4o": {"input_cost_per_token": 0.0000025, "output_cost_per_token": 0.00001},
		"dall-e-3": {"input_cost_per_token": 0.01, "output_cost_per_token": 0.01},
		"whisper-1": {"input_cost_per_token": 0.001, "output_cost_per_token": 0.001},
		"tts-1": {"input_cost_per_token": 0.001, "output_cost_per_token": 0.001},
		"text-embedding-3-small": {"input_cost_per_token": 0.00000002, "output_cost_per_token": 0},
		"text-moderation-latest": {"input_cost_per_token": 0, "output_cost_per_token": 0},
		"flux-pro": {"input_cost_per_token": 0.001, "output_cost_per_token": 0.001},
		"stable-diffusion-xl": {"input_cost_per_token": 0.001, "output_cost_per_token": 0.001},
		"sample_spec": {"input_cost_per_token": 0, "output_cost_per_token": 0}
	}`)

	catalog, err := ParseCatalog(raw)
	require.NoError(t, err)
	require.Len(t, catalog, 1)
	_, ok := catalog["gpt-4o"]
	require.True(t, ok)
}

func TestParseCatalogRetentionRule(t *testing.T) {
	raw := []byte(`{
		"input-only": {"input_cost_per_token": 0.001},
		"output-only": {"output_cost_per_token": 0.001},
		"image-priced": {"input_cost_per_image": 0.02},
		"both": {"input_cost_per_token": 0.001, "output_cost_per_token": 0.002}
	}`)

	catalog, err := ParseCatalog(raw)
	require.NoError(t, err)
	require.Len(t, catalog, 2)
	_, ok := catalog["both"]
	require.True(t, ok)
	_, ok = catalog["image-priced"]
	require.True(t, ok)
}

func TestParseCatalogCoercesStringNumbers(t *testing.T) {
	raw := []byte(`{
		"quirky": {
			"input_cost_per_token": "0.0000025",
			"output_cost_per_token": "1e-5",
			"max_input_tokens": "128000"
		}
	}`)

	catalog, err := ParseCatalog(raw)
	require.NoError(t, err)
	entry, ok := catalog["quirky"]
	require.True(t, ok)
	require.InDelta(t, 0.0000025, entry.InputCostPerToken, 1e-12)
	require.InDelta(t, 0.00001, entry.OutputCostPerToken, 1e-12)
	require.NotNil(t, entry.MaxInputTokens)
	require.Equal(t, 128000, *entry.MaxInputTokens)
}

func TestParseCatalogToleratesUnknownFieldsAndBadEntries(t *testing.T) {
	raw := []byte(`{
		"fine": {"input_cost_per_token": 1, "output_cost_per_token": 1,
			"brand_new_field": {"nested": true}},
		"broken": ["not", "an", "object"]
	}`)

	catalog, err := ParseCatalog(raw)
	require.NoError(t, err)
	require.Len(t, catalog, 1)
}

func TestNormalizeModelName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"gemini-pro", "gemini-1.5-pro"},
		{"claude-3-5-sonnet-20241022", "claude-3.5-sonnet"},
		{"my-prod-gpt-4o-deployment", "gpt-4o"},
		{"azure-gpt-35-turbo-16k", "gpt-3.5-turbo"},
		{"GPT-4O", "gpt-4o"},
		{"unknown-model", "unknown-model"},
		{"", ""},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, NormalizeModelName(tt.in), "input %q", tt.in)
	}
}

func TestCatalogLookupSubstring(t *testing.T) {
	catalog := Catalog{
		"gpt-4o":              {InputCostPerToken: 1},
		"openai/gpt-4o-mini":  {InputCostPerToken: 2},
		"vertex/gemini-pro-x": {InputCostPerToken: 3},
	}

	entry, ok := catalog.Lookup("gpt-4o")
	require.True(t, ok)
	require.Equal(t, 1.0, entry.InputCostPerToken)

	entry, ok = catalog.Lookup("gpt-4o-mini")
	require.True(t, ok)
	require.Equal(t, 2.0, entry.InputCostPerToken)

	_, ok = catalog.Lookup("no-such-model-at-all")
	require.False(t, ok)
}

func TestFormatCost(t *testing.T) {
	tests := []struct {
		cost float64
		want string
	}{
		{0.0000075, "$0.000008"},
		{0.0075, "$0.007500"},
		{0.075, "$0.0750"},
		{1.155, "$1.16"},
		{12.0, "$12.00"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, FormatCost(tt.cost))
	}
}
