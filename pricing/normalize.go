package pricing

import "strings"

// modelAliases maps common shorthand and dated identifiers to the catalog
// names LiteLLM uses.
var modelAliases = map[string]string{
	"gemini-pro":                 "gemini-1.5-pro",
	"gemini-flash":               "gemini-1.5-flash",
	"gpt-4-turbo-preview":        "gpt-4-turbo",
	"gpt-4o-latest":              "gpt-4o",
	"claude-3-5-sonnet-20241022": "claude-3.5-sonnet",
	"claude-3-5-haiku-20241022":  "claude-3.5-haiku",
	"claude-3-opus-20240229":     "claude-3-opus",
	"o1-preview":                 "o1",
	"deepseek-chat":              "deepseek/deepseek-chat",
	"deepseek-reasoner":          "deepseek/deepseek-reasoner",
}

// azureDeploymentSubstrings recognizes known model families inside arbitrary
// Azure deployment names, longest/most specific first.
var azureDeploymentSubstrings = []string{
	"gpt-5-mini", "gpt-5-nano", "gpt-5",
	"gpt-4o-mini", "gpt-4o", "gpt-4.1", "gpt-4-turbo", "gpt-4", "gpt-35-turbo", "gpt-3.5-turbo",
	"o4-mini", "o3-mini", "o3", "o1-mini", "o1",
}

// azureSubstitutions fixes Azure spellings that differ from the catalog.
var azureSubstitutions = map[string]string{
	"gpt-35-turbo": "gpt-3.5-turbo",
}

// NormalizeModelName maps aliases and Azure deployment names to canonical
// catalog names. Unknown names pass through lowercased.
func NormalizeModelName(model string) string {
	name := strings.ToLower(strings.TrimSpace(model))
	if name == "" {
		return name
	}
	if canonical, ok := modelAliases[name]; ok {
		return canonical
	}
	// Azure deployment names commonly embed the model family, e.g.
	// "my-prod-gpt-4o-deployment".
	for _, family := range azureDeploymentSubstrings {
		if strings.Contains(name, family) {
			if fixed, ok := azureSubstitutions[family]; ok {
				return fixed
			}
			return family
		}
	}
	return name
}

// Lookup finds the pricing entry for a model: exact normalized match first,
// then case-insensitive substring inclusion in either direction.
func (c Catalog) Lookup(model string) (ModelPricing, bool) {
	name := NormalizeModelName(model)
	if name == "" {
		return ModelPricing{}, false
	}
	if entry, ok := c[name]; ok {
		return entry, true
	}

	// Substring fallback. Map order is random, so rank deterministically:
	// catalog names containing the query beat the reverse direction (they
	// are at least as specific), then smallest length difference, then
	// lexicographic.
	bestName := ""
	bestRank := -1
	for catalogName := range c {
		lower := strings.ToLower(catalogName)
		var rank int
		switch {
		case strings.Contains(lower, name):
			rank = 0
		case strings.Contains(name, lower):
			rank = 1
		default:
			continue
		}
		if bestName == "" || betterMatch(name, catalogName, rank, bestName, bestRank) {
			bestName, bestRank = catalogName, rank
		}
	}
	if bestName == "" {
		return ModelPricing{}, false
	}
	return c[bestName], true
}

func betterMatch(query, candidate string, rank int, current string, currentRank int) bool {
	if rank != currentRank {
		return rank < currentRank
	}
	cd := lengthDelta(query, candidate)
	cu := lengthDelta(query, current)
	if cd != cu {
		return cd < cu
	}
	return candidate < current
}

func lengthDelta(a, b string) int {
	d := len(a) - len(b)
	if d < 0 {
		return -d
	}
	return d
}
