package policy

import "strings"

// Provider identifiers used by the inference table. These match the
// provider names used in policy documents.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
	ProviderXAI       = "xai"
	ProviderMistral   = "mistral"
	ProviderOllama    = "ollama"
)

// inferenceRule maps a model-ID marker to a provider. Rules are evaluated
// in order; the first match wins.
type inferenceRule struct {
	match    func(id string) bool
	provider string
}

// inferenceRules is the fixed heuristic table for guessing the provider
// of a bare model ID. Kept as data so it stays inspectable and testable
// rather than buried in string logic.
var inferenceRules = []inferenceRule{
	// Tagged IDs like "llama3.1:8b" are local registry references.
	{func(id string) bool { return strings.Contains(id, ":") }, ProviderOllama},
	{hasAnyPrefix("gpt-", "o1", "o3", "o4", "chatgpt", "davinci", "text-embedding"), ProviderOpenAI},
	{func(id string) bool { return strings.Contains(id, "openai") }, ProviderOpenAI},
	{hasAnyPrefix("claude"), ProviderAnthropic},
	{func(id string) bool { return strings.Contains(id, "anthropic") }, ProviderAnthropic},
	{hasAnyPrefix("gemini", "gemma"), ProviderGoogle},
	{hasAnyPrefix("grok"), ProviderXAI},
	{hasAnyPrefix("mistral", "mixtral", "codestral"), ProviderMistral},
	{hasAnyPrefix("llama", "qwen", "phi", "deepseek"), ProviderOllama},
}

func hasAnyPrefix(prefixes ...string) func(string) bool {
	return func(id string) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(id, p) {
				return true
			}
		}
		return false
	}
}

// InferProvider guesses the provider of a bare model ID using the fixed
// rule table. Returns "" when no rule matches.
func InferProvider(modelID string) string {
	id := strings.ToLower(strings.TrimSpace(modelID))
	if id == "" {
		return ""
	}
	for _, rule := range inferenceRules {
		if rule.match(id) {
			return rule.provider
		}
	}
	return ""
}
