// Package providers serves the static catalog of configurable LLM providers
// backing the provider listing endpoint.
package providers

import (
	"sort"
	"strings"
)

// Field describes one credential or connection field a provider needs.
type Field struct {
	Name     string `json:"name"`
	Label    string `json:"label"`
	Secret   bool   `json:"secret"`
	Optional bool   `json:"optional,omitempty"`
}

// Info describes one selectable LLM provider.
type Info struct {
	Name    string   `json:"name"`
	Website string   `json:"website"`
	Fields  []Field  `json:"fields"`
	Models  []string `json:"models"`
}

var apiKeyField = Field{Name: "api_key", Label: "API key", Secret: true}
var baseURLField = Field{Name: "base_url", Label: "Base URL", Optional: true}

// catalog is keyed by the provider id used in configuration. The ids match
// the names the LLM backend accepts.
var catalog = map[string]Info{
	"openai": {
		Name:    "OpenAI",
		Website: "https://platform.openai.com",
		Fields:  []Field{apiKeyField, baseURLField},
		Models:  []string{"gpt-4o", "gpt-4o-mini", "gpt-4.1", "o3-mini"},
	},
	"anthropic": {
		Name:    "Anthropic",
		Website: "https://console.anthropic.com",
		Fields:  []Field{apiKeyField},
		Models:  []string{"claude-sonnet-4-20250514", "claude-3-5-haiku-20241022"},
	},
	"gemini": {
		Name:    "Google Gemini",
		Website: "https://ai.google.dev",
		Fields:  []Field{apiKeyField},
		Models:  []string{"gemini-2.0-flash", "gemini-1.5-pro"},
	},
	"ollama": {
		Name:    "Ollama",
		Website: "https://ollama.com",
		Fields:  []Field{baseURLField},
		Models:  []string{"llama3.1", "qwen2.5", "mistral-nemo"},
	},
	"deepseek": {
		Name:    "DeepSeek",
		Website: "https://platform.deepseek.com",
		Fields:  []Field{apiKeyField},
		Models:  []string{"deepseek-chat", "deepseek-reasoner"},
	},
	"mistral": {
		Name:    "Mistral",
		Website: "https://console.mistral.ai",
		Fields:  []Field{apiKeyField},
		Models:  []string{"mistral-large-latest", "mistral-small-latest"},
	},
	"groq": {
		Name:    "Groq",
		Website: "https://console.groq.com",
		Fields:  []Field{apiKeyField},
		Models:  []string{"llama-3.3-70b-versatile", "mixtral-8x7b-32768"},
	},
	"llamacpp": {
		Name:    "llama.cpp",
		Website: "https://github.com/ggml-org/llama.cpp",
		Fields:  []Field{baseURLField},
		Models:  []string{},
	},
	"llamafile": {
		Name:    "Llamafile",
		Website: "https://github.com/Mozilla-Ocho/llamafile",
		Fields:  []Field{baseURLField},
		Models:  []string{},
	},
}

// All returns the full catalog keyed by provider id.
func All() map[string]Info {
	return Filter("")
}

// Filter returns the providers whose id, display name, or any model contains
// the given substring, case-insensitively. An empty filter returns everything.
// The result is a fresh map; callers may modify it.
func Filter(substr string) map[string]Info {
	substr = strings.ToLower(strings.TrimSpace(substr))
	out := make(map[string]Info)
	for id, info := range catalog {
		if substr == "" || matches(id, info, substr) {
			out[id] = info
		}
	}
	return out
}

// IDs returns the sorted provider ids.
func IDs() []string {
	ids := make([]string, 0, len(catalog))
	for id := range catalog {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Lookup returns the catalog entry for id.
func Lookup(id string) (Info, bool) {
	info, ok := catalog[id]
	return info, ok
}

func matches(id string, info Info, substr string) bool {
	if strings.Contains(strings.ToLower(id), substr) {
		return true
	}
	if strings.Contains(strings.ToLower(info.Name), substr) {
		return true
	}
	for _, m := range info.Models {
		if strings.Contains(strings.ToLower(m), substr) {
			return true
		}
	}
	return false
}
