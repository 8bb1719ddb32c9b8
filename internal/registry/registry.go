// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package registry holds the static catalog of chat models and their
// capability flags. The catalog is the single authority on what a model
// can do: request parameters for reasoning or search are only honored
// for models whose entry enables the capability.
package registry

// Capability names a model feature that gates request parameters.
type Capability string

const (
	CapReasoning     Capability = "reasoning"
	CapWebSearch     Capability = "webSearch"
	CapBrowserSearch Capability = "browserSearch"
)

// Model describes one entry in the catalog.
type Model struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	Description           string `json:"description"`
	MaxTokens             int    `json:"maxTokens"`
	SupportsReasoning     bool   `json:"supportsReasoning"`
	SupportsWebSearch     bool   `json:"supportsWebSearch"`
	SupportsBrowserSearch bool   `json:"supportsBrowserSearch"`
}

// Has reports whether the model supports the given capability.
func (m Model) Has(cap Capability) bool {
	switch cap {
	case CapReasoning:
		return m.SupportsReasoning
	case CapWebSearch:
		return m.SupportsWebSearch
	case CapBrowserSearch:
		return m.SupportsBrowserSearch
	}
	return false
}

// models is the catalog in display order.
var models = []Model{
	{
		ID:          "llama-3.3-70b-versatile",
		Name:        "Llama 3.3 70B Versatile",
		Description: "High-performance model for general-purpose tasks",
		MaxTokens:   8192,
	},
	{
		ID:          "llama-3.1-70b-versatile",
		Name:        "Llama 3.1 70B Versatile",
		Description: "Versatile model for various applications",
		MaxTokens:   8192,
	},
	{
		ID:          "llama-3.1-8b-instant",
		Name:        "Llama 3.1 8B Instant",
		Description: "Fast, lightweight model for quick responses",
		MaxTokens:   8192,
	},
	{
		ID:          "mixtral-8x7b-32768",
		Name:        "Mixtral 8x7B",
		Description: "Mixture of experts model with large context",
		MaxTokens:   32768,
	},
	{
		ID:          "gemma2-9b-it",
		Name:        "Gemma 2 9B IT",
		Description: "Instruction-tuned model for conversations",
		MaxTokens:   8192,
	},
	{
		ID:                    "openai/gpt-oss-20b",
		Name:                  "GPT-OSS 20B",
		Description:           "Reasoning model with step-by-step analysis",
		MaxTokens:             8192,
		SupportsReasoning:     true,
		SupportsBrowserSearch: true,
	},
	{
		ID:                    "openai/gpt-oss-120b",
		Name:                  "GPT-OSS 120B",
		Description:           "Advanced reasoning model for complex problems",
		MaxTokens:             8192,
		SupportsReasoning:     true,
		SupportsBrowserSearch: true,
	},
	{
		ID:                "qwen/qwen3-32b",
		Name:              "Qwen 3 32B",
		Description:       "Multilingual reasoning model",
		MaxTokens:         8192,
		SupportsReasoning: true,
	},
	{
		ID:                "groq/compound",
		Name:              "Compound",
		Description:       "Advanced system with web search capabilities",
		MaxTokens:         8192,
		SupportsWebSearch: true,
	},
	{
		ID:                "groq/compound-mini",
		Name:              "Compound Mini",
		Description:       "Lightweight system with web search",
		MaxTokens:         8192,
		SupportsWebSearch: true,
	},
}

// byID is built once at init for O(1) lookup.
var byID = func() map[string]Model {
	m := make(map[string]Model, len(models))
	for _, entry := range models {
		m[entry.ID] = entry
	}
	return m
}()

// All returns the catalog in stable display order. The returned slice is
// a copy; callers may modify it freely.
func All() []Model {
	out := make([]Model, len(models))
	copy(out, models)
	return out
}

// ByID looks up a model by its identifier. The second return reports
// whether the model exists; unknown IDs never fall back to a default.
func ByID(id string) (Model, bool) {
	m, ok := byID[id]
	return m, ok
}

// ByCapability returns all models supporting the given capability, in
// catalog order.
func ByCapability(cap Capability) []Model {
	var out []Model
	for _, m := range models {
		if m.Has(cap) {
			out = append(out, m)
		}
	}
	return out
}
