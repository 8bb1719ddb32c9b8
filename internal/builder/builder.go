// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package builder assembles provider completion requests from incoming
// chat turns. It inlines attachment text into message content, sizes the
// completion budget from an estimate of the prompt, and gates provider
// parameters on the model's catalog capabilities.
package builder

import (
	"errors"
	"fmt"

	"github.com/aldenmoss/groqchat/internal/groq"
	"github.com/aldenmoss/groqchat/internal/model"
	"github.com/aldenmoss/groqchat/internal/registry"
)

// Completion sizing constants.
const (
	// DefaultMaxTokens is the completion budget when the caller sends none.
	DefaultMaxTokens = 1024

	// DefaultTemperature is used when the caller sends no temperature.
	DefaultTemperature = 0.7

	// Large prompts get a raised completion floor so the answer is not
	// squeezed out by its own context.
	largePromptTokens = 10000
	largePromptFloor  = 2048
	hugePromptTokens  = 20000
	hugePromptFloor   = 4096
)

// Validation errors. All of them map to a 400 response.
var (
	// ErrNoMessages indicates the request carried no messages.
	ErrNoMessages = errors.New("messages are required")

	// ErrNoModel indicates the request carried no model ID.
	ErrNoModel = errors.New("model is required")
)

// InvalidModelError reports a model ID that is not in the catalog.
type InvalidModelError struct {
	ID string
}

// Error implements the error interface.
func (e *InvalidModelError) Error() string {
	return fmt.Sprintf("invalid model: %s", e.ID)
}

// =============================================================================
// INPUT TYPES
// =============================================================================

// InputMessage is one message of an incoming completion request, possibly
// carrying attachments to inline.
type InputMessage struct {
	Role        string              `json:"role"`
	Content     string              `json:"content"`
	Attachments []*model.Attachment `json:"attachments,omitempty"`
}

// Request is an incoming completion request before provider translation.
type Request struct {
	Messages    []InputMessage `json:"messages"`
	Model       string         `json:"model"`
	Temperature *float64       `json:"temperature,omitempty"`
	MaxTokens   *int           `json:"maxTokens,omitempty"`
	Stream      bool           `json:"stream,omitempty"`

	// Reasoning controls, honored only for reasoning-capable models.
	ReasoningFormat  string `json:"reasoningFormat,omitempty"`
	IncludeReasoning *bool  `json:"includeReasoning,omitempty"`
	ReasoningEffort  string `json:"reasoningEffort,omitempty"`

	// Search controls, honored only for search-capable models.
	WebSearch      bool                 `json:"webSearch,omitempty"`
	BrowserSearch  bool                 `json:"browserSearch,omitempty"`
	SearchSettings *groq.SearchSettings `json:"searchSettings,omitempty"`
}

// =============================================================================
// BUILD
// =============================================================================

// Build validates an incoming request and translates it into a provider
// request. Attachment text is inlined into message content for both the
// streaming and non-streaming paths, so the provider sees identical
// prompts either way.
func Build(req *Request) (*groq.CompletionRequest, error) {
	if len(req.Messages) == 0 {
		return nil, ErrNoMessages
	}
	if req.Model == "" {
		return nil, ErrNoModel
	}

	m, ok := registry.ByID(req.Model)
	if !ok {
		return nil, &InvalidModelError{ID: req.Model}
	}

	messages := make([]groq.ChatMessage, len(req.Messages))
	estimated := 0
	for i, in := range req.Messages {
		content := inlineAttachments(in.Content, in.Attachments)
		messages[i] = groq.ChatMessage{Role: in.Role, Content: content}
		estimated += model.EstimateTokens(content)
	}

	out := &groq.CompletionRequest{
		Model:               m.ID,
		Messages:            messages,
		Temperature:         DefaultTemperature,
		MaxCompletionTokens: completionBudget(req.MaxTokens, estimated),
		Stream:              req.Stream,
	}
	if req.Temperature != nil {
		out.Temperature = *req.Temperature
	}

	// Capability gating. The catalog decides; request flags alone never
	// enable a feature.
	if m.SupportsReasoning {
		out.ReasoningFormat = req.ReasoningFormat
		out.IncludeReasoning = req.IncludeReasoning
		out.ReasoningEffort = req.ReasoningEffort
	}
	if m.SupportsWebSearch && req.WebSearch {
		out.SearchSettings = req.SearchSettings
	}
	if m.SupportsBrowserSearch && req.BrowserSearch {
		out.Tools = []groq.Tool{{Type: "browser_search"}}
		out.ToolChoice = "required"
	}

	return out, nil
}

// completionBudget returns the effective max_completion_tokens. Callers
// get what they asked for (or the default), raised to a floor when the
// prompt estimate says the conversation is large.
func completionBudget(requested *int, estimatedTokens int) int {
	budget := DefaultMaxTokens
	if requested != nil {
		budget = *requested
	}
	if estimatedTokens > hugePromptTokens {
		return max(budget, hugePromptFloor)
	}
	if estimatedTokens > largePromptTokens {
		return max(budget, largePromptFloor)
	}
	return budget
}

// inlineAttachments appends each attachment's extracted text to the
// message content inside named delimiters, so the model can attribute
// quoted material to its file.
func inlineAttachments(content string, attachments []*model.Attachment) string {
	for _, att := range attachments {
		if att.TextContent != "" {
			content += fmt.Sprintf("\n\n--- File: %s ---\n%s\n--- End of %s ---", att.Name, att.TextContent, att.Name)
		} else {
			content += fmt.Sprintf("\n\n--- File: %s (content not extractable) ---", att.Name)
		}
	}
	return content
}

// EstimateRequestTokens returns the prompt token estimate after
// attachment inlining. Exposed for request logging.
func EstimateRequestTokens(req *Request) int {
	total := 0
	for _, in := range req.Messages {
		total += model.EstimateTokens(inlineAttachments(in.Content, in.Attachments))
	}
	return total
}
