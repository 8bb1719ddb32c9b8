// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package builder

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aldenmoss/groqchat/internal/groq"
	"github.com/aldenmoss/groqchat/internal/model"
)

func userMessage(content string) InputMessage {
	return InputMessage{Role: "user", Content: content}
}

func TestBuildValidation(t *testing.T) {
	_, err := Build(&Request{Model: "llama-3.1-8b-instant"})
	assert.ErrorIs(t, err, ErrNoMessages)

	_, err = Build(&Request{Messages: []InputMessage{userMessage("hi")}})
	assert.ErrorIs(t, err, ErrNoModel)

	_, err = Build(&Request{Messages: []InputMessage{userMessage("hi")}, Model: "gpt-5000"})
	var invalid *InvalidModelError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "gpt-5000", invalid.ID)
}

func TestBuildDefaults(t *testing.T) {
	out, err := Build(&Request{
		Messages: []InputMessage{userMessage("hello")},
		Model:    "llama-3.1-8b-instant",
	})
	require.NoError(t, err)

	assert.Equal(t, "llama-3.1-8b-instant", out.Model)
	assert.Equal(t, 0.7, out.Temperature)
	assert.Equal(t, 1024, out.MaxCompletionTokens)
	assert.False(t, out.Stream)
	assert.Nil(t, out.Tools)
	assert.Nil(t, out.SearchSettings)
}

func TestBuildCallerOverrides(t *testing.T) {
	temp := 0.2
	maxTokens := 3000
	out, err := Build(&Request{
		Messages:    []InputMessage{userMessage("hello")},
		Model:       "llama-3.1-8b-instant",
		Temperature: &temp,
		MaxTokens:   &maxTokens,
		Stream:      true,
	})
	require.NoError(t, err)

	assert.Equal(t, 0.2, out.Temperature)
	assert.Equal(t, 3000, out.MaxCompletionTokens)
	assert.True(t, out.Stream)
}

func TestAttachmentInlining(t *testing.T) {
	extracted := &model.Attachment{Name: "notes.txt", TextContent: "the notes"}
	empty := &model.Attachment{Name: "scan.pdf"}

	out, err := Build(&Request{
		Messages: []InputMessage{{
			Role:        "user",
			Content:     "summarize this",
			Attachments: []*model.Attachment{extracted, empty},
		}},
		Model: "llama-3.1-8b-instant",
	})
	require.NoError(t, err)

	content := out.Messages[0].Content
	assert.True(t, strings.HasPrefix(content, "summarize this"))
	assert.Contains(t, content, "\n\n--- File: notes.txt ---\nthe notes\n--- End of notes.txt ---")
	assert.Contains(t, content, "\n\n--- File: scan.pdf (content not extractable) ---")
}

func TestCompletionBudgetFloors(t *testing.T) {
	small := 500

	tests := []struct {
		name       string
		promptLen  int // characters of user content
		requested  *int
		wantBudget int
	}{
		{"small prompt default", 100, nil, 1024},
		{"small prompt caller wins", 100, &small, 500},
		{"large prompt floor", 41000, nil, 2048}, // >10k tokens
		{"large prompt caller below floor", 41000, &small, 2048},
		{"huge prompt floor", 81000, nil, 4096}, // >20k tokens
		{"huge prompt caller below floor", 81000, &small, 4096},
		// Floor thresholds are strict: exactly 10k or 20k estimated
		// tokens stays on the lower budget.
		{"just under large threshold", 39996, nil, 1024}, // 9999 tokens
		{"just over large threshold", 40004, nil, 2048},  // 10001 tokens
		{"just under huge threshold", 79996, nil, 2048},  // 19999 tokens
		{"just over huge threshold", 80004, nil, 4096},   // 20001 tokens
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := Build(&Request{
				Messages:  []InputMessage{userMessage(strings.Repeat("a", tc.promptLen))},
				Model:     "llama-3.1-8b-instant",
				MaxTokens: tc.requested,
			})
			require.NoError(t, err)
			assert.Equal(t, tc.wantBudget, out.MaxCompletionTokens)
		})
	}
}

func TestCallerAboveFloorKept(t *testing.T) {
	big := 8000
	out, err := Build(&Request{
		Messages:  []InputMessage{userMessage(strings.Repeat("a", 81000))},
		Model:     "llama-3.1-8b-instant",
		MaxTokens: &big,
	})
	require.NoError(t, err)
	assert.Equal(t, 8000, out.MaxCompletionTokens)
}

func TestReasoningGating(t *testing.T) {
	include := true
	base := Request{
		Messages:         []InputMessage{userMessage("think hard")},
		ReasoningFormat:  "parsed",
		IncludeReasoning: &include,
		ReasoningEffort:  "high",
	}

	// Reasoning-capable model: fields pass through.
	capable := base
	capable.Model = "qwen/qwen3-32b"
	out, err := Build(&capable)
	require.NoError(t, err)
	assert.Equal(t, "parsed", out.ReasoningFormat)
	assert.Equal(t, &include, out.IncludeReasoning)
	assert.Equal(t, "high", out.ReasoningEffort)

	// Non-reasoning model: fields dropped.
	plain := base
	plain.Model = "llama-3.1-8b-instant"
	out, err = Build(&plain)
	require.NoError(t, err)
	assert.Empty(t, out.ReasoningFormat)
	assert.Nil(t, out.IncludeReasoning)
	assert.Empty(t, out.ReasoningEffort)
}

func TestWebSearchGating(t *testing.T) {
	settings := &groq.SearchSettings{Country: "de", ExcludeDomains: []string{"example.com"}}

	// Capable model with flag on.
	out, err := Build(&Request{
		Messages:       []InputMessage{userMessage("what's new")},
		Model:          "groq/compound",
		WebSearch:      true,
		SearchSettings: settings,
	})
	require.NoError(t, err)
	assert.Equal(t, settings, out.SearchSettings)

	// Capable model with flag off.
	out, err = Build(&Request{
		Messages:       []InputMessage{userMessage("what's new")},
		Model:          "groq/compound",
		SearchSettings: settings,
	})
	require.NoError(t, err)
	assert.Nil(t, out.SearchSettings)

	// Incapable model with flag on.
	out, err = Build(&Request{
		Messages:       []InputMessage{userMessage("what's new")},
		Model:          "llama-3.1-8b-instant",
		WebSearch:      true,
		SearchSettings: settings,
	})
	require.NoError(t, err)
	assert.Nil(t, out.SearchSettings)
}

func TestBrowserSearchGating(t *testing.T) {
	out, err := Build(&Request{
		Messages:      []InputMessage{userMessage("browse for it")},
		Model:         "openai/gpt-oss-20b",
		BrowserSearch: true,
	})
	require.NoError(t, err)
	require.Len(t, out.Tools, 1)
	assert.Equal(t, "browser_search", out.Tools[0].Type)
	assert.Equal(t, "required", out.ToolChoice)

	// Flag on, model incapable.
	out, err = Build(&Request{
		Messages:      []InputMessage{userMessage("browse for it")},
		Model:         "groq/compound",
		BrowserSearch: true,
	})
	require.NoError(t, err)
	assert.Nil(t, out.Tools)
	assert.Empty(t, out.ToolChoice)
}

func TestEstimateRequestTokens(t *testing.T) {
	req := &Request{
		Messages: []InputMessage{
			userMessage(strings.Repeat("a", 8)),
			{Role: "assistant", Content: strings.Repeat("b", 9)},
		},
	}
	// 8/4 = 2, ceil(9/4) = 3
	assert.Equal(t, 5, EstimateRequestTokens(req))
}
