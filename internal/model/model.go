// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chats, messages, and
// file attachments.
package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// Valid reports whether the role is one of the supported roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// =============================================================================
// CHAT MODE
// =============================================================================

// Mode selects the conversation style for a chat.
type Mode string

const (
	// ModeRegular is the default free-form chat mode.
	ModeRegular Mode = "regular"
	// ModeReasoning surfaces intermediate reasoning text alongside answers.
	ModeReasoning Mode = "reasoning"
)

// =============================================================================
// ATTACHMENT TYPE
// =============================================================================

// Attachment is an uploaded file associated with a message. Content holds
// the raw bytes base64-encoded; TextContent holds extracted text (or a
// placeholder for formats without extraction support).
type Attachment struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Type        string    `json:"type"` // MIME type as reported by the client
	Size        int64     `json:"size"`
	Content     string    `json:"content"`
	TextContent string    `json:"textContent,omitempty"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// NewAttachment creates an attachment with a generated ID and the current
// time as upload timestamp.
func NewAttachment(name, mimeType string, size int64) *Attachment {
	return &Attachment{
		ID:         uuid.NewString(),
		Name:       name,
		Type:       mimeType,
		Size:       size,
		UploadedAt: time.Now(),
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a chat. Reasoning holds the
// intermediate reasoning text for assistant messages from reasoning-capable
// models and is empty otherwise.
type Message struct {
	ID          string        `json:"id"`
	Role        Role          `json:"role"`
	Content     string        `json:"content"`
	Reasoning   string        `json:"reasoning,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
	Attachments []*Attachment `json:"attachments,omitempty"`
}

// NewMessage creates a message with a generated ID and current timestamp.
func NewMessage(role Role, content string, attachments []*Attachment) *Message {
	return &Message{
		ID:          uuid.NewString(),
		Role:        role,
		Content:     content,
		Timestamp:   time.Now(),
		Attachments: attachments,
	}
}

// EstimateTokens approximates the token count of content using the common
// 4-characters-per-token heuristic, rounding up.
func EstimateTokens(content string) int {
	if content == "" {
		return 0
	}
	return (len(content) + 3) / 4
}

// =============================================================================
// CHAT TYPE
// =============================================================================

// Chat holds a conversation's metadata and ordered message history.
type Chat struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Model         string     `json:"model"`
	Mode          Mode       `json:"mode"`
	WebSearch     bool       `json:"webSearch"`
	BrowserSearch bool       `json:"browserSearch"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	Messages      []*Message `json:"messages"`
}

// NewChat creates a chat with a generated ID and identical creation and
// update timestamps.
func NewChat(title, modelID string) *Chat {
	now := time.Now()
	return &Chat{
		ID:        uuid.NewString(),
		Title:     title,
		Model:     modelID,
		Mode:      ModeRegular,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  make([]*Message, 0),
	}
}

// AddMessage appends a message and bumps the chat's update timestamp.
func (c *Chat) AddMessage(msg *Message) {
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = time.Now()
}

// FindMessage returns the message with the given ID, or nil.
func (c *Chat) FindMessage(id string) *Message {
	for _, m := range c.Messages {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// Clone returns a deep copy of the chat. Callers holding a clone can read
// it without coordinating with writers.
func (c *Chat) Clone() *Chat {
	out := *c
	out.Messages = make([]*Message, len(c.Messages))
	for i, m := range c.Messages {
		out.Messages[i] = m.Clone()
	}
	return &out
}

// Clone returns a deep copy of the message, attachments included.
func (m *Message) Clone() *Message {
	out := *m
	if m.Attachments != nil {
		out.Attachments = make([]*Attachment, len(m.Attachments))
		for j, a := range m.Attachments {
			ac := *a
			out.Attachments[j] = &ac
		}
	}
	return &out
}
