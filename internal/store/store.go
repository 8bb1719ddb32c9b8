// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store provides the chat store: an in-memory collection of chats
// with ordered message history, optionally snapshotted to JSON files.
//
// The store is safe for concurrent use. All accessors return deep copies,
// so callers never share memory with the store's internal state.
package store

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aldenmoss/groqchat/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrChatNotFound is returned when a chat doesn't exist.
// Use errors.Is(err, ErrChatNotFound) to check for this error.
var ErrChatNotFound = &StoreError{Message: "chat not found"}

// ErrMessageNotFound is returned when a message doesn't exist in a chat.
var ErrMessageNotFound = &StoreError{Message: "message not found"}

// StoreError represents a store-related error.
// It implements the error interface and can be compared using errors.Is.
type StoreError struct {
	Message string
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing store errors.
func (e *StoreError) Is(target error) bool {
	t, ok := target.(*StoreError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// =============================================================================
// PATCH TYPES
// =============================================================================

// ChatPatch describes a partial chat update. Nil fields are left unchanged.
type ChatPatch struct {
	Title         *string
	Model         *string
	Mode          *model.Mode
	WebSearch     *bool
	BrowserSearch *bool
}

// MessagePatch describes a partial message update. Nil fields are left
// unchanged.
type MessagePatch struct {
	Content     *string
	Reasoning   *string
	Attachments []*model.Attachment
}

// CreateOptions carries the optional fields for Create.
type CreateOptions struct {
	Mode          model.Mode
	WebSearch     bool
	BrowserSearch bool
}

// =============================================================================
// CHAT STORE
// =============================================================================

// ChatStore holds all chats for the process. Memory is the source of
// truth; when a snapshot directory is configured, every mutation is
// mirrored to disk and existing snapshots are loaded at construction.
type ChatStore struct {
	mu    sync.RWMutex
	chats map[string]*model.Chat

	// dir is the snapshot directory; empty disables persistence.
	dir string
}

// New creates a chat store. If dir is non-empty, it is created if needed
// and any chat snapshots in it are loaded.
func New(dir string) (*ChatStore, error) {
	s := &ChatStore{
		chats: make(map[string]*model.Chat),
		dir:   dir,
	}

	if dir == "" {
		return s, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	if err := s.loadSnapshots(); err != nil {
		return nil, err
	}
	return s, nil
}

// loadSnapshots reads every chat snapshot from the data directory.
// Corrupted files are skipped with a log line rather than failing startup.
func (s *ChatStore) loadSnapshots() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			log.Printf("STORE LOAD SKIP | file=%s error=%v", entry.Name(), err)
			continue
		}
		var c model.Chat
		if err := json.Unmarshal(data, &c); err != nil {
			log.Printf("STORE LOAD SKIP | file=%s error=%v", entry.Name(), err)
			continue
		}
		if c.ID == "" {
			continue
		}
		s.chats[c.ID] = &c
	}
	return nil
}

// =============================================================================
// CHAT OPERATIONS
// =============================================================================

// Create makes a new chat and returns a copy of it. Mode defaults to
// regular; search flags default to off.
func (s *ChatStore) Create(title, modelID string, opts CreateOptions) *model.Chat {
	c := model.NewChat(title, modelID)
	if opts.Mode != "" {
		c.Mode = opts.Mode
	}
	c.WebSearch = opts.WebSearch
	c.BrowserSearch = opts.BrowserSearch

	s.mu.Lock()
	s.chats[c.ID] = c
	s.persistLocked(c)
	s.mu.Unlock()

	return c.Clone()
}

// Get returns a copy of the chat with the given ID.
func (s *ChatStore) Get(id string) (*model.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.chats[id]
	if !ok {
		return nil, ErrChatNotFound
	}
	return c.Clone(), nil
}

// List returns copies of all chats, most recently updated first.
func (s *ChatStore) List() []*model.Chat {
	s.mu.RLock()
	out := make([]*model.Chat, 0, len(s.chats))
	for _, c := range s.chats {
		out = append(out, c.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// Update applies a partial update to a chat. The update timestamp is
// bumped even when the patch is empty.
func (s *ChatStore) Update(id string, patch ChatPatch) (*model.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chats[id]
	if !ok {
		return nil, ErrChatNotFound
	}

	if patch.Title != nil {
		c.Title = *patch.Title
	}
	if patch.Model != nil {
		c.Model = *patch.Model
	}
	if patch.Mode != nil {
		c.Mode = *patch.Mode
	}
	if patch.WebSearch != nil {
		c.WebSearch = *patch.WebSearch
	}
	if patch.BrowserSearch != nil {
		c.BrowserSearch = *patch.BrowserSearch
	}
	c.UpdatedAt = time.Now()

	s.persistLocked(c)
	return c.Clone(), nil
}

// Delete removes a chat and reports whether it existed.
func (s *ChatStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chats[id]; !ok {
		return false
	}
	delete(s.chats, id)

	if s.dir != "" {
		if err := os.Remove(s.filePath(id)); err != nil && !os.IsNotExist(err) {
			log.Printf("STORE DELETE SNAPSHOT | chat=%s error=%v", id, err)
		}
	}
	return true
}

// =============================================================================
// MESSAGE OPERATIONS
// =============================================================================

// AppendMessage adds a message to a chat, assigning a fresh ID and
// timestamp, and bumps the chat's update timestamp.
func (s *ChatStore) AppendMessage(chatID string, role model.Role, content string, attachments []*model.Attachment) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chats[chatID]
	if !ok {
		return nil, ErrChatNotFound
	}

	msg := model.NewMessage(role, content, attachments)
	c.AddMessage(msg)

	s.persistLocked(c)
	return msg.Clone(), nil
}

// UpdateMessage applies a partial update to a message in place and bumps
// the chat's update timestamp.
func (s *ChatStore) UpdateMessage(chatID, msgID string, patch MessagePatch) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chats[chatID]
	if !ok {
		return nil, ErrChatNotFound
	}
	msg := c.FindMessage(msgID)
	if msg == nil {
		return nil, ErrMessageNotFound
	}

	if patch.Content != nil {
		msg.Content = *patch.Content
	}
	if patch.Reasoning != nil {
		msg.Reasoning = *patch.Reasoning
	}
	if patch.Attachments != nil {
		msg.Attachments = patch.Attachments
	}
	c.UpdatedAt = time.Now()

	s.persistLocked(c)
	return msg.Clone(), nil
}

// Count returns the number of chats in the store.
func (s *ChatStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chats)
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// persistLocked snapshots a chat to disk. Callers must hold the write
// lock. Snapshot failures are logged, not propagated: the in-memory state
// already reflects the mutation.
func (s *ChatStore) persistLocked(c *model.Chat) {
	if s.dir == "" {
		return
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		log.Printf("STORE SNAPSHOT | chat=%s error=%v", c.ID, err)
		return
	}
	if err := atomicWriteFile(s.filePath(c.ID), data, 0644); err != nil {
		log.Printf("STORE SNAPSHOT | chat=%s error=%v", c.ID, err)
	}
}

// filePath returns the snapshot path for a chat ID.
func (s *ChatStore) filePath(id string) string {
	return filepath.Join(s.dir, id+".json")
}
