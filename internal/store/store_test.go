// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aldenmoss/groqchat/internal/model"
)

func newTestStore(t *testing.T) *ChatStore {
	t.Helper()
	s, err := New("")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestCreateDefaults(t *testing.T) {
	s := newTestStore(t)

	c := s.Create("My Chat", "llama-3.1-8b-instant", CreateOptions{})
	if c.Mode != model.ModeRegular {
		t.Errorf("Mode = %q, want %q", c.Mode, model.ModeRegular)
	}
	if c.WebSearch || c.BrowserSearch {
		t.Error("search flags should default to false")
	}
	if !c.CreatedAt.Equal(c.UpdatedAt) {
		t.Error("CreatedAt and UpdatedAt should match on creation")
	}
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get("missing")
	if !errors.Is(err, ErrChatNotFound) {
		t.Errorf("Get error = %v, want ErrChatNotFound", err)
	}
}

func TestListRecencyOrder(t *testing.T) {
	s := newTestStore(t)

	a := s.Create("a", "m", CreateOptions{})
	time.Sleep(time.Millisecond)
	b := s.Create("b", "m", CreateOptions{})
	time.Sleep(time.Millisecond)

	// Touching a makes it most recent again.
	if _, err := s.AppendMessage(a.ID, model.RoleUser, "hi", nil); err != nil {
		t.Fatalf("AppendMessage error = %v", err)
	}

	list := s.List()
	if len(list) != 2 {
		t.Fatalf("len(List()) = %d, want 2", len(list))
	}
	if list[0].ID != a.ID || list[1].ID != b.ID {
		t.Errorf("List order = [%s %s], want [%s %s]", list[0].ID, list[1].ID, a.ID, b.ID)
	}
}

func TestUpdatePartialMerge(t *testing.T) {
	s := newTestStore(t)
	c := s.Create("old title", "old-model", CreateOptions{})
	before := c.UpdatedAt

	time.Sleep(time.Millisecond)
	title := "new title"
	web := true
	got, err := s.Update(c.ID, ChatPatch{Title: &title, WebSearch: &web})
	if err != nil {
		t.Fatalf("Update error = %v", err)
	}

	if got.Title != "new title" {
		t.Errorf("Title = %q, want %q", got.Title, "new title")
	}
	if got.Model != "old-model" {
		t.Errorf("Model = %q, want unchanged %q", got.Model, "old-model")
	}
	if !got.WebSearch {
		t.Error("WebSearch should be true after patch")
	}
	if !got.UpdatedAt.After(before) {
		t.Error("Update should bump UpdatedAt")
	}

	if _, err := s.Update("missing", ChatPatch{}); !errors.Is(err, ErrChatNotFound) {
		t.Errorf("Update on unknown chat = %v, want ErrChatNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	c := s.Create("t", "m", CreateOptions{})

	if !s.Delete(c.ID) {
		t.Error("Delete existing chat should report true")
	}
	if s.Delete(c.ID) {
		t.Error("Delete again should report false")
	}
}

func TestAppendMessage(t *testing.T) {
	s := newTestStore(t)
	c := s.Create("t", "m", CreateOptions{})

	att := model.NewAttachment("notes.txt", "text/plain", 5)
	msg, err := s.AppendMessage(c.ID, model.RoleUser, "hello", []*model.Attachment{att})
	if err != nil {
		t.Fatalf("AppendMessage error = %v", err)
	}
	if msg.ID == "" {
		t.Error("message should get a fresh ID")
	}
	if msg.Timestamp.IsZero() {
		t.Error("message should get a timestamp")
	}

	got, _ := s.Get(c.ID)
	if len(got.Messages) != 1 {
		t.Fatalf("chat has %d messages, want 1", len(got.Messages))
	}
	if !got.UpdatedAt.After(c.UpdatedAt) {
		t.Error("AppendMessage should bump chat UpdatedAt")
	}

	if _, err := s.AppendMessage("missing", model.RoleUser, "x", nil); !errors.Is(err, ErrChatNotFound) {
		t.Errorf("AppendMessage on unknown chat = %v, want ErrChatNotFound", err)
	}
}

func TestUpdateMessage(t *testing.T) {
	s := newTestStore(t)
	c := s.Create("t", "m", CreateOptions{})
	msg, _ := s.AppendMessage(c.ID, model.RoleAssistant, "partial", nil)

	content := "final answer"
	got, err := s.UpdateMessage(c.ID, msg.ID, MessagePatch{Content: &content})
	if err != nil {
		t.Fatalf("UpdateMessage error = %v", err)
	}
	if got.Content != "final answer" {
		t.Errorf("Content = %q, want %q", got.Content, "final answer")
	}
	if got.ID != msg.ID {
		t.Errorf("ID = %q, want unchanged %q", got.ID, msg.ID)
	}

	if _, err := s.UpdateMessage(c.ID, "missing", MessagePatch{}); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("UpdateMessage on unknown message = %v, want ErrMessageNotFound", err)
	}
}

func TestReturnedMessagesAreDetached(t *testing.T) {
	s := newTestStore(t)
	c := s.Create("t", "m", CreateOptions{})

	att := model.NewAttachment("notes.txt", "text/plain", 5)
	att.TextContent = "original"
	msg, err := s.AppendMessage(c.ID, model.RoleUser, "hello", []*model.Attachment{att})
	if err != nil {
		t.Fatalf("AppendMessage error = %v", err)
	}

	// Mutating the returned message must not leak into the store.
	msg.Content = "scribbled"
	msg.Attachments[0].TextContent = "scribbled"

	got, _ := s.Get(c.ID)
	if got.Messages[0].Content != "hello" {
		t.Errorf("stored Content = %q, want %q", got.Messages[0].Content, "hello")
	}
	if got.Messages[0].Attachments[0].TextContent != "original" {
		t.Errorf("stored attachment TextContent = %q, want %q",
			got.Messages[0].Attachments[0].TextContent, "original")
	}

	reasoning := "step by step"
	updated, err := s.UpdateMessage(c.ID, msg.ID, MessagePatch{Reasoning: &reasoning})
	if err != nil {
		t.Fatalf("UpdateMessage error = %v", err)
	}
	updated.Attachments[0].TextContent = "scribbled again"

	got, _ = s.Get(c.ID)
	if got.Messages[0].Attachments[0].TextContent != "original" {
		t.Errorf("stored attachment TextContent = %q after mutating update result, want %q",
			got.Messages[0].Attachments[0].TextContent, "original")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()

	s1, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	c := s1.Create("persisted", "m", CreateOptions{BrowserSearch: true})
	if _, err := s1.AppendMessage(c.ID, model.RoleUser, "remember me", nil); err != nil {
		t.Fatalf("AppendMessage error = %v", err)
	}

	s2, err := New(dir)
	if err != nil {
		t.Fatalf("New() reload error = %v", err)
	}
	got, err := s2.Get(c.ID)
	if err != nil {
		t.Fatalf("Get after reload error = %v", err)
	}
	if got.Title != "persisted" || !got.BrowserSearch {
		t.Errorf("reloaded chat = %+v, want original fields", got)
	}
	if len(got.Messages) != 1 || got.Messages[0].Content != "remember me" {
		t.Error("reloaded chat lost messages")
	}
}

func TestDeleteRemovesSnapshot(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	c := s.Create("gone", "m", CreateOptions{})
	s.Delete(c.ID)

	s2, err := New(dir)
	if err != nil {
		t.Fatalf("New() reload error = %v", err)
	}
	if s2.Count() != 0 {
		t.Errorf("Count after delete+reload = %d, want 0", s2.Count())
	}
}

func TestConcurrentAppends(t *testing.T) {
	s := newTestStore(t)
	c := s.Create("t", "m", CreateOptions{})

	const writers = 10
	const perWriter = 20

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				if _, err := s.AppendMessage(c.ID, model.RoleUser, fmt.Sprintf("w%d-%d", n, j), nil); err != nil {
					t.Errorf("AppendMessage error = %v", err)
				}
			}
		}(i)
	}
	wg.Wait()

	got, _ := s.Get(c.ID)
	if len(got.Messages) != writers*perWriter {
		t.Errorf("messages = %d, want %d", len(got.Messages), writers*perWriter)
	}
}
