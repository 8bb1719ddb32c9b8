// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ingest

import (
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestIngestTextFile(t *testing.T) {
	in := New(DefaultPolicy())

	att, err := in.Ingest("notes.txt", "text/plain", 11, strings.NewReader("hello world"))
	if err != nil {
		t.Fatalf("Ingest error = %v", err)
	}

	if att.ID == "" {
		t.Error("attachment should get an ID")
	}
	if att.Name != "notes.txt" || att.Type != "text/plain" || att.Size != 11 {
		t.Errorf("attachment metadata = %+v", att)
	}
	if att.TextContent != "hello world" {
		t.Errorf("TextContent = %q, want full text", att.TextContent)
	}
	decoded, err := base64.StdEncoding.DecodeString(att.Content)
	if err != nil || string(decoded) != "hello world" {
		t.Errorf("Content should be base64 of the raw bytes, got %q", att.Content)
	}
	if att.UploadedAt.IsZero() {
		t.Error("UploadedAt should be set")
	}
}

func TestIngestSizeLimit(t *testing.T) {
	in := New(Policy{MaxFileSize: 10 * 1024 * 1024, AllowedTypes: []string{"txt"}})

	_, err := in.Ingest("big.txt", "text/plain", 11*1024*1024, strings.NewReader(""))
	var perr *PolicyError
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v, want PolicyError", err)
	}
	if perr.Message != "File too large. Maximum size is 10MB" {
		t.Errorf("Message = %q", perr.Message)
	}
}

func TestIngestExtensionAllowList(t *testing.T) {
	in := New(DefaultPolicy())

	tests := []struct {
		name    string
		allowed bool
	}{
		{"report.pdf", true},
		{"README.MD", true},
		{"script.exe", false},
		{"noextension", false},
		{"archive.tar.gz", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := in.Ingest(tc.name, "application/octet-stream", 4, strings.NewReader("data"))
			var perr *PolicyError
			if tc.allowed && errors.As(err, &perr) {
				t.Errorf("Ingest(%q) rejected: %v", tc.name, err)
			}
			if !tc.allowed && !errors.As(err, &perr) {
				t.Errorf("Ingest(%q) error = %v, want PolicyError", tc.name, err)
			}
		})
	}
}

func TestSizeCheckedBeforeExtension(t *testing.T) {
	in := New(Policy{MaxFileSize: 5, AllowedTypes: []string{"txt"}})

	// Both violations present: the size message must win.
	_, err := in.Ingest("huge.exe", "application/octet-stream", 100, strings.NewReader(""))
	var perr *PolicyError
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v, want PolicyError", err)
	}
	if !strings.HasPrefix(perr.Message, "File too large") {
		t.Errorf("Message = %q, want size violation reported first", perr.Message)
	}
}

func TestPlaceholders(t *testing.T) {
	in := New(DefaultPolicy())

	tests := []struct {
		file string
		want string
	}{
		{"paper.pdf", "[PDF File: paper.pdf - Content extraction not implemented yet. Please copy and paste the text content.]"},
		{"memo.docx", "[Word Document: memo.docx - Content extraction not implemented yet. Please copy and paste the text content.]"},
		{"memo.doc", "[Word Document: memo.doc - Content extraction not implemented yet. Please copy and paste the text content.]"},
	}

	for _, tc := range tests {
		t.Run(tc.file, func(t *testing.T) {
			att, err := in.Ingest(tc.file, "application/octet-stream", 4, strings.NewReader("%bin"))
			if err != nil {
				t.Fatalf("Ingest error = %v", err)
			}
			if att.TextContent != tc.want {
				t.Errorf("TextContent = %q, want %q", att.TextContent, tc.want)
			}
		})
	}
}

func TestReadFailureStillSucceeds(t *testing.T) {
	in := New(DefaultPolicy())

	att, err := in.Ingest("flaky.txt", "text/plain", 4, failingReader{})
	if err != nil {
		t.Fatalf("Ingest error = %v, want success with placeholder", err)
	}
	if att.TextContent != "[Error reading file: flaky.txt]" {
		t.Errorf("TextContent = %q", att.TextContent)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("disk on fire")
}

func TestSetPolicyConcurrentWithIngest(t *testing.T) {
	in := New(DefaultPolicy())

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		limits := []int64{1 << 20, 10 << 20}
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			in.SetPolicy(Policy{
				MaxFileSize:  limits[i%len(limits)],
				AllowedTypes: []string{"txt", "md"},
			})
		}
	}()

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_, err := in.Ingest("notes.txt", "text/plain", 5, strings.NewReader("hello"))
				if err != nil {
					t.Errorf("Ingest error = %v", err)
					return
				}
			}
		}()
	}

	time.Sleep(10 * time.Millisecond)
	close(stop)
	wg.Wait()

	if got := in.Policy().MaxFileSize; got != 1<<20 && got != 10<<20 {
		t.Errorf("MaxFileSize = %d after reloads", got)
	}
}
