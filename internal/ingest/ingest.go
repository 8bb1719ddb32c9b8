// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ingest turns uploaded files into message attachments. It
// enforces the upload policy (size cap, extension allow-list), stores the
// raw bytes base64-encoded, and extracts text where the format supports
// it. Formats without an extractor get a typed placeholder so the user
// sees exactly why no content was pulled.
package ingest

import (
	"encoding/base64"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/aldenmoss/groqchat/internal/model"
)

// =============================================================================
// POLICY
// =============================================================================

const (
	// DefaultMaxFileSize is the default upload size cap (50MB).
	DefaultMaxFileSize = 52428800
)

// DefaultAllowedTypes are the file extensions accepted by default.
var DefaultAllowedTypes = []string{"pdf", "txt", "doc", "docx", "md"}

// Policy holds the upload acceptance rules.
type Policy struct {
	// MaxFileSize is the maximum upload size in bytes.
	MaxFileSize int64

	// AllowedTypes is the extension allow-list, lowercase, without dots.
	AllowedTypes []string
}

// DefaultPolicy returns the policy used when no configuration overrides it.
func DefaultPolicy() Policy {
	return Policy{
		MaxFileSize:  DefaultMaxFileSize,
		AllowedTypes: append([]string(nil), DefaultAllowedTypes...),
	}
}

// allows reports whether the extension is on the allow-list.
func (p Policy) allows(ext string) bool {
	for _, t := range p.AllowedTypes {
		if t == ext {
			return true
		}
	}
	return false
}

// PolicyError reports an upload rejected by policy. It maps to a 400
// response, never a 500.
type PolicyError struct {
	Message string
}

// Error implements the error interface.
func (e *PolicyError) Error() string {
	return e.Message
}

// =============================================================================
// INGESTOR
// =============================================================================

// Ingestor validates uploads and builds attachments. The policy can be
// swapped at runtime by a config reload, so reads and writes go through
// the mutex.
type Ingestor struct {
	mu     sync.RWMutex
	policy Policy
}

// New creates an ingestor with the given policy.
func New(policy Policy) *Ingestor {
	return &Ingestor{policy: policy}
}

// SetPolicy swaps the acceptance rules. Used on config reload.
func (in *Ingestor) SetPolicy(policy Policy) {
	in.mu.Lock()
	in.policy = policy
	in.mu.Unlock()
}

// Policy returns the current acceptance rules.
func (in *Ingestor) Policy() Policy {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.policy
}

// Ingest validates an upload against the policy and builds the attachment.
// Size is checked before extension, matching the order the user sees
// errors in. A failure to read the file body is not fatal: the attachment
// is still produced with an error placeholder as its text content.
func (in *Ingestor) Ingest(name, mimeType string, size int64, r io.Reader) (*model.Attachment, error) {
	policy := in.Policy()

	if size > policy.MaxFileSize {
		return nil, &PolicyError{Message: fmt.Sprintf(
			"File too large. Maximum size is %dMB", policy.MaxFileSize/1024/1024)}
	}

	ext := extension(name)
	if ext == "" || !policy.allows(ext) {
		return nil, &PolicyError{Message: fmt.Sprintf(
			"File type not allowed. Allowed types: %s", strings.Join(policy.AllowedTypes, ", "))}
	}

	att := model.NewAttachment(name, mimeType, size)

	data, err := io.ReadAll(r)
	if err != nil {
		att.TextContent = fmt.Sprintf("[Error reading file: %s]", name)
		return att, nil
	}

	att.Content = base64.StdEncoding.EncodeToString(data)
	att.TextContent = extractText(name, ext, data)
	return att, nil
}

// =============================================================================
// TEXT EXTRACTION
// =============================================================================

// extractText pulls text content by extension. Binary document formats
// return a placeholder naming the file; real extraction is out of scope.
func extractText(name, ext string, data []byte) string {
	switch ext {
	case "txt", "md":
		if !utf8.Valid(data) {
			return fmt.Sprintf("[Error reading file: %s]", name)
		}
		return string(data)
	case "pdf":
		return fmt.Sprintf("[PDF File: %s - Content extraction not implemented yet. Please copy and paste the text content.]", name)
	case "doc", "docx":
		return fmt.Sprintf("[Word Document: %s - Content extraction not implemented yet. Please copy and paste the text content.]", name)
	default:
		return fmt.Sprintf("[File: %s - Content extraction not supported for this file type.]", name)
	}
}

// extension returns the lowercase extension of a filename without the dot.
func extension(name string) string {
	ext := filepath.Ext(name)
	if ext == "" {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
