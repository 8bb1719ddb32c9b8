// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aldenmoss/groqchat/internal/builder"
	"github.com/aldenmoss/groqchat/internal/config"
	"github.com/aldenmoss/groqchat/internal/groq"
	"github.com/aldenmoss/groqchat/internal/ingest"
	"github.com/aldenmoss/groqchat/internal/model"
	"github.com/aldenmoss/groqchat/internal/store"
)

// ============================================================================
// Constants
// ============================================================================

const (
	// MaxRequestBodySize limits the size of JSON request bodies (1MB).
	MaxRequestBodySize = 1 << 20

	// MaxCompletionBodySize limits completion request bodies (64MB).
	// Completion requests carry inlined attachment text, so they get a
	// much larger cap than the plain CRUD endpoints.
	MaxCompletionBodySize = 64 << 20

	// uploadFormOverhead is extra multipart form budget beyond the
	// configured per-file size limit (headers, boundaries, field names).
	uploadFormOverhead = 10 << 20

	// Version is the server version reported in health checks.
	Version = "0.1.0"
)

// ============================================================================
// Server
// ============================================================================

// ServerStats tracks request counts for the stats endpoint and logs.
type ServerStats struct {
	mu             sync.Mutex
	TotalRequests  int64
	TotalStreams   int64
	ActiveStreams  int64
	TotalUploads   int64
	FailedRequests int64
}

// snapshot returns a copy of the current stats.
func (s *ServerStats) snapshot() ServerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ServerStats{
		TotalRequests:  s.TotalRequests,
		TotalStreams:   s.TotalStreams,
		ActiveStreams:  s.ActiveStreams,
		TotalUploads:   s.TotalUploads,
		FailedRequests: s.FailedRequests,
	}
}

// Server is the HTTP API server backing the browser chat client.
//
// It exposes chat and message CRUD over the in-memory store, file upload
// ingestion, and a completion proxy that relays Groq responses either as
// a single JSON body or as a Server-Sent Events stream.
type Server struct {
	config   *config.Config
	store    *store.ChatStore
	ingestor *ingest.Ingestor
	client   *groq.Client

	mux        *http.ServeMux
	httpServer *http.Server
	startTime  time.Time
	stats      ServerStats
}

// NewServer creates a Server wired to the given config.
// The store, ingestor, and Groq client are built from config defaults;
// use the WithX builders to substitute custom instances (tests do this).
func NewServer(cfg *config.Config) (*Server, error) {
	st, err := store.New(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("creating chat store: %w", err)
	}

	client := groq.NewClient(cfg.Groq.APIKey)
	if cfg.Groq.BaseURL != "" {
		client = client.WithBaseURL(cfg.Groq.BaseURL)
	}
	if cfg.Groq.TimeoutSeconds > 0 {
		client = client.WithTimeout(time.Duration(cfg.Groq.TimeoutSeconds) * time.Second)
	}

	s := &Server{
		config: cfg,
		store:  st,
		ingestor: ingest.New(ingest.Policy{
			MaxFileSize:  cfg.Upload.MaxFileSize,
			AllowedTypes: cfg.Upload.AllowedTypes,
		}),
		client:    client,
		mux:       http.NewServeMux(),
		startTime: time.Now(),
	}
	s.setupRoutes()
	return s, nil
}

// WithStore replaces the chat store.
func (s *Server) WithStore(st *store.ChatStore) *Server {
	s.store = st
	return s
}

// WithIngestor replaces the upload ingestor.
func (s *Server) WithIngestor(in *ingest.Ingestor) *Server {
	s.ingestor = in
	return s
}

// WithGroqClient replaces the Groq client.
func (s *Server) WithGroqClient(c *groq.Client) *Server {
	s.client = c
	return s
}

// Ingestor returns the upload ingestor, so config reloads can swap its policy.
func (s *Server) Ingestor() *ingest.Ingestor {
	return s.ingestor
}

// Stats returns a snapshot of server counters.
func (s *Server) Stats() ServerStats {
	return s.stats.snapshot()
}

// setupRoutes registers all HTTP routes on the mux.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("POST /chats", s.handleCreateChat)
	s.mux.HandleFunc("GET /chats", s.handleListChats)
	s.mux.HandleFunc("GET /chats/{id}", s.handleGetChat)
	s.mux.HandleFunc("PUT /chats/{id}", s.handleUpdateChat)
	s.mux.HandleFunc("DELETE /chats/{id}", s.handleDeleteChat)
	s.mux.HandleFunc("POST /chats/{id}/messages", s.handleAppendMessage)
	s.mux.HandleFunc("POST /upload", s.handleUpload)
	s.mux.HandleFunc("POST /chat/completions", s.handleChatCompletions)
	s.mux.HandleFunc("GET /health", s.handleHealth)
}

// Handler returns the full handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	chain := Chain(
		RecoveryMiddleware(),
		SecurityHeadersMiddleware(),
		LoggingMiddleware(log.Default()),
		RateLimitMiddleware(NewRateLimiter(
			s.config.Server.RateLimitPerSecond,
			s.config.Server.RateLimitBurst,
		)),
		CORSMiddleware(s.corsConfig()),
	)
	return chain(s.mux)
}

// corsConfig builds the CORS config from server configuration.
func (s *Server) corsConfig() *CORSConfig {
	cc := DefaultCORSConfig()
	if len(s.config.Server.AllowedOrigins) > 0 {
		cc.AllowedOrigins = s.config.Server.AllowedOrigins
	}
	return cc
}

// Start begins serving HTTP requests. Blocks until the server stops.
func (s *Server) Start() error {
	addr := s.config.Addr()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	log.Printf("SERVER_START | addr=%s version=%s", addr, Version)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	log.Printf("SERVER_SHUTDOWN | uptime=%s", time.Since(s.startTime).Round(time.Second))
	return s.httpServer.Shutdown(ctx)
}

// ============================================================================
// Response Helpers
// ============================================================================

// errorBody is the error envelope returned by all endpoints.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("WRITE_JSON_FAILED | error=%v", err)
	}
}

// writeError writes a JSON error envelope with the given status code.
func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{
		Message: message,
		Type:    errType,
		Code:    fmt.Sprintf("%d", status),
	}})
}

// decodeJSON decodes a size-capped JSON request body into v.
// Returns an error suitable for writeError on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, maxSize int64, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if strings.Contains(err.Error(), "request body too large") {
			return fmt.Errorf("request body exceeds %d bytes", maxSize)
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// ============================================================================
// Chat CRUD Handlers
// ============================================================================

// createChatRequest is the body of POST /chats.
type createChatRequest struct {
	Title         string `json:"title"`
	Model         string `json:"model"`
	Mode          string `json:"mode,omitempty"`
	WebSearch     bool   `json:"webSearch,omitempty"`
	BrowserSearch bool   `json:"browserSearch,omitempty"`
}

func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	s.countRequest()

	var req createChatRequest
	if err := decodeJSON(w, r, MaxRequestBodySize, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}

	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "title is required")
		return
	}
	if req.Model == "" {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "model is required")
		return
	}

	chat := s.store.Create(req.Title, req.Model, store.CreateOptions{
		Mode:          model.Mode(req.Mode),
		WebSearch:     req.WebSearch,
		BrowserSearch: req.BrowserSearch,
	})

	log.Printf("CHAT_CREATED | id=%s model=%s", chat.ID, chat.Model)
	writeJSON(w, http.StatusOK, chat)
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	s.countRequest()
	writeJSON(w, http.StatusOK, s.store.List())
}

func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	s.countRequest()

	chat, err := s.store.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

// updateChatRequest is the body of PUT /chats/{id}. Pointer fields
// distinguish "absent" from "set to zero value".
type updateChatRequest struct {
	Title         *string `json:"title,omitempty"`
	Model         *string `json:"model,omitempty"`
	Mode          *string `json:"mode,omitempty"`
	WebSearch     *bool   `json:"webSearch,omitempty"`
	BrowserSearch *bool   `json:"browserSearch,omitempty"`
}

func (s *Server) handleUpdateChat(w http.ResponseWriter, r *http.Request) {
	s.countRequest()

	var req updateChatRequest
	if err := decodeJSON(w, r, MaxRequestBodySize, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}

	patch := store.ChatPatch{
		Title:         req.Title,
		Model:         req.Model,
		WebSearch:     req.WebSearch,
		BrowserSearch: req.BrowserSearch,
	}
	if req.Mode != nil {
		m := model.Mode(*req.Mode)
		patch.Mode = &m
	}

	chat, err := s.store.Update(r.PathValue("id"), patch)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	s.countRequest()

	id := r.PathValue("id")
	if !s.store.Delete(id) {
		writeError(w, http.StatusNotFound, "not_found_error", "chat not found")
		return
	}

	log.Printf("CHAT_DELETED | id=%s", id)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ============================================================================
// Message Handler
// ============================================================================

// appendMessageRequest is the body of POST /chats/{id}/messages.
type appendMessageRequest struct {
	Role        string              `json:"role"`
	Content     string              `json:"content"`
	Attachments []*model.Attachment `json:"attachments,omitempty"`
}

func (s *Server) handleAppendMessage(w http.ResponseWriter, r *http.Request) {
	s.countRequest()

	var req appendMessageRequest
	if err := decodeJSON(w, r, MaxCompletionBodySize, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}

	if req.Role == "" {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "role is required")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "content is required")
		return
	}

	role := model.Role(req.Role)
	if !role.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_request_error",
			fmt.Sprintf("invalid role: %s", req.Role))
		return
	}

	msg, err := s.store.AppendMessage(r.PathValue("id"), role, req.Content, req.Attachments)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// ============================================================================
// Upload Handler
// ============================================================================

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	s.countRequest()

	maxForm := s.config.Upload.MaxFileSize + uploadFormOverhead
	r.Body = http.MaxBytesReader(w, r.Body, maxForm)

	if err := r.ParseMultipartForm(maxForm); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error",
			"could not parse multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "No file provided")
		return
	}

	// Single file keeps the original flat contract: 400 on any policy
	// violation, the bare attachment object on success.
	if len(files) == 1 {
		att, err := s.ingestFile(files[0])
		if err != nil {
			var policyErr *ingest.PolicyError
			if errors.As(err, &policyErr) {
				writeError(w, http.StatusBadRequest, "invalid_request_error", policyErr.Message)
				return
			}
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
			return
		}
		s.countUploads(1)
		writeJSON(w, http.StatusOK, att)
		return
	}

	// Multi-file batches report per-file outcomes independently, so one
	// rejected file does not fail the rest.
	results := make([]uploadResult, 0, len(files))
	ok := 0
	for _, fh := range files {
		att, err := s.ingestFile(fh)
		if err != nil {
			results = append(results, uploadResult{Name: fh.Filename, Error: err.Error()})
			continue
		}
		results = append(results, uploadResult{Name: att.Name, Attachment: att})
		ok++
	}

	s.countUploads(ok)
	writeJSON(w, http.StatusOK, results)
}

// uploadResult is one entry of a multi-file upload response.
type uploadResult struct {
	Name       string            `json:"name"`
	Attachment *model.Attachment `json:"attachment,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// ingestFile opens one multipart file and runs it through the ingestor.
func (s *Server) ingestFile(fh *multipart.FileHeader) (*model.Attachment, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("could not open uploaded file: %w", err)
	}
	defer f.Close()

	return s.ingestor.Ingest(fh.Filename, fh.Header.Get("Content-Type"), fh.Size, f)
}

// countUploads bumps the upload counter and logs the batch.
func (s *Server) countUploads(n int) {
	s.stats.mu.Lock()
	s.stats.TotalUploads += int64(n)
	s.stats.mu.Unlock()
	log.Printf("UPLOAD_OK | files=%d", n)
}

// ============================================================================
// Completion Handler
// ============================================================================

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	s.countRequest()

	var req builder.Request
	if err := decodeJSON(w, r, MaxCompletionBodySize, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}

	provReq, err := builder.Build(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}

	if req.Stream {
		s.handleStreamingCompletion(w, r, provReq)
		return
	}

	resp, err := s.client.CreateCompletion(r.Context(), provReq)
	if err != nil {
		status, errType := mapProviderError(err)
		writeError(w, status, errType, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// streamEvent is one SSE event relayed to the browser client.
type streamEvent struct {
	Content   string `json:"content"`
	Reasoning string `json:"reasoning,omitempty"`
	Done      bool   `json:"done"`
	Error     string `json:"error,omitempty"`
}

// handleStreamingCompletion relays the upstream SSE stream to the client,
// translating provider chunks into the simplified event shape the browser
// consumes. Client disconnect cancels the upstream request via r.Context().
func (s *Server) handleStreamingCompletion(w http.ResponseWriter, r *http.Request, provReq *groq.CompletionRequest) {
	chunks, err := s.client.StreamCompletion(r.Context(), provReq)
	if err != nil {
		status, errType := mapProviderError(err)
		writeError(w, status, errType, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "server_error", "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	s.stats.mu.Lock()
	s.stats.TotalStreams++
	s.stats.ActiveStreams++
	s.stats.mu.Unlock()
	defer func() {
		s.stats.mu.Lock()
		s.stats.ActiveStreams--
		s.stats.mu.Unlock()
	}()

	start := time.Now()
	for chunk := range chunks {
		if chunk.HasError() {
			sendStreamEvent(w, flusher, streamEvent{Error: chunk.Error.Error()})
			log.Printf("STREAM_ERROR | model=%s error=%v", provReq.Model, chunk.Error)
			return
		}

		// One outbound event per provider unit, in arrival order. The
		// unit carrying the natural stop keeps its text so no trailing
		// delta is lost.
		done := chunk.IsDone()
		sendStreamEvent(w, flusher, streamEvent{
			Content:   chunk.Content(),
			Reasoning: chunk.Reasoning(),
			Done:      done,
		})
		if done {
			break
		}
	}

	log.Printf("STREAM_DONE | model=%s duration=%s", provReq.Model, time.Since(start).Round(time.Millisecond))
}

// sendStreamEvent writes a single SSE data event and flushes.
func sendStreamEvent(w http.ResponseWriter, flusher http.Flusher, ev streamEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("STREAM_MARSHAL_FAILED | error=%v", err)
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}

// mapProviderError maps a provider client error to an HTTP status and
// error type for the response envelope. Every downstream failure is a
// 500 to the caller; the type field keeps the distinction.
func mapProviderError(err error) (int, string) {
	switch {
	case errors.Is(err, groq.ErrNotConfigured):
		return http.StatusInternalServerError, "configuration_error"
	case errors.Is(err, groq.ErrAuthFailed):
		return http.StatusInternalServerError, "authentication_error"
	case errors.Is(err, groq.ErrRateLimited):
		return http.StatusInternalServerError, "rate_limit_error"
	case errors.Is(err, groq.ErrModelNotFound):
		return http.StatusInternalServerError, "model_error"
	}
	return http.StatusInternalServerError, "api_error"
}

// ============================================================================
// Health Handler
// ============================================================================

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
	Chats         int    `json:"chats"`
	Configured    bool   `json:"configured"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.countRequest()

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		Version:       Version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Chats:         s.store.Count(),
		Configured:    s.client.IsConfigured(),
	})
}

// countRequest bumps the total request counter.
func (s *Server) countRequest() {
	s.stats.mu.Lock()
	s.stats.TotalRequests++
	s.stats.mu.Unlock()
}
