// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server implements the HTTP API consumed by the browser chat client.
//
// The server fronts three concerns: chat and message CRUD over the in-memory
// store, file upload ingestion into attachments, and a completion proxy that
// forwards requests to Groq and relays the answer back either as a single
// JSON body or as a Server-Sent Events stream.
//
// # Endpoints
//
//	POST   /chats                 Create a chat
//	GET    /chats                 List chats, most recently updated first
//	GET    /chats/{id}            Fetch one chat with its messages
//	PUT    /chats/{id}            Partially update a chat
//	DELETE /chats/{id}            Delete a chat
//	POST   /chats/{id}/messages   Append a message to a chat
//	POST   /upload                Ingest uploaded files into attachments
//	POST   /chat/completions      Proxy a completion (JSON or SSE stream)
//	GET    /health                Liveness and version info
//
// Errors use a single envelope: {"error":{"message","type","code"}}.
//
// # Key Types
//
//   - Server: route setup, handlers, lifecycle (Start/Shutdown)
//   - ServerStats: request and stream counters
//   - CORSConfig, RateLimiter: middleware configuration
//
// # Usage
//
//	cfg, _ := config.Load("groqchat.toml")
//	srv, err := server.NewServer(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Start(); err != nil {
//	    log.Fatal(err)
//	}
//
// All middleware (panic recovery, security headers, request logging, per-IP
// rate limiting, CORS) is applied by Handler; tests can exercise routes
// through it or hit the mux-registered handlers directly.
package server
