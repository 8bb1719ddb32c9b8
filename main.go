// groqchat - HTTP backend for a browser LLM chat client.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aldenmoss/groqchat/internal/config"
	"github.com/aldenmoss/groqchat/internal/ingest"
	"github.com/aldenmoss/groqchat/internal/server"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "groqchat.toml", "path to config file")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("groqchat %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if cfg.Groq.APIKey == "" {
		log.Printf("STARTUP_WARNING | GROQ_API_KEY not set, completion requests will fail")
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		return err
	}

	// Hot-reload upload policy when the config file changes. Server
	// address and provider settings still need a restart.
	watcher, err := config.NewWatcher(configPath, func(updated *config.Config) {
		srv.Ingestor().SetPolicy(ingest.Policy{
			MaxFileSize:  updated.Upload.MaxFileSize,
			AllowedTypes: updated.Upload.AllowedTypes,
		})
	})
	if err != nil {
		// Not fatal, the server just won't pick up config edits
		log.Printf("CONFIG_WATCH_UNAVAILABLE | error=%v", err)
	} else if err := watcher.Watch(); err != nil {
		log.Printf("CONFIG_WATCH_UNAVAILABLE | error=%v", err)
	} else {
		defer watcher.Close()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Printf("SIGNAL_RECEIVED | signal=%s", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
