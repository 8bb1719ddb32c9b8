// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config handles application configuration: defaults, TOML file
// loading, environment overrides, and validation.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// CONFIG TYPES
// =============================================================================

// Config is the top-level application configuration.
type Config struct {
	// Application name, shown in logs and the health endpoint.
	AppName string `toml:"app_name" json:"app_name"`

	// Server configuration
	Server ServerConfig `toml:"server" json:"server"`

	// Groq provider configuration
	Groq GroqConfig `toml:"groq" json:"groq"`

	// Upload policy
	Upload UploadConfig `toml:"upload" json:"upload"`

	// Storage configuration
	Storage StorageConfig `toml:"storage" json:"storage"`
}

// ServerConfig contains the HTTP listener settings.
type ServerConfig struct {
	Host string `toml:"host" json:"host"`
	Port int    `toml:"port" json:"port"`

	// AllowedOrigins lists CORS origins. "*" allows any origin.
	AllowedOrigins []string `toml:"allowed_origins" json:"allowed_origins"`

	// RateLimitPerSecond caps requests per client IP. 0 disables limiting.
	RateLimitPerSecond float64 `toml:"rate_limit_per_second" json:"rate_limit_per_second"`
	RateLimitBurst     int     `toml:"rate_limit_burst" json:"rate_limit_burst"`
}

// GroqConfig contains the provider connection settings.
type GroqConfig struct {
	APIKey         string `toml:"api_key" json:"api_key"`
	BaseURL        string `toml:"base_url" json:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds" json:"timeout_seconds"`
}

// UploadConfig contains the attachment acceptance policy.
type UploadConfig struct {
	// MaxFileSize is the upload size cap in bytes.
	MaxFileSize int64 `toml:"max_file_size" json:"max_file_size"`

	// AllowedTypes is the extension allow-list, lowercase, without dots.
	AllowedTypes []string `toml:"allowed_types" json:"allowed_types"`
}

// StorageConfig contains chat persistence settings.
type StorageConfig struct {
	// DataDir is the chat snapshot directory. Empty keeps chats
	// memory-only.
	DataDir string `toml:"data_dir" json:"data_dir"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		AppName: "groqchat",
		Server: ServerConfig{
			Host:               "127.0.0.1",
			Port:               8790,
			AllowedOrigins:     []string{"*"},
			RateLimitPerSecond: 20,
			RateLimitBurst:     50,
		},
		Groq: GroqConfig{
			BaseURL:        "https://api.groq.com/openai/v1",
			TimeoutSeconds: 60,
		},
		Upload: UploadConfig{
			MaxFileSize:  52428800, // 50MB
			AllowedTypes: []string{"pdf", "txt", "doc", "docx", "md"},
		},
		Storage: StorageConfig{},
	}
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads configuration from the TOML file at path, falling back to
// defaults when the file does not exist, then applies environment
// overrides and validates. An empty path skips file loading entirely.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("failed to decode TOML file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnvOverrides applies environment variables on top of the current
// values. GROQ_API_KEY matches the provider's conventional variable; the
// rest use the GROQCHAT_ prefix.
func (c *Config) ApplyEnvOverrides() {
	if key := os.Getenv("GROQ_API_KEY"); key != "" {
		c.Groq.APIKey = key
	}
	if url := os.Getenv("GROQCHAT_BASE_URL"); url != "" {
		c.Groq.BaseURL = url
	}
	if port := os.Getenv("GROQCHAT_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if host := os.Getenv("GROQCHAT_HOST"); host != "" {
		c.Server.Host = host
	}
	if size := os.Getenv("GROQCHAT_MAX_FILE_SIZE"); size != "" {
		if n, err := strconv.ParseInt(size, 10, 64); err == nil {
			c.Upload.MaxFileSize = n
		}
	}
	if types := os.Getenv("GROQCHAT_ALLOWED_FILE_TYPES"); types != "" {
		c.Upload.AllowedTypes = splitList(types)
	}
	if origins := os.Getenv("GROQCHAT_ALLOWED_ORIGINS"); origins != "" {
		c.Server.AllowedOrigins = splitList(origins)
	}
	if dir := os.Getenv("GROQCHAT_DATA_DIR"); dir != "" {
		c.Storage.DataDir = dir
	}
}

// splitList parses a comma-separated list, trimming whitespace and
// dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, strings.ToLower(item))
		}
	}
	return out
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError describes a single invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors collects all validation failures.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration and returns all problems found.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, ValidationError{Field: "server.port", Message: fmt.Sprintf("must be 1-65535, got %d", c.Server.Port)})
	}
	if c.Groq.BaseURL == "" {
		errs = append(errs, ValidationError{Field: "groq.base_url", Message: "must not be empty"})
	}
	if c.Groq.TimeoutSeconds <= 0 {
		errs = append(errs, ValidationError{Field: "groq.timeout_seconds", Message: "must be positive"})
	}
	if c.Upload.MaxFileSize <= 0 {
		errs = append(errs, ValidationError{Field: "upload.max_file_size", Message: "must be positive"})
	}
	if len(c.Upload.AllowedTypes) == 0 {
		errs = append(errs, ValidationError{Field: "upload.allowed_types", Message: "must not be empty"})
	}
	if c.Server.RateLimitPerSecond < 0 {
		errs = append(errs, ValidationError{Field: "server.rate_limit_per_second", Message: "must not be negative"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// Addr returns the listen address in host:port form.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	out := *c
	out.Server.AllowedOrigins = append([]string(nil), c.Server.AllowedOrigins...)
	out.Upload.AllowedTypes = append([]string(nil), c.Upload.AllowedTypes...)
	return &out
}

// String returns the configuration as JSON with the API key redacted.
// Safe to log.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Groq.APIKey != "" {
		safe.Groq.APIKey = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}
