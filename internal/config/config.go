// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading for puppet.
//
// Configuration lives in a single TOML file, by default
// ~/.puppet/config.toml, declaring named model profiles plus the server
// and TTS sections. API keys may be given literally or as "env:NAME"
// references resolved from the environment at load time.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNoModels indicates the configuration declares no model profiles.
	ErrNoModels = errors.New("configuration declares no models")

	// ErrModelNotFound indicates the requested profile name is not declared.
	ErrModelNotFound = errors.New("model profile not found")
)

// =============================================================================
// CONFIGURATION TYPES
// =============================================================================

// Config is the root configuration document.
type Config struct {
	// Default names the model profile used when none is requested.
	Default string `toml:"default" json:"default"`

	// Models maps profile names to their provider settings.
	Models map[string]ModelConfig `toml:"models" json:"models"`

	Server ServerConfig `toml:"server" json:"server"`
	TTS    TTSConfig    `toml:"tts" json:"tts"`
}

// ModelConfig declares one model profile.
type ModelConfig struct {
	// Provider selects the wire protocol: "openai" (also Azure gateways)
	// or "gemini".
	Provider string `toml:"provider" json:"provider"`

	// URL is the full streaming completions endpoint.
	URL string `toml:"url" json:"url"`

	// APIKey is the credential, literal or "env:NAME".
	APIKey string `toml:"api_key" json:"api_key"`

	// Model is the provider-side model identifier. Unused for endpoints
	// that encode the model in the URL.
	Model string `toml:"model" json:"model"`

	// SystemMessage, when set, seeds new sessions.
	SystemMessage string `toml:"system_message" json:"system_message"`

	// Functions lists the built-in function names enabled for this profile.
	Functions []string `toml:"functions" json:"functions"`

	Temperature *float64 `toml:"temperature" json:"temperature"`
	TopP        *float64 `toml:"top_p" json:"top_p"`
	MaxTokens   int      `toml:"max_tokens" json:"max_tokens"`

	// MaxTurns bounds the tool-calling loop per generate call.
	MaxTurns int `toml:"max_turns" json:"max_turns"`
}

// ServerConfig configures the puppet serve command.
type ServerConfig struct {
	Addr     string `toml:"addr" json:"addr"`
	Database string `toml:"database" json:"database"`

	// Upstream is the completion endpoint the reverse proxy forwards to,
	// with its credential.
	UpstreamURL    string `toml:"upstream_url" json:"upstream_url"`
	UpstreamAPIKey string `toml:"upstream_api_key" json:"upstream_api_key"`

	// RateLimit is requests per second per client; RateBurst the burst size.
	RateLimit float64 `toml:"rate_limit" json:"rate_limit"`
	RateBurst int     `toml:"rate_burst" json:"rate_burst"`
}

// TTSConfig configures the puppet speak command.
type TTSConfig struct {
	Provider string `toml:"provider" json:"provider"`
	URL      string `toml:"url" json:"url"`
	APIKey   string `toml:"api_key" json:"api_key"`
	Voice    string `toml:"voice" json:"voice"`
	Language string `toml:"language" json:"language"`
}

// =============================================================================
// LOADING
// =============================================================================

// ConfigDir returns the puppet configuration directory, creating it if
// needed.
func ConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(homeDir, ".puppet")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

// DefaultPath returns the default configuration file path.
func DefaultPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDefault loads the configuration from the default path.
func LoadDefault() (*Config, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return Load(path)
}

// applyDefaults fills in unset optional fields.
func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8787"
	}
	if c.Server.Database == "" {
		if dir, err := ConfigDir(); err == nil {
			c.Server.Database = filepath.Join(dir, "conversations.db")
		}
	}
	if c.Server.RateLimit <= 0 {
		c.Server.RateLimit = 5
	}
	if c.Server.RateBurst <= 0 {
		c.Server.RateBurst = 10
	}
}

// Validate checks the structural invariants of the document.
func (c *Config) Validate() error {
	if len(c.Models) == 0 {
		return ErrNoModels
	}
	if c.Default != "" {
		if _, ok := c.Models[c.Default]; !ok {
			return fmt.Errorf("%w: default profile %q", ErrModelNotFound, c.Default)
		}
	}
	for name, m := range c.Models {
		switch m.Provider {
		case "openai", "gemini", "":
		default:
			return fmt.Errorf("model %q: unknown provider %q", name, m.Provider)
		}
		if m.URL == "" {
			return fmt.Errorf("model %q: url is required", name)
		}
	}
	return nil
}

// =============================================================================
// LOOKUP
// =============================================================================

// Model resolves a profile by name. An empty name selects the configured
// default, falling back to the sole profile when only one is declared.
func (c *Config) Model(name string) (ModelConfig, error) {
	if name == "" {
		name = c.Default
	}
	if name == "" && len(c.Models) == 1 {
		for only := range c.Models {
			name = only
		}
	}
	m, ok := c.Models[name]
	if !ok {
		return ModelConfig{}, fmt.Errorf("%w: %q", ErrModelNotFound, name)
	}
	return m, nil
}

// =============================================================================
// CREDENTIAL RESOLUTION
// =============================================================================

// ResolveAPIKey expands an "env:NAME" credential reference from the
// environment. Literal values pass through unchanged.
func ResolveAPIKey(key string) (string, error) {
	name, ok := strings.CutPrefix(key, "env:")
	if !ok {
		return key, nil
	}
	value := os.Getenv(name)
	if value == "" {
		return "", fmt.Errorf("environment variable %s is not set", name)
	}
	return value, nil
}
