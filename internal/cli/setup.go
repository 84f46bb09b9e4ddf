// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// setup.go - Shared command wiring: configuration loading and engine
// construction from a model profile.
package cli

import (
	"fmt"

	"github.com/jeranaias/puppet/internal/config"
	"github.com/jeranaias/puppet/internal/gemini"
	"github.com/jeranaias/puppet/internal/llm"
	"github.com/jeranaias/puppet/internal/openai"
	"github.com/jeranaias/puppet/internal/tool"
)

// loadConfig loads the configuration file named by --conf, falling back
// to the default path.
func loadConfig(args Args) (*config.Config, error) {
	if args.Config != "" {
		return config.Load(args.Config)
	}
	return config.LoadDefault()
}

// buildEngine constructs a generation engine for the requested model
// profile: provider adapter, built-in function registry, generation
// options, and system message.
func buildEngine(cfg *config.Config, name string) (*llm.Engine, error) {
	m, err := cfg.Model(name)
	if err != nil {
		return nil, err
	}

	apiKey, err := config.ResolveAPIKey(m.APIKey)
	if err != nil {
		return nil, err
	}

	var provider llm.Provider
	switch m.Provider {
	case "gemini":
		provider = gemini.NewClient(m.URL, apiKey)
	default:
		provider = openai.NewClient(m.URL, apiKey, m.Model)
	}

	// A typed nil dispatcher would still satisfy the interface, so leave
	// it absent entirely when the profile enables no functions.
	var dispatcher llm.Dispatcher
	if len(m.Functions) > 0 {
		registry, err := tool.NewBuiltinRegistry(m.Functions)
		if err != nil {
			return nil, fmt.Errorf("model functions: %w", err)
		}
		dispatcher = registry
	}

	engine := llm.NewEngine(provider, dispatcher).WithOptions(llm.Options{
		Temperature: m.Temperature,
		TopP:        m.TopP,
		MaxTokens:   m.MaxTokens,
	})
	if m.MaxTurns > 0 {
		engine.WithMaxTurns(m.MaxTurns)
	}
	if m.SystemMessage != "" {
		engine.SetSystemMessage(m.SystemMessage)
	}
	return engine, nil
}
