// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tool

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/jeranaias/puppet/internal/llm"
)

// =============================================================================
// BUILT-IN FUNCTIONS
// =============================================================================

// builtins maps the function names that configuration may enable to their
// definitions.
var builtins = map[string]Definition{
	"get_random_number": {
		Name:        "get_random_number",
		Description: "Get a random integer between 0 and a given maximum.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"max": {
					"type": "number",
					"description": "The upper bound for the random number."
				}
			},
			"required": ["max"]
		}`),
		Call: getRandomNumber,
	},
	"close_door": {
		Name:        "close_door",
		Description: "Close the front door.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {}
		}`),
		Call: closeDoor,
	},
	"get_current_time": {
		Name:        "get_current_time",
		Description: "Get the current local date and time.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {}
		}`),
		Call: getCurrentTime,
	},
}

// Builtin looks up a built-in definition by name.
func Builtin(name string) (Definition, bool) {
	def, ok := builtins[name]
	return def, ok
}

// NewBuiltinRegistry builds a registry from a list of built-in function
// names, typically taken from the model's configuration.
func NewBuiltinRegistry(names []string) (*Registry, error) {
	defs := make([]Definition, 0, len(names))
	for _, name := range names {
		def, ok := Builtin(name)
		if !ok {
			return nil, &llm.ValidationError{Field: name, Message: "unknown function"}
		}
		defs = append(defs, def)
	}
	return NewRegistry(defs...)
}

// =============================================================================
// IMPLEMENTATIONS
// =============================================================================

func getRandomNumber(_ context.Context, args json.RawMessage) (any, error) {
	var params struct {
		Max float64 `json:"max"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return nil, err
	}
	if params.Max < 1 {
		return 0, nil
	}
	return rand.Intn(int(params.Max)), nil
}

func closeDoor(_ context.Context, _ json.RawMessage) (any, error) {
	// Placeholder effector: the original home-automation hook is not wired
	// up in this build, so report success unconditionally.
	return "the door is closed", nil
}

func getCurrentTime(_ context.Context, _ json.RawMessage) (any, error) {
	return time.Now().Format(time.RFC1123), nil
}
