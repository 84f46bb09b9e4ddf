// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package llm implements the provider-neutral streaming chat engine.
//
// # Key Types
//
//   - Conversation: the append-only message log and generation options
//     owned by one session.
//   - StreamFrame: the ephemeral decode unit emitted by provider adapters
//     (text delta, tool-call fragment, usage update, or end-of-stream).
//   - Accumulator: assembles one streamed response into either final text
//     or a set of completed tool calls.
//   - Engine: drives the multi-turn loop of building the request, draining
//     the stream, and dispatching tool calls until a turn yields only text.
//
// # Usage
//
//	engine := llm.NewEngine(provider, registry)
//	engine.SetSystemMessage("You are a helpful assistant.")
//	if err := engine.AddUserMessage("What is 2+2?"); err != nil {
//		return err
//	}
//	text, err := engine.Generate(ctx)
//
// Provider adapters live in the sibling openai and gemini packages; the
// tool package supplies the Dispatcher implementation.
package llm
