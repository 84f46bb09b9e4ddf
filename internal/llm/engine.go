// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"context"
	"encoding/json"
)

// =============================================================================
// COLLABORATOR INTERFACES
// =============================================================================

// ToolSpec describes one callable function to a provider: its name, a
// human-readable description, and a JSON-schema parameter object.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// Provider adapts the engine to one wire protocol. Stream issues a single
// streaming completion request built from the conversation and invokes
// emit for every decoded frame until the stream ends. A nil tools slice
// means the request must not advertise any functions.
type Provider interface {
	Stream(ctx context.Context, conv *Conversation, tools []ToolSpec, emit func(StreamFrame)) error
}

// Dispatcher executes completed tool calls. Implementations run calls
// concurrently and return results indexed by original call order.
type Dispatcher interface {
	// Specs lists the functions available to the model.
	Specs() []ToolSpec
	// Dispatch fans out the calls, joins all of them, and returns results
	// in call order. Any single failure fails the whole batch.
	Dispatch(ctx context.Context, calls []ToolCall) ([]ToolResult, error)
}

// Listener receives live generation events for interactive consumers.
type Listener interface {
	// Delta is invoked for every non-empty text fragment, in arrival order.
	Delta(text string)
	// End is invoked once per generate call with the session usage total.
	End(usage Usage)
}

// =============================================================================
// ENGINE
// =============================================================================

// DefaultMaxTurns bounds the tool-calling loop. A model that keeps
// re-invoking tools would otherwise loop forever.
const DefaultMaxTurns = 8

// Engine drives the request/parse/dispatch loop for one session. It
// exclusively owns its Conversation; turns run sequentially, never
// concurrently, within a session.
type Engine struct {
	provider Provider
	tools    Dispatcher
	conv     *Conversation
	usage    Usage
	maxTurns int
}

// NewEngine creates an engine for the given provider. The dispatcher may
// be nil for sessions without tools.
func NewEngine(provider Provider, tools Dispatcher) *Engine {
	return &Engine{
		provider: provider,
		tools:    tools,
		conv:     NewConversation(),
		maxTurns: DefaultMaxTurns,
	}
}

// WithMaxTurns overrides the tool-calling loop bound. Zero or negative
// disables the bound entirely.
func (e *Engine) WithMaxTurns(n int) *Engine {
	e.maxTurns = n
	return e
}

// WithOptions replaces the session generation options.
func (e *Engine) WithOptions(opts Options) *Engine {
	e.conv.Options = opts
	return e
}

// Conversation exposes the session message log for persistence and
// display. Callers must not mutate it directly.
func (e *Engine) Conversation() *Conversation {
	return e.conv
}

// Usage returns the token totals accumulated across all turns of all
// generate calls in this session.
func (e *Engine) Usage() Usage {
	return e.usage
}

// =============================================================================
// CONVERSATION OPERATIONS
// =============================================================================

// SetSystemMessage replaces the session's system instruction.
func (e *Engine) SetSystemMessage(text string) {
	e.conv.SetSystemMessage(text)
}

// AddUserMessage appends a user message. Attachment files are embedded as
// inline base64 parts; an unsupported extension fails the whole call
// without mutating the conversation.
func (e *Engine) AddUserMessage(text string, files ...string) error {
	parts, err := EncodeAttachments(files)
	if err != nil {
		return err
	}
	e.conv.Append(NewUserMessage(text, parts...))
	return nil
}

// Reset discards the conversation log, keeping the system message and
// options. Accumulated usage is kept; it reports session totals.
func (e *Engine) Reset() {
	e.conv.Reset()
}

// AddAssistantMessage appends an assistant message directly, bypassing
// generation. Used when replaying a saved transcript.
func (e *Engine) AddAssistantMessage(text string) {
	e.conv.Append(NewAssistantMessage(text))
}

// SetOption overrides default generation parameters for subsequent
// requests in this session.
func (e *Engine) SetOption(opts Options) {
	e.conv.Options = opts
}

// =============================================================================
// TURN LOOP
// =============================================================================

// Generate runs the full turn loop and returns the final assistant text.
func (e *Engine) Generate(ctx context.Context) (string, error) {
	return e.run(ctx, nil)
}

// GenerateStream runs the same loop, forwarding text deltas to the
// listener as they arrive instead of only returning the buffered result.
func (e *Engine) GenerateStream(ctx context.Context, listener Listener) (string, error) {
	return e.run(ctx, listener)
}

// run is the request/stream-drain/dispatch loop. Conversation state is
// mutated only after each sub-step fully succeeds, so a failed turn leaves
// the log at its last good state.
func (e *Engine) run(ctx context.Context, listener Listener) (string, error) {
	for turn := 0; ; turn++ {
		if e.maxTurns > 0 && turn >= e.maxTurns {
			return "", ErrTooManyTurns
		}

		acc := NewAccumulator(listener)
		if err := e.provider.Stream(ctx, e.conv, e.requestTools(), acc.Feed); err != nil {
			return "", err
		}

		result, err := acc.Finish()
		if err != nil {
			return "", err
		}
		e.usage = e.usage.Add(result.Usage)

		if !result.HasToolCalls() {
			e.conv.Append(NewAssistantMessage(result.Text))
			if listener != nil {
				listener.End(e.usage)
			}
			return result.Text, nil
		}

		e.conv.Append(NewToolCallMessage(result.ToolCalls))

		results, err := e.dispatch(ctx, result.ToolCalls)
		if err != nil {
			return "", err
		}
		for _, r := range results {
			e.conv.Append(NewToolResultMessage(r))
		}
	}
}

// requestTools returns the function specs to advertise on the next
// request. Providers reject function declarations when the conversation
// carries inline attachment data, so tools are withheld in that case.
func (e *Engine) requestTools() []ToolSpec {
	if e.tools == nil {
		return nil
	}
	specs := e.tools.Specs()
	if len(specs) == 0 {
		return nil
	}
	if e.conv.HasInlineData() {
		return nil
	}
	return specs
}

// dispatch runs the tool batch, mapping a missing dispatcher to a
// validation error rather than a panic.
func (e *Engine) dispatch(ctx context.Context, calls []ToolCall) ([]ToolResult, error) {
	if e.tools == nil {
		return nil, &ValidationError{
			Field:   calls[0].Name,
			Message: "function not found",
		}
	}
	return e.tools.Dispatch(ctx, calls)
}
