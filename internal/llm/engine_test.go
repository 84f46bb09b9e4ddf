// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// =============================================================================
// FAKES
// =============================================================================

// scriptedProvider replays one frame script per Stream call and records
// the tool specs advertised on each request.
type scriptedProvider struct {
	scripts   [][]StreamFrame
	call      int
	toolsSeen [][]ToolSpec
}

func (p *scriptedProvider) Stream(ctx context.Context, conv *Conversation, tools []ToolSpec, emit func(StreamFrame)) error {
	p.toolsSeen = append(p.toolsSeen, tools)
	if p.call >= len(p.scripts) {
		emit(EndFrame("stop"))
		return nil
	}
	script := p.scripts[p.call]
	p.call++
	for _, frame := range script {
		emit(frame)
	}
	return nil
}

// mapDispatcher executes calls against a plain function map.
type mapDispatcher struct {
	specs []ToolSpec
	fns   map[string]func(args json.RawMessage) (string, error)
}

func (d *mapDispatcher) Specs() []ToolSpec { return d.specs }

func (d *mapDispatcher) Dispatch(ctx context.Context, calls []ToolCall) ([]ToolResult, error) {
	results := make([]ToolResult, len(calls))
	for i, call := range calls {
		fn, ok := d.fns[call.Name]
		if !ok {
			return nil, &ValidationError{Field: call.Name, Message: "function not found"}
		}
		value, err := fn(json.RawMessage(call.Arguments))
		if err != nil {
			return nil, &ToolError{Name: call.Name, Err: err}
		}
		results[i] = ToolResult{ID: call.ID, Name: call.Name, Value: value}
	}
	return results, nil
}

// =============================================================================
// PLAIN TEXT EXCHANGE
// =============================================================================

// TestEngine_PlainTextExchange runs the minimal end-to-end flow: one user
// message, one streamed reply, two messages in the log.
func TestEngine_PlainTextExchange(t *testing.T) {
	provider := &scriptedProvider{scripts: [][]StreamFrame{
		{
			TextFrame("4"),
			EndFrame("stop"),
			UsageFrame(Usage{PromptTokens: 9, CompletionTokens: 1, TotalTokens: 10}),
		},
	}}

	engine := NewEngine(provider, nil)
	require.NoError(t, engine.AddUserMessage("what is 2+2? just the number"))

	reply, err := engine.Generate(context.Background())
	require.NoError(t, err)
	require.Equal(t, "4", reply)

	conv := engine.Conversation()
	require.Equal(t, 2, conv.Len())
	require.Equal(t, RoleUser, conv.Messages[0].Role)
	require.Equal(t, RoleAssistant, conv.Messages[1].Role)
	require.Equal(t, "4", conv.Messages[1].Text())
	require.Equal(t, 9, engine.Usage().PromptTokens)
}

func TestEngine_StreamListenerEvents(t *testing.T) {
	provider := &scriptedProvider{scripts: [][]StreamFrame{
		{
			TextFrame("Hel"),
			TextFrame("lo"),
			EndFrame("stop"),
			UsageFrame(Usage{PromptTokens: 3, CompletionTokens: 2}),
		},
	}}

	engine := NewEngine(provider, nil)
	require.NoError(t, engine.AddUserMessage("hi"))

	listener := &recordingListener{}
	reply, err := engine.GenerateStream(context.Background(), listener)
	require.NoError(t, err)
	require.Equal(t, "Hello", reply)
	require.Equal(t, []string{"Hel", "lo"}, listener.deltas)
	require.True(t, listener.ended)
	require.Equal(t, 3, listener.usage.PromptTokens)
}

// =============================================================================
// TOOL CALLING LOOP
// =============================================================================

// TestEngine_ToolCallLoop runs the full tool exchange: the first turn
// requests a function, the second produces the final answer. The log must
// hold user, assistant-with-calls, tool result, assistant.
func TestEngine_ToolCallLoop(t *testing.T) {
	provider := &scriptedProvider{scripts: [][]StreamFrame{
		{
			ToolCallFrame(0, "call_1", "get_random_number", ""),
			ToolCallFrame(0, "", "", `{"max": 10}`),
			EndFrame("tool_calls"),
			UsageFrame(Usage{PromptTokens: 10, CompletionTokens: 5}),
		},
		{
			TextFrame("The number is 7."),
			EndFrame("stop"),
			UsageFrame(Usage{PromptTokens: 8, CompletionTokens: 20}),
		},
	}}

	dispatcher := &mapDispatcher{
		specs: []ToolSpec{{Name: "get_random_number", Parameters: json.RawMessage(`{}`)}},
		fns: map[string]func(json.RawMessage) (string, error){
			"get_random_number": func(json.RawMessage) (string, error) { return "7", nil },
		},
	}

	engine := NewEngine(provider, dispatcher)
	require.NoError(t, engine.AddUserMessage("pick a random number up to 10"))

	reply, err := engine.Generate(context.Background())
	require.NoError(t, err)
	require.Equal(t, "The number is 7.", reply)

	conv := engine.Conversation()
	require.Equal(t, 4, conv.Len())
	require.Equal(t, RoleUser, conv.Messages[0].Role)
	require.Equal(t, RoleAssistant, conv.Messages[1].Role)
	require.Len(t, conv.Messages[1].ToolCalls, 1)
	require.Equal(t, RoleTool, conv.Messages[2].Role)
	require.Equal(t, "call_1", conv.Messages[2].ToolCallID)
	require.Equal(t, RoleAssistant, conv.Messages[3].Role)

	// Usage is additive across the two turns of one exchange.
	require.Equal(t, Usage{PromptTokens: 18, CompletionTokens: 25, TotalTokens: 0}.PromptTokens, engine.Usage().PromptTokens)
	require.Equal(t, 25, engine.Usage().CompletionTokens)
}

func TestEngine_MaxTurnsExceeded(t *testing.T) {
	// Every turn requests another tool call; the loop must stop.
	loop := []StreamFrame{
		ToolCallFrame(0, "call_x", "get_current_time", "{}"),
		EndFrame("tool_calls"),
	}
	provider := &scriptedProvider{scripts: [][]StreamFrame{loop, loop, loop, loop}}

	dispatcher := &mapDispatcher{
		specs: []ToolSpec{{Name: "get_current_time"}},
		fns: map[string]func(json.RawMessage) (string, error){
			"get_current_time": func(json.RawMessage) (string, error) { return `"now"`, nil },
		},
	}

	engine := NewEngine(provider, dispatcher).WithMaxTurns(3)
	require.NoError(t, engine.AddUserMessage("loop forever"))

	_, err := engine.Generate(context.Background())
	require.ErrorIs(t, err, ErrTooManyTurns)
}

// TestEngine_ToolCallWithoutDispatcher: a model inventing a function when
// no tools exist is a validation error, not a crash.
func TestEngine_ToolCallWithoutDispatcher(t *testing.T) {
	provider := &scriptedProvider{scripts: [][]StreamFrame{
		{
			ToolCallFrame(0, "call_1", "made_up", "{}"),
			EndFrame("tool_calls"),
		},
	}}

	engine := NewEngine(provider, nil)
	require.NoError(t, engine.AddUserMessage("hi"))

	_, err := engine.Generate(context.Background())
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
}

// =============================================================================
// ATTACHMENTS AND TOOL ADVERTISEMENT
// =============================================================================

// TestEngine_ToolsWithheldWithInlineData: once the log carries inline
// attachment bytes, requests stop advertising functions.
func TestEngine_ToolsWithheldWithInlineData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pic.png")
	require.NoError(t, os.WriteFile(path, []byte{0x89, 'P', 'N', 'G'}, 0644))

	provider := &scriptedProvider{scripts: [][]StreamFrame{
		{TextFrame("nice image"), EndFrame("stop")},
	}}
	dispatcher := &mapDispatcher{
		specs: []ToolSpec{{Name: "get_current_time"}},
		fns:   map[string]func(json.RawMessage) (string, error){},
	}

	engine := NewEngine(provider, dispatcher)
	require.NoError(t, engine.AddUserMessage("what is this?", path))

	_, err := engine.Generate(context.Background())
	require.NoError(t, err)

	require.Len(t, provider.toolsSeen, 1)
	require.Nil(t, provider.toolsSeen[0])
}

func TestEngine_UnsupportedAttachmentDoesNotMutateLog(t *testing.T) {
	engine := NewEngine(&scriptedProvider{}, nil)

	err := engine.AddUserMessage("look at this", "notes.txt")
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Equal(t, 0, engine.Conversation().Len())
}

// =============================================================================
// CONVERSATION STATE
// =============================================================================

func TestEngine_SystemMessageReplacedNotDuplicated(t *testing.T) {
	engine := NewEngine(&scriptedProvider{}, nil)
	engine.SetSystemMessage("You are terse.")
	require.NoError(t, engine.AddUserMessage("hi"))
	engine.SetSystemMessage("You are verbose.")

	conv := engine.Conversation()
	require.Equal(t, 2, conv.Len())
	require.Equal(t, RoleSystem, conv.Messages[0].Role)
	require.Equal(t, "You are verbose.", conv.Messages[0].Text())
}

func TestEngine_ResetKeepsSystemMessage(t *testing.T) {
	engine := NewEngine(&scriptedProvider{}, nil)
	engine.SetSystemMessage("You are a pirate.")
	require.NoError(t, engine.AddUserMessage("ahoy"))
	engine.AddAssistantMessage("Arr.")

	engine.Reset()

	conv := engine.Conversation()
	require.Equal(t, 1, conv.Len())
	system, ok := conv.SystemMessage()
	require.True(t, ok)
	require.Equal(t, "You are a pirate.", system)
}

func TestEngine_TranscriptReplay(t *testing.T) {
	engine := NewEngine(&scriptedProvider{scripts: [][]StreamFrame{
		{TextFrame("continuing"), EndFrame("stop")},
	}}, nil)

	require.NoError(t, engine.AddUserMessage("first question"))
	engine.AddAssistantMessage("first answer")
	require.NoError(t, engine.AddUserMessage("second question"))

	reply, err := engine.Generate(context.Background())
	require.NoError(t, err)
	require.Equal(t, "continuing", reply)
	require.Equal(t, 4, engine.Conversation().Len())
}
