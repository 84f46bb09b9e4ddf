// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/puppet/internal/llm"
)

// collectFrames streams one request against a test server and returns the
// emitted frames.
func collectFrames(t *testing.T, handler http.HandlerFunc, conv *llm.Conversation, tools []llm.ToolSpec) ([]llm.StreamFrame, error) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL, "test-key", "test-model").WithHTTPClient(srv.Client())

	var frames []llm.StreamFrame
	err := client.Stream(context.Background(), conv, tools, func(f llm.StreamFrame) {
		frames = append(frames, f)
	})
	return frames, err
}

func textConversation(text string) *llm.Conversation {
	conv := llm.NewConversation()
	conv.Append(llm.NewUserMessage(text))
	return conv
}

// =============================================================================
// REQUEST SHAPE
// =============================================================================

// TestClient_RequestShape checks the outgoing body and both auth headers.
func TestClient_RequestShape(t *testing.T) {
	var gotBody map[string]any
	var gotHeader http.Header

	frames, err := collectFrames(t, func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"ok\"},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}, textConversation("hi"), []llm.ToolSpec{
		{Name: "get_current_time", Description: "clock", Parameters: json.RawMessage(`{"type":"object"}`)},
	})
	require.NoError(t, err)
	require.NotEmpty(t, frames)

	// Dual auth: plain api-key for Azure gateways plus a bearer token.
	require.Equal(t, "test-key", gotHeader.Get("api-key"))
	require.Equal(t, "Bearer test-key", gotHeader.Get("Authorization"))
	require.Equal(t, "text/event-stream", gotHeader.Get("Accept"))

	require.Equal(t, "test-model", gotBody["model"])
	require.Equal(t, true, gotBody["stream"])
	require.Equal(t, "auto", gotBody["tool_choice"])

	streamOpts, ok := gotBody["stream_options"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, true, streamOpts["include_usage"])

	tools, ok := gotBody["tools"].([]any)
	require.True(t, ok)
	require.Len(t, tools, 1)
}

func TestClient_NoToolChoiceWithoutTools(t *testing.T) {
	var gotBody map[string]any

	_, err := collectFrames(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		fmt.Fprint(w, "data: [DONE]\n\n")
	}, textConversation("hi"), nil)
	require.NoError(t, err)

	_, hasTools := gotBody["tools"]
	require.False(t, hasTools)
	_, hasChoice := gotBody["tool_choice"]
	require.False(t, hasChoice)
}

// =============================================================================
// STREAM DECODING
// =============================================================================

func TestClient_TextAndUsageFrames(t *testing.T) {
	frames, err := collectFrames(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[],\"usage\":{\"prompt_tokens\":9,\"completion_tokens\":2,\"total_tokens\":11}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}, textConversation("hello"), nil)
	require.NoError(t, err)

	acc := llm.NewAccumulator(nil)
	for _, f := range frames {
		acc.Feed(f)
	}
	result, err := acc.Finish()
	require.NoError(t, err)
	require.Equal(t, "Hello", result.Text)
	require.Equal(t, 9, result.Usage.PromptTokens)
	require.Equal(t, 2, result.Usage.CompletionTokens)
}

// TestClient_UsageOnlyChunkEmitsSingleFrame: the trailing accounting chunk
// with an empty choice list must not produce text or end frames.
func TestClient_UsageOnlyChunkEmitsSingleFrame(t *testing.T) {
	frames, err := collectFrames(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"choices\":[],\"usage\":{\"prompt_tokens\":5,\"completion_tokens\":0,\"total_tokens\":5}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}, textConversation("hi"), nil)
	require.NoError(t, err)

	require.Len(t, frames, 1)
	require.Equal(t, llm.FrameUsage, frames[0].Kind)
	require.Equal(t, 5, frames[0].Usage.PromptTokens)
}

func TestClient_ToolCallFragments(t *testing.T) {
	frames, err := collectFrames(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"tool_calls\":[{\"index\":0,\"id\":\"call_1\",\"function\":{\"name\":\"get_random_number\",\"arguments\":\"\"}}]}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"tool_calls\":[{\"index\":0,\"function\":{\"arguments\":\"{\\\"max\\\": 10}\"}}]}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"tool_calls\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}, textConversation("random please"), nil)
	require.NoError(t, err)

	acc := llm.NewAccumulator(nil)
	for _, f := range frames {
		acc.Feed(f)
	}
	result, err := acc.Finish()
	require.NoError(t, err)
	require.Len(t, result.ToolCalls, 1)
	require.Equal(t, "call_1", result.ToolCalls[0].ID)
	require.Equal(t, "get_random_number", result.ToolCalls[0].Name)
	require.JSONEq(t, `{"max": 10}`, result.ToolCalls[0].Arguments)
}

// =============================================================================
// ERROR PATHS
// =============================================================================

func TestClient_ErrorEnvelope(t *testing.T) {
	_, err := collectFrames(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"code":"401","message":"bad key"}}`)
	}, textConversation("hi"), nil)

	var tErr *llm.TransportError
	require.ErrorAs(t, err, &tErr)
	require.Equal(t, http.StatusUnauthorized, tErr.Status)
	require.Equal(t, "bad key", tErr.Body)
}

func TestClient_BadFrameIsDecodeError(t *testing.T) {
	_, err := collectFrames(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "event: oops\n\n")
	}, textConversation("hi"), nil)

	var dErr *llm.DecodeError
	require.ErrorAs(t, err, &dErr)
}

func TestClient_NotConfigured(t *testing.T) {
	client := NewClient("", "", "")
	err := client.Stream(context.Background(), textConversation("hi"), nil, func(llm.StreamFrame) {})
	require.ErrorIs(t, err, ErrNotConfigured)
}

// =============================================================================
// MESSAGE ENCODING
// =============================================================================

func TestEncodeMessage_UserWithAttachment(t *testing.T) {
	msg := llm.NewUserMessage("what is this?", llm.Part{
		Kind: llm.PartData,
		MIME: "image/png",
		Data: "aGVsbG8=",
	})

	wire := encodeMessage(msg)
	parts, ok := wire.Content.([]contentPart)
	require.True(t, ok)
	require.Len(t, parts, 2)
	require.Equal(t, "text", parts[0].Type)
	require.Equal(t, "image_url", parts[1].Type)
	require.Equal(t, "data:image/png;base64,aGVsbG8=", parts[1].ImageURL.URL)
}

func TestEncodeMessage_PlainUserIsString(t *testing.T) {
	wire := encodeMessage(llm.NewUserMessage("just text"))
	require.Equal(t, "just text", wire.Content)
}

func TestEncodeMessage_AssistantToolCalls(t *testing.T) {
	msg := llm.NewToolCallMessage([]llm.ToolCall{
		{ID: "call_1", Name: "close_door", Arguments: "{}"},
	})

	wire := encodeMessage(msg)
	require.Equal(t, "assistant", wire.Role)
	require.Len(t, wire.ToolCalls, 1)
	require.Equal(t, "function", wire.ToolCalls[0].Type)
	require.Equal(t, "close_door", wire.ToolCalls[0].Function.Name)
}

func TestEncodeMessage_ToolResult(t *testing.T) {
	msg := llm.NewToolResultMessage(llm.ToolResult{
		ID:    "call_1",
		Name:  "close_door",
		Value: `"the door is closed"`,
	})

	wire := encodeMessage(msg)
	require.Equal(t, "tool", wire.Role)
	require.Equal(t, "call_1", wire.ToolCallID)
	require.Equal(t, `"the door is closed"`, wire.Content)
}
