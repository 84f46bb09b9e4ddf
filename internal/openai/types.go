// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package openai

import (
	"encoding/json"

	"github.com/jeranaias/puppet/internal/llm"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// chatRequest is the OpenAI-compatible chat completion request body.
type chatRequest struct {
	Model          string          `json:"model,omitempty"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	TopP           *float64        `json:"top_p,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Stream         bool            `json:"stream"`
	StreamOptions  *streamOptions  `json:"stream_options,omitempty"`
	Tools          []wireTool      `json:"tools,omitempty"`
	ToolChoice     string          `json:"tool_choice,omitempty"`
	ResponseFormat json.RawMessage `json:"response_format,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// chatMessage is one wire-format message. Content is either a plain string
// or a list of content parts, depending on whether attachments are present.
type chatMessage struct {
	Role       string         `json:"role"`
	Content    any            `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type wireTool struct {
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type wireToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function wireCallFunction `json:"function"`
}

type wireCallFunction struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// streamChunk is one decoded SSE payload from the completion stream.
type streamChunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index int `json:"index"`
		Delta struct {
			Role      string           `json:"role,omitempty"`
			Content   *string          `json:"content"`
			ToolCalls []streamToolCall `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *wireUsage `json:"usage"`
}

type streamToolCall struct {
	Index    int              `json:"index"`
	ID       string           `json:"id"`
	Function wireCallFunction `json:"function"`
}

type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// errorResponse is the error envelope returned on non-200 statuses.
type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// =============================================================================
// PROJECTION
// =============================================================================

// decodeChunk projects one streamed payload into engine frames. A payload
// carrying only usage data yields a single usage frame; usage riding along
// with a choice is emitted as an extra frame.
func decodeChunk(data []byte) ([]llm.StreamFrame, error) {
	var chunk streamChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return nil, &llm.DecodeError{Message: "malformed stream chunk", Err: err}
	}

	var frames []llm.StreamFrame

	for _, choice := range chunk.Choices {
		// Providers send at most one tool-call fragment per event even
		// though the wire schema is a list.
		for _, tc := range choice.Delta.ToolCalls {
			frames = append(frames, llm.ToolCallFrame(tc.Index, tc.ID, tc.Function.Name, tc.Function.Arguments))
		}
		if choice.Delta.Content != nil {
			frames = append(frames, llm.TextFrame(*choice.Delta.Content))
		}
		if choice.FinishReason != "" {
			frames = append(frames, llm.EndFrame(choice.FinishReason))
		}
	}

	if chunk.Usage != nil {
		frames = append(frames, llm.UsageFrame(llm.Usage{
			PromptTokens:     chunk.Usage.PromptTokens,
			CompletionTokens: chunk.Usage.CompletionTokens,
			TotalTokens:      chunk.Usage.TotalTokens,
		}))
	}

	return frames, nil
}

// encodeMessage projects one engine message into the wire format.
func encodeMessage(msg llm.Message) chatMessage {
	wire := chatMessage{Role: msg.Role.String()}

	switch msg.Role {
	case llm.RoleAssistant:
		wire.Content = msg.Text()
		for _, call := range msg.ToolCalls {
			wire.ToolCalls = append(wire.ToolCalls, wireToolCall{
				ID:   call.ID,
				Type: "function",
				Function: wireCallFunction{
					Name:      call.Name,
					Arguments: call.Arguments,
				},
			})
		}

	case llm.RoleTool:
		wire.Content = msg.Text()
		wire.ToolCallID = msg.ToolCallID

	case llm.RoleUser:
		if msg.HasInlineData() {
			parts := make([]contentPart, 0, len(msg.Parts))
			for _, p := range msg.Parts {
				switch p.Kind {
				case llm.PartText:
					parts = append(parts, contentPart{Type: "text", Text: p.Text})
				case llm.PartData:
					parts = append(parts, contentPart{
						Type:     "image_url",
						ImageURL: &imageURL{URL: p.DataURI()},
					})
				}
			}
			wire.Content = parts
		} else {
			wire.Content = msg.Text()
		}

	default:
		wire.Content = msg.Text()
	}

	return wire
}

// encodeTools projects tool specs into the request's function list.
func encodeTools(specs []llm.ToolSpec) []wireTool {
	if len(specs) == 0 {
		return nil
	}
	tools := make([]wireTool, 0, len(specs))
	for _, spec := range specs {
		tools = append(tools, wireTool{
			Type: "function",
			Function: wireFunction{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  spec.Parameters,
			},
		})
	}
	return tools
}
