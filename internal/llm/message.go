// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package llm contains the provider-neutral chat engine: conversation
// state, streaming frame accumulation, and the multi-turn tool-calling loop.
package llm

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	case RoleTool:
		return "Tool"
	default:
		return string(r)
	}
}

// =============================================================================
// CONTENT PARTS
// =============================================================================

// PartKind discriminates the variants of a content part.
type PartKind int

const (
	// PartText is a plain text fragment.
	PartText PartKind = iota
	// PartData is inline binary content carried as base64 with a MIME type.
	PartData
)

// Part is one element of a message's content. User messages may carry
// several parts (prompt text plus inline attachments); all other roles
// carry a single text part.
type Part struct {
	Kind PartKind `json:"kind"`
	Text string   `json:"text,omitempty"`
	MIME string   `json:"mime,omitempty"`
	Data string   `json:"data,omitempty"` // base64 payload, without the data: prefix
}

// TextPart builds a plain text content part.
func TextPart(text string) Part {
	return Part{Kind: PartText, Text: text}
}

// DataURI renders an inline data part as a data: URI.
func (p Part) DataURI() string {
	return "data:" + p.MIME + ";base64," + p.Data
}

// =============================================================================
// TOOL CALLS
// =============================================================================

// ToolCall is a completed function invocation request emitted by the model.
// Arguments is the raw JSON-encoded argument string exactly as assembled
// from the stream; it is parsed again before reaching an implementation.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolResult is the outcome of executing one ToolCall. Value is the
// JSON-encoded return value of the implementation.
type ToolResult struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single turn in a conversation. Messages are
// immutable once appended to a conversation.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`

	// Content parts. For every role except User this is a single text part.
	Parts []Part `json:"parts"`

	// ToolCalls is set only on Assistant messages that invoked tools.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID correlates a Tool message to the assistant tool call that
	// requested it. ToolName carries the function name for providers whose
	// wire format addresses results by name rather than id.
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
}

// NewMessage creates a new single-part text message with a generated ID.
func NewMessage(role Role, text string) Message {
	return Message{
		ID:        generateID(),
		Role:      role,
		Timestamp: time.Now(),
		Parts:     []Part{TextPart(text)},
	}
}

// NewUserMessage creates a user message from prompt text and optional
// pre-encoded attachment parts.
func NewUserMessage(text string, attachments ...Part) Message {
	msg := NewMessage(RoleUser, text)
	msg.Parts = append(msg.Parts, attachments...)
	return msg
}

// NewAssistantMessage creates a plain assistant text message.
func NewAssistantMessage(text string) Message {
	return NewMessage(RoleAssistant, text)
}

// NewToolCallMessage creates the assistant message that records a set of
// tool invocations. Its text content is empty.
func NewToolCallMessage(calls []ToolCall) Message {
	msg := NewMessage(RoleAssistant, "")
	msg.ToolCalls = calls
	return msg
}

// NewToolResultMessage creates a tool-role message carrying one result.
func NewToolResultMessage(result ToolResult) Message {
	msg := NewMessage(RoleTool, result.Value)
	msg.ToolCallID = result.ID
	msg.ToolName = result.Name
	return msg
}

// Text returns the concatenation of the message's text parts.
func (m Message) Text() string {
	var out string
	for _, p := range m.Parts {
		if p.Kind == PartText {
			out += p.Text
		}
	}
	return out
}

// HasInlineData reports whether any part carries inline binary content.
func (m Message) HasInlineData() bool {
	for _, p := range m.Parts {
		if p.Kind == PartData {
			return true
		}
	}
	return false
}

// =============================================================================
// USAGE
// =============================================================================

// Usage holds token accounting for a generation.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add returns the element-wise sum of two usage records.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		TotalTokens:      u.TotalTokens + other.TotalTokens,
	}
}

// IsZero reports whether no tokens have been recorded.
func (u Usage) IsZero() bool {
	return u == Usage{}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// generateID creates a unique message ID.
func generateID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return "msg_" + hex.EncodeToString(bytes)
}
