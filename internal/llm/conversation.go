// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
)

// =============================================================================
// GENERATION OPTIONS
// =============================================================================

// Options holds session-wide generation parameters. Nil pointer fields are
// omitted from provider requests so the provider's defaults apply.
type Options struct {
	Temperature    *float64
	TopP           *float64
	MaxTokens      int
	ResponseFormat json.RawMessage
}

// =============================================================================
// CONVERSATION
// =============================================================================

// Conversation is the ordered, append-only message log for one session,
// plus its generation options. It is exclusively owned by one Engine and
// never shared across sessions.
type Conversation struct {
	ID       string
	Messages []Message
	Options  Options
}

// NewConversation creates an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{ID: generateConversationID()}
}

// SetSystemMessage replaces any existing leading system message. At most
// one system message ever exists, always at index 0 when present.
func (c *Conversation) SetSystemMessage(text string) {
	msg := NewMessage(RoleSystem, text)
	if len(c.Messages) > 0 && c.Messages[0].Role == RoleSystem {
		c.Messages[0] = msg
		return
	}
	c.Messages = append([]Message{msg}, c.Messages...)
}

// SystemMessage returns the leading system message text, if any.
func (c *Conversation) SystemMessage() (string, bool) {
	if len(c.Messages) > 0 && c.Messages[0].Role == RoleSystem {
		return c.Messages[0].Text(), true
	}
	return "", false
}

// Reset discards the message log, keeping any leading system message and
// the generation options. A fresh ID is assigned.
func (c *Conversation) Reset() {
	var keep []Message
	if len(c.Messages) > 0 && c.Messages[0].Role == RoleSystem {
		keep = []Message{c.Messages[0]}
	}
	c.ID = generateConversationID()
	c.Messages = keep
}

// Append adds a message to the end of the log.
func (c *Conversation) Append(msg Message) {
	c.Messages = append(c.Messages, msg)
}

// Len returns the number of messages in the log.
func (c *Conversation) Len() int {
	return len(c.Messages)
}

// Last returns the most recent message, if any.
func (c *Conversation) Last() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// HasInlineData reports whether any message in the log carries inline
// binary content. Providers reject tool definitions alongside inline data,
// so the engine consults this before attaching tools to a request.
func (c *Conversation) HasInlineData() bool {
	for _, msg := range c.Messages {
		if msg.HasInlineData() {
			return true
		}
	}
	return false
}

// generateConversationID creates a unique conversation ID.
func generateConversationID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return "conv_" + hex.EncodeToString(bytes)
}
