// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

// =============================================================================
// STREAMING FRAME
// =============================================================================

// FrameKind discriminates the variants of a decoded streaming frame.
type FrameKind int

const (
	// FrameText carries an incremental text fragment, possibly empty.
	FrameText FrameKind = iota
	// FrameToolCall carries one tool-call fragment addressed by index.
	FrameToolCall
	// FrameUsage carries token accounting for the turn.
	FrameUsage
	// FrameEnd signals normal termination of the current choice.
	FrameEnd
)

// StreamFrame is the ephemeral decode unit produced by a provider adapter
// and consumed immediately by the accumulator. Frames are never stored.
type StreamFrame struct {
	Kind FrameKind

	// FrameText
	Text string

	// FrameToolCall. ID and Name arrive once, on the first fragment for a
	// given index; ArgumentFragment arrives repeatedly and is concatenated
	// in arrival order.
	Index            int
	ID               string
	Name             string
	ArgumentFragment string

	// FrameUsage
	Usage Usage

	// FrameEnd
	FinishReason string
}

// TextFrame builds a text delta frame.
func TextFrame(text string) StreamFrame {
	return StreamFrame{Kind: FrameText, Text: text}
}

// ToolCallFrame builds a tool-call fragment frame.
func ToolCallFrame(index int, id, name, fragment string) StreamFrame {
	return StreamFrame{
		Kind:             FrameToolCall,
		Index:            index,
		ID:               id,
		Name:             name,
		ArgumentFragment: fragment,
	}
}

// UsageFrame builds a usage update frame.
func UsageFrame(u Usage) StreamFrame {
	return StreamFrame{Kind: FrameUsage, Usage: u}
}

// EndFrame builds a terminal frame.
func EndFrame(finishReason string) StreamFrame {
	return StreamFrame{Kind: FrameEnd, FinishReason: finishReason}
}
