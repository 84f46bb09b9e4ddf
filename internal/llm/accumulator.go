// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"sort"
	"strings"
)

// =============================================================================
// TURN RESULT
// =============================================================================

// TurnResult is the outcome of draining one streamed response.
// Either Text is the final assistant text, or ToolCalls holds one or more
// completed invocations (in which case any partial text was discarded).
type TurnResult struct {
	Text      string
	ToolCalls []ToolCall
	Usage     Usage
}

// HasToolCalls reports whether the turn requested tool execution.
func (r *TurnResult) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// =============================================================================
// ACCUMULATOR
// =============================================================================

// accState tracks the accumulator's position in its turn lifecycle.
type accState int

const (
	accCollecting accState = iota
	accDone
	accFailed
)

// Accumulator owns the in-progress assistant message for one turn: it
// appends text deltas, assembles tool-call argument fragments addressed by
// positional index, and tracks the latest usage figures. One accumulator
// serves exactly one streamed response.
type Accumulator struct {
	state    accState
	text     strings.Builder
	pending  map[int]*pendingToolCall
	usage    Usage
	listener Listener
}

// pendingToolCall is a tool call under assembly. ID and Name are
// first-write-wins; argument fragments concatenate in arrival order.
type pendingToolCall struct {
	id   string
	name string
	args strings.Builder
}

// NewAccumulator creates an accumulator for one turn. The listener may be
// nil; when set, text deltas are forwarded to it in arrival order.
func NewAccumulator(listener Listener) *Accumulator {
	return &Accumulator{
		pending:  make(map[int]*pendingToolCall),
		listener: listener,
	}
}

// Feed consumes one decoded frame. Frames arriving after the End frame are
// limited to trailing usage updates; anything else is ignored.
func (a *Accumulator) Feed(frame StreamFrame) {
	if a.state == accFailed {
		return
	}

	switch frame.Kind {
	case FrameText:
		if a.state != accCollecting {
			return
		}
		// Empty text deltas are a no-op, not an error.
		if frame.Text == "" {
			return
		}
		a.text.WriteString(frame.Text)
		if a.listener != nil {
			a.listener.Delta(frame.Text)
		}

	case FrameToolCall:
		if a.state != accCollecting {
			return
		}
		call, ok := a.pending[frame.Index]
		if !ok {
			call = &pendingToolCall{}
			a.pending[frame.Index] = call
		}
		if call.id == "" && frame.ID != "" {
			call.id = frame.ID
		}
		if call.name == "" && frame.Name != "" {
			call.name = frame.Name
		}
		call.args.WriteString(frame.ArgumentFragment)

	case FrameUsage:
		// Last-write-wins within a turn. Providers resend cumulative
		// figures, including in trailing frames after the final choice.
		a.usage = frame.Usage

	case FrameEnd:
		if a.state == accCollecting {
			a.state = accDone
		}
	}
}

// Finish closes the turn and returns its result. A turn that produced
// neither text nor tool calls is a protocol inconsistency.
func (a *Accumulator) Finish() (*TurnResult, error) {
	if len(a.pending) > 0 {
		calls, err := a.completedCalls()
		if err != nil {
			a.state = accFailed
			return nil, err
		}
		// Providers emit empty or throwaway text alongside tool calls;
		// the partial buffer is discarded.
		return &TurnResult{ToolCalls: calls, Usage: a.usage}, nil
	}

	if a.text.Len() == 0 {
		a.state = accFailed
		return nil, &DecodeError{Message: "empty turn", Err: ErrEmptyTurn}
	}

	return &TurnResult{Text: a.text.String(), Usage: a.usage}, nil
}

// completedCalls converts the pending map into final ToolCall records,
// sorted by index ascending for determinism.
func (a *Accumulator) completedCalls() ([]ToolCall, error) {
	indexes := make([]int, 0, len(a.pending))
	for idx := range a.pending {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	calls := make([]ToolCall, 0, len(a.pending))
	for _, idx := range indexes {
		p := a.pending[idx]
		if p.id == "" || p.name == "" {
			return nil, &DecodeError{Message: "tool call missing id or name"}
		}
		calls = append(calls, ToolCall{
			ID:        p.id,
			Name:      p.name,
			Arguments: p.args.String(),
		})
	}
	return calls, nil
}
