// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/puppet/internal/llm"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func sampleMessages() []llm.Message {
	return []llm.Message{
		llm.NewUserMessage("what is 2+2?"),
		llm.NewAssistantMessage("4"),
	}
}

// =============================================================================
// ROUND TRIP
// =============================================================================

func TestStore_CreateAndGet(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	id, err := st.Create(ctx, "arithmetic", sampleMessages())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	conv, err := st.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, id, conv.ID)
	require.Equal(t, "arithmetic", conv.Summary)
	require.Len(t, conv.Messages, 2)
	require.Equal(t, llm.RoleUser, conv.Messages[0].Role)
	require.Equal(t, "what is 2+2?", conv.Messages[0].Text())
	require.Equal(t, "4", conv.Messages[1].Text())
	require.False(t, conv.CreatedAt.IsZero())
}

// TestStore_SummaryDerivedFromFirstUserMessage covers the empty-summary
// path, including truncation of long prompts.
func TestStore_SummaryDerivedFromFirstUserMessage(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	id, err := st.Create(ctx, "", sampleMessages())
	require.NoError(t, err)
	conv, err := st.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "what is 2+2?", conv.Summary)

	long := strings.Repeat("a", 80)
	id, err = st.Create(ctx, "", []llm.Message{llm.NewUserMessage(long)})
	require.NoError(t, err)
	conv, err = st.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(conv.Summary, "..."))
	require.LessOrEqual(t, len([]rune(conv.Summary)), 50)
}

func TestStore_GetNotFound(t *testing.T) {
	st := openTestStore(t)
	_, err := st.Get(context.Background(), "no-such-id")
	require.ErrorIs(t, err, ErrNotFound)
}

// =============================================================================
// LISTING
// =============================================================================

func TestStore_ListNewestFirst(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	first, err := st.Create(ctx, "first", sampleMessages())
	require.NoError(t, err)
	second, err := st.Create(ctx, "second", sampleMessages())
	require.NoError(t, err)

	metas, err := st.List(ctx)
	require.NoError(t, err)
	require.Len(t, metas, 2)
	require.Equal(t, 2, metas[0].MessageCount)

	ids := []string{metas[0].ID, metas[1].ID}
	require.Contains(t, ids, first)
	require.Contains(t, ids, second)
	require.False(t, metas[0].CreatedAt.Before(metas[1].CreatedAt))
}

func TestStore_ListEmpty(t *testing.T) {
	st := openTestStore(t)
	metas, err := st.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, metas)
}

// =============================================================================
// DELETION
// =============================================================================

func TestStore_Delete(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	id, err := st.Create(ctx, "doomed", sampleMessages())
	require.NoError(t, err)

	require.NoError(t, st.Delete(ctx, id))
	_, err = st.Get(ctx, id)
	require.ErrorIs(t, err, ErrNotFound)

	require.ErrorIs(t, st.Delete(ctx, id), ErrNotFound)
}

// TestStore_ToolCallTranscriptSurvives: messages carrying tool calls and
// results round-trip through the JSON column intact.
func TestStore_ToolCallTranscriptSurvives(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	messages := []llm.Message{
		llm.NewUserMessage("random number please"),
		llm.NewToolCallMessage([]llm.ToolCall{
			{ID: "call_1", Name: "get_random_number", Arguments: `{"max": 10}`},
		}),
		llm.NewToolResultMessage(llm.ToolResult{ID: "call_1", Name: "get_random_number", Value: "7"}),
		llm.NewAssistantMessage("The number is 7."),
	}

	id, err := st.Create(ctx, "", messages)
	require.NoError(t, err)
	conv, err := st.Get(ctx, id)
	require.NoError(t, err)

	require.Len(t, conv.Messages, 4)
	require.Len(t, conv.Messages[1].ToolCalls, 1)
	require.Equal(t, "get_random_number", conv.Messages[1].ToolCalls[0].Name)
	require.Equal(t, "call_1", conv.Messages[2].ToolCallID)
}
