// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// session.go - Saved conversation management for puppet.
//
// Command: session
// Short:   List, show, and delete saved conversations
//
// Examples:
//   puppet session list
//   puppet session show 4f7c…
//   puppet session delete 4f7c…
package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/jeranaias/puppet/internal/llm"
	"github.com/jeranaias/puppet/internal/store"
)

// HandleSession dispatches the session subcommands.
func HandleSession(args Args) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.Server.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()

	switch args.Subcommand {
	case "", "list", "ls", "l":
		return sessionList(ctx, st)

	case "show":
		if len(args.Raw) == 0 {
			return fmt.Errorf("usage: puppet session show <id>")
		}
		return sessionShow(ctx, st, args.Raw[0])

	case "delete", "rm":
		if len(args.Raw) == 0 {
			return fmt.Errorf("usage: puppet session delete <id>")
		}
		if err := st.Delete(ctx, args.Raw[0]); err != nil {
			return err
		}
		fmt.Println(InfoStyle.Render("Deleted: " + args.Raw[0]))
		return nil

	default:
		return fmt.Errorf("unknown session subcommand %q", args.Subcommand)
	}
}

// sessionList prints a column-aligned table of saved conversations.
func sessionList(ctx context.Context, st *store.Store) error {
	metas, err := st.List(ctx)
	if err != nil {
		return err
	}
	if len(metas) == 0 {
		fmt.Println(InfoStyle.Render("No saved conversations."))
		return nil
	}

	// Summaries may contain wide runes; align on display width.
	summaryWidth := 0
	for _, m := range metas {
		if w := runewidth.StringWidth(m.Summary); w > summaryWidth {
			summaryWidth = w
		}
	}
	if summaryWidth > 50 {
		summaryWidth = 50
	}

	fmt.Printf("%-36s  %s  %5s  %s\n", "ID",
		runewidth.FillRight("SUMMARY", summaryWidth), "MSGS", "CREATED")
	for _, m := range metas {
		summary := runewidth.Truncate(m.Summary, summaryWidth, "…")
		fmt.Printf("%-36s  %s  %5d  %s\n",
			m.ID,
			runewidth.FillRight(summary, summaryWidth),
			m.MessageCount,
			m.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

// sessionShow prints one transcript, role-prefixed.
func sessionShow(ctx context.Context, st *store.Store, id string) error {
	conv, err := st.Get(ctx, id)
	if err != nil {
		return err
	}

	fmt.Println(TitleStyle.Render(conv.Summary))
	fmt.Println(InfoStyle.Render(conv.ID + " · " + conv.CreatedAt.Local().Format("2006-01-02 15:04")))
	fmt.Println()

	for _, msg := range conv.Messages {
		switch msg.Role {
		case llm.RoleTool:
			fmt.Println(InfoStyle.Render(fmt.Sprintf("[%s → %s]", msg.Role.DisplayName(), msg.ToolName)))
		default:
			fmt.Println(PromptStyle.Render(msg.Role.DisplayName() + ":"))
		}
		text := strings.TrimSpace(msg.Text())
		if text != "" {
			fmt.Println(text)
		}
		for _, call := range msg.ToolCalls {
			fmt.Println(InfoStyle.Render(fmt.Sprintf("[calls %s(%s)]", call.Name, call.Arguments)))
		}
		fmt.Println()
	}
	return nil
}
