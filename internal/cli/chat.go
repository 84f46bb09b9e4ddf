// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat command for puppet.
//
// Command: chat
// Short:   Start an interactive chat session
//
// Examples:
//   puppet chat                  Start chat with the default profile
//   puppet chat --name gpt4      Use a specific model profile
//
// Interactive commands:
//   /help            Show available commands
//   /file <path>     Attach a file to the next message
//   /save            Save the transcript
//   /clear           Start a fresh conversation
//   /usage           Show token usage for the session
//   /render          Toggle markdown rendering of replies
//   /quit            Exit chat (also Ctrl+D)
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/jeranaias/puppet/internal/config"
	"github.com/jeranaias/puppet/internal/llm"
	"github.com/jeranaias/puppet/internal/store"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides line editing and input history for interactive chat.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a ChatCLI with history loaded from the config
// directory.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}

	c := &ChatCLI{
		line:        line,
		historyFile: filepath.Join(configDir, "chat_history"),
	}
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
	return c
}

// ReadInput reads one line with history navigation.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// Close restores the terminal and persists history.
func (c *ChatCLI) Close() {
	if f, err := os.Create(c.historyFile); err == nil {
		c.line.WriteHistory(f)
		f.Close()
	}
	c.line.Close()
}

// =============================================================================
// STREAM LISTENER
// =============================================================================

// printListener forwards text deltas to stdout as they arrive. When
// rendering is enabled deltas are buffered instead, so the finished reply
// can be printed as formatted markdown in one piece.
type printListener struct {
	render bool
	usage  llm.Usage
}

func (l *printListener) Delta(text string) {
	if l.render {
		return
	}
	fmt.Print(text)
}

func (l *printListener) End(usage llm.Usage) {
	l.usage = usage
}

// =============================================================================
// CHAT COMMAND
// =============================================================================

// HandleChat runs the interactive chat session.
func HandleChat(args Args) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	engine, err := buildEngine(cfg, args.Model)
	if err != nil {
		return err
	}

	repl := NewChatCLI()
	defer repl.Close()

	fmt.Println(TitleStyle.Render("puppet chat"))
	fmt.Println(InfoStyle.Render("Type /help for commands, /quit or Ctrl+D to exit."))
	fmt.Println()

	render := IsStdoutTTY()
	var attachments []string

	// An unknown leading argument is treated as the opening message.
	if args.Query != "" {
		if err := exchange(engine, args.Query, nil, render); err != nil {
			fmt.Println(ErrorStyle.Render("Error: " + err.Error()))
		}
	}

	for {
		input, err := repl.ReadInput(PromptStyle.Render("> "))
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				fmt.Println(InfoStyle.Render("(interrupted)"))
				continue
			}
			if errors.Is(err, io.EOF) {
				fmt.Println()
				return nil
			}
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			done, err := handleSlashCommand(input, engine, cfg, &render, &attachments)
			if err != nil {
				fmt.Println(ErrorStyle.Render("Error: " + err.Error()))
			}
			if done {
				return nil
			}
			continue
		}

		if err := exchange(engine, input, attachments, render); err != nil {
			fmt.Println(ErrorStyle.Render("Error: " + err.Error()))
			continue
		}
		attachments = nil
	}
}

// exchange runs one user turn: append the message, stream the reply, and
// print the usage summary.
func exchange(engine *llm.Engine, text string, files []string, render bool) error {
	if err := engine.AddUserMessage(text, files...); err != nil {
		return err
	}

	// Ctrl+C cancels the in-flight generation without leaving the REPL.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	listener := &printListener{render: render}
	reply, err := engine.GenerateStream(ctx, listener)
	if err != nil {
		return err
	}

	if render {
		fmt.Print(renderMarkdown(reply))
	} else {
		fmt.Println()
	}
	fmt.Println(UsageStyle.Render(fmt.Sprintf("[prompt=%d completion=%d]",
		listener.usage.PromptTokens, listener.usage.CompletionTokens)))
	return nil
}

// handleSlashCommand executes one REPL command; done reports that the
// session should end.
func handleSlashCommand(input string, engine *llm.Engine, cfg *config.Config, render *bool, attachments *[]string) (done bool, err error) {
	fields := strings.Fields(input)
	cmd := strings.ToLower(fields[0])

	switch cmd {
	case "/quit", "/q", "/exit":
		return true, nil

	case "/help", "/h":
		fmt.Println(InfoStyle.Render(strings.TrimSpace(`
/help            Show this help
/file <path>     Attach a file to the next message (jpg, png, pdf)
/save            Save the transcript
/clear           Start a fresh conversation
/usage           Show token usage for the session
/render          Toggle markdown rendering of replies
/quit            Exit chat`)))
		return false, nil

	case "/file", "/attach":
		if len(fields) < 2 {
			return false, fmt.Errorf("usage: /file <path>")
		}
		path := fields[1]
		if _, err := llm.MIMEForFile(path); err != nil {
			return false, err
		}
		*attachments = append(*attachments, path)
		fmt.Println(InfoStyle.Render("Attached: " + path))
		return false, nil

	case "/save":
		id, err := saveTranscript(cfg, engine.Conversation())
		if err != nil {
			return false, err
		}
		fmt.Println(InfoStyle.Render("Saved: " + id))
		return false, nil

	case "/clear", "/c":
		engine.Reset()
		*attachments = nil
		fmt.Println(InfoStyle.Render("Conversation cleared"))
		return false, nil

	case "/usage":
		usage := engine.Usage()
		fmt.Println(UsageStyle.Render(fmt.Sprintf("prompt=%d completion=%d total=%d",
			usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens)))
		return false, nil

	case "/render":
		*render = !*render
		if *render {
			fmt.Println(InfoStyle.Render("Markdown rendering on"))
		} else {
			fmt.Println(InfoStyle.Render("Markdown rendering off"))
		}
		return false, nil

	default:
		return false, fmt.Errorf("unknown command %q, try /help", cmd)
	}
}

// saveTranscript persists the conversation to the configured database.
func saveTranscript(cfg *config.Config, conv *llm.Conversation) (string, error) {
	if conv.Len() == 0 {
		return "", fmt.Errorf("nothing to save")
	}
	st, err := store.Open(cfg.Server.Database)
	if err != nil {
		return "", err
	}
	defer st.Close()
	return st.Create(context.Background(), "", conv.Messages)
}
