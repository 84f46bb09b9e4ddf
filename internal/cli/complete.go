// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// complete.go - One-shot prompt-file completion for puppet.
//
// Command: complete
// Short:   Complete a prompt file in place
//
// A prompt file is a plain text transcript with section markers:
//
//	# system:
//	You are a pirate.
//	# user:
//	What is 2+2?
//
// The sections are replayed into a conversation, one generation runs, and
// the reply is appended to the file as a new "# assistant:" section.
package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jeranaias/puppet/internal/llm"
)

// promptSection is one marker-delimited block of a prompt file.
type promptSection struct {
	role llm.Role
	text string
}

// HandleComplete runs the complete command against args.File.
func HandleComplete(args Args) error {
	if args.File == "" {
		return fmt.Errorf("usage: puppet complete <file>")
	}

	raw, err := os.ReadFile(args.File)
	if err != nil {
		return err
	}
	sections, err := parsePromptFile(string(raw))
	if err != nil {
		return err
	}

	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	engine, err := buildEngine(cfg, args.Model)
	if err != nil {
		return err
	}
	if err := replaySections(engine, sections); err != nil {
		return err
	}

	reply, err := engine.Generate(context.Background())
	if err != nil {
		return err
	}

	out := strings.TrimRight(string(raw), "\n") + "\n# assistant:\n" + reply + "\n"
	if err := os.WriteFile(args.File, []byte(out), 0644); err != nil {
		return err
	}

	fmt.Print(reply)
	fmt.Println()
	return nil
}

// parsePromptFile splits a transcript on its section markers. Text before
// the first marker is rejected; a file without a user section has nothing
// to complete.
func parsePromptFile(content string) ([]promptSection, error) {
	var sections []promptSection
	sawUser := false

	flush := func(role llm.Role, lines []string) {
		text := strings.TrimSpace(strings.Join(lines, "\n"))
		if text == "" {
			return
		}
		sections = append(sections, promptSection{role: role, text: text})
	}

	var current llm.Role
	var lines []string
	started := false

	for _, line := range strings.Split(content, "\n") {
		role, rest, ok := parseMarker(line)
		if !ok {
			if !started && strings.TrimSpace(line) != "" {
				return nil, fmt.Errorf("prompt file must start with a # system:, # user:, or # assistant: marker")
			}
			lines = append(lines, line)
			continue
		}

		if started {
			flush(current, lines)
		}
		started = true
		current = role
		lines = nil
		if rest != "" {
			lines = append(lines, rest)
		}
		if role == llm.RoleUser {
			sawUser = true
		}
	}
	if started {
		flush(current, lines)
	}

	if !sawUser {
		return nil, fmt.Errorf("prompt file contains no # user: section")
	}
	return sections, nil
}

// parseMarker recognizes a section marker line, returning the role and any
// text trailing the colon.
func parseMarker(line string) (llm.Role, string, bool) {
	trimmed := strings.TrimSpace(line)
	for prefix, role := range map[string]llm.Role{
		"# system:":    llm.RoleSystem,
		"# user:":      llm.RoleUser,
		"# assistant:": llm.RoleAssistant,
	} {
		if rest, ok := strings.CutPrefix(trimmed, prefix); ok {
			return role, strings.TrimSpace(rest), true
		}
	}
	return "", "", false
}

// replaySections loads parsed sections into the engine without generating.
func replaySections(engine *llm.Engine, sections []promptSection) error {
	for _, s := range sections {
		switch s.role {
		case llm.RoleSystem:
			engine.SetSystemMessage(s.text)
		case llm.RoleUser:
			if err := engine.AddUserMessage(s.text); err != nil {
				return err
			}
		case llm.RoleAssistant:
			engine.AddAssistantMessage(s.text)
		}
	}
	return nil
}
