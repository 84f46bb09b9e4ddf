// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing and command dispatch for puppet.
package cli

import (
	"fmt"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.3.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdChat Command = iota
	CmdComplete
	CmdSpeak
	CmdServe
	CmdSession
	CmdVersion
	CmdHelp
)

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Config string // --conf PATH, overrides ~/.puppet/config.toml
	Model  string // --name PROFILE, overrides the configured default

	// Command-specific
	Subcommand string
	Query      string
	File       string

	// Raw args remaining after flag parsing
	Raw []string
}

const usageText = `puppet - streaming LLM chat for the command line

Puppet talks to OpenAI-compatible and Gemini endpoints with streaming
output, tool calling, and attachment support.

Usage:
  puppet chat                   Interactive chat session
  puppet complete <file>        Complete a prompt file in place
  puppet speak <text>           Synthesize and play speech
  puppet serve                  Run the HTTP API server
  puppet session <subcommand>   Manage saved conversations
  puppet version                Print version information
  puppet help                   Show this help

Session Commands:
  puppet session list           List saved conversations
  puppet session show <id>      Print a conversation transcript
  puppet session delete <id>    Delete a conversation

Interactive Commands (during chat):
  /help                 Show available commands
  /file <path>          Attach a file to the next message (jpg, png, pdf)
  /save                 Save the transcript
  /clear                Start a fresh conversation
  /usage                Show token usage for the session
  /quit                 Exit chat (also Ctrl+D)

Global Flags:
  --conf PATH     Configuration file (default ~/.puppet/config.toml)
  --name PROFILE  Model profile to use (default from configuration)

Examples:
  puppet chat --name gpt4
  puppet complete prompts/draft.md
  puppet speak "the door is closed"
  puppet session list
  puppet serve --conf ./server.toml

Version: %s
`

// PrintUsage prints the usage/help text.
func PrintUsage() {
	fmt.Printf(usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion() {
	fmt.Printf("puppet version %s\n", Version)
	fmt.Printf("  Git commit: %s\n", GitCommit)
	fmt.Printf("  Build date: %s\n", BuildDate)
}

// Parse parses command-line arguments (without the program name) and
// returns the command and args.
func Parse(argv []string) (Command, Args) {
	remaining, parsed := parseGlobalFlags(argv)

	if len(remaining) == 0 {
		return CmdChat, parsed
	}

	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]
	parsed.Raw = remaining

	switch cmd {
	case "chat":
		return CmdChat, parsed

	case "complete":
		if len(remaining) > 0 {
			parsed.File = remaining[0]
		}
		return CmdComplete, parsed

	case "speak", "say":
		parsed.Query = strings.Join(remaining, " ")
		return CmdSpeak, parsed

	case "serve", "server":
		return CmdServe, parsed

	case "session", "sessions":
		if len(remaining) > 0 {
			parsed.Subcommand = remaining[0]
			parsed.Raw = remaining[1:]
		}
		return CmdSession, parsed

	case "version", "-v", "--version":
		return CmdVersion, parsed

	case "help", "-h", "--help":
		return CmdHelp, parsed

	default:
		// Unknown command: treat everything as a chat opener.
		parsed.Query = strings.Join(append([]string{cmd}, remaining...), " ")
		return CmdChat, parsed
	}
}

// parseGlobalFlags extracts global flags from args and returns remaining args.
func parseGlobalFlags(args []string) ([]string, Args) {
	var remaining []string
	var parsed Args

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch {
		case arg == "--conf" || arg == "-c":
			if i+1 < len(args) {
				i++
				parsed.Config = args[i]
			}
		case strings.HasPrefix(arg, "--conf="):
			parsed.Config = strings.TrimPrefix(arg, "--conf=")
		case arg == "--name" || arg == "-n":
			if i+1 < len(args) {
				i++
				parsed.Model = args[i]
			}
		case strings.HasPrefix(arg, "--name="):
			parsed.Model = strings.TrimPrefix(arg, "--name=")
		default:
			remaining = append(remaining, arg)
		}
	}

	return remaining, parsed
}
