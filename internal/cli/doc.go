// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the puppet command-line interface: argument
// parsing, the interactive chat REPL, prompt-file completion, speech
// synthesis, the API server command, and saved session management.
//
// # Key Types
//
//   - Command: parsed subcommand discriminator
//   - Args: parsed flags and positionals
//   - ChatCLI: liner-backed input with persistent history
//
// # Usage
//
//	cmd, args := cli.Parse(os.Args[1:])
//	switch cmd {
//	case cli.CmdChat:
//	    err = cli.HandleChat(args)
//	...
//	}
//
// Styling degrades automatically: colors and markdown rendering are
// disabled when stdout is not a terminal or NO_COLOR is set.
package cli
