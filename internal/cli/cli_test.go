// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse_Commands(t *testing.T) {
	tests := []struct {
		name string
		argv []string
		cmd  Command
	}{
		{"no args defaults to chat", nil, CmdChat},
		{"chat", []string{"chat"}, CmdChat},
		{"complete", []string{"complete", "draft.md"}, CmdComplete},
		{"speak", []string{"speak", "hello"}, CmdSpeak},
		{"say alias", []string{"say", "hello"}, CmdSpeak},
		{"serve", []string{"serve"}, CmdServe},
		{"server alias", []string{"server"}, CmdServe},
		{"session", []string{"session", "list"}, CmdSession},
		{"sessions alias", []string{"sessions"}, CmdSession},
		{"version", []string{"version"}, CmdVersion},
		{"version flag", []string{"--version"}, CmdVersion},
		{"help", []string{"help"}, CmdHelp},
		{"help flag", []string{"-h"}, CmdHelp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, _ := Parse(tt.argv)
			require.Equal(t, tt.cmd, cmd)
		})
	}
}

func TestParse_GlobalFlags(t *testing.T) {
	cmd, args := Parse([]string{"--conf", "/tmp/alt.toml", "chat", "--name", "gpt4"})
	require.Equal(t, CmdChat, cmd)
	require.Equal(t, "/tmp/alt.toml", args.Config)
	require.Equal(t, "gpt4", args.Model)

	_, args = Parse([]string{"--conf=/etc/puppet.toml", "--name=flash", "serve"})
	require.Equal(t, "/etc/puppet.toml", args.Config)
	require.Equal(t, "flash", args.Model)
}

func TestParse_CompleteFile(t *testing.T) {
	_, args := Parse([]string{"complete", "prompts/draft.md"})
	require.Equal(t, "prompts/draft.md", args.File)
}

func TestParse_SpeakJoinsWords(t *testing.T) {
	_, args := Parse([]string{"speak", "the", "door", "is", "closed"})
	require.Equal(t, "the door is closed", args.Query)
}

func TestParse_SessionSubcommand(t *testing.T) {
	_, args := Parse([]string{"session", "show", "abc-123"})
	require.Equal(t, "show", args.Subcommand)
	require.Equal(t, []string{"abc-123"}, args.Raw)
}

// TestParse_UnknownCommandBecomesChatOpener: a bare prompt starts a chat
// with that prompt as the first message.
func TestParse_UnknownCommandBecomesChatOpener(t *testing.T) {
	cmd, args := Parse([]string{"what", "is", "2+2?"})
	require.Equal(t, CmdChat, cmd)
	require.Equal(t, "what is 2+2?", args.Query)
}
