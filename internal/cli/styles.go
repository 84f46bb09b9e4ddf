// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// styles.go - Shared lipgloss styles for all puppet commands.
package cli

import (
	"github.com/charmbracelet/lipgloss"
)

// init configures lipgloss based on terminal capabilities so styles
// degrade to plain text for piped output.
func init() {
	lipgloss.SetColorProfile(ColorProfile())
}

var (
	// PromptStyle marks the user input prompt.
	PromptStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")) // Cyan

	// TitleStyle is used for banners and headers.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	// InfoStyle is used for secondary information and hints.
	InfoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")) // Light gray

	// ErrorStyle is used for error messages.
	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196")) // Red

	// WarningStyle is used for warnings.
	WarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // Yellow/Orange

	// UsageStyle is used for token usage summaries.
	UsageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242")) // Dim gray
)
