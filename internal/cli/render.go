// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// render.go - Markdown rendering for assistant output.
package cli

import (
	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
)

// markdownRenderer is the shared glamour renderer. It is nil when
// initialization fails or output is not a terminal, in which case text
// passes through unrendered.
var markdownRenderer *glamour.TermRenderer

func init() {
	if !IsStdoutTTY() {
		return
	}

	style := glamour.WithStandardStyle("notty")
	if ColorsEnabled() {
		if termenv.HasDarkBackground() {
			style = glamour.WithStandardStyle("dark")
		} else {
			style = glamour.WithStandardStyle("light")
		}
	}

	width := TerminalWidth()
	if width > 100 {
		width = 100
	}

	renderer, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
	if err != nil {
		return
	}
	markdownRenderer = renderer
}

// renderMarkdown renders markdown for terminal display, returning the
// input unchanged when rendering is unavailable.
func renderMarkdown(content string) string {
	if markdownRenderer == nil {
		return content
	}
	rendered, err := markdownRenderer.Render(content)
	if err != nil {
		return content
	}
	return rendered
}
