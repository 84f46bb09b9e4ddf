// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// speak.go - Text-to-speech command for puppet.
//
// Command: speak
// Short:   Synthesize text and play it through the local audio player
//
// Examples:
//   puppet speak "the door is closed"
package cli

import (
	"context"
	"fmt"

	"github.com/jeranaias/puppet/internal/tts"
)

// HandleSpeak synthesizes args.Query and plays the result.
func HandleSpeak(args Args) error {
	if args.Query == "" {
		return fmt.Errorf("usage: puppet speak <text>")
	}

	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	client, err := tts.NewClient(cfg.TTS)
	if err != nil {
		return err
	}

	audio, err := client.Synthesize(context.Background(), args.Query)
	if err != nil {
		return err
	}
	return tts.Play(audio)
}
