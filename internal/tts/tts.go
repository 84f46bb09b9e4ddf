// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tts provides one-shot text-to-speech synthesis against Google
// and Azure voice endpoints, plus local playback of the result.
package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/puppet/internal/config"
	"github.com/jeranaias/puppet/internal/llm"
)

// ErrNotConfigured indicates the TTS section is missing an endpoint or key.
var ErrNotConfigured = errors.New("tts client not configured")

// =============================================================================
// CLIENT
// =============================================================================

// Client performs synthesis requests. Unlike the chat providers this is a
// plain request/response call with no streaming state.
type Client struct {
	provider   string
	url        string
	apiKey     string
	voice      string
	language   string
	httpClient *http.Client
}

// NewClient creates a client from the TTS configuration section.
func NewClient(cfg config.TTSConfig) (*Client, error) {
	apiKey, err := config.ResolveAPIKey(cfg.APIKey)
	if err != nil {
		return nil, err
	}
	return &Client{
		provider:   cfg.Provider,
		url:        cfg.URL,
		apiKey:     apiKey,
		voice:      cfg.Voice,
		language:   cfg.Language,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// WithHTTPClient overrides the HTTP client, mainly for tests.
func (c *Client) WithHTTPClient(client *http.Client) *Client {
	c.httpClient = client
	return c
}

// Synthesize converts text to audio bytes (16-bit PCM WAV).
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if c.url == "" || c.apiKey == "" {
		return nil, ErrNotConfigured
	}

	switch c.provider {
	case "azure":
		return c.synthesizeAzure(ctx, text)
	default:
		return c.synthesizeGoogle(ctx, text)
	}
}

// =============================================================================
// GOOGLE
// =============================================================================

// synthesizeGoogle calls the text:synthesize endpoint; audio comes back
// base64-encoded in a JSON envelope.
func (c *Client) synthesizeGoogle(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(map[string]any{
		"input": map[string]string{"text": text},
		"voice": map[string]string{
			"languageCode": c.language,
			"name":         c.voice,
		},
		"audioConfig": map[string]string{"audioEncoding": "LINEAR16"},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &llm.TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &llm.TransportError{Status: resp.StatusCode, Body: string(respBody)}
	}

	var envelope struct {
		AudioContent string `json:"audioContent"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, &llm.DecodeError{Message: "malformed synthesis response", Err: err}
	}
	return base64.StdEncoding.DecodeString(envelope.AudioContent)
}

// =============================================================================
// AZURE
// =============================================================================

// synthesizeAzure posts SSML to a cognitive-services voice endpoint, which
// returns raw audio bytes. The text goes inside a CDATA section so markup
// characters in the prompt cannot break the document.
func (c *Client) synthesizeAzure(ctx context.Context, text string) ([]byte, error) {
	ssml := fmt.Sprintf(
		`<speak version='1.0' xml:lang='%s'><voice xml:lang='%s' name='%s'><![CDATA[%s]]></voice></speak>`,
		c.language, c.language, c.voice, text)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader([]byte(ssml)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/ssml+xml")
	req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)
	req.Header.Set("X-Microsoft-OutputFormat", "riff-16khz-16bit-mono-pcm")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &llm.TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &llm.TransportError{Status: resp.StatusCode, Body: string(respBody)}
	}
	return io.ReadAll(resp.Body)
}

// =============================================================================
// PLAYBACK
// =============================================================================

// Play writes the audio to a temporary file and plays it with the
// platform's command-line player. The file is removed afterward.
func Play(audio []byte) error {
	path := filepath.Join(os.TempDir(), uuid.NewString()+".wav")
	if err := os.WriteFile(path, audio, 0600); err != nil {
		return err
	}
	defer os.Remove(path)

	player := "aplay"
	if runtime.GOOS == "darwin" {
		player = "afplay"
	}

	cmd := exec.Command(player, path)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	return cmd.Run()
}
