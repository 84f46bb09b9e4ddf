// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gemini implements the provider adapter for Google Vertex/Gemini
// streaming generation endpoints.
package gemini

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jeranaias/puppet/internal/llm"
	"github.com/jeranaias/puppet/internal/sse"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotConfigured indicates the client has no endpoint URL or API key.
	ErrNotConfigured = errors.New("gemini client not configured")
)

// =============================================================================
// SHARED HTTP CLIENT
// =============================================================================

var sharedStreamingClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	},
}

// =============================================================================
// CLIENT
// =============================================================================

// Client streams generations from one Vertex/Gemini endpoint. It
// implements llm.Provider. The endpoint URL is the full
// streamGenerateContent URL for the configured model.
type Client struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a client for the given streaming endpoint URL.
func NewClient(url, apiKey string) *Client {
	return &Client{
		url:        url,
		apiKey:     apiKey,
		httpClient: sharedStreamingClient,
	}
}

// WithHTTPClient overrides the HTTP client, mainly for tests.
func (c *Client) WithHTTPClient(client *http.Client) *Client {
	c.httpClient = client
	return c
}

// IsConfigured reports whether the client can issue requests.
func (c *Client) IsConfigured() bool {
	return c.url != "" && c.apiKey != ""
}

// =============================================================================
// STREAMING
// =============================================================================

// Stream implements llm.Provider.
func (c *Client) Stream(ctx context.Context, conv *llm.Conversation, tools []llm.ToolSpec, emit func(llm.StreamFrame)) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}

	body, err := json.Marshal(buildRequest(conv, tools))
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &llm.TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return &llm.TransportError{Status: resp.StatusCode, Body: string(respBody)}
	}

	return processStream(ctx, resp.Body, emit)
}

// buildRequest assembles the wire request from conversation state. The
// system instruction travels in its own field, not in contents.
func buildRequest(conv *llm.Conversation, tools []llm.ToolSpec) generateRequest {
	req := generateRequest{Tools: encodeTools(tools)}

	if conv.Options.Temperature != nil || conv.Options.TopP != nil || conv.Options.MaxTokens > 0 {
		req.GenerationConfig = &generationConfig{
			Temperature:     conv.Options.Temperature,
			TopP:            conv.Options.TopP,
			MaxOutputTokens: conv.Options.MaxTokens,
		}
	}

	for _, msg := range conv.Messages {
		if msg.Role == llm.RoleSystem {
			req.SystemInstruction = &content{Parts: []part{{Text: msg.Text()}}}
			continue
		}
		req.Contents = append(req.Contents, encodeContent(msg))
	}

	return req
}

// processStream drains the bracketed-array body, decoding each element and
// forwarding the projected engine frames. The tool-call index counter runs
// across the whole turn so synthetic call ids stay unique.
func processStream(ctx context.Context, body io.Reader, emit func(llm.StreamFrame)) error {
	reader := sse.NewArrayReader(body)
	nextCallIndex := 0
	sawEnd := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		payload, err := reader.Next()
		if err != nil {
			if err == io.EOF {
				if !sawEnd {
					emit(llm.EndFrame(finishStop))
				}
				return nil
			}
			return &llm.TransportError{Err: err}
		}

		frames, err := decodeResponse(payload, &nextCallIndex)
		if err != nil {
			return err
		}
		for _, frame := range frames {
			if frame.Kind == llm.FrameEnd {
				sawEnd = true
			}
			emit(frame)
		}
	}
}
