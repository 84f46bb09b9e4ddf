// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package openai implements the provider adapter for OpenAI-compatible
// chat completion endpoints, including Azure OpenAI gateways.
package openai

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
	ErrNotConfigured = errors.New("openai client not configured")
)

// =============================================================================
// SHARED HTTP CLIENT
// =============================================================================

// sharedStreamingClient is reused across requests for connection pooling.
// It has no client-level timeout; streaming lifetimes are bounded by the
// request context.
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

// Client streams chat completions from one OpenAI-compatible endpoint.
// It implements llm.Provider.
type Client struct {
	url        string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient creates a client for the given completions URL.
func NewClient(url, apiKey, model string) *Client {
	return &Client{
		url:        url,
		apiKey:     apiKey,
		model:      model,
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

// Stream implements llm.Provider. It issues one streaming completion
// request and emits every decoded frame until the stream ends.
func (c *Client) Stream(ctx context.Context, conv *llm.Conversation, tools []llm.ToolSpec, emit func(llm.StreamFrame)) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}

	body, err := json.Marshal(c.buildRequest(conv, tools))
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &llm.TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return handleErrorResponse(resp)
	}

	return processStream(ctx, resp.Body, emit)
}

// buildRequest assembles the wire request from conversation state.
func (c *Client) buildRequest(conv *llm.Conversation, tools []llm.ToolSpec) chatRequest {
	req := chatRequest{
		Model:          c.model,
		Temperature:    conv.Options.Temperature,
		TopP:           conv.Options.TopP,
		MaxTokens:      conv.Options.MaxTokens,
		Stream:         true,
		StreamOptions:  &streamOptions{IncludeUsage: true},
		ResponseFormat: conv.Options.ResponseFormat,
	}

	req.Messages = make([]chatMessage, 0, len(conv.Messages))
	for _, msg := range conv.Messages {
		req.Messages = append(req.Messages, encodeMessage(msg))
	}

	if len(tools) > 0 {
		req.Tools = encodeTools(tools)
		req.ToolChoice = "auto"
	}

	return req
}

// setHeaders applies content negotiation and authentication. Both the
// api-key header and a bearer token are sent so the same client works
// against api.openai.com and Azure-style gateways.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("api-key", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}

// processStream drains the SSE body, decoding each frame and forwarding
// the projected engine frames.
func processStream(ctx context.Context, body io.Reader, emit func(llm.StreamFrame)) error {
	reader := sse.NewReader(body)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		payload, err := reader.Next()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			if errors.Is(err, sse.ErrBadFrame) {
				return &llm.DecodeError{Message: "bad stream frame", Err: err}
			}
			return &llm.TransportError{Err: err}
		}
		if len(payload) == 0 {
			continue
		}

		frames, err := decodeChunk(payload)
		if err != nil {
			return err
		}
		for _, frame := range frames {
			emit(frame)
		}
	}
}

// handleErrorResponse converts a non-200 response into a TransportError,
// preferring the provider's error message when the body parses.
func handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var envelope errorResponse
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return &llm.TransportError{Status: resp.StatusCode, Body: envelope.Error.Message}
	}
	return &llm.TransportError{Status: resp.StatusCode, Body: string(body)}
}
