// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jeranaias/puppet/internal/config"
	"github.com/jeranaias/puppet/internal/sse"
)

// ============================================================================
// STREAMING REVERSE PROXY
// ============================================================================

// proxyClient is shared across proxied requests; streaming lifetimes are
// bounded by the inbound request context.
var proxyClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	},
}

// Proxy forwards completion requests to a configured upstream and relays
// the SSE stream back, re-framed through the same reader the chat engine
// uses. Usage-only keep-alive chunks (frames carrying "usage" without an
// "object" field) are dropped on the way through.
type Proxy struct {
	mu     sync.RWMutex
	url    string
	apiKey string
}

// NewProxy creates a proxy for the given upstream.
func NewProxy(url, apiKey string) *Proxy {
	return &Proxy{url: url, apiKey: apiKey}
}

// SetUpstream swaps the upstream endpoint, used by config hot-reload.
func (p *Proxy) SetUpstream(url, apiKey string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
	p.apiKey = apiKey
	log.Printf("PROXY_RELOAD | upstream=%s", url)
}

// IsConfigured reports whether an upstream is set.
func (p *Proxy) IsConfigured() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.url != ""
}

// upstream returns the current endpoint settings.
func (p *Proxy) upstream() (string, string) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.url, p.apiKey
}

// Handle forwards one completion request and streams the response back.
func (p *Proxy) Handle(w http.ResponseWriter, r *http.Request) {
	url, apiKey := p.upstream()
	if url == "" {
		http.Error(w, "no upstream configured", http.StatusBadGateway)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRequestBodySize))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		http.Error(w, "failed to build upstream request", http.StatusInternalServerError)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("api-key", apiKey)
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := proxyClient.Do(req)
	if err != nil {
		log.Printf("PROXY_ERROR | error=%v", err)
		http.Error(w, "upstream request failed", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		upstreamBody, _ := io.ReadAll(resp.Body)
		w.Header().Set("Content-Type", resp.Header.Get("Content-Type"))
		w.WriteHeader(resp.StatusCode)
		w.Write(upstreamBody)
		return
	}

	p.relay(w, resp.Body)
}

// relay re-frames the upstream SSE stream onto the client connection.
func (p *Proxy) relay(w http.ResponseWriter, body io.Reader) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	reader := sse.NewReader(body)
	for {
		payload, err := reader.Next()
		if err != nil {
			// EOF covers the [DONE] sentinel; anything else already broke
			// the upstream stream mid-flight, so just terminate ours.
			break
		}
		if len(payload) == 0 || isAccountingFrame(payload) {
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}

	fmt.Fprintf(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// isAccountingFrame reports whether a frame is gateway accounting noise:
// a chunk carrying usage without the "object" discriminator. Clients choke
// on those; every other frame passes through untouched.
func isAccountingFrame(payload []byte) bool {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(payload, &probe); err != nil {
		return false
	}
	_, hasUsage := probe["usage"]
	_, hasObject := probe["object"]
	return hasUsage && !hasObject
}

// ============================================================================
// CONFIG WATCHER
// ============================================================================

// watchConfig invokes apply with the freshly loaded configuration every
// time the file at path changes. Invalid intermediate states (editors
// write in multiple steps) are skipped. Blocks until ctx is done.
func watchConfig(ctx context.Context, path string, apply func(*config.Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: most editors replace the file on save, which
	// would drop a watch on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cfg, err := config.Load(path)
			if err != nil {
				log.Printf("CONFIG_RELOAD_SKIPPED | error=%v", err)
				continue
			}
			apply(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("CONFIG_WATCH_ERROR | error=%v", err)
		}
	}
}
