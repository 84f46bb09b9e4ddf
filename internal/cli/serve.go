// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// serve.go - HTTP API server command for puppet.
//
// Command: serve
// Short:   Run the conversation storage and streaming proxy API
//
// The server watches the configuration file and picks up upstream
// endpoint changes without a restart. SIGINT/SIGTERM trigger a graceful
// shutdown.
package cli

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jeranaias/puppet/internal/config"
	"github.com/jeranaias/puppet/internal/server"
	"github.com/jeranaias/puppet/internal/store"
)

// HandleServe runs the HTTP API until interrupted.
func HandleServe(args Args) error {
	configPath := args.Config
	if configPath == "" {
		path, err := config.DefaultPath()
		if err != nil {
			return err
		}
		configPath = path
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Server.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	srv := server.New(cfg.Server, st)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.WatchConfig(ctx, configPath); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("CONFIG_WATCH_STOPPED | error=%v", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
