// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/chatdeck/internal/commands"
	"github.com/jeranaias/chatdeck/internal/config"
	"github.com/jeranaias/chatdeck/internal/server"
)

func newServeCommand(opts *options) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the command API for the desktop shell",
		Long: `Serve the command API on a loopback address.

The desktop shell invokes commands with POST /invoke/{command}. The server
also answers GET /health and GET /metrics, and reloads config.json when it
changes on disk. SIGINT or SIGTERM shuts it down gracefully.`,
		Example: "  chatdeck serve\n  chatdeck serve --addr 127.0.0.1:9000",
		Args:    exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if addr != "" {
				a.settings.Server.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, a)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

// runServe runs the HTTP server and the config watcher until ctx ends or
// either fails.
func runServe(ctx context.Context, a *app) error {
	// First load creates config.json so the watcher has a directory to watch.
	if _, err := a.store.Load(); err != nil {
		return err
	}

	chats, err := a.openChats()
	if err != nil {
		return err
	}
	defer chats.Close()

	env := commands.NewContext(a.store, a.client, chats).WithLogger(a.log)
	env.PullPolicy = a.settings.Ollama.PullPolicy

	srv := server.New(server.ConfigFromSettings(a.settings.Server, Version), commands.NewRegistry(), env, a.log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})
	g.Go(func() error {
		return a.store.Watch(gctx,
			func(cfg *config.Config) {
				a.log.Info().Bool("openai_api_key_set", cfg.ApplyEnvOverrides().HasAPIKey()).Msg("config reloaded")
			},
			func(err error) {
				a.log.Warn().Err(err).Msg("config reload failed")
			},
		)
	})

	err = g.Wait()
	a.log.Info().Msg("stopped")
	return err
}
