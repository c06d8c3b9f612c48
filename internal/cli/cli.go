// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the chatdeck command line.
//
// Commands:
//
//	chatdeck serve                            Serve the command API for the desktop shell
//	chatdeck send <model> <message>           Send one prompt and stream the reply
//	chatdeck chat <model>                     Interactive chat with line editing and history
//	chatdeck config get|set-key|path          Inspect and edit the user configuration
//	chatdeck models list|pull <name>          Manage models on the Ollama server
//	chatdeck chats list|show|export|delete    Manage saved chats
//	chatdeck version                          Print version information
package cli

import (
	"context"
	"fmt"
	"io"
	"runtime"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jeranaias/chatdeck/internal/config"
	"github.com/jeranaias/chatdeck/internal/localnet"
	"github.com/jeranaias/chatdeck/internal/logging"
	"github.com/jeranaias/chatdeck/internal/ollama"
	"github.com/jeranaias/chatdeck/internal/storage"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// =============================================================================
// GLOBAL OPTIONS
// =============================================================================

// options holds the persistent flags shared by every command.
type options struct {
	configDir    string
	settingsPath string
	logLevel     string
	logFormat    string
}

// app is the environment a command runs in, resolved from flags, settings
// and the environment.
type app struct {
	dir      string
	settings *config.Settings
	log      zerolog.Logger
	store    *config.Store
	client   *ollama.Client
}

// load resolves the config directory, reads settings and builds the logger
// and Ollama client.
func (o *options) load(cmd *cobra.Command) (*app, error) {
	dir := o.configDir
	if dir == "" {
		d, err := config.DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}

	settingsPath := o.settingsPath
	if settingsPath == "" {
		settingsPath = config.SettingsPath(dir)
	}
	settings, err := config.LoadSettings(settingsPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		settings.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		settings.Log.Format = o.logFormat
	}

	logger, err := logging.New(cmd.ErrOrStderr(), settings.Log.Level, settings.Log.Format)
	if err != nil {
		return nil, usageErrorf("%v", err)
	}

	if err := localnet.ValidateOllamaURL(settings.Ollama.URL, settings.Ollama.AllowRemote); err != nil {
		return nil, err
	}
	clientCfg := ollama.DefaultConfig()
	clientCfg.BaseURL = settings.Ollama.URL

	logger.Debug().
		Str("config_dir", dir).
		Str("settings", settingsPath).
		Str("ollama", settings.Ollama.URL).
		Msg("configuration loaded")

	return &app{
		dir:      dir,
		settings: settings,
		log:      logger,
		store:    config.NewStore(dir),
		client:   ollama.NewClientWithConfig(clientCfg),
	}, nil
}

// openChats opens the chat database named by the settings.
func (a *app) openChats() (*storage.Store, error) {
	return storage.Open(a.settings.DatabasePath(a.dir))
}

// =============================================================================
// ROOT COMMAND
// =============================================================================

// NewRootCommand builds the chatdeck command tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "chatdeck",
		Short:         "Local backend for the chatdeck desktop chat app",
		Long:          "chatdeck stores the desktop app's configuration and chats and relays prompts to a local Ollama server.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv()
		},
	}
	root.SetVersionTemplate(versionString() + "\n")

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configDir, "config-dir", "", "configuration directory (default: per-user config dir)")
	pf.StringVar(&opts.settingsPath, "settings", "", "settings file (default: <config-dir>/settings.toml)")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: trace|debug|info|warn|error (overrides settings)")
	pf.StringVar(&opts.logFormat, "log-format", "", "log format: auto|console|json (overrides settings)")

	root.AddCommand(
		newServeCommand(opts),
		newSendCommand(opts),
		newChatCommand(opts),
		newConfigCommand(opts),
		newModelsCommand(opts),
		newChatsCommand(opts),
		newVersionCommand(),
	)
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &UsageError{Err: err}
	})

	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return ExitCode(err)
}

// =============================================================================
// VERSION
// =============================================================================

func versionString() string {
	return fmt.Sprintf("chatdeck %s (commit %s, built %s, %s/%s)",
		Version, GitCommit, BuildDate, runtime.GOOS, runtime.GOARCH)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), versionString())
			return err
		},
	}
}
