// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jeranaias/chatdeck/internal/config"
)

func newConfigCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and edit the user configuration",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(
		newConfigGetCommand(opts),
		newConfigSetKeyCommand(opts),
		newConfigPathCommand(opts),
	)
	return cmd
}

func newConfigGetCommand(opts *options) *cobra.Command {
	var showKey bool

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Print config.json (the API key is masked)",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.load(cmd)
			if err != nil {
				return err
			}
			stored, err := a.store.Load()
			if err != nil {
				return err
			}
			cfg := stored.ApplyEnvOverrides()
			if !showKey && cfg.HasAPIKey() {
				masked := maskKey(cfg.APIKey())
				cfg.OpenAIAPIKey = &masked
			}
			data, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
	cmd.Flags().BoolVar(&showKey, "show-key", false, "print the API key unmasked")
	return cmd
}

func newConfigSetKeyCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "set-key [api-key]",
		Short: "Store the OpenAI API key",
		Long: `Store the OpenAI API key in config.json.

Without an argument the key is read from standard input; on a terminal it is
not echoed.`,
		Args: rangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.load(cmd)
			if err != nil {
				return err
			}

			var key string
			if len(args) == 1 {
				key = args[0]
			} else {
				key, err = readSecret(cmd.InOrStdin(), cmd.ErrOrStderr())
				if err != nil {
					return err
				}
			}
			key = strings.TrimSpace(key)
			if key == "" {
				return usageErrorf("api key is empty")
			}

			if err := a.store.SetOpenAIAPIKey(key); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "API key saved to %s\n", a.store.Path())
			return err
		},
	}
}

func newConfigPathCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the configuration, settings and database paths",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.load(cmd)
			if err != nil {
				return err
			}
			settingsPath := opts.settingsPath
			if settingsPath == "" {
				settingsPath = config.SettingsPath(a.dir)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "config:   %s\n", a.store.Path())
			fmt.Fprintf(w, "settings: %s\n", settingsPath)
			_, err = fmt.Fprintf(w, "chats:    %s\n", a.settings.DatabasePath(a.dir))
			return err
		},
	}
}

// readSecret reads one line from in, without echo when in is a terminal.
func readSecret(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "OpenAI API key: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("failed to read api key: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read api key: %w", err)
	}
	return line, nil
}

// maskKey keeps the first three and last four characters of a key.
func maskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:3] + strings.Repeat("*", len(key)-7) + key[len(key)-4:]
}
