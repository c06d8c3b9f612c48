// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jeranaias/chatdeck/internal/ollama"
)

func newModelsCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "models",
		Aliases: []string{"model"},
		Short:   "Manage models on the Ollama server",
		Args:    exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newModelsListCommand(opts), newModelsPullCommand(opts))
	return cmd
}

func newModelsListCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List installed models",
		Args:    exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.load(cmd)
			if err != nil {
				return err
			}
			models, err := a.client.ListModels(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSIZE\tPARAMS\tMODIFIED")
			for _, m := range models {
				modified := "-"
				if !m.ModifiedAt.IsZero() {
					modified = m.ModifiedAt.Local().Format("2006-01-02 15:04")
				}
				params := m.Details.ParameterSize
				if params == "" {
					params = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.Name, m.FormatSize(), params, modified)
			}
			return tw.Flush()
		},
	}
}

func newModelsPullCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "pull <name>",
		Short:   "Download a model to the Ollama server",
		Example: "  chatdeck models pull llama3",
		Args:    exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.load(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			w := cmd.OutOrStdout()
			last := ""
			err = a.client.PullProgress(ctx, args[0], func(s ollama.PullStatus) {
				line := s.Status
				if s.Total > 0 {
					line = fmt.Sprintf("%s %3d%%", s.Status, s.Completed*100/s.Total)
				}
				if line != last {
					fmt.Fprintln(w, line)
					last = line
				}
			})
			if err != nil {
				return withHint(err, args[0])
			}
			a.log.Info().Str("model", args[0]).Msg("model pulled")
			return nil
		},
	}
}
