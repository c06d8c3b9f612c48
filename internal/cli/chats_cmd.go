// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jeranaias/chatdeck/internal/export"
	"github.com/jeranaias/chatdeck/internal/storage"
)

func newChatsCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chats",
		Short: "Manage saved chats",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:     "list",
			Aliases: []string{"ls"},
			Short:   "List saved chats, most recent first",
			Args:    exactArgs(0),
			RunE: withChats(opts, func(cmd *cobra.Command, chats *storage.Store, args []string) error {
				metas, err := chats.List(cmd.Context())
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tMODEL\tMESSAGES\tUPDATED")
				for _, m := range metas {
					fmt.Fprintf(tw, "%s\t%s\t%s/%s\t%d\t%s\n",
						m.ID, m.Name, m.Provider, m.Model, m.MessageCount,
						m.UpdatedAt.Local().Format("2006-01-02 15:04"))
				}
				return tw.Flush()
			}),
		},
		&cobra.Command{
			Use:   "show <id>",
			Short: "Print a chat's messages",
			Args:  exactArgs(1),
			RunE: withChats(opts, func(cmd *cobra.Command, chats *storage.Store, args []string) error {
				chat, err := chats.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "%s (%s/%s)\n\n", chat.Name, chat.Provider, chat.Model)
				for _, m := range chat.Messages {
					fmt.Fprintf(w, "%s: %s\n\n", m.Role.DisplayName(), m.Content)
				}
				return nil
			}),
		},
		newChatsExportCommand(opts),
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete a chat and its messages",
			Args:  exactArgs(1),
			RunE: withChats(opts, func(cmd *cobra.Command, chats *storage.Store, args []string) error {
				if err := chats.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return err
			}),
		},
	)
	return cmd
}

// withChats opens the chat store around fn.
func withChats(opts *options, fn func(*cobra.Command, *storage.Store, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := opts.load(cmd)
		if err != nil {
			return err
		}
		chats, err := a.openChats()
		if err != nil {
			return err
		}
		defer chats.Close()
		return fn(cmd, chats, args)
	}
}

func newChatsExportCommand(opts *options) *cobra.Command {
	var format, outDir string

	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Render a chat as Markdown or JSON",
		Long: `Render a chat as Markdown or JSON.

Without --output-dir the document is written to stdout.`,
		Args: exactArgs(1),
		RunE: withChats(opts, func(cmd *cobra.Command, chats *storage.Store, args []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return usageErrorf("%v", err)
			}
			exporter, err := export.ForFormat(f, nil)
			if err != nil {
				return err
			}
			chat, err := chats.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if outDir == "" {
				content, err := exporter.Export(chat)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(content)
				return err
			}

			path, err := export.ToFile(chat, exporter, outDir)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", path)
			return err
		}),
	}
	cmd.Flags().StringVarP(&format, "format", "f", "markdown", "Output format: markdown or json")
	cmd.Flags().StringVarP(&outDir, "output-dir", "o", "", "Write the export into this directory")
	return cmd
}
