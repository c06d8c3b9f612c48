// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/chatdeck/internal/config"
	"github.com/jeranaias/chatdeck/internal/ollama"
)

func newSendCommand(opts *options) *cobra.Command {
	var (
		jsonOut bool
		pull    bool
	)

	cmd := &cobra.Command{
		Use:   "send <model> <message>",
		Short: "Send one prompt to Ollama and stream the reply",
		Long: `Send one prompt to Ollama and print the reply as it streams in.

The message is the remaining arguments joined by spaces; "-" reads it from
standard input. With --json every reassembled record is printed as one JSON
line instead of the concatenated text.`,
		Example: `  chatdeck send llama3 "Why is the sky blue?"
  git diff | chatdeck send llama3 -
  chatdeck send --json llama3 hello`,
		Args: minimumArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.load(cmd)
			if err != nil {
				return err
			}

			message, err := readMessage(cmd.InOrStdin(), args[1:])
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			if pull || a.settings.Ollama.PullPolicy == config.PullMissing {
				if err := a.client.PullIfNeeded(ctx, args[0]); err != nil {
					return withHint(err, args[0])
				}
			}

			_, err = generateTo(ctx, a, cmd.OutOrStdout(), args[0], message, jsonOut)
			return withHint(err, args[0])
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "print each record as a JSON line")
	cmd.Flags().BoolVar(&pull, "pull", false, "pull the model first if the server does not have it")
	return cmd
}

// readMessage joins args, or reads standard input when the only arg is "-".
func readMessage(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read message from stdin: %w", err)
		}
		args = []string{string(data)}
	}
	message := strings.TrimSpace(strings.Join(args, " "))
	if message == "" {
		return "", usageErrorf("message is empty")
	}
	return message, nil
}

// generateTo prints the reply to prompt as records arrive and returns the
// concatenated text.
func generateTo(ctx context.Context, a *app, w io.Writer, model, prompt string, jsonOut bool) (string, error) {
	var (
		reply strings.Builder
		last  ollama.GenerateChunk
		enc   = json.NewEncoder(w)
	)

	err := a.client.GenerateStream(ctx, model, prompt, func(chunk ollama.GenerateChunk) error {
		reply.WriteString(chunk.Response)
		last = chunk
		if jsonOut {
			return enc.Encode(chunk)
		}
		_, err := io.WriteString(w, chunk.Response)
		return err
	})
	if !jsonOut && reply.Len() > 0 {
		fmt.Fprintln(w)
	}
	if err != nil {
		return "", err
	}

	if last.Done {
		a.log.Debug().
			Str("model", model).
			Int("eval_count", last.EvalCount).
			Float64("tokens_per_second", last.TokensPerSecond()).
			Dur("total", last.TotalTime()).
			Msg("generation finished")
	}
	return reply.String(), nil
}
