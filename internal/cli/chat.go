// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/chatdeck/internal/config"
	"github.com/jeranaias/chatdeck/internal/model"
	"github.com/jeranaias/chatdeck/internal/storage"
	"github.com/jeranaias/chatdeck/internal/util"
)

const (
	historyFileName = "chat_history"
	chatPrompt      = "chatdeck> "
	lastReplyRunes  = 80
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// lineReader provides input history and line editing for interactive chat.
type lineReader struct {
	line        *liner.State
	historyFile string
}

func newLineReader(dir string) *lineReader {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	r := &lineReader{
		line:        line,
		historyFile: filepath.Join(dir, historyFileName),
	}
	if f, err := os.Open(r.historyFile); err == nil {
		_, _ = r.line.ReadHistory(f)
		f.Close()
	}
	return r
}

// ReadInput reads a line of input with the given prompt.
func (r *lineReader) ReadInput(prompt string) (string, error) {
	input, err := r.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		r.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves history with owner-only permissions and restores the terminal.
func (r *lineReader) Close() {
	if err := os.MkdirAll(filepath.Dir(r.historyFile), 0700); err == nil {
		if f, err := os.OpenFile(r.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			_, _ = r.line.WriteHistory(f)
			f.Close()
		}
	}
	r.line.Close()
}

// =============================================================================
// SESSION STATE
// =============================================================================

// chatSession holds the state of an interactive chat.
type chatSession struct {
	app   *app
	out   io.Writer
	chat  *model.Chat
	chats *storage.Store // nil unless the chat is saved
	saved bool
}

func newChatCommand(opts *options) *cobra.Command {
	var (
		save   bool
		resume string
		name   string
	)

	cmd := &cobra.Command{
		Use:   "chat <model>",
		Short: "Start an interactive chat session",
		Long: `Start an interactive chat with a local model.

Each turn sends the conversation so far. Input history is kept in the config
directory. With --save the chat is stored with the desktop app's chats;
--resume continues a saved chat.

Interactive commands:
  /help      Show commands
  /clear     Start over
  /history   Show the conversation
  /quit      Exit (also Ctrl+D)
Ctrl+C during a reply cancels it.`,
		Example: "  chatdeck chat llama3\n  chatdeck chat --save --name \"Sky\" llama3\n  chatdeck chat --resume 0b6d... llama3",
		Args:    exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.load(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if err := a.client.CheckRunning(ctx); err != nil {
				return withHint(err, args[0])
			}
			if a.settings.Ollama.PullPolicy == config.PullMissing {
				if err := a.client.PullIfNeeded(ctx, args[0]); err != nil {
					return withHint(err, args[0])
				}
			}

			s := &chatSession{
				app:  a,
				out:  cmd.OutOrStdout(),
				chat: model.NewChat(name, model.ProviderOllama, args[0]),
			}
			if save || resume != "" {
				chats, err := a.openChats()
				if err != nil {
					return err
				}
				defer chats.Close()
				s.chats = chats
			}
			if resume != "" {
				chat, err := s.chats.Get(ctx, resume)
				if err != nil {
					return err
				}
				if chat.Provider != model.ProviderOllama {
					return fmt.Errorf("chat %s uses provider %s, which cannot generate replies", chat.ID, chat.Provider)
				}
				if chat.Model != args[0] {
					return usageErrorf("chat %s uses model %s, not %s", chat.ID, chat.Model, args[0])
				}
				s.chat, s.saved = chat, true
			}

			input := newLineReader(a.dir)
			defer input.Close()
			return s.run(ctx, input)
		},
	}

	cmd.Flags().BoolVar(&save, "save", false, "store the chat with the desktop app's chats")
	cmd.Flags().StringVar(&resume, "resume", "", "continue the saved chat with this id")
	cmd.Flags().StringVar(&name, "name", "", "name for a saved chat (default: first message)")
	return cmd
}

// =============================================================================
// CHAT LOOP
// =============================================================================

func (s *chatSession) run(ctx context.Context, input *lineReader) error {
	s.greet()

	for {
		line, err := input.ReadInput(chatPrompt)
		if err != nil {
			// Ctrl+C at the prompt, Ctrl+D, or closed input all end the chat.
			if !errors.Is(err, liner.ErrPromptAborted) && !errors.Is(err, io.EOF) {
				return err
			}
			fmt.Fprintln(s.out)
			return nil
		}

		cont, err := s.handleLine(ctx, line)
		if err != nil {
			fmt.Fprintf(s.out, "[Error] %v\n", err)
		}
		if !cont {
			return nil
		}
	}
}

// greet prints the banner, recalling the last reply of a resumed chat.
func (s *chatSession) greet() {
	fmt.Fprintf(s.out, "Chatting with %s. Type /help for commands.\n", s.chat.Model)
	if last, ok := s.chat.LastMessage(); ok && last.IsAssistant() {
		fmt.Fprintf(s.out, "Resuming %q (%d messages). Last reply: %s\n",
			s.chat.Name, len(s.chat.Messages), util.Title(last.Content, lastReplyRunes))
	}
}

// handleLine processes one line of input and reports whether to continue.
func (s *chatSession) handleLine(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return true, nil
	case line == "/quit" || line == "/q" || line == "/exit" || strings.EqualFold(line, "exit"):
		return false, nil
	case line == "/help" || line == "/h":
		fmt.Fprintln(s.out, "/clear  start over\n/history  show the conversation\n/quit  exit")
		return true, nil
	case line == "/clear" || line == "/c":
		s.chat.Messages = s.chat.Messages[:0]
		if s.saved {
			// Keep the stored chat; further turns go to a fresh one.
			s.chat = model.NewChat("", s.chat.Provider, s.chat.Model)
			s.saved = false
		}
		fmt.Fprintln(s.out, "[Cleared]")
		return true, nil
	case line == "/history":
		for _, m := range s.chat.Messages {
			fmt.Fprintf(s.out, "%s: %s\n\n", m.Role.DisplayName(), m.Content)
		}
		return true, nil
	case strings.HasPrefix(line, "/"):
		return true, fmt.Errorf("unknown command %s (try /help)", strings.Fields(line)[0])
	}

	return true, s.send(ctx, line)
}

// send relays one user turn. Ctrl+C cancels the reply without ending the
// session; a failed turn leaves the conversation unchanged.
func (s *chatSession) send(ctx context.Context, text string) error {
	turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	user := model.NewUserMessage(text)
	s.chat.AddMessage(user)
	prompt := text
	if len(s.chat.Messages) > 1 {
		prompt = s.chat.Transcript()
	}

	reply, err := generateTo(turnCtx, s.app, s.out, s.chat.Model, prompt, false)
	if err != nil {
		if last, ok := s.chat.LastMessage(); ok && last.IsUser() {
			s.chat.Messages = s.chat.Messages[:len(s.chat.Messages)-1]
		}
		if turnCtx.Err() != nil && ctx.Err() == nil {
			fmt.Fprintln(s.out, "[Cancelled]")
			return nil
		}
		return withHint(err, s.chat.Model)
	}
	assistant := model.NewAssistantMessage(strings.TrimSpace(reply))
	s.chat.AddMessage(assistant)

	return s.persist(ctx, user, assistant)
}

// persist stores the latest turn when the chat is saved, creating the chat
// on its first turn.
func (s *chatSession) persist(ctx context.Context, turn ...model.Message) error {
	if s.chats == nil {
		return nil
	}
	if s.saved {
		return s.chats.AppendMessages(ctx, s.chat.ID, turn...)
	}
	if strings.TrimSpace(s.chat.Name) == "" {
		s.chat.Name = util.Title(turn[0].Content, model.MaxNameRunes)
	}
	if err := s.chats.Create(ctx, s.chat); err != nil {
		return err
	}
	s.saved = true
	s.app.log.Debug().Str("chat_id", s.chat.ID).Msg("chat saved")
	return nil
}
