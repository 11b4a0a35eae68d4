package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aixgo-dev/chatbatch/pkg/batch"
	"github.com/aixgo-dev/chatbatch/pkg/chat"
	"github.com/aixgo-dev/chatbatch/pkg/checkpoint"
)

const chatHelp = `commands:
  /reset   start a new conversation
  /save    append the conversation to --save
  /show    print the conversation
  /exit    quit`

func newChatCmd(a *app) *cobra.Command {
	var (
		system string
		save   string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive conversation with the configured model",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.completer()
			if err != nil {
				return err
			}

			line := liner.NewLiner()
			defer func() { _ = line.Close() }()
			line.SetCtrlCAborts(true)

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, chatHelp)

			newLog := func() *chat.Log {
				log := chat.NewLog()
				if system != "" {
					log.System(system)
				}
				return log
			}
			log := newLog()

			for {
				input, err := line.Prompt("> ")
				if err != nil {
					if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
						return nil
					}
					return err
				}
				input = strings.TrimSpace(input)
				if input == "" {
					continue
				}
				line.AppendHistory(input)

				switch input {
				case "/exit", "/quit":
					return nil
				case "/reset":
					log = newLog()
					continue
				case "/show":
					fmt.Fprintln(out, log.Format("\n"))
					continue
				case "/save":
					if save == "" {
						fmt.Fprintln(out, "no --save file given")
						continue
					}
					if err := checkpoint.AppendRecord(save, log, nil, checkpoint.ModeAppend); err != nil {
						fmt.Fprintf(out, "save failed: %v\n", err)
						continue
					}
					fmt.Fprintf(out, "saved to %s\n", save)
					continue
				}

				log.User(input)
				reply, err := batch.Turn(cmd.Context(), c, a.cfg.Model, a.cfg.Options, log)
				if err != nil {
					_, _ = log.Pop()
					a.logger.Warn("Chat request failed", zap.Error(err))
					fmt.Fprintf(out, "error: %v\n", err)
					continue
				}
				fmt.Fprintln(out, reply)
			}
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&system, "system", "", "system prompt")
	flags.StringVar(&save, "save", "", "checkpoint file that /save appends to")
	return cmd
}
