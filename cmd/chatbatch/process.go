package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aixgo-dev/chatbatch/pkg/batch"
	"github.com/aixgo-dev/chatbatch/pkg/chat"
)

func newProcessCmd(a *app) *cobra.Command {
	var (
		input  string
		system string
		reset  bool
		last   bool
		store  storeFlags
	)

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Build a conversation for each prompt line, one request at a time",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.completer()
			if err != nil {
				return err
			}
			st, err := a.openStore(store)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			in, err := openInput(input)
			if err != nil {
				return err
			}
			prompts, err := readPrompts(in)
			_ = in.Close()
			if err != nil {
				return err
			}

			tmpl := promptTemplate(system)
			build := func(ctx context.Context, prompt string) (*chat.Log, error) {
				log := chat.FromPrompt(prompt, tmpl)
				if _, err := batch.Turn(ctx, c, a.cfg.Model, a.cfg.Options, log); err != nil {
					return nil, err
				}
				return log, nil
			}

			cfg := batch.ProcessConfig{Clear: reset, Logger: a.logger}
			enc := json.NewEncoder(cmd.OutOrStdout())
			if last {
				msgs, err := batch.ProcessLastMessages(cmd.Context(), st, prompts, build, cfg)
				if err != nil {
					return err
				}
				for _, m := range msgs {
					if err := enc.Encode(m); err != nil {
						return err
					}
				}
				return nil
			}

			view, err := batch.Process(cmd.Context(), st, prompts, build, cfg)
			if err != nil {
				return fmt.Errorf("process stopped at %d of %d: %w", view.Count(), len(prompts), err)
			}
			for _, log := range view {
				if err := enc.Encode(log); err != nil {
					return err
				}
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&input, "input", "-", "file of prompts, one per line, - for stdin")
	flags.StringVar(&system, "system", "", "system prompt for every conversation")
	flags.BoolVar(&reset, "clear", false, "discard the existing checkpoint first")
	flags.BoolVar(&last, "last", false, "print only each conversation's last message")
	store.register(cmd)
	return cmd
}
