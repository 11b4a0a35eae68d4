package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aixgo-dev/chatbatch/pkg/batch"
	"github.com/aixgo-dev/chatbatch/pkg/chat"
)

func newCompleteCmd(a *app) *cobra.Command {
	var system string

	cmd := &cobra.Command{
		Use:   "complete [prompt]",
		Short: "Send a single prompt and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.completer()
			if err != nil {
				return err
			}
			log := chat.FromPrompt(strings.Join(args, " "), promptTemplate(system))
			reply, err := batch.Turn(cmd.Context(), c, a.cfg.Model, a.cfg.Options, log)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), reply)
			return err
		},
	}

	cmd.Flags().StringVar(&system, "system", "", "system prompt")
	return cmd
}
