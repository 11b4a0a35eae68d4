package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aixgo-dev/chatbatch/pkg/checkpoint"
)

func newShowCmd(a *app) *cobra.Command {
	var (
		last  bool
		store storeFlags
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the conversations reconstructed from a checkpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(store)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			view, err := checkpoint.LoadStoreView(cmd.Context(), st)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if last {
				enc := json.NewEncoder(out)
				for _, msg := range view.LastMessages() {
					if err := enc.Encode(msg); err != nil {
						return err
					}
				}
				return nil
			}

			for i, log := range view {
				if log == nil {
					fmt.Fprintf(out, "[%d] (missing)\n", i)
					continue
				}
				line, err := log.MarshalJSONLine()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "[%d] %s\n", i, line)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&last, "last", false, "print only the last message of each conversation (null when missing)")
	store.register(cmd)
	return cmd
}
