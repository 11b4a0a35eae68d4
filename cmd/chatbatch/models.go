package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newModelsCmd(a *app) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the models served by the API",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.rawClient()
			if err != nil {
				return err
			}
			ids, err := c.ValidModels(cmd.Context(), !all)
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include models whose id does not contain \"gpt\"")
	return cmd
}
