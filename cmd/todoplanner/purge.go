package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPurgeCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete overdue unfinished tasks once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*envFile)
			if err != nil {
				return err
			}
			defer a.close()

			n, err := a.tasks.PurgeOverdue(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d overdue task(s)\n", n)
			return nil
		},
	}
}
