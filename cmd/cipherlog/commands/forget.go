package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func forgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forget",
		Short: "Delete credentials cached with --remember",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := appCtx.Credentials.Forget(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cached credentials removed.")
			return nil
		},
	}
}
