package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// fingerprint: prove the credentials and print the group they open.
func fingerprintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fingerprint",
		Short: "Validate credentials and print the group identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := connect(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer s.Disconnect()
			fmt.Fprintln(cmd.OutOrStdout(), s.Group())
			return nil
		},
	}
	addKeyFlags(cmd)
	return cmd
}
