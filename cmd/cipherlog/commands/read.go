package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// read: print every entry this member can decrypt.
func readCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read",
		Short: "Print the decrypted group log",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := connect(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer s.Disconnect()

			lines, err := s.Lines(cmd.Context())
			if err != nil {
				return err
			}
			for _, l := range lines {
				fmt.Fprintln(cmd.OutOrStdout(), formatLine(l))
			}
			return nil
		},
	}
	addKeyFlags(cmd)
	return cmd
}
