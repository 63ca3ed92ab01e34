package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// send: connect, append one message, disconnect.
func sendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send [message...]",
		Short: "Append one encrypted message to the group log",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := connect(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer s.Disconnect()

			if err := s.Send(cmd.Context(), strings.Join(args, " ")); err != nil {
				return err
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "Sent.")
			return nil
		},
	}
	addKeyFlags(cmd)
	return cmd
}
