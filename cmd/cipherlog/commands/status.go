package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"cipherlog/internal/domain"
	"cipherlog/internal/services/session"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show this device's identity, ban state and cached credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			id, err := appCtx.Identity.Resolve(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Identity hash: %s\nDevice token:  %s\n", id.IdentityHash, id.DeviceToken)

			ban, err := appCtx.Abuse.CheckBan(cmd.Context(), id)
			if err != nil {
				return err
			}
			if ban != nil {
				fmt.Fprintf(out, "Access:        %s\n",
					describe(&domain.BanError{Record: *ban, Cause: domain.ErrBannedAccess}))
			} else {
				fmt.Fprintln(out, "Access:        allowed")
			}

			cached := "none"
			user, _, ok, err := appCtx.Credentials.Recall("")
			switch {
			case errors.Is(err, session.ErrLocked):
				cached = "sealed"
			case err != nil:
				return err
			case ok:
				cached = fmt.Sprintf("for %s", user)
			}
			fmt.Fprintf(out, "Credentials:   %s\n", cached)
			return nil
		},
	}
}
