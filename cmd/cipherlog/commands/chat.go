package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"cipherlog/internal/domain"
	"cipherlog/internal/logging"
	"cipherlog/internal/services/session"
)

func chatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Join a group and chat interactively",
		Long: "Join the group identified by your key pair or passphrase. Lines typed on stdin\n" +
			"are sent; /reload re-reads the log, /quit leaves.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			term := newTerminal(cmd.OutOrStdout(), cmd.ErrOrStderr())
			s, err := connect(ctx, term)
			if err != nil {
				return err
			}
			defer s.Disconnect()

			if addr := appCtx.Config.MetricsAddr; addr != "" {
				go func() {
					if err := appCtx.Metrics.Serve(ctx, addr, logging.Component(appCtx.Logger, "metrics")); err != nil {
						term.Notify(fmt.Errorf("metrics: %w", err))
					}
				}()
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "Joined group %s as %s. /reload to refresh, /quit to leave.\n",
				s.Group().Short(), s.Username())
			return chatLoop(ctx, s, cmd.InOrStdin(), term)
		},
	}
	addKeyFlags(cmd)
	return cmd
}

func chatLoop(ctx context.Context, s *session.Session, in io.Reader, term *terminal) error {
	input := make(chan string)
	go func() {
		defer close(input)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case input <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-input:
			if !ok {
				return nil
			}
			switch strings.TrimSpace(line) {
			case "":
			case "/quit":
				return nil
			case "/reload":
				if err := s.Reload(ctx); err != nil {
					term.Notify(err)
				}
			default:
				if err := s.Send(ctx, line); err != nil {
					var ban *domain.BanError
					if errors.As(err, &ban) {
						return err
					}
					term.Notify(fmt.Errorf("not sent: %w", err))
				}
			}
		}
	}
}
