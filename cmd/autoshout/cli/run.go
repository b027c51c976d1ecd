package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"autoshout/internal/app"
)

func newRunCmd() *cobra.Command {
	var noTelegram bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Shout once to the selected sites and print the report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := app.NewApp(configPath(), app.WithTelegram(!noTelegram))
			if err != nil {
				return err
			}
			defer func() { _ = a.Stop(context.Background()) }()

			rep, err := a.RunOnce(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !rep.Dispatched {
				fmt.Fprintln(out, "nothing to do: no selected site is configured")
				return nil
			}
			ok, fail := rep.Counts()
			fmt.Fprintln(out, rep.Text)
			fmt.Fprintf(out, "\n%d ok, %d failed in %s (run %s)\n", ok, fail, rep.Took.Round(time.Millisecond), rep.RunID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&noTelegram, "no-telegram", false, "do not connect to Telegram even if a token is configured")
	return cmd
}
