package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"autoshout/internal/app"
)

func newStatsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show per-site health statistics and recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.NewApp(configPath(), app.WithTelegram(false))
			if err != nil {
				return err
			}
			defer func() { _ = a.Stop(cmd.Context()) }()

			stats, runs, err := a.Stats(cmd.Context(), limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "DOMAIN\tOK\tFAILED\tLAST DURATION\tLAST SUCCESS\tLAST FAILURE")
			for _, s := range stats {
				fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\t%s\n",
					s.Domain, s.Success, s.Failure, s.LastDuration.Round(time.Millisecond), stamp(s.LastSuccess), stamp(s.LastFailure))
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if len(runs) == 0 {
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout())
			w = tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tAT\tTRIGGER\tSITES\tOK\tFAILED\tTOOK")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
					r.ID, stamp(r.At), r.Trigger, r.Sites, r.OK, r.Fail, time.Duration(r.TookMS)*time.Millisecond)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of recent runs to show")
	return cmd
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
