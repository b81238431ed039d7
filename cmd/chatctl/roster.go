package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"livechat/pkg/poller"
	"livechat/pkg/roster"
)

var (
	rosterFilter string
	rosterSearch string
	rosterWatch  bool
	rosterExport string
)

var rosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "List conversations (agent only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		defer func() { _ = log.Sync() }()
		c := newClient(log)

		filter, err := roster.ParseFilter(rosterFilter)
		if err != nil {
			return err
		}
		q := roster.Query{Filter: filter, Search: rosterSearch}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		s, err := currentSession(ctx, c)
		if err != nil {
			return err
		}

		if rosterExport != "" {
			f, err := os.Create(rosterExport)
			if err != nil {
				return err
			}
			if err := c.ExportRoster(ctx, s, q, f); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", rosterExport)
			return nil
		}

		out := cmd.OutOrStdout()
		if !rosterWatch {
			entries, err := c.Roster(ctx, s, q)
			if err != nil {
				return err
			}
			printRoster(out, entries)
			return nil
		}

		view := poller.NewRosterView(c, s, q, poller.ViewOptions{Interval: pollInterval, Logger: log}, func(entries []roster.Entry) {
			fmt.Fprintln(out)
			printRoster(out, entries)
		})
		if err := view.Refresh(ctx); err != nil {
			return err
		}
		view.Open()
		defer view.Close()
		<-ctx.Done()
		return nil
	},
}

func printRoster(w io.Writer, entries []roster.Entry) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "UNREAD\tNAME\tEMAIL\tLAST\tPREVIEW\tID")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			e.UnreadCount, e.DisplayName, e.ContactAddress,
			e.LastMessageAt.Local().Format("Jan 2 15:04"), e.LastMessagePreview, e.IdentityID)
	}
	_ = tw.Flush()
}

func init() {
	rosterCmd.Flags().StringVar(&rosterFilter, "filter", "all", "all or unread")
	rosterCmd.Flags().StringVar(&rosterSearch, "search", "", "name or email substring")
	rosterCmd.Flags().BoolVarP(&rosterWatch, "watch", "w", false, "keep polling")
	rosterCmd.Flags().StringVar(&rosterExport, "export", "", "write the roster to this .xlsx file instead")
	rosterCmd.Flags().DurationVar(&pollInterval, "interval", poller.DefaultInterval, "poll interval when watching")
	rootCmd.AddCommand(rosterCmd)
}
