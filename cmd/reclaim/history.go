package main

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func (c *cli) historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past cleanups and total space reclaimed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := c.openDB()
			if err != nil {
				return err
			}
			defer database.Close()

			sessions, err := database.ListCleanupSessions(limit, 0)
			if err != nil {
				return err
			}
			stats, err := database.GetSavingsStats()
			if err != nil {
				return err
			}

			if len(sessions) == 0 {
				fmt.Fprintln(c.stdout, "No cleanups recorded")
				return nil
			}

			tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tWHEN\tFILES\tFREED\tFAILED\tMODE\tROOTS")
			for _, s := range sessions {
				mode := "trash"
				if s.Permanent {
					mode = "delete"
				}
				fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%d\t%s\t%s\n",
					s.ID, s.CreatedAt.Local().Format("2006-01-02 15:04"),
					s.TrashedCount, humanize.Bytes(uint64(s.BytesFreed)), s.FailedCount,
					mode, strings.Join(s.Roots, ", "))
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			fmt.Fprintf(c.stdout, "\nTotal: %s freed from %s %s in %d %s\n",
				humanize.Bytes(uint64(stats.BytesFreed)),
				humanize.Comma(stats.FilesTrashed), plural(int(stats.FilesTrashed), "file", "files"),
				stats.Sessions, plural(int(stats.Sessions), "cleanup", "cleanups"))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of sessions to show")

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a cleanup session from the history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			database, err := c.openDB()
			if err != nil {
				return err
			}
			defer database.Close()

			if err := database.DeleteCleanupSession(id); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return fmt.Errorf("no cleanup session with id %d", id)
				}
				return err
			}
			fmt.Fprintf(c.stdout, "Deleted cleanup session %d\n", id)
			return nil
		},
	})

	return cmd
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
