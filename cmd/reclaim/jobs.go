package main

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/lyallcooper/reclaim/internal/config"
	"github.com/lyallcooper/reclaim/internal/db"
	"github.com/lyallcooper/reclaim/internal/scheduler"
)

func (c *cli) jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Manage scheduled scans run by serve",
	}
	cmd.AddCommand(c.jobsListCmd(), c.jobsAddCmd(), c.jobsRemoveCmd())
	return cmd
}

func (c *cli) jobsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List scheduled jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := c.openDB()
			if err != nil {
				return err
			}
			defer database.Close()

			jobs, err := database.ListScheduledJobs()
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Fprintln(c.stdout, "No scheduled jobs")
				return nil
			}

			tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tCRON\tACTION\tENABLED\tNEXT RUN\tPATHS")
			for _, j := range jobs {
				next := "-"
				if j.Enabled && j.NextRunAt != nil {
					next = humanize.Time(*j.NextRunAt)
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%t\t%s\t%s\n",
					j.ID, j.Name, j.CronExpression, j.Action, j.Enabled, next, strings.Join(j.Paths, ", "))
			}
			return tw.Flush()
		},
	}
}

func (c *cli) jobsAddCmd() *cobra.Command {
	var (
		name     string
		cronExpr string
		action   string
		disabled bool
		f        scanFlags
	)

	cmd := &cobra.Command{
		Use:   "add <path>...",
		Short: "Add a scheduled scan",
		Example: `  reclaim jobs add --name nightly --cron "0 3 * * *" ~/Pictures
  reclaim jobs add --name weekly-cleanup --cron @weekly --action scan_trash /srv/media`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(name) == "" {
				return errors.New("--name is required")
			}
			next, err := scheduler.NextRun(cronExpr, time.Now())
			if err != nil {
				return err
			}
			jobAction := db.JobAction(action)
			if !jobAction.Valid() {
				return fmt.Errorf("--action must be %s or %s", db.JobActionScan, db.JobActionScanTrash)
			}

			paths := make([]string, 0, len(args))
			for _, arg := range args {
				abs, err := filepath.Abs(config.ExpandPath(arg))
				if err != nil {
					return err
				}
				if !c.cfg.IsPathAllowed(abs) {
					return fmt.Errorf("path not allowed: %s", abs)
				}
				paths = append(paths, abs)
			}

			policy, err := f.policy(cmd, c.cfg.Filter)
			if err != nil {
				return err
			}

			database, err := c.openDB()
			if err != nil {
				return err
			}
			defer database.Close()

			job, err := database.CreateScheduledJob(&db.ScheduledJob{
				Name:           strings.TrimSpace(name),
				Paths:          paths,
				Options:        db.OptionsFromPolicy(policy),
				CronExpression: strings.TrimSpace(cronExpr),
				Action:         jobAction,
				Enabled:        !disabled,
				NextRunAt:      &next,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(c.stdout, "Added job %d (%s), next run %s\n", job.ID, job.Name, next.Local().Format(time.RFC1123))
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&name, "name", "", "Job name")
	fl.StringVar(&cronExpr, "cron", "", `Five-field cron expression or descriptor such as "@daily"`)
	fl.StringVar(&action, "action", string(db.JobActionScan), "scan, or scan_trash to trash duplicates keeping the oldest copy")
	fl.BoolVar(&disabled, "disabled", false, "Create the job disabled")
	fl.StringVar(&f.minSize, "min-size", "", "Ignore files smaller than this")
	fl.BoolVar(&f.excludeHidden, "exclude-hidden", true, "Skip hidden files and directories")
	fl.BoolVar(&f.excludeSystem, "exclude-system", true, "Skip system and tool directories")
	fl.StringSliceVar(&f.extensions, "exclude-ext", nil, "File extensions to skip")
	fl.StringSliceVar(&f.directories, "exclude-dir", nil, "Directory names to skip")
	_ = cmd.MarkFlagRequired("cron")

	return cmd
}

func (c *cli) jobsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Delete a scheduled job",
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

			if _, err := database.GetScheduledJob(id); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return fmt.Errorf("no job with id %d", id)
				}
				return err
			}
			if err := database.DeleteScheduledJob(id); err != nil {
				return err
			}
			fmt.Fprintf(c.stdout, "Removed job %d\n", id)
			return nil
		},
	}
}
