package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/lyallcooper/reclaim/internal/config"
	"github.com/lyallcooper/reclaim/internal/engine"
	"github.com/lyallcooper/reclaim/internal/filter"
	"github.com/lyallcooper/reclaim/internal/report"
	"github.com/lyallcooper/reclaim/internal/services"
)

type scanFlags struct {
	format    string
	trash     bool
	keep      string
	permanent bool
	dryRun    bool
	record    bool
	quiet     bool
	workers   int

	minSize       string
	excludeHidden bool
	excludeSystem bool
	extensions    []string
	directories   []string
}

func (c *cli) scanCmd() *cobra.Command {
	var f scanFlags

	cmd := &cobra.Command{
		Use:   "scan <path>...",
		Short: "Scan directories for duplicate files",
		Long: `Scan walks each path, groups files of equal size, compares sampled and
then full content hashes, and prints the duplicate groups largest savings
first. With --trash, every copy but one per group is moved to the trash.`,
		Example: `  reclaim scan ~/Pictures
  reclaim scan --min-size 1MB --exclude-ext tmp,part ~/Downloads
  reclaim scan --dry-run --keep newest ~/Music
  reclaim scan --trash --permanent --keep oldest /srv/backups`,
		Args: cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := engine.ParseKeepStrategy(f.keep); err != nil {
				return err
			}
			if f.format != "text" && f.format != "json" {
				return fmt.Errorf("--format must be one of: text, json")
			}
			if f.permanent && !f.trash && !f.dryRun {
				return errors.New("--permanent requires --trash or --dry-run")
			}
			if f.trash && f.dryRun {
				return errors.New("--trash and --dry-run are mutually exclusive")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return c.runScan(ctx, cmd, args, &f)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.format, "format", "text", "Output format: text, json")
	fl.BoolVar(&f.trash, "trash", false, "Move duplicates to the trash, keeping one copy per group")
	fl.StringVar(&f.keep, "keep", "first", "Copy to keep: first, oldest, newest")
	fl.BoolVar(&f.permanent, "permanent", false, "Delete instead of moving to the trash")
	fl.BoolVar(&f.dryRun, "dry-run", false, "Print what --trash would remove")
	fl.BoolVar(&f.record, "record", false, "Store the run and any cleanup in the history database")
	fl.BoolVarP(&f.quiet, "quiet", "q", false, "Do not show progress")
	fl.IntVarP(&f.workers, "workers", "w", 0, "Files hashed at once (default from config)")

	fl.StringVar(&f.minSize, "min-size", "", "Ignore files smaller than this, e.g. 100KB or 1MiB")
	fl.BoolVar(&f.excludeHidden, "exclude-hidden", true, "Skip hidden files and directories")
	fl.BoolVar(&f.excludeSystem, "exclude-system", true, "Skip system and tool directories")
	fl.StringSliceVar(&f.extensions, "exclude-ext", nil, "File extensions to skip (comma-separated)")
	fl.StringSliceVar(&f.directories, "exclude-dir", nil, "Directory names to skip (comma-separated)")

	return cmd
}

// policy applies the flags the user set on top of base
func (f *scanFlags) policy(cmd *cobra.Command, base filter.Policy) (filter.Policy, error) {
	p := base
	changed := cmd.Flags().Changed
	if changed("min-size") {
		n, err := humanize.ParseBytes(f.minSize)
		if err != nil {
			return p, fmt.Errorf("--min-size: %w", err)
		}
		p.MinimumFileSize = int64(n)
	}
	if changed("exclude-hidden") {
		p.ExcludeHiddenFiles = f.excludeHidden
	}
	if changed("exclude-system") {
		p.ExcludeSystemDirectories = f.excludeSystem
	}
	if changed("exclude-ext") {
		p.ExcludedExtensions = f.extensions
	}
	if changed("exclude-dir") {
		p.ExcludedDirectoryNames = f.directories
	}
	return p, p.Validate()
}

func (c *cli) runScan(ctx context.Context, cmd *cobra.Command, args []string, f *scanFlags) error {
	roots := make([]string, 0, len(args))
	for _, arg := range args {
		abs, err := filepath.Abs(config.ExpandPath(arg))
		if err != nil {
			return err
		}
		roots = append(roots, abs)
	}

	policy, err := f.policy(cmd, c.cfg.Filter)
	if err != nil {
		return err
	}
	keep, _ := engine.ParseKeepStrategy(f.keep)
	writer, err := report.NewWriter(f.format, c.stdout)
	if err != nil {
		return err
	}

	workers := c.cfg.HashWorkers
	if f.workers > 0 {
		workers = f.workers
	}
	eng := engine.New(engine.Options{MaxConcurrent: workers, Trasher: c.trasher})

	var b backend = &directBackend{engine: eng}
	if f.record {
		database, err := c.openDB()
		if err != nil {
			return err
		}
		defer database.Close()
		b = &recordedBackend{db: database, scanner: services.NewScanner(database, eng, c.cfg.ScanTimeout)}
	}

	progress := newProgressPrinter(c.stderr, !f.quiet && isTerminal(c.stderr))
	progress.Start()
	result, err := b.Scan(ctx, roots, policy, progress.Update)
	progress.Stop()
	if err != nil {
		return err
	}

	rep := &report.Report{ScanResult: result, Permanent: f.permanent}
	switch {
	case f.dryRun:
		rep.Planned = planRemoval(result.Groups, keep)
	case f.trash:
		res, err := b.Remove(result.Groups, keep, f.permanent)
		rep.Trash = &res
		rep.TrashErr = err
	}

	if err := writer.Write(rep); err != nil {
		return err
	}
	switch {
	case rep.TrashErr == nil:
		return nil
	case len(rep.Trash.FailedFiles) > 0:
		return fmt.Errorf("%d of %d files could not be removed",
			len(rep.Trash.FailedFiles), rep.Trash.TrashedCount+len(rep.Trash.FailedFiles))
	}
	return rep.TrashErr
}
