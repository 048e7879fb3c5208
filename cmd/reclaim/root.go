package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/lyallcooper/reclaim/internal/config"
	"github.com/lyallcooper/reclaim/internal/db"
	"github.com/lyallcooper/reclaim/internal/fileops"
	"github.com/lyallcooper/reclaim/internal/logging"
)

// cli holds the state shared by all subcommands
type cli struct {
	stdout io.Writer
	stderr io.Writer

	// trasher overrides the platform trash, for tests
	trasher fileops.Trasher

	configFile string
	dbPath     string
	logLevel   string

	cfg *config.Config
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "reclaim",
		Short:   "Find duplicate files and reclaim the space they waste",
		Version: version + " (" + commit + ")",
		Long: `reclaim walks directory trees, narrows candidates by size and sampled
content, confirms duplicates with a full content hash, and moves redundant
copies to the trash.`,
		Example: `  reclaim scan ~/Pictures ~/Downloads
  reclaim scan --format json ~/Music > dupes.json
  reclaim scan --trash --keep oldest --record ~/Documents
  reclaim serve --port 8080
  reclaim jobs add --name nightly --cron "0 3 * * *" ~/Pictures`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(c.stdout)
	root.SetErr(c.stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&c.configFile, "config", "", "INI config file (overrides RECLAIM_CONFIG)")
	pf.StringVar(&c.dbPath, "db", "", "History database path (overrides RECLAIM_DB_PATH)")
	pf.StringVar(&c.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	root.AddCommand(c.scanCmd(), c.serveCmd(), c.historyCmd(), c.jobsCmd())
	return root
}

// setup loads configuration and initializes logging. One-off commands log
// warnings and errors to stderr in console format; serve uses the
// configured level and format.
func (c *cli) setup(cmd *cobra.Command) error {
	if c.configFile != "" {
		os.Setenv("RECLAIM_CONFIG", c.configFile)
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if c.dbPath != "" {
		cfg.DBPath = config.ExpandPath(c.dbPath)
	}
	c.cfg = cfg

	level, format := "warn", "console"
	if cmd.Name() == "serve" {
		level, format = cfg.LogLevel, cfg.LogFormat
	}
	if c.logLevel != "" {
		level = c.logLevel
	}
	return logging.Init(logging.Config{Level: level, Format: format, OutputPath: "stderr"})
}

func (c *cli) openDB() (*db.DB, error) {
	return db.Open(c.cfg.DBPath)
}
