// Package config loads reclaim settings from an optional INI file and
// RECLAIM_* environment variables. Environment values win.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-ini/ini"

	"github.com/lyallcooper/reclaim/internal/filter"
	"github.com/lyallcooper/reclaim/internal/hasher"
)

// Config holds all application configuration
type Config struct {
	Port          int
	Bind          string
	DBPath        string
	AllowedPaths  []string // Roots scans may target; empty means unrestricted
	RetentionDays int
	ScanTimeout   time.Duration
	HashWorkers   int
	LogLevel      string
	LogFormat     string
	ConfigFile    string

	// RetentionDaysFromEnv locks RetentionDays against the stored setting
	RetentionDaysFromEnv bool

	// Filter is the default policy for scans that do not set their own
	Filter filter.Policy
}

// Load reads the config file named by RECLAIM_CONFIG, if any, then applies
// environment overrides
func Load() (*Config, error) {
	cfg := &Config{
		Port:          8080,
		DBPath:        "./data/reclaim.db",
		RetentionDays: 30,
		ScanTimeout:   6 * time.Hour,
		HashWorkers:   hasher.DefaultMaxConcurrent,
		LogLevel:      "info",
		LogFormat:     "json",
		ConfigFile:    ExpandPath(getEnv("RECLAIM_CONFIG", "")),
		Filter:        filter.Default(),
	}

	if cfg.ConfigFile != "" {
		if err := cfg.loadFile(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}

	cfg.Port = getEnvInt("RECLAIM_PORT", cfg.Port)
	cfg.Bind = getEnv("RECLAIM_BIND", cfg.Bind)
	cfg.DBPath = ExpandPath(getEnv("RECLAIM_DB_PATH", cfg.DBPath))
	cfg.RetentionDays = getEnvInt("RECLAIM_RETENTION_DAYS", cfg.RetentionDays)
	cfg.RetentionDaysFromEnv = os.Getenv("RECLAIM_RETENTION_DAYS") != ""
	cfg.ScanTimeout = getEnvDuration("RECLAIM_SCAN_TIMEOUT", cfg.ScanTimeout)
	cfg.HashWorkers = getEnvInt("RECLAIM_HASH_WORKERS", cfg.HashWorkers)
	cfg.LogLevel = getEnv("RECLAIM_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("RECLAIM_LOG_FORMAT", cfg.LogFormat)
	cfg.Filter.ExcludeHiddenFiles = getEnvBool("RECLAIM_EXCLUDE_HIDDEN", cfg.Filter.ExcludeHiddenFiles)
	if paths := getEnvPaths("RECLAIM_SCAN_PATHS"); paths != nil {
		cfg.AllowedPaths = paths
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile applies the [filter] and [performance] sections of an INI file
func (c *Config) loadFile(path string) error {
	f, err := ini.Load(path)
	if err != nil {
		return fmt.Errorf("load config file %s: %w", path, err)
	}

	if f.HasSection("filter") {
		section := f.Section("filter")
		if key, err := section.GetKey("min_size"); err == nil {
			size, err := humanize.ParseBytes(key.String())
			if err != nil {
				return fmt.Errorf("config file %s: min_size: %w", path, err)
			}
			c.Filter.MinimumFileSize = int64(size)
		}
		c.Filter.ExcludeHiddenFiles = section.Key("exclude_hidden").MustBool(c.Filter.ExcludeHiddenFiles)
		c.Filter.ExcludeSystemDirectories = section.Key("exclude_system").MustBool(c.Filter.ExcludeSystemDirectories)
		if section.HasKey("excluded_extensions") {
			c.Filter.ExcludedExtensions = section.Key("excluded_extensions").Strings(",")
		}
		if section.HasKey("excluded_directories") {
			c.Filter.ExcludedDirectoryNames = section.Key("excluded_directories").Strings(",")
		}
	}

	if f.HasSection("performance") {
		c.HashWorkers = f.Section("performance").Key("hash_workers").MustInt(c.HashWorkers)
	}

	if f.HasSection("server") {
		section := f.Section("server")
		c.Port = section.Key("port").MustInt(c.Port)
		c.Bind = section.Key("bind").MustString(c.Bind)
		c.DBPath = ExpandPath(section.Key("db_path").MustString(c.DBPath))
		c.RetentionDays = section.Key("retention_days").MustInt(c.RetentionDays)
		c.AllowedPaths = expandAll(section.Key("scan_paths").Strings(","), c.AllowedPaths)
	}
	return nil
}

// Validate rejects settings the server cannot run with
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.HashWorkers < 1 {
		return fmt.Errorf("hash workers must be at least 1, got %d", c.HashWorkers)
	}
	if c.RetentionDays < 0 {
		return fmt.Errorf("retention days must not be negative, got %d", c.RetentionDays)
	}
	return c.Filter.Validate()
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}

// ExpandPath expands a leading ~ to the user's home directory and cleans the
// result. Relative paths stay relative.
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[1:])
		}
	}
	return filepath.Clean(path)
}

// IsPathAllowed reports whether path lies inside one of the allowed roots.
// No allowed roots means any path is allowed.
func (c *Config) IsPathAllowed(path string) bool {
	if len(c.AllowedPaths) == 0 {
		return true
	}
	path = filepath.Clean(path)
	for _, allowed := range c.AllowedPaths {
		allowed = filepath.Clean(allowed)
		if path == allowed {
			return true
		}
		prefix := allowed
		if !strings.HasSuffix(prefix, string(filepath.Separator)) {
			prefix += string(filepath.Separator)
		}
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// getEnvPaths parses a comma-separated list of paths, expanding ~
func getEnvPaths(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	return expandAll(strings.Split(val, ","), nil)
}

func expandAll(paths, fallback []string) []string {
	var out []string
	for _, p := range paths {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, ExpandPath(p))
		}
	}
	if out == nil {
		return fallback
	}
	return out
}
