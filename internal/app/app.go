// Package app wires the database, engine, scan service, scheduler and HTTP
// API into a runnable server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lyallcooper/reclaim/internal/config"
	"github.com/lyallcooper/reclaim/internal/db"
	"github.com/lyallcooper/reclaim/internal/engine"
	"github.com/lyallcooper/reclaim/internal/handlers"
	"github.com/lyallcooper/reclaim/internal/logging"
	"github.com/lyallcooper/reclaim/internal/scheduler"
	"github.com/lyallcooper/reclaim/internal/services"
)

// CleanupInterval is how often expired scan runs are purged
const CleanupInterval = 24 * time.Hour

// ServerConfig contains options for creating the application server.
type ServerConfig struct {
	// Config is the loaded configuration. Required.
	Config *config.Config

	// Port overrides the configured port when non-zero.
	Port int

	// BindAddress overrides the configured bind address when non-empty.
	BindAddress string

	// Version string for display.
	Version string

	// Commit hash for display.
	Commit string
}

// Server wraps the HTTP server and associated resources.
type Server struct {
	HTTP      *http.Server
	Config    *config.Config
	Database  *db.DB
	Engine    *engine.Engine
	Scanner   *services.Scanner
	Scheduler *scheduler.Scheduler
	Version   string

	log         *zap.Logger
	cleanupOnce sync.Once
}

// CreateServer initializes all application components and returns a Server.
// Call Server.Cleanup() when done to release resources.
func CreateServer(cfg ServerConfig) (*Server, error) {
	if cfg.Config == nil {
		return nil, errors.New("app: config is required")
	}
	appCfg := cfg.Config
	if cfg.Port > 0 {
		appCfg.Port = cfg.Port
	}
	if cfg.BindAddress != "" {
		appCfg.Bind = cfg.BindAddress
	}

	log := logging.Component("app")
	versionStr := buildVersionString(cfg.Version, cfg.Commit)

	database, err := db.Open(appCfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Runs left running by a crash can never finish
	if n, err := database.FailStaleScanRuns(); err != nil {
		log.Warn("failed to mark stale scan runs", zap.Error(err))
	} else if n > 0 {
		log.Info("marked stale scan runs as failed", zap.Int64("count", n))
	}

	// Load retention from DB if not set via env var
	if !appCfg.RetentionDaysFromEnv {
		if val, err := database.GetSetting("retention_days"); err == nil && val != "" {
			if days, err := strconv.Atoi(val); err == nil && days >= 1 && days <= 365 {
				appCfg.RetentionDays = days
			}
		}
	}

	eng := engine.New(engine.Options{MaxConcurrent: appCfg.HashWorkers})
	scanner := services.NewScanner(database, eng, appCfg.ScanTimeout)
	sched := scheduler.New(database, scanner)
	h := handlers.New(database, appCfg, eng, scanner, sched)

	log.Info("reclaim starting",
		zap.String("version", versionStr),
		zap.String("db", appCfg.DBPath),
		zap.String("addr", appCfg.Addr()),
		zap.Int("retention_days", appCfg.RetentionDays),
		zap.Int("hash_workers", appCfg.HashWorkers),
		zap.Strings("allowed_paths", appCfg.AllowedPaths))

	server := &http.Server{
		Addr:         appCfg.Addr(),
		Handler:      h.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // No timeout for SSE
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		HTTP:      server,
		Config:    appCfg,
		Database:  database,
		Engine:    eng,
		Scanner:   scanner,
		Scheduler: sched,
		Version:   versionStr,
		log:       log,
	}, nil
}

// Run starts the scheduler, the cleanup loop and the HTTP listener, and
// blocks until ctx is cancelled or the listener fails. It then shuts
// everything down, giving in-flight work shutdownTimeout to finish.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	s.Scheduler.Start()
	cancelCleanup, cleanupDone := s.StartCleanupLoop()

	serveErr := make(chan error, 1)
	go func() {
		s.log.Info("server listening", zap.String("addr", s.HTTP.Addr))
		if err := s.HTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		s.log.Info("shutting down")
	case err := <-serveErr:
		runErr = err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.HTTP.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("http shutdown", zap.Error(err))
	}
	cancelCleanup()
	<-cleanupDone
	if err := s.Scanner.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("scans did not stop in time", zap.Error(err))
	}
	s.Cleanup()

	s.log.Info("server stopped")
	return runErr
}

// Cleanup releases all resources held by the server. Safe to call twice.
func (s *Server) Cleanup() {
	s.cleanupOnce.Do(func() {
		if s.Scheduler != nil {
			s.Scheduler.Stop()
		}
		if s.Database != nil {
			s.Database.Close()
		}
	})
}

// StartCleanupLoop starts a background goroutine that periodically cleans up old data.
// Returns a cancel function and a done channel.
func (s *Server) StartCleanupLoop() (cancel func(), done <-chan struct{}) {
	cleanupDone := make(chan struct{})
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())

	go func() {
		defer close(cleanupDone)
		ticker := time.NewTicker(CleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-cleanupCtx.Done():
				return
			case <-ticker.C:
				s.runCleanup()
			}
		}
	}()

	return cleanupCancel, cleanupDone
}

func (s *Server) runCleanup() {
	if s.Config.RetentionDays == 0 {
		return
	}
	n, err := s.Database.CleanupOldData(s.Config.RetentionDays)
	if err != nil {
		s.log.Error("cleanup failed", zap.Error(err))
		return
	}
	s.log.Info("cleanup done", zap.Int("retention_days", s.Config.RetentionDays), zap.Int64("runs_removed", n))
}

func buildVersionString(version, commit string) string {
	if version == "" {
		version = "dev"
	}
	if strings.HasPrefix(version, "v") {
		return version
	}
	shortCommit := commit
	if len(shortCommit) > 7 {
		shortCommit = shortCommit[:7]
	}
	if shortCommit == "" {
		shortCommit = "unknown"
	}
	return version + "-" + shortCommit
}
