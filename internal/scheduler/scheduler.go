package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/lyallcooper/reclaim/internal/db"
	"github.com/lyallcooper/reclaim/internal/engine"
	"github.com/lyallcooper/reclaim/internal/logging"
	"github.com/lyallcooper/reclaim/internal/services"
)

// parser accepts standard five-field expressions and descriptors like @daily
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateCron checks a cron expression without scheduling anything
func ValidateCron(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// NextRun returns the first activation of expr after from
func NextRun(expr string, from time.Time) (time.Time, error) {
	schedule, err := parser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return schedule.Next(from), nil
}

// Scheduler manages scheduled jobs
type Scheduler struct {
	db       *db.DB
	scanner  *services.Scanner
	interval time.Duration
	log      *zap.Logger

	mu       sync.RWMutex
	running  bool
	stopChan chan struct{}
	ctx      context.Context    // Parent of every spawned job
	cancel   context.CancelFunc // Cancel function for running jobs
	wg       sync.WaitGroup     // Tracks spawned job goroutines
}

// New creates a new scheduler
func New(database *db.DB, scanner *services.Scanner) *Scheduler {
	return &Scheduler{
		db:       database,
		scanner:  scanner,
		interval: time.Minute,
		log:      logging.Component("scheduler"),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	s.ctx = ctx
	s.cancel = cancel
	s.mu.Unlock()

	go s.run(ctx)
}

// Stop stops the scheduler and waits for running jobs to complete
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)

	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// run is the main scheduler loop
func (s *Scheduler) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Check immediately on start
	s.checkJobs(ctx)

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.checkJobs(ctx)
		}
	}
}

// checkJobs starts every enabled job whose next run is due. The next run is
// advanced before the job starts so a slow job is not started twice.
func (s *Scheduler) checkJobs(ctx context.Context) {
	jobs, err := s.db.GetEnabledJobs()
	if err != nil {
		s.log.Error("failed to get jobs", zap.Error(err))
		return
	}

	now := time.Now()

	for _, job := range jobs {
		if job.NextRunAt == nil || job.NextRunAt.After(now) {
			continue
		}

		next, err := NextRun(job.CronExpression, now)
		if err != nil {
			s.log.Warn("disabling job with invalid cron expression", zap.Int64("job_id", job.ID), zap.Error(err))
			s.db.SetJobEnabled(job.ID, false)
			continue
		}
		if err := s.db.UpdateJobLastRun(job.ID, now, next); err != nil {
			s.log.Error("failed to update job last run", zap.Int64("job_id", job.ID), zap.Error(err))
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runJob(ctx, job)
		}()
	}
}

// RunNow starts a job immediately, outside its schedule. It returns the
// started scan run; the job's action continues in the background.
func (s *Scheduler) RunNow(jobID int64) (*db.ScanRun, error) {
	job, err := s.db.GetScheduledJob(jobID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()
	if ctx == nil || ctx.Err() != nil {
		ctx = context.Background()
	}

	run, err := s.startScan(ctx, job)
	if err != nil {
		return nil, err
	}
	if err := s.db.UpdateJobLastRun(job.ID, time.Now(), derefOr(job.NextRunAt, time.Now())); err != nil {
		s.log.Warn("failed to record manual run", zap.Int64("job_id", job.ID), zap.Error(err))
	}

	if job.Action == db.JobActionScanTrash {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.trashAfterScan(ctx, run.ID, job)
		}()
	}
	return run, nil
}

// runJob executes a scheduled job
func (s *Scheduler) runJob(ctx context.Context, job *db.ScheduledJob) {
	if ctx.Err() != nil {
		s.log.Info("job cancelled before start", zap.Int64("job_id", job.ID))
		return
	}

	run, err := s.startScan(ctx, job)
	if err != nil {
		s.log.Error("failed to start scan for job", zap.Int64("job_id", job.ID), zap.Error(err))
		return
	}

	if job.Action == db.JobActionScanTrash {
		s.trashAfterScan(ctx, run.ID, job)
	}
}

func (s *Scheduler) startScan(ctx context.Context, job *db.ScheduledJob) (*db.ScanRun, error) {
	if len(job.Paths) == 0 {
		return nil, fmt.Errorf("job %d has no paths configured", job.ID)
	}

	cfg := &services.ScanConfig{
		Paths:  job.Paths,
		Policy: job.Options.Policy(),
	}
	run, err := s.scanner.StartScan(ctx, cfg, &job.ID)
	if err != nil {
		return nil, err
	}

	s.log.Info("started scheduled scan",
		zap.Int64("job_id", job.ID),
		zap.String("job", job.Name),
		zap.Int64("run_id", run.ID))
	return run, nil
}

// trashAfterScan waits for a scan to finish and trashes every duplicate,
// keeping the oldest copy of each group
func (s *Scheduler) trashAfterScan(ctx context.Context, runID int64, job *db.ScheduledJob) {
	if err := s.scanner.WaitForRun(ctx, runID); err != nil {
		return
	}

	run, err := s.db.GetScanRun(runID)
	if err != nil {
		s.log.Error("failed to get scan run", zap.Int64("run_id", runID), zap.Error(err))
		return
	}
	if run.Status != db.ScanRunStatusCompleted {
		s.log.Info("scan did not complete, skipping trash", zap.Int64("run_id", runID), zap.String("status", string(run.Status)))
		return
	}

	result, err := s.scanner.TrashGroupsKeeping(services.TrashRequest{RunID: runID}, nil, engine.KeepOldest)
	if err != nil {
		s.log.Warn("scheduled trash finished with errors",
			zap.Int64("job_id", job.ID),
			zap.Int("trashed", result.TrashedCount),
			zap.Int("failed", len(result.FailedFiles)),
			zap.Error(err))
		return
	}
	s.log.Info("scheduled trash finished",
		zap.Int64("job_id", job.ID),
		zap.Int("trashed", result.TrashedCount),
		zap.Int64("bytes_freed", result.BytesFreed))
}

// UpdateNextRun updates the next run time for a job
func (s *Scheduler) UpdateNextRun(job *db.ScheduledJob) error {
	next, err := NextRun(job.CronExpression, time.Now())
	if err != nil {
		return err
	}
	job.NextRunAt = &next

	return s.db.UpdateScheduledJob(job)
}

func derefOr(t *time.Time, def time.Time) time.Time {
	if t == nil {
		return def
	}
	return *t
}
