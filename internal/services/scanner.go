package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lyallcooper/reclaim/internal/db"
	"github.com/lyallcooper/reclaim/internal/detector"
	"github.com/lyallcooper/reclaim/internal/engine"
	"github.com/lyallcooper/reclaim/internal/filter"
	"github.com/lyallcooper/reclaim/internal/logging"
	"github.com/lyallcooper/reclaim/internal/metrics"
	"github.com/lyallcooper/reclaim/internal/types"
)

// progressPersistInterval throttles how often running counters hit the database
const progressPersistInterval = time.Second

var ErrNoPaths = errors.New("no scan paths given")

// subscriber wraps a channel with safe close handling
type subscriber struct {
	mu     sync.Mutex
	ch     chan *types.ScanProgress
	closed bool
}

func (sub *subscriber) close() {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
}

func (sub *subscriber) send(progress *types.ScanProgress) bool {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return false
	}
	select {
	case sub.ch <- progress:
		return true
	default:
		return false
	}
}

type activeScan struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Scanner orchestrates persisted scan runs on top of the engine
type Scanner struct {
	db          *db.DB
	engine      engine.Interface
	scanTimeout time.Duration
	log         *zap.Logger

	// Active scans and their cancellation functions
	mu          sync.RWMutex
	activeScans map[int64]*activeScan

	// SSE subscribers
	subMu       sync.RWMutex
	subscribers map[int64][]*subscriber

	// Held from loading a group until it is pruned, so two removals can
	// never take the last copies of the same file
	trashMu sync.Mutex
}

// NewScanner creates a new scanner service. A zero scanTimeout disables the
// per-run deadline.
func NewScanner(database *db.DB, eng engine.Interface, scanTimeout time.Duration) *Scanner {
	return &Scanner{
		db:          database,
		engine:      eng,
		scanTimeout: scanTimeout,
		log:         logging.Component("services"),
		activeScans: make(map[int64]*activeScan),
		subscribers: make(map[int64][]*subscriber),
	}
}

// Subscribe subscribes to progress updates for a scan
func (s *Scanner) Subscribe(runID int64) chan *types.ScanProgress {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	sub := &subscriber{
		ch: make(chan *types.ScanProgress, 10),
	}
	s.subscribers[runID] = append(s.subscribers[runID], sub)
	return sub.ch
}

// Unsubscribe removes a subscriber
func (s *Scanner) Unsubscribe(runID int64, ch chan *types.ScanProgress) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	subs := s.subscribers[runID]
	for i, sub := range subs {
		if sub.ch == ch {
			s.subscribers[runID] = append(subs[:i], subs[i+1:]...)
			sub.close()
			break
		}
	}

	if len(s.subscribers[runID]) == 0 {
		delete(s.subscribers, runID)
	}
}

// broadcast sends progress to all subscribers
func (s *Scanner) broadcast(runID int64, progress *types.ScanProgress) {
	s.subMu.RLock()
	subs := make([]*subscriber, len(s.subscribers[runID]))
	copy(subs, s.subscribers[runID])
	s.subMu.RUnlock()

	for _, sub := range subs {
		sub.send(progress)
	}
}

// closeSubscribers closes all subscriber channels for a scan
func (s *Scanner) closeSubscribers(runID int64) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for _, sub := range s.subscribers[runID] {
		sub.close()
	}
	delete(s.subscribers, runID)
}

// ScanConfig holds configuration for a scan
type ScanConfig struct {
	Paths  []string
	Policy filter.Policy
}

// StartScan creates a run record and scans in the background. The run
// outlives ctx; use CancelScan to stop it.
func (s *Scanner) StartScan(ctx context.Context, cfg *ScanConfig, jobID *int64) (*db.ScanRun, error) {
	if len(cfg.Paths) == 0 {
		return nil, ErrNoPaths
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}

	run, err := s.db.CreateScanRun(jobID, cfg.Paths, db.OptionsFromPolicy(cfg.Policy))
	if err != nil {
		return nil, fmt.Errorf("create scan run: %w", err)
	}

	var (
		scanCtx context.Context
		cancel  context.CancelFunc
	)
	if s.scanTimeout > 0 {
		scanCtx, cancel = context.WithTimeout(context.Background(), s.scanTimeout)
	} else {
		scanCtx, cancel = context.WithCancel(context.Background())
	}

	active := &activeScan{cancel: cancel, done: make(chan struct{})}
	s.mu.Lock()
	s.activeScans[run.ID] = active
	s.mu.Unlock()

	s.log.Info("scan started", zap.Int64("run_id", run.ID), zap.Strings("paths", cfg.Paths))
	go s.runScan(scanCtx, run.ID, cfg, active)

	return run, nil
}

// runScan executes scan and detection and persists the outcome
func (s *Scanner) runScan(ctx context.Context, runID int64, cfg *ScanConfig, active *activeScan) {
	started := time.Now()
	defer func() {
		active.cancel()
		s.mu.Lock()
		delete(s.activeScans, runID)
		s.mu.Unlock()
		s.closeSubscribers(runID)
		close(active.done)
	}()

	progress := make(chan types.ScanProgress, 100)
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		s.forwardProgress(runID, progress)
	}()

	out, result, err := s.scanAndDetect(ctx, cfg, progress)
	close(progress)
	<-forwarded

	if err != nil {
		s.finishWithError(ctx, runID, started, err)
		return
	}

	var totalBytes int64
	for _, f := range out.Files {
		totalBytes += f.Size
	}
	scanResult := types.ScanResult{Groups: result.Groups}

	if err := s.db.CreateDuplicateGroups(runID, result.Groups); err != nil {
		s.finishWithError(ctx, runID, started, fmt.Errorf("store duplicate groups: %w", err))
		return
	}
	skipped := slices.Concat(out.Skipped, result.Skipped)
	if err := s.db.CreateSkippedFiles(runID, skipped); err != nil {
		s.log.Warn("failed to store skipped files", zap.Int64("run_id", runID), zap.Error(err))
	}
	if err := s.db.UpdateScanRunProgress(runID,
		int64(len(out.Files)),
		totalBytes,
		int64(len(result.Groups)),
		int64(scanResult.DuplicateFileCount()),
		scanResult.TotalPotentialSavings(),
	); err != nil {
		s.log.Warn("failed to store final counters", zap.Int64("run_id", runID), zap.Error(err))
	}
	if err := s.db.CompleteScanRun(runID, db.ScanRunStatusCompleted, nil); err != nil {
		s.log.Error("failed to complete scan run", zap.Int64("run_id", runID), zap.Error(err))
	}

	metrics.RecordScan(string(db.ScanRunStatusCompleted), time.Since(started))
	metrics.RecordHashing(result.Stats.PartialHashed, result.Stats.FullHashed, result.Stats.BytesHashed)
	metrics.SetDuplicateGroups(len(result.Groups))

	s.log.Info("scan completed",
		zap.Int64("run_id", runID),
		zap.Int("files", len(out.Files)),
		zap.Int("groups", len(result.Groups)),
		zap.Int("skipped", len(skipped)),
		zap.Int64("wasted_bytes", scanResult.TotalPotentialSavings()),
		zap.Duration("elapsed", time.Since(started)))

	s.broadcast(runID, &types.ScanProgress{
		Phase:          types.PhaseCompleted,
		TotalFiles:     int64(len(out.Files)),
		ProcessedFiles: int64(len(out.Files)),
		TotalBytes:     totalBytes,
		ProcessedBytes: totalBytes,
		StartedAt:      started,
		SkippedCount:   int64(len(skipped)),
	})
}

func (s *Scanner) scanAndDetect(ctx context.Context, cfg *ScanConfig, progress chan<- types.ScanProgress) (*engine.ScanOutput, *detector.Result, error) {
	out, err := s.engine.Scan(ctx, cfg.Paths, cfg.Policy, progress)
	if err != nil {
		return nil, nil, err
	}
	result, err := s.engine.Detect(ctx, out.Files, progress)
	if err != nil {
		return nil, nil, err
	}
	return out, result, nil
}

// forwardProgress relays pipeline events to subscribers and persists the
// enumeration counters at most once per progressPersistInterval. Terminal
// events are held back; runScan sends its own once results are stored.
func (s *Scanner) forwardProgress(runID int64, progress <-chan types.ScanProgress) {
	var lastPersist time.Time
	for p := range progress {
		if !p.Phase.IsActive() {
			continue
		}
		if p.Phase == types.PhaseEnumerating && time.Since(lastPersist) >= progressPersistInterval {
			lastPersist = time.Now()
			if err := s.db.UpdateScanRunProgress(runID, p.ProcessedFiles, p.ProcessedBytes, 0, 0, 0); err != nil {
				s.log.Debug("failed to persist progress", zap.Int64("run_id", runID), zap.Error(err))
			}
		}
		s.broadcast(runID, &p)
	}
}

func (s *Scanner) finishWithError(ctx context.Context, runID int64, started time.Time, err error) {
	status := db.ScanRunStatusFailed
	phase := types.PhaseFailed
	msg := err.Error()

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		msg = fmt.Sprintf("scan timed out after %s", s.scanTimeout)
	case errors.Is(err, types.ErrCancelled) || ctx.Err() != nil:
		status = db.ScanRunStatusCancelled
		phase = types.PhaseCancelled
		msg = "scan cancelled"
	}

	if err := s.db.CompleteScanRun(runID, status, &msg); err != nil {
		s.log.Error("failed to complete scan run", zap.Int64("run_id", runID), zap.Error(err))
	}
	metrics.RecordScan(string(status), time.Since(started))

	if status == db.ScanRunStatusCancelled {
		s.log.Info("scan cancelled", zap.Int64("run_id", runID))
	} else {
		s.log.Warn("scan failed", zap.Int64("run_id", runID), zap.String("error", msg))
	}

	s.broadcast(runID, &types.ScanProgress{Phase: phase, StartedAt: started, Error: msg})
}

// CancelScan cancels an active scan. It reports whether the run was active.
func (s *Scanner) CancelScan(runID int64) bool {
	s.mu.RLock()
	active, ok := s.activeScans[runID]
	s.mu.RUnlock()

	if ok {
		active.cancel()
	}
	return ok
}

// IsActive reports whether a run is still scanning in this process
func (s *Scanner) IsActive(runID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.activeScans[runID]
	return ok
}

// WaitForRun blocks until the run has finished and its results are stored.
// Runs that are not active return immediately.
func (s *Scanner) WaitForRun(ctx context.Context, runID int64) error {
	s.mu.RLock()
	active, ok := s.activeScans[runID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	select {
	case <-active.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown cancels every active run and waits for them to record their status
func (s *Scanner) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	runs := make([]*activeScan, 0, len(s.activeScans))
	for _, a := range s.activeScans {
		runs = append(runs, a)
	}
	s.mu.RUnlock()

	for _, a := range runs {
		a.cancel()
	}
	for _, a := range runs {
		select {
		case <-a.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
