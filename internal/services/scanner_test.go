package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/lyallcooper/reclaim/internal/db"
	"github.com/lyallcooper/reclaim/internal/detector"
	"github.com/lyallcooper/reclaim/internal/engine"
	"github.com/lyallcooper/reclaim/internal/filter"
	"github.com/lyallcooper/reclaim/internal/types"
)

// mockEngine implements engine.Interface for testing
type mockEngine struct {
	mu sync.Mutex

	// Configurable responses
	files     []types.ScannedFile
	skipped   []types.SkippedFile
	groups    []types.DuplicateGroup
	scanErr   error
	detectErr error
	failPaths map[string]bool

	// Track calls
	scanCalls   int
	detectCalls int
	trashed     [][]types.ScannedFile
	removed     [][]types.ScannedFile
}

func (m *mockEngine) Scan(ctx context.Context, roots []string, policy filter.Policy, progress chan<- types.ScanProgress) (*engine.ScanOutput, error) {
	m.mu.Lock()
	m.scanCalls++
	m.mu.Unlock()

	if progress != nil {
		progress <- types.ScanProgress{Phase: types.PhaseEnumerating, ProcessedFiles: int64(len(m.files))}
	}
	if m.scanErr != nil {
		return nil, m.scanErr
	}
	return &engine.ScanOutput{Files: m.files, Skipped: m.skipped}, nil
}

func (m *mockEngine) Detect(ctx context.Context, files []types.ScannedFile, progress chan<- types.ScanProgress) (*detector.Result, error) {
	m.mu.Lock()
	m.detectCalls++
	m.mu.Unlock()

	if m.detectErr != nil {
		return nil, m.detectErr
	}
	if progress != nil {
		// Terminal events from the pipeline must not reach subscribers early
		progress <- types.ScanProgress{Phase: types.PhaseCompleted}
	}
	return &detector.Result{Groups: m.groups, Stats: detector.Stats{FullHashed: int64(len(files))}}, nil
}

func (m *mockEngine) apply(files []types.ScannedFile) (types.TrashResult, error) {
	var result types.TrashResult
	for _, f := range files {
		if m.failPaths[f.Path] {
			result.FailedFiles = append(result.FailedFiles, types.FailedFile{Path: f.Path, Reason: types.FailurePermissionDenied})
			continue
		}
		result.TrashedCount++
		result.BytesFreed += f.Size
		result.TrashedPaths = append(result.TrashedPaths, f.Path)
	}
	if len(result.FailedFiles) > 0 {
		return result, errors.New("some files failed")
	}
	return result, nil
}

func (m *mockEngine) Trash(files []types.ScannedFile) (types.TrashResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trashed = append(m.trashed, files)
	return m.apply(files)
}

func (m *mockEngine) Remove(files []types.ScannedFile) (types.TrashResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, files)
	return m.apply(files)
}

func (m *mockEngine) DeleteDuplicates(group types.DuplicateGroup, keep types.ScannedFile) (types.TrashResult, error) {
	return types.TrashResult{}, nil
}

func (m *mockEngine) Reveal(path string) error { return nil }
func (m *mockEngine) Open(path string) error   { return nil }

// blockingEngine blocks in Scan until cancelled or released
type blockingEngine struct {
	mockEngine
	started chan struct{}
	release chan struct{}
}

func (m *blockingEngine) Scan(ctx context.Context, roots []string, policy filter.Policy, progress chan<- types.ScanProgress) (*engine.ScanOutput, error) {
	close(m.started)
	select {
	case <-ctx.Done():
		return nil, types.ErrCancelled
	case <-m.release:
		return &engine.ScanOutput{}, nil
	}
}

// testDB creates a test database in a temp directory
func testDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func mtime(day int) *time.Time {
	t := time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC)
	return &t
}

// sampleEngine returns an engine reporting two duplicate groups
func sampleEngine() *mockEngine {
	a := []types.ScannedFile{
		{ID: "a1", Path: "/data/a1", Size: 10000, ModifiedAt: mtime(3)},
		{ID: "a2", Path: "/data/a2", Size: 10000, ModifiedAt: mtime(1)},
		{ID: "a3", Path: "/data/a3", Size: 10000, ModifiedAt: mtime(2)},
	}
	b := []types.ScannedFile{
		{ID: "b1", Path: "/data/b1", Size: 20000, ModifiedAt: mtime(5)},
		{ID: "b2", Path: "/data/b2", Size: 20000, ModifiedAt: mtime(4)},
	}
	return &mockEngine{
		files:   append(append([]types.ScannedFile{{ID: "u", Path: "/data/unique", Size: 5}}, a...), b...),
		skipped: []types.SkippedFile{{Path: "/data/locked", Reason: types.SkipPermissionDenied}},
		groups: []types.DuplicateGroup{
			{Hash: "aaaaaaaaaaaaaaaa", Size: 10000, Files: a},
			{Hash: "bbbbbbbbbbbbbbbb", Size: 20000, Files: b},
		},
	}
}

// completedRun starts a scan and waits for it to finish
func completedRun(t *testing.T, s *Scanner) *db.ScanRun {
	t.Helper()
	run, err := s.StartScan(context.Background(), &ScanConfig{Paths: []string{"/data"}, Policy: filter.Default()}, nil)
	if err != nil {
		t.Fatalf("StartScan failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.WaitForRun(ctx, run.ID); err != nil {
		t.Fatalf("WaitForRun failed: %v", err)
	}
	return run
}

func TestNewScanner(t *testing.T) {
	database := testDB(t)
	eng := &mockEngine{}
	timeout := 5 * time.Minute

	scanner := NewScanner(database, eng, timeout)

	if scanner.db != database {
		t.Error("scanner.db not set correctly")
	}
	if scanner.engine != eng {
		t.Error("scanner.engine not set correctly")
	}
	if scanner.scanTimeout != timeout {
		t.Errorf("scanner.scanTimeout = %v, want %v", scanner.scanTimeout, timeout)
	}
	if scanner.activeScans == nil || scanner.subscribers == nil {
		t.Error("scanner maps not initialized")
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	scanner := NewScanner(testDB(t), &mockEngine{}, time.Minute)
	runID := int64(123)

	ch := scanner.Subscribe(runID)

	scanner.subMu.RLock()
	subs := scanner.subscribers[runID]
	scanner.subMu.RUnlock()
	if len(subs) != 1 {
		t.Errorf("expected 1 subscriber, got %d", len(subs))
	}

	scanner.Unsubscribe(runID, ch)

	scanner.subMu.RLock()
	_, ok := scanner.subscribers[runID]
	scanner.subMu.RUnlock()
	if ok {
		t.Error("subscriber list should be removed after the last unsubscribe")
	}
	if _, open := <-ch; open {
		t.Error("channel should be closed after unsubscribe")
	}

	// Unsubscribing twice is harmless
	scanner.Unsubscribe(runID, ch)
}

func TestMultipleSubscribers(t *testing.T) {
	scanner := NewScanner(testDB(t), &mockEngine{}, time.Minute)
	runID := int64(456)

	ch1 := scanner.Subscribe(runID)
	ch2 := scanner.Subscribe(runID)
	ch3 := scanner.Subscribe(runID)

	scanner.Unsubscribe(runID, ch2)
	scanner.broadcast(runID, &types.ScanProgress{Phase: types.PhaseEnumerating})

	for i, ch := range []chan *types.ScanProgress{ch1, ch3} {
		select {
		case p := <-ch:
			if p.Phase != types.PhaseEnumerating {
				t.Errorf("subscriber %d got phase %s", i, p.Phase)
			}
		default:
			t.Errorf("subscriber %d got nothing", i)
		}
	}

	scanner.closeSubscribers(runID)
	scanner.Unsubscribe(runID, ch1)
}

func TestBroadcastDoesNotBlock(t *testing.T) {
	scanner := NewScanner(testDB(t), &mockEngine{}, time.Minute)
	ch := scanner.Subscribe(1)

	// Never drained; sends beyond the buffer are dropped
	for i := 0; i < 50; i++ {
		scanner.broadcast(1, &types.ScanProgress{ProcessedFiles: int64(i)})
	}
	if len(ch) != cap(ch) {
		t.Errorf("len(ch) = %d, want full buffer %d", len(ch), cap(ch))
	}
	scanner.Unsubscribe(1, ch)
}

func TestStartScan(t *testing.T) {
	database := testDB(t)
	eng := sampleEngine()
	scanner := NewScanner(database, eng, 5*time.Minute)

	run := completedRun(t, scanner)
	if run.Status != db.ScanRunStatusRunning {
		t.Errorf("initial status = %s, want running", run.Status)
	}
	if eng.scanCalls != 1 || eng.detectCalls != 1 {
		t.Errorf("scan/detect calls = %d/%d, want 1/1", eng.scanCalls, eng.detectCalls)
	}

	updated, err := database.GetScanRun(run.ID)
	if err != nil {
		t.Fatalf("GetScanRun failed: %v", err)
	}
	if updated.Status != db.ScanRunStatusCompleted {
		t.Errorf("status = %s, want completed", updated.Status)
	}
	if updated.FilesScanned != 6 || updated.BytesScanned != 70005 {
		t.Errorf("files/bytes scanned = %d/%d, want 6/70005", updated.FilesScanned, updated.BytesScanned)
	}
	if updated.DuplicateGroups != 2 || updated.DuplicateFiles != 3 || updated.WastedBytes != 40000 {
		t.Errorf("groups/files/wasted = %d/%d/%d, want 2/3/40000",
			updated.DuplicateGroups, updated.DuplicateFiles, updated.WastedBytes)
	}
	if updated.SkippedCount != 1 {
		t.Errorf("SkippedCount = %d, want 1", updated.SkippedCount)
	}

	groups, err := database.ListDuplicateGroups(run.ID, "")
	if err != nil {
		t.Fatalf("ListDuplicateGroups failed: %v", err)
	}
	if len(groups) != 2 {
		t.Errorf("expected 2 groups, got %d", len(groups))
	}

	if scanner.IsActive(run.ID) {
		t.Error("run should no longer be active")
	}
}

func TestStartScan_Validation(t *testing.T) {
	scanner := NewScanner(testDB(t), &mockEngine{}, time.Minute)

	if _, err := scanner.StartScan(context.Background(), &ScanConfig{Policy: filter.Default()}, nil); !errors.Is(err, ErrNoPaths) {
		t.Errorf("no paths: err = %v, want ErrNoPaths", err)
	}

	bad := filter.Default()
	bad.MinimumFileSize = -1
	if _, err := scanner.StartScan(context.Background(), &ScanConfig{Paths: []string{"/x"}, Policy: bad}, nil); err == nil {
		t.Error("negative minimum size should be rejected")
	}
}

func TestStartScanWithJobID(t *testing.T) {
	database := testDB(t)
	scanner := NewScanner(database, &mockEngine{}, 5*time.Minute)

	job, err := database.CreateScheduledJob(&db.ScheduledJob{
		Name:           "Test Job",
		Paths:          []string{"/tmp"},
		CronExpression: "0 3 * * *",
		Action:         db.JobActionScan,
		Enabled:        true,
	})
	if err != nil {
		t.Fatalf("CreateScheduledJob failed: %v", err)
	}

	run, err := scanner.StartScan(context.Background(), &ScanConfig{Paths: []string{"/tmp"}, Policy: filter.Default()}, &job.ID)
	if err != nil {
		t.Fatalf("StartScan failed: %v", err)
	}
	scanner.WaitForRun(context.Background(), run.ID)

	updated, _ := database.GetScanRun(run.ID)
	if updated.ScheduledJobID == nil || *updated.ScheduledJobID != job.ID {
		t.Errorf("ScheduledJobID = %v, want %d", updated.ScheduledJobID, job.ID)
	}
}

func TestStartScan_FailedAndSubscriberEvents(t *testing.T) {
	database := testDB(t)
	eng := &blockingEngine{started: make(chan struct{}), release: make(chan struct{})}
	eng.detectErr = errors.New("disk on fire")
	scanner := NewScanner(database, eng, time.Minute)

	run, err := scanner.StartScan(context.Background(), &ScanConfig{Paths: []string{"/x"}, Policy: filter.Default()}, nil)
	if err != nil {
		t.Fatalf("StartScan failed: %v", err)
	}
	<-eng.started
	ch := scanner.Subscribe(run.ID)
	close(eng.release)

	var last *types.ScanProgress
	for p := range ch {
		last = p
	}
	if last == nil || last.Phase != types.PhaseFailed || last.Error != "disk on fire" {
		t.Errorf("last event = %+v, want failed with error", last)
	}

	updated, _ := database.GetScanRun(run.ID)
	if updated.Status != db.ScanRunStatusFailed {
		t.Errorf("status = %s, want failed", updated.Status)
	}
	if updated.ErrorMessage == nil || *updated.ErrorMessage != "disk on fire" {
		t.Errorf("ErrorMessage = %v", updated.ErrorMessage)
	}
}

func TestCompletedEventFollowsPersistence(t *testing.T) {
	database := testDB(t)
	eng := &blockingEngine{started: make(chan struct{}), release: make(chan struct{})}
	eng.groups = sampleEngine().groups
	scanner := NewScanner(database, eng, time.Minute)

	run, err := scanner.StartScan(context.Background(), &ScanConfig{Paths: []string{"/x"}, Policy: filter.Default()}, nil)
	if err != nil {
		t.Fatalf("StartScan failed: %v", err)
	}
	<-eng.started
	ch := scanner.Subscribe(run.ID)
	close(eng.release)

	var completed int
	for p := range ch {
		if p.Phase != types.PhaseCompleted {
			continue
		}
		completed++
		n, err := database.CountDuplicateGroups(run.ID, "")
		if err != nil || n != 2 {
			t.Errorf("groups stored at completion = %d (%v), want 2", n, err)
		}
	}
	if completed != 1 {
		t.Errorf("completed events = %d, want 1", completed)
	}
}

func TestCancelScan(t *testing.T) {
	database := testDB(t)
	eng := &blockingEngine{started: make(chan struct{}), release: make(chan struct{})}
	scanner := NewScanner(database, eng, 5*time.Minute)

	run, err := scanner.StartScan(context.Background(), &ScanConfig{Paths: []string{"/tmp"}, Policy: filter.Default()}, nil)
	if err != nil {
		t.Fatalf("StartScan failed: %v", err)
	}

	select {
	case <-eng.started:
	case <-time.After(time.Second):
		t.Fatal("scan did not start in time")
	}

	if !scanner.CancelScan(run.ID) {
		t.Error("CancelScan should report an active run")
	}
	scanner.WaitForRun(context.Background(), run.ID)

	updated, err := database.GetScanRun(run.ID)
	if err != nil {
		t.Fatalf("GetScanRun failed: %v", err)
	}
	if updated.Status != db.ScanRunStatusCancelled {
		t.Errorf("run.Status = %s, want %s", updated.Status, db.ScanRunStatusCancelled)
	}
	if scanner.CancelScan(run.ID) {
		t.Error("CancelScan on a finished run should report false")
	}
}

func TestScanTimeoutFails(t *testing.T) {
	database := testDB(t)
	eng := &blockingEngine{started: make(chan struct{}), release: make(chan struct{})}
	scanner := NewScanner(database, eng, 20*time.Millisecond)

	run, err := scanner.StartScan(context.Background(), &ScanConfig{Paths: []string{"/tmp"}, Policy: filter.Default()}, nil)
	if err != nil {
		t.Fatalf("StartScan failed: %v", err)
	}
	scanner.WaitForRun(context.Background(), run.ID)

	updated, _ := database.GetScanRun(run.ID)
	if updated.Status != db.ScanRunStatusFailed {
		t.Errorf("status = %s, want failed", updated.Status)
	}
	if updated.ErrorMessage == nil {
		t.Error("timed out run should carry an error message")
	}
}

func TestShutdown(t *testing.T) {
	database := testDB(t)
	eng := &blockingEngine{started: make(chan struct{}), release: make(chan struct{})}
	scanner := NewScanner(database, eng, 0)

	run, err := scanner.StartScan(context.Background(), &ScanConfig{Paths: []string{"/tmp"}, Policy: filter.Default()}, nil)
	if err != nil {
		t.Fatalf("StartScan failed: %v", err)
	}
	<-eng.started

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := scanner.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	updated, _ := database.GetScanRun(run.ID)
	if updated.Status != db.ScanRunStatusCancelled {
		t.Errorf("status = %s, want cancelled", updated.Status)
	}
}
