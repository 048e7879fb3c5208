package scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/lyallcooper/reclaim/internal/db"
	"github.com/lyallcooper/reclaim/internal/detector"
	"github.com/lyallcooper/reclaim/internal/engine"
	"github.com/lyallcooper/reclaim/internal/filter"
	"github.com/lyallcooper/reclaim/internal/services"
	"github.com/lyallcooper/reclaim/internal/types"
)

// mockEngine implements engine.Interface for testing
type mockEngine struct {
	mu      sync.Mutex
	groups  []types.DuplicateGroup
	roots   [][]string
	trashed []types.ScannedFile
}

func (m *mockEngine) Scan(ctx context.Context, roots []string, policy filter.Policy, progress chan<- types.ScanProgress) (*engine.ScanOutput, error) {
	m.mu.Lock()
	m.roots = append(m.roots, roots)
	m.mu.Unlock()
	return &engine.ScanOutput{}, nil
}

func (m *mockEngine) Detect(ctx context.Context, files []types.ScannedFile, progress chan<- types.ScanProgress) (*detector.Result, error) {
	return &detector.Result{Groups: m.groups}, nil
}

func (m *mockEngine) Trash(files []types.ScannedFile) (types.TrashResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trashed = append(m.trashed, files...)

	var result types.TrashResult
	for _, f := range files {
		result.TrashedCount++
		result.BytesFreed += f.Size
		result.TrashedPaths = append(result.TrashedPaths, f.Path)
	}
	return result, nil
}

func (m *mockEngine) Remove(files []types.ScannedFile) (types.TrashResult, error) {
	return m.Trash(files)
}

func (m *mockEngine) DeleteDuplicates(group types.DuplicateGroup, keep types.ScannedFile) (types.TrashResult, error) {
	return types.TrashResult{}, nil
}

func (m *mockEngine) Reveal(path string) error { return nil }
func (m *mockEngine) Open(path string) error   { return nil }

func (m *mockEngine) scanCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.roots)
}

// blockingEngine blocks in Scan until cancelled or released
type blockingEngine struct {
	mockEngine
	started chan struct{}
	done    chan struct{}
	once    sync.Once
}

func (m *blockingEngine) Scan(ctx context.Context, roots []string, policy filter.Policy, progress chan<- types.ScanProgress) (*engine.ScanOutput, error) {
	m.once.Do(func() { close(m.started) })
	select {
	case <-ctx.Done():
		return nil, types.ErrCancelled
	case <-m.done:
		return &engine.ScanOutput{}, nil
	}
}

func testDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func createJob(t *testing.T, database *db.DB, job *db.ScheduledJob) *db.ScheduledJob {
	t.Helper()
	created, err := database.CreateScheduledJob(job)
	if err != nil {
		t.Fatalf("CreateScheduledJob failed: %v", err)
	}
	return created
}

func TestNew(t *testing.T) {
	database := testDB(t)
	scanner := services.NewScanner(database, &mockEngine{}, 5*time.Minute)

	s := New(database, scanner)

	if s.db != database {
		t.Error("scheduler.db not set correctly")
	}
	if s.scanner != scanner {
		t.Error("scheduler.scanner not set correctly")
	}
	if s.running {
		t.Error("scheduler should not be running initially")
	}
}

func TestStartStop(t *testing.T) {
	database := testDB(t)
	s := New(database, services.NewScanner(database, &mockEngine{}, 5*time.Minute))

	s.Start()

	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()
	if !running {
		t.Error("scheduler should be running after Start")
	}

	// Double start should be idempotent
	s.Start()

	s.Stop()

	s.mu.RLock()
	running = s.running
	s.mu.RUnlock()
	if running {
		t.Error("scheduler should not be running after Stop")
	}

	// Double stop should be safe
	s.Stop()
}

func TestUpdateNextRun(t *testing.T) {
	database := testDB(t)
	s := New(database, services.NewScanner(database, &mockEngine{}, 5*time.Minute))

	job := createJob(t, database, &db.ScheduledJob{
		Name:           "Test Job",
		Paths:          []string{"/tmp"},
		Enabled:        true,
		CronExpression: "0 * * * *",
		Action:         db.JobActionScan,
	})

	if err := s.UpdateNextRun(job); err != nil {
		t.Fatalf("UpdateNextRun failed: %v", err)
	}
	if job.NextRunAt == nil {
		t.Fatal("NextRunAt should be set")
	}

	now := time.Now()
	if job.NextRunAt.Before(now) {
		t.Error("NextRunAt should be in the future")
	}
	if job.NextRunAt.After(now.Add(time.Hour)) {
		t.Error("NextRunAt should be within the next hour")
	}

	stored, _ := database.GetScheduledJob(job.ID)
	if stored.NextRunAt == nil {
		t.Error("stored NextRunAt should be set")
	}
}

func TestValidateCron(t *testing.T) {
	tests := []struct {
		name    string
		cron    string
		wantErr bool
	}{
		{"every minute", "* * * * *", false},
		{"every hour", "0 * * * *", false},
		{"daily at midnight", "0 0 * * *", false},
		{"weekly on sunday", "0 0 * * 0", false},
		{"monthly first day", "0 0 1 * *", false},
		{"descriptor", "@daily", false},
		{"invalid", "invalid", true},
		{"too few fields", "* * *", true},
		{"with seconds", "* * * * * *", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCron(tt.cron)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCron(%q) error = %v, wantErr %v", tt.cron, err, tt.wantErr)
			}
		})
	}
}

func TestNextRun(t *testing.T) {
	from := time.Date(2024, 3, 10, 14, 30, 0, 0, time.UTC)
	got, err := NextRun("0 3 * * *", from)
	if err != nil {
		t.Fatalf("NextRun failed: %v", err)
	}
	want := time.Date(2024, 3, 11, 3, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("NextRun = %v, want %v", got, want)
	}
}

func TestCheckJobs_RunsDueJobsOnly(t *testing.T) {
	database := testDB(t)
	eng := &mockEngine{}
	scanner := services.NewScanner(database, eng, 5*time.Minute)
	s := New(database, scanner)

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	due := createJob(t, database, &db.ScheduledJob{
		Name: "Due", Paths: []string{"/due"}, Enabled: true,
		CronExpression: "0 * * * *", Action: db.JobActionScan, NextRunAt: &past,
	})
	createJob(t, database, &db.ScheduledJob{
		Name: "Disabled", Paths: []string{"/disabled"}, Enabled: false,
		CronExpression: "0 * * * *", Action: db.JobActionScan, NextRunAt: &past,
	})
	createJob(t, database, &db.ScheduledJob{
		Name: "Future", Paths: []string{"/future"}, Enabled: true,
		CronExpression: "0 * * * *", Action: db.JobActionScan, NextRunAt: &future,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.checkJobs(ctx)
	s.wg.Wait()

	runs, err := database.ListScanRuns(10, 0)
	if err != nil {
		t.Fatalf("ListScanRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0].ScheduledJobID == nil || *runs[0].ScheduledJobID != due.ID {
		t.Errorf("run job = %v, want %d", runs[0].ScheduledJobID, due.ID)
	}
	scanner.WaitForRun(context.Background(), runs[0].ID)

	updated, _ := database.GetScheduledJob(due.ID)
	if updated.LastRunAt == nil {
		t.Error("LastRunAt should be set")
	}
	if updated.NextRunAt == nil || !updated.NextRunAt.After(time.Now()) {
		t.Errorf("NextRunAt = %v, want a future time", updated.NextRunAt)
	}

	// Not due any more
	s.checkJobs(ctx)
	s.wg.Wait()
	if n := eng.scanCount(); n != 1 {
		t.Errorf("scans = %d, want 1", n)
	}
}

func TestCheckJobs_DisablesInvalidCron(t *testing.T) {
	database := testDB(t)
	s := New(database, services.NewScanner(database, &mockEngine{}, time.Minute))

	past := time.Now().Add(-time.Minute)
	job := createJob(t, database, &db.ScheduledJob{
		Name: "Broken", Paths: []string{"/x"}, Enabled: true,
		CronExpression: "not a cron", Action: db.JobActionScan, NextRunAt: &past,
	})

	s.checkJobs(context.Background())
	s.wg.Wait()

	updated, _ := database.GetScheduledJob(job.ID)
	if updated.Enabled {
		t.Error("job with invalid cron should be disabled")
	}
}

func TestScanTrashJob(t *testing.T) {
	database := testDB(t)
	eng := &mockEngine{groups: []types.DuplicateGroup{{
		Hash: "0123456789abcdef",
		Size: 100,
		Files: []types.ScannedFile{
			{ID: "new", Path: "/d/new", Size: 100, ModifiedAt: ptr(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))},
			{ID: "old", Path: "/d/old", Size: 100, ModifiedAt: ptr(time.Date(2020, 5, 1, 0, 0, 0, 0, time.UTC))},
		},
	}}}
	s := New(database, services.NewScanner(database, eng, time.Minute))

	past := time.Now().Add(-time.Minute)
	createJob(t, database, &db.ScheduledJob{
		Name: "Cleanup", Paths: []string{"/d"}, Enabled: true,
		CronExpression: "@daily", Action: db.JobActionScanTrash, NextRunAt: &past,
	})

	s.checkJobs(context.Background())
	s.wg.Wait()

	eng.mu.Lock()
	trashed := eng.trashed
	eng.mu.Unlock()
	if len(trashed) != 1 || trashed[0].Path != "/d/new" {
		t.Errorf("trashed = %v, want only the newer copy", trashed)
	}

	sessions, _ := database.ListCleanupSessions(10, 0)
	if len(sessions) != 1 || sessions[0].BytesFreed != 100 {
		t.Errorf("sessions = %+v, want one session freeing 100 bytes", sessions)
	}
}

func TestRunNow(t *testing.T) {
	database := testDB(t)
	eng := &mockEngine{}
	scanner := services.NewScanner(database, eng, time.Minute)
	s := New(database, scanner)

	job := createJob(t, database, &db.ScheduledJob{
		Name: "Manual", Paths: []string{"/m"}, Enabled: false,
		CronExpression: "0 0 1 1 *", Action: db.JobActionScan,
	})

	run, err := s.RunNow(job.ID)
	if err != nil {
		t.Fatalf("RunNow failed: %v", err)
	}
	scanner.WaitForRun(context.Background(), run.ID)

	if run.ScheduledJobID == nil || *run.ScheduledJobID != job.ID {
		t.Errorf("run job = %v, want %d", run.ScheduledJobID, job.ID)
	}
	if eng.scanCount() != 1 {
		t.Errorf("scans = %d, want 1", eng.scanCount())
	}

	if _, err := s.RunNow(9999); err == nil {
		t.Error("RunNow on a missing job should fail")
	}
}

func TestGracefulShutdown(t *testing.T) {
	database := testDB(t)
	eng := &blockingEngine{started: make(chan struct{}), done: make(chan struct{})}
	s := New(database, services.NewScanner(database, eng, 5*time.Minute))

	past := time.Now().Add(-time.Hour)
	createJob(t, database, &db.ScheduledJob{
		Name: "Blocking Job", Paths: []string{"/tmp"}, Enabled: true,
		CronExpression: "0 * * * *", Action: db.JobActionScanTrash, NextRunAt: &past,
	})

	s.Start()

	select {
	case <-eng.started:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not start")
	}

	// The job is waiting on the scan; Stop must not hang on it
	stopDone := make(chan struct{})
	go func() {
		s.Stop()
		close(stopDone)
	}()

	select {
	case <-stopDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not complete in time")
	}
	close(eng.done)
}

func ptr[T any](v T) *T { return &v }
