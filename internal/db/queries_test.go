package db

import (
	"database/sql"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/lyallcooper/reclaim/internal/types"
)

// testDB creates a temporary database for testing
func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func files(size int64, paths ...string) []types.ScannedFile {
	var out []types.ScannedFile
	for i, p := range paths {
		mod := time.Date(2024, 1, 1+i, 0, 0, 0, 0, time.UTC)
		out = append(out, types.ScannedFile{ID: p, Path: p, Size: size, ModifiedAt: &mod, FullHash: "feedface00000000"})
	}
	return out
}

// ============================================================================
// Migrations
// ============================================================================

func TestMigrate_Idempotent(t *testing.T) {
	db := testDB(t)

	if err := db.Migrate(); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}

	var version int
	if err := db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version); err != nil {
		t.Fatal(err)
	}
	if version != 2 {
		t.Errorf("schema version = %d, want 2", version)
	}
	if got := db.GetSettingInt("retention_days", 0); got != 30 {
		t.Errorf("default retention_days = %d, want 30", got)
	}
}

// ============================================================================
// ScanRun Tests
// ============================================================================

func TestScanRun_Lifecycle(t *testing.T) {
	db := testDB(t)

	paths := []string{"/tmp/test", "/home/user"}
	opts := ScanOptions{MinSize: 1024, ExcludeHidden: true, ExcludedExtensions: []string{"tmp"}}

	created, err := db.CreateScanRun(nil, paths, opts)
	if err != nil {
		t.Fatalf("CreateScanRun failed: %v", err)
	}
	if created.Status != ScanRunStatusRunning || created.CompletedAt != nil {
		t.Errorf("new run = %+v, want running and incomplete", created)
	}
	if !reflect.DeepEqual(created.Paths, paths) {
		t.Errorf("Paths = %v, want %v", created.Paths, paths)
	}
	if !reflect.DeepEqual(created.Options, opts) {
		t.Errorf("Options = %+v, want %+v", created.Options, opts)
	}
	if created.ScheduledJobID != nil {
		t.Error("ScheduledJobID should be nil")
	}

	if err := db.UpdateScanRunProgress(created.ID, 100, 204800, 3, 4, 8192); err != nil {
		t.Fatalf("UpdateScanRunProgress failed: %v", err)
	}
	msg := "disk vanished"
	if err := db.CompleteScanRun(created.ID, ScanRunStatusFailed, &msg); err != nil {
		t.Fatalf("CompleteScanRun failed: %v", err)
	}

	got, err := db.GetScanRun(created.ID)
	if err != nil {
		t.Fatalf("GetScanRun failed: %v", err)
	}
	if got.FilesScanned != 100 || got.BytesScanned != 204800 || got.DuplicateGroups != 3 ||
		got.DuplicateFiles != 4 || got.WastedBytes != 8192 {
		t.Errorf("counters = %+v", got)
	}
	if got.Status != ScanRunStatusFailed || got.CompletedAt == nil {
		t.Errorf("status = %s completed=%v, want failed and completed", got.Status, got.CompletedAt)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage != msg {
		t.Errorf("ErrorMessage = %v, want %q", got.ErrorMessage, msg)
	}
	if got.Duration() < 0 {
		t.Errorf("Duration = %v, want >= 0", got.Duration())
	}
}

func TestScanRun_NotFound(t *testing.T) {
	db := testDB(t)
	if _, err := db.GetScanRun(999); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("err = %v, want sql.ErrNoRows", err)
	}
}

func TestScanRun_JobLink(t *testing.T) {
	db := testDB(t)

	job, err := db.CreateScheduledJob(&ScheduledJob{Name: "nightly", CronExpression: "0 3 * * *", Action: JobActionScan, Enabled: true})
	if err != nil {
		t.Fatalf("CreateScheduledJob failed: %v", err)
	}

	db.CreateScanRun(&job.ID, []string{"/a"}, ScanOptions{})
	second, _ := db.CreateScanRun(&job.ID, []string{"/b"}, ScanOptions{})

	last, err := db.GetLastRunForJob(job.ID)
	if err != nil {
		t.Fatalf("GetLastRunForJob failed: %v", err)
	}
	if last.ID != second.ID {
		t.Errorf("last run = %d, want %d", last.ID, second.ID)
	}

	// Deleting the job detaches its runs
	if err := db.DeleteScheduledJob(job.ID); err != nil {
		t.Fatalf("DeleteScheduledJob failed: %v", err)
	}
	got, err := db.GetScanRun(second.ID)
	if err != nil {
		t.Fatalf("run deleted with its job: %v", err)
	}
	if got.ScheduledJobID != nil {
		t.Errorf("ScheduledJobID = %d, want nil after job deletion", *got.ScheduledJobID)
	}
}

func TestFailStaleScanRuns(t *testing.T) {
	db := testDB(t)

	stale, _ := db.CreateScanRun(nil, []string{"/a"}, ScanOptions{})
	done, _ := db.CreateScanRun(nil, []string{"/b"}, ScanOptions{})
	db.CompleteScanRun(done.ID, ScanRunStatusCompleted, nil)

	n, err := db.FailStaleScanRuns()
	if err != nil {
		t.Fatalf("FailStaleScanRuns failed: %v", err)
	}
	if n != 1 {
		t.Errorf("marked %d runs, want 1", n)
	}
	got, _ := db.GetScanRun(stale.ID)
	if got.Status != ScanRunStatusFailed {
		t.Errorf("stale run status = %s, want failed", got.Status)
	}
	got, _ = db.GetScanRun(done.ID)
	if got.Status != ScanRunStatusCompleted {
		t.Errorf("completed run status = %s, want completed", got.Status)
	}
}

func TestPagination(t *testing.T) {
	db := testDB(t)

	for i := 0; i < 5; i++ {
		db.CreateScanRun(nil, []string{"/test"}, ScanOptions{})
	}

	tests := []struct {
		name      string
		limit     int
		offset    int
		wantCount int
	}{
		{"first page", 2, 0, 2},
		{"second page", 2, 2, 2},
		{"last page (partial)", 2, 4, 1},
		{"offset beyond count", 2, 10, 0},
		{"large limit", 100, 0, 5},
		{"zero limit returns zero", 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := db.ListScanRuns(tt.limit, tt.offset)
			if err != nil {
				t.Fatalf("ListScanRuns failed: %v", err)
			}
			if len(runs) != tt.wantCount {
				t.Errorf("got %d runs, want %d", len(runs), tt.wantCount)
			}
		})
	}

	if n, err := db.CountScanRuns(); err != nil || n != 5 {
		t.Errorf("CountScanRuns = %d, %v, want 5", n, err)
	}

	runs, _ := db.ListScanRuns(5, 0)
	for i := 1; i < len(runs); i++ {
		if runs[i-1].ID < runs[i].ID {
			t.Errorf("runs not newest first: %d before %d", runs[i-1].ID, runs[i].ID)
		}
	}
}

// ============================================================================
// DuplicateGroup Tests
// ============================================================================

func TestDuplicateGroup_RoundTrip(t *testing.T) {
	db := testDB(t)
	run, _ := db.CreateScanRun(nil, []string{"/test"}, ScanOptions{})

	members := files(2048, "/a/photo.jpg", "/b/photo (copy).jpg", "/c/фото.jpg")
	created, err := db.CreateDuplicateGroup(NewDuplicateGroup(run.ID, types.DuplicateGroup{
		Hash: "feedface00000000", Size: 2048, Files: members,
	}))
	if err != nil {
		t.Fatalf("CreateDuplicateGroup failed: %v", err)
	}

	got, err := db.GetDuplicateGroup(created.ID)
	if err != nil {
		t.Fatalf("GetDuplicateGroup failed: %v", err)
	}
	if got.FileCount != 3 || got.WastedBytes != 4096 || got.Status != DuplicateGroupStatusPending {
		t.Errorf("group = %+v, want 3 files, 4096 wasted, pending", got)
	}
	if !reflect.DeepEqual(got.Paths(), []string{"/a/photo.jpg", "/b/photo (copy).jpg", "/c/фото.jpg"}) {
		t.Errorf("Paths = %v", got.Paths())
	}
	if got.Files[1].ModifiedAt == nil || !got.Files[1].ModifiedAt.Equal(*members[1].ModifiedAt) {
		t.Errorf("ModifiedAt = %v, want %v", got.Files[1].ModifiedAt, members[1].ModifiedAt)
	}
	if g := got.Group(); g.PotentialSavings() != 4096 {
		t.Errorf("Group().PotentialSavings() = %d, want 4096", g.PotentialSavings())
	}
}

func TestDuplicateGroupPaginatedSorting(t *testing.T) {
	db := testDB(t)
	run, _ := db.CreateScanRun(nil, []string{"/test"}, ScanOptions{})

	err := db.CreateDuplicateGroups(run.ID, []types.DuplicateGroup{
		{Hash: "b", Size: 3000, Files: files(3000, "/c", "/d", "/e", "/f", "/g")}, // wasted 12000
		{Hash: "c", Size: 2000, Files: files(2000, "/h", "/i", "/j")},             // wasted 4000
		{Hash: "a", Size: 1000, Files: files(1000, "/k", "/l")},                   // wasted 1000
	})
	if err != nil {
		t.Fatalf("CreateDuplicateGroups failed: %v", err)
	}

	tests := []struct {
		name      string
		sortBy    string
		sortOrder string
		limit     int
		offset    int
		wantHash  []string
	}{
		{"default wasted desc", "", "", 0, 0, []string{"b", "c", "a"}},
		{"size asc", "size", "asc", 0, 0, []string{"a", "c", "b"}},
		{"count desc", "count", "desc", 0, 0, []string{"b", "c", "a"}},
		{"hash asc", "hash", "asc", 0, 0, []string{"a", "b", "c"}},
		{"page two", "wasted", "desc", 2, 2, []string{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			groups, err := db.ListDuplicateGroupsPaginated(DuplicateGroupQuery{
				ScanRunID: run.ID, SortBy: tt.sortBy, SortOrder: tt.sortOrder, Limit: tt.limit, Offset: tt.offset,
			})
			if err != nil {
				t.Fatalf("ListDuplicateGroupsPaginated failed: %v", err)
			}
			var got []string
			for _, g := range groups {
				got = append(got, g.FileHash)
			}
			if !reflect.DeepEqual(got, tt.wantHash) {
				t.Errorf("order = %v, want %v", got, tt.wantHash)
			}
		})
	}
}

func TestUpdateDuplicateGroupFiles(t *testing.T) {
	db := testDB(t)
	run, _ := db.CreateScanRun(nil, []string{"/test"}, ScanOptions{})
	members := files(500, "/a", "/b", "/c")
	g, _ := db.CreateDuplicateGroup(NewDuplicateGroup(run.ID, types.DuplicateGroup{Hash: "h", Size: 500, Files: members}))

	if err := db.UpdateDuplicateGroupFiles(g.ID, members[:2]); err != nil {
		t.Fatalf("UpdateDuplicateGroupFiles failed: %v", err)
	}
	got, _ := db.GetDuplicateGroup(g.ID)
	if got.FileCount != 2 || got.WastedBytes != 500 || got.Status != DuplicateGroupStatusPending {
		t.Errorf("after removing one: %+v", got)
	}

	if err := db.UpdateDuplicateGroupFiles(g.ID, members[:1]); err != nil {
		t.Fatalf("UpdateDuplicateGroupFiles failed: %v", err)
	}
	got, _ = db.GetDuplicateGroup(g.ID)
	if got.FileCount != 1 || got.WastedBytes != 0 || got.Status != DuplicateGroupStatusProcessed {
		t.Errorf("after removing two: %+v, want processed with no waste", got)
	}

	if err := db.RecomputeScanRunTotals(run.ID); err != nil {
		t.Fatalf("RecomputeScanRunTotals failed: %v", err)
	}
	r, _ := db.GetScanRun(run.ID)
	if r.DuplicateGroups != 0 || r.WastedBytes != 0 {
		t.Errorf("run totals = %d groups / %d bytes, want 0 / 0", r.DuplicateGroups, r.WastedBytes)
	}
}

func TestCountAndUpdateDuplicateGroupStatus(t *testing.T) {
	db := testDB(t)
	run, _ := db.CreateScanRun(nil, []string{"/test"}, ScanOptions{})

	var ids []int64
	for _, h := range []string{"a", "b", "c"} {
		g, _ := db.CreateDuplicateGroup(NewDuplicateGroup(run.ID, types.DuplicateGroup{Hash: h, Size: 10, Files: files(10, "/x"+h, "/y"+h)}))
		ids = append(ids, g.ID)
	}

	if err := db.UpdateDuplicateGroupStatus(ids[:2], DuplicateGroupStatusIgnored); err != nil {
		t.Fatalf("UpdateDuplicateGroupStatus failed: %v", err)
	}
	if err := db.UpdateDuplicateGroupStatus(nil, DuplicateGroupStatusIgnored); err != nil {
		t.Errorf("empty update should be a no-op, got %v", err)
	}

	tests := []struct {
		status string
		want   int
	}{
		{"", 3},
		{"ignored", 2},
		{"pending", 1},
		{"processed", 0},
	}
	for _, tt := range tests {
		got, err := db.CountDuplicateGroups(run.ID, tt.status)
		if err != nil {
			t.Fatalf("CountDuplicateGroups failed: %v", err)
		}
		if got != tt.want {
			t.Errorf("count(%q) = %d, want %d", tt.status, got, tt.want)
		}
	}
}

// ============================================================================
// SkippedFile Tests
// ============================================================================

func TestSkippedFiles(t *testing.T) {
	db := testDB(t)
	run, _ := db.CreateScanRun(nil, []string{"/test"}, ScanOptions{})

	err := db.CreateSkippedFiles(run.ID, []types.SkippedFile{
		{Path: "/z/locked", Reason: types.SkipPermissionDenied},
		{Path: "/a/broken", Reason: types.SkipHashingFailed, Detail: "read error: EIO"},
	})
	if err != nil {
		t.Fatalf("CreateSkippedFiles failed: %v", err)
	}

	got, err := db.ListSkippedFiles(run.ID, 0, 0)
	if err != nil {
		t.Fatalf("ListSkippedFiles failed: %v", err)
	}
	if len(got) != 2 || got[0].Path != "/a/broken" || got[0].Detail != "read error: EIO" {
		t.Errorf("skipped = %+v", got)
	}
	if got[1].Reason != types.SkipPermissionDenied || got[1].Detail != "" {
		t.Errorf("skipped[1] = %+v", got[1])
	}

	r, _ := db.GetScanRun(run.ID)
	if r.SkippedCount != 2 {
		t.Errorf("SkippedCount = %d, want 2", r.SkippedCount)
	}
}

// ============================================================================
// Cleanup history Tests
// ============================================================================

func TestCleanupSessions(t *testing.T) {
	db := testDB(t)
	run, _ := db.CreateScanRun(nil, []string{"/photos"}, ScanOptions{})

	empty, err := db.CreateCleanupSession(&run.ID, []string{"/photos"}, types.TrashResult{}, false)
	if err != nil || empty != nil {
		t.Errorf("empty result recorded: %v, %v", empty, err)
	}

	first, err := db.CreateCleanupSession(&run.ID, []string{"/photos"}, types.TrashResult{
		TrashedCount: 2, BytesFreed: 4096,
		FailedFiles: []types.FailedFile{{Path: "/photos/x", Reason: types.FailurePermissionDenied}},
	}, false)
	if err != nil {
		t.Fatalf("CreateCleanupSession failed: %v", err)
	}
	if first.TrashedCount != 2 || first.BytesFreed != 4096 || first.FailedCount != 1 || first.Permanent {
		t.Errorf("session = %+v", first)
	}

	second, _ := db.CreateCleanupSession(nil, nil, types.TrashResult{TrashedCount: 1, BytesFreed: 100}, true)

	sessions, err := db.ListCleanupSessions(10, 0)
	if err != nil {
		t.Fatalf("ListCleanupSessions failed: %v", err)
	}
	if len(sessions) != 2 || sessions[0].ID != second.ID {
		t.Fatalf("sessions = %+v, want newest first", sessions)
	}
	if n, _ := db.CountCleanupSessions(); n != 2 {
		t.Errorf("CountCleanupSessions = %d, want 2", n)
	}
	if sessions[0].ScanRunID != nil || len(sessions[0].Roots) != 0 || !sessions[0].Permanent {
		t.Errorf("second session = %+v", sessions[0])
	}

	stats, err := db.GetSavingsStats()
	if err != nil {
		t.Fatalf("GetSavingsStats failed: %v", err)
	}
	if stats.BytesFreed != 4196 || stats.FilesTrashed != 3 || stats.Sessions != 2 || stats.RecentScans != 1 {
		t.Errorf("stats = %+v", stats)
	}

	if err := db.DeleteCleanupSession(first.ID); err != nil {
		t.Fatalf("DeleteCleanupSession failed: %v", err)
	}
	if err := db.DeleteCleanupSession(first.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("second delete err = %v, want sql.ErrNoRows", err)
	}
	stats, _ = db.GetSavingsStats()
	if stats.BytesFreed != 100 || stats.Sessions != 1 {
		t.Errorf("stats after delete = %+v", stats)
	}
}

func TestGetSavingsStats_Empty(t *testing.T) {
	stats, err := testDB(t).GetSavingsStats()
	if err != nil {
		t.Fatalf("GetSavingsStats failed: %v", err)
	}
	if *stats != (SavingsStats{}) {
		t.Errorf("stats = %+v, want zero", stats)
	}
}

func TestCleanupOldData(t *testing.T) {
	db := testDB(t)

	oldRun, _ := db.CreateScanRun(nil, []string{"/old"}, ScanOptions{})
	db.CompleteScanRun(oldRun.ID, ScanRunStatusCompleted, nil)
	db.CreateDuplicateGroups(oldRun.ID, []types.DuplicateGroup{{Hash: "h", Size: 1, Files: files(1, "/o1", "/o2")}})
	db.CreateSkippedFiles(oldRun.ID, []types.SkippedFile{{Path: "/o3", Reason: types.SkipReadError}})
	session, _ := db.CreateCleanupSession(&oldRun.ID, []string{"/old"}, types.TrashResult{TrashedCount: 1, BytesFreed: 1}, false)

	_, err := db.Exec(`UPDATE scan_runs SET completed_at = ? WHERE id = ?`, time.Now().UTC().AddDate(0, 0, -60), oldRun.ID)
	if err != nil {
		t.Fatalf("failed to backdate scan run: %v", err)
	}

	recentRun, _ := db.CreateScanRun(nil, []string{"/recent"}, ScanOptions{})
	db.CompleteScanRun(recentRun.ID, ScanRunStatusCompleted, nil)
	running, _ := db.CreateScanRun(nil, []string{"/running"}, ScanOptions{})

	n, err := db.CleanupOldData(30)
	if err != nil {
		t.Fatalf("CleanupOldData failed: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted %d runs, want 1", n)
	}

	if _, err := db.GetScanRun(oldRun.ID); err == nil {
		t.Error("old scan run should have been deleted")
	}
	if count, _ := db.CountDuplicateGroups(oldRun.ID, ""); count != 0 {
		t.Errorf("%d groups of the deleted run remain", count)
	}
	if skipped, _ := db.ListSkippedFiles(oldRun.ID, 0, 0); len(skipped) != 0 {
		t.Errorf("%d skipped entries of the deleted run remain", len(skipped))
	}
	for _, id := range []int64{recentRun.ID, running.ID} {
		if _, err := db.GetScanRun(id); err != nil {
			t.Errorf("run %d should still exist", id)
		}
	}

	kept, err := db.GetCleanupSession(session.ID)
	if err != nil {
		t.Fatalf("cleanup session should survive retention: %v", err)
	}
	if kept.ScanRunID != nil {
		t.Error("cleanup session should be detached from the deleted run")
	}
}

// ============================================================================
// ScheduledJob Tests
// ============================================================================

func TestScheduledJob_CRUD(t *testing.T) {
	db := testDB(t)

	next := time.Date(2030, 5, 1, 3, 0, 0, 0, time.UTC)
	job := &ScheduledJob{
		Name:           "photos",
		Paths:          []string{"/photos", "/backup/photos"},
		Options:        ScanOptions{MinSize: 4096, ExcludeHidden: true, ExcludedDirectories: []string{"cache"}},
		CronExpression: "0 3 * * *",
		Action:         JobActionScanTrash,
		Enabled:        true,
		NextRunAt:      &next,
	}

	created, err := db.CreateScheduledJob(job)
	if err != nil {
		t.Fatalf("CreateScheduledJob failed: %v", err)
	}
	if !reflect.DeepEqual(created.Paths, job.Paths) || !reflect.DeepEqual(created.Options, job.Options) {
		t.Errorf("created = %+v", created)
	}
	if created.NextRunAt == nil || !created.NextRunAt.Equal(next) {
		t.Errorf("NextRunAt = %v, want %v", created.NextRunAt, next)
	}
	if created.LastRunAt != nil {
		t.Error("LastRunAt should be nil")
	}

	created.Name = "all photos"
	created.Action = JobActionScan
	if err := db.UpdateScheduledJob(created); err != nil {
		t.Fatalf("UpdateScheduledJob failed: %v", err)
	}

	last := time.Date(2030, 5, 1, 3, 0, 5, 0, time.UTC)
	following := time.Date(2030, 5, 2, 3, 0, 0, 0, time.UTC)
	if err := db.UpdateJobLastRun(created.ID, last, following); err != nil {
		t.Fatalf("UpdateJobLastRun failed: %v", err)
	}

	got, _ := db.GetScheduledJob(created.ID)
	if got.Name != "all photos" || got.Action != JobActionScan {
		t.Errorf("updated job = %+v", got)
	}
	if got.LastRunAt == nil || !got.LastRunAt.Equal(last) || !got.NextRunAt.Equal(following) {
		t.Errorf("run times = %v / %v", got.LastRunAt, got.NextRunAt)
	}

	if err := db.SetJobEnabled(created.ID, false); err != nil {
		t.Fatalf("SetJobEnabled failed: %v", err)
	}
	enabled, _ := db.GetEnabledJobs()
	if len(enabled) != 0 {
		t.Errorf("enabled jobs = %d, want 0", len(enabled))
	}
	all, _ := db.ListScheduledJobs()
	if len(all) != 1 {
		t.Errorf("jobs = %d, want 1", len(all))
	}

	if err := db.DeleteScheduledJob(created.ID); err != nil {
		t.Fatalf("DeleteScheduledJob failed: %v", err)
	}
	if _, err := db.GetScheduledJob(created.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("err = %v, want sql.ErrNoRows", err)
	}
}

func TestGetEnabledJobs_SoonestFirst(t *testing.T) {
	db := testDB(t)

	later := time.Now().UTC().Add(2 * time.Hour)
	sooner := time.Now().UTC().Add(time.Hour)
	db.CreateScheduledJob(&ScheduledJob{Name: "later", CronExpression: "0 * * * *", Action: JobActionScan, Enabled: true, NextRunAt: &later})
	db.CreateScheduledJob(&ScheduledJob{Name: "sooner", CronExpression: "0 * * * *", Action: JobActionScan, Enabled: true, NextRunAt: &sooner})
	db.CreateScheduledJob(&ScheduledJob{Name: "off", CronExpression: "0 * * * *", Action: JobActionScan, Enabled: false})

	jobs, err := db.GetEnabledJobs()
	if err != nil {
		t.Fatalf("GetEnabledJobs failed: %v", err)
	}
	if len(jobs) != 2 || jobs[0].Name != "sooner" || jobs[1].Name != "later" {
		t.Errorf("jobs = %v", jobs)
	}
}

// ============================================================================
// Settings Tests
// ============================================================================

func TestSettings(t *testing.T) {
	db := testDB(t)

	if _, err := db.GetSetting("missing"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("err = %v, want sql.ErrNoRows", err)
	}
	if err := db.SetSetting("retention_days", "45"); err != nil {
		t.Fatalf("SetSetting failed: %v", err)
	}
	if got := db.GetSettingInt("retention_days", 30); got != 45 {
		t.Errorf("retention_days = %d, want 45", got)
	}
	db.SetSetting("retention_days", "soon")
	if got := db.GetSettingInt("retention_days", 30); got != 30 {
		t.Errorf("malformed setting = %d, want default 30", got)
	}
}

func TestScanOptions_PolicyRoundTrip(t *testing.T) {
	opts := ScanOptions{MinSize: 10, ExcludeHidden: true, ExcludeSystem: true,
		ExcludedExtensions: []string{"tmp"}, ExcludedDirectories: []string{"build"}}
	if got := OptionsFromPolicy(opts.Policy()); !reflect.DeepEqual(got, opts) {
		t.Errorf("round trip = %+v, want %+v", got, opts)
	}
}
