package history

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pyscope/internal/core/ports"
)

func openTestStore(t *testing.T, keep int) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := Open(path, time.Second, keep)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_OpenInitializesSchemaAndRecordLoad(t *testing.T) {
	store := openTestStore(t, 100)
	ctx := context.Background()

	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	first := ports.RunSummary{
		ID:          "run-1",
		StartedAt:   base,
		Duration:    40 * time.Millisecond,
		Commit:      "abc123def456",
		Files:       12,
		Diagnostics: 1,
		Revision:    3,
	}
	firstDiags := []ports.Diagnostic{
		{Path: "pkg/shapes.py", Line: 14, Column: 5, Rule: "PYS001", Severity: ports.SeverityError, Message: "override of area is incompatible"},
	}
	second := ports.RunSummary{
		ID:           "run-2",
		StartedAt:    base.Add(2 * time.Hour),
		Duration:     25 * time.Millisecond,
		Files:        13,
		Diagnostics:  2,
		Revision:     7,
		Computations: 41,
		EarlyCutoffs: 9,
	}
	secondDiags := []ports.Diagnostic{
		{Path: "app.py", Line: 3, Column: 1, Rule: "PYS003", Severity: ports.SeverityWarning, Message: `cannot resolve module "missing"`},
		{Path: "pkg/shapes.py", Line: 14, Column: 5, Rule: "PYS001", Severity: ports.SeverityError, Message: "override of area is incompatible"},
	}

	if err := store.RecordRun(ctx, first, firstDiags); err != nil {
		t.Fatalf("record first run: %v", err)
	}
	if err := store.RecordRun(ctx, second, secondDiags); err != nil {
		t.Fatalf("record second run: %v", err)
	}

	run, diags, ok, err := store.LastRun(ctx)
	if err != nil {
		t.Fatalf("load last run: %v", err)
	}
	if !ok {
		t.Fatal("expected a last run")
	}
	if run.ID != "run-2" {
		t.Fatalf("expected last run run-2, got %q", run.ID)
	}
	if !run.StartedAt.Equal(second.StartedAt) {
		t.Fatalf("expected started_at to roundtrip, got %v", run.StartedAt)
	}
	if run.Duration != second.Duration || run.Revision != 7 || run.Computations != 41 || run.EarlyCutoffs != 9 {
		t.Fatalf("expected engine stats to roundtrip, got %+v", run)
	}
	if len(diags) != 2 {
		t.Fatalf("expected 2 diagnostics, got %d", len(diags))
	}
	if diags[0].Path != "app.py" || diags[0].Severity != ports.SeverityWarning {
		t.Fatalf("expected path-ordered diagnostics, got %+v", diags[0])
	}

	since, err := store.Runs(ctx, base.Add(time.Hour), 0)
	if err != nil {
		t.Fatalf("load runs since: %v", err)
	}
	if len(since) != 1 || since[0].ID != "run-2" {
		t.Fatalf("expected since filter to keep run-2 only, got %+v", since)
	}

	all, err := store.Runs(ctx, time.Time{}, 0)
	if err != nil {
		t.Fatalf("load all runs: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(all))
	}
	if all[0].ID != "run-1" || all[1].ID != "run-2" {
		t.Fatalf("expected oldest-first order, got %q then %q", all[0].ID, all[1].ID)
	}
	if all[0].Commit != "abc123def456" {
		t.Fatalf("expected commit hash to roundtrip, got %q", all[0].Commit)
	}
}

func TestStore_AssignsRunIDWhenEmpty(t *testing.T) {
	store := openTestStore(t, 100)
	ctx := context.Background()

	run := ports.RunSummary{StartedAt: time.Now().UTC(), Files: 1}
	if err := store.RecordRun(ctx, run, nil); err != nil {
		t.Fatalf("record run: %v", err)
	}

	got, _, ok, err := store.LastRun(ctx)
	if err != nil || !ok {
		t.Fatalf("load last run: ok=%v err=%v", ok, err)
	}
	if strings.TrimSpace(got.ID) == "" {
		t.Fatal("expected a generated run id")
	}
}

func TestStore_RetentionPrunesOldestRuns(t *testing.T) {
	store := openTestStore(t, 2)
	ctx := context.Background()

	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		run := ports.RunSummary{
			ID:          string(rune('a' + i)),
			StartedAt:   base.Add(time.Duration(i) * time.Hour),
			Diagnostics: 1,
		}
		diag := []ports.Diagnostic{{Path: "m.py", Line: 1, Column: 1, Rule: "PYS003", Severity: ports.SeverityWarning, Message: `cannot resolve module "vendor"`}}
		if err := store.RecordRun(ctx, run, diag); err != nil {
			t.Fatalf("record run %d: %v", i, err)
		}
	}

	all, err := store.Runs(ctx, time.Time{}, 0)
	if err != nil {
		t.Fatalf("load runs: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected retention to keep 2 runs, got %d", len(all))
	}
	if all[0].ID != "b" || all[1].ID != "c" {
		t.Fatalf("expected oldest run pruned, got %q then %q", all[0].ID, all[1].ID)
	}

	// Cascade should have removed the pruned run's diagnostics too.
	var orphaned int
	if err := store.db.QueryRow(`SELECT COUNT(*) FROM run_diagnostics WHERE run_id = 'a'`).Scan(&orphaned); err != nil {
		t.Fatalf("count orphaned diagnostics: %v", err)
	}
	if orphaned != 0 {
		t.Fatalf("expected cascaded delete, found %d orphaned rows", orphaned)
	}
}

func TestStore_RunsLimitKeepsMostRecent(t *testing.T) {
	store := openTestStore(t, 100)
	ctx := context.Background()

	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		run := ports.RunSummary{
			ID:        string(rune('a' + i)),
			StartedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if err := store.RecordRun(ctx, run, nil); err != nil {
			t.Fatalf("record run %d: %v", i, err)
		}
	}

	got, err := store.Runs(ctx, time.Time{}, 2)
	if err != nil {
		t.Fatalf("load limited runs: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(got))
	}
	if got[0].ID != "c" || got[1].ID != "d" {
		t.Fatalf("expected the 2 most recent runs oldest first, got %q then %q", got[0].ID, got[1].ID)
	}
}

func TestStore_DiffAgainstLast(t *testing.T) {
	store := openTestStore(t, 100)
	ctx := context.Background()

	_, ok, err := store.DiffAgainstLast(ctx, nil)
	if err != nil {
		t.Fatalf("diff on empty store: %v", err)
	}
	if ok {
		t.Fatal("expected no baseline on empty store")
	}

	stays := ports.Diagnostic{Path: "a.py", Line: 1, Column: 1, Rule: "PYS001", Severity: ports.SeverityError, Message: "override of f is incompatible"}
	goes := ports.Diagnostic{Path: "b.py", Line: 2, Column: 1, Rule: "PYS002", Severity: ports.SeverityError, Message: `class "B" has unresolved base "Missing"`}
	run := ports.RunSummary{ID: "base", StartedAt: time.Now().UTC(), Diagnostics: 2}
	if err := store.RecordRun(ctx, run, []ports.Diagnostic{stays, goes}); err != nil {
		t.Fatalf("record baseline: %v", err)
	}

	comes := ports.Diagnostic{Path: "c.py", Line: 3, Column: 1, Rule: "PYS003", Severity: ports.SeverityWarning, Message: `cannot resolve module "requests"`}
	diff, ok, err := store.DiffAgainstLast(ctx, []ports.Diagnostic{stays, comes})
	if err != nil {
		t.Fatalf("diff against baseline: %v", err)
	}
	if !ok {
		t.Fatal("expected a baseline run")
	}
	if len(diff.Introduced) != 1 || diff.Introduced[0].Path != "c.py" {
		t.Fatalf("expected c.py introduced, got %+v", diff.Introduced)
	}
	if len(diff.Fixed) != 1 || diff.Fixed[0].Path != "b.py" {
		t.Fatalf("expected b.py fixed, got %+v", diff.Fixed)
	}
}

func TestStore_OpenRejectsDirectoryPath(t *testing.T) {
	_, err := Open(t.TempDir(), time.Second, 10)
	if err == nil {
		t.Fatal("expected open error for directory path")
	}
	if !strings.Contains(err.Error(), "is a directory") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStore_OpenCorruptDBPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	if err := os.WriteFile(path, []byte("this is not sqlite"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Open(path, time.Second, 10)
	if err == nil {
		t.Fatal("expected sqlite open error")
	}
	lower := strings.ToLower(err.Error())
	if !strings.Contains(lower, "not a database") && !strings.Contains(lower, "schema") {
		t.Fatalf("expected schema/open error, got: %v", err)
	}
}

func TestEnsureSchema_DetectsNewerVersionDrift(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := Open(path, time.Second, 10)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	_, err = store.db.Exec(`INSERT OR REPLACE INTO schema_migrations(version) VALUES (?)`, SchemaVersion+1)
	if err != nil {
		t.Fatal(err)
	}

	db, err := sql.Open(driverName, "file:"+path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	err = EnsureSchema(db)
	if err == nil {
		t.Fatal("expected drift error")
	}
	if !strings.Contains(err.Error(), "newer than supported") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBuildTrendReport(t *testing.T) {
	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	runs := []ports.RunSummary{
		{StartedAt: base, Files: 5, Diagnostics: 4, Duration: 100 * time.Millisecond},
		{StartedAt: base.Add(2 * time.Hour), Files: 8, Diagnostics: 2, Duration: 60 * time.Millisecond},
		{StartedAt: base.Add(25 * time.Hour), Files: 9, Diagnostics: 3, Duration: 80 * time.Millisecond},
	}

	report, err := BuildTrendReport(runs, 24*time.Hour)
	if err != nil {
		t.Fatalf("build report: %v", err)
	}
	if report.RunCount != 3 {
		t.Fatalf("expected run_count=3, got %d", report.RunCount)
	}
	if report.Points[1].DeltaFiles != 3 {
		t.Fatalf("expected delta_files=3, got %d", report.Points[1].DeltaFiles)
	}
	if report.Points[1].DeltaDiagnostics != -2 {
		t.Fatalf("expected delta_diagnostics=-2, got %d", report.Points[1].DeltaDiagnostics)
	}
	// The 24h window reaches back from each point; the third run only
	// covers the second and itself.
	if report.Points[2].AvgDiagnostics != 2.5 {
		t.Fatalf("expected avg_diagnostics=2.5, got %v", report.Points[2].AvgDiagnostics)
	}

	if _, err := BuildTrendReport(nil, time.Hour); err == nil {
		t.Fatal("expected error for empty series")
	}
}
