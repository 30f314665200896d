package history

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"), time.Second)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_RecordAndLoadRuns(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	base := time.Date(2026, 2, 13, 10, 0, 0, 0, time.UTC)
	first := Run{
		Target:         "/src/shop/order/service.go",
		StartedAt:      base,
		FinishedAt:     base.Add(90 * time.Second),
		Success:        false,
		Stage:          "fix",
		FixAttempts:    3,
		Failed:         2,
		TestWorthiness: "Excellent",
		TotalLoc:       120,
		Provider:       "openai",
	}
	second := Run{
		Target:      "/src/shop/order/service.go",
		StartedAt:   base.Add(time.Hour),
		FinishedAt:  base.Add(time.Hour + time.Minute),
		Success:     true,
		Stage:       "done",
		FixAttempts: 1,
		TestFile:    "/src/shop/order/service_test.go",
		Passed:      4,
	}
	other := Run{Target: "/src/shop/money/money.go", StartedAt: base.Add(2 * time.Hour), FinishedAt: base.Add(2 * time.Hour)}

	for _, r := range []Run{first, second, other} {
		if _, err := store.RecordRun(ctx, r); err != nil {
			t.Fatalf("record run: %v", err)
		}
	}

	got, err := store.RecentRuns(ctx, first.Target, 10)
	if err != nil {
		t.Fatalf("load runs: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 runs for target, got %d", len(got))
	}
	if !got[0].Success || got[0].Passed != 4 || got[0].TestFile != second.TestFile {
		t.Fatalf("expected newest run first, got %+v", got[0])
	}
	if got[1].FixAttempts != 3 || got[1].Provider != "openai" || got[1].Duration() != 90*time.Second {
		t.Fatalf("expected fields to roundtrip, got %+v", got[1])
	}

	all, err := store.RecentRuns(ctx, "", 2)
	if err != nil {
		t.Fatalf("load all runs: %v", err)
	}
	if len(all) != 2 || all[0].Target != other.Target {
		t.Fatalf("unexpected limited runs: %+v", all)
	}
}

func TestStore_QueryReadOnly(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	if _, err := store.RecordRun(ctx, Run{Target: "a.go", Success: true, FixAttempts: 2}); err != nil {
		t.Fatal(err)
	}

	rows, err := store.QueryReadOnly(ctx, "SELECT target, fix_attempts FROM runs WHERE success = 1;", 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 1 || rows[0]["target"] != "a.go" || rows[0]["fix_attempts"] != int64(2) {
		t.Fatalf("unexpected rows: %+v", rows)
	}

	for _, bad := range []string{
		"DELETE FROM runs",
		"SELECT 1; DROP TABLE runs",
		"WITH x AS (SELECT 1) DELETE FROM runs",
	} {
		if _, err := store.QueryReadOnly(ctx, bad, 10); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}

	// The connection is writable again afterwards.
	if _, err := store.RecordRun(ctx, Run{Target: "b.go"}); err != nil {
		t.Fatalf("record after query: %v", err)
	}
}

func TestStore_OpenRejectsDirectoryPath(t *testing.T) {
	_, err := Open(t.TempDir(), 0)
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
	_, err := Open(path, 0)
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
	store, err := Open(path, 0)
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

func TestSummarize(t *testing.T) {
	base := time.Date(2026, 2, 13, 10, 0, 0, 0, time.UTC)
	runs := []Run{
		{StartedAt: base, FinishedAt: base.Add(time.Minute), Success: true, FixAttempts: 1},
		{StartedAt: base, FinishedAt: base.Add(3 * time.Minute), Success: false, FixAttempts: 3},
		{StartedAt: base, FinishedAt: base.Add(2 * time.Minute), Success: true, FixAttempts: 2},
	}

	s := Summarize(runs)
	if s.Runs != 3 || s.Successes != 2 {
		t.Fatalf("unexpected counts: %+v", s)
	}
	if s.AvgFixAttempts != 2 {
		t.Fatalf("expected avg fix attempts 2, got %v", s.AvgFixAttempts)
	}
	if s.AvgDuration != 2*time.Minute {
		t.Fatalf("expected avg duration 2m, got %v", s.AvgDuration)
	}
	if !s.LastSuccess.Equal(base.Add(2 * time.Minute)) {
		t.Fatalf("unexpected last success %v", s.LastSuccess)
	}
	if Summarize(nil).Runs != 0 {
		t.Fatal("expected empty summary")
	}
}

func TestIsCorruptError(t *testing.T) {
	if !IsCorruptError(errors.New("database disk image is malformed")) {
		t.Fatal("expected malformed sqlite message to be treated as corrupt")
	}
}
