package store

import (
	"testing"
	"time"

	"github.com/dukerupert/crmdesk/internal/database"
	"github.com/dukerupert/crmdesk/internal/model"
)

func setupRunTestDB(t *testing.T) *RunStore {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewRunStore(db)
}

func TestRunRecordAndGet(t *testing.T) {
	rs := setupRunTestDB(t)

	started := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	run := model.JobRun{
		ID:         "run-1",
		StartedAt:  started,
		FinishedAt: started.Add(2 * time.Second),
		TotalUsers: 10,
		ToSuspend:  2,
		ToNotify:   3,
		Expired:    4,
		Suspended:  2,
		Notified:   2,
		Errors:     1,
		Report:     `{"ok":true}`,
	}
	if err := rs.Record(run); err != nil {
		t.Fatalf("record: %v", err)
	}

	got, err := rs.GetByID("run-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected run, got nil")
	}
	if got.TotalUsers != 10 || got.Suspended != 2 || got.Errors != 1 {
		t.Errorf("counts = %+v", got)
	}
	if got.Report != `{"ok":true}` {
		t.Errorf("report = %q", got.Report)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("started_at = %v, want %v", got.StartedAt, started)
	}
}

func TestRunListRecent(t *testing.T) {
	rs := setupRunTestDB(t)

	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		started := base.AddDate(0, 0, i)
		if err := rs.Record(model.JobRun{ID: id, StartedAt: started, FinishedAt: started}); err != nil {
			t.Fatalf("record %s: %v", id, err)
		}
	}

	runs, err := rs.ListRecent(2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("len = %d, want 2", len(runs))
	}
	if runs[0].ID != "c" || runs[1].ID != "b" {
		t.Errorf("order = %s,%s, want c,b", runs[0].ID, runs[1].ID)
	}
	if runs[0].Report != "{}" {
		t.Errorf("default report = %q, want {}", runs[0].Report)
	}
}
