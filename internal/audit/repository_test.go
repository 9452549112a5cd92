package audit

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/seestar-core/internal/infrastructure/database"
	"github.com/nerrad567/seestar-core/internal/telescope/command"
	"github.com/nerrad567/seestar-core/internal/telescope/protocol"
	"github.com/nerrad567/seestar-core/internal/telescope/state"
	_ "github.com/nerrad567/seestar-core/migrations" // registers the embedded migrations
)

var epoch = time.Date(2026, 10, 15, 21, 0, 0, 0, time.UTC)

func setupRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "audit.db"),
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func resolved(id string, kind command.Kind, status command.Status, offset time.Duration) command.Result {
	ra, dec := protocol.Angle(5.5881), protocol.Angle(-5.391)
	return command.Result{
		ID:          id,
		Kind:        kind,
		Status:      status,
		Request:     command.Request{Kind: kind, RA: &ra, Dec: &dec},
		Source:      "api",
		SubmittedAt: epoch.Add(offset),
		ResolvedAt:  epoch.Add(offset + 1500*time.Millisecond),
	}
}

func TestRecord_RoundTrip(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	res := resolved("cmd-1", command.KindGoto, command.StatusSucceeded, 0)
	res.Snapshot = &state.Snapshot{Version: 42}

	if err := repo.Record(ctx, res); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	list, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if list.Total != 1 || len(list.Entries) != 1 {
		t.Fatalf("List() total = %d, entries = %d, want 1, 1", list.Total, len(list.Entries))
	}

	got := list.Entries[0]
	if got.ID != "cmd-1" {
		t.Errorf("ID = %q, want cmd-1", got.ID)
	}
	if got.Kind != command.KindGoto || got.Status != command.StatusSucceeded {
		t.Errorf("Kind, Status = %s, %s, want goto, succeeded", got.Kind, got.Status)
	}
	if got.Source != "api" {
		t.Errorf("Source = %q, want api", got.Source)
	}
	if got.SnapshotVersion != 42 {
		t.Errorf("SnapshotVersion = %d, want 42", got.SnapshotVersion)
	}
	if got.DurationMS != 1500 {
		t.Errorf("DurationMS = %d, want 1500", got.DurationMS)
	}
	if !got.SubmittedAt.Equal(res.SubmittedAt) || !got.ResolvedAt.Equal(res.ResolvedAt) {
		t.Errorf("times = %v, %v, want %v, %v", got.SubmittedAt, got.ResolvedAt, res.SubmittedAt, res.ResolvedAt)
	}

	var req command.Request
	if err := json.Unmarshal(got.Request, &req); err != nil {
		t.Fatalf("stored request is not valid JSON: %v", err)
	}
	if req.Kind != command.KindGoto || req.RA == nil || float64(*req.RA) != 5.5881 {
		t.Errorf("stored request = %+v, want goto at ra 5.5881", req)
	}
}

func TestRecord_Unresolved(t *testing.T) {
	repo := setupRepo(t)

	res := resolved("cmd-1", command.KindGoto, command.StatusAwaitingCompletion, 0)
	if err := repo.Record(context.Background(), res); !errors.Is(err, ErrUnresolved) {
		t.Errorf("Record() error = %v, want ErrUnresolved", err)
	}
}

func TestCreate_DuplicateID(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	res := resolved("cmd-1", command.KindStopSlew, command.StatusSucceeded, 0)
	if err := repo.Record(ctx, res); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := repo.Record(ctx, res); err == nil {
		t.Error("second Record() with same id expected error, got nil")
	}
}

func TestList_Filters(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	rows := []command.Result{
		resolved("a", command.KindGoto, command.StatusSucceeded, 0),
		resolved("b", command.KindGoto, command.StatusTimedOut, time.Minute),
		resolved("c", command.KindSetFocus, command.StatusFailed, 2*time.Minute),
		resolved("d", command.KindExpose, command.StatusSucceeded, 3*time.Minute),
	}
	rows[2].Source = "mqtt"
	rows[2].Reason = "device reported: focuser stalled"
	for _, r := range rows {
		if err := repo.Record(ctx, r); err != nil {
			t.Fatalf("Record(%s) error = %v", r.ID, err)
		}
	}

	tests := []struct {
		name    string
		filter  Filter
		wantIDs []string
		total   int
	}{
		{"all newest first", Filter{}, []string{"d", "c", "b", "a"}, 4},
		{"by kind", Filter{Kind: command.KindGoto}, []string{"b", "a"}, 2},
		{"by status", Filter{Status: command.StatusSucceeded}, []string{"d", "a"}, 2},
		{"by source", Filter{Source: "mqtt"}, []string{"c"}, 1},
		{"since", Filter{Since: epoch.Add(90 * time.Second)}, []string{"d", "c"}, 2},
		{"page", Filter{Limit: 2, Offset: 1}, []string{"c", "b"}, 4},
		{"past the end", Filter{Offset: 10}, []string{}, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if got.Total != tt.total {
				t.Errorf("Total = %d, want %d", got.Total, tt.total)
			}
			ids := make([]string, 0, len(got.Entries))
			for _, e := range got.Entries {
				ids = append(ids, e.ID)
			}
			if len(ids) != len(tt.wantIDs) {
				t.Fatalf("ids = %v, want %v", ids, tt.wantIDs)
			}
			for i := range ids {
				if ids[i] != tt.wantIDs[i] {
					t.Errorf("ids = %v, want %v", ids, tt.wantIDs)
					break
				}
			}
		})
	}

	t.Run("reason kept", func(t *testing.T) {
		got, err := repo.List(ctx, Filter{Source: "mqtt"})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if got.Entries[0].Reason != "device reported: focuser stalled" {
			t.Errorf("Reason = %q", got.Entries[0].Reason)
		}
	})
}

func TestList_LimitClamped(t *testing.T) {
	repo := setupRepo(t)

	tests := []struct {
		in, want int
	}{
		{0, defaultLimit},
		{-5, defaultLimit},
		{10, 10},
		{1000, maxLimit},
	}
	for _, tt := range tests {
		got, err := repo.List(context.Background(), Filter{Limit: tt.in})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if got.Limit != tt.want {
			t.Errorf("Limit %d clamped to %d, want %d", tt.in, got.Limit, tt.want)
		}
	}
}

func TestPrune(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	for i, id := range []string{"old-1", "old-2", "new"} {
		r := resolved(id, command.KindSync, command.StatusSucceeded, time.Duration(i)*time.Hour)
		if err := repo.Record(ctx, r); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	n, err := repo.Prune(ctx, epoch.Add(90*time.Minute))
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Prune() removed %d, want 2", n)
	}

	got, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if got.Total != 1 || got.Entries[0].ID != "new" {
		t.Errorf("after prune entries = %+v, want only new", got.Entries)
	}
}

type failingRepo struct {
	mu      sync.Mutex
	creates int
}

func (f *failingRepo) Create(context.Context, Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	return errors.New("disk full")
}

func (f *failingRepo) List(context.Context, Filter) (*ListResult, error) { return &ListResult{}, nil }

func (f *failingRepo) Prune(context.Context, time.Time) (int64, error) { return 0, nil }

type recordingLogger struct {
	mu     sync.Mutex
	warns  int
	errors int
}

func (l *recordingLogger) Warn(string, ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns++
}

func (l *recordingLogger) Error(string, ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors++
}

func TestRecorder(t *testing.T) {
	t.Run("stores resolved results", func(t *testing.T) {
		repo := setupRepo(t)
		rec := Recorder(repo, nil)

		rec(resolved("cmd-1", command.KindAbortExposure, command.StatusCancelled, 0))

		got, err := repo.List(context.Background(), Filter{})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if got.Total != 1 || got.Entries[0].Status != command.StatusCancelled {
			t.Errorf("entries = %+v, want one cancelled", got.Entries)
		}
	})

	t.Run("insert failure is logged", func(t *testing.T) {
		repo := &failingRepo{}
		logger := &recordingLogger{}
		rec := Recorder(repo, logger)

		rec(resolved("cmd-1", command.KindGoto, command.StatusSucceeded, 0))

		if repo.creates != 1 {
			t.Errorf("creates = %d, want 1", repo.creates)
		}
		if logger.errors != 1 {
			t.Errorf("errors logged = %d, want 1", logger.errors)
		}
	})

	t.Run("unresolved result skipped", func(t *testing.T) {
		repo := &failingRepo{}
		logger := &recordingLogger{}
		rec := Recorder(repo, logger)

		rec(resolved("cmd-1", command.KindGoto, command.StatusSent, 0))

		if repo.creates != 0 {
			t.Errorf("creates = %d, want 0", repo.creates)
		}
		if logger.warns != 1 {
			t.Errorf("warns logged = %d, want 1", logger.warns)
		}
	})
}
