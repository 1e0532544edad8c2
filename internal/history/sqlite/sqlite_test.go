package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/loykin/sidecar/internal/history"
)

func TestSQLiteSink_Integration(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "history.db")

	sink, err := New("sqlite://" + dbPath)
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	events := []history.Event{
		{Type: history.EventStart, OccurredAt: base, Sidecar: "backend", Attempt: "a1", State: "starting"},
		{Type: history.EventReady, OccurredAt: base.Add(2 * time.Second), Sidecar: "backend", Attempt: "a1", PID: 4242, State: "running"},
		{Type: history.EventExit, OccurredAt: base.Add(time.Minute), Sidecar: "backend", Attempt: "a1", PID: 4242, State: "idle", Error: "exit status 1"},
	}
	for _, e := range events {
		if err := sink.Send(ctx, e); err != nil {
			t.Fatalf("Send(%s): %v", e.Type, err)
		}
	}

	got, err := sink.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Type != history.EventExit || got[0].Error != "exit status 1" || got[0].PID != 4242 {
		t.Fatalf("unexpected newest event: %+v", got[0])
	}
	if !got[0].OccurredAt.Equal(base.Add(time.Minute)) {
		t.Fatalf("timestamp round trip: %v", got[0].OccurredAt)
	}
	if got[1].Type != history.EventReady || got[1].Error != "" {
		t.Fatalf("unexpected second event: %+v", got[1])
	}
}

func TestSQLiteSink_Memory(t *testing.T) {
	sink, err := New(":memory:")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = sink.Close() }()

	got, err := sink.Recent(context.Background(), 0)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty history, got %v %v", got, err)
	}
}

func TestNew_EmptyDSN(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

var (
	_ history.Sink   = (*Sink)(nil)
	_ history.Reader = (*Sink)(nil)
)
