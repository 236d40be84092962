package eventstore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/visagelabs/visage-core/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeral(t *testing.T) {
	ctx := context.Background()
	cfg := config.EventStoreConfig{RetentionMode: "ephemeral"}
	es, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })
	if err := es.Ensure(); err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if err := es.AppendTransition(ctx, Transition{StreamID: "s", FromState: 0, ToState: 1}); err != nil {
		t.Fatalf("ephemeral append should be a no-op: %v", err)
	}
}

func TestAppendAndQuery(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.EventStoreConfig{Path: filepath.Join(tmp, "events.db"), RetentionMode: "session"}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	streamID := "stream-123"
	if err := es.AppendStream(context.Background(), streamID, "musetalk"); err != nil {
		t.Fatalf("append stream: %v", err)
	}
	if err := es.AppendTransition(context.Background(), Transition{StreamID: streamID, FromState: 2, ToState: 1, Reason: "exhausted"}); err != nil {
		t.Fatalf("append transition: %v", err)
	}
	transitions, err := es.ListTransitions(context.Background(), streamID, 10)
	if err != nil {
		t.Fatalf("list transitions: %v", err)
	}
	if len(transitions) != 1 {
		t.Fatalf("expected 1 transition, got %d", len(transitions))
	}
	if transitions[0].FromState != 2 || transitions[0].ToState != 1 || transitions[0].Reason != "exhausted" {
		t.Fatalf("unexpected transition: %+v", transitions[0])
	}
}

func TestPruneByDaysAndStreams(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.EventStoreConfig{Path: filepath.Join(tmp, "events.db"), RetentionMode: "persistent", RetentionDays: 1, MaxStreams: 1}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	es.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := es.AppendStream(context.Background(), "old-stream", "musetalk"); err != nil {
		t.Fatalf("append stream: %v", err)
	}
	if err := es.AppendTransition(context.Background(), Transition{StreamID: "old-stream", FromState: 0, ToState: 1, Reason: "command"}); err != nil {
		t.Fatalf("append transition: %v", err)
	}

	es.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := es.AppendStream(context.Background(), "new-stream", "musetalk"); err != nil {
		t.Fatalf("append stream: %v", err)
	}
	if err := es.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	transitions, err := es.ListTransitions(context.Background(), "old-stream", 10)
	if err != nil {
		t.Fatalf("list transitions: %v", err)
	}
	if len(transitions) != 0 {
		t.Fatalf("expected old stream pruned")
	}
}
