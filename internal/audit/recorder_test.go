package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/HerbHall/opsconductor/internal/event"
	"github.com/HerbHall/opsconductor/internal/store"
	"github.com/HerbHall/opsconductor/pkg/plugin"
)

func testRecorder(t *testing.T) (*Recorder, *event.Bus) {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Migrate(context.Background(), "audit", Migrations()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	bus := event.NewBus(zaptest.NewLogger(t))
	return NewRecorder(s.DB(), bus, zaptest.NewLogger(t)), bus
}

func TestRecorder_LogEvent_persists_and_publishes(t *testing.T) {
	r, bus := testRecorder(t)

	var (
		mu     sync.Mutex
		topics []string
	)
	bus.SubscribePrefix(TopicPrefix, func(_ context.Context, e plugin.Event) {
		mu.Lock()
		topics = append(topics, e.Topic)
		mu.Unlock()
	})

	ctx := WithUserID(context.Background(), "alice")
	r.LogEvent(ctx, Event{
		EventType:    EventTargetCreated,
		ResourceType: "target",
		ResourceID:   "7",
		Action:       "create",
		Details:      map[string]any{"name": "web01"},
		Severity:     SeverityMedium,
	})

	if err := bus.Drain(context.Background()); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}

	events, err := r.List(context.Background(), Filter{ResourceType: "target", ResourceID: "7"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("List() returned %d events, want 1", len(events))
	}
	got := events[0]
	if got.UserID != "alice" {
		t.Errorf("UserID = %q, want alice", got.UserID)
	}
	if got.Severity != SeverityMedium {
		t.Errorf("Severity = %q, want medium", got.Severity)
	}
	if got.Details["name"] != "web01" {
		t.Errorf("Details[name] = %v, want web01", got.Details["name"])
	}
	if got.Timestamp.IsZero() {
		t.Error("Timestamp is zero")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(topics) != 1 || topics[0] != "audit.target_created" {
		t.Errorf("published topics = %v, want [audit.target_created]", topics)
	}
}

func TestRecorder_LogEvent_defaults(t *testing.T) {
	r, _ := testRecorder(t)
	r.LogEvent(context.Background(), Event{
		EventType:    EventTargetDeleted,
		ResourceType: "target",
		ResourceID:   "1",
		Action:       "delete",
	})

	events, err := r.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("List() returned %d events, want 1", len(events))
	}
	if events[0].UserID != "system" {
		t.Errorf("UserID = %q, want system", events[0].UserID)
	}
	if events[0].Severity != SeverityLow {
		t.Errorf("Severity = %q, want low", events[0].Severity)
	}
}

func TestRecorder_LogEvent_survives_store_failure(t *testing.T) {
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	// No migrations: the insert fails, LogEvent must not panic or block.
	r := NewRecorder(s.DB(), nil, zaptest.NewLogger(t))
	r.LogEvent(context.Background(), Event{EventType: "x", ResourceType: "target", ResourceID: "1", Action: "noop"})
}

func TestRecorder_List_filters_and_orders(t *testing.T) {
	r, _ := testRecorder(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 15, 0, 0, 0, time.UTC)

	for i, et := range []string{EventTargetCreated, EventConnectionTestFailed, EventTargetUpdated} {
		r.LogEvent(ctx, Event{
			EventType:    et,
			ResourceType: "target",
			ResourceID:   "1",
			Action:       et,
			Timestamp:    base.Add(time.Duration(i) * time.Minute),
		})
	}

	all, err := r.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("List() returned %d events, want 3", len(all))
	}
	if all[0].EventType != EventTargetUpdated {
		t.Errorf("newest event = %q, want %q", all[0].EventType, EventTargetUpdated)
	}

	failed, err := r.List(ctx, Filter{EventType: EventConnectionTestFailed})
	if err != nil {
		t.Fatalf("List(EventType) error = %v", err)
	}
	if len(failed) != 1 {
		t.Errorf("List(EventType) returned %d events, want 1", len(failed))
	}

	limited, err := r.List(ctx, Filter{Limit: 2})
	if err != nil {
		t.Fatalf("List(Limit) error = %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("List(Limit) returned %d events, want 2", len(limited))
	}
}

func TestRecorder_Prune(t *testing.T) {
	r, _ := testRecorder(t)
	ctx := context.Background()
	old := time.Now().UTC().Add(-48 * time.Hour)

	r.LogEvent(ctx, Event{EventType: "old", ResourceType: "target", ResourceID: "1", Action: "a", Timestamp: old})
	r.LogEvent(ctx, Event{EventType: "new", ResourceType: "target", ResourceID: "1", Action: "a"})

	n, err := r.Prune(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Prune() removed %d events, want 1", n)
	}
}

func TestUserIDFromContext(t *testing.T) {
	if got := UserIDFromContext(context.Background()); got != "system" {
		t.Errorf("UserIDFromContext(empty) = %q, want system", got)
	}
	if got := UserIDFromContext(WithUserID(context.Background(), "bob")); got != "bob" {
		t.Errorf("UserIDFromContext() = %q, want bob", got)
	}
}
