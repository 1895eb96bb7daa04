package storage

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/webforge/sla-sentinel/internal/config"
	"github.com/webforge/sla-sentinel/internal/telemetry"
)

func newTestEventStorage(t *testing.T) *EventStorage {
	t.Helper()
	store, err := NewSQLiteStore(config.StorageConfig{DatabasePath: ":memory:"}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { store.db.Close() })

	events, err := NewEventStorage(store, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewEventStorage failed: %v", err)
	}
	return events
}

func TestEventStorageRoundTrip(t *testing.T) {
	events := newTestEventStorage(t)
	ctx := context.Background()

	event := telemetry.Event{
		ID:        "evt_1",
		Type:      telemetry.EventTypePrediction,
		Timestamp: time.Now(),
		Workflow:  "deploy-pipeline",
		Summary:   "Predicted build_time violation",
		Details:   map[string]interface{}{"probability": 0.82},
		Severity:  telemetry.SeverityWarning,
	}
	if err := events.StoreEvent(ctx, event); err != nil {
		t.Fatalf("StoreEvent failed: %v", err)
	}

	got, err := events.GetEvents(ctx, telemetry.EventFilter{Workflow: "deploy-pipeline"})
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].ID != "evt_1" || got[0].Type != telemetry.EventTypePrediction {
		t.Errorf("unexpected event: %+v", got[0])
	}
	if got[0].Details["probability"] != 0.82 {
		t.Errorf("details did not round trip: %v", got[0].Details)
	}
}

func TestEventStorageFiltering(t *testing.T) {
	events := newTestEventStorage(t)
	ctx := context.Background()
	base := time.Now()

	seed := []telemetry.Event{
		{ID: "e1", Type: telemetry.EventTypePrediction, Workflow: "alpha", Summary: "s", Severity: telemetry.SeverityInfo, Timestamp: base.Add(-2 * time.Hour)},
		{ID: "e2", Type: telemetry.EventTypeScaling, Workflow: "alpha", Summary: "s", Severity: telemetry.SeverityInfo, Timestamp: base.Add(-time.Hour)},
		{ID: "e3", Type: telemetry.EventTypePrediction, Workflow: "beta", Summary: "s", Severity: telemetry.SeverityWarning, Timestamp: base},
	}
	for _, ev := range seed {
		if err := events.StoreEvent(ctx, ev); err != nil {
			t.Fatalf("StoreEvent failed: %v", err)
		}
	}

	got, err := events.GetEvents(ctx, telemetry.EventFilter{Type: telemetry.EventTypePrediction})
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 prediction events, got %d", len(got))
	}
	// Newest first
	if got[0].ID != "e3" || got[1].ID != "e1" {
		t.Errorf("expected newest-first ordering, got %s then %s", got[0].ID, got[1].ID)
	}

	got, err = events.GetEvents(ctx, telemetry.EventFilter{
		Workflow:  "alpha",
		StartTime: base.Add(-90 * time.Minute),
		Limit:     5,
	})
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "e2" {
		t.Errorf("expected only e2, got %+v", got)
	}
}
