package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dokzlo13/hidlight/internal/db"
	"github.com/dokzlo13/hidlight/internal/eventbus"
)

func openLedger(t *testing.T) *Ledger {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "ledger.sqlite"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return New(database.DB)
}

func TestAppendAndQuery(t *testing.T) {
	l := openLedger(t)
	if l.RunID() == "" {
		t.Fatal("empty run id")
	}
	if err := l.StartRun("/etc/hidlight/config.yaml", []string{"Commander PRO"}); err != nil {
		t.Fatalf("start run: %v", err)
	}

	if err := l.Append(EventColorProfile, "idle", map[string]any{"profile": "idle", "index": 0}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := l.Append(EventColorProfile, "hot", map[string]any{"profile": "hot", "index": 2}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := l.Append(EventStallRecovered, "", nil); err != nil {
		t.Fatalf("append: %v", err)
	}

	entries, err := l.GetByType(EventColorProfile, 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Subject != "hot" || entries[0].RunID != l.RunID() {
		t.Errorf("newest entry = %+v", entries[0])
	}
	if entries[0].Payload["index"] != float64(2) {
		t.Errorf("payload = %v", entries[0].Payload)
	}

	all, err := l.GetByTimeRange(time.Now().Add(-time.Minute), time.Now().Add(time.Minute), 10)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("range returned %d entries, want 3", len(all))
	}

	if err := l.StopRun(); err != nil {
		t.Errorf("stop run: %v", err)
	}
}

func TestDeleteOlderThan(t *testing.T) {
	l := openLedger(t)
	base := time.Now()

	l.now = func() time.Time { return base.Add(-48 * time.Hour) }
	if err := l.Append(EventDeviceFailed, "old", nil); err != nil {
		t.Fatal(err)
	}
	l.now = func() time.Time { return base }
	if err := l.Append(EventDeviceFailed, "new", nil); err != nil {
		t.Fatal(err)
	}

	n, err := l.DeleteOlderThan(24 * time.Hour)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted %d entries, want 1", n)
	}
	entries, _ := l.GetByType(EventDeviceFailed, 10)
	if len(entries) != 1 || entries[0].Subject != "new" {
		t.Errorf("remaining = %+v", entries)
	}
}

func TestSubscribeRecordsBusEvents(t *testing.T) {
	l := openLedger(t)
	bus := eventbus.NewWithConfig(1, 16)
	l.Subscribe(bus)

	bus.Publish(eventbus.Event{Type: eventbus.EventTypeFanProfile, Data: map[string]any{"profile": "loud"}})
	bus.Publish(eventbus.Event{Type: eventbus.EventTypeDeviceFailed, Data: map[string]any{"device": "Commander PRO", "error": "io"}})
	bus.Publish(eventbus.Event{Type: eventbus.EventTypeTick, Data: map[string]any{"frame": 1}})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	bus.Close(ctx)

	fan, _ := l.GetByType(EventFanProfile, 10)
	if len(fan) != 1 || fan[0].Subject != "loud" {
		t.Errorf("fan entries = %+v", fan)
	}
	failed, _ := l.GetByType(EventDeviceFailed, 10)
	if len(failed) != 1 || failed[0].Subject != "Commander PRO" {
		t.Errorf("device entries = %+v", failed)
	}
	all, _ := l.GetByTimeRange(time.Now().Add(-time.Minute), time.Now().Add(time.Minute), 10)
	if len(all) != 2 {
		t.Errorf("ledger has %d entries, tick events must not be recorded", len(all))
	}
}
