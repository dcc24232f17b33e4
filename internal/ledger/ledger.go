// Package ledger provides an append-only audit history of control-loop
// events: profile activations, stall recoveries and device faults.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/hidlight/internal/eventbus"
)

// EventType represents the type of event in the ledger
type EventType string

const (
	EventColorProfile    EventType = "color_profile"
	EventFanProfile      EventType = "fan_profile"
	EventStallRecovered  EventType = "stall_recovered"
	EventDeviceFailed    EventType = "device_failed"
	EventDeviceRecovered EventType = "device_recovered"
)

// Entry represents a single event in the ledger
type Entry struct {
	ID        int64
	EventType EventType
	Timestamp time.Time
	RunID     string
	Subject   string
	Payload   map[string]any
}

// Ledger provides append-only event logging for one daemon run
type Ledger struct {
	db    *sql.DB
	runID string
	now   func() time.Time
}

// New creates a new Ledger using the provided database connection. Every
// entry it writes carries a fresh run id.
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db, runID: uuid.NewString(), now: time.Now}
}

// RunID returns the id stamped on this run's entries.
func (l *Ledger) RunID() string { return l.runID }

// StartRun records the daemon start.
func (l *Ledger) StartRun(configPath string, devices []string) error {
	_, err := l.db.Exec(
		`INSERT INTO runs (run_id, started_at, config_path, devices) VALUES (?, ?, ?, ?)`,
		l.runID, l.now().UTC().Unix(), configPath, strings.Join(devices, ","),
	)
	return err
}

// StopRun records a clean shutdown.
func (l *Ledger) StopRun() error {
	_, err := l.db.Exec(`UPDATE runs SET stopped_at = ? WHERE run_id = ?`, l.now().UTC().Unix(), l.runID)
	return err
}

// Append adds a new event to the ledger
func (l *Ledger) Append(eventType EventType, subject string, payload map[string]any) error {
	var payloadJSON []byte
	var err error

	if payload != nil {
		payloadJSON, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
	}

	_, err = l.db.Exec(
		`INSERT INTO event_ledger (event_type, timestamp, run_id, subject, payload) VALUES (?, ?, ?, ?, ?)`,
		string(eventType), l.now().UTC().Unix(), l.runID, subject, string(payloadJSON),
	)
	return err
}

// Subscribe records every auditable bus event.
func (l *Ledger) Subscribe(bus *eventbus.Bus) {
	record := func(eventType EventType, subjectKey string) eventbus.Handler {
		return func(e eventbus.Event) {
			subject, _ := e.Data[subjectKey].(string)
			if err := l.Append(eventType, subject, e.Data); err != nil {
				log.Error().Err(err).Str("event_type", string(eventType)).Msg("Failed to append ledger entry")
			}
		}
	}
	bus.Subscribe(eventbus.EventTypeColorProfile, record(EventColorProfile, "profile"))
	bus.Subscribe(eventbus.EventTypeFanProfile, record(EventFanProfile, "profile"))
	bus.Subscribe(eventbus.EventTypeStallRecovered, record(EventStallRecovered, ""))
	bus.Subscribe(eventbus.EventTypeDeviceFailed, record(EventDeviceFailed, "device"))
	bus.Subscribe(eventbus.EventTypeDeviceRecovered, record(EventDeviceRecovered, "device"))
}

// GetByType returns entries filtered by event type, newest first
func (l *Ledger) GetByType(eventType EventType, limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, event_type, timestamp, run_id, subject, payload
		FROM event_ledger
		WHERE event_type = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, string(eventType), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// GetByTimeRange returns entries within a time range, newest first
func (l *Ledger) GetByTimeRange(start, end time.Time, limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, event_type, timestamp, run_id, subject, payload
		FROM event_ledger
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, start.Unix(), end.Unix(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// DeleteOlderThan removes entries older than the specified duration (retention policy)
func (l *Ledger) DeleteOlderThan(retention time.Duration) (int64, error) {
	cutoff := l.now().Add(-retention).Unix()
	result, err := l.db.Exec(`DELETE FROM event_ledger WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// RunCleanup applies the retention policy every interval until ctx is done.
func (l *Ledger) RunCleanup(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := l.DeleteOlderThan(retention)
			if err != nil {
				log.Error().Err(err).Msg("Ledger cleanup failed")
				continue
			}
			if n > 0 {
				log.Info().Int64("deleted", n).Msg("Ledger cleanup completed")
			}
		}
	}
}

func (l *Ledger) scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var payloadStr, subject sql.NullString
		var timestamp int64

		err := rows.Scan(&entry.ID, &entry.EventType, &timestamp, &entry.RunID, &subject, &payloadStr)
		if err != nil {
			return nil, err
		}

		entry.Timestamp = time.Unix(timestamp, 0).UTC()
		if subject.Valid {
			entry.Subject = subject.String
		}

		if payloadStr.Valid && payloadStr.String != "" {
			entry.Payload = make(map[string]any)
			if err := json.Unmarshal([]byte(payloadStr.String), &entry.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
