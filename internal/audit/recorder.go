package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/opsconductor/pkg/plugin"
)

// Compile-time interface guard.
var _ Logger = (*Recorder)(nil)

// Recorder persists audit events to SQLite and republishes them on the bus
// under "audit.<event_type>".
type Recorder struct {
	db     *sql.DB
	bus    plugin.EventBus // may be nil
	logger *zap.Logger
	now    func() time.Time
}

// NewRecorder creates a Recorder. bus may be nil.
func NewRecorder(db *sql.DB, bus plugin.EventBus, logger *zap.Logger) *Recorder {
	return &Recorder{
		db:     db,
		bus:    bus,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// LogEvent stores and publishes event. Failures are logged and swallowed.
func (r *Recorder) LogEvent(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = r.now()
	}
	if event.UserID == "" {
		event.UserID = UserIDFromContext(ctx)
	}
	if event.Severity == "" {
		event.Severity = SeverityLow
	}

	// Audit writes outlive a cancelled request.
	ctx = context.WithoutCancel(ctx)

	if err := r.insert(ctx, &event); err != nil {
		r.logger.Warn("failed to persist audit event",
			zap.String("event_type", event.EventType),
			zap.String("resource_type", event.ResourceType),
			zap.String("resource_id", event.ResourceID),
			zap.Error(err),
		)
	}

	if r.bus != nil {
		r.bus.PublishAsync(ctx, plugin.Event{
			Topic:     TopicPrefix + event.EventType,
			Source:    "audit",
			Timestamp: event.Timestamp,
			Payload:   event,
		})
	}
}

func (r *Recorder) insert(ctx context.Context, event *Event) error {
	details := []byte("{}")
	if len(event.Details) > 0 {
		b, err := json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("marshal details: %w", err)
		}
		details = b
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_events (event_type, user_id, resource_type, resource_id, action, details, severity, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.EventType, event.UserID, event.ResourceType, event.ResourceID,
		event.Action, string(details), string(event.Severity), event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		event.ID = id
	}
	return nil
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	EventType    string
	ResourceType string
	ResourceID   string
	Severity     Severity
	Since        time.Time
	Limit        int // default 100
}

// List returns matching events, newest first.
func (r *Recorder) List(ctx context.Context, f Filter) ([]Event, error) {
	var (
		where []string
		args  []any
	)
	if f.EventType != "" {
		where = append(where, "event_type = ?")
		args = append(args, f.EventType)
	}
	if f.ResourceType != "" {
		where = append(where, "resource_type = ?")
		args = append(args, f.ResourceType)
	}
	if f.ResourceID != "" {
		where = append(where, "resource_id = ?")
		args = append(args, f.ResourceID)
	}
	if f.Severity != "" {
		where = append(where, "severity = ?")
		args = append(args, string(f.Severity))
	}
	if !f.Since.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, f.Since.UTC())
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, event_type, user_id, resource_type, resource_id, action, details, severity, timestamp
		FROM audit_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e        Event
			details  string
			severity string
		)
		if err := rows.Scan(&e.ID, &e.EventType, &e.UserID, &e.ResourceType, &e.ResourceID,
			&e.Action, &details, &severity, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Severity = Severity(severity)
		if details != "" && details != "{}" {
			if err := json.Unmarshal([]byte(details), &e.Details); err != nil {
				r.logger.Debug("audit event details are not valid JSON", zap.Int64("id", e.ID), zap.Error(err))
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Prune deletes events older than before and returns how many were removed.
func (r *Recorder) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM audit_events WHERE timestamp < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune audit events: %w", err)
	}
	return res.RowsAffected()
}
