// Package state persists alarm history and runtime ROI overrides in
// SQLite.
package state

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vzahanych/gesture-guard/internal/logger"
)

// Alarm history kinds, named after the bus events they record
const (
	KindSessionStarted  = "alarm.session_started"
	KindAlarmFired      = "alarm.fired"
	KindAlarmCleared    = "alarm.cleared"
	KindStreamLost      = "stream.lost"
	KindStreamRecovered = "stream.recovered"
)

// AlarmEvent is one row of alarm history
type AlarmEvent struct {
	ID               string    `json:"id"`
	CameraID         int       `json:"camera_id"`
	Kind             string    `json:"kind"`
	ThresholdSeconds int       `json:"threshold_seconds"`
	Level            int       `json:"level"`
	Continuous       bool      `json:"continuous"`
	Played           bool      `json:"played"`
	SessionSeconds   float64   `json:"session_seconds"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// AlarmEventFilter narrows ListAlarmEvents
type AlarmEventFilter struct {
	CameraID *int      // Filter by camera
	Kind     string    // Filter by kind
	Since    time.Time // Events at or after this time
	Limit    int       // Default 100, capped at 1000
	Offset   int
}

// Store manages alarm history persistence
type Store struct {
	db     *Database
	logger *logger.Logger
	mu     sync.RWMutex
}

// NewStore opens (or creates) the database at dbPath
func NewStore(dbPath string, log *logger.Logger) (*Store, error) {
	db, err := NewDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	return &Store{
		db:     db,
		logger: log,
	}, nil
}

// Close closes the store and database
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database answers
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// SaveAlarmEvent inserts an event. A missing ID is generated and a zero
// OccurredAt is set to now; the stored event is returned.
func (s *Store) SaveAlarmEvent(ctx context.Context, event AlarmEvent) (AlarmEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	event.OccurredAt = event.OccurredAt.UTC()

	query := `
		INSERT INTO alarm_events (id, camera_id, kind, threshold_seconds, level, continuous, played, session_seconds, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.GetDB().ExecContext(ctx, query,
		event.ID, event.CameraID, event.Kind, event.ThresholdSeconds, event.Level,
		event.Continuous, event.Played, event.SessionSeconds, event.OccurredAt,
	)
	if err != nil {
		return AlarmEvent{}, fmt.Errorf("failed to save alarm event: %w", err)
	}

	return event, nil
}

// ListAlarmEvents returns matching events newest first, with the total
// number of matches ignoring limit and offset
func (s *Store) ListAlarmEvents(ctx context.Context, filter AlarmEventFilter) ([]AlarmEvent, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	whereClauses := []string{}
	args := []interface{}{}

	if filter.CameraID != nil {
		whereClauses = append(whereClauses, "camera_id = ?")
		args = append(args, *filter.CameraID)
	}
	if filter.Kind != "" {
		whereClauses = append(whereClauses, "kind = ?")
		args = append(args, filter.Kind)
	}
	if !filter.Since.IsZero() {
		whereClauses = append(whereClauses, "occurred_at >= ?")
		args = append(args, filter.Since.UTC())
	}

	whereClause := ""
	if len(whereClauses) > 0 {
		whereClause = "WHERE " + strings.Join(whereClauses, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM alarm_events %s", whereClause)
	if err := s.db.GetDB().QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count alarm events: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, camera_id, kind, threshold_seconds, level, continuous, played, session_seconds, occurred_at
		FROM alarm_events
		%s
		ORDER BY occurred_at DESC, rowid DESC
		LIMIT ? OFFSET ?
	`, whereClause)

	args = append(args, limit, filter.Offset)
	rows, err := s.db.GetDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list alarm events: %w", err)
	}
	defer rows.Close()

	events := make([]AlarmEvent, 0)
	for rows.Next() {
		var ev AlarmEvent
		if err := rows.Scan(
			&ev.ID, &ev.CameraID, &ev.Kind, &ev.ThresholdSeconds, &ev.Level,
			&ev.Continuous, &ev.Played, &ev.SessionSeconds, &ev.OccurredAt,
		); err != nil {
			return nil, 0, err
		}
		events = append(events, ev)
	}

	return events, total, rows.Err()
}

// GetAlarmEvent returns one event, or nil when it does not exist
func (s *Store) GetAlarmEvent(ctx context.Context, id string) (*AlarmEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, camera_id, kind, threshold_seconds, level, continuous, played, session_seconds, occurred_at
		FROM alarm_events
		WHERE id = ?
	`
	var ev AlarmEvent
	err := s.db.GetDB().QueryRowContext(ctx, query, id).Scan(
		&ev.ID, &ev.CameraID, &ev.Kind, &ev.ThresholdSeconds, &ev.Level,
		&ev.Continuous, &ev.Played, &ev.SessionSeconds, &ev.OccurredAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alarm event: %w", err)
	}
	return &ev, nil
}

// CleanupOldEvents removes events older than olderThan
func (s *Store) CleanupOldEvents(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-olderThan).UTC()
	result, err := s.db.GetDB().ExecContext(ctx, `DELETE FROM alarm_events WHERE occurred_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old events: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	s.logger.Debug("Cleaned up old alarm events", "count", rowsAffected)
	return rowsAffected, nil
}
