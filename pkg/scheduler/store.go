package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/voxos-ai/voxos/pkg/models"
)

// Store reads trigger rows and hard-deletes fired one-shot reminders.
type Store struct {
	db *sql.DB
}

// NewStore creates the scheduler store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func scanTextArray(raw string) []string {
	var arr pgtype.FlatArray[pgtype.Text]
	m := pgtype.NewMap()
	if err := m.SQLScanner(&arr).Scan(raw); err != nil {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, t := range arr {
		if t.Valid {
			out = append(out, t.String)
		}
	}
	return out
}

func scanIntArray(raw string) []int {
	var arr pgtype.FlatArray[pgtype.Int4]
	m := pgtype.NewMap()
	if err := m.SQLScanner(&arr).Scan(raw); err != nil {
		return nil
	}
	out := make([]int, 0, len(arr))
	for _, v := range arr {
		if v.Valid {
			out = append(out, int(v.Int32))
		}
	}
	return out
}

func (s *Store) scanReminders(rows *sql.Rows) ([]models.Reminder, error) {
	defer rows.Close()
	var out []models.Reminder
	for rows.Next() {
		var r models.Reminder
		var description sql.NullString
		var rule sql.NullString
		var exceptions, agents string
		var eventID sql.NullInt64
		var createdBy sql.NullString
		if err := rows.Scan(&r.ID, &r.Title, &description, &r.TriggerTime, &rule,
			&exceptions, &agents, &eventID, &createdBy, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reminder: %w", err)
		}
		r.Description = description.String
		r.RecurrenceRule = rule.String
		r.ExceptionDates = scanTextArray(exceptions)
		r.TargetAgents = scanTextArray(agents)
		if eventID.Valid {
			r.EventID = &eventID.Int64
		}
		r.CreatedBy = createdBy.String
		if len(r.TargetAgents) == 0 {
			r.TargetAgents = []string{"primary_agent"}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const reminderColumns = `id, title, description, trigger_time, recurrence_rule,
	exception_dates::text, target_agents::text, event_id, created_by, created_at`

// DueStandaloneReminders returns non-recurring standalone reminders whose
// trigger time has passed.
func (s *Store) DueStandaloneReminders(ctx context.Context, now time.Time) ([]models.Reminder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+reminderColumns+`
		FROM reminders
		WHERE event_id IS NULL AND recurrence_rule IS NULL AND trigger_time <= $1`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query standalone reminders: %w", err)
	}
	return s.scanReminders(rows)
}

// RecurringReminders returns standalone reminders carrying a recurrence
// rule whose series has started.
func (s *Store) RecurringReminders(ctx context.Context, now time.Time) ([]models.Reminder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+reminderColumns+`
		FROM reminders
		WHERE event_id IS NULL AND recurrence_rule IS NOT NULL AND trigger_time <= $1`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query recurring reminders: %w", err)
	}
	return s.scanReminders(rows)
}

// EventsWithAutoReminders returns calendar events that can still spawn
// virtual reminders: non-recurring events starting between 1 h ago and 24 h
// from now, or any recurring event.
func (s *Store) EventsWithAutoReminders(ctx context.Context, now time.Time) ([]models.CalendarEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, start_time, end_time, recurrence_rule,
		       exception_dates::text, auto_reminders::text
		FROM calendar_events
		WHERE cardinality(auto_reminders) > 0
		  AND (recurrence_rule IS NOT NULL OR start_time BETWEEN $1 AND $2)`,
		now.Add(-time.Hour), now.Add(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []models.CalendarEvent
	for rows.Next() {
		var e models.CalendarEvent
		var rule sql.NullString
		var exceptions, autoReminders string
		if err := rows.Scan(&e.ID, &e.Title, &e.StartTime, &e.EndTime, &rule,
			&exceptions, &autoReminders); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.RecurrenceRule = rule.String
		e.ExceptionDates = scanTextArray(exceptions)
		e.AutoReminders = scanIntArray(autoReminders)
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteReminder hard-deletes a fired one-shot reminder.
func (s *Store) DeleteReminder(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete reminder %d: %w", id, err)
	}
	return nil
}
