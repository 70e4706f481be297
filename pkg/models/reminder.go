package models

import "time"

// Reminder is a standalone reminder row. Non-recurring reminders are
// hard-deleted once fired; recurring reminders stay and have instances
// synthesized from the recurrence rule at each poll.
type Reminder struct {
	ID             int64      `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	TriggerTime    time.Time  `json:"trigger_time"`
	RecurrenceRule string     `json:"recurrence_rule,omitempty"`
	ExceptionDates []string   `json:"exception_dates"` // ISO dates (YYYY-MM-DD)
	TargetAgents   []string   `json:"target_agents"`
	EventID        *int64     `json:"event_id,omitempty"`
	CreatedBy      string     `json:"created_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Recurring reports whether the reminder expands into instances.
func (r *Reminder) Recurring() bool { return r.RecurrenceRule != "" }

// CalendarEvent is an event whose AutoReminders spawn virtual reminders
// ("N minutes before start") without their own rows.
type CalendarEvent struct {
	ID             int64     `json:"id"`
	Title          string    `json:"title"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	RecurrenceRule string    `json:"recurrence_rule,omitempty"`
	ExceptionDates []string  `json:"exception_dates"`
	AutoReminders  []int     `json:"auto_reminders"` // minutes before start
}
