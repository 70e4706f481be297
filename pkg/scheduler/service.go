// Package scheduler is the time-driven trigger engine: every poll it
// materializes due reminders from standalone rows, recurrence rules, and
// event auto-reminders, and emits notifications to agents and the UI.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/voxos-ai/voxos/pkg/bus"
	"github.com/voxos-ai/voxos/pkg/models"
	"github.com/voxos-ai/voxos/pkg/notify"
)

const (
	// PollInterval is both the loop cadence and the due window: an
	// instance fires when 0 ≤ now − t ≤ PollInterval, so each instance is
	// seen by exactly one poll.
	PollInterval = 30 * time.Second

	source = "scheduler_service"

	// defaultUISession routes reminder UI updates to the primary surface.
	defaultUISession = "user_session_default"
)

// Service is the scheduler process core.
type Service struct {
	store     *Store
	publisher *bus.Publisher
	ui        *notify.Publisher

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService wires the scheduler.
func NewService(store *Store, publisher *bus.Publisher, ui *notify.Publisher) *Service {
	return &Service{store: store, publisher: publisher, ui: ui}
}

// Start launches the poll loop. Safe to call once.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(PollInterval)
		defer ticker.Stop()

		s.checkDueReminders(ctx, time.Now().UTC())
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.checkDueReminders(ctx, time.Now().UTC())
			}
		}
	}()

	slog.Info("Scheduler started", "interval", PollInterval)
}

// Stop cancels the loop and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	slog.Info("Scheduler stopped")
}

func (s *Service) checkDueReminders(ctx context.Context, now time.Time) {
	triggered := 0
	triggered += s.checkStandalone(ctx, now)
	triggered += s.checkRecurring(ctx, now)
	triggered += s.checkEventReminders(ctx, now)
	if triggered > 0 {
		slog.Info("Reminder check complete", "triggered", triggered)
	}
}

// checkStandalone fires and hard-deletes one-shot reminders.
func (s *Service) checkStandalone(ctx context.Context, now time.Time) int {
	reminders, err := s.store.DueStandaloneReminders(ctx, now)
	if err != nil {
		slog.Error("Failed to load standalone reminders", "error", err)
		return 0
	}

	count := 0
	for _, r := range reminders {
		s.emit(ctx, &r, r.TriggerTime, "standalone")
		if err := s.store.DeleteReminder(ctx, r.ID); err != nil {
			slog.Error("Failed to delete fired reminder", "reminder_id", r.ID, "error", err)
		}
		slog.Info("Triggered standalone reminder", "reminder_id", r.ID, "title", r.Title)
		count++
	}
	return count
}

// checkRecurring expands each rule and fires instances inside the window.
// Rows are kept; the recurrence synthesizes future instances.
func (s *Service) checkRecurring(ctx context.Context, now time.Time) int {
	reminders, err := s.store.RecurringReminders(ctx, now)
	if err != nil {
		slog.Error("Failed to load recurring reminders", "error", err)
		return 0
	}

	count := 0
	for _, r := range reminders {
		instances, err := expandRule(r.RecurrenceRule, r.TriggerTime, r.ExceptionDates)
		if err != nil {
			slog.Error("Failed to expand reminder rule", "reminder_id", r.ID, "error", err)
			continue
		}
		for _, instance := range instances {
			if !dueWithinWindow(now, instance, PollInterval) {
				continue
			}
			s.emit(ctx, &r, instance, "standalone_recurring")
			slog.Info("Triggered recurring reminder", "reminder_id", r.ID, "title", r.Title, "instance", instance)
			count++
		}
	}
	return count
}

// checkEventReminders computes virtual reminders from event auto_reminders
// ("N minutes before start") for instances in the next 24 h.
func (s *Service) checkEventReminders(ctx context.Context, now time.Time) int {
	events, err := s.store.EventsWithAutoReminders(ctx, now)
	if err != nil {
		slog.Error("Failed to load events with auto reminders", "error", err)
		return 0
	}

	count := 0
	for _, e := range events {
		instances := []eventInstance{{start: e.StartTime, end: e.EndTime}}
		if e.RecurrenceRule != "" {
			expanded, err := expandEvent(e.RecurrenceRule, e.StartTime, e.EndTime, e.ExceptionDates)
			if err != nil {
				slog.Error("Failed to expand event rule", "event_id", e.ID, "error", err)
				continue
			}
			instances = expanded
		}

		for _, instance := range instances {
			if instance.start.After(now.Add(24 * time.Hour)) {
				continue
			}
			for _, minutesBefore := range e.AutoReminders {
				reminderTime := instance.start.Add(-time.Duration(minutesBefore) * time.Minute)
				if !dueWithinWindow(now, reminderTime, PollInterval) {
					continue
				}
				s.emitEventReminder(ctx, &e, instance, minutesBefore, reminderTime)
				slog.Info("Triggered event reminder", "event_id", e.ID, "title", e.Title, "minutes_before", minutesBefore)
				count++
			}
		}
	}
	return count
}

// emit sends a system_alert to each target agent and a reminder_triggered
// app-interaction to the UI.
func (s *Service) emit(ctx context.Context, r *models.Reminder, instance time.Time, kind string) {
	for _, agent := range r.TargetAgents {
		err := s.publisher.PublishEnvelopeToAgent(ctx, agent, "system_alert", source, models.SystemAlertPayload{
			AlertType:   "REMINDER",
			ReminderID:  fmt.Sprintf("%d", r.ID),
			Title:       r.Title,
			Description: r.Description,
			TriggerTime: instance.Format(time.RFC3339),
			Kind:        kind,
		})
		if err != nil {
			slog.Error("Failed to notify agent of reminder", "agent", agent, "reminder_id", r.ID, "error", err)
		}
	}

	rule := r.RecurrenceRule
	err := s.ui.PublishAppInteraction(ctx, defaultUISession, models.AppInteractionPayload{
		AgentID: "calendar_agent",
		AppName: "reminders_app",
		Action:  "reminder_triggered",
		Result: map[string]any{
			"reminder": map[string]any{
				"id":              fmt.Sprintf("%d", r.ID),
				"title":           r.Title,
				"description":     r.Description,
				"trigger_time":    instance.Format(time.RFC3339),
				"event_id":        nil,
				"event_title":     nil,
				"recurrence_rule": nullableString(rule),
				"target_agents":   r.TargetAgents,
				"created_at":      r.CreatedAt.Format(time.RFC3339),
			},
		},
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		slog.Error("Failed to publish reminder UI update", "reminder_id", r.ID, "error", err)
	}
}

func (s *Service) emitEventReminder(ctx context.Context, e *models.CalendarEvent, instance eventInstance, minutesBefore int, reminderTime time.Time) {
	title := "Reminder: " + e.Title
	description := fmt.Sprintf("%d minutes before event", minutesBefore)

	err := s.publisher.PublishEnvelopeToAgent(ctx, bus.PrimaryAgentID, "system_alert", source, models.SystemAlertPayload{
		AlertType:      "REMINDER",
		EventID:        fmt.Sprintf("%d", e.ID),
		EventTitle:     e.Title,
		Title:          title,
		Description:    description,
		EventStartTime: instance.start.Format(time.RFC3339),
		TriggerTime:    reminderTime.Format(time.RFC3339),
		Kind:           "event_attached",
	})
	if err != nil {
		slog.Error("Failed to notify agent of event reminder", "event_id", e.ID, "error", err)
	}

	err = s.ui.PublishAppInteraction(ctx, defaultUISession, models.AppInteractionPayload{
		AgentID: "calendar_agent",
		AppName: "reminders_app",
		Action:  "reminder_triggered",
		Result: map[string]any{
			"reminder": map[string]any{
				"id":              fmt.Sprintf("event_%d_%dmin", e.ID, minutesBefore),
				"title":           title,
				"description":     description,
				"trigger_time":    reminderTime.Format(time.RFC3339),
				"event_id":        fmt.Sprintf("%d", e.ID),
				"event_title":     e.Title,
				"recurrence_rule": nullableString(e.RecurrenceRule),
				"target_agents":   []string{bus.PrimaryAgentID},
				"created_at":      nil,
			},
		},
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		slog.Error("Failed to publish event reminder UI update", "event_id", e.ID, "error", err)
	}
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
