package callmgr

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/voxos-ai/voxos/pkg/models"
)

// Store persists calls, participants, events, and transcripts. The call
// manager is the only writer; reads are open to the API layer.
type Store struct {
	db *sql.DB
}

// NewStore creates a call store over the shared database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// InsertCall persists a newly created call.
func (s *Store) InsertCall(ctx context.Context, c *models.Call) error {
	metadata, err := json.Marshal(c.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal call metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO calls (call_id, session_id, initiated_by, initial_target,
			current_agent_id, call_status, started_at, ringing_at, metadata,
			twilio_call_sid, caller_phone_number, call_source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), NULLIF($11, ''), $12)`,
		c.CallID, c.SessionID, c.InitiatedBy, c.InitialTarget,
		c.CurrentAgentID, string(c.Status), c.StartedAt, c.RingingAt, metadata,
		c.TwilioCallSID, c.CallerPhoneNumber, string(c.CallSource))
	if err != nil {
		return fmt.Errorf("failed to insert call %s: %w", c.CallID, err)
	}
	return nil
}

// UpdateCall writes the mutable columns of an existing call.
func (s *Store) UpdateCall(ctx context.Context, c *models.Call) error {
	metadata, err := json.Marshal(c.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal call metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE calls SET
			current_agent_id = $1, call_status = $2, connected_at = $3,
			ended_at = $4, end_reason = NULLIF($5, ''), ended_by = NULLIF($6, ''),
			metadata = $7, twilio_call_sid = NULLIF($8, ''),
			caller_phone_number = NULLIF($9, ''), call_source = $10
		WHERE call_id = $11`,
		c.CurrentAgentID, string(c.Status), c.ConnectedAt,
		c.EndedAt, string(c.EndReason), c.EndedBy,
		metadata, c.TwilioCallSID,
		c.CallerPhoneNumber, string(c.CallSource), c.CallID)
	if err != nil {
		return fmt.Errorf("failed to update call %s: %w", c.CallID, err)
	}
	return nil
}

// LogEvent appends an audit row. Rows are never mutated afterwards.
func (s *Store) LogEvent(ctx context.Context, callID uuid.UUID, eventType string, data map[string]any, triggeredBy string) error {
	eventData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO call_events (call_id, event_type, event_data, triggered_by)
		VALUES ($1, $2, $3, $4)`,
		callID, eventType, eventData, triggeredBy)
	if err != nil {
		return fmt.Errorf("failed to log call event: %w", err)
	}
	return nil
}

// AddParticipant opens a participant row for an agent joining the call.
func (s *Store) AddParticipant(ctx context.Context, callID uuid.UUID, agentID string, role models.ParticipantRole, transferredFrom string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO call_participants (call_id, agent_id, role, transferred_from)
		VALUES ($1, $2, $3, NULLIF($4, ''))`,
		callID, agentID, string(role), transferredFrom)
	if err != nil {
		return fmt.Errorf("failed to add participant: %w", err)
	}
	return nil
}

// CloseParticipant stamps left_at on the agent's open participant row.
// Filtering on left_at IS NULL keeps re-entry (answer after transfer back)
// from closing historical rows.
func (s *Store) CloseParticipant(ctx context.Context, callID uuid.UUID, agentID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE call_participants SET left_at = now()
		WHERE call_id = $1 AND agent_id = $2 AND left_at IS NULL`,
		callID, agentID)
	if err != nil {
		return fmt.Errorf("failed to close participant: %w", err)
	}
	return nil
}

// AddTranscript appends a transcript row for a call.
func (s *Store) AddTranscript(ctx context.Context, t *models.CallTranscript) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO call_transcripts
			(call_id, speaker_type, speaker_id, content, audio_file_path, audio_duration_ms, stt_confidence)
		VALUES ($1, $2, NULLIF($3, ''), $4, NULLIF($5, ''), $6, $7)`,
		t.CallID, string(t.SpeakerType), t.SpeakerID, t.Content, t.AudioFilePath, t.AudioDurationMS, t.STTConfidence)
	if err != nil {
		return fmt.Errorf("failed to add transcript: %w", err)
	}
	return nil
}

// ListTranscripts returns a call's transcript rows in time order.
func (s *Store) ListTranscripts(ctx context.Context, callID uuid.UUID) ([]models.CallTranscript, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, call_id, speaker_type, COALESCE(speaker_id, ''), content,
		       COALESCE(audio_file_path, ''), audio_duration_ms, stt_confidence, created_at
		FROM call_transcripts
		WHERE call_id = $1
		ORDER BY created_at ASC`, callID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcripts: %w", err)
	}
	defer rows.Close()

	var out []models.CallTranscript
	for rows.Next() {
		var t models.CallTranscript
		if err := rows.Scan(&t.ID, &t.CallID, &t.SpeakerType, &t.SpeakerID, &t.Content,
			&t.AudioFilePath, &t.AudioDurationMS, &t.STTConfidence, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transcript: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// RestoreActiveCalls loads every non-terminal call so timeouts and
// operations continue across a process restart.
func (s *Store) RestoreActiveCalls(ctx context.Context) ([]*models.Call, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT call_id, session_id, initiated_by, initial_target, current_agent_id,
		       call_status, started_at, ringing_at, connected_at, ended_at, metadata,
		       COALESCE(twilio_call_sid, ''), COALESCE(caller_phone_number, ''), call_source
		FROM calls
		WHERE call_status IN ('ringing_outbound', 'ringing_inbound', 'connected', 'on_hold', 'transferring')`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active calls: %w", err)
	}
	defer rows.Close()

	var out []*models.Call
	for rows.Next() {
		c := &models.Call{}
		var metadata []byte
		if err := rows.Scan(&c.CallID, &c.SessionID, &c.InitiatedBy, &c.InitialTarget, &c.CurrentAgentID,
			&c.Status, &c.StartedAt, &c.RingingAt, &c.ConnectedAt, &c.EndedAt, &metadata,
			&c.TwilioCallSID, &c.CallerPhoneNumber, &c.CallSource); err != nil {
			return nil, fmt.Errorf("failed to scan call: %w", err)
		}
		c.Metadata = map[string]any{}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &c.Metadata); err != nil {
				c.Metadata = map[string]any{}
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
