package telephony

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Store holds the adapter's database access: the phone whitelist and the
// carrier columns on call rows.
type Store struct {
	db *sql.DB
}

// NewStore creates the adapter store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// IsPhoneNumberAllowed checks the inbound whitelist.
func (s *Store) IsPhoneNumberAllowed(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM allowed_phone_numbers WHERE phone_number = $1)`,
		number).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("whitelist lookup failed: %w", err)
	}
	return exists, nil
}

// AllowedNumberDisplayName returns the whitelist display name, or "" when
// absent.
func (s *Store) AllowedNumberDisplayName(ctx context.Context, number string) (string, error) {
	var name sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT display_name FROM allowed_phone_numbers WHERE phone_number = $1`,
		number).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("whitelist info lookup failed: %w", err)
	}
	return name.String, nil
}

// UpdateCallCarrierInfo stamps carrier identifiers onto a call row once the
// media stream reveals them.
func (s *Store) UpdateCallCarrierInfo(ctx context.Context, callID, twilioCallSID, callerNumber, callSource string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE calls SET
			twilio_call_sid = $1,
			caller_phone_number = COALESCE(NULLIF($2, ''), caller_phone_number),
			call_source = $3
		WHERE call_id = $4`,
		twilioCallSID, callerNumber, callSource, callID)
	if err != nil {
		return fmt.Errorf("failed to update carrier info for call %s: %w", callID, err)
	}
	return nil
}

// CallBySID returns (call_id, session_id) for a carrier SID, or empty
// strings when unknown.
func (s *Store) CallBySID(ctx context.Context, twilioCallSID string) (callID, sessionID string, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT call_id, session_id FROM calls WHERE twilio_call_sid = $1 ORDER BY started_at DESC LIMIT 1`,
		twilioCallSID).Scan(&callID, &sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("call lookup by SID failed: %w", err)
	}
	return callID, sessionID, nil
}
