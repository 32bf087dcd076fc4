package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acme/voice-sales-agent/internal/domain"
	"github.com/acme/voice-sales-agent/internal/provider"
	"github.com/acme/voice-sales-agent/internal/repository"
)

// SessionRepository implements repository.SessionRepository using PostgreSQL.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs a new repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a new call session. A concurrent insert for the same
// vendor call id loses the race and gets ErrConflict; the caller then
// re-reads the surviving row.
func (r *SessionRepository) Create(ctx context.Context, session *domain.CallSession) error {
	segments, err := json.Marshal(session.TranscriptSegments)
	if err != nil {
		return fmt.Errorf("session repo: encode segments: %w", err)
	}

	q := `INSERT INTO call_sessions (
		id, agent_id, customer_id, vendor, vendor_call_id, direction, phone_from, phone_to,
		started_at, ended_at, duration_seconds, status, detected_language, transcript,
		transcript_segments, summary, sentiment, sentiment_score, outcome, next_action,
		appointment_at, lead_score_before, lead_score_after, recording_url, cost_amount,
		cost_currency, last_error, interaction_logged, created_at, updated_at
	) VALUES (
		:id, :agent_id, :customer_id, :vendor, :vendor_call_id, :direction, :phone_from, :phone_to,
		:started_at, :ended_at, :duration_seconds, :status, :detected_language, :transcript,
		:transcript_segments, :summary, :sentiment, :sentiment_score, :outcome, :next_action,
		:appointment_at, :lead_score_before, :lead_score_after, :recording_url, :cost_amount,
		:cost_currency, :last_error, :interaction_logged, :created_at, :updated_at
	) ON CONFLICT (vendor, vendor_call_id) DO NOTHING`

	params := map[string]any{
		"id":                  session.ID,
		"agent_id":            session.AgentID,
		"customer_id":         session.CustomerID,
		"vendor":              session.Vendor,
		"vendor_call_id":      session.VendorCallID,
		"direction":           session.Direction,
		"phone_from":          session.PhoneFrom,
		"phone_to":            session.PhoneTo,
		"started_at":          session.StartedAt,
		"ended_at":            session.EndedAt,
		"duration_seconds":    session.DurationSeconds,
		"status":              session.Status,
		"detected_language":   session.DetectedLanguage,
		"transcript":          session.Transcript,
		"transcript_segments": segments,
		"summary":             session.Summary,
		"sentiment":           session.Sentiment,
		"sentiment_score":     session.SentimentScore,
		"outcome":             session.Outcome,
		"next_action":         session.NextAction,
		"appointment_at":      session.AppointmentAt,
		"lead_score_before":   session.LeadScoreBefore,
		"lead_score_after":    session.LeadScoreAfter,
		"recording_url":       session.RecordingURL,
		"cost_amount":         session.CostAmount,
		"cost_currency":       session.CostCurrency,
		"last_error":          session.LastError,
		"interaction_logged":  session.InteractionLogged,
		"created_at":          session.CreatedAt,
		"updated_at":          session.UpdatedAt,
	}

	res, err := r.db.NamedExecContext(ctx, q, params)
	if err != nil {
		return fmt.Errorf("session repo: insert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("session repo: rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrConflict
	}
	return nil
}

const sessionColumns = `id, agent_id, customer_id, vendor, vendor_call_id, direction, phone_from, phone_to,
	started_at, ended_at, duration_seconds, status, detected_language, transcript,
	transcript_segments, summary, sentiment, sentiment_score, outcome, next_action,
	appointment_at, lead_score_before, lead_score_after, recording_url, cost_amount,
	cost_currency, last_error, interaction_logged, created_at, updated_at`

// Get fetches a session by id.
func (r *SessionRepository) Get(ctx context.Context, id uuid.UUID) (*domain.CallSession, error) {
	row := r.db.QueryRowxContext(ctx, `SELECT `+sessionColumns+` FROM call_sessions WHERE id = $1`, id)
	return scanSession(row)
}

// GetByVendorCallID fetches the session a vendor event belongs to.
func (r *SessionRepository) GetByVendorCallID(ctx context.Context, vendor domain.Vendor, vendorCallID string) (*domain.CallSession, error) {
	row := r.db.QueryRowxContext(ctx,
		`SELECT `+sessionColumns+` FROM call_sessions WHERE vendor = $1 AND vendor_call_id = $2`,
		vendor, vendorCallID)
	return scanSession(row)
}

// SetVendorCall attaches the vendor call id returned by a successful
// call start and advances the status, unless the session already went
// terminal in the meantime.
func (r *SessionRepository) SetVendorCall(ctx context.Context, sessionID uuid.UUID, vendorCallID string, status domain.CallStatus) (*domain.CallSession, error) {
	terminal := "'" + strings.Join(domain.TerminalStatuses(), "','") + "'"
	row := r.db.QueryRowxContext(ctx,
		`UPDATE call_sessions SET
			vendor_call_id = $1,
			status = CASE WHEN status IN (`+terminal+`) THEN status ELSE $2 END,
			updated_at = NOW()
		 WHERE id = $3
		 RETURNING `+sessionColumns,
		vendorCallID, status, sessionID)
	return scanSession(row)
}

// ApplyEvent folds one normalized vendor event into the session row in a
// single statement. Status only advances while the row is non-terminal;
// content fields are last-write-wins and only overwritten by non-null
// incoming values, so a duplicate or out-of-order event can never erase
// data or regress a terminal status.
func (r *SessionRepository) ApplyEvent(ctx context.Context, sessionID uuid.UUID, ev provider.Event) (*domain.CallSession, error) {
	terminal := "'" + strings.Join(domain.TerminalStatuses(), "','") + "'"

	q := `UPDATE call_sessions SET
		status = CASE WHEN status IN (` + terminal + `) THEN status ELSE :status END,
		started_at = COALESCE(:started_at, started_at),
		ended_at = COALESCE(:ended_at, ended_at),
		duration_seconds = COALESCE(:duration_seconds, duration_seconds),
		transcript = COALESCE(:transcript, transcript),
		summary = COALESCE(:summary, summary),
		sentiment = COALESCE(:sentiment, sentiment),
		recording_url = COALESCE(:recording_url, recording_url),
		cost_amount = COALESCE(:cost_amount, cost_amount),
		phone_from = COALESCE(:phone_from, phone_from),
		phone_to = COALESCE(:phone_to, phone_to),
		updated_at = NOW()
	WHERE id = :id
	RETURNING ` + sessionColumns

	params := map[string]any{
		"id":               sessionID,
		"status":           ev.Status,
		"started_at":       ev.StartedAt,
		"ended_at":         ev.EndedAt,
		"duration_seconds": ev.DurationSeconds,
		"transcript":       ev.Transcript,
		"summary":          ev.Summary,
		"sentiment":        ev.Sentiment,
		"recording_url":    ev.RecordingURL,
		"cost_amount":      ev.Cost,
		"phone_from":       ev.PhoneFrom,
		"phone_to":         ev.PhoneTo,
	}

	rows, err := sqlx.NamedQueryContext(ctx, r.db, q, params)
	if err != nil {
		return nil, fmt.Errorf("session repo: apply event: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("session repo: apply event: %w", err)
		}
		return nil, repository.ErrNotFound
	}
	var record sessionRecord
	if err := rows.StructScan(&record); err != nil {
		return nil, fmt.Errorf("session repo: scan: %w", err)
	}
	session, err := record.toDomain()
	if err != nil {
		return nil, fmt.Errorf("session repo: %w", err)
	}
	return session, nil
}

// ListByCustomer returns the most recent sessions for a customer.
func (r *SessionRepository) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit int) ([]*domain.CallSession, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryxContext(ctx,
		`SELECT `+sessionColumns+` FROM call_sessions WHERE customer_id = $1 ORDER BY created_at DESC LIMIT $2`,
		customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("session repo: list by customer: %w", err)
	}
	return collectSessions(rows)
}

// ListByStatus returns sessions in a given status.
func (r *SessionRepository) ListByStatus(ctx context.Context, status domain.CallStatus, limit int) ([]*domain.CallSession, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryxContext(ctx,
		`SELECT `+sessionColumns+` FROM call_sessions WHERE status = $1 ORDER BY updated_at ASC LIMIT $2`,
		status, limit)
	if err != nil {
		return nil, fmt.Errorf("session repo: list by status: %w", err)
	}
	return collectSessions(rows)
}

// ListStale returns non-terminal sessions untouched since olderThan,
// oldest first, for the status-poll fallback.
func (r *SessionRepository) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]*domain.CallSession, error) {
	if limit <= 0 {
		limit = 100
	}
	terminal := "'" + strings.Join(domain.TerminalStatuses(), "','") + "'"
	rows, err := r.db.QueryxContext(ctx,
		`SELECT `+sessionColumns+` FROM call_sessions
		 WHERE status NOT IN (`+terminal+`) AND updated_at < $1
		 ORDER BY updated_at ASC LIMIT $2`,
		olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("session repo: list stale: %w", err)
	}
	return collectSessions(rows)
}

// MarkFailed forces a non-terminal session to failed with a reason.
// Terminal sessions are left untouched.
func (r *SessionRepository) MarkFailed(ctx context.Context, sessionID uuid.UUID, reason string) error {
	terminal := "'" + strings.Join(domain.TerminalStatuses(), "','") + "'"
	res, err := r.db.ExecContext(ctx,
		`UPDATE call_sessions SET status = $1, last_error = $2, updated_at = NOW()
		 WHERE id = $3 AND status NOT IN (`+terminal+`)`,
		domain.CallStatusFailed, reason, sessionID)
	if err != nil {
		return fmt.Errorf("session repo: mark failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("session repo: rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanSession(row *sqlx.Row) (*domain.CallSession, error) {
	var record sessionRecord
	if err := row.StructScan(&record); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("session repo: get: %w", err)
	}
	session, err := record.toDomain()
	if err != nil {
		return nil, fmt.Errorf("session repo: %w", err)
	}
	return session, nil
}

func collectSessions(rows *sqlx.Rows) ([]*domain.CallSession, error) {
	defer rows.Close()
	var results []*domain.CallSession
	for rows.Next() {
		var record sessionRecord
		if err := rows.StructScan(&record); err != nil {
			return nil, fmt.Errorf("session repo: scan: %w", err)
		}
		session, err := record.toDomain()
		if err != nil {
			return nil, fmt.Errorf("session repo: %w", err)
		}
		results = append(results, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("session repo: rows err: %w", err)
	}
	return results, nil
}

type sessionRecord struct {
	ID                 uuid.UUID       `db:"id"`
	AgentID            *uuid.UUID      `db:"agent_id"`
	CustomerID         *uuid.UUID      `db:"customer_id"`
	Vendor             string          `db:"vendor"`
	VendorCallID       sql.NullString  `db:"vendor_call_id"`
	Direction          string          `db:"direction"`
	PhoneFrom          string          `db:"phone_from"`
	PhoneTo            string          `db:"phone_to"`
	StartedAt          sql.NullTime    `db:"started_at"`
	EndedAt            sql.NullTime    `db:"ended_at"`
	DurationSeconds    int             `db:"duration_seconds"`
	Status             string          `db:"status"`
	DetectedLanguage   string          `db:"detected_language"`
	Transcript         string          `db:"transcript"`
	TranscriptSegments []byte          `db:"transcript_segments"`
	Summary            string          `db:"summary"`
	Sentiment          sql.NullString  `db:"sentiment"`
	SentimentScore     sql.NullFloat64 `db:"sentiment_score"`
	Outcome            sql.NullString  `db:"outcome"`
	NextAction         string          `db:"next_action"`
	AppointmentAt      sql.NullTime    `db:"appointment_at"`
	LeadScoreBefore    sql.NullInt32   `db:"lead_score_before"`
	LeadScoreAfter     sql.NullInt32   `db:"lead_score_after"`
	RecordingURL       string          `db:"recording_url"`
	CostAmount         float64         `db:"cost_amount"`
	CostCurrency       string          `db:"cost_currency"`
	LastError          sql.NullString  `db:"last_error"`
	InteractionLogged  bool            `db:"interaction_logged"`
	CreatedAt          time.Time       `db:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at"`
}

func (rec sessionRecord) toDomain() (*domain.CallSession, error) {
	session := &domain.CallSession{
		ID:                rec.ID,
		AgentID:           rec.AgentID,
		CustomerID:        rec.CustomerID,
		Vendor:            domain.Vendor(rec.Vendor),
		Direction:         domain.Direction(rec.Direction),
		PhoneFrom:         rec.PhoneFrom,
		PhoneTo:           rec.PhoneTo,
		DurationSeconds:   rec.DurationSeconds,
		Status:            domain.CallStatus(rec.Status),
		DetectedLanguage:  rec.DetectedLanguage,
		Transcript:        rec.Transcript,
		Summary:           rec.Summary,
		NextAction:        rec.NextAction,
		RecordingURL:      rec.RecordingURL,
		CostAmount:        rec.CostAmount,
		CostCurrency:      rec.CostCurrency,
		InteractionLogged: rec.InteractionLogged,
		CreatedAt:         rec.CreatedAt,
		UpdatedAt:         rec.UpdatedAt,
	}
	if rec.VendorCallID.Valid {
		session.VendorCallID = &rec.VendorCallID.String
	}
	if rec.StartedAt.Valid {
		session.StartedAt = &rec.StartedAt.Time
	}
	if rec.EndedAt.Valid {
		session.EndedAt = &rec.EndedAt.Time
	}
	if rec.Sentiment.Valid {
		s := domain.Sentiment(rec.Sentiment.String)
		session.Sentiment = &s
	}
	if rec.SentimentScore.Valid {
		session.SentimentScore = &rec.SentimentScore.Float64
	}
	if rec.Outcome.Valid {
		o := domain.Outcome(rec.Outcome.String)
		session.Outcome = &o
	}
	if rec.AppointmentAt.Valid {
		session.AppointmentAt = &rec.AppointmentAt.Time
	}
	if rec.LeadScoreBefore.Valid {
		v := int(rec.LeadScoreBefore.Int32)
		session.LeadScoreBefore = &v
	}
	if rec.LeadScoreAfter.Valid {
		v := int(rec.LeadScoreAfter.Int32)
		session.LeadScoreAfter = &v
	}
	if rec.LastError.Valid {
		session.LastError = &rec.LastError.String
	}
	if len(rec.TranscriptSegments) > 0 {
		if err := json.Unmarshal(rec.TranscriptSegments, &session.TranscriptSegments); err != nil {
			return nil, fmt.Errorf("decode segments: %w", err)
		}
	}
	return session, nil
}
