package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acme/voice-sales-agent/internal/domain"
	"github.com/acme/voice-sales-agent/internal/repository"
)

// QueueRepository implements repository.QueueRepository using PostgreSQL.
type QueueRepository struct {
	db *sqlx.DB
}

// NewQueueRepository constructs a new repository.
func NewQueueRepository(db *sqlx.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

// Add inserts a new queue entry.
func (r *QueueRepository) Add(ctx context.Context, entry *domain.QueueEntry) error {
	q := `INSERT INTO call_queue (
		id, agent_id, customer_id, priority, scheduled_for, status,
		attempts, max_attempts, last_attempt_at, session_id, created_at, updated_at
	) VALUES (
		:id, :agent_id, :customer_id, :priority, :scheduled_for, :status,
		:attempts, :max_attempts, :last_attempt_at, :session_id, :created_at, :updated_at
	)`

	params := map[string]any{
		"id":              entry.ID,
		"agent_id":        entry.AgentID,
		"customer_id":     entry.CustomerID,
		"priority":        entry.Priority,
		"scheduled_for":   entry.ScheduledFor,
		"status":          entry.Status,
		"attempts":        entry.Attempts,
		"max_attempts":    entry.MaxAttempts,
		"last_attempt_at": entry.LastAttemptAt,
		"session_id":      entry.SessionID,
		"created_at":      entry.CreatedAt,
		"updated_at":      entry.UpdatedAt,
	}

	if _, err := r.db.NamedExecContext(ctx, q, params); err != nil {
		return fmt.Errorf("queue repo: insert: %w", err)
	}
	return nil
}

const queueColumns = `id, agent_id, customer_id, priority, scheduled_for, status,
	attempts, max_attempts, last_attempt_at, session_id, created_at, updated_at`

// Get fetches a queue entry by id.
func (r *QueueRepository) Get(ctx context.Context, id uuid.UUID) (*domain.QueueEntry, error) {
	row := r.db.QueryRowxContext(ctx, `SELECT `+queueColumns+` FROM call_queue WHERE id = $1`, id)
	var record queueRecord
	if err := row.StructScan(&record); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("queue repo: get: %w", err)
	}
	entry := record.toDomain()
	return &entry, nil
}

// ClaimNext atomically claims the best due entry. The inner select takes
// a row lock with SKIP LOCKED so concurrent workers never claim the same
// entry, and the attempt counter moves in the same statement as the
// status flip.
func (r *QueueRepository) ClaimNext(ctx context.Context, now time.Time) (*domain.QueueEntry, error) {
	q := `UPDATE call_queue SET
		status = $1,
		attempts = attempts + 1,
		last_attempt_at = $2,
		updated_at = $2
	WHERE id = (
		SELECT id FROM call_queue
		WHERE status IN ($3, $4)
		  AND (scheduled_for IS NULL OR scheduled_for <= $2)
		  AND attempts < max_attempts
		ORDER BY priority ASC, created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	)
	RETURNING ` + queueColumns

	row := r.db.QueryRowxContext(ctx, q,
		domain.QueueStatusCalling, now,
		domain.QueueStatusPending, domain.QueueStatusScheduled)

	var record queueRecord
	if err := row.StructScan(&record); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("queue repo: claim next: %w", err)
	}
	entry := record.toDomain()
	return &entry, nil
}

// RecordResult finalizes one claimed attempt. A failed attempt goes back
// to pending while attempts remain, otherwise the entry fails for good.
func (r *QueueRepository) RecordResult(ctx context.Context, id uuid.UUID, sessionID *uuid.UUID, success bool) error {
	var q string
	if success {
		q = `UPDATE call_queue SET
			status = '` + string(domain.QueueStatusCompleted) + `',
			session_id = COALESCE($2, session_id),
			updated_at = NOW()
		WHERE id = $1 AND status = '` + string(domain.QueueStatusCalling) + `'`
	} else {
		q = `UPDATE call_queue SET
			status = CASE WHEN attempts >= max_attempts
				THEN '` + string(domain.QueueStatusFailed) + `'
				ELSE '` + string(domain.QueueStatusPending) + `' END,
			session_id = COALESCE($2, session_id),
			updated_at = NOW()
		WHERE id = $1 AND status = '` + string(domain.QueueStatusCalling) + `'`
	}

	res, err := r.db.ExecContext(ctx, q, id, sessionID)
	if err != nil {
		return fmt.Errorf("queue repo: record result: %w", err)
	}
	return checkAffected(res, "queue repo")
}

// Unclaim reverts a claimed entry to pending and decrements the attempt
// counter ClaimNext charged, so an undialed claim costs nothing.
func (r *QueueRepository) Unclaim(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE call_queue SET
			status = $1,
			attempts = GREATEST(attempts - 1, 0),
			updated_at = NOW()
		 WHERE id = $2 AND status = $3`,
		domain.QueueStatusPending, id, domain.QueueStatusCalling)
	if err != nil {
		return fmt.Errorf("queue repo: unclaim: %w", err)
	}
	return checkAffected(res, "queue repo")
}

// Cancel withdraws an entry that has not been claimed yet.
func (r *QueueRepository) Cancel(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE call_queue SET status = $1, updated_at = NOW()
		 WHERE id = $2 AND status IN ($3, $4)`,
		domain.QueueStatusCancelled, id,
		domain.QueueStatusPending, domain.QueueStatusScheduled)
	if err != nil {
		return fmt.Errorf("queue repo: cancel: %w", err)
	}
	return checkAffected(res, "queue repo")
}

// ListPending returns dequeued-order pending and scheduled entries.
func (r *QueueRepository) ListPending(ctx context.Context, limit int) ([]*domain.QueueEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryxContext(ctx,
		`SELECT `+queueColumns+` FROM call_queue
		 WHERE status IN ($1, $2)
		 ORDER BY priority ASC, created_at ASC LIMIT $3`,
		domain.QueueStatusPending, domain.QueueStatusScheduled, limit)
	if err != nil {
		return nil, fmt.Errorf("queue repo: list pending: %w", err)
	}
	defer rows.Close()

	var results []*domain.QueueEntry
	for rows.Next() {
		var record queueRecord
		if err := rows.StructScan(&record); err != nil {
			return nil, fmt.Errorf("queue repo: scan: %w", err)
		}
		entry := record.toDomain()
		results = append(results, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("queue repo: rows err: %w", err)
	}
	return results, nil
}

type queueRecord struct {
	ID            uuid.UUID    `db:"id"`
	AgentID       uuid.UUID    `db:"agent_id"`
	CustomerID    uuid.UUID    `db:"customer_id"`
	Priority      int          `db:"priority"`
	ScheduledFor  sql.NullTime `db:"scheduled_for"`
	Status        string       `db:"status"`
	Attempts      int          `db:"attempts"`
	MaxAttempts   int          `db:"max_attempts"`
	LastAttemptAt sql.NullTime `db:"last_attempt_at"`
	SessionID     *uuid.UUID   `db:"session_id"`
	CreatedAt     time.Time    `db:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at"`
}

func (rec queueRecord) toDomain() domain.QueueEntry {
	entry := domain.QueueEntry{
		ID:          rec.ID,
		AgentID:     rec.AgentID,
		CustomerID:  rec.CustomerID,
		Priority:    rec.Priority,
		Status:      domain.QueueStatus(rec.Status),
		Attempts:    rec.Attempts,
		MaxAttempts: rec.MaxAttempts,
		SessionID:   rec.SessionID,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
	if rec.ScheduledFor.Valid {
		entry.ScheduledFor = &rec.ScheduledFor.Time
	}
	if rec.LastAttemptAt.Valid {
		entry.LastAttemptAt = &rec.LastAttemptAt.Time
	}
	return entry
}
