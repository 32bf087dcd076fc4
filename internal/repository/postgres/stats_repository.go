package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/acme/voice-sales-agent/internal/domain"
)

// StatsRepository implements repository.StatsRepository using PostgreSQL.
type StatsRepository struct {
	db *sqlx.DB
}

// NewStatsRepository constructs a new repository.
func NewStatsRepository(db *sqlx.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// Collect aggregates the dashboard counts. The since bound scopes the
// calls-today counter; average duration covers completed calls only.
func (r *StatsRepository) Collect(ctx context.Context, since time.Time) (*domain.DashboardStats, error) {
	q := `SELECT
		(SELECT COUNT(*) FROM voice_agents WHERE active)                                AS active_agents,
		(SELECT COUNT(*) FROM call_sessions)                                            AS total_calls,
		(SELECT COUNT(*) FROM call_sessions WHERE created_at >= $1)                     AS calls_today,
		(SELECT COUNT(*) FROM call_sessions WHERE status = $2)                          AS completed_calls,
		(SELECT COALESCE(AVG(duration_seconds), 0) FROM call_sessions WHERE status = $2) AS avg_duration_seconds,
		(SELECT COUNT(*) FROM call_queue WHERE status IN ($3, $4))                      AS pending_queue`

	var record struct {
		ActiveAgents       int     `db:"active_agents"`
		TotalCalls         int     `db:"total_calls"`
		CallsToday         int     `db:"calls_today"`
		CompletedCalls     int     `db:"completed_calls"`
		AvgDurationSeconds float64 `db:"avg_duration_seconds"`
		PendingQueue       int     `db:"pending_queue"`
	}
	row := r.db.QueryRowxContext(ctx, q, since,
		domain.CallStatusCompleted, domain.QueueStatusPending, domain.QueueStatusScheduled)
	if err := row.StructScan(&record); err != nil {
		return nil, fmt.Errorf("stats repo: collect: %w", err)
	}

	return &domain.DashboardStats{
		ActiveAgents:       record.ActiveAgents,
		TotalCalls:         record.TotalCalls,
		CallsToday:         record.CallsToday,
		CompletedCalls:     record.CompletedCalls,
		AvgDurationSeconds: record.AvgDurationSeconds,
		PendingQueue:       record.PendingQueue,
	}, nil
}
