package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/acme/voice-sales-agent/internal/domain"
	"github.com/acme/voice-sales-agent/internal/provider"
	apperrors "github.com/acme/voice-sales-agent/pkg/errors"
)

var (
	// ErrNotFound indicates the entity was not located.
	ErrNotFound = apperrors.ErrNotFound
	// ErrConflict indicates a unique constraint violation.
	ErrConflict = apperrors.ErrConflict
)

// AgentRepository manages voice agent persistence. Agents are soft
// deactivated, never deleted.
type AgentRepository interface {
	Create(ctx context.Context, agent *domain.VoiceAgent) error
	Get(ctx context.Context, id uuid.UUID) (*domain.VoiceAgent, error)
	Update(ctx context.Context, agent *domain.VoiceAgent) error
	SetVendorAgentID(ctx context.Context, id uuid.UUID, vendorAgentID string) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	List(ctx context.Context, limit int) ([]*domain.VoiceAgent, error)
}

// SessionRepository manages call session rows. Create tolerates a
// concurrent insert for the same vendor call id; ApplyEvent is the only
// mutation path once a session exists.
type SessionRepository interface {
	Create(ctx context.Context, session *domain.CallSession) error
	Get(ctx context.Context, id uuid.UUID) (*domain.CallSession, error)
	GetByVendorCallID(ctx context.Context, vendor domain.Vendor, vendorCallID string) (*domain.CallSession, error)
	SetVendorCall(ctx context.Context, sessionID uuid.UUID, vendorCallID string, status domain.CallStatus) (*domain.CallSession, error)
	ApplyEvent(ctx context.Context, sessionID uuid.UUID, ev provider.Event) (*domain.CallSession, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID, limit int) ([]*domain.CallSession, error)
	ListByStatus(ctx context.Context, status domain.CallStatus, limit int) ([]*domain.CallSession, error)
	ListStale(ctx context.Context, olderThan time.Time, limit int) ([]*domain.CallSession, error)
	MarkFailed(ctx context.Context, sessionID uuid.UUID, reason string) error
}

// QueueRepository manages the outbound attempt queue.
type QueueRepository interface {
	Add(ctx context.Context, entry *domain.QueueEntry) error
	Get(ctx context.Context, id uuid.UUID) (*domain.QueueEntry, error)
	// ClaimNext atomically moves the highest-priority due pending entry
	// to calling and increments its attempt count. Returns ErrNotFound
	// when nothing is due.
	ClaimNext(ctx context.Context, now time.Time) (*domain.QueueEntry, error)
	// RecordResult finalizes an attempt: success completes the entry,
	// failure re-queues it or fails it once attempts are exhausted.
	RecordResult(ctx context.Context, id uuid.UUID, sessionID *uuid.UUID, success bool) error
	// Unclaim reverts a claimed entry to pending and gives the attempt
	// back. Used when a worker claims an entry but cannot dial at all,
	// e.g. the agent is at its concurrency limit.
	Unclaim(ctx context.Context, id uuid.UUID) error
	Cancel(ctx context.Context, id uuid.UUID) error
	ListPending(ctx context.Context, limit int) ([]*domain.QueueEntry, error)
}

// StatsRepository aggregates the dashboard counters.
type StatsRepository interface {
	Collect(ctx context.Context, since time.Time) (*domain.DashboardStats, error)
}

// LeadScoreRepository manages per-customer rolling scores.
type LeadScoreRepository interface {
	Get(ctx context.Context, customerID uuid.UUID) (*domain.LeadScore, error)
}

// CustomerRepository reads CRM customer rows.
type CustomerRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Customer, error)
	Create(ctx context.Context, customer *domain.Customer) error
}

// InteractionRepository reads logged call interactions.
type InteractionRepository interface {
	ListByCustomer(ctx context.Context, customerID uuid.UUID, limit int) ([]*domain.Interaction, error)
}

// ScoreFunc recomputes a lead score in place from one finished session.
type ScoreFunc func(score *domain.LeadScore, session *domain.CallSession)

// OutcomeRecorder applies the after-call bookkeeping for one terminal
// session in a single transaction: claims the interaction_logged flag,
// appends the interaction, recomputes the lead score, and snapshots the
// before/after scores onto the session. A second call for the same
// session is a no-op.
type OutcomeRecorder interface {
	RecordCallOutcome(ctx context.Context, sessionID uuid.UUID, score ScoreFunc) (recorded bool, err error)
}

// CallEventStore appends normalized lifecycle events to the audit log.
type CallEventStore interface {
	Append(ctx context.Context, event domain.CallEvent) error
	ListBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]domain.CallEvent, error)
}
