package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"github.com/acme/voice-sales-agent/internal/domain"
)

// EventStore keeps the append-only audit log of normalized vendor
// events in Scylla, partitioned by session.
type EventStore struct {
	session *gocql.Session
}

// NewEventStore creates a new event store.
func NewEventStore(session *gocql.Session) *EventStore {
	return &EventStore{session: session}
}

// Append writes one event row. Events are immutable once written.
func (s *EventStore) Append(ctx context.Context, event domain.CallEvent) error {
	receivedAt := event.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	if err := s.session.Query(`INSERT INTO events_by_session (session_id, received_at, event_id, vendor, vendor_call_id, event_type, status, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.SessionID.String(), receivedAt, gocql.TimeUUID(),
		string(event.Vendor), event.VendorCallID, event.EventType, string(event.Status), event.Payload,
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("event store: insert events_by_session: %w", err)
	}
	return nil
}

// ListBySession returns events for one session in arrival order.
func (s *EventStore) ListBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]domain.CallEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	iter := s.session.Query(`SELECT received_at, vendor, vendor_call_id, event_type, status, payload
		FROM events_by_session WHERE session_id = ? LIMIT ?`,
		sessionID.String(), limit,
	).WithContext(ctx).Iter()

	var results []domain.CallEvent
	var (
		receivedAt   time.Time
		vendor       string
		vendorCallID string
		eventType    string
		status       string
		payload      []byte
	)
	for iter.Scan(&receivedAt, &vendor, &vendorCallID, &eventType, &status, &payload) {
		buf := make([]byte, len(payload))
		copy(buf, payload)
		results = append(results, domain.CallEvent{
			SessionID:    sessionID,
			VendorCallID: vendorCallID,
			Vendor:       domain.Vendor(vendor),
			EventType:    eventType,
			Status:       domain.CallStatus(status),
			Payload:      buf,
			ReceivedAt:   receivedAt,
		})
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("event store: list events_by_session: %w", err)
	}
	return results, nil
}
