package queue

import (
	"time"

	"github.com/google/uuid"
)

// CallEventMessage is the lifecycle event published after every session
// mutation. Downstream consumers (CRM sync, analytics) see one message
// per applied vendor event, keyed by session so ordering holds per call.
type CallEventMessage struct {
	SessionID       uuid.UUID  `json:"session_id"`
	VendorCallID    string     `json:"vendor_call_id,omitempty"`
	Vendor          string     `json:"vendor"`
	EventType       string     `json:"event_type"`
	Status          string     `json:"status"`
	Direction       string     `json:"direction"`
	CustomerID      *uuid.UUID `json:"customer_id,omitempty"`
	AgentID         *uuid.UUID `json:"agent_id,omitempty"`
	DurationSeconds int        `json:"duration_seconds"`
	Sentiment       string     `json:"sentiment,omitempty"`
	Terminal        bool       `json:"terminal"`
	OccurredAt      time.Time  `json:"occurred_at"`
}
