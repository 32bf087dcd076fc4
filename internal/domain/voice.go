package domain

import (
	"time"

	"github.com/google/uuid"
)

// Vendor identifies a hosted voice-call platform.
type Vendor string

const (
	VendorVapi   Vendor = "vapi"
	VendorRetell Vendor = "retell"
	VendorBland  Vendor = "bland"
)

// KnownVendors is the closed set of supported vendors.
var KnownVendors = []Vendor{VendorVapi, VendorRetell, VendorBland}

// Valid reports whether the vendor belongs to the closed set.
func (v Vendor) Valid() bool {
	switch v {
	case VendorVapi, VendorRetell, VendorBland:
		return true
	}
	return false
}

// CallStatus enumerates lifecycle stages of a call session.
type CallStatus string

const (
	CallStatusInitiated  CallStatus = "initiated"
	CallStatusRinging    CallStatus = "ringing"
	CallStatusInProgress CallStatus = "in_progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
	CallStatusNoAnswer   CallStatus = "no_answer"
	CallStatusBusy       CallStatus = "busy"
)

// IsTerminal reports whether the status ends the session lifecycle.
func (s CallStatus) IsTerminal() bool {
	switch s {
	case CallStatusCompleted, CallStatusFailed, CallStatusNoAnswer, CallStatusBusy:
		return true
	}
	return false
}

// TerminalStatuses lists every terminal state, in SQL-friendly string form.
func TerminalStatuses() []string {
	return []string{
		string(CallStatusCompleted),
		string(CallStatusFailed),
		string(CallStatusNoAnswer),
		string(CallStatusBusy),
	}
}

// Direction distinguishes who originated a call.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Sentiment is the vendor- or model-derived overall call sentiment.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// Outcome classifies the sales result of a completed call.
type Outcome string

const (
	OutcomeInterested    Outcome = "interested"
	OutcomeNotInterested Outcome = "not_interested"
	OutcomeCallback      Outcome = "callback"
	OutcomeAppointment   Outcome = "appointment"
	OutcomeSale          Outcome = "sale"
	OutcomeNoDecision    Outcome = "no_decision"
)

// VoiceAgent is a reusable calling persona bound to one vendor account.
type VoiceAgent struct {
	ID                 uuid.UUID
	Name               string
	Vendor             Vendor
	VendorAgentID      *string
	APIKey             string
	PrimaryLanguage    string
	SupportedLanguages []string
	TTSProvider        string
	TTSVoiceID         string
	TTSVoiceName       string
	STTProvider        string
	LLMProvider        string
	LLMModel           string
	SystemPrompt       string
	PhoneNumber        string
	TelephonyProvider  string
	Active             bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// CallSession is one concrete call attempt, inbound or outbound.
type CallSession struct {
	ID                 uuid.UUID
	AgentID            *uuid.UUID
	CustomerID         *uuid.UUID
	VendorCallID       *string
	Vendor             Vendor
	Direction          Direction
	PhoneFrom          string
	PhoneTo            string
	StartedAt          *time.Time
	EndedAt            *time.Time
	DurationSeconds    int
	Status             CallStatus
	DetectedLanguage   string
	Transcript         string
	TranscriptSegments []TranscriptSegment
	Summary            string
	Sentiment          *Sentiment
	SentimentScore     *float64
	Outcome            *Outcome
	NextAction         string
	AppointmentAt      *time.Time
	LeadScoreBefore    *int
	LeadScoreAfter     *int
	RecordingURL       string
	CostAmount         float64
	CostCurrency       string
	LastError          *string
	InteractionLogged  bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// TranscriptSegment is one timestamped utterance within a transcript.
type TranscriptSegment struct {
	Speaker  string  `json:"speaker"`
	Text     string  `json:"text"`
	OffsetMs int64   `json:"offset_ms"`
	Duration float64 `json:"duration_s,omitempty"`
}

// QueueStatus enumerates lifecycle states of a queue entry.
type QueueStatus string

const (
	QueueStatusPending   QueueStatus = "pending"
	QueueStatusScheduled QueueStatus = "scheduled"
	QueueStatusCalling   QueueStatus = "calling"
	QueueStatusCompleted QueueStatus = "completed"
	QueueStatusFailed    QueueStatus = "failed"
	QueueStatusCancelled QueueStatus = "cancelled"
)

// QueueEntry is a scheduled or pending outbound call attempt.
type QueueEntry struct {
	ID            uuid.UUID
	AgentID       uuid.UUID
	CustomerID    uuid.UUID
	Priority      int
	ScheduledFor  *time.Time
	Status        QueueStatus
	Attempts      int
	MaxAttempts   int
	LastAttemptAt *time.Time
	SessionID     *uuid.UUID
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// LeadScore is the rolling per-customer sales assessment.
type LeadScore struct {
	CustomerID            uuid.UUID
	OverallScore          int
	EngagementScore       int
	InterestScore         int
	UrgencyScore          int
	PredictedOutcome      *Outcome
	ConversionProbability *float64
	BestCallTime          string
	PreferredLanguage     string
	LastCalculated        time.Time
}

// NewLeadScore returns the neutral starting score for a customer.
func NewLeadScore(customerID uuid.UUID) LeadScore {
	return LeadScore{
		CustomerID:      customerID,
		OverallScore:    50,
		EngagementScore: 50,
		InterestScore:   50,
		UrgencyScore:    50,
		LastCalculated:  time.Now().UTC(),
	}
}

// ClampScore bounds a score into [0, 100].
func ClampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Customer is the CRM-owned contact record consumed by this service.
type Customer struct {
	ID      uuid.UUID
	Name    string
	Phone   string
	Company string
	Notes   string
}

// Interaction is one entry appended to a customer's CRM history.
type Interaction struct {
	ID          uuid.UUID
	CustomerID  uuid.UUID
	Type        string
	Subject     string
	Description string
	CreatedAt   time.Time
}

// DashboardStats is the aggregate snapshot behind the stats endpoint.
type DashboardStats struct {
	ActiveAgents       int
	TotalCalls         int
	CallsToday         int
	CompletedCalls     int
	AvgDurationSeconds float64
	PendingQueue       int
}

// CallEvent is a raw vendor event retained for audit, partitioned by
// the session it applied to.
type CallEvent struct {
	SessionID    uuid.UUID
	VendorCallID string
	Vendor       Vendor
	EventType    string
	Status       CallStatus
	Payload      []byte
	ReceivedAt   time.Time
}
