package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acme/voice-sales-agent/internal/domain"
	"github.com/acme/voice-sales-agent/internal/provider"
	"github.com/acme/voice-sales-agent/internal/queue"
	"github.com/acme/voice-sales-agent/internal/repository"
	"github.com/acme/voice-sales-agent/internal/summary"
	apperrors "github.com/acme/voice-sales-agent/pkg/errors"
	"github.com/acme/voice-sales-agent/pkg/logger"
)

// EventSink receives one message per applied vendor event.
type EventSink interface {
	Publish(ctx context.Context, msg queue.CallEventMessage) error
}

// Service owns the call lifecycle: it provisions agents, starts calls,
// folds vendor events into sessions, and applies the after-call CRM
// bookkeeping.
type Service struct {
	agents       repository.AgentRepository
	sessions     repository.SessionRepository
	queueRepo    repository.QueueRepository
	customers    repository.CustomerRepository
	leadScores   repository.LeadScoreRepository
	interactions repository.InteractionRepository
	outcome      repository.OutcomeRecorder
	events       repository.CallEventStore
	stats        repository.StatsRepository
	registry     *provider.Registry
	sink         EventSink
	summarizer   summary.Summarizer
	policy       ScorePolicy
	maxAttempts  int
	log          *logger.Logger
}

// Deps bundles the service dependencies.
type Deps struct {
	Agents       repository.AgentRepository
	Sessions     repository.SessionRepository
	Queue        repository.QueueRepository
	Customers    repository.CustomerRepository
	LeadScores   repository.LeadScoreRepository
	Interactions repository.InteractionRepository
	Outcome      repository.OutcomeRecorder
	Events       repository.CallEventStore
	Stats        repository.StatsRepository
	Registry     *provider.Registry
	Sink         EventSink
	Summarizer   summary.Summarizer
	Policy       ScorePolicy
	MaxAttempts  int
	Logger       *logger.Logger
}

// NewService builds the orchestration service.
func NewService(deps Deps) *Service {
	if deps.Policy == nil {
		deps.Policy = HeuristicPolicy{}
	}
	if deps.Summarizer == nil {
		deps.Summarizer = summary.Noop{}
	}
	if deps.MaxAttempts <= 0 {
		deps.MaxAttempts = 3
	}
	return &Service{
		agents:       deps.Agents,
		sessions:     deps.Sessions,
		queueRepo:    deps.Queue,
		customers:    deps.Customers,
		leadScores:   deps.LeadScores,
		interactions: deps.Interactions,
		outcome:      deps.Outcome,
		events:       deps.Events,
		stats:        deps.Stats,
		registry:     deps.Registry,
		sink:         deps.Sink,
		summarizer:   deps.Summarizer,
		policy:       deps.Policy,
		maxAttempts:  deps.MaxAttempts,
		log:          deps.Logger,
	}
}

// CreateAgentInput carries the fields for a new voice agent.
type CreateAgentInput struct {
	Name               string
	Vendor             domain.Vendor
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
}

// CreateAgent persists a new agent and best-effort provisions it at the
// vendor. Provisioning failure is logged, not returned: the agent stays
// usable once a vendor id is back-filled later.
func (s *Service) CreateAgent(ctx context.Context, input CreateAgentInput) (*domain.VoiceAgent, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("%w: agent name is required", apperrors.ErrValidation)
	}
	if !input.Vendor.Valid() {
		return nil, fmt.Errorf("%w: unsupported vendor %q", apperrors.ErrValidation, input.Vendor)
	}

	language := input.PrimaryLanguage
	if language == "" {
		language = "de"
	}
	prompt := input.SystemPrompt
	if prompt == "" {
		prompt = DefaultSystemPrompt(language)
	}

	applyAgentDefaults(&input)

	now := time.Now().UTC()
	agent := &domain.VoiceAgent{
		ID:                 uuid.New(),
		Name:               input.Name,
		Vendor:             input.Vendor,
		APIKey:             input.APIKey,
		PrimaryLanguage:    language,
		SupportedLanguages: normalizeLanguages(language, input.SupportedLanguages),
		TTSProvider:        input.TTSProvider,
		TTSVoiceID:         input.TTSVoiceID,
		TTSVoiceName:       input.TTSVoiceName,
		STTProvider:        input.STTProvider,
		LLMProvider:        input.LLMProvider,
		LLMModel:           input.LLMModel,
		SystemPrompt:       prompt,
		PhoneNumber:        input.PhoneNumber,
		TelephonyProvider:  input.TelephonyProvider,
		Active:             true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.agents.Create(ctx, agent); err != nil {
		return nil, fmt.Errorf("orchestrator: persist agent: %w", err)
	}

	adapter, err := s.registry.Get(agent.Vendor)
	if err != nil {
		return agent, nil
	}
	descriptor, err := adapter.CreateAgent(ctx, provider.AgentRequest{
		Name:         agent.Name,
		SystemPrompt: agent.SystemPrompt,
		Language:     agent.PrimaryLanguage,
		LLMProvider:  agent.LLMProvider,
		LLMModel:     agent.LLMModel,
		TTSProvider:  agent.TTSProvider,
		TTSVoiceID:   agent.TTSVoiceID,
		STTProvider:  agent.STTProvider,
	})
	if err != nil {
		s.log.Warn("vendor agent provisioning failed",
			zap.String("agent_id", agent.ID.String()), zap.String("vendor", string(agent.Vendor)), zap.Error(err))
		return agent, nil
	}
	if err := s.agents.SetVendorAgentID(ctx, agent.ID, descriptor.VendorAgentID); err != nil {
		return nil, fmt.Errorf("orchestrator: backfill vendor agent id: %w", err)
	}
	agent.VendorAgentID = &descriptor.VendorAgentID
	return agent, nil
}

// normalizeLanguages keeps the primary language inside the supported
// set. An empty set defaults to the languages the prompt table covers.
func normalizeLanguages(primary string, supported []string) []string {
	if len(supported) == 0 {
		supported = []string{"de", "bs", "sr"}
	}
	for _, lang := range supported {
		if lang == primary {
			return supported
		}
	}
	return append(supported, primary)
}

func applyAgentDefaults(input *CreateAgentInput) {
	if input.TTSProvider == "" {
		input.TTSProvider = "elevenlabs"
	}
	if input.STTProvider == "" {
		input.STTProvider = "deepgram"
	}
	if input.LLMProvider == "" {
		input.LLMProvider = "openai"
	}
	if input.LLMModel == "" {
		input.LLMModel = "gpt-4o-mini"
	}
	if input.TelephonyProvider == "" {
		input.TelephonyProvider = "twilio"
	}
}

// GetAgent fetches an agent by id.
func (s *Service) GetAgent(ctx context.Context, id uuid.UUID) (*domain.VoiceAgent, error) {
	return s.agents.Get(ctx, id)
}

// UpdateAgentInput carries the mutable agent fields. Empty fields keep
// their current value.
type UpdateAgentInput struct {
	Name               string
	PrimaryLanguage    string
	SupportedLanguages []string
	TTSVoiceID         string
	TTSVoiceName       string
	LLMModel           string
	SystemPrompt       string
	PhoneNumber        string
}

// UpdateAgent edits an existing agent. The vendor binding is immutable;
// reprovisioning under a new vendor means creating a new agent.
func (s *Service) UpdateAgent(ctx context.Context, id uuid.UUID, input UpdateAgentInput) (*domain.VoiceAgent, error) {
	agent, err := s.agents.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: lookup agent: %w", err)
	}

	if input.Name != "" {
		agent.Name = input.Name
	}
	if input.PrimaryLanguage != "" {
		agent.PrimaryLanguage = input.PrimaryLanguage
	}
	if len(input.SupportedLanguages) > 0 {
		agent.SupportedLanguages = input.SupportedLanguages
	}
	agent.SupportedLanguages = normalizeLanguages(agent.PrimaryLanguage, agent.SupportedLanguages)
	if input.TTSVoiceID != "" {
		agent.TTSVoiceID = input.TTSVoiceID
	}
	if input.TTSVoiceName != "" {
		agent.TTSVoiceName = input.TTSVoiceName
	}
	if input.LLMModel != "" {
		agent.LLMModel = input.LLMModel
	}
	if input.SystemPrompt != "" {
		agent.SystemPrompt = input.SystemPrompt
	}
	if input.PhoneNumber != "" {
		agent.PhoneNumber = input.PhoneNumber
	}
	agent.UpdatedAt = time.Now().UTC()

	if err := s.agents.Update(ctx, agent); err != nil {
		return nil, fmt.Errorf("orchestrator: update agent: %w", err)
	}
	return agent, nil
}

// ListAgents returns known agents.
func (s *Service) ListAgents(ctx context.Context, limit int) ([]*domain.VoiceAgent, error) {
	return s.agents.List(ctx, limit)
}

// DeactivateAgent soft-disables an agent. Sessions keep their references.
func (s *Service) DeactivateAgent(ctx context.Context, id uuid.UUID) error {
	return s.agents.SetActive(ctx, id, false)
}

// StartCall places one outbound call. Validation failures happen before
// any session row exists; a vendor failure leaves a failed session
// behind for audit.
func (s *Service) StartCall(ctx context.Context, agentID, customerID uuid.UUID) (*domain.CallSession, error) {
	agent, err := s.agents.Get(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: lookup agent: %w", err)
	}
	if !agent.Active {
		return nil, fmt.Errorf("%w: agent %s is deactivated", apperrors.ErrValidation, agentID)
	}
	customer, err := s.customers.Get(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: lookup customer: %w", err)
	}
	if customer.Phone == "" {
		return nil, fmt.Errorf("%w: customer %s has no phone number", apperrors.ErrValidation, customerID)
	}

	vendorAgentID := ""
	if agent.VendorAgentID != nil {
		vendorAgentID = *agent.VendorAgentID
	}
	if vendorAgentID == "" {
		return nil, fmt.Errorf("%w: agent %s has no vendor agent id", apperrors.ErrValidation, agentID)
	}

	adapter, err := s.registry.Get(agent.Vendor)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	session := &domain.CallSession{
		ID:               uuid.New(),
		AgentID:          &agent.ID,
		CustomerID:       &customer.ID,
		Vendor:           agent.Vendor,
		Direction:        domain.DirectionOutbound,
		PhoneFrom:        agent.PhoneNumber,
		PhoneTo:          customer.Phone,
		Status:           domain.CallStatusInitiated,
		DetectedLanguage: agent.PrimaryLanguage,
		StartedAt:        &now,
		CostCurrency:     "EUR",
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("orchestrator: persist session: %w", err)
	}

	handle, err := adapter.StartOutboundCall(ctx, provider.CallRequest{
		VendorAgentID: vendorAgentID,
		PhoneNumber:   customer.Phone,
		Language:      agent.PrimaryLanguage,
		Customer:      *customer,
	})
	if err != nil {
		reason := err.Error()
		if mfErr := s.sessions.MarkFailed(ctx, session.ID, reason); mfErr != nil {
			s.log.Error("mark session failed after vendor error",
				zap.String("session_id", session.ID.String()), zap.Error(mfErr))
		}
		return nil, fmt.Errorf("orchestrator: start vendor call: %w", err)
	}

	status := handle.InitialStatus
	if !status.IsTerminal() && status == domain.CallStatusInitiated {
		status = domain.CallStatusRinging
	}
	updated, err := s.sessions.SetVendorCall(ctx, session.ID, handle.VendorCallID, status)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: attach vendor call: %w", err)
	}
	s.log.Info("outbound call started",
		zap.String("session_id", session.ID.String()),
		zap.String("vendor", string(agent.Vendor)),
		zap.String("vendor_call_id", handle.VendorCallID))
	return updated, nil
}

// HandleWebhook folds one raw vendor payload into the owning session,
// creating the session first for vendor-originated (inbound) calls.
func (s *Service) HandleWebhook(ctx context.Context, vendor domain.Vendor, payload []byte) (*domain.CallSession, error) {
	adapter, err := s.registry.Get(vendor)
	if err != nil {
		return nil, err
	}
	ev, err := adapter.ParseWebhook(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}
	if ev.VendorCallID == "" {
		return nil, fmt.Errorf("%w: webhook payload has no call id", apperrors.ErrValidation)
	}
	return s.applyEvent(ctx, ev, payload)
}

// ApplyPolledStatus runs the same pipeline as HandleWebhook for a
// status snapshot fetched via the vendor's query API.
func (s *Service) ApplyPolledStatus(ctx context.Context, session *domain.CallSession) (*domain.CallSession, error) {
	if session.VendorCallID == nil {
		return nil, fmt.Errorf("%w: session %s has no vendor call id", apperrors.ErrValidation, session.ID)
	}
	adapter, err := s.registry.Get(session.Vendor)
	if err != nil {
		return nil, err
	}
	ev, err := adapter.GetCallStatus(ctx, *session.VendorCallID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: poll status: %w", err)
	}
	if ev.VendorCallID == "" {
		ev.VendorCallID = *session.VendorCallID
	}
	return s.applyEvent(ctx, ev, nil)
}

func (s *Service) applyEvent(ctx context.Context, ev provider.Event, rawPayload []byte) (*domain.CallSession, error) {
	session, err := s.sessions.GetByVendorCallID(ctx, ev.Vendor, ev.VendorCallID)
	if err != nil {
		if !apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("orchestrator: lookup session: %w", err)
		}
		session, err = s.createInboundSession(ctx, ev)
		if err != nil {
			return nil, err
		}
	}

	// Enrich a terminal event with a generated summary when the vendor
	// sent a transcript but no summary of its own.
	if ev.Terminal() && ev.Summary == nil && ev.Transcript != nil && session.Summary == "" {
		if text, sumErr := s.summarizer.Summarize(ctx, *ev.Transcript, session.DetectedLanguage); sumErr != nil {
			s.log.Warn("transcript summarization failed",
				zap.String("session_id", session.ID.String()), zap.Error(sumErr))
		} else if text != "" {
			ev.Summary = &text
		}
	}

	updated, err := s.sessions.ApplyEvent(ctx, session.ID, ev)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: apply event: %w", err)
	}

	s.audit(ctx, updated.ID, ev, rawPayload)
	s.publish(ctx, updated, ev)

	if updated.Status.IsTerminal() {
		recorded, err := s.outcome.RecordCallOutcome(ctx, updated.ID, s.policy.Apply)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: record outcome: %w", err)
		}
		if recorded {
			updated, err = s.sessions.Get(ctx, updated.ID)
			if err != nil {
				return nil, fmt.Errorf("orchestrator: reload session: %w", err)
			}
		}
	}
	return updated, nil
}

func (s *Service) createInboundSession(ctx context.Context, ev provider.Event) (*domain.CallSession, error) {
	now := time.Now().UTC()
	session := &domain.CallSession{
		ID:           uuid.New(),
		Vendor:       ev.Vendor,
		VendorCallID: &ev.VendorCallID,
		Direction:    domain.DirectionInbound,
		Status:       domain.CallStatusInitiated,
		CostCurrency: "EUR",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if ev.PhoneFrom != nil {
		session.PhoneFrom = *ev.PhoneFrom
	}
	if ev.PhoneTo != nil {
		session.PhoneTo = *ev.PhoneTo
	}

	err := s.sessions.Create(ctx, session)
	if err == nil {
		s.log.Info("inbound session created",
			zap.String("session_id", session.ID.String()),
			zap.String("vendor", string(ev.Vendor)),
			zap.String("vendor_call_id", ev.VendorCallID))
		return session, nil
	}
	if !apperrors.Is(err, apperrors.ErrConflict) {
		return nil, fmt.Errorf("orchestrator: create inbound session: %w", err)
	}
	// Lost the race against a concurrent webhook; use the survivor.
	session, err = s.sessions.GetByVendorCallID(ctx, ev.Vendor, ev.VendorCallID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: reload inbound session: %w", err)
	}
	return session, nil
}

func (s *Service) audit(ctx context.Context, sessionID uuid.UUID, ev provider.Event, rawPayload []byte) {
	if s.events == nil {
		return
	}
	err := s.events.Append(ctx, domain.CallEvent{
		SessionID:    sessionID,
		VendorCallID: ev.VendorCallID,
		Vendor:       ev.Vendor,
		EventType:    ev.EventType,
		Status:       ev.Status,
		Payload:      rawPayload,
		ReceivedAt:   time.Now().UTC(),
	})
	if err != nil {
		s.log.Warn("event audit append failed", zap.String("session_id", sessionID.String()), zap.Error(err))
	}
}

func (s *Service) publish(ctx context.Context, session *domain.CallSession, ev provider.Event) {
	if s.sink == nil {
		return
	}
	msg := queue.CallEventMessage{
		SessionID:       session.ID,
		Vendor:          string(session.Vendor),
		EventType:       ev.EventType,
		Status:          string(session.Status),
		Direction:       string(session.Direction),
		CustomerID:      session.CustomerID,
		AgentID:         session.AgentID,
		DurationSeconds: session.DurationSeconds,
		Terminal:        session.Status.IsTerminal(),
		OccurredAt:      time.Now().UTC(),
	}
	if session.VendorCallID != nil {
		msg.VendorCallID = *session.VendorCallID
	}
	if session.Sentiment != nil {
		msg.Sentiment = string(*session.Sentiment)
	}
	if err := s.sink.Publish(ctx, msg); err != nil {
		s.log.Warn("event publish failed", zap.String("session_id", session.ID.String()), zap.Error(err))
	}
}

// GetSession fetches one session.
func (s *Service) GetSession(ctx context.Context, id uuid.UUID) (*domain.CallSession, error) {
	return s.sessions.Get(ctx, id)
}

// ListSessionsByStatus returns sessions currently in the given state.
func (s *Service) ListSessionsByStatus(ctx context.Context, status domain.CallStatus, limit int) ([]*domain.CallSession, error) {
	return s.sessions.ListByStatus(ctx, status, limit)
}

// DashboardStats aggregates the operational counters. Calls-today is
// bounded at UTC midnight.
func (s *Service) DashboardStats(ctx context.Context) (*domain.DashboardStats, error) {
	if s.stats == nil {
		return nil, fmt.Errorf("%w: stats not configured", apperrors.ErrUnavailable)
	}
	now := time.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return s.stats.Collect(ctx, midnight)
}

// ListSessionsByCustomer returns the customer's call history.
func (s *Service) ListSessionsByCustomer(ctx context.Context, customerID uuid.UUID, limit int) ([]*domain.CallSession, error) {
	return s.sessions.ListByCustomer(ctx, customerID, limit)
}

// SessionEvents returns the audit trail for one session.
func (s *Service) SessionEvents(ctx context.Context, sessionID uuid.UUID, limit int) ([]domain.CallEvent, error) {
	if s.events == nil {
		return nil, nil
	}
	return s.events.ListBySession(ctx, sessionID, limit)
}

// GetLeadScore returns the customer's score, or the neutral starting
// score when no call has been scored yet.
func (s *Service) GetLeadScore(ctx context.Context, customerID uuid.UUID) (*domain.LeadScore, error) {
	score, err := s.leadScores.Get(ctx, customerID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			fresh := domain.NewLeadScore(customerID)
			return &fresh, nil
		}
		return nil, err
	}
	return score, nil
}

// CustomerHistory returns logged interactions for a customer.
func (s *Service) CustomerHistory(ctx context.Context, customerID uuid.UUID, limit int) ([]*domain.Interaction, error) {
	return s.interactions.ListByCustomer(ctx, customerID, limit)
}

// EnqueueInput carries the fields for a queued outbound attempt.
type EnqueueInput struct {
	AgentID      uuid.UUID
	CustomerID   uuid.UUID
	Priority     int
	ScheduledFor *time.Time
	MaxAttempts  int
}

// Enqueue adds a pending outbound attempt to the call queue.
func (s *Service) Enqueue(ctx context.Context, input EnqueueInput) (*domain.QueueEntry, error) {
	if _, err := s.agents.Get(ctx, input.AgentID); err != nil {
		return nil, fmt.Errorf("orchestrator: lookup agent: %w", err)
	}
	customer, err := s.customers.Get(ctx, input.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: lookup customer: %w", err)
	}
	if customer.Phone == "" {
		return nil, fmt.Errorf("%w: customer %s has no phone number", apperrors.ErrValidation, input.CustomerID)
	}

	priority := input.Priority
	if priority < 1 || priority > 10 {
		priority = 5
	}
	maxAttempts := input.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = s.maxAttempts
	}

	now := time.Now().UTC()
	status := domain.QueueStatusPending
	if input.ScheduledFor != nil && input.ScheduledFor.After(now) {
		status = domain.QueueStatusScheduled
	}

	entry := &domain.QueueEntry{
		ID:           uuid.New(),
		AgentID:      input.AgentID,
		CustomerID:   input.CustomerID,
		Priority:     priority,
		ScheduledFor: input.ScheduledFor,
		Status:       status,
		MaxAttempts:  maxAttempts,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.queueRepo.Add(ctx, entry); err != nil {
		return nil, fmt.Errorf("orchestrator: enqueue: %w", err)
	}
	return entry, nil
}

// ClaimNextQueued hands the next due queue entry to a worker.
func (s *Service) ClaimNextQueued(ctx context.Context) (*domain.QueueEntry, error) {
	return s.queueRepo.ClaimNext(ctx, time.Now().UTC())
}

// RecordQueueResult finalizes one claimed queue attempt.
func (s *Service) RecordQueueResult(ctx context.Context, entryID uuid.UUID, sessionID *uuid.UUID, success bool) error {
	return s.queueRepo.RecordResult(ctx, entryID, sessionID, success)
}

// UnclaimQueued hands a claimed entry back without charging an attempt.
func (s *Service) UnclaimQueued(ctx context.Context, entryID uuid.UUID) error {
	return s.queueRepo.Unclaim(ctx, entryID)
}

// CancelQueued withdraws an unclaimed queue entry.
func (s *Service) CancelQueued(ctx context.Context, entryID uuid.UUID) error {
	return s.queueRepo.Cancel(ctx, entryID)
}

// ListQueue returns the pending queue in dequeue order.
func (s *Service) ListQueue(ctx context.Context, limit int) ([]*domain.QueueEntry, error) {
	return s.queueRepo.ListPending(ctx, limit)
}
