package orchestrator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acme/voice-sales-agent/internal/domain"
	"github.com/acme/voice-sales-agent/internal/provider"
	"github.com/acme/voice-sales-agent/internal/repository"
	apperrors "github.com/acme/voice-sales-agent/pkg/errors"
	"github.com/acme/voice-sales-agent/pkg/logger"
)

type fakeAgents struct {
	byID map[uuid.UUID]*domain.VoiceAgent
}

func newFakeAgents() *fakeAgents {
	return &fakeAgents{byID: make(map[uuid.UUID]*domain.VoiceAgent)}
}

func (f *fakeAgents) Create(_ context.Context, agent *domain.VoiceAgent) error {
	f.byID[agent.ID] = agent
	return nil
}

func (f *fakeAgents) Get(_ context.Context, id uuid.UUID) (*domain.VoiceAgent, error) {
	agent, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *agent
	return &copied, nil
}

func (f *fakeAgents) Update(_ context.Context, agent *domain.VoiceAgent) error {
	if _, ok := f.byID[agent.ID]; !ok {
		return repository.ErrNotFound
	}
	copied := *agent
	f.byID[agent.ID] = &copied
	return nil
}

func (f *fakeAgents) SetVendorAgentID(_ context.Context, id uuid.UUID, vendorAgentID string) error {
	agent, ok := f.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	agent.VendorAgentID = &vendorAgentID
	return nil
}

func (f *fakeAgents) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	agent, ok := f.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	agent.Active = active
	return nil
}

func (f *fakeAgents) List(_ context.Context, _ int) ([]*domain.VoiceAgent, error) {
	out := make([]*domain.VoiceAgent, 0, len(f.byID))
	for _, agent := range f.byID {
		copied := *agent
		out = append(out, &copied)
	}
	return out, nil
}

type fakeSessions struct {
	byID map[uuid.UUID]*domain.CallSession
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{byID: make(map[uuid.UUID]*domain.CallSession)}
}

func (f *fakeSessions) Create(_ context.Context, session *domain.CallSession) error {
	if session.VendorCallID != nil {
		for _, existing := range f.byID {
			if existing.Vendor == session.Vendor && existing.VendorCallID != nil &&
				*existing.VendorCallID == *session.VendorCallID {
				return repository.ErrConflict
			}
		}
	}
	copied := *session
	f.byID[session.ID] = &copied
	return nil
}

func (f *fakeSessions) Get(_ context.Context, id uuid.UUID) (*domain.CallSession, error) {
	session, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *session
	return &copied, nil
}

func (f *fakeSessions) GetByVendorCallID(_ context.Context, vendor domain.Vendor, vendorCallID string) (*domain.CallSession, error) {
	for _, session := range f.byID {
		if session.Vendor == vendor && session.VendorCallID != nil && *session.VendorCallID == vendorCallID {
			copied := *session
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeSessions) SetVendorCall(_ context.Context, sessionID uuid.UUID, vendorCallID string, status domain.CallStatus) (*domain.CallSession, error) {
	session, ok := f.byID[sessionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	session.VendorCallID = &vendorCallID
	if !session.Status.IsTerminal() {
		session.Status = status
	}
	session.UpdatedAt = time.Now().UTC()
	copied := *session
	return &copied, nil
}

func (f *fakeSessions) ApplyEvent(_ context.Context, sessionID uuid.UUID, ev provider.Event) (*domain.CallSession, error) {
	session, ok := f.byID[sessionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if !session.Status.IsTerminal() {
		session.Status = ev.Status
	}
	if ev.StartedAt != nil && session.StartedAt == nil {
		session.StartedAt = ev.StartedAt
	}
	if ev.EndedAt != nil && session.EndedAt == nil {
		session.EndedAt = ev.EndedAt
	}
	if ev.DurationSeconds != nil && session.DurationSeconds == 0 {
		session.DurationSeconds = *ev.DurationSeconds
	}
	if ev.Transcript != nil && session.Transcript == "" {
		session.Transcript = *ev.Transcript
	}
	if ev.Summary != nil && session.Summary == "" {
		session.Summary = *ev.Summary
	}
	if ev.Sentiment != nil && session.Sentiment == nil {
		session.Sentiment = ev.Sentiment
	}
	if ev.RecordingURL != nil && session.RecordingURL == "" {
		session.RecordingURL = *ev.RecordingURL
	}
	if ev.Cost != nil {
		session.CostAmount = *ev.Cost
	}
	session.UpdatedAt = time.Now().UTC()
	copied := *session
	return &copied, nil
}

func (f *fakeSessions) ListByCustomer(_ context.Context, customerID uuid.UUID, _ int) ([]*domain.CallSession, error) {
	var out []*domain.CallSession
	for _, session := range f.byID {
		if session.CustomerID != nil && *session.CustomerID == customerID {
			copied := *session
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeSessions) ListByStatus(_ context.Context, status domain.CallStatus, _ int) ([]*domain.CallSession, error) {
	var out []*domain.CallSession
	for _, session := range f.byID {
		if session.Status == status {
			copied := *session
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeSessions) ListStale(_ context.Context, olderThan time.Time, _ int) ([]*domain.CallSession, error) {
	var out []*domain.CallSession
	for _, session := range f.byID {
		if !session.Status.IsTerminal() && session.UpdatedAt.Before(olderThan) {
			copied := *session
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeSessions) MarkFailed(_ context.Context, sessionID uuid.UUID, reason string) error {
	session, ok := f.byID[sessionID]
	if !ok {
		return repository.ErrNotFound
	}
	if !session.Status.IsTerminal() {
		session.Status = domain.CallStatusFailed
		session.LastError = &reason
	}
	return nil
}

type fakeCustomers struct {
	byID map[uuid.UUID]*domain.Customer
}

func newFakeCustomers() *fakeCustomers {
	return &fakeCustomers{byID: make(map[uuid.UUID]*domain.Customer)}
}

func (f *fakeCustomers) Get(_ context.Context, id uuid.UUID) (*domain.Customer, error) {
	customer, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *customer
	return &copied, nil
}

func (f *fakeCustomers) Create(_ context.Context, customer *domain.Customer) error {
	copied := *customer
	f.byID[customer.ID] = &copied
	return nil
}

// fakeOutcome mirrors the transactional recorder: first terminal call
// applies the score function and records an interaction, repeats are
// no-ops.
type fakeOutcome struct {
	sessions     *fakeSessions
	scores       map[uuid.UUID]*domain.LeadScore
	interactions int
}

func newFakeOutcome(sessions *fakeSessions) *fakeOutcome {
	return &fakeOutcome{sessions: sessions, scores: make(map[uuid.UUID]*domain.LeadScore)}
}

func (f *fakeOutcome) RecordCallOutcome(_ context.Context, sessionID uuid.UUID, score repository.ScoreFunc) (bool, error) {
	session, ok := f.sessions.byID[sessionID]
	if !ok {
		return false, repository.ErrNotFound
	}
	if session.InteractionLogged || !session.Status.IsTerminal() {
		return false, nil
	}
	session.InteractionLogged = true
	if session.CustomerID == nil {
		return true, nil
	}

	current, ok := f.scores[*session.CustomerID]
	if !ok {
		initial := domain.NewLeadScore(*session.CustomerID)
		current = &initial
		f.scores[*session.CustomerID] = current
	}
	before := current.OverallScore
	score(current, session)
	after := current.OverallScore
	session.LeadScoreBefore = &before
	session.LeadScoreAfter = &after
	f.interactions++
	return true, nil
}

type fakeProvider struct {
	vendor   domain.Vendor
	startErr error
	lastCall provider.CallRequest
	parsed   provider.Event
	polled   provider.Event
	callSeq  int
}

func (f *fakeProvider) Vendor() domain.Vendor { return f.vendor }

func (f *fakeProvider) CreateAgent(_ context.Context, _ provider.AgentRequest) (provider.AgentDescriptor, error) {
	return provider.AgentDescriptor{VendorAgentID: "vendor-agent-1"}, nil
}

func (f *fakeProvider) StartOutboundCall(_ context.Context, req provider.CallRequest) (provider.CallHandle, error) {
	if f.startErr != nil {
		return provider.CallHandle{}, f.startErr
	}
	f.lastCall = req
	f.callSeq++
	return provider.CallHandle{
		VendorCallID:  fmt.Sprintf("vc-%d", f.callSeq),
		InitialStatus: domain.CallStatusInitiated,
	}, nil
}

func (f *fakeProvider) GetCallStatus(_ context.Context, _ string) (provider.Event, error) {
	return f.polled, nil
}

func (f *fakeProvider) ParseWebhook(_ []byte) (provider.Event, error) {
	return f.parsed, nil
}

type fixture struct {
	svc       *Service
	agents    *fakeAgents
	sessions  *fakeSessions
	customers *fakeCustomers
	outcome   *fakeOutcome
	vendor    *fakeProvider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	agents := newFakeAgents()
	sessions := newFakeSessions()
	customers := newFakeCustomers()
	outcome := newFakeOutcome(sessions)
	vendor := &fakeProvider{vendor: domain.VendorVapi}

	registry := provider.NewRegistry()
	registry.Register(vendor, "")

	svc := NewService(Deps{
		Agents:    agents,
		Sessions:  sessions,
		Customers: customers,
		Outcome:   outcome,
		Registry:  registry,
		Logger:    &logger.Logger{Logger: zap.NewNop()},
	})
	return &fixture{svc: svc, agents: agents, sessions: sessions, customers: customers, outcome: outcome, vendor: vendor}
}

func (fx *fixture) seedAgent(t *testing.T) *domain.VoiceAgent {
	t.Helper()
	vendorAgentID := "vendor-agent-1"
	agent := &domain.VoiceAgent{
		ID:              uuid.New(),
		Name:            "sales-de",
		Vendor:          domain.VendorVapi,
		VendorAgentID:   &vendorAgentID,
		PrimaryLanguage: "de",
		PhoneNumber:     "+4930111111",
		Active:          true,
	}
	if err := fx.agents.Create(context.Background(), agent); err != nil {
		t.Fatalf("seed agent: %v", err)
	}
	return agent
}

func (fx *fixture) seedCustomer(t *testing.T, phone string) *domain.Customer {
	t.Helper()
	customer := &domain.Customer{ID: uuid.New(), Name: "Amira", Phone: phone}
	if err := fx.customers.Create(context.Background(), customer); err != nil {
		t.Fatalf("seed customer: %v", err)
	}
	return customer
}

func TestStartCallMissingPhoneCreatesNoSession(t *testing.T) {
	fx := newFixture(t)
	agent := fx.seedAgent(t)
	customer := fx.seedCustomer(t, "")

	_, err := fx.svc.StartCall(context.Background(), agent.ID, customer.ID)
	if !apperrors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(fx.sessions.byID) != 0 {
		t.Fatalf("no session row may exist after a validation failure")
	}
}

func TestStartCallDeactivatedAgent(t *testing.T) {
	fx := newFixture(t)
	agent := fx.seedAgent(t)
	customer := fx.seedCustomer(t, "+38761123456")

	if err := fx.agents.SetActive(context.Background(), agent.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	_, err := fx.svc.StartCall(context.Background(), agent.ID, customer.ID)
	if !apperrors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected validation error for deactivated agent, got %v", err)
	}
}

func TestStartCallAttachesVendorCall(t *testing.T) {
	fx := newFixture(t)
	agent := fx.seedAgent(t)
	customer := fx.seedCustomer(t, "+38761123456")

	session, err := fx.svc.StartCall(context.Background(), agent.ID, customer.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.VendorCallID == nil || *session.VendorCallID != "vc-1" {
		t.Errorf("vendor call id not attached: %v", session.VendorCallID)
	}
	if session.Status != domain.CallStatusRinging {
		t.Errorf("expected status promoted to ringing, got %q", session.Status)
	}
	if fx.vendor.lastCall.PhoneNumber != "+38761123456" {
		t.Errorf("customer phone not passed to vendor: %q", fx.vendor.lastCall.PhoneNumber)
	}
}

func TestStartCallVendorFailureMarksSessionFailed(t *testing.T) {
	fx := newFixture(t)
	agent := fx.seedAgent(t)
	customer := fx.seedCustomer(t, "+38761123456")
	fx.vendor.startErr = &provider.Error{Vendor: domain.VendorVapi, Op: "start call", StatusCode: 500, Body: "boom"}

	_, err := fx.svc.StartCall(context.Background(), agent.ID, customer.ID)
	if err == nil {
		t.Fatalf("expected vendor error")
	}
	if len(fx.sessions.byID) != 1 {
		t.Fatalf("expected the failed session to stay behind, have %d", len(fx.sessions.byID))
	}
	for _, session := range fx.sessions.byID {
		if session.Status != domain.CallStatusFailed {
			t.Errorf("expected failed session, got %q", session.Status)
		}
		if session.LastError == nil {
			t.Errorf("expected failure reason on session")
		}
	}
}

func TestWebhookTerminalRecordsOutcome(t *testing.T) {
	fx := newFixture(t)
	agent := fx.seedAgent(t)
	customer := fx.seedCustomer(t, "+38761123456")

	started, err := fx.svc.StartCall(context.Background(), agent.ID, customer.ID)
	if err != nil {
		t.Fatalf("start call: %v", err)
	}

	positive := domain.SentimentPositive
	duration := 200
	fx.vendor.parsed = provider.Event{
		Vendor:          domain.VendorVapi,
		EventType:       "end-of-call-report",
		VendorCallID:    *started.VendorCallID,
		Status:          domain.CallStatusCompleted,
		DurationSeconds: &duration,
		Sentiment:       &positive,
	}

	updated, err := fx.svc.HandleWebhook(context.Background(), domain.VendorVapi, []byte(`{}`))
	if err != nil {
		t.Fatalf("handle webhook: %v", err)
	}
	if updated.Status != domain.CallStatusCompleted {
		t.Fatalf("expected completed, got %q", updated.Status)
	}
	if updated.LeadScoreBefore == nil || *updated.LeadScoreBefore != 50 {
		t.Errorf("expected before snapshot 50, got %v", updated.LeadScoreBefore)
	}
	if updated.LeadScoreAfter == nil || *updated.LeadScoreAfter != 85 {
		t.Errorf("expected after snapshot 85 (50+20+15), got %v", updated.LeadScoreAfter)
	}

	score := fx.outcome.scores[customer.ID]
	if score == nil || score.InterestScore != 65 {
		t.Errorf("expected interest 65 after positive call, got %+v", score)
	}
}

func TestWebhookDuplicateTerminalIsIdempotent(t *testing.T) {
	fx := newFixture(t)
	agent := fx.seedAgent(t)
	customer := fx.seedCustomer(t, "+38761123456")

	started, err := fx.svc.StartCall(context.Background(), agent.ID, customer.ID)
	if err != nil {
		t.Fatalf("start call: %v", err)
	}

	positive := domain.SentimentPositive
	duration := 200
	fx.vendor.parsed = provider.Event{
		Vendor:          domain.VendorVapi,
		EventType:       "end-of-call-report",
		VendorCallID:    *started.VendorCallID,
		Status:          domain.CallStatusCompleted,
		DurationSeconds: &duration,
		Sentiment:       &positive,
	}

	for i := 0; i < 3; i++ {
		if _, err := fx.svc.HandleWebhook(context.Background(), domain.VendorVapi, []byte(`{}`)); err != nil {
			t.Fatalf("webhook %d: %v", i, err)
		}
	}

	if fx.outcome.interactions != 1 {
		t.Errorf("expected exactly one interaction, got %d", fx.outcome.interactions)
	}
	score := fx.outcome.scores[customer.ID]
	if score == nil || score.OverallScore != 85 {
		t.Errorf("score must be applied once, got %+v", score)
	}
}

func TestWebhookUnknownCallCreatesInboundSession(t *testing.T) {
	fx := newFixture(t)

	from := "+38761123456"
	fx.vendor.parsed = provider.Event{
		Vendor:       domain.VendorVapi,
		EventType:    "status-update",
		VendorCallID: "unknown-call",
		Status:       domain.CallStatusInProgress,
		PhoneFrom:    &from,
	}

	session, err := fx.svc.HandleWebhook(context.Background(), domain.VendorVapi, []byte(`{}`))
	if err != nil {
		t.Fatalf("handle webhook: %v", err)
	}
	if session.Direction != domain.DirectionInbound {
		t.Errorf("expected inbound session, got %q", session.Direction)
	}
	if session.VendorCallID == nil || *session.VendorCallID != "unknown-call" {
		t.Errorf("vendor call id missing: %v", session.VendorCallID)
	}
	if session.Status != domain.CallStatusInProgress {
		t.Errorf("expected in_progress, got %q", session.Status)
	}
}

func TestWebhookMissingCallIDRejected(t *testing.T) {
	fx := newFixture(t)
	fx.vendor.parsed = provider.Event{Vendor: domain.VendorVapi, EventType: "status-update"}

	_, err := fx.svc.HandleWebhook(context.Background(), domain.VendorVapi, []byte(`{}`))
	if !apperrors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestWebhookUnknownVendorRejected(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.svc.HandleWebhook(context.Background(), domain.Vendor("pstn"), []byte(`{}`))
	if !apperrors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTerminalStatusNeverRegresses(t *testing.T) {
	fx := newFixture(t)
	agent := fx.seedAgent(t)
	customer := fx.seedCustomer(t, "+38761123456")

	started, err := fx.svc.StartCall(context.Background(), agent.ID, customer.ID)
	if err != nil {
		t.Fatalf("start call: %v", err)
	}

	fx.vendor.parsed = provider.Event{
		Vendor:       domain.VendorVapi,
		EventType:    "end-of-call-report",
		VendorCallID: *started.VendorCallID,
		Status:       domain.CallStatusCompleted,
	}
	if _, err := fx.svc.HandleWebhook(context.Background(), domain.VendorVapi, []byte(`{}`)); err != nil {
		t.Fatalf("terminal webhook: %v", err)
	}

	// A late status-update for the same call must not reopen it.
	fx.vendor.parsed = provider.Event{
		Vendor:       domain.VendorVapi,
		EventType:    "status-update",
		VendorCallID: *started.VendorCallID,
		Status:       domain.CallStatusInProgress,
	}
	session, err := fx.svc.HandleWebhook(context.Background(), domain.VendorVapi, []byte(`{}`))
	if err != nil {
		t.Fatalf("late webhook: %v", err)
	}
	if session.Status != domain.CallStatusCompleted {
		t.Errorf("terminal status regressed to %q", session.Status)
	}
}

func TestEnqueueNormalizesPriorityAndSchedule(t *testing.T) {
	fx := newFixture(t)
	agent := fx.seedAgent(t)
	customer := fx.seedCustomer(t, "+38761123456")

	queueRepo := &fakeQueue{}
	fx.svc.queueRepo = queueRepo

	entry, err := fx.svc.Enqueue(context.Background(), EnqueueInput{
		AgentID:    agent.ID,
		CustomerID: customer.ID,
		Priority:   42,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if entry.Priority != 5 {
		t.Errorf("out-of-range priority must normalize to 5, got %d", entry.Priority)
	}
	if entry.MaxAttempts != 3 {
		t.Errorf("expected default max attempts 3, got %d", entry.MaxAttempts)
	}
	if entry.Status != domain.QueueStatusPending {
		t.Errorf("expected pending, got %q", entry.Status)
	}

	future := time.Now().UTC().Add(time.Hour)
	scheduled, err := fx.svc.Enqueue(context.Background(), EnqueueInput{
		AgentID:      agent.ID,
		CustomerID:   customer.ID,
		Priority:     1,
		ScheduledFor: &future,
	})
	if err != nil {
		t.Fatalf("enqueue scheduled: %v", err)
	}
	if scheduled.Status != domain.QueueStatusScheduled {
		t.Errorf("future entry must start scheduled, got %q", scheduled.Status)
	}
}

func TestQueueRetryExhaustion(t *testing.T) {
	fx := newFixture(t)
	agent := fx.seedAgent(t)
	customer := fx.seedCustomer(t, "+38761123456")

	queueRepo := &fakeQueue{}
	fx.svc.queueRepo = queueRepo

	entry, err := fx.svc.Enqueue(context.Background(), EnqueueInput{
		AgentID:    agent.ID,
		CustomerID: customer.ID,
		Priority:   1,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	for attempt := 1; attempt <= entry.MaxAttempts; attempt++ {
		claimed, err := fx.svc.ClaimNextQueued(context.Background())
		if err != nil {
			t.Fatalf("claim %d: %v", attempt, err)
		}
		if claimed.ID != entry.ID {
			t.Fatalf("claimed wrong entry: %s", claimed.ID)
		}
		if claimed.Attempts != attempt {
			t.Fatalf("claim %d charged attempts=%d", attempt, claimed.Attempts)
		}
		if err := fx.svc.RecordQueueResult(context.Background(), claimed.ID, nil, false); err != nil {
			t.Fatalf("record failure %d: %v", attempt, err)
		}
	}

	final, err := queueRepo.Get(context.Background(), entry.ID)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if final.Status != domain.QueueStatusFailed {
		t.Errorf("after %d failed attempts the entry must be failed, got %q", entry.MaxAttempts, final.Status)
	}
	if _, err := fx.svc.ClaimNextQueued(context.Background()); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("an exhausted entry must not be claimable again, got %v", err)
	}
}

func TestUnclaimGivesTheAttemptBack(t *testing.T) {
	fx := newFixture(t)
	agent := fx.seedAgent(t)
	customer := fx.seedCustomer(t, "+38761123456")

	queueRepo := &fakeQueue{}
	fx.svc.queueRepo = queueRepo

	entry, err := fx.svc.Enqueue(context.Background(), EnqueueInput{
		AgentID:    agent.ID,
		CustomerID: customer.ID,
		Priority:   1,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// Claim-and-unclaim cycles beyond the attempt budget must leave the
	// entry untouched; only dialed attempts count.
	for i := 0; i < entry.MaxAttempts+2; i++ {
		claimed, err := fx.svc.ClaimNextQueued(context.Background())
		if err != nil {
			t.Fatalf("claim %d: %v", i, err)
		}
		if claimed.Attempts != 1 {
			t.Fatalf("cycle %d: attempts=%d, unclaim did not refund", i, claimed.Attempts)
		}
		if err := fx.svc.UnclaimQueued(context.Background(), claimed.ID); err != nil {
			t.Fatalf("unclaim %d: %v", i, err)
		}
	}

	after, err := queueRepo.Get(context.Background(), entry.ID)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if after.Status != domain.QueueStatusPending {
		t.Errorf("unclaimed entry must be pending again, got %q", after.Status)
	}
	if after.Attempts != 0 {
		t.Errorf("unclaimed entry must keep zero attempts, got %d", after.Attempts)
	}
}

func TestCreateAgentDefaultsSupportedLanguages(t *testing.T) {
	fx := newFixture(t)

	agent, err := fx.svc.CreateAgent(context.Background(), CreateAgentInput{
		Name:   "sales-de",
		Vendor: domain.VendorVapi,
	})
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}
	want := []string{"de", "bs", "sr"}
	if len(agent.SupportedLanguages) != len(want) {
		t.Fatalf("supported languages = %v, want %v", agent.SupportedLanguages, want)
	}
	for i, lang := range want {
		if agent.SupportedLanguages[i] != lang {
			t.Fatalf("supported languages = %v, want %v", agent.SupportedLanguages, want)
		}
	}
}

func TestCreateAgentKeepsPrimaryInSupportedSet(t *testing.T) {
	fx := newFixture(t)

	agent, err := fx.svc.CreateAgent(context.Background(), CreateAgentInput{
		Name:               "sales-bs",
		Vendor:             domain.VendorVapi,
		PrimaryLanguage:    "bs",
		SupportedLanguages: []string{"de", "sr"},
	})
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}
	found := false
	for _, lang := range agent.SupportedLanguages {
		if lang == "bs" {
			found = true
		}
	}
	if !found {
		t.Errorf("primary language missing from supported set: %v", agent.SupportedLanguages)
	}
}

func TestUpdateAgentKeepsLanguagesConsistent(t *testing.T) {
	fx := newFixture(t)
	agent := fx.seedAgent(t)

	updated, err := fx.svc.UpdateAgent(context.Background(), agent.ID, UpdateAgentInput{
		Name:            "sales-sr",
		PrimaryLanguage: "sr",
	})
	if err != nil {
		t.Fatalf("update agent: %v", err)
	}
	if updated.Name != "sales-sr" {
		t.Errorf("name not updated: %q", updated.Name)
	}
	if updated.Vendor != agent.Vendor {
		t.Errorf("vendor must be immutable, got %q", updated.Vendor)
	}
	found := false
	for _, lang := range updated.SupportedLanguages {
		if lang == "sr" {
			found = true
		}
	}
	if !found {
		t.Errorf("new primary language missing from supported set: %v", updated.SupportedLanguages)
	}
	// Untouched fields survive an empty input.
	if updated.PhoneNumber != agent.PhoneNumber {
		t.Errorf("phone number changed unexpectedly: %q", updated.PhoneNumber)
	}
}

type fakeStats struct {
	since time.Time
	out   domain.DashboardStats
}

func (f *fakeStats) Collect(_ context.Context, since time.Time) (*domain.DashboardStats, error) {
	f.since = since
	copied := f.out
	return &copied, nil
}

func TestDashboardStatsBoundsTodayAtUTCMidnight(t *testing.T) {
	fx := newFixture(t)

	stats := &fakeStats{out: domain.DashboardStats{ActiveAgents: 2, CallsToday: 7}}
	fx.svc.stats = stats

	got, err := fx.svc.DashboardStats(context.Background())
	if err != nil {
		t.Fatalf("dashboard stats: %v", err)
	}
	if got.ActiveAgents != 2 || got.CallsToday != 7 {
		t.Errorf("counters not passed through: %+v", got)
	}

	now := time.Now().UTC()
	wantSince := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if !stats.since.Equal(wantSince) {
		t.Errorf("since = %v, want UTC midnight %v", stats.since, wantSince)
	}
}

func TestDashboardStatsUnavailableWithoutRepository(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.svc.DashboardStats(context.Background())
	if !apperrors.Is(err, apperrors.ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

// fakeQueue mirrors the persistent queue contract: claiming charges an
// attempt and flips the entry to calling, a failed result re-queues or
// exhausts it, unclaiming gives the attempt back.
type fakeQueue struct {
	entries []*domain.QueueEntry
}

func (f *fakeQueue) Add(_ context.Context, entry *domain.QueueEntry) error {
	copied := *entry
	f.entries = append(f.entries, &copied)
	return nil
}

func (f *fakeQueue) Get(_ context.Context, id uuid.UUID) (*domain.QueueEntry, error) {
	for _, entry := range f.entries {
		if entry.ID == id {
			copied := *entry
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeQueue) ClaimNext(_ context.Context, now time.Time) (*domain.QueueEntry, error) {
	var best *domain.QueueEntry
	for _, entry := range f.entries {
		if entry.Status != domain.QueueStatusPending && entry.Status != domain.QueueStatusScheduled {
			continue
		}
		if entry.ScheduledFor != nil && entry.ScheduledFor.After(now) {
			continue
		}
		if entry.Attempts >= entry.MaxAttempts {
			continue
		}
		if best == nil || entry.Priority < best.Priority ||
			(entry.Priority == best.Priority && entry.CreatedAt.Before(best.CreatedAt)) {
			best = entry
		}
	}
	if best == nil {
		return nil, repository.ErrNotFound
	}
	claimedAt := now
	best.Status = domain.QueueStatusCalling
	best.Attempts++
	best.LastAttemptAt = &claimedAt
	best.UpdatedAt = now
	copied := *best
	return &copied, nil
}

func (f *fakeQueue) RecordResult(_ context.Context, id uuid.UUID, sessionID *uuid.UUID, success bool) error {
	for _, entry := range f.entries {
		if entry.ID != id || entry.Status != domain.QueueStatusCalling {
			continue
		}
		if sessionID != nil {
			entry.SessionID = sessionID
		}
		switch {
		case success:
			entry.Status = domain.QueueStatusCompleted
		case entry.Attempts >= entry.MaxAttempts:
			entry.Status = domain.QueueStatusFailed
		default:
			entry.Status = domain.QueueStatusPending
		}
		return nil
	}
	return repository.ErrNotFound
}

func (f *fakeQueue) Unclaim(_ context.Context, id uuid.UUID) error {
	for _, entry := range f.entries {
		if entry.ID != id || entry.Status != domain.QueueStatusCalling {
			continue
		}
		entry.Status = domain.QueueStatusPending
		if entry.Attempts > 0 {
			entry.Attempts--
		}
		return nil
	}
	return repository.ErrNotFound
}

func (f *fakeQueue) Cancel(_ context.Context, id uuid.UUID) error {
	for _, entry := range f.entries {
		if entry.ID != id {
			continue
		}
		if entry.Status != domain.QueueStatusPending && entry.Status != domain.QueueStatusScheduled {
			return repository.ErrNotFound
		}
		entry.Status = domain.QueueStatusCancelled
		return nil
	}
	return repository.ErrNotFound
}

func (f *fakeQueue) ListPending(_ context.Context, _ int) ([]*domain.QueueEntry, error) {
	return f.entries, nil
}
