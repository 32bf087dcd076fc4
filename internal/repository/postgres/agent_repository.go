package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/acme/voice-sales-agent/internal/domain"
	"github.com/acme/voice-sales-agent/internal/repository"
)

// AgentRepository implements repository.AgentRepository using PostgreSQL.
type AgentRepository struct {
	db *sqlx.DB
}

// NewAgentRepository constructs a new repository.
func NewAgentRepository(db *sqlx.DB) *AgentRepository {
	return &AgentRepository{db: db}
}

// Create inserts a new voice agent.
func (r *AgentRepository) Create(ctx context.Context, agent *domain.VoiceAgent) error {
	q := `INSERT INTO voice_agents (
		id, name, vendor, vendor_agent_id, api_key, primary_language, supported_languages,
		tts_provider, tts_voice_id, tts_voice_name, stt_provider, llm_provider, llm_model,
		system_prompt, phone_number, telephony_provider, active, created_at, updated_at
	) VALUES (
		:id, :name, :vendor, :vendor_agent_id, :api_key, :primary_language, :supported_languages,
		:tts_provider, :tts_voice_id, :tts_voice_name, :stt_provider, :llm_provider, :llm_model,
		:system_prompt, :phone_number, :telephony_provider, :active, :created_at, :updated_at
	)`

	params := map[string]any{
		"id":                  agent.ID,
		"name":                agent.Name,
		"vendor":              agent.Vendor,
		"vendor_agent_id":     agent.VendorAgentID,
		"api_key":             agent.APIKey,
		"primary_language":    agent.PrimaryLanguage,
		"supported_languages": pq.StringArray(agent.SupportedLanguages),
		"tts_provider":        agent.TTSProvider,
		"tts_voice_id":        agent.TTSVoiceID,
		"tts_voice_name":      agent.TTSVoiceName,
		"stt_provider":        agent.STTProvider,
		"llm_provider":        agent.LLMProvider,
		"llm_model":           agent.LLMModel,
		"system_prompt":       agent.SystemPrompt,
		"phone_number":        agent.PhoneNumber,
		"telephony_provider":  agent.TelephonyProvider,
		"active":              agent.Active,
		"created_at":          agent.CreatedAt,
		"updated_at":          agent.UpdatedAt,
	}

	if _, err := r.db.NamedExecContext(ctx, q, params); err != nil {
		return fmt.Errorf("agent repo: insert: %w", err)
	}
	return nil
}

const agentColumns = `id, name, vendor, vendor_agent_id, api_key, primary_language, supported_languages,
	tts_provider, tts_voice_id, tts_voice_name, stt_provider, llm_provider, llm_model,
	system_prompt, phone_number, telephony_provider, active, created_at, updated_at`

// Get fetches an agent by id.
func (r *AgentRepository) Get(ctx context.Context, id uuid.UUID) (*domain.VoiceAgent, error) {
	row := r.db.QueryRowxContext(ctx, `SELECT `+agentColumns+` FROM voice_agents WHERE id = $1`, id)
	var record agentRecord
	if err := row.StructScan(&record); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("agent repo: get: %w", err)
	}
	agent := record.toDomain()
	return &agent, nil
}

// Update persists the mutable agent fields. The vendor binding and
// creation time stay untouched.
func (r *AgentRepository) Update(ctx context.Context, agent *domain.VoiceAgent) error {
	q := `UPDATE voice_agents SET
		name = :name,
		primary_language = :primary_language,
		supported_languages = :supported_languages,
		tts_voice_id = :tts_voice_id,
		tts_voice_name = :tts_voice_name,
		llm_model = :llm_model,
		system_prompt = :system_prompt,
		phone_number = :phone_number,
		updated_at = :updated_at
	WHERE id = :id`

	params := map[string]any{
		"id":                  agent.ID,
		"name":                agent.Name,
		"primary_language":    agent.PrimaryLanguage,
		"supported_languages": pq.StringArray(agent.SupportedLanguages),
		"tts_voice_id":        agent.TTSVoiceID,
		"tts_voice_name":      agent.TTSVoiceName,
		"llm_model":           agent.LLMModel,
		"system_prompt":       agent.SystemPrompt,
		"phone_number":        agent.PhoneNumber,
		"updated_at":          agent.UpdatedAt,
	}

	res, err := r.db.NamedExecContext(ctx, q, params)
	if err != nil {
		return fmt.Errorf("agent repo: update: %w", err)
	}
	return checkAffected(res, "agent repo")
}

// SetVendorAgentID back-fills the vendor-side id after provisioning.
func (r *AgentRepository) SetVendorAgentID(ctx context.Context, id uuid.UUID, vendorAgentID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE voice_agents SET vendor_agent_id = $1, updated_at = NOW() WHERE id = $2`,
		vendorAgentID, id)
	if err != nil {
		return fmt.Errorf("agent repo: set vendor agent id: %w", err)
	}
	return checkAffected(res, "agent repo")
}

// SetActive toggles the agent without deleting it.
func (r *AgentRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE voice_agents SET active = $1, updated_at = NOW() WHERE id = $2`,
		active, id)
	if err != nil {
		return fmt.Errorf("agent repo: set active: %w", err)
	}
	return checkAffected(res, "agent repo")
}

// List returns agents ordered by creation time.
func (r *AgentRepository) List(ctx context.Context, limit int) ([]*domain.VoiceAgent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryxContext(ctx,
		`SELECT `+agentColumns+` FROM voice_agents ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("agent repo: list: %w", err)
	}
	defer rows.Close()

	var results []*domain.VoiceAgent
	for rows.Next() {
		var record agentRecord
		if err := rows.StructScan(&record); err != nil {
			return nil, fmt.Errorf("agent repo: scan: %w", err)
		}
		agent := record.toDomain()
		results = append(results, &agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("agent repo: rows err: %w", err)
	}
	return results, nil
}

func checkAffected(res sql.Result, label string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", label, err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

type agentRecord struct {
	ID                 uuid.UUID      `db:"id"`
	Name               string         `db:"name"`
	Vendor             string         `db:"vendor"`
	VendorAgentID      sql.NullString `db:"vendor_agent_id"`
	APIKey             string         `db:"api_key"`
	PrimaryLanguage    string         `db:"primary_language"`
	SupportedLanguages pq.StringArray `db:"supported_languages"`
	TTSProvider        string         `db:"tts_provider"`
	TTSVoiceID         string         `db:"tts_voice_id"`
	TTSVoiceName       string         `db:"tts_voice_name"`
	STTProvider        string         `db:"stt_provider"`
	LLMProvider        string         `db:"llm_provider"`
	LLMModel           string         `db:"llm_model"`
	SystemPrompt       string         `db:"system_prompt"`
	PhoneNumber        string         `db:"phone_number"`
	TelephonyProvider  string         `db:"telephony_provider"`
	Active             bool           `db:"active"`
	CreatedAt          time.Time      `db:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"`
}

func (rec agentRecord) toDomain() domain.VoiceAgent {
	agent := domain.VoiceAgent{
		ID:                 rec.ID,
		Name:               rec.Name,
		Vendor:             domain.Vendor(rec.Vendor),
		APIKey:             rec.APIKey,
		PrimaryLanguage:    rec.PrimaryLanguage,
		SupportedLanguages: []string(rec.SupportedLanguages),
		TTSProvider:        rec.TTSProvider,
		TTSVoiceID:         rec.TTSVoiceID,
		TTSVoiceName:       rec.TTSVoiceName,
		STTProvider:        rec.STTProvider,
		LLMProvider:        rec.LLMProvider,
		LLMModel:           rec.LLMModel,
		SystemPrompt:       rec.SystemPrompt,
		PhoneNumber:        rec.PhoneNumber,
		TelephonyProvider:  rec.TelephonyProvider,
		Active:             rec.Active,
		CreatedAt:          rec.CreatedAt,
		UpdatedAt:          rec.UpdatedAt,
	}
	if rec.VendorAgentID.Valid {
		agent.VendorAgentID = &rec.VendorAgentID.String
	}
	return agent
}
