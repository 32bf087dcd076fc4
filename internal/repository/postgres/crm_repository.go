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

// CustomerRepository implements repository.CustomerRepository.
type CustomerRepository struct {
	db *sqlx.DB
}

func NewCustomerRepository(db *sqlx.DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

func (r *CustomerRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Customer, error) {
	row := r.db.QueryRowxContext(ctx,
		`SELECT id, name, phone, company, notes FROM customers WHERE id = $1`, id)
	var record customerRecord
	if err := row.StructScan(&record); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("customer repo: get: %w", err)
	}
	customer := record.toDomain()
	return &customer, nil
}

func (r *CustomerRepository) Create(ctx context.Context, customer *domain.Customer) error {
	q := `INSERT INTO customers (id, name, phone, company, notes)
	      VALUES (:id, :name, :phone, :company, :notes)`
	params := map[string]any{
		"id":      customer.ID,
		"name":    customer.Name,
		"phone":   customer.Phone,
		"company": customer.Company,
		"notes":   customer.Notes,
	}
	if _, err := r.db.NamedExecContext(ctx, q, params); err != nil {
		return fmt.Errorf("customer repo: insert: %w", err)
	}
	return nil
}

type customerRecord struct {
	ID      uuid.UUID `db:"id"`
	Name    string    `db:"name"`
	Phone   string    `db:"phone"`
	Company string    `db:"company"`
	Notes   string    `db:"notes"`
}

func (rec customerRecord) toDomain() domain.Customer {
	return domain.Customer(rec)
}

// InteractionRepository implements repository.InteractionRepository.
type InteractionRepository struct {
	db *sqlx.DB
}

func NewInteractionRepository(db *sqlx.DB) *InteractionRepository {
	return &InteractionRepository{db: db}
}

func (r *InteractionRepository) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit int) ([]*domain.Interaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryxContext(ctx,
		`SELECT id, customer_id, type, subject, description, created_at
		 FROM interactions WHERE customer_id = $1
		 ORDER BY created_at DESC LIMIT $2`,
		customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("interaction repo: list: %w", err)
	}
	defer rows.Close()

	var results []*domain.Interaction
	for rows.Next() {
		var record interactionRecord
		if err := rows.StructScan(&record); err != nil {
			return nil, fmt.Errorf("interaction repo: scan: %w", err)
		}
		it := record.toDomain()
		results = append(results, &it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("interaction repo: rows err: %w", err)
	}
	return results, nil
}

type interactionRecord struct {
	ID          uuid.UUID `db:"id"`
	CustomerID  uuid.UUID `db:"customer_id"`
	Type        string    `db:"type"`
	Subject     string    `db:"subject"`
	Description string    `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
}

func (rec interactionRecord) toDomain() domain.Interaction {
	return domain.Interaction(rec)
}

// LeadScoreRepository implements repository.LeadScoreRepository.
type LeadScoreRepository struct {
	db *sqlx.DB
}

func NewLeadScoreRepository(db *sqlx.DB) *LeadScoreRepository {
	return &LeadScoreRepository{db: db}
}

func (r *LeadScoreRepository) Get(ctx context.Context, customerID uuid.UUID) (*domain.LeadScore, error) {
	row := r.db.QueryRowxContext(ctx, `SELECT `+leadScoreColumns+` FROM lead_scores WHERE customer_id = $1`, customerID)
	var record leadScoreRecord
	if err := row.StructScan(&record); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("lead score repo: get: %w", err)
	}
	score := record.toDomain()
	return &score, nil
}

const leadScoreColumns = `customer_id, overall_score, engagement_score, interest_score, urgency_score,
	predicted_outcome, conversion_probability, best_call_time, preferred_language, last_calculated`

type leadScoreRecord struct {
	CustomerID            uuid.UUID       `db:"customer_id"`
	OverallScore          int             `db:"overall_score"`
	EngagementScore       int             `db:"engagement_score"`
	InterestScore         int             `db:"interest_score"`
	UrgencyScore          int             `db:"urgency_score"`
	PredictedOutcome      sql.NullString  `db:"predicted_outcome"`
	ConversionProbability sql.NullFloat64 `db:"conversion_probability"`
	BestCallTime          string          `db:"best_call_time"`
	PreferredLanguage     string          `db:"preferred_language"`
	LastCalculated        time.Time       `db:"last_calculated"`
}

func (rec leadScoreRecord) toDomain() domain.LeadScore {
	score := domain.LeadScore{
		CustomerID:        rec.CustomerID,
		OverallScore:      rec.OverallScore,
		EngagementScore:   rec.EngagementScore,
		InterestScore:     rec.InterestScore,
		UrgencyScore:      rec.UrgencyScore,
		BestCallTime:      rec.BestCallTime,
		PreferredLanguage: rec.PreferredLanguage,
		LastCalculated:    rec.LastCalculated,
	}
	if rec.PredictedOutcome.Valid {
		o := domain.Outcome(rec.PredictedOutcome.String)
		score.PredictedOutcome = &o
	}
	if rec.ConversionProbability.Valid {
		score.ConversionProbability = &rec.ConversionProbability.Float64
	}
	return score
}
