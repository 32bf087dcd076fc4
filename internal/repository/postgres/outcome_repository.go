package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acme/voice-sales-agent/internal/domain"
	"github.com/acme/voice-sales-agent/internal/repository"
)

// OutcomeRecorder implements repository.OutcomeRecorder. All after-call
// bookkeeping for one terminal session happens in one transaction keyed
// on the interaction_logged flag, so a webhook raced against a status
// poll records the interaction and score change exactly once.
type OutcomeRecorder struct {
	db *sqlx.DB
}

func NewOutcomeRecorder(db *sqlx.DB) *OutcomeRecorder {
	return &OutcomeRecorder{db: db}
}

func (r *OutcomeRecorder) RecordCallOutcome(ctx context.Context, sessionID uuid.UUID, score repository.ScoreFunc) (bool, error) {
	recorded := false
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		session, err := claimSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if session == nil {
			return nil
		}
		recorded = true

		if session.CustomerID == nil {
			// Nothing to score or log against without a CRM record.
			return nil
		}
		customerID := *session.CustomerID

		leadScore, err := lockLeadScore(ctx, tx, customerID)
		if err != nil {
			return err
		}
		before := leadScore.OverallScore
		score(leadScore, session)
		leadScore.LastCalculated = time.Now().UTC()

		if err := updateLeadScore(ctx, tx, leadScore); err != nil {
			return err
		}
		if err := insertInteraction(ctx, tx, customerID, session); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE call_sessions SET lead_score_before = $1, lead_score_after = $2, updated_at = NOW() WHERE id = $3`,
			before, leadScore.OverallScore, sessionID)
		if err != nil {
			return fmt.Errorf("outcome: snapshot scores: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return recorded, nil
}

// claimSession flips interaction_logged for a terminal, not yet logged
// session and returns it. A nil session means there is nothing to do.
func claimSession(ctx context.Context, tx *sqlx.Tx, sessionID uuid.UUID) (*domain.CallSession, error) {
	terminal := "'" + strings.Join(domain.TerminalStatuses(), "','") + "'"
	row := tx.QueryRowxContext(ctx,
		`UPDATE call_sessions SET interaction_logged = TRUE, updated_at = NOW()
		 WHERE id = $1 AND interaction_logged = FALSE AND status IN (`+terminal+`)
		 RETURNING `+sessionColumns,
		sessionID)

	var record sessionRecord
	if err := row.StructScan(&record); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("outcome: claim session: %w", err)
	}
	return record.toDomain()
}

// lockLeadScore loads the customer's score row under a row lock,
// creating the neutral starting row on first contact.
func lockLeadScore(ctx context.Context, tx *sqlx.Tx, customerID uuid.UUID) (*domain.LeadScore, error) {
	fresh := domain.NewLeadScore(customerID)
	_, err := tx.ExecContext(ctx,
		`INSERT INTO lead_scores (customer_id, overall_score, engagement_score, interest_score, urgency_score,
			best_call_time, preferred_language, last_calculated)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (customer_id) DO NOTHING`,
		fresh.CustomerID, fresh.OverallScore, fresh.EngagementScore, fresh.InterestScore, fresh.UrgencyScore,
		fresh.BestCallTime, fresh.PreferredLanguage, fresh.LastCalculated)
	if err != nil {
		return nil, fmt.Errorf("outcome: ensure lead score: %w", err)
	}

	row := tx.QueryRowxContext(ctx,
		`SELECT `+leadScoreColumns+` FROM lead_scores WHERE customer_id = $1 FOR UPDATE`,
		customerID)
	var record leadScoreRecord
	if err := row.StructScan(&record); err != nil {
		return nil, fmt.Errorf("outcome: lock lead score: %w", err)
	}
	score := record.toDomain()
	return &score, nil
}

func updateLeadScore(ctx context.Context, tx *sqlx.Tx, score *domain.LeadScore) error {
	q := `UPDATE lead_scores SET
		overall_score = :overall_score,
		engagement_score = :engagement_score,
		interest_score = :interest_score,
		urgency_score = :urgency_score,
		predicted_outcome = :predicted_outcome,
		conversion_probability = :conversion_probability,
		best_call_time = :best_call_time,
		preferred_language = :preferred_language,
		last_calculated = :last_calculated
	WHERE customer_id = :customer_id`

	params := map[string]any{
		"customer_id":            score.CustomerID,
		"overall_score":          score.OverallScore,
		"engagement_score":       score.EngagementScore,
		"interest_score":         score.InterestScore,
		"urgency_score":          score.UrgencyScore,
		"predicted_outcome":      score.PredictedOutcome,
		"conversion_probability": score.ConversionProbability,
		"best_call_time":         score.BestCallTime,
		"preferred_language":     score.PreferredLanguage,
		"last_calculated":        score.LastCalculated,
	}
	if _, err := tx.NamedExecContext(ctx, q, params); err != nil {
		return fmt.Errorf("outcome: update lead score: %w", err)
	}
	return nil
}

// truncateRunes cuts s to at most max runes. Transcripts carry
// diacritics, so slicing bytes could split a character.
func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

func insertInteraction(ctx context.Context, tx *sqlx.Tx, customerID uuid.UUID, session *domain.CallSession) error {
	subject := fmt.Sprintf("AI Sales Call (%ds)", session.DurationSeconds)
	description := session.Summary
	if description == "" && session.Transcript != "" {
		description = truncateRunes(session.Transcript, 500)
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO interactions (id, customer_id, type, subject, description, created_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())`,
		uuid.New(), customerID, "call", subject, description)
	if err != nil {
		return fmt.Errorf("outcome: insert interaction: %w", err)
	}
	return nil
}
