package orchestrator

import (
	"testing"

	"github.com/google/uuid"

	"github.com/acme/voice-sales-agent/internal/domain"
)

func sentiment(v domain.Sentiment) *domain.Sentiment {
	return &v
}

func TestHeuristicPolicyPositiveLongCall(t *testing.T) {
	score := domain.NewLeadScore(uuid.New())
	session := &domain.CallSession{
		Sentiment:       sentiment(domain.SentimentPositive),
		DurationSeconds: 200,
	}

	HeuristicPolicy{}.Apply(&score, session)

	if score.OverallScore != 85 {
		t.Errorf("expected overall 85 (50+20+15), got %d", score.OverallScore)
	}
	if score.InterestScore != 65 {
		t.Errorf("expected interest 65 (50+15), got %d", score.InterestScore)
	}
}

func TestHeuristicPolicyMidDurationBonus(t *testing.T) {
	score := domain.NewLeadScore(uuid.New())
	session := &domain.CallSession{
		Sentiment:       sentiment(domain.SentimentPositive),
		DurationSeconds: 125,
	}

	HeuristicPolicy{}.Apply(&score, session)

	if score.OverallScore != 75 {
		t.Errorf("expected overall 75 (50+20+5), got %d", score.OverallScore)
	}
}

func TestHeuristicPolicyNegativeShortCall(t *testing.T) {
	score := domain.NewLeadScore(uuid.New())
	session := &domain.CallSession{
		Sentiment:       sentiment(domain.SentimentNegative),
		DurationSeconds: 30,
	}

	HeuristicPolicy{}.Apply(&score, session)

	if score.OverallScore != 30 {
		t.Errorf("expected overall 30 (50-20), got %d", score.OverallScore)
	}
	if score.InterestScore != 50 {
		t.Errorf("interest must not move on negative sentiment, got %d", score.InterestScore)
	}
}

func TestHeuristicPolicyClampsBounds(t *testing.T) {
	score := domain.NewLeadScore(uuid.New())
	score.OverallScore = 95
	score.InterestScore = 95
	session := &domain.CallSession{
		Sentiment:       sentiment(domain.SentimentPositive),
		DurationSeconds: 300,
	}

	HeuristicPolicy{}.Apply(&score, session)

	if score.OverallScore != 100 {
		t.Errorf("expected overall clamped to 100, got %d", score.OverallScore)
	}
	if score.InterestScore != 100 {
		t.Errorf("expected interest clamped to 100, got %d", score.InterestScore)
	}

	low := domain.NewLeadScore(uuid.New())
	low.OverallScore = 5
	HeuristicPolicy{}.Apply(&low, &domain.CallSession{
		Sentiment:       sentiment(domain.SentimentNegative),
		DurationSeconds: 10,
	})
	if low.OverallScore != 0 {
		t.Errorf("expected overall clamped to 0, got %d", low.OverallScore)
	}
}

func TestHeuristicPolicyNoSentiment(t *testing.T) {
	score := domain.NewLeadScore(uuid.New())
	session := &domain.CallSession{DurationSeconds: 70, DetectedLanguage: "bs"}

	HeuristicPolicy{}.Apply(&score, session)

	if score.OverallScore != 55 {
		t.Errorf("expected overall 55 (50+5), got %d", score.OverallScore)
	}
	if score.PreferredLanguage != "bs" {
		t.Errorf("detected language must carry into preferred language, got %q", score.PreferredLanguage)
	}
}
