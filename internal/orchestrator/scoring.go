package orchestrator

import (
	"github.com/acme/voice-sales-agent/internal/domain"
)

// ScorePolicy recomputes a customer's lead score from one finished call
// session. Policies mutate the score in place and must keep every
// bounded field within [0, 100].
type ScorePolicy interface {
	Apply(score *domain.LeadScore, session *domain.CallSession)
}

// HeuristicPolicy is the additive default: sentiment moves the overall
// score by a fixed delta, longer calls earn a duration bonus, and
// positive sentiment additionally lifts interest.
type HeuristicPolicy struct{}

func (HeuristicPolicy) Apply(score *domain.LeadScore, session *domain.CallSession) {
	delta := 0
	if session.Sentiment != nil {
		switch *session.Sentiment {
		case domain.SentimentPositive:
			delta += 20
		case domain.SentimentNegative:
			delta -= 20
		}
	}

	switch {
	case session.DurationSeconds > 180:
		delta += 15
	case session.DurationSeconds > 60:
		delta += 5
	}

	score.OverallScore = domain.ClampScore(score.OverallScore + delta)

	if session.Sentiment != nil && *session.Sentiment == domain.SentimentPositive {
		score.InterestScore = domain.ClampScore(score.InterestScore + 15)
	}

	if session.DetectedLanguage != "" {
		score.PreferredLanguage = session.DetectedLanguage
	}
}
