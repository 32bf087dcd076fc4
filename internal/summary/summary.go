package summary

import "context"

// Summarizer condenses a call transcript into a short summary when the
// vendor did not supply one. Implementations are best-effort; a failure
// never blocks call processing.
type Summarizer interface {
	Summarize(ctx context.Context, transcript, language string) (string, error)
}

// Noop returns no summary. Used when summarization is disabled.
type Noop struct{}

func (Noop) Summarize(context.Context, string, string) (string, error) {
	return "", nil
}
