package poll

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/voice-sales-agent/internal/app"
	"github.com/acme/voice-sales-agent/pkg/logger"
)

// Worker reconciles sessions whose webhooks never arrived. It polls the
// vendor for stale non-terminal sessions and fails sessions that stay
// silent past the deadline.
type Worker struct {
	container *app.Container
}

// New creates a status poll worker.
func New(container *app.Container) *Worker {
	return &Worker{container: container}
}

// Run polls until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	cfg := w.container.Config.Poll
	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger := w.container.Logger.Named("statuspoller")
	logger.Info("status poller started",
		zap.Duration("interval", interval),
		zap.Duration("stale_after", cfg.StaleAfter),
		zap.Duration("deadline", cfg.Deadline))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.sweep(ctx, logger)
		}
	}
}

func (w *Worker) sweep(ctx context.Context, logger *logger.Logger) {
	cfg := w.container.Config.Poll
	staleAfter := cfg.StaleAfter
	if staleAfter <= 0 {
		staleAfter = 2 * time.Minute
	}
	deadline := cfg.Deadline
	if deadline <= 0 {
		deadline = 30 * time.Minute
	}

	svc := w.container.Orchestrator()
	sessions := w.container.Repositories().Sessions

	now := time.Now().UTC()
	stale, err := sessions.ListStale(ctx, now.Add(-staleAfter), cfg.BatchSize)
	if err != nil {
		logger.Error("status poller: list stale", zap.Error(err))
		return
	}

	for _, session := range stale {
		if ctx.Err() != nil {
			return
		}

		tracer := otel.Tracer("voice.statuspoller")
		sctx, span := tracer.Start(ctx, "session.poll", trace.WithAttributes(
			attribute.String("session_id", session.ID.String()),
			attribute.String("vendor", string(session.Vendor)),
			attribute.String("status", string(session.Status)),
		))

		// A session with no vendor call id cannot be polled; it either
		// never left this process or the start was interrupted. Fail it
		// once the deadline passes.
		if session.VendorCallID == nil {
			if now.Sub(session.CreatedAt) > deadline {
				w.timeout(sctx, logger, session.ID)
			}
			span.End()
			continue
		}

		updated, err := svc.ApplyPolledStatus(sctx, session)
		if err != nil {
			logger.Warn("status poller: poll failed",
				zap.String("session_id", session.ID.String()), zap.Error(err))
			if now.Sub(session.CreatedAt) > deadline {
				w.timeout(sctx, logger, session.ID)
			}
			span.End()
			continue
		}

		if !updated.Status.IsTerminal() && now.Sub(updated.CreatedAt) > deadline {
			w.timeout(sctx, logger, updated.ID)
		}
		span.End()
	}
}

func (w *Worker) timeout(ctx context.Context, logger *logger.Logger, sessionID uuid.UUID) {
	sessions := w.container.Repositories().Sessions
	if err := sessions.MarkFailed(ctx, sessionID, "no terminal event before deadline"); err != nil {
		logger.Warn("status poller: mark timed out",
			zap.String("session_id", sessionID.String()), zap.Error(err))
		return
	}
	logger.Info("status poller: session timed out", zap.String("session_id", sessionID.String()))
}
