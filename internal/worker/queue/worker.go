package queue

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/voice-sales-agent/internal/app"
	apperrors "github.com/acme/voice-sales-agent/pkg/errors"
	"github.com/acme/voice-sales-agent/pkg/logger"
)

// Worker drains the call queue: it claims due entries, respects the
// per-agent concurrency limit, and places the outbound call.
type Worker struct {
	container *app.Container
}

// New creates a queue worker.
func New(container *app.Container) *Worker {
	return &Worker{container: container}
}

// Run processes the queue until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	interval := w.container.Config.Queue.TickInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger := w.container.Logger.Named("queueworker")
	logger.Info("queue worker started", zap.Duration("tick_interval", interval))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.drain(ctx, logger)
		}
	}
}

// drain claims entries until the queue is empty or a claim is blocked.
// A slot acquired for a successful call is not released here; it expires
// with its TTL after the call is long over.
func (w *Worker) drain(ctx context.Context, logger *logger.Logger) {
	svc := w.container.Orchestrator()
	limiter := w.container.Limiter()

	for {
		if ctx.Err() != nil {
			return
		}

		entry, err := svc.ClaimNextQueued(ctx)
		if err != nil {
			if !apperrors.Is(err, apperrors.ErrNotFound) {
				logger.Error("queue worker: claim", zap.Error(err))
			}
			return
		}

		tracer := otel.Tracer("voice.queueworker")
		sctx, span := tracer.Start(ctx, "queue.attempt", trace.WithAttributes(
			attribute.String("queue_entry_id", entry.ID.String()),
			attribute.String("agent_id", entry.AgentID.String()),
			attribute.Int("attempt", entry.Attempts),
		))

		ok, err := limiter.Acquire(sctx, entry.AgentID)
		if err != nil {
			logger.Error("queue worker: acquire slot", zap.Error(err))
			span.End()
			// No dial happened, so the claim must not cost an attempt.
			if rErr := svc.UnclaimQueued(sctx, entry.ID); rErr != nil {
				logger.Error("queue worker: unclaim", zap.Error(rErr))
			}
			return
		}
		if !ok {
			logger.Info("queue worker: agent at concurrency limit",
				zap.String("agent_id", entry.AgentID.String()))
			if rErr := svc.UnclaimQueued(sctx, entry.ID); rErr != nil {
				logger.Error("queue worker: unclaim", zap.Error(rErr))
			}
			span.End()
			return
		}

		session, callErr := svc.StartCall(sctx, entry.AgentID, entry.CustomerID)
		if callErr != nil {
			logger.Warn("queue worker: start call failed",
				zap.String("queue_entry_id", entry.ID.String()), zap.Error(callErr))
			if rErr := svc.RecordQueueResult(sctx, entry.ID, nil, false); rErr != nil {
				logger.Error("queue worker: record result", zap.Error(rErr))
			}
			if rErr := limiter.Release(sctx, entry.AgentID); rErr != nil {
				logger.Warn("queue worker: release slot", zap.Error(rErr))
			}
			span.End()
			continue
		}

		if rErr := svc.RecordQueueResult(sctx, entry.ID, &session.ID, true); rErr != nil {
			logger.Error("queue worker: record result", zap.Error(rErr))
		}
		logger.Info("queue worker: call placed",
			zap.String("queue_entry_id", entry.ID.String()),
			zap.String("session_id", session.ID.String()))
		span.End()
	}
}
