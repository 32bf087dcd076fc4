package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/acme/voice-sales-agent/internal/config"
	"github.com/acme/voice-sales-agent/internal/infra/db"
	"github.com/acme/voice-sales-agent/internal/infra/redis"
	"github.com/acme/voice-sales-agent/internal/orchestrator"
	"github.com/acme/voice-sales-agent/internal/provider"
	"github.com/acme/voice-sales-agent/internal/provider/bland"
	"github.com/acme/voice-sales-agent/internal/provider/retell"
	"github.com/acme/voice-sales-agent/internal/provider/vapi"
	"github.com/acme/voice-sales-agent/internal/queue"
	"github.com/acme/voice-sales-agent/internal/repository"
	pgrepo "github.com/acme/voice-sales-agent/internal/repository/postgres"
	scyllarepo "github.com/acme/voice-sales-agent/internal/repository/scylla"
	"github.com/acme/voice-sales-agent/internal/service/concurrency"
	"github.com/acme/voice-sales-agent/internal/summary"
	"github.com/acme/voice-sales-agent/pkg/logger"
)

// Container wires together shared infrastructure dependencies.
type Container struct {
	Config *config.Config
	Logger *logger.Logger

	Postgres *db.Postgres
	Scylla   *db.Scylla
	Redis    *redis.Client
	Kafka    *queue.Kafka

	// lazily initialised components
	components struct {
		once         sync.Once
		repositories *repositories
		registry     *provider.Registry
		publisher    *queue.EventPublisher
		orchestrator *orchestrator.Service
		limiter      *concurrency.Limiter
	}
}

type repositories struct {
	Agents       repository.AgentRepository
	Sessions     repository.SessionRepository
	Queue        repository.QueueRepository
	Customers    repository.CustomerRepository
	LeadScores   repository.LeadScoreRepository
	Interactions repository.InteractionRepository
	Outcome      repository.OutcomeRecorder
	Events       repository.CallEventStore
	Stats        repository.StatsRepository
}

// Build constructs a container for the given configuration path.
func Build(ctx context.Context, configPath string) (*Container, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	lg, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, err
	}

	pg, err := db.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("bootstrap postgres: %w", err)
	}

	scylla, err := db.NewScylla(cfg.Scylla)
	if err != nil {
		return nil, fmt.Errorf("bootstrap scylla: %w", err)
	}

	redisClient, err := redis.NewClient(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("bootstrap redis: %w", err)
	}

	kafka, err := queue.NewKafka(cfg.Kafka)
	if err != nil {
		return nil, fmt.Errorf("bootstrap kafka: %w", err)
	}

	return &Container{
		Config:   cfg,
		Logger:   lg,
		Postgres: pg,
		Scylla:   scylla,
		Redis:    redisClient,
		Kafka:    kafka,
	}, nil
}

func (c *Container) initComponents() {
	c.components.once.Do(func() {
		pgdb := c.Postgres.DB()
		repos := &repositories{
			Agents:       pgrepo.NewAgentRepository(pgdb),
			Sessions:     pgrepo.NewSessionRepository(pgdb),
			Queue:        pgrepo.NewQueueRepository(pgdb),
			Customers:    pgrepo.NewCustomerRepository(pgdb),
			LeadScores:   pgrepo.NewLeadScoreRepository(pgdb),
			Interactions: pgrepo.NewInteractionRepository(pgdb),
			Outcome:      pgrepo.NewOutcomeRecorder(pgdb),
			Events:       scyllarepo.NewEventStore(c.Scylla.Session()),
			Stats:        pgrepo.NewStatsRepository(pgdb),
		}

		registry := provider.NewRegistry()
		registry.Register(vapi.New(c.Config.Providers.Vapi), c.Config.Providers.Vapi.WebhookSecret)
		registry.Register(retell.New(c.Config.Providers.Retell), c.Config.Providers.Retell.WebhookSecret)
		registry.Register(bland.New(c.Config.Providers.Bland), c.Config.Providers.Bland.WebhookSecret)

		publisher := queue.NewEventPublisher(c.Kafka, c.Config.Kafka.EventsTopic)

		var summarizer summary.Summarizer = summary.Noop{}
		if c.Config.Summary.Enabled && c.Config.Summary.APIKey != "" {
			summarizer = summary.NewOpenAI(c.Config.Summary)
		}

		svc := orchestrator.NewService(orchestrator.Deps{
			Agents:       repos.Agents,
			Sessions:     repos.Sessions,
			Queue:        repos.Queue,
			Customers:    repos.Customers,
			LeadScores:   repos.LeadScores,
			Interactions: repos.Interactions,
			Outcome:      repos.Outcome,
			Events:       repos.Events,
			Stats:        repos.Stats,
			Registry:     registry,
			Sink:         publisher,
			Summarizer:   summarizer,
			Policy:       orchestrator.HeuristicPolicy{},
			MaxAttempts:  c.Config.Queue.DefaultMaxAttempts,
			Logger:       c.Logger.Named("orchestrator"),
		})

		c.components.repositories = repos
		c.components.registry = registry
		c.components.publisher = publisher
		c.components.orchestrator = svc
		c.components.limiter = concurrency.NewLimiter(
			c.Redis.Inner(), c.Config.Queue.PerAgentConcurrency, c.Config.Queue.SlotTTL)
	})
}

// Repositories exposes initialized repositories.
func (c *Container) Repositories() *repositories {
	c.initComponents()
	return c.components.repositories
}

// Registry exposes the vendor adapter registry.
func (c *Container) Registry() *provider.Registry {
	c.initComponents()
	return c.components.registry
}

// Orchestrator exposes the orchestration service.
func (c *Container) Orchestrator() *orchestrator.Service {
	c.initComponents()
	return c.components.orchestrator
}

// Limiter exposes the per-agent concurrency limiter.
func (c *Container) Limiter() *concurrency.Limiter {
	c.initComponents()
	return c.components.limiter
}

// HealthChecks returns named connectivity checks for the health endpoint.
func (c *Container) HealthChecks() map[string]func(context.Context) error {
	return map[string]func(context.Context) error{
		"postgres": func(ctx context.Context) error {
			return c.Postgres.DB().PingContext(ctx)
		},
		"redis": func(ctx context.Context) error {
			return c.Redis.Inner().Ping(ctx).Err()
		},
		"scylla": func(ctx context.Context) error {
			return c.Scylla.Session().Query("SELECT now() FROM system.local").WithContext(ctx).Exec()
		},
	}
}

// EnsureTopics creates the Kafka topics this service produces to.
func (c *Container) EnsureTopics(ctx context.Context) error {
	return c.Kafka.EnsureTopics(ctx, []string{c.Config.Kafka.EventsTopic}, 3, 1)
}

// Close releases all held resources.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if c.components.publisher != nil {
		if err := c.components.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher close: %w", err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if c.Scylla != nil {
		if err := c.Scylla.Close(); err != nil {
			errs = append(errs, fmt.Errorf("scylla close: %w", err))
		}
	}
	if c.Postgres != nil {
		if err := c.Postgres.Close(); err != nil {
			errs = append(errs, fmt.Errorf("postgres close: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("container close: %v", errs)
	}
	return nil
}
