// Package main provides the entry point for the interaction miner worker.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.temporal.io/sdk/worker"
	"golang.org/x/sync/errgroup"

	"github.com/helixir/interaction-miner/internal/acquire"
	"github.com/helixir/interaction-miner/internal/config"
	"github.com/helixir/interaction-miner/internal/control"
	"github.com/helixir/interaction-miner/internal/database"
	"github.com/helixir/interaction-miner/internal/engine"
	"github.com/helixir/interaction-miner/internal/events"
	"github.com/helixir/interaction-miner/internal/jobs"
	"github.com/helixir/interaction-miner/internal/llm"
	"github.com/helixir/interaction-miner/internal/observability"
	"github.com/helixir/interaction-miner/internal/papersources"
	"github.com/helixir/interaction-miner/internal/papersources/pubmed"
	"github.com/helixir/interaction-miner/internal/pdf"
	"github.com/helixir/interaction-miner/internal/repository"
	httpserver "github.com/helixir/interaction-miner/internal/server/http"
	"github.com/helixir/interaction-miner/internal/temporal"
	"github.com/helixir/interaction-miner/internal/temporal/activities"
	"github.com/helixir/interaction-miner/internal/temporal/workflows"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.RequireLLMKey(); err != nil {
		return err
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
		Service:    "interaction-miner",
	})
	logger = logger.With().Str("component", "worker").Logger()
	logger.Info().Bool("temporal", cfg.Temporal.Enabled).Msg("interaction-miner worker starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info().Msg("database connection established")

	if cfg.Database.MigrationAutoRun {
		if err := migrateUp(db, cfg.Database.MigrationPath, logger); err != nil {
			return err
		}
	}

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(cfg.Metrics.Namespace)
	}

	jobRepo := repository.NewPgJobRepository(db)
	interactionRepo := repository.NewPgInteractionRepository(db)
	workspaceRepo := repository.NewPgWorkspaceRepository(db)

	var publisher events.Publisher
	if cfg.Kafka.Enabled {
		kp := events.NewKafkaPublisher(events.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.EventsTopic,
			BatchSize:    cfg.Kafka.BatchSize,
			BatchTimeout: cfg.Kafka.BatchTimeout,
		}, logger)
		defer func() {
			if err := kp.Close(); err != nil {
				logger.Error().Err(err).Msg("failed to close event publisher")
			}
		}()
		publisher = kp
		logger.Info().Str("topic", cfg.Kafka.EventsTopic).Msg("job events publishing to kafka")
	}
	emitter := events.NewEmitter(publisher, logger)

	eng, err := buildEngine(cfg, logger, metrics)
	if err != nil {
		return err
	}
	runner := jobs.NewRunner(eng, jobRepo, interactionRepo, emitter, metrics, logger, jobs.RunnerConfig{
		StopPollInterval: cfg.Jobs.StopPollInterval,
	})
	controllerCfg := jobs.ControllerConfig{
		DefaultMinInteractions: cfg.Jobs.DefaultMinInteractions,
		DefaultWorkspace:       cfg.Jobs.DefaultWorkspace,
	}

	g, gctx := errgroup.WithContext(ctx)

	var (
		controller *jobs.Controller
		readiness  []httpserver.ReadinessCheck
	)
	if cfg.Temporal.Enabled {
		// A job that outlives stuck_after is failed by the sweeper anyway.
		clientCfg := temporal.ClientConfig{
			HostPort:         cfg.Temporal.HostPort,
			Namespace:        cfg.Temporal.Namespace,
			TaskQueue:        cfg.Temporal.TaskQueue,
			ExecutionTimeout: cfg.Jobs.StuckAfter,
		}
		temporalClient, err := temporal.NewClient(clientCfg, observability.NewTemporalLogger(logger))
		if err != nil {
			return fmt.Errorf("connect to temporal: %w", err)
		}
		jobClient := temporal.NewJobClient(temporalClient, clientCfg)
		defer jobClient.Close()
		logger.Info().
			Str("host_port", cfg.Temporal.HostPort).
			Str("namespace", cfg.Temporal.Namespace).
			Msg("temporal client connected")

		controller = jobs.NewController(jobRepo, interactionRepo, workspaceRepo,
			temporal.NewDispatcher(jobClient, jobRepo, logger), emitter, controllerCfg, logger)
		readiness = append(readiness, httpserver.ReadinessCheck{Name: "temporal", Check: jobClient.Health})

		w, err := temporal.NewWorker(temporalClient, temporal.WorkerConfig{
			TaskQueue:         cfg.Temporal.TaskQueue,
			MaxConcurrentJobs: cfg.Jobs.MaxConcurrent,
		}, workflows.JobWorkflow, activities.NewJobActivities(runner, jobRepo, controller))
		if err != nil {
			return fmt.Errorf("create temporal worker: %w", err)
		}
		g.Go(func() error { return runTemporalWorker(gctx, w, logger) })
	} else {
		pool := jobs.NewPool(cfg.Jobs.MaxConcurrent, logger)
		controller = jobs.NewController(jobRepo, interactionRepo, workspaceRepo,
			jobs.NewLocalDispatcher(pool, runner, logger), emitter, controllerCfg, logger)

		poller := jobs.NewPoller(jobRepo, pool, runner, cfg.Jobs.PollInterval, logger)
		g.Go(func() error { return ignoreCancel(poller.Run(gctx)) })
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			// Running jobs see their context cancelled and end as interrupted.
			return pool.Shutdown(shutdownCtx)
		})
	}

	if _, err := controller.EnsureDefaultWorkspace(ctx); err != nil {
		return fmt.Errorf("ensure default workspace: %w", err)
	}

	sweeper := jobs.NewSweeper(jobRepo, db, cfg.Jobs.StuckAfter, cfg.Jobs.SweepInterval, logger)
	g.Go(func() error { return ignoreCancel(sweeper.Run(gctx)) })

	if cfg.Kafka.Enabled {
		listener := control.NewListener(control.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.ControlTopic,
			GroupID: cfg.Kafka.GroupID,
		}, controller, logger)
		defer func() {
			if err := listener.Close(); err != nil {
				logger.Error().Err(err).Msg("failed to close control listener")
			}
		}()
		g.Go(func() error { return ignoreCancel(listener.Run(gctx)) })
		logger.Info().
			Str("topic", cfg.Kafka.ControlTopic).
			Str("group_id", cfg.Kafka.GroupID).
			Msg("control listener started")
	}

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	ops := httpserver.NewServer(httpserver.Config{
		Address:      cfg.Server.HTTPAddress(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  2 * cfg.Server.ReadTimeout,
		MetricsPath:  metricsPath,
	}, db, logger, readiness...)
	g.Go(func() error {
		if err := ops.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return ops.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info().Msg("worker stopped")
	return nil
}

// buildEngine wires the engine's ports to PubMed, the document acquirer and
// the configured LLM provider.
func buildEngine(cfg *config.Config, logger zerolog.Logger, metrics *observability.Metrics) (*engine.Engine, error) {
	model, err := llm.NewChatModel(llm.FactoryConfig{
		Provider: cfg.LLM.Provider,
		Model:    cfg.LLM.Model,
		BaseURL:  cfg.LLM.BaseURL,
		APIKey:   cfg.LLM.APIKey,
		Options: llm.Options{
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			Timeout:     cfg.LLM.Timeout,
			MaxRetries:  cfg.LLM.MaxRetries,
			RetryDelay:  cfg.LLM.RetryDelay,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create LLM client: %w", err)
	}
	logger.Info().Str("provider", cfg.LLM.Provider).Str("model", cfg.LLM.Model).Msg("LLM client created")

	sources := papersources.NewRegistry(logger)
	sources.Register(pubmed.New(pubmed.Config{
		BaseURL:    cfg.PubMed.BaseURL,
		APIKey:     cfg.PubMed.APIKey,
		Email:      cfg.PubMed.Email,
		Tool:       cfg.PubMed.Tool,
		Timeout:    cfg.PubMed.Timeout,
		RateLimit:  cfg.PubMed.RateLimit,
		MaxResults: cfg.PubMed.MaxResults,
	}))

	return engine.New(engine.Deps{
		Queries:   llm.NewQueryGenerator(model, cfg.Engine.MaxQueryAttempts, logger, metrics),
		Search:    sources,
		Relevance: llm.NewRelevanceChecker(model, logger, metrics),
		Documents: buildAcquirer(cfg, logger, metrics),
		Extractor: llm.NewInteractionExtractor(model, cfg.Engine.MaxExtractionRounds, logger, metrics),
		Logger:    logger,
		Metrics:   metrics,
		Clock:     time.Now,
		NewID:     uuid.New,
		Config: engine.Config{
			StepLimit:        cfg.Engine.StepLimit,
			MaxSearchResults: cfg.Engine.MaxSearchResults,
			MaxDocumentChars: cfg.Engine.MaxDocumentChars,
			MaxQueryFailures: cfg.Engine.MaxQueryAttempts,
		},
	})
}

// buildAcquirer orders the resolvers arXiv, Unpaywall, then PubMed Central.
func buildAcquirer(cfg *config.Config, logger zerolog.Logger, metrics *observability.Metrics) *acquire.Acquirer {
	downloader := pdf.NewDownloader(pdf.Config{
		Timeout:   cfg.Acquire.Timeout,
		MaxSize:   cfg.Acquire.MaxPDFSize,
		UserAgent: cfg.Acquire.UserAgent,
	})
	converter := pdf.NewTextConverter()

	var unlocker *acquire.Unlocker
	if cfg.Acquire.UnlockerEnabled {
		unlocker = acquire.NewUnlocker(acquire.UnlockerConfig{
			URL:    cfg.Acquire.UnlockerURL,
			Zone:   cfg.Acquire.UnlockerZone,
			APIKey: cfg.Acquire.UnlockerAPIKey,
		}, downloader)
		logger.Info().Str("zone", cfg.Acquire.UnlockerZone).Msg("web unlocker enabled")
	}

	unpaywallAPI := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Timeout:   cfg.Acquire.Timeout,
		RateLimit: 10,
		BurstSize: 10,
		UserAgent: cfg.Acquire.UserAgent,
	})

	return acquire.New(logger, metrics,
		acquire.NewArxivResolver(acquire.DefaultArxivBaseURL, downloader, converter),
		acquire.NewUnpaywallResolver(acquire.UnpaywallConfig{
			BaseURL: cfg.Acquire.UnpaywallBaseURL,
			Email:   cfg.Acquire.UnpaywallEmail,
		}, unpaywallAPI, downloader, unlocker, converter),
		acquire.NewPMCResolver(cfg.Acquire.PMCBaseURL, downloader),
	)
}

func migrateUp(db *database.DB, path string, logger zerolog.Logger) error {
	migrator, err := database.NewMigrator(db, path, logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer migrator.Close()
	if err := migrator.Up(); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func runTemporalWorker(ctx context.Context, w worker.Worker, logger zerolog.Logger) error {
	logger.Info().Msg("starting temporal worker")
	if err := temporal.StartWorker(ctx, w); err != nil && ctx.Err() == nil {
		return fmt.Errorf("temporal worker: %w", err)
	}
	return nil
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
