// Package main is the operator CLI for the interaction miner. It talks to
// Postgres directly; jobs it creates are run by a worker.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/helixir/interaction-miner/internal/config"
	"github.com/helixir/interaction-miner/internal/database"
	"github.com/helixir/interaction-miner/internal/events"
	"github.com/helixir/interaction-miner/internal/jobs"
	"github.com/helixir/interaction-miner/internal/observability"
	"github.com/helixir/interaction-miner/internal/repository"
	"github.com/helixir/interaction-miner/internal/temporal"
)

// rootCmd is the base command for minerctl.
var rootCmd = &cobra.Command{
	Use:   "minerctl",
	Short: "Operate the interaction miner",
	Long: `minerctl manages extraction jobs, workspaces and the database schema.

Configuration is read the same way the worker reads it: MINER_* environment
variables and an optional config.yaml.`,
	SilenceUsage: true,
}

var (
	jsonOutput bool
	verbose    bool
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// app holds what a command needs once configuration and the database are up.
type app struct {
	cfg        *config.Config
	logger     zerolog.Logger
	db         *database.DB
	jobs       *repository.PgJobRepository
	controller *jobs.Controller
	closers    []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// withApp loads configuration, connects to Postgres and runs fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := "warn"
	if verbose {
		level = "debug"
	}
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      level,
		Format:     "console",
		Output:     "stderr",
		TimeFormat: time.RFC3339,
	}).With().Str("component", "minerctl").Logger()

	ctx := cmd.Context()
	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, db: db, closers: []func(){db.Close}}
	defer a.close()

	jobRepo := repository.NewPgJobRepository(db)
	a.jobs = jobRepo

	var dispatcher jobs.Dispatcher = jobs.NewQueueDispatcher(logger)
	if cfg.Temporal.Enabled {
		clientCfg := temporal.ClientConfig{
			HostPort:         cfg.Temporal.HostPort,
			Namespace:        cfg.Temporal.Namespace,
			TaskQueue:        cfg.Temporal.TaskQueue,
			ExecutionTimeout: cfg.Jobs.StuckAfter,
		}
		c, err := temporal.NewClient(clientCfg, observability.NewTemporalLogger(logger))
		if err != nil {
			return fmt.Errorf("connect to temporal: %w", err)
		}
		jobClient := temporal.NewJobClient(c, clientCfg)
		a.closers = append(a.closers, jobClient.Close)
		dispatcher = temporal.NewDispatcher(jobClient, jobRepo, logger)
	}

	var publisher events.Publisher
	if cfg.Kafka.Enabled {
		kp := events.NewKafkaPublisher(events.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.EventsTopic,
			BatchSize:    1,
			BatchTimeout: cfg.Kafka.BatchTimeout,
		}, logger)
		a.closers = append(a.closers, func() { _ = kp.Close() })
		publisher = kp
	}

	a.controller = jobs.NewController(
		jobRepo,
		repository.NewPgInteractionRepository(db),
		repository.NewPgWorkspaceRepository(db),
		dispatcher,
		events.NewEmitter(publisher, logger),
		jobs.ControllerConfig{
			DefaultMinInteractions: cfg.Jobs.DefaultMinInteractions,
			DefaultWorkspace:       cfg.Jobs.DefaultWorkspace,
		},
		logger,
	)

	return fn(ctx, a)
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
