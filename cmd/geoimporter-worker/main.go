package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/geoimporter/pkg/cmd"
	"github.com/dukex/geoimporter/pkg/config"
	"github.com/dukex/geoimporter/pkg/log"
	"github.com/dukex/geoimporter/pkg/otelhelper"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

func main() {
	app := &cli.Command{
		Name:                  "geoimporter-worker",
		EnableShellCompletion: true,
		Usage:                 "Run the import pipeline tasks",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML configuration file",
				Sources: cli.EnvVars("GEOIMPORTER_CONFIG"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (postgres:// or a file path)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Task transport (kafka, gochannel)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the shared chord counters and rate limits",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "metrics-address",
				Usage:   "Address of the Prometheus metrics endpoint, empty to disable",
				Value:   ":9092",
				Sources: cli.EnvVars("METRICS_ADDRESS"),
			},
			&cli.BoolFlag{
				Name:    "otel",
				Usage:   "Export traces with OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("geoimporter-worker").With("workerId", workerID)

			logger.InfoContext(ctx, "Initializing GeoImporter Worker")

			cfg, err := config.LoadOrDefault(command.String("config"))
			if err != nil {
				return err
			}

			tracer := otelhelper.NoopTracer()
			if command.Bool("otel") {
				tracer, err = otelhelper.NewTracer(ctx, "geoimporter-worker")
				if err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := cmd.NewRuntime(ctx, logger, cfg, cmd.Options{
				DatabaseURL: command.String("database-url"),
				EventBus:    command.String("event-bus"),
				RedisURL:    command.String("redis-url"),
				Tracer:      tracer,
				WorkerID:    workerID,
			})
			if err != nil {
				return err
			}

			defer func() {
				err := rt.Close(context.WithoutCancel(ctx))
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close runtime", "error", err)
				}
			}()

			janitor := NewJanitor(rt.Persistence.TaskResultRepository(), cfg.JanitorSchedule, cfg.TaskResultRetention, logger)

			err = janitor.Start(ctx)
			if err != nil {
				return err
			}
			defer janitor.Stop()

			if address := command.String("metrics-address"); address != "" {
				metricsApp := NewMetricsApp(rt.Metrics.Handler())

				go func() {
					err := metricsApp.Listen(address)
					if err != nil {
						logger.ErrorContext(ctx, "Metrics endpoint stopped", "error", err)
					}
				}()

				defer func() {
					_ = metricsApp.Shutdown()
				}()
			}

			err = rt.Start(ctx)
			if err != nil {
				return err
			}

			logger.InfoContext(ctx, "Worker started", "tasks", rt.TaskRegistry.Names())

			<-ctx.Done()

			logger.InfoContext(ctx, "Shutting down worker")

			if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
				return cause
			}

			return nil
		},
	}

	err := app.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
