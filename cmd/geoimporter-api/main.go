package main

import (
	"context"
	"os"

	"github.com/dukex/geoimporter/pkg/cmd"
	"github.com/dukex/geoimporter/pkg/config"
	"github.com/dukex/geoimporter/pkg/log"
	"github.com/dukex/geoimporter/pkg/otelhelper"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	app := &cli.Command{
		Name:                  "geoimporter-api",
		Usage:                 "Accept uploads and expose the import executions",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
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
				Usage:   "Task transport (kafka, gochannel). gochannel runs the tasks in this process",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the shared chord counters and rate limits",
				Sources: cli.EnvVars("REDIS_URL"),
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

			logger := log.WithModule("api")

			logger.InfoContext(ctx, "Initializing GeoImporter API")

			cfg, err := config.LoadOrDefault(command.String("config"))
			if err != nil {
				return err
			}

			tracer := otelhelper.NoopTracer()
			if command.Bool("otel") {
				tracer, err = otelhelper.NewTracer(ctx, "geoimporter-api")
				if err != nil {
					return err
				}
			}

			eventBus := command.String("event-bus")

			rt, err := cmd.NewRuntime(ctx, logger, cfg, cmd.Options{
				DatabaseURL: command.String("database-url"),
				EventBus:    eventBus,
				RedisURL:    command.String("redis-url"),
				Tracer:      tracer,
			})
			if err != nil {
				return err
			}

			defer func() {
				err := rt.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close runtime", "error", err)
				}
			}()

			// An in-process transport only reaches subscribers of this process.
			if eventBus == "gochannel" {
				err = rt.Start(ctx)
				if err != nil {
					return err
				}

				logger.InfoContext(ctx, "Running tasks in process", "tasks", rt.TaskRegistry.Names())
			}

			api := NewAPI(logger, rt.Importer, rt.Metrics.Handler())

			err = api.Start(command.Int("port"))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	err := app.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
