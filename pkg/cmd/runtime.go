package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/geoimporter/pkg/catalog"
	"github.com/dukex/geoimporter/pkg/config"
	"github.com/dukex/geoimporter/pkg/converter"
	"github.com/dukex/geoimporter/pkg/dynamicschema"
	"github.com/dukex/geoimporter/pkg/handlers/common"
	"github.com/dukex/geoimporter/pkg/limits"
	"github.com/dukex/geoimporter/pkg/mapserver"
	"github.com/dukex/geoimporter/pkg/metrics"
	"github.com/dukex/geoimporter/pkg/orchestrator"
	"github.com/dukex/geoimporter/pkg/otelhelper"
	"github.com/dukex/geoimporter/pkg/persistence"
	"github.com/dukex/geoimporter/pkg/publisher"
	"github.com/dukex/geoimporter/pkg/registry"
	"github.com/dukex/geoimporter/pkg/services"
	"github.com/dukex/geoimporter/pkg/storage"
	"github.com/dukex/geoimporter/pkg/taskqueue"
	"github.com/dukex/geoimporter/pkg/tasks"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
)

// Options selects the backends of a Runtime.
type Options struct {
	DatabaseURL string
	EventBus    string
	// RedisURL enables the shared chord counters and rate limits. Empty keeps them in process.
	RedisURL string
	Tracer   trace.Tracer
	WorkerID string
}

// Runtime is the wired importer shared by the worker and the API.
type Runtime struct {
	Config       *config.Config
	Persistence  persistence.Persistence
	Queue        *taskqueue.Queue
	TaskRegistry *taskqueue.Registry
	Registry     *registry.Registry
	Orchestrator *orchestrator.Orchestrator
	Catalog      *catalog.Manager
	Importer     *services.Importer
	Metrics      *metrics.Manager

	redis     *redis.Client
	datastore *sql.DB
}

// NewRuntime builds every collaborator from cfg. The queue is not subscribed yet.
func NewRuntime(ctx context.Context, logger *slog.Logger, cfg *config.Config, opts Options) (*Runtime, error) {
	rt := &Runtime{Config: cfg, Metrics: metrics.New()}

	p, err := NewPersistence(ctx, logger, opts.DatabaseURL)
	if err != nil {
		return nil, err
	}

	rt.Persistence = p

	err = rt.wire(ctx, logger, opts)
	if err != nil {
		return nil, multierr.Append(err, rt.Close(ctx))
	}

	return rt, nil
}

func (rt *Runtime) wire(ctx context.Context, logger *slog.Logger, opts Options) error {
	cfg := rt.Config
	p := rt.Persistence

	pub, sub, err := NewEventBus(opts.EventBus, logger)
	if err != nil {
		return err
	}

	queueOpts := taskqueue.Options{
		Results:  p.TaskResultRepository(),
		Tracer:   opts.Tracer,
		Observer: rt.Metrics,
		Logger:   logger,
		WorkerID: opts.WorkerID,
	}

	if queueOpts.Tracer == nil {
		queueOpts.Tracer = otelhelper.NoopTracer()
	}

	if opts.RedisURL != "" {
		redisOpts, err := redis.ParseURL(opts.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid redis url: %w", err)
		}

		rt.redis = redis.NewClient(redisOpts)

		err = rt.redis.Ping(ctx).Err()
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}

		queueOpts.Chords = taskqueue.NewRedisChordStore(rt.redis)
		queueOpts.Limiter = taskqueue.NewRedisLimiter(rt.redis)
	}

	rt.TaskRegistry = taskqueue.NewRegistry()
	rt.Queue = taskqueue.NewQueue(pub, sub, rt.TaskRegistry, queueOpts)

	var conn converter.PGConnection
	if cfg.DatastoreURL != "" {
		conn, err = converter.ParseDatastoreURL(cfg.DatastoreURL)
		if err != nil {
			return err
		}
	}

	tables, err := rt.tableEditor(ctx)
	if err != nil {
		return err
	}

	schemas := dynamicschema.New(p.DynamicSchemaRepository(), tables, logger)
	rt.Catalog = catalog.New(p.ResourceRepository(), p.ResourceHandlerInfoRepository(), cfg.SiteURL, logger)
	mapServer := newMapServer(cfg.MapServer, logger)

	deps := &common.Deps{
		Dispatcher:        rt.Queue,
		Resources:         p.ResourceRepository(),
		HandlerInfos:      p.ResourceHandlerInfoRepository(),
		TaskResults:       p.TaskResultRepository(),
		Schemas:           schemas,
		Catalog:           rt.Catalog,
		MapServer:         mapServer,
		Limits:            limits.New(p.ExecutionRequestRepository(), cfg.Limits.MaxParallelUploads),
		Storage:           storage.New(cfg.Storage.Root),
		HTTP:              &http.Client{Timeout: 30 * time.Second},
		Runner:            converter.ExecRunner{},
		OgrinfoBinary:     cfg.Binaries.Ogrinfo,
		GdalinfoBinary:    cfg.Binaries.Gdalinfo,
		Datastore:         conn,
		Workspace:         cfg.Workspace,
		DatastoreName:     cfg.DatastoreName,
		ShapefileEncoding: cfg.ShapefileEncoding,
		Logger:            logger,
	}

	rt.Registry, err = NewRegistry(cfg.Handlers, deps, logger)
	if err != nil {
		return err
	}

	publishing := publisher.Options{
		Workspace:   cfg.Workspace,
		StoreName:   cfg.DatastoreName,
		StoreParams: conn.StoreParams(),
	}

	rt.Catalog.AddPreDeleteHook(rt.Registry.PreDeleteHook(p.ResourceHandlerInfoRepository(), mapServer, publishing))

	rt.Orchestrator = orchestrator.New(p, rt.Queue, rt.Registry, orchestrator.Options{
		LegacyUploads: cfg.LegacyUploadStatus,
		Observer:      rt.Metrics,
		Logger:        logger,
	})
	deps.Executions = rt.Orchestrator

	pipeline := tasks.New(tasks.Deps{
		Orchestrator: rt.Orchestrator,
		Dispatcher:   rt.Queue,
		Resources:    p.ResourceRepository(),
		Schemas:      schemas,
		Converter:    converter.New(converter.ExecRunner{}, cfg.Binaries.Ogr2ogr, logger),
		MapServer:    mapServer,
		Publishing:   publishing,
		Logger:       logger,
	}, tasks.Config{
		Retries:           cfg.Retries,
		RateLimits:        cfg.RateLimits,
		RollbackOnFailure: cfg.RollbackOnFailure,
	})

	err = pipeline.Register(rt.TaskRegistry)
	if err != nil {
		return fmt.Errorf("failed to register tasks: %w", err)
	}

	err = rt.Registry.Validate(rt.TaskRegistry.Names())
	if err != nil {
		return err
	}

	rt.Importer = services.NewImporter(p, rt.Orchestrator, rt.Queue, rt.Registry, rt.Catalog, logger)

	return nil
}

// tableEditor drops and copies the converted tables in the datastore, or in memory without one.
func (rt *Runtime) tableEditor(ctx context.Context) (dynamicschema.TableEditor, error) {
	if rt.Config.DatastoreURL == "" {
		return dynamicschema.NewMemoryTableEditor(), nil
	}

	dsn := rt.Config.DatastoreURL
	if rest, ok := strings.CutPrefix(dsn, "postgis://"); ok {
		dsn = "postgres://" + rest
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open the datastore: %w", err)
	}

	rt.datastore = db

	err = db.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping the datastore: %w", err)
	}

	return dynamicschema.NewPostgresTableEditor(db), nil
}

// nolint:ireturn
func newMapServer(cfg config.MapServer, logger *slog.Logger) mapserver.Client {
	if cfg.URL == "" {
		logger.Warn("No map server configured, layers are kept in memory")

		return mapserver.NewMemoryClient()
	}

	return mapserver.NewGeoServerClient(cfg.URL, cfg.Username, cfg.Password, logger)
}

// Start consumes the task queue until ctx is done.
func (rt *Runtime) Start(ctx context.Context) error {
	return rt.Queue.Subscribe(ctx)
}

// Close releases the queue, redis, the datastore and the persistence.
func (rt *Runtime) Close(ctx context.Context) error {
	var err error

	if rt.Queue != nil {
		err = multierr.Append(err, rt.Queue.Close())
	}

	if rt.redis != nil {
		err = multierr.Append(err, rt.redis.Close())
	}

	if rt.datastore != nil {
		err = multierr.Append(err, rt.datastore.Close())
	}

	if rt.Persistence != nil {
		err = multierr.Append(err, rt.Persistence.Close(ctx))
	}

	return err
}
