// Package engine assembles the ingest pipeline: transport subscriptions
// feed decoded envelopes through a bounded worker pool into the per-store
// fan-out.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sensorgrid-systems/sensorgrid-ingest/internal/config"
	"github.com/sensorgrid-systems/sensorgrid-ingest/internal/envelope"
	"github.com/sensorgrid-systems/sensorgrid-ingest/internal/fanout"
	"github.com/sensorgrid-systems/sensorgrid-ingest/internal/messaging"
	natsclient "github.com/sensorgrid-systems/sensorgrid-ingest/internal/messaging/nats"
	"github.com/sensorgrid-systems/sensorgrid-ingest/internal/metrics"
	"github.com/sensorgrid-systems/sensorgrid-ingest/internal/router"
	"github.com/sensorgrid-systems/sensorgrid-ingest/internal/store"
	"github.com/sensorgrid-systems/sensorgrid-ingest/internal/store/devstate"
	"github.com/sensorgrid-systems/sensorgrid-ingest/internal/store/document"
	"github.com/sensorgrid-systems/sensorgrid-ingest/internal/store/graph"
	"github.com/sensorgrid-systems/sensorgrid-ingest/internal/store/postgres"
	"github.com/sensorgrid-systems/sensorgrid-ingest/internal/transform"
)

// Engine owns the full pipeline lifecycle. Start builds it outside-in so
// every store is reachable before the first subscription exists; Stop
// tears it down in the reverse order.
type Engine struct {
	cfg    *config.Config
	logger *slog.Logger

	transport   messaging.Client
	router      *router.Router
	pool        *fanout.Pool
	coordinator *fanout.Coordinator

	pg      *postgres.Repository
	docs    *document.Store
	graphDB *graph.Store
	tracker *devstate.Tracker

	metricsServer *http.Server
}

// New creates an unstarted Engine.
func New(cfg *config.Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cfg: cfg, logger: logger}
}

// Start connects every backend, builds the fan-out pipeline, and
// subscribes to the sensor topics. On error the engine is left stopped
// and partially opened connections are closed.
func (e *Engine) Start(ctx context.Context) error {
	if e.cfg.Postgres.MigrationsPath != "" {
		if err := e.migrateUp(); err != nil {
			return err
		}
	}

	pg, err := postgres.New(ctx, e.cfg.Postgres.URL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	e.pg = pg
	e.logger.Info("connected to postgres")

	docs, err := document.New(document.Config{
		URL:           e.cfg.OpenSearch.URL,
		Username:      e.cfg.OpenSearch.Username,
		Password:      e.cfg.OpenSearch.Password,
		Insecure:      e.cfg.OpenSearch.TLSSkipVerify,
		DataIndex:     e.cfg.OpenSearch.DataIndex,
		MetadataIndex: e.cfg.OpenSearch.MetadataIndex,
		AlertIndex:    e.cfg.OpenSearch.AlertIndex,
	})
	if err != nil {
		e.closePartial(ctx)
		return fmt.Errorf("connect opensearch: %w", err)
	}
	e.docs = docs
	e.logger.Info("connected to opensearch", "url", e.cfg.OpenSearch.URL)

	var graphSink store.Graph
	if e.cfg.Neo4j.Enabled {
		g, err := graph.New(ctx, graph.Config{
			URI:      e.cfg.Neo4j.URI,
			Username: e.cfg.Neo4j.Username,
			Password: e.cfg.Neo4j.Password,
			Database: e.cfg.Neo4j.Database,
		})
		if err != nil {
			e.closePartial(ctx)
			return fmt.Errorf("connect neo4j: %w", err)
		}
		e.graphDB = g
		graphSink = g
		e.logger.Info("connected to neo4j", "uri", e.cfg.Neo4j.URI)
	}

	// The device tracker is a cache, not a store of record; losing it
	// degrades the verify surface but never blocks ingest.
	var tracker fanout.DeviceTracker
	if e.cfg.Redis.Enabled {
		t, err := devstate.New(e.cfg.Redis.URL, e.cfg.Redis.TTL)
		if err != nil {
			e.logger.Warn("device tracker unavailable, continuing without it", "error", err)
		} else {
			e.tracker = t
			tracker = t
			e.logger.Info("connected to redis")
		}
	}

	e.coordinator = fanout.New(e.pg, e.docs, graphSink, tracker, e.logger)

	e.router = router.New(e.logger)
	e.registerHandlers()

	e.pool = fanout.NewPool(e.cfg.Engine.QueueSize, e.cfg.Engine.Workers, e.router.Dispatch)

	transport, err := natsclient.NewClient(natsclient.Config{
		URL:           e.cfg.NATS.URL,
		Name:          e.cfg.NATS.Name,
		Username:      e.cfg.NATS.Username,
		Password:      e.cfg.NATS.Password,
		MaxReconnects: e.cfg.NATS.MaxReconnects,
		ReconnectWait: e.cfg.NATS.ReconnectWait,
		Timeout:       e.cfg.NATS.Timeout,
	}, e.logger)
	if err != nil {
		e.pool.Close()
		e.closePartial(ctx)
		return fmt.Errorf("connect nats: %w", err)
	}
	e.transport = transport
	e.logger.Info("connected to nats", "url", e.cfg.NATS.URL)

	if err := e.router.Attach(transport, e.receive); err != nil {
		e.Stop(ctx)
		return fmt.Errorf("attach router: %w", err)
	}

	if e.cfg.Metrics.Enabled {
		e.startMetricsServer()
	}

	e.logger.Info("engine started",
		"topics", e.router.Topics(),
		"workers", e.cfg.Engine.Workers,
		"queue_size", e.cfg.Engine.QueueSize)
	return nil
}

func (e *Engine) registerHandlers() {
	prod := transform.ProductionDefaults
	if e.cfg.Engine.DefaultLocation != "" {
		prod.Location = e.cfg.Engine.DefaultLocation
	}

	environmental := NewEnvironmentalHandler(e.coordinator, prod)
	e.router.Register(messaging.TopicTemperature, environmental)
	e.router.Register(messaging.TopicHumidity, environmental)

	e.router.Register(messaging.TopicAirQuality, NewAirQualityHandler(e.coordinator, prod))

	status := NewDeviceStatusHandler(e.coordinator, prod)
	e.router.Register(messaging.TopicDeviceStatus, status)
	e.router.Register(messaging.TopicDeviceHealth, status)

	e.router.Register(messaging.TopicTest, NewCatchAllHandler(e.coordinator))
}

// receive runs on the transport delivery path: decode, count, hand off
// to the pool. Enqueue blocking is the engine's backpressure.
func (e *Engine) receive(ctx context.Context, msg *messaging.Message) error {
	metrics.MessagesTotal.WithLabelValues(msg.Topic).Inc()

	env := envelope.Decode(msg.Topic, msg.Data, msg.Timestamp)
	if env.IsRaw() {
		metrics.DecodeFailures.Inc()
		e.logger.Debug("payload is not a JSON object, wrapped as raw text",
			"topic", msg.Topic, "envelope_id", env.ID)
	}

	if err := e.pool.Enqueue(ctx, env); err != nil {
		e.logger.Error("enqueue failed, message dropped",
			"topic", msg.Topic, "envelope_id", env.ID, "error", err)
		return err
	}
	return nil
}

func (e *Engine) migrateUp() error {
	m, err := migrate.New("file://"+e.cfg.Postgres.MigrationsPath, e.cfg.Postgres.URL)
	if err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		e.logger.Warn("could not get migration version", "error", err)
	} else {
		e.logger.Info("database migration complete", "version", version, "dirty", dirty)
	}
	return nil
}

func (e *Engine) startMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	e.metricsServer = &http.Server{
		Addr:         e.cfg.Metrics.Addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	go func() {
		if err := e.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.Error("metrics server failed", "error", err)
		}
	}()
	e.logger.Info("metrics server listening", "addr", e.cfg.Metrics.Addr)
}

// Stop unsubscribes, drains the transport, waits for queued envelopes to
// finish, and closes every backend.
func (e *Engine) Stop(ctx context.Context) {
	if e.router != nil {
		e.router.Detach()
	}
	if e.transport != nil {
		if err := e.transport.Drain(); err != nil {
			e.logger.Warn("transport drain failed", "error", err)
		}
	}
	if e.pool != nil {
		e.pool.Close()
	}

	if e.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := e.metricsServer.Shutdown(shutdownCtx); err != nil {
			e.logger.Warn("metrics server shutdown failed", "error", err)
		}
	}

	e.closePartial(ctx)
	e.logger.Info("engine stopped")
}

// closePartial closes whichever backends have been opened so far.
func (e *Engine) closePartial(ctx context.Context) {
	if e.tracker != nil {
		if err := e.tracker.Close(); err != nil {
			e.logger.Warn("redis close failed", "error", err)
		}
		e.tracker = nil
	}
	if e.graphDB != nil {
		if err := e.graphDB.Close(ctx); err != nil {
			e.logger.Warn("neo4j close failed", "error", err)
		}
		e.graphDB = nil
	}
	if e.pg != nil {
		e.pg.Close()
		e.pg = nil
	}
}
