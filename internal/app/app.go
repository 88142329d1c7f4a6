// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/dex-router/internal/api"
	"github.com/rovshanmuradov/dex-router/internal/config"
	"github.com/rovshanmuradov/dex-router/internal/dex"
	"github.com/rovshanmuradov/dex-router/internal/events"
	"github.com/rovshanmuradov/dex-router/internal/execution"
	"github.com/rovshanmuradov/dex-router/internal/metrics"
	"github.com/rovshanmuradov/dex-router/internal/service"
	"github.com/rovshanmuradov/dex-router/internal/storage"
	"github.com/rovshanmuradov/dex-router/internal/storage/memory"
	"github.com/rovshanmuradov/dex-router/internal/storage/pebble"
)

const sinkTimeout = 5 * time.Second

// App owns every long-lived service of the router.
type App struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    storage.Store
	bus      *events.Bus
	journal  *events.Journal
	queue    *execution.Queue
	orders   *service.OrderService
	metrics  *metrics.Collector
	handler  http.Handler
	shutdown *ShutdownHandler
}

// New wires the router from configuration.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{
		cfg:      cfg,
		logger:   logger,
		shutdown: NewShutdownHandler(logger),
	}

	store, err := openStore(cfg.Store, logger)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.shutdown.AddCloser("store", store.Close)

	a.metrics = metrics.NewCollector()
	a.bus = events.NewBus(logger)
	a.metrics.TrackEvents(a.bus)
	a.shutdown.Add("event_bus", a.bus.Shutdown)

	a.journal = events.NewJournal(cfg.Events.JournalSize)
	a.bus.Subscribe(a.journal)
	a.attachSinks()

	provider := dex.NewSimulatedProvider(simulatorConfig(cfg.Router), logger)
	router := dex.NewRouter(provider, logger)
	pipeline := execution.NewPipeline(pipelineConfig(cfg.Pipeline), store, router, a.bus, a.metrics, logger)
	a.queue = execution.NewQueue(cfg.Queue.MaxConcurrent, store, pipeline, a.metrics, logger)
	a.shutdown.Add("queue", a.queue.Wait)

	a.orders = service.NewOrderService(store, a.queue, logger)
	a.handler = api.NewRouter(api.Deps{
		Orders:   a.orders,
		Queue:    a.queue,
		Events:   a.bus,
		Journal:  a.journal,
		Metrics:  a.metrics.Handler(),
		WSBuffer: cfg.Events.WSBuffer,
		Logger:   logger,
	})

	logger.Info("Router initialized",
		zap.String("store", cfg.Store.Backend),
		zap.Int("max_concurrent", cfg.Queue.MaxConcurrent),
		zap.Int("max_attempts", cfg.Pipeline.MaxAttempts))
	return a, nil
}

func openStore(cfg config.StoreConfig, logger *zap.Logger) (storage.Store, error) {
	switch cfg.Backend {
	case config.BackendPebble:
		s, err := pebble.Open(cfg.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("open order store: %w", err)
		}
		return s, nil
	default:
		return memory.New(), nil
	}
}

// attachSinks subscribes the optional Kafka and Redis exporters. Both are
// wrapped so a slow broker never stalls the pipeline.
func (a *App) attachSinks() {
	if len(a.cfg.Kafka.Brokers) > 0 {
		sink := events.NewKafkaSink(a.cfg.Kafka.Brokers, a.cfg.Kafka.Topic)
		a.bus.Subscribe(events.NewAsyncObserver("kafka", sink, a.cfg.Events.SinkBuffer, sinkTimeout, a.logger))
		a.logger.Info("Kafka sink enabled",
			zap.Strings("brokers", a.cfg.Kafka.Brokers),
			zap.String("topic", a.cfg.Kafka.Topic))
	}
	if a.cfg.Redis.Addr != "" {
		sink := events.NewRedisSink(a.cfg.Redis.Addr, a.cfg.Redis.Channel)
		a.bus.Subscribe(events.NewAsyncObserver("redis", sink, a.cfg.Events.SinkBuffer, sinkTimeout, a.logger))
		a.logger.Info("Redis sink enabled",
			zap.String("addr", a.cfg.Redis.Addr),
			zap.String("channel", a.cfg.Redis.Channel))
	}
}

func simulatorConfig(c config.RouterConfig) dex.SimulatorConfig {
	return dex.SimulatorConfig{
		QuoteLatencyMin: c.QuoteLatencyMin,
		QuoteLatencyMax: c.QuoteLatencyMax,
		SwapLatencyMin:  c.SwapLatencyMin,
		SwapLatencyMax:  c.SwapLatencyMax,
		FailureRate:     c.FailureRate,
		Seed:            c.Seed,
	}
}

func pipelineConfig(c config.PipelineConfig) execution.PipelineConfig {
	return execution.PipelineConfig{
		MaxAttempts: c.MaxAttempts,
		BuildDelay:  c.BuildDelay,
		BackoffBase: c.BackoffBase,
	}
}

// Handler returns the HTTP handler serving the API.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Orders returns the order service.
func (a *App) Orders() *service.OrderService {
	return a.orders
}

// Run serves HTTP until ctx is cancelled, SIGINT or SIGTERM arrives or the
// listener fails, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", a.cfg.Server.Addr)
	if err != nil {
		_ = a.Shutdown(context.Background())
		return fmt.Errorf("listen on %s: %w", a.cfg.Server.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.shutdown.Add("http_server", srv.Shutdown)

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server listening", zap.String("addr", ln.Addr().String()))
		serveErr <- srv.Serve(ln)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("Stop requested", zap.Error(context.Cause(ctx)))
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	return errors.Join(runErr, a.Shutdown(shutdownCtx))
}

// Shutdown stops the HTTP server, drains the queue, closes the event bus
// with its sinks and finally the store.
func (a *App) Shutdown(ctx context.Context) error {
	return a.shutdown.Shutdown(ctx)
}
