// internal/execution/pipeline.go
package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/dex-router/internal/dex"
	"github.com/rovshanmuradov/dex-router/internal/events"
	"github.com/rovshanmuradov/dex-router/internal/metrics"
	"github.com/rovshanmuradov/dex-router/internal/storage"
	"github.com/rovshanmuradov/dex-router/internal/storage/models"
)

// Router is what the pipeline needs from the routing engine.
type Router interface {
	GetRoutingDecision(ctx context.Context, tokenPair string, amount float64) (*models.RoutingDecision, error)
	ExecuteSwap(ctx context.Context, req dex.SwapRequest) (*dex.SwapResult, error)
}

// Publisher broadcasts status updates.
type Publisher interface {
	Publish(ctx context.Context, update events.StatusUpdate)
}

// PipelineConfig holds pipeline timings.
type PipelineConfig struct {
	MaxAttempts int
	BuildDelay  time.Duration
	BackoffBase time.Duration
}

// DefaultPipelineConfig returns the production timings.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		MaxAttempts: 3,
		BuildDelay:  500 * time.Millisecond,
		BackoffBase: 2 * time.Second,
	}
}

// retryWindow bounds the whole retry loop of one order.
const retryWindow = time.Hour

// Pipeline drives one order from pending to confirmed or failed.
// Every status change is persisted before it is published.
type Pipeline struct {
	cfg       PipelineConfig
	store     storage.Store
	router    Router
	publisher Publisher
	metrics   *metrics.Collector
	logger    *zap.Logger
}

// NewPipeline creates a pipeline. A nil collector gets a private one.
func NewPipeline(cfg PipelineConfig, store storage.Store, router Router, publisher Publisher, collector *metrics.Collector, logger *zap.Logger) *Pipeline {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if collector == nil {
		collector = metrics.NewCollector()
	}
	return &Pipeline{
		cfg:       cfg,
		store:     store,
		router:    router,
		publisher: publisher,
		metrics:   collector,
		logger:    logger.Named("pipeline"),
	}
}

// Run executes the job until the order is confirmed or has used all of its
// attempts. Failures are recorded on the order, never returned.
func (p *Pipeline) Run(ctx context.Context, job *Job) {
	log := p.logger.With(zap.String("order_id", job.OrderID))
	m := newMachine(p.cfg.MaxAttempts)

	if _, err := p.store.Update(ctx, job.OrderID, models.WithStatus(models.StatusPending)); err != nil {
		log.Error("Failed to persist pending status", zap.Error(err))
		p.finishFailed(ctx, job, m, err, log)
		return
	}
	p.publish(ctx, job.OrderID, models.StatusPending, nil)

	op := func() (struct{}, error) {
		err := p.attempt(ctx, job, m, log)
		if err == nil {
			return struct{}{}, nil
		}
		failed := m.attempt
		log.Warn("Attempt failed",
			zap.Int("attempt", failed),
			zap.Int("max_attempts", p.cfg.MaxAttempts),
			zap.Error(err))

		next, ferr := m.fail()
		if ferr != nil {
			return struct{}{}, backoff.Permanent(errors.Join(err, ferr))
		}
		if next == models.StatusFailed {
			return struct{}{}, backoff.Permanent(err)
		}
		p.scheduleRetry(ctx, job, failed, err, log)
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(p.newBackOff()),
		backoff.WithMaxElapsedTime(retryWindow),
		backoff.WithNotify(func(err error, wait time.Duration) {
			log.Info("Waiting before retry",
				zap.Int("next_attempt", m.attempt),
				zap.Duration("backoff", wait))
		}),
	)
	if err != nil {
		p.finishFailed(ctx, job, m, err, log)
		return
	}

	p.metrics.RecordCompletion(models.StatusConfirmed, m.attempt)
	log.Info("Order confirmed", zap.Int("attempt", m.attempt))
}

func (p *Pipeline) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.BackoffBase
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = p.cfg.BackoffBase << uint(p.cfg.MaxAttempts)
	return b
}

// attempt runs routing, building, submission and confirmation once.
func (p *Pipeline) attempt(ctx context.Context, job *Job, m *machine, log *zap.Logger) error {
	log = log.With(zap.Int("attempt", m.attempt))

	if err := p.transition(ctx, job.OrderID, m, models.StatusRouting, nil); err != nil {
		return err
	}
	decision, err := p.router.GetRoutingDecision(ctx, job.TokenPair, job.Amount.InexactFloat64())
	if err != nil {
		return fmt.Errorf("routing: %w", err)
	}
	if _, err := p.store.Update(ctx, job.OrderID, models.WithRouting(decision)); err != nil {
		return fmt.Errorf("persist routing decision: %w", err)
	}
	p.metrics.RecordRouting(decision.SelectedDex)
	p.publish(ctx, job.OrderID, models.StatusRouting, &events.UpdateData{RoutingDecision: decision})
	log.Debug("Venue selected",
		zap.Stringer("dex", decision.SelectedDex),
		zap.Float64("price_difference", decision.PriceDifference))

	if err := p.transition(ctx, job.OrderID, m, models.StatusBuilding, nil); err != nil {
		return err
	}
	if err := sleep(ctx, p.cfg.BuildDelay); err != nil {
		return err
	}

	if err := p.transition(ctx, job.OrderID, m, models.StatusSubmitted, nil); err != nil {
		return err
	}
	started := time.Now()
	result, err := p.router.ExecuteSwap(ctx, dex.SwapRequest{
		Platform:          decision.SelectedDex,
		TokenPair:         job.TokenPair,
		Amount:            job.Amount.InexactFloat64(),
		SlippageTolerance: job.SlippageTolerance.InexactFloat64(),
		QuotedPrice:       decision.SelectedQuote().Price,
	})
	p.metrics.RecordSwap(decision.SelectedDex, time.Since(started), err == nil)
	if err != nil {
		return err
	}

	price := decimal.NewFromFloat(result.ExecutionPrice)
	if err := m.to(models.StatusConfirmed); err != nil {
		return err
	}
	if _, err := p.store.Update(ctx, job.OrderID,
		models.WithStatus(models.StatusConfirmed),
		models.WithExecution(result.TxHash, price),
		models.ClearError(),
	); err != nil {
		// The swap went through; retrying would execute it twice.
		log.Error("Failed to persist confirmation", zap.String("tx_hash", result.TxHash), zap.Error(err))
	}
	p.metrics.RecordTransition(models.StatusConfirmed)
	p.publish(ctx, job.OrderID, models.StatusConfirmed, &events.UpdateData{
		TxHash:         result.TxHash,
		ExecutionPrice: &price,
	})
	return nil
}

// transition moves the machine, persists the new status and publishes it.
func (p *Pipeline) transition(ctx context.Context, orderID string, m *machine, status models.OrderStatus, data *events.UpdateData) error {
	if err := m.to(status); err != nil {
		return err
	}
	if _, err := p.store.Update(ctx, orderID, models.WithStatus(status)); err != nil {
		return fmt.Errorf("persist %s status: %w", status, err)
	}
	p.metrics.RecordTransition(status)
	p.publish(ctx, orderID, status, data)
	return nil
}

// scheduleRetry records the failed attempt on the order. The pending state
// between attempts is stored but not broadcast.
func (p *Pipeline) scheduleRetry(ctx context.Context, job *Job, failed int, cause error, log *zap.Logger) {
	msg := fmt.Sprintf("Retry %d/%d after error: %s", failed, p.cfg.MaxAttempts, cause.Error())
	if _, err := p.store.Update(ctx, job.OrderID,
		models.WithStatus(models.StatusPending),
		models.ClearExecution(),
		models.WithError(msg),
	); err != nil {
		log.Error("Failed to persist retry", zap.Int("attempt", failed), zap.Error(err))
	}
	p.metrics.RecordTransition(models.StatusPending)
	p.metrics.RecordRetry()
}

func (p *Pipeline) finishFailed(ctx context.Context, job *Job, m *machine, cause error, log *zap.Logger) {
	msg := cause.Error()
	if _, err := p.store.Update(ctx, job.OrderID,
		models.WithStatus(models.StatusFailed),
		models.ClearExecution(),
		models.WithError(msg),
	); err != nil && !errors.Is(err, storage.ErrNotFound) {
		log.Error("Failed to persist failure", zap.Error(err))
	}
	p.metrics.RecordTransition(models.StatusFailed)
	p.metrics.RecordCompletion(models.StatusFailed, m.attempt)
	p.publish(ctx, job.OrderID, models.StatusFailed, &events.UpdateData{ErrorMessage: msg})
	log.Error("Order failed",
		zap.Int("attempt", m.attempt),
		zap.Int("max_attempts", p.cfg.MaxAttempts),
		zap.String("error", msg))
}

func (p *Pipeline) publish(ctx context.Context, orderID string, status models.OrderStatus, data *events.UpdateData) {
	p.publisher.Publish(ctx, events.NewStatusUpdate(orderID, status, data))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
