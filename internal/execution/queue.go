// internal/execution/queue.go
package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/rovshanmuradov/dex-router/internal/metrics"
	"github.com/rovshanmuradov/dex-router/internal/storage"
	"github.com/rovshanmuradov/dex-router/internal/storage/models"
)

var (
	// ErrAlreadyQueued is returned when an order already has a running pipeline.
	ErrAlreadyQueued = errors.New("order already queued")
	// ErrQueueClosed is returned once the queue has started draining.
	ErrQueueClosed = errors.New("queue closed")
)

// Runner executes a job to completion.
type Runner interface {
	Run(ctx context.Context, job *Job)
}

// Queue bounds the number of pipelines running at once. Callers wait for a
// slot in arrival order.
type Queue struct {
	store    storage.Store
	runner   Runner
	sem      *semaphore.Weighted
	capacity int
	metrics  *metrics.Collector
	logger   *zap.Logger

	mu       sync.Mutex
	inFlight map[string]time.Time
	queued   map[string]struct{}
	closed   bool
	wg       sync.WaitGroup
}

// NewQueue creates a queue running at most maxConcurrent jobs.
func NewQueue(maxConcurrent int, store storage.Store, runner Runner, collector *metrics.Collector, logger *zap.Logger) *Queue {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if collector == nil {
		collector = metrics.NewCollector()
	}
	return &Queue{
		store:    store,
		runner:   runner,
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		capacity: maxConcurrent,
		metrics:  collector,
		logger:   logger.Named("queue"),
		inFlight: make(map[string]time.Time),
		queued:   make(map[string]struct{}),
	}
}

// Admit clears results left from any previous run of the order, waits for
// a free slot and starts the pipeline in the background. Once the order is
// accepted it runs to completion: neither the wait nor the pipeline is tied
// to ctx cancellation.
func (q *Queue) Admit(ctx context.Context, job *Job) error {
	if err := q.reserve(job.OrderID); err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)

	if _, err := q.store.Update(ctx, job.OrderID, models.ClearExecution(), models.ClearError()); err != nil {
		q.unreserve(job.OrderID)
		return fmt.Errorf("reset order %s: %w", job.OrderID, err)
	}

	waitStart := time.Now()
	if err := q.sem.Acquire(ctx, 1); err != nil {
		q.unreserve(job.OrderID)
		return fmt.Errorf("wait for slot: %w", err)
	}

	q.mu.Lock()
	delete(q.queued, job.OrderID)
	q.inFlight[job.OrderID] = time.Now()
	q.mu.Unlock()

	wait := time.Since(waitStart)
	q.metrics.RecordAdmission(wait)
	q.logger.Debug("Order admitted",
		zap.String("order_id", job.OrderID),
		zap.Duration("wait", wait),
		zap.Int("active", q.Active()))

	go q.run(ctx, job)
	return nil
}

// reserve claims orderID until its pipeline finishes, so a concurrent Admit
// for the same order fails before touching the stored record.
func (q *Queue) reserve(orderID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.checkLocked(orderID); err != nil {
		return err
	}
	q.queued[orderID] = struct{}{}
	q.wg.Add(1)
	return nil
}

func (q *Queue) unreserve(orderID string) {
	q.mu.Lock()
	delete(q.queued, orderID)
	q.mu.Unlock()
	q.wg.Done()
}

func (q *Queue) run(ctx context.Context, job *Job) {
	defer q.wg.Done()
	defer q.release(job.OrderID)
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("Pipeline panicked",
				zap.String("order_id", job.OrderID),
				zap.Any("panic", r))
		}
	}()

	q.runner.Run(ctx, job)
}

func (q *Queue) release(orderID string) {
	q.mu.Lock()
	delete(q.inFlight, orderID)
	q.mu.Unlock()

	q.sem.Release(1)
	q.metrics.RecordRelease()
}

func (q *Queue) checkLocked(orderID string) error {
	if q.closed {
		return ErrQueueClosed
	}
	if _, ok := q.inFlight[orderID]; ok {
		return ErrAlreadyQueued
	}
	if _, ok := q.queued[orderID]; ok {
		return ErrAlreadyQueued
	}
	return nil
}

// Active returns the number of running pipelines.
func (q *Queue) Active() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inFlight)
}

// Capacity returns the maximum number of concurrent pipelines.
func (q *Queue) Capacity() int {
	return q.capacity
}

// Wait stops admitting new orders and blocks until every accepted order,
// running or still waiting for a slot, finishes or ctx is done.
func (q *Queue) Wait(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		q.logger.Warn("Queue drain interrupted", zap.Int("active", q.Active()))
		return ctx.Err()
	}
}
