// internal/service/service.go
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/dex-router/internal/execution"
	"github.com/rovshanmuradov/dex-router/internal/storage"
	"github.com/rovshanmuradov/dex-router/internal/storage/models"
)

// Admitter hands orders to the execution queue.
type Admitter interface {
	Admit(ctx context.Context, job *execution.Job) error
}

// OrderService is the submission and query boundary of the router.
type OrderService struct {
	store  storage.Store
	queue  Admitter
	logger *zap.Logger
}

// NewOrderService creates the service.
func NewOrderService(store storage.Store, queue Admitter, logger *zap.Logger) *OrderService {
	return &OrderService{
		store:  store,
		queue:  queue,
		logger: logger.Named("orders"),
	}
}

// Submit validates the request, stores the order and queues it for
// execution. The returned order is the freshly created pending record;
// processing continues in the background.
func (s *OrderService) Submit(ctx context.Context, req SubmitRequest) (*models.Order, error) {
	params, err := req.Validate()
	if err != nil {
		return nil, err
	}

	order, err := s.store.Create(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	if err := s.queue.Admit(ctx, execution.JobFor(order)); err != nil {
		s.logger.Warn("Order created but not queued",
			zap.String("order_id", order.ID),
			zap.Error(err))
		s.abandon(ctx, order.ID, err)
		return nil, fmt.Errorf("queue order %s: %w", order.ID, err)
	}

	s.logger.Info("Order queued",
		zap.String("order_id", order.ID),
		zap.String("token_pair", order.TokenPair),
		zap.Stringer("amount", order.Amount),
		zap.Stringer("slippage", order.SlippageTolerance))
	return order, nil
}

// abandon marks an order that was stored but never queued as failed, so it
// does not linger as pending.
func (s *OrderService) abandon(ctx context.Context, id string, cause error) {
	_, err := s.store.Update(context.WithoutCancel(ctx), id,
		models.WithStatus(models.StatusFailed),
		models.WithError(cause.Error()))
	if err != nil {
		s.logger.Error("Failed to mark unqueued order as failed",
			zap.String("order_id", id),
			zap.Error(err))
	}
}

// Get returns one order or storage.ErrNotFound.
func (s *OrderService) Get(ctx context.Context, id string) (*models.Order, error) {
	return s.store.Get(ctx, id)
}

// List returns all orders, newest first.
func (s *OrderService) List(ctx context.Context) ([]*models.Order, error) {
	return s.store.List(ctx)
}
