// internal/app/shutdown.go
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// StopFunc stops one service. It should return once ctx is done.
type StopFunc func(ctx context.Context) error

// ShutdownHandler stops registered services in reverse registration order,
// one at a time, under a shared deadline.
type ShutdownHandler struct {
	logger   *zap.Logger
	mu       sync.Mutex
	services []namedService
	once     sync.Once
	err      error
}

type namedService struct {
	name string
	stop StopFunc
}

// NewShutdownHandler creates an empty handler.
func NewShutdownHandler(logger *zap.Logger) *ShutdownHandler {
	return &ShutdownHandler{logger: logger.Named("shutdown")}
}

// Add registers a service. Services added later are stopped first.
func (sh *ShutdownHandler) Add(name string, stop StopFunc) {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sh.services = append(sh.services, namedService{name: name, stop: stop})
	sh.logger.Debug("Registered service for shutdown", zap.String("service", name))
}

// AddCloser registers a service stopped by a context-free Close.
func (sh *ShutdownHandler) AddCloser(name string, closeFn func() error) {
	sh.Add(name, func(context.Context) error { return closeFn() })
}

// Shutdown stops every service. Later calls return the first result.
func (sh *ShutdownHandler) Shutdown(ctx context.Context) error {
	sh.once.Do(func() {
		sh.err = sh.shutdown(ctx)
	})
	return sh.err
}

func (sh *ShutdownHandler) shutdown(ctx context.Context) error {
	sh.mu.Lock()
	services := make([]namedService, len(sh.services))
	copy(services, sh.services)
	sh.mu.Unlock()

	sh.logger.Info("Starting graceful shutdown", zap.Int("services", len(services)))

	var errs []error
	for i := len(services) - 1; i >= 0; i-- {
		svc := services[i]
		sh.logger.Info("Shutting down service", zap.String("service", svc.name))

		done := make(chan error, 1)
		go func() { done <- svc.stop(ctx) }()

		select {
		case err := <-done:
			if err != nil {
				sh.logger.Error("Failed to shutdown service", zap.String("service", svc.name), zap.Error(err))
				errs = append(errs, fmt.Errorf("%s: %w", svc.name, err))
				continue
			}
			sh.logger.Info("Service shutdown complete", zap.String("service", svc.name))
		case <-ctx.Done():
			sh.logger.Error("Shutdown timeout for service", zap.String("service", svc.name))
			errs = append(errs, fmt.Errorf("%s: shutdown timeout: %w", svc.name, ctx.Err()))
		}
	}

	if len(errs) > 0 {
		sh.logger.Error("Shutdown completed with errors", zap.Int("error_count", len(errs)))
		return errors.Join(errs...)
	}
	sh.logger.Info("Graceful shutdown completed successfully")
	return nil
}
