// internal/api/server.go
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/dex-router/internal/events"
	"github.com/rovshanmuradov/dex-router/internal/service"
	"github.com/rovshanmuradov/dex-router/internal/storage/models"
)

// OrderService is the order boundary the handlers talk to.
type OrderService interface {
	Submit(ctx context.Context, req service.SubmitRequest) (*models.Order, error)
	Get(ctx context.Context, id string) (*models.Order, error)
	List(ctx context.Context) ([]*models.Order, error)
}

// QueueStats reports execution queue occupancy.
type QueueStats interface {
	Active() int
	Capacity() int
}

// Subscriber registers live event observers.
type Subscriber interface {
	Subscribe(o events.Observer) events.Subscription
}

// LogReader serves recent transaction log entries.
type LogReader interface {
	Recent(limit int) []models.TransactionLog
}

// Deps are the collaborators of the HTTP layer.
type Deps struct {
	Orders  OrderService
	Queue   QueueStats
	Events  Subscriber
	Journal LogReader
	Metrics http.Handler
	// WSBuffer is the number of updates buffered per websocket client.
	WSBuffer int
	Logger   *zap.Logger
}

// Handler serves the REST API and the websocket event stream.
type Handler struct {
	orders   OrderService
	queue    QueueStats
	events   Subscriber
	journal  LogReader
	wsBuffer int
	logger   *zap.Logger
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(deps Deps) *gin.Engine {
	logger := deps.Logger.Named("api")
	h := &Handler{
		orders:   deps.Orders,
		queue:    deps.Queue,
		events:   deps.Events,
		journal:  deps.Journal,
		wsBuffer: deps.WSBuffer,
		logger:   logger,
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	api := r.Group("/api")
	api.POST("/orders/execute", h.createOrder)
	api.GET("/orders", h.listOrders)
	api.GET("/orders/:id", h.getOrder)
	api.GET("/health", h.health)
	api.GET("/logs", h.recentLogs)

	r.GET("/ws", h.streamEvents)
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics))
	}
	return r
}

// requestLogger logs every request at debug level and server errors at
// error level.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		if status >= http.StatusInternalServerError {
			logger.Error("Request failed", fields...)
			return
		}
		logger.Debug("Request served", fields...)
	}
}
