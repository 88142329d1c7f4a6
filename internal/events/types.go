// internal/events/types.go
package events

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rovshanmuradov/dex-router/internal/storage/models"
)

// TypeOrderUpdate is the envelope type of order status changes.
const TypeOrderUpdate = "orderUpdate"

// StatusUpdate reports that an order moved to a new status.
type StatusUpdate struct {
	OrderID   string             `json:"orderId"`
	Status    models.OrderStatus `json:"status"`
	Timestamp int64              `json:"timestamp"` // unix milliseconds
	Data      *UpdateData        `json:"data,omitempty"`
}

// UpdateData carries the payload available at the time of the update.
type UpdateData struct {
	RoutingDecision *models.RoutingDecision `json:"routingDecision,omitempty"`
	TxHash          string                  `json:"txHash,omitempty"`
	ExecutionPrice  *decimal.Decimal        `json:"executionPrice,omitempty"`
	ErrorMessage    string                  `json:"errorMessage,omitempty"`
}

// Envelope is the wire form delivered to observers.
type Envelope struct {
	Type string       `json:"type"`
	Data StatusUpdate `json:"data"`
}

// NewStatusUpdate stamps an update with the current time.
func NewStatusUpdate(orderID string, status models.OrderStatus, data *UpdateData) StatusUpdate {
	return StatusUpdate{
		OrderID:   orderID,
		Status:    status,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}
