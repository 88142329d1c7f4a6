// internal/storage/models/order.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusRouting   OrderStatus = "routing"
	StatusBuilding  OrderStatus = "building"
	StatusSubmitted OrderStatus = "submitted"
	StatusConfirmed OrderStatus = "confirmed"
	StatusFailed    OrderStatus = "failed"
)

// IsTerminal reports whether no further transitions are possible.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// IsActive reports whether a pipeline is doing work for the order.
func (s OrderStatus) IsActive() bool {
	return s == StatusRouting || s == StatusBuilding || s == StatusSubmitted
}

// Order is the persisted record of a market order.
//
// SelectedDex, RoutingData, TxHash and ExecutionPrice are nil while the order
// is pending or failed.
type Order struct {
	ID                string           `json:"id"`
	TokenPair         string           `json:"tokenPair"`
	Amount            decimal.Decimal  `json:"amount"`
	SlippageTolerance decimal.Decimal  `json:"slippageTolerance"`
	Status            OrderStatus      `json:"status"`
	SelectedDex       *Platform        `json:"selectedDex"`
	ExecutionPrice    *decimal.Decimal `json:"executionPrice"`
	TxHash            *string          `json:"txHash"`
	ErrorMessage      *string          `json:"errorMessage"`
	RoutingData       *RoutingDecision `json:"routingData"`
	CreatedAt         time.Time        `json:"createdAt"`
	UpdatedAt         time.Time        `json:"updatedAt"`
}

// NewOrder holds the execution parameters of an order being created.
type NewOrder struct {
	TokenPair         string
	Amount            decimal.Decimal
	SlippageTolerance decimal.Decimal
}

// Clone returns a copy that shares no mutable state with o.
// RoutingData is immutable once produced and is shared.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	if o.SelectedDex != nil {
		dex := *o.SelectedDex
		c.SelectedDex = &dex
	}
	if o.ExecutionPrice != nil {
		price := *o.ExecutionPrice
		c.ExecutionPrice = &price
	}
	if o.TxHash != nil {
		tx := *o.TxHash
		c.TxHash = &tx
	}
	if o.ErrorMessage != nil {
		msg := *o.ErrorMessage
		c.ErrorMessage = &msg
	}
	return &c
}

// Mutation changes fields of an order inside a store update.
type Mutation func(o *Order)

// WithStatus sets the order status.
func WithStatus(status OrderStatus) Mutation {
	return func(o *Order) {
		o.Status = status
	}
}

// WithRouting records a routing decision and the venue it selected.
func WithRouting(decision *RoutingDecision) Mutation {
	return func(o *Order) {
		dex := decision.SelectedDex
		o.SelectedDex = &dex
		o.RoutingData = decision
	}
}

// WithExecution records a successful swap.
func WithExecution(txHash string, price decimal.Decimal) Mutation {
	return func(o *Order) {
		o.TxHash = &txHash
		o.ExecutionPrice = &price
	}
}

// WithError sets the error message.
func WithError(msg string) Mutation {
	return func(o *Order) {
		o.ErrorMessage = &msg
	}
}

// ClearError removes the error message.
func ClearError() Mutation {
	return func(o *Order) {
		o.ErrorMessage = nil
	}
}

// ClearExecution drops the routing decision and execution result.
func ClearExecution() Mutation {
	return func(o *Order) {
		o.SelectedDex = nil
		o.RoutingData = nil
		o.TxHash = nil
		o.ExecutionPrice = nil
	}
}
