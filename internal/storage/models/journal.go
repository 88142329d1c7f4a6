// internal/storage/models/journal.go
package models

// LogLevel is the severity of a transaction log entry.
type LogLevel string

const (
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// TransactionLog is a human readable record of an order status change.
type TransactionLog struct {
	ID        string      `json:"id"`
	OrderID   string      `json:"orderId"`
	Level     LogLevel    `json:"level"`
	Message   string      `json:"message"`
	Timestamp int64       `json:"timestamp"` // unix milliseconds
	Data      interface{} `json:"data,omitempty"`
}
