// internal/events/journal.go
package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/rovshanmuradov/dex-router/internal/storage/models"
)

// Journal keeps the most recent transaction log entries derived from order
// updates in a fixed-size ring buffer.
type Journal struct {
	mu      sync.Mutex
	ring    []models.TransactionLog
	next    int
	wrapped bool

	total   uint64
	evicted uint64
}

var _ Observer = (*Journal)(nil)

// NewJournal creates a journal holding up to size entries.
func NewJournal(size int) *Journal {
	if size <= 0 {
		size = 1
	}
	return &Journal{ring: make([]models.TransactionLog, size)}
}

// Deliver records an update as a log entry.
func (j *Journal) Deliver(_ context.Context, env Envelope) error {
	if env.Type != TypeOrderUpdate {
		return nil
	}
	j.Add(EntryFor(env.Data))
	return nil
}

// Add appends an entry, evicting the oldest one when full.
func (j *Journal) Add(entry models.TransactionLog) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.wrapped {
		j.evicted++
	}
	j.ring[j.next] = entry
	j.next = (j.next + 1) % len(j.ring)
	if j.next == 0 {
		j.wrapped = true
	}
	j.total++
}

// Recent returns up to limit entries, newest first. A non-positive limit
// returns everything held.
func (j *Journal) Recent(limit int) []models.TransactionLog {
	j.mu.Lock()
	defer j.mu.Unlock()

	count := j.next
	if j.wrapped {
		count = len(j.ring)
	}
	if limit > 0 && limit < count {
		count = limit
	}

	out := make([]models.TransactionLog, 0, count)
	for i := 1; i <= count; i++ {
		idx := (j.next - i + len(j.ring)) % len(j.ring)
		out = append(out, j.ring[idx])
	}
	return out
}

// Stats returns total and evicted entry counts.
func (j *Journal) Stats() (total, evicted uint64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.total, j.evicted
}

// EntryFor renders an order update as a transaction log entry.
func EntryFor(u StatusUpdate) models.TransactionLog {
	level := models.LogInfo
	var msg string

	switch u.Status {
	case models.StatusRouting:
		msg = "Comparing DEX prices..."
	case models.StatusBuilding:
		msg = "Creating transaction..."
	case models.StatusSubmitted:
		msg = "Transaction sent to network"
	case models.StatusConfirmed:
		tx := ""
		if u.Data != nil {
			tx = u.Data.TxHash
		}
		if len(tx) > 8 {
			tx = tx[:8]
		}
		msg = fmt.Sprintf("Order confirmed! Tx: %s...", tx)
	case models.StatusFailed:
		level = models.LogError
		reason := ""
		if u.Data != nil {
			reason = u.Data.ErrorMessage
		}
		msg = "Order failed: " + reason
	default:
		msg = fmt.Sprintf("Order status: %s", u.Status)
	}

	entry := models.TransactionLog{
		ID:        fmt.Sprintf("%s-%d", u.OrderID, u.Timestamp),
		OrderID:   u.OrderID,
		Level:     level,
		Message:   msg,
		Timestamp: u.Timestamp,
	}
	if u.Data != nil {
		entry.Data = u.Data
	}
	return entry
}
