// internal/execution/fsm.go
package execution

import (
	"errors"
	"fmt"

	"github.com/rovshanmuradov/dex-router/internal/storage/models"
)

// ErrIllegalTransition means the pipeline tried a status change the order
// lifecycle does not allow.
var ErrIllegalTransition = errors.New("illegal status transition")

// transitions lists the allowed successors of every non-terminal status.
// Moving back to pending is a retry; pending to failed covers an attempt
// that could not even be announced.
var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.StatusPending:   {models.StatusRouting, models.StatusFailed},
	models.StatusRouting:   {models.StatusBuilding, models.StatusPending, models.StatusFailed},
	models.StatusBuilding:  {models.StatusSubmitted, models.StatusPending, models.StatusFailed},
	models.StatusSubmitted: {models.StatusConfirmed, models.StatusPending, models.StatusFailed},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to models.OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// machine tracks the status and attempt number of one order inside its
// pipeline. It is owned by a single goroutine.
type machine struct {
	state       models.OrderStatus
	attempt     int
	maxAttempts int
}

func newMachine(maxAttempts int) *machine {
	return &machine{
		state:       models.StatusPending,
		attempt:     1,
		maxAttempts: maxAttempts,
	}
}

func (m *machine) to(next models.OrderStatus) error {
	if !CanTransition(m.state, next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, m.state, next)
	}
	m.state = next
	return nil
}

// fail records a failed attempt. It moves the order back to pending when
// attempts remain and to failed otherwise.
func (m *machine) fail() (models.OrderStatus, error) {
	next := models.StatusPending
	if m.attempt >= m.maxAttempts {
		next = models.StatusFailed
	}
	if next != m.state {
		if err := m.to(next); err != nil {
			return m.state, err
		}
	}
	if next == models.StatusPending {
		m.attempt++
	}
	return next, nil
}
