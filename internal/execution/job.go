// internal/execution/job.go
package execution

import (
	"github.com/shopspring/decimal"

	"github.com/rovshanmuradov/dex-router/internal/storage/models"
)

// Job is the unit of work handed to the queue: an order id plus the
// parameters the pipeline needs to execute it.
type Job struct {
	OrderID           string
	TokenPair         string
	Amount            decimal.Decimal
	SlippageTolerance decimal.Decimal
}

// JobFor builds a job from a stored order.
func JobFor(o *models.Order) *Job {
	return &Job{
		OrderID:           o.ID,
		TokenPair:         o.TokenPair,
		Amount:            o.Amount,
		SlippageTolerance: o.SlippageTolerance,
	}
}
