// internal/service/validation.go
package service

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rovshanmuradov/dex-router/internal/storage/models"
)

var maxSlippage = decimal.NewFromInt(100)

// FieldError describes one rejected submission field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned for malformed submissions. Such orders are
// never created.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = fmt.Sprintf("%s: %s", f.Field, f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// SubmitRequest is an order submission as received from a client.
type SubmitRequest struct {
	TokenPair         string `json:"tokenPair"`
	Amount            string `json:"amount"`
	SlippageTolerance string `json:"slippageTolerance"`
}

// Validate parses the request, collecting every invalid field.
func (r SubmitRequest) Validate() (models.NewOrder, error) {
	var (
		params models.NewOrder
		fields []FieldError
	)

	params.TokenPair = strings.TrimSpace(r.TokenPair)
	if params.TokenPair == "" {
		fields = append(fields, FieldError{Field: "tokenPair", Message: "Token pair is required"})
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(r.Amount))
	if err != nil || !amount.IsPositive() {
		fields = append(fields, FieldError{Field: "amount", Message: "Amount must be a positive number"})
	}
	params.Amount = amount

	slippage, err := decimal.NewFromString(strings.TrimSpace(r.SlippageTolerance))
	if err != nil || slippage.IsNegative() || slippage.GreaterThan(maxSlippage) {
		fields = append(fields, FieldError{Field: "slippageTolerance", Message: "Slippage must be between 0 and 100"})
	}
	params.SlippageTolerance = slippage

	if len(fields) > 0 {
		return models.NewOrder{}, &ValidationError{Fields: fields}
	}
	return params, nil
}
