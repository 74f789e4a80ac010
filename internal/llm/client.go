package llm

import (
	"context"

	"github.com/shopspring/decimal"
)

// Client defines the interface for LLM providers.
type Client interface {
	ParseIntent(ctx context.Context, prompt string) (IntentResponse, error)
}

// IntentResponse is the raw structured reply of the model.
type IntentResponse struct {
	Amount   *decimal.Decimal `json:"amount"`
	Type     string           `json:"type"`
	Item     string           `json:"item"`
	Currency string           `json:"currency"`
	Category string           `json:"category"`
}
