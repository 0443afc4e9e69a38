package types

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// RunLog is the usage accounting row written for every stage run.
type RunLog struct {
	ID           uuid.UUID `json:"id"`
	JobID        uuid.UUID `json:"job_id"`
	Model        string    `json:"model"`
	TokensIn     *int      `json:"tokens_in"`
	TokensOut    *int      `json:"tokens_out"`
	CostEstimate *float64  `json:"cost_estimate"`
	DurationMs   int64     `json:"duration_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

// ModelPrice is USD per one million tokens.
type ModelPrice struct {
	Input  float64
	Output float64
}

// ModelPricing is the per-model price table used for cost estimates.
var ModelPricing = map[string]ModelPrice{
	"gemini-3-flash-preview": {Input: 0.075, Output: 0.30},
	"gemini-2.5-flash-lite":  {Input: 0.10, Output: 0.40},
	"gemini-2.5-flash":       {Input: 0.30, Output: 2.50},
	"gemini-2.5-pro":         {Input: 1.25, Output: 10.00},
	"gemini-1.5-flash":       {Input: 0.075, Output: 0.30},
	"gemini-1.5-pro":         {Input: 1.25, Output: 5.00},
}

// DefaultModelPrice applies to models missing from ModelPricing.
var DefaultModelPrice = ModelPrice{Input: 0.10, Output: 0.40}

// EstimateCost returns the USD cost of a call rounded to six decimals.
// It returns nil unless both token counts are known.
func EstimateCost(model string, tokensIn, tokensOut *int) *float64 {
	if tokensIn == nil || tokensOut == nil {
		return nil
	}
	price, ok := ModelPricing[model]
	if !ok {
		price = DefaultModelPrice
	}
	cost := float64(*tokensIn)/1_000_000*price.Input + float64(*tokensOut)/1_000_000*price.Output
	cost = math.Round(cost*1e6) / 1e6
	return &cost
}
