package pipeline

import (
	"context"
	"fmt"

	"github.com/poiesic/embatch/core"
	"github.com/poiesic/embatch/store"
)

// Pricing constants for the cost projection. The average tokens per item is
// a fixed heuristic, not a measurement; the estimate gates submission, it
// does not bill anyone.
const (
	DefaultAvgTokensPerItem      = 200.0
	DefaultPricePerMillionTokens = 0.02
	DefaultBatchDiscountFactor   = 0.5
)

// Estimate is a read-only cost projection for one collection.
type Estimate struct {
	Collection      core.Collection
	PendingItems    int64
	EstimatedTokens float64
	EstimatedCost   float64
}

// EstimateCost computes the projection for a pending item count:
//
//	tokens = items × avgTokensPerItem
//	cost   = tokens / 1e6 × pricePerMillion × discount
func EstimateCost(collection core.Collection, pendingItems int64, avgTokensPerItem, pricePerMillion, discount float64) Estimate {
	tokens := float64(pendingItems) * avgTokensPerItem
	return Estimate{
		Collection:      collection,
		PendingItems:    pendingItems,
		EstimatedTokens: tokens,
		EstimatedCost:   tokens / 1e6 * pricePerMillion * discount,
	}
}

// Estimator projects submission cost over the record store's pending counts.
type Estimator struct {
	items store.ItemStore

	AvgTokensPerItem      float64
	PricePerMillionTokens float64
	BatchDiscountFactor   float64
}

// NewEstimator creates an estimator with the default pricing constants.
func NewEstimator(items store.ItemStore) *Estimator {
	return &Estimator{
		items:                 items,
		AvgTokensPerItem:      DefaultAvgTokensPerItem,
		PricePerMillionTokens: DefaultPricePerMillionTokens,
		BatchDiscountFactor:   DefaultBatchDiscountFactor,
	}
}

// Estimate returns one projection per collection, in the order given.
func (e *Estimator) Estimate(ctx context.Context, specs []core.CollectionSpec) ([]Estimate, error) {
	estimates := make([]Estimate, 0, len(specs))
	for _, spec := range specs {
		pending, err := e.items.CountMissing(ctx, spec)
		if err != nil {
			return nil, fmt.Errorf("failed to count pending %s items: %w", spec.Name, err)
		}
		estimates = append(estimates, EstimateCost(
			spec.Name, pending,
			e.AvgTokensPerItem, e.PricePerMillionTokens, e.BatchDiscountFactor))
	}
	return estimates, nil
}
