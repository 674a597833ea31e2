// Package yield merges opportunities from independent providers into one
// ranked result. Provider failure is provider-local: a fetch that errors or
// times out degrades to that provider's fallback table and never disturbs
// its siblings.
package yield

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/elmoxbt/x402-defi-yield-api/internal/model"
	"github.com/elmoxbt/x402-defi-yield-api/internal/providers"
)

const maxOpportunities = 10

type Engine struct {
	// providers in declaration order; this order is the tie-break for
	// equal APYs, so it must be stable across calls.
	providers []providers.YieldProvider
	timeout   time.Duration
	log       *logrus.Entry
	now       func() time.Time
}

func NewEngine(provs []providers.YieldProvider, timeout time.Duration, log *logrus.Entry) *Engine {
	return &Engine{
		providers: provs,
		timeout:   timeout,
		log:       log,
		now:       time.Now,
	}
}

type providerResult struct {
	items []model.YieldOpportunity
	live  bool
}

// BestYields returns at most 10 opportunities sorted by APY descending.
// With useMock it is a pure function of the fallback tables.
func (e *Engine) BestYields(ctx context.Context, useMock bool) model.AggregatedYield {
	if useMock {
		merged := make([]model.YieldOpportunity, 0, len(e.providers)*4)
		for _, provider := range e.providers {
			merged = append(merged, provider.Fallback()...)
		}
		return e.finish(merged, model.ProvenanceMock)
	}

	results := make([]providerResult, len(e.providers))
	done := make(chan int, len(e.providers))
	for i, provider := range e.providers {
		go func(index int, provider providers.YieldProvider) {
			defer func() { done <- index }()

			// Deliberately detached from the request context: a provider
			// fetch is bounded by its own deadline, and a slow sibling or
			// an abandoned request must not cancel it mid-flight.
			fetchCtx, cancel := context.WithTimeout(context.Background(), e.timeout)
			defer cancel()

			items, err := provider.Fetch(fetchCtx)
			if err != nil {
				e.log.WithFields(logrus.Fields{
					"provider": provider.Name(),
					"error":    err.Error(),
				}).Warn("provider fetch degraded to fallback")
				results[index] = providerResult{items: provider.Fallback()}
				return
			}
			results[index] = providerResult{items: items, live: true}
		}(i, provider)
	}
	for range e.providers {
		<-done
	}

	provenance := model.ProvenanceMock
	merged := make([]model.YieldOpportunity, 0, len(e.providers)*8)
	for _, result := range results {
		if result.live {
			provenance = model.ProvenanceLive
		}
		merged = append(merged, result.items...)
	}
	return e.finish(merged, provenance)
}

func (e *Engine) finish(merged []model.YieldOpportunity, provenance model.Provenance) model.AggregatedYield {
	// Stable sort keeps provider declaration order on APY ties.
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].APY > merged[j].APY
	})
	if len(merged) > maxOpportunities {
		merged = merged[:maxOpportunities]
	}
	return model.AggregatedYield{
		Opportunities: merged,
		Provenance:    provenance,
		GeneratedAt:   e.now().UTC(),
	}
}
