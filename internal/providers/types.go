// Package providers defines the contract every upstream yield source
// implements. A provider owns its own fetch shape, risk heuristics, and a
// deterministic fallback table used when its live endpoint degrades.
package providers

import (
	"context"

	"github.com/elmoxbt/x402-defi-yield-api/internal/model"
)

type YieldProvider interface {
	// Name is the stable provider identifier stamped on every opportunity.
	Name() string
	// Fetch returns live opportunities. An error means the provider's
	// fallback table should be substituted; it never aborts the aggregate.
	Fetch(ctx context.Context) ([]model.YieldOpportunity, error)
	// Fallback is the provider's static reference list. It must be
	// deterministic: same call, same order, same values.
	Fallback() []model.YieldOpportunity
}

// TVLRiskTier buckets an opportunity by locked value. Shared by providers
// that classify risk on pool size rather than asset composition.
func TVLRiskTier(tvlUSD float64) model.RiskTier {
	switch {
	case tvlUSD >= 1_000_000:
		return model.RiskTierLow
	case tvlUSD >= 100_000:
		return model.RiskTierMedium
	default:
		return model.RiskTierHigh
	}
}

// Float64Ptr adapts a literal for optional TVL fields.
func Float64Ptr(v float64) *float64 { return &v }
