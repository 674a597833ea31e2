// Package risk derives a composite 0-100 risk score from a portfolio
// snapshot. Scoring is a pure function: no I/O, no state, recomputed on
// every call.
package risk

import (
	"fmt"
	"math"
	"time"

	"github.com/elmoxbt/x402-defi-yield-api/internal/model"
)

// Factor weights of the composite score.
const (
	concentrationWeight   = 0.3
	liquidationWeight     = 0.4
	diversificationWeight = 0.2
)

// neutralHealthTerm is the contribution used when no health factor is
// available from a lending-protocol integration.
const neutralHealthTerm = 10.0

const (
	concentrationWarnRatio = 0.70
	liquidationWarnScore   = 50.0
)

// Score computes the risk profile of a snapshot. A zero total value cannot
// produce a division error: every ratio-based factor evaluates to 0.
func Score(snapshot model.PortfolioSnapshot, now time.Time) model.RiskScore {
	concentration, maxRatio := concentrationRisk(snapshot)
	liquidation := liquidationRisk(snapshot)
	diversification, protocols := protocolDiversification(snapshot)

	warnings := []string{}
	if maxRatio > concentrationWarnRatio {
		warnings = append(warnings, fmt.Sprintf("portfolio concentrated: largest holding is %.0f%% of total value", maxRatio*100))
	}
	if liquidation > liquidationWarnScore {
		warnings = append(warnings, fmt.Sprintf("borrowed value is %.0f%% of portfolio, liquidation exposure is elevated", liquidation))
	}
	if protocols == 1 && len(snapshot.Positions) > 0 {
		warnings = append(warnings, "all positions sit in a single protocol")
	}

	healthTerm := neutralHealthTerm
	if snapshot.HealthFactor != nil {
		healthTerm = math.Max(0, (2-*snapshot.HealthFactor)*50)
	}

	overall := math.Min(100,
		concentration*concentrationWeight+
			liquidation*liquidationWeight+
			diversification*diversificationWeight+
			healthTerm)

	return model.RiskScore{
		Wallet:       snapshot.Wallet,
		OverallScore: overall,
		RiskLevel:    levelFor(overall),
		Factors: model.RiskFactors{
			HealthFactor:            snapshot.HealthFactor,
			ConcentrationRisk:       concentration,
			LiquidationRisk:         liquidation,
			ProtocolDiversification: diversification,
		},
		Warnings:    warnings,
		GeneratedAt: now.UTC(),
	}
}

// concentrationRisk is the largest single token share of total value,
// expressed 0-100, alongside the raw maximizing ratio.
func concentrationRisk(snapshot model.PortfolioSnapshot) (float64, float64) {
	if snapshot.TotalUSDValue <= 0 {
		return 0, 0
	}
	maxRatio := 0.0
	for _, balance := range snapshot.TokenBalances {
		ratio := balance.USDValue / snapshot.TotalUSDValue
		if ratio > maxRatio {
			maxRatio = ratio
		}
	}
	return maxRatio * 100, maxRatio
}

// liquidationRisk is borrowed value as a share of total value, 0-100.
func liquidationRisk(snapshot model.PortfolioSnapshot) float64 {
	if snapshot.TotalUSDValue <= 0 {
		return 0
	}
	borrowed := 0.0
	for _, position := range snapshot.Positions {
		if position.Kind == model.PositionBorrowing {
			borrowed += position.USDValue
		}
	}
	if borrowed == 0 {
		return 0
	}
	return borrowed / snapshot.TotalUSDValue * 100
}

// protocolDiversification is 100 divided by the distinct protocol count;
// an empty position list scores the full 100.
func protocolDiversification(snapshot model.PortfolioSnapshot) (float64, int) {
	distinct := map[string]struct{}{}
	for _, position := range snapshot.Positions {
		distinct[position.Protocol] = struct{}{}
	}
	if len(distinct) == 0 {
		return 100, 0
	}
	return 100 / float64(len(distinct)), len(distinct)
}

func levelFor(score float64) model.RiskLevel {
	switch {
	case score < 25:
		return model.RiskLow
	case score < 50:
		return model.RiskMedium
	case score < 75:
		return model.RiskHigh
	default:
		return model.RiskCritical
	}
}
