package model

import "time"

// Network identifies the Solana cluster a payment settles on.
type Network string

const (
	NetworkMainnet Network = "solana"
	NetworkDevnet  Network = "solana-devnet"
)

// Envelope is the response wrapper returned by every endpoint.
type Envelope struct {
	Success bool         `json:"success"`
	Data    any          `json:"data,omitempty"`
	Error   *ErrorBody   `json:"error,omitempty"`
	Payment *Requirement `json:"payment,omitempty"`
	Paid    uint64       `json:"paid,omitempty"`
	Meta    EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type EnvelopeMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Requirement is the server-declared price for a protected route. It is built
// once per request from static configuration and must never be derived from
// client input.
type Requirement struct {
	Amount  uint64  `json:"amount"` // smallest asset unit
	Asset   string  `json:"asset"`  // SPL token mint
	PayTo   string  `json:"payTo"`  // recipient wallet
	Network Network `json:"network"`
}

// Proof is the client-supplied assertion of a completed on-ledger payment.
// Every field is attacker-controlled until verified against the chain.
type Proof struct {
	Amount    uint64    `json:"amount"`
	Asset     string    `json:"asset"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Signature string    `json:"signature"`
	IssuedAt  time.Time `json:"issuedAt"`
}

// Outcome is the terminal verification decision for one request.
type Outcome int

const (
	OutcomeAuthorized Outcome = iota
	OutcomeMissingProof
	OutcomeMalformedProof
	OutcomeInsufficientAmount
	OutcomeWrongRecipient
	OutcomeChainVerificationFailed
	OutcomeReplayedProof
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAuthorized:
		return "authorized"
	case OutcomeMissingProof:
		return "missing_proof"
	case OutcomeMalformedProof:
		return "malformed_proof"
	case OutcomeInsufficientAmount:
		return "insufficient_amount"
	case OutcomeWrongRecipient:
		return "wrong_recipient"
	case OutcomeChainVerificationFailed:
		return "chain_verification_failed"
	case OutcomeReplayedProof:
		return "replayed_proof"
	default:
		return "unknown"
	}
}

// Category classifies how a yield opportunity earns.
type Category string

const (
	CategoryLending   Category = "lending"
	CategoryStaking   Category = "staking"
	CategoryLiquidity Category = "liquidity"
)

// RiskTier is a provider-local coarse risk classification.
type RiskTier string

const (
	RiskTierLow    RiskTier = "low"
	RiskTierMedium RiskTier = "medium"
	RiskTierHigh   RiskTier = "high"
)

type YieldOpportunity struct {
	Provider string   `json:"provider"`
	Symbol   string   `json:"symbol"`
	APY      float64  `json:"apy"`
	TVLUSD   *float64 `json:"tvl_usd,omitempty"`
	Category Category `json:"category"`
	RiskTier RiskTier `json:"risk_tier,omitempty"`
}

// Provenance records whether aggregated data came from live providers or
// static fallback tables.
type Provenance string

const (
	ProvenanceLive Provenance = "live"
	ProvenanceMock Provenance = "mock"
)

type AggregatedYield struct {
	Opportunities []YieldOpportunity `json:"opportunities"`
	Provenance    Provenance         `json:"provenance"`
	GeneratedAt   time.Time          `json:"generated_at"`
}

type TokenBalance struct {
	Mint      string  `json:"mint"`
	Symbol    string  `json:"symbol"`
	RawAmount uint64  `json:"raw_amount"`
	Decimals  int     `json:"decimals"`
	UIAmount  float64 `json:"ui_amount"`
	USDValue  float64 `json:"usd_value"`
}

// PositionKind classifies a protocol position for risk purposes.
type PositionKind string

const (
	PositionLending   PositionKind = "lending"
	PositionBorrowing PositionKind = "borrowing"
	PositionLiquidity PositionKind = "liquidity"
	PositionStaking   PositionKind = "staking"
)

type Position struct {
	Protocol string       `json:"protocol"`
	Kind     PositionKind `json:"kind"`
	Asset    string       `json:"asset"`
	USDValue float64      `json:"usd_value"`
	APY      *float64     `json:"apy,omitempty"`
}

// PortfolioSnapshot is a point-in-time valuation of a wallet. Invariant:
// TotalUSDValue = NativeUSDValue + sum(TokenBalances.USDValue) + sum(Positions.USDValue).
type PortfolioSnapshot struct {
	Wallet         string         `json:"wallet"`
	NativeBalance  float64        `json:"native_balance"`
	NativeUSDValue float64        `json:"native_usd_value"`
	TokenBalances  []TokenBalance `json:"token_balances"`
	Positions      []Position     `json:"positions"`
	TotalUSDValue  float64        `json:"total_usd_value"`
	HealthFactor   *float64       `json:"health_factor,omitempty"`
	GeneratedAt    time.Time      `json:"generated_at"`
}

// RiskLevel buckets an overall score at fixed thresholds (25, 50, 75).
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

type RiskFactors struct {
	HealthFactor            *float64 `json:"health_factor,omitempty"`
	ConcentrationRisk       float64  `json:"concentration_risk"`
	LiquidationRisk         float64  `json:"liquidation_risk"`
	ProtocolDiversification float64  `json:"protocol_diversification"`
}

type RiskScore struct {
	Wallet       string      `json:"wallet"`
	OverallScore float64     `json:"overall_score"`
	RiskLevel    RiskLevel   `json:"risk_level"`
	Factors      RiskFactors `json:"factors"`
	Warnings     []string    `json:"warnings"`
	GeneratedAt  time.Time   `json:"generated_at"`
}

// PricePoint is a USD price with its provider confidence interval.
type PricePoint struct {
	Symbol     string    `json:"symbol"`
	Price      float64   `json:"price"`
	Confidence float64   `json:"confidence"`
	AsOf       time.Time `json:"as_of"`
	Stale      bool      `json:"stale,omitempty"`
}
