// Package kamino adapts the Kamino lending API into yield opportunities.
package kamino

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/elmoxbt/x402-defi-yield-api/internal/apierr"
	"github.com/elmoxbt/x402-defi-yield-api/internal/httpx"
	"github.com/elmoxbt/x402-defi-yield-api/internal/model"
	"github.com/elmoxbt/x402-defi-yield-api/internal/providers"
)

const defaultBase = "https://api.kamino.finance"

// utilizationAPYMultiplier converts reserve utilization into a supply APY
// estimate when the API exposes no native rate: borrowed/deposited * 0.1.
const utilizationAPYMultiplier = 0.1

type Client struct {
	http    *httpx.Client
	baseURL string
}

func New(httpClient *httpx.Client) *Client {
	return &Client{http: httpClient, baseURL: defaultBase}
}

// SetBaseURL overrides the API host, used by tests.
func (c *Client) SetBaseURL(u string) { c.baseURL = strings.TrimRight(u, "/") }

func (c *Client) Name() string { return "kamino" }

type reserveMetric struct {
	LiquidityToken string `json:"liquidityToken"`
	SupplyAPY      string `json:"supplyApy"`
	TotalSupplyUSD string `json:"totalSupplyUsd"`
	TotalBorrowUSD string `json:"totalBorrowUsd"`
}

func (c *Client) Fetch(ctx context.Context) ([]model.YieldOpportunity, error) {
	endpoint := fmt.Sprintf("%s/kamino-market/reserves/metrics?env=mainnet-beta", strings.TrimRight(c.baseURL, "/"))
	var reserves []reserveMetric
	if err := c.http.GetJSON(ctx, endpoint, &reserves); err != nil {
		return nil, err
	}
	if len(reserves) == 0 {
		return nil, apierr.New(apierr.CodeUnavailable, "kamino returned no reserves")
	}

	out := make([]model.YieldOpportunity, 0, len(reserves))
	for _, reserve := range reserves {
		symbol := strings.ToUpper(strings.TrimSpace(reserve.LiquidityToken))
		if symbol == "" {
			continue
		}
		supplyUSD := parseNonNegative(reserve.TotalSupplyUSD)
		borrowUSD := parseNonNegative(reserve.TotalBorrowUSD)

		apy := ratioToPercent(reserve.SupplyAPY)
		if apy == 0 && supplyUSD > 0 {
			// No native rate exposed; estimate from utilization.
			apy = borrowUSD / supplyUSD * utilizationAPYMultiplier * 100
		}

		opportunity := model.YieldOpportunity{
			Provider: c.Name(),
			Symbol:   symbol,
			APY:      apy,
			Category: model.CategoryLending,
			RiskTier: riskFromSymbol(symbol),
		}
		if supplyUSD > 0 {
			opportunity.TVLUSD = providers.Float64Ptr(supplyUSD)
		}
		out = append(out, opportunity)
	}
	if len(out) == 0 {
		return nil, apierr.New(apierr.CodeUnavailable, "kamino returned no usable reserves")
	}
	return out, nil
}

func (c *Client) Fallback() []model.YieldOpportunity {
	return []model.YieldOpportunity{
		{Provider: c.Name(), Symbol: "USDC", APY: 5.2, TVLUSD: providers.Float64Ptr(120_000_000), Category: model.CategoryLending, RiskTier: model.RiskTierLow},
		{Provider: c.Name(), Symbol: "USDT", APY: 4.8, TVLUSD: providers.Float64Ptr(45_000_000), Category: model.CategoryLending, RiskTier: model.RiskTierLow},
		{Provider: c.Name(), Symbol: "SOL", APY: 3.1, TVLUSD: providers.Float64Ptr(80_000_000), Category: model.CategoryLending, RiskTier: model.RiskTierMedium},
		{Provider: c.Name(), Symbol: "JITOSOL", APY: 2.4, TVLUSD: providers.Float64Ptr(25_000_000), Category: model.CategoryLending, RiskTier: model.RiskTierMedium},
	}
}

func riskFromSymbol(symbol string) model.RiskTier {
	switch symbol {
	case "USDC", "USDT", "DAI", "USDE", "PYUSD":
		return model.RiskTierLow
	default:
		return model.RiskTierMedium
	}
}

func ratioToPercent(v string) float64 {
	return parseNonNegative(v) * 100
}

func parseNonNegative(v string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0
	}
	return f
}
