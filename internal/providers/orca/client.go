// Package orca adapts the Orca whirlpool listing into liquidity yield
// opportunities. Risk tiers are assigned on pool size: deep pools dampen both
// price impact and impermanent-loss variance.
package orca

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/elmoxbt/x402-defi-yield-api/internal/apierr"
	"github.com/elmoxbt/x402-defi-yield-api/internal/httpx"
	"github.com/elmoxbt/x402-defi-yield-api/internal/model"
	"github.com/elmoxbt/x402-defi-yield-api/internal/providers"
)

const defaultBase = "https://api.mainnet.orca.so"

// maxPools caps how many pools one fetch contributes to the merge; the
// engine caps the merged list anyway, this just bounds work per provider.
const maxPools = 20

type Client struct {
	http    *httpx.Client
	baseURL string
}

func New(httpClient *httpx.Client) *Client {
	return &Client{http: httpClient, baseURL: defaultBase}
}

func (c *Client) SetBaseURL(u string) { c.baseURL = strings.TrimRight(u, "/") }

func (c *Client) Name() string { return "orca" }

type poolToken struct {
	Symbol string `json:"symbol"`
}

type whirlpool struct {
	TokenA poolToken `json:"tokenA"`
	TokenB poolToken `json:"tokenB"`
	TVL    float64   `json:"tvl"`
	APY    struct {
		Total float64 `json:"total"`
	} `json:"totalApy"`
}

type whirlpoolList struct {
	Whirlpools []whirlpool `json:"whirlpools"`
}

func (c *Client) Fetch(ctx context.Context) ([]model.YieldOpportunity, error) {
	endpoint := fmt.Sprintf("%s/v1/whirlpool/list", strings.TrimRight(c.baseURL, "/"))
	var list whirlpoolList
	if err := c.http.GetJSON(ctx, endpoint, &list); err != nil {
		return nil, err
	}
	if len(list.Whirlpools) == 0 {
		return nil, apierr.New(apierr.CodeUnavailable, "orca returned no whirlpools")
	}

	out := make([]model.YieldOpportunity, 0, len(list.Whirlpools))
	for _, pool := range list.Whirlpools {
		pair := pairSymbol(pool.TokenA.Symbol, pool.TokenB.Symbol)
		if pair == "" || pool.APY.Total <= 0 {
			continue
		}
		opportunity := model.YieldOpportunity{
			Provider: c.Name(),
			Symbol:   pair,
			APY:      pool.APY.Total * 100,
			Category: model.CategoryLiquidity,
			RiskTier: providers.TVLRiskTier(pool.TVL),
		}
		if pool.TVL > 0 {
			opportunity.TVLUSD = providers.Float64Ptr(pool.TVL)
		}
		out = append(out, opportunity)
	}
	if len(out) == 0 {
		return nil, apierr.New(apierr.CodeUnavailable, "orca returned no usable pools")
	}

	// Deepest pools first so truncation keeps the liquid ones.
	sort.SliceStable(out, func(i, j int) bool {
		return deref(out[i].TVLUSD) > deref(out[j].TVLUSD)
	})
	if len(out) > maxPools {
		out = out[:maxPools]
	}
	return out, nil
}

func (c *Client) Fallback() []model.YieldOpportunity {
	return []model.YieldOpportunity{
		{Provider: c.Name(), Symbol: "SOL/USDC", APY: 12.4, TVLUSD: providers.Float64Ptr(18_000_000), Category: model.CategoryLiquidity, RiskTier: model.RiskTierLow},
		{Provider: c.Name(), Symbol: "MSOL/SOL", APY: 4.9, TVLUSD: providers.Float64Ptr(6_500_000), Category: model.CategoryLiquidity, RiskTier: model.RiskTierLow},
		{Provider: c.Name(), Symbol: "BONK/SOL", APY: 38.7, TVLUSD: providers.Float64Ptr(450_000), Category: model.CategoryLiquidity, RiskTier: model.RiskTierMedium},
		{Provider: c.Name(), Symbol: "JTO/USDC", APY: 22.1, TVLUSD: providers.Float64Ptr(85_000), Category: model.CategoryLiquidity, RiskTier: model.RiskTierHigh},
	}
}

func pairSymbol(a, b string) string {
	a = strings.ToUpper(strings.TrimSpace(a))
	b = strings.ToUpper(strings.TrimSpace(b))
	if a == "" || b == "" {
		return ""
	}
	return a + "/" + b
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
