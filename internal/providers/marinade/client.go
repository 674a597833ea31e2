// Package marinade adapts the Marinade staking API into yield opportunities.
package marinade

import (
	"context"
	"fmt"
	"strings"

	"github.com/elmoxbt/x402-defi-yield-api/internal/apierr"
	"github.com/elmoxbt/x402-defi-yield-api/internal/httpx"
	"github.com/elmoxbt/x402-defi-yield-api/internal/model"
	"github.com/elmoxbt/x402-defi-yield-api/internal/providers"
)

const defaultBase = "https://api.marinade.finance"

type Client struct {
	http    *httpx.Client
	baseURL string
}

func New(httpClient *httpx.Client) *Client {
	return &Client{http: httpClient, baseURL: defaultBase}
}

func (c *Client) SetBaseURL(u string) { c.baseURL = strings.TrimRight(u, "/") }

func (c *Client) Name() string { return "marinade" }

type apyResponse struct {
	Value float64 `json:"value"`
}

type tlvResponse struct {
	TotalSOL  float64 `json:"total_sol"`
	StakedUSD float64 `json:"staked_usd"`
}

func (c *Client) Fetch(ctx context.Context) ([]model.YieldOpportunity, error) {
	base := strings.TrimRight(c.baseURL, "/")

	var apy apyResponse
	if err := c.http.GetJSON(ctx, fmt.Sprintf("%s/msol/apy/30d", base), &apy); err != nil {
		return nil, err
	}
	if apy.Value <= 0 {
		return nil, apierr.New(apierr.CodeUnavailable, "marinade returned no staking APY")
	}

	opportunity := model.YieldOpportunity{
		Provider: c.Name(),
		Symbol:   "MSOL",
		APY:      apy.Value * 100,
		Category: model.CategoryStaking,
		RiskTier: model.RiskTierLow,
	}

	// TVL is best-effort; the opportunity stands without it.
	var tlv tlvResponse
	if err := c.http.GetJSON(ctx, fmt.Sprintf("%s/tlv", base), &tlv); err == nil && tlv.StakedUSD > 0 {
		opportunity.TVLUSD = providers.Float64Ptr(tlv.StakedUSD)
	}

	return []model.YieldOpportunity{opportunity}, nil
}

func (c *Client) Fallback() []model.YieldOpportunity {
	return []model.YieldOpportunity{
		{Provider: c.Name(), Symbol: "MSOL", APY: 7.1, TVLUSD: providers.Float64Ptr(950_000_000), Category: model.CategoryStaking, RiskTier: model.RiskTierLow},
		{Provider: c.Name(), Symbol: "SOL", APY: 6.5, TVLUSD: providers.Float64Ptr(950_000_000), Category: model.CategoryStaking, RiskTier: model.RiskTierLow},
	}
}
