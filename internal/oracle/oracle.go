// Package oracle resolves token symbols to USD prices via the Pyth Hermes
// price service, with a deterministic reference table used whenever the live
// lookup fails or mock data is requested. Valuation never fails because the
// oracle is down; it degrades to the reference price and logs the substitution.
package oracle

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/elmoxbt/x402-defi-yield-api/internal/apierr"
	"github.com/elmoxbt/x402-defi-yield-api/internal/httpx"
	"github.com/elmoxbt/x402-defi-yield-api/internal/model"
)

const staleAfter = 60 * time.Second

// feedIDs maps token symbols to Pyth price feed identifiers. Read-only,
// populated once at startup.
var feedIDs = map[string]string{
	"SOL":     "ef0d8b6fda2ceba41da15d4095d1da392a0d2f8ed0c6c7bc0f4cfac8c280b56d",
	"USDC":    "eaa020c61cc479712813461ce153894a96a6c00b21ed0cfc2798d1f9a9e9c94a",
	"USDT":    "2b89b9dc8fdf9f34709a5b106b472f0f39bb6ca9ce04b0fd7f2e971688e2e53b",
	"MSOL":    "c2289a6a43d2ce91c6f55caec370f4acc38a2ed477f58813334c6d03749ff2a4",
	"JITOSOL": "67be9f519b95cf24338801051f9a808eff0a578ccb388db73b7f6fe1de019ffb",
	"BONK":    "72b021217ca3fe68922a19aaf990109cb9d84e9ad004b4d2025ad6f529314419",
}

// mockPrices is the fallback reference table. Unknown symbols value at 1.0.
var mockPrices = map[string]float64{
	"SOL":     100.0,
	"USDC":    1.0,
	"USDT":    1.0,
	"MSOL":    110.0,
	"JITOSOL": 112.0,
	"BONK":    0.000025,
}

type Adapter struct {
	http    *httpx.Client
	baseURL string
	log     *logrus.Entry
	now     func() time.Time
}

func New(httpClient *httpx.Client, baseURL string, log *logrus.Entry) *Adapter {
	return &Adapter{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log,
		now:     time.Now,
	}
}

type feedResponse struct {
	ID    string `json:"id"`
	Price struct {
		Price       string `json:"price"`
		Conf        string `json:"conf"`
		Expo        int    `json:"expo"`
		PublishTime int64  `json:"publish_time"`
	} `json:"price"`
}

// Price returns the current USD price for symbol, or (nil, nil) when the
// symbol has no configured feed. Prices older than 60s are flagged stale but
// still returned.
func (a *Adapter) Price(ctx context.Context, symbol string) (*model.PricePoint, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	feedID, ok := feedIDs[symbol]
	if !ok {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/api/latest_price_feeds?ids[]=%s", a.baseURL, url.QueryEscape(feedID))
	var feeds []feedResponse
	if err := a.http.GetJSON(ctx, endpoint, &feeds); err != nil {
		return nil, err
	}
	if len(feeds) == 0 {
		return nil, apierr.New(apierr.CodeUnavailable, "oracle returned no feeds for "+symbol)
	}

	feed := feeds[0]
	price := scaled(feed.Price.Price, feed.Price.Expo)
	conf := scaled(feed.Price.Conf, feed.Price.Expo)
	asOf := time.Unix(feed.Price.PublishTime, 0).UTC()

	point := &model.PricePoint{
		Symbol:     symbol,
		Price:      price,
		Confidence: conf,
		AsOf:       asOf,
	}
	if a.now().Sub(asOf) > staleAfter {
		point.Stale = true
		a.log.WithFields(logrus.Fields{
			"symbol": symbol,
			"as_of":  asOf,
		}).Warn("oracle price is stale")
	}
	return point, nil
}

// MockPrice returns the deterministic reference price for symbol.
func MockPrice(symbol string) float64 {
	if price, ok := mockPrices[strings.ToUpper(strings.TrimSpace(symbol))]; ok {
		return price
	}
	return 1.0
}

// USDValue prices amount units of symbol. Live lookup failure is recovered by
// substituting the reference price; the caller always gets a value.
func (a *Adapter) USDValue(ctx context.Context, symbol string, amount float64, useFallback bool) float64 {
	if useFallback {
		return amount * MockPrice(symbol)
	}
	point, err := a.Price(ctx, symbol)
	if err != nil || point == nil {
		a.log.WithFields(logrus.Fields{
			"symbol": symbol,
			"error":  fmt.Sprint(err),
		}).Warn("live price lookup failed, using reference price")
		return amount * MockPrice(symbol)
	}
	return amount * point.Price
}

// scaled converts a provider fixed-point (mantissa, exponent) pair into a
// float: value = mantissa * 10^expo.
func scaled(mantissa string, expo int) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(mantissa), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v * math.Pow(10, float64(expo))
}
