package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/elmoxbt/x402-defi-yield-api/internal/config"
	"github.com/elmoxbt/x402-defi-yield-api/internal/httpx"
	"github.com/elmoxbt/x402-defi-yield-api/internal/ledger"
	"github.com/elmoxbt/x402-defi-yield-api/internal/model"
	"github.com/elmoxbt/x402-defi-yield-api/internal/payment"
	"github.com/elmoxbt/x402-defi-yield-api/internal/portfolio"
	"github.com/elmoxbt/x402-defi-yield-api/internal/providers"
	"github.com/elmoxbt/x402-defi-yield-api/internal/providers/kamino"
	"github.com/elmoxbt/x402-defi-yield-api/internal/providers/marinade"
	"github.com/elmoxbt/x402-defi-yield-api/internal/providers/orca"
	"github.com/elmoxbt/x402-defi-yield-api/internal/yield"
)

const (
	testWallet    = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	testPayTo     = "7f3KqjcCUYtY3EZ3hLJwyCdGRDJqXDbZvEQbuCLRWPFm"
	testMint      = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	testSignature = "5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7"
)

type fakeVerifier struct {
	ok  bool
	err error
}

func (f *fakeVerifier) VerifyTransfer(ctx context.Context, signature string, expectedAmount uint64, recipient, mint string) (bool, error) {
	return f.ok, f.err
}

type fakeConsumer struct{ firstUse bool }

func (f *fakeConsumer) Consume(signature, route string, amount uint64) (bool, error) {
	return f.firstUse, nil
}

type fakeLedger struct{}

func (fakeLedger) GetTransaction(ctx context.Context, signature string) (*ledger.TransactionRecord, error) {
	return nil, nil
}
func (fakeLedger) GetBalance(ctx context.Context, account string) (uint64, error) {
	return 2_500_000_000, nil
}
func (fakeLedger) ResolveAssociatedAccount(owner, mint string) (string, error) {
	return "", nil
}

type fixedPricer struct{}

func (fixedPricer) USDValue(ctx context.Context, symbol string, amount float64, useFallback bool) float64 {
	return amount
}

func newTestServer(t *testing.T, verifier payment.TransferVerifier, consumer payment.SignatureConsumer) *httptest.Server {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)
	entry := logrus.NewEntry(log)

	settings := config.Settings{
		ListenAddr:      ":0",
		ShutdownTimeout: time.Second,
		PayTo:           testPayTo,
		AssetMint:       testMint,
		AssetDecimals:   6,
		Network:         model.NetworkMainnet,
		RoutePrices: map[string]uint64{
			"best-yield":          50_000,
			"portfolio-analytics": 50_000,
			"risk-score":          30_000,
			"defi-intel":          50_000,
		},
		UseMockData: true,
	}

	gateway := payment.NewGateway(verifier, consumer, settings.Payment(), entry)

	httpClient := httpx.New(time.Second, 0)
	engine := yield.NewEngine([]providers.YieldProvider{
		kamino.New(httpClient),
		marinade.New(httpClient),
		orca.New(httpClient),
	}, time.Second, entry)

	folio := portfolio.NewService(fakeLedger{}, fixedPricer{}, true, entry)

	srv := httptest.NewServer(New(settings, gateway, engine, folio, entry).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func proofHeader(amount uint64, to string) string {
	body := `{"amount":` + strconv.FormatUint(amount, 10) + `,"asset":"` + testMint + `","from":"sender","to":"` + to + `","signature":"` + testSignature + `"}`
	return base64.StdEncoding.EncodeToString([]byte(body))
}

func get(t *testing.T, url, paymentHeader string) (*http.Response, model.Envelope) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if paymentHeader != "" {
		req.Header.Set("X-Payment", paymentHeader)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var envelope model.Envelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return resp, envelope
}

func TestHealthOpen(t *testing.T) {
	srv := newTestServer(t, &fakeVerifier{ok: true}, &fakeConsumer{firstUse: true})
	resp, envelope := get(t, srv.URL+"/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !envelope.Success {
		t.Fatal("expected success envelope")
	}
	if envelope.Meta.RequestID == "" {
		t.Fatal("missing request id")
	}
}

func TestPricingOpen(t *testing.T) {
	srv := newTestServer(t, &fakeVerifier{ok: true}, &fakeConsumer{firstUse: true})
	resp, envelope := get(t, srv.URL+"/pricing", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	data, ok := envelope.Data.(map[string]any)
	if !ok {
		t.Fatalf("unexpected pricing payload: %T", envelope.Data)
	}
	routes, ok := data["routes"].(map[string]any)
	if !ok || len(routes) != 4 {
		t.Fatalf("expected 4 priced routes, got %v", data["routes"])
	}
}

func TestProtectedRouteWithoutPayment(t *testing.T) {
	srv := newTestServer(t, &fakeVerifier{ok: true}, &fakeConsumer{firstUse: true})
	resp, envelope := get(t, srv.URL+"/best-yield", "")
	if resp.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", resp.StatusCode)
	}
	if envelope.Error == nil || envelope.Error.Type != "missing_proof" {
		t.Fatalf("unexpected error body: %+v", envelope.Error)
	}
	if envelope.Payment == nil {
		t.Fatal("402 must restate the payment requirement")
	}
	if envelope.Payment.Amount != 50_000 || envelope.Payment.PayTo != testPayTo {
		t.Fatalf("unexpected requirement: %+v", envelope.Payment)
	}
}

func TestExactPaymentAuthorized(t *testing.T) {
	srv := newTestServer(t, &fakeVerifier{ok: true}, &fakeConsumer{firstUse: true})
	resp, envelope := get(t, srv.URL+"/best-yield", proofHeader(50_000, testPayTo))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !envelope.Success {
		t.Fatal("expected success")
	}
	if envelope.Paid != 50_000 {
		t.Fatalf("paid = %d, want 50000", envelope.Paid)
	}
	if envelope.Data == nil {
		t.Fatal("expected yield data")
	}
}

func TestOneUnitShortRejected(t *testing.T) {
	srv := newTestServer(t, &fakeVerifier{ok: true}, &fakeConsumer{firstUse: true})
	resp, envelope := get(t, srv.URL+"/best-yield", proofHeader(49_999, testPayTo))
	if resp.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", resp.StatusCode)
	}
	if envelope.Error == nil || envelope.Error.Type != "insufficient_amount" {
		t.Fatalf("unexpected error body: %+v", envelope.Error)
	}
}

func TestMalformedProofRejected(t *testing.T) {
	srv := newTestServer(t, &fakeVerifier{ok: true}, &fakeConsumer{firstUse: true})
	resp, envelope := get(t, srv.URL+"/best-yield", "&&&garbage&&&")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if envelope.Error == nil || envelope.Error.Type != "malformed_proof" {
		t.Fatalf("unexpected error body: %+v", envelope.Error)
	}
}

func TestWrongRecipientRejected(t *testing.T) {
	srv := newTestServer(t, &fakeVerifier{ok: true}, &fakeConsumer{firstUse: true})
	resp, envelope := get(t, srv.URL+"/best-yield", proofHeader(50_000, testWallet))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if envelope.Error == nil || envelope.Error.Type != "wrong_recipient" {
		t.Fatalf("unexpected error body: %+v", envelope.Error)
	}
}

func TestChainVerificationFailure(t *testing.T) {
	srv := newTestServer(t, &fakeVerifier{ok: false}, &fakeConsumer{firstUse: true})
	resp, envelope := get(t, srv.URL+"/best-yield", proofHeader(50_000, testPayTo))
	if resp.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", resp.StatusCode)
	}
	if envelope.Error == nil || envelope.Error.Type != "chain_verification_failed" {
		t.Fatalf("unexpected error body: %+v", envelope.Error)
	}
	if envelope.Payment == nil {
		t.Fatal("402 must restate the payment requirement")
	}
}

func TestReplayedProofRejected(t *testing.T) {
	srv := newTestServer(t, &fakeVerifier{ok: true}, &fakeConsumer{firstUse: false})
	resp, envelope := get(t, srv.URL+"/best-yield", proofHeader(50_000, testPayTo))
	if resp.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", resp.StatusCode)
	}
	if envelope.Error == nil || envelope.Error.Type != "replayed_proof" {
		t.Fatalf("unexpected error body: %+v", envelope.Error)
	}
}

func TestInvalidWalletBeforePayment(t *testing.T) {
	srv := newTestServer(t, &fakeVerifier{ok: true}, &fakeConsumer{firstUse: true})
	// No payment header at all: the wallet check must still win.
	resp, envelope := get(t, srv.URL+"/risk-score/not-a-wallet", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if envelope.Error == nil || envelope.Error.Type != "invalid_wallet" {
		t.Fatalf("unexpected error body: %+v", envelope.Error)
	}
}

func TestRiskScoreRoute(t *testing.T) {
	srv := newTestServer(t, &fakeVerifier{ok: true}, &fakeConsumer{firstUse: true})
	resp, envelope := get(t, srv.URL+"/risk-score/"+testWallet, proofHeader(30_000, testPayTo))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	data, ok := envelope.Data.(map[string]any)
	if !ok {
		t.Fatalf("unexpected risk payload: %T", envelope.Data)
	}
	if data["wallet"] != testWallet {
		t.Fatalf("wallet = %v", data["wallet"])
	}
	if _, ok := data["overall_score"]; !ok {
		t.Fatal("missing overall_score")
	}
}

func TestPortfolioRoute(t *testing.T) {
	srv := newTestServer(t, &fakeVerifier{ok: true}, &fakeConsumer{firstUse: true})
	resp, envelope := get(t, srv.URL+"/portfolio-analytics/"+testWallet, proofHeader(50_000, testPayTo))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	data, ok := envelope.Data.(map[string]any)
	if !ok {
		t.Fatalf("unexpected portfolio payload: %T", envelope.Data)
	}
	if _, ok := data["total_usd_value"]; !ok {
		t.Fatal("missing total_usd_value")
	}
}

func TestDefiIntelMultiplex(t *testing.T) {
	srv := newTestServer(t, &fakeVerifier{ok: true}, &fakeConsumer{firstUse: true})

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"yield", "?type=yield", http.StatusOK},
		{"portfolio", "?type=portfolio&wallet=" + testWallet, http.StatusOK},
		{"risk", "?type=risk&wallet=" + testWallet, http.StatusOK},
		{"risk with bad wallet", "?type=risk&wallet=nope", http.StatusBadRequest},
		{"unknown type", "?type=bogus", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := get(t, srv.URL+"/defi-intel"+tt.query, proofHeader(50_000, testPayTo))
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestBypassDisabledByDefault(t *testing.T) {
	srv := newTestServer(t, &fakeVerifier{ok: true}, &fakeConsumer{firstUse: true})
	resp, _ := get(t, srv.URL+"/best-yield?test_bypass=true", "")
	if resp.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("status = %d, bypass must not be honored by default", resp.StatusCode)
	}
}

func TestMockYieldPayloadShape(t *testing.T) {
	srv := newTestServer(t, &fakeVerifier{ok: true}, &fakeConsumer{firstUse: true})
	_, envelope := get(t, srv.URL+"/best-yield", proofHeader(50_000, testPayTo))

	data, ok := envelope.Data.(map[string]any)
	if !ok {
		t.Fatalf("unexpected yield payload: %T", envelope.Data)
	}
	if data["provenance"] != "mock" {
		t.Fatalf("provenance = %v, want mock", data["provenance"])
	}
	opportunities, ok := data["opportunities"].([]any)
	if !ok || len(opportunities) == 0 || len(opportunities) > 10 {
		t.Fatalf("unexpected opportunities: %v", data["opportunities"])
	}
}
