// Package server is the HTTP surface: open discovery routes plus the
// payment-gated data routes.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/elmoxbt/x402-defi-yield-api/internal/config"
	"github.com/elmoxbt/x402-defi-yield-api/internal/ledger"
	"github.com/elmoxbt/x402-defi-yield-api/internal/model"
	"github.com/elmoxbt/x402-defi-yield-api/internal/payment"
	"github.com/elmoxbt/x402-defi-yield-api/internal/portfolio"
	"github.com/elmoxbt/x402-defi-yield-api/internal/risk"
	"github.com/elmoxbt/x402-defi-yield-api/internal/version"
	"github.com/elmoxbt/x402-defi-yield-api/internal/yield"
)

// bypassParam skips payment evaluation entirely. It is honored only when
// the deployment explicitly enables it; see config.AllowTestBypass.
const bypassParam = "test_bypass"

type Server struct {
	settings config.Settings
	gateway  *payment.Gateway
	yields   *yield.Engine
	folio    *portfolio.Service
	log      *logrus.Entry
	now      func() time.Time
}

func New(settings config.Settings, gateway *payment.Gateway, yields *yield.Engine, folio *portfolio.Service, log *logrus.Entry) *Server {
	return &Server{
		settings: settings,
		gateway:  gateway,
		yields:   yields,
		folio:    folio,
		log:      log,
		now:      time.Now,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /pricing", s.handlePricing)
	mux.HandleFunc("GET /best-yield", s.gated("best-yield", s.handleBestYield))
	mux.HandleFunc("GET /portfolio-analytics/{wallet}", s.gated("portfolio-analytics", s.handlePortfolio))
	mux.HandleFunc("GET /risk-score/{wallet}", s.gated("risk-score", s.handleRiskScore))
	mux.HandleFunc("GET /defi-intel", s.gated("defi-intel", s.handleDefiIntel))
	return s.logRequests(mux)
}

// gated runs the payment ladder before the wrapped handler. The paid
// amount threaded through is the route price, not the proof amount; an
// overpayment does not buy extra requests.
func (s *Server) gated(route string, next func(http.ResponseWriter, *http.Request, uint64)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Wallet validity is independent of payment status; reject bad
		// addresses before asking anyone to pay.
		if wallet := r.PathValue("wallet"); wallet != "" && !ledger.ValidAddress(wallet) {
			s.writeError(w, http.StatusBadRequest, "invalid_wallet", "wallet is not a valid address")
			return
		}

		bypass := r.URL.Query().Get(bypassParam) == "true"
		decision := s.gateway.Evaluate(r.Context(), route, r.Header.Get("X-Payment"), bypass)
		requirement := s.gateway.RequirementFor(route)

		switch decision.Outcome {
		case model.OutcomeAuthorized:
			next(w, r, requirement.Amount)
		case model.OutcomeMissingProof, model.OutcomeInsufficientAmount,
			model.OutcomeChainVerificationFailed, model.OutcomeReplayedProof:
			s.writePaymentRequired(w, decision, requirement)
		case model.OutcomeMalformedProof, model.OutcomeWrongRecipient:
			s.writeError(w, http.StatusBadRequest, decision.Outcome.String(), decision.Message)
		default:
			s.writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeData(w, map[string]string{
		"status":  "ok",
		"service": version.ServiceName,
		"version": version.ServiceVersion,
	}, 0)
}

// handlePricing publishes the full route price table so a client can
// construct a payment before ever seeing a 402.
func (s *Server) handlePricing(w http.ResponseWriter, _ *http.Request) {
	routes := make(map[string]model.Requirement, len(s.settings.RoutePrices))
	for route := range s.settings.RoutePrices {
		routes[route] = s.gateway.RequirementFor(route)
	}
	s.writeData(w, map[string]any{
		"network": s.settings.Network,
		"asset": map[string]any{
			"mint":     s.settings.AssetMint,
			"decimals": s.settings.AssetDecimals,
		},
		"routes": routes,
	}, 0)
}

func (s *Server) handleBestYield(w http.ResponseWriter, r *http.Request, paid uint64) {
	s.writeData(w, s.yields.BestYields(r.Context(), s.settings.UseMockData), paid)
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request, paid uint64) {
	snapshot, err := s.folio.Snapshot(r.Context(), r.PathValue("wallet"))
	if err != nil {
		s.log.WithError(err).Error("portfolio snapshot failed")
		s.writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}
	s.writeData(w, snapshot, paid)
}

func (s *Server) handleRiskScore(w http.ResponseWriter, r *http.Request, paid uint64) {
	snapshot, err := s.folio.Snapshot(r.Context(), r.PathValue("wallet"))
	if err != nil {
		s.log.WithError(err).Error("portfolio snapshot failed")
		s.writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}
	s.writeData(w, risk.Score(snapshot, s.now()), paid)
}

// handleDefiIntel multiplexes the other data products behind one route.
func (s *Server) handleDefiIntel(w http.ResponseWriter, r *http.Request, paid uint64) {
	kind := r.URL.Query().Get("type")
	switch kind {
	case "yield":
		s.writeData(w, s.yields.BestYields(r.Context(), s.settings.UseMockData), paid)
	case "portfolio", "risk":
		wallet := r.URL.Query().Get("wallet")
		if !ledger.ValidAddress(wallet) {
			s.writeError(w, http.StatusBadRequest, "invalid_wallet", "wallet is not a valid address")
			return
		}
		snapshot, err := s.folio.Snapshot(r.Context(), wallet)
		if err != nil {
			s.log.WithError(err).Error("portfolio snapshot failed")
			s.writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
			return
		}
		if kind == "risk" {
			s.writeData(w, risk.Score(snapshot, s.now()), paid)
			return
		}
		s.writeData(w, snapshot, paid)
	default:
		s.writeError(w, http.StatusBadRequest, "bad_request", "type must be one of yield, portfolio, risk")
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.now()
		next.ServeHTTP(w, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start).String(),
		}).Debug("request served")
	})
}

// ListenAndServe runs the server until ctx is cancelled, then drains
// in-flight requests within the configured shutdown timeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.settings.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.settings.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
