package payment

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/elmoxbt/x402-defi-yield-api/internal/config"
	"github.com/elmoxbt/x402-defi-yield-api/internal/ledger"
	"github.com/elmoxbt/x402-defi-yield-api/internal/model"
)

// TransferVerifier is the ledger-side check the gateway delegates to.
type TransferVerifier interface {
	VerifyTransfer(ctx context.Context, signature string, expectedAmount uint64, recipient, mint string) (bool, error)
}

// SignatureConsumer records a verified signature as spent. First use
// returns true; a repeat returns false.
type SignatureConsumer interface {
	Consume(signature, route string, amount uint64) (bool, error)
}

// Decision is the gateway's terminal answer for one request.
type Decision struct {
	Outcome model.Outcome
	Proof   *model.Proof
	Message string
}

type Gateway struct {
	verifier    TransferVerifier
	consumed    SignatureConsumer
	settings    config.PaymentSettings
	allowBypass bool
	log         *logrus.Entry
}

func NewGateway(verifier TransferVerifier, consumed SignatureConsumer, settings config.PaymentSettings, log *logrus.Entry) *Gateway {
	return &Gateway{
		verifier:    verifier,
		consumed:    consumed,
		settings:    settings,
		allowBypass: settings.AllowTestBypass,
		log:         log,
	}
}

// RequirementFor builds the immutable payment requirement for a route.
// Prices come from static configuration only.
func (g *Gateway) RequirementFor(route string) model.Requirement {
	return model.Requirement{
		Amount:  g.settings.RoutePrices[route],
		Asset:   g.settings.AssetMint,
		PayTo:   g.settings.PayTo,
		Network: g.settings.Network,
	}
}

// Evaluate runs the full authorization ladder for one request. Every
// outcome is specific; a caller can always tell the client exactly what
// to fix.
func (g *Gateway) Evaluate(ctx context.Context, route, header string, bypassRequested bool) Decision {
	requirement := g.RequirementFor(route)

	if bypassRequested && g.allowBypass {
		g.log.WithField("route", route).Warn("payment bypassed via test flag")
		return Decision{Outcome: model.OutcomeAuthorized}
	}

	if header == "" {
		return Decision{Outcome: model.OutcomeMissingProof, Message: "payment required: supply an X-Payment header"}
	}

	proof, err := ParseProof(header)
	if err != nil {
		return Decision{Outcome: model.OutcomeMalformedProof, Message: err.Error()}
	}
	if !ledger.ValidSignature(proof.Signature) {
		return Decision{Outcome: model.OutcomeMalformedProof, Message: "transaction signature is not valid base58"}
	}

	if proof.Amount < requirement.Amount {
		return Decision{Outcome: model.OutcomeInsufficientAmount, Proof: &proof, Message: "payment amount below requirement"}
	}
	if proof.To != requirement.PayTo {
		return Decision{Outcome: model.OutcomeWrongRecipient, Proof: &proof, Message: "payment recipient does not match"}
	}

	ok, err := g.verifier.VerifyTransfer(ctx, proof.Signature, requirement.Amount, requirement.PayTo, requirement.Asset)
	if err != nil {
		g.log.WithError(err).Warn("ledger verification unavailable")
		return Decision{Outcome: model.OutcomeChainVerificationFailed, Proof: &proof, Message: "payment could not be verified on-chain"}
	}
	if !ok {
		return Decision{Outcome: model.OutcomeChainVerificationFailed, Proof: &proof, Message: "transaction does not satisfy the payment requirement"}
	}

	first, err := g.consumed.Consume(proof.Signature, route, requirement.Amount)
	if err != nil {
		g.log.WithError(err).Error("replay store unavailable")
		return Decision{Outcome: model.OutcomeChainVerificationFailed, Proof: &proof, Message: "payment could not be verified on-chain"}
	}
	if !first {
		return Decision{Outcome: model.OutcomeReplayedProof, Proof: &proof, Message: "payment signature already consumed"}
	}

	return Decision{Outcome: model.OutcomeAuthorized, Proof: &proof}
}
