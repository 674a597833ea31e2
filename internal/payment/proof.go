// Package payment implements the x402-style request gate: requirement
// advertisement, proof parsing, and authorization decisions.
package payment

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/elmoxbt/x402-defi-yield-api/internal/apierr"
	"github.com/elmoxbt/x402-defi-yield-api/internal/model"
)

// Accepted field-name aliases, first present wins. Older client builds
// shipped several shapes of the payment record; all remain accepted.
var (
	amountKeys    = []string{"amount", "value", "lamports"}
	assetKeys     = []string{"asset", "token", "mint"}
	fromKeys      = []string{"from", "payer", "sender"}
	toKeys        = []string{"to", "payTo", "recipient"}
	signatureKeys = []string{"signature", "txSignature", "transaction", "txHash"}
	issuedAtKeys  = []string{"issuedAt", "timestamp"}
)

// ParseProof decodes an X-Payment header value into a Proof. The value is
// base64-encoded JSON; bare JSON is accepted for hand-rolled clients.
// Every failure mode is a malformed-proof error.
func ParseProof(header string) (model.Proof, error) {
	raw := []byte(strings.TrimSpace(header))
	if len(raw) == 0 {
		return model.Proof{}, apierr.New(apierr.CodeBadRequest, "empty payment header")
	}
	if raw[0] != '{' {
		decoded, err := base64.StdEncoding.DecodeString(string(raw))
		if err != nil {
			decoded, err = base64.RawURLEncoding.DecodeString(string(raw))
		}
		if err != nil {
			return model.Proof{}, apierr.Wrap(apierr.CodeBadRequest, "payment header is not valid base64", err)
		}
		raw = decoded
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return model.Proof{}, apierr.Wrap(apierr.CodeBadRequest, "payment header is not a JSON record", err)
	}

	proof := model.Proof{}
	var ok bool
	if proof.Amount, ok = firstAmount(fields, amountKeys); !ok {
		return model.Proof{}, apierr.New(apierr.CodeBadRequest, "payment proof missing amount")
	}
	if proof.Asset, ok = firstString(fields, assetKeys); !ok {
		return model.Proof{}, apierr.New(apierr.CodeBadRequest, "payment proof missing asset")
	}
	if proof.From, ok = firstString(fields, fromKeys); !ok {
		return model.Proof{}, apierr.New(apierr.CodeBadRequest, "payment proof missing sender")
	}
	if proof.To, ok = firstString(fields, toKeys); !ok {
		return model.Proof{}, apierr.New(apierr.CodeBadRequest, "payment proof missing recipient")
	}
	if proof.Signature, ok = firstString(fields, signatureKeys); !ok {
		return model.Proof{}, apierr.New(apierr.CodeBadRequest, "payment proof missing transaction signature")
	}
	if issued, found := firstString(fields, issuedAtKeys); found {
		if ts, err := time.Parse(time.RFC3339, issued); err == nil {
			proof.IssuedAt = ts
		}
	}
	return proof, nil
}

func firstString(fields map[string]json.RawMessage, keys []string) (string, bool) {
	for _, key := range keys {
		raw, present := fields[key]
		if !present {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s, true
		}
	}
	return "", false
}

// firstAmount accepts either a JSON number or a numeric string; wallets
// disagree on which to emit for u64 amounts.
func firstAmount(fields map[string]json.RawMessage, keys []string) (uint64, bool) {
	for _, key := range keys {
		raw, present := fields[key]
		if !present {
			continue
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			if v, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
				return v, true
			}
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if v, err := strconv.ParseUint(s, 10, 64); err == nil {
				return v, true
			}
		}
	}
	return 0, false
}
