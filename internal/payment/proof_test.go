package payment

import (
	"encoding/base64"
	"testing"
)

func encode(body string) string {
	return base64.StdEncoding.EncodeToString([]byte(body))
}

func TestParseProofCanonicalFields(t *testing.T) {
	header := encode(`{"amount":50000,"asset":"USDC-mint","from":"alice","to":"treasury","signature":"sig123","issuedAt":"2026-03-01T12:00:00Z"}`)
	proof, err := ParseProof(header)
	if err != nil {
		t.Fatalf("ParseProof failed: %v", err)
	}
	if proof.Amount != 50_000 {
		t.Errorf("amount = %d, want 50000", proof.Amount)
	}
	if proof.Asset != "USDC-mint" || proof.From != "alice" || proof.To != "treasury" || proof.Signature != "sig123" {
		t.Errorf("unexpected proof: %+v", proof)
	}
	if proof.IssuedAt.IsZero() {
		t.Error("issuedAt not parsed")
	}
}

func TestParseProofLegacyAliases(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"lamports and txHash", `{"lamports":50000,"mint":"m","payer":"p","recipient":"r","txHash":"sig"}`},
		{"value and txSignature", `{"value":"50000","token":"m","sender":"p","payTo":"r","txSignature":"sig"}`},
		{"transaction ref", `{"amount":50000,"asset":"m","from":"p","to":"r","transaction":"sig"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proof, err := ParseProof(encode(tt.body))
			if err != nil {
				t.Fatalf("ParseProof failed: %v", err)
			}
			if proof.Amount != 50_000 || proof.Signature != "sig" {
				t.Fatalf("alias resolution wrong: %+v", proof)
			}
		})
	}
}

func TestParseProofCanonicalWinsOverAlias(t *testing.T) {
	proof, err := ParseProof(encode(`{"amount":50000,"lamports":1,"asset":"m","from":"p","to":"r","signature":"sig"}`))
	if err != nil {
		t.Fatalf("ParseProof failed: %v", err)
	}
	if proof.Amount != 50_000 {
		t.Fatalf("amount = %d, canonical key should win", proof.Amount)
	}
}

func TestParseProofBareJSONAccepted(t *testing.T) {
	proof, err := ParseProof(`{"amount":1,"asset":"m","from":"p","to":"r","signature":"sig"}`)
	if err != nil {
		t.Fatalf("ParseProof failed: %v", err)
	}
	if proof.Amount != 1 {
		t.Fatalf("amount = %d, want 1", proof.Amount)
	}
}

func TestParseProofFailures(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"empty", ""},
		{"not base64", "!!not//base64!!"},
		{"base64 of non-json", encode("hello world")},
		{"missing amount", encode(`{"asset":"m","from":"p","to":"r","signature":"sig"}`)},
		{"missing signature", encode(`{"amount":1,"asset":"m","from":"p","to":"r"}`)},
		{"negative amount", encode(`{"amount":-5,"asset":"m","from":"p","to":"r","signature":"sig"}`)},
		{"fractional amount", encode(`{"amount":1.5,"asset":"m","from":"p","to":"r","signature":"sig"}`)},
		{"json array", encode(`[1,2,3]`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseProof(tt.header); err == nil {
				t.Fatal("expected parse failure")
			}
		})
	}
}
