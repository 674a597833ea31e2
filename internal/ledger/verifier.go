package ledger

import (
	"context"

	"github.com/sirupsen/logrus"
)

// ToleranceUnits absorbs unit rounding between what a wallet reports and
// what the ledger records. It is far below any billable amount.
const ToleranceUnits uint64 = 100

// Verifier checks that a referenced transaction actually moved the
// expected amount of the expected asset into the recipient's associated
// token account. A transaction with no matching transfer record is
// denied, never waved through on transaction success alone.
type Verifier struct {
	client Client
	log    *logrus.Entry
}

func NewVerifier(client Client, log *logrus.Entry) *Verifier {
	return &Verifier{client: client, log: log}
}

// VerifyTransfer returns (true, nil) when the transaction satisfies the
// expected transfer, (false, nil) when the ledger rejects the claim, and
// (false, err) when the ledger could not be consulted at all.
func (v *Verifier) VerifyTransfer(ctx context.Context, signature string, expectedAmount uint64, recipient, mint string) (bool, error) {
	record, err := v.client.GetTransaction(ctx, signature)
	if err != nil {
		return false, err
	}
	if record == nil {
		v.log.WithField("signature", signature).Warn("payment transaction not found on ledger")
		return false, nil
	}
	if !record.Succeeded {
		v.log.WithField("signature", signature).Warn("payment transaction failed on-chain")
		return false, nil
	}

	ata, err := v.client.ResolveAssociatedAccount(recipient, mint)
	if err != nil {
		return false, err
	}

	for _, delta := range record.Deltas {
		if delta.Mint != mint {
			continue
		}
		if delta.Account != ata && delta.Owner != recipient {
			continue
		}
		if delta.PostRaw < delta.PreRaw {
			// Balance decreased; this is the sender side of the transfer.
			continue
		}
		received := delta.PostRaw - delta.PreRaw
		if absDiff(received, expectedAmount) < ToleranceUnits {
			return true, nil
		}
		v.log.WithFields(logrus.Fields{
			"signature": signature,
			"expected":  expectedAmount,
			"received":  received,
		}).Warn("payment transaction amount mismatch")
		return false, nil
	}

	v.log.WithFields(logrus.Fields{
		"signature": signature,
		"account":   ata,
		"mint":      mint,
	}).Warn("no transfer to recipient found in transaction")
	return false, nil
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}
