// Package ledger talks to the Solana ledger: transaction lookup, balance
// reads, associated token account derivation, and transfer verification.
package ledger

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/elmoxbt/x402-defi-yield-api/internal/apierr"
)

// TokenDelta is the pre/post balance movement of one token account within
// a transaction. Account may be empty when the transaction message could
// not be decoded; Owner and Mint are always populated.
type TokenDelta struct {
	Account string
	Owner   string
	Mint    string
	PreRaw  uint64
	PostRaw uint64
}

// TransactionRecord is the subset of a finalized transaction the payment
// path needs.
type TransactionRecord struct {
	Signature string
	Succeeded bool
	Deltas    []TokenDelta
}

// Client is the ledger read surface. GetTransaction returns (nil, nil)
// when the signature is unknown to the ledger.
type Client interface {
	GetTransaction(ctx context.Context, signature string) (*TransactionRecord, error)
	GetBalance(ctx context.Context, account string) (uint64, error)
	ResolveAssociatedAccount(owner, mint string) (string, error)
}

// RPCClient implements Client over Solana JSON-RPC.
type RPCClient struct {
	rpc     *rpc.Client
	timeout time.Duration
}

func NewRPCClient(endpoint string, timeout time.Duration) *RPCClient {
	return &RPCClient{rpc: rpc.New(endpoint), timeout: timeout}
}

var maxTxVersion uint64 = 0

func (c *RPCClient) GetTransaction(ctx context.Context, signature string) (*TransactionRecord, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeBadRequest, "invalid transaction signature", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentFinalized,
		MaxSupportedTransactionVersion: &maxTxVersion,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, nil
		}
		return nil, apierr.Wrap(apierr.CodeUnavailable, "ledger transaction lookup failed", err)
	}
	if res == nil || res.Meta == nil {
		return nil, nil
	}

	record := &TransactionRecord{
		Signature: signature,
		Succeeded: res.Meta.Err == nil,
	}

	var keys []solana.PublicKey
	if res.Transaction != nil {
		if tx, decodeErr := res.Transaction.GetTransaction(); decodeErr == nil && tx != nil {
			keys = tx.Message.AccountKeys
		}
	}

	pre := map[uint16]uint64{}
	for _, balance := range res.Meta.PreTokenBalances {
		pre[balance.AccountIndex] = rawAmount(balance)
	}
	for _, balance := range res.Meta.PostTokenBalances {
		delta := TokenDelta{
			Mint:    balance.Mint.String(),
			PreRaw:  pre[balance.AccountIndex],
			PostRaw: rawAmount(balance),
		}
		if balance.Owner != nil {
			delta.Owner = balance.Owner.String()
		}
		if int(balance.AccountIndex) < len(keys) {
			delta.Account = keys[balance.AccountIndex].String()
		}
		record.Deltas = append(record.Deltas, delta)
	}
	return record, nil
}

func (c *RPCClient) GetBalance(ctx context.Context, account string) (uint64, error) {
	key, err := solana.PublicKeyFromBase58(account)
	if err != nil {
		return 0, apierr.Wrap(apierr.CodeBadRequest, "invalid account address", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.rpc.GetBalance(ctx, key, rpc.CommitmentFinalized)
	if err != nil {
		return 0, apierr.Wrap(apierr.CodeUnavailable, "ledger balance lookup failed", err)
	}
	return res.Value, nil
}

func (c *RPCClient) ResolveAssociatedAccount(owner, mint string) (string, error) {
	ownerKey, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return "", apierr.Wrap(apierr.CodeBadRequest, "invalid owner address", err)
	}
	mintKey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return "", apierr.Wrap(apierr.CodeBadRequest, "invalid mint address", err)
	}
	ata, _, err := solana.FindAssociatedTokenAddress(ownerKey, mintKey)
	if err != nil {
		return "", apierr.Wrap(apierr.CodeInternal, "associated account derivation failed", err)
	}
	return ata.String(), nil
}

func rawAmount(balance rpc.TokenBalance) uint64 {
	if balance.UiTokenAmount == nil {
		return 0
	}
	v, err := strconv.ParseUint(balance.UiTokenAmount.Amount, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// ValidAddress reports whether s parses as a Solana public key.
func ValidAddress(s string) bool {
	_, err := solana.PublicKeyFromBase58(s)
	return err == nil
}

// ValidSignature reports whether s parses as a transaction signature.
func ValidSignature(s string) bool {
	_, err := solana.SignatureFromBase58(s)
	return err == nil
}
