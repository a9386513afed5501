// Package solana provides the secondary, read-only polling source the
// Reconciliation Workflow cross-checks against the sink. It fetches
// signature metadata only; full transaction bodies flow through the
// Enrichment Client, not here.
package solana

import (
	"context"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// RPCClient is the subset of the solana-go RPC surface the reconciliation
// source needs. Mockable in tests without hitting a real RPC node.
type RPCClient interface {
	GetSignaturesForAddress(
		ctx context.Context,
		address solana.PublicKey,
		opts *rpc.GetSignaturesForAddressOpts,
	) ([]*rpc.TransactionSignature, error)
}

// Client polls a Solana RPC endpoint for the signatures seen against one
// account, newest first.
type Client struct {
	rpc    RPCClient
	logger *slog.Logger
}

// NewClient wraps an RPCClient with the reconciliation-facing API.
func NewClient(rpcClient RPCClient, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{rpc: rpcClient, logger: logger}
}

// SignaturesSinceParams bounds one SignaturesSince call.
type SignaturesSinceParams struct {
	Account solana.PublicKey
	Since   time.Time
	Limit   int
}

// SignaturesSince returns the signatures for params.Account observed at or
// after params.Since, newest first. It makes one RPC call for a single page
// of up to params.Limit signatures; since the RPC returns results
// newest-first, it stops scanning that page at the first signature older
// than the window. Signatures beyond that one page are not fetched.
func (c *Client) SignaturesSince(ctx context.Context, params SignaturesSinceParams) ([]string, error) {
	limit := params.Limit
	opts := &rpc.GetSignaturesForAddressOpts{Limit: &limit}

	c.logger.DebugContext(ctx, "polling signatures for reconciliation",
		"account", params.Account.String(),
		"since", params.Since,
		"limit", limit,
	)

	sigs, err := c.rpc.GetSignaturesForAddress(ctx, params.Account, opts)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(sigs))
	for _, sig := range sigs {
		if !params.Since.IsZero() && sig.BlockTime != nil && sig.BlockTime.Time().Before(params.Since) {
			break
		}
		out = append(out, sig.Signature.String())
	}

	c.logger.DebugContext(ctx, "polled signatures for reconciliation",
		"account", params.Account.String(),
		"count", len(out),
	)

	return out, nil
}
