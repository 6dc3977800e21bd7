package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"
)

const defaultRequestTimeout = 5 * time.Second

// SnapshotFetcher retrieves one point-in-time capture of chain metrics.
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context) (*Snapshot, error)
}

// Options parameterise the Solana RPC client.
type Options struct {
	RPCURL     string
	Commitment string
	Wallets    []string
	TxLimit    int
	Timeout    time.Duration
}

// Client issues read-only queries against a Solana JSON-RPC endpoint.
// It applies a bounded per-fetch timeout and never retries; retry policy
// belongs to the refresher.
type Client struct {
	opts       Options
	logger     zerolog.Logger
	wallets    []solana.PublicKey
	commitment rpc.CommitmentType

	clientMux sync.Mutex
	client    *rpc.Client
}

// NewClient validates options and builds a client. The RPC connection itself
// is established lazily on first fetch.
func NewClient(opts Options, logger zerolog.Logger) (*Client, error) {
	if opts.RPCURL == "" {
		return nil, errors.New("solana rpc url not configured")
	}
	if len(opts.Wallets) == 0 {
		return nil, errors.New("at least one wallet address required")
	}

	wallets := make([]solana.PublicKey, 0, len(opts.Wallets))
	for _, raw := range opts.Wallets {
		pub, err := solana.PublicKeyFromBase58(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid wallet address %q: %w", raw, err)
		}
		wallets = append(wallets, pub)
	}

	commitment, err := parseCommitment(opts.Commitment)
	if err != nil {
		return nil, err
	}

	return &Client{
		opts:       opts,
		logger:     logger.With().Str("component", "chain_client").Logger(),
		wallets:    wallets,
		commitment: commitment,
	}, nil
}

// FetchSnapshot retrieves slot height, wallet balances, and recent
// transaction signatures in one pass.
func (c *Client) FetchSnapshot(ctx context.Context) (*Snapshot, error) {
	timeout := c.opts.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	client := c.getClient()

	slot, err := client.GetSlot(ctx, c.commitment)
	if err != nil {
		return nil, fmt.Errorf("get slot: %w", classify(err))
	}

	balances := make(map[string]uint64, len(c.wallets))
	for _, wallet := range c.wallets {
		res, err := client.GetBalance(ctx, wallet, c.commitment)
		if err != nil {
			return nil, fmt.Errorf("get balance %s: %w", wallet, classify(err))
		}
		if res == nil {
			return nil, fmt.Errorf("get balance %s: %w", wallet, &DecodeError{Err: errors.New("empty result")})
		}
		balances[wallet.String()] = res.Value
	}

	txs, err := c.fetchRecentTransactions(ctx, client)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		FetchedAt:          time.Now().UTC(),
		SlotHeight:         slot,
		Balances:           balances,
		RecentTransactions: txs,
	}

	c.logger.Debug().
		Uint64("slot", slot).
		Int("wallets", len(balances)).
		Int("transactions", len(txs)).
		Msg("snapshot fetched")

	return snap, nil
}

// fetchRecentTransactions lists recent signatures for the first wallet.
// Additional wallets are tracked balance-only.
func (c *Client) fetchRecentTransactions(ctx context.Context, client *rpc.Client) ([]TransactionSummary, error) {
	limit := c.opts.TxLimit
	if limit <= 0 {
		return nil, nil
	}

	sigs, err := client.GetSignaturesForAddressWithOpts(ctx, c.wallets[0], &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: c.commitment,
	})
	if err != nil {
		return nil, fmt.Errorf("get signatures: %w", classify(err))
	}

	summaries := make([]TransactionSummary, 0, len(sigs))
	for _, sig := range sigs {
		if sig == nil {
			continue
		}
		summary := TransactionSummary{
			Signature: sig.Signature.String(),
			Slot:      sig.Slot,
		}
		if sig.BlockTime != nil {
			bt := sig.BlockTime.Time().UTC()
			summary.BlockTime = &bt
		}
		if sig.Err != nil {
			msg := fmt.Sprintf("%v", sig.Err)
			summary.Err = &msg
		}
		if sig.Memo != nil {
			summary.Memo = *sig.Memo
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (c *Client) getClient() *rpc.Client {
	c.clientMux.Lock()
	defer c.clientMux.Unlock()

	if c.client == nil {
		c.client = rpc.New(c.opts.RPCURL)
	}
	return c.client
}

func parseCommitment(raw string) (rpc.CommitmentType, error) {
	switch raw {
	case "", "finalized":
		return rpc.CommitmentFinalized, nil
	case "confirmed":
		return rpc.CommitmentConfirmed, nil
	case "processed":
		return rpc.CommitmentProcessed, nil
	default:
		return "", fmt.Errorf("unknown commitment level %q", raw)
	}
}

var _ SnapshotFetcher = (*Client)(nil)
