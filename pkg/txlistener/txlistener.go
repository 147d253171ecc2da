// Package txlistener polls for a transaction's receipt until it is mined,
// reverted, or the configured timeout elapses.
package txlistener

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ErrTxTimeout is returned when no receipt appears before the deadline.
// Strategy loops treat this as spec.md §7's TxTimeout: abandon the plan,
// the loop continues at the next block.
var ErrTxTimeout = errors.New("txlistener: transaction receipt not seen before timeout")

// TxListener waits for a submitted transaction to be mined.
type TxListener interface {
	WaitForTransaction(hash common.Hash) (*ethtypes.Receipt, error)
}

type txListener struct {
	client       *ethclient.Client
	pollInterval time.Duration
	timeout      time.Duration
}

// Option configures a txListener; mirrors the option-function idiom used
// throughout this codebase's RPC-facing constructors.
type Option func(*txListener)

// WithPollInterval sets how often the listener re-checks for a receipt.
func WithPollInterval(d time.Duration) Option {
	return func(tl *txListener) { tl.pollInterval = d }
}

// WithTimeout bounds the total time WaitForTransaction will wait.
func WithTimeout(d time.Duration) Option {
	return func(tl *txListener) { tl.timeout = d }
}

// NewTxListener builds a TxListener with sane defaults (3s poll, 5m timeout),
// overridable via Option.
func NewTxListener(client *ethclient.Client, opts ...Option) TxListener {
	tl := &txListener{client: client, pollInterval: 3 * time.Second, timeout: 5 * time.Minute}
	for _, opt := range opts {
		opt(tl)
	}
	return tl
}

func (tl *txListener) WaitForTransaction(hash common.Hash) (*ethtypes.Receipt, error) {
	ctx, cancel := context.WithTimeout(context.Background(), tl.timeout)
	defer cancel()

	ticker := time.NewTicker(tl.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := tl.client.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ErrTxTimeout
		case <-ticker.C:
		}
	}
}
