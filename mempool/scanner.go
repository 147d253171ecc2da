// Package mempool implements the SNIPE-only pending-transaction scanner
// (C8, spec.md §4.4's SNIPE strategy): polling the node's pending pool,
// tracking already-seen transaction hashes, and extracting candidate pool
// addresses referenced by each pending transaction's calldata.
package mempool

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
)

// Candidate is one still-pending transaction worth evaluating against:
// the pools its calldata appears to reference, the sender's offered gas
// price, and the transaction hash itself (spec.md §4.4: SNIPE evaluates
// at gas_price+1 to frontrun the sender within the same block).
type Candidate struct {
	Hash     common.Hash
	From     common.Address
	GasPrice *big.Int
	Pools    []common.Address
}

// txpoolContentTx mirrors the subset of `txpool_content`'s per-transaction
// JSON fields this scanner needs.
type txpoolContentTx struct {
	Hash     common.Hash     `json:"hash"`
	From     common.Address  `json:"from"`
	GasPrice string          `json:"gasPrice"`
	Input    string          `json:"input"`
}

// txpoolContentResult mirrors `txpool_content`'s top-level shape:
// {"pending": {<from-address>: {<nonce>: tx}}, "queued": {...}}.
type txpoolContentResult struct {
	Pending map[string]map[string]txpoolContentTx `json:"pending"`
}

// Scanner polls a node's `txpool_content` RPC method and reports
// previously-unseen pending transactions referencing a pool this process
// tracks (spec.md §4.4: "last_seen_tx_hashes" single-writer set).
type Scanner struct {
	rpcClient  *rpc.Client
	knownPools map[common.Address]struct{}

	mu   sync.Mutex
	seen map[common.Hash]struct{}
}

// NewScanner builds a Scanner. knownPools is the full pool-address universe
// from the registry (C3); only transactions whose calldata references one
// of these addresses are returned as candidates.
func NewScanner(rpcClient *rpc.Client, knownPools []common.Address) *Scanner {
	set := make(map[common.Address]struct{}, len(knownPools))
	for _, p := range knownPools {
		set[p] = struct{}{}
	}
	return &Scanner{rpcClient: rpcClient, knownPools: set, seen: make(map[common.Hash]struct{})}
}

// Poll fetches the current pending pool and returns every not-yet-seen
// transaction whose calldata references at least one tracked pool.
// Single-writer: only the SNIPE strategy loop should call Poll.
func (s *Scanner) Poll(ctx context.Context) ([]Candidate, error) {
	var raw txpoolContentResult
	if err := s.rpcClient.CallContext(ctx, &raw, "txpool_content"); err != nil {
		return nil, fmt.Errorf("txpool_content: %w", err)
	}

	var out []Candidate
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, byNonce := range raw.Pending {
		for _, tx := range byNonce {
			if _, already := s.seen[tx.Hash]; already {
				continue
			}
			s.seen[tx.Hash] = struct{}{}

			pools := s.extractPools(tx.Input)
			if len(pools) == 0 {
				continue
			}
			gasPrice, ok := new(big.Int).SetString(strings.TrimPrefix(tx.GasPrice, "0x"), 16)
			if !ok {
				gasPrice = big.NewInt(0)
			}
			out = append(out, Candidate{Hash: tx.Hash, From: tx.From, GasPrice: gasPrice, Pools: pools})
		}
	}
	return out, nil
}

// extractPools slices calldata into 32-byte words and matches each word's
// low 20 bytes against the tracked pool set (spec.md §4.4: a pending tx's
// calldata is scanned word-by-word for addresses that look like tracked
// pools — the same heuristic original_source's mempool watcher uses since
// router calldata right-aligns address arguments within 32-byte slots).
func (s *Scanner) extractPools(inputHex string) []common.Address {
	data := common.FromHex(inputHex)
	if len(data) <= 4 {
		return nil
	}
	body := data[4:] // skip the 4-byte function selector
	var found []common.Address
	for i := 0; i+32 <= len(body); i += 32 {
		word := body[i : i+32]
		addr := common.BytesToAddress(word[12:32])
		if _, tracked := s.knownPools[addr]; tracked {
			found = append(found, addr)
		}
	}
	return found
}

// Reset clears the seen-hash set, useful after a long idle gap where
// retaining every historical hash would grow unbounded.
func (s *Scanner) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = make(map[common.Hash]struct{})
}
