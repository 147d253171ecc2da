package strategy

import (
	"context"
	"log"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ChoSanghyuk/cyclicarb/exchange"
	"github.com/ChoSanghyuk/cyclicarb/path"
	"github.com/ChoSanghyuk/cyclicarb/token"
)

// transferEventTopic and logSwapEventTopic are the two event signatures
// WATCH filters a block's receipts for (spec.md §4.4 table: "Each new block
// whose receipts contain Transfer / Balancer LOG_SWAP events").
var (
	transferEventTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	logSwapEventTopic  = crypto.Keccak256Hash([]byte("LOG_SWAP(address,address,address,uint256,uint256)"))
)

// LogFilterer is the subset of ethclient.Client WATCH needs to read a
// block's logs.
type LogFilterer interface {
	FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]ethtypes.Log, error)
}

// WatchConfig configures the WATCH strategy (spec.md §4.4, §5's
// _focus_positive_arb supplemented feature).
type WatchConfig struct {
	PollInterval      time.Duration
	HeartbeatInterval uint64
	ReloadEveryBlocks uint64
	WorkerCount       int
}

// Watch runs the WATCH strategy loop until ctx is cancelled. Each new
// block's Transfer/LOG_SWAP logs select which tokens moved; only paths
// touching one of those tokens (via the registry's paths_by_token index)
// are re-evaluated.
//
// The `focused` narrowing below implements spec.md §5's supplemented
// behaviour: once a path is found fillable and the gate's threshold is > 1, subsequent
// blocks re-check only that one path directly instead of falling back to
// the full token-indexed scan, until the gate resolves (dispatch or reset).
func Watch(ctx context.Context, src BlockSource, logs LogFilterer, weth *token.Token, reload ReloadFunc, maxDepth int, dispatch *Dispatch, executorBalance func(ctx context.Context) (*big.Int, error), cfg WatchConfig) error {
	pollInterval := cfg.PollInterval
	if pollInterval == 0 {
		pollInterval = 500 * time.Millisecond
	}
	reloadEvery := cfg.ReloadEveryBlocks
	if reloadEvery == 0 {
		reloadEvery = 200
	}
	workers := cfg.WorkerCount
	if workers <= 0 {
		workers = 8
	}

	poolsByToken, err := reload(ctx)
	if err != nil {
		return err
	}
	universe, err := BuildPoolUniverse(weth, poolsByToken, maxDepth)
	if err != nil {
		return err
	}

	last, err := src.BlockNumber(ctx)
	if err != nil {
		return err
	}
	reloadedAt := last
	var focused *path.ArbitragePath // _focus_positive_arb narrowing state

	for {
		heartbeat("watch", last, cfg.HeartbeatInterval)

		if last-reloadedAt >= reloadEvery {
			poolsByToken, err = reload(ctx)
			if err != nil {
				return err
			}
			universe, err = BuildPoolUniverse(weth, poolsByToken, maxDepth)
			if err != nil {
				return err
			}
			dispatch.Gate.Reset()
			focused = nil
			reloadedAt = last
			log.Printf("✓ watch: pool universe reloaded at block %d (%d paths)", last, len(universe.Index.Paths))
		}

		gasPrice, err := src.SuggestGasPrice(ctx)
		if err != nil {
			return err
		}
		balance, err := executorBalance(ctx)
		if err != nil {
			return err
		}
		block := exchange.PinnedBlock(new(big.Int).SetUint64(last))

		var targets []*path.ArbitragePath
		if focused != nil {
			targets = []*path.ArbitragePath{focused}
		} else {
			touched, err := touchedTokens(ctx, logs, last)
			if err != nil {
				return err
			}
			targets = pathsTouching(universe, touched)
		}

		for _, ap := range targets {
			if err := dispatch.Run(ctx, ap, block, last, gasPrice, balance); err != nil {
				return err
			}
			count := dispatch.Gate.Count(ap.PathID())
			if count > 0 && count < dispatch.Gate.Threshold() {
				focused = ap
			} else if focused == ap {
				focused = nil
			}
		}

		next, err := waitForNextBlock(ctx, src, last, pollInterval)
		if err != nil {
			return err
		}
		last = next
	}
}

// touchedTokens filters the given block's logs for Transfer/LOG_SWAP events
// and returns the set of token addresses they reference (the log emitter
// itself, spec.md §4.4's trigger description).
func touchedTokens(ctx context.Context, logs LogFilterer, block uint64) (map[common.Address]struct{}, error) {
	blockNum := new(big.Int).SetUint64(block)
	found, err := logs.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: blockNum,
		ToBlock:   blockNum,
		Topics:    [][]common.Hash{{transferEventTopic, logSwapEventTopic}},
	})
	if err != nil {
		return nil, err
	}
	touched := make(map[common.Address]struct{}, len(found))
	for _, lg := range found {
		touched[lg.Address] = struct{}{}
	}
	return touched, nil
}

func pathsTouching(universe *PoolUniverse, tokens map[common.Address]struct{}) []*path.ArbitragePath {
	seen := make(map[string]struct{})
	var out []*path.ArbitragePath
	for tokenAddr := range tokens {
		for _, ap := range universe.Index.PathsByToken[tokenAddr] {
			id := ap.PathID()
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, ap)
		}
	}
	return out
}
