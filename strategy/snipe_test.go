package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ChoSanghyuk/cyclicarb/mempool"
	"github.com/ChoSanghyuk/cyclicarb/pool"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snipeJSONRPCRequest struct {
	ID json.RawMessage `json:"id"`
}

// newSnipeTxpoolServer serves one canned txpool_content response so
// mempool.Scanner can be dialed against a real *rpc.Client.
func newSnipeTxpoolServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req snipeJSONRPCRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":%s}`, string(req.ID), body)
	}))
	t.Cleanup(server.Close)
	return server
}

func dialSnipeScanner(t *testing.T, server *httptest.Server, knownPools []common.Address) *mempool.Scanner {
	t.Helper()
	client, err := rpc.DialHTTP(server.URL)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return mempool.NewScanner(client, knownPools)
}

func TestSnipe_DispatchesAgainstPathsTouchingCandidatePools(t *testing.T) {
	dispatch, ap, weth := buildDispatch(t, 1, false)
	p1Addr := ap.Legs[0].Pool.Address
	poolsByToken := map[common.Address][]*pool.Pool{}
	for _, leg := range ap.Legs {
		poolsByToken[leg.TokenIn.Address] = append(poolsByToken[leg.TokenIn.Address], leg.Pool)
		poolsByToken[leg.TokenOut.Address] = append(poolsByToken[leg.TokenOut.Address], leg.Pool)
	}
	universe, err := BuildPoolUniverse(weth, poolsByToken, 3)
	require.NoError(t, err)

	input := "0x12345678000000000000000000000000" + p1Addr.Hex()[2:]
	body := fmt.Sprintf(`{"pending":{"0xfrom":{"0":{"hash":"0x%064x","from":"0x0000000000000000000000000000000000000099","gasPrice":"0x1","input":"%s"}}}}`, 1, input)
	server := newSnipeTxpoolServer(t, body)
	scanner := dialSnipeScanner(t, server, []common.Address{p1Addr})

	balanceCalls := 0
	balance := func(ctx context.Context) (*big.Int, error) {
		balanceCalls++
		return big.NewInt(0), nil
	}
	currentBlock := func(ctx context.Context) (uint64, error) { return 100, nil }

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	runErr := Snipe(ctx, scanner, universe, dispatch, balance, currentBlock, SnipeConfig{PollInterval: 10 * time.Millisecond})
	assert.ErrorIs(t, runErr, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, balanceCalls, 1, "a candidate touching a tracked pool must trigger at least one Dispatch.Run")
}

func TestSnipe_IgnoresUntrackedNoobAddresses(t *testing.T) {
	dispatch, ap, weth := buildDispatch(t, 1, false)
	p1Addr := ap.Legs[0].Pool.Address
	poolsByToken := map[common.Address][]*pool.Pool{}
	for _, leg := range ap.Legs {
		poolsByToken[leg.TokenIn.Address] = append(poolsByToken[leg.TokenIn.Address], leg.Pool)
		poolsByToken[leg.TokenOut.Address] = append(poolsByToken[leg.TokenOut.Address], leg.Pool)
	}
	universe, err := BuildPoolUniverse(weth, poolsByToken, 3)
	require.NoError(t, err)

	sender := common.HexToAddress("0x0000000000000000000000000000000000000099")
	input := "0x12345678000000000000000000000000" + p1Addr.Hex()[2:]
	body := fmt.Sprintf(`{"pending":{"0xfrom":{"0":{"hash":"0x%064x","from":"%s","gasPrice":"0x1","input":"%s"}}}}`, 2, sender.Hex(), input)
	server := newSnipeTxpoolServer(t, body)
	scanner := dialSnipeScanner(t, server, []common.Address{p1Addr})

	balanceCalls := 0
	balance := func(ctx context.Context) (*big.Int, error) {
		balanceCalls++
		return big.NewInt(0), nil
	}
	currentBlock := func(ctx context.Context) (uint64, error) { return 100, nil }

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	// Noobs is configured with a different address, so the candidate from
	// `sender` must be filtered out before ever reaching evaluateSnipeCandidate.
	untracked := common.HexToAddress("0x00000000000000000000000000000000000001")
	runErr := Snipe(ctx, scanner, universe, dispatch, balance, currentBlock, SnipeConfig{
		PollInterval: 10 * time.Millisecond,
		Noobs:        map[common.Address]struct{}{untracked: {}},
	})
	assert.ErrorIs(t, runErr, context.DeadlineExceeded)
	assert.Equal(t, 0, balanceCalls, "a candidate from an untracked address must never reach Dispatch.Run")
}

func TestEvaluateSnipeCandidate_NoMatchingPathIsANoop(t *testing.T) {
	dispatch, ap, weth := buildDispatch(t, 1, false)
	poolsByToken := map[common.Address][]*pool.Pool{}
	for _, leg := range ap.Legs {
		poolsByToken[leg.TokenIn.Address] = append(poolsByToken[leg.TokenIn.Address], leg.Pool)
		poolsByToken[leg.TokenOut.Address] = append(poolsByToken[leg.TokenOut.Address], leg.Pool)
	}
	universe, err := BuildPoolUniverse(weth, poolsByToken, 3)
	require.NoError(t, err)

	cand := mempool.Candidate{
		Hash:     common.HexToHash("0x1"),
		From:     common.HexToAddress("0x2"),
		GasPrice: big.NewInt(1),
		Pools:    []common.Address{common.HexToAddress("0xdeadbeef")}, // touches nothing in universe
	}
	balanceCalls := 0
	balance := func(ctx context.Context) (*big.Int, error) {
		balanceCalls++
		return big.NewInt(0), nil
	}
	currentBlock := func(ctx context.Context) (uint64, error) { return 100, nil }

	err = evaluateSnipeCandidate(context.Background(), cand, universe, dispatch, balance, currentBlock)
	require.NoError(t, err)
	assert.Equal(t, 0, balanceCalls)
}
