// Package contractclient wraps a single on-chain contract (address + ABI)
// behind a small interface: call a view function, decode a pending
// transaction's calldata against the same ABI, send a signed transaction.
package contractclient

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ChoSanghyuk/cyclicarb/pkg/types"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ContractClient is the narrow surface the rest of the engine needs from a
// deployed contract: read its state, decode calldata aimed at it, and push
// a raw signed transaction through it.
type ContractClient interface {
	// Call invokes a read-only (view/pure) method at the latest known
	// state. caller may be nil when the method does not depend on msg.sender.
	Call(caller *common.Address, method string, args ...interface{}) ([]interface{}, error)

	// CallAtBlock is Call pinned to a specific historical block, the
	// evaluator's "block snapshot" requirement (spec.md §3).
	CallAtBlock(caller *common.Address, blockNumber *big.Int, method string, args ...interface{}) ([]interface{}, error)

	// TransactionData fetches the calldata of a mined or pending transaction.
	TransactionData(hash common.Hash) ([]byte, error)

	// DecodeTransaction matches raw calldata against this client's ABI.
	DecodeTransaction(data []byte) (*types.DecodedTransaction, error)

	// EstimateGas dry-runs a call from `from` with the given calldata and value.
	EstimateGas(ctx context.Context, from common.Address, data []byte, value *big.Int) (uint64, error)

	// SendRaw submits a pre-signed transaction and returns its hash.
	SendRaw(ctx context.Context, signed *ethtypes.Transaction) (common.Hash, error)

	Address() common.Address
	ABI() abi.ABI
}

type contractClient struct {
	client  *ethclient.Client
	address common.Address
	abi     abi.ABI
}

// NewContractClient builds a ContractClient bound to one contract address
// and ABI, sharing the given RPC client.
func NewContractClient(client *ethclient.Client, address common.Address, parsedABI abi.ABI) ContractClient {
	return &contractClient{client: client, address: address, abi: parsedABI}
}

func (c *contractClient) Address() common.Address { return c.address }
func (c *contractClient) ABI() abi.ABI            { return c.abi }

func (c *contractClient) Call(caller *common.Address, method string, args ...interface{}) ([]interface{}, error) {
	return c.CallAtBlock(caller, nil, method, args...)
}

func (c *contractClient) CallAtBlock(caller *common.Address, blockNumber *big.Int, method string, args ...interface{}) ([]interface{}, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &c.address, Data: data}
	if caller != nil {
		msg.From = *caller
	}
	out, err := c.client.CallContract(context.Background(), msg, blockNumber)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	outputs, err := c.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return outputs, nil
}

func (c *contractClient) TransactionData(hash common.Hash) ([]byte, error) {
	tx, _, err := c.client.TransactionByHash(context.Background(), hash)
	if err != nil {
		return nil, fmt.Errorf("fetch tx %s: %w", hash.Hex(), err)
	}
	return tx.Data(), nil
}

func (c *contractClient) DecodeTransaction(data []byte) (*types.DecodedTransaction, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("calldata shorter than a method selector")
	}
	method, err := c.abi.MethodById(data[:4])
	if err != nil {
		return nil, fmt.Errorf("match method selector: %w", err)
	}
	args := map[string]interface{}{}
	if err := method.Inputs.UnpackIntoMap(args, data[4:]); err != nil {
		return nil, fmt.Errorf("unpack args for %s: %w", method.Name, err)
	}
	return &types.DecodedTransaction{MethodName: method.Name, Args: args}, nil
}

func (c *contractClient) EstimateGas(ctx context.Context, from common.Address, data []byte, value *big.Int) (uint64, error) {
	msg := ethereum.CallMsg{From: from, To: &c.address, Data: data, Value: value}
	gas, err := c.client.EstimateGas(ctx, msg)
	if err != nil {
		return 0, fmt.Errorf("estimate gas: %w", err)
	}
	return gas, nil
}

func (c *contractClient) SendRaw(ctx context.Context, signed *ethtypes.Transaction) (common.Hash, error) {
	if err := c.client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("send raw transaction: %w", err)
	}
	return signed.Hash(), nil
}
