package printer

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ChoSanghyuk/cyclicarb/arbitrage"
	"github.com/ChoSanghyuk/cyclicarb/pkg/contractclient"
	"github.com/ChoSanghyuk/cyclicarb/pkg/txlistener"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// State is a plan's position in the dispatch state machine (spec.md §4.4:
// "Evaluated → Validated → DryRunOK → Signed → Submitted → (Mined |
// Reverted | TimedOut)"). Transitions are observable by the notification
// facade via Dispatcher.OnTransition.
type State int

const (
	Evaluated State = iota
	Validated
	DryRunOK
	Signed
	Submitted
	Mined
	Reverted
	TimedOut
)

func (s State) String() string {
	return [...]string{"Evaluated", "Validated", "DryRunOK", "Signed", "Submitted", "Mined", "Reverted", "TimedOut"}[s]
}

// ValidationFailure is spec.md §7's ValidationFailure error class: the plan
// is skipped, no transaction is sent, and the notification facade's error
// webhook is used (not the success path).
type ValidationFailure struct {
	Reason string
}

func (e *ValidationFailure) Error() string { return "validation failure: " + e.Reason }

// DryRunRevert is spec.md §7's DryRunRevert: estimate_gas reverted and the
// plan is abandoned. The caller (strategy.Dispatch.Run) posts it to the
// errors webhook and moves on; no "would-not-go-through" counter is kept.
// DryRun does not touch the consecutive gate.
type DryRunRevert struct {
	Reason error
}

func (e *DryRunRevert) Error() string { return fmt.Sprintf("dry-run reverted: %v", e.Reason) }
func (e *DryRunRevert) Unwrap() error  { return e.Reason }

// Config carries the dispatcher's validation caps and chain parameters
// (spec.md §4.4 Step 1 and Step 4).
type Config struct {
	ChainID              *big.Int
	GasLimit             uint64
	MaskAddress          common.Address
	MinExecutorBalance   *big.Int // "executor balance ≥ 2 ETH (configurable)"
	GasCostSanityCapWei  *big.Int // "gas_cost < 1 WETH sanity cap"
	GasPriceMultiplier   *big.Float
}

// Dispatcher drives one plan through validate → dry-run → encode → sign →
// submit → track.
type Dispatcher struct {
	printer    contractclient.ContractClient
	listener   txlistener.TxListener
	privateKey *ecdsa.PrivateKey
	executor   common.Address
	config     Config

	// OnTransition is called on every state change, wired to the
	// notification facade by the caller; nil is a valid no-op.
	OnTransition func(plan *arbitrage.Plan, state State, detail string)
}

// NewDispatcher builds a Dispatcher bound to the printer contract's
// ContractClient, a tx listener for receipt tracking, and the operator's
// signer key.
func NewDispatcher(printer contractclient.ContractClient, listener txlistener.TxListener, privateKey *ecdsa.PrivateKey, executor common.Address, config Config) *Dispatcher {
	return &Dispatcher{printer: printer, listener: listener, privateKey: privateKey, executor: executor, config: config}
}

func (d *Dispatcher) emit(plan *arbitrage.Plan, state State, detail string) {
	if d.OnTransition != nil {
		d.OnTransition(plan, state, detail)
	}
}

// Validate runs spec.md §4.4 Step 1's checks. It does not touch the
// network; the executor's balance is supplied by the caller.
func (d *Dispatcher) Validate(ctx context.Context, plan *arbitrage.Plan, executorBalance *big.Int, weth common.Address) error {
	lastLeg := plan.Path.Legs[len(plan.Path.Legs)-1]
	if lastLeg.TokenOut.Address != weth {
		return &ValidationFailure{Reason: "terminal token is not WETH"}
	}
	n := len(plan.Path.Legs)
	if n < 2 || n > FixedTokenPathSize {
		return &ValidationFailure{Reason: fmt.Sprintf("path length %d out of [2,%d]", n, FixedTokenPathSize)}
	}
	if plan.GasCostWei.Cmp(plan.ProfitWei) >= 0 {
		return &ValidationFailure{Reason: "gas cost is not less than gross profit"}
	}
	if d.config.GasCostSanityCapWei != nil && plan.GasCostWei.Cmp(d.config.GasCostSanityCapWei) >= 0 {
		return &ValidationFailure{Reason: "gas cost exceeds sanity cap"}
	}
	if d.config.MinExecutorBalance != nil && executorBalance.Cmp(d.config.MinExecutorBalance) < 0 {
		return &ValidationFailure{Reason: "executor balance below minimum"}
	}
	d.emit(plan, Validated, "")
	return nil
}

// DryRun estimates gas for the encoded calldata from the executor address;
// a revert aborts the plan (spec.md §4.4 Step 2).
func (d *Dispatcher) DryRun(ctx context.Context, encoded EncodedPlan, plan *arbitrage.Plan, calldata []byte) error {
	if _, err := d.printer.EstimateGas(ctx, d.executor, calldata, nil); err != nil {
		return &DryRunRevert{Reason: err}
	}
	d.emit(plan, DryRunOK, "")
	return nil
}

// BuildCalldata packs the Encode()'d plan into the printer contract's
// `arbitrage(...)` ABI call.
func (d *Dispatcher) BuildCalldata(encoded EncodedPlan) ([]byte, error) {
	tokenPaths := make([][AddressesPerTokenPath]common.Address, FixedTokenPathSize)
	copy(tokenPaths, encoded.TokenPaths[:])
	minOuts := make([]*big.Int, FixedTokenPathSize)
	copy(minOuts, encoded.MinOutsGrouped[:])
	poolTypes := make([]*big.Int, FixedTokenPathSize)
	for i, pt := range encoded.PoolTypes {
		poolTypes[i] = big.NewInt(int64(pt))
	}
	return d.printer.ABI().Pack("arbitrage", tokenPaths, minOuts, encoded.AmountIn, encoded.GasBudgetWei, poolTypes, new(big.Int).SetUint64(encoded.DeadlineBlock))
}

// Sign builds and locally signs the raw transaction (spec.md §4.4 Step 4).
func (d *Dispatcher) Sign(ctx context.Context, nonce uint64, gasPrice *big.Int, calldata []byte) (*ethtypes.Transaction, error) {
	effectiveGasPrice := gasPrice
	if d.config.GasPriceMultiplier != nil {
		scaled := new(big.Float).Mul(new(big.Float).SetInt(gasPrice), d.config.GasPriceMultiplier)
		effectiveGasPrice, _ = scaled.Int(nil)
	}
	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		To:       addr(d.printer.Address()),
		Value:    big.NewInt(0),
		Gas:      d.config.GasLimit,
		GasPrice: effectiveGasPrice,
		Data:     calldata,
	})
	signer := ethtypes.NewEIP155Signer(d.config.ChainID)
	signed, err := ethtypes.SignTx(tx, signer, d.privateKey)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return signed, nil
}

func addr(a common.Address) *common.Address { return &a }

// Submit sends the signed transaction and records the Submitted transition
// (spec.md §4.4 Step 5, first half).
func (d *Dispatcher) Submit(ctx context.Context, plan *arbitrage.Plan, signed *ethtypes.Transaction) (common.Hash, error) {
	d.emit(plan, Signed, signed.Hash().Hex())
	hash, err := d.printer.SendRaw(ctx, signed)
	if err != nil {
		return common.Hash{}, fmt.Errorf("submit transaction: %w", err)
	}
	d.emit(plan, Submitted, hash.Hex())
	return hash, nil
}

// Track waits for the submitted transaction's receipt and emits the
// terminal state transition (Mined, Reverted, or TimedOut), spec.md §4.4
// Step 5's second half and §7's TxTimeout/TxReverted error classes. It
// never retries: "a failed submission is terminal for this plan."
func (d *Dispatcher) Track(plan *arbitrage.Plan, hash common.Hash) (State, error) {
	receipt, err := d.listener.WaitForTransaction(hash)
	if err != nil {
		d.emit(plan, TimedOut, hash.Hex())
		return TimedOut, err
	}
	if receipt.Status == ethtypes.ReceiptStatusSuccessful {
		d.emit(plan, Mined, hash.Hex())
		return Mined, nil
	}
	d.emit(plan, Reverted, hash.Hex())
	return Reverted, fmt.Errorf("transaction %s reverted", hash.Hex())
}

// SignerAddress derives the executor address from the dispatcher's private
// key, matching the teacher's crypto.PubkeyToAddress usage pattern.
func SignerAddress(pk *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(pk.PublicKey)
}
