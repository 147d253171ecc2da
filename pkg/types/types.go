// Package types holds the small, widely-shared wire types that sit between
// the contract-client/tx-listener layer and the rest of the engine.
package types

import "math/big"

// TxReceipt is the trimmed view of an eth_getTransactionReceipt response the
// engine cares about: did it land, how much gas did it burn, in which block.
type TxReceipt struct {
	TxHash      string `json:"transactionHash"`
	BlockNumber string `json:"blockNumber"`
	GasUsed     string `json:"gasUsed"`
	Status      string `json:"status"`
}

// GasUsedBig parses GasUsed ("0x..." hex string) into a big.Int, 0 if unset.
func (r *TxReceipt) GasUsedBig() *big.Int {
	n := new(big.Int)
	if r == nil || r.GasUsed == "" {
		return n
	}
	n.SetString(trimHexPrefix(r.GasUsed), 16)
	return n
}

// Mined reports whether the receipt records a successful execution.
func (r *TxReceipt) Mined() bool {
	return r != nil && r.Status == "0x1"
}

func trimHexPrefix(s string) string {
	if len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// DecodedTransaction is the generic shape a ContractClient returns after
// matching raw calldata against an ABI: method name plus positional args.
type DecodedTransaction struct {
	MethodName string         `json:"method_name"`
	Args       map[string]any `json:"args"`
}
