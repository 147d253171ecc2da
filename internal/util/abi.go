// Package util holds small, dependency-light helpers shared by the
// contract-facing packages: ABI loading, hex decoding, address masking and
// private-key decryption.
package util

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// hardhatArtifact is the subset of a Hardhat/Foundry compilation artifact
// this codebase needs: the `abi` field, verbatim ABI JSON.
type hardhatArtifact struct {
	ABI json.RawMessage `json:"abi"`
}

// LoadABIFromHardhatArtifact reads a Hardhat-style artifact JSON file (the
// file has top-level "abi", "bytecode", ... fields) and parses its ABI.
func LoadABIFromHardhatArtifact(path string) (abi.ABI, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("read hardhat artifact %s: %w", path, err)
	}
	var artifact hardhatArtifact
	if err := json.Unmarshal(raw, &artifact); err != nil {
		return abi.ABI{}, fmt.Errorf("parse hardhat artifact %s: %w", path, err)
	}
	parsed, err := abi.JSON(strings.NewReader(string(artifact.ABI)))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("decode abi from %s: %w", path, err)
	}
	return parsed, nil
}

// LoadABI reads a bare ABI JSON file (just the array of entries, no
// surrounding artifact envelope) such as a generic ERC20 ABI.
func LoadABI(path string) (abi.ABI, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("read abi %s: %w", path, err)
	}
	parsed, err := abi.JSON(strings.NewReader(string(raw)))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("decode abi %s: %w", path, err)
	}
	return parsed, nil
}

// Hex2Bytes decodes a hex string that may or may not carry a "0x" prefix.
func Hex2Bytes(hexStr string) []byte {
	hexStr = strings.TrimPrefix(hexStr, "0x")
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return nil
	}
	return b
}
