package eth

import (
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
)

// High-level Ethereum types and structures, for application-specific use
type Account struct {
	Address    common.Address    // Ethereum address
	PublicKey  *ecdsa.PublicKey  // Derived from PrivateKey
	ChainId    int64             // Chain ID for transaction signing
	Label      string            // Optional: human-readable label
	PrivateKey *ecdsa.PrivateKey // Private key for signing transactions
}

// ChainEndpoint is the single RPC endpoint the wallet talks to.
type ChainEndpoint struct {
	RPCURL  string `json:"rpc_url"`
	ChainID int64  `json:"chain_id"`
}

// FeeQuote holds EIP-1559 fee parameters in wei.
type FeeQuote struct {
	BaseFeePerGas        *big.Int `json:"base_fee_per_gas"`
	MaxPriorityFeePerGas *big.Int `json:"max_priority_fee_per_gas"`
	MaxFeePerGas         *big.Int `json:"max_fee_per_gas"`
}

// TxState is a step of a single submission attempt.
type TxState string

const (
	StateBuilding  TxState = "BUILDING"
	StateSimulated TxState = "SIMULATED"
	StateSigned    TxState = "SIGNED"
	StateBroadcast TxState = "BROADCAST"
	StateConfirmed TxState = "CONFIRMED"
	StateReverted  TxState = "REVERTED"
	StateTimedOut  TxState = "TIMED_OUT"
	StateRejected  TxState = "REJECTED"
)

// Terminal reports whether the attempt can no longer change state from this
// process's point of view. TIMED_OUT is terminal for the attempt, not for the
// transaction, which may still be mined.
func (s TxState) Terminal() bool {
	switch s {
	case StateConfirmed, StateReverted, StateTimedOut, StateRejected:
		return true
	default:
		return false
	}
}

// PendingTransaction is a signed transaction that was handed to the node.
type PendingTransaction struct {
	Hash     common.Hash    `json:"hash"`
	From     common.Address `json:"from"`
	To       common.Address `json:"to"`
	Value    *big.Int       `json:"value"`
	Data     []byte         `json:"data"`
	GasLimit uint64         `json:"gas_limit"`
	Fee      FeeQuote       `json:"fee"`
	Nonce    uint64         `json:"nonce"`
}

// TransactionReceipt represents transaction execution result
type TransactionReceipt struct {
	TxHash            common.Hash  `json:"tx_hash"`
	Status            uint64       `json:"status"`
	BlockNumber       uint64       `json:"block_number"`
	GasUsed           uint64       `json:"gas_used"`
	EffectiveGasPrice *big.Int     `json:"effective_gas_price"`
	Logs              []*types.Log `json:"logs"`
}

// Succeeded reports whether the receipt carries a success status.
func (r *TransactionReceipt) Succeeded() bool {
	return r != nil && r.Status == types.ReceiptStatusSuccessful
}

// TransactionResult is the outcome of a submission attempt once a
// PendingTransaction exists.
type TransactionResult struct {
	Pending *PendingTransaction `json:"pending"`
	State   TxState             `json:"state"`
	Receipt *TransactionReceipt `json:"receipt,omitempty"`
}

// TokenMetadata is read from the token contract for a single operation and
// never cached.
type TokenMetadata struct {
	Address  common.Address `json:"address"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
}

// TokenBalance is an ERC-20 balance in smallest units and decimal-normalized.
type TokenBalance struct {
	TokenMetadata
	Owner  common.Address  `json:"owner"`
	Raw    *big.Int        `json:"raw"`
	Amount decimal.Decimal `json:"amount"`
}

// AccountSnapshot groups the independent reads shown by the info command.
type AccountSnapshot struct {
	Address common.Address `json:"address"`
	Balance *big.Int       `json:"balance"`
	Nonce   uint64         `json:"nonce"`
	BaseFee *big.Int       `json:"base_fee"`
}

func toReceipt(r *types.Receipt) *TransactionReceipt {
	if r == nil {
		return nil
	}
	out := &TransactionReceipt{
		TxHash:            r.TxHash,
		Status:            r.Status,
		GasUsed:           r.GasUsed,
		EffectiveGasPrice: r.EffectiveGasPrice,
		Logs:              r.Logs,
	}
	if r.BlockNumber != nil {
		out.BlockNumber = r.BlockNumber.Uint64()
	}
	return out
}
