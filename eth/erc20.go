package eth

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Minimal ERC-20 surface used by the wallet.
const erc20ABIJSON = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
	{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`

const (
	methodBalanceOf = "balanceOf"
	methodDecimals  = "decimals"
	methodSymbol    = "symbol"
	methodTransfer  = "transfer"
)

var erc20ABI = mustParseABI(erc20ABIJSON)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(fmt.Sprintf("invalid erc20 abi: %v", err))
	}
	return parsed
}

// PackTransfer returns the call data for transfer(to, amount).
func PackTransfer(to common.Address, amount *big.Int) ([]byte, error) {
	data, err := erc20ABI.Pack(methodTransfer, to, amount)
	if err != nil {
		return nil, &Error{Kind: KindInvalidRequest, Op: methodTransfer, Err: err}
	}
	return data, nil
}

// unpackSingle decodes the one return value of an ERC-20 method. An empty or
// malformed output means the contract does not implement the method.
func unpackSingle[T any](method string, out []byte) (T, error) {
	var zero T
	values, err := erc20ABI.Unpack(method, out)
	if err != nil {
		return zero, &Error{Kind: KindNotAToken, Op: method, Err: err}
	}
	if len(values) != 1 {
		return zero, newErrorf(KindNotAToken, method, "expected 1 return value, got %d", len(values))
	}
	v, ok := values[0].(T)
	if !ok {
		return zero, newErrorf(KindNotAToken, method, "unexpected return type %T", values[0])
	}
	return v, nil
}

// transferSucceeded interprets simulated transfer output. Tokens that predate
// the standard return nothing on success.
func transferSucceeded(out []byte) (bool, error) {
	if len(out) == 0 {
		return true, nil
	}
	ok, err := unpackSingle[bool](methodTransfer, out)
	if err != nil {
		return false, err
	}
	return ok, nil
}
