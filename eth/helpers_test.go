package eth

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	internalmocks "github.com/patrickcheng2025-art/s8/internal/mocks"
)

const testKeyHex = "4f3edf983ac636a65a842ce7c78d9aa706d3b113b37e5a4d5e1e4e6a1f7a1e08"

var (
	testToken     = common.HexToAddress("0x779877A7B0D9E8603169DdbD7836e478b4624789")
	testRecipient = common.HexToAddress("0x0000000000000000000000000000000000000002")
)

func lookupFrom(env map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func testConfig(t *testing.T, env map[string]string) *config {
	t.Helper()
	base := map[string]string{
		"ETH_CHAIN_ID":                    "1",
		"ETH_RPC_URL":                     "http://localhost:8545",
		"ETH_TRANSACTION_TICKER_SECONDS":  "1",
		"ETH_TRANSACTION_TIMEOUT_SECONDS": "30",
	}
	for k, v := range env {
		base[k] = v
	}
	cfg, err := NewConfiguration(lookupFrom(base))
	require.NoError(t, err)
	return cfg
}

func testAccountAndConfig(t *testing.T) (*Account, *config) {
	t.Helper()
	acc, err := AccountFromKey(testKeyHex, 1)
	require.NoError(t, err)
	return acc, testConfig(t, nil)
}

// rpcError mimics the JSON-RPC error objects returned by ethclient.
type rpcError struct {
	code int
	msg  string
	data any
}

func (e *rpcError) Error() string  { return e.msg }
func (e *rpcError) ErrorCode() int { return e.code }
func (e *rpcError) ErrorData() any { return e.data }

func revertError(t *testing.T, reason string) error {
	t.Helper()
	stringType, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	payload, err := abi.Arguments{{Type: stringType}}.Pack(reason)
	require.NoError(t, err)
	data := append(crypto.Keccak256([]byte("Error(string)"))[:4], payload...)
	return &rpcError{code: 3, msg: "execution reverted: " + reason, data: hexutil.Encode(data)}
}

func packOutput(t *testing.T, method string, v any) []byte {
	t.Helper()
	out, err := erc20ABI.Methods[method].Outputs.Pack(v)
	require.NoError(t, err)
	return out
}

// callTo matches an eth_call of the given ERC-20 method.
func callTo(method string) any {
	id := erc20ABI.Methods[method].ID
	return mock.MatchedBy(func(msg ethereum.CallMsg) bool {
		return bytes.HasPrefix(msg.Data, id)
	})
}

// mockToken answers balanceOf/decimals/symbol for any token address.
func mockToken(t *testing.T, m *internalmocks.EthClient, balance *big.Int, decimals uint8, symbol string) {
	t.Helper()
	if balance != nil {
		m.On("CallContract", mock.Anything, callTo(methodBalanceOf), (*big.Int)(nil)).Return(packOutput(t, methodBalanceOf, balance), nil)
	}
	m.On("CallContract", mock.Anything, callTo(methodDecimals), (*big.Int)(nil)).Return(packOutput(t, methodDecimals, decimals), nil)
	m.On("CallContract", mock.Anything, callTo(methodSymbol), (*big.Int)(nil)).Return(packOutput(t, methodSymbol, symbol), nil)
}

func gwei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(GWEI))
}
