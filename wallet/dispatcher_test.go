package wallet

import (
	"bytes"
	"context"
	"io"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/patrickcheng2025-art/s8/eth"
	internalmocks "github.com/patrickcheng2025-art/s8/internal/mocks"
)

var (
	testToken     = common.HexToAddress("0x779877A7B0D9E8603169DdbD7836e478b4624789")
	testRecipient = common.HexToAddress("0x0000000000000000000000000000000000000002")
	oneAndHalf, _ = new(big.Int).SetString("1500000000000000000", 10)
)

type nodeError struct{ msg string }

func (e *nodeError) Error() string  { return e.msg }
func (e *nodeError) ErrorCode() int { return 3 }

func newTestDispatcher(t *testing.T) (*Dispatcher, *internalmocks.EthClient, *MemoryStore) {
	t.Helper()
	env := map[string]string{
		"ETH_CHAIN_ID":                    "1",
		"ETH_TRANSACTION_TICKER_SECONDS":  "1",
		"ETH_TRANSACTION_TIMEOUT_SECONDS": "30",
	}
	cfg, err := eth.NewConfiguration(func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})
	require.NoError(t, err)

	logger := logrus.New()
	logger.Out = io.Discard
	mockClient := internalmocks.NewEthClient(t)
	store := &MemoryStore{}
	return NewDispatcher(eth.NewClient(mockClient, cfg, logger), store, logger), mockClient, store
}

func testSession(t *testing.T) Session {
	t.Helper()
	acc, err := eth.AccountFromKey(testKeyHex, testChainID)
	require.NoError(t, err)
	return Session{Account: acc}
}

func callTo(signature string) any {
	id := crypto.Keccak256([]byte(signature))[:4]
	return mock.MatchedBy(func(msg ethereum.CallMsg) bool {
		return bytes.HasPrefix(msg.Data, id)
	})
}

func packValue(t *testing.T, typ string, v any) []byte {
	t.Helper()
	abiType, err := abi.NewType(typ, "", nil)
	require.NoError(t, err)
	out, err := abi.Arguments{{Type: abiType}}.Pack(v)
	require.NoError(t, err)
	return out
}

func mockTokenMetadata(t *testing.T, m *internalmocks.EthClient) {
	m.On("CallContract", mock.Anything, callTo("decimals()"), (*big.Int)(nil)).Return(packValue(t, "uint8", uint8(18)), nil)
	m.On("CallContract", mock.Anything, callTo("symbol()"), (*big.Int)(nil)).Return(packValue(t, "string", "LINK"), nil)
}

func mockHeader(m *internalmocks.EthClient) {
	m.On("HeaderByNumber", mock.Anything, (*big.Int)(nil)).Return(&types.Header{
		Number:   big.NewInt(100),
		GasLimit: 30_000_000,
		BaseFee:  big.NewInt(20_000_000_000),
	}, nil)
}

func run(t *testing.T, d *Dispatcher, s Session, line string) (Session, Output, error) {
	t.Helper()
	cmd, err := ParseCommand(line)
	require.NoError(t, err)
	return d.Dispatch(context.Background(), s, cmd)
}

func joined(out Output) string {
	return strings.Join(out.Lines, "\n")
}

func TestParseCommand(t *testing.T) {
	cmd, err := ParseCommand("  SEND 0xa 0xb 1.5 ")
	require.NoError(t, err)
	assert.Equal(t, Command{Name: CmdSend, Args: []string{"0xa", "0xb", "1.5"}}, cmd)

	_, err = ParseCommand("   ")
	assert.ErrorIs(t, err, ErrUnknownCommand)
	_, err = ParseCommand("selfdestruct")
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestDispatch_Generate(t *testing.T) {
	d, _, store := newTestDispatcher(t)

	s, out, err := run(t, d, Session{}, "generate")
	require.NoError(t, err)
	require.True(t, s.CanSign())
	assert.Contains(t, joined(out), s.Account.Address.Hex())

	rec, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, s.Account.Address.Hex(), rec.Address)
	assert.Equal(t, s.Account.KeyHex(), rec.PrivateKey)

	// A second generate replaces the session and wipes the old key.
	old := s.Account
	s, _, err = run(t, d, s, "generate")
	require.NoError(t, err)
	assert.NotEqual(t, old.Address, s.Account.Address)
	assert.False(t, old.CanSign())
}

func TestDispatch_Import(t *testing.T) {
	d, _, store := newTestDispatcher(t)

	s, out, err := run(t, d, Session{}, "import 0x"+testKeyHex)
	require.NoError(t, err)
	want := testSession(t).Account.Address
	assert.Equal(t, want, s.Account.Address)
	assert.Contains(t, joined(out), want.Hex())

	rec, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, want.Hex(), rec.Address)

	s2, _, err := run(t, d, s, "import nothex")
	assert.ErrorIs(t, err, eth.ErrInvalidKeyFormat)
	assert.Equal(t, s, s2, "failed import keeps the session")

	_, _, err = run(t, d, s, "import")
	assert.ErrorIs(t, err, ErrUsage)
}

func TestDispatch_NoWallet(t *testing.T) {
	d, mockClient, _ := newTestDispatcher(t)

	for _, line := range []string{"info", "balance", "balance " + testToken.Hex()} {
		_, out, err := run(t, d, Session{}, line)
		require.NoError(t, err, line)
		assert.Equal(t, []string{noWalletWarning}, out.Lines, line)
	}

	_, _, err := run(t, d, Session{}, "send "+testToken.Hex()+" "+testRecipient.Hex()+" 1")
	assert.ErrorIs(t, err, ErrNoSigningKey)

	watchOnly := Session{Account: &eth.Account{Address: testRecipient, ChainId: testChainID}}
	_, _, err = run(t, d, watchOnly, "send "+testToken.Hex()+" "+testRecipient.Hex()+" 1")
	assert.ErrorIs(t, err, ErrNoSigningKey)
	mockClient.AssertNotCalled(t, "CallContract", mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatch_Info(t *testing.T) {
	d, mockClient, _ := newTestDispatcher(t)
	s := testSession(t)
	mockClient.On("BalanceAt", mock.Anything, s.Account.Address, (*big.Int)(nil)).Return(oneAndHalf, nil)
	mockClient.On("PendingNonceAt", mock.Anything, s.Account.Address).Return(uint64(4), nil)
	mockHeader(mockClient)

	_, out, err := run(t, d, s, "info")
	require.NoError(t, err)
	text := joined(out)
	assert.Contains(t, text, s.Account.Address.Hex())
	assert.Contains(t, text, "0x4f3e...1e08")
	assert.NotContains(t, text, testKeyHex)
	assert.Contains(t, text, "ETH balance: 1.5 ETH")
	assert.Contains(t, text, "Nonce:       4")
	assert.Contains(t, text, "Base fee:    20 gwei")
}

func TestDispatch_Balance(t *testing.T) {
	d, mockClient, _ := newTestDispatcher(t)
	s := testSession(t)
	mockClient.On("BalanceAt", mock.Anything, s.Account.Address, (*big.Int)(nil)).Return(big.NewInt(0), nil)
	mockClient.On("CallContract", mock.Anything, callTo("balanceOf(address)"), (*big.Int)(nil)).Return(packValue(t, "uint256", oneAndHalf), nil)
	mockTokenMetadata(t, mockClient)

	_, out, err := run(t, d, s, "balance")
	require.NoError(t, err)
	assert.Contains(t, joined(out), "ETH balance: 0 ETH")

	_, out, err = run(t, d, s, "balance "+testToken.Hex())
	require.NoError(t, err)
	assert.Contains(t, joined(out), "LINK balance: 1.5 LINK")
	assert.Contains(t, joined(out), "Decimals: 18")

	_, _, err = run(t, d, s, "balance a b")
	assert.ErrorIs(t, err, ErrUsage)
}

func TestDispatch_Send(t *testing.T) {
	d, mockClient, _ := newTestDispatcher(t)
	s := testSession(t)
	mockTokenMetadata(t, mockClient)
	mockHeader(mockClient)
	mockClient.On("CallContract", mock.Anything, callTo("transfer(address,uint256)"), (*big.Int)(nil)).Return(packValue(t, "bool", true), nil)
	// Node lags behind: it reports the same pending nonce for both sends.
	mockClient.On("PendingNonceAt", mock.Anything, s.Account.Address).Return(uint64(0), nil)
	var sent []*types.Transaction
	mockClient.On("SendTransaction", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		sent = append(sent, args.Get(1).(*types.Transaction))
	}).Return(nil)
	mockClient.On("TransactionReceipt", mock.Anything, mock.Anything).Return(func(_ context.Context, hash common.Hash) *types.Receipt {
		return &types.Receipt{TxHash: hash, Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(101), GasUsed: 51000}
	}, nil)

	line := "send " + testToken.Hex() + " " + testRecipient.Hex() + " 1.5"
	_, out, err := run(t, d, s, line)
	require.NoError(t, err)
	require.NotNil(t, out.Result)
	assert.Equal(t, eth.StateConfirmed, out.Result.State)
	assert.Contains(t, joined(out), "State:       CONFIRMED")

	_, _, err = run(t, d, s, line)
	require.NoError(t, err)
	require.Len(t, sent, 2)
	assert.Equal(t, uint64(0), sent[0].Nonce())
	assert.Equal(t, uint64(1), sent[1].Nonce())
}

func TestDispatch_Send_SimulationReverted(t *testing.T) {
	d, mockClient, _ := newTestDispatcher(t)
	s := testSession(t)
	mockTokenMetadata(t, mockClient)
	mockHeader(mockClient)
	mockClient.On("CallContract", mock.Anything, callTo("transfer(address,uint256)"), (*big.Int)(nil)).
		Return(nil, &nodeError{msg: "execution reverted: ERC20: transfer amount exceeds balance"})

	_, out, err := run(t, d, s, "send "+testToken.Hex()+" "+testRecipient.Hex()+" 2")
	assert.ErrorIs(t, err, eth.ErrSimulationReverted)
	assert.Nil(t, out.Result)
	mockClient.AssertNotCalled(t, "SendTransaction", mock.Anything, mock.Anything)

	_, _, err = run(t, d, s, "send "+testToken.Hex())
	assert.ErrorIs(t, err, ErrUsage)
}

func TestDispatch_Gas(t *testing.T) {
	d, mockClient, _ := newTestDispatcher(t)
	mockHeader(mockClient)

	_, out, err := run(t, d, Session{}, "gas")
	require.NoError(t, err)
	text := joined(out)
	assert.Contains(t, text, "20000000000 wei (20 gwei)")
	assert.Contains(t, text, "Max priority fee: 1.5 gwei")
	assert.Contains(t, text, "Max fee:          25.5 gwei")
	assert.Contains(t, text, "Max cost for 65000 gas: 0.0016575 ETH")
	assert.NotContains(t, text, "ETH balance")
	mockClient.AssertNotCalled(t, "BalanceAt", mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatch_Gas_BalanceCoverage(t *testing.T) {
	s := testSession(t)
	cases := map[string]struct {
		balance *big.Int
		want    string
	}{
		"covers":   {oneAndHalf, "ETH balance: 1.5 ETH, enough for a transfer"},
		"exact":    {big.NewInt(1_657_500_000_000_000), "ETH balance: 0.0016575 ETH, enough for a transfer"},
		"too poor": {big.NewInt(1_000_000_000_000_000), "ETH balance: 0.001 ETH, not enough for a transfer (short 0.0006575 ETH)"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			d, mockClient, _ := newTestDispatcher(t)
			mockHeader(mockClient)
			mockClient.On("BalanceAt", mock.Anything, s.Account.Address, (*big.Int)(nil)).Return(tc.balance, nil)

			_, out, err := run(t, d, s, "gas")
			require.NoError(t, err)
			assert.Contains(t, joined(out), tc.want)
		})
	}
}

func TestDispatch_Wait(t *testing.T) {
	d, mockClient, _ := newTestDispatcher(t)
	hash := common.HexToHash("0xfeed")
	mockClient.On("TransactionReceipt", mock.Anything, hash).Return(nil, ethereum.NotFound)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, out, err := d.Dispatch(ctx, Session{}, Command{Name: CmdWait, Args: []string{hash.Hex()}})
	require.NoError(t, err)
	assert.Equal(t, eth.StateTimedOut, out.Result.State)
	assert.Contains(t, joined(out), "wait "+hash.Hex())

	_, _, err = run(t, d, Session{}, "wait 0x1234")
	assert.ErrorIs(t, err, ErrUsage)
	// Right length, not hex.
	_, _, err = run(t, d, Session{}, "wait 0x"+strings.Repeat("zz", common.HashLength))
	assert.ErrorIs(t, err, ErrUsage)
	mockClient.AssertNumberOfCalls(t, "TransactionReceipt", 1)
	_, _, err = run(t, d, Session{}, "wait "+hash.Hex()+" many")
	assert.ErrorIs(t, err, ErrUsage)
}

func TestDispatch_HelpAndExit(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	_, out, err := run(t, d, Session{}, "help")
	require.NoError(t, err)
	assert.Len(t, out.Lines, len(commandOrder))
	assert.False(t, out.Exit)

	_, out, err = run(t, d, Session{}, "exit")
	require.NoError(t, err)
	assert.True(t, out.Exit)

	_, _, err = d.Dispatch(context.Background(), Session{}, Command{Name: "bogus"})
	assert.ErrorIs(t, err, ErrUnknownCommand)
}
