package eth

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

const (
	envRpcURL     = "ETH_RPC_URL"
	envChainID    = "ETH_CHAIN_ID"
	envPrivateKey = "ETH_PRIVATE_KEY"

	// -- fee configuration
	// Multiplier applied to the latest base fee, decimal or fraction ("1.2", "13/10").
	envFeeMultiplier = "ETH_FEE_MULTIPLIER"
	// Priority fee per gas in wei (default: 1.5 gwei)
	envPriorityFee = "ETH_PRIORITY_FEE"
	// Max fee per gas in wei (default: 500 gwei), quotes above it are refused
	envMaxFeePerGas = "ETH_MAX_FEE_PER_GAS"

	// -- gas configuration
	// An ERC-20 transfer uses ~65000 gas, the limit must cover it with margin.
	envGasLimit = "ETH_GAS_LIMIT"

	// -- confirmation
	envConfirmations      = "ETH_CONFIRMATIONS"
	envTransactionTimeout = "ETH_TRANSACTION_TIMEOUT_SECONDS"
	envTransactionTicker  = "ETH_TRANSACTION_TICKER_SECONDS"

	envWalletFile = "WALLET_FILE"

	// --- Units and defaults ---
	GWEI = 1000000000 // 1 gwei in wei

	DEFAULT_RPC_URL         = "https://ethereum-sepolia-rpc.publicnode.com"
	DEFAULT_CHAIN_ID        = 11155111 // Sepolia
	DEFAULT_FEE_MULTIPLIER  = "1.2"
	DEFAULT_PRIORITY_FEE    = 15 * GWEI / 10 // 1.5 gwei
	DEFAULT_MAX_FEE_PER_GAS = 500 * GWEI     // 500 gwei
	DEFAULT_GAS_LIMIT       = 100000
	DEFAULT_CONFIRMATIONS   = 1
	DEFAULT_WALLET_FILE     = ".wallet.json"

	// --- Transaction monitoring defaults ---
	DEFAULT_TRANSACTION_TIMEOUT_SECONDS = 300 // 5 minutes
	DEFAULT_TRANSACTION_TICKER_SECONDS  = 3   // 3 seconds
)

// LookupFunc resolves a configuration key, os.LookupEnv being the usual one.
type LookupFunc func(key string) (string, bool)

// Config is the read-only configuration shared by every component.
type Config interface {
	Endpoint() ChainEndpoint
	RPCURL() string
	ChainID() int64
	PrivateKey() string
	FeeMultiplier() *big.Rat
	PriorityFee() *big.Int
	MaxFeePerGas() *big.Int
	GasLimit() uint64
	Confirmations() uint64
	TransactionTimeoutSeconds() int
	TransactionTickerSeconds() int
	WalletFile() string
}

type config struct {
	endpoint      ChainEndpoint
	privateKey    string
	feeMultiplier *big.Rat
	priorityFee   *big.Int
	maxFeePerGas  *big.Int
	gasLimit      uint64
	confirmations uint64
	timeout       int
	ticker        int
	walletFile    string
}

var _ Config = (*config)(nil)

// NewConfiguration reads every setting once through lookup. Values that fail
// to parse fall back to their defaults, except the chain ID which must be
// valid when given.
func NewConfiguration(lookup LookupFunc) (*config, error) {
	if lookup == nil {
		lookup = func(string) (string, bool) { return "", false }
	}
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	chainId := int64(DEFAULT_CHAIN_ID)
	if chainIDStr := get(envChainID); chainIDStr != "" {
		parsed, err := strconv.ParseInt(chainIDStr, 10, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("invalid %s %q", envChainID, chainIDStr)
		}
		chainId = parsed
	}

	rpcURL := get(envRpcURL)
	if rpcURL == "" {
		rpcURL = DEFAULT_RPC_URL
	}

	walletFile := get(envWalletFile)
	if walletFile == "" {
		walletFile = DEFAULT_WALLET_FILE
	}

	return &config{
		endpoint:      ChainEndpoint{RPCURL: rpcURL, ChainID: chainId},
		privateKey:    get(envPrivateKey),
		feeMultiplier: parseMultiplier(get(envFeeMultiplier)),
		priorityFee:   parseWei(get(envPriorityFee), DEFAULT_PRIORITY_FEE),
		maxFeePerGas:  parseWei(get(envMaxFeePerGas), DEFAULT_MAX_FEE_PER_GAS),
		gasLimit:      parseUint(get(envGasLimit), DEFAULT_GAS_LIMIT),
		confirmations: parseUint(get(envConfirmations), DEFAULT_CONFIRMATIONS),
		timeout:       parsePositiveInt(get(envTransactionTimeout), DEFAULT_TRANSACTION_TIMEOUT_SECONDS),
		ticker:        parsePositiveInt(get(envTransactionTicker), DEFAULT_TRANSACTION_TICKER_SECONDS),
		walletFile:    walletFile,
	}, nil
}

func (c *config) Endpoint() ChainEndpoint {
	return c.endpoint
}

func (c *config) RPCURL() string {
	return c.endpoint.RPCURL
}

func (c *config) ChainID() int64 {
	return c.endpoint.ChainID
}

// PrivateKey returns the optional hex key supplied through configuration.
func (c *config) PrivateKey() string {
	return c.privateKey
}

// FeeMultiplier returns the base fee headroom multiplier (default: 1.2)
func (c *config) FeeMultiplier() *big.Rat {
	return new(big.Rat).Set(c.feeMultiplier)
}

// PriorityFee returns the fixed priority fee in wei (default: 1.5 gwei)
func (c *config) PriorityFee() *big.Int {
	return new(big.Int).Set(c.priorityFee)
}

// MaxFeePerGas returns the max fee per gas in wei (default: 500 gwei)
func (c *config) MaxFeePerGas() *big.Int {
	return new(big.Int).Set(c.maxFeePerGas)
}

// GasLimit returns the explicit gas limit for token transfers (default: 100000)
func (c *config) GasLimit() uint64 {
	return c.gasLimit
}

// Confirmations returns the number of blocks to wait for (default: 1)
func (c *config) Confirmations() uint64 {
	return c.confirmations
}

// TransactionTimeoutSeconds returns the transaction timeout in seconds (default: 300)
func (c *config) TransactionTimeoutSeconds() int {
	return c.timeout
}

// TransactionTickerSeconds returns the transaction ticker interval in seconds (default: 3)
func (c *config) TransactionTickerSeconds() int {
	return c.ticker
}

func (c *config) WalletFile() string {
	return c.walletFile
}

func parseMultiplier(s string) *big.Rat {
	if s != "" {
		if r, ok := ParseRatio(s); ok {
			return r
		}
	}
	r, _ := ParseRatio(DEFAULT_FEE_MULTIPLIER)
	return r
}

// ParseRatio parses "1.2" or "6/5" exactly, without going through floats.
func ParseRatio(s string) (*big.Rat, bool) {
	return new(big.Rat).SetString(strings.TrimSpace(s))
}

func parseWei(s string, def int64) *big.Int {
	if s == "" {
		return big.NewInt(def)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return big.NewInt(def)
	}
	return v
}

func parseUint(s string, def uint64) uint64 {
	if s == "" {
		return def
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil || v == 0 {
		return def
	}
	return v
}

func parsePositiveInt(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
