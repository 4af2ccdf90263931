package eth

import (
	"context"
	"io"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
)

// EthClient is the subset of *ethclient.Client the wallet uses.
type EthClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BlockNumber(ctx context.Context) (uint64, error)
	Close()
}

// Ensure *ethclient.Client implements EthClient
var _ EthClient = (*ethclient.Client)(nil)

// Client wires the chain reader, fee estimator and confirmation waiter over a
// single RPC endpoint. Submitters are created per account.
type Client struct {
	client  EthClient
	chainId int64
	config  Config
	logger  logrus.FieldLogger

	reader    *ChainReader
	estimator *FeeEstimator
	waiter    *ConfirmationWaiter
}

// Dial connects to the configured endpoint and verifies its chain ID.
func Dial(ctx context.Context, cfg Config, logger logrus.FieldLogger) (*Client, error) {
	logger = orDiscard(logger)

	// -- Connect to Ethereum client
	logger.WithField("url", cfg.RPCURL()).Info("Connecting to Ethereum RPC")
	client, err := ethclient.DialContext(ctx, cfg.RPCURL())
	if err != nil {
		return nil, newError(KindRpcUnavailable, "dial", err)
	}

	// -- Verify connection and get chain ID
	clientChainId, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, newError(KindRpcUnavailable, "chain id", err)
	}

	// -- Check if chain ID matches config
	if clientChainId.Int64() != cfg.ChainID() {
		client.Close()
		return nil, newErrorf(KindInvalidRequest, "dial", "expected chain ID %d, got %d", cfg.ChainID(), clientChainId.Int64())
	}

	logger.WithField("chain_id", clientChainId.Int64()).Info("Successfully connected to Ethereum network")
	return NewClient(client, cfg, logger), nil
}

// NewClient builds a Client over an already connected backend.
func NewClient(client EthClient, cfg Config, logger logrus.FieldLogger) *Client {
	logger = orDiscard(logger)
	reader := NewChainReader(client, logger)
	return &Client{
		client:    client,
		chainId:   cfg.ChainID(),
		config:    cfg,
		logger:    logger,
		reader:    reader,
		estimator: NewFeeEstimator(reader, PolicyFromConfig(cfg), logger),
		waiter: NewConfirmationWaiter(client,
			time.Duration(cfg.TransactionTickerSeconds())*time.Second,
			time.Duration(cfg.TransactionTimeoutSeconds())*time.Second,
			logger),
	}
}

func (c *Client) Reader() *ChainReader {
	return c.reader
}

func (c *Client) Fees() *FeeEstimator {
	return c.estimator
}

func (c *Client) Waiter() *ConfirmationWaiter {
	return c.waiter
}

func (c *Client) Config() Config {
	return c.config
}

// NewSubmitter returns a submitter signing with account. The account must
// hold a key matching its address.
func (c *Client) NewSubmitter(account *Account) (*Submitter, error) {
	if err := account.validate(c.chainId); err != nil {
		return nil, err
	}
	return &Submitter{
		client:        c.client,
		account:       account,
		chainID:       big.NewInt(c.chainId),
		reader:        c.reader,
		estimator:     c.estimator,
		waiter:        c.waiter,
		gasLimit:      c.config.GasLimit(),
		confirmations: c.config.Confirmations(),
		logger:        c.logger.WithField("account", account.Address.Hex()),
	}, nil
}

// Close closes the Ethereum client connection
func (c *Client) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

func orDiscard(logger logrus.FieldLogger) logrus.FieldLogger {
	if logger != nil {
		return logger
	}
	l := logrus.New()
	l.Out = io.Discard
	return l
}
