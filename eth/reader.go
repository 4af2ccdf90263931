package eth

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ChainReader performs stateless, read-only queries. Every method is safe to
// call concurrently and to retry.
type ChainReader struct {
	client EthClient
	logger logrus.FieldLogger
}

func NewChainReader(client EthClient, logger logrus.FieldLogger) *ChainReader {
	return &ChainReader{client: client, logger: orDiscard(logger)}
}

// ParseAddress validates a hex address.
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, newErrorf(KindInvalidAddress, "address", "%q is not a hex address", s)
	}
	return common.HexToAddress(s), nil
}

// NativeBalance returns the ETH balance of an address in wei.
func (r *ChainReader) NativeBalance(ctx context.Context, address string) (*big.Int, error) {
	addr, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}
	return r.nativeBalance(ctx, addr)
}

func (r *ChainReader) nativeBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	balance, err := r.client.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, newError(KindRpcUnavailable, "eth_getBalance", err)
	}
	return balance, nil
}

// TokenBalance reads balanceOf, decimals and symbol concurrently. Any of the
// three failing on the contract side means the address is not a usable token.
func (r *ChainReader) TokenBalance(ctx context.Context, owner, token string) (*TokenBalance, error) {
	ownerAddr, err := ParseAddress(owner)
	if err != nil {
		return nil, err
	}
	tokenAddr, err := ParseAddress(token)
	if err != nil {
		return nil, err
	}

	var (
		raw  *big.Int
		meta *TokenMetadata
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := r.callToken(gctx, tokenAddr, methodBalanceOf, ownerAddr)
		if err != nil {
			return err
		}
		raw, err = unpackSingle[*big.Int](methodBalanceOf, out)
		return err
	})
	g.Go(func() error {
		var err error
		meta, err = r.tokenMetadata(gctx, tokenAddr)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.logger.WithFields(logrus.Fields{
		"token":  tokenAddr.Hex(),
		"owner":  ownerAddr.Hex(),
		"symbol": meta.Symbol,
		"raw":    raw.String(),
	}).Debug("Token balance read")

	return &TokenBalance{
		TokenMetadata: *meta,
		Owner:         ownerAddr,
		Raw:           raw,
		Amount:        FormatUnits(raw, meta.Decimals),
	}, nil
}

// TokenMetadata reads decimals and symbol from a token contract.
func (r *ChainReader) TokenMetadata(ctx context.Context, token string) (*TokenMetadata, error) {
	tokenAddr, err := ParseAddress(token)
	if err != nil {
		return nil, err
	}
	return r.tokenMetadata(ctx, tokenAddr)
}

func (r *ChainReader) tokenMetadata(ctx context.Context, token common.Address) (*TokenMetadata, error) {
	meta := &TokenMetadata{Address: token}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := r.callToken(gctx, token, methodDecimals)
		if err != nil {
			return err
		}
		meta.Decimals, err = unpackSingle[uint8](methodDecimals, out)
		return err
	})
	g.Go(func() error {
		out, err := r.callToken(gctx, token, methodSymbol)
		if err != nil {
			return err
		}
		meta.Symbol, err = unpackSingle[string](methodSymbol, out)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return meta, nil
}

func (r *ChainReader) callToken(ctx context.Context, token common.Address, method string, args ...any) ([]byte, error) {
	data, err := erc20ABI.Pack(method, args...)
	if err != nil {
		return nil, &Error{Kind: KindInvalidRequest, Op: method, Err: err}
	}
	out, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		if isRevert(err) {
			return nil, newError(KindNotAToken, method, err)
		}
		return nil, newError(KindRpcUnavailable, method, err)
	}
	return out, nil
}

// Nonce returns the pending transaction count of address.
func (r *ChainReader) Nonce(ctx context.Context, address string) (uint64, error) {
	addr, err := ParseAddress(address)
	if err != nil {
		return 0, err
	}
	return r.pendingNonce(ctx, addr)
}

func (r *ChainReader) pendingNonce(ctx context.Context, addr common.Address) (uint64, error) {
	nonce, err := r.client.PendingNonceAt(ctx, addr)
	if err != nil {
		return 0, newError(KindRpcUnavailable, "eth_getTransactionCount", err)
	}
	return nonce, nil
}

// LatestHeader returns the most recent block header.
func (r *ChainReader) LatestHeader(ctx context.Context) (*types.Header, error) {
	header, err := r.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, newError(KindRpcUnavailable, "eth_getBlockByNumber", err)
	}
	if header == nil {
		return nil, newErrorf(KindRpcUnavailable, "eth_getBlockByNumber", "node returned no header")
	}
	return header, nil
}

// LatestBaseFee returns the base fee of the most recent block.
func (r *ChainReader) LatestBaseFee(ctx context.Context) (*big.Int, error) {
	header, err := r.LatestHeader(ctx)
	if err != nil {
		return nil, err
	}
	return baseFeeOf(header)
}

func baseFeeOf(header *types.Header) (*big.Int, error) {
	if header.BaseFee == nil {
		return nil, newErrorf(KindRpcUnavailable, "eth_getBlockByNumber", "block %v has no base fee", header.Number)
	}
	return new(big.Int).Set(header.BaseFee), nil
}

// Snapshot fetches balance, nonce and base fee concurrently.
func (r *ChainReader) Snapshot(ctx context.Context, address string) (*AccountSnapshot, error) {
	addr, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}
	snap := &AccountSnapshot{Address: addr}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snap.Balance, err = r.nativeBalance(gctx, addr)
		return err
	})
	g.Go(func() error {
		var err error
		snap.Nonce, err = r.pendingNonce(gctx, addr)
		return err
	})
	g.Go(func() error {
		var err error
		snap.BaseFee, err = r.LatestBaseFee(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}
