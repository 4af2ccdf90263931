package eth

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
)

// WaitResult is the waiter's view of a transaction. A TIMED_OUT result may
// still carry a receipt that had not yet reached the requested depth.
type WaitResult struct {
	State         TxState
	Receipt       *TransactionReceipt
	Confirmations uint64
}

// ConfirmationWaiter polls for a receipt until enough blocks sit on top of
// the including block.
type ConfirmationWaiter struct {
	client       EthClient
	pollInterval time.Duration
	timeout      time.Duration
	logger       logrus.FieldLogger
}

// NewConfirmationWaiter returns a waiter. A zero timeout leaves the deadline
// entirely to the caller's context.
func NewConfirmationWaiter(client EthClient, pollInterval, timeout time.Duration, logger logrus.FieldLogger) *ConfirmationWaiter {
	if pollInterval <= 0 {
		pollInterval = DEFAULT_TRANSACTION_TICKER_SECONDS * time.Second
	}
	return &ConfirmationWaiter{
		client:       client,
		pollInterval: pollInterval,
		timeout:      timeout,
		logger:       orDiscard(logger),
	}
}

// Wait blocks until hash has the requested number of confirmations (the
// including block counts as the first), the waiter's timeout elapses or ctx
// is done. The last two return TIMED_OUT rather than an error: the
// transaction may still be mined and hash stays valid for a later Wait.
func (w *ConfirmationWaiter) Wait(ctx context.Context, hash common.Hash, confirmations uint64) *WaitResult {
	if confirmations == 0 {
		confirmations = 1
	}
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	log := w.logger.WithField("hash", hash.Hex())
	var last *types.Receipt
	for {
		receipt, err := w.client.TransactionReceipt(ctx, hash)
		switch {
		case err == nil && receipt != nil:
			last = receipt
			depth, ok := w.depth(ctx, receipt, confirmations)
			if ok {
				log.WithFields(logrus.Fields{
					"block":  receipt.BlockNumber,
					"status": receipt.Status,
					"depth":  depth,
				}).Info("Transaction confirmed")
				return &WaitResult{State: stateOf(receipt), Receipt: toReceipt(receipt), Confirmations: depth}
			}
		case errors.Is(err, ethereum.NotFound) || err == nil:
			// Not mined yet, or dropped from the canonical chain by a reorg.
			last = nil
		default:
			if ctx.Err() == nil {
				log.WithError(err).Warn("Receipt lookup failed, retrying")
			}
		}

		select {
		case <-ctx.Done():
			log.Warn("Stopped waiting for transaction, outcome unknown")
			return &WaitResult{State: StateTimedOut, Receipt: toReceipt(last)}
		case <-ticker.C:
		}
	}
}

// depth reports how many blocks confirm receipt and whether that meets want.
func (w *ConfirmationWaiter) depth(ctx context.Context, receipt *types.Receipt, want uint64) (uint64, bool) {
	if want <= 1 {
		return 1, true
	}
	if receipt.BlockNumber == nil {
		return 0, false
	}
	head, err := w.client.BlockNumber(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.WithError(err).Warn("Block number lookup failed, retrying")
		}
		return 0, false
	}
	included := receipt.BlockNumber.Uint64()
	if head < included {
		return 0, false
	}
	depth := head - included + 1
	return depth, depth >= want
}

func stateOf(receipt *types.Receipt) TxState {
	if receipt.Status == types.ReceiptStatusSuccessful {
		return StateConfirmed
	}
	return StateReverted
}
