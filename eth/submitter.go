package eth

import (
	"context"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
)

// TransferRequest describes an ERC-20 transfer(to, amount) call.
type TransferRequest struct {
	Token  common.Address
	To     common.Address
	Amount *big.Int
	// GasLimit must cover execution with margin. Zero uses the configured
	// limit; the network estimate is never used.
	GasLimit uint64
	// Nonce overrides the nonce resolved at signing time.
	Nonce *uint64
	// Fee overrides the quote computed from the latest base fee.
	Fee *FeeQuote
	// Confirmations overrides the configured confirmation depth.
	Confirmations uint64
}

// Submitter builds, simulates, signs, broadcasts and confirms transactions
// for one account. Callers must not run Send concurrently for the same
// account.
type Submitter struct {
	client        EthClient
	account       *Account
	chainID       *big.Int
	reader        *ChainReader
	estimator     *FeeEstimator
	waiter        *ConfirmationWaiter
	gasLimit      uint64
	confirmations uint64
	logger        logrus.FieldLogger

	mu        sync.Mutex
	nextNonce uint64
	reserved  bool
}

func (s *Submitter) Account() *Account {
	return s.account
}

// Transfer sends amount (a decimal string in token units) of token to to.
func (s *Submitter) Transfer(ctx context.Context, token, to, amount string) (*TransactionResult, error) {
	tokenAddr, err := ParseAddress(token)
	if err != nil {
		return nil, err
	}
	toAddr, err := ParseAddress(to)
	if err != nil {
		return nil, err
	}
	meta, err := s.reader.tokenMetadata(ctx, tokenAddr)
	if err != nil {
		return nil, err
	}
	raw, err := ParseUnits(amount, meta.Decimals)
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"token":  tokenAddr.Hex(),
		"symbol": meta.Symbol,
		"amount": amount,
		"raw":    raw.String(),
	}).Info("Preparing token transfer")
	return s.Send(ctx, TransferRequest{Token: tokenAddr, To: toAddr, Amount: raw})
}

// Send runs one submission attempt.
//
// Errors before broadcast return a nil result: nothing reached the network.
// Once a transaction is signed and handed to the node the result is always
// non-nil; REJECTED comes with a Rejected error, an unknown broadcast
// outcome comes with state BROADCAST and a BroadcastFailed error. A reverted
// or timed out transaction is reported through the result state, not as an
// error.
func (s *Submitter) Send(ctx context.Context, req TransferRequest) (*TransactionResult, error) {
	log := s.logger.WithFields(logrus.Fields{
		"token": req.Token.Hex(),
		"to":    req.To.Hex(),
	})

	// -- BUILDING
	log.WithField("state", StateBuilding).Info("Building transaction")
	if req.Amount == nil || req.Amount.Sign() < 0 {
		return nil, newErrorf(KindInvalidRequest, "build", "amount must be a non-negative integer")
	}
	gasLimit := req.GasLimit
	if gasLimit == 0 {
		gasLimit = s.gasLimit
	}
	if gasLimit == 0 {
		return nil, newErrorf(KindInvalidRequest, "build", "an explicit gas limit is required")
	}
	data, err := PackTransfer(req.To, req.Amount)
	if err != nil {
		return nil, err
	}

	header, err := s.reader.LatestHeader(ctx)
	if err != nil {
		return nil, err
	}
	// Validate against network gas limit, transaction will get blocked if goes above it
	if header.GasLimit > 0 {
		maxGas := header.GasLimit * 2 / 3
		if gasLimit > maxGas {
			return nil, newErrorf(KindInvalidRequest, "build", "gas limit %d exceeds maximum allowed %d", gasLimit, maxGas)
		}
	}

	fee := req.Fee
	if fee == nil {
		baseFee, err := baseFeeOf(header)
		if err != nil {
			return nil, err
		}
		if fee, err = s.estimator.Quote(baseFee); err != nil {
			return nil, err
		}
	} else if err := fee.Validate(); err != nil {
		return nil, err
	}

	// -- SIMULATED
	msg := ethereum.CallMsg{
		From:      s.account.Address,
		To:        &req.Token,
		Gas:       gasLimit,
		GasFeeCap: fee.MaxFeePerGas,
		GasTipCap: fee.MaxPriorityFeePerGas,
		Value:     new(big.Int),
		Data:      data,
	}
	if err := s.simulate(ctx, msg); err != nil {
		log.WithError(err).Warn("Simulation failed, transaction not sent")
		return nil, err
	}
	log.WithField("state", StateSimulated).Info("Simulation succeeded")

	// -- SIGNED
	// The nonce is resolved here rather than while building so that a
	// transaction sent in between cannot leave us with a stale value.
	nonce, err := s.nonceFor(ctx, req.Nonce)
	if err != nil {
		return nil, err
	}
	signedTx, err := s.sign(&types.DynamicFeeTx{
		ChainID:   s.chainID,
		Nonce:     nonce,
		GasTipCap: fee.MaxPriorityFeePerGas,
		GasFeeCap: fee.MaxFeePerGas,
		Gas:       gasLimit,
		To:        &req.Token,
		Value:     new(big.Int),
		Data:      data,
	})
	if err != nil {
		log.WithError(err).Error("Failed to sign transaction")
		return nil, err
	}
	pending := &PendingTransaction{
		Hash:     signedTx.Hash(),
		From:     s.account.Address,
		To:       req.Token,
		Value:    new(big.Int),
		Data:     data,
		GasLimit: gasLimit,
		Fee:      *fee,
		Nonce:    nonce,
	}
	log = log.WithFields(logrus.Fields{"hash": pending.Hash.Hex(), "nonce": nonce})
	log.WithFields(logrus.Fields{
		"state":                    StateSigned,
		"max_fee_per_gas":          fee.MaxFeePerGas.String(),
		"max_priority_fee_per_gas": fee.MaxPriorityFeePerGas.String(),
		"gas_limit":                gasLimit,
	}).Info("Transaction signed")

	// -- BROADCAST
	if err := s.client.SendTransaction(ctx, signedTx); err != nil {
		switch {
		case isAlreadyKnown(err):
			log.Info("Node already has the transaction")
		case isNodeError(err):
			log.WithError(err).WithField("state", StateRejected).Error("Node rejected transaction")
			return &TransactionResult{Pending: pending, State: StateRejected}, newError(KindRejected, "eth_sendRawTransaction", err)
		default:
			log.WithError(err).Error("Broadcast failed, outcome unknown")
			return &TransactionResult{Pending: pending, State: StateBroadcast}, newError(KindBroadcastFailed, "eth_sendRawTransaction", err)
		}
	}
	s.commitNonce(nonce)
	log.WithField("state", StateBroadcast).Info("Transaction sent")

	confirmations := req.Confirmations
	if confirmations == 0 {
		confirmations = s.confirmations
	}
	return s.wait(ctx, pending, confirmations), nil
}

// Resume waits again for a transaction that previously timed out.
func (s *Submitter) Resume(ctx context.Context, pending *PendingTransaction) *TransactionResult {
	return s.wait(ctx, pending, s.confirmations)
}

func (s *Submitter) wait(ctx context.Context, pending *PendingTransaction, confirmations uint64) *TransactionResult {
	res := s.waiter.Wait(ctx, pending.Hash, confirmations)
	s.logger.WithFields(logrus.Fields{
		"hash":  pending.Hash.Hex(),
		"state": res.State,
	}).Info("Transaction attempt finished")
	return &TransactionResult{Pending: pending, State: res.State, Receipt: res.Receipt}
}

// simulate dry-runs msg against the latest state.
func (s *Submitter) simulate(ctx context.Context, msg ethereum.CallMsg) error {
	out, err := s.client.CallContract(ctx, msg, nil)
	if err != nil {
		if isRevert(err) {
			return newError(KindSimulationReverted, "eth_call", err)
		}
		return newError(KindRpcUnavailable, "eth_call", err)
	}
	ok, err := transferSucceeded(out)
	if err != nil {
		return &Error{Kind: KindSimulationReverted, Op: "eth_call", Reason: "undecodable transfer result", Err: err}
	}
	if !ok {
		return newErrorf(KindSimulationReverted, "eth_call", "transfer returned false")
	}
	return nil
}

// nonceFor returns the explicit nonce, or the node's pending nonce raised to
// at least one above the last nonce this submitter broadcast.
func (s *Submitter) nonceFor(ctx context.Context, explicit *uint64) (uint64, error) {
	if explicit != nil {
		return *explicit, nil
	}
	nonce, err := s.reader.pendingNonce(ctx, s.account.Address)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reserved && s.nextNonce > nonce {
		s.logger.WithFields(logrus.Fields{
			"node_nonce":  nonce,
			"local_nonce": s.nextNonce,
		}).Info("Node nonce behind last broadcast, using local nonce")
		nonce = s.nextNonce
	}
	return nonce, nil
}

func (s *Submitter) commitNonce(nonce uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.reserved || nonce+1 > s.nextNonce {
		s.nextNonce = nonce + 1
		s.reserved = true
	}
}

func (s *Submitter) sign(inner *types.DynamicFeeTx) (*types.Transaction, error) {
	if !s.account.CanSign() {
		return nil, newErrorf(KindSigningFailed, "sign", "account has no private key")
	}
	signedTx, err := types.SignTx(types.NewTx(inner), types.LatestSignerForChainID(s.chainID), s.account.PrivateKey)
	if err != nil {
		return nil, &Error{Kind: KindSigningFailed, Op: "sign", Err: err}
	}
	return signedTx, nil
}

func isAlreadyKnown(err error) bool {
	return isNodeError(err) && strings.Contains(strings.ToLower(err.Error()), "already known")
}
