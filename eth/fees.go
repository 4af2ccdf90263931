package eth

import (
	"context"
	"math/big"

	"github.com/sirupsen/logrus"
)

// FeePolicy is the externally configured part of fee estimation.
type FeePolicy struct {
	// Multiplier is applied to the base fee to absorb base fee increases
	// between quoting and inclusion.
	Multiplier *big.Rat
	// Tip is the fixed priority fee per gas, in wei.
	Tip *big.Int
	// MaxFeeCap refuses quotes above it. Nil disables the cap.
	MaxFeeCap *big.Int
}

// PolicyFromConfig builds the fee policy from configuration.
func PolicyFromConfig(cfg Config) FeePolicy {
	return FeePolicy{
		Multiplier: cfg.FeeMultiplier(),
		Tip:        cfg.PriorityFee(),
		MaxFeeCap:  cfg.MaxFeePerGas(),
	}
}

// Quote computes
//
//	maxPriorityFeePerGas = tip
//	maxFeePerGas         = floor(baseFee * multiplier) + tip
//
// in integer wei.
func (p FeePolicy) Quote(baseFee *big.Int) (*FeeQuote, error) {
	if baseFee == nil || baseFee.Sign() < 0 {
		return nil, newErrorf(KindInvalidFeeQuote, "fee", "base fee %v is not a non-negative integer", baseFee)
	}
	if p.Tip == nil || p.Tip.Sign() < 0 {
		return nil, newErrorf(KindInvalidFeeQuote, "fee", "priority fee %v is not a non-negative integer", p.Tip)
	}
	if p.Multiplier == nil || p.Multiplier.Sign() < 0 {
		return nil, newErrorf(KindInvalidFeeQuote, "fee", "multiplier %v is negative", p.Multiplier)
	}

	// big.Rat keeps the denominator positive, so Quo truncation is a floor here.
	scaled := new(big.Int).Mul(baseFee, p.Multiplier.Num())
	scaled.Quo(scaled, p.Multiplier.Denom())

	quote := &FeeQuote{
		BaseFeePerGas:        new(big.Int).Set(baseFee),
		MaxPriorityFeePerGas: new(big.Int).Set(p.Tip),
		MaxFeePerGas:         scaled.Add(scaled, p.Tip),
	}
	if err := quote.Validate(); err != nil {
		return nil, err
	}
	if p.MaxFeeCap != nil && quote.MaxFeePerGas.Cmp(p.MaxFeeCap) > 0 {
		return nil, newErrorf(KindInvalidFeeQuote, "fee", "max fee too high: %s wei exceeds cap %s wei",
			quote.MaxFeePerGas, p.MaxFeeCap)
	}
	return quote, nil
}

// Validate enforces maxFeePerGas >= maxPriorityFeePerGas.
func (q *FeeQuote) Validate() error {
	if q == nil || q.MaxFeePerGas == nil || q.MaxPriorityFeePerGas == nil {
		return newErrorf(KindInvalidFeeQuote, "fee", "incomplete fee quote")
	}
	if q.MaxPriorityFeePerGas.Sign() < 0 {
		return newErrorf(KindInvalidFeeQuote, "fee", "negative priority fee %s", q.MaxPriorityFeePerGas)
	}
	if q.MaxFeePerGas.Cmp(q.MaxPriorityFeePerGas) < 0 {
		return newErrorf(KindInvalidFeeQuote, "fee", "max fee %s below priority fee %s",
			q.MaxFeePerGas, q.MaxPriorityFeePerGas)
	}
	return nil
}

// CoversBaseFee reports whether the quote pays the full tip at the quoted
// base fee.
func (q *FeeQuote) CoversBaseFee() bool {
	if q.BaseFeePerGas == nil {
		return true
	}
	need := new(big.Int).Add(q.BaseFeePerGas, q.MaxPriorityFeePerGas)
	return q.MaxFeePerGas.Cmp(need) >= 0
}

// CostCeiling is the most the transaction can pay for gas.
func (q *FeeQuote) CostCeiling(gasLimit uint64) *big.Int {
	return new(big.Int).Mul(q.MaxFeePerGas, new(big.Int).SetUint64(gasLimit))
}

// FeeEstimator quotes fees against the latest base fee.
type FeeEstimator struct {
	reader *ChainReader
	policy FeePolicy
	logger logrus.FieldLogger
}

func NewFeeEstimator(reader *ChainReader, policy FeePolicy, logger logrus.FieldLogger) *FeeEstimator {
	return &FeeEstimator{reader: reader, policy: policy, logger: orDiscard(logger)}
}

func (e *FeeEstimator) Policy() FeePolicy {
	return e.policy
}

// Estimate reads the latest base fee and quotes against it.
func (e *FeeEstimator) Estimate(ctx context.Context) (*FeeQuote, error) {
	baseFee, err := e.reader.LatestBaseFee(ctx)
	if err != nil {
		return nil, err
	}
	return e.Quote(baseFee)
}

// Quote applies the policy to a known base fee.
func (e *FeeEstimator) Quote(baseFee *big.Int) (*FeeQuote, error) {
	quote, err := e.policy.Quote(baseFee)
	if err != nil {
		e.logger.WithError(err).Error("Failed to calculate fees")
		return nil, err
	}
	fields := logrus.Fields{
		"base_fee":                 quote.BaseFeePerGas.String(),
		"max_fee_per_gas":          quote.MaxFeePerGas.String(),
		"max_priority_fee_per_gas": quote.MaxPriorityFeePerGas.String(),
	}
	if !quote.CoversBaseFee() {
		e.logger.WithFields(fields).Warn("Fee multiplier below 1, max fee does not cover base fee plus tip")
	} else {
		e.logger.WithFields(fields).Debug("Calculated EIP-1559 fees")
	}
	return quote, nil
}
