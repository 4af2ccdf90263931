package eth

import (
	"math/big"

	"github.com/shopspring/decimal"
)

const (
	etherDecimals = 18
	gweiDecimals  = 9
)

// FormatUnits scales a smallest-unit integer down by decimals.
func FormatUnits(raw *big.Int, decimals uint8) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}

// FormatEther renders a wei amount in ether.
func FormatEther(wei *big.Int) string {
	return FormatUnits(wei, etherDecimals).String()
}

// FormatGwei renders a wei amount in gwei.
func FormatGwei(wei *big.Int) string {
	return FormatUnits(wei, gweiDecimals).String()
}

// ParseUnits converts a human amount such as "1.5" into smallest units. It
// refuses negative amounts and amounts with more fractional digits than the
// token supports.
func ParseUnits(amount string, decimals uint8) (*big.Int, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, &Error{Kind: KindInvalidRequest, Op: "amount", Err: err}
	}
	if d.IsNegative() {
		return nil, newErrorf(KindInvalidRequest, "amount", "amount %s is negative", amount)
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, newErrorf(KindInvalidRequest, "amount", "amount %s has more than %d decimals", amount, decimals)
	}
	return scaled.BigInt(), nil
}
