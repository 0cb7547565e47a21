package market

import (
	"fmt"
	"math"
)

const (
	// RelayFee is the fixed cost of one privileged inner transaction,
	// deducted from the marketplace account's own reserve.
	RelayFee uint64 = 1000

	// ServiceCost is the total relay cost of a settlement: one asset
	// transfer plus one payment.
	ServiceCost uint64 = 2 * RelayFee

	// RateDenominator expresses royalty rates in parts per thousand.
	RateDenominator uint64 = 1000

	// roundUpRemainder is the thousandths remainder above which the
	// royalty fee rounds up by one unit, biasing toward the creator.
	roundUpRemainder uint64 = 500
)

// CheckFeeMultiply proves that amount * rate cannot exceed the unsigned
// 64-bit width before ComputeRoyaltyFee performs it. The amount must be
// strictly positive.
func CheckFeeMultiply(amount, rate uint64) error {
	if amount == 0 {
		return fmt.Errorf("%w: fee base must be positive", ErrArithmeticOverflow)
	}
	if rate > math.MaxUint64/amount {
		return fmt.Errorf("%w: %d * %d exceeds uint64 range", ErrArithmeticOverflow, amount, rate)
	}
	return nil
}

// CheckAdd proves that a + b cannot wrap the unsigned 64-bit width.
func CheckAdd(a, b uint64) error {
	if math.MaxUint64-a < b {
		return fmt.Errorf("%w: %d + %d exceeds uint64 range", ErrArithmeticOverflow, a, b)
	}
	return nil
}

// ComputeRoyaltyFee returns the royalty owed on amount at the given rate in
// parts per thousand, rounding half-up at the thousandths granularity. The
// caller must have passed CheckFeeMultiply for the same pair.
//
// The fee is zero when the rate is zero or the truncated product is zero, and
// the full amount when the rate reaches or exceeds the denominator. The
// rounding rule is a deliberate integer policy, not a floating point
// approximation.
func ComputeRoyaltyFee(amount, rate uint64) uint64 {
	product := amount * rate
	division := product / RateDenominator
	remainder := product % RateDenominator
	switch {
	case rate == 0 || division == 0:
		return 0
	case rate >= RateDenominator:
		return amount
	case remainder > roundUpRemainder:
		return division + 1
	default:
		return division
	}
}
