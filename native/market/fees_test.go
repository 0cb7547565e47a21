package market

import (
	"errors"
	"math"
	"testing"
)

func TestComputeRoyaltyFee(t *testing.T) {
	cases := []struct {
		name   string
		amount uint64
		rate   uint64
		want   uint64
	}{
		{"rounds up above half", 1999, 250, 500},
		{"exact division", 1000, 1, 1},
		{"no rounding below half", 1234, 100, 123},
		{"remainder exactly half stays down", 3, 500, 1},
		{"remainder just past half rounds up", 3, 501, 2},
		{"full rate returns amount", 12345, 1000, 12345},
		{"rate above denominator returns amount", 12345, 2000, 12345},
		{"zero rate", 5000, 0, 0},
		{"tiny amount truncates to zero", 9, 100, 0},
		{"settlement example", 8000, 50, 400},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := CheckFeeMultiply(tc.amount, tc.rate); err != nil {
				t.Fatalf("guard rejected safe pair: %v", err)
			}
			got := ComputeRoyaltyFee(tc.amount, tc.rate)
			if got != tc.want {
				t.Fatalf("fee(%d, %d) = %d, want %d", tc.amount, tc.rate, got, tc.want)
			}
			if again := ComputeRoyaltyFee(tc.amount, tc.rate); again != got {
				t.Fatalf("fee not deterministic: %d then %d", got, again)
			}
			if got > tc.amount {
				t.Fatalf("fee %d exceeds amount %d", got, tc.amount)
			}
		})
	}
}

func TestCheckFeeMultiplyBoundary(t *testing.T) {
	amounts := []uint64{1, 2, 3, 1000, 1 << 32, math.MaxUint64 / 2, math.MaxUint64}
	for _, amount := range amounts {
		safe := math.MaxUint64 / amount
		if err := CheckFeeMultiply(amount, safe); err != nil {
			t.Fatalf("amount=%d rate=%d should be safe: %v", amount, safe, err)
		}
		if safe == math.MaxUint64 {
			continue
		}
		if err := CheckFeeMultiply(amount, safe+1); err == nil {
			t.Fatalf("amount=%d rate=%d should overflow", amount, safe+1)
		} else if !errors.Is(err, ErrArithmeticOverflow) {
			t.Fatalf("expected overflow sentinel, got %v", err)
		}
	}
}

func TestCheckFeeMultiplyRejectsZeroAmount(t *testing.T) {
	if err := CheckFeeMultiply(0, 1); !errors.Is(err, ErrArithmeticOverflow) {
		t.Fatalf("expected overflow sentinel for zero amount, got %v", err)
	}
}

func TestCheckAdd(t *testing.T) {
	if err := CheckAdd(math.MaxUint64-1, 1); err != nil {
		t.Fatalf("boundary add should pass: %v", err)
	}
	if err := CheckAdd(math.MaxUint64, 1); !errors.Is(err, ErrArithmeticOverflow) {
		t.Fatalf("expected overflow sentinel, got %v", err)
	}
	if err := CheckAdd(0, 0); err != nil {
		t.Fatalf("zero add should pass: %v", err)
	}
}
