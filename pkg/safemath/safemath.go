package safemath

import (
	"errors"
	"math"

	"github.com/ryanavella/wide"
)

var (
	ErrIntegerOverflow  = errors.New("integer overflow")
	ErrIntegerUnderflow = errors.New("integer underflow")
)

func CheckedAddU64(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, ErrIntegerOverflow
	}
	return sum, nil
}

func CheckedSubU64(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrIntegerUnderflow
	}
	return a - b, nil
}

func CheckedMulU64(a, b uint64) (uint64, error) {
	product := wide.Uint128FromUint64(a).Mul(wide.Uint128FromUint64(b))
	if !product.IsUint64() {
		return 0, ErrIntegerOverflow
	}
	return product.Uint64(), nil
}

func SaturatingAddU64(a, b uint64) uint64 {
	sum, err := CheckedAddU64(a, b)
	if err != nil {
		return math.MaxUint64
	}
	return sum
}

func SaturatingSubU64(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

func SaturatingMulU64(a, b uint64) uint64 {
	product, err := CheckedMulU64(a, b)
	if err != nil {
		return math.MaxUint64
	}
	return product
}

func SaturatingMulU32(a, b uint32) uint32 {
	product := uint64(a) * uint64(b)
	if product > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(product)
}

// SumU64 adds up values in 128-bit precision and reports whether the total
// still fits in a uint64.
func SumU64(values ...uint64) (wide.Uint128, bool) {
	total := wide.Uint128FromUint64(0)
	for _, v := range values {
		total = total.Add(wide.Uint128FromUint64(v))
	}
	return total, total.IsUint64()
}
