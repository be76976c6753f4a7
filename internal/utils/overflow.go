package utils

import (
	"fmt"
	"math"
)

// CheckMultiplyOverflow reports whether multiplying two uint64 values would
// overflow, without performing the multiplication.
func CheckMultiplyOverflow(a, b uint64) error {
	if a == 0 || b == 0 {
		return nil
	}
	if a > math.MaxUint64/b {
		return fmt.Errorf("multiplication overflow: %d * %d exceeds uint64 max", a, b)
	}
	return nil
}

// SafeMultiply multiplies two uint64 values, returning an error instead of
// wrapping silently if the product would overflow.
func SafeMultiply(a, b uint64) (uint64, error) {
	if err := CheckMultiplyOverflow(a, b); err != nil {
		return 0, err
	}
	return a * b, nil
}

// CheckAddOverflow reports whether adding two uint64 values would overflow.
func CheckAddOverflow(a, b uint64) error {
	if a > math.MaxUint64-b {
		return fmt.Errorf("addition overflow: %d + %d exceeds uint64 max", a, b)
	}
	return nil
}

// SafeAdd adds two uint64 values, returning an error instead of wrapping
// silently if the sum would overflow.
func SafeAdd(a, b uint64) (uint64, error) {
	if err := CheckAddOverflow(a, b); err != nil {
		return 0, err
	}
	return a + b, nil
}
