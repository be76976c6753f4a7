package byteio

import (
	"fmt"
	"math"
)

// CheckAddOverflow reports whether a+b would overflow uint64.
func CheckAddOverflow(a, b uint64) error {
	if a > math.MaxUint64-b {
		return fmt.Errorf("addition overflow: %d + %d exceeds uint64 max", a, b)
	}
	return nil
}

// SafeAdd adds two uint64 values, erroring instead of wrapping on overflow.
func SafeAdd(a, b uint64) (uint64, error) {
	if err := CheckAddOverflow(a, b); err != nil {
		return 0, err
	}
	return a + b, nil
}

// FitsSigned reports whether v, interpreted as a two's-complement value,
// fits in width bytes (width in {1,2,4}).
func FitsSigned(v int64, width int) bool {
	switch width {
	case 1:
		return v >= math.MinInt8 && v <= math.MaxInt8
	case 2:
		return v >= math.MinInt16 && v <= math.MaxInt16
	case 4:
		return v >= math.MinInt32 && v <= math.MaxInt32
	default:
		return true
	}
}

// FitsUnsigned reports whether v fits in width bytes (width in {1,2,4}).
func FitsUnsigned(v uint64, width int) bool {
	switch width {
	case 1:
		return v <= math.MaxUint8
	case 2:
		return v <= math.MaxUint16
	case 4:
		return v <= math.MaxUint32
	default:
		return true
	}
}
