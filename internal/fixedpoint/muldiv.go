package fixedpoint

import "math/big"

// MulDivFloor computes floor(a*b/denominator) with a 128-bit intermediate.
func MulDivFloor(a, b, denominator uint64) (uint64, error) {
	if denominator == 0 {
		return 0, ErrOperationOverflow
	}
	product := new(big.Int).Mul(new(big.Int).SetUint64(a), new(big.Int).SetUint64(b))
	if product.Cmp(maxUint128) > 0 {
		return 0, ErrOperationOverflow
	}
	product.Quo(product, new(big.Int).SetUint64(denominator))
	if !product.IsUint64() {
		return 0, ErrConvertOverflow
	}
	return product.Uint64(), nil
}

// Percent returns floor(value*pct/100).
func Percent(value, pct uint64) (uint64, error) {
	return MulDivFloor(value, pct, 100)
}

func CheckedAdd(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, ErrOperationOverflow
	}
	return sum, nil
}

func CheckedSub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrOperationOverflow
	}
	return a - b, nil
}

func CheckedMul(a, b uint64) (uint64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	product := a * b
	if product/b != a {
		return 0, ErrOperationOverflow
	}
	return product, nil
}
