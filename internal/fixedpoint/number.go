package fixedpoint

import (
	"errors"
	"math/big"

	bin "github.com/gagliardetto/binary"
	"github.com/shopspring/decimal"
)

// MaxDecimals is the precision every Mul, Div and cross-precision comparison
// normalizes to.
const MaxDecimals uint8 = 9

var (
	ErrOperationOverflow = errors.New("operation with overflow")
	ErrConvertOverflow   = errors.New("convert with overflow")
)

var (
	bigTen     = big.NewInt(10)
	maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
)

// Number is an unsigned decimal held as a 128-bit magnitude scaled by
// 10^decimals.
type Number struct {
	val      bin.Uint128
	decimals uint8
}

func New(val uint64, decimals uint8) Number {
	return Number{val: bin.Uint128{Lo: val}, decimals: decimals}
}

func Int(val uint64) Number {
	return New(val, 0)
}

func FromUint128(val bin.Uint128, decimals uint8) Number {
	return Number{val: bin.Uint128{Lo: val.Lo, Hi: val.Hi}, decimals: decimals}
}

func FromBig(val *big.Int, decimals uint8) (Number, error) {
	u, err := toUint128(val)
	if err != nil {
		return Number{}, err
	}
	return Number{val: u, decimals: decimals}, nil
}

func (n Number) Decimals() uint8 {
	return n.decimals
}

func (n Number) Magnitude() bin.Uint128 {
	return n.val
}

func (n Number) BigInt() *big.Int {
	return n.val.BigInt()
}

// Uint64 returns the raw magnitude, failing when it does not fit in 64 bits.
func (n Number) Uint64() (uint64, error) {
	if n.val.Hi != 0 {
		return 0, ErrConvertOverflow
	}
	return n.val.Lo, nil
}

// Inner returns the raw magnitude together with its decimals.
func (n Number) Inner() (uint64, uint8, error) {
	v, err := n.Uint64()
	if err != nil {
		return 0, 0, err
	}
	return v, n.decimals, nil
}

// Scale rescales to the target precision. Reducing precision truncates.
func (n Number) Scale(decimals uint8) (Number, error) {
	if decimals == n.decimals {
		return n, nil
	}
	var out *big.Int
	if n.decimals > decimals {
		out = new(big.Int).Quo(n.BigInt(), pow10(n.decimals-decimals))
	} else {
		out = new(big.Int).Mul(n.BigInt(), pow10(decimals-n.decimals))
	}
	return FromBig(out, decimals)
}

func (n Number) Add(other Number) (Number, error) {
	maxDec := max(n.decimals, other.decimals)
	a, err := n.Scale(maxDec)
	if err != nil {
		return Number{}, err
	}
	b, err := other.Scale(maxDec)
	if err != nil {
		return Number{}, err
	}
	return FromBig(new(big.Int).Add(a.BigInt(), b.BigInt()), maxDec)
}

func (n Number) Sub(other Number) (Number, error) {
	maxDec := max(n.decimals, other.decimals)
	a, err := n.Scale(maxDec)
	if err != nil {
		return Number{}, err
	}
	b, err := other.Scale(maxDec)
	if err != nil {
		return Number{}, err
	}
	return FromBig(new(big.Int).Sub(a.BigInt(), b.BigInt()), maxDec)
}

// Mul multiplies at combined precision and rescales the product to
// MaxDecimals.
func (n Number) Mul(other Number) (Number, error) {
	if n.decimals > 255-other.decimals {
		return Number{}, ErrOperationOverflow
	}
	product, err := FromBig(new(big.Int).Mul(n.BigInt(), other.BigInt()), n.decimals+other.decimals)
	if err != nil {
		return Number{}, err
	}
	return product.Scale(MaxDecimals)
}

// Div scales both operands to MaxDecimals and returns a MaxDecimals quotient.
func (n Number) Div(other Number) (Number, error) {
	a, err := n.Scale(MaxDecimals)
	if err != nil {
		return Number{}, err
	}
	widened, err := FromBig(new(big.Int).Mul(a.BigInt(), pow10(MaxDecimals)), MaxDecimals)
	if err != nil {
		return Number{}, err
	}
	b, err := other.Scale(MaxDecimals)
	if err != nil {
		return Number{}, err
	}
	divisor := b.BigInt()
	if divisor.Sign() == 0 {
		return Number{}, ErrOperationOverflow
	}
	return FromBig(new(big.Int).Quo(widened.BigInt(), divisor), MaxDecimals)
}

func (n Number) Pow(exp uint) (Number, error) {
	return FromBig(new(big.Int).Exp(n.BigInt(), big.NewInt(int64(exp)), nil), n.decimals)
}

// ConvertTo18 lifts an amount denominated with baseDecimals to 18-decimal
// normalization.
func ConvertTo18(amount Number, baseDecimals uint8) (Number, error) {
	return convert(amount, baseDecimals, 18)
}

// ConvertFrom18 brings an 18-decimal-normalized amount back to
// destinationDecimals.
func ConvertFrom18(amount Number, destinationDecimals uint8) (Number, error) {
	return convert(amount, 18, destinationDecimals)
}

func convert(amount Number, from, to uint8) (Number, error) {
	switch {
	case from > to:
		factor, err := Int(10).Pow(uint(from - to))
		if err != nil {
			return Number{}, err
		}
		return amount.Div(factor)
	case from < to:
		factor, err := Int(10).Pow(uint(to - from))
		if err != nil {
			return Number{}, err
		}
		return amount.Mul(factor)
	default:
		return amount, nil
	}
}

// Cmp compares both operands at MaxDecimals. Digits past MaxDecimals are
// ignored, which keeps equality transitive across precisions.
func (n Number) Cmp(other Number) int {
	return normalized(n).Cmp(normalized(other))
}

func (n Number) Equal(other Number) bool {
	return n.Cmp(other) == 0
}

func (n Number) IsZero() bool {
	return n.val.Lo == 0 && n.val.Hi == 0
}

func (n Number) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(n.BigInt(), -int32(n.decimals))
}

func (n Number) String() string {
	return n.Decimal().String()
}

func normalized(n Number) *big.Int {
	if n.decimals > MaxDecimals {
		return new(big.Int).Quo(n.BigInt(), pow10(n.decimals-MaxDecimals))
	}
	return new(big.Int).Mul(n.BigInt(), pow10(MaxDecimals-n.decimals))
}

func pow10(exp uint8) *big.Int {
	return new(big.Int).Exp(bigTen, big.NewInt(int64(exp)), nil)
}

func toUint128(v *big.Int) (bin.Uint128, error) {
	if v.Sign() < 0 || v.Cmp(maxUint128) > 0 {
		return bin.Uint128{}, ErrOperationOverflow
	}
	lo := new(big.Int).And(v, new(big.Int).SetUint64(^uint64(0)))
	hi := new(big.Int).Rsh(v, 64)
	return bin.Uint128{Lo: lo.Uint64(), Hi: hi.Uint64()}, nil
}
