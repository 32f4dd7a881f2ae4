package fixedpoint

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumberString(t *testing.T) {
	assert.Equal(t, "10.1", New(10_100000, 6).String())
	assert.Equal(t, "1", New(1, 0).String())
	assert.Equal(t, "3.141592653", New(3_141592653, 9).String())
}

func TestNumberScale(t *testing.T) {
	cases := []struct {
		val      uint64
		decimals uint8
		target   uint8
		want     string
	}{
		{10_100130, 6, 5, "10.10013"},
		{10_100133, 6, 6, "10.100133"},
		{10_100000, 6, 1, "10.1"},
		{10_100000, 6, 0, "10"},
		{1, 0, 5, "1"},
		{3_141592653, 9, 6, "3.141592"},
	}
	for _, tc := range cases {
		scaled, err := New(tc.val, tc.decimals).Scale(tc.target)
		require.NoError(t, err)
		assert.Equal(t, tc.target, scaled.Decimals())
		assert.Equal(t, tc.want, scaled.String())
	}
}

func TestNumberMul(t *testing.T) {
	cases := []struct {
		a, b [2]uint64
		want string
	}{
		{[2]uint64{45, 0}, [2]uint64{19, 0}, "855"},
		{[2]uint64{2_0, 1}, [2]uint64{3, 0}, "6"},
		{[2]uint64{2_000000000, 9}, [2]uint64{3_000000000, 9}, "6"},
		{[2]uint64{1_000000000, 9}, [2]uint64{2, 0}, "2"},
		{[2]uint64{1_00000000, 8}, [2]uint64{2_000, 3}, "2"},
		{[2]uint64{3_141592653, 9}, [2]uint64{2_000, 3}, "6.283185306"},
	}
	for _, tc := range cases {
		got, err := New(tc.a[0], uint8(tc.a[1])).Mul(New(tc.b[0], uint8(tc.b[1])))
		require.NoError(t, err)
		assert.Equal(t, MaxDecimals, got.Decimals())
		assert.Equal(t, tc.want, got.String())
	}
}

func TestNumberDiv(t *testing.T) {
	cases := []struct {
		a, b [2]uint64
		want string
	}{
		{[2]uint64{3, 0}, [2]uint64{2, 0}, "1.5"},
		{[2]uint64{15, 1}, [2]uint64{2, 1}, "7.5"},
		{[2]uint64{62_000000, 6}, [2]uint64{100_000000000, 9}, "0.62"},
		{[2]uint64{6_283185306, 9}, [2]uint64{2_000, 3}, "3.141592653"},
	}
	for _, tc := range cases {
		got, err := New(tc.a[0], uint8(tc.a[1])).Div(New(tc.b[0], uint8(tc.b[1])))
		require.NoError(t, err)
		assert.Equal(t, tc.want, got.String())
	}
}

func TestNumberAddSub(t *testing.T) {
	sum, err := New(1_000, 3).Add(New(2_000000000, 9))
	require.NoError(t, err)
	assert.Equal(t, "3", sum.String())
	assert.Equal(t, uint8(9), sum.Decimals())

	diff, err := New(3_000000000, 9).Sub(New(1_000000, 6))
	require.NoError(t, err)
	assert.Equal(t, "2", diff.String())

	diff, err = New(3_000, 3).Sub(New(2_00000, 5))
	require.NoError(t, err)
	assert.Equal(t, "1", diff.String())
	assert.Equal(t, uint8(5), diff.Decimals())
}

func TestNumberAddSubRoundTrip(t *testing.T) {
	values := []Number{
		New(0, 0),
		New(1, 0),
		New(10_100000, 6),
		New(3_141592653, 9),
		New(math.MaxUint64/4, 2),
		New(7, 18),
	}
	for _, a := range values {
		for _, b := range values {
			sum, err := a.Add(b)
			require.NoError(t, err)
			back, err := sum.Sub(b)
			require.NoError(t, err)

			expected, err := a.Scale(back.Decimals())
			require.NoError(t, err)
			assert.Equal(t, 0, expected.BigInt().Cmp(back.BigInt()), "a=%s b=%s", a, b)
		}
	}
}

func TestNumberEquality(t *testing.T) {
	assert.True(t, New(10, 1).Equal(New(1_000000000, 9)))
	assert.False(t, New(10, 1).Equal(New(1_000000001, 9)))
	assert.True(t, Int(1).Equal(New(10, 1)))
	assert.True(t, New(3_00, 2).Equal(Int(3)))

	assert.Equal(t, 1, New(2_00, 2).Cmp(Int(1)))
	assert.Equal(t, -1, Int(1).Cmp(New(2_00, 2)))
	assert.Equal(t, 0, New(3_00, 2).Cmp(Int(3)))

	// Beyond MaxDecimals, values that truncate to the same digits are equal
	// whether or not their precision matches.
	a, b := New(1_0000000001, 10), New(1_0000000009, 10)
	mid := New(1_000000000, 9)
	assert.True(t, a.Equal(mid))
	assert.True(t, b.Equal(mid))
	assert.True(t, a.Equal(b))
}

func TestNumberOverflow(t *testing.T) {
	huge, err := FromBig(new(big.Int).Set(maxUint128), 0)
	require.NoError(t, err)

	_, err = huge.Add(Int(1))
	assert.ErrorIs(t, err, ErrOperationOverflow)

	_, err = Int(1).Sub(Int(2))
	assert.ErrorIs(t, err, ErrOperationOverflow)

	_, err = Int(math.MaxUint64).Mul(Int(math.MaxUint64))
	assert.ErrorIs(t, err, ErrOperationOverflow)

	_, err = Int(1).Div(Int(0))
	assert.ErrorIs(t, err, ErrOperationOverflow)

	_, err = huge.Scale(3)
	assert.ErrorIs(t, err, ErrOperationOverflow)

	_, err = huge.Uint64()
	assert.ErrorIs(t, err, ErrConvertOverflow)

	_, err = FromBig(big.NewInt(-1), 0)
	assert.ErrorIs(t, err, ErrOperationOverflow)
}

func TestConvert18(t *testing.T) {
	amount := New(1_500000, 6)

	lifted, err := ConvertTo18(amount, 6)
	require.NoError(t, err)
	assert.Equal(t, "1500000000000", lifted.String())

	back, err := ConvertFrom18(lifted, 6)
	require.NoError(t, err)
	assert.True(t, back.Equal(amount))

	same, err := ConvertTo18(amount, 18)
	require.NoError(t, err)
	assert.True(t, same.Equal(amount))
}

func TestMulDivFloor(t *testing.T) {
	got, err := MulDivFloor(1_000, 10, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), got)

	got, err = MulDivFloor(math.MaxUint64, math.MaxUint64, math.MaxUint64)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), got)

	_, err = MulDivFloor(1, 1, 0)
	assert.ErrorIs(t, err, ErrOperationOverflow)

	_, err = MulDivFloor(math.MaxUint64, 2, 1)
	assert.ErrorIs(t, err, ErrConvertOverflow)

	fee, err := Percent(999, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(99), fee)
}

func TestCheckedOps(t *testing.T) {
	_, err := CheckedAdd(math.MaxUint64, 1)
	assert.ErrorIs(t, err, ErrOperationOverflow)
	_, err = CheckedSub(1, 2)
	assert.ErrorIs(t, err, ErrOperationOverflow)
	_, err = CheckedMul(math.MaxUint64, 2)
	assert.ErrorIs(t, err, ErrOperationOverflow)

	v, err := CheckedMul(0, math.MaxUint64)
	require.NoError(t, err)
	assert.Zero(t, v)
}
