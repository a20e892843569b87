package safemath

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeAddNormal(t *testing.T) {
	got, err := SafeAdd(FromInt64(100), FromInt64(50))
	require.NoError(t, err)
	assert.Equal(t, FromInt64(150), got)
}

func TestSafeAddOverflow(t *testing.T) {
	_, err := SafeAdd(Max, FromInt64(1))
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestSafeAddNegativeWrap(t *testing.T) {
	_, err := SafeAdd(Min, FromInt64(-1))
	assert.ErrorIs(t, err, ErrUnderflow)
}

func TestSafeSubNormal(t *testing.T) {
	got, err := SafeSub(FromInt64(100), FromInt64(40))
	require.NoError(t, err)
	assert.Equal(t, FromInt64(60), got)
}

func TestSafeSubUnderflow(t *testing.T) {
	_, err := SafeSub(Min, FromInt64(1))
	assert.ErrorIs(t, err, ErrUnderflow)
}

func TestSafeSubNegativeResultAllowed(t *testing.T) {
	// Plain SafeSub carries no sign constraint; only the balance helpers do.
	got, err := SafeSub(FromInt64(10), FromInt64(25))
	require.NoError(t, err)
	assert.Equal(t, FromInt64(-15), got)
}

func TestSafeAddBalanceRejectsNegativeAmount(t *testing.T) {
	_, err := SafeAddBalance(FromInt64(100), FromInt64(-1))
	assert.ErrorIs(t, err, ErrUnderflow)
}

func TestSafeAddBalanceOverflow(t *testing.T) {
	_, err := SafeAddBalance(Max, FromInt64(1))
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestSafeSubBalanceInsufficient(t *testing.T) {
	_, err := SafeSubBalance(FromInt64(10), FromInt64(11))
	assert.ErrorIs(t, err, ErrUnderflow)
}

func TestSafeSubBalanceRejectsNegativeAmount(t *testing.T) {
	_, err := SafeSubBalance(FromInt64(10), FromInt64(-5))
	assert.ErrorIs(t, err, ErrUnderflow)
}

func TestSafeSubBalanceExactZero(t *testing.T) {
	got, err := SafeSubBalance(FromInt64(10), FromInt64(10))
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestBalanceRoundTrip(t *testing.T) {
	a := MustParse("170141183460469231731687303715884105")
	b := FromInt64(123456789)

	sum, err := SafeAddBalance(a, b)
	require.NoError(t, err)
	back, err := SafeSubBalance(sum, b)
	require.NoError(t, err)
	assert.Equal(t, 0, back.Cmp(a))
}

func TestValidateNonNegative(t *testing.T) {
	assert.NoError(t, ValidateNonNegative(FromInt64(0)))
	assert.NoError(t, ValidateNonNegative(FromInt64(1)))
	assert.ErrorIs(t, ValidateNonNegative(FromInt64(-1)), ErrUnderflow)
}

func TestMulUint32(t *testing.T) {
	got, err := MulUint32(FromInt64(1_000000), 12)
	require.NoError(t, err)
	assert.Equal(t, FromInt64(12_000000), got)

	_, err = MulUint32(Max, 2)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestStringRoundTrip(t *testing.T) {
	cases := []string{
		"0",
		"1",
		"-1",
		"9223372036854775807",
		"-9223372036854775808",
		"170141183460469231731687303715884105727",
		"-170141183460469231731687303715884105728",
	}
	for _, s := range cases {
		v, err := Parse(s)
		require.NoError(t, err, s)
		assert.Equal(t, s, v.String())
	}
}

func TestParseOutOfRange(t *testing.T) {
	_, err := Parse("170141183460469231731687303715884105728")
	assert.ErrorIs(t, err, ErrOverflow)
	_, err = Parse("-170141183460469231731687303715884105729")
	assert.ErrorIs(t, err, ErrUnderflow)
}

func TestBoundsString(t *testing.T) {
	assert.Equal(t, "170141183460469231731687303715884105727", Max.String())
	assert.Equal(t, "-170141183460469231731687303715884105728", Min.String())
}

func TestScanAndValue(t *testing.T) {
	var v Int128
	require.NoError(t, v.Scan("42500000"))
	assert.Equal(t, FromInt64(42500000), v)

	require.NoError(t, v.Scan([]byte("-7")))
	assert.Equal(t, FromInt64(-7), v)

	require.NoError(t, v.Scan(int64(99)))
	raw, err := v.Value()
	require.NoError(t, err)
	assert.Equal(t, "99", raw)
}

func TestJSONRoundTrip(t *testing.T) {
	v := MustParse("170141183460469231731687303715884105727")
	data, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, `"170141183460469231731687303715884105727"`, string(data))

	var back Int128
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, 0, back.Cmp(v))
}

func TestCmpAndSign(t *testing.T) {
	assert.Equal(t, -1, FromInt64(-5).Sign())
	assert.Equal(t, 0, FromInt64(0).Sign())
	assert.Equal(t, 1, FromInt64(5).Sign())

	assert.Equal(t, -1, Min.Cmp(Max))
	assert.Equal(t, 1, Max.Cmp(FromInt64(0)))
	assert.Equal(t, 0, FromInt64(7).Cmp(FromInt64(7)))
}
