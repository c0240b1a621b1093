package amount

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		input string
		want  string
		nan   bool
	}{
		{"1.5", "1.5", false},
		{"42", "42", false},
		{"0x2a", "42", false},
		{"0X2A", "42", false},
		{"-0.000001", "-0.000001", false},
		{"1e18", "1000000000000000000", false},
		{"", "", true},
		{"0x", "", true},
		{"0xzz", "", true},
		{"abc", "", true},
	}

	for _, tt := range tests {
		a := New(tt.input)
		assert.Equal(t, tt.nan, a.IsNaN(), "input %q", tt.input)
		if !tt.nan {
			assert.Equal(t, tt.want, a.String(), "input %q", tt.input)
		}
	}
}

func TestAddSubtractRoundTrip(t *testing.T) {
	values := []string{"0", "1", "0.1", "123456789.987654321", "-42.5", "115792089237316195423570985008687907853269984665640564039457584007913129639935"}
	for _, a := range values {
		for _, b := range values {
			got := New(a).Add(New(b)).Subtract(New(b))
			assert.True(t, got.Eq(New(a)), "%s + %s - %s = %s", a, b, b, got)
		}
	}
}

func TestDecimalsRoundTrip(t *testing.T) {
	values := []string{"0", "1", "0.000000000000000001", "31337.1337", "-7"}
	for _, v := range values {
		for _, n := range []int{0, 1, 6, 9, 18, 30} {
			got := New(v).MultiplyByDecimals(n).DivideByDecimals(n)
			assert.True(t, got.Eq(New(v)), "value %s decimals %d got %s", v, n, got)
		}
	}
}

func TestDecimalsScaling(t *testing.T) {
	wei := New("1500000000000000000")
	assert.Equal(t, "1.5", wei.DivideByDecimals(18).String())
	assert.Equal(t, "1500000", New("1.5").MultiplyByDecimals(6).String())
}

func TestNaNPropagation(t *testing.T) {
	bad := New("not-a-number")
	require.True(t, bad.IsNaN())

	assert.True(t, bad.Add(New("1")).IsNaN())
	assert.True(t, New("1").Subtract(bad).IsNaN())
	assert.True(t, bad.Multiply(New("2")).IsNaN())
	assert.True(t, bad.MultiplyByDecimals(18).IsNaN())
	assert.True(t, New("1").Divide(Zero()).IsNaN())
	assert.False(t, bad.Eq(bad))
	assert.Equal(t, "", bad.Format(2, true))
	assert.Equal(t, "0x0", bad.ToHex())
}

func TestDivide(t *testing.T) {
	assert.Equal(t, "0.5", New("1").Divide(New("2")).String())
	third := New("1").Divide(New("3"))
	assert.Equal(t, "0.33", third.Format(2, false))
}

func TestFormat(t *testing.T) {
	tests := []struct {
		input     string
		precision int
		group     bool
		want      string
	}{
		{"1234.5678", 2, true, "1,234.57"},
		{"1234.5678", -1, false, "1234.5678"},
		{"1234567", 0, true, "1,234,567"},
		{"0.0000001", 4, false, "0.0000001"},
		{"0", 4, false, "0"},
		{"1.50", 6, false, "1.5"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, New(tt.input).Format(tt.precision, tt.group), "input %s", tt.input)
	}
}

func TestFormatAsAsset(t *testing.T) {
	assert.Equal(t, "1,250.5 USDC", New("1250.5").FormatAsAsset(6, "USDC"))
	assert.Equal(t, "0.01", New("0.01").FormatAsAsset(2, ""))
}

func TestFormatAsFiat(t *testing.T) {
	assert.Equal(t, "$1,234.50", New("1234.5").FormatAsFiat("usd"))
	assert.Equal(t, "-$3.00", New("-3").FormatAsFiat("USD"))
	assert.Equal(t, "10.13 EUR", New("10.125").FormatAsFiat("eur"))
	assert.Equal(t, "", New("1").FormatAsFiat("not-a-currency"))
}

func TestFormatDoesNotMutate(t *testing.T) {
	a := New("3.14159")
	_ = a.Format(1, true)
	_ = a.FormatAsFiat("usd")
	assert.Equal(t, "3.14159", a.String())
}

func TestToHex(t *testing.T) {
	assert.Equal(t, "0x2a", New("42").ToHex())
	assert.Equal(t, "0x0", Zero().ToHex())
	assert.Equal(t, "0x1", New("1.9").ToHex())
}

func TestMaxUint256(t *testing.T) {
	expected, _ := new(big.Int).SetString("115792089237316195423570985008687907853269984665640564039457584007913129639935", 10)
	assert.Equal(t, 0, MaxUint256.BigInt().Cmp(expected))
	assert.True(t, IsUnlimited(New("0xffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"), 18))
	assert.False(t, IsUnlimited(New("1000"), 18))
}

func TestJSON(t *testing.T) {
	data, err := json.Marshal(struct {
		V Amount `json:"v"`
	}{New("1.25")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":"1.25"}`, string(data))

	var out struct {
		V Amount `json:"v"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"v":2.5}`), &out))
	assert.Equal(t, "2.5", out.V.String())
}
