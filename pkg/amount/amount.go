// Package amount implements an arbitrary-precision numeric value used for
// token quantities, fees and fiat values.
//
// An Amount never panics on arithmetic. Parsing garbage or dividing by zero
// yields a NaN amount which propagates through every later operation and can
// be detected with IsNaN.
package amount

import (
	"encoding/json"
	"math/big"
	"strings"

	"txconfirm/pkg/utils"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// DivisionPrecision is the number of fractional digits kept by Div.
const DivisionPrecision = 48

// FiatPrecision is the number of fractional digits shown by FormatAsFiat.
const FiatPrecision = 2

// MaxUint256 is 2^256-1, the value dapps use to request an unlimited allowance.
var MaxUint256 = FromBig(new(uint256.Int).SetAllOne().ToBig())

// Amount is an immutable decimal value. The zero value is a valid 0.
type Amount struct {
	value decimal.Decimal
	nan   bool
}

// New parses a decimal ("1.5"), integer ("42") or hex ("0x2a") string.
func New(s string) Amount {
	s = strings.TrimSpace(s)
	if s == "" {
		return NaN()
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		digits := s[2:]
		if digits == "" {
			return NaN()
		}
		b, ok := new(big.Int).SetString(digits, 16)
		if !ok {
			return NaN()
		}
		return FromBig(b)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return NaN()
	}
	return Amount{value: d}
}

// FromBig wraps an integer. A nil pointer is NaN.
func FromBig(b *big.Int) Amount {
	if b == nil {
		return NaN()
	}
	return Amount{value: decimal.NewFromBigInt(b, 0)}
}

func FromUint64(v uint64) Amount {
	return Amount{value: decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)}
}

func FromDecimal(d decimal.Decimal) Amount {
	return Amount{value: d}
}

func Zero() Amount {
	return Amount{value: decimal.Zero}
}

func NaN() Amount {
	return Amount{nan: true}
}

func (a Amount) IsNaN() bool {
	return a.nan
}

func (a Amount) IsZero() bool {
	return !a.nan && a.value.IsZero()
}

func (a Amount) IsNegative() bool {
	return !a.nan && a.value.IsNegative()
}

// IsInteger reports whether the value has no fractional part.
func (a Amount) IsInteger() bool {
	return !a.nan && a.value.IsInteger()
}

func (a Amount) Add(b Amount) Amount {
	if a.nan || b.nan {
		return NaN()
	}
	return Amount{value: a.value.Add(b.value)}
}

func (a Amount) Subtract(b Amount) Amount {
	if a.nan || b.nan {
		return NaN()
	}
	return Amount{value: a.value.Sub(b.value)}
}

func (a Amount) Multiply(b Amount) Amount {
	if a.nan || b.nan {
		return NaN()
	}
	return Amount{value: a.value.Mul(b.value)}
}

// Divide returns a/b rounded to DivisionPrecision digits. Division by zero is NaN.
func (a Amount) Divide(b Amount) Amount {
	if a.nan || b.nan || b.value.IsZero() {
		return NaN()
	}
	return Amount{value: a.value.DivRound(b.value, DivisionPrecision)}
}

// MultiplyByDecimals scales the value by 10^n, e.g. ETH to wei with n=18.
func (a Amount) MultiplyByDecimals(n int) Amount {
	if a.nan {
		return a
	}
	return Amount{value: a.value.Shift(int32(n))}
}

// DivideByDecimals scales the value by 10^-n, e.g. wei to ETH with n=18.
func (a Amount) DivideByDecimals(n int) Amount {
	if a.nan {
		return a
	}
	return Amount{value: a.value.Shift(int32(-n))}
}

// Eq compares canonical values; NaN is never equal to anything.
func (a Amount) Eq(b Amount) bool {
	if a.nan || b.nan {
		return false
	}
	return a.value.Equal(b.value)
}

// Cmp returns -1, 0 or 1. NaN sorts below every number.
func (a Amount) Cmp(b Amount) int {
	switch {
	case a.nan && b.nan:
		return 0
	case a.nan:
		return -1
	case b.nan:
		return 1
	}
	return a.value.Cmp(b.value)
}

func (a Amount) GT(b Amount) bool {
	return !a.nan && !b.nan && a.value.GreaterThan(b.value)
}

// Decimal exposes the underlying value.
func (a Amount) Decimal() decimal.Decimal {
	return a.value
}

// BigInt returns the integer part, or nil for NaN.
func (a Amount) BigInt() *big.Int {
	if a.nan {
		return nil
	}
	return a.value.BigInt()
}

// Format renders the value rounded to precision fractional digits. A negative
// precision prints every digit. Values that would round to zero are printed in
// full so a tiny non-zero amount never shows as 0.
func (a Amount) Format(precision int, group bool) string {
	if a.nan {
		return ""
	}
	s := a.value.String()
	if precision >= 0 {
		rounded := a.value.Round(int32(precision))
		if !rounded.IsZero() || a.value.IsZero() {
			s = rounded.String()
		}
	}
	if group {
		return utils.AddCommas(s)
	}
	return s
}

// FormatAsAsset renders e.g. "1,250.5 USDC".
func (a Amount) FormatAsAsset(precision int, symbol string) string {
	if a.nan {
		return ""
	}
	s := a.Format(precision, true)
	if symbol == "" {
		return s
	}
	return s + " " + symbol
}

// FormatAsFiat renders the value with two fractional digits for an ISO 4217
// code. USD is prefixed with "$"; other currencies get the code as suffix.
func (a Amount) FormatAsFiat(currencyCode string) string {
	if a.nan {
		return ""
	}
	unit, err := currency.ParseISO(currencyCode)
	if err != nil {
		return ""
	}
	v := a.value
	sign := ""
	if v.IsNegative() {
		sign = "-"
		v = v.Neg()
	}
	s := utils.AddCommas(v.StringFixed(FiatPrecision))
	if unit == currency.USD {
		return sign + "$" + s
	}
	return sign + s + " " + unit.String()
}

// ToHex encodes the integer part as 0x-prefixed hex. NaN encodes as 0x0.
func (a Amount) ToHex() string {
	if a.nan {
		return "0x0"
	}
	return hexutil.EncodeBig(a.value.BigInt())
}

func (a Amount) String() string {
	if a.nan {
		return "NaN"
	}
	return a.value.String()
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n json.Number
		if err2 := json.Unmarshal(data, &n); err2 != nil {
			return err
		}
		s = n.String()
	}
	*a = New(s)
	return nil
}

// IsUnlimited reports whether a base-unit allowance equals MaxUint256 once both
// are scaled by the token decimals.
func IsUnlimited(a Amount, decimals int) bool {
	return a.DivideByDecimals(decimals).Eq(MaxUint256.DivideByDecimals(decimals))
}
