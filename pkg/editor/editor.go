// Package editor turns user input from the allowance, nonce and gas editors
// into revised transaction values.
package editor

import (
	"errors"
	"fmt"
	"strings"

	"txconfirm/pkg/amount"
	"txconfirm/pkg/models"
)

var (
	ErrInvalidNonce     = errors.New("nonce must be a non-negative integer")
	ErrInvalidAllowance = errors.New("allowance must be a non-negative amount within uint256 range")
	ErrInvalidGas       = errors.New("gas value must be a positive integer")
)

// ValidationError reports which field rejected the user input.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// AllowanceMode selects between the dapp-proposed allowance and a user value.
type AllowanceMode int

const (
	AllowanceProposed AllowanceMode = iota
	AllowanceCustom
)

// AllowanceInput is the state of the allowance editor. Custom is in display
// units of the token.
type AllowanceInput struct {
	Mode   AllowanceMode
	Custom string
}

// Allowance is a revised allowance in base units. Unlimited is for display
// only; Value always carries the exact number sent to the backend.
type Allowance struct {
	Value     amount.Amount
	Unlimited bool
}

// ReviseAllowance returns proposed unchanged unless in selects custom mode
// with a non-blank value.
func ReviseAllowance(proposed amount.Amount, decimals int, in AllowanceInput) (Allowance, error) {
	custom := strings.TrimSpace(in.Custom)
	if in.Mode != AllowanceCustom || custom == "" {
		return Allowance{Value: proposed, Unlimited: amount.IsUnlimited(proposed, decimals)}, nil
	}

	v := amount.New(custom)
	if v.IsNaN() || v.IsNegative() {
		return Allowance{}, invalid("allowance", ErrInvalidAllowance)
	}
	scaled := v.MultiplyByDecimals(decimals)
	if !scaled.IsInteger() || scaled.GT(amount.MaxUint256) {
		return Allowance{}, invalid("allowance", ErrInvalidAllowance)
	}
	return Allowance{Value: scaled, Unlimited: amount.IsUnlimited(scaled, decimals)}, nil
}

// Hex is the value passed to updateUnapprovedTransactionSpendAllowance.
func (a Allowance) Hex() string {
	return a.Value.ToHex()
}

// Display renders the allowance for the approve panel.
func (a Allowance) Display(decimals int, symbol string) string {
	if a.Unlimited {
		return "Unlimited"
	}
	return a.Value.DivideByDecimals(decimals).FormatAsAsset(-1, symbol)
}

// ReviseNonce returns the hex nonce to submit. A blank custom value keeps
// original; anything else must be a non-negative base-10 integer.
func ReviseNonce(original, custom string) (string, error) {
	custom = strings.TrimSpace(custom)
	if custom == "" {
		return original, nil
	}
	if strings.TrimLeft(custom, "0123456789") != "" {
		return "", invalid("nonce", ErrInvalidNonce)
	}
	n := amount.New(custom)
	if n.IsNaN() || n.BigInt().BitLen() > 64 {
		return "", invalid("nonce", ErrInvalidNonce)
	}
	return n.ToHex(), nil
}

// GasInput is the state of the gas editor, in wei for prices and gas units
// for the limit. Blank fields keep the current value.
type GasInput struct {
	GasLimit             string `json:"gas_limit,omitempty"`
	GasPrice             string `json:"gas_price,omitempty"`
	MaxPriorityFeePerGas string `json:"max_priority_fee_per_gas,omitempty"`
	MaxFeePerGas         string `json:"max_fee_per_gas,omitempty"`
}

// ReviseGas validates in and returns the hex payload for
// updateUnapprovedTransactionGasFields. Fee-market fields are used when
// eip1559 is set, the legacy gas price otherwise.
func ReviseGas(in GasInput, eip1559 bool) (models.GasFields, error) {
	var out models.GasFields
	var err error

	if out.GasLimit, err = gasHex("gas limit", in.GasLimit, false); err != nil {
		return models.GasFields{}, err
	}
	if !eip1559 {
		if out.GasPrice, err = gasHex("gas price", in.GasPrice, false); err != nil {
			return models.GasFields{}, err
		}
		return out, nil
	}

	if out.MaxPriorityFeePerGas, err = gasHex("max priority fee", in.MaxPriorityFeePerGas, true); err != nil {
		return models.GasFields{}, err
	}
	if out.MaxFeePerGas, err = gasHex("max fee", in.MaxFeePerGas, false); err != nil {
		return models.GasFields{}, err
	}
	if out.MaxFeePerGas != "" && out.MaxPriorityFeePerGas != "" {
		tip := amount.New(out.MaxPriorityFeePerGas)
		if tip.GT(amount.New(out.MaxFeePerGas)) {
			return models.GasFields{}, invalid("max priority fee", fmt.Errorf("%w: exceeds max fee", ErrInvalidGas))
		}
	}
	return out, nil
}

func gasHex(field, s string, allowZero bool) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	v := amount.New(s)
	if v.IsNaN() || v.IsNegative() || !v.IsInteger() || v.GT(amount.MaxUint256) {
		return "", invalid(field, ErrInvalidGas)
	}
	if v.IsZero() && !allowZero {
		return "", invalid(field, ErrInvalidGas)
	}
	return v.ToHex(), nil
}
