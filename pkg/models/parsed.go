package models

import (
	"txconfirm/pkg/amount"
)

// TxKind is the chain-agnostic category of a parsed transaction.
type TxKind string

const (
	KindNativeTransfer    TxKind = "native_transfer"
	KindTokenTransfer     TxKind = "token_transfer"
	KindApprove           TxKind = "approve"
	KindNFTTransfer       TxKind = "nft_transfer"
	KindSwap              TxKind = "swap"
	KindAssociatedAccount TxKind = "associated_account_creation"
	KindDapp              TxKind = "dapp"
	KindSignMessage       TxKind = "sign_message"
)

// IsTransfer reports whether the kind moves an asset to a recipient.
func (k TxKind) IsTransfer() bool {
	switch k {
	case KindNativeTransfer, KindTokenTransfer, KindNFTTransfer, KindAssociatedAccount:
		return true
	}
	return false
}

// ParsedTransaction is the canonical view model of a pending transaction.
// It is rebuilt from scratch whenever an input changes and never mutated.
type ParsedTransaction struct {
	ID       string   `json:"id"`
	ChainID  string   `json:"chain_id"`
	CoinType CoinType `json:"coin"`
	TxType   TxType   `json:"tx_type"`
	Kind     TxKind   `json:"kind"`
	Origin   string   `json:"origin,omitempty"`

	Sender         string `json:"sender"`
	SenderLabel    string `json:"sender_label"`
	Recipient      string `json:"recipient"`
	RecipientLabel string `json:"recipient_label"`

	// Token is nil when the transferred asset is the native asset.
	Token    *Token `json:"token,omitempty"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`

	// ValueExact is in base units; Value in display units. FiatValue is NaN when unknown.
	ValueExact amount.Amount `json:"value_exact"`
	Value      amount.Amount `json:"value"`
	FiatValue  amount.Amount `json:"fiat_value"`

	GasLimit             string        `json:"gas_limit,omitempty"`
	GasPrice             amount.Amount `json:"gas_price"`
	MaxPriorityFeePerGas amount.Amount `json:"max_priority_fee_per_gas"`
	MaxFeePerGas         amount.Amount `json:"max_fee_per_gas"`
	IsEIP1559            bool          `json:"is_eip1559"`

	// GasFee is in native display units; GasFeeFiat is NaN when unknown.
	GasFee     amount.Amount `json:"gas_fee"`
	GasFeeFiat amount.Amount `json:"gas_fee_fiat"`

	// FiatTotal is the fiat value plus fee, NaN when either part is unknown.
	FiatTotal amount.Amount `json:"fiat_total"`

	Nonce string `json:"nonce,omitempty"`

	// Approve fields. Allowance is in base units.
	Spender       string        `json:"spender,omitempty"`
	SpenderLabel  string        `json:"spender_label,omitempty"`
	Allowance     amount.Amount `json:"allowance"`
	IsUnlimited   bool          `json:"is_unlimited"`
	NFTTokenID    string        `json:"nft_token_id,omitempty"`
	SignedMessage string        `json:"message,omitempty"`

	IsAssociatedTokenAccountCreation bool `json:"is_associated_token_account_creation"`

	InsufficientFundsError       bool `json:"insufficient_funds_error"`
	InsufficientFundsForGasError bool `json:"insufficient_funds_for_gas_error"`
	MissingGasLimitError         bool `json:"missing_gas_limit_error"`
	SameAddressError             bool `json:"same_address_error"`
	ContractAddressError         bool `json:"contract_address_error"`
}

// HasFiatValue reports whether a spot price was available for the asset.
func (p ParsedTransaction) HasFiatValue() bool {
	return !p.FiatValue.IsNaN()
}

// HasErrors reports whether any blocking validation flag is set.
func (p ParsedTransaction) HasErrors() bool {
	return p.InsufficientFundsError || p.InsufficientFundsForGasError || p.MissingGasLimitError ||
		p.SameAddressError || p.ContractAddressError
}
