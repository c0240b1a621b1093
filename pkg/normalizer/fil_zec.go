package normalizer

import (
	"txconfirm/pkg/amount"
	"txconfirm/pkg/models"
)

func parseFil(raw models.PendingTransaction, c Context, p *models.ParsedTransaction) {
	tx := raw.Data.Fil
	p.Kind = models.KindNativeTransfer
	p.Recipient = tx.To
	p.ValueExact = amount.New(tx.Value)

	gasLimit := amount.New(tx.GasLimit)
	p.GasLimit = quantityString(gasLimit)
	p.MissingGasLimitError = missingGasLimit(c.Network, gasLimit)
	p.GasPrice = amount.New(tx.GasFeeCap)
	p.MaxPriorityFeePerGas = amount.New(tx.GasPremium)
	p.MaxFeePerGas = p.GasPrice
	p.GasFee = gasLimit.Multiply(p.GasPrice).DivideByDecimals(c.Network.Decimals)
	p.Nonce = quantityString(amount.New(tx.Nonce))
}

func parseZec(raw models.PendingTransaction, c Context, p *models.ParsedTransaction) {
	tx := raw.Data.Zec
	p.Kind = models.KindNativeTransfer
	p.Recipient = tx.To
	p.ValueExact = amount.FromUint64(tx.Amount)
	p.GasFee = amount.FromUint64(tx.Fee).DivideByDecimals(c.Network.Decimals)
}
