package normalizer

import (
	"strings"

	"txconfirm/pkg/amount"
	"txconfirm/pkg/models"

	"github.com/ethereum/go-ethereum/common"
)

func parseEVM(raw models.PendingTransaction, c Context, p *models.ParsedTransaction) {
	tx := raw.Data.Eth

	switch raw.TxType {
	case models.TxERC20Transfer:
		p.Kind = models.KindTokenTransfer
		p.Token = findToken(c.Tokens, raw.ChainID, tx.To)
		p.Recipient = argAt(raw.TxArgs, 0)
		p.ValueExact = amount.New(argAt(raw.TxArgs, 1))

	case models.TxERC20Approve:
		p.Kind = models.KindApprove
		p.Token = findToken(c.Tokens, raw.ChainID, tx.To)
		p.Recipient = tx.To
		p.Spender = argAt(raw.TxArgs, 0)
		p.Allowance = amount.New(argAt(raw.TxArgs, 1))
		decimals := c.Network.Decimals
		if p.Token != nil {
			decimals = p.Token.Decimals
		}
		p.IsUnlimited = amount.IsUnlimited(p.Allowance, decimals)
		p.ContractAddressError = !IsValidEVMAddress(p.Recipient) || !IsValidEVMAddress(p.Spender)

	case models.TxERC721TransferFrom, models.TxERC721SafeTransferFrom:
		p.Kind = models.KindNFTTransfer
		p.Token = findToken(c.Tokens, raw.ChainID, tx.To)
		p.Recipient = argAt(raw.TxArgs, 1)
		p.NFTTokenID = argAt(raw.TxArgs, 2)
		p.ValueExact = amount.New("1")

	case models.TxERC1155SafeTransferFrom:
		p.Kind = models.KindNFTTransfer
		p.Token = findToken(c.Tokens, raw.ChainID, tx.To)
		p.Recipient = argAt(raw.TxArgs, 1)
		p.NFTTokenID = argAt(raw.TxArgs, 2)
		p.ValueExact = amount.New(argAt(raw.TxArgs, 3))
		if p.ValueExact.IsNaN() {
			p.ValueExact = amount.New("1")
		}

	case models.TxETHSwap:
		p.Kind = models.KindSwap
		p.Recipient = tx.To
		p.ValueExact = amount.New(tx.Value)

	case models.TxETHSend:
		p.Kind = models.KindNativeTransfer
		p.Recipient = tx.To
		p.ValueExact = amount.New(tx.Value)

	default:
		p.Kind = models.KindDapp
		p.Recipient = tx.To
		p.ValueExact = amount.New(tx.Value)
	}

	if p.Token != nil && p.Token.IsNFT() {
		p.Token.Decimals = 0
	}

	gasLimit := amount.New(tx.GasLimit)
	p.GasLimit = quantityString(gasLimit)
	p.MissingGasLimitError = missingGasLimit(c.Network, gasLimit)
	p.IsEIP1559 = tx.IsEIP1559
	p.GasPrice = amount.New(tx.GasPrice)
	p.MaxPriorityFeePerGas = amount.New(tx.MaxPriorityFeePerGas)
	p.MaxFeePerGas = amount.New(tx.MaxFeePerGas)

	price := p.GasPrice
	if tx.IsEIP1559 {
		price = p.MaxFeePerGas
	}
	p.GasFee = gasLimit.Multiply(price).DivideByDecimals(c.Network.Decimals)
	p.Nonce = quantityString(amount.New(tx.Nonce))
}

// IsValidEVMAddress accepts 0x-prefixed 20-byte hex addresses. Mixed-case
// input must match its EIP-55 checksum.
func IsValidEVMAddress(s string) bool {
	if !strings.HasPrefix(s, "0x") || !common.IsHexAddress(s) {
		return false
	}
	body := s[2:]
	if body == strings.ToLower(body) || body == strings.ToUpper(body) {
		return true
	}
	return common.HexToAddress(s).Hex() == s
}
