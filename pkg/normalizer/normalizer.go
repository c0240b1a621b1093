// Package normalizer turns a chain-specific pending transaction into the
// chain-agnostic ParsedTransaction view model.
//
// Parse is a pure function: it holds no state and the same inputs always
// produce an equal result.
package normalizer

import (
	"txconfirm/pkg/amount"
	"txconfirm/pkg/models"
	"txconfirm/pkg/utils"
)

// Context is the supporting data a parse depends on.
type Context struct {
	Network  models.NetworkInfo
	Accounts []models.Account
	Tokens   []models.Token
	Prices   models.PriceRegistry
	// Balances of the sending account in base units.
	Balances models.Balances
	// SolanaFee is the estimated network fee in lamports. Zero or NaN falls
	// back to LamportsPerSignature.
	SolanaFee amount.Amount
}

// subParser fills the chain-specific fields: recipient, asset, exact value,
// fee in native display units and gas limit checks.
type subParser func(raw models.PendingTransaction, c Context, p *models.ParsedTransaction)

// Parse builds the view model for raw.
func Parse(raw models.PendingTransaction, c Context) models.ParsedTransaction {
	p := models.ParsedTransaction{
		ID:                   raw.ID,
		ChainID:              raw.ChainID,
		CoinType:             raw.CoinType,
		TxType:               raw.TxType,
		Origin:               raw.Origin,
		Sender:               raw.FromAddress,
		Symbol:               c.Network.Symbol,
		Decimals:             c.Network.Decimals,
		ValueExact:           amount.Zero(),
		GasFee:               amount.Zero(),
		GasPrice:             amount.NaN(),
		MaxPriorityFeePerGas: amount.NaN(),
		MaxFeePerGas:         amount.NaN(),
		Allowance:            amount.NaN(),
	}

	parser := selectParser(raw)
	parser(raw, c, &p)

	finish(c, &p)
	return p
}

func selectParser(raw models.PendingTransaction) subParser {
	switch {
	case raw.Data.SignMessage != nil:
		return parseSignMessage
	case raw.Data.Eth != nil:
		return parseEVM
	case raw.Data.Solana != nil:
		return parseSolana
	case raw.Data.Fil != nil:
		return parseFil
	case raw.Data.Zec != nil:
		return parseZec
	}
	return parseUnknown
}

func parseSignMessage(raw models.PendingTransaction, _ Context, p *models.ParsedTransaction) {
	p.Kind = models.KindSignMessage
	p.SignedMessage = raw.Data.SignMessage.Message
}

func parseUnknown(_ models.PendingTransaction, _ Context, p *models.ParsedTransaction) {
	p.Kind = models.KindDapp
	p.ValueExact = amount.NaN()
	p.GasFee = amount.NaN()
}

// finish derives display values, fiat values, labels and validation flags.
func finish(c Context, p *models.ParsedTransaction) {
	p.SenderLabel = accountLabel(c.Accounts, p.Sender)
	if p.Recipient != "" {
		p.RecipientLabel = accountLabel(c.Accounts, p.Recipient)
	}
	if p.Spender != "" {
		p.SpenderLabel = accountLabel(c.Accounts, p.Spender)
	}

	if p.Token != nil {
		p.Symbol = p.Token.Symbol
		p.Decimals = p.Token.Decimals
	}
	p.Value = p.ValueExact.DivideByDecimals(p.Decimals)

	nativePrice := c.Prices.Lookup(c.Network.CoinGeckoID)
	p.FiatValue = amount.NaN()
	switch {
	case p.Kind == models.KindSignMessage, p.Kind == models.KindNFTTransfer:
	case p.Token != nil:
		p.FiatValue = p.Value.Multiply(c.Prices.Lookup(p.Token.CoinGeckoID))
	case !tokenKind(p.TxType):
		p.FiatValue = p.Value.Multiply(nativePrice)
	}
	p.GasFeeFiat = p.GasFee.Multiply(nativePrice)
	p.FiatTotal = p.FiatValue.Add(p.GasFeeFiat)

	if p.Kind == models.KindSignMessage {
		return
	}

	feeBase := p.GasFee.MultiplyByDecimals(c.Network.Decimals)
	nativeBalance, haveNative := c.Balances.Get(models.NativeBalanceKey)
	if haveNative {
		p.InsufficientFundsForGasError = feeBase.GT(nativeBalance)
	}
	switch {
	case p.Kind == models.KindApprove, p.Kind == models.KindNFTTransfer:
	case p.Token != nil:
		if bal, ok := c.Balances.Get(p.Token.ContractAddress); ok {
			p.InsufficientFundsError = p.ValueExact.GT(bal)
		}
	case haveNative && !tokenKind(p.TxType):
		p.InsufficientFundsError = p.ValueExact.Add(feeBase).GT(nativeBalance)
	}

	if p.Kind.IsTransfer() && p.Recipient != "" {
		p.SameAddressError = utils.EqualAddress(p.Sender, p.Recipient)
	}
}

// tokenKind reports whether the transaction moves a token rather than the native asset.
func tokenKind(t models.TxType) bool {
	switch t {
	case models.TxERC20Transfer, models.TxERC20Approve, models.TxERC721TransferFrom,
		models.TxERC721SafeTransferFrom, models.TxERC1155SafeTransferFrom,
		models.TxSolanaSPLTokenTransfer, models.TxSolanaSPLTransferWithATA:
		return true
	}
	return false
}

func accountLabel(accounts []models.Account, address string) string {
	for _, a := range accounts {
		if a.Name != "" && utils.EqualAddress(a.Address, address) {
			return a.Name
		}
	}
	return utils.ReduceAddress(address)
}

func findToken(tokens []models.Token, chainID, contract string) *models.Token {
	for i := range tokens {
		t := tokens[i]
		if t.ChainID == chainID && utils.EqualAddress(t.ContractAddress, contract) {
			return &t
		}
	}
	return nil
}

func argAt(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

// quantityString renders a parsed integer quantity, or "" when it did not parse.
func quantityString(a amount.Amount) string {
	if a.IsNaN() {
		return ""
	}
	return a.String()
}

// missingGasLimit reports whether a network that needs an explicit limit got none.
func missingGasLimit(n models.NetworkInfo, limit amount.Amount) bool {
	if !n.RequiresGasLimit() {
		return false
	}
	return limit.IsNaN() || limit.IsZero()
}
