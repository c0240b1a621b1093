package normalizer

import (
	"txconfirm/pkg/amount"
	"txconfirm/pkg/models"

	"github.com/gagliardetto/solana-go"
)

// LamportsPerSignature is the base fee used until the network estimate arrives.
const LamportsPerSignature = 5000

func parseSolana(raw models.PendingTransaction, c Context, p *models.ParsedTransaction) {
	tx := raw.Data.Solana
	p.Recipient = canonicalSolanaAddress(tx.ToWalletAddress)

	switch raw.TxType {
	case models.TxSolanaSystemTransfer:
		p.Kind = models.KindNativeTransfer
		p.ValueExact = amount.FromUint64(tx.Lamports)
	case models.TxSolanaSPLTokenTransfer, models.TxSolanaSPLTransferWithATA:
		p.Kind = models.KindTokenTransfer
		p.Token = findSolanaToken(c.Tokens, raw.ChainID, tx.SplTokenMintAddress)
		p.ValueExact = amount.FromUint64(tx.Amount)
		if raw.TxType == models.TxSolanaSPLTransferWithATA {
			p.Kind = models.KindAssociatedAccount
			p.IsAssociatedTokenAccountCreation = true
		}
	case models.TxSolanaSwap:
		p.Kind = models.KindSwap
		p.ValueExact = amount.FromUint64(tx.Lamports)
	default:
		p.Kind = models.KindDapp
		p.ValueExact = amount.FromUint64(tx.Lamports)
	}

	fee := c.SolanaFee
	if fee.IsNaN() || fee.IsZero() {
		fee = amount.FromUint64(LamportsPerSignature)
	}
	p.GasFee = fee.DivideByDecimals(c.Network.Decimals)
}

func canonicalSolanaAddress(s string) string {
	key, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return s
	}
	return key.String()
}

func findSolanaToken(tokens []models.Token, chainID, mint string) *models.Token {
	key, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return findToken(tokens, chainID, mint)
	}
	for i := range tokens {
		t := tokens[i]
		if t.ChainID != chainID {
			continue
		}
		if other, err := solana.PublicKeyFromBase58(t.ContractAddress); err == nil && other.Equals(key) {
			return &t
		}
	}
	return nil
}
