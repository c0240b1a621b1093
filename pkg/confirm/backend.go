package confirm

import (
	"context"

	"txconfirm/pkg/amount"
	"txconfirm/pkg/fees"
	"txconfirm/pkg/models"
	"txconfirm/pkg/simulation"
)

// Backend is the wallet backend the orchestrator queries and commands.
type Backend interface {
	fees.Source

	GetPendingTransactions(ctx context.Context) ([]models.PendingTransaction, error)
	GetNetwork(ctx context.Context, chainID string, coin models.CoinType) (models.NetworkInfo, error)
	GetTokenSpotPrices(ctx context.Context, ids []string, currency string) (models.PriceRegistry, error)
	GetAccountBalances(ctx context.Context, address string, network models.NetworkInfo, tokens []models.Token) (models.Balances, error)
	GetAddressByteCode(ctx context.Context, address string, coin models.CoinType, chainID string) (string, error)
	GetSolanaEstimatedFee(ctx context.Context, chainID, txID string) (amount.Amount, error)
	SimulateTransaction(ctx context.Context, tx models.PendingTransaction) (simulation.Result, error)
	GetERC20Allowance(ctx context.Context, chainID, contract, owner, spender string) (string, error)

	ConfirmTransaction(ctx context.Context, id string) error
	RejectTransaction(ctx context.Context, id string) error
	RejectAllTransactions(ctx context.Context) error
	UpdateUnapprovedTransactionNonce(ctx context.Context, id, nonceHex string) error
	UpdateUnapprovedTransactionGasFields(ctx context.Context, id string, fields models.GasFields) error
	UpdateUnapprovedTransactionSpendAllowance(ctx context.Context, id, spender, allowanceHex string) error
}

// Selection exposes what the user currently has selected in the wallet.
type Selection interface {
	ActiveAccount() models.Account
	ActiveNetwork() models.NetworkInfo
	DefaultCurrency() string
	Accounts() []models.Account
	FullTokens() []models.Token
	VisibleTokens() []models.Token
}
