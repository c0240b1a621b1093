// Package backend wires the configured networks, the pending store and the
// RPC query functions into the collaborators the confirmation engine needs.
package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"txconfirm/pkg/amount"
	"txconfirm/pkg/config"
	"txconfirm/pkg/confirm"
	"txconfirm/pkg/fees"
	"txconfirm/pkg/models"
	"txconfirm/pkg/rpc"
	"txconfirm/pkg/simulation"
	"txconfirm/pkg/store"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
)

var (
	ErrUnknownNetwork = errors.New("network not configured")
	ErrUnsupported    = errors.New("not supported on this network")
)

var (
	_ confirm.Backend   = (*Wallet)(nil)
	_ confirm.Selection = (*Wallet)(nil)
)

// Wallet implements confirm.Backend and confirm.Selection on top of the
// configuration and the in-memory pending store.
type Wallet struct {
	store *store.Store
	log   log.Logger

	mu  sync.RWMutex
	cfg config.Config
}

func New(cfg config.Config, st *store.Store) *Wallet {
	return &Wallet{
		store: st,
		cfg:   cfg,
		log:   log.New("module", "backend"),
	}
}

// Select changes the active network and account by index.
func (w *Wallet) Select(network, account int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if network < 0 || network >= len(w.cfg.Networks) {
		return fmt.Errorf("network index %d out of range", network)
	}
	if len(w.cfg.Accounts) > 0 && (account < 0 || account >= len(w.cfg.Accounts)) {
		return fmt.Errorf("account index %d out of range", account)
	}
	w.cfg.SelectedNetwork = network
	w.cfg.SelectedAccount = account
	w.log.Info("Selection changed", "network", w.cfg.Networks[network].Name, "account", account)
	return nil
}

func (w *Wallet) config() config.Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cfg
}

func (w *Wallet) ActiveAccount() models.Account {
	cfg := w.config()
	accounts := cfg.ModelAccounts()
	if cfg.SelectedAccount >= 0 && cfg.SelectedAccount < len(accounts) {
		return accounts[cfg.SelectedAccount]
	}
	return models.Account{}
}

func (w *Wallet) ActiveNetwork() models.NetworkInfo {
	cfg := w.config()
	if cfg.SelectedNetwork >= 0 && cfg.SelectedNetwork < len(cfg.Networks) {
		return cfg.Networks[cfg.SelectedNetwork].Info()
	}
	return models.NetworkInfo{}
}

func (w *Wallet) DefaultCurrency() string {
	return w.config().Global.DefaultCurrency
}

func (w *Wallet) Accounts() []models.Account {
	return w.config().ModelAccounts()
}

func (w *Wallet) FullTokens() []models.Token {
	return w.config().Tokens()
}

func (w *Wallet) VisibleTokens() []models.Token {
	var out []models.Token
	for _, t := range w.FullTokens() {
		if t.Visible {
			out = append(out, t)
		}
	}
	return out
}

func (w *Wallet) network(chainID string, coin models.CoinType) (models.NetworkInfo, error) {
	for _, n := range w.config().Networks {
		if n.CoinType() == coin && strings.EqualFold(n.ChainID, chainID) {
			return n.Info(), nil
		}
	}
	return models.NetworkInfo{}, fmt.Errorf("%w: %s chain %s", ErrUnknownNetwork, coin, chainID)
}

func (w *Wallet) GetPendingTransactions(ctx context.Context) ([]models.PendingTransaction, error) {
	return w.store.Pending(ctx)
}

func (w *Wallet) GetNetwork(ctx context.Context, chainID string, coin models.CoinType) (models.NetworkInfo, error) {
	return w.network(chainID, coin)
}

func (w *Wallet) GetTokenSpotPrices(ctx context.Context, ids []string, currency string) (models.PriceRegistry, error) {
	return rpc.FetchSpotPrices(ctx, ids, currency)
}

// GetAccountBalances queries EVM balances. Other networks report no
// balances, which leaves their funds checks unknown.
func (w *Wallet) GetAccountBalances(ctx context.Context, address string, network models.NetworkInfo, tokens []models.Token) (models.Balances, error) {
	if network.CoinType != models.CoinETH {
		return models.Balances{}, nil
	}
	return rpc.FetchBalances(ctx, network.RPCURLs, address, tokens)
}

func (w *Wallet) GetAddressByteCode(ctx context.Context, address string, coin models.CoinType, chainID string) (string, error) {
	if coin != models.CoinETH {
		return "", ErrUnsupported
	}
	n, err := w.network(chainID, coin)
	if err != nil {
		return "", err
	}
	return rpc.FetchByteCode(ctx, n.RPCURLs, address)
}

func (w *Wallet) GetSolanaEstimatedFee(ctx context.Context, chainID, txID string) (amount.Amount, error) {
	tx, err := w.store.Get(txID)
	if err != nil {
		return amount.NaN(), err
	}
	if tx.Data.Solana == nil || tx.Data.Solana.SerializedMessage == "" {
		return amount.NaN(), fmt.Errorf("transaction %s has no serialized message", txID)
	}
	n, err := w.network(chainID, models.CoinSOL)
	if err != nil {
		return amount.NaN(), err
	}
	return rpc.FetchSolanaFee(ctx, n.RPCURLs, tx.Data.Solana.SerializedMessage)
}

func (w *Wallet) SimulateTransaction(ctx context.Context, tx models.PendingTransaction) (simulation.Result, error) {
	return rpc.Simulate(ctx, w.config().Global.SimulationURL, tx)
}

func (w *Wallet) GetERC20Allowance(ctx context.Context, chainID, contract, owner, spender string) (string, error) {
	n, err := w.network(chainID, models.CoinETH)
	if err != nil {
		return "", err
	}
	return rpc.FetchERC20Allowance(ctx, n.RPCURLs, contract, owner, spender)
}

// EstimateFee estimates the fee of the stored transaction behind tx.
func (w *Wallet) EstimateFee(ctx context.Context, tx models.ParsedTransaction, network models.NetworkInfo) (fees.FeeEstimate, error) {
	raw, err := w.store.Get(tx.ID)
	if err != nil {
		return fees.FeeEstimate{}, err
	}
	if raw.Data.Eth == nil {
		return fees.FeeEstimate{}, ErrUnsupported
	}
	call, err := callMsg(raw)
	if err != nil {
		return fees.FeeEstimate{}, err
	}
	return rpc.FetchFeeEstimate(ctx, network.RPCURLs, call, amount.New(raw.Data.Eth.GasLimit), network.EIP1559)
}

func callMsg(raw models.PendingTransaction) (ethereum.CallMsg, error) {
	eth := raw.Data.Eth
	msg := ethereum.CallMsg{From: common.HexToAddress(raw.FromAddress)}
	if eth.To != "" {
		to := common.HexToAddress(eth.To)
		msg.To = &to
	}
	if v := amount.New(eth.Value); !v.IsNaN() {
		msg.Value = v.BigInt()
	}
	if eth.Data != "" && eth.Data != "0x" {
		data, err := hexutil.Decode(eth.Data)
		if err != nil {
			return msg, fmt.Errorf("invalid calldata: %w", err)
		}
		msg.Data = data
	}
	return msg, nil
}

func (w *Wallet) ConfirmTransaction(ctx context.Context, id string) error {
	return w.store.Confirm(ctx, id)
}

func (w *Wallet) RejectTransaction(ctx context.Context, id string) error {
	return w.store.Reject(ctx, id)
}

func (w *Wallet) RejectAllTransactions(ctx context.Context) error {
	return w.store.RejectAll(ctx)
}

func (w *Wallet) UpdateUnapprovedTransactionNonce(ctx context.Context, id, nonceHex string) error {
	return w.store.UpdateNonce(ctx, id, nonceHex)
}

func (w *Wallet) UpdateUnapprovedTransactionGasFields(ctx context.Context, id string, fields models.GasFields) error {
	return w.store.UpdateGasFields(ctx, id, fields)
}

func (w *Wallet) UpdateUnapprovedTransactionSpendAllowance(ctx context.Context, id, spender, allowanceHex string) error {
	return w.store.UpdateSpendAllowance(ctx, id, spender, allowanceHex)
}
