package models

import (
	"strings"
	"time"

	"txconfirm/pkg/amount"
)

// CoinType is the SLIP-44 coin type of a network family.
type CoinType int

const (
	CoinETH CoinType = 60
	CoinSOL CoinType = 501
	CoinFIL CoinType = 461
	CoinZEC CoinType = 133
)

func (c CoinType) String() string {
	switch c {
	case CoinETH:
		return "eth"
	case CoinSOL:
		return "sol"
	case CoinFIL:
		return "fil"
	case CoinZEC:
		return "zec"
	default:
		return "unknown"
	}
}

// ParseCoinType accepts the names printed by String.
func ParseCoinType(s string) (CoinType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "eth", "evm", "":
		return CoinETH, true
	case "sol", "solana":
		return CoinSOL, true
	case "fil", "filecoin":
		return CoinFIL, true
	case "zec", "zcash":
		return CoinZEC, true
	}
	return 0, false
}

// TxType is the backend's classification of an unapproved transaction.
type TxType string

const (
	TxETHSend                   TxType = "eth_send"
	TxERC20Transfer             TxType = "erc20_transfer"
	TxERC20Approve              TxType = "erc20_approve"
	TxERC721TransferFrom        TxType = "erc721_transfer_from"
	TxERC721SafeTransferFrom    TxType = "erc721_safe_transfer_from"
	TxERC1155SafeTransferFrom   TxType = "erc1155_safe_transfer_from"
	TxETHSwap                   TxType = "eth_swap"
	TxOther                     TxType = "other"
	TxSolanaSystemTransfer      TxType = "solana_system_transfer"
	TxSolanaSPLTokenTransfer    TxType = "solana_spl_token_transfer"
	TxSolanaSPLTransferWithATA  TxType = "solana_spl_token_transfer_with_ata_creation"
	TxSolanaDappSignTransaction TxType = "solana_dapp_sign_transaction"
	TxSolanaDappSignAndSend     TxType = "solana_dapp_sign_and_send_transaction"
	TxSolanaSwap                TxType = "solana_swap"
	TxFilSend                   TxType = "fil_send"
	TxZecSend                   TxType = "zec_send"
	TxSignMessage               TxType = "sign_message"
)

// EthTxData holds EVM transaction fields as 0x-prefixed hex quantities.
type EthTxData struct {
	To                   string `json:"to"`
	Value                string `json:"value"`
	Data                 string `json:"data,omitempty"`
	GasLimit             string `json:"gas_limit"`
	GasPrice             string `json:"gas_price,omitempty"`
	MaxPriorityFeePerGas string `json:"max_priority_fee_per_gas,omitempty"`
	MaxFeePerGas         string `json:"max_fee_per_gas,omitempty"`
	Nonce                string `json:"nonce"`
	IsEIP1559            bool   `json:"is_eip1559"`
}

// SolanaTxData holds a Solana transfer or dapp request.
type SolanaTxData struct {
	ToWalletAddress     string `json:"to_wallet_address"`
	SplTokenMintAddress string `json:"spl_token_mint_address,omitempty"`
	Lamports            uint64 `json:"lamports"`
	Amount              uint64 `json:"amount"`

	// SerializedMessage is the base64 message used to query the network fee.
	SerializedMessage string `json:"serialized_message,omitempty"`
}

// FilTxData holds Filecoin message fields as decimal attoFIL strings.
type FilTxData struct {
	To         string `json:"to"`
	Value      string `json:"value"`
	GasLimit   string `json:"gas_limit"`
	GasFeeCap  string `json:"gas_fee_cap"`
	GasPremium string `json:"gas_premium"`
	Nonce      string `json:"nonce"`
}

// ZecTxData holds a Zcash transparent send in zatoshi.
type ZecTxData struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
	Fee    uint64 `json:"fee"`
}

// SignMessageData is an off-chain message signature request.
type SignMessageData struct {
	Message string `json:"message"`
}

// TxDataUnion carries exactly one chain-specific payload.
type TxDataUnion struct {
	Eth         *EthTxData       `json:"eth,omitempty"`
	Solana      *SolanaTxData    `json:"solana,omitempty"`
	Fil         *FilTxData       `json:"fil,omitempty"`
	Zec         *ZecTxData       `json:"zec,omitempty"`
	SignMessage *SignMessageData `json:"sign_message,omitempty"`
}

// PendingTransaction is an unapproved request as produced by the wallet backend.
type PendingTransaction struct {
	ID          string      `json:"id"`
	ChainID     string      `json:"chain_id"`
	CoinType    CoinType    `json:"coin"`
	FromAddress string      `json:"from"`
	Origin      string      `json:"origin,omitempty"`
	TxType      TxType      `json:"tx_type"`
	TxArgs      []string    `json:"tx_args,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	Data        TxDataUnion `json:"data"`
}

// Clone returns a deep copy so edits never alias backend state.
func (p PendingTransaction) Clone() PendingTransaction {
	out := p
	out.TxArgs = append([]string(nil), p.TxArgs...)
	if p.Data.Eth != nil {
		v := *p.Data.Eth
		out.Data.Eth = &v
	}
	if p.Data.Solana != nil {
		v := *p.Data.Solana
		out.Data.Solana = &v
	}
	if p.Data.Fil != nil {
		v := *p.Data.Fil
		out.Data.Fil = &v
	}
	if p.Data.Zec != nil {
		v := *p.Data.Zec
		out.Data.Zec = &v
	}
	if p.Data.SignMessage != nil {
		v := *p.Data.SignMessage
		out.Data.SignMessage = &v
	}
	return out
}

// NetworkInfo describes a network a pending transaction targets.
type NetworkInfo struct {
	ChainID     string   `json:"chain_id"`
	CoinType    CoinType `json:"coin"`
	Name        string   `json:"name"`
	Symbol      string   `json:"symbol"`
	Decimals    int      `json:"decimals"`
	CoinGeckoID string   `json:"coingecko_id"`
	ExplorerURL string   `json:"explorer_url,omitempty"`
	RPCURLs     []string `json:"rpc_urls"`
	EIP1559     bool     `json:"eip1559"`
}

// RequiresGasLimit reports whether transactions on this network need an explicit gas limit.
func (n NetworkInfo) RequiresGasLimit() bool {
	return n.CoinType == CoinETH || n.CoinType == CoinFIL
}

// PlaceholderCoinGeckoID marks tokens without a price feed.
const PlaceholderCoinGeckoID = "placeholder"

// Token is an entry of the token registry.
type Token struct {
	ContractAddress string   `json:"contract_address"`
	Name            string   `json:"name"`
	Symbol          string   `json:"symbol"`
	Decimals        int      `json:"decimals"`
	CoinGeckoID     string   `json:"coingecko_id,omitempty"`
	ChainID         string   `json:"chain_id"`
	CoinType        CoinType `json:"coin"`
	IsERC20         bool     `json:"is_erc20,omitempty"`
	IsERC721        bool     `json:"is_erc721,omitempty"`
	IsERC1155       bool     `json:"is_erc1155,omitempty"`
	Visible         bool     `json:"visible"`
}

// IsNFT reports whether the token is non-fungible.
func (t Token) IsNFT() bool {
	return t.IsERC721 || t.IsERC1155
}

// PriceKey is the registry key used to look up a spot price.
func (t Token) PriceKey() string {
	if t.CoinGeckoID != "" {
		return strings.ToLower(t.CoinGeckoID)
	}
	return strings.ToLower(t.Symbol)
}

// Account is a wallet account known to the selection surface.
type Account struct {
	Address  string   `json:"address"`
	Name     string   `json:"name"`
	CoinType CoinType `json:"coin"`
}

// PriceRegistry maps a lower-cased price key to a spot price in the default currency.
type PriceRegistry map[string]amount.Amount

// Lookup returns the price for key, or NaN when missing.
func (p PriceRegistry) Lookup(key string) amount.Amount {
	if key == "" || key == PlaceholderCoinGeckoID {
		return amount.NaN()
	}
	v, ok := p[strings.ToLower(key)]
	if !ok {
		return amount.NaN()
	}
	return v
}

// NativeBalanceKey is the Balances key for the network's native asset.
const NativeBalanceKey = ""

// Balances maps a lower-cased contract address (or NativeBalanceKey) to a base-unit balance.
type Balances map[string]amount.Amount

func (b Balances) Get(contract string) (amount.Amount, bool) {
	v, ok := b[strings.ToLower(contract)]
	return v, ok
}

// GasFields is the edit payload for updateUnapprovedTransactionGasFields.
type GasFields struct {
	GasLimit             string `json:"gas_limit,omitempty"`
	GasPrice             string `json:"gas_price,omitempty"`
	MaxPriorityFeePerGas string `json:"max_priority_fee_per_gas,omitempty"`
	MaxFeePerGas         string `json:"max_fee_per_gas,omitempty"`
}

// ChainResult holds config check results for a specific network.
type ChainResult struct {
	Name            string      `json:"name"`
	Symbol          string      `json:"symbol"`
	ConfigChainID   string      `json:"config_chain_id"`
	RPCs            []RPCResult `json:"rpcs"`
	Inconsistent    bool        `json:"inconsistent"`
	ChainIDUpdated  bool        `json:"chain_id_updated"`
	ObservedChainID string      `json:"observed_chain_id,omitempty"`

	// Skipped is set for networks the checker cannot reach over JSON-RPC.
	Skipped bool          `json:"skipped,omitempty"`
	Tokens  []TokenResult `json:"tokens,omitempty"`
}

// TokenResult compares a configured token against its on-chain metadata.
type TokenResult struct {
	Symbol          string `json:"symbol"`
	Address         string `json:"address"`
	Status          string `json:"status"` // "ok", "mismatch" or "error"
	OnChainSymbol   string `json:"onchain_symbol,omitempty"`
	OnChainDecimals int    `json:"onchain_decimals,omitempty"`
	Error           string `json:"error,omitempty"`
}

// RPCResult holds config check results for a specific RPC URL.
type RPCResult struct {
	URL       string `json:"url"`
	Status    string `json:"status"` // "ok" or "error"
	ChainID   string `json:"chain_id,omitempty"`
	LatencyMS int64  `json:"latency_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

// TestReport holds the results of the configuration test.
type TestReport struct {
	ConfigPath         string        `json:"config_path"`
	ValidStructure     bool          `json:"valid_structure"`
	StructureErrors    []string      `json:"structure_errors,omitempty"`
	AccountCount       int           `json:"account_count"`
	NetworkCount       int           `json:"network_count"`
	Chains             []ChainResult `json:"chains,omitempty"`
	InconsistentChains []string      `json:"inconsistent_chains,omitempty"`
	ConfigUpdated      bool          `json:"config_updated"`
	SaveError          string        `json:"save_error,omitempty"`
	DryRun             bool          `json:"dry_run"`
}
