package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"txconfirm/pkg/fees"
	"txconfirm/pkg/models"

	"golang.org/x/text/currency"
)

const ConfigFileName = ".txconfirm.json"

// TokenConfig holds configuration for a token on a network.
type TokenConfig struct {
	Symbol      string `json:"symbol"`
	Name        string `json:"name,omitempty"`
	Address     string `json:"address"`
	Decimals    int    `json:"decimals"`
	CoinGeckoID string `json:"coingecko_id,omitempty"`
	// Standard is erc20 (default), erc721, erc1155 or spl.
	Standard string `json:"standard,omitempty"`
	Hidden   bool   `json:"hidden,omitempty"`
}

// AccountConfig holds configuration for a wallet account.
type AccountConfig struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
	Coin    string `json:"coin,omitempty"`
}

// NetworkConfig holds configuration for a network.
type NetworkConfig struct {
	Name        string        `json:"name"`
	Coin        string        `json:"coin,omitempty"`
	ChainID     string        `json:"chain_id,omitempty"`
	RPCURLs     []string      `json:"rpc_urls"`
	Symbol      string        `json:"symbol"`
	Decimals    int           `json:"decimals,omitempty"`
	CoinGeckoID string        `json:"coingecko_id,omitempty"`
	ExplorerURL string        `json:"explorer_url,omitempty"`
	EIP1559     bool          `json:"eip1559,omitempty"`
	Tokens      []TokenConfig `json:"tokens,omitempty"`
}

// GlobalConfig holds application-wide settings.
type GlobalConfig struct {
	DefaultCurrency           string `json:"default_currency"`
	TokenDecimals             int    `json:"token_decimals"`
	FeeRefreshIntervalSeconds int    `json:"fee_refresh_interval_seconds"`
	SimulationURL             string `json:"simulation_url,omitempty"`
	SimulationEnabled         bool   `json:"simulation_enabled"`
	BytecodeCacheTTLSeconds   int    `json:"bytecode_cache_ttl_seconds"`
	LogLevel                  string `json:"log_level"`
}

// Config is the whole configuration file.
type Config struct {
	Accounts        []AccountConfig
	Networks        []NetworkConfig
	SelectedNetwork int
	SelectedAccount int
	Global          GlobalConfig
}

func DefaultGlobalConfig() GlobalConfig {
	return GlobalConfig{
		DefaultCurrency:           "usd",
		TokenDecimals:             6,
		FeeRefreshIntervalSeconds: 15,
		BytecodeCacheTTLSeconds:   300,
		LogLevel:                  "info",
	}
}

// FeeRefreshInterval is the configured interval clamped to [1s, 15s].
func (g GlobalConfig) FeeRefreshInterval() time.Duration {
	d := time.Duration(g.FeeRefreshIntervalSeconds) * time.Second
	if d < time.Second {
		return time.Second
	}
	if d > fees.MaxRefreshInterval {
		return fees.MaxRefreshInterval
	}
	return d
}

func (g GlobalConfig) BytecodeTTL() time.Duration {
	if g.BytecodeCacheTTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(g.BytecodeCacheTTLSeconds) * time.Second
}

// CoinType resolves the network family; empty means EVM.
func (n NetworkConfig) CoinType() models.CoinType {
	c, ok := models.ParseCoinType(n.Coin)
	if !ok {
		return models.CoinETH
	}
	return c
}

func defaultDecimals(c models.CoinType) int {
	switch c {
	case models.CoinSOL:
		return 9
	case models.CoinZEC:
		return 8
	}
	return 18
}

// Info converts the network to the model handed to the engine.
func (n NetworkConfig) Info() models.NetworkInfo {
	coin := n.CoinType()
	decimals := n.Decimals
	if decimals == 0 {
		decimals = defaultDecimals(coin)
	}
	return models.NetworkInfo{
		ChainID:     n.ChainID,
		CoinType:    coin,
		Name:        n.Name,
		Symbol:      n.Symbol,
		Decimals:    decimals,
		CoinGeckoID: n.CoinGeckoID,
		ExplorerURL: n.ExplorerURL,
		RPCURLs:     append([]string(nil), n.RPCURLs...),
		EIP1559:     n.EIP1559,
	}
}

// ModelTokens returns the registry entries for the network's tokens.
func (n NetworkConfig) ModelTokens() []models.Token {
	coin := n.CoinType()
	out := make([]models.Token, 0, len(n.Tokens))
	for _, t := range n.Tokens {
		tok := models.Token{
			ContractAddress: t.Address,
			Name:            t.Name,
			Symbol:          t.Symbol,
			Decimals:        t.Decimals,
			CoinGeckoID:     t.CoinGeckoID,
			ChainID:         n.ChainID,
			CoinType:        coin,
			Visible:         !t.Hidden,
		}
		switch strings.ToLower(t.Standard) {
		case "erc721":
			tok.IsERC721 = true
		case "erc1155":
			tok.IsERC1155 = true
		case "spl":
		default:
			tok.IsERC20 = coin == models.CoinETH
		}
		if tok.Name == "" {
			tok.Name = tok.Symbol
		}
		out = append(out, tok)
	}
	return out
}

// Tokens returns the token registry of every configured network.
func (c Config) Tokens() []models.Token {
	var out []models.Token
	for _, n := range c.Networks {
		out = append(out, n.ModelTokens()...)
	}
	return out
}

// ModelAccounts returns the configured accounts.
func (c Config) ModelAccounts() []models.Account {
	out := make([]models.Account, 0, len(c.Accounts))
	for _, a := range c.Accounts {
		coin, ok := models.ParseCoinType(a.Coin)
		if !ok {
			coin = models.CoinETH
		}
		out = append(out, models.Account{Address: a.Address, Name: a.Name, CoinType: coin})
	}
	return out
}

func GetConfigPath(customPath string) (string, error) {
	if customPath != "" {
		return customPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigFileName), nil
}

func LoadConfigFromFile(path string) (Config, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return Config{Global: DefaultGlobalConfig()}, nil
	}
	if err != nil {
		return Config{}, err
	}
	defer func() { _ = f.Close() }()
	return LoadConfig(f)
}

func LoadConfig(r io.Reader) (Config, error) {
	var cfg struct {
		Accounts                  json.RawMessage `json:"accounts"`
		Addresses                 json.RawMessage `json:"addresses"` // Legacy
		RPCURLs                   []string        `json:"rpc_urls"`  // Legacy
		Networks                  []NetworkConfig `json:"networks"`
		SelectedNetwork           string          `json:"selected_network"`
		SelectedAccount           string          `json:"selected_account"`
		DefaultCurrency           *string         `json:"default_currency"`
		TokenDecimals             *int            `json:"token_decimals"`
		FeeRefreshIntervalSeconds *int            `json:"fee_refresh_interval_seconds"`
		SimulationURL             *string         `json:"simulation_url"`
		SimulationEnabled         *bool           `json:"simulation_enabled"`
		BytecodeCacheTTLSeconds   *int            `json:"bytecode_cache_ttl_seconds"`
		LogLevel                  *string         `json:"log_level"`
	}
	if err := json.NewDecoder(r).Decode(&cfg); err != nil {
		return Config{}, err
	}

	raw := cfg.Accounts
	if len(raw) == 0 {
		raw = cfg.Addresses
	}
	var accounts []AccountConfig
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &accounts); err != nil {
			accounts = nil
			// Plain address list
			var strAddrs []string
			if err2 := json.Unmarshal(raw, &strAddrs); err2 == nil {
				for _, a := range strAddrs {
					accounts = append(accounts, AccountConfig{Address: a})
				}
			}
		}
	}

	// Migration for legacy config
	if len(cfg.Networks) == 0 && len(cfg.RPCURLs) > 0 {
		cfg.Networks = []NetworkConfig{{
			Name:        "Ethereum",
			ChainID:     "0x1",
			RPCURLs:     cfg.RPCURLs,
			Symbol:      "ETH",
			CoinGeckoID: "ethereum",
			ExplorerURL: "https://etherscan.io",
			EIP1559:     true,
		}}
		cfg.SelectedNetwork = "Ethereum"
	}

	out := Config{
		Accounts: accounts,
		Networks: cfg.Networks,
		Global:   DefaultGlobalConfig(),
	}
	for i, n := range cfg.Networks {
		if n.Name == cfg.SelectedNetwork {
			out.SelectedNetwork = i
			break
		}
	}
	for i, a := range accounts {
		if cfg.SelectedAccount != "" && (a.Name == cfg.SelectedAccount || strings.EqualFold(a.Address, cfg.SelectedAccount)) {
			out.SelectedAccount = i
			break
		}
	}

	g := &out.Global
	if cfg.DefaultCurrency != nil {
		g.DefaultCurrency = strings.ToLower(*cfg.DefaultCurrency)
	}
	if cfg.TokenDecimals != nil {
		g.TokenDecimals = *cfg.TokenDecimals
	}
	if cfg.FeeRefreshIntervalSeconds != nil {
		g.FeeRefreshIntervalSeconds = *cfg.FeeRefreshIntervalSeconds
	}
	if cfg.SimulationURL != nil {
		g.SimulationURL = *cfg.SimulationURL
		g.SimulationEnabled = g.SimulationURL != ""
	}
	if cfg.SimulationEnabled != nil {
		g.SimulationEnabled = *cfg.SimulationEnabled
	}
	if cfg.BytecodeCacheTTLSeconds != nil {
		g.BytecodeCacheTTLSeconds = *cfg.BytecodeCacheTTLSeconds
	}
	if cfg.LogLevel != nil {
		g.LogLevel = *cfg.LogLevel
	}
	return out, nil
}

// Validate reports the first structural problem in cfg.
func (c Config) Validate() error {
	if len(c.Networks) == 0 {
		return fmt.Errorf("validation failed: configuration must have at least one network")
	}
	seen := make(map[string]bool)
	for i, n := range c.Networks {
		if strings.TrimSpace(n.Name) == "" {
			return fmt.Errorf("validation failed: network at index %d has no name", i)
		}
		if len(n.RPCURLs) == 0 {
			return fmt.Errorf("validation failed: network %s has no RPC URLs", n.Name)
		}
		if _, ok := models.ParseCoinType(n.Coin); !ok {
			return fmt.Errorf("validation failed: network %s has unknown coin %q", n.Name, n.Coin)
		}
		key := n.CoinType().String() + ":" + strings.ToLower(n.ChainID)
		if n.ChainID != "" && seen[key] {
			return fmt.Errorf("validation failed: duplicate chain id %s", n.ChainID)
		}
		seen[key] = true
		for _, t := range n.Tokens {
			if strings.TrimSpace(t.Address) == "" {
				return fmt.Errorf("validation failed: token %s on %s has no address", t.Symbol, n.Name)
			}
		}
	}
	if _, err := currency.ParseISO(strings.ToUpper(c.Global.DefaultCurrency)); err != nil {
		return fmt.Errorf("validation failed: default_currency %q: %w", c.Global.DefaultCurrency, err)
	}
	return nil
}

func SaveConfig(c Config, path string) error {
	if err := c.Validate(); err != nil {
		return err
	}

	selectedNetwork := ""
	if c.SelectedNetwork >= 0 && c.SelectedNetwork < len(c.Networks) {
		selectedNetwork = c.Networks[c.SelectedNetwork].Name
	}
	selectedAccount := ""
	if c.SelectedAccount >= 0 && c.SelectedAccount < len(c.Accounts) {
		selectedAccount = c.Accounts[c.SelectedAccount].Address
	}
	g := c.Global
	cfg := struct {
		Accounts                  []AccountConfig `json:"accounts"`
		Networks                  []NetworkConfig `json:"networks"`
		SelectedNetwork           string          `json:"selected_network"`
		SelectedAccount           string          `json:"selected_account,omitempty"`
		DefaultCurrency           string          `json:"default_currency"`
		TokenDecimals             int             `json:"token_decimals"`
		FeeRefreshIntervalSeconds int             `json:"fee_refresh_interval_seconds"`
		SimulationURL             string          `json:"simulation_url,omitempty"`
		SimulationEnabled         bool            `json:"simulation_enabled"`
		BytecodeCacheTTLSeconds   int             `json:"bytecode_cache_ttl_seconds"`
		LogLevel                  string          `json:"log_level"`
	}{
		Accounts:                  c.Accounts,
		Networks:                  c.Networks,
		SelectedNetwork:           selectedNetwork,
		SelectedAccount:           selectedAccount,
		DefaultCurrency:           g.DefaultCurrency,
		TokenDecimals:             g.TokenDecimals,
		FeeRefreshIntervalSeconds: g.FeeRefreshIntervalSeconds,
		SimulationURL:             g.SimulationURL,
		SimulationEnabled:         g.SimulationEnabled,
		BytecodeCacheTTLSeconds:   g.BytecodeCacheTTLSeconds,
		LogLevel:                  g.LogLevel,
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	// Keep a timestamped copy of the file being replaced
	if _, err := os.Stat(path); err == nil {
		backupPath := fmt.Sprintf("%s.%s.bak", path, time.Now().Format("20060102-150405"))
		input, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read existing config for backup: %w", err)
		}
		if err := os.WriteFile(backupPath, input, 0600); err != nil {
			return fmt.Errorf("failed to write backup config: %w", err)
		}
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func RestoreLastBackup(configPath string) error {
	matches, err := filepath.Glob(configPath + ".*.bak")
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return fmt.Errorf("no backup files found")
	}
	sort.Strings(matches)
	lastBackup := matches[len(matches)-1]

	data, err := os.ReadFile(lastBackup)
	if err != nil {
		return err
	}
	return os.WriteFile(configPath, data, 0600)
}
