package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"txconfirm/pkg/amount"
	"txconfirm/pkg/fees"
	"txconfirm/pkg/models"
	"txconfirm/pkg/simulation"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	solrpc "github.com/gagliardetto/solana-go/rpc"
)

var CoinGeckoBaseURL = "https://api.coingecko.com/api/v3"
var QueryTimeout = 10 * time.Second

// FeeHistoryBlocks is the number of recent blocks sampled for tier suggestions.
var FeeHistoryBlocks uint64 = 20

// FeePercentiles are the reward percentiles behind the slow, average and fast tiers.
var FeePercentiles = []float64{10, 50, 90}

var ErrNoRPC = errors.New("no RPC URLs configured")

var (
	balanceOfSelector = []byte{0x70, 0xa0, 0x82, 0x31}
	allowanceSelector = []byte{0xdd, 0x62, 0xed, 0x3e}
	symbolSelector    = []byte{0x95, 0xd8, 0x9b, 0x41}
	decimalsSelector  = []byte{0x31, 0x3c, 0xe5, 0x67}
)

// withClient runs fn against each RPC URL in turn until one succeeds and
// returns the URLs that failed along the way.
func withClient(ctx context.Context, rpcURLs []string, fn func(ctx context.Context, client *ethclient.Client) error) ([]string, error) {
	if len(rpcURLs) == 0 {
		return nil, ErrNoRPC
	}
	var failed []string
	var lastErr error
	for _, rpcURL := range rpcURLs {
		cctx, cancel := context.WithTimeout(ctx, QueryTimeout)
		client, err := ethclient.DialContext(cctx, rpcURL)
		if err != nil {
			cancel()
			failed = append(failed, rpcURL)
			lastErr = err
			continue
		}
		err = fn(cctx, client)
		client.Close()
		cancel()
		if err == nil {
			return failed, nil
		}
		if ctx.Err() != nil {
			return failed, ctx.Err()
		}
		log.Debug("RPC query failed", "url", rpcURL, "err", err)
		failed = append(failed, rpcURL)
		lastErr = err
	}
	return failed, lastErr
}

// FetchChainID returns the chain id reported by a single RPC URL.
func FetchChainID(ctx context.Context, rpcURL string) (*big.Int, error) {
	var id *big.Int
	_, err := withClient(ctx, []string{rpcURL}, func(ctx context.Context, client *ethclient.Client) error {
		var err error
		id, err = client.ChainID(ctx)
		return err
	})
	return id, err
}

// FetchRPCLatency pings an RPC URL to measure latency.
func FetchRPCLatency(ctx context.Context, rpcURL string) (time.Duration, error) {
	start := time.Now()
	_, err := withClient(ctx, []string{rpcURL}, func(ctx context.Context, client *ethclient.Client) error {
		_, err := client.HeaderByNumber(ctx, nil)
		return err
	})
	if err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

// FetchBalances returns the native balance and the balance of each token for
// address, in base units keyed by lower-cased contract address.
func FetchBalances(ctx context.Context, rpcURLs []string, address string, tokens []models.Token) (models.Balances, error) {
	account := common.HexToAddress(address)
	var out models.Balances
	_, err := withClient(ctx, rpcURLs, func(ctx context.Context, client *ethclient.Client) error {
		bal := make(models.Balances, len(tokens)+1)
		native, err := client.BalanceAt(ctx, account, nil)
		if err != nil {
			return err
		}
		bal[models.NativeBalanceKey] = amount.FromBig(native)
		for _, token := range tokens {
			v, err := fetchTokenBalance(ctx, client, token.ContractAddress, account)
			if err != nil {
				return fmt.Errorf("%s balance: %w", token.Symbol, err)
			}
			bal[strings.ToLower(token.ContractAddress)] = amount.FromBig(v)
		}
		out = bal
		return nil
	})
	return out, err
}

func fetchTokenBalance(ctx context.Context, client *ethclient.Client, contract string, account common.Address) (*big.Int, error) {
	data := make([]byte, 4+32)
	copy(data[0:4], balanceOfSelector)
	copy(data[4+12:], account.Bytes())
	tokenAddr := common.HexToAddress(contract)
	result, err := client.CallContract(ctx, ethereum.CallMsg{To: &tokenAddr, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(result), nil
}

// FetchByteCode returns the deployed code at address as 0x-prefixed hex; "0x"
// for an externally owned account.
func FetchByteCode(ctx context.Context, rpcURLs []string, address string) (string, error) {
	var code []byte
	_, err := withClient(ctx, rpcURLs, func(ctx context.Context, client *ethclient.Client) error {
		var err error
		code, err = client.CodeAt(ctx, common.HexToAddress(address), nil)
		return err
	})
	if err != nil {
		return "", err
	}
	return hexutil.Encode(code), nil
}

// FetchERC20Allowance returns allowance(owner, spender) on contract as a hex quantity.
func FetchERC20Allowance(ctx context.Context, rpcURLs []string, contract, owner, spender string) (string, error) {
	data := make([]byte, 4+64)
	copy(data[0:4], allowanceSelector)
	copy(data[4+12:4+32], common.HexToAddress(owner).Bytes())
	copy(data[4+32+12:], common.HexToAddress(spender).Bytes())
	tokenAddr := common.HexToAddress(contract)

	var result []byte
	_, err := withClient(ctx, rpcURLs, func(ctx context.Context, client *ethclient.Client) error {
		var err error
		result, err = client.CallContract(ctx, ethereum.CallMsg{To: &tokenAddr, Data: data}, nil)
		if err == nil && len(result) == 0 {
			err = fmt.Errorf("empty allowance result from %s", contract)
		}
		return err
	})
	if err != nil {
		return "", err
	}
	return hexutil.EncodeBig(new(big.Int).SetBytes(result)), nil
}

// FetchTokenMetadata fetches the symbol and decimals for a token address.
func FetchTokenMetadata(ctx context.Context, rpcURLs []string, tokenAddress string) (string, int, error) {
	targetAddr := common.HexToAddress(tokenAddress)
	var symbol string
	var decimals int
	_, err := withClient(ctx, rpcURLs, func(ctx context.Context, client *ethclient.Client) error {
		resSymbol, err := client.CallContract(ctx, ethereum.CallMsg{To: &targetAddr, Data: symbolSelector}, nil)
		if err == nil {
			symbol = decodeSymbol(resSymbol)
		}
		resDecimals, err := client.CallContract(ctx, ethereum.CallMsg{To: &targetAddr, Data: decimalsSelector}, nil)
		if err != nil {
			return err
		}
		if len(resDecimals) == 0 {
			return fmt.Errorf("token %s has no decimals()", tokenAddress)
		}
		decimals = int(new(big.Int).SetBytes(resDecimals).Int64())
		return nil
	})
	return symbol, decimals, err
}

// decodeSymbol handles both bytes32 and ABI string encodings.
func decodeSymbol(res []byte) string {
	if len(res) == 32 {
		return string(bytes.TrimRight(res, "\x00"))
	}
	if len(res) >= 64 {
		length := new(big.Int).SetBytes(res[32:64]).Int64()
		if length > 0 && 64+int(length) <= len(res) {
			return string(res[64 : 64+length])
		}
	}
	return ""
}

// FetchFeeEstimate builds slow/average/fast suggestions from the latest base
// fee and recent priority fee percentiles. Legacy networks get the suggested
// gas price in every tier. The gas limit is estimated from call unless
// gasLimit is already known.
func FetchFeeEstimate(ctx context.Context, rpcURLs []string, call ethereum.CallMsg, gasLimit amount.Amount, eip1559 bool) (fees.FeeEstimate, error) {
	var est fees.FeeEstimate
	_, err := withClient(ctx, rpcURLs, func(ctx context.Context, client *ethclient.Client) error {
		e := fees.FeeEstimate{
			BaseFee:  amount.Zero(),
			GasLimit: gasLimit,
		}
		gasPrice, err := client.SuggestGasPrice(ctx)
		if err != nil {
			return err
		}
		e.GasPrice = amount.FromBig(gasPrice)
		e.Slow, e.Average, e.Fast = e.GasPrice, e.GasPrice, e.GasPrice

		if eip1559 {
			header, err := client.HeaderByNumber(ctx, nil)
			if err != nil {
				return err
			}
			if header.BaseFee != nil {
				e.BaseFee = amount.FromBig(header.BaseFee)
			}
			if err := fillTiers(ctx, client, &e); err != nil {
				return err
			}
		}

		if e.GasLimit.IsNaN() || e.GasLimit.IsZero() {
			limit, err := client.EstimateGas(ctx, call)
			if err != nil {
				log.Debug("Gas estimation failed", "err", err)
				e.GasLimit = amount.NaN()
			} else {
				e.GasLimit = amount.FromUint64(limit)
			}
		}
		e.EstimatedAt = time.Now()
		est = e
		return nil
	})
	return est, err
}

func fillTiers(ctx context.Context, client *ethclient.Client, e *fees.FeeEstimate) error {
	hist, err := client.FeeHistory(ctx, FeeHistoryBlocks, nil, FeePercentiles)
	if err != nil {
		return err
	}
	e.BaseFeeHistory = make([]float64, 0, len(hist.BaseFee))
	for _, b := range hist.BaseFee {
		if b == nil {
			continue
		}
		gwei, _ := new(big.Float).Quo(new(big.Float).SetInt(b), big.NewFloat(1e9)).Float64()
		e.BaseFeeHistory = append(e.BaseFeeHistory, gwei)
	}

	tiers := make([]amount.Amount, len(FeePercentiles))
	for i := range FeePercentiles {
		sum, n := new(big.Int), int64(0)
		for _, block := range hist.Reward {
			if i < len(block) && block[i] != nil {
				sum.Add(sum, block[i])
				n++
			}
		}
		if n == 0 {
			tiers[i] = amount.NaN()
			continue
		}
		tiers[i] = amount.FromBig(sum.Div(sum, big.NewInt(n)))
	}
	if tiers[0].IsNaN() || tiers[1].IsNaN() || tiers[2].IsNaN() {
		tip, err := client.SuggestGasTipCap(ctx)
		if err != nil {
			return err
		}
		t := amount.FromBig(tip)
		tiers = []amount.Amount{t, t, t}
	}
	e.Slow, e.Average, e.Fast = tiers[0], tiers[1], tiers[2]
	return nil
}

// FetchSolanaFee asks a Solana RPC for the fee of a base64 encoded message,
// in lamports.
func FetchSolanaFee(ctx context.Context, rpcURLs []string, message string) (amount.Amount, error) {
	if len(rpcURLs) == 0 {
		return amount.NaN(), ErrNoRPC
	}
	var lastErr error
	for _, rpcURL := range rpcURLs {
		cctx, cancel := context.WithTimeout(ctx, QueryTimeout)
		client := solrpc.New(rpcURL)
		res, err := client.GetFeeForMessage(cctx, message, solrpc.CommitmentConfirmed)
		_ = client.Close()
		cancel()
		if err != nil {
			lastErr = err
			continue
		}
		if res == nil || res.Value == nil {
			lastErr = fmt.Errorf("no fee for message from %s", rpcURL)
			continue
		}
		return amount.FromUint64(*res.Value), nil
	}
	return amount.NaN(), lastErr
}

// FetchSpotPrices fetches spot prices for CoinGecko ids in currency.
func FetchSpotPrices(ctx context.Context, ids []string, currency string) (models.PriceRegistry, error) {
	prices := make(models.PriceRegistry, len(ids))
	if len(ids) == 0 {
		return prices, nil
	}
	currency = strings.ToLower(currency)
	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", currency)

	ctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, CoinGeckoBaseURL+"/simple/price?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("price request failed: %s", resp.Status)
	}

	var result map[string]map[string]json.Number
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	for id, quotes := range result {
		if v, ok := quotes[currency]; ok {
			prices[strings.ToLower(id)] = amount.New(v.String())
		}
	}
	return prices, nil
}

type simulateRequest struct {
	Transaction models.PendingTransaction `json:"transaction"`
}

// Simulate posts tx to the simulation service at serviceURL.
func Simulate(ctx context.Context, serviceURL string, tx models.PendingTransaction) (simulation.Result, error) {
	if serviceURL == "" {
		return simulation.Result{}, errors.New("simulation service not configured")
	}
	body, err := json.Marshal(simulateRequest{Transaction: tx})
	if err != nil {
		return simulation.Result{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serviceURL, bytes.NewReader(body))
	if err != nil {
		return simulation.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return simulation.Result{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return simulation.Result{}, fmt.Errorf("simulation failed: %s", resp.Status)
	}
	var res simulation.Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return simulation.Result{}, err
	}
	return res, nil
}
