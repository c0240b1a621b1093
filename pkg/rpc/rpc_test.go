package rpc

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"txconfirm/pkg/amount"
	"txconfirm/pkg/models"
	"txconfirm/pkg/simulation"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// newRPCServer answers JSON-RPC calls with whatever handle returns for the method.
func newRPCServer(t *testing.T, handle func(req rpcRequest) interface{}) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  handle(req),
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server
}

func failingServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)
	return server
}

func blockHeader(baseFee string) map[string]interface{} {
	h := map[string]interface{}{
		"number":           "0x1000",
		"hash":             "0x0000000000000000000000000000000000000000000000000000000000000001",
		"parentHash":       "0x0000000000000000000000000000000000000000000000000000000000000002",
		"sha3Uncles":       "0x1dcc4de8dec75d7aab85b567b6ccd41ad312451b948a7413f0a142fd40d49347",
		"timestamp":        "0x5f5e1000",
		"miner":            "0x0000000000000000000000000000000000000000",
		"gasLimit":         "0x1c9c380",
		"gasUsed":          "0x0",
		"difficulty":       "0x0",
		"extraData":        "0x",
		"mixHash":          "0x0000000000000000000000000000000000000000000000000000000000000000",
		"nonce":            "0x0000000000000000",
		"stateRoot":        "0x0000000000000000000000000000000000000000000000000000000000000000",
		"receiptsRoot":     "0x0000000000000000000000000000000000000000000000000000000000000000",
		"transactionsRoot": "0x0000000000000000000000000000000000000000000000000000000000000001",
		"logsBloom":        "0x" + strings.Repeat("00", 256),
	}
	if baseFee != "" {
		h["baseFeePerGas"] = baseFee
	}
	return h
}

// callData extracts the calldata of an eth_call / eth_estimateGas request.
func callData(t *testing.T, req rpcRequest) string {
	t.Helper()
	var arg map[string]interface{}
	require.NoError(t, json.Unmarshal(req.Params[0], &arg))
	if v, ok := arg["input"].(string); ok {
		return v
	}
	v, _ := arg["data"].(string)
	return v
}

func TestFetchBalances(t *testing.T) {
	usdc := "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
	server := newRPCServer(t, func(req rpcRequest) interface{} {
		switch req.Method {
		case "eth_getBalance":
			return "0x22B1C8C1227A0000"
		case "eth_call":
			return "0x000000000000000000000000000000000000000000000000000000001dcd6500"
		}
		return "0x0"
	})

	tokens := []models.Token{{ContractAddress: usdc, Symbol: "USDC", Decimals: 6}}
	bal, err := FetchBalances(context.Background(), []string{server.URL}, "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B", tokens)
	require.NoError(t, err)

	native, ok := bal.Get(models.NativeBalanceKey)
	require.True(t, ok)
	assert.True(t, native.Eq(amount.New("2500000000000000000")), native.String())

	token, ok := bal.Get(usdc)
	require.True(t, ok)
	assert.True(t, token.Eq(amount.New("500000000")), token.String())
}

func TestFetchBalances_FallsBackToNextRPC(t *testing.T) {
	bad := failingServer(t)
	good := newRPCServer(t, func(req rpcRequest) interface{} {
		return "0xde0b6b3a7640000"
	})

	bal, err := FetchBalances(context.Background(), []string{bad.URL, good.URL}, "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B", nil)
	require.NoError(t, err)
	native, _ := bal.Get(models.NativeBalanceKey)
	assert.True(t, native.Eq(amount.New("1000000000000000000")))
}

func TestFetchBalances_AllFail(t *testing.T) {
	bad := failingServer(t)
	_, err := FetchBalances(context.Background(), []string{bad.URL}, "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B", nil)
	assert.Error(t, err)

	_, err = FetchBalances(context.Background(), nil, "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B", nil)
	assert.ErrorIs(t, err, ErrNoRPC)
}

func TestFetchByteCode(t *testing.T) {
	tests := []struct {
		name   string
		result string
		want   string
	}{
		{"contract", "0x6080604052", "0x6080604052"},
		{"externally owned", "0x", "0x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newRPCServer(t, func(req rpcRequest) interface{} {
				assert.Equal(t, "eth_getCode", req.Method)
				return tt.result
			})
			code, err := FetchByteCode(context.Background(), []string{server.URL}, "0x1111111111111111111111111111111111111111")
			require.NoError(t, err)
			assert.Equal(t, tt.want, code)
		})
	}
}

func TestFetchERC20Allowance(t *testing.T) {
	owner := "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"
	spender := "0x1111111111111111111111111111111111111111"
	var data string
	server := newRPCServer(t, func(req rpcRequest) interface{} {
		data = callData(t, req)
		return "0x0000000000000000000000000000000000000000000000000000000000989680"
	})

	got, err := FetchERC20Allowance(context.Background(), []string{server.URL}, "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", owner, spender)
	require.NoError(t, err)
	assert.Equal(t, "0x989680", got)

	want := "0xdd62ed3e" +
		"000000000000000000000000" + strings.ToLower(owner[2:]) +
		"000000000000000000000000" + strings.ToLower(spender[2:])
	assert.Equal(t, want, strings.ToLower(data))
}

func TestFetchERC20Allowance_EmptyResult(t *testing.T) {
	server := newRPCServer(t, func(req rpcRequest) interface{} {
		return "0x"
	})
	_, err := FetchERC20Allowance(context.Background(), []string{server.URL}, "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		"0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B", "0x1111111111111111111111111111111111111111")
	assert.Error(t, err)
}

func TestFetchFeeEstimate_EIP1559(t *testing.T) {
	server := newRPCServer(t, func(req rpcRequest) interface{} {
		switch req.Method {
		case "eth_gasPrice":
			return "0x4a817c800"
		case "eth_getBlockByNumber":
			return blockHeader("0x3b9aca00")
		case "eth_feeHistory":
			return map[string]interface{}{
				"oldestBlock":   "0xfff",
				"reward":        [][]string{{"0x1", "0x2", "0x3"}, {"0x3", "0x4", "0x5"}},
				"baseFeePerGas": []string{"0x3b9aca00", "0x77359400", "0x3b9aca00"},
				"gasUsedRatio":  []float64{0.5, 0.5},
			}
		case "eth_estimateGas":
			return "0x5208"
		}
		return "0x0"
	})

	to := common.HexToAddress("0x1111111111111111111111111111111111111111")
	est, err := FetchFeeEstimate(context.Background(), []string{server.URL}, ethereum.CallMsg{To: &to}, amount.NaN(), true)
	require.NoError(t, err)

	assert.True(t, est.BaseFee.Eq(amount.New("1000000000")), est.BaseFee.String())
	assert.True(t, est.Slow.Eq(amount.New("2")), est.Slow.String())
	assert.True(t, est.Average.Eq(amount.New("3")), est.Average.String())
	assert.True(t, est.Fast.Eq(amount.New("4")), est.Fast.String())
	assert.True(t, est.GasPrice.Eq(amount.New("20000000000")))
	assert.True(t, est.GasLimit.Eq(amount.New("21000")))
	assert.Equal(t, []float64{1, 2, 1}, est.BaseFeeHistory)
	assert.False(t, est.EstimatedAt.IsZero())
}

func TestFetchFeeEstimate_Legacy(t *testing.T) {
	var estimateCalls int32
	server := newRPCServer(t, func(req rpcRequest) interface{} {
		switch req.Method {
		case "eth_gasPrice":
			return "0x4a817c800"
		case "eth_estimateGas":
			atomic.AddInt32(&estimateCalls, 1)
			return "0x5208"
		}
		t.Errorf("unexpected method %s", req.Method)
		return nil
	})

	est, err := FetchFeeEstimate(context.Background(), []string{server.URL}, ethereum.CallMsg{}, amount.New("50000"), false)
	require.NoError(t, err)
	assert.True(t, est.GasPrice.Eq(amount.New("20000000000")))
	assert.True(t, est.Average.Eq(est.GasPrice))
	assert.True(t, est.BaseFee.IsZero())
	assert.True(t, est.GasLimit.Eq(amount.New("50000")))
	assert.Equal(t, int32(0), atomic.LoadInt32(&estimateCalls))
}

func TestFetchSolanaFee(t *testing.T) {
	var message string
	server := newRPCServer(t, func(req rpcRequest) interface{} {
		assert.Equal(t, "getFeeForMessage", req.Method)
		_ = json.Unmarshal(req.Params[0], &message)
		return map[string]interface{}{
			"context": map[string]interface{}{"slot": 1},
			"value":   5000,
		}
	})

	fee, err := FetchSolanaFee(context.Background(), []string{server.URL}, "AQABAg==")
	require.NoError(t, err)
	assert.True(t, fee.Eq(amount.FromUint64(5000)))
	assert.Equal(t, "AQABAg==", message)
}

func TestFetchSolanaFee_NoValue(t *testing.T) {
	server := newRPCServer(t, func(req rpcRequest) interface{} {
		return map[string]interface{}{
			"context": map[string]interface{}{"slot": 1},
			"value":   nil,
		}
	})
	fee, err := FetchSolanaFee(context.Background(), []string{server.URL}, "AQABAg==")
	assert.Error(t, err)
	assert.True(t, fee.IsNaN())
}

func TestFetchSpotPrices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/simple/price", r.URL.Path)
		assert.Equal(t, "ethereum,usd-coin", r.URL.Query().Get("ids"))
		assert.Equal(t, "eur", r.URL.Query().Get("vs_currencies"))
		_, _ = w.Write([]byte(`{"ethereum":{"eur":2500.50},"usd-coin":{"eur":0.92}}`))
	}))
	defer server.Close()

	originalURL := CoinGeckoBaseURL
	CoinGeckoBaseURL = server.URL
	defer func() { CoinGeckoBaseURL = originalURL }()

	prices, err := FetchSpotPrices(context.Background(), []string{"ethereum", "usd-coin"}, "EUR")
	require.NoError(t, err)
	assert.True(t, prices.Lookup("ethereum").Eq(amount.New("2500.5")))
	assert.True(t, prices.Lookup("USD-Coin").Eq(amount.New("0.92")))
	assert.True(t, prices.Lookup("bitcoin").IsNaN())
}

func TestFetchSpotPrices_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	originalURL := CoinGeckoBaseURL
	CoinGeckoBaseURL = server.URL
	defer func() { CoinGeckoBaseURL = originalURL }()

	_, err := FetchSpotPrices(context.Background(), []string{"ethereum"}, "usd")
	assert.Error(t, err)

	prices, err := FetchSpotPrices(context.Background(), nil, "usd")
	require.NoError(t, err)
	assert.Empty(t, prices)
}

func TestSimulate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body struct {
			Transaction models.PendingTransaction `json:"transaction"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "tx-1", body.Transaction.ID)
		_, _ = w.Write([]byte(`{
			"changes": [{"kind": "native_transfer", "direction": "out",
				"native_transfer": {"from": "0xa", "to": "0xb", "amount": "1000", "symbol": "ETH"}}],
			"warnings": [{"severity": "CRITICAL", "kind": "drainer", "message": "Known drainer"}]
		}`))
	}))
	defer server.Close()

	res, err := Simulate(context.Background(), server.URL, models.PendingTransaction{ID: "tx-1"})
	require.NoError(t, err)
	require.Len(t, res.Changes, 1)
	require.NotNil(t, res.Changes[0].NativeTransfer)
	assert.True(t, res.Changes[0].NativeTransfer.Amount.Eq(amount.New("1000")))
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, simulation.SeverityCritical, res.Warnings[0].Severity)
}

func TestSimulate_Errors(t *testing.T) {
	_, err := Simulate(context.Background(), "", models.PendingTransaction{})
	assert.Error(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()
	_, err = Simulate(context.Background(), server.URL, models.PendingTransaction{})
	assert.Error(t, err)
}

func TestFetchChainID(t *testing.T) {
	server := newRPCServer(t, func(req rpcRequest) interface{} {
		return "0x89"
	})
	id, err := FetchChainID(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, 0, id.Cmp(big.NewInt(137)))
}

func TestFetchRPCLatency(t *testing.T) {
	server := newRPCServer(t, func(req rpcRequest) interface{} {
		return blockHeader("")
	})
	d, err := FetchRPCLatency(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Greater(t, int64(d), int64(0))
}

func TestFetchTokenMetadata(t *testing.T) {
	server := newRPCServer(t, func(req rpcRequest) interface{} {
		switch strings.ToLower(callData(t, req)) {
		case "0x95d89b41":
			// ABI encoded string "USDC"
			return "0x" +
				"0000000000000000000000000000000000000000000000000000000000000020" +
				"0000000000000000000000000000000000000000000000000000000000000004" +
				"5553444300000000000000000000000000000000000000000000000000000000"
		case "0x313ce567":
			return "0x0000000000000000000000000000000000000000000000000000000000000006"
		}
		return "0x"
	})

	symbol, decimals, err := FetchTokenMetadata(context.Background(), []string{server.URL}, "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	require.NoError(t, err)
	assert.Equal(t, "USDC", symbol)
	assert.Equal(t, 6, decimals)
}

func TestDecodeSymbol(t *testing.T) {
	b32 := make([]byte, 32)
	copy(b32, "MKR")
	assert.Equal(t, "MKR", decodeSymbol(b32))
	assert.Equal(t, "", decodeSymbol(nil))
	assert.Equal(t, "", decodeSymbol([]byte{1, 2, 3}))
}
