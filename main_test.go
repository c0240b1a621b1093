package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"txconfirm/pkg/config"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// symbolUSDC is the ABI string encoding of "USDC".
const symbolUSDC = "0x" +
	"0000000000000000000000000000000000000000000000000000000000000020" +
	"0000000000000000000000000000000000000000000000000000000000000004" +
	"5553444300000000000000000000000000000000000000000000000000000000"

func newNode(t *testing.T, chainID string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage   `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		var result interface{}
		switch req.Method {
		case "eth_chainId":
			result = chainID
		case "eth_call":
			var arg map[string]interface{}
			_ = json.Unmarshal(req.Params[0], &arg)
			data, _ := arg["input"].(string)
			if data == "" {
				data, _ = arg["data"].(string)
			}
			if strings.HasPrefix(data, "0x95d89b41") {
				result = symbolUSDC
			} else {
				result = "0x0000000000000000000000000000000000000000000000000000000000000006"
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  result,
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func testConfig(rpcURLs ...string) config.Config {
	return config.Config{
		Networks: []config.NetworkConfig{{
			Name:    "Polygon",
			Symbol:  "POL",
			RPCURLs: rpcURLs,
			Tokens: []config.TokenConfig{
				{Symbol: "USDC", Address: "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359", Decimals: 6},
			},
		}},
		Global: config.DefaultGlobalConfig(),
	}
}

func TestCheckConfigUpdatesChainID(t *testing.T) {
	node := newNode(t, "0x89")
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := testConfig(node.URL)

	report := checkConfig(context.Background(), &cfg, path, false, io.Discard)
	require.True(t, report.ValidStructure)
	require.Len(t, report.Chains, 1)

	chain := report.Chains[0]
	assert.True(t, chain.ChainIDUpdated)
	assert.Equal(t, "0x89", chain.ObservedChainID)
	require.Len(t, chain.RPCs, 1)
	assert.Equal(t, "ok", chain.RPCs[0].Status)
	require.Len(t, chain.Tokens, 1)
	assert.Equal(t, "ok", chain.Tokens[0].Status)
	assert.Equal(t, 6, chain.Tokens[0].OnChainDecimals)

	assert.True(t, report.ConfigUpdated)
	assert.Empty(t, report.SaveError)

	saved, err := config.LoadConfigFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "0x89", saved.Networks[0].ChainID)
}

func TestCheckConfigDryRun(t *testing.T) {
	node := newNode(t, "0x89")
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := testConfig(node.URL)

	report := checkConfig(context.Background(), &cfg, path, true, io.Discard)
	assert.True(t, report.ConfigUpdated)
	assert.True(t, report.DryRun)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "dry run must not write the config")
}

func TestCheckConfigMismatchAndInconsistency(t *testing.T) {
	polygon := newNode(t, "0x89")
	mainnet := newNode(t, "0x1")
	cfg := testConfig(polygon.URL, mainnet.URL)
	cfg.Networks[0].ChainID = "137"
	cfg.Networks[0].Tokens[0].Decimals = 18

	report := checkConfig(context.Background(), &cfg, filepath.Join(t.TempDir(), "c.json"), false, io.Discard)
	chain := report.Chains[0]
	assert.False(t, chain.ChainIDUpdated)
	assert.True(t, chain.Inconsistent)
	assert.Equal(t, []string{"Polygon"}, report.InconsistentChains)
	assert.Empty(t, chain.RPCs[0].Error)
	assert.Contains(t, chain.RPCs[1].Error, "Mismatch")
	assert.Equal(t, "mismatch", chain.Tokens[0].Status)
	assert.False(t, report.ConfigUpdated)
}

func TestCheckConfigSkipsNonEVM(t *testing.T) {
	cfg := config.Config{
		Networks: []config.NetworkConfig{{Name: "Solana", Coin: "sol", Symbol: "SOL", RPCURLs: []string{"http://127.0.0.1:1"}}},
		Global:   config.DefaultGlobalConfig(),
	}
	report := checkConfig(context.Background(), &cfg, "unused.json", true, io.Discard)
	require.Len(t, report.Chains, 1)
	assert.True(t, report.Chains[0].Skipped)
	assert.Empty(t, report.Chains[0].RPCs)
}

func TestCheckConfigInvalidStructure(t *testing.T) {
	cfg := config.Config{Global: config.DefaultGlobalConfig()}
	report := checkConfig(context.Background(), &cfg, "unused.json", false, io.Discard)
	assert.False(t, report.ValidStructure)
	require.Len(t, report.StructureErrors, 1)
	assert.Contains(t, report.StructureErrors[0], "at least one network")
}

func TestSetupLoggingToFile(t *testing.T) {
	dir := t.TempDir()
	t.Cleanup(func() { log.SetDefault(log.NewLogger(log.DiscardHandler())) })
	closeLog, err := setupLogging("debug", false, filepath.Join(dir, "config.json"))
	require.NoError(t, err)
	closeLog()

	_, err = os.Stat(filepath.Join(dir, "txconfirm.log"))
	assert.NoError(t, err)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
		err  bool
	}{
		{"trace", log.LevelTrace, false},
		{"DEBUG", log.LevelDebug, false},
		{"", log.LevelInfo, false},
		{"warning", log.LevelWarn, false},
		{"error", log.LevelError, false},
		{"crit", log.LevelCrit, false},
		{"loud", log.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := parseLevel(tt.in)
		if tt.err {
			assert.Error(t, err, "level %q", tt.in)
		} else {
			assert.NoError(t, err, "level %q", tt.in)
		}
		assert.Equal(t, tt.want, got, "level %q", tt.in)
	}
}
