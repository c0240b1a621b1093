package main

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"strings"

	"txconfirm/pkg/config"
	"txconfirm/pkg/models"
	"txconfirm/pkg/rpc"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
)

// checkConfig probes every EVM network's RPC URLs and token contracts.
// Networks without a configured chain id get the observed one written back
// to path unless dryRun is set. Progress is written to out.
func checkConfig(ctx context.Context, cfg *config.Config, path string, dryRun bool, out io.Writer) models.TestReport {
	report := models.TestReport{
		ConfigPath:     path,
		ValidStructure: true,
		DryRun:         dryRun,
	}
	fmt.Fprintf(out, "Testing configuration at: %s\n", path)

	if err := cfg.Validate(); err != nil {
		report.ValidStructure = false
		report.StructureErrors = append(report.StructureErrors, err.Error())
		fmt.Fprintf(out, "Error: %v\n", err)
		return report
	}

	report.AccountCount = len(cfg.Accounts)
	report.NetworkCount = len(cfg.Networks)
	fmt.Fprintf(out, "Found %d accounts and %d networks.\n", report.AccountCount, report.NetworkCount)

	for i := range cfg.Networks {
		network := &cfg.Networks[i]
		cResult := checkNetwork(ctx, network, dryRun, out)
		if cResult.Inconsistent {
			report.InconsistentChains = append(report.InconsistentChains, network.Name)
		}
		if cResult.ChainIDUpdated {
			report.ConfigUpdated = true
		}
		report.Chains = append(report.Chains, cResult)
	}

	if len(report.InconsistentChains) > 0 {
		fmt.Fprintln(out, "\nWARNING: Inconsistent RPCs detected!")
		fmt.Fprintln(out, "The following networks have RPCs returning conflicting chain IDs:")
		for _, name := range report.InconsistentChains {
			fmt.Fprintf(out, " - %s\n", name)
		}
	}

	if report.ConfigUpdated {
		fmt.Fprintln(out, "\nUpdating configuration with fetched chain IDs...")
		if dryRun {
			fmt.Fprintln(out, "Dry run enabled: Configuration NOT saved.")
		} else if err := config.SaveConfig(*cfg, path); err != nil {
			report.SaveError = err.Error()
			fmt.Fprintf(out, "Failed to save config: %v\n", err)
		} else {
			fmt.Fprintln(out, "Configuration saved successfully.")
		}
	}
	return report
}

func checkNetwork(ctx context.Context, network *config.NetworkConfig, dryRun bool, out io.Writer) models.ChainResult {
	cResult := models.ChainResult{
		Name:          network.Name,
		Symbol:        network.Symbol,
		ConfigChainID: network.ChainID,
	}
	if network.CoinType() != models.CoinETH {
		cResult.Skipped = true
		fmt.Fprintf(out, "Skipping %s: no JSON-RPC chain id for %s networks\n", network.Name, network.CoinType())
		return cResult
	}
	fmt.Fprintf(out, "Testing network: %s (%s)\n", network.Name, network.Symbol)

	var expected *big.Int
	if network.ChainID != "" {
		v, ok := math.ParseBig256(network.ChainID)
		if !ok {
			fmt.Fprintf(out, "  Invalid configured chain id %q, ignoring\n", network.ChainID)
		}
		expected = v
	}

	var observed *big.Int
	for _, url := range network.RPCURLs {
		rResult := models.RPCResult{URL: url}
		fmt.Fprintf(out, "  RPC: %s ... ", url)

		latency, err := rpc.FetchRPCLatency(ctx, url)
		if err == nil {
			rResult.LatencyMS = latency.Milliseconds()
		}
		id, err := rpc.FetchChainID(ctx, url)
		if err != nil {
			rResult.Status = "error"
			rResult.Error = fmt.Sprintf("Failed to get ChainID: %v", err)
			fmt.Fprintf(out, "Failed to get ChainID: %v\n", err)
			cResult.RPCs = append(cResult.RPCs, rResult)
			continue
		}

		rResult.Status = "ok"
		rResult.ChainID = hexutil.EncodeBig(id)
		fmt.Fprintf(out, "OK (ChainID: %s, %dms)", id.String(), rResult.LatencyMS)
		if observed == nil {
			observed = id
			cResult.ObservedChainID = rResult.ChainID
		} else if observed.Cmp(id) != 0 {
			fmt.Fprintf(out, " - WARNING: ChainID mismatch with previous RPC (%s)", observed.String())
			cResult.Inconsistent = true
		}

		switch {
		case expected != nil && expected.Cmp(id) != 0:
			rResult.Error = fmt.Sprintf("Mismatch! Expected %s", expected.String())
			fmt.Fprintf(out, " - MISMATCH! Expected %s", expected.String())
		case expected != nil:
			fmt.Fprint(out, " - Verified")
		case network.ChainID == "":
			network.ChainID = rResult.ChainID
			cResult.ChainIDUpdated = true
			fmt.Fprint(out, " - UPDATED CONFIG")
			if dryRun {
				fmt.Fprint(out, " (DRY RUN)")
			}
		}
		fmt.Fprintln(out)
		cResult.RPCs = append(cResult.RPCs, rResult)
	}

	for _, token := range network.Tokens {
		if token.Standard != "" && !strings.EqualFold(token.Standard, "erc20") {
			continue
		}
		cResult.Tokens = append(cResult.Tokens, checkToken(ctx, network.RPCURLs, token, out))
	}
	return cResult
}

func checkToken(ctx context.Context, rpcURLs []string, token config.TokenConfig, out io.Writer) models.TokenResult {
	tResult := models.TokenResult{Symbol: token.Symbol, Address: token.Address}
	fmt.Fprintf(out, "  Token: %s (%s) ... ", token.Symbol, token.Address)

	symbol, decimals, err := rpc.FetchTokenMetadata(ctx, rpcURLs, token.Address)
	if err != nil {
		tResult.Status = "error"
		tResult.Error = err.Error()
		fmt.Fprintf(out, "Failed: %v\n", err)
		return tResult
	}
	tResult.OnChainSymbol = symbol
	tResult.OnChainDecimals = decimals
	if !strings.EqualFold(symbol, token.Symbol) || decimals != token.Decimals {
		tResult.Status = "mismatch"
		fmt.Fprintf(out, "MISMATCH! On-chain %s with %d decimals\n", symbol, decimals)
		return tResult
	}
	tResult.Status = "ok"
	fmt.Fprintln(out, "Verified")
	return tResult
}
