package confirm

import (
	"context"
	"sort"
	"strings"
	"sync"

	"txconfirm/pkg/models"

	"golang.org/x/sync/errgroup"
)

// syncData is the supporting data loaded for a batch of pending transactions.
type syncData struct {
	networks map[string]models.NetworkInfo
	prices   models.PriceRegistry
	balances map[string]models.Balances
}

// loadContext resolves networks, then fetches prices and sender balances
// concurrently. Lookup failures degrade to unknown values.
func (o *Orchestrator) loadContext(ctx context.Context, txs []models.PendingTransaction) syncData {
	data := syncData{
		networks: make(map[string]models.NetworkInfo),
		balances: make(map[string]models.Balances),
	}

	o.mu.Lock()
	for k, n := range o.networks {
		data.networks[k] = n
	}
	o.mu.Unlock()

	type chainReq struct {
		chainID string
		coin    models.CoinType
	}
	missing := make(map[string]chainReq)
	for _, raw := range txs {
		key := chainKey(raw.ChainID, raw.CoinType)
		if _, ok := data.networks[key]; ok {
			continue
		}
		if raw.ChainID == "" {
			data.networks[key] = o.selection.ActiveNetwork()
			continue
		}
		missing[key] = chainReq{chainID: raw.ChainID, coin: raw.CoinType}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for key, req := range missing {
		g.Go(func() error {
			n, err := o.backend.GetNetwork(gctx, req.chainID, req.coin)
			if err != nil {
				o.log.Warn("Network lookup failed", "chain", req.chainID, "coin", req.coin, "err", err)
				n = o.fallbackNetwork(req.chainID, req.coin)
			} else {
				o.mu.Lock()
				o.networks[key] = n
				o.mu.Unlock()
			}
			mu.Lock()
			data.networks[key] = n
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	tokens := o.selection.FullTokens()
	priceIDs := make(map[string]bool)
	type balanceReq struct {
		address string
		network models.NetworkInfo
	}
	balanceReqs := make(map[string]balanceReq)
	for _, raw := range txs {
		key := chainKey(raw.ChainID, raw.CoinType)
		n := data.networks[key]
		priceIDs[n.CoinGeckoID] = true
		for _, t := range tokensOn(tokens, n.ChainID) {
			priceIDs[t.CoinGeckoID] = true
		}
		if raw.FromAddress != "" {
			balanceReqs[key+"|"+strings.ToLower(raw.FromAddress)] = balanceReq{address: raw.FromAddress, network: n}
		}
	}
	ids := make([]string, 0, len(priceIDs))
	for id := range priceIDs {
		if id != "" && id != models.PlaceholderCoinGeckoID {
			ids = append(ids, strings.ToLower(id))
		}
	}
	sort.Strings(ids)

	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(8)
	if len(ids) > 0 {
		g.Go(func() error {
			prices, err := o.backend.GetTokenSpotPrices(gctx, ids, o.selection.DefaultCurrency())
			if err != nil {
				o.log.Warn("Price lookup failed", "ids", len(ids), "err", err)
				return nil
			}
			mu.Lock()
			data.prices = prices
			mu.Unlock()
			return nil
		})
	}
	for key, req := range balanceReqs {
		g.Go(func() error {
			bal, err := o.backend.GetAccountBalances(gctx, req.address, req.network, fungible(tokensOn(tokens, req.network.ChainID)))
			if err != nil {
				o.log.Warn("Balance lookup failed", "address", req.address, "chain", req.network.ChainID, "err", err)
				return nil
			}
			mu.Lock()
			data.balances[key] = bal
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return data
}

func (o *Orchestrator) fallbackNetwork(chainID string, coin models.CoinType) models.NetworkInfo {
	active := o.selection.ActiveNetwork()
	if strings.EqualFold(active.ChainID, chainID) && active.CoinType == coin {
		return active
	}
	return models.NetworkInfo{ChainID: chainID, CoinType: coin}
}

func tokensOn(tokens []models.Token, chainID string) []models.Token {
	var out []models.Token
	for _, t := range tokens {
		if strings.EqualFold(t.ChainID, chainID) {
			out = append(out, t)
		}
	}
	return out
}

func fungible(tokens []models.Token) []models.Token {
	var out []models.Token
	for _, t := range tokens {
		if !t.IsNFT() {
			out = append(out, t)
		}
	}
	return out
}
