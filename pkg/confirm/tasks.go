package confirm

import (
	"context"
	"strings"

	"txconfirm/pkg/amount"
	"txconfirm/pkg/fees"
	"txconfirm/pkg/models"
	"txconfirm/pkg/simulation"

	gocache "github.com/patrickmn/go-cache"
)

// taskKey identifies the item, selection generation and raw data a lookup
// was issued for.
type taskKey struct {
	id   string
	gen  uint64
	data uint64
}

type task func(ctx context.Context)

func (o *Orchestrator) launch(tasks []task) {
	for _, t := range tasks {
		o.wg.Add(1)
		go func(t task) {
			defer o.wg.Done()
			t(o.ctx)
		}(t)
	}
}

// waitIdle blocks until every launched lookup has been applied or dropped.
func (o *Orchestrator) waitIdle() {
	o.wg.Wait()
}

// activateLocked starts the lookups the current item is still missing and
// its fee engine.
func (o *Orchestrator) activateLocked() []task {
	it, id := o.currentLocked()
	if it == nil || it.state.IsTerminal() {
		return nil
	}
	key := taskKey{id: id, gen: o.gen, data: it.dataGen}
	need := func(kind string) bool {
		if it.issued == nil {
			it.issued = make(map[string]taskKey)
		}
		if it.issued[kind] == key {
			return false
		}
		it.issued[kind] = key
		return true
	}

	p := it.parsed
	raw := it.raw.Clone()
	var tasks []task

	if o.opts.SimulationEnabled && it.sim == nil && p.Kind != models.KindSignMessage && need("simulation") {
		tasks = append(tasks, func(ctx context.Context) { o.runSimulation(ctx, key, raw) })
	}

	probeRecipient := p.Kind == models.KindNativeTransfer || p.Kind == models.KindTokenTransfer
	if probeRecipient && p.CoinType == models.CoinETH && p.Recipient != "" && it.recipientContract == nil && need("bytecode") {
		chainID, address := p.ChainID, p.Recipient
		tasks = append(tasks, func(ctx context.Context) { o.probeRecipient(ctx, key, chainID, address) })
	}

	if p.Kind == models.KindApprove && it.currentAllowance.IsNaN() && need("allowance") {
		chainID, contract, owner, spender := p.ChainID, p.Recipient, p.Sender, p.Spender
		tasks = append(tasks, func(ctx context.Context) { o.fetchAllowance(ctx, key, chainID, contract, owner, spender) })
	}

	if p.CoinType == models.CoinSOL && it.solanaFee.IsNaN() && need("solana_fee") {
		chainID := p.ChainID
		tasks = append(tasks, func(ctx context.Context) { o.fetchSolanaFee(ctx, key, chainID) })
	}

	if it.fees == nil && raw.Data.Eth != nil {
		o.startFeesLocked(it, id)
	}
	return tasks
}

func (o *Orchestrator) startFeesLocked(it *item, id string) {
	engine := fees.NewEngine(o.backend, it.parsed, it.network, func(s fees.Snapshot) {
		o.notify(Event{Type: EventFeeUpdated, ID: id, Data: s})
	})
	if it.feeChoice != nil {
		engine.Restore(*it.feeChoice)
	}
	ctx, cancel := context.WithCancel(o.ctx)
	it.fees = engine
	it.feeCancel = cancel
	go engine.Run(ctx, o.opts.FeeRefreshInterval)
}

// apply runs fn on the item key was issued for, unless that item is no
// longer current or its data has changed since.
func (o *Orchestrator) apply(key taskKey, what string, fn func(it *item) []Event) {
	o.mu.Lock()
	it, id := o.currentLocked()
	if it == nil || id != key.id || o.gen != key.gen || it.dataGen != key.data || it.state.IsTerminal() {
		o.mu.Unlock()
		o.log.Debug("Dropping stale result", "task", what, "id", key.id)
		return
	}
	events := fn(it)
	o.mu.Unlock()
	o.notify(events...)
}

func (o *Orchestrator) runSimulation(ctx context.Context, key taskKey, raw models.PendingTransaction) {
	res, err := o.backend.SimulateTransaction(ctx, raw)
	if err != nil {
		o.log.Warn("Simulation failed", "id", key.id, "err", err)
	}
	o.apply(key, "simulation", func(it *item) []Event {
		if err != nil {
			it.simErr = err
			return []Event{{Type: EventSimulationUpdated, ID: key.id, Data: err.Error()}}
		}
		c := simulation.Classify(res)
		it.sim, it.simErr = c, nil
		events := []Event{{Type: EventSimulationUpdated, ID: key.id, Data: c}}
		if c.HasCriticalWarning && (it.state == Reviewing || it.state.IsEditing()) {
			it.state = CriticalWarningGate
			it.acked = false
			it.editGen++
			events = append(events, Event{Type: EventStateChanged, ID: key.id, Data: CriticalWarningGate})
		}
		return events
	})
}

func (o *Orchestrator) probeRecipient(ctx context.Context, key taskKey, chainID, address string) {
	isContract, err := o.isContract(ctx, models.CoinETH, chainID, address)
	if err != nil {
		o.log.Debug("Bytecode probe failed", "address", address, "err", err)
		return
	}
	o.apply(key, "bytecode", func(it *item) []Event {
		it.recipientContract = &isContract
		return []Event{{Type: EventTransactionUpdated, ID: key.id}}
	})
}

// isContract memoises bytecode probes per (chain, address) for the
// orchestrator's lifetime, collapsing concurrent probes for the same key.
func (o *Orchestrator) isContract(ctx context.Context, coin models.CoinType, chainID, address string) (bool, error) {
	cacheKey := chainKey(chainID, coin) + "|" + strings.ToLower(address)
	if v, ok := o.bytecode.Get(cacheKey); ok {
		return v.(bool), nil
	}
	v, err, _ := o.probes.Do(cacheKey, func() (interface{}, error) {
		code, err := o.backend.GetAddressByteCode(ctx, address, coin, chainID)
		if err != nil {
			return false, err
		}
		isContract := code != "" && code != "0x"
		o.bytecode.Set(cacheKey, isContract, gocache.DefaultExpiration)
		return isContract, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (o *Orchestrator) fetchAllowance(ctx context.Context, key taskKey, chainID, contract, owner, spender string) {
	hex, err := o.backend.GetERC20Allowance(ctx, chainID, contract, owner, spender)
	if err != nil {
		o.log.Debug("Allowance lookup failed", "contract", contract, "err", err)
		return
	}
	o.apply(key, "allowance", func(it *item) []Event {
		it.currentAllowance = amount.New(hex)
		return []Event{{Type: EventTransactionUpdated, ID: key.id}}
	})
}

func (o *Orchestrator) fetchSolanaFee(ctx context.Context, key taskKey, chainID string) {
	fee, err := o.backend.GetSolanaEstimatedFee(ctx, chainID, key.id)
	if err != nil {
		o.log.Debug("Solana fee lookup failed", "id", key.id, "err", err)
		return
	}
	o.apply(key, "solana_fee", func(it *item) []Event {
		it.solanaFee = fee
		o.reparse(it)
		return []Event{{Type: EventTransactionUpdated, ID: key.id}}
	})
}
