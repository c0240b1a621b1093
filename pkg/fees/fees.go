// Package fees estimates and periodically refreshes the fee of a pending
// transaction. An Engine belongs to a single pending item.
package fees

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"txconfirm/pkg/amount"
	"txconfirm/pkg/models"

	"github.com/ethereum/go-ethereum/log"
)

// MaxRefreshInterval bounds how long a settled estimate may go without a refresh.
const MaxRefreshInterval = 15 * time.Second

var (
	// ErrSuperseded is returned for an estimate that resolved after the
	// engine was cancelled or a newer estimate was started.
	ErrSuperseded  = errors.New("fee estimate superseded")
	ErrNoEstimate  = errors.New("no settled fee estimate")
	ErrInvalidTier = errors.New("unknown fee tier")
	ErrInvalidFee  = errors.New("custom fee must be a non-negative amount")
)

type State int

const (
	Idle State = iota
	Estimating
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Estimating:
		return "estimating"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type Tier string

const (
	TierSlow    Tier = "slow"
	TierAverage Tier = "average"
	TierFast    Tier = "fast"
	TierCustom  Tier = "custom"
)

// FeeEstimate is one settled fee suggestion. Prices are in wei (or the
// network's smallest unit) per gas.
type FeeEstimate struct {
	BaseFee amount.Amount `json:"base_fee"`
	Slow    amount.Amount `json:"slow"`
	Average amount.Amount `json:"average"`
	Fast    amount.Amount `json:"fast"`
	// GasPrice is the legacy price, used when the network has no fee market.
	GasPrice amount.Amount `json:"gas_price"`
	GasLimit amount.Amount `json:"gas_limit"`

	BaseFeeHistory []float64 `json:"base_fee_history,omitempty"`
	EstimatedAt    time.Time `json:"estimated_at"`
}

// PriorityFee returns the suggestion for tier.
func (f FeeEstimate) PriorityFee(t Tier) amount.Amount {
	switch t {
	case TierSlow:
		return f.Slow
	case TierAverage:
		return f.Average
	case TierFast:
		return f.Fast
	}
	return amount.NaN()
}

// Source fetches a fresh estimate from the network.
type Source interface {
	EstimateFee(ctx context.Context, tx models.ParsedTransaction, network models.NetworkInfo) (FeeEstimate, error)
}

// Snapshot is a consistent view of the engine.
type Snapshot struct {
	State    State         `json:"state"`
	Estimate *FeeEstimate  `json:"estimate,omitempty"`
	Err      error         `json:"-"`
	Selected Tier          `json:"selected"`
	Custom   amount.Amount `json:"custom"`
}

// Engine holds the latest settled estimate for one transaction and the
// user's tier or custom choice.
type Engine struct {
	source  Source
	tx      models.ParsedTransaction
	network models.NetworkInfo
	log     log.Logger

	mu        sync.RWMutex
	state     State
	latest    *FeeEstimate
	lastErr   error
	gen       uint64
	cancelled bool
	selected  Tier
	previous  Tier
	custom    amount.Amount
	onUpdate  func(Snapshot)

	stopOnce sync.Once
	stopChan chan struct{}
}

// NewEngine creates an idle engine. onUpdate, if set, is called after every
// settled change, outside the engine lock.
func NewEngine(source Source, tx models.ParsedTransaction, network models.NetworkInfo, onUpdate func(Snapshot)) *Engine {
	return &Engine{
		source:   source,
		tx:       tx,
		network:  network,
		log:      log.New("module", "fees", "tx", tx.ID),
		selected: TierAverage,
		previous: TierAverage,
		custom:   amount.NaN(),
		onUpdate: onUpdate,
		stopChan: make(chan struct{}),
	}
}

// Estimate fetches a new estimate. The previous settled estimate stays
// visible until this one settles.
func (e *Engine) Estimate(ctx context.Context) (FeeEstimate, error) {
	e.mu.Lock()
	if e.cancelled {
		e.mu.Unlock()
		return FeeEstimate{}, ErrSuperseded
	}
	e.gen++
	gen := e.gen
	e.state = Estimating
	e.mu.Unlock()

	est, err := e.source.EstimateFee(ctx, e.tx, e.network)

	e.mu.Lock()
	if e.cancelled || gen != e.gen {
		e.mu.Unlock()
		e.log.Debug("Dropping superseded fee estimate", "gen", gen)
		return FeeEstimate{}, ErrSuperseded
	}
	if err != nil {
		e.state = Failed
		e.lastErr = err
	} else {
		if est.EstimatedAt.IsZero() {
			est.EstimatedAt = time.Now()
		}
		e.state = Ready
		e.lastErr = nil
		e.latest = &est
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()

	if err != nil {
		e.log.Warn("Fee estimation failed", "err", err)
	}
	e.emit(snap)
	return est, err
}

// Refresh re-estimates unless an estimate is already in flight.
func (e *Engine) Refresh(ctx context.Context) error {
	e.mu.RLock()
	busy := e.state == Estimating
	e.mu.RUnlock()
	if busy {
		return nil
	}
	_, err := e.Estimate(ctx)
	return err
}

// Run estimates immediately and then every interval until ctx is done or the
// engine is cancelled. The interval is capped at MaxRefreshInterval.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 || interval > MaxRefreshInterval {
		interval = MaxRefreshInterval
	}
	_ = e.Refresh(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = e.Refresh(ctx)
		case <-e.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Cancel stops Run and marks any in-flight estimate as stale.
func (e *Engine) Cancel() {
	e.mu.Lock()
	e.cancelled = true
	e.gen++
	e.mu.Unlock()
	e.stopOnce.Do(func() { close(e.stopChan) })
}

// Latest returns the most recent settled estimate.
func (e *Engine) Latest() (FeeEstimate, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.latest == nil {
		return FeeEstimate{}, false
	}
	return *e.latest, true
}

func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshotLocked()
}

// Select picks one of the suggested tiers. Selecting TierCustom requires a
// custom value to be set.
func (e *Engine) Select(t Tier) error {
	e.mu.Lock()
	switch t {
	case TierSlow, TierAverage, TierFast:
		e.selected = t
		e.previous = t
	case TierCustom:
		if e.custom.IsNaN() {
			e.mu.Unlock()
			return ErrInvalidTier
		}
		e.selected = t
	default:
		e.mu.Unlock()
		return ErrInvalidTier
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.emit(snap)
	return nil
}

// SetCustom overrides the selected tier with a user value without discarding
// the suggestions.
func (e *Engine) SetCustom(v amount.Amount) error {
	if v.IsNaN() || v.IsNegative() {
		return ErrInvalidFee
	}
	e.mu.Lock()
	e.custom = v
	e.selected = TierCustom
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.emit(snap)
	return nil
}

// ClearCustom reverts to the last suggested tier.
func (e *Engine) ClearCustom() {
	e.mu.Lock()
	e.custom = amount.NaN()
	e.selected = e.previous
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.emit(snap)
}

// Choice is the user's tier or custom fee. It outlives the engine when the
// transaction is reloaded.
type Choice struct {
	Selected Tier
	Previous Tier
	Custom   amount.Amount
}

func (e *Engine) Choice() Choice {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Choice{Selected: e.selected, Previous: e.previous, Custom: e.custom}
}

// Restore reapplies a choice taken from another engine. It does not emit.
func (e *Engine) Restore(c Choice) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c.Selected == TierCustom && c.Custom.IsNaN() {
		c.Selected = c.Previous
	}
	e.selected, e.previous, e.custom = c.Selected, c.Previous, c.Custom
}

// PriorityFee is the per-gas tip (fee-market networks) or gas price (legacy)
// for the current selection.
func (e *Engine) PriorityFee() amount.Amount {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.priorityFeeLocked()
}

func (e *Engine) priorityFeeLocked() amount.Amount {
	if e.selected == TierCustom {
		return e.custom
	}
	if e.latest == nil {
		return amount.NaN()
	}
	if !e.network.EIP1559 {
		return e.latest.GasPrice
	}
	return e.latest.PriorityFee(e.selected)
}

// TotalCost is the fee in native display units for the current selection:
// gas limit times (base fee plus tip) on fee-market networks, gas limit
// times gas price otherwise.
func (e *Engine) TotalCost() (amount.Amount, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.latest == nil {
		return amount.NaN(), ErrNoEstimate
	}
	limit := amount.New(e.tx.GasLimit)
	if limit.IsNaN() || limit.IsZero() {
		limit = e.latest.GasLimit
	}
	perGas := e.priorityFeeLocked()
	if e.network.EIP1559 {
		perGas = e.latest.BaseFee.Add(perGas)
	}
	return limit.Multiply(perGas).DivideByDecimals(e.network.Decimals), nil
}

// GasPrice is the per-gas price for a legacy transaction: base fee plus tip
// on fee-market networks, the selected price otherwise.
func (e *Engine) GasPrice() amount.Amount {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.latest == nil {
		return amount.NaN()
	}
	if e.network.EIP1559 {
		return e.latest.BaseFee.Add(e.priorityFeeLocked())
	}
	return e.priorityFeeLocked()
}

// MaxFeePerGas is the fee cap to submit for the current selection: twice the
// base fee plus the tip.
func (e *Engine) MaxFeePerGas() amount.Amount {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.latest == nil {
		return amount.NaN()
	}
	return e.latest.BaseFee.Multiply(amount.FromUint64(2)).Add(e.priorityFeeLocked())
}

func (e *Engine) snapshotLocked() Snapshot {
	s := Snapshot{
		State:    e.state,
		Err:      e.lastErr,
		Selected: e.selected,
		Custom:   e.custom,
	}
	if e.latest != nil {
		est := *e.latest
		est.BaseFeeHistory = append([]float64(nil), e.latest.BaseFeeHistory...)
		s.Estimate = &est
	}
	return s
}

func (e *Engine) emit(s Snapshot) {
	if e.onUpdate != nil {
		e.onUpdate(s)
	}
}
