// Package confirm sequences the user through pending transaction requests.
//
// The Orchestrator owns the pending queue and, for every queued item, the
// parsed transaction, the simulation classification, the fee engine and the
// review state. All state changes happen under one lock; network calls run
// without it and their results are applied back only if the item and
// generation they were issued for are still current.
package confirm

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"txconfirm/pkg/amount"
	"txconfirm/pkg/fees"
	"txconfirm/pkg/models"
	"txconfirm/pkg/normalizer"
	"txconfirm/pkg/queue"
	"txconfirm/pkg/simulation"

	"github.com/ethereum/go-ethereum/log"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// Options tunes the orchestrator.
type Options struct {
	// FeeRefreshInterval is capped at fees.MaxRefreshInterval.
	FeeRefreshInterval time.Duration
	SimulationEnabled  bool
	// BytecodeTTL is how long a recipient bytecode probe is remembered.
	BytecodeTTL time.Duration
}

// item is the orchestrator's record of one pending transaction.
type item struct {
	raw      models.PendingTransaction
	network  models.NetworkInfo
	balances models.Balances
	parsed   models.ParsedTransaction
	state    EditState

	// dataGen changes whenever raw is replaced.
	dataGen uint64
	// editGen changes on every edit transition.
	editGen uint64

	sim       *simulation.Classified
	simErr    error
	acked     bool
	saving    bool
	rejecting bool

	// issued records the key each lookup was last started under.
	issued map[string]taskKey

	solanaFee         amount.Amount
	recipientContract *bool
	currentAllowance  amount.Amount

	fees      *fees.Engine
	feeCancel context.CancelFunc
	feeChoice *fees.Choice

	lastErr error
}

// Orchestrator drives the confirmation flow over a Backend.
type Orchestrator struct {
	backend   Backend
	selection Selection
	opts      Options
	log       log.Logger

	mu       sync.Mutex
	queue    *queue.Queue
	items    map[string]*item
	networks map[string]models.NetworkInfo
	prices   models.PriceRegistry
	// gen changes whenever the current item changes.
	gen uint64
	// mutations counts applied syncs and backend-visible changes. A pending
	// list fetched before the latest one is stale.
	mutations uint64

	bytecode *gocache.Cache
	probes   singleflight.Group

	subscribers []Subscriber
	subMu       sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an orchestrator with an empty queue. Call Sync to load the
// backend's pending transactions.
func New(backend Backend, selection Selection, opts Options) *Orchestrator {
	if opts.FeeRefreshInterval <= 0 || opts.FeeRefreshInterval > fees.MaxRefreshInterval {
		opts.FeeRefreshInterval = fees.MaxRefreshInterval
	}
	if opts.BytecodeTTL <= 0 {
		opts.BytecodeTTL = 5 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		backend:   backend,
		selection: selection,
		opts:      opts,
		log:       log.New("module", "confirm"),
		queue:     queue.New(),
		items:     make(map[string]*item),
		networks:  make(map[string]models.NetworkInfo),
		prices:    models.PriceRegistry{},
		bytecode:  gocache.New(opts.BytecodeTTL, 2*opts.BytecodeTTL),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Close stops background work. Results still in flight are dropped.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	for _, it := range o.items {
		stopFees(it)
	}
	o.gen++
	o.mu.Unlock()
	o.cancel()
	o.wg.Wait()
}

// Subscribe adds a new subscriber and returns a channel to receive events.
func (o *Orchestrator) Subscribe() Subscriber {
	o.subMu.Lock()
	defer o.subMu.Unlock()
	ch := make(Subscriber, 100)
	o.subscribers = append(o.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber.
func (o *Orchestrator) Unsubscribe(ch Subscriber) {
	o.subMu.Lock()
	defer o.subMu.Unlock()
	for i, sub := range o.subscribers {
		if sub == ch {
			o.subscribers = append(o.subscribers[:i], o.subscribers[i+1:]...)
			close(ch)
			break
		}
	}
}

func (o *Orchestrator) notify(events ...Event) {
	o.subMu.RLock()
	defer o.subMu.RUnlock()
	for _, ev := range events {
		for _, sub := range o.subscribers {
			select {
			case sub <- ev:
			default:
				// Slow subscribers miss events; the view is always re-readable.
			}
		}
	}
}

// Sync loads the backend's pending transactions. New requests are appended
// in arrival order, vanished ones are dropped and changed ones re-parsed.
// A list fetched before a confirm, reject, edit or newer sync was applied is
// dropped.
func (o *Orchestrator) Sync(ctx context.Context) error {
	o.mu.Lock()
	seq := o.mutations
	o.mu.Unlock()

	txs, err := o.backend.GetPendingTransactions(ctx)
	if err != nil {
		return &BackendError{Op: "getPendingTransactions", Err: err}
	}
	data := o.loadContext(ctx, txs)

	o.mu.Lock()
	if o.mutations != seq {
		o.mu.Unlock()
		o.log.Debug("Dropping stale pending list", "seq", seq)
		return nil
	}
	o.mutations++
	prevID, _ := o.queue.Current()
	if data.prices != nil {
		o.prices = data.prices
	}

	ids := make([]string, 0, len(txs))
	for _, raw := range txs {
		ids = append(ids, raw.ID)
		key := chainKey(raw.ChainID, raw.CoinType)
		it, ok := o.items[raw.ID]
		if !ok {
			it = &item{state: Reviewing, solanaFee: amount.NaN(), currentAllowance: amount.NaN()}
			o.items[raw.ID] = it
		}
		it.network = data.networks[key]
		it.balances = data.balances[key+"|"+strings.ToLower(raw.FromAddress)]
		if !ok || !sameRaw(it.raw, raw) {
			it.raw = raw.Clone()
			it.dataGen++
			it.sim, it.simErr, it.acked = nil, nil, false
			it.recipientContract = nil
			it.currentAllowance = amount.NaN()
			it.solanaFee = amount.NaN()
			it.issued = nil
			stopFees(it)
		}
		o.reparse(it)
	}

	_, removed := o.queue.Sync(ids)
	for _, id := range removed {
		if it, ok := o.items[id]; ok {
			stopFees(it)
			delete(o.items, id)
		}
	}

	curID, _ := o.queue.Current()
	if curID != prevID {
		o.gen++
	}
	tasks := o.activateLocked()
	o.mu.Unlock()

	o.launch(tasks)
	o.notify(Event{Type: EventQueueUpdated, Data: ids})
	return nil
}

// Current returns the parsed transaction under review.
func (o *Orchestrator) Current() (models.ParsedTransaction, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	it, _ := o.currentLocked()
	if it == nil {
		return models.ParsedTransaction{}, false
	}
	return it.parsed, true
}

// State returns the review state of the current item.
func (o *Orchestrator) State() (EditState, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	it, _ := o.currentLocked()
	if it == nil {
		return Reviewing, false
	}
	return it.state, true
}

// Len is the number of queued items.
func (o *Orchestrator) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.queue.Len()
}

// Advance moves to the next queued item, wrapping around. Review states are
// kept per item.
func (o *Orchestrator) Advance() error {
	o.mu.Lock()
	if o.queue.Len() < 2 {
		o.mu.Unlock()
		return ErrQueueTooShort
	}
	if it, _ := o.currentLocked(); it != nil && it.state == Confirming {
		o.mu.Unlock()
		return transitionError("advance", it.state)
	}
	if it, _ := o.currentLocked(); it != nil {
		stopFees(it)
	}
	o.queue.Advance()
	o.gen++
	id, _ := o.queue.Current()
	tasks := o.activateLocked()
	o.mu.Unlock()

	o.launch(tasks)
	o.notify(Event{Type: EventQueueUpdated, ID: id})
	return nil
}

// Confirm submits the current item. It is only allowed while reviewing and
// when the transaction can pay for gas.
func (o *Orchestrator) Confirm(ctx context.Context) error {
	o.mu.Lock()
	it, id := o.currentLocked()
	if it == nil {
		o.mu.Unlock()
		return ErrNoSelection
	}
	if it.state != Reviewing || it.rejecting || it.saving {
		s := it.state
		o.mu.Unlock()
		return transitionError("confirm", s)
	}
	if it.parsed.MissingGasLimitError {
		o.mu.Unlock()
		return ErrMissingGasLimit
	}
	if it.parsed.InsufficientFundsForGasError {
		o.mu.Unlock()
		return ErrInsufficientFundsForGas
	}
	it.state = Confirming
	it.editGen++
	it.lastErr = nil
	o.mu.Unlock()
	o.notify(Event{Type: EventStateChanged, ID: id, Data: Confirming})

	err := o.backend.ConfirmTransaction(ctx, id)

	o.mu.Lock()
	it, ok := o.items[id]
	if !ok {
		o.mu.Unlock()
		if err != nil {
			return &BackendError{Op: "confirmTransaction", ID: id, Err: err}
		}
		o.notify(Event{Type: EventConfirmed, ID: id})
		return nil
	}
	if err != nil {
		it.state = Reviewing
		it.lastErr = &BackendError{Op: "confirmTransaction", ID: id, Err: err}
		berr := it.lastErr
		o.mu.Unlock()
		o.log.Warn("Confirm failed", "id", id, "err", err)
		o.notify(Event{Type: EventError, ID: id, Data: berr.Error()}, Event{Type: EventStateChanged, ID: id, Data: Reviewing})
		return berr
	}
	it.state = Confirmed
	o.mutations++
	tasks := o.finishLocked(id)
	o.mu.Unlock()

	o.launch(tasks)
	o.log.Info("Transaction confirmed", "id", id)
	o.notify(Event{Type: EventConfirmed, ID: id}, Event{Type: EventQueueUpdated})
	return nil
}

// Reject rejects the current item. It is refused only while a confirmation
// is being submitted.
func (o *Orchestrator) Reject(ctx context.Context) error {
	o.mu.Lock()
	it, id := o.currentLocked()
	if it == nil {
		o.mu.Unlock()
		return ErrNoSelection
	}
	if it.state == Confirming || it.state.IsTerminal() || it.rejecting {
		s := it.state
		o.mu.Unlock()
		return transitionError("reject", s)
	}
	it.rejecting = true
	it.editGen++
	it.lastErr = nil
	o.mu.Unlock()

	err := o.backend.RejectTransaction(ctx, id)

	o.mu.Lock()
	it, ok := o.items[id]
	if !ok {
		o.mu.Unlock()
		if err != nil {
			return &BackendError{Op: "rejectTransaction", ID: id, Err: err}
		}
		o.notify(Event{Type: EventRejected, ID: id})
		return nil
	}
	it.rejecting = false
	if err != nil {
		if it.state != CriticalWarningGate {
			it.state = Reviewing
		}
		it.lastErr = &BackendError{Op: "rejectTransaction", ID: id, Err: err}
		berr := it.lastErr
		o.mu.Unlock()
		o.log.Warn("Reject failed", "id", id, "err", err)
		o.notify(Event{Type: EventError, ID: id, Data: berr.Error()})
		return berr
	}
	it.state = Rejected
	o.mutations++
	tasks := o.finishLocked(id)
	o.mu.Unlock()

	o.launch(tasks)
	o.log.Info("Transaction rejected", "id", id)
	o.notify(Event{Type: EventRejected, ID: id}, Event{Type: EventQueueUpdated})
	return nil
}

// RejectAll rejects every queued item and empties the queue.
func (o *Orchestrator) RejectAll(ctx context.Context) error {
	o.mu.Lock()
	if o.queue.Len() == 0 {
		o.mu.Unlock()
		return ErrNoSelection
	}
	for _, it := range o.items {
		if it.state == Confirming || it.rejecting {
			s := it.state
			o.mu.Unlock()
			return transitionError("reject all", s)
		}
	}
	for _, it := range o.items {
		it.rejecting = true
		it.editGen++
	}
	o.mu.Unlock()

	err := o.backend.RejectAllTransactions(ctx)

	o.mu.Lock()
	if err != nil {
		berr := &BackendError{Op: "rejectAllTransactions", Err: err}
		for _, it := range o.items {
			it.rejecting = false
			if it.state != CriticalWarningGate {
				it.state = Reviewing
			}
			it.lastErr = berr
		}
		o.mu.Unlock()
		o.log.Warn("Reject all failed", "err", err)
		o.notify(Event{Type: EventError, Data: berr.Error()})
		return berr
	}
	ids := o.queue.IDs()
	for _, it := range o.items {
		it.state = Rejected
		stopFees(it)
	}
	o.items = make(map[string]*item)
	o.queue.Clear()
	o.gen++
	o.mutations++
	o.mu.Unlock()

	o.log.Info("All transactions rejected", "count", len(ids))
	events := make([]Event, 0, len(ids)+1)
	for _, id := range ids {
		events = append(events, Event{Type: EventRejected, ID: id})
	}
	o.notify(append(events, Event{Type: EventQueueUpdated})...)
	return nil
}

// AcknowledgeCriticalWarning leaves the warning gate for Reviewing.
func (o *Orchestrator) AcknowledgeCriticalWarning() error {
	o.mu.Lock()
	it, id := o.currentLocked()
	if it == nil {
		o.mu.Unlock()
		return ErrNoSelection
	}
	if it.state != CriticalWarningGate || it.rejecting {
		s := it.state
		o.mu.Unlock()
		return transitionError("acknowledge", s)
	}
	it.state = Reviewing
	it.acked = true
	o.mu.Unlock()
	o.notify(Event{Type: EventStateChanged, ID: id, Data: Reviewing})
	return nil
}

func (o *Orchestrator) currentLocked() (*item, string) {
	id, ok := o.queue.Current()
	if !ok {
		return nil, ""
	}
	return o.items[id], id
}

// finishLocked removes a terminal item and selects the next one.
func (o *Orchestrator) finishLocked(id string) []task {
	if it, ok := o.items[id]; ok {
		stopFees(it)
		delete(o.items, id)
	}
	o.queue.Remove(id)
	o.gen++
	return o.activateLocked()
}

func (o *Orchestrator) reparse(it *item) {
	raw := it.raw
	if raw.FromAddress == "" {
		raw.FromAddress = o.selection.ActiveAccount().Address
	}
	it.parsed = normalizer.Parse(raw, normalizer.Context{
		Network:   it.network,
		Accounts:  o.selection.Accounts(),
		Tokens:    o.selection.FullTokens(),
		Prices:    o.prices,
		Balances:  it.balances,
		SolanaFee: it.solanaFee,
	})
}

func stopFees(it *item) {
	if it.fees != nil {
		choice := it.fees.Choice()
		it.feeChoice = &choice
		it.fees.Cancel()
		it.fees = nil
	}
	if it.feeCancel != nil {
		it.feeCancel()
		it.feeCancel = nil
	}
}

// sameRaw compares the wire form so nil and empty slices are equal.
func sameRaw(a, b models.PendingTransaction) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(ja, jb)
}

func chainKey(chainID string, coin models.CoinType) string {
	return coin.String() + ":" + strings.ToLower(chainID)
}
