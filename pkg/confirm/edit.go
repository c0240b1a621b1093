package confirm

import (
	"context"
	"strings"

	"txconfirm/pkg/amount"
	"txconfirm/pkg/editor"
	"txconfirm/pkg/fees"
	"txconfirm/pkg/models"
)

// EnterEdit opens an editor for the current item. Only allowed while
// reviewing.
func (o *Orchestrator) EnterEdit(kind EditKind) error {
	o.mu.Lock()
	it, id := o.currentLocked()
	if it == nil {
		o.mu.Unlock()
		return ErrNoSelection
	}
	if it.state != Reviewing || it.rejecting || it.saving {
		s := it.state
		o.mu.Unlock()
		return transitionError("edit", s)
	}
	if !editable(it, kind) {
		o.mu.Unlock()
		return ErrEditUnsupported
	}
	it.state = kind.state()
	it.editGen++
	o.mu.Unlock()
	o.notify(Event{Type: EventStateChanged, ID: id, Data: kind.state()})
	return nil
}

// ExitEdit discards the open editor. A save still in flight is ignored.
func (o *Orchestrator) ExitEdit() error {
	o.mu.Lock()
	it, id := o.currentLocked()
	if it == nil {
		o.mu.Unlock()
		return ErrNoSelection
	}
	if !it.state.IsEditing() {
		s := it.state
		o.mu.Unlock()
		return transitionError("exit edit", s)
	}
	it.state = Reviewing
	it.editGen++
	o.mu.Unlock()
	o.notify(Event{Type: EventStateChanged, ID: id, Data: Reviewing})
	return nil
}

func editable(it *item, kind EditKind) bool {
	switch kind {
	case EditGas:
		return it.raw.Data.Eth != nil || it.raw.Data.Fil != nil
	case EditNonce:
		return it.raw.Data.Eth != nil
	case EditAllowance:
		return it.parsed.Kind == models.KindApprove
	}
	return false
}

// SaveGas validates in and sends the revised gas fields. Blank fields keep
// their current value; all-blank input just closes the editor.
func (o *Orchestrator) SaveGas(ctx context.Context, in editor.GasInput) error {
	return o.save(ctx, EditingGas, "updateUnapprovedTransactionGasFields", func(it *item) (func(context.Context) error, error) {
		eip1559 := it.raw.Data.Eth != nil && it.raw.Data.Eth.IsEIP1559
		fields, err := editor.ReviseGas(in, eip1559)
		if err != nil {
			return nil, err
		}
		if fields == (models.GasFields{}) {
			return nil, nil
		}
		id := it.raw.ID
		return func(ctx context.Context) error {
			return o.backend.UpdateUnapprovedTransactionGasFields(ctx, id, fields)
		}, nil
	})
}

// SaveNonce sends a custom nonce. A blank value keeps the original.
func (o *Orchestrator) SaveNonce(ctx context.Context, custom string) error {
	return o.save(ctx, EditingNonce, "updateUnapprovedTransactionNonce", func(it *item) (func(context.Context) error, error) {
		if strings.TrimSpace(custom) == "" {
			return nil, nil
		}
		original := it.raw.Data.Eth.Nonce
		nonce, err := editor.ReviseNonce(original, custom)
		if err != nil {
			return nil, err
		}
		if amount.New(nonce).Eq(amount.New(original)) {
			return nil, nil
		}
		id := it.raw.ID
		return func(ctx context.Context) error {
			return o.backend.UpdateUnapprovedTransactionNonce(ctx, id, nonce)
		}, nil
	})
}

// SaveAllowance sends a revised spend allowance. Keeping the proposed value
// makes no backend call.
func (o *Orchestrator) SaveAllowance(ctx context.Context, in editor.AllowanceInput) error {
	return o.save(ctx, EditingAllowance, "updateUnapprovedTransactionSpendAllowance", func(it *item) (func(context.Context) error, error) {
		p := it.parsed
		revised, err := editor.ReviseAllowance(p.Allowance, p.Decimals, in)
		if err != nil {
			return nil, err
		}
		if revised.Value.Eq(p.Allowance) {
			return nil, nil
		}
		id, spender, hex := p.ID, p.Spender, revised.Hex()
		return func(ctx context.Context) error {
			return o.backend.UpdateUnapprovedTransactionSpendAllowance(ctx, id, spender, hex)
		}, nil
	})
}

// save runs one editor's backend update for the current item. prepare
// validates under the lock and returns the call, or nil when nothing
// changed. Validation errors keep the editor open.
func (o *Orchestrator) save(ctx context.Context, want EditState, op string, prepare func(it *item) (func(context.Context) error, error)) error {
	o.mu.Lock()
	it, id := o.currentLocked()
	if it == nil {
		o.mu.Unlock()
		return ErrNoSelection
	}
	if it.state != want || it.saving || it.rejecting {
		s := it.state
		o.mu.Unlock()
		return transitionError("save", s)
	}
	call, err := prepare(it)
	if err != nil {
		o.mu.Unlock()
		return err
	}
	if call == nil {
		it.state = Reviewing
		it.editGen++
		o.mu.Unlock()
		o.notify(Event{Type: EventStateChanged, ID: id, Data: Reviewing})
		return nil
	}
	return o.submitLocked(ctx, it, id, want, op, call)
}

// submitLocked runs call for it with o.mu held on entry and released on
// return. The result is dropped if the item left want or was edited again
// meanwhile. On success the item returns to Reviewing and the pending list
// is reloaded.
func (o *Orchestrator) submitLocked(ctx context.Context, it *item, id string, want EditState, op string, call func(context.Context) error) error {
	it.saving = true
	it.lastErr = nil
	gen := it.editGen
	o.mu.Unlock()

	err := call(ctx)

	o.mu.Lock()
	cur, ok := o.items[id]
	if ok && cur == it {
		it.saving = false
	}
	if !ok || cur != it || it.editGen != gen || it.state != want {
		o.mu.Unlock()
		o.log.Debug("Dropping stale edit result", "op", op, "id", id)
		return nil
	}
	if err != nil {
		berr := &BackendError{Op: op, ID: id, Err: err}
		it.lastErr = berr
		o.mu.Unlock()
		o.log.Warn("Edit failed", "op", op, "id", id, "err", err)
		o.notify(Event{Type: EventError, ID: id, Data: berr.Error()})
		return berr
	}
	o.mutations++
	it.state = Reviewing
	it.editGen++
	o.mu.Unlock()
	if want != Reviewing {
		o.notify(Event{Type: EventStateChanged, ID: id, Data: Reviewing})
	}

	if err := o.Sync(ctx); err != nil {
		o.log.Warn("Reload after edit failed", "op", op, "err", err)
	}
	return nil
}

// SelectFeeTier picks a suggested fee tier for the current item and submits
// the matching gas fields.
func (o *Orchestrator) SelectFeeTier(ctx context.Context, t fees.Tier) error {
	return o.chooseFee(ctx, func(e *fees.Engine) error { return e.Select(t) })
}

// SetCustomFee overrides the suggested tiers with v (wei per gas) and
// submits it.
func (o *Orchestrator) SetCustomFee(ctx context.Context, v amount.Amount) error {
	return o.chooseFee(ctx, func(e *fees.Engine) error { return e.SetCustom(v) })
}

// ClearCustomFee reverts to the last suggested tier and submits it.
func (o *Orchestrator) ClearCustomFee(ctx context.Context) error {
	return o.chooseFee(ctx, func(e *fees.Engine) error {
		e.ClearCustom()
		return nil
	})
}

// chooseFee applies a fee choice and sends the resulting gas fields so the
// submitted transaction pays what the panel shows. A choice that does not
// validate or reach the backend is undone.
func (o *Orchestrator) chooseFee(ctx context.Context, choose func(e *fees.Engine) error) error {
	o.mu.Lock()
	it, id := o.currentLocked()
	if it == nil {
		o.mu.Unlock()
		return ErrNoSelection
	}
	if it.state != Reviewing || it.saving || it.rejecting {
		s := it.state
		o.mu.Unlock()
		return transitionError("select fee", s)
	}
	engine := it.fees
	if engine == nil {
		o.mu.Unlock()
		return fees.ErrNoEstimate
	}
	if _, ok := engine.Latest(); !ok {
		o.mu.Unlock()
		return fees.ErrNoEstimate
	}

	prev := engine.Choice()
	if err := choose(engine); err != nil {
		o.mu.Unlock()
		return err
	}
	eip1559 := it.raw.Data.Eth != nil && it.raw.Data.Eth.IsEIP1559
	fields, err := editor.ReviseGas(feeInput(engine, eip1559), eip1559)
	if err != nil {
		engine.Restore(prev)
		o.mu.Unlock()
		return err
	}
	err = o.submitLocked(ctx, it, id, Reviewing, "updateUnapprovedTransactionGasFields", func(ctx context.Context) error {
		return o.backend.UpdateUnapprovedTransactionGasFields(ctx, id, fields)
	})
	if err != nil {
		engine.Restore(prev)
	}
	return err
}

func feeInput(e *fees.Engine, eip1559 bool) editor.GasInput {
	if eip1559 {
		return editor.GasInput{
			MaxPriorityFeePerGas: e.PriorityFee().String(),
			MaxFeePerGas:         e.MaxFeePerGas().String(),
		}
	}
	return editor.GasInput{GasPrice: e.GasPrice().String()}
}

// SuggestedGas fills the gas editor from the fee engine's current
// selection. The gas limit is only suggested when the transaction has none.
func (o *Orchestrator) SuggestedGas() (editor.GasInput, error) {
	o.mu.Lock()
	it, _ := o.currentLocked()
	if it == nil {
		o.mu.Unlock()
		return editor.GasInput{}, ErrNoSelection
	}
	engine, missingLimit := it.fees, it.parsed.MissingGasLimitError
	eip1559 := it.raw.Data.Eth != nil && it.raw.Data.Eth.IsEIP1559
	o.mu.Unlock()

	if engine == nil {
		return editor.GasInput{}, fees.ErrNoEstimate
	}
	est, ok := engine.Latest()
	if !ok {
		return editor.GasInput{}, fees.ErrNoEstimate
	}
	in := feeInput(engine, eip1559)
	if missingLimit && !est.GasLimit.IsNaN() {
		in.GasLimit = est.GasLimit.String()
	}
	return in, nil
}
