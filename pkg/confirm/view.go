package confirm

import (
	"txconfirm/pkg/amount"
	"txconfirm/pkg/editor"
	"txconfirm/pkg/fees"
	"txconfirm/pkg/models"
	"txconfirm/pkg/simulation"
	"txconfirm/pkg/utils"
)

// View is the read model handed to the presentation layer. A nil
// Simulation means the simulation has not run.
type View struct {
	Transaction *models.ParsedTransaction `json:"transaction,omitempty"`
	State       EditState                 `json:"state"`
	Network     models.NetworkInfo        `json:"network"`
	Currency    string                    `json:"currency"`

	Simulation      *simulation.Classified `json:"simulation,omitempty"`
	SimulationError string                 `json:"simulation_error,omitempty"`

	Fee      *fees.Snapshot `json:"fee,omitempty"`
	FeeTotal amount.Amount  `json:"fee_total"`

	RecipientIsContract *bool         `json:"recipient_is_contract,omitempty"`
	CurrentAllowance    amount.Amount `json:"current_allowance"`
	AllowanceDisplay    string        `json:"allowance_display,omitempty"`
	TokenHidden         bool          `json:"token_hidden"`

	Error    string `json:"error,omitempty"`
	Position int    `json:"position"`
	Length   int    `json:"length"`
}

// View returns a snapshot of the current item.
func (o *Orchestrator) View() View {
	o.mu.Lock()
	defer o.mu.Unlock()

	v := View{
		Currency:         o.selection.DefaultCurrency(),
		FeeTotal:         amount.NaN(),
		CurrentAllowance: amount.NaN(),
		Position:         o.queue.Position(),
		Length:           o.queue.Len(),
	}
	it, _ := o.currentLocked()
	if it == nil {
		return v
	}

	parsed := it.parsed
	v.Transaction = &parsed
	v.State = it.state
	v.Network = it.network
	v.Simulation = it.sim
	if it.simErr != nil {
		v.SimulationError = it.simErr.Error()
	}
	if it.fees != nil {
		snap := it.fees.Snapshot()
		v.Fee = &snap
		if total, err := it.fees.TotalCost(); err == nil {
			v.FeeTotal = total
		}
	}
	v.RecipientIsContract = it.recipientContract
	v.CurrentAllowance = it.currentAllowance
	if parsed.Kind == models.KindApprove {
		a := editor.Allowance{Value: parsed.Allowance, Unlimited: parsed.IsUnlimited}
		v.AllowanceDisplay = a.Display(parsed.Decimals, parsed.Symbol)
	}
	if parsed.Token != nil {
		v.TokenHidden = true
		for _, t := range o.selection.VisibleTokens() {
			if t.ChainID == parsed.Token.ChainID && utils.EqualAddress(t.ContractAddress, parsed.Token.ContractAddress) {
				v.TokenHidden = false
				break
			}
		}
	}
	if it.lastErr != nil {
		v.Error = it.lastErr.Error()
	}
	return v
}
