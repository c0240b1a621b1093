// Package simulation models the state changes predicted by a transaction
// simulation service and groups them into risk categories.
package simulation

import (
	"strings"

	"txconfirm/pkg/amount"
)

// Severity of a simulation warning.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityWarning  Severity = "WARNING"
	SeverityInfo     Severity = "INFO"
)

// UnmarshalText accepts severities in any case.
func (s *Severity) UnmarshalText(b []byte) error {
	*s = Severity(b).normalized()
	return nil
}

func (s Severity) normalized() Severity {
	return Severity(strings.ToUpper(strings.TrimSpace(string(s))))
}

// Warning is a risk finding attached to a simulation result.
type Warning struct {
	Severity Severity `json:"severity"`
	Kind     string   `json:"kind,omitempty"`
	Message  string   `json:"message"`
}

// Direction tells whether a change moves value into or out of the signer's account.
type Direction string

const (
	DirectionIn   Direction = "in"
	DirectionOut  Direction = "out"
	DirectionNone Direction = ""
)

type NativeTransfer struct {
	From   string        `json:"from"`
	To     string        `json:"to"`
	Amount amount.Amount `json:"amount"`
	Symbol string        `json:"symbol"`
}

type TokenTransfer struct {
	Contract string        `json:"contract"`
	From     string        `json:"from"`
	To       string        `json:"to"`
	Amount   amount.Amount `json:"amount"`
	Symbol   string        `json:"symbol"`
	Decimals int           `json:"decimals"`
}

type NFTTransfer struct {
	Contract string `json:"contract"`
	TokenID  string `json:"token_id"`
	From     string `json:"from"`
	To       string `json:"to"`
}

type Approval struct {
	Contract  string        `json:"contract"`
	Owner     string        `json:"owner"`
	Spender   string        `json:"spender"`
	Amount    amount.Amount `json:"amount"`
	Unlimited bool          `json:"unlimited"`
}

type ApprovalForAll struct {
	Contract string `json:"contract"`
	Owner    string `json:"owner"`
	Operator string `json:"operator"`
	Approved bool   `json:"approved"`
}

type StakeAuthorityChange struct {
	StakeAccount  string `json:"stake_account"`
	OldStaker     string `json:"old_staker,omitempty"`
	NewStaker     string `json:"new_staker,omitempty"`
	OldWithdrawer string `json:"old_withdrawer,omitempty"`
	NewWithdrawer string `json:"new_withdrawer,omitempty"`
}

type OwnerChange struct {
	Account  string `json:"account"`
	OldOwner string `json:"old_owner"`
	NewOwner string `json:"new_owner"`
}

// StateChange is one raw record from the simulation service. Kind is the
// service's own tag; classification looks only at which payloads are set.
type StateChange struct {
	Kind      string    `json:"kind"`
	Direction Direction `json:"direction,omitempty"`

	NativeTransfer *NativeTransfer       `json:"native_transfer,omitempty"`
	TokenTransfer  *TokenTransfer        `json:"token_transfer,omitempty"`
	NFTTransfer    *NFTTransfer          `json:"nft_transfer,omitempty"`
	Approval       *Approval             `json:"approval,omitempty"`
	ApprovalForAll *ApprovalForAll       `json:"approval_for_all,omitempty"`
	StakeAuthority *StakeAuthorityChange `json:"stake_authority,omitempty"`
	OwnerChange    *OwnerChange          `json:"owner_change,omitempty"`
}

// Result is the response of the simulation service.
type Result struct {
	Changes  []StateChange `json:"changes"`
	Warnings []Warning     `json:"warnings"`
}

// Classified groups a Result into categories. A nil *Classified means the
// simulation has not run; a non-nil one with HasNoChanges means it ran and
// predicted nothing.
type Classified struct {
	Transfers             []StateChange `json:"transfers"`
	Approvals             []StateChange `json:"approvals"`
	StakeAuthorityChanges []StateChange `json:"stake_authority_changes"`
	OwnerChanges          []StateChange `json:"owner_changes"`
	// Other holds changes whose payload is not recognised. They still count
	// as predicted changes.
	Other    []StateChange `json:"other"`
	Warnings []Warning     `json:"warnings"`

	HasMultipleCategories bool `json:"has_multiple_categories"`
	HasCriticalWarning    bool `json:"has_critical_warning"`
	HasNoChanges          bool `json:"has_no_changes"`
}

// Classify groups changes by the payloads they carry. A record carrying both
// a transfer and an approval payload lands in both buckets.
func Classify(r Result) *Classified {
	c := &Classified{
		Transfers:             []StateChange{},
		Approvals:             []StateChange{},
		StakeAuthorityChanges: []StateChange{},
		OwnerChanges:          []StateChange{},
		Other:                 []StateChange{},
		Warnings:              append([]Warning{}, r.Warnings...),
	}
	for i := range c.Warnings {
		c.Warnings[i].Severity = c.Warnings[i].Severity.normalized()
	}

	for _, ch := range r.Changes {
		if ch.NativeTransfer != nil || ch.TokenTransfer != nil || ch.NFTTransfer != nil {
			c.Transfers = append(c.Transfers, ch)
		}
		if ch.Approval != nil || ch.ApprovalForAll != nil {
			c.Approvals = append(c.Approvals, ch)
		}
		if ch.StakeAuthority != nil {
			c.StakeAuthorityChanges = append(c.StakeAuthorityChanges, ch)
		}
		if ch.OwnerChange != nil {
			c.OwnerChanges = append(c.OwnerChanges, ch)
		}
		if !ch.hasPayload() {
			c.Other = append(c.Other, ch)
		}
	}

	nonEmpty := 0
	for _, bucket := range [][]StateChange{c.Transfers, c.Approvals, c.StakeAuthorityChanges, c.OwnerChanges, c.Other} {
		if len(bucket) > 0 {
			nonEmpty++
		}
	}
	c.HasMultipleCategories = nonEmpty > 1
	c.HasNoChanges = nonEmpty == 0

	for _, w := range c.Warnings {
		if w.Severity == SeverityCritical {
			c.HasCriticalWarning = true
			break
		}
	}
	return c
}

func (ch StateChange) hasPayload() bool {
	return ch.NativeTransfer != nil || ch.TokenTransfer != nil || ch.NFTTransfer != nil ||
		ch.Approval != nil || ch.ApprovalForAll != nil || ch.StakeAuthority != nil || ch.OwnerChange != nil
}

var severityRank = map[Severity]int{SeverityCritical: 0, SeverityWarning: 1, SeverityInfo: 2}

// WarningMessages returns the human-readable warnings, most severe first.
// Unknown severities come last in their original order.
func (c *Classified) WarningMessages() []string {
	if c == nil {
		return nil
	}
	var out []string
	for rank := 0; rank <= len(severityRank); rank++ {
		for _, w := range c.Warnings {
			r, ok := severityRank[w.Severity.normalized()]
			if !ok {
				r = len(severityRank)
			}
			if r == rank {
				out = append(out, w.Message)
			}
		}
	}
	return out
}
