package confirm

import "fmt"

// EditState is the review sub-state of a pending item.
type EditState int

const (
	Reviewing EditState = iota
	EditingGas
	EditingAllowance
	EditingNonce
	CriticalWarningGate
	Confirming
	Confirmed
	Rejected
)

var stateNames = map[EditState]string{
	Reviewing:           "reviewing",
	EditingGas:          "editing_gas",
	EditingAllowance:    "editing_allowance",
	EditingNonce:        "editing_nonce",
	CriticalWarningGate: "critical_warning_gate",
	Confirming:          "confirming",
	Confirmed:           "confirmed",
	Rejected:            "rejected",
}

func (s EditState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("EditState(%d)", int(s))
}

func (s EditState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// IsTerminal reports Confirmed or Rejected.
func (s EditState) IsTerminal() bool {
	return s == Confirmed || s == Rejected
}

func (s EditState) IsEditing() bool {
	return s == EditingGas || s == EditingAllowance || s == EditingNonce
}

// EditKind selects the editor opened by EnterEdit.
type EditKind int

const (
	EditGas EditKind = iota
	EditAllowance
	EditNonce
)

func (k EditKind) state() EditState {
	switch k {
	case EditAllowance:
		return EditingAllowance
	case EditNonce:
		return EditingNonce
	}
	return EditingGas
}

func (k EditKind) String() string {
	return k.state().String()
}

// ParseEditKind accepts "gas", "allowance" and "nonce".
func ParseEditKind(s string) (EditKind, bool) {
	switch s {
	case "gas":
		return EditGas, true
	case "allowance":
		return EditAllowance, true
	case "nonce":
		return EditNonce, true
	}
	return 0, false
}
