package tui

import (
	"context"
	"fmt"
	"strings"

	"txconfirm/pkg/amount"
	"txconfirm/pkg/confirm"
	"txconfirm/pkg/editor"
	"txconfirm/pkg/fees"
	"txconfirm/pkg/models"
	"txconfirm/pkg/simulation"
	"txconfirm/pkg/utils"
	"txconfirm/pkg/watcher"

	tea "github.com/charmbracelet/bubbletea"
)

func listenForEngine(sub confirm.Subscriber) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-sub
		return engineEventMsg{event: ev, ok: ok}
	}
}

func listenForWatcher(sub watcher.Subscriber) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-sub
		if !ok {
			return nil
		}
		return ev
	}
}

// runAction calls fn off the UI goroutine and reports the result as actionDoneMsg.
func runAction(op string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), ActionTimeout)
		defer cancel()
		return actionDoneMsg{op: op, err: fn(ctx)}
	}
}

func kindTitle(k models.TxKind) string {
	switch k {
	case models.KindNativeTransfer, models.KindTokenTransfer:
		return "Send"
	case models.KindNFTTransfer:
		return "Send NFT"
	case models.KindApprove:
		return "Approve Spending"
	case models.KindSwap:
		return "Swap"
	case models.KindAssociatedAccount:
		return "Send (creates token account)"
	case models.KindSignMessage:
		return "Sign Message"
	case models.KindDapp:
		return "Contract Interaction"
	}
	return "Transaction"
}

func (m model) precision() int {
	if m.config.TokenDecimals > 0 {
		return m.config.TokenDecimals
	}
	return 6
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func addressLabel(addr, label string) string {
	if label == "" || utils.EqualAddress(label, addr) {
		return utils.ReduceAddress(addr)
	}
	return fmt.Sprintf("%s (%s)", label, utils.ReduceAddress(addr))
}

// summaryRows lists the label/value pairs of the details panel.
func (m model) summaryRows() [][2]string {
	p := m.view.Transaction
	if p == nil {
		return nil
	}
	cur := m.view.Currency
	prec := m.precision()

	rows := [][2]string{
		{"Network", orUnknown(m.view.Network.Name)},
		{"From", addressLabel(p.Sender, p.SenderLabel)},
	}
	if p.Origin != "" {
		rows = append(rows, [2]string{"Origin", p.Origin})
	}

	switch p.Kind {
	case models.KindSignMessage:
		rows = append(rows, [2]string{"Message", utils.TruncateString(p.SignedMessage, 60)})
		return rows
	case models.KindApprove:
		rows = append(rows, [2]string{"Spender", addressLabel(p.Spender, p.SpenderLabel)})
		rows = append(rows, [2]string{"Allowance", m.allowanceText()})
	case models.KindNFTTransfer:
		rows = append(rows, [2]string{"To", addressLabel(p.Recipient, p.RecipientLabel)})
		rows = append(rows, [2]string{"Token", fmt.Sprintf("%s #%s", p.Symbol, p.NFTTokenID)})
	default:
		if p.Recipient != "" {
			rows = append(rows, [2]string{"To", addressLabel(p.Recipient, p.RecipientLabel)})
		}
		value := p.Value.FormatAsAsset(prec, p.Symbol)
		if p.HasFiatValue() {
			value += fmt.Sprintf(" (%s)", p.FiatValue.FormatAsFiat(cur))
		}
		rows = append(rows, [2]string{"Amount", orUnknown(value)})
	}

	fee := p.GasFee.FormatAsAsset(prec, m.view.Network.Symbol)
	if !p.GasFeeFiat.IsNaN() {
		fee += fmt.Sprintf(" (%s)", p.GasFeeFiat.FormatAsFiat(cur))
	}
	rows = append(rows, [2]string{"Network Fee", orUnknown(fee)})
	if !p.FiatTotal.IsNaN() {
		rows = append(rows, [2]string{"Total", p.FiatTotal.FormatAsFiat(cur)})
	}
	if p.Nonce != "" {
		rows = append(rows, [2]string{"Nonce", p.Nonce})
	}
	return rows
}

func (m model) allowanceText() string {
	p := m.view.Transaction
	if m.view.AllowanceDisplay != "" {
		return m.view.AllowanceDisplay
	}
	if p.IsUnlimited {
		return "Unlimited " + p.Symbol
	}
	return orUnknown(p.Allowance.DivideByDecimals(p.Decimals).FormatAsAsset(m.precision(), p.Symbol))
}

// errorLines returns the blocking problems of the current item.
func errorLines(p *models.ParsedTransaction) []string {
	if p == nil {
		return nil
	}
	var out []string
	if p.InsufficientFundsError {
		out = append(out, "Insufficient funds")
	}
	if p.InsufficientFundsForGasError {
		out = append(out, "Insufficient funds for gas")
	}
	if p.MissingGasLimitError {
		out = append(out, "Missing gas limit")
	}
	if p.SameAddressError {
		out = append(out, "Recipient is the sender")
	}
	if p.ContractAddressError {
		out = append(out, "Recipient is the token contract")
	}
	return out
}

// warningLines renders simulation warnings, most severe first.
func warningLines(c *simulation.Classified) []string {
	if c == nil {
		return nil
	}
	var critical, rest []string
	for _, w := range c.Warnings {
		line := fmt.Sprintf("[%s] %s", w.Severity, w.Message)
		if w.Severity == simulation.SeverityCritical {
			critical = append(critical, line)
		} else {
			rest = append(rest, line)
		}
	}
	return append(critical, rest...)
}

// changeLines summarizes the predicted state changes.
func changeLines(c *simulation.Classified) []string {
	if c == nil {
		return nil
	}
	if c.HasNoChanges {
		return []string{"No changes predicted"}
	}
	var out []string
	for _, ch := range c.Transfers {
		out = append(out, describeChange(ch))
	}
	for _, ch := range c.Approvals {
		out = append(out, describeChange(ch))
	}
	for _, ch := range c.StakeAuthorityChanges {
		out = append(out, describeChange(ch))
	}
	for _, ch := range c.OwnerChanges {
		out = append(out, describeChange(ch))
	}
	for _, ch := range c.Other {
		out = append(out, describeChange(ch))
	}
	return out
}

func describeChange(ch simulation.StateChange) string {
	sign := ""
	switch ch.Direction {
	case simulation.DirectionIn:
		sign = "+"
	case simulation.DirectionOut:
		sign = "-"
	}
	switch {
	case ch.NativeTransfer != nil:
		return fmt.Sprintf("%s%s", sign, ch.NativeTransfer.Amount.FormatAsAsset(-1, ch.NativeTransfer.Symbol))
	case ch.TokenTransfer != nil:
		return fmt.Sprintf("%s%s", sign, ch.TokenTransfer.Amount.FormatAsAsset(-1, ch.TokenTransfer.Symbol))
	case ch.NFTTransfer != nil:
		return fmt.Sprintf("%sNFT #%s (%s)", sign, ch.NFTTransfer.TokenID, utils.ReduceAddress(ch.NFTTransfer.Contract))
	case ch.Approval != nil:
		if ch.Approval.Unlimited {
			return fmt.Sprintf("Approve unlimited to %s", utils.ReduceAddress(ch.Approval.Spender))
		}
		return fmt.Sprintf("Approve %s to %s", ch.Approval.Amount.Format(-1, true), utils.ReduceAddress(ch.Approval.Spender))
	case ch.ApprovalForAll != nil:
		return fmt.Sprintf("Approve all (%s) to %s", utils.ReduceAddress(ch.ApprovalForAll.Contract), utils.ReduceAddress(ch.ApprovalForAll.Operator))
	case ch.StakeAuthority != nil:
		return fmt.Sprintf("Stake authority change on %s", utils.ReduceAddress(ch.StakeAuthority.StakeAccount))
	case ch.OwnerChange != nil:
		return fmt.Sprintf("Owner of %s -> %s", utils.ReduceAddress(ch.OwnerChange.Account), utils.ReduceAddress(ch.OwnerChange.NewOwner))
	}
	return ch.Kind
}

// feeTiers lists the selectable priority fee tiers in display order.
var feeTiers = []fees.Tier{fees.TierSlow, fees.TierAverage, fees.TierFast}

// tierLabels renders each tier with its priority fee in gwei. Nil when the
// item has no settled estimate.
func tierLabels(snap *fees.Snapshot) []string {
	if snap == nil || snap.Estimate == nil {
		return nil
	}
	out := make([]string, 0, len(feeTiers)+1)
	for _, t := range feeTiers {
		out = append(out, fmt.Sprintf("%s %s", t, gwei(snap.Estimate.PriorityFee(t))))
	}
	if snap.Selected == fees.TierCustom {
		out = append(out, fmt.Sprintf("custom %s", gwei(snap.Custom)))
	}
	return out
}

func gwei(a amount.Amount) string {
	if a.IsNaN() {
		return "?"
	}
	return a.DivideByDecimals(9).Format(2, true) + " gwei"
}

// baseFeeHistory returns the plotted base fee samples, if any.
func baseFeeHistory(snap *fees.Snapshot) []float64 {
	if snap == nil || snap.Estimate == nil {
		return nil
	}
	return snap.Estimate.BaseFeeHistory
}

func (m model) gasInput() editor.GasInput {
	return editor.GasInput{
		GasLimit:             strings.TrimSpace(m.gasInputs[gasLimitField].Value()),
		GasPrice:             strings.TrimSpace(m.gasInputs[gasPriceField].Value()),
		MaxPriorityFeePerGas: strings.TrimSpace(m.gasInputs[priorityFeeField].Value()),
		MaxFeePerGas:         strings.TrimSpace(m.gasInputs[maxFeeField].Value()),
	}
}

// fillGasInputs prefills the gas editor from the current item and the
// engine's suggestion; an explicit value on the transaction wins.
func (m *model) fillGasInputs(suggested editor.GasInput) {
	p := m.view.Transaction
	vals := []string{suggested.GasLimit, suggested.GasPrice, suggested.MaxPriorityFeePerGas, suggested.MaxFeePerGas}
	if p != nil && p.GasLimit != "" {
		vals[gasLimitField] = p.GasLimit
	}
	for i := range m.gasInputs {
		m.gasInputs[i].SetValue(vals[i])
		m.gasInputs[i].Blur()
	}
	m.gasFocus = gasLimitField
	m.gasInputs[gasLimitField].Focus()
}

// visibleGasFields is the set of gas editor inputs that apply to the item.
func (m model) visibleGasFields() []int {
	p := m.view.Transaction
	if p != nil && p.IsEIP1559 {
		return []int{gasLimitField, priorityFeeField, maxFeeField}
	}
	return []int{gasLimitField, gasPriceField}
}

func (m model) allowanceInputValue() editor.AllowanceInput {
	custom := strings.TrimSpace(m.allowanceInput.Value())
	if custom == "" {
		return editor.AllowanceInput{Mode: editor.AllowanceProposed}
	}
	return editor.AllowanceInput{Mode: editor.AllowanceCustom, Custom: custom}
}

// canConfirm reports whether confirm would be accepted from the current view.
func (m model) canConfirm() bool {
	p := m.view.Transaction
	if p == nil || m.busy != "" {
		return false
	}
	if m.view.State != confirm.Reviewing {
		return false
	}
	return !p.InsufficientFundsForGasError && !p.MissingGasLimitError
}
