package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"txconfirm/pkg/amount"
	"txconfirm/pkg/confirm"
	"txconfirm/pkg/fees"
	"txconfirm/pkg/watcher"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width - 8
		m.viewport.Height = msg.Height - 10
		if m.showDetail {
			m.updateDetailViewport()
		}

	case engineEventMsg:
		if !msg.ok {
			return m, nil
		}
		// Re-subscribe to next event
		cmds = append(cmds, listenForEngine(m.sub))
		m.refresh()

		switch msg.event.Type {
		case confirm.EventConfirmed:
			cmds = append(cmds, m.setStatus("Transaction confirmed", false))
		case confirm.EventRejected:
			cmds = append(cmds, m.setStatus("Transaction rejected", false))
		case confirm.EventError:
			if s, ok := msg.event.Data.(string); ok {
				cmds = append(cmds, m.setStatus(s, true))
			}
		}

	case watcher.Event:
		cmds = append(cmds, listenForWatcher(m.wsub))
		m.watchStatus = msg.Data
		if msg.Type == watcher.EventSyncFailed {
			cmds = append(cmds, m.setStatus("Sync failed: "+msg.Data.Err, true))
		}

	case actionDoneMsg:
		m.busy = ""
		m.refresh()
		if msg.err != nil {
			cmds = append(cmds, m.setStatus(fmt.Sprintf("%s failed: %v", msg.op, msg.err), true))
		} else if msg.op != "" {
			cmds = append(cmds, m.setStatus(msg.op+" done", false))
		}

	case tea.KeyMsg:
		var cmd tea.Cmd
		m, cmd = m.handleKey(msg)
		return m, cmd

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case uiTickMsg:
		cmds = append(cmds, tea.Tick(time.Second, func(t time.Time) tea.Msg { return uiTickMsg(t) }))

	case clearStatusMsg:
		m.statusMessage = ""
		m.statusIsError = false
	}

	return m, tea.Batch(cmds...)
}

// refresh pulls a fresh view from the engine.
func (m *model) refresh() {
	m.view = m.engine.View()
	m.lastUpdate = time.Now()
	if m.showDetail {
		m.updateDetailViewport()
	}
}

func (m *model) setStatus(s string, isErr bool) tea.Cmd {
	m.statusMessage = s
	m.statusIsError = isErr
	return tea.Tick(time.Second*3, func(t time.Time) tea.Msg {
		return clearStatusMsg{}
	})
}

func (m model) withStatus(s string, isErr bool) (model, tea.Cmd) {
	cmd := m.setStatus(s, isErr)
	return m, cmd
}

func (m model) handleKey(msg tea.KeyMsg) (model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	if m.editingFee {
		return m.handleCustomFeeKey(msg)
	}

	switch m.view.State {
	case confirm.EditingGas:
		return m.handleGasKey(msg)
	case confirm.EditingNonce:
		return m.handleNonceKey(msg)
	case confirm.EditingAllowance:
		return m.handleAllowanceKey(msg)
	}

	if msg.String() == "?" {
		m.showHelp = !m.showHelp
		return m, nil
	}
	if m.showHelp {
		if msg.String() == "q" || msg.String() == "esc" {
			m.showHelp = false
		}
		return m, nil
	}
	if m.showFeeGraph {
		if msg.String() == "q" || msg.String() == "esc" || msg.String() == "G" {
			m.showFeeGraph = false
		}
		return m, nil
	}
	if m.showDetail {
		switch msg.String() {
		case "q", "esc", "d":
			m.showDetail = false
			return m, nil
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	return m.handleReviewKey(msg)
}

func (m model) handleReviewKey(msg tea.KeyMsg) (model, tea.Cmd) {
	p := m.view.Transaction

	switch msg.String() {
	case "q":
		return m, tea.Quit

	case "y", "enter":
		if m.busy != "" {
			return m, nil
		}
		if m.view.State == confirm.CriticalWarningGate {
			return m.withStatus("Acknowledge the warning first (A)", true)
		}
		if !m.canConfirm() {
			return m.withStatus("Transaction cannot be confirmed", true)
		}
		m.busy = "Confirming"
		return m, runAction("Confirm", m.engine.Confirm)

	case "x":
		if m.busy != "" || p == nil {
			return m, nil
		}
		m.busy = "Rejecting"
		return m, runAction("Reject", m.engine.Reject)

	case "X":
		if m.busy != "" || m.view.Length == 0 {
			return m, nil
		}
		m.busy = "Rejecting all"
		return m, runAction("Reject all", m.engine.RejectAll)

	case "tab", "n", "right", "l":
		if err := m.engine.Advance(); err != nil {
			return m.withStatus(err.Error(), true)
		}
		m.refresh()

	case "A":
		if err := m.engine.AcknowledgeCriticalWarning(); err != nil {
			return m.withStatus(err.Error(), true)
		}
		m.refresh()

	case "g":
		return m.enterEdit(confirm.EditGas)
	case "o":
		return m.enterEdit(confirm.EditNonce)
	case "a":
		return m.enterEdit(confirm.EditAllowance)

	case "1", "2", "3":
		if m.busy != "" {
			return m, nil
		}
		tier := feeTiers[int(msg.String()[0]-'1')]
		m.busy = "Setting fee"
		return m, runAction(fmt.Sprintf("Fee tier %s", tier), func(ctx context.Context) error {
			return m.engine.SelectFeeTier(ctx, tier)
		})

	case "f":
		if m.view.Fee == nil || m.view.Fee.Estimate == nil {
			return m.withStatus(fees.ErrNoEstimate.Error(), true)
		}
		m.editingFee = true
		m.customFeeInput.SetValue("")
		m.customFeeInput.Focus()

	case "F":
		if m.busy != "" {
			return m, nil
		}
		m.busy = "Setting fee"
		return m, runAction("Clear custom fee", m.engine.ClearCustomFee)

	case "G":
		m.showFeeGraph = true

	case "d":
		if p != nil {
			m.showDetail = true
			m.updateDetailViewport()
			m.viewport.YOffset = 0
		}

	case "c", "C":
		if p == nil {
			return m, nil
		}
		addr := p.Sender
		if msg.String() == "c" {
			addr = p.Recipient
			if p.Spender != "" {
				addr = p.Spender
			}
		}
		if addr == "" {
			return m, nil
		}
		if err := clipboard.WriteAll(addr); err != nil {
			return m.withStatus("Failed to copy to clipboard", true)
		}
		return m.withStatus("Address copied to clipboard!", false)

	case "e":
		if p == nil {
			return m, nil
		}
		url, ok := explorerURL(m.view.Network.ExplorerURL, p.Recipient)
		if !ok {
			return m.withStatus("Explorer URL not configured for this network", true)
		}
		if err := openBrowser(url); err != nil {
			return m.withStatus(fmt.Sprintf("Failed to open browser: %v", err), true)
		}
		return m.withStatus("Opened in browser", false)

	case "r":
		if m.watcher != nil {
			m.watcher.Trigger()
		}
		m.refresh()
		return m.withStatus("Refreshing pending requests...", false)
	}

	return m, nil
}

func (m model) enterEdit(kind confirm.EditKind) (model, tea.Cmd) {
	if m.busy != "" {
		return m, nil
	}
	if err := m.engine.EnterEdit(kind); err != nil {
		return m.withStatus(err.Error(), true)
	}
	m.refresh()

	switch kind {
	case confirm.EditGas:
		suggested, _ := m.engine.SuggestedGas()
		m.fillGasInputs(suggested)
	case confirm.EditNonce:
		if m.view.Transaction != nil {
			m.nonceInput.SetValue(m.view.Transaction.Nonce)
		}
		m.nonceInput.Focus()
	case confirm.EditAllowance:
		m.allowanceInput.SetValue("")
		m.allowanceInput.Focus()
	}
	return m, nil
}

func (m model) exitEdit() (model, tea.Cmd) {
	if err := m.engine.ExitEdit(); err != nil {
		return m.withStatus(err.Error(), true)
	}
	for i := range m.gasInputs {
		m.gasInputs[i].Blur()
	}
	m.nonceInput.Blur()
	m.allowanceInput.Blur()
	m.refresh()
	return m, nil
}

func (m model) handleGasKey(msg tea.KeyMsg) (model, tea.Cmd) {
	fields := m.visibleGasFields()
	pos := 0
	for i, f := range fields {
		if f == m.gasFocus {
			pos = i
		}
	}

	switch msg.String() {
	case "esc":
		return m.exitEdit()
	case "tab", "down":
		m.focusGas(fields[(pos+1)%len(fields)])
		return m, nil
	case "shift+tab", "up":
		m.focusGas(fields[(pos-1+len(fields))%len(fields)])
		return m, nil
	case "enter":
		if pos < len(fields)-1 {
			m.focusGas(fields[pos+1])
			return m, nil
		}
		if m.busy != "" {
			return m, nil
		}
		in := m.gasInput()
		m.busy = "Saving gas"
		return m, runAction("Save gas", func(ctx context.Context) error { return m.engine.SaveGas(ctx, in) })
	}

	var cmd tea.Cmd
	m.gasInputs[m.gasFocus], cmd = m.gasInputs[m.gasFocus].Update(msg)
	return m, cmd
}

func (m *model) focusGas(field int) {
	m.gasInputs[m.gasFocus].Blur()
	m.gasFocus = field
	m.gasInputs[field].Focus()
}

func (m model) handleNonceKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		return m.exitEdit()
	case "enter":
		if m.busy != "" {
			return m, nil
		}
		custom := strings.TrimSpace(m.nonceInput.Value())
		m.busy = "Saving nonce"
		return m, runAction("Save nonce", func(ctx context.Context) error { return m.engine.SaveNonce(ctx, custom) })
	}
	var cmd tea.Cmd
	m.nonceInput, cmd = m.nonceInput.Update(msg)
	return m, cmd
}

func (m model) handleAllowanceKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		return m.exitEdit()
	case "enter":
		if m.busy != "" {
			return m, nil
		}
		in := m.allowanceInputValue()
		m.busy = "Saving allowance"
		return m, runAction("Save allowance", func(ctx context.Context) error { return m.engine.SaveAllowance(ctx, in) })
	}
	var cmd tea.Cmd
	m.allowanceInput, cmd = m.allowanceInput.Update(msg)
	return m, cmd
}

func (m model) handleCustomFeeKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.editingFee = false
		m.customFeeInput.Blur()
		return m, nil
	case "enter":
		if m.busy != "" {
			return m, nil
		}
		v := amount.New(strings.TrimSpace(m.customFeeInput.Value()))
		if v.IsNaN() || v.IsNegative() {
			return m.withStatus(fees.ErrInvalidFee.Error(), true)
		}
		m.editingFee = false
		m.customFeeInput.Blur()
		m.busy = "Setting fee"
		return m, runAction("Custom fee", func(ctx context.Context) error {
			return m.engine.SetCustomFee(ctx, v)
		})
	}
	var cmd tea.Cmd
	m.customFeeInput, cmd = m.customFeeInput.Update(msg)
	return m, cmd
}
