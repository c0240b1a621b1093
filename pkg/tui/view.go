package tui

import (
	"fmt"
	"strings"

	"txconfirm/pkg/confirm"
	"txconfirm/pkg/fees"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
)

func (m model) View() string {
	if m.showHelp {
		return m.viewHelp()
	}

	if m.showFeeGraph {
		return m.viewFeeGraph()
	}

	if m.showDetail {
		return m.viewDetail()
	}

	switch m.view.State {
	case confirm.EditingGas:
		return m.viewGasEditor()
	case confirm.EditingNonce:
		return m.place(m.editBox("Edit Nonce", m.nonceInput.View(), "Enter to save • Esc to cancel"))
	case confirm.EditingAllowance:
		current := fmt.Sprintf("Proposed: %s", m.allowanceText())
		return m.place(m.editBox("Edit Allowance", current+"\n\n"+m.allowanceInput.View(), "Empty for proposed • Enter to save • Esc to cancel"))
	}

	if m.editingFee {
		return m.place(m.editBox("Custom Priority Fee", m.customFeeInput.View(), "Enter to save • Esc to cancel"))
	}

	if m.view.Transaction == nil {
		content := boxStyle.Render(lipgloss.JoinVertical(lipgloss.Center,
			titleStyle.Render("Transaction Confirmation"),
			"\n",
			subtleStyle.Render("No pending requests."),
		))
		return m.place(lipgloss.JoinVertical(lipgloss.Center, content, "\n", m.footer()))
	}

	return m.place(lipgloss.JoinVertical(lipgloss.Center, m.viewPanel(), "\n", m.footer()))
}

func (m model) place(s string) string {
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, s)
}

func (m model) editBox(title, body, hint string) string {
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(title),
		"\n",
		body,
		"\n",
		subtleStyle.Render(hint),
	))
}

func (m model) viewPanel() string {
	p := m.view.Transaction

	title := kindTitle(p.Kind)
	if m.view.Length > 1 {
		title = fmt.Sprintf("%s (%d/%d)", title, m.view.Position+1, m.view.Length)
	}
	header := titleStyle.Render(title)

	var rows []string
	for _, r := range m.summaryRows() {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(r[0]), r[1]))
	}

	sections := []string{header, "\n", strings.Join(rows, "\n")}

	if tiers := m.feeTierBar(); tiers != "" {
		sections = append(sections, "\n", tiers)
	}

	if sim := m.simulationBlock(); sim != "" {
		sections = append(sections, "\n", sim)
	}

	if errs := errorLines(p); len(errs) > 0 {
		sections = append(sections, "\n", errStyle.Render(strings.Join(errs, "\n")))
	}
	if m.view.Error != "" {
		sections = append(sections, "\n", errStyle.Render(m.view.Error))
	}
	if m.busy != "" {
		sections = append(sections, "\n", m.spinner.View()+" "+m.busy+"...")
	} else if m.view.State == confirm.Confirming {
		sections = append(sections, "\n", m.spinner.View()+" Confirming...")
	}

	style := boxStyle
	if m.view.State == confirm.CriticalWarningGate {
		style = gateStyle
		sections = append(sections, "\n", errStyle.Bold(true).Render("Critical warning: press A to acknowledge before confirming"))
	}

	width := m.width - 4
	if width < 40 {
		width = 40
	}
	return style.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func (m model) feeTierBar() string {
	labels := tierLabels(m.view.Fee)
	if labels == nil {
		if m.view.Fee != nil && m.view.Fee.State == fees.Estimating {
			return subtleStyle.Render(m.spinner.View() + " Estimating fees...")
		}
		return ""
	}
	selected := m.view.Fee.Selected
	var parts []string
	for i, l := range labels {
		tier := fees.TierCustom
		if i < len(feeTiers) {
			tier = feeTiers[i]
		}
		if tier == selected {
			parts = append(parts, selectedTierStyle.Render(l))
		} else {
			parts = append(parts, tierStyle.Render(l))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m model) simulationBlock() string {
	if m.view.SimulationError != "" {
		return subtleStyle.Render("Simulation unavailable: " + m.view.SimulationError)
	}
	c := m.view.Simulation
	if c == nil {
		return ""
	}
	var lines []string
	for _, w := range warningLines(c) {
		if strings.HasPrefix(w, "[CRITICAL]") {
			lines = append(lines, errStyle.Render(w))
		} else {
			lines = append(lines, warnStyle.Render(w))
		}
	}
	for _, ch := range changeLines(c) {
		lines = append(lines, "  "+ch)
	}
	if len(lines) == 0 {
		return ""
	}
	return lipgloss.JoinVertical(lipgloss.Left, append([]string{subtleStyle.Render("Predicted changes")}, lines...)...)
}

func (m model) footer() string {
	line1 := "y:confirm • x:reject • X:reject all • g:gas • o:nonce • a:allowance • ?:help • q:quit"
	if m.view.Length > 1 {
		line1 = "Tab:next • " + line1
	}
	line2 := "1/2/3:tier • f:custom fee • F:clear • G:fee graph • d:details • c:copy • e:explorer"
	if m.view.State == confirm.CriticalWarningGate {
		line2 = "A:acknowledge • " + line2
	}
	line2 += fmt.Sprintf(" • v%s", Version)

	var footer string
	if m.width > 0 {
		l1 := subtleStyle.Width(m.width).Align(lipgloss.Center).Render(line1)
		l2 := subtleStyle.Width(m.width).Align(lipgloss.Center).Render(line2)
		footer = lipgloss.JoinVertical(lipgloss.Center, l1, l2)
	} else {
		footer = subtleStyle.Render(line1 + "\n" + line2)
	}

	if !m.watchStatus.LastSync.IsZero() {
		footer = lipgloss.JoinVertical(lipgloss.Center,
			subtleStyle.Render(fmt.Sprintf("Last sync: %s • %d pending", m.watchStatus.LastSync.Format("15:04:05"), m.watchStatus.Pending)),
			footer)
	}

	if m.statusMessage != "" {
		style := infoStyle
		if m.statusIsError {
			style = errStyle
		}
		footer = lipgloss.JoinVertical(lipgloss.Center, style.Render(m.statusMessage), footer)
	}
	return footer
}

func (m model) viewGasEditor() string {
	labels := map[int]string{
		gasLimitField:    "Gas Limit",
		gasPriceField:    "Gas Price",
		priorityFeeField: "Priority Fee",
		maxFeeField:      "Max Fee",
	}
	var inputs []string
	for _, f := range m.visibleGasFields() {
		inputs = append(inputs, fmt.Sprintf("%-15s %s", labels[f], m.gasInputs[f].View()))
	}
	body := strings.Join(inputs, "\n")
	if m.busy != "" {
		body += "\n\n" + m.spinner.View() + " " + m.busy + "..."
	}
	if m.statusMessage != "" && m.statusIsError {
		body += "\n\n" + errStyle.Render(m.statusMessage)
	}
	return m.place(m.editBox("Edit Gas", body, "Tab to move • Enter to next/save • Esc to cancel"))
}

func (m model) viewFeeGraph() string {
	header := titleStyle.Render(fmt.Sprintf("Base Fee: %s (Gwei)", orUnknown(m.view.Network.Name)))

	targetBoxWidth := m.width - 4
	if targetBoxWidth < 0 {
		targetBoxWidth = 0
	}

	var graph, stats string
	history := baseFeeHistory(m.view.Fee)
	if len(history) > 1 {
		low, high, sum := history[0], history[0], 0.0
		for _, v := range history {
			if v < low {
				low = v
			}
			if v > high {
				high = v
			}
			sum += v
		}
		stats = subtleStyle.Render(fmt.Sprintf("Low: %.2f • Avg: %.2f • High: %.2f", low, sum/float64(len(history)), high))

		graphWidth := targetBoxWidth - 14
		if graphWidth < 10 {
			graphWidth = 10
		}
		graphHeight := m.height - 14
		if graphHeight < 1 {
			graphHeight = 1
		}
		graph = asciigraph.Plot(history,
			asciigraph.Height(graphHeight),
			asciigraph.Width(graphWidth),
			asciigraph.Caption("Recent Base Fee (Gwei)"),
		)
	} else {
		graph = "Not enough data to draw graph."
	}

	content := boxStyle.Width(targetBoxWidth).Align(lipgloss.Center).Render(lipgloss.JoinVertical(lipgloss.Center, header, "\n", stats, "\n", graph))
	footer := subtleStyle.Render("G/q/esc: back")

	return m.place(lipgloss.JoinVertical(lipgloss.Center, content, "\n", footer))
}

func (m *model) updateDetailViewport() {
	p := m.view.Transaction
	if p == nil {
		m.viewport.SetContent("No pending requests.")
		return
	}

	lines := []string{
		fmt.Sprintf("ID:        %s", p.ID),
		fmt.Sprintf("Chain:     %s (%s)", p.ChainID, p.CoinType),
		fmt.Sprintf("Type:      %s", p.TxType),
		fmt.Sprintf("From:      %s", p.Sender),
	}
	if p.Recipient != "" {
		lines = append(lines, fmt.Sprintf("To:        %s", p.Recipient))
	}
	if p.Spender != "" {
		lines = append(lines, fmt.Sprintf("Spender:   %s", p.Spender))
	}
	if p.Token != nil {
		lines = append(lines, fmt.Sprintf("Contract:  %s", p.Token.ContractAddress))
	}
	if m.view.RecipientIsContract != nil && *m.view.RecipientIsContract {
		lines = append(lines, warnStyle.Render("Recipient is a contract"))
	}
	if p.GasLimit != "" {
		lines = append(lines, fmt.Sprintf("Gas Limit: %s", p.GasLimit))
	}
	if p.IsEIP1559 {
		lines = append(lines,
			fmt.Sprintf("Max Fee:   %s", gwei(p.MaxFeePerGas)),
			fmt.Sprintf("Priority:  %s", gwei(p.MaxPriorityFeePerGas)))
	} else if !p.GasPrice.IsNaN() {
		lines = append(lines, fmt.Sprintf("Gas Price: %s", gwei(p.GasPrice)))
	}
	if p.SignedMessage != "" {
		lines = append(lines, "", "Message:", p.SignedMessage)
	}

	if c := m.view.Simulation; c != nil {
		lines = append(lines, "", subtleStyle.Render("Simulation"))
		lines = append(lines, warningLines(c)...)
		lines = append(lines, changeLines(c)...)
	}

	m.viewport.SetContent(strings.Join(lines, "\n"))
}

func (m model) viewDetail() string {
	header := titleStyle.Render("Transaction Details")
	content := boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, header, "\n", m.viewport.View()))
	footer := subtleStyle.Render("↑/↓: scroll • d/q/esc: back")
	return m.place(lipgloss.JoinVertical(lipgloss.Center, content, "\n", footer))
}

func (m model) viewHelp() string {
	shortcuts := []string{
		"y/enter: Confirm",
		"x: Reject",
		"X: Reject all",
		"Tab/n: Next request",
		"A: Acknowledge critical warning",
		"g: Edit gas",
		"o: Edit nonce",
		"a: Edit allowance",
		"1/2/3: Slow/Average/Fast fee",
		"f: Custom priority fee",
		"F: Clear custom fee",
		"G: Base fee graph",
		"d: Details",
		"c: Copy recipient • C: Copy sender",
		"e: Open recipient in explorer",
		"r: Refresh",
		"q: Quit",
		"?: Toggle Help",
	}

	header := titleStyle.Render("Help: Confirmation")
	content := boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, header, "\n", strings.Join(shortcuts, "\n")))
	footer := subtleStyle.Render("Press '?' or 'esc' to close")

	return m.place(lipgloss.JoinVertical(lipgloss.Center, content, "\n", footer))
}
