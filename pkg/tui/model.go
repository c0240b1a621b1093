package tui

import (
	"context"
	"time"

	"txconfirm/pkg/amount"
	"txconfirm/pkg/config"
	"txconfirm/pkg/confirm"
	"txconfirm/pkg/editor"
	"txconfirm/pkg/fees"
	"txconfirm/pkg/watcher"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Version is set by Start()
var Version = "dev"

// ActionTimeout bounds a single engine call started from a key press.
var ActionTimeout = 30 * time.Second

// Engine is the confirmation surface driven by the panel.
type Engine interface {
	View() confirm.View
	Subscribe() confirm.Subscriber
	Unsubscribe(confirm.Subscriber)

	Confirm(ctx context.Context) error
	Reject(ctx context.Context) error
	RejectAll(ctx context.Context) error
	Advance() error
	AcknowledgeCriticalWarning() error

	EnterEdit(kind confirm.EditKind) error
	ExitEdit() error
	SaveGas(ctx context.Context, in editor.GasInput) error
	SaveNonce(ctx context.Context, custom string) error
	SaveAllowance(ctx context.Context, in editor.AllowanceInput) error
	SuggestedGas() (editor.GasInput, error)

	SelectFeeTier(ctx context.Context, t fees.Tier) error
	SetCustomFee(ctx context.Context, v amount.Amount) error
	ClearCustomFee(ctx context.Context) error
}

// --- Messages ---

type clearStatusMsg struct{}
type uiTickMsg time.Time

// engineEventMsg wraps an engine event. A closed subscription arrives as ok=false.
type engineEventMsg struct {
	event confirm.Event
	ok    bool
}

// actionDoneMsg reports the outcome of an engine call.
type actionDoneMsg struct {
	op  string
	err error
}

// Gas editor fields, in input order.
const (
	gasLimitField = iota
	gasPriceField
	priorityFeeField
	maxFeeField
)

// --- Model ---

type model struct {
	engine  Engine
	sub     confirm.Subscriber
	watcher *watcher.Watcher
	wsub    watcher.Subscriber

	view        confirm.View
	watchStatus watcher.Status
	width       int
	height      int
	busy        string
	lastUpdate  time.Time
	spinner     spinner.Model

	statusMessage string
	statusIsError bool

	gasInputs      []textinput.Model
	gasFocus       int
	nonceInput     textinput.Model
	allowanceInput textinput.Model
	customFeeInput textinput.Model
	editingFee     bool

	showHelp     bool
	showFeeGraph bool
	showDetail   bool
	viewport     viewport.Model

	config config.GlobalConfig
}

func initialModel(e Engine, w *watcher.Watcher, globalCfg config.GlobalConfig) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	gis := make([]textinput.Model, 4)
	for i := range gis {
		gis[i] = textinput.New()
		gis[i].Width = 30
	}
	gis[gasLimitField].Placeholder = "Gas limit (e.g. 21000)"
	gis[gasPriceField].Placeholder = "Gas price (wei)"
	gis[priorityFeeField].Placeholder = "Max priority fee (wei)"
	gis[maxFeeField].Placeholder = "Max fee (wei)"

	nonceTi := textinput.New()
	nonceTi.Placeholder = "Nonce (empty to reset)"
	nonceTi.Width = 30

	allowTi := textinput.New()
	allowTi.Placeholder = "Custom allowance (empty for proposed)"
	allowTi.Width = 40

	feeTi := textinput.New()
	feeTi.Placeholder = "Priority fee (wei)"
	feeTi.Width = 30

	m := model{
		engine:         e,
		watcher:        w,
		spinner:        s,
		gasInputs:      gis,
		nonceInput:     nonceTi,
		allowanceInput: allowTi,
		customFeeInput: feeTi,
		viewport:       viewport.New(0, 0),
		lastUpdate:     time.Now(),
		config:         globalCfg,
	}
	if e != nil {
		m.view = e.View()
	}
	return m
}

func (m model) Init() tea.Cmd {
	var cmds []tea.Cmd

	if m.sub != nil {
		cmds = append(cmds, listenForEngine(m.sub))
	}
	if m.wsub != nil {
		cmds = append(cmds, listenForWatcher(m.wsub))
	}

	cmds = append(cmds, m.spinner.Tick)
	cmds = append(cmds, tea.Tick(time.Second, func(t time.Time) tea.Msg { return uiTickMsg(t) }))
	return tea.Batch(cmds...)
}
