package tui

import (
	"fmt"

	"txconfirm/pkg/config"
	"txconfirm/pkg/watcher"

	tea "github.com/charmbracelet/bubbletea"
)

// Start runs the confirmation panel until the user quits. w may be nil.
func Start(e Engine, w *watcher.Watcher, globalCfg config.GlobalConfig, version string) error {
	Version = version

	m := initialModel(e, w, globalCfg)
	m.sub = e.Subscribe()
	defer e.Unsubscribe(m.sub)
	if w != nil {
		m.wsub = w.Subscribe()
		defer w.Unsubscribe(m.wsub)
	}

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("alas, there's been an error: %w", err)
	}
	return nil
}
