// Package tray provides a system tray interface showing the live rep count.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/reptrack/internal/rep"
)

// Tray represents the system tray application.
type Tray struct {
	onToggle func(enabled bool)
	onReset  func()
	onOpen   func()
	onQuit   func()
	enabled  bool
	state    rep.State
	mu       sync.RWMutex

	// Menu items stored for later updates
	menuToggle *systray.MenuItem
	menuCount  *systray.MenuItem
}

// New creates a new Tray instance with enabled state set to true by default.
func New() *Tray {
	return &Tray{
		enabled: true,
	}
}

// OnToggle sets the callback function to be called when counting is paused or resumed.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnReset sets the callback function to be called when "Reset count" is clicked.
func (t *Tray) OnReset(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onReset = fn
}

// OnOpen sets the callback function to be called when the web UI menu item is clicked.
func (t *Tray) OnOpen(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpen = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until Quit is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, func() {})
}

// Quit stops the tray loop started by Run.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady sets up the menu structure.
func (t *Tray) onReady() {
	t.mu.Lock()
	state := t.state

	systray.SetTitle(countTitle(state))
	systray.SetTooltip("reptrack pull-up counter")

	t.menuToggle = systray.AddMenuItem(toggleTitle(t.enabled), "Pause or resume counting")
	systray.AddSeparator()

	t.menuCount = systray.AddMenuItem(countDetail(state), "Current repetition")
	t.menuCount.Disable()
	menuReset := systray.AddMenuItem("Reset count", "Set the count back to zero")
	systray.AddSeparator()

	menuOpen := systray.AddMenuItem("Open Preview...", "Open the live preview in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit reptrack")
	t.mu.Unlock()

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuReset.ClickedCh:
				t.invoke(func() func() { return t.onReset })
			case <-menuOpen.ClickedCh:
				t.invoke(func() func() { return t.onOpen })
			case <-menuQuit.ClickedCh:
				t.invoke(func() func() { return t.onQuit })
				systray.Quit()
				return
			}
		}
	}()
}

// handleToggle handles the toggle menu item click.
func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled
	t.menuToggle.SetTitle(toggleTitle(enabled))
	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(enabled)
	}
}

// invoke reads a callback under the lock and calls it outside.
func (t *Tray) invoke(get func() func()) {
	t.mu.RLock()
	callback := get()
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// SetState updates the count shown in the tray.
func (t *Tray) SetState(state rep.State) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if state == t.state {
		return
	}
	t.state = state

	if t.menuCount != nil {
		systray.SetTitle(countTitle(state))
		t.menuCount.SetTitle(countDetail(state))
	}
}

// State returns the last state passed to SetState.
func (t *Tray) State() rep.State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

func countTitle(s rep.State) string {
	return fmt.Sprintf("Reps: %d", s.Count)
}

func countDetail(s rep.State) string {
	if s.Phase == rep.Flexed {
		return fmt.Sprintf("%d reps (up)", s.Count)
	}
	return fmt.Sprintf("%d reps (down)", s.Count)
}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Counting"
	}
	return "○ Paused"
}
