package common

import (
	"errors"
	"sync"
)

// ErrModulePaused is returned when a guarded module has been administratively
// halted.
var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a named module is currently paused.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the call when the module is paused. A nil view or empty module
// name disables the check.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// PauseSwitch is a concurrency-safe PauseView with runtime toggles, used by
// the resolver's admin surface to halt swap mutations during incidents.
type PauseSwitch struct {
	mu     sync.RWMutex
	paused map[string]bool
}

// NewPauseSwitch constructs an empty switchboard; every module starts running.
func NewPauseSwitch() *PauseSwitch {
	return &PauseSwitch{paused: make(map[string]bool)}
}

// IsPaused implements PauseView.
func (s *PauseSwitch) IsPaused(module string) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused[module]
}

// Pause halts the named module.
func (s *PauseSwitch) Pause(module string) {
	if s == nil || module == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused[module] = true
}

// Resume lifts a previous pause.
func (s *PauseSwitch) Resume(module string) {
	if s == nil || module == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.paused, module)
}
