package common

import (
	"errors"
	"strings"
)

// ErrModulePaused is returned by Guard when the module has been halted.
var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a module currently refuses new work.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard returns ErrModulePaused when p reports module as paused. A nil view
// never blocks.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// StaticPauses is a fixed pause list, typically loaded from configuration.
type StaticPauses map[string]bool

// NewStaticPauses marks every named module as paused. Names are matched
// case-insensitively.
func NewStaticPauses(modules ...string) StaticPauses {
	pauses := make(StaticPauses, len(modules))
	for _, module := range modules {
		if trimmed := strings.ToLower(strings.TrimSpace(module)); trimmed != "" {
			pauses[trimmed] = true
		}
	}
	return pauses
}

// IsPaused implements PauseView.
func (s StaticPauses) IsPaused(module string) bool {
	return s[strings.ToLower(strings.TrimSpace(module))]
}
