// Package permission decides whether the upstream runtime may run a tool,
// based on the session's permission mode and, when needed, a human decision.
package permission

import (
	"errors"
	"fmt"
)

// Mode is a session permission mode.
type Mode string

const (
	// ModeDefault auto-allows read, search and agent tools and asks for the
	// rest.
	ModeDefault Mode = "default"
	// ModeAcceptEdits additionally auto-allows write tools.
	ModeAcceptEdits Mode = "acceptEdits"
	// ModePlan is read-only until the plan-exit tool is approved.
	ModePlan Mode = "plan"
	// ModeBypassPermissions allows every tool.
	ModeBypassPermissions Mode = "bypassPermissions"
)

// ErrInvalidMode is returned for mode ids outside the four known modes.
var ErrInvalidMode = errors.New("invalid permission mode")

// Modes returns every valid mode in display order.
func Modes() []Mode {
	return []Mode{ModeDefault, ModeAcceptEdits, ModePlan, ModeBypassPermissions}
}

// ParseMode validates a mode id. The empty string maps to ModeDefault.
func ParseMode(raw string) (Mode, error) {
	if raw == "" {
		return ModeDefault, nil
	}
	for _, m := range Modes() {
		if string(m) == raw {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, raw)
}

// allows reports whether the mode's static allow-list covers toolName.
func (m Mode) allows(rules Rules, toolName string) bool {
	switch m {
	case ModeBypassPermissions:
		return true
	case ModeAcceptEdits:
		if rules.Is(ClassWrite, toolName) {
			return true
		}
		fallthrough
	case ModeDefault, ModePlan:
		return rules.Is(ClassRead, toolName) ||
			rules.Is(ClassSearch, toolName) ||
			rules.Is(ClassAgent, toolName)
	}
	return false
}
