package translate

import (
	"sync"

	"github.com/bhandras/delight-acp/internal/wire"
)

// HookFunc turns a post-execution enrichment into notifications.
type HookFunc func(response any) []wire.Notification

type hookEntry struct {
	sessionID string
	fn        HookFunc
}

// HookRegistry holds one-shot enrichment callbacks keyed by tool-use id.
type HookRegistry struct {
	mu    sync.Mutex
	hooks map[string]hookEntry
}

// NewHookRegistry returns an empty registry.
func NewHookRegistry() *HookRegistry {
	return &HookRegistry{hooks: make(map[string]hookEntry)}
}

// Register installs fn for toolUseID, replacing any previous callback.
func (r *HookRegistry) Register(sessionID, toolUseID string, fn HookFunc) {
	if r == nil || fn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[toolUseID] = hookEntry{sessionID: sessionID, fn: fn}
}

// Take atomically removes and returns the callback for toolUseID. A second
// Take for the same id always misses.
func (r *HookRegistry) Take(toolUseID string) (HookFunc, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.hooks[toolUseID]
	if !ok {
		return nil, false
	}
	delete(r.hooks, toolUseID)
	return entry.fn, true
}

// DropSession removes every callback registered by sessionID. It returns the
// number of callbacks removed.
func (r *HookRegistry) DropSession(sessionID string) int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, entry := range r.hooks {
		if entry.sessionID == sessionID {
			delete(r.hooks, id)
			n++
		}
	}
	return n
}

// Len returns the number of pending callbacks.
func (r *HookRegistry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.hooks)
}
