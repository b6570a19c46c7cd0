package translate

import (
	"sync"

	"github.com/bhandras/delight-acp/internal/toolinfo"
)

// ToolUse is a cached tool invocation.
type ToolUse struct {
	// SessionID is the session that announced the tool use.
	SessionID string
	// Name is the tool name.
	Name string
	// Input is the most recent input seen for the tool use.
	Input toolinfo.Input
}

// ToolUseCache maps tool-use ids to their invocation. Ids are unique for the
// process lifetime, so one cache can be shared by every session of a registry.
type ToolUseCache struct {
	mu      sync.RWMutex
	entries map[string]ToolUse
}

// NewToolUseCache returns an empty cache.
func NewToolUseCache() *ToolUseCache {
	return &ToolUseCache{entries: make(map[string]ToolUse)}
}

// Put stores use under id and reports whether id was already present.
func (c *ToolUseCache) Put(id string, use ToolUse) (existed bool) {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, existed = c.entries[id]
	c.entries[id] = use
	return existed
}

// Get returns the tool use stored under id.
func (c *ToolUseCache) Get(id string) (ToolUse, bool) {
	if c == nil {
		return ToolUse{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	use, ok := c.entries[id]
	return use, ok
}

// ForgetSession drops every entry announced by sessionID.
func (c *ToolUseCache) ForgetSession(sessionID string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, use := range c.entries {
		if use.SessionID == sessionID {
			delete(c.entries, id)
		}
	}
}

// Len returns the number of cached entries.
func (c *ToolUseCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// FileCache holds full file text observed through tool reads and writes.
type FileCache interface {
	toolinfo.FileContents
	// StoreFile records the complete text of path.
	StoreFile(path string, text string)
}

// MemoryFileCache is an in-process FileCache.
type MemoryFileCache struct {
	mu    sync.RWMutex
	files map[string]string
}

// NewMemoryFileCache returns an empty MemoryFileCache.
func NewMemoryFileCache() *MemoryFileCache {
	return &MemoryFileCache{files: make(map[string]string)}
}

// FileContent implements toolinfo.FileContents.
func (c *MemoryFileCache) FileContent(path string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	text, ok := c.files[path]
	return text, ok
}

// StoreFile implements FileCache.
func (c *MemoryFileCache) StoreFile(path string, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files[path] = text
}
