// Package translate turns upstream content blocks into ordered session
// notifications with cross-referenced tool-call identity.
package translate

import (
	"github.com/bhandras/delight-acp/internal/toolinfo"
	"github.com/bhandras/delight-acp/internal/wire"
	"github.com/bhandras/delight-acp/pkg/logger"
)

// Translator converts one upstream content block at a time into
// notifications. It keeps no per-call state; the caches it mutates are
// injected and may be shared across sessions.
type Translator struct {
	toolUses *ToolUseCache
	hooks    *HookRegistry
	files    FileCache
}

// New returns a Translator over the given stores. files may be nil.
func New(toolUses *ToolUseCache, hooks *HookRegistry, files FileCache) *Translator {
	if toolUses == nil {
		toolUses = NewToolUseCache()
	}
	if hooks == nil {
		hooks = NewHookRegistry()
	}
	return &Translator{toolUses: toolUses, hooks: hooks, files: files}
}

// ToolUses returns the tool-use cache.
func (t *Translator) ToolUses() *ToolUseCache { return t.toolUses }

// Hooks returns the hook registry.
func (t *Translator) Hooks() *HookRegistry { return t.hooks }

// Files returns the file cache, which may be nil.
func (t *Translator) Files() FileCache { return t.files }

// TranslateBlocks translates blocks in order and concatenates the results.
func (t *Translator) TranslateBlocks(sessionID string, role wire.Role, blocks []wire.ContentBlock) []wire.Notification {
	var out []wire.Notification
	for _, block := range blocks {
		out = append(out, t.Translate(sessionID, role, block)...)
	}
	return out
}

// Translate converts a single block (or stream delta) into zero or more
// notifications.
func (t *Translator) Translate(sessionID string, role wire.Role, block wire.ContentBlock) []wire.Notification {
	notify := func(update wire.Update) []wire.Notification {
		return []wire.Notification{{SessionID: sessionID, Update: update}}
	}

	switch {
	case block.Type == wire.BlockText || block.Type == wire.DeltaText:
		if block.Text == "" {
			return nil
		}
		return notify(wire.MessageChunk{Role: role, Content: wire.Text(block.Text)})

	case block.Type == wire.BlockThinking || block.Type == wire.DeltaThinking:
		thought := block.String("thinking")
		if thought == "" {
			return nil
		}
		return notify(wire.ThoughtChunk{Content: wire.Text(thought)})

	case block.Type == wire.BlockImage:
		content, ok := imageContent(block)
		if !ok {
			return nil
		}
		return notify(wire.MessageChunk{Role: role, Content: content})

	case block.IsToolUse():
		return t.toolUse(sessionID, block)

	case block.IsToolResult():
		return t.toolResult(sessionID, block)

	default:
		return nil
	}
}

func (t *Translator) toolUse(sessionID string, block wire.ContentBlock) []wire.Notification {
	id := block.String("id")
	name := block.String("name")
	if id == "" {
		logger.Warnf("tool use block without id (tool=%s)", name)
		return nil
	}
	input := toolinfo.AsInput(block.Field("input"))
	existed := t.toolUses.Put(id, ToolUse{SessionID: sessionID, Name: name, Input: input})

	if toolinfo.IsProgressList(name) {
		return []wire.Notification{{
			SessionID: sessionID,
			Update:    wire.PlanUpdate{Entries: toolinfo.PlanEntries(input)},
		}}
	}

	info := toolinfo.FromToolUse(name, input, t.files)
	if existed {
		return []wire.Notification{{
			SessionID: sessionID,
			Update: wire.ToolCallUpdate{
				ToolCallID: id,
				Title:      info.Title,
				ToolKind:   info.Kind,
				RawInput:   map[string]any(input),
				Content:    info.Content,
				Locations:  info.Locations,
			},
		}}
	}

	t.hooks.Register(sessionID, id, t.enrichment(sessionID, id))
	return []wire.Notification{{
		SessionID: sessionID,
		Update: wire.ToolCall{
			ToolCallID: id,
			Title:      info.Title,
			ToolKind:   info.Kind,
			Status:     wire.ToolCallPending,
			RawInput:   map[string]any(input),
			Content:    info.Content,
			Locations:  info.Locations,
		},
	}}
}

// enrichment builds the one-shot hook callback for a tool use. The cached
// input is read at invocation time so later refreshes are honored.
func (t *Translator) enrichment(sessionID, id string) HookFunc {
	return func(response any) []wire.Notification {
		use, ok := t.toolUses.Get(id)
		if !ok {
			return nil
		}
		e := toolinfo.FromHookResponse(use.Name, use.Input, response)
		if e.HasFile() && t.files != nil {
			t.files.StoreFile(e.FilePath, e.FileText)
		}
		if e.Update.Empty() {
			return nil
		}
		return []wire.Notification{{
			SessionID: sessionID,
			Update: wire.ToolCallUpdate{
				ToolCallID: id,
				Title:      e.Title,
				Content:    e.Content,
				Locations:  e.Locations,
			},
		}}
	}
}

func (t *Translator) toolResult(sessionID string, block wire.ContentBlock) []wire.Notification {
	id := block.String("tool_use_id")
	use, ok := t.toolUses.Get(id)
	if !ok {
		logger.Debugf("tool result correlation miss (session=%s tool_use_id=%s)", sessionID, id)
		return nil
	}
	if toolinfo.IsProgressList(use.Name) {
		return nil
	}

	status := wire.ToolCallCompleted
	if toolinfo.IsErrorResult(block) {
		status = wire.ToolCallFailed
		// PostToolUse does not fire for failed or denied tools.
		t.hooks.Take(id)
	}
	up := toolinfo.FromToolResult(use.Name, use.Input, block)
	return []wire.Notification{{
		SessionID: sessionID,
		Update: wire.ToolCallUpdate{
			ToolCallID: id,
			Title:      up.Title,
			Status:     status,
			Content:    up.Content,
			Locations:  up.Locations,
		},
	}}
}

func imageContent(block wire.ContentBlock) (wire.Content, bool) {
	src := toolinfo.AsInput(block.Field("source"))
	switch src.String("type") {
	case "base64":
		return wire.Content{
			Type:     wire.ContentImage,
			Data:     src.String("data"),
			MimeType: src.String("media_type"),
		}, true
	case "url":
		return wire.Content{Type: wire.ContentImage, URI: src.String("url")}, true
	}
	return wire.Content{}, false
}
