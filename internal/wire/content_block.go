package wire

import (
	"encoding/json"
)

// Upstream content block kinds emitted by the Claude Code runtime.
const (
	BlockText              = "text"
	BlockThinking          = "thinking"
	BlockRedactedThinking  = "redacted_thinking"
	BlockImage             = "image"
	BlockToolUse           = "tool_use"
	BlockServerToolUse     = "server_tool_use"
	BlockMCPToolUse        = "mcp_tool_use"
	BlockToolResult        = "tool_result"
	BlockMCPToolResult     = "mcp_tool_result"
	BlockWebSearchResult   = "web_search_tool_result"
	BlockWebFetchResult    = "web_fetch_tool_result"
	BlockCodeExecResult    = "code_execution_tool_result"
	BlockBashCodeExecution = "bash_code_execution_tool_result"
	BlockTextEditorResult  = "text_editor_code_execution_tool_result"

	// Streaming delta kinds carried by content_block_delta events.
	DeltaText      = "text_delta"
	DeltaThinking  = "thinking_delta"
	DeltaInputJSON = "input_json_delta"
	DeltaSignature = "signature_delta"
	DeltaCitations = "citations_delta"
)

// ContentBlock is a single structured content block within an upstream
// message or stream delta.
//
// The runtime emits many block kinds (text/tool_use/tool_result/etc). This
// type preserves unknown fields so kind-specific attributes survive decoding.
type ContentBlock struct {
	// Type identifies the block kind (e.g. "text").
	Type string `json:"type"`
	// Text contains the block text when Type is "text" or "text_delta".
	Text string `json:"text,omitempty"`
	// Fields stores additional block-specific attributes.
	Fields map[string]any `json:"-"`
}

// MarshalJSON preserves the block fields while ensuring Type/Text are included.
func (b ContentBlock) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(b.Fields)+2)
	for k, v := range b.Fields {
		out[k] = v
	}
	if b.Type != "" {
		out["type"] = b.Type
	}
	if b.Text != "" {
		out["text"] = b.Text
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a content block while preserving unknown fields.
func (b *ContentBlock) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	blockType, _ := raw["type"].(string)
	text, _ := raw["text"].(string)
	delete(raw, "type")
	delete(raw, "text")

	b.Type = blockType
	b.Text = text
	if len(raw) == 0 {
		b.Fields = nil
		return nil
	}
	b.Fields = raw
	return nil
}

// String returns a string field, or "" when absent or not a string.
func (b ContentBlock) String(key string) string {
	v, _ := b.Fields[key].(string)
	return v
}

// Bool returns a bool field, or false when absent or not a bool.
func (b ContentBlock) Bool(key string) bool {
	v, _ := b.Fields[key].(bool)
	return v
}

// Object returns an object field, or nil when absent or not an object.
func (b ContentBlock) Object(key string) map[string]any {
	v, _ := b.Fields[key].(map[string]any)
	return v
}

// Field returns the raw decoded value of a field.
func (b ContentBlock) Field(key string) any {
	return b.Fields[key]
}

// IsToolUse reports whether the block is any tool invocation variant.
func (b ContentBlock) IsToolUse() bool {
	switch b.Type {
	case BlockToolUse, BlockServerToolUse, BlockMCPToolUse:
		return true
	}
	return false
}

// IsToolResult reports whether the block belongs to the tool-result family.
func (b ContentBlock) IsToolResult() bool {
	switch b.Type {
	case BlockToolResult, BlockMCPToolResult, BlockWebSearchResult,
		BlockWebFetchResult, BlockCodeExecResult, BlockBashCodeExecution,
		BlockTextEditorResult:
		return true
	}
	return false
}

// DecodeContentBlocks decodes a `message.content` value into []ContentBlock.
//
// Content arrives either as a bare string (user echoes) or as a list of
// blocks in one of a few decoded shapes. All shapes are normalized without
// discarding unknown per-block fields.
func DecodeContentBlocks(v any) ([]ContentBlock, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		if t == "" {
			return nil, nil
		}
		return []ContentBlock{{Type: BlockText, Text: t}}, nil
	case []ContentBlock:
		return t, nil
	case json.RawMessage:
		return decodeRawBlocks(t)
	case []byte:
		return decodeRawBlocks(t)
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		return decodeRawBlocks(raw)
	}
}

func decodeRawBlocks(raw []byte) ([]ContentBlock, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return DecodeContentBlocks(text)
	}
	var out []ContentBlock
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
