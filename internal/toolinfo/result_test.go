package toolinfo

import (
	"testing"

	"github.com/bhandras/delight-acp/internal/wire"
	"github.com/stretchr/testify/require"
)

func result(content any, isError bool) wire.ContentBlock {
	fields := map[string]any{"tool_use_id": "t1", "content": content}
	if isError {
		fields["is_error"] = true
	}
	return wire.ContentBlock{Type: wire.BlockToolResult, Fields: fields}
}

func TestFromToolResultPerKind(t *testing.T) {
	t.Run("read is fenced without reminders", func(t *testing.T) {
		up := FromToolResult(ToolRead, Input{}, result("line1\n<system-reminder>x</system-reminder>", false))
		require.Len(t, up.Content, 1)
		require.Equal(t, "```\nline1\n```", up.Content[0].Content.Text)
	})

	t.Run("write success is quiet", func(t *testing.T) {
		up := FromToolResult(ToolWrite, Input{}, result("File written", false))
		require.True(t, up.Empty())
	})

	t.Run("bash error is surfaced fenced", func(t *testing.T) {
		up := FromToolResult(ToolBash, Input{}, result([]any{
			map[string]any{"type": "text", "text": "exit 1"},
		}, true))
		require.Len(t, up.Content, 1)
		require.Equal(t, "```\nexit 1\n```", up.Content[0].Content.Text)
	})

	t.Run("plan exit relabels", func(t *testing.T) {
		up := FromToolResult(ToolExitPlanMode, Input{}, result("ok", false))
		require.Equal(t, "Exited Plan Mode", up.Title)
		require.Empty(t, up.Content)
	})

	t.Run("question surfaces first text", func(t *testing.T) {
		up := FromToolResult(ToolAskUserQuestion, Input{}, result([]any{
			map[string]any{"type": "text", "text": "Postgres"},
			map[string]any{"type": "text", "text": "ignored"},
		}, false))
		require.Equal(t, "Answer received", up.Title)
		require.Len(t, up.Content, 1)
		require.Equal(t, "Postgres", up.Content[0].Content.Text)
	})

	t.Run("search results are plain", func(t *testing.T) {
		up := FromToolResult(ToolGlob, Input{}, result("a.go\nb.go", false))
		require.Len(t, up.Content, 1)
		require.Equal(t, "a.go\nb.go", up.Content[0].Content.Text)
	})

	t.Run("web search links", func(t *testing.T) {
		block := wire.ContentBlock{Type: wire.BlockWebSearchResult, Fields: map[string]any{
			"tool_use_id": "t1",
			"content": []any{
				map[string]any{"type": "web_search_result", "title": "Go", "url": "https://go.dev"},
			},
		}}
		up := FromToolResult(ToolWebSearch, Input{}, block)
		require.Equal(t, "[Go](https://go.dev)", up.Content[0].Content.Text)
	})
}

func TestIsErrorResultDetectsServerToolErrors(t *testing.T) {
	block := wire.ContentBlock{Type: wire.BlockWebFetchResult, Fields: map[string]any{
		"content": map[string]any{"type": "web_fetch_tool_result_error", "error_code": "url_not_allowed"},
	}}
	require.True(t, IsErrorResult(block))
	require.Equal(t, []string{"url_not_allowed"}, ResultTexts(block))
}

func TestFromHookResponse(t *testing.T) {
	t.Run("complete read fills cache", func(t *testing.T) {
		e := FromHookResponse(ToolRead, Input{"file_path": "/a"}, map[string]any{
			"type": "text",
			"file": map[string]any{"filePath": "/a", "content": "x\ny", "startLine": float64(1), "numLines": float64(2), "totalLines": float64(2)},
		})
		require.True(t, e.HasFile())
		require.Equal(t, "x\ny", e.FileText)
		require.True(t, e.Update.Empty())
	})

	t.Run("partial read is ignored", func(t *testing.T) {
		e := FromHookResponse(ToolRead, Input{}, map[string]any{
			"file": map[string]any{"filePath": "/a", "content": "y", "startLine": float64(2), "numLines": float64(1), "totalLines": float64(2)},
		})
		require.False(t, e.HasFile())
	})

	t.Run("edit patch yields lines and new file", func(t *testing.T) {
		in := Input{"file_path": "/a", "old_string": "b", "new_string": "B"}
		e := FromHookResponse(ToolEdit, in, map[string]any{
			"filePath":        "/a",
			"originalFile":    "a\nb\n",
			"structuredPatch": []any{map[string]any{"newStart": float64(2)}},
		})
		require.Len(t, e.Locations, 1)
		require.Equal(t, 2, *e.Locations[0].Line)
		require.Equal(t, "a\nB\n", e.FileText)
	})

	t.Run("other tools carry nothing", func(t *testing.T) {
		e := FromHookResponse(ToolBash, Input{}, map[string]any{"stdout": "hi"})
		require.True(t, e.Update.Empty())
		require.False(t, e.HasFile())
	})
}
