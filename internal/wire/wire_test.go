package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContentBlockPreservesUnknownFields(t *testing.T) {
	raw := []byte(`{"type":"tool_use","id":"toolu_1","name":"Read","input":{"file_path":"/a"}}`)

	var block ContentBlock
	require.NoError(t, json.Unmarshal(raw, &block))
	require.Equal(t, BlockToolUse, block.Type)
	require.Equal(t, "toolu_1", block.String("id"))
	require.Equal(t, "/a", block.Object("input")["file_path"])
	require.True(t, block.IsToolUse())
	require.False(t, block.IsToolResult())

	out, err := json.Marshal(block)
	require.NoError(t, err)
	require.JSONEq(t, string(raw), string(out))
}

func TestDecodeContentBlocksShapes(t *testing.T) {
	blocks, err := DecodeContentBlocks("hello")
	require.NoError(t, err)
	require.Equal(t, []ContentBlock{{Type: BlockText, Text: "hello"}}, blocks)

	blocks, err = DecodeContentBlocks(json.RawMessage(`"hi"`))
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	require.Equal(t, "hi", blocks[0].Text)

	blocks, err = DecodeContentBlocks([]any{
		map[string]any{"type": "text", "text": "a"},
		map[string]any{"type": "tool_result", "tool_use_id": "t1", "is_error": true},
	})
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	require.True(t, blocks[1].IsToolResult())
	require.True(t, blocks[1].Bool("is_error"))

	blocks, err = DecodeContentBlocks(nil)
	require.NoError(t, err)
	require.Nil(t, blocks)
}

func TestNotificationMarshalAddsDiscriminator(t *testing.T) {
	cases := []struct {
		name   string
		update Update
		want   string
	}{
		{
			name:   "agent chunk",
			update: MessageChunk{Role: RoleAssistant, Content: Text("hi")},
			want:   `{"sessionId":"s1","update":{"sessionUpdate":"agent_message_chunk","content":{"type":"text","text":"hi"}}}`,
		},
		{
			name:   "user chunk",
			update: MessageChunk{Role: RoleUser, Content: Text("yo")},
			want:   `{"sessionId":"s1","update":{"sessionUpdate":"user_message_chunk","content":{"type":"text","text":"yo"}}}`,
		},
		{
			name:   "mode",
			update: ModeChange{ModeID: "acceptEdits"},
			want:   `{"sessionId":"s1","update":{"sessionUpdate":"current_mode_update","currentModeId":"acceptEdits"}}`,
		},
		{
			name:   "tool call",
			update: ToolCall{ToolCallID: "t1", Title: "Read /a", ToolKind: ToolKindRead, Status: ToolCallPending},
			want:   `{"sessionId":"s1","update":{"sessionUpdate":"tool_call","toolCallId":"t1","title":"Read /a","kind":"read","status":"pending"}}`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := json.Marshal(Notification{SessionID: "s1", Update: tc.update})
			require.NoError(t, err)
			require.JSONEq(t, tc.want, string(out))
		})
	}

	_, err := json.Marshal(Notification{SessionID: "s1"})
	require.Error(t, err)
}

func TestDiffToolContentKeepsEmptyNewText(t *testing.T) {
	out, err := json.Marshal(DiffToolContent("/a", nil, ""))
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"diff","path":"/a","newText":""}`, string(out))
}
