package claude

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bhandras/delight-acp/internal/wire"
	"github.com/stretchr/testify/require"
)

// fakeClaude plays the process side of a bridge over in-memory pipes.
type fakeClaude struct {
	stdin  *bufio.Scanner
	stdout *io.PipeWriter
	lines  chan map[string]any
}

func newPipedBridge(t *testing.T) (*Bridge, *fakeClaude) {
	t.Helper()
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	fc := &fakeClaude{
		stdin:  bufio.NewScanner(inR),
		stdout: outW,
		lines:  make(chan map[string]any, 16),
	}
	go func() {
		defer close(fc.lines)
		for fc.stdin.Scan() {
			var m map[string]any
			if err := json.Unmarshal(fc.stdin.Bytes(), &m); err != nil {
				continue
			}
			fc.lines <- m
		}
	}()

	b := newBridge(inW, outR, nil, false)
	t.Cleanup(func() {
		_ = b.Kill()
		_ = outW.Close()
	})
	return b, fc
}

func (fc *fakeClaude) next(t *testing.T) map[string]any {
	t.Helper()
	select {
	case m, ok := <-fc.lines:
		if !ok {
			t.Fatalf("stdin closed")
		}
		return m
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for bridge output")
		return nil
	}
}

func (fc *fakeClaude) emit(t *testing.T, line string) {
	t.Helper()
	if _, err := io.WriteString(fc.stdout, line+"\n"); err != nil {
		t.Fatalf("emit: %v", err)
	}
}

func (fc *fakeClaude) ack(t *testing.T, req map[string]any) {
	t.Helper()
	fc.emit(t, fmt.Sprintf(`{"type":"control_response","response":{"subtype":"success","request_id":%q,"response":{}}}`, req["request_id"]))
}

func TestArgs(t *testing.T) {
	args := strings.Join(Args(Options{PermissionMode: "plan", ResumeToken: "sess-1", Model: "opus"}), " ")
	for _, want := range []string{
		"--output-format stream-json",
		"--input-format stream-json",
		"--include-partial-messages",
		"--permission-prompt-tool stdio",
		"--permission-mode plan",
		"--model opus",
		"--resume sess-1",
	} {
		if !strings.Contains(args, want) {
			t.Fatalf("expected %q in args, got: %s", want, args)
		}
	}

	args = strings.Join(Args(Options{}), " ")
	if strings.Contains(args, "--resume") || strings.Contains(args, "--permission-mode") {
		t.Fatalf("unexpected optional args: %s", args)
	}
}

func TestStartPerformsInitializeHandshake(t *testing.T) {
	b, fc := newPipedBridge(t)

	errCh := make(chan error, 1)
	go func() { errCh <- b.Start(context.Background()) }()

	req := fc.next(t)
	require.Equal(t, TypeControlRequest, req["type"])
	body := req["request"].(map[string]any)
	require.Equal(t, "initialize", body["subtype"])
	hooks := body["hooks"].(map[string]any)["PostToolUse"].([]any)
	require.Equal(t, []any{PostToolUseCallbackID}, hooks[0].(map[string]any)["hookCallbackIds"])

	fc.ack(t, req)
	require.NoError(t, <-errCh)
	require.True(t, b.IsRunning())
}

func TestStartFailsOnControlError(t *testing.T) {
	b, fc := newPipedBridge(t)

	errCh := make(chan error, 1)
	go func() { errCh <- b.Start(context.Background()) }()

	req := fc.next(t)
	fc.emit(t, fmt.Sprintf(`{"type":"control_response","response":{"subtype":"error","request_id":%q,"error":"nope"}}`, req["request_id"]))
	err := <-errCh
	require.Error(t, err)
	require.Contains(t, err.Error(), "nope")
}

func TestMessagesForwardedInOrder(t *testing.T) {
	b, fc := newPipedBridge(t)
	b.startIO()

	fc.emit(t, `{"type":"system","subtype":"init","session_id":"abc","model":"m"}`)
	fc.emit(t, `not json`)
	fc.emit(t, `{"type":"stream_event","event":{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"hi"}}}`)
	fc.emit(t, `{"type":"result","subtype":"success","is_error":false,"num_turns":1}`)
	_ = fc.stdout.Close()

	var types []string
	for msg := range b.Messages() {
		types = append(types, msg.Type)
	}
	require.Equal(t, []string{TypeSystem, TypeStreamEvent, TypeResult}, types)
	require.Equal(t, "abc", b.SessionID())
}

func TestSendUserMessageShape(t *testing.T) {
	b, fc := newPipedBridge(t)
	b.startIO()

	require.NoError(t, b.SendUserMessage([]wire.ContentBlock{{Type: "text", Text: "hello"}}))
	m := fc.next(t)
	require.Equal(t, "user", m["type"])
	require.Nil(t, m["parent_tool_use_id"])
	msg := m["message"].(map[string]any)
	require.Equal(t, "user", msg["role"])
	require.Equal(t, []any{map[string]any{"type": "text", "text": "hello"}}, msg["content"])
}

func TestPermissionResponseEnvelope(t *testing.T) {
	b, fc := newPipedBridge(t)
	b.startIO()

	require.NoError(t, b.SendPermissionResponse("r1", &PermissionResponse{
		Behavior:     BehaviorAllow,
		UpdatedInput: json.RawMessage(`{"command":"ls"}`),
	}))
	m := fc.next(t)
	require.Equal(t, TypeControlResponse, m["type"])
	resp := m["response"].(map[string]any)
	require.Equal(t, "success", resp["subtype"])
	require.Equal(t, "r1", resp["request_id"])
	require.Equal(t, map[string]any{
		"behavior":     "allow",
		"updatedInput": map[string]any{"command": "ls"},
	}, resp["response"])

	require.Error(t, b.SendControlResponse("", nil))
}

func TestInterruptAndSetModeAwaitResponse(t *testing.T) {
	b, fc := newPipedBridge(t)
	b.startIO()

	errCh := make(chan error, 1)
	go func() { errCh <- b.SetPermissionMode(context.Background(), "acceptEdits") }()
	req := fc.next(t)
	body := req["request"].(map[string]any)
	require.Equal(t, "set_permission_mode", body["subtype"])
	require.Equal(t, "acceptEdits", body["mode"])
	fc.ack(t, req)
	require.NoError(t, <-errCh)

	go func() { errCh <- b.Interrupt(context.Background()) }()
	req = fc.next(t)
	require.Equal(t, "interrupt", req["request"].(map[string]any)["subtype"])

	// Stream end fails the pending request instead of hanging.
	_ = fc.stdout.Close()
	require.Error(t, <-errCh)
}

func TestControlRequestDecoding(t *testing.T) {
	var req ControlRequest
	require.NoError(t, json.Unmarshal([]byte(`{"subtype":"hook_callback","callback_id":"cb","tool_use_id":"t1","input":{"hook_event_name":"PostToolUse","tool_response":{"x":1}}}`), &req))
	require.Nil(t, req.Input)
	require.Equal(t, "t1", req.ToolUseID)

	var hook HookInput
	require.NoError(t, json.Unmarshal(req.HookInput, &hook))
	require.Equal(t, "PostToolUse", hook.HookEventName)
	require.JSONEq(t, `{"x":1}`, string(hook.ToolResponse))

	require.NoError(t, json.Unmarshal([]byte(`{"subtype":"can_use_tool","tool_name":"Bash","input":{"command":"ls"},"tool_use_id":"t2"}`), &req))
	require.Equal(t, "Bash", req.ToolName)
	require.JSONEq(t, `{"command":"ls"}`, string(req.Input))
	require.Nil(t, req.HookInput)
}

func TestConcurrentKill(t *testing.T) {
	b, _ := newPipedBridge(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, b.Kill())
		}()
	}
	wg.Wait()

	require.NoError(t, b.Kill())
	require.False(t, b.IsRunning())
	select {
	case <-b.stopCh:
	default:
		t.Fatalf("stop channel still open")
	}
}
