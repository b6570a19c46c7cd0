package fakeengine

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bhandras/delight-acp/internal/agentengine"
	"github.com/bhandras/delight-acp/internal/wire"
)

// EchoPrefix starts every echoed reply.
const EchoPrefix = "fake-agent: "

// Echo scripts e as a minimal agent: each turn echoes the prompt text back.
// A prompt of the form "run <command>" instead asks to run <command> with the
// shell tool and reports the outcome once the permission is answered. An
// interrupt while the permission is pending ends the turn immediately.
func Echo(e *Engine) {
	var pending, interrupted bool

	e.OnSend = func(turn int, content []wire.ContentBlock) []agentengine.Event {
		text := promptText(content)
		events := []agentengine.Event{
			agentengine.EvInit{CorrelationID: "fake-" + e.spec.SessionID},
		}

		command, ok := strings.CutPrefix(text, "run ")
		if !ok {
			return append(events,
				agentengine.EvStream{
					Event: agentengine.StreamContentBlockDelta,
					Delta: &wire.ContentBlock{Type: wire.DeltaText, Text: EchoPrefix + text},
				},
				agentengine.EvResult{Subtype: agentengine.ResultSuccess, NumTurns: turn},
			)
		}

		id := fmt.Sprintf("toolu_fake_%d", turn)
		input := map[string]any{"command": command}
		raw, _ := json.Marshal(input)
		pending = true
		return append(events,
			agentengine.EvMessage{Role: "assistant", Content: []wire.ContentBlock{{
				Type:   wire.BlockToolUse,
				Fields: map[string]any{"id": id, "name": "Bash", "input": input},
			}}},
			agentengine.EvPermissionRequest{RequestID: id, ToolName: "Bash", ToolUseID: id, Input: raw},
		)
	}

	e.OnRespond = func(requestID string, resp agentengine.PermissionResponse) []agentengine.Event {
		pending = false
		if interrupted {
			interrupted = false
			return nil
		}
		result := map[string]any{"tool_use_id": requestID, "content": "ok"}
		if !resp.Allow {
			result["content"] = resp.Message
			result["is_error"] = true
		}
		return []agentengine.Event{
			agentengine.EvMessage{Role: "user", Content: []wire.ContentBlock{{
				Type:   wire.BlockToolResult,
				Fields: result,
			}}},
			agentengine.EvResult{Subtype: agentengine.ResultSuccess},
		}
	}

	e.OnInterrupt = func() []agentengine.Event {
		if !pending {
			return nil
		}
		interrupted = true
		return []agentengine.Event{agentengine.EvResult{
			Subtype: agentengine.ResultErrorDuringExecution,
			IsError: true,
		}}
	}
}

func promptText(content []wire.ContentBlock) string {
	var b strings.Builder
	for _, block := range content {
		if block.Type == wire.BlockText {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}
