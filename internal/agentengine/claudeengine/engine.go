// Package claudeengine adapts the Claude Code stream-json bridge to
// agentengine.Upstream.
package claudeengine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/bhandras/delight-acp/internal/agentengine"
	"github.com/bhandras/delight-acp/internal/claude"
	"github.com/bhandras/delight-acp/internal/wire"
	"github.com/bhandras/delight-acp/pkg/logger"
)

const (
	// shutdownTimeout bounds how long Close waits for the process to exit.
	shutdownTimeout = 5 * time.Second

	// pingEvent is an Anthropic keepalive stream event with no content.
	pingEvent = "ping"
)

// bridge is the subset of *claude.Bridge the engine drives.
type bridge interface {
	Messages() <-chan *claude.Message
	SendUserMessage(content []wire.ContentBlock) error
	SendPermissionResponse(requestID string, response *claude.PermissionResponse) error
	SendControlResponse(requestID string, response any) error
	SendControlError(requestID string, message string) error
	Interrupt(ctx context.Context) error
	SetPermissionMode(ctx context.Context, mode string) error
	Kill() error
	Wait() error
}

// Options configures engines started by a Factory.
type Options struct {
	// Path is the Claude Code executable.
	Path string
	// Model selects the upstream model when set.
	Model string
	// Env is appended to the inherited environment.
	Env []string
	// Debug enables verbose bridge logging.
	Debug bool
}

// Factory starts Claude engines.
type Factory struct {
	opts Options
}

// NewFactory returns a factory that spawns Claude Code with opts.
func NewFactory(opts Options) *Factory {
	return &Factory{opts: opts}
}

// Start implements agentengine.Factory.
func (f *Factory) Start(ctx context.Context, spec agentengine.StartSpec) (agentengine.Upstream, error) {
	if spec.WorkDir == "" {
		return nil, fmt.Errorf("missing workDir")
	}
	b, err := claude.NewBridge(claude.Options{
		Path:           f.opts.Path,
		WorkDir:        spec.WorkDir,
		ResumeToken:    spec.ResumeToken,
		PermissionMode: spec.PermissionMode,
		Model:          f.opts.Model,
		Env:            f.opts.Env,
		Debug:          f.opts.Debug,
	})
	if err != nil {
		return nil, err
	}
	if err := b.Start(ctx); err != nil {
		return nil, err
	}
	return newEngine(b), nil
}

// Engine implements agentengine.Upstream over a Claude Code process.
type Engine struct {
	bridge bridge

	events chan agentengine.Event
	closed chan struct{}
	done   chan struct{}
	once   sync.Once
}

func newEngine(b bridge) *Engine {
	e := &Engine{
		bridge: b,
		events: make(chan agentengine.Event, 128),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go e.forward()
	return e
}

// Events implements agentengine.Upstream.
func (e *Engine) Events() <-chan agentengine.Event {
	return e.events
}

// Send implements agentengine.Upstream.
func (e *Engine) Send(ctx context.Context, content []wire.ContentBlock) error {
	_ = ctx
	if e == nil {
		return fmt.Errorf("claude engine is nil")
	}
	return e.bridge.SendUserMessage(content)
}

// RespondPermission implements agentengine.Upstream.
func (e *Engine) RespondPermission(ctx context.Context, requestID string, resp agentengine.PermissionResponse) error {
	_ = ctx
	if e == nil {
		return fmt.Errorf("claude engine is nil")
	}
	out, err := permissionResponse(resp)
	if err != nil {
		return err
	}
	return e.bridge.SendPermissionResponse(requestID, out)
}

func permissionResponse(resp agentengine.PermissionResponse) (*claude.PermissionResponse, error) {
	if !resp.Allow {
		return &claude.PermissionResponse{
			Behavior:  claude.BehaviorDeny,
			Message:   resp.Message,
			Interrupt: resp.Interrupt,
		}, nil
	}

	input := resp.UpdatedInput
	if input == nil {
		input = map[string]any{}
	}
	// Claude Code expects allow responses to include updatedInput even when
	// unmodified.
	raw, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("encode updated input: %w", err)
	}
	out := &claude.PermissionResponse{Behavior: claude.BehaviorAllow, UpdatedInput: raw}
	if len(resp.UpdatedPermissions) > 0 {
		out.UpdatedPermissions = resp.UpdatedPermissions
	}
	return out, nil
}

// Interrupt implements agentengine.Upstream.
func (e *Engine) Interrupt(ctx context.Context) error {
	if e == nil {
		return nil
	}
	return e.bridge.Interrupt(ctx)
}

// SetPermissionMode implements agentengine.Upstream.
func (e *Engine) SetPermissionMode(ctx context.Context, mode string) error {
	if e == nil {
		return nil
	}
	return e.bridge.SetPermissionMode(ctx, mode)
}

// Close implements agentengine.Upstream.
func (e *Engine) Close(ctx context.Context) error {
	if e == nil {
		return nil
	}
	e.once.Do(func() { close(e.closed) })
	killErr := e.bridge.Kill()

	waitCtx := ctx
	if waitCtx == nil {
		waitCtx = context.Background()
	}
	if deadline, ok := waitCtx.Deadline(); !ok || time.Until(deadline) > shutdownTimeout {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(waitCtx, shutdownTimeout)
		defer cancel()
	}

	select {
	case <-waitCtx.Done():
		return waitCtx.Err()
	case <-e.done:
		return killErr
	}
}

// forward converts bridge messages into events until the bridge's stream
// ends, then reports the process exit and closes the event channel.
func (e *Engine) forward() {
	defer close(e.done)
	defer close(e.events)

	for msg := range e.bridge.Messages() {
		ev := e.convert(msg)
		if ev == nil {
			continue
		}
		if !e.emit(ev) {
			return
		}
	}

	e.emit(agentengine.EvExited{Err: e.bridge.Wait()})
}

// emit delivers ev without dropping it. It returns false once the engine is
// closed.
func (e *Engine) emit(ev agentengine.Event) bool {
	select {
	case e.events <- ev:
		return true
	case <-e.closed:
		return false
	}
}

// convert maps one stream-json message to an event. Control requests that
// need no caller decision are answered here and may yield nil.
func (e *Engine) convert(msg *claude.Message) agentengine.Event {
	if msg == nil {
		return nil
	}

	switch msg.Type {
	case claude.TypeSystem:
		if msg.Subtype == claude.SystemInit {
			return agentengine.EvInit{
				CorrelationID: msg.SessionID,
				Model:         msg.Model,
				Cwd:           msg.Cwd,
				Tools:         msg.Tools,
			}
		}
		return agentengine.EvSystem{Subtype: msg.Subtype}

	case claude.TypeKeepAlive:
		return agentengine.EvSystem{Subtype: msg.Type}

	case claude.TypeControlCancel:
		logger.Debugf("Claude cancelled control request %s", msg.RequestID)
		return agentengine.EvSystem{Subtype: msg.Type}

	case claude.TypeStreamEvent:
		return convertStream(msg)

	case claude.TypeAssistant, claude.TypeUser:
		return convertMessage(msg)

	case claude.TypeResult:
		return agentengine.EvResult{
			Subtype:  msg.Subtype,
			IsError:  msg.IsError,
			Result:   msg.Result,
			NumTurns: msg.NumTurns,
		}

	case claude.TypeControlRequest:
		return e.convertControl(msg)
	}

	return unknown(msg)
}

func unknown(msg *claude.Message) agentengine.Event {
	return agentengine.EvUnknown{Type: msg.Type, Raw: msg.Raw}
}

func convertStream(msg *claude.Message) agentengine.Event {
	var se claude.StreamEvent
	if err := json.Unmarshal(msg.Event, &se); err != nil {
		logger.Warnf("Invalid stream event: %v", err)
		return unknown(msg)
	}

	ev := agentengine.EvStream{Event: se.Type, Index: se.Index, ParentToolUseID: msg.Parent()}
	switch se.Type {
	case agentengine.StreamContentBlockStart:
		var block wire.ContentBlock
		if err := json.Unmarshal(se.ContentBlock, &block); err != nil {
			return unknown(msg)
		}
		ev.Block = &block
	case agentengine.StreamContentBlockDelta:
		var delta wire.ContentBlock
		if err := json.Unmarshal(se.Delta, &delta); err != nil {
			return unknown(msg)
		}
		ev.Delta = &delta
	case agentengine.StreamContentBlockStop,
		agentengine.StreamMessageStart,
		agentengine.StreamMessageDelta,
		agentengine.StreamMessageStop,
		pingEvent:
	default:
		return unknown(msg)
	}
	return ev
}

func convertMessage(msg *claude.Message) agentengine.Event {
	var body claude.APIMessage
	if err := json.Unmarshal(msg.Message, &body); err != nil {
		logger.Warnf("Invalid %s message: %v", msg.Type, err)
		return unknown(msg)
	}
	content, err := wire.DecodeContentBlocks(body.Content)
	if err != nil {
		logger.Warnf("Invalid %s message content: %v", msg.Type, err)
		return unknown(msg)
	}
	role := body.Role
	if role == "" {
		role = msg.Type
	}
	return agentengine.EvMessage{
		Role:            role,
		Model:           body.Model,
		Content:         content,
		ParentToolUseID: msg.Parent(),
	}
}

func (e *Engine) convertControl(msg *claude.Message) agentengine.Event {
	var req claude.ControlRequest
	if err := json.Unmarshal(msg.Request, &req); err != nil {
		logger.Warnf("Invalid control request %s: %v", msg.RequestID, err)
		_ = e.bridge.SendControlError(msg.RequestID, "invalid control request")
		return nil
	}

	switch req.Subtype {
	case claude.ControlCanUseTool:
		input := req.Input
		if len(input) == 0 {
			input = json.RawMessage(`{}`)
		}
		return agentengine.EvPermissionRequest{
			RequestID: msg.RequestID,
			ToolName:  req.ToolName,
			ToolUseID: req.ToolUseID,
			Input:     input,
		}

	case claude.ControlHookCallback:
		// Acknowledged up front; the hook never alters tool execution.
		if err := e.bridge.SendControlResponse(msg.RequestID, map[string]any{"continue": true}); err != nil {
			logger.Warnf("Failed to acknowledge hook callback: %v", err)
		}
		var hook claude.HookInput
		if len(req.HookInput) > 0 {
			if err := json.Unmarshal(req.HookInput, &hook); err != nil {
				logger.Debugf("Invalid hook input for %s: %v", req.ToolUseID, err)
				return nil
			}
		}
		var response any
		if len(hook.ToolResponse) > 0 {
			_ = json.Unmarshal(hook.ToolResponse, &response)
		}
		return agentengine.EvHookCallback{
			ToolUseID: req.ToolUseID,
			HookEvent: hook.HookEventName,
			Response:  response,
		}

	default:
		logger.Warnf("Unsupported control request subtype %q", req.Subtype)
		_ = e.bridge.SendControlError(msg.RequestID, fmt.Sprintf("unsupported control request: %s", req.Subtype))
		return nil
	}
}
