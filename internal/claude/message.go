// Package claude speaks the Claude Code stream-json protocol to a spawned
// claude process.
package claude

import (
	"encoding/json"
)

// Top-level message types on the stream-json channel.
const (
	TypeSystem          = "system"
	TypeAssistant       = "assistant"
	TypeUser            = "user"
	TypeResult          = "result"
	TypeStreamEvent     = "stream_event"
	TypeControlRequest  = "control_request"
	TypeControlResponse = "control_response"
	TypeControlCancel   = "control_cancel_request"
	TypeKeepAlive       = "keep_alive"
)

// SystemInit is the system subtype carrying the session id.
const SystemInit = "init"

// Control request subtypes sent by Claude Code.
const (
	ControlCanUseTool   = "can_use_tool"
	ControlHookCallback = "hook_callback"
)

// Permission behaviors.
const (
	BehaviorAllow = "allow"
	BehaviorDeny  = "deny"
)

// Message is one line of stream-json output.
type Message struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype,omitempty"`

	// System init fields
	SessionID string   `json:"session_id,omitempty"`
	Model     string   `json:"model,omitempty"`
	Cwd       string   `json:"cwd,omitempty"`
	Tools     []string `json:"tools,omitempty"`

	// assistant/user payload
	Message json.RawMessage `json:"message,omitempty"`
	// stream_event payload
	Event json.RawMessage `json:"event,omitempty"`
	// For parent tracking (sidechain)
	ParentToolUseID *string `json:"parent_tool_use_id,omitempty"`

	// Control fields
	RequestID string          `json:"request_id,omitempty"`
	Request   json.RawMessage `json:"request,omitempty"`
	Response  json.RawMessage `json:"response,omitempty"`

	// Result fields
	IsError  bool   `json:"is_error,omitempty"`
	Result   string `json:"result,omitempty"`
	NumTurns int    `json:"num_turns,omitempty"`

	// Raw is the undecoded line.
	Raw json.RawMessage `json:"-"`
}

// Parent returns the parent tool use id, or "".
func (m *Message) Parent() string {
	if m == nil || m.ParentToolUseID == nil {
		return ""
	}
	return *m.ParentToolUseID
}

// APIMessage is the message body of an assistant or user message.
type APIMessage struct {
	Role    string          `json:"role"`
	Model   string          `json:"model,omitempty"`
	Content json.RawMessage `json:"content"`
}

// StreamEvent is the payload of a stream_event message.
type StreamEvent struct {
	Type         string          `json:"type"`
	Index        int             `json:"index"`
	ContentBlock json.RawMessage `json:"content_block,omitempty"`
	Delta        json.RawMessage `json:"delta,omitempty"`
}

// ControlRequest is the request body of an incoming control_request.
type ControlRequest struct {
	Subtype string `json:"subtype"`

	// can_use_tool
	ToolName              string          `json:"tool_name,omitempty"`
	Input                 json.RawMessage `json:"input,omitempty"`
	ToolUseID             string          `json:"tool_use_id,omitempty"`
	PermissionSuggestions json.RawMessage `json:"permission_suggestions,omitempty"`

	// hook_callback
	CallbackID string          `json:"callback_id,omitempty"`
	HookInput  json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes a control request. hook_callback requests carry their
// hook payload in "input", which is kept in HookInput.
func (r *ControlRequest) UnmarshalJSON(data []byte) error {
	type alias ControlRequest
	var tmp alias
	if err := json.Unmarshal(data, &tmp); err != nil {
		return err
	}
	*r = ControlRequest(tmp)
	if r.Subtype == ControlHookCallback {
		r.HookInput = r.Input
		r.Input = nil
	}
	return nil
}

// HookInput is the PostToolUse hook payload.
type HookInput struct {
	HookEventName string          `json:"hook_event_name"`
	ToolName      string          `json:"tool_name"`
	ToolInput     json.RawMessage `json:"tool_input,omitempty"`
	ToolResponse  json.RawMessage `json:"tool_response,omitempty"`
}

// PermissionResponse is the response body for can_use_tool.
type PermissionResponse struct {
	Behavior           string          `json:"behavior"`
	UpdatedInput       json.RawMessage `json:"updatedInput,omitempty"`
	UpdatedPermissions any             `json:"updatedPermissions,omitempty"`
	Message            string          `json:"message,omitempty"`
	Interrupt          bool            `json:"interrupt,omitempty"`
}

// controlResponseBody is the "response" object of a control_response.
type controlResponseBody struct {
	Subtype   string          `json:"subtype"`
	RequestID string          `json:"request_id"`
	Response  json.RawMessage `json:"response,omitempty"`
	Error     string          `json:"error,omitempty"`
}
