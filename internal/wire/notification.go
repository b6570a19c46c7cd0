package wire

import (
	"encoding/json"
	"fmt"
)

// UpdateKind is the "sessionUpdate" discriminator of a session notification.
type UpdateKind string

const (
	// UpdateUserMessageChunk echoes user-authored content.
	UpdateUserMessageChunk UpdateKind = "user_message_chunk"
	// UpdateAgentMessageChunk carries assistant text.
	UpdateAgentMessageChunk UpdateKind = "agent_message_chunk"
	// UpdateAgentThoughtChunk carries assistant reasoning.
	UpdateAgentThoughtChunk UpdateKind = "agent_thought_chunk"
	// UpdateToolCall announces a new (pending) tool call.
	UpdateToolCall UpdateKind = "tool_call"
	// UpdateToolCallUpdate refreshes or finishes an announced tool call.
	UpdateToolCallUpdate UpdateKind = "tool_call_update"
	// UpdateCurrentMode reports a permission mode transition.
	UpdateCurrentMode UpdateKind = "current_mode_update"
	// UpdatePlan carries the agent's progress list.
	UpdatePlan UpdateKind = "plan"
)

// Role identifies which side of the conversation authored a message chunk.
type Role string

const (
	// RoleAssistant is the agent.
	RoleAssistant Role = "assistant"
	// RoleUser is the human (or a tool result echoed on the user channel).
	RoleUser Role = "user"
)

// ToolKind categorizes a tool call for rendering.
type ToolKind string

const (
	// ToolKindRead reads files or data.
	ToolKindRead ToolKind = "read"
	// ToolKindEdit modifies files.
	ToolKindEdit ToolKind = "edit"
	// ToolKindDelete removes files.
	ToolKindDelete ToolKind = "delete"
	// ToolKindMove renames or moves files.
	ToolKindMove ToolKind = "move"
	// ToolKindSearch searches files or the web.
	ToolKindSearch ToolKind = "search"
	// ToolKindExecute runs a command.
	ToolKindExecute ToolKind = "execute"
	// ToolKindThink is internal reasoning or delegation.
	ToolKindThink ToolKind = "think"
	// ToolKindFetch retrieves remote content.
	ToolKindFetch ToolKind = "fetch"
	// ToolKindSwitchMode changes the session mode.
	ToolKindSwitchMode ToolKind = "switch_mode"
	// ToolKindOther is any tool without a better fit.
	ToolKindOther ToolKind = "other"
)

// ToolCallStatus is the lifecycle state of a tool call.
type ToolCallStatus string

const (
	// ToolCallPending is a tool call awaiting input or permission.
	ToolCallPending ToolCallStatus = "pending"
	// ToolCallInProgress is a tool call that is running.
	ToolCallInProgress ToolCallStatus = "in_progress"
	// ToolCallCompleted is a tool call that finished successfully.
	ToolCallCompleted ToolCallStatus = "completed"
	// ToolCallFailed is a tool call that errored or was denied.
	ToolCallFailed ToolCallStatus = "failed"
)

// Update is the closed set of session notification payloads.
type Update interface {
	// Kind returns the sessionUpdate discriminator.
	Kind() UpdateKind
}

// Notification is one ordered session update addressed to a session.
type Notification struct {
	// SessionID identifies the session the update belongs to.
	SessionID string
	// Update is the variant payload.
	Update Update
}

// MarshalJSON renders the notification as
// {"sessionId": ..., "update": {"sessionUpdate": kind, ...}}.
func (n Notification) MarshalJSON() ([]byte, error) {
	if n.Update == nil {
		return nil, fmt.Errorf("notification for session %q has no update", n.SessionID)
	}
	body, err := json.Marshal(n.Update)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	kind, err := json.Marshal(n.Update.Kind())
	if err != nil {
		return nil, err
	}
	fields["sessionUpdate"] = kind
	return json.Marshal(struct {
		SessionID string                     `json:"sessionId"`
		Update    map[string]json.RawMessage `json:"update"`
	}{SessionID: n.SessionID, Update: fields})
}

// MessageChunk is a streamed piece of user or assistant content.
type MessageChunk struct {
	Role    Role    `json:"-"`
	Content Content `json:"content"`
}

// Kind implements Update.
func (m MessageChunk) Kind() UpdateKind {
	if m.Role == RoleUser {
		return UpdateUserMessageChunk
	}
	return UpdateAgentMessageChunk
}

// ThoughtChunk is a streamed piece of assistant reasoning.
type ThoughtChunk struct {
	Content Content `json:"content"`
}

// Kind implements Update.
func (ThoughtChunk) Kind() UpdateKind { return UpdateAgentThoughtChunk }

// ToolCall announces a tool invocation. Status is always pending when
// emitted by the translator.
type ToolCall struct {
	ToolCallID string             `json:"toolCallId"`
	Title      string             `json:"title"`
	ToolKind   ToolKind           `json:"kind"`
	Status     ToolCallStatus     `json:"status"`
	RawInput   any                `json:"rawInput,omitempty"`
	Content    []ToolCallContent  `json:"content,omitempty"`
	Locations  []ToolCallLocation `json:"locations,omitempty"`
}

// Kind implements Update.
func (ToolCall) Kind() UpdateKind { return UpdateToolCall }

// ToolCallUpdate refreshes an announced tool call. Empty fields are left
// unchanged by the receiver; Status is empty for non-terminal refreshes.
type ToolCallUpdate struct {
	ToolCallID string             `json:"toolCallId"`
	Title      string             `json:"title,omitempty"`
	ToolKind   ToolKind           `json:"kind,omitempty"`
	Status     ToolCallStatus     `json:"status,omitempty"`
	RawInput   any                `json:"rawInput,omitempty"`
	RawOutput  any                `json:"rawOutput,omitempty"`
	Content    []ToolCallContent  `json:"content,omitempty"`
	Locations  []ToolCallLocation `json:"locations,omitempty"`
}

// Kind implements Update.
func (ToolCallUpdate) Kind() UpdateKind { return UpdateToolCallUpdate }

// ModeChange reports that the session's permission mode changed.
type ModeChange struct {
	ModeID string `json:"currentModeId"`
}

// Kind implements Update.
func (ModeChange) Kind() UpdateKind { return UpdateCurrentMode }

// PlanUpdate replaces the client's view of the agent's progress list.
type PlanUpdate struct {
	Entries []PlanEntry `json:"entries"`
}

// Kind implements Update.
func (PlanUpdate) Kind() UpdateKind { return UpdatePlan }

// PlanEntry is one item of a progress list.
type PlanEntry struct {
	Content  string `json:"content"`
	Priority string `json:"priority"`
	Status   string `json:"status"`
}

// ToolCallContent is displayable content attached to a tool call: either
// regular content ("content") or a file diff ("diff").
type ToolCallContent struct {
	Type    string   `json:"type"`
	Content *Content `json:"content,omitempty"`
	Path    string   `json:"path,omitempty"`
	OldText *string  `json:"oldText,omitempty"`
	NewText *string  `json:"newText,omitempty"`
}

// TextToolContent wraps text as tool-call content.
func TextToolContent(text string) ToolCallContent {
	return ToolCallContent{Type: "content", Content: &Content{Type: ContentText, Text: text}}
}

// DiffToolContent builds a diff entry. A nil oldText marks a new file.
func DiffToolContent(path string, oldText *string, newText string) ToolCallContent {
	return ToolCallContent{Type: "diff", Path: path, OldText: oldText, NewText: &newText}
}

// ToolCallLocation is a file (and optional 1-based line) touched by a tool.
type ToolCallLocation struct {
	Path string `json:"path"`
	Line *int   `json:"line,omitempty"`
}
