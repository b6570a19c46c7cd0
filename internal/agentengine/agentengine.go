// Package agentengine defines the contract between a session's prompt loop
// and the upstream agent runtime that performs generation and tool
// execution.
package agentengine

import (
	"context"
	"encoding/json"

	"github.com/bhandras/delight-acp/internal/wire"
)

// AgentType identifies which upstream implementation should be started.
type AgentType string

const (
	// AgentClaude selects the Claude Code implementation.
	AgentClaude AgentType = "claude"
	// AgentFake selects the in-process scripted implementation.
	AgentFake AgentType = "fake"
)

// StartSpec configures an upstream start.
type StartSpec struct {
	// SessionID is the local session id the upstream serves.
	SessionID string
	// WorkDir is the effective working directory for the underlying process.
	WorkDir string
	// ResumeToken is an upstream-specific session identifier used to resume
	// an existing conversation.
	ResumeToken string
	// PermissionMode is the initial permission mode id.
	PermissionMode string
}

// PermissionResponse answers an EvPermissionRequest.
type PermissionResponse struct {
	// Allow reports whether the tool is approved to run.
	Allow bool
	// UpdatedInput is the tool input to run with. Only used when Allow is set.
	UpdatedInput map[string]any
	// UpdatedPermissions are rule or mode changes the upstream should apply.
	UpdatedPermissions []wire.PermissionUpdate
	// Message explains a denial to the agent.
	Message string
	// Interrupt stops the rest of the agent's turn after a denial.
	Interrupt bool
}

// Upstream is one running agent conversation.
//
// Implementations deliver every upstream event on Events() in arrival order
// and must not drop events. The channel is closed when the upstream stops.
type Upstream interface {
	// Send pushes one user turn upstream.
	Send(ctx context.Context, content []wire.ContentBlock) error
	// Events returns the ordered event stream.
	Events() <-chan Event
	// RespondPermission answers a pending EvPermissionRequest.
	RespondPermission(ctx context.Context, requestID string, resp PermissionResponse) error
	// Interrupt asks the upstream to abort the in-flight turn.
	Interrupt(ctx context.Context) error
	// SetPermissionMode forwards an explicit mode change.
	SetPermissionMode(ctx context.Context, mode string) error
	// Close stops the upstream and releases its resources.
	Close(ctx context.Context) error
}

// Factory starts upstreams.
type Factory interface {
	Start(ctx context.Context, spec StartSpec) (Upstream, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, spec StartSpec) (Upstream, error)

// Start implements Factory.
func (f FactoryFunc) Start(ctx context.Context, spec StartSpec) (Upstream, error) {
	return f(ctx, spec)
}

// Event is a marker interface for upstream events. The set of variants is
// closed; consumers must treat EvUnknown as a protocol violation.
type Event interface {
	isAgentEngineEvent()
}

// EvInit reports the upstream conversation identity.
type EvInit struct {
	// CorrelationID is the upstream session id, usable as a resume token.
	CorrelationID string
	// Model is the upstream model name, if reported.
	Model string
	// Cwd is the upstream working directory, if reported.
	Cwd string
	// Tools lists the tools available upstream.
	Tools []string
}

// isAgentEngineEvent marks EvInit as an Event.
func (EvInit) isAgentEngineEvent() {}

// Stream event kinds carried by EvStream.
const (
	StreamMessageStart      = "message_start"
	StreamMessageDelta      = "message_delta"
	StreamMessageStop       = "message_stop"
	StreamContentBlockStart = "content_block_start"
	StreamContentBlockDelta = "content_block_delta"
	StreamContentBlockStop  = "content_block_stop"
)

// EvStream is one incremental generation event. Block is set for
// content_block_start and Delta for content_block_delta.
type EvStream struct {
	// Event is the stream event kind.
	Event string
	// Index is the content block index within the message.
	Index int
	// Block is the newly started content block.
	Block *wire.ContentBlock
	// Delta is the incremental change to the block at Index.
	Delta *wire.ContentBlock
	// ParentToolUseID is set for sub-agent output.
	ParentToolUseID string
}

// isAgentEngineEvent marks EvStream as an Event.
func (EvStream) isAgentEngineEvent() {}

// EvMessage is a complete, batched message.
type EvMessage struct {
	// Role is "assistant" or "user".
	Role string
	// Model names the model that produced an assistant message.
	Model string
	// Content holds the message's content blocks.
	Content []wire.ContentBlock
	// ParentToolUseID is set for sub-agent output.
	ParentToolUseID string
}

// isAgentEngineEvent marks EvMessage as an Event.
func (EvMessage) isAgentEngineEvent() {}

// Result subtypes reported by EvResult.
const (
	ResultSuccess               = "success"
	ResultErrorDuringExecution  = "error_during_execution"
	ResultErrorMaxTurns         = "error_max_turns"
	ResultErrorMaxBudgetUSD     = "error_max_budget_usd"
	ResultErrorMaxOutputRetries = "error_max_structured_output_retries"
)

// EvResult terminates a turn.
type EvResult struct {
	Subtype  string
	IsError  bool
	Result   string
	NumTurns int
}

// isAgentEngineEvent marks EvResult as an Event.
func (EvResult) isAgentEngineEvent() {}

// EvPermissionRequest asks whether a tool may run. The upstream blocks the
// tool until RespondPermission is called with RequestID.
type EvPermissionRequest struct {
	RequestID string
	ToolName  string
	ToolUseID string
	Input     json.RawMessage
}

// isAgentEngineEvent marks EvPermissionRequest as an Event.
func (EvPermissionRequest) isAgentEngineEvent() {}

// EvHookCallback delivers out-of-band enrichment for a tool call after it
// ran. Response is the decoded tool response.
type EvHookCallback struct {
	ToolUseID string
	HookEvent string
	Response  any
}

// isAgentEngineEvent marks EvHookCallback as an Event.
func (EvHookCallback) isAgentEngineEvent() {}

// EvSystem is a recognised system notice with no transcript content.
type EvSystem struct {
	Subtype string
}

// isAgentEngineEvent marks EvSystem as an Event.
func (EvSystem) isAgentEngineEvent() {}

// EvExited indicates the upstream process stopped.
type EvExited struct {
	// Err is the process exit error, if any.
	Err error
}

// isAgentEngineEvent marks EvExited as an Event.
func (EvExited) isAgentEngineEvent() {}

// EvUnknown carries an upstream event this package does not recognise.
type EvUnknown struct {
	Type string
	Raw  json.RawMessage
}

// isAgentEngineEvent marks EvUnknown as an Event.
func (EvUnknown) isAgentEngineEvent() {}
