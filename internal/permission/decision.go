package permission

import (
	"context"
	"errors"

	"github.com/bhandras/delight-acp/internal/toolinfo"
	"github.com/bhandras/delight-acp/internal/wire"
)

var (
	// ErrToolDenied classifies a refusal by the policy or by the human.
	ErrToolDenied = errors.New("tool denied")
	// ErrPlanNotReady classifies a plan-exit attempt without a usable plan.
	ErrPlanNotReady = errors.New("plan not ready")
)

// Decision is the outcome of evaluating one tool invocation.
type Decision struct {
	// Allow reports whether the tool may run.
	Allow bool
	// UpdatedInput is the (possibly augmented) tool input for allowed tools.
	UpdatedInput toolinfo.Input
	// Updates are rule or mode changes to hand to the upstream runtime.
	Updates []wire.PermissionUpdate
	// ModeChange is set when an approved plan exit moves the session to a
	// new mode. The caller applies it.
	ModeChange Mode

	// Message explains a denial to the agent.
	Message string
	// Interrupt stops the rest of the agent's turn after a denial.
	Interrupt bool
	// Reason classifies a denial (ErrToolDenied or ErrPlanNotReady).
	Reason error
}

func allow(input toolinfo.Input, updates ...wire.PermissionUpdate) Decision {
	return Decision{Allow: true, UpdatedInput: input, Updates: updates}
}

func deny(message string, interrupt bool, reason error) Decision {
	return Decision{Message: message, Interrupt: interrupt, Reason: reason}
}

// Decider asks a human to resolve a decision request. It blocks until the
// request is answered or ctx is done.
type Decider interface {
	RequestDecision(ctx context.Context, req wire.DecisionRequest) (wire.DecisionOutcome, error)
}

// DeciderFunc adapts a function to Decider.
type DeciderFunc func(ctx context.Context, req wire.DecisionRequest) (wire.DecisionOutcome, error)

// RequestDecision implements Decider.
func (f DeciderFunc) RequestDecision(ctx context.Context, req wire.DecisionRequest) (wire.DecisionOutcome, error) {
	return f(ctx, req)
}

// State is the session view the engine reads and the plan bookkeeping it
// writes. Implementations must not change the mode through this interface.
type State interface {
	// ID returns the session id.
	ID() string
	// Mode returns the current permission mode.
	Mode() Mode
	// WorkingDirectory resolves relative tool paths.
	WorkingDirectory() string
	// LastPlan returns the plan file last written while in plan mode.
	LastPlan() (path string, content string, ok bool)
	// RecordPlan stores the plan file written while in plan mode.
	RecordPlan(path string, content string)
	// RecentAssistantText returns the most recent contiguous run of
	// assistant message text.
	RecentAssistantText() string
}
