package permission

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/bhandras/delight-acp/internal/toolinfo"
	"github.com/bhandras/delight-acp/internal/wire"
	"github.com/bhandras/delight-acp/pkg/logger"
	"github.com/google/uuid"
)

// Denial messages returned to the agent.
const (
	msgUserRefused         = "User refused permission to run tool"
	msgUsePlanExit         = "You are in plan mode. Write only the plan file, then use the ExitPlanMode tool to present it"
	msgReadOnlyShell       = "Only read-only shell commands are allowed in plan mode"
	msgPlanRejected        = "User rejected the plan. Keep planning and present a revised plan with ExitPlanMode"
	msgPlanCancelled       = "User cancelled the plan review"
	msgQuestionsIncomplete = "incomplete"
)

// Config configures an Engine.
type Config struct {
	// Rules is the static policy data.
	Rules Rules
	// PlanDir is the directory plan-mode writes are confined to.
	PlanDir string
	// Decider resolves human decisions. A nil Decider cancels every request.
	Decider Decider
	// DecisionTimeout bounds each human decision. Zero waits indefinitely; an
	// expired decision resolves as cancelled.
	DecisionTimeout time.Duration
}

// Engine evaluates tool invocations for a session.
type Engine struct {
	rules     Rules
	planDir   string
	decider   Decider
	timeout   time.Duration
	headingRE *regexp.Regexp
}

// NewEngine validates cfg and returns an Engine.
func NewEngine(cfg Config) (*Engine, error) {
	re, err := regexp.Compile(cfg.Rules.Readiness.HeadingPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid readiness heading pattern: %w", err)
	}
	planDir := cfg.PlanDir
	if planDir != "" {
		planDir, err = resolvePath(planDir, "")
		if err != nil {
			return nil, fmt.Errorf("resolve plan dir: %w", err)
		}
	}
	return &Engine{
		rules:     cfg.Rules,
		planDir:   planDir,
		decider:   cfg.Decider,
		timeout:   cfg.DecisionTimeout,
		headingRE: re,
	}, nil
}

// Rules returns the engine's policy data.
func (e *Engine) Rules() Rules { return e.rules }

// PlanDir returns the resolved plan-storage directory.
func (e *Engine) PlanDir() string { return e.planDir }

// Evaluate decides whether toolName may run with input. The first matching
// rule wins:
//
//  1. the mode's static allow-list
//  2. the plan-exit tool
//  3. the multi-question tool
//  4. plan-mode writes inside the plan directory
//  5. plan-mode read-only shell commands
//  6. bypass / accept-edits fallback
//  7. an interactive allow/reject decision
func (e *Engine) Evaluate(ctx context.Context, s State, toolName string, input toolinfo.Input, toolUseID string) Decision {
	if input == nil {
		input = toolinfo.Input{}
	}
	mode := s.Mode()

	if mode.allows(e.rules, toolName) {
		return allow(input)
	}

	if toolinfo.IsPlanExit(toolName) {
		if mode != ModePlan {
			return allow(input)
		}
		return e.planExit(ctx, s, input, toolUseID)
	}

	if toolinfo.IsQuestion(toolName) {
		return e.questions(ctx, s, input, toolUseID)
	}

	if mode == ModePlan && e.rules.Is(ClassWrite, toolName) {
		return e.planWrite(s, toolName, input)
	}

	if mode == ModePlan && e.rules.Is(ClassShell, toolName) {
		if !e.rules.ReadOnlyCommand(input.String("command")) {
			return deny(msgReadOnlyShell, false, ErrToolDenied)
		}
	}

	if mode == ModeBypassPermissions || (mode == ModeAcceptEdits && e.rules.Is(ClassWrite, toolName)) {
		return allow(input, wire.AllowToolRule(toolName))
	}

	return e.interactive(ctx, s, toolName, input, toolUseID)
}

func (e *Engine) interactive(ctx context.Context, s State, toolName string, input toolinfo.Input, toolUseID string) Decision {
	outcome := e.ask(ctx, wire.DecisionRequest{
		SessionID: s.ID(),
		ToolCall:  toolCallContext(toolName, input, toolUseID),
		Options: []wire.DecisionOption{
			{OptionID: "allow_always", Name: "Always Allow", Kind: wire.OptionAllowAlways},
			{OptionID: "allow", Name: "Allow", Kind: wire.OptionAllowOnce},
			{OptionID: "reject", Name: "Reject", Kind: wire.OptionRejectOnce},
		},
	})
	switch {
	case outcome.Cancelled:
	case outcome.OptionID == "allow_always":
		return allow(input, wire.AllowToolRule(toolName))
	case outcome.OptionID == "allow":
		return allow(input)
	}
	return deny(msgUserRefused, true, ErrToolDenied)
}

// ask runs one human decision. Errors, timeouts and cancellation all resolve
// as a cancelled outcome.
func (e *Engine) ask(ctx context.Context, req wire.DecisionRequest) wire.DecisionOutcome {
	if e.decider == nil {
		return wire.Cancelled()
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	outcome, err := e.decider.RequestDecision(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Warnf("decision %s timed out (session=%s)", req.RequestID, req.SessionID)
		} else {
			logger.Debugf("decision %s failed (session=%s): %v", req.RequestID, req.SessionID, err)
		}
		return wire.Cancelled()
	}
	if ctx.Err() != nil {
		return wire.Cancelled()
	}
	return outcome
}

func toolCallContext(toolName string, input toolinfo.Input, toolUseID string) wire.ToolCallUpdate {
	info := toolinfo.FromToolUse(toolName, input, nil)
	return wire.ToolCallUpdate{
		ToolCallID: toolUseID,
		Title:      info.Title,
		ToolKind:   info.Kind,
		RawInput:   map[string]any(input),
		Content:    info.Content,
		Locations:  info.Locations,
	}
}
