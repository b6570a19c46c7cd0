package permission

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bhandras/delight-acp/internal/toolinfo"
	"github.com/bhandras/delight-acp/internal/wire"
	"github.com/bhandras/delight-acp/pkg/logger"
)

// Plan-exit option ids. The adopt options are the target mode ids.
const (
	planOptionDefault     = string(ModeDefault)
	planOptionAcceptEdits = string(ModeAcceptEdits)
	planOptionKeep        = string(ModePlan)
)

// PlanReady reports whether plan passes the readiness heuristic.
func (e *Engine) PlanReady(plan string) bool {
	plan = strings.TrimSpace(plan)
	if len([]rune(plan)) < e.rules.Readiness.MinLength {
		return false
	}
	return e.headingRE.MatchString(plan)
}

// recoverPlan finds the plan text for a plan-exit call: the tool input, then
// the plan file written in plan mode, then recent assistant text.
func (e *Engine) recoverPlan(s State, input toolinfo.Input) string {
	if plan := input.String("plan"); strings.TrimSpace(plan) != "" {
		return plan
	}
	if path, content, ok := s.LastPlan(); ok {
		if data, err := os.ReadFile(path); err == nil && strings.TrimSpace(string(data)) != "" {
			return string(data)
		}
		if strings.TrimSpace(content) != "" {
			return content
		}
	}
	return s.RecentAssistantText()
}

func (e *Engine) planExit(ctx context.Context, s State, input toolinfo.Input, toolUseID string) Decision {
	plan := e.recoverPlan(s, input)
	if strings.TrimSpace(plan) == "" {
		return deny(fmt.Sprintf(
			"No plan found. Write the plan as markdown to a file in %s or pass it in the plan field, then call ExitPlanMode again",
			e.planDir), false, ErrPlanNotReady)
	}
	if !e.PlanReady(plan) {
		return deny(fmt.Sprintf(
			"The plan is not ready yet. It needs at least %d characters and a markdown heading. Keep refining it, then call ExitPlanMode again",
			e.rules.Readiness.MinLength), false, ErrPlanNotReady)
	}

	planInput := input.Clone()
	planInput["plan"] = plan
	outcome := e.ask(ctx, wire.DecisionRequest{
		SessionID: s.ID(),
		ToolCall:  toolCallContext(toolinfo.ToolExitPlanMode, planInput, toolUseID),
		Options: []wire.DecisionOption{
			{OptionID: planOptionAcceptEdits, Name: "Yes, and auto-accept edits", Kind: wire.OptionAllowAlways},
			{OptionID: planOptionDefault, Name: "Yes, and manually approve edits", Kind: wire.OptionAllowOnce},
			{OptionID: planOptionKeep, Name: "No, keep planning", Kind: wire.OptionRejectOnce},
		},
	})

	switch {
	case outcome.Cancelled:
		return deny(msgPlanCancelled, true, ErrToolDenied)
	case outcome.OptionID == planOptionDefault || outcome.OptionID == planOptionAcceptEdits:
		mode := Mode(outcome.OptionID)
		d := allow(planInput, wire.SetModeUpdate(string(mode)))
		d.ModeChange = mode
		return d
	default:
		return deny(msgPlanRejected, false, ErrToolDenied)
	}
}

// planWrite allows plan-mode writes confined to the plan directory and
// records them as the session's plan.
func (e *Engine) planWrite(s State, toolName string, input toolinfo.Input) Decision {
	target := input.String("file_path")
	if target == "" {
		target = input.String("notebook_path")
	}
	if target == "" || e.planDir == "" {
		return deny(msgUsePlanExit, false, ErrToolDenied)
	}
	resolved, err := resolvePath(target, s.WorkingDirectory())
	if err != nil {
		logger.Debugf("resolve plan write target %q: %v", target, err)
		return deny(msgUsePlanExit, false, ErrToolDenied)
	}
	if !within(e.planDir, resolved) {
		return deny(msgUsePlanExit, false, ErrToolDenied)
	}

	content := input.String("content")
	if toolName != toolinfo.ToolWrite {
		base := ""
		if path, cached, ok := s.LastPlan(); ok && path == resolved {
			base = cached
		} else if data, err := os.ReadFile(resolved); err == nil {
			base = string(data)
		}
		content = base
		if edited, ok := toolinfo.ApplyEdits(toolName, input, base); ok {
			content = edited
		}
	}
	s.RecordPlan(resolved, content)
	return allow(input)
}

// resolvePath returns the canonical absolute form of p, resolving relative
// paths against base and symlinks on the longest existing prefix.
func resolvePath(p, base string) (string, error) {
	if !filepath.IsAbs(p) && base != "" {
		p = filepath.Join(base, p)
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return canonical(abs), nil
}

func canonical(p string) string {
	if real, err := filepath.EvalSymlinks(p); err == nil {
		return real
	}
	parent := filepath.Dir(p)
	if parent == p {
		return p
	}
	return filepath.Join(canonical(parent), filepath.Base(p))
}

// within reports whether p equals root or is a descendant of it. Both paths
// must already be canonical.
func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	sep := string(filepath.Separator)
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+sep))
}
