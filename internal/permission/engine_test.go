package permission

import (
	"context"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bhandras/delight-acp/internal/toolinfo"
	"github.com/bhandras/delight-acp/internal/wire"
	"github.com/stretchr/testify/require"
)

type fakeState struct {
	id        string
	mode      Mode
	cwd       string
	planPath  string
	planText  string
	hasPlan   bool
	assistant string
}

func (s *fakeState) ID() string               { return s.id }
func (s *fakeState) Mode() Mode               { return s.mode }
func (s *fakeState) WorkingDirectory() string { return s.cwd }
func (s *fakeState) LastPlan() (string, string, bool) {
	return s.planPath, s.planText, s.hasPlan
}
func (s *fakeState) RecordPlan(path, content string) {
	s.planPath, s.planText, s.hasPlan = path, content, true
}
func (s *fakeState) RecentAssistantText() string { return s.assistant }

// scriptedDecider answers requests from a fixed script and records them.
type scriptedDecider struct {
	mu       sync.Mutex
	outcomes []wire.DecisionOutcome
	requests []wire.DecisionRequest
}

func (d *scriptedDecider) RequestDecision(_ context.Context, req wire.DecisionRequest) (wire.DecisionOutcome, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = append(d.requests, req)
	if len(d.outcomes) == 0 {
		return wire.Cancelled(), nil
	}
	out := d.outcomes[0]
	d.outcomes = d.outcomes[1:]
	return out, nil
}

func (d *scriptedDecider) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.requests)
}

func newEngine(t *testing.T, decider Decider) (*Engine, string) {
	t.Helper()
	planDir := t.TempDir()
	e, err := NewEngine(Config{Rules: DefaultRules(), PlanDir: planDir, Decider: decider})
	require.NoError(t, err)
	return e, e.PlanDir()
}

const readyPlan = "# Plan\n\n1. Add the cache layer.\n2. Wire it into the handler.\n3. Test it.\n"

func TestModeAllowList(t *testing.T) {
	decider := &scriptedDecider{}
	e, _ := newEngine(t, decider)
	ctx := context.Background()

	cases := []struct {
		mode  Mode
		tool  string
		allow bool
	}{
		{ModeDefault, "Read", true},
		{ModeDefault, "Grep", true},
		{ModeDefault, "Task", true},
		{ModeDefault, "Write", false},
		{ModeAcceptEdits, "Edit", true},
		{ModePlan, "WebFetch", true},
		{ModeBypassPermissions, "Bash", true},
		{ModeBypassPermissions, "mcp__anything", true},
	}
	for _, tc := range cases {
		s := &fakeState{id: "s", mode: tc.mode}
		d := e.Evaluate(ctx, s, tc.tool, toolinfo.Input{"x": 1.0}, "t")
		require.Equal(t, tc.allow, d.Allow, "%s/%s", tc.mode, tc.tool)
		if tc.allow {
			require.Equal(t, toolinfo.Input{"x": 1.0}, d.UpdatedInput)
			require.Empty(t, d.Updates)
		}
	}
	// Only the default/Write case reached the human, and was cancelled.
	require.Equal(t, 1, decider.count())
}

func TestInteractiveDecision(t *testing.T) {
	cases := []struct {
		name      string
		outcome   wire.DecisionOutcome
		allow     bool
		rule      bool
		interrupt bool
	}{
		{"always", wire.Selected("allow_always"), true, true, false},
		{"once", wire.Selected("allow"), true, false, false},
		{"reject", wire.Selected("reject"), false, false, true},
		{"cancelled", wire.Cancelled(), false, false, true},
		{"no selection", wire.DecisionOutcome{}, false, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			decider := &scriptedDecider{outcomes: []wire.DecisionOutcome{tc.outcome}}
			e, _ := newEngine(t, decider)
			s := &fakeState{id: "s", mode: ModeDefault}

			d := e.Evaluate(context.Background(), s, "Bash", toolinfo.Input{"command": "rm -rf x"}, "toolu_9")
			require.Equal(t, tc.allow, d.Allow)
			require.Equal(t, tc.interrupt, d.Interrupt)
			if tc.rule {
				require.Equal(t, []wire.PermissionUpdate{wire.AllowToolRule("Bash")}, d.Updates)
			} else {
				require.Empty(t, d.Updates)
			}
			if !tc.allow {
				require.ErrorIs(t, d.Reason, ErrToolDenied)
			}

			require.Len(t, decider.requests, 1)
			req := decider.requests[0]
			require.Equal(t, "toolu_9", req.ToolCall.ToolCallID)
			require.NotEmpty(t, req.RequestID)
			require.Len(t, req.Options, 3)
		})
	}
}

func TestAcceptEditsStillAsksForShell(t *testing.T) {
	decider := &scriptedDecider{}
	e, _ := newEngine(t, decider)

	s := &fakeState{id: "s", mode: ModeAcceptEdits}
	d := e.Evaluate(context.Background(), s, "Bash", toolinfo.Input{}, "t")
	require.False(t, d.Allow)
	require.Equal(t, 1, decider.count())
}

func TestPlanModePathContainment(t *testing.T) {
	decider := &scriptedDecider{}
	e, planDir := newEngine(t, decider)
	ctx := context.Background()

	s := &fakeState{id: "s", mode: ModePlan, cwd: t.TempDir()}
	d := e.Evaluate(ctx, s, "Write", toolinfo.Input{
		"file_path": filepath.Join(planDir, "draft.md"),
		"content":   readyPlan,
	}, "t1")
	require.True(t, d.Allow)
	require.Equal(t, filepath.Join(planDir, "draft.md"), s.planPath)
	require.Equal(t, readyPlan, s.planText)

	s2 := &fakeState{id: "s", mode: ModePlan}
	d = e.Evaluate(ctx, s2, "Write", toolinfo.Input{
		"file_path": planDir + "/../secrets.env",
		"content":   "TOKEN=1",
	}, "t2")
	require.False(t, d.Allow)
	require.False(t, d.Interrupt)
	require.ErrorIs(t, d.Reason, ErrToolDenied)
	require.False(t, s2.hasPlan)

	// A sibling directory sharing the plan dir's name as a prefix is outside.
	d = e.Evaluate(ctx, s2, "Edit", toolinfo.Input{"file_path": planDir + "-evil/x.md"}, "t3")
	require.False(t, d.Allow)

	// Relative paths resolve against the session working directory.
	s3 := &fakeState{id: "s", mode: ModePlan, cwd: planDir}
	d = e.Evaluate(ctx, s3, "Write", toolinfo.Input{"file_path": "notes/plan.md", "content": "x"}, "t4")
	require.True(t, d.Allow)

	require.Zero(t, decider.count())
}

func TestPlanModeEditAppliesToCachedPlan(t *testing.T) {
	e, planDir := newEngine(t, nil)
	path := filepath.Join(planDir, "draft.md")
	s := &fakeState{id: "s", mode: ModePlan, planPath: path, planText: "# Plan\nold step\n", hasPlan: true}

	d := e.Evaluate(context.Background(), s, "Edit", toolinfo.Input{
		"file_path":  path,
		"old_string": "old step",
		"new_string": "new step",
	}, "t")
	require.True(t, d.Allow)
	require.Equal(t, "# Plan\nnew step\n", s.planText)
}

func TestPlanModeShell(t *testing.T) {
	decider := &scriptedDecider{outcomes: []wire.DecisionOutcome{wire.Selected("allow")}}
	e, _ := newEngine(t, decider)
	ctx := context.Background()
	s := &fakeState{id: "s", mode: ModePlan}

	d := e.Evaluate(ctx, s, "Bash", toolinfo.Input{"command": "rm -rf /"}, "t1")
	require.False(t, d.Allow)
	require.False(t, d.Interrupt)
	require.Zero(t, decider.count())

	d = e.Evaluate(ctx, s, "Bash", toolinfo.Input{"command": "lsof -i"}, "t2")
	require.False(t, d.Allow, "prefix must be followed by a separator")

	// Allowed commands fall through to the interactive decision.
	d = e.Evaluate(ctx, s, "Bash", toolinfo.Input{"command": "git status\t--short"}, "t3")
	require.True(t, d.Allow)
	require.Equal(t, 1, decider.count())
}

func TestExitPlanModeOutsidePlanIsNoOp(t *testing.T) {
	decider := &scriptedDecider{}
	e, _ := newEngine(t, decider)
	s := &fakeState{id: "s", mode: ModeDefault}

	d := e.Evaluate(context.Background(), s, "ExitPlanMode", toolinfo.Input{"plan": "x"}, "t")
	require.True(t, d.Allow)
	require.Empty(t, d.ModeChange)
	require.Zero(t, decider.count())
}

func TestExitPlanModeNotReadyIsIdempotent(t *testing.T) {
	decider := &scriptedDecider{}
	e, _ := newEngine(t, decider)
	s := &fakeState{id: "s", mode: ModePlan, assistant: "I will fix it."}
	before := *s

	input := toolinfo.Input{"plan": "do stuff"}
	first := e.Evaluate(context.Background(), s, "ExitPlanMode", input, "t")
	second := e.Evaluate(context.Background(), s, "ExitPlanMode", input, "t")

	require.Equal(t, first, second)
	require.False(t, first.Allow)
	require.False(t, first.Interrupt)
	require.ErrorIs(t, first.Reason, ErrPlanNotReady)
	require.Equal(t, before, *s)
	require.Zero(t, decider.count())

	// No plan anywhere is also a recoverable denial.
	empty := &fakeState{id: "s", mode: ModePlan}
	d := e.Evaluate(context.Background(), empty, "ExitPlanMode", toolinfo.Input{}, "t")
	require.ErrorIs(t, d.Reason, ErrPlanNotReady)
}

func TestExitPlanModeRecoversPlan(t *testing.T) {
	t.Run("from assistant text", func(t *testing.T) {
		decider := &scriptedDecider{outcomes: []wire.DecisionOutcome{wire.Selected("default")}}
		e, _ := newEngine(t, decider)
		s := &fakeState{id: "s", mode: ModePlan, assistant: readyPlan}

		d := e.Evaluate(context.Background(), s, "ExitPlanMode", toolinfo.Input{}, "t")
		require.True(t, d.Allow)
		require.Equal(t, ModeDefault, d.ModeChange)
		require.Equal(t, readyPlan, d.UpdatedInput.String("plan"))
		require.Equal(t, []wire.PermissionUpdate{wire.SetModeUpdate("default")}, d.Updates)
		require.Equal(t, ModePlan, s.mode, "the engine never mutates the mode itself")
	})

	t.Run("reject keeps planning", func(t *testing.T) {
		decider := &scriptedDecider{outcomes: []wire.DecisionOutcome{wire.Selected("plan")}}
		e, _ := newEngine(t, decider)
		s := &fakeState{id: "s", mode: ModePlan}

		d := e.Evaluate(context.Background(), s, "ExitPlanMode", toolinfo.Input{"plan": readyPlan}, "t")
		require.False(t, d.Allow)
		require.False(t, d.Interrupt)
		require.Empty(t, d.ModeChange)
		require.Len(t, decider.requests[0].Options, 3)
	})

	t.Run("cancel interrupts", func(t *testing.T) {
		e, _ := newEngine(t, &scriptedDecider{})
		s := &fakeState{id: "s", mode: ModePlan}

		d := e.Evaluate(context.Background(), s, "ExitPlanMode", toolinfo.Input{"plan": readyPlan}, "t")
		require.False(t, d.Allow)
		require.True(t, d.Interrupt)
	})
}

func TestPlanReadinessIsConfigurable(t *testing.T) {
	rules := DefaultRules()
	rules.Readiness.MinLength = 5
	rules.Readiness.HeadingPattern = `(?m)^Plan:`
	e, err := NewEngine(Config{Rules: rules})
	require.NoError(t, err)

	require.True(t, e.PlanReady("Plan: ship"))
	require.False(t, e.PlanReady("# Heading only but long enough"))

	def, _ := newEngine(t, nil)
	require.False(t, def.PlanReady("# Plan"))
	require.False(t, def.PlanReady("####### too deep heading but long enough to pass length"))
	require.True(t, def.PlanReady(readyPlan))
}

func TestDecisionTimeoutResolvesAsCancelled(t *testing.T) {
	blocking := DeciderFunc(func(ctx context.Context, _ wire.DecisionRequest) (wire.DecisionOutcome, error) {
		<-ctx.Done()
		return wire.DecisionOutcome{}, ctx.Err()
	})
	e, err := NewEngine(Config{Rules: DefaultRules(), Decider: blocking, DecisionTimeout: 20 * time.Millisecond})
	require.NoError(t, err)

	start := time.Now()
	d := e.Evaluate(context.Background(), &fakeState{id: "s", mode: ModeDefault}, "Bash", nil, "t")
	require.False(t, d.Allow)
	require.True(t, d.Interrupt)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestCancelledContextUnblocksDecision(t *testing.T) {
	blocking := DeciderFunc(func(ctx context.Context, _ wire.DecisionRequest) (wire.DecisionOutcome, error) {
		<-ctx.Done()
		return wire.DecisionOutcome{}, ctx.Err()
	})
	e, err := NewEngine(Config{Rules: DefaultRules(), Decider: blocking})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Decision, 1)
	go func() {
		done <- e.Evaluate(ctx, &fakeState{id: "s", mode: ModeDefault}, "Write", nil, "t")
	}()
	cancel()

	select {
	case d := <-done:
		require.False(t, d.Allow)
	case <-time.After(5 * time.Second):
		t.Fatalf("decision wait was not unblocked by cancellation")
	}
}

// TestModeNeverChangesOutsidePlanExit fuzzes tool calls across every mode and
// checks that only an approved plan exit ever reports a mode change.
func TestModeNeverChangesOutsidePlanExit(t *testing.T) {
	tools := []string{
		"Read", "Write", "Edit", "MultiEdit", "Bash", "Glob", "Grep", "WebFetch",
		"WebSearch", "Task", "TodoWrite", "NotebookEdit", "AskUserQuestion",
		"ExitPlanMode", "mcp__x__y", "KillShell",
	}
	options := []string{"allow_always", "allow", "reject", "default", "acceptEdits", "plan", "opt-0", "other", ""}
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		var script []wire.DecisionOutcome
		for j := 0; j < 4; j++ {
			if rng.Intn(5) == 0 {
				script = append(script, wire.Cancelled())
				continue
			}
			script = append(script, wire.DecisionOutcome{
				OptionID:   options[rng.Intn(len(options))],
				CustomText: "free text",
			})
		}
		e, planDir := newEngine(t, &scriptedDecider{outcomes: script})

		mode := Modes()[rng.Intn(4)]
		s := &fakeState{id: "s", mode: mode, assistant: readyPlan}
		tool := tools[rng.Intn(len(tools))]
		input := toolinfo.Input{
			"file_path": filepath.Join(planDir, "p.md"),
			"command":   "ls",
			"plan":      []string{"", readyPlan, "short"}[rng.Intn(3)],
			"questions": []any{map[string]any{"question": "Q?", "options": []any{map[string]any{"label": "A"}}}},
		}

		d := e.Evaluate(context.Background(), s, tool, input, "t")
		require.Equal(t, mode, s.mode)
		if d.ModeChange != "" {
			require.Equal(t, "ExitPlanMode", tool)
			require.Equal(t, ModePlan, mode)
			require.True(t, d.Allow)
		}
	}
}
