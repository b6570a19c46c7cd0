package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bhandras/delight-acp/internal/agentengine"
	"github.com/bhandras/delight-acp/internal/permission"
	"github.com/bhandras/delight-acp/internal/toolinfo"
	"github.com/bhandras/delight-acp/internal/wire"
	"github.com/bhandras/delight-acp/pkg/logger"
)

const (
	// syntheticModel marks assistant messages produced by the upstream
	// runtime itself rather than by a model.
	syntheticModel = "<synthetic>"
	// loginMarker appears in upstream text when the user must log in again.
	loginMarker = "Please run /login"

	msgCancelledTurn = "The user cancelled the turn"
	msgStaleTurn     = "The turn was abandoned"

	// abandonTimeout bounds the interrupt sent for an abandoned turn.
	abandonTimeout = 5 * time.Second
)

// Prompt runs one turn: it echoes content to the sink, pushes it upstream
// and processes upstream events until the turn ends.
func (r *Registry) Prompt(ctx context.Context, id string, content []wire.Content) (StopReason, error) {
	s, err := r.lookup(id)
	if err != nil {
		return "", err
	}
	turnCtx, err := s.beginTurn(ctx)
	if err != nil {
		return "", err
	}
	defer s.endTurn()

	if s.takeStale() {
		if err := r.skipStaleTurn(ctx, s); err != nil {
			return "", err
		}
		if s.Cancelled() {
			return StopCancelled, nil
		}
	}

	for _, item := range content {
		r.emit(ctx, s, wire.Notification{
			SessionID: s.id,
			Update:    wire.MessageChunk{Role: wire.RoleUser, Content: item},
		})
	}

	if err := s.upstream.Send(ctx, promptBlocks(content)); err != nil {
		return "", fmt.Errorf("send prompt: %w", err)
	}

	events := s.upstream.Events()
	for {
		select {
		case <-ctx.Done():
			r.abandonTurn(s)
			return "", ctx.Err()

		case ev, ok := <-events:
			if !ok {
				return r.upstreamEnded(s, nil)
			}
			reason, done, err := r.handle(ctx, turnCtx, s, ev)
			if err != nil {
				if !terminal(ev) {
					r.abandonTurn(s)
				}
				if errors.Is(err, ErrAuthRequired) {
					logger.Warnf("Session %s: upstream requires login", s.id)
				}
				return "", err
			}
			if done {
				return reason, nil
			}
		}
	}
}

// terminal reports whether ev is the last event of a turn.
func terminal(ev agentengine.Event) bool {
	switch ev.(type) {
	case agentengine.EvResult, agentengine.EvExited:
		return true
	}
	return false
}

// abandonTurn is called when Prompt returns before the turn's result was
// read. The upstream is asked to stop and the next turn skips what is left.
func (r *Registry) abandonTurn(s *Session) {
	s.markStale()
	ctx, cancel := context.WithTimeout(context.Background(), abandonTimeout)
	defer cancel()
	if err := s.upstream.Interrupt(ctx); err != nil {
		logger.Debugf("Session %s: interrupt abandoned turn: %v", s.id, err)
	}
}

// skipStaleTurn discards the rest of an abandoned turn up to and including
// its result. Permission requests still arriving for it are denied.
func (r *Registry) skipStaleTurn(ctx context.Context, s *Session) error {
	events := s.upstream.Events()
	for {
		select {
		case <-ctx.Done():
			s.markStale()
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				return ErrUpstreamExited
			}
			switch ev := ev.(type) {
			case agentengine.EvResult:
				logger.Debugf("Session %s: skipped stale result %q", s.id, ev.Subtype)
				return nil

			case agentengine.EvExited:
				if ev.Err != nil {
					return fmt.Errorf("%w: %v", ErrUpstreamExited, ev.Err)
				}
				return ErrUpstreamExited

			case agentengine.EvPermissionRequest:
				err := s.upstream.RespondPermission(ctx, ev.RequestID, agentengine.PermissionResponse{
					Message:   msgStaleTurn,
					Interrupt: true,
				})
				if err != nil {
					s.markStale()
					return fmt.Errorf("respond to permission request %s: %w", ev.RequestID, err)
				}

			case agentengine.EvHookCallback:
				r.translator.Hooks().Take(ev.ToolUseID)

			case agentengine.EvInit:
				if s.captureCorrelation(ev.CorrelationID) {
					r.persist(s)
				}

			default:
				logger.Tracef("Session %s: skipping stale %T", s.id, ev)
			}
		}
	}
}

// handle processes one upstream event. done is set when the turn is over.
// ctx outlives cancellation of the turn and is used for everything that must
// still be delivered; turnCtx bounds human decisions.
func (r *Registry) handle(ctx, turnCtx context.Context, s *Session, ev agentengine.Event) (StopReason, bool, error) {
	switch ev := ev.(type) {
	case agentengine.EvInit:
		if s.captureCorrelation(ev.CorrelationID) {
			logger.Debugf("Session %s: upstream correlation id %s", s.id, ev.CorrelationID)
			r.persist(s)
		}

	case agentengine.EvStream:
		switch {
		case ev.Block != nil:
			r.emitAll(ctx, s, r.translator.Translate(s.id, wire.RoleAssistant, *ev.Block))
		case ev.Delta != nil:
			r.emitAll(ctx, s, r.translator.Translate(s.id, wire.RoleAssistant, *ev.Delta))
		}

	case agentengine.EvMessage:
		if ev.Role == string(wire.RoleAssistant) && loginRequired(ev) {
			return "", true, ErrAuthRequired
		}
		role := wire.RoleAssistant
		if ev.Role == string(wire.RoleUser) {
			role = wire.RoleUser
		}
		r.emitAll(ctx, s, r.translator.TranslateBlocks(s.id, role, batchedBlocks(ev.Content)))

	case agentengine.EvPermissionRequest:
		if err := r.permission(ctx, turnCtx, s, ev); err != nil {
			return "", true, err
		}

	case agentengine.EvHookCallback:
		fn, ok := r.translator.Hooks().Take(ev.ToolUseID)
		if !ok {
			logger.Debugf("Session %s: no hook callback for %s", s.id, ev.ToolUseID)
			return "", false, nil
		}
		r.emitAll(ctx, s, fn(ev.Response))

	case agentengine.EvResult:
		reason, err := resultOutcome(s.Cancelled(), ev)
		return reason, true, err

	case agentengine.EvSystem:
		logger.Tracef("Session %s: ignoring system event %q", s.id, ev.Subtype)

	case agentengine.EvExited:
		reason, err := r.upstreamEnded(s, ev.Err)
		return reason, true, err

	case agentengine.EvUnknown:
		logger.Errorf("Session %s: unexpected upstream event %q", s.id, ev.Type)
		return "", true, &ProtocolViolationError{Event: ev.Type, Raw: ev.Raw}

	default:
		logger.Errorf("Session %s: unexpected upstream event %T", s.id, ev)
		return "", true, &ProtocolViolationError{Event: fmt.Sprintf("%T", ev)}
	}
	return "", false, nil
}

// permission evaluates a tool permission request and answers it upstream.
func (r *Registry) permission(ctx, turnCtx context.Context, s *Session, ev agentengine.EvPermissionRequest) error {
	var d permission.Decision
	if s.Cancelled() {
		d = permission.Decision{Message: msgCancelledTurn, Interrupt: true, Reason: permission.ErrToolDenied}
	} else {
		planBefore, _, _ := s.LastPlan()
		input := toolinfo.DecodeInput(ev.Input)
		d = r.policy.Evaluate(turnCtx, s, ev.ToolName, input, ev.ToolUseID)
		if planAfter, _, _ := s.LastPlan(); planAfter != planBefore && d.ModeChange == "" {
			r.persist(s)
		}
	}

	if d.ModeChange != "" {
		s.setMode(d.ModeChange)
		r.persist(s)
		r.emit(ctx, s, wire.Notification{
			SessionID: s.id,
			Update:    wire.ModeChange{ModeID: string(d.ModeChange)},
		})
	}
	if !d.Allow {
		logger.Debugf("Session %s: denied %s (%v): %s", s.id, ev.ToolName, d.Reason, d.Message)
		if ev.ToolUseID != "" && d.Message != "" {
			r.emit(ctx, s, wire.Notification{
				SessionID: s.id,
				Update: wire.ToolCallUpdate{
					ToolCallID: ev.ToolUseID,
					Content:    []wire.ToolCallContent{wire.TextToolContent(d.Message)},
				},
			})
		}
	}

	err := s.upstream.RespondPermission(ctx, ev.RequestID, agentengine.PermissionResponse{
		Allow:              d.Allow,
		UpdatedInput:       map[string]any(d.UpdatedInput),
		UpdatedPermissions: d.Updates,
		Message:            d.Message,
		Interrupt:          d.Interrupt,
	})
	if err != nil {
		return fmt.Errorf("respond to permission request %s: %w", ev.RequestID, err)
	}
	return nil
}

// batchedBlocks drops the text and reasoning blocks of a batched message;
// those were already emitted from the stream.
func batchedBlocks(blocks []wire.ContentBlock) []wire.ContentBlock {
	out := make([]wire.ContentBlock, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case wire.BlockText, wire.BlockThinking, wire.BlockRedactedThinking:
			continue
		}
		out = append(out, b)
	}
	return out
}

func loginRequired(ev agentengine.EvMessage) bool {
	if ev.Model != syntheticModel {
		return false
	}
	for _, b := range ev.Content {
		if b.Type == wire.BlockText && strings.Contains(b.Text, loginMarker) {
			return true
		}
	}
	return false
}

// resultOutcome maps a terminal result to the turn outcome. A cancelled turn
// always reports StopCancelled.
func resultOutcome(cancelled bool, ev agentengine.EvResult) (StopReason, error) {
	if cancelled {
		return StopCancelled, nil
	}
	switch ev.Subtype {
	case agentengine.ResultSuccess:
		if !ev.IsError {
			return StopEndTurn, nil
		}
		if strings.Contains(ev.Result, loginMarker) {
			return "", ErrAuthRequired
		}
		return "", &UpstreamExecutionError{Subtype: ev.Subtype, Detail: ev.Result}

	case agentengine.ResultErrorMaxTurns,
		agentengine.ResultErrorMaxBudgetUSD,
		agentengine.ResultErrorMaxOutputRetries:
		return StopMaxTurnRequests, nil

	case agentengine.ResultErrorDuringExecution:
		return "", &UpstreamExecutionError{Subtype: ev.Subtype, Detail: ev.Result}
	}
	return "", &ProtocolViolationError{Event: "result/" + ev.Subtype}
}

func (r *Registry) upstreamEnded(s *Session, exitErr error) (StopReason, error) {
	if s.Cancelled() {
		return StopCancelled, nil
	}
	if exitErr != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstreamExited, exitErr)
	}
	return "", ErrUpstreamExited
}
