package fakeengine

import (
	"context"
	"testing"

	"github.com/bhandras/delight-acp/internal/agentengine"
	"github.com/bhandras/delight-acp/internal/wire"
	"github.com/stretchr/testify/require"
)

func drain(e *Engine) []agentengine.Event {
	var out []agentengine.Event
	for {
		select {
		case ev := <-e.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestFactoryRecordsEngines(t *testing.T) {
	f := &Factory{}
	up, err := f.Start(context.Background(), agentengine.StartSpec{SessionID: "s1", WorkDir: "/w"})
	require.NoError(t, err)
	require.Equal(t, 1, f.Started())
	require.Same(t, up, f.Last())
	require.Equal(t, "s1", f.Last().Spec().SessionID)

	f.Err = context.Canceled
	_, err = f.Start(context.Background(), agentengine.StartSpec{})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, f.Started())
}

func TestCloseEndsStream(t *testing.T) {
	e := New()
	e.Push(agentengine.EvSystem{Subtype: "keep_alive"})
	require.NoError(t, e.Close(context.Background()))
	require.True(t, e.Closed())

	_, ok := <-e.Events()
	require.True(t, ok, "queued events survive close")
	_, ok = <-e.Events()
	require.False(t, ok)

	require.Error(t, e.Send(context.Background(), nil))
	e.Push(agentengine.EvSystem{})
}

func TestEchoRepliesWithText(t *testing.T) {
	f := &Factory{Setup: Echo}
	up, err := f.Start(context.Background(), agentengine.StartSpec{SessionID: "s1"})
	require.NoError(t, err)
	e := f.Last()

	require.NoError(t, up.Send(context.Background(), []wire.ContentBlock{{Type: wire.BlockText, Text: "hi"}}))
	events := drain(e)
	require.Len(t, events, 3)
	require.Equal(t, agentengine.EvInit{CorrelationID: "fake-s1"}, events[0])
	require.Equal(t, EchoPrefix+"hi", events[1].(agentengine.EvStream).Delta.Text)
	require.Equal(t, agentengine.ResultSuccess, events[2].(agentengine.EvResult).Subtype)

	require.NoError(t, up.Interrupt(context.Background()))
	require.Empty(t, drain(e), "interrupt outside a pending permission is a no-op")
}

func TestEchoRunAsksPermission(t *testing.T) {
	e := New()
	Echo(e)
	ctx := context.Background()

	require.NoError(t, e.Send(ctx, []wire.ContentBlock{{Type: wire.BlockText, Text: "run make"}}))
	events := drain(e)
	require.Len(t, events, 3)
	req := events[2].(agentengine.EvPermissionRequest)
	require.Equal(t, "Bash", req.ToolName)
	require.JSONEq(t, `{"command":"make"}`, string(req.Input))

	require.NoError(t, e.RespondPermission(ctx, req.RequestID, agentengine.PermissionResponse{Message: "no"}))
	events = drain(e)
	require.Len(t, events, 2)
	result := events[0].(agentengine.EvMessage).Content[0]
	require.Equal(t, "no", result.String("content"))
	require.True(t, result.Bool("is_error"))
	require.Len(t, e.Responses(), 1)

	// An interrupt while the permission is pending ends the turn at once.
	require.NoError(t, e.Send(ctx, []wire.ContentBlock{{Type: wire.BlockText, Text: "run make"}}))
	req = drain(e)[2].(agentengine.EvPermissionRequest)
	require.NoError(t, e.Interrupt(ctx))
	events = drain(e)
	require.Len(t, events, 1)
	require.Equal(t, agentengine.ResultErrorDuringExecution, events[0].(agentengine.EvResult).Subtype)
	require.NoError(t, e.RespondPermission(ctx, req.RequestID, agentengine.PermissionResponse{Interrupt: true}))
	require.Empty(t, drain(e))
	require.Equal(t, 1, e.Interrupts())
}
