// Package fakeengine provides a scripted in-memory implementation of
// agentengine.Upstream.
//
// This exists to drive the prompt loop deterministically in tests without
// spawning a real agent process.
package fakeengine

import (
	"context"
	"fmt"
	"sync"

	"github.com/bhandras/delight-acp/internal/agentengine"
	"github.com/bhandras/delight-acp/internal/wire"
)

// eventBuffer bounds the number of scripted events queued but not consumed.
const eventBuffer = 1024

// Response records one RespondPermission call.
type Response struct {
	RequestID string
	agentengine.PermissionResponse
}

// Engine implements agentengine.Upstream by replaying scripted events.
type Engine struct {
	mu sync.Mutex

	spec   agentengine.StartSpec
	events chan agentengine.Event
	closed bool

	// OnSend returns the events emitted in reply to a user turn.
	OnSend func(turn int, content []wire.ContentBlock) []agentengine.Event
	// OnRespond returns the events emitted after a permission response.
	OnRespond func(requestID string, resp agentengine.PermissionResponse) []agentengine.Event
	// OnInterrupt returns the events emitted after an interrupt.
	OnInterrupt func() []agentengine.Event

	sent       [][]wire.ContentBlock
	responses  []Response
	modes      []string
	interrupts int
}

// New returns a new fake engine instance.
func New() *Engine {
	return &Engine{events: make(chan agentengine.Event, eventBuffer)}
}

// Spec returns the start spec the engine was created with.
func (e *Engine) Spec() agentengine.StartSpec {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.spec
}

// Push queues events as if the upstream emitted them.
func (e *Engine) Push(events ...agentengine.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pushLocked(events)
}

func (e *Engine) pushLocked(events []agentengine.Event) {
	if e.closed {
		return
	}
	for _, ev := range events {
		if ev == nil {
			continue
		}
		select {
		case e.events <- ev:
		default:
			panic(fmt.Sprintf("fake engine event buffer full (%d)", eventBuffer))
		}
	}
}

// Events implements agentengine.Upstream.
func (e *Engine) Events() <-chan agentengine.Event {
	return e.events
}

// Send implements agentengine.Upstream.
func (e *Engine) Send(ctx context.Context, content []wire.ContentBlock) error {
	_ = ctx
	if e == nil {
		return fmt.Errorf("fake engine is nil")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("fake engine closed")
	}
	e.sent = append(e.sent, content)
	if e.OnSend != nil {
		e.pushLocked(e.OnSend(len(e.sent), content))
	}
	return nil
}

// RespondPermission implements agentengine.Upstream.
func (e *Engine) RespondPermission(ctx context.Context, requestID string, resp agentengine.PermissionResponse) error {
	_ = ctx
	if e == nil {
		return fmt.Errorf("fake engine is nil")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.responses = append(e.responses, Response{RequestID: requestID, PermissionResponse: resp})
	if e.OnRespond != nil {
		e.pushLocked(e.OnRespond(requestID, resp))
	}
	return nil
}

// Interrupt implements agentengine.Upstream.
func (e *Engine) Interrupt(ctx context.Context) error {
	_ = ctx
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.interrupts++
	if e.OnInterrupt != nil {
		e.pushLocked(e.OnInterrupt())
	}
	return nil
}

// SetPermissionMode implements agentengine.Upstream.
func (e *Engine) SetPermissionMode(ctx context.Context, mode string) error {
	_ = ctx
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.modes = append(e.modes, mode)
	return nil
}

// Close implements agentengine.Upstream. Closing ends the event stream.
func (e *Engine) Close(ctx context.Context) error {
	_ = ctx
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.events)
	}
	return nil
}

// Sent returns every user turn pushed upstream.
func (e *Engine) Sent() [][]wire.ContentBlock {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]wire.ContentBlock(nil), e.sent...)
}

// Responses returns every permission response, in order.
func (e *Engine) Responses() []Response {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Response(nil), e.responses...)
}

// Modes returns every forwarded permission mode, in order.
func (e *Engine) Modes() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.modes...)
}

// Interrupts returns the number of interrupts received.
func (e *Engine) Interrupts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.interrupts
}

// Closed reports whether Close was called.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Factory starts fake engines and remembers them for inspection.
type Factory struct {
	mu sync.Mutex

	// Setup scripts each new engine before it is returned.
	Setup func(e *Engine)
	// Err, when set, fails every start.
	Err error

	engines []*Engine
}

// Start implements agentengine.Factory.
func (f *Factory) Start(ctx context.Context, spec agentengine.StartSpec) (agentengine.Upstream, error) {
	_ = ctx
	if f.Err != nil {
		return nil, f.Err
	}
	e := New()
	e.spec = spec
	if f.Setup != nil {
		f.Setup(e)
	}
	f.mu.Lock()
	f.engines = append(f.engines, e)
	f.mu.Unlock()
	return e, nil
}

// Last returns the most recently started engine, or nil.
func (f *Factory) Last() *Engine {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.engines) == 0 {
		return nil
	}
	return f.engines[len(f.engines)-1]
}

// Started returns the number of engines started.
func (f *Factory) Started() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.engines)
}
