package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/bhandras/delight-acp/internal/permission"
	"github.com/bhandras/delight-acp/internal/session"
	"github.com/bhandras/delight-acp/internal/version"
	"github.com/bhandras/delight-acp/internal/wire"
	"github.com/bhandras/delight-acp/pkg/logger"
	"golang.org/x/sync/errgroup"
)

const (
	jsonrpcVersion  = "2.0"
	protocolVersion = 1

	methodInitialize        = "initialize"
	methodSessionNew        = "session/new"
	methodSessionLoad       = "session/load"
	methodSessionPrompt     = "session/prompt"
	methodSessionCancel     = "session/cancel"
	methodSessionSetMode    = "session/set_mode"
	methodSessionDispose    = "session/dispose"
	methodSessionUpdate     = "session/update"
	methodRequestPermission = "session/request_permission"

	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
	codeAuthRequired   = -32000

	maxLineSize = 10 * 1024 * 1024
)

// rpcMessage is one newline-delimited JSON-RPC frame in either direction.
type rpcMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// server speaks JSON-RPC over a pair of streams. It is the registry's
// notification sink and the policy engine's decider.
type server struct {
	in       io.Reader
	registry *session.Registry

	writeMu sync.Mutex
	enc     *json.Encoder

	pendingMu sync.Mutex
	pending   map[string]chan decisionReply
}

type decisionReply struct {
	outcome wire.DecisionOutcome
	err     error
}

func newServer(in io.Reader, out io.Writer) *server {
	return &server{
		in:      in,
		enc:     json.NewEncoder(out),
		pending: make(map[string]chan decisionReply),
	}
}

// Serve reads requests until the input ends or ctx is done. Prompts run
// concurrently so cancellations and decision replies are read while a turn
// is in flight. Every session is disposed before Serve returns.
func (s *server) Serve(ctx context.Context) error {
	if s.registry == nil {
		return fmt.Errorf("server has no session registry")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go s.readLines(ctx, lines, readErr)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					return <-readErr
				}
				s.dispatch(ctx, g, line)
			}
		}
	})

	err := g.Wait()
	if closeErr := s.registry.Close(context.Background()); closeErr != nil {
		logger.Warnf("Close sessions: %v", closeErr)
	}
	return err
}

// readLines feeds input lines to Serve. It stops at the end of input or,
// once ctx is done, at the next line it reads.
func (s *server) readLines(ctx context.Context, lines chan<- []byte, readErr chan<- error) {
	defer close(lines)
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 1024*1024), maxLineSize)
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		if len(line) == 0 {
			continue
		}
		select {
		case lines <- line:
		case <-ctx.Done():
			return
		}
	}
	readErr <- scanner.Err()
}

func (s *server) dispatch(ctx context.Context, g *errgroup.Group, line []byte) {
	var msg rpcMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		logger.Debugf("Invalid frame: %v", err)
		s.reply(json.RawMessage("null"), nil, &rpcError{Code: codeParseError, Message: err.Error()})
		return
	}

	if msg.Method == "" {
		s.resolveDecision(msg)
		return
	}

	if msg.Method == methodSessionPrompt {
		g.Go(func() error {
			s.handle(ctx, msg)
			return nil
		})
		return
	}
	s.handle(ctx, msg)
}

func (s *server) handle(ctx context.Context, msg rpcMessage) {
	result, err := s.call(ctx, msg.Method, msg.Params)
	if len(msg.ID) == 0 {
		if err != nil {
			logger.Warnf("%s: %v", msg.Method, err)
		}
		return
	}
	if err != nil {
		s.reply(msg.ID, nil, toRPCError(err))
		return
	}
	s.reply(msg.ID, result, nil)
}

type sessionParams struct {
	SessionID string         `json:"sessionId"`
	Cwd       string         `json:"cwd,omitempty"`
	ModeID    string         `json:"modeId,omitempty"`
	Prompt    []wire.Content `json:"prompt,omitempty"`
}

type modeInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type sessionModes struct {
	CurrentModeID  string     `json:"currentModeId"`
	AvailableModes []modeInfo `json:"availableModes"`
}

type empty struct{}

func (s *server) call(ctx context.Context, method string, raw json.RawMessage) (any, error) {
	var params sessionParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
		}
	}

	switch method {
	case methodInitialize:
		return map[string]any{
			"protocolVersion": protocolVersion,
			"agentInfo": map[string]string{
				"name":    version.AgentName,
				"version": version.Version(),
			},
			"agentCapabilities": map[string]bool{"loadSession": true},
		}, nil

	case methodSessionNew, methodSessionLoad:
		opts := session.CreateSessionOptions{
			InitialMode:      params.ModeID,
			WorkingDirectory: params.Cwd,
		}
		if method == methodSessionLoad {
			if params.SessionID == "" {
				return nil, &rpcError{Code: codeInvalidParams, Message: "missing sessionId"}
			}
			opts.ResumeSessionID = params.SessionID
		}
		id, err := s.registry.CreateSession(ctx, opts)
		if err != nil {
			return nil, err
		}
		return map[string]any{"sessionId": id, "modes": s.modes(id)}, nil

	case methodSessionPrompt:
		reason, err := s.registry.Prompt(ctx, params.SessionID, params.Prompt)
		if err != nil {
			return nil, err
		}
		return map[string]string{"stopReason": string(reason)}, nil

	case methodSessionCancel:
		return empty{}, s.registry.Cancel(ctx, params.SessionID)

	case methodSessionSetMode:
		return empty{}, s.registry.SetMode(ctx, params.SessionID, params.ModeID)

	case methodSessionDispose:
		return empty{}, s.registry.Dispose(ctx, params.SessionID)
	}
	return nil, &rpcError{Code: codeMethodNotFound, Message: "method not found: " + method}
}

func (s *server) modes(id string) sessionModes {
	out := sessionModes{}
	if sess, ok := s.registry.Session(id); ok {
		out.CurrentModeID = string(sess.Mode())
	}
	for _, m := range permission.Modes() {
		out.AvailableModes = append(out.AvailableModes, modeInfo{ID: string(m), Name: modeName(m)})
	}
	return out
}

func modeName(m permission.Mode) string {
	switch m {
	case permission.ModeAcceptEdits:
		return "Accept Edits"
	case permission.ModePlan:
		return "Plan"
	case permission.ModeBypassPermissions:
		return "Bypass Permissions"
	}
	return "Default"
}

func toRPCError(err error) *rpcError {
	var rerr *rpcError
	if errors.As(err, &rerr) {
		return rerr
	}
	code := codeInternalError
	switch {
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrInvalidMode):
		code = codeInvalidParams
	case errors.Is(err, session.ErrAuthRequired):
		code = codeAuthRequired
	}
	return &rpcError{Code: code, Message: err.Error()}
}

// Notify implements session.Sink.
func (s *server) Notify(ctx context.Context, n wire.Notification) error {
	return s.write(rpcOut{JSONRPC: jsonrpcVersion, Method: methodSessionUpdate, Params: n})
}

// RequestDecision implements permission.Decider. The request is written as a
// JSON-RPC call and the call's result carries the outcome.
func (s *server) RequestDecision(ctx context.Context, req wire.DecisionRequest) (wire.DecisionOutcome, error) {
	ch := make(chan decisionReply, 1)
	s.pendingMu.Lock()
	s.pending[req.RequestID] = ch
	s.pendingMu.Unlock()
	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, req.RequestID)
		s.pendingMu.Unlock()
	}()

	id, err := json.Marshal(req.RequestID)
	if err != nil {
		return wire.DecisionOutcome{}, err
	}
	err = s.write(rpcOut{JSONRPC: jsonrpcVersion, ID: id, Method: methodRequestPermission, Params: req})
	if err != nil {
		return wire.DecisionOutcome{}, err
	}

	select {
	case <-ctx.Done():
		return wire.DecisionOutcome{}, ctx.Err()
	case reply := <-ch:
		return reply.outcome, reply.err
	}
}

func (s *server) resolveDecision(msg rpcMessage) {
	var id string
	if err := json.Unmarshal(msg.ID, &id); err != nil {
		logger.Debugf("Ignoring response with id %s", msg.ID)
		return
	}
	s.pendingMu.Lock()
	ch, ok := s.pending[id]
	s.pendingMu.Unlock()
	if !ok {
		logger.Debugf("No pending decision %s", id)
		return
	}

	var reply decisionReply
	switch {
	case msg.Error != nil:
		reply.err = msg.Error
	default:
		var result struct {
			Outcome wire.DecisionOutcome `json:"outcome"`
		}
		if err := json.Unmarshal(msg.Result, &result); err != nil {
			reply.err = fmt.Errorf("decode decision %s: %w", id, err)
		}
		reply.outcome = result.Outcome
	}
	select {
	case ch <- reply:
	default:
		logger.Debugf("Duplicate response for decision %s", id)
	}
}

// rpcOut is an outgoing frame; Result and Params are encoded as given.
type rpcOut struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  any             `json:"params,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

func (s *server) reply(id json.RawMessage, result any, rerr *rpcError) {
	if rerr == nil && result == nil {
		result = empty{}
	}
	if err := s.write(rpcOut{JSONRPC: jsonrpcVersion, ID: id, Result: result, Error: rerr}); err != nil {
		logger.Warnf("Write response: %v", err)
	}
}

func (s *server) write(msg rpcOut) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.enc.Encode(msg)
}
