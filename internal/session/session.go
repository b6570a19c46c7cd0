// Package session owns live agent sessions: the registry of sessions, the
// per-turn prompt loop, and the notification stream each session produces.
package session

import (
	"context"
	"strings"
	"sync"

	"github.com/bhandras/delight-acp/internal/agentengine"
	"github.com/bhandras/delight-acp/internal/permission"
	"github.com/bhandras/delight-acp/internal/wire"
)

// maxHistory bounds the notifications kept per session.
const maxHistory = 4096

// StopReason is the outcome of a completed turn.
type StopReason string

const (
	// StopEndTurn means the agent finished its reply.
	StopEndTurn StopReason = "end_turn"
	// StopCancelled means the turn was cancelled by the client.
	StopCancelled StopReason = "cancelled"
	// StopMaxTurnRequests means the upstream hit a turn or budget limit.
	StopMaxTurnRequests StopReason = "max_turn_requests"
)

// Session is one conversation with an upstream agent. It implements
// permission.State.
type Session struct {
	id       string
	workDir  string
	upstream agentengine.Upstream

	mu            sync.Mutex
	mode          permission.Mode
	cancelled     bool
	disposed      bool
	running       bool
	turnCancel    context.CancelFunc
	// stale is set when a turn returned before its result was read.
	stale         bool
	correlationID string
	planPath      string
	planContent   string
	history       []wire.Notification
}

func newSession(id, workDir string, mode permission.Mode, upstream agentengine.Upstream) *Session {
	return &Session{id: id, workDir: workDir, mode: mode, upstream: upstream}
}

// ID implements permission.State.
func (s *Session) ID() string { return s.id }

// WorkingDirectory implements permission.State.
func (s *Session) WorkingDirectory() string { return s.workDir }

// Mode implements permission.State.
func (s *Session) Mode() permission.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// LastPlan implements permission.State.
func (s *Session) LastPlan() (string, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.planPath, s.planContent, s.planPath != ""
}

// RecordPlan implements permission.State.
func (s *Session) RecordPlan(path string, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.planPath = path
	s.planContent = content
}

// RecentAssistantText implements permission.State. Trailing notifications
// that are not agent text are skipped; the run ends at the first earlier
// notification that is not agent text.
func (s *Session) RecentAssistantText() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var parts []string
	for i := len(s.history) - 1; i >= 0; i-- {
		text, ok := agentText(s.history[i])
		if !ok {
			if len(parts) > 0 {
				break
			}
			continue
		}
		parts = append(parts, text)
	}
	var b strings.Builder
	for i := len(parts) - 1; i >= 0; i-- {
		b.WriteString(parts[i])
	}
	return b.String()
}

func agentText(n wire.Notification) (string, bool) {
	chunk, ok := n.Update.(wire.MessageChunk)
	if !ok || chunk.Role != wire.RoleAssistant || chunk.Content.Type != wire.ContentText {
		return "", false
	}
	return chunk.Content.Text, true
}

// History returns a snapshot of the session's notifications.
func (s *Session) History() []wire.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]wire.Notification(nil), s.history...)
}

// UpstreamCorrelationID returns the upstream conversation id, once known.
func (s *Session) UpstreamCorrelationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.correlationID
}

// Cancelled reports whether the current turn was cancelled.
func (s *Session) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

func (s *Session) record(n wire.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, n)
	if over := len(s.history) - maxHistory; over > 0 {
		s.history = append(s.history[:0:0], s.history[over:]...)
	}
}

// captureCorrelation stores id unless one is already known. It reports
// whether id was stored.
func (s *Session) captureCorrelation(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == "" || s.correlationID != "" {
		return false
	}
	s.correlationID = id
	return true
}

func (s *Session) markStale() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stale = true
}

// takeStale reports and clears the stale flag.
func (s *Session) takeStale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	stale := s.stale
	s.stale = false
	return stale
}

func (s *Session) setMode(mode permission.Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
}

// beginTurn marks a turn in flight and returns its context. The
// cancellation flag is cleared.
func (s *Session) beginTurn(ctx context.Context) (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.disposed:
		return nil, ErrSessionCancelled
	case s.running:
		return nil, ErrSessionBusy
	}
	turnCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancelled = false
	s.turnCancel = cancel
	return turnCtx, nil
}

func (s *Session) endTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.turnCancel != nil {
		s.turnCancel()
	}
	s.turnCancel = nil
	s.running = false
}

// cancel sets the cancellation flag and unblocks any decision wait of the
// in-flight turn. It reports whether a turn was in flight.
func (s *Session) cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = true
	if s.turnCancel != nil {
		s.turnCancel()
	}
	return s.running
}

func (s *Session) dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disposed = true
	s.cancelled = true
	if s.turnCancel != nil {
		s.turnCancel()
	}
}
