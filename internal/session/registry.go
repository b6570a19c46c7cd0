package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bhandras/delight-acp/internal/agentengine"
	"github.com/bhandras/delight-acp/internal/permission"
	"github.com/bhandras/delight-acp/internal/storage"
	"github.com/bhandras/delight-acp/internal/translate"
	"github.com/bhandras/delight-acp/internal/wire"
	"github.com/bhandras/delight-acp/pkg/logger"
	"github.com/google/uuid"
)

// Sink receives every session notification, in order per session.
type Sink interface {
	Notify(ctx context.Context, n wire.Notification) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n wire.Notification) error

// Notify implements Sink.
func (f SinkFunc) Notify(ctx context.Context, n wire.Notification) error {
	return f(ctx, n)
}

// Options configures a Registry.
type Options struct {
	// Upstreams starts the upstream runtime for each session. Required.
	Upstreams agentengine.Factory
	// Policy evaluates tool permission requests. Required.
	Policy *permission.Engine
	// Sink receives notifications. Nil discards them.
	Sink Sink
	// Store persists session metadata for resume. Optional.
	Store *storage.Store
	// AgentType is recorded with stored metadata.
	AgentType agentengine.AgentType

	// ToolUses, Hooks and Files are the shared translation stores. Nil
	// values get private instances.
	ToolUses *translate.ToolUseCache
	Hooks    *translate.HookRegistry
	Files    translate.FileCache
}

// CreateSessionOptions configures a new session.
type CreateSessionOptions struct {
	// InitialMode is the permission mode id. Empty means default.
	InitialMode string
	// WorkingDirectory resolves relative tool paths. Empty means the process
	// working directory.
	WorkingDirectory string
	// ResumeSessionID reopens a stored session under its previous id.
	ResumeSessionID string
}

// Registry owns every live session and the stores shared between them.
type Registry struct {
	upstreams  agentengine.Factory
	policy     *permission.Engine
	sink       Sink
	store      *storage.Store
	agentType  agentengine.AgentType
	translator *translate.Translator

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry validates opts and returns an empty Registry.
func NewRegistry(opts Options) (*Registry, error) {
	if opts.Upstreams == nil {
		return nil, fmt.Errorf("missing upstream factory")
	}
	if opts.Policy == nil {
		return nil, fmt.Errorf("missing permission policy")
	}
	sink := opts.Sink
	if sink == nil {
		sink = SinkFunc(func(context.Context, wire.Notification) error { return nil })
	}
	files := opts.Files
	if files == nil {
		files = translate.NewMemoryFileCache()
	}
	return &Registry{
		upstreams:  opts.Upstreams,
		policy:     opts.Policy,
		sink:       sink,
		store:      opts.Store,
		agentType:  opts.AgentType,
		translator: translate.New(opts.ToolUses, opts.Hooks, files),
		sessions:   make(map[string]*Session),
	}, nil
}

// Translator returns the registry's event translator.
func (r *Registry) Translator() *translate.Translator { return r.translator }

// CreateSession starts an upstream and registers a new session.
func (r *Registry) CreateSession(ctx context.Context, opts CreateSessionOptions) (string, error) {
	id := uuid.NewString()
	modeID := opts.InitialMode
	workDir := opts.WorkingDirectory
	var resumeToken, planPath string

	if resume := strings.TrimSpace(opts.ResumeSessionID); resume != "" {
		if r.store == nil {
			return "", fmt.Errorf("%w: %s (no session store)", ErrSessionNotFound, resume)
		}
		info, err := r.store.Load(resume)
		if errors.Is(err, storage.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrSessionNotFound, resume)
		}
		if err != nil {
			return "", err
		}
		if _, ok := r.Session(resume); ok {
			return "", fmt.Errorf("session %s is already active", resume)
		}
		id = resume
		resumeToken = info.ResumeToken
		planPath = info.PlanFilePath
		if modeID == "" {
			modeID = info.PermissionMode
		}
		if workDir == "" {
			workDir = info.WorkDir
		}
	}

	mode, err := permission.ParseMode(modeID)
	if err != nil {
		return "", err
	}
	if workDir == "" {
		if workDir, err = os.Getwd(); err != nil {
			return "", fmt.Errorf("resolve working directory: %w", err)
		}
	}
	if workDir, err = filepath.Abs(workDir); err != nil {
		return "", fmt.Errorf("resolve working directory: %w", err)
	}

	upstream, err := r.upstreams.Start(ctx, agentengine.StartSpec{
		SessionID:      id,
		WorkDir:        workDir,
		ResumeToken:    resumeToken,
		PermissionMode: string(mode),
	})
	if err != nil {
		return "", fmt.Errorf("start upstream: %w", err)
	}

	s := newSession(id, workDir, mode, upstream)
	if planPath != "" {
		if data, err := os.ReadFile(planPath); err == nil {
			s.RecordPlan(planPath, string(data))
		}
	}
	if resumeToken != "" {
		s.captureCorrelation(resumeToken)
	}

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()

	r.persist(s)
	logger.Infof("Session %s created (mode=%s cwd=%s resumed=%t)", id, mode, workDir, resumeToken != "")
	return id, nil
}

// Session returns the live session with id.
func (r *Registry) Session(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *Registry) lookup(id string) (*Session, error) {
	s, ok := r.Session(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Cancel cancels the session's in-flight turn: pending decisions resolve as
// cancelled and the upstream is interrupted. The turn itself ends when the
// upstream reports its result.
func (r *Registry) Cancel(ctx context.Context, id string) error {
	s, err := r.lookup(id)
	if err != nil {
		return err
	}
	if !s.cancel() {
		return nil
	}
	if err := s.upstream.Interrupt(ctx); err != nil {
		return fmt.Errorf("interrupt upstream: %w", err)
	}
	return nil
}

// SetMode sets the session's permission mode and forwards it upstream.
func (r *Registry) SetMode(ctx context.Context, id string, modeID string) error {
	s, err := r.lookup(id)
	if err != nil {
		return err
	}
	mode, err := permission.ParseMode(modeID)
	if err != nil || modeID == "" {
		return fmt.Errorf("%w: %q", ErrInvalidMode, modeID)
	}
	s.setMode(mode)
	r.persist(s)
	if err := s.upstream.SetPermissionMode(ctx, string(mode)); err != nil {
		return fmt.Errorf("forward permission mode: %w", err)
	}
	return nil
}

// Dispose cancels any in-flight turn, closes the upstream and forgets the
// session. Stored metadata is kept for resume.
func (r *Registry) Dispose(ctx context.Context, id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	s.dispose()
	dropped := r.translator.Hooks().DropSession(id)
	r.translator.ToolUses().ForgetSession(id)
	if dropped > 0 {
		logger.Debugf("Session %s disposed with %d orphaned hook callbacks", id, dropped)
	}
	return s.upstream.Close(ctx)
}

// Close disposes every session.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	var errs []error
	for _, id := range ids {
		if err := r.Dispose(ctx, id); err != nil && !errors.Is(err, ErrSessionNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// emit records n in the session history and hands it to the sink.
func (r *Registry) emit(ctx context.Context, s *Session, n wire.Notification) {
	s.record(n)
	if err := r.sink.Notify(ctx, n); err != nil {
		logger.Warnf("Session %s: notification delivery failed: %v", s.id, err)
	}
}

func (r *Registry) emitAll(ctx context.Context, s *Session, ns []wire.Notification) {
	for _, n := range ns {
		r.emit(ctx, s, n)
	}
}

// persist writes the session's resumable metadata. Failures are logged.
func (r *Registry) persist(s *Session) {
	if r.store == nil {
		return
	}
	planPath, _, _ := s.LastPlan()
	err := r.store.Update(s.id, func(info *storage.SessionInfo) {
		info.AgentType = string(r.agentType)
		info.ResumeToken = s.UpstreamCorrelationID()
		info.PermissionMode = string(s.Mode())
		info.WorkDir = s.workDir
		info.PlanFilePath = planPath
	})
	if err != nil {
		logger.Warnf("Session %s: persist metadata: %v", s.id, err)
	}
}
