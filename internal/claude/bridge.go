package claude

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/bhandras/delight-acp/internal/wire"
	"github.com/bhandras/delight-acp/pkg/logger"
	"github.com/google/uuid"
)

const (
	// DefaultPath is the Claude Code executable looked up on PATH.
	DefaultPath = "claude"

	// PostToolUseCallbackID is the hook callback id registered for
	// PostToolUse during the initialize handshake.
	PostToolUseCallbackID = "delight_post_tool_use"

	initializeTimeout = 30 * time.Second
	killGracePeriod   = 200 * time.Millisecond
	messageBuffer     = 100
)

// Options configures a Bridge.
type Options struct {
	// Path is the Claude Code executable. Empty means DefaultPath.
	Path string
	// WorkDir is the process working directory.
	WorkDir string
	// ResumeToken resumes an existing Claude session when set.
	ResumeToken string
	// PermissionMode is the initial permission mode.
	PermissionMode string
	// Model selects the upstream model when set.
	Model string
	// Env is appended to the inherited environment.
	Env []string
	// Debug enables verbose bridge logging.
	Debug bool
}

type controlResult struct {
	response json.RawMessage
	err      error
}

// Bridge manages a Claude Code process speaking stream-json on stdio.
type Bridge struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader
	stderr io.Reader

	mu    sync.Mutex
	debug bool

	messages    chan *Message
	stopCh      chan struct{}
	stopOnce    sync.Once
	doneCh      chan struct{}
	stdinWriter *json.Encoder
	pending     map[string]chan controlResult

	sessionID string
	running   bool
}

// Args returns the command-line arguments for a Claude Code process.
func Args(opts Options) []string {
	args := []string{
		"--output-format", "stream-json",
		"--input-format", "stream-json",
		"--verbose",
		"--include-partial-messages",
		"--permission-prompt-tool", "stdio",
	}
	if mode := strings.TrimSpace(opts.PermissionMode); mode != "" {
		args = append(args, "--permission-mode", mode)
	}
	if model := strings.TrimSpace(opts.Model); model != "" {
		args = append(args, "--model", model)
	}
	if resume := strings.TrimSpace(opts.ResumeToken); resume != "" {
		args = append(args, "--resume", resume)
	}
	return args
}

// NewBridge prepares a Claude Code process. Call Start to launch it.
func NewBridge(opts Options) (*Bridge, error) {
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		path = DefaultPath
	}
	if opts.Debug {
		logger.Debugf("Using claude at: %s", path)
	}

	cmd := exec.Command(path, Args(opts)...)
	cmd.Dir = opts.WorkDir
	cmd.Env = append(os.Environ(), opts.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	b := newBridge(stdin, stdout, stderr, opts.Debug)
	b.cmd = cmd
	b.sessionID = strings.TrimSpace(opts.ResumeToken)
	return b, nil
}

func newBridge(stdin io.WriteCloser, stdout, stderr io.Reader, debug bool) *Bridge {
	return &Bridge{
		stdin:    stdin,
		stdout:   stdout,
		stderr:   stderr,
		debug:    debug,
		messages: make(chan *Message, messageBuffer),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		pending:  make(map[string]chan controlResult),
	}
}

// Start launches the process, begins reading messages and performs the
// initialize handshake.
func (b *Bridge) Start(ctx context.Context) error {
	if b.debug {
		logger.Infof("Starting Claude stream-json bridge...")
	}
	if b.cmd != nil {
		if err := b.cmd.Start(); err != nil {
			return fmt.Errorf("failed to start claude: %w", err)
		}
	}
	b.startIO()

	initCtx, cancel := context.WithTimeout(ctx, initializeTimeout)
	defer cancel()
	if _, err := b.request(initCtx, map[string]any{
		"subtype": "initialize",
		"hooks": map[string]any{
			"PostToolUse": []any{
				map[string]any{"hookCallbackIds": []string{PostToolUseCallbackID}},
			},
		},
	}); err != nil {
		_ = b.Kill()
		return fmt.Errorf("claude initialize: %w", err)
	}
	if b.debug {
		logger.Infof("Bridge ready")
	}
	return nil
}

func (b *Bridge) startIO() {
	b.mu.Lock()
	b.running = true
	b.stdinWriter = json.NewEncoder(b.stdin)
	b.mu.Unlock()

	go b.readMessages()
	if b.stderr != nil {
		go b.readStderr()
	}
}

// readMessages reads JSON messages from stdout until EOF, then closes the
// message channel and fails every pending control request.
func (b *Bridge) readMessages() {
	defer func() {
		b.failPending(io.EOF)
		close(b.messages)
		close(b.doneCh)
	}()

	scanner := bufio.NewScanner(b.stdout)
	// Increase buffer size for large messages
	scanner.Buffer(make([]byte, 1024*1024), 10*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var msg Message
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			if b.debug {
				logger.Debugf("Invalid claude message: %s (error: %v)", line, err)
			}
			continue
		}
		msg.Raw = json.RawMessage(line)

		if !b.handleMessage(&msg) {
			return
		}
	}

	if err := scanner.Err(); err != nil && b.debug {
		logger.Debugf("Claude stdout error: %v", err)
	}
}

// readStderr reads diagnostic output from the process's stderr.
func (b *Bridge) readStderr() {
	scanner := bufio.NewScanner(b.stderr)
	for scanner.Scan() {
		if b.debug {
			logger.Debugf("[claude stderr] %s", scanner.Text())
		}
	}
}

// handleMessage routes one message. It returns false once the bridge is
// stopping.
func (b *Bridge) handleMessage(msg *Message) bool {
	switch msg.Type {
	case TypeControlResponse:
		b.resolveControl(msg.Response)
		return true

	case TypeSystem:
		if msg.Subtype == SystemInit && msg.SessionID != "" {
			b.mu.Lock()
			b.sessionID = msg.SessionID
			b.mu.Unlock()
			if b.debug {
				logger.Debugf("Session ID: %s", msg.SessionID)
			}
		}
	}

	select {
	case b.messages <- msg:
		return true
	case <-b.stopCh:
		return false
	}
}

func (b *Bridge) resolveControl(raw json.RawMessage) {
	var resp controlResponseBody
	if err := json.Unmarshal(raw, &resp); err != nil {
		logger.Warnf("Invalid control response: %v", err)
		return
	}

	b.mu.Lock()
	ch, ok := b.pending[resp.RequestID]
	delete(b.pending, resp.RequestID)
	b.mu.Unlock()
	if !ok {
		if b.debug {
			logger.Debugf("Control response for unknown request %q", resp.RequestID)
		}
		return
	}

	result := controlResult{response: resp.Response}
	if resp.Subtype == "error" {
		result.err = fmt.Errorf("claude control error: %s", resp.Error)
	}
	ch <- result
}

func (b *Bridge) failPending(err error) {
	b.mu.Lock()
	pending := b.pending
	b.pending = make(map[string]chan controlResult)
	b.mu.Unlock()
	for _, ch := range pending {
		ch <- controlResult{err: err}
	}
}

// request sends a control request and waits for its response.
func (b *Bridge) request(ctx context.Context, body map[string]any) (json.RawMessage, error) {
	requestID := "req_" + uuid.NewString()
	ch := make(chan controlResult, 1)

	b.mu.Lock()
	b.pending[requestID] = ch
	b.mu.Unlock()

	err := b.sendMessage(map[string]any{
		"type":       TypeControlRequest,
		"request_id": requestID,
		"request":    body,
	})
	if err != nil {
		b.mu.Lock()
		delete(b.pending, requestID)
		b.mu.Unlock()
		return nil, err
	}

	select {
	case res := <-ch:
		return res.response, res.err
	case <-ctx.Done():
		b.mu.Lock()
		delete(b.pending, requestID)
		b.mu.Unlock()
		return nil, ctx.Err()
	}
}

// sendMessage writes a JSON message to the process's stdin.
func (b *Bridge) sendMessage(msg any) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running || b.stdinWriter == nil {
		return fmt.Errorf("claude bridge not running")
	}

	return b.stdinWriter.Encode(msg)
}

// SendUserMessage sends one user turn.
func (b *Bridge) SendUserMessage(content []wire.ContentBlock) error {
	if content == nil {
		content = []wire.ContentBlock{}
	}
	if b.debug {
		logger.Tracef("Sending user message (%d blocks)", len(content))
	}
	return b.sendMessage(map[string]any{
		"type": TypeUser,
		"message": map[string]any{
			"role":    "user",
			"content": content,
		},
		"parent_tool_use_id": nil,
		"session_id":         "",
	})
}

// SendControlResponse answers an incoming control request.
func (b *Bridge) SendControlResponse(requestID string, response any) error {
	if requestID == "" {
		return fmt.Errorf("missing request id")
	}
	return b.sendMessage(map[string]any{
		"type": TypeControlResponse,
		"response": map[string]any{
			"subtype":    "success",
			"request_id": requestID,
			"response":   response,
		},
	})
}

// SendControlError rejects an incoming control request.
func (b *Bridge) SendControlError(requestID string, message string) error {
	if requestID == "" {
		return fmt.Errorf("missing request id")
	}
	return b.sendMessage(map[string]any{
		"type": TypeControlResponse,
		"response": map[string]any{
			"subtype":    "error",
			"request_id": requestID,
			"error":      message,
		},
	})
}

// SendPermissionResponse answers a can_use_tool control request.
func (b *Bridge) SendPermissionResponse(requestID string, response *PermissionResponse) error {
	if response == nil {
		response = &PermissionResponse{Behavior: BehaviorDeny, Message: "missing response"}
	}
	return b.SendControlResponse(requestID, response)
}

// Interrupt aborts the in-flight turn.
func (b *Bridge) Interrupt(ctx context.Context) error {
	_, err := b.request(ctx, map[string]any{"subtype": "interrupt"})
	return err
}

// SetPermissionMode changes the upstream permission mode.
func (b *Bridge) SetPermissionMode(ctx context.Context, mode string) error {
	_, err := b.request(ctx, map[string]any{"subtype": "set_permission_mode", "mode": mode})
	return err
}

// Messages returns the incoming message stream. It is closed when the
// process's stdout ends.
func (b *Bridge) Messages() <-chan *Message {
	return b.messages
}

// Done is closed once the message stream has ended.
func (b *Bridge) Done() <-chan struct{} {
	return b.doneCh
}

// SessionID returns the current Claude session id.
func (b *Bridge) SessionID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sessionID
}

// Wait waits for the process to exit.
func (b *Bridge) Wait() error {
	if b.cmd == nil {
		<-b.doneCh
		return nil
	}
	if b.cmd.Process == nil {
		return fmt.Errorf("process not started")
	}
	return b.cmd.Wait()
}

// Kill terminates the process.
func (b *Bridge) Kill() error {
	b.mu.Lock()
	b.running = false
	b.mu.Unlock()

	b.stopOnce.Do(func() { close(b.stopCh) })

	// Close stdin to signal shutdown
	if b.stdin != nil {
		b.stdin.Close()
	}

	if b.cmd == nil || b.cmd.Process == nil {
		return nil
	}

	if b.debug {
		logger.Debugf("Killing claude process...")
	}

	// Send Ctrl+C first so the process can flush its session file.
	_ = b.cmd.Process.Signal(os.Interrupt)
	time.Sleep(killGracePeriod)

	return b.cmd.Process.Kill()
}

// IsRunning returns whether the bridge is running.
func (b *Bridge) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}
