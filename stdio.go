package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type stdioState int

const (
	stateUnstarted stdioState = iota
	stateRunning
	stateClosing
	stateClosed
)

type pendingResult struct {
	msg JSONRPCMessage
	err error
}

// StdioTransport owns a child process and speaks newline-delimited JSON-RPC
// over its standard input/output. Each request/notification is serialized to
// a single JSON text followed by one newline and written as one atomic write;
// inbound stdout bytes are folded into a line buffer and demultiplexed back
// to waiting callers by request id. The child's standard error is drained and
// discarded.
//
// The process is spawned lazily on the first SendRequest/SendNotification
// call. When the process exits, every still-pending request fails and all
// subsequent calls fail fast; no caller is ever left waiting on a dead
// process.
type StdioTransport struct {
	command string
	args    []string
	env     []string
	logger  *slog.Logger

	// mu guards state, nextID, pending, buf, and the process handle. The
	// write path additionally serializes frame writes with writeMu so a
	// message is never interleaved with another.
	mu      sync.Mutex
	state   stdioState
	nextID  int64
	pending map[int64]chan pendingResult
	buf     []byte

	cmd      *exec.Cmd
	stdin    io.WriteCloser
	exitCode int
	exited   chan struct{}

	writeMu sync.Mutex
}

// StdioOption configures a StdioTransport.
type StdioOption func(*StdioTransport)

// WithStdioEnv appends environment variables (KEY=VALUE form) to the child
// process's environment on top of the current process environment.
func WithStdioEnv(env []string) StdioOption {
	return func(t *StdioTransport) {
		t.env = env
	}
}

// WithStdioLogger sets the logger used for transport diagnostics, including
// dropped-line reports.
func WithStdioLogger(logger *slog.Logger) StdioOption {
	return func(t *StdioTransport) {
		t.logger = logger
	}
}

// NewStdioTransport creates a transport that will spawn the given command on
// first use. The command is not started until the first send.
func NewStdioTransport(command string, args []string, options ...StdioOption) *StdioTransport {
	t := &StdioTransport{
		command: command,
		args:    args,
		logger:  slog.Default(),
		nextID:  1,
		pending: make(map[int64]chan pendingResult),
		exited:  make(chan struct{}),
	}
	for _, opt := range options {
		opt(t)
	}
	t.logger = t.logger.With(slog.String("transport", "stdio"), slog.String("session", uuid.New().String()))
	return t
}

var errProcessExited = errors.New("MCP server process has exited")

// SendRequest transmits a request to the child process and blocks until the
// matching response line arrives, the process exits, or ctx is done. There is
// no timeout of its own; a hung server hangs the caller unless the process
// exits.
func (t *StdioTransport) SendRequest(ctx context.Context, method string, params any) (json.RawMessage, error) {
	t.mu.Lock()
	if err := t.ensureRunningLocked(); err != nil {
		t.mu.Unlock()
		return nil, err
	}
	id := t.nextID
	t.nextID++
	resChan := make(chan pendingResult, 1)
	t.pending[id] = resChan
	t.mu.Unlock()

	msg := JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		ID:      &id,
		Method:  method,
	}
	if err := t.writeFramed(&msg, params); err != nil {
		t.removePending(id)
		return nil, err
	}

	select {
	case <-ctx.Done():
		t.removePending(id)
		return nil, ctx.Err()
	case res := <-resChan:
		if res.err != nil {
			return nil, res.err
		}
		if res.msg.Error != nil {
			return nil, *res.msg.Error
		}
		return res.msg.Result, nil
	}
}

// SendNotification transmits an id-less message. It completes as soon as the
// frame has been written to the child's input stream.
func (t *StdioTransport) SendNotification(_ context.Context, method string, params any) error {
	t.mu.Lock()
	if err := t.ensureRunningLocked(); err != nil {
		t.mu.Unlock()
		return err
	}
	t.mu.Unlock()

	msg := JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		Method:  method,
	}
	return t.writeFramed(&msg, params)
}

// Close terminates the child process and releases transport resources. If the
// process is running it receives a termination signal, and Close returns only
// once the process exit has been observed. Close is idempotent: repeated
// calls never fail and never re-signal an already-exited process.
func (t *StdioTransport) Close(ctx context.Context) error {
	t.mu.Lock()
	switch t.state {
	case stateUnstarted:
		t.state = stateClosed
		t.mu.Unlock()
		return nil
	case stateClosed:
		t.mu.Unlock()
		return nil
	case stateClosing:
		t.mu.Unlock()
	case stateRunning:
		t.state = stateClosing
		proc := t.cmd.Process
		t.mu.Unlock()
		if err := proc.Signal(syscall.SIGTERM); err != nil {
			t.logger.Debug("failed to signal child process", slog.String("err", err.Error()))
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.exited:
		return nil
	}
}

// ensureRunningLocked lazily spawns the child process. Callers must hold mu.
func (t *StdioTransport) ensureRunningLocked() error {
	switch t.state {
	case stateRunning:
		return nil
	case stateClosing, stateClosed:
		return errProcessExited
	}

	cmd := exec.Command(t.command, t.args...)
	if len(t.env) > 0 {
		cmd.Env = append(os.Environ(), t.env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to open stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to open stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start MCP server process: %w", err)
	}

	t.cmd = cmd
	t.stdin = stdin
	t.state = stateRunning

	var g errgroup.Group
	g.Go(func() error {
		buf := make([]byte, 8192)
		for {
			n, err := stdout.Read(buf)
			if n > 0 {
				t.feed(buf[:n])
			}
			if err != nil {
				return nil
			}
		}
	})
	g.Go(func() error {
		// Standard error is not part of the protocol.
		_, _ = io.Copy(io.Discard, stderr)
		return nil
	})

	go func() {
		_ = g.Wait()
		err := cmd.Wait()
		t.handleExit(exitCodeOf(err))
	}()

	return nil
}

// writeFramed serializes one message plus a trailing newline and writes it to
// the child's input stream as a single write. Writes are serialized, so
// messages go out in call order.
func (t *StdioTransport) writeFramed(msg *JSONRPCMessage, params any) error {
	if params != nil {
		paramsBs, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("failed to marshal params: %w", err)
		}
		msg.Params = paramsBs
	}

	msgBs, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	msgBs = append(msgBs, '\n')

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := t.stdin.Write(msgBs); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// feed folds newly arrived stdout bytes into the line buffer and completes
// every newline-terminated message found in it. Malformed lines, id-less
// messages, and unknown ids are dropped rather than surfaced: noise on the
// wire must never crash the client or corrupt framing of subsequent lines.
func (t *StdioTransport) feed(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, data...)

	for {
		idx := bytes.IndexByte(t.buf, '\n')
		if idx < 0 {
			return
		}
		line := t.buf[:idx]
		t.buf = t.buf[idx+1:]

		line = bytes.TrimSuffix(line, []byte("\r"))
		if len(line) == 0 {
			continue
		}

		var msg JSONRPCMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			t.logger.Debug("dropping unparseable line", slog.String("err", err.Error()))
			continue
		}
		if msg.ID == nil {
			// No correlation target; either a notification or something we
			// do not recognize.
			t.logger.Debug("dropping message without id", slog.String("method", msg.Method))
			continue
		}

		resChan, ok := t.pending[*msg.ID]
		if !ok {
			t.logger.Debug("dropping response with unknown id", slog.Int64("id", *msg.ID))
			continue
		}
		delete(t.pending, *msg.ID)
		resChan <- pendingResult{msg: msg}
	}
}

// handleExit records the child's exit, fails every still-pending request, and
// wakes any Close call waiting on the process to be gone.
func (t *StdioTransport) handleExit(code int) {
	t.mu.Lock()
	t.state = stateClosed
	t.exitCode = code

	err := fmt.Errorf("MCP server process exited (code %d)", code)
	for id, resChan := range t.pending {
		delete(t.pending, id)
		resChan <- pendingResult{err: err}
	}
	t.mu.Unlock()

	t.logger.Debug("MCP server process exited", slog.Int("code", code))
	close(t.exited)
}

// removePending drops a pending entry, e.g. when the waiting caller gave up.
// Removal is idempotent with respect to completion by feed or handleExit.
func (t *StdioTransport) removePending(id int64) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
