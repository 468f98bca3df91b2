// Package session drives a worker process through its JSON-RPC lifecycle.
//
// A Session owns the worker's three streams. Requests may be outstanding
// concurrently; responses are demultiplexed strictly by id, never by
// arrival order. Every wait is bounded by a context, a timeout, or the
// worker's exit, whichever comes first.
package session

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pithecene-io/scriptrun/ipc"
	"github.com/pithecene-io/scriptrun/log"
	"github.com/pithecene-io/scriptrun/protocol"
	"github.com/pithecene-io/scriptrun/types"
)

// Defaults for Config.
const (
	DefaultCallTimeout = 150 * time.Second
	DefaultInitTimeout = 30 * time.Second
	DefaultCloseGrace  = 5 * time.Second
)

// State is the session lifecycle state.
type State int32

const (
	StateStarting State = iota
	StateReady
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// EventKind classifies what the worker produced.
type EventKind int

const (
	// EventMessage is a valid JSON message from stdout.
	EventMessage EventKind = iota
	// EventRaw is a stdout line that is not a JSON message.
	EventRaw
	// EventDiagnostic is a stderr line.
	EventDiagnostic
	// EventExit is the worker's exit. It is always the last event.
	EventExit
)

// Event is delivered to the session Handler.
type Event struct {
	Kind EventKind
	// Message is set for EventMessage.
	Message *protocol.Message
	// ID is the normalized id of a response that answered a tracked request.
	ID string
	// Method is the originating request's method when the message answered
	// a tracked request.
	Method string
	// Text is set for EventRaw and EventDiagnostic.
	Text string
	// ExitCode is set for EventExit.
	ExitCode int
}

// Handler observes session events. Calls are serialized.
type Handler func(Event)

// Config configures a Session.
type Config struct {
	// Command and Args launch the worker.
	Command string
	Args    []string
	Env     []string
	Dir     string
	// Launcher overrides process creation (for testing). Defaults to ExecLauncher.
	Launcher Launcher
	// Handler receives every event. Optional.
	Handler Handler
	// CallTimeout bounds Call when the context has no earlier deadline.
	CallTimeout time.Duration
	// InitTimeout bounds Initialize.
	InitTimeout time.Duration
	// CloseGrace is how long Close waits after terminating before killing.
	CloseGrace time.Duration
	// MaxLineSize bounds one stdout line. Zero selects ipc.MaxLineSize.
	MaxLineSize int
	Logger      *log.Logger
}

// Session is a client of one worker process.
type Session struct {
	config  Config
	logger  *log.Logger
	state   atomic.Int32
	pending *pendingTable
	nextID  atomic.Int64

	proc   Process
	writer *ipc.LineWriter

	emitMu sync.Mutex

	exitOnce sync.Once
	exitCode int
	done     chan struct{}
}

// New creates a session in the Starting state.
func New(cfg Config) *Session {
	if cfg.Launcher == nil {
		cfg.Launcher = ExecLauncher
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = DefaultInitTimeout
	}
	if cfg.CloseGrace <= 0 {
		cfg.CloseGrace = DefaultCloseGrace
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &Session{
		config:  cfg,
		logger:  logger,
		pending: newPendingTable(),
		done:    make(chan struct{}),
	}
}

// State returns the current state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Done is closed once the worker has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// ExitCode returns the worker exit code once the session is closed.
func (s *Session) ExitCode() (int, bool) {
	select {
	case <-s.done:
		return s.exitCode, true
	default:
		return 0, false
	}
}

// Start launches the worker and begins observing its streams.
func (s *Session) Start(ctx context.Context) error {
	if s.proc != nil {
		return errors.New("session already started")
	}
	proc, err := s.config.Launcher(ctx, &s.config)
	if err != nil {
		return err
	}
	s.proc = proc
	s.writer = ipc.NewLineWriter(proc.Stdin())
	s.logger.Info("worker started", map[string]any{"command": s.config.Command})

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		s.readStdout(proc.Stdout())
	}()
	go func() {
		defer readers.Done()
		s.readStderr(proc.Stderr())
	}()
	drained := make(chan struct{})
	go func() {
		readers.Wait()
		closeReader(proc.Stdout())
		closeReader(proc.Stderr())
		close(drained)
	}()
	go func() {
		code, err := proc.Wait()
		if err != nil {
			s.logger.Warn("worker wait failed", map[string]any{"error": err.Error()})
		}
		// Output written just before exit is still delivered, but a
		// descendant holding the pipes open must not delay the exit.
		select {
		case <-drained:
		case <-time.After(exitDrainTimeout):
			s.logger.Warn("worker output still open after exit", nil)
			closeReader(proc.Stdout())
			closeReader(proc.Stderr())
		}
		s.OnWorkerExit(code)
	}()
	return nil
}

// exitDrainTimeout bounds how long exit handling waits for the output
// readers to reach EOF.
const exitDrainTimeout = 250 * time.Millisecond

func closeReader(r io.Reader) {
	if c, ok := r.(io.Closer); ok {
		_ = c.Close()
	}
}

func (s *Session) readStdout(r io.Reader) {
	reader := ipc.NewLineReader(r, s.config.MaxLineSize)
	for {
		frame, err := reader.Next()
		if err != nil {
			if ipc.IsFatalFrameError(err) {
				s.emit(Event{Kind: EventRaw, Text: err.Error()})
				continue
			}
			if !errors.Is(err, io.EOF) {
				s.logger.Warn("worker stdout read failed", map[string]any{"error": err.Error()})
			}
			return
		}
		s.OnWorkerOutput(frame.Raw)
	}
}

func (s *Session) readStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), ipc.MaxLineSize)
	for scanner.Scan() {
		s.emit(Event{Kind: EventDiagnostic, Text: scanner.Text()})
	}
	// Keep draining so the worker never blocks on a full pipe.
	_, _ = io.Copy(io.Discard, r)
}

// OnWorkerOutput handles one stdout line. Valid messages that answer a
// tracked request are delivered to its waiter; every line is surfaced to
// the handler.
func (s *Session) OnWorkerOutput(line []byte) {
	var msg protocol.Message
	if !json.Valid(line) || json.Unmarshal(line, &msg) != nil {
		s.emit(Event{Kind: EventRaw, Text: string(line)})
		return
	}

	ev := Event{Kind: EventMessage, Message: &msg}
	if msg.IsResponse() {
		if key, err := protocol.IDKey(msg.ID); err == nil {
			if method, ok := s.pending.resolve(key, &msg); ok {
				ev.ID, ev.Method = key, method
				if method == protocol.MethodInitialize && msg.Error == nil {
					s.markReady()
				}
			}
		}
	}
	s.emit(ev)
}

// OnWorkerExit closes the session, records code and releases every waiter.
func (s *Session) OnWorkerExit(code int) {
	s.exitOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		s.exitCode = code
		s.pending.failAll(&WorkerExitError{Code: code})
		s.logger.Info("worker exited", map[string]any{"exit_code": code})
		s.emit(Event{Kind: EventExit, ExitCode: code})
		close(s.done)
	})
}

func (s *Session) emit(ev Event) {
	if s.config.Handler == nil {
		return
	}
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	s.config.Handler(ev)
}

func (s *Session) markReady() {
	s.state.CompareAndSwap(int32(StateStarting), int32(StateReady))
}

// checkOpen reports whether anything may be written to the worker.
func (s *Session) checkOpen() error {
	if s.proc == nil {
		return ErrNotStarted
	}
	if st := s.State(); st == StateClosing || st == StateClosed {
		return ErrClosed
	}
	return nil
}

// checkSend reports whether a request for method may be written now.
func (s *Session) checkSend(method string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.State() == StateStarting && protocol.CanonicalMethod(method) != protocol.MethodInitialize {
		return ErrNotReady
	}
	return nil
}

// Initialize performs the handshake: initialize, wait for its response,
// then notifications/initialized.
func (s *Session) Initialize(ctx context.Context, clientName string) (*protocol.InitializeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.InitTimeout)
	defer cancel()

	raw, err := s.Call(ctx, protocol.MethodInitialize, protocol.InitializeParams{
		ClientInfo: protocol.ClientInfo{Name: clientName, Version: types.Version},
	})
	if err != nil {
		return nil, fmt.Errorf("initialize failed: %w", err)
	}
	var result protocol.InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("invalid initialize result: %w", err)
	}
	s.markReady()

	if err := s.Notify(protocol.MethodInitialized, nil); err != nil {
		return nil, err
	}
	s.logger.Info("session ready", map[string]any{
		"server":           result.ServerInfo.Name,
		"server_version":   result.ServerInfo.Version,
		"protocol_version": result.ProtocolVersion,
	})
	return &result, nil
}

// Call sends a request with the next id and waits for its response.
// A worker error response is returned as *RPCError.
func (s *Session) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if err := s.checkSend(method); err != nil {
		return nil, err
	}
	rawParams, err := encodeParams(params)
	if err != nil {
		return nil, err
	}

	// Skip ids an operator already has outstanding.
	var (
		id  json.RawMessage
		key string
		e   *entry
	)
	for {
		n := s.nextID.Add(1)
		id = protocol.NumericID(n)
		key, _ = protocol.IDKey(id)
		e, err = s.pending.register(key, method, true)
		if !errors.Is(err, ErrDuplicateID) {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	req := protocol.Request{JSONRPC: protocol.Version, ID: id, Method: method, Params: rawParams}
	if err := s.writer.WriteJSON(req); err != nil {
		s.pending.cancel(key)
		return nil, fmt.Errorf("failed to write request: %w", err)
	}

	timer := time.NewTimer(s.config.CallTimeout)
	defer timer.Stop()

	select {
	case r := <-e.ch:
		if r.err != nil {
			return nil, r.err
		}
		if r.msg.Error != nil {
			return nil, &RPCError{Method: method, Err: r.msg.Error}
		}
		return r.msg.Result, nil
	case <-ctx.Done():
		s.pending.cancel(key)
		return nil, ctx.Err()
	case <-timer.C:
		s.pending.cancel(key)
		return nil, fmt.Errorf("%s: no response after %s: %w", method, s.config.CallTimeout, context.DeadlineExceeded)
	}
}

// Notify sends a notification (no id, no response).
func (s *Session) Notify(method string, params any) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	rawParams, err := encodeParams(params)
	if err != nil {
		return err
	}
	if err := s.writer.WriteJSON(protocol.Request{JSONRPC: protocol.Version, Method: method, Params: rawParams}); err != nil {
		return fmt.Errorf("failed to write notification: %w", err)
	}
	return nil
}

// ListTools returns the worker's tools.
func (s *Session) ListTools(ctx context.Context) ([]protocol.Tool, error) {
	raw, err := s.Call(ctx, protocol.MethodListTools, nil)
	if err != nil {
		return nil, err
	}
	var result protocol.ListToolsResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("invalid listTools result: %w", err)
	}
	return result.Tools, nil
}

// CallTool runs one tool and decodes its output.
func (s *Session) CallTool(ctx context.Context, name string, args protocol.ToolArguments) (*protocol.CallToolResult, *protocol.ToolOutput, error) {
	raw, err := s.Call(ctx, protocol.MethodCallTool, protocol.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return nil, nil, err
	}
	var result protocol.CallToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, nil, fmt.Errorf("invalid callTool result: %w", err)
	}
	if len(result.Content) == 0 {
		return &result, nil, nil
	}
	var out protocol.ToolOutput
	if err := json.Unmarshal([]byte(result.Content[0].Text), &out); err != nil {
		return &result, nil, nil
	}
	return &result, &out, nil
}

// Submit validates raw and writes it to the worker without waiting. A
// request id is tracked until its response arrives; the response is
// surfaced through the Handler with the originating method.
func (s *Session) Submit(raw []byte) error {
	if !json.Valid(raw) {
		return fmt.Errorf("%w: not valid JSON", ErrMalformedRequest)
	}
	var msg protocol.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("%w: expected a JSON object", ErrMalformedRequest)
	}
	if err := s.checkSend(msg.Method); err != nil {
		return err
	}

	var key string
	if msg.Method != "" && len(msg.ID) > 0 {
		k, err := protocol.IDKey(msg.ID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedRequest, err)
		}
		if _, err := s.pending.register(k, protocol.CanonicalMethod(msg.Method), false); err != nil {
			return err
		}
		key = k
	}

	if err := s.writer.WriteRaw(raw); err != nil {
		if key != "" {
			s.pending.cancel(key)
		}
		return fmt.Errorf("failed to write request: %w", err)
	}
	return nil
}

// Close terminates the worker: stdin is closed, the worker is asked to
// exit, and it is killed if it has not exited after CloseGrace.
func (s *Session) Close(ctx context.Context) error {
	if s.proc == nil {
		s.state.Store(int32(StateClosed))
		return nil
	}
	if s.State() == StateClosed {
		return nil
	}
	s.state.Store(int32(StateClosing))
	s.logger.Info("closing session", nil)

	_ = s.proc.Stdin().Close()
	if err := s.proc.Terminate(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.logger.Warn("failed to terminate worker", map[string]any{"error": err.Error()})
	}

	grace := time.NewTimer(s.config.CloseGrace)
	defer grace.Stop()
	select {
	case <-s.done:
		return nil
	case <-grace.C:
		s.logger.Warn("worker did not exit in time, killing", nil)
		_ = s.proc.Kill()
	case <-ctx.Done():
		_ = s.proc.Kill()
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Outstanding returns the number of requests awaiting a response.
func (s *Session) Outstanding() int {
	return s.pending.outstanding()
}

func encodeParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode params: %w", err)
	}
	return data, nil
}
