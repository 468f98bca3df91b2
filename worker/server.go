// Package worker implements the long-running tool server that executes
// snippets on behalf of a session.
//
// The worker speaks newline-delimited JSON-RPC 2.0 over stdio. Requests are
// handled concurrently and each response is written as soon as it is ready,
// so responses may arrive in a different order than their requests.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pithecene-io/scriptrun/adapter"
	"github.com/pithecene-io/scriptrun/ipc"
	"github.com/pithecene-io/scriptrun/log"
	"github.com/pithecene-io/scriptrun/metrics"
	"github.com/pithecene-io/scriptrun/protocol"
	"github.com/pithecene-io/scriptrun/runtime"
	"github.com/pithecene-io/scriptrun/types"
)

// DefaultMaxConcurrent bounds in-flight requests.
const DefaultMaxConcurrent = 8

// DefaultPublishTimeout bounds one adapter publish.
const DefaultPublishTimeout = 30 * time.Second

// Name is reported in serverInfo.
const Name = "scriptrun"

// Config configures a Server.
type Config struct {
	// Runner executes snippets (required).
	Runner runtime.Runner
	// ExecutionTimeout bounds each tool call. Zero selects the runtime default.
	ExecutionTimeout time.Duration
	// MaxConcurrent bounds in-flight requests (default 8).
	MaxConcurrent int
	// MaxLineSize bounds one inbound line. Zero selects ipc.MaxLineSize.
	MaxLineSize int
	// Adapter receives completed executions. Optional.
	Adapter adapter.Adapter
	// PublishTimeout bounds one adapter publish (default 30s).
	PublishTimeout time.Duration
	// WorkerID labels published events. If empty, a UUID is generated.
	WorkerID string
	Logger    *log.Logger
	Collector *metrics.Collector
}

// Server is a JSON-RPC tool server.
type Server struct {
	config      Config
	logger      *log.Logger
	initialized atomic.Bool
	publishes   errgroup.Group
}

// NewServer creates a server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Runner == nil {
		return nil, errors.New("worker requires a runner")
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultPublishTimeout
	}
	if cfg.WorkerID == "" {
		cfg.WorkerID = uuid.NewString()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &Server{
		config: cfg,
		logger: logger.With(map[string]any{"worker_id": cfg.WorkerID}),
	}, nil
}

// Serve reads requests from r and writes responses to w until r reaches
// EOF or ctx is done. Cancellation ends reading even while r stays open,
// and r is closed if it is an io.Closer. In-flight requests finish before
// Serve returns.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	reader := ipc.NewLineReader(r, s.config.MaxLineSize)
	writer := ipc.NewLineWriter(w)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.MaxConcurrent)

	s.logger.Info("worker started", map[string]any{"max_concurrent": s.config.MaxConcurrent})

	// Lines are read on their own goroutine so cancellation is observed
	// while the peer keeps the stream open.
	lines := make(chan lineResult)
	go readLines(gctx, reader, lines)

	var readErr error
	for {
		var line lineResult
		var open bool
		select {
		case <-gctx.Done():
		case line, open = <-lines:
		}
		if !open {
			break
		}
		frame, err := line.frame, line.err
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ipc.IsFatalFrameError(err) {
				// The oversized line was discarded; answer it and keep reading.
				s.config.Collector.IncParseError()
				s.logger.Warn("discarded oversized request", map[string]any{"error": err.Error()})
				s.write(writer, protocol.NewError(nil, protocol.Errorf(protocol.CodeInvalidRequest, "%v", err)))
				continue
			}
			readErr = fmt.Errorf("failed to read request: %w", err)
			break
		}
		s.config.Collector.IncRequestReceived()

		var req protocol.Request
		if err := ipc.Decode(frame, &req); err != nil {
			s.config.Collector.IncParseError()
			s.logger.Warn("malformed request", map[string]any{"error": err.Error()})
			s.write(writer, protocol.NewError(nil, protocol.Errorf(protocol.CodeParseError, "parse error: %v", err)))
			continue
		}

		// initialize runs inline so requests after it observe the new state.
		if protocol.CanonicalMethod(req.Method) == protocol.MethodInitialize {
			if resp := s.handle(gctx, &req); resp != nil {
				s.write(writer, resp)
			}
			continue
		}

		g.Go(func() error {
			if resp := s.handle(gctx, &req); resp != nil {
				s.write(writer, resp)
			}
			return nil
		})
	}

	if c, ok := r.(io.Closer); ok && ctx.Err() != nil {
		// Unblocks the reader goroutine.
		_ = c.Close()
	}

	_ = g.Wait()
	_ = s.publishes.Wait()
	s.logger.Info("worker stopped", nil)
	if readErr != nil {
		return readErr
	}
	return nil
}

type lineResult struct {
	frame ipc.Frame
	err   error
}

// readLines feeds out until the stream fails or ctx is done. Oversized
// lines are reported and reading continues.
func readLines(ctx context.Context, reader *ipc.LineReader, out chan<- lineResult) {
	defer close(out)
	for {
		frame, err := reader.Next()
		select {
		case out <- lineResult{frame: frame, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil && !ipc.IsFatalFrameError(err) {
			return
		}
	}
}

func (s *Server) write(w *ipc.LineWriter, resp *protocol.Response) {
	if err := w.WriteJSON(resp); err != nil {
		s.logger.Error("failed to write response", map[string]any{"error": err.Error()})
	}
}

// handle dispatches one request. It returns nil for notifications.
func (s *Server) handle(ctx context.Context, req *protocol.Request) *protocol.Response {
	if req.JSONRPC != protocol.Version || req.Method == "" {
		if req.IsNotification() {
			return nil
		}
		return protocol.NewError(req.ID, protocol.Errorf(protocol.CodeInvalidRequest, "invalid request"))
	}

	method := protocol.CanonicalMethod(req.Method)
	if method == protocol.MethodInitialized {
		s.logger.Debug("session confirmed initialization", nil)
		return nil
	}
	if req.IsNotification() {
		s.logger.Debug("ignoring notification", map[string]any{"method": req.Method})
		return nil
	}

	if method != protocol.MethodInitialize && method != protocol.MethodPing && !s.initialized.Load() {
		return protocol.NewError(req.ID, protocol.Errorf(protocol.CodeNotInitialized, "worker not initialized"))
	}

	result, rpcErr := s.dispatch(ctx, method, req.Params)
	if rpcErr != nil {
		return protocol.NewError(req.ID, rpcErr)
	}
	resp, err := protocol.NewResult(req.ID, result)
	if err != nil {
		return protocol.NewError(req.ID, protocol.Errorf(protocol.CodeInternalError, "%v", err))
	}
	return resp
}

func (s *Server) dispatch(ctx context.Context, method string, params json.RawMessage) (any, *protocol.Error) {
	switch method {
	case protocol.MethodInitialize:
		return s.initialize(params)
	case protocol.MethodPing:
		return map[string]any{}, nil
	case protocol.MethodListTools:
		return protocol.ListToolsResult{Tools: Tools()}, nil
	case protocol.MethodCallTool:
		return s.callTool(ctx, params)
	case protocol.MethodStats:
		return s.config.Collector.Snapshot(), nil
	default:
		return nil, protocol.Errorf(protocol.CodeMethodNotFound, "method not found: %s", method)
	}
}

func (s *Server) initialize(params json.RawMessage) (any, *protocol.Error) {
	var p protocol.InitializeParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, protocol.Errorf(protocol.CodeInvalidParams, "invalid initialize params: %v", err)
		}
	}
	s.initialized.Store(true)
	s.logger.Info("session initialized", map[string]any{"client": p.ClientInfo.Name})
	return protocol.InitializeResult{
		ProtocolVersion: types.ProtocolVersion,
		ServerInfo:      protocol.ServerInfo{Name: Name, Version: types.Version},
		Capabilities:    map[string]any{"tools": map[string]any{}},
	}, nil
}

func (s *Server) callTool(ctx context.Context, params json.RawMessage) (any, *protocol.Error) {
	var p protocol.CallToolParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, protocol.Errorf(protocol.CodeInvalidParams, "invalid callTool params: %v", err)
	}
	out, err := s.Execute(ctx, p.Name, p.Arguments)
	if err != nil {
		var rpcErr *protocol.Error
		if errors.As(err, &rpcErr) {
			return nil, rpcErr
		}
		return nil, protocol.Errorf(protocol.CodeInternalError, "%v", err)
	}
	result, err := callToolResult(out)
	if err != nil {
		return nil, protocol.Errorf(protocol.CodeInternalError, "%v", err)
	}
	return result, nil
}

// Execute runs one tool call. Snippet faults are reported in the output;
// the error is reserved for unknown tools, bad arguments and runner failures.
func (s *Server) Execute(ctx context.Context, tool string, args protocol.ToolArguments) (protocol.ToolOutput, error) {
	lang, ok := types.LanguageForTool(tool)
	if !ok {
		return protocol.ToolOutput{}, protocol.Errorf(protocol.CodeInvalidParams, "unknown tool: %s", tool)
	}
	if strings.TrimSpace(args.Code) == "" {
		return protocol.ToolOutput{}, protocol.Errorf(protocol.CodeInvalidParams, "code is required")
	}

	input := args.Params
	if len(input) == 0 || string(input) == "null" {
		input = nil
	}

	res, err := s.config.Runner.Run(ctx, runtime.Request{
		ExecutionID: uuid.NewString(),
		Snippet:     types.Snippet{Language: lang, Body: args.Code},
		Input:       input,
		Timeout:     s.config.ExecutionTimeout,
	})
	if err != nil {
		s.logger.Error("execution failed to run", map[string]any{"tool": tool, "error": err.Error()})
		return protocol.ToolOutput{}, fmt.Errorf("failed to run %s: %w", tool, err)
	}

	s.publish(tool, res)
	return toolOutput(res.Result), nil
}

// publish hands the completed execution to the adapter in the background.
func (s *Server) publish(tool string, res *runtime.RunResult) {
	if s.config.Adapter == nil {
		return
	}
	event := completedEvent(tool, s.config.WorkerID, res)
	s.publishes.Go(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.PublishTimeout)
		defer cancel()
		if err := s.config.Adapter.Publish(ctx, event); err != nil {
			s.config.Collector.IncAdapterPublishFailure()
			s.logger.Warn("adapter publish failed", map[string]any{
				"execution_id": event.ExecutionID,
				"error":        err.Error(),
			})
			return nil
		}
		s.config.Collector.IncAdapterPublishSuccess()
		return nil
	})
}

// Initialized reports whether a session completed initialize.
func (s *Server) Initialized() bool {
	return s.initialized.Load()
}
