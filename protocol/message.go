// Package protocol defines the JSON-RPC 2.0 messages exchanged between a
// session and a worker over newline-delimited stdio.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Version is the jsonrpc field value.
const Version = "2.0"

// Methods understood by the worker.
const (
	MethodInitialize  = "initialize"
	MethodInitialized = "notifications/initialized"
	MethodListTools   = "listTools"
	MethodCallTool    = "callTool"
	MethodPing        = "ping"
	MethodStats       = "stats"
)

var methodAliases = map[string]string{
	"tools/list": MethodListTools,
	"tools/call": MethodCallTool,
}

// CanonicalMethod maps MCP-style method aliases onto the canonical names.
func CanonicalMethod(m string) string {
	if c, ok := methodAliases[m]; ok {
		return c
	}
	return m
}

// Error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeNotInitialized = -32002
)

// Request is a call or notification. Notifications have no ID.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request expects no response.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0
}

// Response answers exactly one Request by ID.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is the error member of a Response. It implements error so worker
// faults can be returned to callers unchanged.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Errorf builds an Error with a formatted message.
func Errorf(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Message is the union used when classifying an inbound line.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// IsResponse reports whether the message answers a request.
func (m *Message) IsResponse() bool {
	return m.Method == "" && len(m.ID) > 0 && (m.Result != nil || m.Error != nil)
}

// ErrInvalidID is returned for ids that are neither numbers nor strings.
var ErrInvalidID = errors.New("id must be a number or a string")

// NumericID encodes n as a raw id.
func NumericID(n int64) json.RawMessage {
	return json.RawMessage(strconv.FormatInt(n, 10))
}

// IDKey normalizes a raw id for correlation so that 1, 1.0 and " 1" style
// encodings of the same number compare equal, and strings keep their
// quotes so "1" and 1 stay distinct.
func IDKey(id json.RawMessage) (string, error) {
	raw := bytes.TrimSpace(id)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", ErrInvalidID
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", ErrInvalidID
		}
		return strconv.Quote(s), nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", ErrInvalidID
		}
		if i, err := n.Int64(); err == nil {
			return strconv.FormatInt(i, 10), nil
		}
		f, err := n.Float64()
		if err != nil {
			return "", ErrInvalidID
		}
		if f == float64(int64(f)) {
			return strconv.FormatInt(int64(f), 10), nil
		}
		return n.String(), nil
	default:
		return "", ErrInvalidID
	}
}

// NewResult builds a success response.
func NewResult(id json.RawMessage, result any) (*Response, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return &Response{JSONRPC: Version, ID: nullIfEmpty(id), Result: data}, nil
}

// NewError builds an error response.
func NewError(id json.RawMessage, e *Error) *Response {
	return &Response{JSONRPC: Version, ID: nullIfEmpty(id), Error: e}
}

func nullIfEmpty(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}

// --- Method payloads ---

// ClientInfo identifies the session in initialize.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// InitializeParams are the initialize request params.
type InitializeParams struct {
	ClientInfo ClientInfo `json:"client_info"`
}

// ServerInfo identifies the worker.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult is the initialize response payload.
type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	ServerInfo      ServerInfo     `json:"serverInfo"`
	Capabilities    map[string]any `json:"capabilities"`
}

// Tool describes one invocable tool.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ListToolsResult is the listTools response payload.
type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

// CallToolParams are the callTool request params.
type CallToolParams struct {
	Name      string        `json:"name"`
	Arguments ToolArguments `json:"arguments"`
}

// ToolArguments carry the snippet and its invocation input.
type ToolArguments struct {
	Code   string          `json:"code"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Content is one item of a tool result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallToolResult is the callTool response payload.
type CallToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError"`
}

// ToolOutput is the JSON carried in the text content of a tool result.
type ToolOutput struct {
	Success bool     `json:"success"`
	Result  *string  `json:"result"`
	Logs    []string `json:"logs"`
	Error   *string  `json:"error"`
}
