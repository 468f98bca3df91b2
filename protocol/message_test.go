package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestIDKey(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{`1`, "1", false},
		{` 1 `, "1", false},
		{`1.0`, "1", false},
		{`-3`, "-3", false},
		{`2.5`, "2.5", false},
		{`"1"`, `"1"`, false},
		{`"abc"`, `"abc"`, false},
		{`null`, "", true},
		{``, "", true},
		{`{}`, "", true},
		{`true`, "", true},
	}
	for _, tt := range tests {
		got, err := IDKey(json.RawMessage(tt.raw))
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidID) {
				t.Errorf("IDKey(%q) error = %v, want ErrInvalidID", tt.raw, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("IDKey(%q) unexpected error: %v", tt.raw, err)
			continue
		}
		if got != tt.want {
			t.Errorf("IDKey(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestIDKey_NumberAndStringDiffer(t *testing.T) {
	a, _ := IDKey(json.RawMessage(`1`))
	b, _ := IDKey(json.RawMessage(`"1"`))
	if a == b {
		t.Error("numeric and string ids must not collide")
	}
}

func TestCanonicalMethod(t *testing.T) {
	if CanonicalMethod("tools/list") != MethodListTools {
		t.Error("tools/list should alias listTools")
	}
	if CanonicalMethod("tools/call") != MethodCallTool {
		t.Error("tools/call should alias callTool")
	}
	if CanonicalMethod("ping") != MethodPing {
		t.Error("ping should be unchanged")
	}
}

func TestNewError_NullID(t *testing.T) {
	resp := NewError(nil, Errorf(CodeParseError, "bad line"))
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	want := `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"bad line"}}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestMessage_IsResponse(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{`{"jsonrpc":"2.0","id":1,"result":{}}`, true},
		{`{"jsonrpc":"2.0","id":1,"error":{"code":1,"message":"x"}}`, true},
		{`{"jsonrpc":"2.0","id":1,"method":"ping"}`, false},
		{`{"jsonrpc":"2.0","method":"notifications/message"}`, false},
	}
	for _, tt := range tests {
		var m Message
		if err := json.Unmarshal([]byte(tt.raw), &m); err != nil {
			t.Fatalf("Unmarshal(%s) failed: %v", tt.raw, err)
		}
		if got := m.IsResponse(); got != tt.want {
			t.Errorf("IsResponse(%s) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestError_ImplementsError(t *testing.T) {
	var err error = Errorf(CodeMethodNotFound, "method %q not found", "nope")
	var rpcErr *Error
	if !errors.As(err, &rpcErr) || rpcErr.Code != CodeMethodNotFound {
		t.Errorf("unexpected error %v", err)
	}
}
