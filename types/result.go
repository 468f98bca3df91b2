package types

import (
	"encoding/json"
	"errors"
	"strings"
)

// ExecutionResult is the single structured record a snippet run emits.
// Exactly one of Result and Error describes the terminal outcome;
// Logs is populated either way.
type ExecutionResult struct {
	Logs   []string `json:"logs"`
	Result *string  `json:"result"`
	Error  *string  `json:"error"`
}

// Succeeded builds a successful result. A nil result means the entry
// point produced no value.
func Succeeded(logs []string, result *string) ExecutionResult {
	return ExecutionResult{Logs: normalizeLogs(logs), Result: result}
}

// Failed builds a failed result carrying the fault description.
func Failed(logs []string, message string) ExecutionResult {
	if message == "" {
		message = "unknown error"
	}
	return ExecutionResult{Logs: normalizeLogs(logs), Error: &message}
}

// OK reports whether the run completed without a fault.
func (r ExecutionResult) OK() bool {
	return r.Error == nil
}

// MarshalJSON keeps logs an array on the wire even when empty.
func (r ExecutionResult) MarshalJSON() ([]byte, error) {
	type alias ExecutionResult
	a := alias(r)
	a.Logs = normalizeLogs(a.Logs)
	return json.Marshal(a)
}

// ErrNoResultLine is returned when output contains no result record.
var ErrNoResultLine = errors.New("no result line in output")

// ParseResultLine scans output from the end and decodes the last line that
// is a JSON object carrying a "logs" field.
func ParseResultLine(output string) (ExecutionResult, error) {
	lines := strings.Split(output, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal([]byte(line), &fields); err != nil {
			continue
		}
		if _, ok := fields["logs"]; !ok {
			continue
		}
		var res ExecutionResult
		if err := json.Unmarshal([]byte(line), &res); err != nil {
			continue
		}
		res.Logs = normalizeLogs(res.Logs)
		return res, nil
	}
	return ExecutionResult{}, ErrNoResultLine
}

func normalizeLogs(logs []string) []string {
	if logs == nil {
		return []string{}
	}
	return logs
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
