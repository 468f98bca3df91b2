package worker

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pithecene-io/scriptrun/adapter"
	"github.com/pithecene-io/scriptrun/protocol"
	"github.com/pithecene-io/scriptrun/runtime"
	"github.com/pithecene-io/scriptrun/types"
)

var toolDescriptions = map[types.Language]string{
	types.LanguageJavaScript: "Run a JavaScript snippet. Define handler(input) or main(input); its return value (awaited if it is a promise) becomes the result. console output is captured as logs.",
	types.LanguageTypeScript: "Run a TypeScript snippet under deno. Export or define handler(input) or main(input); its return value becomes the result.",
	types.LanguagePython:     "Run a Python snippet under uv. Define handler(input) or main(input); third-party imports are installed automatically. print and logging output is captured as logs.",
}

// inputSchema is shared by every tool.
var inputSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"code": map[string]any{
			"type":        "string",
			"description": "Source code defining handler(input) or main(input).",
		},
		"params": map[string]any{
			"type":        "object",
			"description": "Invocation input passed to the entry point.",
		},
	},
	"required": []string{"code"},
}

// Tools lists the tools this worker offers, one per language.
func Tools() []protocol.Tool {
	tools := make([]protocol.Tool, 0, len(types.Languages))
	for _, lang := range types.Languages {
		tools = append(tools, protocol.Tool{
			Name:        lang.ToolName(),
			Description: toolDescriptions[lang],
			InputSchema: inputSchema,
		})
	}
	return tools
}

// toolOutput converts an execution record into the tool output payload.
func toolOutput(res types.ExecutionResult) protocol.ToolOutput {
	logs := res.Logs
	if logs == nil {
		logs = []string{}
	}
	return protocol.ToolOutput{
		Success: res.OK(),
		Result:  res.Result,
		Logs:    logs,
		Error:   res.Error,
	}
}

// callToolResult wraps a tool output as text content.
func callToolResult(out protocol.ToolOutput) (*protocol.CallToolResult, error) {
	text, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool output: %w", err)
	}
	return &protocol.CallToolResult{
		Content: []protocol.Content{{Type: "text", Text: string(text)}},
		IsError: !out.Success,
	}, nil
}

func completedEvent(tool, worker string, res *runtime.RunResult) *adapter.ExecutionCompletedEvent {
	return &adapter.ExecutionCompletedEvent{
		EventType:   adapter.EventType,
		ExecutionID: res.ExecutionID,
		Tool:        tool,
		Language:    string(res.Language),
		Driver:      res.Driver,
		Outcome:     string(res.Outcome.Status),
		Result:      res.Result.Result,
		Error:       res.Result.Error,
		LogCount:    len(res.Result.Logs),
		Worker:      worker,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		DurationMs:  res.Duration.Milliseconds(),
		Deps:        res.Dependencies,
	}
}
