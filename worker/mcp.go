package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/pithecene-io/scriptrun/protocol"
	"github.com/pithecene-io/scriptrun/types"
)

// mcpInput is the typed argument shape of every MCP tool.
type mcpInput struct {
	Code   string         `json:"code" jsonschema:"source code defining handler(input) or main(input)"`
	Params map[string]any `json:"params,omitempty" jsonschema:"invocation input passed to the entry point"`
}

// NewMCPServer exposes the server's tools through the MCP SDK. Tool calls
// share Execute with the JSON-RPC surface, so results and published events
// are identical.
func (s *Server) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: Name, Version: types.Version}, nil)
	for _, lang := range types.Languages {
		name := lang.ToolName()
		mcp.AddTool(server, &mcp.Tool{
			Name:        name,
			Description: toolDescriptions[lang],
		}, func(ctx context.Context, _ *mcp.CallToolRequest, in mcpInput) (*mcp.CallToolResult, any, error) {
			s.config.Collector.IncRequestReceived()
			args := protocol.ToolArguments{Code: in.Code}
			if in.Params != nil {
				raw, err := json.Marshal(in.Params)
				if err != nil {
					return nil, nil, fmt.Errorf("invalid params: %w", err)
				}
				args.Params = raw
			}
			out, err := s.Execute(ctx, name, args)
			if err != nil {
				return nil, nil, err
			}
			text, err := json.Marshal(out)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to encode tool output: %w", err)
			}
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: string(text)}},
				IsError: !out.Success,
			}, nil, nil
		})
	}
	return server
}

// ServeMCP runs the MCP server over stdio until the client disconnects or
// ctx is done.
func (s *Server) ServeMCP(ctx context.Context) error {
	s.initialized.Store(true)
	s.logger.Info("mcp worker started", nil)
	err := s.NewMCPServer().Run(ctx, &mcp.StdioTransport{})
	_ = s.publishes.Wait()
	s.logger.Info("mcp worker stopped", nil)
	return err
}
