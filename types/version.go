package types

// Version is the canonical project version shared by the CLI, the worker
// protocol handshake and the MCP server implementation record.
const Version = "0.3.0"

// ProtocolVersion is reported by the worker in its initialize response.
const ProtocolVersion = "2024-11-05"
