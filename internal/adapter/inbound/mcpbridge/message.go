// Package mcpbridge provides a filtering stdio bridge that sits between an
// agent and its MCP tool server. Tool calls crossing the bridge are run
// through the interception pipeline before they reach the tool server, and
// tool output is run through the output guardrails on the way back.
package mcpbridge

import (
	"encoding/json"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// Direction indicates the flow direction of a message through the bridge.
type Direction int

const (
	// AgentToServer indicates a message flowing from the agent to the tool server.
	AgentToServer Direction = iota
	// ServerToAgent indicates a message flowing from the tool server to the agent.
	ServerToAgent
)

// String returns the string representation of the Direction.
func (d Direction) String() string {
	switch d {
	case AgentToServer:
		return "agent->server"
	case ServerToAgent:
		return "server->agent"
	default:
		return "unknown"
	}
}

// Message wraps a decoded JSON-RPC message with bridge metadata. It stores
// both the raw bytes (for efficient passthrough) and the decoded message
// (for interception).
type Message struct {
	// Raw contains the original bytes of the message.
	Raw []byte

	// Direction indicates which way the message is flowing.
	Direction Direction

	// Decoded contains the parsed JSON-RPC message. May be nil if parsing
	// failed but passthrough is still desired. The concrete type is either
	// *jsonrpc.Request or *jsonrpc.Response.
	Decoded jsonrpc.Message

	// Timestamp records when the message was received by the bridge.
	Timestamp time.Time

	// ParsedParams contains the parsed params from a JSON-RPC request.
	// Set by ParseParams for reuse. Nil if not a request or parsing failed.
	ParsedParams map[string]interface{}
}

// IsRequest returns true if the message is a JSON-RPC request.
func (m *Message) IsRequest() bool {
	if m.Decoded == nil {
		return false
	}
	_, ok := m.Decoded.(*jsonrpc.Request)
	return ok
}

// IsResponse returns true if the message is a JSON-RPC response.
func (m *Message) IsResponse() bool {
	if m.Decoded == nil {
		return false
	}
	_, ok := m.Decoded.(*jsonrpc.Response)
	return ok
}

// Method returns the method name if this is a request, empty string otherwise.
func (m *Message) Method() string {
	req := m.Request()
	if req == nil {
		return ""
	}
	return req.Method
}

// IsToolCall returns true if this is a tools/call request. These are the
// messages that go through the interception pipeline.
func (m *Message) IsToolCall() bool {
	return m.Method() == "tools/call"
}

// Request returns the underlying Request, or nil if this is not a request.
func (m *Message) Request() *jsonrpc.Request {
	if m.Decoded == nil {
		return nil
	}
	req, _ := m.Decoded.(*jsonrpc.Request)
	return req
}

// Response returns the underlying Response, or nil if this is not a response.
func (m *Message) Response() *jsonrpc.Response {
	if m.Decoded == nil {
		return nil
	}
	resp, _ := m.Decoded.(*jsonrpc.Response)
	return resp
}

// ParseParams parses the request params and stores them in ParsedParams.
// Safe to call multiple times. Returns nil if this is not a request or
// parsing fails.
func (m *Message) ParseParams() map[string]interface{} {
	if m.ParsedParams != nil {
		return m.ParsedParams
	}
	req := m.Request()
	if req == nil || req.Params == nil {
		return nil
	}
	var params map[string]interface{}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil
	}
	m.ParsedParams = params
	return params
}

// ToolName returns the tool name from a tools/call request, empty string
// otherwise.
func (m *Message) ToolName() string {
	params := m.ParseParams()
	if params == nil {
		return ""
	}
	name, _ := params["name"].(string)
	return name
}

// ToolArguments returns the arguments object from a tools/call request.
// Returns nil when absent.
func (m *Message) ToolArguments() map[string]interface{} {
	params := m.ParseParams()
	if params == nil {
		return nil
	}
	args, _ := params["arguments"].(map[string]interface{})
	return args
}

// SessionID extracts the session identifier from JSON-RPC params. MCP has
// no transport headers, so the session rides in the params. Checked in
// priority order: params._meta.sessionId, then params.sessionId. Returns
// empty string if not found.
func (m *Message) SessionID() string {
	params := m.ParseParams()
	if params == nil {
		return ""
	}
	if meta, ok := params["_meta"].(map[string]interface{}); ok {
		if id, ok := meta["sessionId"].(string); ok && id != "" {
			return id
		}
	}
	id, _ := params["sessionId"].(string)
	return id
}

// RawID extracts the request ID from the raw message bytes as
// json.RawMessage. The SDK's jsonrpc.ID type does not marshal correctly
// through interface{}, so the ID is pulled straight from the raw JSON to
// preserve its original format (number, string, or null). Returns nil if
// no ID is present.
func (m *Message) RawID() json.RawMessage {
	if m.Raw == nil {
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(m.Raw, &raw); err != nil {
		return nil
	}
	return raw["id"]
}
