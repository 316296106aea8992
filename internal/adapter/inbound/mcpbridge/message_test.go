package mcpbridge

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

func encodeToolCall(t *testing.T, id float64, name string, args map[string]interface{}, sessionID string) []byte {
	t.Helper()
	params := map[string]interface{}{
		"name":      name,
		"arguments": args,
	}
	if sessionID != "" {
		params["_meta"] = map[string]interface{}{"sessionId": sessionID}
	}
	rawParams, err := json.Marshal(params)
	if err != nil {
		t.Fatal(err)
	}
	reqID, err := jsonrpc.MakeID(id)
	if err != nil {
		t.Fatal(err)
	}
	raw, err := EncodeMessage(&jsonrpc.Request{
		ID:     reqID,
		Method: "tools/call",
		Params: rawParams,
	})
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func decodeWrapped(t *testing.T, raw []byte, direction Direction) *Message {
	t.Helper()
	msg := &Message{Raw: raw, Direction: direction, Timestamp: time.Now()}
	decoded, err := DecodeMessage(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	msg.Decoded = decoded
	return msg
}

func TestMessageToolCallParsing(t *testing.T) {
	raw := encodeToolCall(t, 7, "read_file", map[string]interface{}{"path": "notes.txt"}, "sess-1")
	msg := decodeWrapped(t, raw, AgentToServer)

	if !msg.IsRequest() || msg.IsResponse() {
		t.Error("expected a request")
	}
	if !msg.IsToolCall() {
		t.Errorf("method = %q, expected tools/call", msg.Method())
	}
	if msg.ToolName() != "read_file" {
		t.Errorf("tool = %q", msg.ToolName())
	}
	args := msg.ToolArguments()
	if args["path"] != "notes.txt" {
		t.Errorf("arguments = %v", args)
	}
	if msg.SessionID() != "sess-1" {
		t.Errorf("session = %q", msg.SessionID())
	}
	if string(msg.RawID()) != "7" {
		t.Errorf("raw id = %s", msg.RawID())
	}
}

func TestMessageSessionIDFallback(t *testing.T) {
	raw := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"x","sessionId":"top-level"}}`)
	msg := decodeWrapped(t, raw, AgentToServer)
	if msg.SessionID() != "top-level" {
		t.Errorf("session = %q", msg.SessionID())
	}
}

func TestMessageNonToolRequest(t *testing.T) {
	raw := []byte(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
	msg := decodeWrapped(t, raw, AgentToServer)
	if msg.IsToolCall() {
		t.Error("initialize must not look like a tool call")
	}
	if msg.ToolName() != "" {
		t.Errorf("tool = %q", msg.ToolName())
	}
}

func TestRawIDFormats(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"numeric id", `{"jsonrpc":"2.0","id":42,"method":"ping"}`, "42"},
		{"string id", `{"jsonrpc":"2.0","id":"abc","method":"ping"}`, `"abc"`},
		{"missing id", `{"jsonrpc":"2.0","method":"ping"}`, ""},
		{"invalid json", `not json`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &Message{Raw: []byte(tt.raw)}
			if got := string(msg.RawID()); got != tt.want {
				t.Errorf("RawID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorResponseFormat(t *testing.T) {
	raw := errorResponse(json.RawMessage(`"req-9"`), -32000, "tool call blocked")
	var resp struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Error   struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.JSONRPC != "2.0" || string(resp.ID) != `"req-9"` {
		t.Errorf("envelope = %s", raw)
	}
	if resp.Error.Code != -32000 || resp.Error.Message != "tool call blocked" {
		t.Errorf("error = %+v", resp.Error)
	}

	// A missing ID must serialize as null, not be dropped.
	raw = errorResponse(nil, -32600, "bad request")
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		t.Fatal(err)
	}
	if string(envelope["id"]) != "null" {
		t.Errorf("id = %s", envelope["id"])
	}
}

func TestRewriteArguments(t *testing.T) {
	raw := encodeToolCall(t, 3, "write_file", map[string]interface{}{"path": "/etc/passwd"}, "")
	rewritten, err := rewriteArguments(raw, map[string]interface{}{"path": "/tmp/safe"})
	if err != nil {
		t.Fatal(err)
	}
	msg := decodeWrapped(t, rewritten, AgentToServer)
	if msg.ToolName() != "write_file" {
		t.Errorf("tool = %q", msg.ToolName())
	}
	if got := msg.ToolArguments()["path"]; got != "/tmp/safe" {
		t.Errorf("path = %v", got)
	}
	if string(msg.RawID()) != "3" {
		t.Errorf("raw id = %s", msg.RawID())
	}
}
