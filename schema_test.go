package mcp_test

import (
	"encoding/json"
	"strings"
	"testing"

	mcp "github.com/driftware/go-mcp-client"
)

func TestJSONRPCErrorMessage(t *testing.T) {
	err := mcp.JSONRPCError{Code: -32601, Message: "Method not found"}
	if err.Error() != "MCP error -32601: Method not found" {
		t.Errorf("unexpected error string %q", err.Error())
	}
}

func TestJSONRPCMessageMarshalling(t *testing.T) {
	id := int64(7)
	req := mcp.JSONRPCMessage{
		JSONRPC: mcp.JSONRPCVersion,
		ID:      &id,
		Method:  "tools/call",
		Params:  json.RawMessage(`{"name":"echo"}`),
	}
	bs, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !strings.Contains(string(bs), `"id":7`) {
		t.Errorf("request id not encoded as integer: %s", bs)
	}

	notif := mcp.JSONRPCMessage{
		JSONRPC: mcp.JSONRPCVersion,
		Method:  "notifications/initialized",
	}
	bs, err = json.Marshal(notif)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if strings.Contains(string(bs), `"id"`) {
		t.Errorf("notification must not carry an id: %s", bs)
	}
}

func TestJSONRPCMessageUnmarshalResponse(t *testing.T) {
	var msg mcp.JSONRPCMessage
	line := `{"jsonrpc":"2.0","id":3,"error":{"code":-32602,"message":"Invalid params"}}`
	if err := json.Unmarshal([]byte(line), &msg); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if msg.ID == nil || *msg.ID != 3 {
		t.Errorf("id not decoded: %+v", msg.ID)
	}
	if msg.Error == nil || msg.Error.Code != -32602 {
		t.Errorf("error not decoded: %+v", msg.Error)
	}
}
