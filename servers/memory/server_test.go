package memory_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	mcp "github.com/driftware/go-mcp-client"
	"github.com/driftware/go-mcp-client/servers/memory"
)

// newConnectedClient wires a memory server to a real client through the
// in-process transport, handshake included.
func newConnectedClient(t *testing.T) *mcp.Client {
	t.Helper()

	store, err := memory.NewStore(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	client := mcp.NewClient(
		mcp.Info{Name: "memory-test", Version: "0.0.1"},
		mcp.NewInProcessTransport(memory.NewServer(store)),
	)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	return client
}

func callTool(t *testing.T, client *mcp.Client, name string, args map[string]any) mcp.CallToolResult {
	t.Helper()
	res, err := client.CallTool(context.Background(), name, args)
	if err != nil {
		t.Fatalf("CallTool(%s) failed: %v", name, err)
	}
	return res
}

func TestServerHandshake(t *testing.T) {
	client := newConnectedClient(t)

	if client.ServerInfo().Name != "memory" {
		t.Errorf("server info = %+v", client.ServerInfo())
	}
	if client.ServerCapabilities().Tools == nil || client.ServerCapabilities().Resources == nil {
		t.Errorf("capabilities = %+v", client.ServerCapabilities())
	}
	if err := client.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestServerToolRoundTrip(t *testing.T) {
	client := newConnectedClient(t)
	ctx := context.Background()

	tools, err := client.ListTools(ctx)
	if err != nil {
		t.Fatalf("ListTools failed: %v", err)
	}
	if len(tools.Tools) != 4 {
		t.Fatalf("expected 4 tools, got %d", len(tools.Tools))
	}

	res := callTool(t, client, "create_entity", map[string]any{
		"name":         "ada",
		"entityType":   "person",
		"observations": []string{"born 1815"},
	})
	if res.IsError {
		t.Fatalf("create_entity returned error: %+v", res.Content)
	}

	// Appending observations yields a patch mentioning the new text.
	res = callTool(t, client, "add_observations", map[string]any{
		"name":         "ada",
		"observations": []string{"worked with Babbage"},
	})
	if res.IsError {
		t.Fatalf("add_observations returned error: %+v", res.Content)
	}
	if !strings.Contains(res.Content[0].Text, "ada") || !strings.Contains(res.Content[0].Text, "+++") {
		t.Errorf("expected a patch in the tool result, got %q", res.Content[0].Text)
	}

	res = callTool(t, client, "search_entities", map[string]any{"pattern": "a*"})
	if res.IsError {
		t.Fatalf("search_entities returned error: %+v", res.Content)
	}
	var matches []memory.Entity
	if err := json.Unmarshal([]byte(res.Content[0].Text), &matches); err != nil {
		t.Fatalf("search result is not JSON: %v", err)
	}
	if len(matches) != 1 || matches[0].Name != "ada" || len(matches[0].Observations) != 2 {
		t.Errorf("unexpected matches %+v", matches)
	}

	res = callTool(t, client, "search_entities", map[string]any{"pattern": "z*"})
	if res.IsError || res.Content[0].Text != "[]" {
		t.Errorf("expected empty match list, got %+v", res)
	}

	// Unknown tools surface as a tool error, not a protocol error.
	res = callTool(t, client, "no_such_tool", nil)
	if !res.IsError {
		t.Error("expected IsError for unknown tool")
	}

	res = callTool(t, client, "delete_entity", map[string]any{"name": "ada"})
	if res.IsError {
		t.Fatalf("delete_entity returned error: %+v", res.Content)
	}
}

func TestServerResourcesAndPrompts(t *testing.T) {
	client := newConnectedClient(t)
	ctx := context.Background()

	callTool(t, client, "create_entity", map[string]any{
		"name":         "turing",
		"entityType":   "person",
		"observations": []string{"asked whether machines can think"},
	})

	resources, err := client.ListResources(ctx)
	if err != nil {
		t.Fatalf("ListResources failed: %v", err)
	}
	if len(resources.Resources) != 1 || resources.Resources[0].URI != "memory://entity/turing" {
		t.Fatalf("unexpected resources %+v", resources.Resources)
	}

	contents, err := client.ReadResource(ctx, "memory://entity/turing")
	if err != nil {
		t.Fatalf("ReadResource failed: %v", err)
	}
	var e memory.Entity
	if err := json.Unmarshal([]byte(contents.Contents[0].Text), &e); err != nil {
		t.Fatalf("resource contents are not an entity: %v", err)
	}
	if e.Name != "turing" {
		t.Errorf("unexpected entity %+v", e)
	}

	if _, err := client.ReadResource(ctx, "memory://entity/hopper"); err == nil {
		t.Error("expected read of missing entity to fail")
	}
	if _, err := client.ReadResource(ctx, "file:///etc/passwd"); err == nil {
		t.Error("expected read of foreign uri to fail")
	}

	prompts, err := client.ListPrompts(ctx)
	if err != nil || len(prompts.Prompts) != 1 {
		t.Fatalf("ListPrompts = %+v, %v", prompts, err)
	}

	prompt, err := client.GetPrompt(ctx, "summarize_entity", map[string]string{"name": "turing"})
	if err != nil {
		t.Fatalf("GetPrompt failed: %v", err)
	}
	if len(prompt.Messages) != 1 || !strings.Contains(prompt.Messages[0].Content.Text, "turing") {
		t.Errorf("unexpected prompt %+v", prompt)
	}

	// Unknown methods relay as JSON-RPC errors through the transport.
	if _, err := client.GetPrompt(ctx, "no_such_prompt", nil); err == nil {
		t.Error("expected unknown prompt to fail")
	}
}
