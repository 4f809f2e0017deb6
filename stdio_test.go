package mcp_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	mcp "github.com/driftware/go-mcp-client"
)

func TestStdioTransportEchoServer(t *testing.T) {
	// A degenerate MCP server that answers every line with a fixed response.
	tr := mcp.NewStdioTransport("sh", []string{
		"-c",
		`while read line; do echo '{"jsonrpc":"2.0","id":1,"result":{"ok":true}}'; done`,
	})
	defer tr.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := tr.SendRequest(ctx, "ping", nil)
	if err != nil {
		t.Fatalf("SendRequest failed: %v", err)
	}

	var payload struct {
		OK bool `json:"ok"`
	}
	if err := json.Unmarshal(res, &payload); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}
	if !payload.OK {
		t.Errorf("expected {\"ok\":true}, got %s", res)
	}
}

func TestStdioTransportProcessExitFailsPending(t *testing.T) {
	// The server consumes one request and dies with a distinctive exit code.
	tr := mcp.NewStdioTransport("sh", []string{"-c", "read line; exit 3"})
	defer tr.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := tr.SendRequest(ctx, "tools/list", nil)
	if err == nil {
		t.Fatal("expected request to fail when the process exits")
	}
	if !strings.Contains(err.Error(), "exited") || !strings.Contains(err.Error(), "3") {
		t.Errorf("error does not report process exit with code: %v", err)
	}

	// Transport is now closed; further sends fail fast.
	if _, err := tr.SendRequest(ctx, "ping", nil); err == nil {
		t.Fatal("expected send after process exit to fail")
	} else if !strings.Contains(err.Error(), "MCP server process has exited") {
		t.Errorf("unexpected fail-fast error: %v", err)
	}
}

func TestStdioTransportCloseTerminatesProcess(t *testing.T) {
	tr := mcp.NewStdioTransport("cat", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Starts the child.
	if err := tr.SendNotification(ctx, "notifications/initialized", nil); err != nil {
		t.Fatalf("SendNotification failed: %v", err)
	}

	if err := tr.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	// Second close completes immediately without re-signaling.
	if err := tr.Close(ctx); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	if _, err := tr.SendRequest(ctx, "ping", nil); err == nil {
		t.Fatal("expected send after close to fail")
	}
}

func TestStdioTransportCloseFailsInFlightRequests(t *testing.T) {
	// A server that consumes requests and never answers; the only way out for
	// a pending request is transport close.
	tr := mcp.NewStdioTransport("sh", []string{"-c", "while read line; do :; done"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errs := make(chan error, 1)
	go func() {
		_, err := tr.SendRequest(ctx, "ping", nil)
		errs <- err
	}()

	// Give the request time to be written and registered before closing.
	time.Sleep(100 * time.Millisecond)

	if err := tr.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	select {
	case err := <-errs:
		if err == nil {
			t.Fatal("expected pending request to fail on close")
		}
		if !strings.Contains(err.Error(), "exited") {
			t.Errorf("pending request failed with unexpected error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("pending request left unresolved after close")
	}
}
