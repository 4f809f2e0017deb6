package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Client is the MCP client facade. It composes a Transport, drives the
// initialize handshake, and forwards the protocol method families (tools,
// prompts, resources, ping) as thin request builders over the transport.
//
// A Client must be created using NewClient and requires Connect to be called
// before other methods are meaningful to the server. The client should be
// shut down using Shutdown when it is no longer needed.
//
// Example usage:
//
//	transport := NewStdioTransport("my-mcp-server", nil)
//	client := NewClient(Info{Name: "mycli", Version: "0.1.0"}, transport)
//	if err := client.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Shutdown(context.Background())
//
//	tools, err := client.ListTools(ctx)
type Client struct {
	info      Info
	transport Transport
	logger    *slog.Logger

	serverInfo         Info
	serverCapabilities ServerCapabilities
	initialized        bool
}

// ClientOption is a function that configures a client.
type ClientOption func(*Client)

// WithClientLogger sets the logger used by the client.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a new MCP client speaking over the given transport. The
// info parameter provides client identification sent during the handshake.
func NewClient(info Info, transport Transport, options ...ClientOption) *Client {
	c := &Client{
		info:      info,
		transport: transport,
		logger:    slog.Default(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Connect drives the two-step handshake: it sends the initialize request with
// a fixed protocol version and an empty capability set, records the server's
// identity and capabilities from the result, and then emits the initialized
// notification. The notification is transmitted before Connect returns, so no
// later request can overtake it on the wire.
func (c *Client) Connect(ctx context.Context) error {
	res, err := c.transport.SendRequest(ctx, MethodInitialize, InitializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    ClientCapabilities{},
		ClientInfo:      c.info,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}

	var result InitializeResult
	if err := json.Unmarshal(res, &result); err != nil {
		return fmt.Errorf("failed to unmarshal initialize result: %w", err)
	}

	c.serverInfo = result.ServerInfo
	c.serverCapabilities = result.Capabilities
	c.initialized = true

	c.logger.Debug("initialized MCP session",
		slog.String("serverName", result.ServerInfo.Name),
		slog.String("serverVersion", result.ServerInfo.Version),
		slog.String("protocolVersion", result.ProtocolVersion))

	if err := c.transport.SendNotification(ctx, MethodNotificationsInitialized, nil); err != nil {
		return fmt.Errorf("failed to send initialized notification: %w", err)
	}
	return nil
}

// Initialized reports whether the handshake has completed. Methods other
// than Connect and Shutdown are logically only valid once initialized, though
// this is not hard-enforced.
func (c *Client) Initialized() bool {
	return c.initialized
}

// ServerInfo returns the identity the server reported during the handshake.
func (c *Client) ServerInfo() Info {
	return c.serverInfo
}

// ServerCapabilities returns the capability set the server reported during
// the handshake.
func (c *Client) ServerCapabilities() ServerCapabilities {
	return c.serverCapabilities
}

// ListTools retrieves the list of tools exposed by the server.
func (c *Client) ListTools(ctx context.Context) (ListToolsResult, error) {
	res, err := c.transport.SendRequest(ctx, MethodToolsList, nil)
	if err != nil {
		return ListToolsResult{}, err
	}

	var result ListToolsResult
	if err := json.Unmarshal(res, &result); err != nil {
		return ListToolsResult{}, fmt.Errorf("failed to unmarshal tools list: %w", err)
	}
	return result, nil
}

// CallTool executes a tool by name with the given arguments and returns its
// result. Tool-level failures arrive as a result with IsError set; transport
// and protocol failures arrive as an error.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (CallToolResult, error) {
	res, err := c.transport.SendRequest(ctx, MethodToolsCall, CallToolParams{
		Name:      name,
		Arguments: arguments,
	})
	if err != nil {
		return CallToolResult{}, err
	}

	var result CallToolResult
	if err := json.Unmarshal(res, &result); err != nil {
		return CallToolResult{}, fmt.Errorf("failed to unmarshal tool result: %w", err)
	}
	return result, nil
}

// ListPrompts retrieves the list of prompts exposed by the server.
func (c *Client) ListPrompts(ctx context.Context) (ListPromptsResult, error) {
	res, err := c.transport.SendRequest(ctx, MethodPromptsList, nil)
	if err != nil {
		return ListPromptsResult{}, err
	}

	var result ListPromptsResult
	if err := json.Unmarshal(res, &result); err != nil {
		return ListPromptsResult{}, fmt.Errorf("failed to unmarshal prompts list: %w", err)
	}
	return result, nil
}

// GetPrompt retrieves a specific prompt by name with the given arguments.
func (c *Client) GetPrompt(ctx context.Context, name string, arguments map[string]string) (GetPromptResult, error) {
	res, err := c.transport.SendRequest(ctx, MethodPromptsGet, GetPromptParams{
		Name:      name,
		Arguments: arguments,
	})
	if err != nil {
		return GetPromptResult{}, err
	}

	var result GetPromptResult
	if err := json.Unmarshal(res, &result); err != nil {
		return GetPromptResult{}, fmt.Errorf("failed to unmarshal prompt result: %w", err)
	}
	return result, nil
}

// ListResources retrieves the list of resources exposed by the server.
func (c *Client) ListResources(ctx context.Context) (ListResourcesResult, error) {
	res, err := c.transport.SendRequest(ctx, MethodResourcesList, nil)
	if err != nil {
		return ListResourcesResult{}, err
	}

	var result ListResourcesResult
	if err := json.Unmarshal(res, &result); err != nil {
		return ListResourcesResult{}, fmt.Errorf("failed to unmarshal resources list: %w", err)
	}
	return result, nil
}

// ReadResource retrieves the contents of a specific resource by URI.
func (c *Client) ReadResource(ctx context.Context, uri string) (ReadResourceResult, error) {
	res, err := c.transport.SendRequest(ctx, MethodResourcesRead, ReadResourceParams{
		URI: uri,
	})
	if err != nil {
		return ReadResourceResult{}, err
	}

	var result ReadResourceResult
	if err := json.Unmarshal(res, &result); err != nil {
		return ReadResourceResult{}, fmt.Errorf("failed to unmarshal resource contents: %w", err)
	}
	return result, nil
}

// Ping checks that the server is responsive.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.transport.SendRequest(ctx, MethodPing, nil)
	return err
}

// Shutdown closes the underlying transport. The protocol defines no shutdown
// request, so nothing is sent on the wire; for a stdio transport this signals
// the child process and waits for it to exit.
func (c *Client) Shutdown(ctx context.Context) error {
	c.initialized = false
	return c.transport.Close(ctx)
}
