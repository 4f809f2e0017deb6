// Package mcp implements a client for the Model Context Protocol (MCP), a
// JSON-RPC based protocol for invoking tools, prompts, and resources exposed
// by a server. The client works identically whether the server runs inside
// the same process or as a subprocess reachable over standard input/output;
// the Transport interface abstracts over the two.
package mcp
