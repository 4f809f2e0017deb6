// Package memory implements a sample in-process MCP server that keeps a
// small knowledge base of entities in SQLite. It exists primarily to exercise
// the in-process transport: the Server type satisfies mcp.Handler and speaks
// full JSON-RPC, including the initialize handshake.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gobwas/glob"
	"github.com/sergi/go-diff/diffmatchpatch"

	mcp "github.com/driftware/go-mcp-client"
)

// Server is a knowledge-base MCP server living in the caller's process.
type Server struct {
	store  *Store
	logger *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used by the server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a memory server backed by the given store.
func NewServer(store *Store, options ...Option) *Server {
	s := &Server{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Handle implements mcp.Handler. Notifications (id-less messages) are
// acknowledged with a nil return, which the transport discards.
func (s *Server) Handle(ctx context.Context, req mcp.JSONRPCMessage) any {
	if req.ID == nil {
		return nil
	}

	switch req.Method {
	case mcp.MethodInitialize:
		return s.result(req, mcp.InitializeResult{
			ProtocolVersion: mcp.ProtocolVersion,
			Capabilities: mcp.ServerCapabilities{
				Tools:     &mcp.ToolsCapability{},
				Resources: &mcp.ResourcesCapability{},
				Prompts:   &mcp.PromptsCapability{},
			},
			ServerInfo: mcp.Info{Name: "memory", Version: "1.0.0"},
		})
	case mcp.MethodPing:
		return s.result(req, struct{}{})
	case mcp.MethodToolsList:
		return s.result(req, mcp.ListToolsResult{Tools: toolList})
	case mcp.MethodToolsCall:
		return s.handleToolsCall(ctx, req)
	case mcp.MethodResourcesList:
		return s.handleResourcesList(req)
	case mcp.MethodResourcesRead:
		return s.handleResourcesRead(req)
	case mcp.MethodPromptsList:
		return s.result(req, mcp.ListPromptsResult{Prompts: promptList})
	case mcp.MethodPromptsGet:
		return s.handlePromptsGet(req)
	default:
		return s.rpcError(req, mcp.ErrCodeMethodNotFound, "Method not found")
	}
}

var toolList = []mcp.Tool{
	{
		Name:        "create_entity",
		Description: "Create a new entity in the knowledge base",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"name": {"type": "string"},
				"entityType": {"type": "string"},
				"observations": {"type": "array", "items": {"type": "string"}}
			},
			"required": ["name", "entityType"]
		}`),
	},
	{
		Name:        "add_observations",
		Description: "Append observations to an entity; returns a patch describing the change",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"name": {"type": "string"},
				"observations": {"type": "array", "items": {"type": "string"}}
			},
			"required": ["name", "observations"]
		}`),
	},
	{
		Name:        "search_entities",
		Description: "Find entities whose name matches a glob pattern",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"pattern": {"type": "string"}
			},
			"required": ["pattern"]
		}`),
	},
	{
		Name:        "delete_entity",
		Description: "Remove an entity from the knowledge base",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"name": {"type": "string"}
			},
			"required": ["name"]
		}`),
	},
}

var promptList = []mcp.Prompt{
	{
		Name:        "summarize_entity",
		Description: "Build a prompt asking for a summary of one entity",
		Arguments: []mcp.PromptArgument{
			{Name: "name", Description: "Entity name", Required: true},
		},
	},
}

func (s *Server) handleToolsCall(_ context.Context, req mcp.JSONRPCMessage) any {
	var params mcp.CallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.rpcError(req, mcp.ErrCodeInvalidParams, "Invalid params")
	}

	var (
		text string
		err  error
	)
	switch params.Name {
	case "create_entity":
		text, err = s.createEntity(params.Arguments)
	case "add_observations":
		text, err = s.addObservations(params.Arguments)
	case "search_entities":
		text, err = s.searchEntities(params.Arguments)
	case "delete_entity":
		text, err = s.deleteEntity(params.Arguments)
	default:
		err = fmt.Errorf("unknown tool: %s", params.Name)
	}

	if err != nil {
		s.logger.Debug("tool call failed", slog.String("tool", params.Name), slog.String("err", err.Error()))
		return s.result(req, mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{{Type: mcp.ContentTypeText, Text: err.Error()}},
		})
	}
	return s.result(req, mcp.CallToolResult{
		Content: []mcp.Content{{Type: mcp.ContentTypeText, Text: text}},
	})
}

func (s *Server) createEntity(args map[string]any) (string, error) {
	name, _ := args["name"].(string)
	entityType, _ := args["entityType"].(string)
	if name == "" || entityType == "" {
		return "", fmt.Errorf("name and entityType are required")
	}

	e := Entity{Name: name, EntityType: entityType, Observations: stringSlice(args["observations"])}
	if err := s.store.CreateEntity(e); err != nil {
		return "", err
	}
	return fmt.Sprintf("created entity %s", name), nil
}

func (s *Server) addObservations(args map[string]any) (string, error) {
	name, _ := args["name"].(string)
	added := stringSlice(args["observations"])
	if name == "" || len(added) == 0 {
		return "", fmt.Errorf("name and observations are required")
	}

	e, ok, err := s.store.GetEntity(name)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("entity %s does not exist", name)
	}

	updated := append(append([]string{}, e.Observations...), added...)
	if err := s.store.UpdateObservations(name, updated); err != nil {
		return "", err
	}

	return observationsPatch(name, e.Observations, updated), nil
}

func (s *Server) searchEntities(args map[string]any) (string, error) {
	pattern, _ := args["pattern"].(string)
	if pattern == "" {
		return "", fmt.Errorf("pattern is required")
	}

	g, err := glob.Compile(pattern)
	if err != nil {
		return "", fmt.Errorf("invalid pattern %s: %w", pattern, err)
	}

	entities, err := s.store.ListEntities()
	if err != nil {
		return "", err
	}

	matches := []Entity{}
	for _, e := range entities {
		if g.Match(e.Name) {
			matches = append(matches, e)
		}
	}

	matchesBs, err := json.Marshal(matches)
	if err != nil {
		return "", fmt.Errorf("failed to marshal matches: %w", err)
	}
	return string(matchesBs), nil
}

func (s *Server) deleteEntity(args map[string]any) (string, error) {
	name, _ := args["name"].(string)
	if name == "" {
		return "", fmt.Errorf("name is required")
	}
	if err := s.store.DeleteEntity(name); err != nil {
		return "", err
	}
	return fmt.Sprintf("deleted entity %s", name), nil
}

func (s *Server) handleResourcesList(req mcp.JSONRPCMessage) any {
	entities, err := s.store.ListEntities()
	if err != nil {
		return s.rpcError(req, mcp.ErrCodeInternalError, err.Error())
	}

	resources := make([]mcp.Resource, 0, len(entities))
	for _, e := range entities {
		resources = append(resources, mcp.Resource{
			URI:      entityURI(e.Name),
			Name:     e.Name,
			MimeType: "application/json",
		})
	}
	return s.result(req, mcp.ListResourcesResult{Resources: resources})
}

func (s *Server) handleResourcesRead(req mcp.JSONRPCMessage) any {
	var params mcp.ReadResourceParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.rpcError(req, mcp.ErrCodeInvalidParams, "Invalid params")
	}

	name, ok := entityNameFromURI(params.URI)
	if !ok {
		return s.rpcError(req, mcp.ErrCodeInvalidParams, fmt.Sprintf("unsupported uri: %s", params.URI))
	}

	e, ok, err := s.store.GetEntity(name)
	if err != nil {
		return s.rpcError(req, mcp.ErrCodeInternalError, err.Error())
	}
	if !ok {
		return s.rpcError(req, mcp.ErrCodeInvalidParams, fmt.Sprintf("entity %s does not exist", name))
	}

	eBs, err := json.Marshal(e)
	if err != nil {
		return s.rpcError(req, mcp.ErrCodeInternalError, err.Error())
	}
	return s.result(req, mcp.ReadResourceResult{
		Contents: []mcp.ResourceContents{{
			URI:      params.URI,
			MimeType: "application/json",
			Text:     string(eBs),
		}},
	})
}

func (s *Server) handlePromptsGet(req mcp.JSONRPCMessage) any {
	var params mcp.GetPromptParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.rpcError(req, mcp.ErrCodeInvalidParams, "Invalid params")
	}
	if params.Name != "summarize_entity" {
		return s.rpcError(req, mcp.ErrCodeInvalidParams, fmt.Sprintf("unknown prompt: %s", params.Name))
	}

	name := params.Arguments["name"]
	e, ok, err := s.store.GetEntity(name)
	if err != nil {
		return s.rpcError(req, mcp.ErrCodeInternalError, err.Error())
	}
	if !ok {
		return s.rpcError(req, mcp.ErrCodeInvalidParams, fmt.Sprintf("entity %s does not exist", name))
	}

	return s.result(req, mcp.GetPromptResult{
		Description: fmt.Sprintf("Summary request for %s", e.Name),
		Messages: []mcp.PromptMessage{{
			Role: mcp.RoleUser,
			Content: mcp.Content{
				Type: mcp.ContentTypeText,
				Text: fmt.Sprintf("Summarize what is known about %s (%s):\n%s",
					e.Name, e.EntityType, strings.Join(e.Observations, "\n")),
			},
		}},
	})
}

func (s *Server) result(req mcp.JSONRPCMessage, v any) any {
	resBs, err := json.Marshal(v)
	if err != nil {
		return s.rpcError(req, mcp.ErrCodeInternalError, "Internal error")
	}
	return mcp.JSONRPCMessage{
		JSONRPC: mcp.JSONRPCVersion,
		ID:      req.ID,
		Result:  resBs,
	}
}

func (s *Server) rpcError(req mcp.JSONRPCMessage, code int, message string) any {
	return mcp.JSONRPCMessage{
		JSONRPC: mcp.JSONRPCVersion,
		ID:      req.ID,
		Error:   &mcp.JSONRPCError{Code: code, Message: message},
	}
}

// observationsPatch renders the observation change as a patch so the caller
// can see exactly what was added.
func observationsPatch(name string, before, after []string) string {
	dmp := diffmatchpatch.New()

	original := strings.Join(before, "\n")
	updated := strings.Join(after, "\n")

	diffs := dmp.DiffMain(original, updated, true)
	patches := dmp.PatchMake(original, diffs)

	var b strings.Builder
	b.WriteString(fmt.Sprintf("--- %s (original)\n", name))
	b.WriteString(fmt.Sprintf("+++ %s (updated)\n", name))
	b.WriteString(dmp.PatchToText(patches))
	return b.String()
}

func entityURI(name string) string {
	return "memory://entity/" + name
}

func entityNameFromURI(uri string) (string, bool) {
	name, ok := strings.CutPrefix(uri, "memory://entity/")
	if !ok || name == "" {
		return "", false
	}
	return name, true
}

func stringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
