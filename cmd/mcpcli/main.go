// Command mcpcli drives an MCP server over stdio from the command line: it
// spawns the server described in a YAML config, performs the initialize
// handshake, runs one operation, and prints the result as JSON.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	mcp "github.com/driftware/go-mcp-client"
)

var version = "dev"

func main() {
	var configPath string

	root := &cobra.Command{
		Use:     "mcpcli",
		Short:   "mcpcli — command-line client for MCP servers over stdio",
		Version: version,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "mcp.yaml", "path to the server config file")

	root.AddCommand(
		newToolsCmd(&configPath),
		newCallCmd(&configPath),
		newPromptsCmd(&configPath),
		newPromptCmd(&configPath),
		newResourcesCmd(&configPath),
		newReadCmd(&configPath),
		newPingCmd(&configPath),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withClient connects to the configured server, runs fn, and shuts the
// session down afterwards.
func withClient(configPath string, fn func(ctx context.Context, client *mcp.Client) error) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	transport := mcp.NewStdioTransport(cfg.Server.Command, cfg.Server.Args,
		mcp.WithStdioEnv(cfg.Server.Env))
	client := mcp.NewClient(mcp.Info{
		Name:    cfg.Client.Name,
		Version: cfg.Client.Version,
	}, transport)

	ctx := context.Background()
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Shutdown(context.Background())

	return fn(ctx, client)
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to render result: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func newToolsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools exposed by the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(*configPath, func(ctx context.Context, client *mcp.Client) error {
				result, err := client.ListTools(ctx)
				if err != nil {
					return err
				}
				return printJSON(result)
			})
		},
	}
}

func newCallCmd(configPath *string) *cobra.Command {
	var argsJSON string

	cmd := &cobra.Command{
		Use:   "call <tool>",
		Short: "Call a tool with JSON arguments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var arguments map[string]any
			if argsJSON != "" {
				if err := json.Unmarshal([]byte(argsJSON), &arguments); err != nil {
					return fmt.Errorf("invalid --args: %w", err)
				}
			}
			return withClient(*configPath, func(ctx context.Context, client *mcp.Client) error {
				result, err := client.CallTool(ctx, args[0], arguments)
				if err != nil {
					return err
				}
				return printJSON(result)
			})
		},
	}
	cmd.Flags().StringVar(&argsJSON, "args", "", "tool arguments as a JSON object")
	return cmd
}

func newPromptsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "prompts",
		Short: "List the prompts exposed by the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(*configPath, func(ctx context.Context, client *mcp.Client) error {
				result, err := client.ListPrompts(ctx)
				if err != nil {
					return err
				}
				return printJSON(result)
			})
		},
	}
}

func newPromptCmd(configPath *string) *cobra.Command {
	var argsJSON string

	cmd := &cobra.Command{
		Use:   "prompt <name>",
		Short: "Retrieve a prompt with string arguments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var arguments map[string]string
			if argsJSON != "" {
				if err := json.Unmarshal([]byte(argsJSON), &arguments); err != nil {
					return fmt.Errorf("invalid --args: %w", err)
				}
			}
			return withClient(*configPath, func(ctx context.Context, client *mcp.Client) error {
				result, err := client.GetPrompt(ctx, args[0], arguments)
				if err != nil {
					return err
				}
				return printJSON(result)
			})
		},
	}
	cmd.Flags().StringVar(&argsJSON, "args", "", "prompt arguments as a JSON object of strings")
	return cmd
}

func newResourcesCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "resources",
		Short: "List the resources exposed by the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(*configPath, func(ctx context.Context, client *mcp.Client) error {
				result, err := client.ListResources(ctx)
				if err != nil {
					return err
				}
				return printJSON(result)
			})
		},
	}
}

func newReadCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "read <uri>",
		Short: "Read a resource by URI",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(*configPath, func(ctx context.Context, client *mcp.Client) error {
				result, err := client.ReadResource(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(result)
			})
		},
	}
}

func newPingCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the server is responsive",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(*configPath, func(ctx context.Context, client *mcp.Client) error {
				if err := client.Ping(ctx); err != nil {
					return err
				}
				fmt.Println("ok")
				return nil
			})
		},
	}
}
