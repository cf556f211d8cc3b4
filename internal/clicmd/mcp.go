package clicmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arkanvault/corevault/internal/hostapi"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Register and call MCP tool servers",
}

var mcpServerCommand string
var mcpServerArgs []string

func init() {
	mcpRegisterCmd.Flags().StringVar(&mcpServerCommand, "command", "", "executable to launch the server")
	mcpRegisterCmd.Flags().StringSliceVar(&mcpServerArgs, "arg", nil, "argument to pass to the server (repeatable)")
	mcpCmd.AddCommand(mcpRegisterCmd, mcpListCmd, mcpToolsCmd, mcpInvokeCmd)
}

var mcpRegisterCmd = &cobra.Command{
	Use:   "register <server-id>",
	Short: "Register an MCP server over stdio",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(context.Background())
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Mcp.RegisterServer(context.Background(), cliPluginID, hostapi.ServerSpec{
			ID:      args[0],
			Command: mcpServerCommand,
			Args:    mcpServerArgs,
		})
	},
}

var mcpListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered MCP servers",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(context.Background())
		if err != nil {
			return err
		}
		defer a.Close()
		for _, id := range a.Mcp.ListServers() {
			fmt.Println(id)
		}
		return nil
	},
}

var mcpToolsCmd = &cobra.Command{
	Use:   "tools <server-id>",
	Short: "List a server's tools",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(context.Background())
		if err != nil {
			return err
		}
		defer a.Close()

		tools, err := a.Mcp.ListTools(context.Background(), cliPluginID, args[0])
		if err != nil {
			return err
		}
		for _, t := range tools {
			fmt.Printf("%s\t%s\n", t.Name, t.Description)
		}
		return nil
	},
}

var mcpInvokeCmd = &cobra.Command{
	Use:   "invoke <server-id> <tool> [json-args]",
	Short: "Invoke a tool on a registered server",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		argMap := map[string]any{}
		if len(args) == 3 {
			if err := json.Unmarshal([]byte(args[2]), &argMap); err != nil {
				return fmt.Errorf("parse tool arguments: %w", err)
			}
		}
		a, err := openApp(context.Background())
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.Mcp.InvokeTool(context.Background(), cliPluginID, args[0], args[1], argMap)
		if err != nil {
			return err
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return nil
	},
}
