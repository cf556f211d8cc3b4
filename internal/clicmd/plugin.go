package clicmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var pluginCmd = &cobra.Command{
	Use:   "plugin",
	Short: "Install, activate, and manage plugins",
}

func init() {
	pluginCmd.AddCommand(pluginInstallCmd, pluginActivateCmd, pluginDeactivateCmd, pluginUninstallCmd, pluginListCmd)
}

var pluginInstallCmd = &cobra.Command{
	Use:   "install <source-dir>",
	Short: "Install a plugin from a directory containing manifest.json",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(context.Background())
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := a.Plugins.Install(args[0])
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	},
}

var pluginActivateCmd = &cobra.Command{
	Use:   "activate <plugin-id>",
	Short: "Activate an installed plugin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(context.Background())
		if err != nil {
			return err
		}
		defer a.Close()
		return a.Plugins.Activate(args[0])
	},
}

var pluginDeactivateCmd = &cobra.Command{
	Use:   "deactivate <plugin-id>",
	Short: "Deactivate a running plugin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(context.Background())
		if err != nil {
			return err
		}
		defer a.Close()
		return a.Plugins.Deactivate(args[0])
	},
}

var pluginUninstallCmd = &cobra.Command{
	Use:   "uninstall <plugin-id>",
	Short: "Uninstall a plugin and clear its settings and local storage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(context.Background())
		if err != nil {
			return err
		}
		defer a.Close()
		return a.Plugins.Uninstall(args[0])
	},
}

var pluginListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed plugins and their state",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(context.Background())
		if err != nil {
			return err
		}
		defer a.Close()

		records := a.Plugins.List()
		fields := []string{"id", "name", "version", "state"}
		rows := make([]map[string]string, 0, len(records))
		for id, r := range records {
			rows = append(rows, map[string]string{
				"id":      id,
				"name":    r.Manifest.Name,
				"version": r.Manifest.Version,
				"state":   string(r.State),
			})
		}
		renderTable(rows, fields, "")
		return nil
	},
}
