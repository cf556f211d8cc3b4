// Package clicmd implements vaultd's cobra command tree: one subcommand
// group per spec.md command family (note, task, plugin, mcp, graph,
// vault), replacing the teacher's hand-rolled parseArgs/switch dispatch
// in main.go/commands.go with cobra's declarative tree, the same way
// weakphish-yapper and jra3-linear-fuse structure their CLIs.
package clicmd

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/arkanvault/corevault/internal/app"
	"github.com/arkanvault/corevault/internal/config"
	"github.com/arkanvault/corevault/internal/permission"
)

// cliPluginID is the capability identity the CLI process itself grants
// and checks against, distinct from any installed plugin's identifier.
const cliPluginID = "vaultd-cli"

var (
	vaultFlag  string
	configFlag string
	verbose    bool
)

// RootCmd is the top-level vaultd command.
var RootCmd = &cobra.Command{
	Use:   "vaultd",
	Short: "corevault host daemon and CLI",
	Long:  "vaultd runs the corevault plugin host and exposes its note, task, graph, and plugin operations from the command line.",
}

func init() {
	RootCmd.PersistentFlags().StringVar(&vaultFlag, "vault", "", "vault directory (default: current directory, or VAULTD_VAULT)")
	RootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "config file (default: ./corevault.yaml or $HOME/corevault.yaml)")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	RootCmd.AddCommand(noteCmd, taskCmd, graphCmd, pluginCmd, mcpCmd, vaultCmd, tuiCmd)
}

// Execute runs the root command.
func Execute() error {
	return RootCmd.Execute()
}

// openApp resolves the vault directory, loads configuration, constructs
// an App with every capability the CLI itself needs pre-granted to
// cliPluginID, and performs the initial scan. Callers must defer a.Close().
func openApp(ctx context.Context) (*app.App, error) {
	vaultDir := vaultFlag
	if vaultDir == "" {
		vaultDir = os.Getenv("VAULTD_VAULT")
	}
	if vaultDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		vaultDir = wd
	}

	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, err
	}
	cfg.VaultPath = vaultDir

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	a, err := app.New(cfg, app.Options{VaultRoot: vaultDir, Logger: logger})
	if err != nil {
		return nil, err
	}
	if err := grantCLICapabilities(a); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.Run(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// grantCLICapabilities gives the CLI's own identity blanket access to
// every capability kind the commands in this package exercise — the CLI
// is a trusted operator tool, not a sandboxed plugin, so it never goes
// through the interactive consent flow plugins do.
func grantCLICapabilities(a *app.App) error {
	kinds := []permission.Kind{
		permission.VaultRead, permission.VaultWrite, permission.VaultDelete,
		permission.WorkspaceRead, permission.WorkspaceWrite, permission.WorkspaceCreate,
		permission.SettingsRead, permission.SettingsWrite,
		permission.GraphRead, permission.GraphWrite, permission.GraphQuery,
		permission.McpInvoke, permission.ClipboardRead, permission.ClipboardWrite,
		permission.NotificationShow, permission.LocalStorage,
	}
	for _, k := range kinds {
		cap := permission.Capability{Kind: k, Paths: []string{"*"}, Keys: []string{"*"}, Tools: []string{"*"}}
		if err := a.Permissions.Grant(cliPluginID, cap, nil); err != nil {
			return err
		}
	}
	return nil
}
