// Package app wires every other internal package into one running
// daemon: it owns construction order (identity before watcher, settings
// before plugin activation), the plugin lifecycle's ActivationHooks, and
// graceful start/stop.
//
// Grounded on the teacher's main.go (the one place arkan-vlt assembles
// its dependencies before dispatching a command), generalized from a
// per-invocation CLI wiring into a long-lived daemon's construction and
// shutdown sequence, since this repo runs as a background process rather
// than a one-shot CLI tool.
package app

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/arkanvault/corevault/internal/config"
	"github.com/arkanvault/corevault/internal/frontmatter"
	"github.com/arkanvault/corevault/internal/graph"
	"github.com/arkanvault/corevault/internal/hostapi"
	"github.com/arkanvault/corevault/internal/identity"
	"github.com/arkanvault/corevault/internal/ipc"
	"github.com/arkanvault/corevault/internal/localstore"
	"github.com/arkanvault/corevault/internal/noteid"
	"github.com/arkanvault/corevault/internal/permission"
	"github.com/arkanvault/corevault/internal/plugin"
	"github.com/arkanvault/corevault/internal/taskindex"
	"github.com/arkanvault/corevault/internal/vaultwatch"
)

const rootSecretFileName = "settings.key"
const rootSecretSize = 32 // HKDF root input, 256 bits

// SandboxLauncher constructs the external, out-of-process environment a
// plugin's code actually runs in and returns the transport its IPC
// bridge will speak over. The sandbox itself is an external collaborator
// per the Data Model glossary ("the external environment that runs
// plugin code ... communicates with the core only via the IPC bridge")
// and is never implemented by this core; callers supply a launcher (or
// leave it nil in tests/headless mode, in which case plugins activate
// with no live bridge — every host API call a deactivated plugin makes
// still goes through the same permission checks, it simply has no
// transport to receive push notifications over).
type SandboxLauncher interface {
	Launch(pluginID string, manifest plugin.Manifest) (ipc.Transport, error)
	Teardown(pluginID string) error
}

// App holds every long-lived component for one open vault.
type App struct {
	Config config.Config
	Logger zerolog.Logger

	Identity    *identity.Store
	Tasks       *taskindex.Index
	Graph       *graph.Index
	Permissions *permission.Manager
	LocalStore  *localstore.Store

	Vault     *hostapi.VaultAPI
	Workspace *hostapi.WorkspaceAPI
	Settings  *hostapi.SettingsAPI
	Mcp       *hostapi.McpAPI
	Csv       *hostapi.CsvAPI
	GraphAPI  *hostapi.GraphAPI
	Storage   *hostapi.StorageAPI

	Plugins *plugin.Manager
	Watcher *vaultwatch.Watcher

	sandbox SandboxLauncher

	bridgesMu sync.Mutex
	bridges   map[string]*ipc.Bridge
}

// Options bundles the construction-time dependencies New doesn't derive
// on its own: where plugin/permission/settings/local-storage state lives
// relative to the vault root, whether this host is premium-tier (gating
// csvengine.FreeRowLimit), and the sandbox launcher for plugin
// activation.
type Options struct {
	VaultRoot string
	StateDir  string // holds permission/plugin/settings/local-storage state; defaults to <VaultRoot>/.vault
	Premium   func() bool
	Sandbox   SandboxLauncher
	Logger    zerolog.Logger // zero value is a valid, silently-discarding logger
}

// New constructs every component, applies cfg's overrides onto their
// compiled-in defaults, and wires plugin.ActivationHooks to the sandbox
// launcher, but does not start the watcher — call Run for that.
func New(cfg config.Config, opts Options) (*App, error) {
	if opts.VaultRoot == "" {
		return nil, fmt.Errorf("app: VaultRoot is required")
	}
	stateDir := opts.StateDir
	if stateDir == "" {
		stateDir = filepath.Join(opts.VaultRoot, ".vault")
	}
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	logger := opts.Logger

	premium := opts.Premium
	if premium == nil {
		premium = func() bool { return false }
	}

	rootSecret, err := loadOrCreateRootSecret(filepath.Join(stateDir, rootSecretFileName))
	if err != nil {
		return nil, fmt.Errorf("load settings root secret: %w", err)
	}

	idGen := noteid.NewGenerator()
	ids := identity.New(opts.VaultRoot, idGen)
	tasks := taskindex.New()
	idx := graph.New(opts.VaultRoot)
	perms := permission.NewManager(filepath.Join(stateDir, "permissions"))

	localStore, err := localstore.Open(filepath.Join(stateDir, "localstore.db"))
	if err != nil {
		return nil, fmt.Errorf("open local storage: %w", err)
	}

	vaultAPI := hostapi.NewVaultAPI(opts.VaultRoot, ids, perms)
	workspaceAPI := hostapi.NewWorkspaceAPI(perms)
	settingsAPI := hostapi.NewSettingsAPI(filepath.Join(stateDir, "settings"), rootSecret, perms)
	mcpAPI := hostapi.NewMcpAPI(perms)
	csvAPI := hostapi.NewCsvAPI(opts.VaultRoot, perms, premium)
	graphAPI := hostapi.NewGraphAPI(idx, perms)
	storageAPI := hostapi.NewStorageAPI(localStore, perms)

	settingsAPI.SetQuota(cfg.SettingsQuotaBytes)
	mcpAPI.SetRateLimit(cfg.McpRateLimit)

	a := &App{
		Config:      cfg,
		Logger:      logger,
		Identity:    ids,
		Tasks:       tasks,
		Graph:       idx,
		Permissions: perms,
		LocalStore:  localStore,
		Vault:       vaultAPI,
		Workspace:   workspaceAPI,
		Settings:    settingsAPI,
		Mcp:         mcpAPI,
		Csv:         csvAPI,
		GraphAPI:    graphAPI,
		Storage:     storageAPI,
		sandbox:     opts.Sandbox,
		bridges:     make(map[string]*ipc.Bridge),
	}

	a.Plugins = plugin.NewManager(filepath.Join(stateDir, "plugins"), plugin.ActivationHooks{
		OnActivate:   a.onActivate,
		OnDeactivate: a.onDeactivate,
		OnUninstall:  a.onUninstall,
	})

	watcher, err := vaultwatch.New(opts.VaultRoot, ids, tasks, vaultAPI, logger)
	if err != nil {
		return nil, fmt.Errorf("construct watcher: %w", err)
	}
	a.Watcher = watcher

	return a, nil
}

// Run performs the initial vault scan (identity assignment, wikilink
// graph) and starts the watcher loop in the background. It does not
// parse existing notes into the task index; tasks reach the index only
// through watcher events for files that change after Run starts. Callers
// should call Close when shutting down.
func (a *App) Run(ctx context.Context) error {
	if _, err := a.Identity.ScanVault(ctx, a.Config.IdentityScanFanout); err != nil {
		return fmt.Errorf("initial identity scan: %w", err)
	}
	if err := a.Graph.Rebuild(); err != nil {
		return fmt.Errorf("initial graph build: %w", err)
	}
	go a.Watcher.Run()
	return nil
}

// Close tears down the watcher and local storage handle. Permission and
// settings state is file-backed and needs no explicit flush.
func (a *App) Close() error {
	if err := a.Watcher.Close(); err != nil {
		return err
	}
	return a.LocalStore.Close()
}

func (a *App) onActivate(pluginID string, manifest plugin.Manifest) error {
	if a.sandbox == nil {
		return nil
	}
	transport, err := a.sandbox.Launch(pluginID, manifest)
	if err != nil {
		return fmt.Errorf("launch sandbox for %s: %w", pluginID, err)
	}
	bridge := ipc.NewBridge(ipc.DefaultConfig(), transport, nil, nil)

	a.bridgesMu.Lock()
	a.bridges[pluginID] = bridge
	a.bridgesMu.Unlock()
	return nil
}

func (a *App) onDeactivate(pluginID string, manifest plugin.Manifest) error {
	a.bridgesMu.Lock()
	delete(a.bridges, pluginID)
	a.bridgesMu.Unlock()

	if a.sandbox == nil {
		return nil
	}
	return a.sandbox.Teardown(pluginID)
}

func (a *App) onUninstall(pluginID string) error {
	if err := a.Settings.MarkUninstalled(pluginID); err != nil {
		return err
	}
	return a.LocalStore.DeleteAll(pluginID)
}

// Bridge returns pluginID's live IPC bridge, if it is currently active
// and a sandbox launcher is configured.
func (a *App) Bridge(pluginID string) (*ipc.Bridge, bool) {
	a.bridgesMu.Lock()
	defer a.bridgesMu.Unlock()
	b, ok := a.bridges[pluginID]
	return b, ok
}

func loadOrCreateRootSecret(path string) ([]byte, error) {
	if data, err := os.ReadFile(path); err == nil {
		return data, nil
	}
	secret := make([]byte, rootSecretSize)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate root secret: %w", err)
	}
	if err := frontmatter.WriteFileAtomic(path, secret); err != nil {
		return nil, fmt.Errorf("persist root secret: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		return nil, fmt.Errorf("restrict root secret permissions: %w", err)
	}
	return secret, nil
}
