package plugin

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/arkanvault/corevault/internal/vaulterr"
)

// State is the closed set of lifecycle states a plugin moves through.
type State string

const (
	StateUninstalled  State = "uninstalled"
	StateInstalled    State = "installed"
	StateInactive     State = "inactive"
	StateActive       State = "active"
	StateUninstalling State = "uninstalling"
)

// Record tracks one installed plugin's manifest and runtime state.
type Record struct {
	Manifest        Manifest
	State           State
	LastActivated   *time.Time
	ActivationCount int
}

// ActivationHooks lets the host wire in the expensive parts of
// activation/deactivation (sandbox construction, IPC bridge teardown)
// without this package depending on internal/ipc or a sandbox
// implementation directly. Any of them may be nil.
type ActivationHooks struct {
	OnActivate   func(pluginID string, m Manifest) error
	OnDeactivate func(pluginID string, m Manifest) error
	OnUninstall  func(pluginID string) error // settings GC, local storage clear
}

// Manager implements the install/activate/deactivate/uninstall state
// machine over a directory of installed plugins.
type Manager struct {
	pluginsDir string
	hooks      ActivationHooks

	mu      sync.RWMutex
	records map[string]*Record
}

// NewManager returns a Manager storing installed plugins under
// pluginsDir (created lazily on first Install).
func NewManager(pluginsDir string, hooks ActivationHooks) *Manager {
	return &Manager{
		pluginsDir: pluginsDir,
		hooks:      hooks,
		records:    make(map[string]*Record),
	}
}

// Install validates the manifest.json in sourceDir, copies the plugin's
// files into "<pluginsDir>/<name>@<version>/", and registers it in the
// Installed state.
func (m *Manager) Install(sourceDir string) (string, error) {
	manifestPath := filepath.Join(sourceDir, "manifest.json")
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", vaulterr.New(vaulterr.NotFound, "no manifest.json in %s", sourceDir)
		}
		return "", vaulterr.Wrap(vaulterr.IoError, err, "read manifest in %s", sourceDir)
	}

	manifest, err := ParseManifest(data)
	if err != nil {
		return "", err
	}
	if err := manifest.Validate(); err != nil {
		return "", err
	}

	pluginID := manifest.ID()
	installDir := filepath.Join(m.pluginsDir, pluginID)
	if err := copyDir(sourceDir, installDir); err != nil {
		return "", vaulterr.Wrap(vaulterr.IoError, err, "install plugin %s", pluginID)
	}

	m.mu.Lock()
	m.records[pluginID] = &Record{Manifest: *manifest, State: StateInstalled}
	m.mu.Unlock()
	return pluginID, nil
}

func copyDir(src, dst string) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, e := range entries {
		srcPath := filepath.Join(src, e.Name())
		dstPath := filepath.Join(dst, e.Name())
		if e.IsDir() {
			if err := copyDir(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}
		data, err := os.ReadFile(srcPath)
		if err != nil {
			return err
		}
		if err := os.WriteFile(dstPath, data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) getLocked(pluginID string) (*Record, error) {
	rec, ok := m.records[pluginID]
	if !ok {
		return nil, vaulterr.New(vaulterr.NotFound, "no such plugin: %s", pluginID)
	}
	return rec, nil
}

// Activate transitions pluginID from Installed/Inactive to Active,
// running ActivationHooks.OnActivate (typically sandbox + IPC bridge
// construction) and rolling back to Inactive if the hook fails.
func (m *Manager) Activate(pluginID string) error {
	m.mu.Lock()
	rec, err := m.getLocked(pluginID)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if rec.State == StateUninstalling || rec.State == StateUninstalled {
		m.mu.Unlock()
		return vaulterr.New(vaulterr.Conflict, "plugin %s is not installed", pluginID)
	}
	manifest := rec.Manifest
	m.mu.Unlock()

	if m.hooks.OnActivate != nil {
		if err := m.hooks.OnActivate(pluginID, manifest); err != nil {
			m.mu.Lock()
			rec.State = StateInactive
			m.mu.Unlock()
			return vaulterr.Wrap(vaulterr.IoError, err, "activate plugin %s", pluginID)
		}
	}

	now := time.Now().UTC()
	m.mu.Lock()
	rec.State = StateActive
	rec.LastActivated = &now
	rec.ActivationCount++
	m.mu.Unlock()
	return nil
}

// Deactivate transitions pluginID from Active to Inactive, running
// ActivationHooks.OnDeactivate (sandbox teardown, bridge drain).
func (m *Manager) Deactivate(pluginID string) error {
	m.mu.Lock()
	rec, err := m.getLocked(pluginID)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	manifest := rec.Manifest
	m.mu.Unlock()

	if m.hooks.OnDeactivate != nil {
		if err := m.hooks.OnDeactivate(pluginID, manifest); err != nil {
			return vaulterr.Wrap(vaulterr.IoError, err, "deactivate plugin %s", pluginID)
		}
	}

	m.mu.Lock()
	rec.State = StateInactive
	m.mu.Unlock()
	return nil
}

// Uninstall deactivates pluginID if active, runs
// ActivationHooks.OnUninstall (settings/local-storage cleanup), deletes
// its install directory, and removes it from the registry.
func (m *Manager) Uninstall(pluginID string) error {
	m.mu.Lock()
	rec, err := m.getLocked(pluginID)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	wasActive := rec.State == StateActive
	rec.State = StateUninstalling
	m.mu.Unlock()

	if wasActive {
		if err := m.Deactivate(pluginID); err != nil {
			return err
		}
	}

	if m.hooks.OnUninstall != nil {
		if err := m.hooks.OnUninstall(pluginID); err != nil {
			return vaulterr.Wrap(vaulterr.IoError, err, "uninstall cleanup for %s", pluginID)
		}
	}

	installDir := filepath.Join(m.pluginsDir, pluginID)
	if err := os.RemoveAll(installDir); err != nil {
		return vaulterr.Wrap(vaulterr.IoError, err, "remove plugin directory for %s", pluginID)
	}

	m.mu.Lock()
	delete(m.records, pluginID)
	m.mu.Unlock()
	return nil
}

// Get returns a copy of pluginID's current record.
func (m *Manager) Get(pluginID string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[pluginID]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// List returns every installed plugin's id and record.
func (m *Manager) List() map[string]Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Record, len(m.records))
	for id, rec := range m.records {
		out[id] = *rec
	}
	return out
}
