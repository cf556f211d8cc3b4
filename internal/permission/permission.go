// Package permission implements the capability-based authorization
// model for plugins (spec §4.F): a closed Capability enum, scoped
// permission records with expiry, a consent flow, per-plugin persistence,
// and CSP derivation for plugin webviews.
//
// Grounded on original_source's plugin_runtime/permissions/mod.rs
// (PermissionManager, Capability, ConsentRequest/ConsentResponse,
// path_matches_patterns, generate_csp_for_plugin), translated from an
// async tokio::RwLock-guarded manager into a sync.RWMutex-guarded one —
// every Store method here does only in-memory map work and fast local
// file I/O, so there is no blocking operation worth threading a
// context.Context through.
package permission

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/arkanvault/corevault/internal/frontmatter"
	"github.com/arkanvault/corevault/internal/vaulterr"
)

// Kind is the closed set of capability kinds.
type Kind string

const (
	VaultRead        Kind = "vault_read"
	VaultWrite       Kind = "vault_write"
	VaultDelete      Kind = "vault_delete"
	WorkspaceRead    Kind = "workspace_read"
	WorkspaceWrite   Kind = "workspace_write"
	WorkspaceCreate  Kind = "workspace_create"
	SettingsRead     Kind = "settings_read"
	SettingsWrite    Kind = "settings_write"
	GraphRead        Kind = "graph_read"
	GraphWrite       Kind = "graph_write"
	GraphQuery       Kind = "graph_query"
	McpInvoke        Kind = "mcp_invoke"
	NetworkAccess    Kind = "network_access"
	ClipboardRead    Kind = "clipboard_read"
	ClipboardWrite   Kind = "clipboard_write"
	NotificationShow Kind = "notification_show"
	WebAssembly      Kind = "wasm"
	WebWorkers       Kind = "workers"
	LocalStorage     Kind = "local_storage"
)

// Capability is a tagged authorization. Paths/Domains/Keys/Tools hold
// pattern scopes for the kinds that need them; unscoped kinds leave them
// empty.
type Capability struct {
	Kind    Kind
	Paths   []string
	Keys    []string
	Domains []string
	Tools   []string
}

// Satisfies reports whether c (a granted capability) covers the
// requested capability req: same kind, and every pattern-scoped field of
// req is covered by a pattern in c.
func (c Capability) Satisfies(req Capability) bool {
	if c.Kind != req.Kind {
		return false
	}
	switch c.Kind {
	case VaultRead, VaultWrite, VaultDelete:
		return coversAllPaths(c.Paths, req.Paths)
	case SettingsRead, SettingsWrite:
		return coversAllPaths(c.Keys, req.Keys)
	case NetworkAccess:
		return coversAllDomains(c.Domains, req.Domains)
	case McpInvoke:
		return coversAllPaths(c.Tools, req.Tools)
	default:
		return true
	}
}

func coversAllPaths(granted, requested []string) bool {
	if len(requested) == 0 {
		return true
	}
	for _, r := range requested {
		if !matchesAnyPattern(granted, r, false) {
			return false
		}
	}
	return true
}

func coversAllDomains(granted, requested []string) bool {
	if len(requested) == 0 {
		return true
	}
	for _, r := range requested {
		if !matchesAnyPattern(granted, r, true) {
			return false
		}
	}
	return true
}

// matchesAnyPattern implements the spec's pattern rules: "*" matches
// everything; "prefix/*" matches exactly one further segment
// ("a/*" matches "a/b" but not "a/b/c"); equal strings match.
// caseInsensitive is true for host/domain patterns, false for vault paths.
func matchesAnyPattern(patterns []string, value string, caseInsensitive bool) bool {
	if caseInsensitive {
		value = strings.ToLower(value)
	}
	for _, p := range patterns {
		pat := p
		if caseInsensitive {
			pat = strings.ToLower(pat)
		}
		if pat == "*" {
			return true
		}
		if strings.HasSuffix(pat, "/*") {
			prefix := strings.TrimSuffix(pat, "*")
			if strings.HasPrefix(value, prefix) && !strings.Contains(value[len(prefix):], "/") {
				return true
			}
			continue
		}
		if pat == value {
			return true
		}
	}
	return false
}

// Record is a capability plus its grant state.
type Record struct {
	Capability Capability
	Granted    bool
	GrantedAt  *time.Time
	ExpiresAt  *time.Time
}

// InForce reports whether r is currently usable: granted, and either
// never expiring or not yet expired.
func (r Record) InForce(now time.Time) bool {
	if !r.Granted {
		return false
	}
	if r.GrantedAt == nil {
		return false
	}
	return r.ExpiresAt == nil || now.Before(*r.ExpiresAt)
}

// ConsentDecision is the closed response to a consent request.
type ConsentDecision int

const (
	Deny ConsentDecision = iota
	GrantOnce
	GrantAlways
)

// ConsentRequest describes a capability request for the host UI to render.
type ConsentRequest struct {
	PluginID     string
	PluginName   string
	Capability   Capability
	Reason       string
	Consequences []string
}

const grantOnceDuration = time.Hour

// Manager holds per-plugin permission records and the session consent
// cache. The zero value is not usable; use NewManager.
type Manager struct {
	mu sync.RWMutex

	configDir string // directory holding "<plugin-id>.json" permission files
	loaded    map[string]bool
	records   map[string][]Record // plugin id -> records

	consentMu    sync.Mutex
	consentCache map[string]ConsentDecision // "pluginID\x00kind\x00scope" -> decision
}

// NewManager returns a Manager persisting per-plugin permission files
// under configDir.
func NewManager(configDir string) *Manager {
	return &Manager{
		configDir:    configDir,
		loaded:       make(map[string]bool),
		records:      make(map[string][]Record),
		consentCache: make(map[string]ConsentDecision),
	}
}

func (m *Manager) permissionFilePath(pluginID string) string {
	return filepath.Join(m.configDir, pluginID+".json")
}

// ensureLoaded lazily loads a plugin's permission file on first access.
// Caller must hold m.mu for writing.
func (m *Manager) ensureLoadedLocked(pluginID string) {
	if m.loaded[pluginID] {
		return
	}
	m.loaded[pluginID] = true

	data, err := os.ReadFile(m.permissionFilePath(pluginID))
	if err != nil {
		return // no persisted permissions yet; not an error
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return // corrupted file: start from empty rather than failing
	}
	m.records[pluginID] = records
}

func (m *Manager) saveLocked(pluginID string) error {
	data, err := json.MarshalIndent(m.records[pluginID], "", "  ")
	if err != nil {
		return vaulterr.Wrap(vaulterr.IoError, err, "marshal permissions for %s", pluginID)
	}
	if err := os.MkdirAll(m.configDir, 0o755); err != nil {
		return vaulterr.Wrap(vaulterr.IoError, err, "create permission config dir")
	}
	if err := frontmatter.WriteFileAtomic(m.permissionFilePath(pluginID), data); err != nil {
		return vaulterr.Wrap(vaulterr.IoError, err, "write permissions for %s", pluginID)
	}
	return nil
}

// HasCapability reports whether pluginID currently holds a granted,
// unexpired record whose capability satisfies cap.
func (m *Manager) HasCapability(pluginID string, cap Capability) bool {
	now := time.Now().UTC()
	m.mu.Lock()
	m.ensureLoadedLocked(pluginID)
	records := m.records[pluginID]
	m.mu.Unlock()

	for _, r := range records {
		if r.InForce(now) && r.Capability.Satisfies(cap) {
			return true
		}
	}
	return false
}

// RequireCapability returns vaulterr.PermissionDenied when HasCapability
// is false, and nil otherwise. Callers that enforce permissions (all of
// internal/hostapi) should use this so the error kind is never
// accidentally converted to a different one downstream.
func (m *Manager) RequireCapability(pluginID string, cap Capability) error {
	if m.HasCapability(pluginID, cap) {
		return nil
	}
	return vaulterr.New(vaulterr.PermissionDenied, "plugin %s lacks capability %s", pluginID, cap.Kind)
}

// Grant records a new permission for pluginID, setting GrantedAt to now.
func (m *Manager) Grant(pluginID string, cap Capability, expiresAt *time.Time) error {
	now := time.Now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureLoadedLocked(pluginID)

	m.records[pluginID] = append(m.records[pluginID], Record{
		Capability: cap,
		Granted:    true,
		GrantedAt:  &now,
		ExpiresAt:  expiresAt,
	})
	return m.saveLocked(pluginID)
}

// Revoke removes every record for pluginID matching kind.
func (m *Manager) Revoke(pluginID string, kind Kind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureLoadedLocked(pluginID)

	kept := m.records[pluginID][:0]
	for _, r := range m.records[pluginID] {
		if r.Capability.Kind != kind {
			kept = append(kept, r)
		}
	}
	m.records[pluginID] = kept
	return m.saveLocked(pluginID)
}

func consentCacheKey(pluginID string, cap Capability) string {
	return pluginID + "\x00" + string(cap.Kind) + "\x00" + strings.Join(cap.Paths, ",") +
		"\x00" + strings.Join(cap.Domains, ",") + "\x00" + strings.Join(cap.Keys, ",") +
		"\x00" + strings.Join(cap.Tools, ",")
}

// RequestConsent applies decision to req, persisting a grant for GrantOnce
// (expires in one hour) or GrantAlways (never expires); Deny records no
// permission. The decision is cached per (plugin, capability) for the
// session so repeat requests short-circuit without re-prompting the host UI.
func (m *Manager) RequestConsent(req ConsentRequest, decision ConsentDecision) error {
	key := consentCacheKey(req.PluginID, req.Capability)
	m.consentMu.Lock()
	m.consentCache[key] = decision
	m.consentMu.Unlock()

	switch decision {
	case Deny:
		return nil
	case GrantOnce:
		expires := time.Now().UTC().Add(grantOnceDuration)
		return m.Grant(req.PluginID, req.Capability, &expires)
	case GrantAlways:
		return m.Grant(req.PluginID, req.Capability, nil)
	default:
		return vaulterr.New(vaulterr.InvalidPath, "unknown consent decision")
	}
}

// CachedConsent returns a previously cached decision for (pluginID, cap)
// within this session, if any.
func (m *Manager) CachedConsent(pluginID string, cap Capability) (ConsentDecision, bool) {
	key := consentCacheKey(pluginID, cap)
	m.consentMu.Lock()
	defer m.consentMu.Unlock()
	d, ok := m.consentCache[key]
	return d, ok
}

// GenerateCSP derives a Content-Security-Policy string for pluginID from
// its currently granted, unexpired capabilities.
func (m *Manager) GenerateCSP(pluginID string) string {
	now := time.Now().UTC()
	m.mu.Lock()
	m.ensureLoadedLocked(pluginID)
	records := append([]Record(nil), m.records[pluginID]...)
	m.mu.Unlock()

	var domains []string
	hasWasm := false
	hasWorkers := false
	for _, r := range records {
		if !r.InForce(now) {
			continue
		}
		switch r.Capability.Kind {
		case NetworkAccess:
			domains = append(domains, r.Capability.Domains...)
		case WebAssembly:
			hasWasm = true
		case WebWorkers:
			hasWorkers = true
		}
	}

	var b strings.Builder
	b.WriteString("default-src 'self'; connect-src 'self'")
	for _, d := range domains {
		b.WriteString(" ")
		b.WriteString(d)
	}
	b.WriteString("; script-src 'self'")
	if hasWasm {
		b.WriteString(" 'wasm-unsafe-eval'")
	}
	b.WriteString("; worker-src")
	if hasWorkers {
		b.WriteString(" 'self'")
	}
	return b.String()
}
