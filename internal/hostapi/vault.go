// Package hostapi implements the permission-enforced host API surface
// plugins call into (spec §4.H): vault I/O, workspace UI operations,
// namespaced encrypted settings, and MCP tool brokerage. Each namespace is
// a Go type whose methods are called directly; this package has no
// dispatcher keyed by `<api>.<operation>` names. Most methods that take a
// pluginID check capabilities via internal/permission before touching any
// state. Some methods perform no capability check, for example
// GetActiveFile, ExecuteCommand, ListCommands, UnsubscribeEvent, Unwatch,
// StorageAPI.Clear, and McpAPI's ListServers, GetServerInfo and
// CloseServer. The Remove*/Unregister* workspace calls check ownership
// only.
//
// Grounded on the teacher's vault.go (path resolution/validation idiom)
// and original_source's per-API Rust modules, each translated into one
// Go file per namespace.
package hostapi

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/arkanvault/corevault/internal/frontmatter"
	"github.com/arkanvault/corevault/internal/identity"
	"github.com/arkanvault/corevault/internal/permission"
	"github.com/arkanvault/corevault/internal/vaulterr"
)

func writeFileAtomic(path string, data []byte) error {
	return frontmatter.WriteFileAtomic(path, data)
}

// EventKind is the closed set of watch event kinds.
type EventKind string

const (
	EventCreated  EventKind = "created"
	EventModified EventKind = "modified"
	EventDeleted  EventKind = "deleted"
	EventRenamed  EventKind = "renamed"
)

// WatchEvent is one file-system change delivered to a vault.watch subscriber.
type WatchEvent struct {
	Path      string
	Kind      EventKind
	Timestamp time.Time
}

// WatchSink receives watch events for one subscription.
type WatchSink func(WatchEvent)

// VaultAPI implements the vault.* namespace. Watch subscriptions are
// registered here but fed by internal/vaultwatch, which calls Dispatch
// on every file-system change it observes.
type VaultAPI struct {
	root  string
	ids   *identity.Store
	perms *permission.Manager

	subsMu sync.Mutex
	subs   map[string]WatchSink // subscription id -> sink
	nextID uint64
}

// NewVaultAPI returns a VaultAPI rooted at vaultRoot, enforcing
// capabilities via perms and assigning identifiers via ids.
func NewVaultAPI(vaultRoot string, ids *identity.Store, perms *permission.Manager) *VaultAPI {
	return &VaultAPI{
		root:  vaultRoot,
		ids:   ids,
		perms: perms,
		subs:  make(map[string]WatchSink),
	}
}

// Watch registers sink to receive events under pathPrefix (vault-relative;
// "" subscribes to the whole vault) and returns a subscription id usable
// with Unwatch.
func (v *VaultAPI) Watch(pluginID, pathPrefix string, sink WatchSink) (string, error) {
	if err := v.requireCap(pluginID, permission.VaultRead, pathPrefix); err != nil {
		return "", err
	}
	v.subsMu.Lock()
	defer v.subsMu.Unlock()
	v.nextID++
	id := filepath.Join(pluginID, itoa(v.nextID))
	filtered := sink
	if prefix := strings.TrimSuffix(pathPrefix, "/"); prefix != "" {
		filtered = func(ev WatchEvent) {
			if ev.Path == prefix || strings.HasPrefix(ev.Path, prefix+"/") {
				sink(ev)
			}
		}
	}
	v.subs[id] = filtered
	return id, nil
}

// Unwatch cancels a subscription created by Watch.
func (v *VaultAPI) Unwatch(subscriptionID string) error {
	v.subsMu.Lock()
	defer v.subsMu.Unlock()
	if _, ok := v.subs[subscriptionID]; !ok {
		return vaulterr.New(vaulterr.NotFound, "no such subscription: %s", subscriptionID)
	}
	delete(v.subs, subscriptionID)
	return nil
}

// Dispatch delivers ev to every active subscription. Called by
// internal/vaultwatch as file-system events are coalesced and ordered.
func (v *VaultAPI) Dispatch(ev WatchEvent) {
	v.subsMu.Lock()
	sinks := make([]WatchSink, 0, len(v.subs))
	for _, s := range v.subs {
		sinks = append(sinks, s)
	}
	v.subsMu.Unlock()
	for _, s := range sinks {
		s(ev)
	}
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	digits := make([]byte, 0, 20)
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

// ValidatePath rejects any vault-relative path containing a `..`
// segment, an absolute path, or a path that canonicalizes outside root,
// returning InvalidPath without touching the file system. It never
// returns a path outside root.
func ValidatePath(root, relPath string) (string, error) {
	if relPath == "" {
		return "", vaulterr.New(vaulterr.InvalidPath, "empty path")
	}
	if filepath.IsAbs(relPath) {
		return "", vaulterr.New(vaulterr.InvalidPath, "absolute path not allowed: %s", relPath)
	}
	cleaned := filepath.Clean(filepath.FromSlash(relPath))
	for _, part := range strings.Split(cleaned, string(filepath.Separator)) {
		if part == ".." {
			return "", vaulterr.New(vaulterr.InvalidPath, "path escapes vault: %s", relPath)
		}
	}
	abs := filepath.Join(root, cleaned)
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", vaulterr.Wrap(vaulterr.IoError, err, "resolve vault root")
	}
	absPath, err := filepath.Abs(abs)
	if err != nil {
		return "", vaulterr.Wrap(vaulterr.IoError, err, "resolve path")
	}
	if absPath != absRoot && !strings.HasPrefix(absPath, absRoot+string(filepath.Separator)) {
		return "", vaulterr.New(vaulterr.InvalidPath, "path escapes vault: %s", relPath)
	}
	return absPath, nil
}

func isMarkdownPath(p string) bool {
	return strings.EqualFold(filepath.Ext(p), ".md")
}

func (v *VaultAPI) requireCap(pluginID string, kind permission.Kind, path string) error {
	cap := permission.Capability{Kind: kind, Paths: []string{path}}
	return v.perms.RequireCapability(pluginID, cap)
}

// Read returns a .md/text file's contents.
func (v *VaultAPI) Read(pluginID, path string) (string, error) {
	if err := v.requireCap(pluginID, permission.VaultRead, path); err != nil {
		return "", err
	}
	abs, err := ValidatePath(v.root, path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", vaulterr.New(vaulterr.NotFound, "no such file: %s", path)
		}
		return "", vaulterr.Wrap(vaulterr.IoError, err, "read %s", path)
	}
	return string(data), nil
}

// ReadBinary returns a binary file's raw bytes.
func (v *VaultAPI) ReadBinary(pluginID, path string) ([]byte, error) {
	if err := v.requireCap(pluginID, permission.VaultRead, path); err != nil {
		return nil, err
	}
	abs, err := ValidatePath(v.root, path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, vaulterr.New(vaulterr.NotFound, "no such file: %s", path)
		}
		return nil, vaulterr.Wrap(vaulterr.IoError, err, "read %s", path)
	}
	return data, nil
}

// Write overwrites path with text. Writes to .md files invisibly run
// through the identity store's EnsureID so no note ever reaches disk
// without an identifier.
func (v *VaultAPI) Write(pluginID, path, text string) error {
	if err := v.requireCap(pluginID, permission.VaultWrite, path); err != nil {
		return err
	}
	abs, err := ValidatePath(v.root, path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return vaulterr.Wrap(vaulterr.IoError, err, "create parent dir for %s", path)
	}
	if isMarkdownPath(path) {
		// Carry an already-assigned id over into text that has none, since
		// EnsureID does not re-check the file for a path it has cached.
		if doc, body := frontmatter.Parse(text); doc == nil || doc.ID == "" {
			if id, ok := v.ids.IDForPath(path); ok {
				if doc == nil {
					doc = &frontmatter.Document{}
				}
				doc.ID = id
				rendered, err := frontmatter.Render(doc, body)
				if err != nil {
					return vaulterr.Wrap(vaulterr.IoError, err, "render front-matter for %s", path)
				}
				text = rendered
			}
		}
	}
	if err := writeFileAtomic(abs, []byte(text)); err != nil {
		return vaulterr.Wrap(vaulterr.IoError, err, "write %s", path)
	}
	if isMarkdownPath(path) {
		if _, err := v.ids.EnsureID(path); err != nil {
			return err
		}
	}
	return nil
}

// WriteBinary overwrites path with raw bytes.
func (v *VaultAPI) WriteBinary(pluginID, path string, data []byte) error {
	if err := v.requireCap(pluginID, permission.VaultWrite, path); err != nil {
		return err
	}
	abs, err := ValidatePath(v.root, path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return vaulterr.Wrap(vaulterr.IoError, err, "create parent dir for %s", path)
	}
	if err := writeFileAtomic(abs, data); err != nil {
		return vaulterr.Wrap(vaulterr.IoError, err, "write %s", path)
	}
	if _, err := v.ids.EnsureID(path); err != nil {
		return err
	}
	return nil
}

// Append adds text to the end of path, creating it if absent.
func (v *VaultAPI) Append(pluginID, path, text string) error {
	if err := v.requireCap(pluginID, permission.VaultWrite, path); err != nil {
		return err
	}
	abs, err := ValidatePath(v.root, path)
	if err != nil {
		return err
	}
	existing, err := os.ReadFile(abs)
	if err != nil && !os.IsNotExist(err) {
		return vaulterr.Wrap(vaulterr.IoError, err, "read %s for append", path)
	}
	combined := append(existing, []byte(text)...)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return vaulterr.Wrap(vaulterr.IoError, err, "create parent dir for %s", path)
	}
	if err := writeFileAtomic(abs, combined); err != nil {
		return vaulterr.Wrap(vaulterr.IoError, err, "append %s", path)
	}
	if isMarkdownPath(path) {
		if _, err := v.ids.EnsureID(path); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a single file.
func (v *VaultAPI) Delete(pluginID, path string) error {
	if err := v.requireCap(pluginID, permission.VaultDelete, path); err != nil {
		return err
	}
	abs, err := ValidatePath(v.root, path)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		if os.IsNotExist(err) {
			return vaulterr.New(vaulterr.NotFound, "no such file: %s", path)
		}
		return vaulterr.Wrap(vaulterr.IoError, err, "delete %s", path)
	}
	return nil
}

// List returns the names of entries directly inside dir (vault-relative;
// pass "" for the vault root).
func (v *VaultAPI) List(pluginID, dir string) ([]string, error) {
	if err := v.requireCap(pluginID, permission.VaultRead, dir); err != nil {
		return nil, err
	}
	var abs string
	var err error
	if dir == "" {
		abs = v.root
	} else {
		abs, err = ValidatePath(v.root, dir)
		if err != nil {
			return nil, err
		}
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, vaulterr.New(vaulterr.NotFound, "no such directory: %s", dir)
		}
		return nil, vaulterr.Wrap(vaulterr.IoError, err, "list %s", dir)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

// CreateFolder creates dir and any missing parents.
func (v *VaultAPI) CreateFolder(pluginID, path string) error {
	if err := v.requireCap(pluginID, permission.VaultWrite, path); err != nil {
		return err
	}
	abs, err := ValidatePath(v.root, path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return vaulterr.Wrap(vaulterr.IoError, err, "create folder %s", path)
	}
	return nil
}

// DeleteFolder removes dir, recursively if recursive is true.
func (v *VaultAPI) DeleteFolder(pluginID, path string, recursive bool) error {
	if err := v.requireCap(pluginID, permission.VaultDelete, path); err != nil {
		return err
	}
	abs, err := ValidatePath(v.root, path)
	if err != nil {
		return err
	}
	if recursive {
		if err := os.RemoveAll(abs); err != nil {
			return vaulterr.Wrap(vaulterr.IoError, err, "delete folder %s", path)
		}
		return nil
	}
	if err := os.Remove(abs); err != nil {
		if os.IsNotExist(err) {
			return vaulterr.New(vaulterr.NotFound, "no such directory: %s", path)
		}
		return vaulterr.Wrap(vaulterr.IoError, err, "delete folder %s", path)
	}
	return nil
}
