// Package plugin implements the plugin lifecycle state machine (spec
// §4.I): manifest validation across the ecosystem's several field-name
// conventions, and the Uninstalled -> Installed -> (Inactive <-> Active)
// -> Uninstalling -> Uninstalled transitions.
//
// Grounded on original_source's plugin_runtime/lifecycle/mod.rs
// (PluginManifest's alias handling, permission normalization,
// LifecycleManager's install/activate/deactivate/uninstall operations
// and PluginState shape), translated from its async tokio::RwLock-guarded
// maps into sync.RWMutex-guarded ones.
package plugin

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/arkanvault/corevault/internal/vaulterr"
)

// Metadata holds the manifest's optional descriptive fields.
type Metadata struct {
	Icon            string `json:"icon,omitempty"`
	Homepage        string `json:"homepage,omitempty"`
	Repository      string `json:"repository,omitempty"`
	License         string `json:"license,omitempty"`
	MinVaultVersion string `json:"minVaultVersion,omitempty"`
	MaxVaultVersion string `json:"maxVaultVersion,omitempty"`
}

// Manifest is a parsed, validated, normalized plugin manifest. EntryPoint
// accepts the "entry_point", "entryPoint", and "main" field names found
// across the plugin ecosystem's manifest conventions; Permissions are
// always normalized to colon-separated form ("vault:read") regardless of
// whether the source manifest used dots ("vault.read").
type Manifest struct {
	Name          string            `json:"name"`
	Version       string            `json:"version"`
	Description   string            `json:"description,omitempty"`
	Author        string            `json:"author,omitempty"`
	EntryPoint    string            `json:"-"`
	Permissions   []string          `json:"permissions,omitempty"`
	Dependencies  map[string]string `json:"dependencies,omitempty"`
	Metadata      Metadata          `json:"metadata,omitempty"`
	MinAPIVersion string            `json:"minApiVersion,omitempty"`
	MaxAPIVersion string            `json:"maxApiVersion,omitempty"`
}

// rawManifest mirrors the wire shape before entry-point aliasing and
// permission normalization are applied.
type rawManifest struct {
	Name          string            `json:"name"`
	Version       string            `json:"version"`
	Description   string            `json:"description"`
	Author        string            `json:"author"`
	Main          string            `json:"main"`
	EntryPointAlt string            `json:"entry_point"`
	EntryPointTS  string            `json:"entryPoint"`
	Permissions   []string          `json:"permissions"`
	Dependencies  map[string]string `json:"dependencies"`
	Metadata      Metadata          `json:"metadata"`
	MinAPIVersion string            `json:"minApiVersion"`
	MaxAPIVersion string            `json:"maxApiVersion"`
}

func normalizePermission(p string) string {
	return strings.ReplaceAll(p, ".", ":")
}

// ParseManifest decodes and normalizes a manifest.json document. It does
// not validate required fields or version format — call Validate for that.
func ParseManifest(data []byte) (*Manifest, error) {
	var raw rawManifest
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, vaulterr.Wrap(vaulterr.IoError, err, "parse plugin manifest")
	}

	entryPoint := raw.Main
	if raw.EntryPointAlt != "" {
		entryPoint = raw.EntryPointAlt
	}
	if raw.EntryPointTS != "" {
		entryPoint = raw.EntryPointTS
	}

	perms := make([]string, len(raw.Permissions))
	for i, p := range raw.Permissions {
		perms[i] = normalizePermission(p)
	}

	return &Manifest{
		Name:          raw.Name,
		Version:       raw.Version,
		Description:   raw.Description,
		Author:        raw.Author,
		EntryPoint:    entryPoint,
		Permissions:   perms,
		Dependencies:  raw.Dependencies,
		Metadata:      raw.Metadata,
		MinAPIVersion: raw.MinAPIVersion,
		MaxAPIVersion: raw.MaxAPIVersion,
	}, nil
}

// isValidVersion reports whether version is three dot-separated
// non-negative integers (e.g. "1.0.0"), matching the original's
// intentionally simple semver check — no pre-release/build metadata.
func isValidVersion(version string) bool {
	parts := strings.Split(version, ".")
	if len(parts) != 3 {
		return false
	}
	for _, part := range parts {
		if _, err := strconv.ParseUint(part, 10, 32); err != nil {
			return false
		}
	}
	return true
}

// Validate checks that m has every required field and a well-formed
// version. Problems are reported as Corrupted-kind errors since the
// input is untrusted plugin-authored data, not a vault path.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return vaulterr.New(vaulterr.Corrupted, "manifest missing required field: name")
	}
	if m.Version == "" {
		return vaulterr.New(vaulterr.Corrupted, "manifest missing required field: version")
	}
	if m.EntryPoint == "" {
		return vaulterr.New(vaulterr.Corrupted, "manifest missing required field: entry point (main/entry_point/entryPoint)")
	}
	if !isValidVersion(m.Version) {
		return vaulterr.New(vaulterr.Corrupted, "invalid version format: %s", m.Version)
	}
	return nil
}

// ID returns the manifest's plugin identifier, "<name>@<version>".
func (m *Manifest) ID() string {
	return m.Name + "@" + m.Version
}
