package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseManifestRuntimeFormat(t *testing.T) {
	data := []byte(`{
		"name": "test-plugin",
		"version": "1.0.0",
		"description": "Test plugin",
		"author": "Test Author",
		"entry_point": "index.js",
		"permissions": ["vault:read", "vault:write", "workspace:read"]
	}`)
	m, err := ParseManifest(data)
	require.NoError(t, err)
	assert.Equal(t, "test-plugin", m.Name)
	assert.Equal(t, "index.js", m.EntryPoint)
	assert.Equal(t, []string{"vault:read", "vault:write", "workspace:read"}, m.Permissions)
}

func TestParseManifestTypeScriptFormat(t *testing.T) {
	data := []byte(`{
		"name": "test-plugin",
		"version": "1.0.0",
		"entryPoint": "main.ts",
		"permissions": ["vault:read"],
		"minApiVersion": "0.1.0"
	}`)
	m, err := ParseManifest(data)
	require.NoError(t, err)
	assert.Equal(t, "main.ts", m.EntryPoint)
	assert.Equal(t, "0.1.0", m.MinAPIVersion)
}

func TestParseManifestMainFormatNormalizesDotPermissions(t *testing.T) {
	data := []byte(`{
		"name": "readwise-official",
		"version": "1.0.5",
		"main": "main.js",
		"permissions": ["vault.read", "vault.write", "workspace.read", "network.request"]
	}`)
	m, err := ParseManifest(data)
	require.NoError(t, err)
	assert.Equal(t, "main.js", m.EntryPoint)
	assert.Equal(t, []string{"vault:read", "vault:write", "workspace:read", "network:request"}, m.Permissions)
}

func TestParseManifestWithMetadata(t *testing.T) {
	data := []byte(`{
		"name": "advanced-plugin",
		"version": "2.0.0",
		"main": "plugin.js",
		"metadata": {
			"icon": "icon.png",
			"homepage": "https://example.com",
			"license": "MIT"
		}
	}`)
	m, err := ParseManifest(data)
	require.NoError(t, err)
	assert.Equal(t, "icon.png", m.Metadata.Icon)
	assert.Equal(t, "MIT", m.Metadata.License)
}

func TestParseManifestMinimal(t *testing.T) {
	data := []byte(`{"name": "minimal-plugin", "version": "0.1.0", "main": "index.js"}`)
	m, err := ParseManifest(data)
	require.NoError(t, err)
	assert.Empty(t, m.Permissions)
	assert.Nil(t, m.Dependencies)
}

func TestValidateRequiresName(t *testing.T) {
	m := &Manifest{Version: "1.0.0", EntryPoint: "x.js"}
	assert.Error(t, m.Validate())
}

func TestValidateRequiresVersion(t *testing.T) {
	m := &Manifest{Name: "p", EntryPoint: "x.js"}
	assert.Error(t, m.Validate())
}

func TestValidateRequiresEntryPoint(t *testing.T) {
	m := &Manifest{Name: "p", Version: "1.0.0"}
	assert.Error(t, m.Validate())
}

func TestValidateVersionFormat(t *testing.T) {
	valid := []string{"1.0.0", "0.1.0", "10.20.30"}
	for _, v := range valid {
		assert.True(t, isValidVersion(v), v)
	}
	invalid := []string{"1.0", "1.0.0.0", "v1.0.0", "1.a.0"}
	for _, v := range invalid {
		assert.False(t, isValidVersion(v), v)
	}
}

func TestManifestID(t *testing.T) {
	m := &Manifest{Name: "foo", Version: "1.2.3"}
	assert.Equal(t, "foo@1.2.3", m.ID())
}
