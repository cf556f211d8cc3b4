package plugin

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, dir string, manifestJSON string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.json"), []byte(manifestJSON), 0o644))
}

func TestInstallRegistersPluginAsInstalled(t *testing.T) {
	src := t.TempDir()
	writeManifest(t, src, `{"name":"p","version":"1.0.0","main":"index.js"}`)

	m := NewManager(t.TempDir(), ActivationHooks{})
	id, err := m.Install(src)
	require.NoError(t, err)
	assert.Equal(t, "p@1.0.0", id)

	rec, ok := m.Get(id)
	require.True(t, ok)
	assert.Equal(t, StateInstalled, rec.State)
}

func TestInstallMissingManifestNotFound(t *testing.T) {
	m := NewManager(t.TempDir(), ActivationHooks{})
	_, err := m.Install(t.TempDir())
	assert.Error(t, err)
}

func TestInstallInvalidManifestRejected(t *testing.T) {
	src := t.TempDir()
	writeManifest(t, src, `{"name":"p"}`)

	m := NewManager(t.TempDir(), ActivationHooks{})
	_, err := m.Install(src)
	assert.Error(t, err)
}

func TestInstallCopiesPluginFiles(t *testing.T) {
	src := t.TempDir()
	writeManifest(t, src, `{"name":"p","version":"1.0.0","main":"index.js"}`)
	require.NoError(t, os.WriteFile(filepath.Join(src, "index.js"), []byte("console.log(1)"), 0o644))

	pluginsDir := t.TempDir()
	m := NewManager(pluginsDir, ActivationHooks{})
	id, err := m.Install(src)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(pluginsDir, id, "index.js"))
	require.NoError(t, err)
	assert.Equal(t, "console.log(1)", string(data))
}

func TestActivateTransitionsToActiveAndTracksCount(t *testing.T) {
	src := t.TempDir()
	writeManifest(t, src, `{"name":"p","version":"1.0.0","main":"index.js"}`)

	m := NewManager(t.TempDir(), ActivationHooks{})
	id, err := m.Install(src)
	require.NoError(t, err)

	require.NoError(t, m.Activate(id))
	rec, _ := m.Get(id)
	assert.Equal(t, StateActive, rec.State)
	assert.Equal(t, 1, rec.ActivationCount)
	assert.NotNil(t, rec.LastActivated)
}

func TestActivateRollsBackOnHookFailure(t *testing.T) {
	src := t.TempDir()
	writeManifest(t, src, `{"name":"p","version":"1.0.0","main":"index.js"}`)

	m := NewManager(t.TempDir(), ActivationHooks{
		OnActivate: func(pluginID string, man Manifest) error {
			return assertErr{}
		},
	})
	id, err := m.Install(src)
	require.NoError(t, err)

	err = m.Activate(id)
	assert.Error(t, err)
	rec, _ := m.Get(id)
	assert.Equal(t, StateInactive, rec.State)
}

func TestDeactivateTransitionsToInactive(t *testing.T) {
	src := t.TempDir()
	writeManifest(t, src, `{"name":"p","version":"1.0.0","main":"index.js"}`)

	m := NewManager(t.TempDir(), ActivationHooks{})
	id, err := m.Install(src)
	require.NoError(t, err)
	require.NoError(t, m.Activate(id))
	require.NoError(t, m.Deactivate(id))

	rec, _ := m.Get(id)
	assert.Equal(t, StateInactive, rec.State)
}

func TestUninstallDeactivatesAndRemoves(t *testing.T) {
	src := t.TempDir()
	writeManifest(t, src, `{"name":"p","version":"1.0.0","main":"index.js"}`)

	pluginsDir := t.TempDir()
	var deactivated, cleaned bool
	m := NewManager(pluginsDir, ActivationHooks{
		OnDeactivate: func(pluginID string, man Manifest) error {
			deactivated = true
			return nil
		},
		OnUninstall: func(pluginID string) error {
			cleaned = true
			return nil
		},
	})
	id, err := m.Install(src)
	require.NoError(t, err)
	require.NoError(t, m.Activate(id))
	require.NoError(t, m.Uninstall(id))

	assert.True(t, deactivated)
	assert.True(t, cleaned)
	_, ok := m.Get(id)
	assert.False(t, ok)

	_, err = os.Stat(filepath.Join(pluginsDir, id))
	assert.True(t, os.IsNotExist(err))
}

func TestActivateUnknownPluginNotFound(t *testing.T) {
	m := NewManager(t.TempDir(), ActivationHooks{})
	err := m.Activate("missing@1.0.0")
	assert.Error(t, err)
}

func TestListReturnsAllInstalled(t *testing.T) {
	src1 := t.TempDir()
	writeManifest(t, src1, `{"name":"a","version":"1.0.0","main":"x.js"}`)
	src2 := t.TempDir()
	writeManifest(t, src2, `{"name":"b","version":"1.0.0","main":"x.js"}`)

	m := NewManager(t.TempDir(), ActivationHooks{})
	id1, err := m.Install(src1)
	require.NoError(t, err)
	id2, err := m.Install(src2)
	require.NoError(t, err)

	all := m.List()
	assert.Len(t, all, 2)
	assert.Contains(t, all, id1)
	assert.Contains(t, all, id2)
}

type assertErr struct{}

func (assertErr) Error() string { return "hook failed" }
