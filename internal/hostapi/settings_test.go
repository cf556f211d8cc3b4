package hostapi

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkanvault/corevault/internal/permission"
)

func newTestSettingsAPI(t *testing.T) (*SettingsAPI, *permission.Manager) {
	t.Helper()
	perms := permission.NewManager(t.TempDir())
	s := NewSettingsAPI(t.TempDir(), []byte("test-root-secret"), perms)
	return s, perms
}

func grantSettings(t *testing.T, perms *permission.Manager, pluginID string, kinds ...permission.Kind) {
	t.Helper()
	for _, k := range kinds {
		require.NoError(t, perms.Grant(pluginID, permission.Capability{Kind: k, Keys: []string{"*"}}, nil))
	}
}

func TestSetAndGetRoundTrips(t *testing.T) {
	s, perms := newTestSettingsAPI(t)
	grantSettings(t, perms, "p", permission.SettingsRead, permission.SettingsWrite)

	require.NoError(t, s.Set("p", "theme", "dark"))
	v, err := s.Get("p", "theme")
	require.NoError(t, err)
	var got string
	require.NoError(t, json.Unmarshal(v, &got))
	assert.Equal(t, "dark", got)
}

func TestGetMissingKeyNotFound(t *testing.T) {
	s, perms := newTestSettingsAPI(t)
	grantSettings(t, perms, "p", permission.SettingsRead)
	_, err := s.Get("p", "missing")
	assert.Error(t, err)
}

func TestSetWithoutPermissionDenied(t *testing.T) {
	s, _ := newTestSettingsAPI(t)
	err := s.Set("p", "k", "v")
	assert.Error(t, err)
}

func TestDeleteRemovesKey(t *testing.T) {
	s, perms := newTestSettingsAPI(t)
	grantSettings(t, perms, "p", permission.SettingsRead, permission.SettingsWrite)

	require.NoError(t, s.Set("p", "k", "v"))
	require.NoError(t, s.Delete("p", "k"))
	_, err := s.Get("p", "k")
	assert.Error(t, err)
}

func TestListKeysSortedAcrossPlainAndEncrypted(t *testing.T) {
	s, perms := newTestSettingsAPI(t)
	grantSettings(t, perms, "p", permission.SettingsRead, permission.SettingsWrite)

	require.NoError(t, s.Set("p", "zeta", "1"))
	require.NoError(t, s.SetEncrypted("p", "alpha", []byte("secret")))

	keys, err := s.ListKeys("p")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, keys)
}

func TestSetEncryptedThenGetEncryptedRoundTrips(t *testing.T) {
	s, perms := newTestSettingsAPI(t)
	grantSettings(t, perms, "p", permission.SettingsRead, permission.SettingsWrite)

	require.NoError(t, s.SetEncrypted("p", "token", []byte("super-secret-value")))
	got, err := s.GetEncrypted("p", "token")
	require.NoError(t, err)
	assert.Equal(t, "super-secret-value", string(got))
}

func TestEncryptedValuesDistinctKeysPerPlugin(t *testing.T) {
	s, perms := newTestSettingsAPI(t)
	grantSettings(t, perms, "p1", permission.SettingsRead, permission.SettingsWrite)
	grantSettings(t, perms, "p2", permission.SettingsRead, permission.SettingsWrite)

	require.NoError(t, s.SetEncrypted("p1", "k", []byte("p1-secret")))
	require.NoError(t, s.SetEncrypted("p2", "k", []byte("p2-secret")))

	v1, err := s.GetEncrypted("p1", "k")
	require.NoError(t, err)
	v2, err := s.GetEncrypted("p2", "k")
	require.NoError(t, err)
	assert.Equal(t, "p1-secret", string(v1))
	assert.Equal(t, "p2-secret", string(v2))
}

func TestQuotaExceededOnOversizedWrite(t *testing.T) {
	s, perms := newTestSettingsAPI(t)
	grantSettings(t, perms, "p", permission.SettingsRead, permission.SettingsWrite)
	s.quota = 16

	big, _ := json.Marshal(string(make([]byte, 100)))
	err := s.SetJSON("p", "big", big)
	assert.Error(t, err)
}

func TestPersistenceSurvivesNewSettingsAPIInstance(t *testing.T) {
	perms := permission.NewManager(t.TempDir())
	dir := t.TempDir()
	grantSettings(t, perms, "p", permission.SettingsRead, permission.SettingsWrite)

	s1 := NewSettingsAPI(dir, []byte("root"), perms)
	require.NoError(t, s1.Set("p", "k", "v"))

	s2 := NewSettingsAPI(dir, []byte("root"), perms)
	v, err := s2.Get("p", "k")
	require.NoError(t, err)
	var got string
	require.NoError(t, json.Unmarshal(v, &got))
	assert.Equal(t, "v", got)
}

func TestApplyMigrationTransformsAndBumpsVersion(t *testing.T) {
	s, perms := newTestSettingsAPI(t)
	grantSettings(t, perms, "p", permission.SettingsRead, permission.SettingsWrite)
	require.NoError(t, s.Set("p", "old_key", "x"))

	m := Migration{
		From: 1,
		To:   2,
		Transform: func(in map[string]json.RawMessage) (map[string]json.RawMessage, error) {
			out := map[string]json.RawMessage{"new_key": in["old_key"]}
			return out, nil
		},
	}
	require.NoError(t, s.ApplyMigration("p", m))

	_, err := s.Get("p", "old_key")
	assert.Error(t, err)
	v, err := s.Get("p", "new_key")
	require.NoError(t, err)
	assert.Equal(t, `"x"`, string(v))
}

func TestApplyMigrationFailsOnVersionMismatch(t *testing.T) {
	s, perms := newTestSettingsAPI(t)
	grantSettings(t, perms, "p", permission.SettingsWrite)

	m := Migration{From: 5, To: 6, Transform: func(in map[string]json.RawMessage) (map[string]json.RawMessage, error) {
		return in, nil
	}}
	err := s.ApplyMigration("p", m)
	assert.Error(t, err)
}

func TestGarbageCollectRemovesOnlyUninstalled(t *testing.T) {
	s, perms := newTestSettingsAPI(t)
	grantSettings(t, perms, "keep", permission.SettingsRead, permission.SettingsWrite)
	grantSettings(t, perms, "gone", permission.SettingsWrite)

	require.NoError(t, s.Set("keep", "k", "v"))
	require.NoError(t, s.Set("gone", "k", "v"))
	require.NoError(t, s.MarkUninstalled("gone"))

	removed, err := s.GarbageCollect()
	require.NoError(t, err)
	assert.Equal(t, []string{"gone"}, removed)

	_, err = s.Get("keep", "k")
	assert.NoError(t, err)
}

func TestStorageUsageReflectsWrites(t *testing.T) {
	s, perms := newTestSettingsAPI(t)
	grantSettings(t, perms, "p", permission.SettingsWrite)

	used0, _ := s.StorageUsage("p")
	require.NoError(t, s.Set("p", "k", "value"))
	used1, quota := s.StorageUsage("p")
	assert.Greater(t, used1, used0)
	assert.Equal(t, DefaultSettingsQuota, quota)
}
