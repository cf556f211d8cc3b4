package hostapi

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkanvault/corevault/internal/localstore"
	"github.com/arkanvault/corevault/internal/permission"
)

func newTestStorageAPI(t *testing.T) (*StorageAPI, *permission.Manager) {
	t.Helper()
	store, err := localstore.Open(filepath.Join(t.TempDir(), "storage.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	perms := permission.NewManager(t.TempDir())
	return NewStorageAPI(store, perms), perms
}

func TestStorageSetGetRoundTrips(t *testing.T) {
	s, perms := newTestStorageAPI(t)
	require.NoError(t, perms.Grant("p", permission.Capability{Kind: permission.LocalStorage}, nil))

	require.NoError(t, s.Set("p", "k", []byte("v")))
	got, err := s.Get("p", "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestStorageWithoutPermissionDenied(t *testing.T) {
	s, _ := newTestStorageAPI(t)
	err := s.Set("p", "k", []byte("v"))
	assert.Error(t, err)
}

func TestStorageClearDoesNotRequirePermission(t *testing.T) {
	s, perms := newTestStorageAPI(t)
	require.NoError(t, perms.Grant("p", permission.Capability{Kind: permission.LocalStorage}, nil))
	require.NoError(t, s.Set("p", "k", []byte("v")))

	require.NoError(t, s.Clear("p"))
	_, err := s.Get("p", "k")
	assert.Error(t, err)
}
