package hostapi

import (
	"github.com/arkanvault/corevault/internal/localstore"
	"github.com/arkanvault/corevault/internal/permission"
)

// StorageAPI implements a supplemented storage.* namespace backing the
// LocalStorage capability, which spec.md's base capability enum names
// but gives no dedicated host API method — see DESIGN.md for the
// supplementation note. Thin permission-enforcing wrapper around
// internal/localstore.
type StorageAPI struct {
	store *localstore.Store
	perms *permission.Manager
}

// NewStorageAPI returns a StorageAPI backed by store.
func NewStorageAPI(store *localstore.Store, perms *permission.Manager) *StorageAPI {
	return &StorageAPI{store: store, perms: perms}
}

func (s *StorageAPI) requireCap(pluginID string, kind permission.Kind) error {
	return s.perms.RequireCapability(pluginID, permission.Capability{Kind: kind})
}

// Set stores value under key in pluginID's namespace.
func (s *StorageAPI) Set(pluginID, key string, value []byte) error {
	if err := s.requireCap(pluginID, permission.LocalStorage); err != nil {
		return err
	}
	return s.store.Set(pluginID, key, value)
}

// Get returns the value stored under key.
func (s *StorageAPI) Get(pluginID, key string) ([]byte, error) {
	if err := s.requireCap(pluginID, permission.LocalStorage); err != nil {
		return nil, err
	}
	return s.store.Get(pluginID, key)
}

// Delete removes key from pluginID's namespace.
func (s *StorageAPI) Delete(pluginID, key string) error {
	if err := s.requireCap(pluginID, permission.LocalStorage); err != nil {
		return err
	}
	return s.store.Delete(pluginID, key)
}

// ListKeys returns every key in pluginID's namespace.
func (s *StorageAPI) ListKeys(pluginID string) ([]string, error) {
	if err := s.requireCap(pluginID, permission.LocalStorage); err != nil {
		return nil, err
	}
	return s.store.ListKeys(pluginID)
}

// Clear removes every entry in pluginID's namespace. It performs no
// capability check. The uninstall transition does not go through Clear:
// internal/app calls localstore.Store.DeleteAll directly.
func (s *StorageAPI) Clear(pluginID string) error {
	return s.store.DeleteAll(pluginID)
}
