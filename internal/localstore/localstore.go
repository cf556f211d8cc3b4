// Package localstore backs the LocalStorage plugin capability (spec
// §4.F's capability enum names it but the base spec's host API has no
// dedicated method surface for it — a SPEC_FULL.md supplement) with a
// per-plugin namespaced key/value table in a single embedded SQLite
// database shared across plugins, isolated by plugin id column.
//
// Grounded on original_source's settings storage module for the
// namespacing idiom (one logical store, every row scoped by plugin id)
// and on the rest of the example pack's use of gorm as the ORM of choice
// for relational persistence; glebarez/sqlite is used instead of
// mattn/go-sqlite3 because it is pure Go and needs no cgo toolchain,
// matching the project's otherwise cgo-free build.
package localstore

import (
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/arkanvault/corevault/internal/vaulterr"
)

// Entry is one namespaced key/value row.
type Entry struct {
	PluginID  string `gorm:"primaryKey;column:plugin_id"`
	Key       string `gorm:"primaryKey;column:key"`
	Value     []byte `gorm:"column:value"`
	UpdatedAt time.Time
}

func (Entry) TableName() string { return "local_storage_entries" }

// Store is a gorm-backed key/value table, one row per (plugin, key).
type Store struct {
	db *gorm.DB
}

// Open opens (creating if absent) the SQLite database at path and
// migrates its schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.IoError, err, "open local storage db at %s", path)
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, vaulterr.Wrap(vaulterr.IoError, err, "migrate local storage schema")
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return vaulterr.Wrap(vaulterr.IoError, err, "acquire sql.DB handle")
	}
	return sqlDB.Close()
}

// Set upserts (pluginID, key) -> value.
func (s *Store) Set(pluginID, key string, value []byte) error {
	entry := Entry{PluginID: pluginID, Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	result := s.db.Save(&entry)
	if result.Error != nil {
		return vaulterr.Wrap(vaulterr.IoError, result.Error, "set %s/%s", pluginID, key)
	}
	return nil
}

// Get returns the value stored under (pluginID, key), or NotFound.
func (s *Store) Get(pluginID, key string) ([]byte, error) {
	var entry Entry
	result := s.db.Where("plugin_id = ? AND key = ?", pluginID, key).First(&entry)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, vaulterr.New(vaulterr.NotFound, "no local storage entry %s/%s", pluginID, key)
		}
		return nil, vaulterr.Wrap(vaulterr.IoError, result.Error, "get %s/%s", pluginID, key)
	}
	return entry.Value, nil
}

// Delete removes (pluginID, key) if present; deleting an absent key is
// not an error.
func (s *Store) Delete(pluginID, key string) error {
	result := s.db.Where("plugin_id = ? AND key = ?", pluginID, key).Delete(&Entry{})
	if result.Error != nil {
		return vaulterr.Wrap(vaulterr.IoError, result.Error, "delete %s/%s", pluginID, key)
	}
	return nil
}

// ListKeys returns every key stored under pluginID.
func (s *Store) ListKeys(pluginID string) ([]string, error) {
	var entries []Entry
	result := s.db.Where("plugin_id = ?", pluginID).Select("key").Find(&entries)
	if result.Error != nil {
		return nil, vaulterr.Wrap(vaulterr.IoError, result.Error, "list keys for %s", pluginID)
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.Key)
	}
	return keys, nil
}

// DeleteAll removes every entry owned by pluginID. Called when a plugin
// is uninstalled.
func (s *Store) DeleteAll(pluginID string) error {
	result := s.db.Where("plugin_id = ?", pluginID).Delete(&Entry{})
	if result.Error != nil {
		return vaulterr.Wrap(vaulterr.IoError, result.Error, "delete all entries for %s", pluginID)
	}
	return nil
}
