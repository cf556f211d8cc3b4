package vaultwatch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkanvault/corevault/internal/hostapi"
	"github.com/arkanvault/corevault/internal/identity"
	"github.com/arkanvault/corevault/internal/noteid"
	"github.com/arkanvault/corevault/internal/permission"
	"github.com/arkanvault/corevault/internal/taskindex"
)

func newTestWatcher(t *testing.T) (*Watcher, string, chan hostapi.WatchEvent) {
	t.Helper()
	root := t.TempDir()
	ids := identity.New(root, noteid.NewGenerator())
	tasks := taskindex.New()
	perms := permission.NewManager(t.TempDir())
	vault := hostapi.NewVaultAPI(root, ids, perms)
	require.NoError(t, perms.Grant("test-plugin", permission.Capability{Kind: permission.VaultRead, Paths: []string{"*"}}, nil))

	events := make(chan hostapi.WatchEvent, 64)
	_, err := vault.Watch("test-plugin", "", func(ev hostapi.WatchEvent) { events <- ev })
	require.NoError(t, err)

	w, err := New(root, ids, tasks, vault, zerolog.Nop())
	require.NoError(t, err)
	go w.Run()
	t.Cleanup(func() { w.Close() })

	return w, root, events
}

func waitForEvent(t *testing.T, events chan hostapi.WatchEvent, timeout time.Duration) hostapi.WatchEvent {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(timeout):
		t.Fatal("timed out waiting for watch event")
		return hostapi.WatchEvent{}
	}
}

func TestCreateEmitsCreatedAndAssignsIdentity(t *testing.T) {
	w, root, events := newTestWatcher(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "note.md"), []byte("# hello\n"), 0o644))

	ev := waitForEvent(t, events, 2*time.Second)
	assert.Equal(t, hostapi.EventCreated, ev.Kind)
	assert.Equal(t, "note.md", ev.Path)

	_, ok := w.ids.IDForPath("note.md")
	assert.True(t, ok)
}

func TestModifyEmitsModified(t *testing.T) {
	w, root, events := newTestWatcher(t)
	path := filepath.Join(root, "note.md")
	require.NoError(t, os.WriteFile(path, []byte("# hello\n"), 0o644))
	waitForEvent(t, events, 2*time.Second) // drain the Created event

	require.NoError(t, os.WriteFile(path, []byte("# hello again\n"), 0o644))
	ev := waitForEvent(t, events, 2*time.Second)
	assert.Equal(t, hostapi.EventModified, ev.Kind)
}

func TestDeleteWithoutMatchEmitsDeletedAfterWindow(t *testing.T) {
	w, root, events := newTestWatcher(t)
	path := filepath.Join(root, "note.md")
	require.NoError(t, os.WriteFile(path, []byte("# hello\n"), 0o644))
	waitForEvent(t, events, 2*time.Second)

	require.NoError(t, os.Remove(path))
	ev := waitForEvent(t, events, CoalesceWindow+2*time.Second)
	assert.Equal(t, hostapi.EventDeleted, ev.Kind)
	assert.Equal(t, "note.md", ev.Path)
}

func TestRenameWithinWindowCoalescesAndRebinds(t *testing.T) {
	w, root, events := newTestWatcher(t)
	original := filepath.Join(root, "note.md")
	require.NoError(t, os.WriteFile(original, []byte("---\nid: fixed-id-123\n---\n# hello\n"), 0o644))
	created := waitForEvent(t, events, 2*time.Second)
	require.Equal(t, hostapi.EventCreated, created.Kind)

	id, ok := w.ids.IDForPath("note.md")
	require.True(t, ok)
	require.Equal(t, "fixed-id-123", id)

	renamed := filepath.Join(root, "note-renamed.md")
	require.NoError(t, os.Rename(original, renamed))

	ev := waitForEvent(t, events, CoalesceWindow+2*time.Second)
	assert.Equal(t, hostapi.EventRenamed, ev.Kind)
	assert.Equal(t, "note-renamed.md", ev.Path)

	newID, ok := w.ids.IDForPath("note-renamed.md")
	require.True(t, ok)
	assert.Equal(t, "fixed-id-123", newID)
}
