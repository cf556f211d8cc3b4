package identity

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkanvault/corevault/internal/noteid"
)

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	abs := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	return abs
}

func TestEnsureIDAssignsAndPersists(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "note.md", "# hello\n")

	s := New(root, noteid.NewGenerator())
	id, err := s.EnsureID("note.md")
	require.NoError(t, err)
	assert.True(t, noteid.IsValid(id))

	data, err := os.ReadFile(filepath.Join(root, "note.md"))
	require.NoError(t, err)
	assert.Contains(t, string(data), id)

	id2, err := s.EnsureID("note.md")
	require.NoError(t, err)
	assert.Equal(t, id, id2, "re-ensuring must return the same identifier")
}

func TestEnsureIDPreservesExisting(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "note.md", "---\nid: fixed-id-123\n---\nbody\n")

	s := New(root, noteid.NewGenerator())
	id, err := s.EnsureID("note.md")
	require.NoError(t, err)
	assert.Equal(t, "fixed-id-123", id)
}

func TestEnsureIDBinarySidecar(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "image.png", "\xff\xd8\xff\xe0")

	s := New(root, noteid.NewGenerator())
	id, err := s.EnsureID("image.png")
	require.NoError(t, err)
	assert.True(t, noteid.IsValid(id))

	sidecar := filepath.Join(root, ".image.png.uuid")
	data, err := os.ReadFile(sidecar)
	require.NoError(t, err)
	assert.Equal(t, id, string(data))
}

func TestIDForPathMissFallsThroughToDisk(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "note.md", "---\nid: abc-xyz\n---\nbody\n")

	s := New(root, noteid.NewGenerator())
	id, ok := s.IDForPath("note.md")
	require.True(t, ok)
	assert.Equal(t, "abc-xyz", id)
}

func TestIDForPathMissingReturnsFalse(t *testing.T) {
	root := t.TempDir()
	s := New(root, noteid.NewGenerator())
	_, ok := s.IDForPath("nope.md")
	assert.False(t, ok)
}

func TestRebindUpdatesForwardAndReverse(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a/n.md", "---\nid: xyz\n---\nhi\n")

	s := New(root, noteid.NewGenerator())
	id, err := s.EnsureID("a/n.md")
	require.NoError(t, err)

	require.NoError(t, s.Rebind("a/n.md", "b/m.md"))

	got, ok := s.IDForPath("b/m.md")
	require.True(t, ok)
	assert.Equal(t, id, got)

	p, ok := s.PathForID(id)
	require.True(t, ok)
	assert.Equal(t, "b/m.md", p)
}

func TestRebindUnknownPathErrors(t *testing.T) {
	s := New(t.TempDir(), noteid.NewGenerator())
	err := s.Rebind("missing.md", "other.md")
	assert.Error(t, err)
}

func TestScanVaultAssignsToAllNotes(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 6; i++ {
		writeFile(t, root, filepath.Join("folder", "note"+string(rune('a'+i))+".md"), "# n\n")
	}

	s := New(root, noteid.NewGenerator())
	report, err := s.ScanVault(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 6, report.Assigned)
	assert.Equal(t, 0, report.Errors)
	assert.Len(t, report.Entries, 6)
}

func TestScanVaultPreservesExistingIDs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "existing.md", "---\nid: already-here\n---\nbody\n")
	writeFile(t, root, "fresh.md", "body\n")

	s := New(root, noteid.NewGenerator())
	report, err := s.ScanVault(context.Background(), DefaultFanout)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Preserved)
	assert.Equal(t, 1, report.Assigned)
}

func TestFindDuplicatesDetectsSharedID(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.md", "---\nid: dup-id\n---\na\n")
	writeFile(t, root, "b.md", "---\nid: dup-id\n---\nb\n")

	s := New(root, noteid.NewGenerator())
	_, err := s.ScanVault(context.Background(), DefaultFanout)
	require.NoError(t, err)

	dups := s.FindDuplicates()
	paths, ok := dups["dup-id"]
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"a.md", "b.md"}, paths)
}

func TestSnapshotSaveAndLoadRoundTrips(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "note.md", "---\nid: snap-id\n---\nbody\n")

	s := New(root, noteid.NewGenerator())
	_, err := s.ScanVault(context.Background(), DefaultFanout)
	require.NoError(t, err)

	snapPath := filepath.Join(root, ".vault", "identity.bin")
	require.NoError(t, s.SaveSnapshot(snapPath))

	restored := New(root, noteid.NewGenerator())
	require.NoError(t, restored.LoadSnapshot(snapPath))

	id, ok := restored.IDForPath("note.md")
	require.True(t, ok)
	assert.Equal(t, "snap-id", id)
}

func TestReconcileAgainstDiskDropsDeletedFiles(t *testing.T) {
	root := t.TempDir()
	abs := writeFile(t, root, "gone.md", "---\nid: gone-id\n---\nbody\n")

	s := New(root, noteid.NewGenerator())
	_, err := s.ScanVault(context.Background(), DefaultFanout)
	require.NoError(t, err)

	require.NoError(t, os.Remove(abs))
	s.ReconcileAgainstDisk()

	_, ok := s.PathForID("gone-id")
	assert.False(t, ok)
}

func TestContentPrefixHashStableForSameContent(t *testing.T) {
	root := t.TempDir()
	a := writeFile(t, root, "a.bin", "same content here")
	b := writeFile(t, root, "b.bin", "same content here")

	ha, err := ContentPrefixHash(a)
	require.NoError(t, err)
	hb, err := ContentPrefixHash(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}
