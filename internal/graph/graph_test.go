package graph

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeNote(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestParseLinksExtractsAllForms(t *testing.T) {
	text := "See [[Target]], ![[Embed]], [[Target#Heading]], [[Target#^block1]], [[Target|alias]]."
	links := ParseLinks(text, "note.md")
	require.Len(t, links, 5)
	assert.Equal(t, "Target", links[0].Title)
	assert.True(t, links[1].Embed)
	assert.Equal(t, "Embed", links[1].Title)
	assert.Equal(t, "Heading", links[2].Heading)
	assert.Equal(t, "block1", links[3].BlockID)
	assert.Equal(t, "alias", links[4].Display)
}

func TestParseLinksIgnoresFencedCodeBlocks(t *testing.T) {
	text := "before\n```\n[[NotALink]]\n```\nafter [[RealLink]]"
	links := ParseLinks(text, "note.md")
	require.Len(t, links, 1)
	assert.Equal(t, "RealLink", links[0].Title)
}

func TestParseLinksIgnoresInlineCodeAndComments(t *testing.T) {
	text := "`[[CodeLink]]` and %%[[CommentLink]]%% but [[Real]]"
	links := ParseLinks(text, "note.md")
	require.Len(t, links, 1)
	assert.Equal(t, "Real", links[0].Title)
}

func TestRebuildPopulatesBacklinksCaseInsensitive(t *testing.T) {
	root := t.TempDir()
	writeNote(t, root, "a.md", "links to [[Target Note]]")
	writeNote(t, root, "b.md", "also links to [[target note]]")
	writeNote(t, root, "target note.md", "the target itself")

	idx := New(root)
	require.NoError(t, idx.Rebuild())

	back := idx.Backlinks("Target Note")
	require.Len(t, back, 2)
	froms := []string{back[0].From, back[1].From}
	assert.ElementsMatch(t, []string{"a.md", "b.md"}, froms)
}

func TestRebuildSkipsDotAndTrashDirs(t *testing.T) {
	root := t.TempDir()
	writeNote(t, root, ".git/ignored.md", "[[ShouldNotCount]]")
	writeNote(t, root, ".trash/ignored.md", "[[ShouldNotCount]]")
	writeNote(t, root, "kept.md", "[[ShouldNotCount]]")

	idx := New(root)
	require.NoError(t, idx.Rebuild())
	assert.Len(t, idx.Backlinks("ShouldNotCount"), 1)
}

func TestRebuildFileUpdatesIncrementally(t *testing.T) {
	root := t.TempDir()
	writeNote(t, root, "a.md", "[[Old]]")
	idx := New(root)
	require.NoError(t, idx.Rebuild())
	require.Len(t, idx.Backlinks("Old"), 1)

	idx.RebuildFile("a.md", "[[New]]")
	assert.Len(t, idx.Backlinks("Old"), 0)
	assert.Len(t, idx.Backlinks("New"), 1)
}

func TestOutboundReturnsLinksForPath(t *testing.T) {
	root := t.TempDir()
	writeNote(t, root, "a.md", "[[One]] and [[Two]]")
	idx := New(root)
	require.NoError(t, idx.Rebuild())
	out := idx.Outbound("a.md")
	require.Len(t, out, 2)
}

func TestRenameTitleRewritesReferencesAndIndex(t *testing.T) {
	root := t.TempDir()
	writeNote(t, root, "a.md", "see [[Old Title]] and ![[Old Title|alias]]")
	writeNote(t, root, "untouched.md", "no links here")
	idx := New(root)
	require.NoError(t, idx.Rebuild())

	n, err := idx.RenameTitle("Old Title", "New Title")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	data, err := os.ReadFile(filepath.Join(root, "a.md"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "[[New Title]]")
	assert.Contains(t, string(data), "![[New Title|alias]]")
	assert.Empty(t, idx.Backlinks("Old Title"))
	assert.Len(t, idx.Backlinks("New Title"), 2)
}

func TestRenamePathRewritesMarkdownLinks(t *testing.T) {
	root := t.TempDir()
	writeNote(t, root, "notes/a.md", "see [link](../old.md#section)")
	writeNote(t, root, "old.md", "moved")
	idx := New(root)
	require.NoError(t, idx.Rebuild())

	n, err := idx.RenamePath("old.md", "archive/new.md")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	data, err := os.ReadFile(filepath.Join(root, "notes/a.md"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "../archive/new.md#section")
}
