package hostapi

import (
	"github.com/arkanvault/corevault/internal/graph"
	"github.com/arkanvault/corevault/internal/permission"
	"github.com/arkanvault/corevault/internal/vaulterr"
)

// GraphAPI implements the graph.* namespace (spec's Capability list
// names graph read/write/query but §4.H's HostAPI summary never gives
// it dedicated operations — this supplements that gap): backlink
// lookups and outbound-link listing behind graph_read, batched backlink
// lookups for a list of titles behind graph_query (no title/path
// search), and title/path rename propagation behind graph_write.
//
// Grounded on the teacher's wikilinks.go, here exposed as a plugin-
// callable surface rather than a CLI-internal helper, following the
// requireCap-then-operate shape every other internal/hostapi namespace
// uses.
type GraphAPI struct {
	idx   *graph.Index
	perms *permission.Manager
}

// NewGraphAPI returns a GraphAPI backed by idx, enforcing capabilities
// via perms.
func NewGraphAPI(idx *graph.Index, perms *permission.Manager) *GraphAPI {
	return &GraphAPI{idx: idx, perms: perms}
}

func (g *GraphAPI) requireCap(pluginID string, kind permission.Kind) error {
	return g.perms.RequireCapability(pluginID, permission.Capability{Kind: kind})
}

// Backlinks returns every link referencing title, case-insensitive.
func (g *GraphAPI) Backlinks(pluginID, title string) ([]graph.Link, error) {
	if err := g.requireCap(pluginID, permission.GraphRead); err != nil {
		return nil, err
	}
	return g.idx.Backlinks(title), nil
}

// Outbound returns every link relPath's text contains.
func (g *GraphAPI) Outbound(pluginID, relPath string) ([]graph.Link, error) {
	if err := g.requireCap(pluginID, permission.GraphRead); err != nil {
		return nil, err
	}
	return g.idx.Outbound(relPath), nil
}

// Rebuild recomputes the whole index from disk. Exposed as a graph_write
// operation since it is the one way a plugin can force the derived index
// back in sync with the vault after bulk changes it made outside the
// watcher's notice (e.g. a batch vault.write_binary import).
func (g *GraphAPI) Rebuild(pluginID string) error {
	if err := g.requireCap(pluginID, permission.GraphWrite); err != nil {
		return err
	}
	return g.idx.Rebuild()
}

// RenameTitle rewrites every wikilink referencing oldTitle to newTitle
// across the vault and returns the number of files changed.
func (g *GraphAPI) RenameTitle(pluginID, oldTitle, newTitle string) (int, error) {
	if err := g.requireCap(pluginID, permission.GraphWrite); err != nil {
		return 0, err
	}
	if oldTitle == "" || newTitle == "" {
		return 0, vaulterr.New(vaulterr.InvalidPath, "rename_title requires non-empty titles")
	}
	return g.idx.RenameTitle(oldTitle, newTitle)
}

// RenamePath rewrites markdown-style links that resolve to oldRelPath so
// they resolve to newRelPath instead, and returns the number of files
// changed.
func (g *GraphAPI) RenamePath(pluginID, oldRelPath, newRelPath string) (int, error) {
	if err := g.requireCap(pluginID, permission.GraphWrite); err != nil {
		return 0, err
	}
	return g.idx.RenamePath(oldRelPath, newRelPath)
}

// Query returns every backlink match across a set of titles at once,
// keyed by title, supporting a plugin issuing one graph_query call
// instead of one Backlinks call per candidate title.
func (g *GraphAPI) Query(pluginID string, titles []string) (map[string][]graph.Link, error) {
	if err := g.requireCap(pluginID, permission.GraphQuery); err != nil {
		return nil, err
	}
	results := make(map[string][]graph.Link, len(titles))
	for _, title := range titles {
		if links := g.idx.Backlinks(title); len(links) > 0 {
			results[title] = links
		}
	}
	return results, nil
}
