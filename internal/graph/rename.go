package graph

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/arkanvault/corevault/internal/frontmatter"
)

// RenameTitle rewrites every [[oldTitle]]/![[oldTitle]] reference across
// the vault to [[newTitle]], preserving the '!' prefix, '#heading', and
// '|display' portions, and returns the number of files changed. Matching
// is case-insensitive, matching Obsidian's own link resolution.
//
// Grounded on the teacher's replaceWikilinks/updateVaultLinks.
func (idx *Index) RenameTitle(oldTitle, newTitle string) (int, error) {
	pattern := regexp.MustCompile(
		`(?i)(!?)\[\[` + regexp.QuoteMeta(oldTitle) +
			`((?:#[^\]|]*)?)` +
			`((?:\|[^\]]*)?)` +
			`\]\]`)

	modified := 0
	err := filepath.WalkDir(idx.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		name := d.Name()
		if d.IsDir() && (strings.HasPrefix(name, ".") || name == ".trash") {
			return filepath.SkipDir
		}
		if d.IsDir() || !strings.HasSuffix(name, ".md") {
			return nil
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		text := string(data)
		updated := pattern.ReplaceAllString(text, `${1}[[`+newTitle+`${2}${3}]]`)
		if updated == text {
			return nil
		}
		if err := frontmatter.WriteFileAtomic(path, []byte(updated)); err != nil {
			return fmt.Errorf("update wikilinks in %s: %w", path, err)
		}
		rel, _ := filepath.Rel(idx.root, path)
		idx.RebuildFile(rel, updated)
		modified++
		return nil
	})
	return modified, err
}

// RenamePath rewrites markdown-style [text](path.md) links across the
// vault that resolve to oldRelPath so they instead resolve to
// newRelPath, keeping each referencing file's relative path correct, and
// returns the number of files changed.
//
// Grounded on the teacher's updateVaultMdLinks.
func (idx *Index) RenamePath(oldRelPath, newRelPath string) (int, error) {
	oldRelPath = filepath.Clean(oldRelPath)
	newRelPath = filepath.Clean(newRelPath)

	modified := 0
	err := filepath.WalkDir(idx.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		name := d.Name()
		if d.IsDir() && (strings.HasPrefix(name, ".") || name == ".trash") {
			return filepath.SkipDir
		}
		if d.IsDir() || !strings.HasSuffix(name, ".md") {
			return nil
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		text := string(data)
		fileDir, _ := filepath.Rel(idx.root, filepath.Dir(path))

		updated := mdLinkPattern.ReplaceAllStringFunc(text, func(match string) string {
			sub := mdLinkPattern.FindStringSubmatch(match)
			if len(sub) < 3 {
				return match
			}
			linkText, linkTarget := sub[1], sub[2]

			fragment := ""
			if i := strings.Index(linkTarget, "#"); i >= 0 {
				fragment = linkTarget[i:]
				linkTarget = linkTarget[:i]
			}
			if filepath.IsAbs(linkTarget) {
				return match
			}
			resolved := filepath.Clean(filepath.Join(fileDir, linkTarget))
			if resolved != oldRelPath {
				return match
			}
			newTarget, relErr := filepath.Rel(fileDir, newRelPath)
			if relErr != nil {
				return match
			}
			return "[" + linkText + "](" + filepath.ToSlash(filepath.Clean(newTarget)) + fragment + ")"
		})
		if updated == text {
			return nil
		}
		if err := frontmatter.WriteFileAtomic(path, []byte(updated)); err != nil {
			return fmt.Errorf("update links in %s: %w", path, err)
		}
		rel, _ := filepath.Rel(idx.root, path)
		idx.RebuildFile(rel, updated)
		modified++
		return nil
	})
	return modified, err
}
