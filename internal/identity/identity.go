// Package identity maintains the durable, bidirectional mapping between
// vault files and note identifiers (spec §4.C). Identifiers are assigned
// on first sight, preserved across renames, and recoverable purely by
// rescanning the vault; an optional bbolt snapshot only accelerates cold
// start.
//
// Grounded on the teacher's vault.go path-resolution helpers and on
// original_source's identity manager (ensure_note_id / get_note_id /
// update_note_path), adapted from an async Rust RwLock-guarded manager
// into a Go sync.RWMutex-guarded Store with bbolt-backed persistence.
package identity

import (
	"context"
	"crypto/sha256"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.etcd.io/bbolt"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/arkanvault/corevault/internal/frontmatter"
	"github.com/arkanvault/corevault/internal/noteid"
	"github.com/arkanvault/corevault/internal/vaulterr"
)

// Status describes the outcome of ensure_id for one file during a scan.
type Status string

const (
	Assigned  Status = "assigned"
	Preserved Status = "preserved"
	Skipped   Status = "skipped"
	ScanError Status = "error"
)

// ScanEntry is one line of a scan report.
type ScanEntry struct {
	Path   string
	Status Status
	Reason string
	Err    error
}

// ScanReport summarizes a full vault walk.
type ScanReport struct {
	Entries  []ScanEntry
	Assigned int
	Preserved int
	Skipped  int
	Errors   int
	Duration time.Duration
}

// DefaultFanout is the default bounded-parallelism walk width for ScanVault.
const DefaultFanout = 4

const contentPrefixSize = 4096 // bytes hashed for rename-by-content fallback

// Store is the in-memory, mutex-guarded identity index. A Store is safe
// for concurrent use.
type Store struct {
	mu      sync.RWMutex
	root    string
	forward map[string]string // vault-relative path -> id
	reverse map[string]string // id -> vault-relative path
	gen     *noteid.Generator
}

// New returns an empty Store rooted at vaultRoot. Callers typically follow
// with ScanVault (or LoadSnapshot + ScanVault to reconcile) before serving
// lookups.
func New(vaultRoot string, gen *noteid.Generator) *Store {
	if gen == nil {
		gen = noteid.NewGenerator()
	}
	return &Store{
		root:    vaultRoot,
		forward: make(map[string]string),
		reverse: make(map[string]string),
		gen:     gen,
	}
}

func (s *Store) absPath(rel string) string {
	return filepath.Join(s.root, filepath.FromSlash(rel))
}

func sidecarPath(path string) string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	return filepath.Join(dir, "."+base+".uuid")
}

func isMarkdown(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".md")
}

// EnsureID returns path's identifier, assigning and persisting a fresh one
// if none exists yet. path is vault-relative.
func (s *Store) EnsureID(path string) (id string, err error) {
	s.mu.RLock()
	if cached, ok := s.forward[path]; ok {
		s.mu.RUnlock()
		return cached, nil
	}
	s.mu.RUnlock()

	abs := s.absPath(path)

	if isMarkdown(path) {
		id, assigned, err := s.ensureMarkdownID(abs)
		if err != nil {
			return "", err
		}
		s.record(path, id)
		_ = assigned
		return id, nil
	}

	id, err := s.ensureSidecarID(abs)
	if err != nil {
		return "", err
	}
	s.record(path, id)
	return id, nil
}

func (s *Store) ensureMarkdownID(abs string) (id string, assigned bool, err error) {
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", false, vaulterr.Wrap(vaulterr.IoError, err, "read %s", abs)
	}
	doc, body := frontmatter.Parse(string(data))
	if doc != nil && doc.ID != "" {
		return doc.ID, false, nil
	}
	if doc == nil {
		doc = &frontmatter.Document{}
	}
	newID := s.gen.GenerateString()
	doc.ID = newID
	if err := frontmatter.WriteAtomic(abs, doc, body); err != nil {
		// On-disk file is left untouched by WriteAtomic's temp+rename
		// discipline; surface the error without touching the cache.
		return "", false, vaulterr.Wrap(vaulterr.IoError, err, "write front-matter for %s", abs)
	}
	return newID, true, nil
}

func (s *Store) ensureSidecarID(abs string) (string, error) {
	sc := sidecarPath(abs)
	if data, err := os.ReadFile(sc); err == nil {
		id := strings.TrimSpace(string(data))
		if id != "" {
			return id, nil
		}
	} else if !os.IsNotExist(err) {
		return "", vaulterr.Wrap(vaulterr.IoError, err, "read sidecar %s", sc)
	}

	newID := s.gen.GenerateString()
	if err := frontmatter.WriteFileAtomic(sc, []byte(newID)); err != nil {
		return "", vaulterr.Wrap(vaulterr.IoError, err, "write sidecar %s", sc)
	}
	return newID, nil
}

func (s *Store) record(path, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forward[path] = id
	s.reverse[id] = path
}

// IDForPath returns the cached identifier for path, falling through to a
// disk parse (without assigning a new id) on a cache miss.
func (s *Store) IDForPath(path string) (string, bool) {
	s.mu.RLock()
	if id, ok := s.forward[path]; ok {
		s.mu.RUnlock()
		return id, true
	}
	s.mu.RUnlock()

	abs := s.absPath(path)
	if isMarkdown(path) {
		data, err := os.ReadFile(abs)
		if err != nil {
			return "", false
		}
		doc, _ := frontmatter.Parse(string(data))
		if doc == nil || doc.ID == "" {
			return "", false
		}
		s.record(path, doc.ID)
		return doc.ID, true
	}

	data, err := os.ReadFile(sidecarPath(abs))
	if err != nil {
		return "", false
	}
	id := strings.TrimSpace(string(data))
	if id == "" {
		return "", false
	}
	s.record(path, id)
	return id, true
}

// PathForID is the reverse lookup, served entirely from the in-memory index.
func (s *Store) PathForID(id string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.reverse[id]
	return p, ok
}

// Rebind updates the forward and reverse maps when the watcher detects a
// rename. It never touches file contents.
func (s *Store) Rebind(oldPath, newPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.forward[oldPath]
	if !ok {
		return vaulterr.New(vaulterr.NotFound, "no identifier tracked for %s", oldPath)
	}
	delete(s.forward, oldPath)
	s.forward[newPath] = id
	s.reverse[id] = newPath
	return nil
}

// ContentPrefixHash returns the SHA-256 digest of the first 4 KiB of path,
// used by the watcher's rename-by-content-similarity fallback when a
// stripped front-matter block leaves no recoverable id.
func ContentPrefixHash(path string) ([32]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return [32]byte{}, err
	}
	defer f.Close()

	buf := make([]byte, contentPrefixSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return [32]byte{}, err
	}
	return sha256.Sum256(buf[:n]), nil
}

// ScanVault walks the vault with bounded parallelism (default
// DefaultFanout), running EnsureID on every regular file and recording a
// per-file status. A parse or write failure on one file never aborts the
// walk.
func (s *Store) ScanVault(ctx context.Context, fanout int) (*ScanReport, error) {
	if fanout <= 0 {
		fanout = DefaultFanout
	}
	start := time.Now()

	var paths []string
	err := filepath.Walk(s.root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == ".vault" || info.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(info.Name(), ".") && strings.HasSuffix(info.Name(), ".uuid") {
			return nil // sidecar files are not themselves scanned
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.IoError, err, "walk vault %s", s.root)
	}

	entries := make([]ScanEntry, len(paths))
	sem := semaphore.NewWeighted(int64(fanout))
	g, gctx := errgroup.WithContext(ctx)

	var acquireErr error
	for i, p := range paths {
		i, p := i, p
		if err := sem.Acquire(gctx, 1); err != nil {
			acquireErr = err
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			entries[i] = s.scanOne(p)
			return nil
		})
	}
	// errgroup.Go errors are never returned by scanOne (failures are
	// recorded per-entry); context cancellation surfaces through the
	// semaphore acquire that stopped scheduling.
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if acquireErr != nil {
		return nil, acquireErr
	}

	report := &ScanReport{Entries: entries, Duration: time.Since(start)}
	for _, e := range entries {
		switch e.Status {
		case Assigned:
			report.Assigned++
		case Preserved:
			report.Preserved++
		case Skipped:
			report.Skipped++
		case ScanError:
			report.Errors++
		}
	}
	return report, nil
}

func (s *Store) scanOne(path string) ScanEntry {
	abs := s.absPath(path)
	info, err := os.Stat(abs)
	if err != nil {
		return ScanEntry{Path: path, Status: ScanError, Err: err}
	}
	if info.IsDir() {
		return ScanEntry{Path: path, Status: Skipped, Reason: "directory"}
	}

	preexisting := false
	if isMarkdown(path) {
		data, rerr := os.ReadFile(abs)
		if rerr == nil {
			doc, _ := frontmatter.Parse(string(data))
			preexisting = doc != nil && doc.ID != ""
		}
	} else {
		if _, rerr := os.Stat(sidecarPath(abs)); rerr == nil {
			preexisting = true
		}
	}

	id, err := s.EnsureID(path)
	if err != nil {
		return ScanEntry{Path: path, Status: ScanError, Err: err}
	}
	if preexisting {
		return ScanEntry{Path: path, Status: Preserved}
	}
	_ = id
	return ScanEntry{Path: path, Status: Assigned}
}

// FindDuplicates returns every identifier held by more than one path.
// Caller policy decides remediation.
func (s *Store) FindDuplicates() map[string][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byID := make(map[string][]string)
	for path, id := range s.forward {
		byID[id] = append(byID[id], path)
	}
	dups := make(map[string][]string)
	for id, paths := range byID {
		if len(paths) > 1 {
			sort.Strings(paths)
			dups[id] = paths
		}
	}
	return dups
}

// --- bbolt-backed snapshot persistence ---

var snapshotBucket = []byte("identity")

// SaveSnapshot persists the current forward map to a bbolt database at
// snapshotPath (conventionally "<vault>/.vault/identity.bin"). The
// snapshot is an acceleration for cold start only: ScanVault remains the
// source of truth and must reconcile against it.
func (s *Store) SaveSnapshot(snapshotPath string) error {
	s.mu.RLock()
	forwardCopy := make(map[string]string, len(s.forward))
	for k, v := range s.forward {
		forwardCopy[k] = v
	}
	s.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(snapshotPath), 0o755); err != nil {
		return vaulterr.Wrap(vaulterr.IoError, err, "create snapshot dir")
	}
	db, err := bbolt.Open(snapshotPath, 0o644, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return vaulterr.Wrap(vaulterr.IoError, err, "open snapshot %s", snapshotPath)
	}
	defer db.Close()

	return db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(snapshotBucket)
		if err != nil {
			return err
		}
		if err := b.ForEach(func(k, _ []byte) error { return b.Delete(k) }); err != nil {
			return err
		}
		for path, id := range forwardCopy {
			if err := b.Put([]byte(path), []byte(id)); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadSnapshot loads a prior snapshot into the store's cache. Discrepancies
// against the live filesystem are not resolved here: callers must follow
// with ScanVault, whose results always win on conflict (disk is
// authoritative).
func (s *Store) LoadSnapshot(snapshotPath string) error {
	db, err := bbolt.Open(snapshotPath, 0o644, &bbolt.Options{Timeout: 5 * time.Second, ReadOnly: true})
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return vaulterr.Wrap(vaulterr.IoError, err, "open snapshot %s", snapshotPath)
	}
	defer db.Close()

	s.mu.Lock()
	defer s.mu.Unlock()

	return db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(snapshotBucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			path, id := string(k), string(v)
			s.forward[path] = id
			s.reverse[id] = path
			return nil
		})
	})
}

// ReconcileAgainstDisk drops any cached path whose file no longer exists
// and any cached id whose on-disk front-matter/sidecar disagrees, favoring
// disk content per the spec's "discrepancies favor disk" rule. Intended to
// run once right after LoadSnapshot and before serving lookups.
func (s *Store) ReconcileAgainstDisk() {
	s.mu.Lock()
	stale := make([]string, 0)
	for path, cachedID := range s.forward {
		abs := s.absPath(path)
		if _, err := os.Stat(abs); err != nil {
			stale = append(stale, path)
			continue
		}
		var diskID string
		if isMarkdown(path) {
			if data, err := os.ReadFile(abs); err == nil {
				if doc, _ := frontmatter.Parse(string(data)); doc != nil {
					diskID = doc.ID
				}
			}
		} else if data, err := os.ReadFile(sidecarPath(abs)); err == nil {
			diskID = strings.TrimSpace(string(data))
		}
		if diskID != cachedID {
			stale = append(stale, path)
		}
	}
	for _, path := range stale {
		id := s.forward[path]
		delete(s.forward, path)
		if s.reverse[id] == path {
			delete(s.reverse, id)
		}
	}
	s.mu.Unlock()
}
