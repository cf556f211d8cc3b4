package vaultwatch

import (
	"time"

	"github.com/arkanvault/corevault/internal/hostapi"
)

// handleRemoved records rel as a pending delete, capturing its
// last-known identifier and content hash (taken from the most recent
// Create/Write event we saw for it, since the file is typically already
// gone by the time Remove is delivered). If no Created match arrives
// within CoalesceWindow, the pending delete flushes as a standalone
// Deleted event.
func (w *Watcher) handleRemoved(rel string) {
	w.mu.Lock()
	id := w.lastID[rel]
	hash := w.lastHash[rel]
	delete(w.lastID, rel)
	delete(w.lastHash, rel)

	dir := parentDir(rel)
	pd := pendingDelete{path: rel, id: id, hash: hash, at: time.Now()}
	pd.timer = time.AfterFunc(CoalesceWindow, func() { w.flushPendingDelete(dir, rel) })
	w.pendingDels[dir] = append(w.pendingDels[dir], pd)
	w.mu.Unlock()
}

// handleCreated looks for a pending delete in the same directory whose
// identifier or content hash matches the new file, coalescing the pair
// into a Renamed event. Otherwise it's reported as a fresh Created.
func (w *Watcher) handleCreated(rel string) {
	dir := parentDir(rel)
	newHash, haveHash := w.contentHash(rel)

	w.mu.Lock()
	dels := w.pendingDels[dir]
	matchIdx := -1
	for i, pd := range dels {
		if pd.id != "" {
			if newID, ok := w.ids.IDForPath(rel); ok && newID == pd.id {
				matchIdx = i
				break
			}
		}
		if haveHash && pd.hash == newHash {
			matchIdx = i
			break
		}
	}
	var matched pendingDelete
	if matchIdx >= 0 {
		matched = dels[matchIdx]
		matched.timer.Stop()
		w.pendingDels[dir] = append(dels[:matchIdx], dels[matchIdx+1:]...)
	}
	w.mu.Unlock()

	if matchIdx >= 0 {
		w.completeRename(matched.path, rel)
		return
	}

	w.noteCreated(rel)
	if isMarkdown(rel) {
		if _, err := w.ids.EnsureID(rel); err != nil {
			w.logger.Warn().Err(err).Str("path", rel).Msg("vaultwatch: ensure id for new file")
		}
	}
	w.dispatch(hostapi.WatchEvent{Path: rel, Kind: hostapi.EventCreated, Timestamp: time.Now()})
}

func (w *Watcher) handleModified(rel string) {
	w.noteCreated(rel) // refresh the last-known id/hash cache, same bookkeeping as a create
	w.dispatch(hostapi.WatchEvent{Path: rel, Kind: hostapi.EventModified, Timestamp: time.Now()})
}

// noteCreated refreshes the id/content-hash cache used to correlate a
// future delete against this path.
func (w *Watcher) noteCreated(rel string) {
	id, _ := w.ids.IDForPath(rel)
	hash, ok := w.contentHash(rel)

	w.mu.Lock()
	if id != "" {
		w.lastID[rel] = id
	}
	if ok {
		w.lastHash[rel] = hash
	}
	w.mu.Unlock()
}

func (w *Watcher) completeRename(oldPath, newPath string) {
	if err := w.ids.Rebind(oldPath, newPath); err != nil {
		// The delete's id wasn't tracked (e.g. a non-note file matched
		// purely by content hash with no identity entry) — nothing to
		// rebind, the rename event still stands.
		w.logger.Debug().Err(err).Str("from", oldPath).Str("to", newPath).Msg("vaultwatch: rebind skipped")
	}
	w.noteCreated(newPath)
	w.dispatch(hostapi.WatchEvent{Path: newPath, Kind: hostapi.EventRenamed, Timestamp: time.Now()})
}

func (w *Watcher) flushPendingDelete(dir, rel string) {
	w.mu.Lock()
	dels := w.pendingDels[dir]
	idx := -1
	for i, pd := range dels {
		if pd.path == rel {
			idx = i
			break
		}
	}
	if idx < 0 {
		w.mu.Unlock()
		return // already matched and removed by handleCreated
	}
	w.pendingDels[dir] = append(dels[:idx], dels[idx+1:]...)
	w.mu.Unlock()

	w.dispatch(hostapi.WatchEvent{Path: rel, Kind: hostapi.EventDeleted, Timestamp: time.Now()})
}

func parentDir(rel string) string {
	for i := len(rel) - 1; i >= 0; i-- {
		if rel[i] == '/' {
			return rel[:i]
		}
	}
	return ""
}
