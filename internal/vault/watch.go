package vault

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/elcuervo/otx/internal/cache"
)

// renameWindow is how long a rename waits for the matching create before it
// is reported as a delete.
const renameWindow = 100 * time.Millisecond

// tree is what the watcher knows is on disk: watched directories and the
// markdown documents below them, as vault paths.
type tree struct {
	dirs map[string]bool
	docs map[string]bool
}

func newTree() *tree {
	return &tree{dirs: make(map[string]bool), docs: make(map[string]bool)}
}

// under returns the documents below dir in path order.
func (t *tree) under(dir string) []string {
	prefix := dir + "/"
	var paths []string
	for p := range t.docs {
		if strings.HasPrefix(p, prefix) {
			paths = append(paths, p)
		}
	}
	slices.Sort(paths)
	return paths
}

// forget drops dir and everything below it.
func (t *tree) forget(dir string) {
	prefix := dir + "/"
	delete(t.dirs, dir)
	for d := range t.dirs {
		if strings.HasPrefix(d, prefix) {
			delete(t.dirs, d)
		}
	}
	for p := range t.docs {
		if strings.HasPrefix(p, prefix) {
			delete(t.docs, p)
		}
	}
}

// pendingRename is the old side of a rename waiting for its create.
type pendingRename struct {
	path string
	dir  bool
}

// Watch reports changes to markdown documents until ctx is done. Once every
// directory is watched a single Resolved event is sent. Renaming or moving a
// directory is reported per document it holds.
func (v *Vault) Watch(ctx context.Context, events chan<- cache.Event) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	known := newTree()
	if _, err := v.addTree(w, v.root, known); err != nil {
		return err
	}

	send := func(ev cache.Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !send(cache.Event{Kind: cache.Resolved}) {
		return nil
	}

	var (
		pending pendingRename
		expire  <-chan time.Time
		timer   *time.Timer
	)

	settle := func() pendingRename {
		p := pending
		pending, expire = pendingRename{}, nil
		if timer != nil {
			timer.Stop()
		}
		return p
	}

	// gone reports everything below a directory that left the vault.
	gone := func(dir string) bool {
		for _, p := range known.under(dir) {
			if !send(cache.Event{Kind: cache.Deleted, Path: p}) {
				return false
			}
		}
		known.forget(dir)
		return true
	}

	flush := func() bool {
		if pending.path == "" {
			return true
		}
		p := settle()
		if p.dir {
			return gone(p.path)
		}
		delete(known.docs, p.path)
		return send(cache.Event{Kind: cache.Deleted, Path: p.path})
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-expire:
			if !flush() {
				return nil
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			v.logger.Warn("watch error", "err", err)

		case event, ok := <-w.Events:
			if !ok {
				return nil
			}

			rel, err := v.Rel(event.Name)
			if err != nil || rel == "." {
				continue
			}

			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if isHidden(info.Name()) {
						continue
					}
					created, err := v.addTree(w, event.Name, known)
					if err != nil {
						v.logger.Warn("watch directory", "path", rel, "err", err)
					}
					if !v.sendCreatedDir(known, created, rel, pending, settle, send) {
						return nil
					}
					continue
				}
			}

			if event.Has(fsnotify.Rename) {
				// a moved directory is reported by its parent and by itself
				if pending.path == rel {
					continue
				}
				isDir := known.dirs[rel]
				if !isDir && !isMarkdown(event.Name) {
					continue
				}
				if !flush() {
					return nil
				}
				pending = pendingRename{path: rel, dir: isDir}
				timer = time.NewTimer(renameWindow)
				expire = timer.C
				continue
			}

			if event.Has(fsnotify.Remove) && known.dirs[rel] {
				if !gone(rel) {
					return nil
				}
				continue
			}

			if !isMarkdown(event.Name) {
				continue
			}

			var ev cache.Event
			switch {
			case event.Has(fsnotify.Create) && pending.path != "" && !pending.dir:
				old := settle()
				delete(known.docs, old.path)
				known.docs[rel] = true
				ev = cache.Event{Kind: cache.Renamed, OldPath: old.path, Path: rel}
			case event.Has(fsnotify.Create):
				known.docs[rel] = true
				ev = cache.Event{Kind: cache.Created, Path: rel}
			case event.Has(fsnotify.Write):
				ev = cache.Event{Kind: cache.Changed, Path: rel}
			case event.Has(fsnotify.Remove):
				delete(known.docs, rel)
				ev = cache.Event{Kind: cache.Deleted, Path: rel}
			default:
				continue
			}

			if !send(ev) {
				return nil
			}
		}
	}
}

// sendCreatedDir reports the documents of a directory that appeared. When it
// completes a pending directory rename, documents found at the same place
// under the new name are reported as renamed and the rest of the old
// directory as deleted.
func (v *Vault) sendCreatedDir(known *tree, created []string, dir string, pending pendingRename, settle func() pendingRename, send func(cache.Event) bool) bool {
	paired := make(map[string]bool)

	if pending.dir {
		old := settle().path
		for _, p := range known.under(old) {
			moved := dir + strings.TrimPrefix(p, old)
			ev := cache.Event{Kind: cache.Deleted, Path: p}
			if slices.Contains(created, moved) {
				ev = cache.Event{Kind: cache.Renamed, OldPath: p, Path: moved}
				paired[moved] = true
			}
			if !send(ev) {
				return false
			}
		}
		known.forget(old)
		v.logger.Debug("directory renamed", "from", old, "to", dir)
	}

	for _, p := range created {
		if paired[p] {
			continue
		}
		if !send(cache.Event{Kind: cache.Created, Path: p}) {
			return false
		}
	}
	return true
}

// addTree watches dir and every non-hidden directory below it and records
// them in known. Markdown documents not known before are returned.
func (v *Vault) addTree(w *fsnotify.Watcher, dir string, known *tree) ([]string, error) {
	var created []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}

		rel, relErr := v.Rel(path)
		if relErr != nil {
			return nil
		}

		if !d.IsDir() {
			if isMarkdown(d.Name()) && !known.docs[rel] {
				known.docs[rel] = true
				created = append(created, rel)
			}
			return nil
		}

		if path != v.root && isHidden(d.Name()) {
			return filepath.SkipDir
		}

		if rel != "." {
			known.dirs[rel] = true
		}
		return w.Add(path)
	})

	return created, err
}
