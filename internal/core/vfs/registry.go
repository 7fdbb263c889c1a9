package vfs

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"pyscope/internal/engine/query"
	"pyscope/internal/shared/observability"
)

// Registry deduplicates paths into File handles and owns the engine inputs
// backing them. Locks are held only for map bookkeeping, never across I/O,
// so unrelated paths do not contend.
type Registry struct {
	engine *query.Engine

	mu      sync.Mutex
	files   map[string]*File
	virtual map[string]string
	listed  map[string]bool

	meta    *query.Input[string, Metadata]
	listing *query.Input[string, DirListing]
}

// DirListing is the entry-name view of one directory, tracked as an input so
// that module resolution can depend on "did this directory's contents
// change" rather than on individual probed paths.
type DirListing struct {
	Names  []string // sorted
	Exists bool
}

func (l DirListing) Contains(name string) bool {
	i := sort.SearchStrings(l.Names, name)
	return i < len(l.Names) && l.Names[i] == name
}

func NewRegistry(e *query.Engine) *Registry {
	return &Registry{
		engine:  e,
		files:   make(map[string]*File),
		virtual: make(map[string]string),
		listed:  make(map[string]bool),
		meta: query.NewInput[string, Metadata](e, "file.metadata",
			query.WithEquals(func(a, b Metadata) bool { return a == b })),
		listing: query.NewInput[string, DirListing](e, "dir.listing"),
	}
}

// Resolve returns the handle for path, creating and stat-ing it on first
// sight. Concurrent resolutions of the same path share one stat and always
// return the same handle.
func (r *Registry) Resolve(path string) *File {
	canon := canonicalPath(path)

	r.mu.Lock()
	f, ok := r.files[canon]
	if !ok {
		f = &File{path: canon}
		r.files[canon] = f
	}
	count := len(r.files)
	r.mu.Unlock()

	if !ok {
		observability.RegistryFiles.Set(float64(count))
	}
	f.init.Do(func() { r.Touch(f) })
	return f
}

// Lookup returns the handle for path only if it was resolved before.
func (r *Registry) Lookup(path string) (*File, bool) {
	canon := canonicalPath(path)
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[canon]
	return f, ok
}

// Touch re-reads the file's metadata from disk (or from its open in-memory
// document) and updates the backing input. Any stat failure means the file
// is gone: deletion is the result, not an error. Touching with no actual
// change is a no-op for the engine.
func (r *Registry) Touch(f *File) {
	r.mu.Lock()
	content, isVirtual := r.virtual[f.path]
	r.mu.Unlock()

	if isVirtual {
		r.meta.Set(f.path, Metadata{
			Revision: ContentRevision([]byte(content)),
			Status:   StatusExists,
		})
		return
	}

	info, err := os.Stat(f.path)
	if err != nil {
		r.meta.Set(f.path, Metadata{Status: StatusDeleted})
		return
	}
	r.meta.Set(f.path, Metadata{
		Revision:    ModTimeRevision(info.ModTime()),
		Permissions: info.Mode(),
		Status:      StatusExists,
	})
}

// Delete marks the file deleted with a zeroed revision.
func (r *Registry) Delete(f *File) {
	r.meta.Set(f.path, Metadata{Status: StatusDeleted})
}

// Metadata reads the file's current metadata, recording the read as a
// dependency of the calling computation.
func (r *Registry) Metadata(ctx context.Context, f *File) (Metadata, error) {
	return r.meta.Get(ctx, f.path)
}

// ReadSource returns the file's full content. I/O failures yield empty text:
// the parser turns an empty or truncated module into ordinary diagnostics,
// which is where the problem belongs. Callers must read Metadata first so
// the content is covered by the revision dependency.
func (r *Registry) ReadSource(f *File) string {
	r.mu.Lock()
	content, isVirtual := r.virtual[f.path]
	r.mu.Unlock()
	if isVirtual {
		return content
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return ""
	}
	return string(data)
}

// OpenVirtual installs an in-memory document for path, shadowing the disk
// file. Its revision is a content hash, so editor keystrokes invalidate
// precisely and never compare equal to any mtime marker.
func (r *Registry) OpenVirtual(path, content string) *File {
	canon := canonicalPath(path)

	r.mu.Lock()
	f, ok := r.files[canon]
	if !ok {
		f = &File{path: canon}
		r.files[canon] = f
	}
	r.virtual[canon] = content
	count := len(r.files)
	r.mu.Unlock()

	if !ok {
		observability.RegistryFiles.Set(float64(count))
	}
	f.init.Do(func() {})
	r.meta.Set(canon, Metadata{
		Revision: ContentRevision([]byte(content)),
		Status:   StatusExists,
	})
	return f
}

// CloseVirtual drops the in-memory document and reverts the handle to
// whatever is on disk.
func (r *Registry) CloseVirtual(path string) {
	canon := canonicalPath(path)
	r.mu.Lock()
	delete(r.virtual, canon)
	f, ok := r.files[canon]
	r.mu.Unlock()
	if ok {
		r.Touch(f)
	}
}

// DirListing reads the sorted entry names of dir, recording a dependency on
// the listing. The first read of a directory populates the input; later
// refreshes (watcher events) advance it only when the name set changed.
func (r *Registry) DirListing(ctx context.Context, dir string) (DirListing, error) {
	canon := canonicalPath(dir)

	r.mu.Lock()
	known := r.listed[canon]
	r.mu.Unlock()

	if !known {
		l := readListing(canon)
		r.listing.Set(canon, l)
		r.mu.Lock()
		r.listed[canon] = true
		r.mu.Unlock()
	}
	return r.listing.Get(ctx, canon)
}

// RefreshDir re-reads a directory's entry names after a change event. It is
// a no-op for directories nothing ever listed.
func (r *Registry) RefreshDir(dir string) {
	canon := canonicalPath(dir)
	r.mu.Lock()
	known := r.listed[canon]
	r.mu.Unlock()
	if !known {
		return
	}
	r.listing.Set(canon, readListing(canon))
}

// Files returns a snapshot of all handles resolved so far.
func (r *Registry) Files() []*File {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*File, 0, len(r.files))
	for _, f := range r.files {
		out = append(out, f)
	}
	return out
}

func readListing(dir string) DirListing {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return DirListing{}
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return DirListing{Names: names, Exists: true}
}

func canonicalPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}
