package vfs

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"pyscope/internal/engine/query"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestResolveDeduplicates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mod.py")
	writeFile(t, path, "x = 1\n")

	reg := NewRegistry(query.New())
	a := reg.Resolve(path)
	b := reg.Resolve(path)
	if a != b {
		t.Fatal("same path resolved to two different handles")
	}
	c := reg.Resolve(filepath.Join(dir, ".", "mod.py"))
	if a != c {
		t.Fatal("uncleaned path resolved to a different handle")
	}
}

func TestTouchIdempotence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mod.py")
	writeFile(t, path, "x = 1\n")

	e := query.New()
	reg := NewRegistry(e)
	f := reg.Resolve(path)

	var computes atomic.Int32
	meta := query.NewQuery(e, "meta", func(ctx *query.Ctx, file *File) (Metadata, error) {
		computes.Add(1)
		return reg.Metadata(ctx, file)
	})

	before, err := meta.Get(context.Background(), f)
	if err != nil {
		t.Fatal(err)
	}
	rev := e.Revision()

	reg.Touch(f)
	reg.Touch(f)
	if e.Revision() != rev {
		t.Fatal("touch without a filesystem change advanced the revision")
	}

	after, err := meta.Get(context.Background(), f)
	if err != nil {
		t.Fatal(err)
	}
	if !after.Revision.Equal(before.Revision) {
		t.Fatal("touch without a filesystem change altered the file revision")
	}
	if n := computes.Load(); n != 1 {
		t.Fatalf("touch without a change triggered downstream recomputation (%d computes)", n)
	}
}

func TestTouchPicksUpModification(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mod.py")
	writeFile(t, path, "x = 1\n")

	e := query.New()
	reg := NewRegistry(e)
	f := reg.Resolve(path)
	before, _ := reg.Metadata(context.Background(), f)

	writeFile(t, path, "x = 2\n")
	// Filesystems with coarse timestamps need an explicit distinct mtime.
	if err := os.Chtimes(path, time.Now(), time.Now().Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	reg.Touch(f)

	after, _ := reg.Metadata(context.Background(), f)
	if after.Revision.Equal(before.Revision) {
		t.Fatal("modification did not change the revision")
	}
	if after.Status != StatusExists {
		t.Fatalf("expected exists, got %v", after.Status)
	}
}

func TestStatFailureMeansDeleted(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.py")
	writeFile(t, path, "x = 1\n")

	reg := NewRegistry(query.New())
	f := reg.Resolve(path)

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	reg.Touch(f)

	md, _ := reg.Metadata(context.Background(), f)
	if md.Status != StatusDeleted {
		t.Fatalf("expected deleted after stat failure, got %v", md.Status)
	}
	if !md.Revision.IsZero() {
		t.Fatalf("deleted file must carry the zero revision, got %v", md.Revision)
	}
}

func TestResolveMissingPath(t *testing.T) {
	reg := NewRegistry(query.New())
	f := reg.Resolve(filepath.Join(t.TempDir(), "never.py"))
	md, _ := reg.Metadata(context.Background(), f)
	if md.Status != StatusDeleted {
		t.Fatalf("missing path should resolve as deleted, got %v", md.Status)
	}
}

func TestVirtualDocuments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buf.py")
	reg := NewRegistry(query.New())

	f := reg.OpenVirtual(path, "x = 1\n")
	md, _ := reg.Metadata(context.Background(), f)
	if md.Revision.Kind() != RevisionContentHash {
		t.Fatalf("virtual file should carry a content-hash revision, got %v", md.Revision.Kind())
	}
	if got := reg.ReadSource(f); got != "x = 1\n" {
		t.Fatalf("unexpected virtual content %q", got)
	}

	reg.OpenVirtual(path, "x = 2\n")
	md2, _ := reg.Metadata(context.Background(), f)
	if md2.Revision.Equal(md.Revision) {
		t.Fatal("virtual edit did not change the revision")
	}

	// Same content hashes to the same revision.
	reg.OpenVirtual(path, "x = 1\n")
	md3, _ := reg.Metadata(context.Background(), f)
	if !md3.Revision.Equal(md.Revision) {
		t.Fatal("identical virtual content produced a different revision")
	}

	reg.CloseVirtual(path)
	md4, _ := reg.Metadata(context.Background(), f)
	if md4.Status != StatusDeleted {
		t.Fatalf("closing a virtual doc with no disk file should leave it deleted, got %v", md4.Status)
	}
}

func TestRevisionKindsNeverEqual(t *testing.T) {
	now := time.Now()
	if ModTimeRevision(now).Equal(ContentRevision([]byte("x"))) {
		t.Fatal("mtime and content revisions compared equal")
	}
	if ModTimeRevision(now).IsZero() {
		t.Fatal("mtime revision reported as zero")
	}
}

func TestReadSourceFailureIsEmpty(t *testing.T) {
	reg := NewRegistry(query.New())
	f := reg.Resolve(filepath.Join(t.TempDir(), "absent.py"))
	if got := reg.ReadSource(f); got != "" {
		t.Fatalf("expected empty source for missing file, got %q", got)
	}
}

func TestDirListing(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.py"), "")
	writeFile(t, filepath.Join(dir, "b.py"), "")

	e := query.New()
	reg := NewRegistry(e)

	l, err := reg.DirListing(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if !l.Exists || !l.Contains("a.py") || !l.Contains("b.py") || l.Contains("c.py") {
		t.Fatalf("unexpected listing %+v", l)
	}

	rev := e.Revision()
	reg.RefreshDir(dir)
	if e.Revision() != rev {
		t.Fatal("refreshing an unchanged directory advanced the revision")
	}

	writeFile(t, filepath.Join(dir, "c.py"), "")
	reg.RefreshDir(dir)
	if e.Revision() == rev {
		t.Fatal("adding an entry did not advance the revision")
	}
	l2, err := reg.DirListing(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if !l2.Contains("c.py") {
		t.Fatalf("refreshed listing missing new entry: %+v", l2)
	}
}

func TestRefreshUnlistedDirIsNoop(t *testing.T) {
	e := query.New()
	reg := NewRegistry(e)
	rev := e.Revision()
	reg.RefreshDir(t.TempDir())
	if e.Revision() != rev {
		t.Fatal("refreshing a never-listed directory advanced the revision")
	}
}

func TestMissingDirListing(t *testing.T) {
	reg := NewRegistry(query.New())
	l, err := reg.DirListing(context.Background(), filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatal(err)
	}
	if l.Exists || len(l.Names) != 0 {
		t.Fatalf("expected absent listing, got %+v", l)
	}
}
