// # internal/core/watcher/watcher_test.go
package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewWatcher_RejectsNilCallback(t *testing.T) {
	w, err := NewWatcher(100*time.Millisecond, nil, nil, nil)
	if err == nil {
		t.Fatal("expected error for nil callback")
	}
	if !errors.Is(err, os.ErrInvalid) {
		t.Fatalf("expected os.ErrInvalid, got %v", err)
	}
	if w != nil {
		t.Fatal("expected nil watcher when callback is invalid")
	}
}

func TestNewWatcher_RejectsBadPattern(t *testing.T) {
	_, err := NewWatcher(100*time.Millisecond, []string{"["}, nil, func([]string) {})
	if err == nil {
		t.Fatal("expected error for invalid exclude pattern")
	}
}

func TestWatcher(t *testing.T) {
	tmpDir := t.TempDir()

	changedFiles := make(chan []string, 4)
	w, err := NewWatcher(100*time.Millisecond, []string{"exclude_dir"}, []string{"generated_*"}, func(paths []string) {
		changedFiles <- paths
	})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := w.Watch([]string{tmpDir}); err != nil {
		t.Fatal(err)
	}

	// Create a file
	testFile := filepath.Join(tmpDir, "main.py")
	os.WriteFile(testFile, []byte("x = 1\n"), 0644)

	select {
	case paths := <-changedFiles:
		found := false
		for _, p := range paths {
			if p == testFile {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected to find %s in changed files %v", testFile, paths)
		}
	case <-time.After(2 * time.Second):
		t.Error("Timed out waiting for file change event")
	}

	// Non-Python and glob-excluded files stay silent.
	os.WriteFile(filepath.Join(tmpDir, "notes.txt"), []byte("ignored"), 0644)
	os.WriteFile(filepath.Join(tmpDir, "generated_pb.py"), []byte("x = 2\n"), 0644)

	select {
	case paths := <-changedFiles:
		for _, p := range paths {
			base := filepath.Base(p)
			if base == "notes.txt" || base == "generated_pb.py" {
				t.Errorf("Excluded file triggered event: %s", p)
			}
		}
	case <-time.After(500 * time.Millisecond):
		// Expected
	}

	// New directory should be recursively watched after create.
	subdir := filepath.Join(tmpDir, "pkg")
	if err := os.MkdirAll(subdir, 0755); err != nil {
		t.Fatal(err)
	}
	subFile := filepath.Join(subdir, "nested.py")
	if err := os.WriteFile(subFile, []byte("y = 2\n"), 0644); err != nil {
		t.Fatal(err)
	}

	foundNested := false
	timeout := time.After(2 * time.Second)
	for !foundNested {
		select {
		case paths := <-changedFiles:
			for _, p := range paths {
				if p == subFile {
					foundNested = true
					break
				}
			}
		case <-timeout:
			t.Fatal("timed out waiting for nested file event in newly created directory")
		}
	}
}

func TestWatcher_RenameTriggersChange(t *testing.T) {
	tmpDir := t.TempDir()

	changedFiles := make(chan []string, 8)
	w, err := NewWatcher(100*time.Millisecond, nil, nil, func(paths []string) {
		changedFiles <- paths
	})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := w.Watch([]string{tmpDir}); err != nil {
		t.Fatal(err)
	}

	oldPath := filepath.Join(tmpDir, "old.py")
	newPath := filepath.Join(tmpDir, "new.py")
	if err := os.WriteFile(oldPath, []byte("x = 1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := os.Rename(oldPath, newPath); err != nil {
		t.Fatal(err)
	}

	timeout := time.After(2 * time.Second)
	for {
		select {
		case paths := <-changedFiles:
			for _, p := range paths {
				if p == oldPath || p == newPath {
					return
				}
			}
		case <-timeout:
			t.Fatalf("timed out waiting for rename event, old=%s new=%s", oldPath, newPath)
		}
	}
}

func TestWatcher_CoalescesBursts(t *testing.T) {
	tmpDir := t.TempDir()

	changedFiles := make(chan []string, 8)
	w, err := NewWatcher(10*time.Millisecond, nil, nil, func(paths []string) {
		changedFiles <- paths
	})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	w.SetDebounce(200 * time.Millisecond)

	if err := w.Watch([]string{tmpDir}); err != nil {
		t.Fatal(err)
	}

	first := filepath.Join(tmpDir, "a.py")
	second := filepath.Join(tmpDir, "b.py")
	if err := os.WriteFile(first, []byte("a = 1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(second, []byte("b = 2\n"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case paths := <-changedFiles:
		seen := map[string]bool{}
		for _, p := range paths {
			seen[p] = true
		}
		if !seen[first] || !seen[second] {
			t.Fatalf("expected one batch with both files, got %v", paths)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for coalesced batch")
	}
}

func TestShouldExclude(t *testing.T) {
	w, err := NewWatcher(10*time.Millisecond, []string{".git", "__pycache__"}, nil, func([]string) {})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if w.shouldExclude("/proj/app/models.py") {
		t.Fatal("expected .py files to pass")
	}
	if w.shouldExclude("/proj/typings/os.pyi") {
		t.Fatal("expected .pyi stubs to pass")
	}
	if !w.shouldExclude("/proj/README.md") {
		t.Fatal("expected non-Python files to be excluded")
	}
	if !w.shouldExclude("/proj/.git") {
		t.Fatal("expected excluded directory names to be dropped")
	}
	if w.shouldExclude("/proj/app/subpkg") {
		t.Fatal("expected plain directory paths to pass through")
	}
}
