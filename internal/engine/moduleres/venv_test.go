// # internal/engine/moduleres/venv_test.go
package moduleres

import (
	"os"
	"path/filepath"
	"testing"

	"pyscope/internal/core/errors"
)

func TestSitePackagesPosix(t *testing.T) {
	venv := t.TempDir()
	want := filepath.Join(venv, "lib", "python3.13", "site-packages")
	if err := os.MkdirAll(want, 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := sitePackagesDir(venv, "linux")
	if err != nil {
		t.Fatalf("sitePackagesDir: %v", err)
	}
	if got != want {
		t.Errorf("sitePackagesDir = %s, want %s", got, want)
	}
}

func TestSitePackagesNotAVenv(t *testing.T) {
	cases := []struct {
		name  string
		setup func(t *testing.T, venv string)
	}{
		{"no lib directory", func(t *testing.T, venv string) {}},
		{"no python3 entry", func(t *testing.T, venv string) {
			if err := os.MkdirAll(filepath.Join(venv, "lib", "ruby3.2"), 0o755); err != nil {
				t.Fatal(err)
			}
		}},
		{"python3 entry without site-packages", func(t *testing.T, venv string) {
			if err := os.MkdirAll(filepath.Join(venv, "lib", "python3.12"), 0o755); err != nil {
				t.Fatal(err)
			}
		}},
	}
	for _, tc := range cases {
		venv := t.TempDir()
		tc.setup(t, venv)
		_, err := sitePackagesDir(venv, "linux")
		if err == nil {
			t.Errorf("%s: expected an error", tc.name)
			continue
		}
		if !errors.IsCode(err, errors.CodeNotAVenv) {
			t.Errorf("%s: expected NOT_A_VENV, got %v", tc.name, err)
		}
	}
}

func TestSitePackagesWindowsLayout(t *testing.T) {
	venv := t.TempDir()
	want := filepath.Join(venv, "Lib", "site-packages")
	if err := os.MkdirAll(want, 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := sitePackagesDir(venv, "windows")
	if err != nil {
		t.Fatalf("sitePackagesDir: %v", err)
	}
	if got != want {
		t.Errorf("sitePackagesDir = %s, want %s", got, want)
	}

	if _, err := sitePackagesDir(t.TempDir(), "windows"); !errors.IsCode(err, errors.CodeNotAVenv) {
		t.Errorf("expected NOT_A_VENV for an empty prefix, got %v", err)
	}
}
