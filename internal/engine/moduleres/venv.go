// # internal/engine/moduleres/venv.go
package moduleres

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"pyscope/internal/core/errors"
)

// SitePackages locates the site-packages directory of a virtual environment.
//
// Not-a-venv (errors.CodeNotAVenv) means the layout was scanned and no
// site-packages directory exists; an unreadable listing surfaces as
// errors.CodeIO instead. Callers report only the latter loudly.
func SitePackages(venvDir string) (string, error) {
	return sitePackagesDir(venvDir, runtime.GOOS)
}

func sitePackagesDir(venvDir, goos string) (string, error) {
	if goos == "windows" {
		dir := filepath.Join(venvDir, "Lib", "site-packages")
		info, err := os.Stat(dir)
		switch {
		case os.IsNotExist(err):
			err := errors.New(errors.CodeNotAVenv, "no Lib/site-packages directory")
			return "", errors.AddContext(err, errors.CtxPath, venvDir)
		case err != nil:
			return "", errors.AddContext(errors.Wrap(err, errors.CodeIO, "stat site-packages"), errors.CtxPath, dir)
		case !info.IsDir():
			err := errors.New(errors.CodeNotAVenv, "Lib/site-packages is not a directory")
			return "", errors.AddContext(err, errors.CtxPath, venvDir)
		}
		return dir, nil
	}

	// POSIX venvs nest site-packages under lib/pythonX.Y, and the minor
	// version is not knowable from configuration alone. Scan for it.
	libDir := filepath.Join(venvDir, "lib")
	entries, err := os.ReadDir(libDir)
	if err != nil {
		if os.IsNotExist(err) {
			err := errors.New(errors.CodeNotAVenv, "no lib directory")
			return "", errors.AddContext(err, errors.CtxPath, venvDir)
		}
		return "", errors.AddContext(errors.Wrap(err, errors.CodeIO, "read lib directory"), errors.CtxPath, libDir)
	}
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "python3.") {
			continue
		}
		dir := filepath.Join(libDir, entry.Name(), "site-packages")
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir, nil
		}
	}
	err = errors.New(errors.CodeNotAVenv, "no python3.* site-packages directory")
	return "", errors.AddContext(err, errors.CtxPath, venvDir)
}
