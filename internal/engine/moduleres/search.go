// # internal/engine/moduleres/search.go
package moduleres

import (
	"path/filepath"
	"strings"
)

type RootKind int

const (
	RootFirstParty RootKind = iota
	RootSitePackages
	RootExtra
	RootStubs
)

func (k RootKind) String() string {
	switch k {
	case RootFirstParty:
		return "first-party"
	case RootSitePackages:
		return "site-packages"
	case RootExtra:
		return "extra"
	case RootStubs:
		return "stubs"
	default:
		return "unknown"
	}
}

// Root is one directory consulted during resolution.
type Root struct {
	Kind RootKind
	Dir  string
}

// SearchPath is the ordered list of roots. Earlier roots win; there is no
// merging across roots for the same module name.
type SearchPath struct {
	roots []Root
}

// NewSearchPath keeps the given order, cleaning paths and dropping empty
// entries. Callers assemble the list: first-party roots first, then the
// venv's site-packages, then extra paths, then bundled stubs.
func NewSearchPath(roots ...Root) SearchPath {
	kept := make([]Root, 0, len(roots))
	for _, root := range roots {
		if root.Dir == "" {
			continue
		}
		root.Dir = filepath.Clean(root.Dir)
		kept = append(kept, root)
	}
	return SearchPath{roots: kept}
}

func (s SearchPath) Roots() []Root { return s.roots }

// ModuleNameForFile inverts resolution: the dotted name a file would be
// imported as, derived from the first root containing it. Purely structural;
// never touches the filesystem.
func (s SearchPath) ModuleNameForFile(path string) (ModuleName, bool) {
	for _, root := range s.roots {
		rel, err := filepath.Rel(root.Dir, path)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}
		parts := strings.Split(rel, string(filepath.Separator))
		last := parts[len(parts)-1]
		last = strings.TrimSuffix(strings.TrimSuffix(last, ".py"), ".pyi")
		if last == "__init__" {
			parts = parts[:len(parts)-1]
		} else {
			parts[len(parts)-1] = last
		}
		if len(parts) == 0 {
			continue
		}
		name, err := NewModuleName(strings.Join(parts, "."))
		if err != nil {
			continue
		}
		return name, true
	}
	return "", false
}
