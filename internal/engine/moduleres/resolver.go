// # internal/engine/moduleres/resolver.go
package moduleres

import (
	"context"
	"path/filepath"

	"pyscope/internal/core/vfs"
	"pyscope/internal/engine/query"
)

type resolution struct {
	file  *vfs.File
	found bool
}

// Resolver memoizes module-name lookups on the query engine. Each resolution
// depends on the listing of every directory it consulted, so creating or
// deleting a file anywhere along the search path invalidates exactly the
// names whose probes passed through that directory.
type Resolver struct {
	registry *vfs.Registry
	search   SearchPath

	resolutions *query.Query[ModuleName, resolution]
}

func NewResolver(e *query.Engine, registry *vfs.Registry, search SearchPath) *Resolver {
	r := &Resolver{registry: registry, search: search}
	r.resolutions = query.NewQuery(e, "module.resolve",
		func(ctx *query.Ctx, name ModuleName) (resolution, error) {
			return r.resolveUncached(ctx, name)
		},
		query.WithEquals(func(a, b resolution) bool { return a == b }),
	)
	return r
}

// Resolve maps a module name to its source file. First match across the
// ordered roots wins. Absence is an ordinary outcome, not an error.
func (r *Resolver) Resolve(ctx context.Context, name ModuleName) (*vfs.File, bool, error) {
	res, err := r.resolutions.Get(ctx, name)
	if err != nil {
		return nil, false, err
	}
	return res.file, res.found, nil
}

// SearchPath returns the roots this resolver consults, in priority order.
func (r *Resolver) SearchPath() SearchPath { return r.search }

// ModuleNameForFile inverts resolution against the search path.
func (r *Resolver) ModuleNameForFile(f *vfs.File) (ModuleName, bool) {
	return r.search.ModuleNameForFile(f.Path())
}

func (r *Resolver) resolveUncached(ctx *query.Ctx, name ModuleName) (resolution, error) {
	comps := name.Components()
	for _, root := range r.search.Roots() {
		res, err := r.probeRoot(ctx, root.Dir, comps)
		if err != nil {
			return resolution{}, err
		}
		if res.found {
			return res, nil
		}
	}
	return resolution{}, nil
}

func (r *Resolver) probeRoot(ctx context.Context, dir string, comps []string) (resolution, error) {
	for i, comp := range comps {
		listing, err := r.registry.DirListing(ctx, dir)
		if err != nil {
			return resolution{}, err
		}
		if !listing.Exists {
			return resolution{}, nil
		}
		if i == len(comps)-1 {
			return r.probeLeaf(ctx, dir, listing, comp)
		}
		if !listing.Contains(comp) {
			return resolution{}, nil
		}
		dir = filepath.Join(dir, comp)
	}
	return resolution{}, nil
}

// probeLeaf checks the candidate forms in priority order: the package form
// before the module form, stubs before sources within each.
func (r *Resolver) probeLeaf(ctx context.Context, dir string, listing vfs.DirListing, comp string) (resolution, error) {
	if listing.Contains(comp) {
		pkgDir := filepath.Join(dir, comp)
		sub, err := r.registry.DirListing(ctx, pkgDir)
		if err != nil {
			return resolution{}, err
		}
		if sub.Exists {
			for _, init := range []string{"__init__.pyi", "__init__.py"} {
				if sub.Contains(init) {
					return resolution{file: r.registry.Resolve(filepath.Join(pkgDir, init)), found: true}, nil
				}
			}
		}
	}
	for _, ext := range []string{".pyi", ".py"} {
		if listing.Contains(comp + ext) {
			return resolution{file: r.registry.Resolve(filepath.Join(dir, comp+ext)), found: true}, nil
		}
	}
	return resolution{}, nil
}
