// Package app assembles the analysis engine for one project: it owns the
// query engine, the file registry and every memoized layer above them, and
// drives full and incremental runs over the configured source roots.
package app

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"pyscope/internal/core/config"
	"pyscope/internal/core/errors"
	"pyscope/internal/core/ports"
	"pyscope/internal/core/vfs"
	"pyscope/internal/engine/moduleres"
	"pyscope/internal/engine/parser"
	"pyscope/internal/engine/query"
	"pyscope/internal/engine/semantic"
	"pyscope/internal/engine/typecheck"
	"pyscope/internal/shared/observability"
)

// Update is the outcome of one analysis run, delivered to watch-mode
// subscribers and rendered by the hosts.
type Update struct {
	Diagnostics []ports.Diagnostic
	Files       int
	Duration    time.Duration

	// Engine counters for this run only, not cumulative.
	Revision     uint64
	Computations uint64
	EarlyCutoffs uint64
}

// App wires the engine layers for one project. It is an explicit handle, not
// a global: several Apps can coexist in one process, each with its own cache.
type App struct {
	Config *config.Config
	Paths  config.ResolvedPaths

	Engine   *query.Engine
	Registry *vfs.Registry
	Parser   *parser.Parser
	Indexer  *semantic.Indexer
	Resolver *moduleres.Resolver
	Checker  *typecheck.Checker

	workers int
}

func New(cfg *config.Config, paths config.ResolvedPaths) (*App, error) {
	engine := query.New(query.WithDebugChecks(strings.EqualFold(cfg.Log.Level, "debug")))
	registry := vfs.NewRegistry(engine)
	psr := parser.NewParser(engine, registry, parser.NewGrammarLoader())
	indexer := semantic.NewIndexer(engine, psr)

	search, err := buildSearchPath(paths)
	if err != nil {
		return nil, err
	}
	resolver := moduleres.NewResolver(engine, registry, search)
	checker := typecheck.NewChecker(engine, psr, indexer, resolver)

	return &App{
		Config:   cfg,
		Paths:    paths,
		Engine:   engine,
		Registry: registry,
		Parser:   psr,
		Indexer:  indexer,
		Resolver: resolver,
		Checker:  checker,
		workers:  cfg.Limits.Workers,
	}, nil
}

// buildSearchPath assembles the ordered module search path: first-party
// roots, the venv's site-packages, extra paths, bundled stubs. A venv
// without a site-packages layout is skipped with a warning; only an I/O
// failure while probing it aborts startup.
func buildSearchPath(paths config.ResolvedPaths) (moduleres.SearchPath, error) {
	roots := make([]moduleres.Root, 0, len(paths.SourceRoots)+len(paths.ExtraPaths)+2)
	for _, dir := range paths.SourceRoots {
		roots = append(roots, moduleres.Root{Kind: moduleres.RootFirstParty, Dir: dir})
	}
	if paths.Venv != "" {
		site, err := moduleres.SitePackages(paths.Venv)
		switch {
		case err == nil:
			roots = append(roots, moduleres.Root{Kind: moduleres.RootSitePackages, Dir: site})
		case errors.IsCode(err, errors.CodeNotAVenv):
			slog.Warn("configured venv has no site-packages; skipping it", "venv", paths.Venv, "error", err)
		default:
			return moduleres.SearchPath{}, err
		}
	}
	for _, dir := range paths.ExtraPaths {
		roots = append(roots, moduleres.Root{Kind: moduleres.RootExtra, Dir: dir})
	}
	if paths.Stubs != "" {
		roots = append(roots, moduleres.Root{Kind: moduleres.RootStubs, Dir: paths.Stubs})
	}
	return moduleres.NewSearchPath(roots...), nil
}

// Run checks every Python file under the source roots and returns the
// sorted diagnostics. Work is data-parallel over files; the engine
// deduplicates shared computations (indexes of imported modules, MROs)
// across workers.
func (a *App) Run(ctx context.Context) (Update, error) {
	ctx, span := observability.Tracer.Start(ctx, "app.Run")
	defer span.End()

	start := time.Now()
	before := a.Engine.Stats()

	files, err := ScanRoots(a.Paths.SourceRoots, a.Config.Exclude.Dirs, a.Config.Exclude.Files)
	if err != nil {
		return Update{}, errors.AddContext(err, errors.CtxOperation, "scan_roots")
	}
	span.SetAttributes(attribute.Int("pyscope.files", len(files)))

	results := make([][]ports.Diagnostic, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			f := a.Registry.Resolve(path)
			diags, err := a.Checker.CheckFile(gctx, f)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				// One bad file must not take down the run: surface the
				// failure as a diagnostic and keep going.
				slog.Error("check failed", "path", path, "error", err)
				diags = []ports.Diagnostic{{
					Path:     path,
					Line:     1,
					Rule:     ports.RuleInternalError,
					Severity: ports.SeverityError,
					Message:  "internal error: " + err.Error(),
				}}
			}
			results[i] = diags
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Update{}, err
	}

	var diags []ports.Diagnostic
	for _, fileDiags := range results {
		diags = append(diags, fileDiags...)
	}
	ports.SortDiagnostics(diags)

	after := a.Engine.Stats()
	update := Update{
		Diagnostics:  diags,
		Files:        len(files),
		Duration:     time.Since(start),
		Revision:     uint64(after.Revision),
		Computations: after.Computations - before.Computations,
		EarlyCutoffs: after.EarlyCutoffs - before.EarlyCutoffs,
	}
	recordRunMetrics(update)
	span.SetAttributes(
		attribute.Int("pyscope.diagnostics", len(diags)),
		attribute.Int64("pyscope.computations", int64(update.Computations)),
	)
	return update, nil
}

// HandleChanges feeds one debounced watcher batch into the registry. Paths
// may name files or directories; a removed directory cannot be stat'ed, so
// anything that is not a known file refreshes directory listings instead.
func (a *App) HandleChanges(paths []string) {
	for _, path := range paths {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			a.Registry.RefreshDir(path)
			a.Registry.RefreshDir(filepath.Dir(path))
			continue
		}
		if f, ok := a.Registry.Lookup(path); ok {
			a.Registry.Touch(f)
		}
		// Creations and deletions change the parent's listing, which is
		// what module resolution depends on.
		a.Registry.RefreshDir(filepath.Dir(path))
	}
}
