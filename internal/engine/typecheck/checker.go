// Package typecheck layers hierarchy analysis over the semantic
// indexes: it resolves base classes across files, computes C3 method
// resolution orders, and reports overriding methods whose signatures
// cannot stand in for the inherited ones. Every result is a memoized
// query, so an edit recomputes only the classes whose ancestry or
// members actually changed.
package typecheck

import (
	"context"
	"fmt"
	"strings"

	"pyscope/internal/core/ports"
	"pyscope/internal/core/vfs"
	"pyscope/internal/engine/moduleres"
	"pyscope/internal/engine/parser"
	"pyscope/internal/engine/query"
	"pyscope/internal/engine/semantic"
)

const (
	mroCacheSize   = 4096
	classCacheSize = 4096
)

// Checker owns the hierarchy queries of one engine.
type Checker struct {
	parser   *parser.Parser
	indexer  *semantic.Indexer
	resolver *moduleres.Resolver

	mros   *query.Query[ClassRef, MRO]
	checks *query.Query[ClassRef, []ports.Diagnostic]
	files  *query.Query[*vfs.File, []ports.Diagnostic]
}

func NewChecker(e *query.Engine, p *parser.Parser, ix *semantic.Indexer, res *moduleres.Resolver) *Checker {
	c := &Checker{parser: p, indexer: ix, resolver: res}
	c.mros = query.NewQuery(e, "typecheck.mro", c.computeMRO,
		query.WithEquals(MRO.Equal),
		query.WithLRU[MRO](mroCacheSize),
	)
	c.checks = query.NewQuery(e, "typecheck.class",
		func(ctx *query.Ctx, ref ClassRef) ([]ports.Diagnostic, error) {
			ix, err := c.indexer.Index(ctx, ref.File)
			if err != nil {
				return nil, err
			}
			return c.checkClass(ctx, ix, ref)
		},
		query.WithEquals(diagnosticsEqual),
		query.WithLRU[[]ports.Diagnostic](classCacheSize),
	)
	c.files = query.NewQuery(e, "typecheck.file", c.computeFileDiagnostics,
		query.WithEquals(diagnosticsEqual),
	)
	return c
}

// MRO returns the method resolution order for a class declaration.
func (c *Checker) MRO(ctx context.Context, ref ClassRef) (MRO, error) {
	return c.mros.Get(ctx, ref)
}

// CheckClass returns the diagnostics for a single class declaration,
// ordered by position.
func (c *Checker) CheckClass(ctx context.Context, ref ClassRef) ([]ports.Diagnostic, error) {
	diags, err := c.checks.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	out := append([]ports.Diagnostic(nil), diags...)
	ports.SortDiagnostics(out)
	return out, nil
}

// CheckFile returns every diagnostic for one file: syntax errors,
// unresolved imports, hierarchy problems and override violations,
// ordered by position.
func (c *Checker) CheckFile(ctx context.Context, f *vfs.File) ([]ports.Diagnostic, error) {
	return c.files.Get(ctx, f)
}

func (c *Checker) computeFileDiagnostics(ctx *query.Ctx, f *vfs.File) ([]ports.Diagnostic, error) {
	pm, err := c.parser.Parse(ctx, f)
	if err != nil {
		return nil, err
	}
	var diags []ports.Diagnostic
	for _, pe := range pm.Errors {
		diags = append(diags, ports.Diagnostic{
			Path:     f.Path(),
			Line:     pe.Span.Start.Line,
			Column:   pe.Span.Start.Column,
			Rule:     ports.RuleSyntaxError,
			Severity: ports.SeverityError,
			Message:  pe.Message,
		})
	}
	ix, err := c.indexer.Index(ctx, f)
	if err != nil {
		return nil, err
	}
	diags = append(diags, c.importDiagnostics(ctx, ix)...)
	for _, scope := range ix.ClassScopes() {
		classDiags, err := c.checks.Get(ctx, ClassRef{File: f, Scope: scope})
		if err != nil {
			return nil, err
		}
		diags = append(diags, classDiags...)
	}
	ports.SortDiagnostics(diags)
	return diags, nil
}

// checkClass reports hierarchy problems and override incompatibilities
// for one class. Every declaring ancestor in the resolution order is
// checked; each member yields at most one diagnostic, naming the
// nearest ancestor it clashes with.
func (c *Checker) checkClass(ctx context.Context, ix *semantic.Index, ref ClassRef) ([]ports.Diagnostic, error) {
	info := classInfo(ix, ref.Scope)
	if info == nil {
		return nil, nil
	}
	mro, err := c.mros.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	path := ix.File().Path()
	class := ix.Scope(ref.Scope)

	var diags []ports.Diagnostic
	for _, p := range mro.Problems {
		diags = append(diags, problemDiagnostic(path, class.Name, class.Span, p))
	}
	if len(mro.Linearization) < 2 {
		return diags, nil
	}

	subclasses := func(sub, super ClassRef) bool { return c.isSubclass(ctx, sub, super) }
	kind := classify(info)
	for _, name := range ix.Names(ref.Scope) {
		chain := ix.Bindings(ref.Scope, name)
		b := chain[len(chain)-1]
		if b.Kind != semantic.BindFunction || exemptMember(name, kind) {
			continue
		}
		fn := functionInfo(ix, b.Defines)
		if fn == nil || exemptDecorators(fn.Decorators) {
			continue
		}
		ancestors, err := c.ancestorMembers(ctx, mro, name)
		if err != nil {
			return nil, err
		}
		parse := func(text string) Type {
			return parseAnnotation(text, func(dotted string) (ClassRef, bool) {
				return c.resolveDotted(ctx, ix, ref.Scope, dotted, importHops)
			})
		}
		sub := bindSignature(fn, parse).dropReceiver()
		for _, anc := range ancestors {
			if compatibleSignature(sub, anc.sig, subclasses) {
				continue
			}
			msg := fmt.Sprintf("method %q overrides %s.%s with an incompatible signature", name, anc.class, name)
			if anc.synthesis != NotSynthesized {
				msg = fmt.Sprintf("method %q overrides the %s member %s.%s with an incompatible signature",
					name, anc.synthesis, anc.class, name)
			}
			diags = append(diags, ports.Diagnostic{
				Path:     path,
				Line:     b.Span.Start.Line,
				Column:   b.Span.Start.Column,
				Rule:     ports.RuleIncompatibleOverride,
				Severity: ports.SeverityError,
				Message:  msg,
			})
			break
		}
	}
	return diags, nil
}

// ancestorMember is one inherited declaration a member is checked
// against.
type ancestorMember struct {
	class     string
	synthesis SynthesisKind
	sig       signature
}

// ancestorMembers walks the linearization past the class itself and
// collects every inherited declaration of name that is comparable
// through an instance, nearest first. Ancestors whose declaration is
// not a plain method (an attribute, a static or class method, a
// property) have nothing comparable and are skipped, not a stopping
// point: an override must satisfy every method-declaring ancestor
// behind them too.
func (c *Checker) ancestorMembers(ctx context.Context, mro MRO, name string) ([]ancestorMember, error) {
	var members []ancestorMember
	for _, anc := range mro.Linearization[1:] {
		if anc.IsObject() {
			break
		}
		aix, err := c.indexer.Index(ctx, anc.File)
		if err != nil {
			return nil, err
		}
		ainfo := classInfo(aix, anc.Scope)
		if ainfo == nil {
			continue
		}
		if chain := aix.Bindings(anc.Scope, name); len(chain) > 0 {
			ab := chain[len(chain)-1]
			if ab.Kind != semantic.BindFunction {
				continue
			}
			afn := functionInfo(aix, ab.Defines)
			if afn == nil || exemptDecorators(afn.Decorators) {
				continue
			}
			parse := func(text string) Type {
				return parseAnnotation(text, func(dotted string) (ClassRef, bool) {
					return c.resolveDotted(ctx, aix, anc.Scope, dotted, importHops)
				})
			}
			members = append(members, ancestorMember{
				class: aix.Scope(anc.Scope).Name,
				sig:   bindSignature(afn, parse).dropReceiver(),
			})
			continue
		}
		if sig, ok := synthesizedMember(classify(ainfo), name); ok {
			members = append(members, ancestorMember{
				class:     aix.Scope(anc.Scope).Name,
				synthesis: classify(ainfo),
				sig:       sig,
			})
		}
	}
	return members, nil
}

// isSubclass reports whether sub lists super in its linearization.
func (c *Checker) isSubclass(ctx context.Context, sub, super ClassRef) bool {
	if sub == super || super.IsObject() {
		return true
	}
	mro, err := c.mros.Get(ctx, sub)
	if err != nil {
		return false
	}
	for _, ref := range mro.Linearization {
		if ref == super {
			return true
		}
	}
	return false
}

// importDiagnostics reports names imported from modules the search
// path cannot produce. Standard library modules are exempt, since the
// search path only reaches project code unless stubs are configured.
func (c *Checker) importDiagnostics(ctx context.Context, ix *semantic.Index) []ports.Diagnostic {
	var diags []ports.Diagnostic
	for scope := semantic.ScopeID(0); int(scope) < ix.ScopeCount(); scope++ {
		for _, name := range ix.Names(scope) {
			for _, b := range ix.Bindings(scope, name) {
				if b.Kind != semantic.BindImport {
					continue
				}
				msg, bad := c.unresolvedImport(ctx, ix, b)
				if !bad {
					continue
				}
				diags = append(diags, ports.Diagnostic{
					Path:     ix.File().Path(),
					Line:     b.Span.Start.Line,
					Column:   b.Span.Start.Column,
					Rule:     ports.RuleUnresolvedImport,
					Severity: ports.SeverityWarning,
					Message:  msg,
				})
			}
		}
	}
	return diags
}

// unresolvedImport decides whether one import binding names something
// the search path cannot produce.
func (c *Checker) unresolvedImport(ctx context.Context, ix *semantic.Index, b semantic.Binding) (string, bool) {
	if b.Level == 0 && moduleres.IsStdlib(firstComponent(b.Module)) {
		return "", false
	}
	if b.Member == "" {
		// A plain import requires the full dotted path to load.
		name, err := moduleres.NewModuleName(b.Module)
		if err != nil {
			return "", false
		}
		if _, found, err := c.resolver.Resolve(ctx, name); err != nil || !found {
			return fmt.Sprintf("cannot resolve module %q", b.Module), true
		}
		return "", false
	}
	base, ok := c.relativeBase(ix.File(), b.Module, b.Level)
	if !ok {
		return fmt.Sprintf("cannot resolve module %q", importSpelling(b)), true
	}
	file, found, err := c.resolver.Resolve(ctx, base)
	if err != nil || !found {
		return fmt.Sprintf("cannot resolve module %q", importSpelling(b)), true
	}
	member := firstComponent(b.Member)
	mix, err := c.indexer.Index(ctx, file)
	if err == nil && len(mix.Bindings(mix.ModuleScope(), member)) > 0 {
		return "", false
	}
	if sub, err := base.Child(member); err == nil {
		if _, found, err := c.resolver.Resolve(ctx, sub); err == nil && found {
			return "", false
		}
	}
	return fmt.Sprintf("module %q has no member %q", string(base), member), true
}

// importSpelling reconstructs the module text as written, including
// relative dots.
func importSpelling(b semantic.Binding) string {
	return strings.Repeat(".", b.Level) + b.Module
}

func problemDiagnostic(path, class string, classSpan parser.Span, p MROProblem) ports.Diagnostic {
	span := p.Span
	if span == (parser.Span{}) {
		span = classSpan
	}
	d := ports.Diagnostic{
		Path:     path,
		Line:     span.Start.Line,
		Column:   span.Start.Column,
		Rule:     ports.RuleUnresolvedBase,
		Severity: ports.SeverityWarning,
	}
	switch p.Kind {
	case ProblemInheritanceCycle:
		d.Message = fmt.Sprintf("class %q participates in an inheritance cycle through base %q", class, p.Base)
	case ProblemInconsistentHierarchy:
		d.Message = fmt.Sprintf("class %q has no consistent method resolution order", class)
	default:
		d.Message = fmt.Sprintf("class %q has unresolved base %q", class, p.Base)
	}
	return d
}

// exemptMember reports member names excluded from override checking.
// Constructors never participate. Replace-style members are exempt
// only on classes that synthesize members themselves.
func exemptMember(name string, kind SynthesisKind) bool {
	switch name {
	case "__init__", "__new__", "__init_subclass__", "__class_getitem__":
		return true
	case "_replace", "__replace__":
		return kind != NotSynthesized
	}
	return false
}

// exemptDecorators reports whether a decorator changes the attribute
// binding so that instance-call compatibility no longer applies.
func exemptDecorators(decorators []string) bool {
	for _, d := range decorators {
		switch strippedName(d) {
		case "staticmethod", "classmethod", "property",
			"cached_property", "functools.cached_property",
			"overload", "typing.overload":
			return true
		}
	}
	return false
}

func diagnosticsEqual(a, b []ports.Diagnostic) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
