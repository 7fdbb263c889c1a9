package typecheck

import (
	"context"
	"path/filepath"
	"strings"

	"pyscope/internal/core/errors"
	"pyscope/internal/core/vfs"
	"pyscope/internal/engine/moduleres"
	"pyscope/internal/engine/parser"
	"pyscope/internal/engine/query"
	"pyscope/internal/engine/semantic"
)

// ClassRef names one class declaration by file and class scope. The
// zero value stands for builtins.object, the implicit root of every
// hierarchy.
type ClassRef struct {
	File  *vfs.File
	Scope semantic.ScopeID
}

// IsObject reports whether the reference is the implicit object root.
func (r ClassRef) IsObject() bool { return r.File == nil }

// MROProblemKind classifies why a linearization degraded.
type MROProblemKind uint8

const (
	ProblemUnresolvedBase MROProblemKind = iota
	ProblemInheritanceCycle
	ProblemInconsistentHierarchy
)

// MROProblem records one reason a class fell back to [C, object].
type MROProblem struct {
	Kind MROProblemKind
	Base string
	Span parser.Span
}

// MRO is the C3 linearization of a class, starting with the class
// itself and ending with object. When a base fails to resolve, the
// hierarchy is cyclic, or no consistent order exists, the
// linearization collapses to the class and object and the cause is
// recorded as a problem.
type MRO struct {
	Linearization []ClassRef
	Problems      []MROProblem
}

func (m MRO) Equal(o MRO) bool {
	if len(m.Linearization) != len(o.Linearization) || len(m.Problems) != len(o.Problems) {
		return false
	}
	for i := range m.Linearization {
		if m.Linearization[i] != o.Linearization[i] {
			return false
		}
	}
	for i := range m.Problems {
		if m.Problems[i] != o.Problems[i] {
			return false
		}
	}
	return true
}

// importHops bounds how many import indirections one resolution may
// follow. Re-export chains longer than this count as unresolved.
const importHops = 8

func (c *Checker) computeMRO(ctx *query.Ctx, ref ClassRef) (MRO, error) {
	if ref.IsObject() {
		return MRO{Linearization: []ClassRef{ref}}, nil
	}
	ix, err := c.indexer.Index(ctx, ref.File)
	if err != nil {
		return MRO{}, err
	}
	info := classInfo(ix, ref.Scope)
	if info == nil {
		return MRO{Linearization: []ClassRef{ref, {}}}, nil
	}
	enclosing, _ := ix.ParentScope(ref.Scope)

	var (
		order    []ClassRef
		parents  [][]ClassRef
		problems []MROProblem
	)
	for _, base := range info.Bases {
		target, ok := c.resolveDotted(ctx, ix, enclosing, base.Text, importHops)
		if !ok {
			problems = append(problems, MROProblem{Kind: ProblemUnresolvedBase, Base: base.Text, Span: base.Span})
			continue
		}
		if target.IsObject() {
			order = append(order, target)
			parents = append(parents, []ClassRef{target})
			continue
		}
		baseMRO, err := c.mros.Get(ctx, target)
		if err != nil {
			if errors.IsCode(err, errors.CodeCycle) {
				problems = append(problems, MROProblem{Kind: ProblemInheritanceCycle, Base: base.Text, Span: base.Span})
				continue
			}
			return MRO{}, err
		}
		order = append(order, target)
		parents = append(parents, baseMRO.Linearization)
	}

	fallback := MRO{Linearization: []ClassRef{ref, {}}, Problems: problems}
	if len(problems) > 0 || len(parents) == 0 {
		return fallback, nil
	}
	merged, ok := c3Merge(parents, order)
	if !ok {
		fallback.Problems = []MROProblem{{Kind: ProblemInconsistentHierarchy}}
		return fallback, nil
	}
	return MRO{Linearization: append([]ClassRef{ref}, merged...)}, nil
}

// c3Merge merges the parent linearizations plus the declared base
// order, picking at each step the first head that appears in no tail.
// It returns false when no consistent order exists.
func c3Merge(parents [][]ClassRef, order []ClassRef) ([]ClassRef, bool) {
	seqs := make([][]ClassRef, 0, len(parents)+1)
	for _, p := range parents {
		seqs = append(seqs, append([]ClassRef(nil), p...))
	}
	seqs = append(seqs, append([]ClassRef(nil), order...))

	var out []ClassRef
	for {
		live := seqs[:0]
		for _, seq := range seqs {
			if len(seq) > 0 {
				live = append(live, seq)
			}
		}
		seqs = live
		if len(seqs) == 0 {
			return out, true
		}
		head, ok := pickHead(seqs)
		if !ok {
			return nil, false
		}
		out = append(out, head)
		for i, seq := range seqs {
			if seq[0] == head {
				seqs[i] = seq[1:]
			}
		}
	}
}

func pickHead(seqs [][]ClassRef) (ClassRef, bool) {
	for _, seq := range seqs {
		if !inAnyTail(seqs, seq[0]) {
			return seq[0], true
		}
	}
	return ClassRef{}, false
}

func inAnyTail(seqs [][]ClassRef, ref ClassRef) bool {
	for _, seq := range seqs {
		for i := 1; i < len(seq); i++ {
			if seq[i] == ref {
				return true
			}
		}
	}
	return false
}

// classInfo returns the class declaration for a scope, or nil when the
// scope id is stale or names a non-class scope.
func classInfo(ix *semantic.Index, scope semantic.ScopeID) *semantic.ClassInfo {
	if int(scope) >= ix.ScopeCount() {
		return nil
	}
	sc := ix.Scope(scope)
	if sc.Kind != semantic.ScopeClass {
		return nil
	}
	return sc.Class
}

func functionInfo(ix *semantic.Index, scope semantic.ScopeID) *semantic.FunctionInfo {
	if int(scope) >= ix.ScopeCount() {
		return nil
	}
	sc := ix.Scope(scope)
	if sc.Kind != semantic.ScopeFunction {
		return nil
	}
	return sc.Func
}

// resolveDotted resolves dotted source text such as "models.base.Entity"
// to the class declaration it names, following name bindings through
// imports and nested classes. Subscripts are stripped first, so
// "Base[int]" resolves like "Base". Builtin class names degrade to the
// object sentinel when no stub for the builtins module is on the
// search path.
func (c *Checker) resolveDotted(ctx context.Context, ix *semantic.Index, from semantic.ScopeID, text string, hops int) (ClassRef, bool) {
	text = stripQuotes(strings.TrimSpace(text))
	if i := strings.IndexAny(text, "(["); i >= 0 {
		text = strings.TrimSpace(text[:i])
	}
	if text == "object" || text == "builtins.object" {
		return ClassRef{}, true
	}
	if text == "" || !isDottedName(text) {
		return ClassRef{}, false
	}
	comps := strings.Split(text, ".")
	if binding, ok := ix.LookupName(from, comps[0]); ok {
		return c.followBinding(ctx, ix, binding, comps[1:], hops)
	}
	if len(comps) == 1 {
		if ref, ok := c.resolveInModule(ctx, "builtins", comps, hops); ok {
			return ref, true
		}
		if moduleres.IsBuiltin(comps[0]) {
			return ClassRef{}, true
		}
	}
	return ClassRef{}, false
}

// followBinding walks the remaining attribute path from a name
// binding, crossing files when the binding is an import.
func (c *Checker) followBinding(ctx context.Context, ix *semantic.Index, b semantic.Binding, rest []string, hops int) (ClassRef, bool) {
	switch b.Kind {
	case semantic.BindClass:
		return c.followClassPath(ctx, ix, b.Defines, rest, hops)
	case semantic.BindImport:
		if hops == 0 {
			return ClassRef{}, false
		}
		base, members, ok := c.importTarget(ix.File(), b)
		if !ok {
			return ClassRef{}, false
		}
		return c.resolveInModule(ctx, base, append(members, rest...), hops-1)
	default:
		return ClassRef{}, false
	}
}

func (c *Checker) followClassPath(ctx context.Context, ix *semantic.Index, scope semantic.ScopeID, rest []string, hops int) (ClassRef, bool) {
	if len(rest) == 0 {
		return ClassRef{File: ix.File(), Scope: scope}, true
	}
	chain := ix.Bindings(scope, rest[0])
	if len(chain) == 0 {
		return ClassRef{}, false
	}
	return c.followBinding(ctx, ix, chain[len(chain)-1], rest[1:], hops)
}

// resolveInModule resolves a member path inside the named module,
// preferring the module's own top-level bindings over a submodule of
// the same name.
func (c *Checker) resolveInModule(ctx context.Context, mod moduleres.ModuleName, comps []string, hops int) (ClassRef, bool) {
	if len(comps) == 0 {
		return ClassRef{}, false
	}
	file, found, err := c.resolver.Resolve(ctx, mod)
	if err == nil && found {
		mix, err := c.indexer.Index(ctx, file)
		if err == nil {
			if chain := mix.Bindings(mix.ModuleScope(), comps[0]); len(chain) > 0 {
				if ref, ok := c.followBinding(ctx, mix, chain[len(chain)-1], comps[1:], hops); ok {
					return ref, true
				}
			}
		}
	}
	child, err := mod.Child(comps[0])
	if err != nil {
		return ClassRef{}, false
	}
	return c.resolveInModule(ctx, child, comps[1:], hops)
}

// importTarget maps an import binding to the module it loads plus any
// leading member components named by a from-import.
func (c *Checker) importTarget(f *vfs.File, b semantic.Binding) (moduleres.ModuleName, []string, bool) {
	if b.Level == 0 && b.Member == "" {
		raw := b.Module
		if b.Name == firstComponent(raw) {
			// A plain "import a.b" binds only the top-level name.
			raw = firstComponent(raw)
		}
		name, err := moduleres.NewModuleName(raw)
		if err != nil {
			return "", nil, false
		}
		return name, nil, true
	}
	base, ok := c.relativeBase(f, b.Module, b.Level)
	if !ok {
		return "", nil, false
	}
	return base, strings.Split(b.Member, "."), true
}

// relativeBase computes the absolute module a from-import names. Level
// zero means an absolute import of the recorded module text.
func (c *Checker) relativeBase(f *vfs.File, module string, level int) (moduleres.ModuleName, bool) {
	if level == 0 {
		name, err := moduleres.NewModuleName(module)
		return name, err == nil
	}
	base, ok := c.resolver.ModuleNameForFile(f)
	if !ok {
		return "", false
	}
	levels := level
	if isInitPath(f.Path()) {
		// One dot names the package the __init__ file itself defines.
		levels--
	}
	anc, ok := base.Ancestor(levels)
	if !ok {
		return "", false
	}
	if module == "" {
		return anc, true
	}
	name, err := moduleres.NewModuleName(string(anc) + "." + module)
	return name, err == nil
}

func isInitPath(path string) bool {
	name := filepath.Base(path)
	return name == "__init__.py" || name == "__init__.pyi"
}

func firstComponent(dotted string) string {
	if i := strings.IndexByte(dotted, '.'); i >= 0 {
		return dotted[:i]
	}
	return dotted
}
