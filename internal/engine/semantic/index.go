// Package semantic builds per-file semantic indexes: the scope tree, symbol
// tables with binding shadow chains, and per-scope expression numbering.
//
// All scopes of one file live in a single arena and reference each other only
// by dense index. Expression ids restart at zero in every scope, so an edit
// confined to one function body can never renumber expressions in an outer or
// sibling scope.
package semantic

import (
	sitter "github.com/tree-sitter/go-tree-sitter"

	"pyscope/internal/core/vfs"
	"pyscope/internal/engine/parser"
	"pyscope/internal/shared/util"
)

// ScopeID indexes the scope arena of one file. The module scope is always 0.
type ScopeID uint32

// ExpressionID numbers expressions within one scope, starting at zero.
type ExpressionID uint32

type ScopeKind uint8

const (
	ScopeModule ScopeKind = iota
	ScopeClass
	ScopeFunction
	ScopeLambda
	ScopeComprehension
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeModule:
		return "module"
	case ScopeClass:
		return "class"
	case ScopeFunction:
		return "function"
	case ScopeLambda:
		return "lambda"
	case ScopeComprehension:
		return "comprehension"
	default:
		return "unknown"
	}
}

type BindingKind uint8

const (
	BindAssignment BindingKind = iota
	BindImport
	BindFunction
	BindClass
	BindParameter
	BindLoopVar
	BindWithVar
	BindExceptVar
	BindGlobal
	BindNonlocal
)

func (k BindingKind) String() string {
	switch k {
	case BindAssignment:
		return "assignment"
	case BindImport:
		return "import"
	case BindFunction:
		return "function"
	case BindClass:
		return "class"
	case BindParameter:
		return "parameter"
	case BindLoopVar:
		return "loop variable"
	case BindWithVar:
		return "with variable"
	case BindExceptVar:
		return "except variable"
	case BindGlobal:
		return "global declaration"
	case BindNonlocal:
		return "nonlocal declaration"
	default:
		return "unknown"
	}
}

// Binding is one definition site for a name inside a scope. Multiple bindings
// of the same name form a shadow chain ordered by source position.
type Binding struct {
	Name string
	Kind BindingKind
	Span parser.Span

	// Defines is the scope introduced by a function or class binding,
	// zero otherwise (the module scope can never be introduced by one).
	Defines ScopeID

	// Import payload, set only for BindImport.
	Module string // dotted module as written, "" for a bare relative import
	Member string // imported member or submodule name, "" for plain imports
	Level  int    // leading dots of a relative import
}

type ParamKind uint8

const (
	ParamPositional ParamKind = iota
	ParamStar                 // *args, or the bare keyword-only separator
	ParamStarStar             // **kwargs
	ParamSlash                // the positional-only separator
)

// Param is one parameter as written, annotation and default kept as source
// text.
type Param struct {
	Name       string
	Annotation string
	Default    bool
	Kind       ParamKind
}

// FunctionInfo captures the declared shape of a function scope.
type FunctionInfo struct {
	Decorators []string
	Params     []Param
	Returns    string
	IsAsync    bool
}

// BaseRef is one base-class expression of a class definition, kept as source
// text with its span for diagnostics.
type BaseRef struct {
	Text string
	Span parser.Span
}

// ClassInfo captures the declared shape of a class scope.
type ClassInfo struct {
	Decorators []string
	Bases      []BaseRef
}

// Scope is one lexical namespace. Parent is a back-reference by arena index;
// the module scope points at itself.
type Scope struct {
	Kind   ScopeKind
	Name   string
	Parent ScopeID
	Span   parser.Span

	Class *ClassInfo
	Func  *FunctionInfo
}

// exprKey identifies a numbered expression by scope and source extent
// rather than node identity, so lookups keep working with nodes from a
// later parse of the same source.
type exprKey struct {
	scope ScopeID
	span  parser.Span
}

// Index is the immutable semantic index of one file at one parse. It owns the
// scope arena; everything else refers into it by ScopeID and ExpressionID.
type Index struct {
	file *vfs.File

	scopes    []Scope
	children  [][]ScopeID
	tables    []map[string][]Binding
	exprSpans [][]parser.Span

	// Derived from exprSpans; excluded from Equal.
	exprIDs map[exprKey]ExpressionID
}

func (ix *Index) File() *vfs.File { return ix.file }

func (ix *Index) ModuleScope() ScopeID { return 0 }

func (ix *Index) ScopeCount() int { return len(ix.scopes) }

func (ix *Index) Scope(id ScopeID) Scope { return ix.scopes[id] }

// ParentScope is false at the module scope.
func (ix *Index) ParentScope(id ScopeID) (ScopeID, bool) {
	if id == 0 {
		return 0, false
	}
	return ix.scopes[id].Parent, true
}

func (ix *Index) ChildScopes(id ScopeID) []ScopeID { return ix.children[id] }

// ClassScopes lists every class scope in the file, in definition order.
func (ix *Index) ClassScopes() []ScopeID {
	var out []ScopeID
	for id := range ix.scopes {
		if ix.scopes[id].Kind == ScopeClass {
			out = append(out, ScopeID(id))
		}
	}
	return out
}

// Bindings returns the shadow chain for a name in one scope, ordered by
// source position. Nil when the scope has no binding for the name.
func (ix *Index) Bindings(scope ScopeID, name string) []Binding {
	return ix.tables[scope][name]
}

// Names lists every bound name in a scope, sorted.
func (ix *Index) Names(scope ScopeID) []string {
	return util.SortedStringKeys(ix.tables[scope])
}

// LookupName resolves a name from a scope outward. Class scopes other than
// the starting one are skipped: class bodies are not visible to nested
// functions. The last binding of the winning chain is returned.
func (ix *Index) LookupName(from ScopeID, name string) (Binding, bool) {
	cur := from
	for {
		if cur == from || ix.scopes[cur].Kind != ScopeClass {
			if chain := ix.tables[cur][name]; len(chain) > 0 {
				return chain[len(chain)-1], true
			}
		}
		next, ok := ix.ParentScope(cur)
		if !ok {
			return Binding{}, false
		}
		cur = next
	}
}

// LookupNameAt resolves like LookupName but, within the starting scope,
// returns the last binding strictly before the given byte offset. Outer
// scopes are consulted without the position filter.
func (ix *Index) LookupNameAt(from ScopeID, name string, before uint) (Binding, bool) {
	chain := ix.tables[from][name]
	for i := len(chain) - 1; i >= 0; i-- {
		if chain[i].Span.StartByte < before {
			return chain[i], true
		}
	}
	parent, ok := ix.ParentScope(from)
	if !ok {
		return Binding{}, false
	}
	cur := parent
	for {
		if ix.scopes[cur].Kind != ScopeClass {
			if chain := ix.tables[cur][name]; len(chain) > 0 {
				return chain[len(chain)-1], true
			}
		}
		next, ok := ix.ParentScope(cur)
		if !ok {
			return Binding{}, false
		}
		cur = next
	}
}

// ExpressionID returns the id assigned to a syntax node within the given
// scope. The node may come from any parse of the same source, not just the
// one this index was built from. False when the node was not numbered there;
// callers treat that as an internal error, not a user-visible condition.
func (ix *Index) ExpressionID(node *sitter.Node, scope ScopeID) (ExpressionID, bool) {
	if node == nil {
		return 0, false
	}
	id, ok := ix.exprIDs[exprKey{scope: scope, span: parser.NodeSpan(node)}]
	return id, ok
}

// ExpressionSpan returns the source span of a numbered expression.
func (ix *Index) ExpressionSpan(scope ScopeID, id ExpressionID) (parser.Span, bool) {
	spans := ix.exprSpans[scope]
	if int(id) >= len(spans) {
		return parser.Span{}, false
	}
	return spans[id], true
}

func (ix *Index) ExpressionCount(scope ScopeID) int { return len(ix.exprSpans[scope]) }

// Equal compares two indexes structurally: scope arenas, symbol tables and
// expression spans. The id lookup map is derived from the expression spans
// and needs no comparison of its own. File identity is not compared; the
// file is the query key.
func (ix *Index) Equal(o *Index) bool {
	if ix == nil || o == nil {
		return ix == o
	}
	if len(ix.scopes) != len(o.scopes) {
		return false
	}
	for i := range ix.scopes {
		if !scopeEqual(&ix.scopes[i], &o.scopes[i]) {
			return false
		}
		if len(ix.exprSpans[i]) != len(o.exprSpans[i]) {
			return false
		}
		for j := range ix.exprSpans[i] {
			if ix.exprSpans[i][j] != o.exprSpans[i][j] {
				return false
			}
		}
		if !tableEqual(ix.tables[i], o.tables[i]) {
			return false
		}
	}
	return true
}

func scopeEqual(a, b *Scope) bool {
	if a.Kind != b.Kind || a.Name != b.Name || a.Parent != b.Parent || a.Span != b.Span {
		return false
	}
	if !classInfoEqual(a.Class, b.Class) {
		return false
	}
	return funcInfoEqual(a.Func, b.Func)
}

func classInfoEqual(a, b *ClassInfo) bool {
	if a == nil || b == nil {
		return a == b
	}
	if !stringsEqual(a.Decorators, b.Decorators) || len(a.Bases) != len(b.Bases) {
		return false
	}
	for i := range a.Bases {
		if a.Bases[i] != b.Bases[i] {
			return false
		}
	}
	return true
}

func funcInfoEqual(a, b *FunctionInfo) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Returns != b.Returns || a.IsAsync != b.IsAsync {
		return false
	}
	if !stringsEqual(a.Decorators, b.Decorators) || len(a.Params) != len(b.Params) {
		return false
	}
	for i := range a.Params {
		if a.Params[i] != b.Params[i] {
			return false
		}
	}
	return true
}

func tableEqual(a, b map[string][]Binding) bool {
	if len(a) != len(b) {
		return false
	}
	for name, chain := range a {
		other, ok := b[name]
		if !ok || len(other) != len(chain) {
			return false
		}
		for i := range chain {
			if chain[i] != other[i] {
				return false
			}
		}
	}
	return true
}

func stringsEqual(a, b []string) bool {
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
