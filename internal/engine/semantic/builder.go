package semantic

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"pyscope/internal/engine/parser"
)

// BuildIndex walks a parsed module once, depth first, and produces its
// semantic index. It is total over whatever the parser produced: ERROR and
// MISSING nodes are descended through, never panicked on.
func BuildIndex(pm *parser.ParsedModule) *Index {
	b := &builder{
		src: pm.Source,
		ix: &Index{
			file:    pm.File,
			exprIDs: make(map[exprKey]ExpressionID),
		},
	}
	// The module scope always covers the whole file; its span stays zero so
	// that appending trailing bytes cannot defeat structural equality.
	b.pushScope(ScopeModule, "", parser.Span{}, 0)
	if root := pm.Root(); root != nil {
		b.block(root)
	}
	return b.ix
}

type builder struct {
	src parser.Text
	ix  *Index
	cur ScopeID
}

func (b *builder) pushScope(kind ScopeKind, name string, span parser.Span, parent ScopeID) ScopeID {
	id := ScopeID(len(b.ix.scopes))
	b.ix.scopes = append(b.ix.scopes, Scope{Kind: kind, Name: name, Parent: parent, Span: span})
	b.ix.children = append(b.ix.children, nil)
	b.ix.tables = append(b.ix.tables, make(map[string][]Binding))
	b.ix.exprSpans = append(b.ix.exprSpans, nil)
	if id != parent {
		b.ix.children[parent] = append(b.ix.children[parent], id)
	}
	return id
}

func (b *builder) bind(bd Binding) {
	b.ix.tables[b.cur][bd.Name] = append(b.ix.tables[b.cur][bd.Name], bd)
}

// number assigns the next expression id of the current scope to a node.
func (b *builder) number(node *sitter.Node) {
	span := parser.NodeSpan(node)
	id := ExpressionID(len(b.ix.exprSpans[b.cur]))
	b.ix.exprSpans[b.cur] = append(b.ix.exprSpans[b.cur], span)
	b.ix.exprIDs[exprKey{scope: b.cur, span: span}] = id
}

func (b *builder) block(node *sitter.Node) {
	for i := uint(0); i < node.ChildCount(); i++ {
		b.stmt(node.Child(i))
	}
}

func (b *builder) stmt(node *sitter.Node) {
	if node == nil {
		return
	}
	switch node.Kind() {
	case "function_definition":
		b.functionDef(node, nil)
	case "class_definition":
		b.classDef(node, nil)
	case "decorated_definition":
		b.decoratedDef(node)
	case "import_statement":
		b.importStmt(node)
	case "import_from_statement":
		b.fromImportStmt(node)
	case "expression_statement":
		for i := uint(0); i < node.NamedChildCount(); i++ {
			b.exprStmtChild(node.NamedChild(i))
		}
	case "for_statement":
		if left := node.ChildByFieldName("left"); left != nil {
			b.bindTargets(left, BindLoopVar)
		}
		b.expr(node.ChildByFieldName("right"))
		b.fieldBlock(node, "body")
		b.elseClauses(node)
	case "while_statement":
		b.expr(node.ChildByFieldName("condition"))
		b.fieldBlock(node, "body")
		b.elseClauses(node)
	case "if_statement":
		b.expr(node.ChildByFieldName("condition"))
		b.fieldBlock(node, "consequence")
		for i := uint(0); i < node.ChildCount(); i++ {
			child := node.Child(i)
			switch child.Kind() {
			case "elif_clause":
				b.expr(child.ChildByFieldName("condition"))
				b.fieldBlock(child, "consequence")
			case "else_clause":
				b.fieldBlock(child, "body")
			}
		}
	case "try_statement":
		b.fieldBlock(node, "body")
		for i := uint(0); i < node.ChildCount(); i++ {
			child := node.Child(i)
			switch child.Kind() {
			case "except_clause", "except_group_clause":
				b.exceptClause(child)
			case "else_clause", "finally_clause":
				b.fieldBlock(child, "body")
			}
		}
	case "with_statement":
		for i := uint(0); i < node.ChildCount(); i++ {
			if child := node.Child(i); child.Kind() == "with_clause" {
				for j := uint(0); j < child.NamedChildCount(); j++ {
					b.withItem(child.NamedChild(j))
				}
			}
		}
		b.fieldBlock(node, "body")
	case "match_statement":
		b.expr(node.ChildByFieldName("subject"))
		for i := uint(0); i < node.ChildCount(); i++ {
			if child := node.Child(i); child.Kind() == "case_clause" {
				for j := uint(0); j < child.NamedChildCount(); j++ {
					sub := child.NamedChild(j)
					if sub.Kind() == "block" {
						b.block(sub)
					} else {
						b.expr(sub)
					}
				}
			}
		}
	case "return_statement", "delete_statement", "raise_statement", "assert_statement":
		for i := uint(0); i < node.NamedChildCount(); i++ {
			b.expr(node.NamedChild(i))
		}
	case "global_statement", "nonlocal_statement":
		// The declaration binds in the declaring scope; the names are not
		// uses and receive no expression ids.
		kind := BindGlobal
		if node.Kind() == "nonlocal_statement" {
			kind = BindNonlocal
		}
		for i := uint(0); i < node.NamedChildCount(); i++ {
			child := node.NamedChild(i)
			if child.Kind() != "identifier" {
				continue
			}
			b.bind(Binding{Name: b.src.Slice(child), Kind: kind, Span: parser.NodeSpan(child)})
		}
	case "pass_statement", "break_statement", "continue_statement", "comment":
		// No bindings, no expressions.
	case "block":
		b.block(node)
	default:
		// ERROR nodes and anything unrecognized: descend, stay total.
		for i := uint(0); i < node.ChildCount(); i++ {
			b.stmt(node.Child(i))
		}
	}
}

// exprStmtChild dispatches the direct children of an expression_statement,
// where assignments live in the grammar.
func (b *builder) exprStmtChild(node *sitter.Node) {
	switch node.Kind() {
	case "assignment":
		if typ := node.ChildByFieldName("type"); typ != nil {
			b.expr(typ)
		}
		if right := node.ChildByFieldName("right"); right != nil {
			// Chained targets parse as a nested assignment on the right.
			if right.Kind() == "assignment" {
				b.exprStmtChild(right)
			} else {
				b.expr(right)
			}
		}
		if left := node.ChildByFieldName("left"); left != nil {
			b.bindTargets(left, BindAssignment)
		}
	case "augmented_assignment":
		if right := node.ChildByFieldName("right"); right != nil {
			b.expr(right)
		}
		if left := node.ChildByFieldName("left"); left != nil {
			b.bindTargets(left, BindAssignment)
		}
	default:
		b.expr(node)
	}
}

// bindTargets descends an assignment target, binding each identifier and
// numbering it in the current scope. Attribute and subscript targets are
// uses, not bindings.
func (b *builder) bindTargets(node *sitter.Node, kind BindingKind) {
	switch node.Kind() {
	case "identifier":
		b.number(node)
		b.bind(Binding{Name: b.src.Slice(node), Kind: kind, Span: parser.NodeSpan(node)})
	case "pattern_list", "tuple_pattern", "list_pattern", "list_splat_pattern", "parenthesized_expression":
		for i := uint(0); i < node.NamedChildCount(); i++ {
			b.bindTargets(node.NamedChild(i), kind)
		}
	default:
		b.expr(node)
	}
}

func (b *builder) elseClauses(node *sitter.Node) {
	for i := uint(0); i < node.ChildCount(); i++ {
		if child := node.Child(i); child.Kind() == "else_clause" {
			b.fieldBlock(child, "body")
		}
	}
}

func (b *builder) fieldBlock(node *sitter.Node, field string) {
	if body := node.ChildByFieldName(field); body != nil {
		b.block(body)
	}
}

func (b *builder) exceptClause(node *sitter.Node) {
	sawAs := false
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		switch {
		case child.Kind() == "as":
			sawAs = true
		case child.Kind() == "as_pattern":
			b.bindAsPattern(child, BindExceptVar)
		case sawAs && child.Kind() == "identifier":
			b.number(child)
			b.bind(Binding{Name: b.src.Slice(child), Kind: BindExceptVar, Span: parser.NodeSpan(child)})
			sawAs = false
		case child.Kind() == "block":
			b.block(child)
		case child.IsNamed():
			b.expr(child)
		}
	}
}

// bindAsPattern handles `expr as target`, which the grammar wraps in an
// as_pattern for with items and newer except clauses.
func (b *builder) bindAsPattern(node *sitter.Node, kind BindingKind) {
	b.expr(node.Child(0))
	if alias := node.ChildByFieldName("alias"); alias != nil {
		target := alias
		if alias.Kind() == "as_pattern_target" && alias.NamedChildCount() > 0 {
			target = alias.NamedChild(0)
		}
		b.bindTargets(target, kind)
	}
}

func (b *builder) withItem(node *sitter.Node) {
	if node.Kind() != "with_item" {
		return
	}
	value := node.ChildByFieldName("value")
	if value == nil {
		return
	}
	if value.Kind() == "as_pattern" {
		b.bindAsPattern(value, BindWithVar)
		return
	}
	b.expr(value)
}

func (b *builder) importStmt(node *sitter.Node) {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		switch child.Kind() {
		case "dotted_name", "identifier":
			module := b.src.Slice(child)
			b.bind(Binding{
				Name:   firstComponent(module),
				Kind:   BindImport,
				Span:   parser.NodeSpan(child),
				Module: module,
			})
		case "aliased_import":
			name := child.ChildByFieldName("name")
			alias := child.ChildByFieldName("alias")
			if name == nil || alias == nil {
				continue
			}
			b.bind(Binding{
				Name:   b.src.Slice(alias),
				Kind:   BindImport,
				Span:   parser.NodeSpan(child),
				Module: b.src.Slice(name),
			})
		}
	}
}

func (b *builder) fromImportStmt(node *sitter.Node) {
	module := ""
	level := 0
	if mod := node.ChildByFieldName("module_name"); mod != nil {
		switch mod.Kind() {
		case "relative_import":
			text := b.src.Slice(mod)
			trimmed := strings.TrimLeft(text, ".")
			level = len(text) - len(trimmed)
			module = trimmed
		default:
			module = b.src.Slice(mod)
		}
	}

	sawImport := false
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child.Kind() == "import" {
			sawImport = true
			continue
		}
		if !sawImport {
			continue
		}
		switch child.Kind() {
		case "dotted_name", "identifier":
			member := b.src.Slice(child)
			b.bind(Binding{
				Name:   lastComponent(member),
				Kind:   BindImport,
				Span:   parser.NodeSpan(child),
				Module: module,
				Member: member,
				Level:  level,
			})
		case "aliased_import":
			name := child.ChildByFieldName("name")
			alias := child.ChildByFieldName("alias")
			if name == nil || alias == nil {
				continue
			}
			b.bind(Binding{
				Name:   b.src.Slice(alias),
				Kind:   BindImport,
				Span:   parser.NodeSpan(child),
				Module: module,
				Member: b.src.Slice(name),
				Level:  level,
			})
		case "import_list":
			for j := uint(0); j < child.NamedChildCount(); j++ {
				b.fromImportName(child.NamedChild(j), module, level)
			}
		case "wildcard_import":
			// Star imports bind nothing resolvable statically.
		}
	}
}

func (b *builder) fromImportName(node *sitter.Node, module string, level int) {
	switch node.Kind() {
	case "dotted_name", "identifier":
		member := b.src.Slice(node)
		b.bind(Binding{
			Name:   lastComponent(member),
			Kind:   BindImport,
			Span:   parser.NodeSpan(node),
			Module: module,
			Member: member,
			Level:  level,
		})
	case "aliased_import":
		name := node.ChildByFieldName("name")
		alias := node.ChildByFieldName("alias")
		if name == nil || alias == nil {
			return
		}
		b.bind(Binding{
			Name:   b.src.Slice(alias),
			Kind:   BindImport,
			Span:   parser.NodeSpan(node),
			Module: module,
			Member: b.src.Slice(name),
			Level:  level,
		})
	}
}

func (b *builder) decoratedDef(node *sitter.Node) {
	var decorators []string
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child.Kind() != "decorator" {
			continue
		}
		if child.NamedChildCount() > 0 {
			b.expr(child.NamedChild(0))
		}
		dec := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(b.src.Slice(child)), "@"))
		if dec != "" {
			decorators = append(decorators, dec)
		}
	}
	def := node.ChildByFieldName("definition")
	if def == nil {
		return
	}
	switch def.Kind() {
	case "function_definition":
		b.functionDef(def, decorators)
	case "class_definition":
		b.classDef(def, decorators)
	default:
		b.stmt(def)
	}
}

type paramEntry struct {
	param    Param
	nameNode *sitter.Node
}

// collectParams reads a parameter list, numbering annotations and default
// values in the current (enclosing) scope, where Python evaluates them.
func (b *builder) collectParams(params *sitter.Node) []paramEntry {
	if params == nil {
		return nil
	}
	var out []paramEntry
	for i := uint(0); i < params.NamedChildCount(); i++ {
		child := params.NamedChild(i)
		switch child.Kind() {
		case "identifier":
			out = append(out, paramEntry{
				param:    Param{Name: b.src.Slice(child)},
				nameNode: child,
			})
		case "typed_parameter":
			entry := paramEntry{}
			if inner := child.NamedChild(0); inner != nil {
				entry.param.Name, entry.param.Kind, entry.nameNode = b.splatName(inner)
			}
			if typ := child.ChildByFieldName("type"); typ != nil {
				entry.param.Annotation = b.src.Slice(typ)
				b.expr(typ)
			}
			out = append(out, entry)
		case "default_parameter", "typed_default_parameter":
			entry := paramEntry{param: Param{Default: true}}
			if name := child.ChildByFieldName("name"); name != nil {
				entry.param.Name, entry.param.Kind, entry.nameNode = b.splatName(name)
			}
			if typ := child.ChildByFieldName("type"); typ != nil {
				entry.param.Annotation = b.src.Slice(typ)
				b.expr(typ)
			}
			if value := child.ChildByFieldName("value"); value != nil {
				b.expr(value)
			}
			out = append(out, entry)
		case "list_splat_pattern", "dictionary_splat_pattern":
			name, kind, nameNode := b.splatName(child)
			out = append(out, paramEntry{param: Param{Name: name, Kind: kind}, nameNode: nameNode})
		case "keyword_separator":
			out = append(out, paramEntry{param: Param{Kind: ParamStar}})
		case "positional_separator":
			out = append(out, paramEntry{param: Param{Kind: ParamSlash}})
		}
	}
	return out
}

func (b *builder) splatName(node *sitter.Node) (string, ParamKind, *sitter.Node) {
	switch node.Kind() {
	case "identifier":
		return b.src.Slice(node), ParamPositional, node
	case "list_splat_pattern":
		if node.NamedChildCount() > 0 {
			inner := node.NamedChild(0)
			return b.src.Slice(inner), ParamStar, inner
		}
		return "", ParamStar, nil
	case "dictionary_splat_pattern":
		if node.NamedChildCount() > 0 {
			inner := node.NamedChild(0)
			return b.src.Slice(inner), ParamStarStar, inner
		}
		return "", ParamStarStar, nil
	default:
		return "", ParamPositional, nil
	}
}

func (b *builder) functionDef(node *sitter.Node, decorators []string) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := b.src.Slice(nameNode)

	entries := b.collectParams(node.ChildByFieldName("parameters"))
	returns := ""
	if ret := node.ChildByFieldName("return_type"); ret != nil {
		returns = b.src.Slice(ret)
		b.expr(ret)
	}

	info := &FunctionInfo{
		Decorators: decorators,
		Returns:    returns,
		IsAsync:    node.ChildCount() > 0 && node.Child(0).Kind() == "async",
	}
	for _, entry := range entries {
		info.Params = append(info.Params, entry.param)
	}

	parent := b.cur
	scope := b.pushScope(ScopeFunction, name, parser.NodeSpan(node), parent)
	b.ix.scopes[scope].Func = info
	b.bind(Binding{
		Name:    name,
		Kind:    BindFunction,
		Span:    parser.NodeSpan(nameNode),
		Defines: scope,
	})

	b.cur = scope
	for _, entry := range entries {
		if entry.nameNode == nil {
			continue
		}
		b.number(entry.nameNode)
		b.bind(Binding{
			Name: entry.param.Name,
			Kind: BindParameter,
			Span: parser.NodeSpan(entry.nameNode),
		})
	}
	b.fieldBlock(node, "body")
	b.cur = parent
}

func (b *builder) classDef(node *sitter.Node, decorators []string) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := b.src.Slice(nameNode)

	info := &ClassInfo{Decorators: decorators}
	if supers := node.ChildByFieldName("superclasses"); supers != nil {
		for i := uint(0); i < supers.NamedChildCount(); i++ {
			arg := supers.NamedChild(i)
			if arg.Kind() == "keyword_argument" {
				b.expr(arg.ChildByFieldName("value"))
				continue
			}
			info.Bases = append(info.Bases, BaseRef{Text: b.src.Slice(arg), Span: parser.NodeSpan(arg)})
			b.expr(arg)
		}
	}

	parent := b.cur
	scope := b.pushScope(ScopeClass, name, parser.NodeSpan(node), parent)
	b.ix.scopes[scope].Class = info
	b.bind(Binding{
		Name:    name,
		Kind:    BindClass,
		Span:    parser.NodeSpan(nameNode),
		Defines: scope,
	})

	b.cur = scope
	b.fieldBlock(node, "body")
	b.cur = parent
}

func (b *builder) lambda(node *sitter.Node) {
	b.number(node)
	entries := b.collectParams(node.ChildByFieldName("parameters"))

	info := &FunctionInfo{}
	for _, entry := range entries {
		info.Params = append(info.Params, entry.param)
	}

	parent := b.cur
	scope := b.pushScope(ScopeLambda, "", parser.NodeSpan(node), parent)
	b.ix.scopes[scope].Func = info

	b.cur = scope
	for _, entry := range entries {
		if entry.nameNode == nil {
			continue
		}
		b.number(entry.nameNode)
		b.bind(Binding{
			Name: entry.param.Name,
			Kind: BindParameter,
			Span: parser.NodeSpan(entry.nameNode),
		})
	}
	b.expr(node.ChildByFieldName("body"))
	b.cur = parent
}

func (b *builder) comprehension(node *sitter.Node) {
	b.number(node)
	parent := b.cur
	scope := b.pushScope(ScopeComprehension, "", parser.NodeSpan(node), parent)

	b.cur = scope
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		switch child.Kind() {
		case "for_in_clause":
			if left := child.ChildByFieldName("left"); left != nil {
				b.bindTargets(left, BindLoopVar)
			}
			b.expr(child.ChildByFieldName("right"))
		case "if_clause":
			for j := uint(0); j < child.NamedChildCount(); j++ {
				b.expr(child.NamedChild(j))
			}
		default:
			b.expr(child)
		}
	}
	b.cur = parent
}

// numberedExprKind reports whether a node kind receives an expression id.
// Anything else is structural and descended through.
func numberedExprKind(kind string) bool {
	switch kind {
	case "identifier", "attribute", "call", "subscript",
		"binary_operator", "unary_operator", "boolean_operator", "not_operator",
		"comparison_operator", "conditional_expression", "named_expression",
		"await", "yield",
		"list", "tuple", "set", "dictionary",
		"string", "concatenated_string", "integer", "float",
		"true", "false", "none", "ellipsis",
		"parenthesized_expression":
		return true
	}
	return false
}

func (b *builder) expr(node *sitter.Node) {
	if node == nil {
		return
	}
	switch kind := node.Kind(); kind {
	case "lambda":
		b.lambda(node)
	case "list_comprehension", "set_comprehension", "dictionary_comprehension", "generator_expression":
		b.comprehension(node)
	case "named_expression":
		b.number(node)
		if name := node.ChildByFieldName("name"); name != nil {
			b.bindTargets(name, BindAssignment)
		}
		b.expr(node.ChildByFieldName("value"))
	case "attribute":
		// The member identifier is part of this expression, not its own.
		b.number(node)
		b.expr(node.ChildByFieldName("object"))
	case "call":
		b.number(node)
		b.expr(node.ChildByFieldName("function"))
		if args := node.ChildByFieldName("arguments"); args != nil {
			for i := uint(0); i < args.NamedChildCount(); i++ {
				b.expr(args.NamedChild(i))
			}
		}
	case "keyword_argument":
		b.expr(node.ChildByFieldName("value"))
	default:
		if numberedExprKind(kind) {
			b.number(node)
		}
		for i := uint(0); i < node.NamedChildCount(); i++ {
			b.expr(node.NamedChild(i))
		}
	}
}

func firstComponent(dotted string) string {
	if idx := strings.IndexByte(dotted, '.'); idx >= 0 {
		return dotted[:idx]
	}
	return dotted
}

func lastComponent(dotted string) string {
	if idx := strings.LastIndexByte(dotted, '.'); idx >= 0 {
		return dotted[idx+1:]
	}
	return dotted
}
