// Package parser owns source text and syntax trees: it loads the Python
// grammar, recycles tree-sitter parsers, and exposes the memoized text and
// parse queries everything downstream consumes. Parsing is total — malformed
// input yields a tree with error nodes, never a failure.
package parser

import (
	"path/filepath"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
)

// GrammarLoader binds the tree-sitter Python grammar once and hands it out
// to parser pools. The language value is immutable and shared.
type GrammarLoader struct {
	python *sitter.Language
}

func NewGrammarLoader() *GrammarLoader {
	return &GrammarLoader{
		python: sitter.NewLanguage(tree_sitter_python.Language()),
	}
}

func (gl *GrammarLoader) Python() *sitter.Language {
	return gl.python
}

// IsPythonPath reports whether path names a Python source or stub file.
func IsPythonPath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".py", ".pyi":
		return true
	}
	return false
}

// IsStubPath reports whether path names a type-stub file. Stubs win over
// same-root .py files during module resolution.
func IsStubPath(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pyi")
}
