// # internal/engine/moduleres/modulename.go

// Package moduleres maps dotted Python module names to source files. It
// walks an ordered list of search roots (first-party, site-packages, extra
// paths, stubs) and memoizes resolutions on the query engine, depending on
// the listing of every directory it consulted so that adding or removing a
// file anywhere on the search path invalidates exactly the affected names.
package moduleres

import (
	"strings"
	"unicode"

	"pyscope/internal/core/errors"
)

// ModuleName is a validated absolute dotted module path such as "foo.bar".
// The zero value is not valid; construct through NewModuleName.
type ModuleName string

// NewModuleName validates raw as a dotted module path: non-empty, no
// leading/trailing/doubled dots, every component a Python identifier.
func NewModuleName(raw string) (ModuleName, error) {
	if raw == "" {
		return "", errors.New(errors.CodeValidationError, "module name is empty")
	}
	for _, part := range strings.Split(raw, ".") {
		if part == "" {
			err := errors.New(errors.CodeValidationError, "module name has an empty component")
			return "", errors.AddContext(err, errors.CtxModule, raw)
		}
		if !isIdentifier(part) {
			err := errors.New(errors.CodeValidationError, "module name component is not an identifier")
			return "", errors.AddContext(err, errors.CtxModule, raw)
		}
	}
	return ModuleName(raw), nil
}

func (m ModuleName) String() string { return string(m) }

// Components splits the name at dots. Validated names always yield at least
// one component.
func (m ModuleName) Components() []string {
	return strings.Split(string(m), ".")
}

// Parent strips the final component. The second result is false for
// top-level modules.
func (m ModuleName) Parent() (ModuleName, bool) {
	idx := strings.LastIndexByte(string(m), '.')
	if idx < 0 {
		return "", false
	}
	return m[:idx], true
}

// Ancestor applies Parent the given number of times. Ancestor(0) is the name
// itself; the second result is false when the name is not deep enough.
func (m ModuleName) Ancestor(levels int) (ModuleName, bool) {
	cur := m
	for i := 0; i < levels; i++ {
		parent, ok := cur.Parent()
		if !ok {
			return "", false
		}
		cur = parent
	}
	return cur, true
}

// StartsWith reports whether m is prefix itself or a submodule of it.
func (m ModuleName) StartsWith(prefix ModuleName) bool {
	if m == prefix {
		return true
	}
	return strings.HasPrefix(string(m), string(prefix)+".")
}

// Child appends one component, validating it as an identifier.
func (m ModuleName) Child(component string) (ModuleName, error) {
	if !isIdentifier(component) {
		err := errors.New(errors.CodeValidationError, "module name component is not an identifier")
		return "", errors.AddContext(err, errors.CtxModule, component)
	}
	return ModuleName(string(m) + "." + component), nil
}

func isIdentifier(s string) bool {
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) {
			continue
		}
		if i > 0 && unicode.IsDigit(r) {
			continue
		}
		return false
	}
	return s != ""
}
