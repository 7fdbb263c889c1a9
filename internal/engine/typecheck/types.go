package typecheck

import (
	"strings"
	"unicode"
)

// TypeKind enumerates the lattice points annotations are compared on.
type TypeKind uint8

const (
	KindAny TypeKind = iota
	KindNone
	KindBool
	KindInt
	KindFloat
	KindStr
	KindBytes
	KindNamed
)

// Type approximates one annotation expression. Unannotated parameters
// and expressions the lattice cannot represent widen to KindAny, which
// is assignable in both directions.
type Type struct {
	Kind TypeKind
	// Name is the dotted source text of a KindNamed annotation.
	Name string
	// Class is the declaration Name resolved to; Resolved reports
	// whether resolution succeeded.
	Class    ClassRef
	Resolved bool
}

var anyType = Type{Kind: KindAny}

var builtinKinds = map[string]TypeKind{
	"None":       KindNone,
	"bool":       KindBool,
	"int":        KindInt,
	"float":      KindFloat,
	"str":        KindStr,
	"bytes":      KindBytes,
	"Any":        KindAny,
	"typing.Any": KindAny,
}

// parseAnnotation maps annotation source text to a lattice point.
// Quoted forward references are unwrapped once before interpretation.
// resolve is consulted for dotted names and may be nil.
func parseAnnotation(text string, resolve func(string) (ClassRef, bool)) Type {
	text = stripQuotes(strings.TrimSpace(text))
	if text == "" {
		return anyType
	}
	if kind, ok := builtinKinds[text]; ok {
		return Type{Kind: kind}
	}
	if text == "object" || text == "builtins.object" {
		return Type{Kind: KindNamed, Name: "object", Resolved: true}
	}
	if !isDottedName(text) {
		return anyType
	}
	t := Type{Kind: KindNamed, Name: text}
	if resolve != nil {
		t.Class, t.Resolved = resolve(text)
	}
	return t
}

func stripQuotes(text string) string {
	if len(text) >= 2 {
		first, last := text[0], text[len(text)-1]
		if first == last && (first == '\'' || first == '"') {
			return strings.TrimSpace(text[1 : len(text)-1])
		}
	}
	return text
}

// isDottedName reports whether text is a plain dotted identifier chain.
// Subscripts, unions and call expressions fail this test and widen to
// Any.
func isDottedName(text string) bool {
	for _, part := range strings.Split(text, ".") {
		if part == "" {
			return false
		}
		for i, r := range part {
			if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
				continue
			}
			return false
		}
	}
	return true
}

// assignable reports whether a value of type sub may flow where super
// is expected. subclasses consults the class hierarchy for nominal
// types and may be nil.
func assignable(sub, super Type, subclasses func(sub, super ClassRef) bool) bool {
	if sub.Kind == KindAny || super.Kind == KindAny {
		return true
	}
	if super.Kind == KindNamed && super.Resolved && super.Class.IsObject() {
		return true
	}
	if sub.Kind == KindNamed || super.Kind == KindNamed {
		if sub.Kind != super.Kind {
			return false
		}
		if sub.Resolved && super.Resolved && subclasses != nil {
			return subclasses(sub.Class, super.Class)
		}
		return sub.Name == super.Name
	}
	if sub.Kind == super.Kind {
		return true
	}
	switch super.Kind {
	case KindInt:
		return sub.Kind == KindBool
	case KindFloat:
		return sub.Kind == KindBool || sub.Kind == KindInt
	}
	return false
}
