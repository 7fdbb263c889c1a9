package typecheck

import (
	"strings"

	"pyscope/internal/engine/semantic"
)

// SynthesisKind identifies classes whose members are generated by a
// decorator or a special base rather than written out in the body.
type SynthesisKind uint8

const (
	NotSynthesized SynthesisKind = iota
	DataclassLike
	NamedTupleLike
	TypedDictLike
)

func (k SynthesisKind) String() string {
	switch k {
	case DataclassLike:
		return "dataclass"
	case NamedTupleLike:
		return "named tuple"
	case TypedDictLike:
		return "typed dict"
	default:
		return "plain class"
	}
}

// classify inspects a class declaration for member synthesis. Special
// bases win over decorators when both apply.
func classify(info *semantic.ClassInfo) SynthesisKind {
	if info == nil {
		return NotSynthesized
	}
	for _, base := range info.Bases {
		switch strippedName(base.Text) {
		case "NamedTuple", "typing.NamedTuple":
			return NamedTupleLike
		case "TypedDict", "typing.TypedDict":
			return TypedDictLike
		}
	}
	for _, dec := range info.Decorators {
		switch strippedName(dec) {
		case "dataclass", "dataclasses.dataclass":
			return DataclassLike
		}
	}
	return NotSynthesized
}

// strippedName cuts call arguments and subscripts off a decorator or
// base expression, so "dataclass(frozen=True)" classifies like
// "dataclass".
func strippedName(text string) string {
	if i := strings.IndexAny(text, "(["); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSpace(text)
}

// synthesizedMember returns the signature a synthesis kind generates
// for name. Only members that matter for override checking are
// modeled; field accessors are not.
func synthesizedMember(kind SynthesisKind, name string) (signature, bool) {
	switch kind {
	case DataclassLike:
		switch name {
		case "__repr__":
			return signature{returns: Type{Kind: KindStr}}, true
		case "__eq__":
			return signature{
				positional: []paramSpec{{name: "other", typ: anyType}},
				returns:    Type{Kind: KindBool},
			}, true
		}
	case NamedTupleLike:
		switch name {
		case "_replace":
			return signature{hasStarStar: true, returns: anyType}, true
		case "_asdict":
			return signature{returns: anyType}, true
		}
	}
	return signature{}, false
}
