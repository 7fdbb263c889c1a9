package typecheck

import "pyscope/internal/engine/semantic"

// paramSpec is one parameter of a bound signature.
type paramSpec struct {
	name       string
	typ        Type
	hasDefault bool
}

// signature is a callable as seen through an instance attribute: the
// receiver is already dropped and star parameters are folded into
// capability flags.
type signature struct {
	positional  []paramSpec
	posOnly     int
	keywordOnly map[string]paramSpec
	hasStar     bool
	starType    Type
	hasStarStar bool
	returns     Type
}

// bindSignature converts a function declaration into a signature.
// parse maps annotation text to lattice types.
func bindSignature(info *semantic.FunctionInfo, parse func(string) Type) signature {
	sig := signature{returns: parse(info.Returns)}
	seenStar := false
	for _, p := range info.Params {
		switch p.Kind {
		case semantic.ParamSlash:
			sig.posOnly = len(sig.positional)
		case semantic.ParamStar:
			seenStar = true
			if p.Name != "" {
				sig.hasStar = true
				sig.starType = parse(p.Annotation)
			}
		case semantic.ParamStarStar:
			sig.hasStarStar = true
		default:
			spec := paramSpec{name: p.Name, typ: parse(p.Annotation), hasDefault: p.Default}
			if seenStar {
				if sig.keywordOnly == nil {
					sig.keywordOnly = make(map[string]paramSpec)
				}
				sig.keywordOnly[p.Name] = spec
			} else {
				sig.positional = append(sig.positional, spec)
			}
		}
	}
	return sig
}

// dropReceiver removes the implicit self parameter.
func (s signature) dropReceiver() signature {
	if len(s.positional) > 0 {
		s.positional = s.positional[1:]
		if s.posOnly > 0 {
			s.posOnly--
		}
	}
	return s
}

func (s signature) requiredPositional() int {
	n := 0
	for _, p := range s.positional {
		if !p.hasDefault {
			n++
		}
	}
	return n
}

// keywordParam finds a parameter that can be addressed by keyword:
// either a positional parameter past the positional-only marker or a
// keyword-only one.
func (s signature) keywordParam(name string) (paramSpec, bool) {
	for i := s.posOnly; i < len(s.positional); i++ {
		if s.positional[i].name == name {
			return s.positional[i], true
		}
	}
	spec, ok := s.keywordOnly[name]
	return spec, ok
}

// compatibleSignature reports whether sub can stand in for super at
// every call site super accepts: covariant return, contravariant
// parameters, and no loss of arity or keyword capability.
func compatibleSignature(sub, super signature, subclasses func(sub, super ClassRef) bool) bool {
	if !assignable(sub.returns, super.returns, subclasses) {
		return false
	}
	// Every required positional of sub must be guaranteed an argument:
	// either super forces one at the same position, or super has a
	// required parameter of the same name that callers pass by keyword.
	for i, p := range sub.positional {
		if p.hasDefault || i < super.requiredPositional() {
			continue
		}
		if sp, ok := super.keywordParam(p.name); ok && !sp.hasDefault {
			continue
		}
		return false
	}
	if super.hasStar && !sub.hasStar {
		return false
	}
	if super.hasStarStar && !sub.hasStarStar {
		return false
	}
	for i, sp := range super.positional {
		subType := sub.starType
		if i < len(sub.positional) {
			subType = sub.positional[i].typ
		} else if !sub.hasStar {
			return false
		}
		if !assignable(sp.typ, subType, subclasses) {
			return false
		}
		if i >= super.posOnly {
			if _, ok := sub.keywordParam(sp.name); !ok && !sub.hasStarStar {
				return false
			}
		}
	}
	for name, sp := range super.keywordOnly {
		spec, ok := sub.keywordParam(name)
		if !ok {
			if !sub.hasStarStar {
				return false
			}
			continue
		}
		if !assignable(sp.typ, spec.typ, subclasses) {
			return false
		}
		if sp.hasDefault && !spec.hasDefault {
			return false
		}
	}
	for name, spec := range sub.keywordOnly {
		if spec.hasDefault {
			continue
		}
		if _, ok := super.keywordParam(name); !ok {
			return false
		}
	}
	return true
}
