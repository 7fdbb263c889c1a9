package typecheck

import (
	"context"
	"strings"
	"testing"

	"pyscope/internal/core/ports"
)

func (fx *fixture) mro(t *testing.T, ref ClassRef) MRO {
	t.Helper()
	mro, err := fx.checker.MRO(context.Background(), ref)
	if err != nil {
		t.Fatalf("MRO: %v", err)
	}
	return mro
}

func TestLinearizationDiamond(t *testing.T) {
	fx := newFixture(t, true)
	f := fx.write(t, "diamond.py", `class A:
    pass

class B(A):
    pass

class C(A):
    pass

class D(B, C):
    pass
`)

	want := []ClassRef{
		fx.classRef(t, f, "D"),
		fx.classRef(t, f, "B"),
		fx.classRef(t, f, "C"),
		fx.classRef(t, f, "A"),
		{},
	}
	mro := fx.mro(t, want[0])
	if len(mro.Problems) != 0 {
		t.Fatalf("problems = %v", mro.Problems)
	}
	if len(mro.Linearization) != len(want) {
		t.Fatalf("linearization = %v, want %d entries", mro.Linearization, len(want))
	}
	for i, ref := range want {
		if mro.Linearization[i] != ref {
			t.Errorf("linearization[%d] mismatch", i)
		}
	}
	if !mro.Linearization[len(want)-1].IsObject() {
		t.Error("linearization does not end at object")
	}
}

func TestLinearizationAcrossImports(t *testing.T) {
	fx := newFixture(t, true)
	base := fx.write(t, "pkg/base.py", `class Entity:
    pass
`)
	fx.write(t, "pkg/__init__.py", "")
	models := fx.write(t, "pkg/models.py", `from .base import Entity

class User(Entity):
    pass
`)

	mro := fx.mro(t, fx.classRef(t, models, "User"))
	if len(mro.Problems) != 0 {
		t.Fatalf("problems = %v", mro.Problems)
	}
	if len(mro.Linearization) != 3 {
		t.Fatalf("linearization has %d entries, want 3", len(mro.Linearization))
	}
	if mro.Linearization[1] != fx.classRef(t, base, "Entity") {
		t.Error("base Entity not resolved into pkg/base.py")
	}
}

func TestLinearizationThroughReexport(t *testing.T) {
	fx := newFixture(t, true)
	impl := fx.write(t, "pkg/impl.py", `class Widget:
    pass
`)
	fx.write(t, "pkg/__init__.py", "from .impl import Widget\n")
	app := fx.write(t, "app.py", `from pkg import Widget

class Fancy(Widget):
    pass
`)

	mro := fx.mro(t, fx.classRef(t, app, "Fancy"))
	if len(mro.Problems) != 0 {
		t.Fatalf("problems = %v", mro.Problems)
	}
	if mro.Linearization[1] != fx.classRef(t, impl, "Widget") {
		t.Error("re-exported Widget not resolved into pkg/impl.py")
	}
}

func TestNestedClassBase(t *testing.T) {
	fx := newFixture(t, true)
	f := fx.write(t, "nested.py", `class Outer:
    class Inner:
        pass

class Sub(Outer.Inner):
    pass
`)

	mro := fx.mro(t, fx.classRef(t, f, "Sub"))
	if len(mro.Problems) != 0 {
		t.Fatalf("problems = %v", mro.Problems)
	}
	if mro.Linearization[1] != fx.classRef(t, f, "Inner") {
		t.Error("dotted base Outer.Inner not resolved to the nested class")
	}
}

func TestUnresolvedBaseFallsBackToObject(t *testing.T) {
	fx := newFixture(t, true)
	f := fx.write(t, "orphan.py", `class C(Missing):
    pass
`)

	ref := fx.classRef(t, f, "C")
	mro := fx.mro(t, ref)
	if len(mro.Linearization) != 2 || mro.Linearization[0] != ref || !mro.Linearization[1].IsObject() {
		t.Errorf("linearization = %v, want [C, object]", mro.Linearization)
	}
	if len(mro.Problems) != 1 || mro.Problems[0].Kind != ProblemUnresolvedBase || mro.Problems[0].Base != "Missing" {
		t.Errorf("problems = %v", mro.Problems)
	}

	diags := fx.check(t, f)
	if len(diags) != 1 || diags[0].Rule != ports.RuleUnresolvedBase {
		t.Fatalf("diagnostics = %v, want one unresolved-base finding", diags)
	}
	if !strings.Contains(diags[0].Message, `unresolved base "Missing"`) {
		t.Errorf("message = %q", diags[0].Message)
	}
}

func TestBuiltinBasesAreKnown(t *testing.T) {
	fx := newFixture(t, true)
	f := fx.write(t, "errors.py", `class ParseFailure(Exception):
    pass

class Registry(dict):
    pass
`)

	mro := fx.mro(t, fx.classRef(t, f, "ParseFailure"))
	if len(mro.Problems) != 0 {
		t.Fatalf("problems = %v, builtin bases must not be unresolved", mro.Problems)
	}
	if diags := fx.check(t, f); len(diags) != 0 {
		t.Errorf("diagnostics = %v, want none", diags)
	}
}

func TestInconsistentHierarchy(t *testing.T) {
	fx := newFixture(t, true)
	f := fx.write(t, "order.py", `class A:
    pass

class B:
    pass

class X(A, B):
    pass

class Y(B, A):
    pass

class Z(X, Y):
    pass
`)

	ref := fx.classRef(t, f, "Z")
	mro := fx.mro(t, ref)
	if len(mro.Linearization) != 2 {
		t.Errorf("linearization = %v, want the [Z, object] fallback", mro.Linearization)
	}
	if len(mro.Problems) != 1 || mro.Problems[0].Kind != ProblemInconsistentHierarchy {
		t.Fatalf("problems = %v", mro.Problems)
	}

	diags := fx.check(t, f)
	if len(diags) != 1 || diags[0].Rule != ports.RuleUnresolvedBase {
		t.Fatalf("diagnostics = %v", diags)
	}
	if !strings.Contains(diags[0].Message, "no consistent method resolution order") {
		t.Errorf("message = %q", diags[0].Message)
	}
}

func TestInheritanceCycleIsReportedOnce(t *testing.T) {
	// Cycle errors escalate to panics under debug checks, so this
	// fixture runs without them.
	fx := newFixture(t, false)
	f := fx.write(t, "loop.py", `class A(B):
    pass

class B(A):
    pass
`)

	diags := fx.check(t, f)
	if len(diags) != 1 || diags[0].Rule != ports.RuleUnresolvedBase {
		t.Fatalf("diagnostics = %v, want exactly one cycle finding", diags)
	}
	if !strings.Contains(diags[0].Message, "inheritance cycle") {
		t.Errorf("message = %q", diags[0].Message)
	}

	// Both participants still expose an object-rooted MRO.
	for _, name := range []string{"A", "B"} {
		mro := fx.mro(t, fx.classRef(t, f, name))
		last := mro.Linearization[len(mro.Linearization)-1]
		if !last.IsObject() {
			t.Errorf("MRO of %s = %v, does not end at object", name, mro.Linearization)
		}
	}
}

func TestSelfInheritance(t *testing.T) {
	fx := newFixture(t, false)
	f := fx.write(t, "selfref.py", `class Ouro(Ouro):
    pass
`)

	ref := fx.classRef(t, f, "Ouro")
	mro := fx.mro(t, ref)
	if len(mro.Problems) != 1 || mro.Problems[0].Kind != ProblemInheritanceCycle {
		t.Fatalf("problems = %v", mro.Problems)
	}
	if len(mro.Linearization) != 2 || !mro.Linearization[1].IsObject() {
		t.Errorf("linearization = %v", mro.Linearization)
	}
}

func TestExplicitObjectBase(t *testing.T) {
	fx := newFixture(t, true)
	f := fx.write(t, "plain.py", `class Old(object):
    pass
`)

	ref := fx.classRef(t, f, "Old")
	mro := fx.mro(t, ref)
	if len(mro.Problems) != 0 {
		t.Fatalf("problems = %v", mro.Problems)
	}
	if len(mro.Linearization) != 2 || !mro.Linearization[1].IsObject() {
		t.Errorf("linearization = %v, want [Old, object]", mro.Linearization)
	}
}
