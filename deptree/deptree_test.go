package deptree

import (
	"reflect"
	"testing"
)

func TestLoadOrdersOuterBeforeInner(t *testing.T) {
	tr := New()
	tr.Declare("com/example/Outer$Inner")

	order, err := tr.Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	outerIdx := indexOf(order, "com/example/Outer")
	innerIdx := indexOf(order, "com/example/Outer$Inner")
	if outerIdx < 0 || innerIdx < 0 || outerIdx > innerIdx {
		t.Errorf("order = %v, want Outer before Outer$Inner", order)
	}
}

func TestLoadOrdersDependencyBeforeDependent(t *testing.T) {
	tr := New()
	tr.AddDependsOn("com/example/Widget", "com/example/WidgetHandler")

	order, err := tr.Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(order, []string{"com/example/WidgetHandler", "com/example/Widget"}) {
		t.Errorf("order = %v", order)
	}
}

func TestLoadEmptyQueryMeansEverythingDeclared(t *testing.T) {
	tr := New()
	tr.Declare("a/A")
	tr.Declare("a/B")
	tr.Declare("a/C")

	order, err := tr.Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(order, []string{"a/A", "a/B", "a/C"}) {
		t.Errorf("order = %v, want lexical order for unrelated classes", order)
	}
}

func TestLoadRestrictsToRequestedSet(t *testing.T) {
	tr := New()
	tr.AddDependsOn("a/Handlee", "a/Handler")
	tr.Declare("a/Unrelated")

	order, err := tr.Load([]string{"a/Handlee", "a/Handler"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(order, []string{"a/Handler", "a/Handlee"}) {
		t.Errorf("order = %v", order)
	}
}

func TestLoadDoesNotPullInUnrequestedDependencies(t *testing.T) {
	tr := New()
	tr.AddDependsOn("a/Handlee", "a/Handler")

	order, err := tr.Load([]string{"a/Handlee"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(order, []string{"a/Handlee"}) {
		t.Errorf("order = %v, want only the requested name", order)
	}
}

func TestLoadIsDeterministicAmongTies(t *testing.T) {
	tr := New()
	tr.Declare("z/Z")
	tr.Declare("a/A")
	tr.Declare("m/M")

	first, err := tr.Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	second, err := tr.Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Load is not deterministic: %v != %v", first, second)
	}
	if !reflect.DeepEqual(first, []string{"a/A", "m/M", "z/Z"}) {
		t.Errorf("order = %v, want lexical", first)
	}
}

func TestLoadDetectsCycle(t *testing.T) {
	tr := New()
	tr.AddDependsOn("a/A", "a/B")
	tr.AddDependsOn("a/B", "a/A")

	_, err := tr.Load(nil)
	if err == nil {
		t.Fatal("Load accepted a cyclic graph")
	}
}

func TestDeclaredListsEveryName(t *testing.T) {
	tr := New()
	tr.AddContains("a/Outer", "a/Outer$Inner")
	tr.AddDependsOn("a/Outer$Inner", "a/Handler")

	got := tr.Declared()
	want := []string{"a/Handler", "a/Outer", "a/Outer$Inner"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Declared() = %v, want %v", got, want)
	}
}

func TestAddEdgeIsIdempotent(t *testing.T) {
	tr := New()
	tr.AddContains("a/Outer", "a/Outer$Inner")
	tr.AddContains("a/Outer", "a/Outer$Inner")

	if got := len(tr.succ["a/Outer"]); got != 1 {
		t.Errorf("duplicate AddContains calls produced %d edges, want 1", got)
	}
}

func indexOf(ss []string, s string) int {
	for i, v := range ss {
		if v == s {
			return i
		}
	}
	return -1
}
