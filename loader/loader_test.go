package loader

import (
	"testing"

	"github.com/dhamidi/handlerforge/deptree"
)

func TestDefineAllResolvesOwnBytesBeforeAmbient(t *testing.T) {
	tree := deptree.New()
	tree.AddDependsOn("com/example/Widget", "com/example/WidgetHandler")

	ld := New(tree, Options{})
	ld.Install("com/example/Widget", []byte("rewritten-widget"))

	domain := NewMemoryDomain()
	ambient := MapAmbientSource{"com/example/WidgetHandler": []byte("handler-iface")}

	if err := ld.DefineAll(domain, ambient, nil); err != nil {
		t.Fatalf("DefineAll: %v", err)
	}
	if b, _ := domain.Bytes("com/example/Widget"); string(b) != "rewritten-widget" {
		t.Errorf("Widget bytes = %q", b)
	}
	if b, _ := domain.Bytes("com/example/WidgetHandler"); string(b) != "handler-iface" {
		t.Errorf("WidgetHandler bytes = %q", b)
	}
}

func TestDefineAllOrdersHandlerBeforeHandlee(t *testing.T) {
	tree := deptree.New()
	tree.AddDependsOn("a/Handlee", "a/Handler")

	ld := New(tree, Options{})
	ld.Install("a/Handlee", []byte("handlee"))
	ld.Install("a/Handler", []byte("handler"))

	domain := &orderRecordingDomain{MemoryDomain: NewMemoryDomain()}
	if err := ld.DefineAll(domain, MapAmbientSource{}, nil); err != nil {
		t.Fatalf("DefineAll: %v", err)
	}
	if len(domain.order) != 2 || domain.order[0] != "a/Handler" || domain.order[1] != "a/Handlee" {
		t.Errorf("define order = %v, want [a/Handler a/Handlee]", domain.order)
	}
}

func TestDefineAllFailsOnRedeclareWithoutReload(t *testing.T) {
	tree := deptree.New()
	ld := New(tree, Options{})
	ld.Install("a/A", []byte("v1"))

	domain := NewMemoryDomain()
	domain.Define("a/A", []byte("already-there"))

	if err := ld.DefineAll(domain, MapAmbientSource{}, nil); err == nil {
		t.Fatal("DefineAll accepted a redeclaration without reload mode")
	}
}

func TestDefineAllShadowsOwnBytesInReloadMode(t *testing.T) {
	tree := deptree.New()
	ld := New(tree, Options{Reload: true})
	ld.Install("a/A", []byte("v2"))

	domain := NewMemoryDomain()
	domain.Define("a/A", []byte("v1"))

	if err := ld.DefineAll(domain, MapAmbientSource{}, nil); err != nil {
		t.Fatalf("DefineAll: %v", err)
	}
	if b, _ := domain.Bytes("a/A"); string(b) != "v2" {
		t.Errorf("a/A bytes = %q, want v2 after reload", b)
	}
}

func TestDefineAllLeavesAmbientOnlyClassesAloneInReloadMode(t *testing.T) {
	tree := deptree.New()
	tree.Declare("a/AmbientOnly")
	ld := New(tree, Options{Reload: true})

	domain := NewMemoryDomain()
	domain.Define("a/AmbientOnly", []byte("from-ambient"))

	if err := ld.DefineAll(domain, MapAmbientSource{}, nil); err != nil {
		t.Fatalf("DefineAll: %v", err)
	}
	if b, _ := domain.Bytes("a/AmbientOnly"); string(b) != "from-ambient" {
		t.Errorf("a/AmbientOnly bytes = %q, should be untouched", b)
	}
}

func TestDefineAllSkipsReservedSystemPrefix(t *testing.T) {
	tree := deptree.New()
	ld := New(tree, Options{SystemPrefix: "java/"})
	ld.Install("java/lang/Object", []byte("should-not-be-defined-by-us"))

	domain := NewMemoryDomain()
	if err := ld.DefineAll(domain, MapAmbientSource{}, []string{"java/lang/Object"}); err != nil {
		t.Fatalf("DefineAll: %v", err)
	}
	if domain.Defined("java/lang/Object") {
		t.Error("loader defined a reserved-prefix class itself")
	}
}

func TestDefineAllErrorsWhenNoBytesAvailable(t *testing.T) {
	tree := deptree.New()
	tree.Declare("a/Missing")
	ld := New(tree, Options{})

	domain := NewMemoryDomain()
	if err := ld.DefineAll(domain, MapAmbientSource{}, nil); err == nil {
		t.Fatal("DefineAll succeeded with no bytes for a declared class")
	}
}

type orderRecordingDomain struct {
	*MemoryDomain
	order []string
}

func (d *orderRecordingDomain) Define(binaryName string, classBytes []byte) error {
	d.order = append(d.order, binaryName)
	return d.MemoryDomain.Define(binaryName, classBytes)
}
