package handlerspec

import (
	"testing"

	"github.com/dhamidi/handlerforge/classfile"
)

// newInterface builds a minimal interface ClassFile named internalName
// with the given methods, each described by name/descriptor pairs.
func newInterface(internalName string, methods [][2]string) *classfile.ClassFile {
	cf := &classfile.ClassFile{MajorVersion: 52}
	cf.ThisClass = cf.AddClass(internalName)
	cf.AccessFlags = classfile.AccessFlags(0x0600) // ACC_INTERFACE | ACC_ABSTRACT
	for _, md := range methods {
		cf.Methods = append(cf.Methods, classfile.MethodInfo{
			NameIndex:       cf.AddUtf8(md[0]),
			DescriptorIndex: cf.AddUtf8(md[1]),
		})
	}
	return cf
}

func TestAnalyzeRecognizesAccessorAndMutator(t *testing.T) {
	cf := newInterface("com/example/WidgetHandler", [][2]string{
		{"getWidgetHandler", "()Lcom/example/WidgetHandler;"},
		{"setWidgetHandler", "(Lcom/example/WidgetHandler;)V"},
	})

	spec, _, err := Analyze(cf, Options{})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(spec.Accessors) != 1 || spec.Accessors[0] != "getWidgetHandler" {
		t.Errorf("Accessors = %v, want [getWidgetHandler]", spec.Accessors)
	}
	if len(spec.Mutators) != 1 || spec.Mutators[0] != "setWidgetHandler" {
		t.Errorf("Mutators = %v, want [setWidgetHandler]", spec.Mutators)
	}
	if spec.NullGuard != CheckBeforeCall {
		t.Errorf("NullGuard = %v, want CheckBeforeCall default", spec.NullGuard)
	}
}

func TestAnalyzeRecognizesAccessorByBareAndCamelNames(t *testing.T) {
	cf := newInterface("com/example/WidgetHandler", [][2]string{
		{"widgetHandler", "()Lcom/example/WidgetHandler;"},
		{"WidgetHandler", "(Lcom/example/WidgetHandler;)V"},
	})

	spec, _, err := Analyze(cf, Options{})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(spec.Accessors) != 1 || spec.Accessors[0] != "widgetHandler" {
		t.Errorf("Accessors = %v", spec.Accessors)
	}
	if len(spec.Mutators) != 1 || spec.Mutators[0] != "WidgetHandler" {
		t.Errorf("Mutators = %v", spec.Mutators)
	}
}

func TestAnalyzeRecordsInterceptedSignature(t *testing.T) {
	cf := newInterface("com/example/WidgetHandler", [][2]string{
		{"onClick", "(Lcom/example/WidgetHandler;I)V"},
	})

	spec, _, err := Analyze(cf, Options{})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(spec.InterceptedSignatures) != 1 || spec.InterceptedSignatures[0] != "onClick(I)V" {
		t.Errorf("InterceptedSignatures = %v, want [onClick(I)V]", spec.InterceptedSignatures)
	}
}

func TestAnalyzeIsIdempotent(t *testing.T) {
	cf := newInterface("com/example/WidgetHandler", [][2]string{
		{"getWidgetHandler", "()Lcom/example/WidgetHandler;"},
		{"onClick", "(Lcom/example/WidgetHandler;I)V"},
	})

	s1, _, err := Analyze(cf, Options{})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	s2, _, err := Analyze(cf, Options{})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !s1.Equal(s2) {
		t.Errorf("Analyze is not idempotent: %+v != %+v", s1, s2)
	}
}

func TestAnalyzeValidatesConfiguredSpawner(t *testing.T) {
	cf := newInterface("com/example/WidgetHandler", nil)

	_, _, err := Analyze(cf, Options{
		Spawner: &SpawnerRef{
			Owner:      "com/example/Spawners",
			Name:       "spawn",
			Descriptor: "()V", // wrong: must be (handlerType)handlerType
		},
	})
	if err == nil {
		t.Fatal("Analyze accepted a spawner with the wrong descriptor")
	}
}

func TestAnalyzeAcceptsValidConfiguredSpawner(t *testing.T) {
	cf := newInterface("com/example/WidgetHandler", nil)

	ref := &SpawnerRef{
		Owner:      "com/example/Spawners",
		Name:       "spawn",
		Descriptor: "(Lcom/example/WidgetHandler;)Lcom/example/WidgetHandler;",
	}
	spec, _, err := Analyze(cf, Options{Spawner: ref})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if spec.Spawner == nil || *spec.Spawner != *ref {
		t.Errorf("Spawner = %v, want %v", spec.Spawner, ref)
	}
}

func TestAnalyzeDiscardsNativePrefixBelowBaseline(t *testing.T) {
	cf := newInterface("com/example/WidgetHandler", nil)
	cf.MajorVersion = 50

	spec, _, err := Analyze(cf, Options{NativePrefix: "$$", AgentCapableBaseline: 52})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if spec.NativePrefix != "" {
		t.Errorf("NativePrefix = %q, want empty below baseline", spec.NativePrefix)
	}
}

func TestAnalyzeRetainsNativePrefixAtOrAboveBaseline(t *testing.T) {
	cf := newInterface("com/example/WidgetHandler", nil)
	cf.MajorVersion = 52

	spec, _, err := Analyze(cf, Options{NativePrefix: "$$", AgentCapableBaseline: 52})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if spec.NativePrefix != "$$" {
		t.Errorf("NativePrefix = %q, want $$", spec.NativePrefix)
	}
}
