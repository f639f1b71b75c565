package agent

import (
	"bytes"
	"testing"

	"github.com/dhamidi/handlerforge/bytecode"
	"github.com/dhamidi/handlerforge/classfile"
	"github.com/dhamidi/handlerforge/loader"
)

// newInterfaceBytes builds a minimal interface ClassFile named internalName
// with one method per entry in methods (name/descriptor pairs), encodes
// it, and returns the bytes as classfile.Parse would hand back to a
// loader.AmbientSource.
func newInterfaceBytes(t *testing.T, internalName string, methods [][2]string) []byte {
	t.Helper()
	cf := &classfile.ClassFile{MajorVersion: 52}
	cf.ThisClass = cf.AddClass(internalName)
	cf.SuperClass = cf.AddClass("java/lang/Object")
	cf.AccessFlags = classfile.AccInterface | classfile.AccAbstract
	for _, md := range methods {
		cf.Methods = append(cf.Methods, classfile.MethodInfo{
			AccessFlags:     classfile.AccPublic | classfile.AccAbstract,
			NameIndex:       cf.AddUtf8(md[0]),
			DescriptorIndex: cf.AddUtf8(md[1]),
		})
	}
	out, err := classfile.Encode(cf)
	if err != nil {
		t.Fatalf("encode interface: %v", err)
	}
	return out
}

func newHandleeBytes(t *testing.T, internalName string, methodName, methodDesc string) []byte {
	t.Helper()
	cf := &classfile.ClassFile{MajorVersion: 52}
	cf.ThisClass = cf.AddClass(internalName)
	cf.SuperClass = cf.AddClass("java/lang/Object")
	cf.AccessFlags = classfile.AccPublic | classfile.AccSuper

	list := bytecode.NewInsnList()
	list.PushBack(&bytecode.Insn{Op: bytecode.OpReturn})
	dc := &classfile.DecodedCode{MaxStack: 1, MaxLocals: 2, Instructions: list}
	attr, err := dc.Encode(cf)
	if err != nil {
		t.Fatalf("encode method body: %v", err)
	}
	cf.Methods = append(cf.Methods, classfile.MethodInfo{
		AccessFlags:     classfile.AccPublic,
		NameIndex:       cf.AddUtf8(methodName),
		DescriptorIndex: cf.AddUtf8(methodDesc),
		Attributes:      []classfile.AttributeInfo{{NameIndex: cf.AddUtf8("Code"), Parsed: attr}},
	})

	out, err := classfile.Encode(cf)
	if err != nil {
		t.Fatalf("encode handlee: %v", err)
	}
	return out
}

func TestParseConfigParsesFullGrammar(t *testing.T) {
	setups, err := ParseConfig("com.example.WidgetHandler:com.example.Spawners.spawn=com.example.Widget,com.example.Gadget;com.example.OtherHandler")
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if len(setups) != 2 {
		t.Fatalf("len(setups) = %d, want 2", len(setups))
	}

	first := setups[0]
	if first.Handler != "com.example.WidgetHandler" {
		t.Errorf("Handler = %q", first.Handler)
	}
	if first.Spawner == nil || first.Spawner.Owner != "com/example/Spawners" || first.Spawner.Name != "spawn" {
		t.Errorf("Spawner = %+v", first.Spawner)
	}
	if len(first.Handlees) != 2 || first.Handlees[0] != "com.example.Widget" || first.Handlees[1] != "com.example.Gadget" {
		t.Errorf("Handlees = %v", first.Handlees)
	}

	second := setups[1]
	if second.Handler != "com.example.OtherHandler" {
		t.Errorf("Handler = %q", second.Handler)
	}
	if second.Spawner != nil {
		t.Errorf("Spawner = %+v, want nil", second.Spawner)
	}
	if second.Handlees != nil {
		t.Errorf("Handlees = %v, want nil (no '=' clause)", second.Handlees)
	}
}

func TestParseConfigRejectsWhitespace(t *testing.T) {
	if _, err := ParseConfig("com.example.Handler = com.example.Widget"); err == nil {
		t.Fatal("ParseConfig accepted a configuration string containing whitespace")
	}
}

func TestParseConfigToleratesEmptyHandleeList(t *testing.T) {
	setups, err := ParseConfig("com.example.WidgetHandler=")
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if len(setups) != 1 {
		t.Fatalf("len(setups) = %d, want 1", len(setups))
	}
	// '=' followed by nothing splits into a single "" entry; downstream
	// code must tolerate it as "no explicit handlees" rather than reject it.
	if len(setups[0].Handlees) != 1 || setups[0].Handlees[0] != "" {
		t.Errorf("Handlees = %v, want a single empty entry", setups[0].Handlees)
	}
}

func TestAgentTransformAppliesPlan(t *testing.T) {
	handlerBytes := newInterfaceBytes(t, "com/example/WidgetHandler", [][2]string{
		{"onClick", "(Lcom/example/WidgetHandler;I)V"},
	})
	handleeBytes := newHandleeBytes(t, "com/example/Widget", "onClick", "(I)V")

	source := loader.MapAmbientSource{
		"com.example.WidgetHandler": handlerBytes,
	}

	a, err := NewFromConfig(source, "com.example.WidgetHandler=com.example.Widget")
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}

	out, transformed, err := a.Transform("com.example.Widget", handleeBytes)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if !transformed {
		t.Fatal("Transform reported no transformation for a planned handlee")
	}

	cf, err := classfile.Parse(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("parse transformed bytes: %v", err)
	}
	if cf.GetMethod("onClick", "(Lcom/example/WidgetHandler;I)V") == nil {
		t.Error("transformed class is missing the re-roled body method")
	}
}

func TestAgentTransformPassesThroughUnplannedClass(t *testing.T) {
	handlerBytes := newInterfaceBytes(t, "com/example/WidgetHandler", [][2]string{
		{"onClick", "(Lcom/example/WidgetHandler;I)V"},
	})
	source := loader.MapAmbientSource{"com.example.WidgetHandler": handlerBytes}

	a, err := NewFromConfig(source, "com.example.WidgetHandler=com.example.Widget")
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}

	raw := []byte{1, 2, 3}
	out, transformed, err := a.Transform("com.example.Unrelated", raw)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if transformed {
		t.Error("Transform reported transformation for a class outside the plan")
	}
	if !bytes.Equal(out, raw) {
		t.Error("Transform altered bytes for a class outside the plan")
	}
}

func TestAgentPlanFailsOnMissingHandlerBytes(t *testing.T) {
	source := loader.MapAmbientSource{}
	a, err := NewFromConfig(source, "com.example.WidgetHandler=com.example.Widget")
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	if _, err := a.Plan(); err == nil {
		t.Fatal("Plan succeeded despite an unresolvable handler interface")
	}
}

func TestDiagnoseReportsPlanFailures(t *testing.T) {
	manifest := &Manifest{Setup: []ManifestSetup{
		{Handler: "com.example.WidgetHandler", Handlees: []string{"com.example.Widget"}},
	}}
	diags := Diagnose(loader.MapAmbientSource{}, manifest)
	if len(diags) != 1 {
		t.Fatalf("len(diags) = %d, want 1", len(diags))
	}
	if diags[0].Severity != SeverityError {
		t.Errorf("Severity = %v, want SeverityError", diags[0].Severity)
	}
}

func TestManifestSetupsConvertsSpawner(t *testing.T) {
	m := &Manifest{Setup: []ManifestSetup{
		{Handler: "com.example.WidgetHandler", Spawner: "com.example.Spawners.spawn"},
	}}
	setups, err := m.Setups()
	if err != nil {
		t.Fatalf("Setups: %v", err)
	}
	if len(setups) != 1 || setups[0].Spawner == nil || setups[0].Spawner.Name != "spawn" {
		t.Errorf("Setups = %+v", setups)
	}
}
