package classfile

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// bb is a tiny big-endian byte builder for hand-assembling attribute Info
// payloads in these tests. The retrieval pack carries no compiled .class
// fixtures for this package to load from disk, so every fixture here is
// built in Go and round-tripped through Encode/Parse instead.
type bb struct{ buf []byte }

func (b *bb) u1(v uint8) *bb  { b.buf = append(b.buf, v); return b }
func (b *bb) u2(v uint16) *bb { b.buf = binary.BigEndian.AppendUint16(b.buf, v); return b }
func (b *bb) u4(v uint32) *bb { b.buf = binary.BigEndian.AppendUint32(b.buf, v); return b }
func (b *bb) bytes() []byte   { return b.buf }

func attr(cf *ClassFile, name string, info []byte) AttributeInfo {
	return AttributeInfo{NameIndex: cf.AddUtf8(name), Info: info}
}

func roundTrip(t *testing.T, cf *ClassFile) *ClassFile {
	t.Helper()
	encoded, err := Encode(cf)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	parsed, err := Parse(bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("Parse(Encode(cf)): %v", err)
	}
	return parsed
}

func newClassFile(name, super string) *ClassFile {
	cf := &ClassFile{MinorVersion: 0, MajorVersion: 61}
	cf.ThisClass = cf.AddClass(name)
	cf.SuperClass = cf.AddClass(super)
	cf.AccessFlags = AccessFlags(0x0021) // ACC_PUBLIC | ACC_SUPER
	return cf
}

func TestParseClassFile(t *testing.T) {
	cf := newClassFile("testdata/TestClass", "java/lang/Object")
	cf.Interfaces = append(cf.Interfaces, cf.AddClass("java/lang/Runnable"))

	cf.Fields = []FieldInfo{
		{
			AccessFlags:     AccessFlags(0x0019), // public static final
			NameIndex:       cf.AddUtf8("CONSTANT_VALUE"),
			DescriptorIndex: cf.AddUtf8("I"),
		},
		{
			AccessFlags:     AccessFlags(0x0002), // private
			NameIndex:       cf.AddUtf8("name"),
			DescriptorIndex: cf.AddUtf8("Ljava/lang/String;"),
		},
		{
			AccessFlags:     AccessFlags(0x0004), // protected
			NameIndex:       cf.AddUtf8("count"),
			DescriptorIndex: cf.AddUtf8("I"),
		},
	}

	codeBody := (&bb{}).u2(1).u2(1).u4(2).bytes()
	codeBody = append(codeBody, 0x2A, 0xB0) // aload_0, areturn
	codeBody = append(codeBody, (&bb{}).u2(0).u2(0).bytes()...)

	cf.Methods = []MethodInfo{
		{AccessFlags: 0x0001, NameIndex: cf.AddUtf8("<init>"), DescriptorIndex: cf.AddUtf8("()V")},
		{AccessFlags: 0x0001, NameIndex: cf.AddUtf8("<init>"), DescriptorIndex: cf.AddUtf8("(Ljava/lang/String;)V")},
		{
			AccessFlags:     0x0001, // public
			NameIndex:       cf.AddUtf8("getName"),
			DescriptorIndex: cf.AddUtf8("()Ljava/lang/String;"),
			Attributes:      []AttributeInfo{attr(cf, "Code", codeBody)},
		},
		{AccessFlags: 0x0001, NameIndex: cf.AddUtf8("setName"), DescriptorIndex: cf.AddUtf8("(Ljava/lang/String;)V")},
		{AccessFlags: 0x000A, NameIndex: cf.AddUtf8("helper"), DescriptorIndex: cf.AddUtf8("(II)I")}, // private static
		{AccessFlags: 0x0001, NameIndex: cf.AddUtf8("run"), DescriptorIndex: cf.AddUtf8("()V")},
	}

	sourceFileBody := (&bb{}).u2(cf.AddUtf8("TestClass.java")).bytes()
	cf.Attributes = []AttributeInfo{attr(cf, "SourceFile", sourceFileBody)}

	cf = roundTrip(t, cf)

	t.Run("class name", func(t *testing.T) {
		if got := cf.ClassName(); got != "testdata/TestClass" {
			t.Errorf("ClassName() = %q", got)
		}
	})

	t.Run("super class", func(t *testing.T) {
		if got := cf.SuperClassName(); got != "java/lang/Object" {
			t.Errorf("SuperClassName() = %q", got)
		}
	})

	t.Run("interfaces", func(t *testing.T) {
		interfaces := cf.InterfaceNames()
		if len(interfaces) != 1 || interfaces[0] != "java/lang/Runnable" {
			t.Errorf("InterfaceNames() = %v", interfaces)
		}
	})

	t.Run("is class", func(t *testing.T) {
		if !cf.IsClass() || cf.IsInterface() {
			t.Error("expected IsClass true, IsInterface false")
		}
	})

	t.Run("access flags", func(t *testing.T) {
		if !cf.AccessFlags.IsPublic() || cf.AccessFlags.IsFinal() {
			t.Error("expected public, non-final class")
		}
	})

	t.Run("fields", func(t *testing.T) {
		if len(cf.Fields) != 3 {
			t.Fatalf("len(Fields) = %d, want 3", len(cf.Fields))
		}
		cv := cf.GetField("CONSTANT_VALUE")
		if cv == nil || !cv.IsPublic() || !cv.IsStatic() || !cv.IsFinal() {
			t.Error("CONSTANT_VALUE should be public static final")
		}
		name := cf.GetField("name")
		if name == nil || !name.IsPrivate() || name.Descriptor(cf.ConstantPool) != "Ljava/lang/String;" {
			t.Error("name field mismatch")
		}
		count := cf.GetField("count")
		if count == nil || !count.IsProtected() {
			t.Error("count field should be protected")
		}
	})

	t.Run("methods", func(t *testing.T) {
		if len(cf.GetMethods("<init>")) != 2 {
			t.Errorf("constructors = %d, want 2", len(cf.GetMethods("<init>")))
		}
		if m := cf.GetMethod("getName", "()Ljava/lang/String;"); m == nil || !m.IsPublic() {
			t.Error("expected public getName")
		}
		if cf.GetMethod("setName", "(Ljava/lang/String;)V") == nil {
			t.Error("expected setName")
		}
		if m := cf.GetMethod("helper", "(II)I"); m == nil || !m.IsPrivate() || !m.IsStatic() {
			t.Error("expected private static helper")
		}
		if cf.GetMethod("run", "()V") == nil {
			t.Error("expected run")
		}
	})

	t.Run("method code attribute", func(t *testing.T) {
		m := cf.GetMethod("getName", "()Ljava/lang/String;")
		code := m.GetCodeAttribute(cf.ConstantPool)
		if code == nil || code.MaxStack == 0 || code.MaxLocals == 0 || len(code.Code) == 0 {
			t.Fatal("expected non-empty Code attribute on getName")
		}
	})

	t.Run("unrecognized class attribute survives round-trip raw", func(t *testing.T) {
		a := cf.GetAttribute("SourceFile")
		if a == nil || len(a.Info) == 0 {
			t.Fatal("expected a raw SourceFile attribute body")
		}
	})
}

func TestParseFieldDescriptor(t *testing.T) {
	tests := []struct {
		desc       string
		baseType   string
		className  string
		arrayDepth int
	}{
		{"I", "int", "", 0},
		{"Z", "boolean", "", 0},
		{"Ljava/lang/String;", "", "java/lang/String", 0},
		{"[I", "int", "", 1},
		{"[[D", "double", "", 2},
		{"[Ljava/lang/Object;", "", "java/lang/Object", 1},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			ft := ParseFieldDescriptor(tt.desc)
			if ft == nil {
				t.Fatalf("ParseFieldDescriptor(%q) returned nil", tt.desc)
			}
			if ft.BaseType != tt.baseType {
				t.Errorf("BaseType = %q, want %q", ft.BaseType, tt.baseType)
			}
			if ft.ClassName != tt.className {
				t.Errorf("ClassName = %q, want %q", ft.ClassName, tt.className)
			}
			if ft.ArrayDepth != tt.arrayDepth {
				t.Errorf("ArrayDepth = %d, want %d", ft.ArrayDepth, tt.arrayDepth)
			}
		})
	}
}

func TestParseMethodDescriptor(t *testing.T) {
	tests := []struct {
		desc        string
		numParams   int
		returnsVoid bool
		returnType  string
	}{
		{"()V", 0, true, ""},
		{"()I", 0, false, "int"},
		{"(I)V", 1, true, ""},
		{"(II)I", 2, false, "int"},
		{"(Ljava/lang/String;)V", 1, true, ""},
		{"(IDLjava/lang/Thread;)Ljava/lang/Object;", 3, false, "java/lang/Object"},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			md := ParseMethodDescriptor(tt.desc)
			if md == nil {
				t.Fatalf("ParseMethodDescriptor(%q) returned nil", tt.desc)
			}
			if len(md.Parameters) != tt.numParams {
				t.Errorf("len(Parameters) = %d, want %d", len(md.Parameters), tt.numParams)
			}
			if tt.returnsVoid {
				if md.ReturnType != nil {
					t.Error("expected nil ReturnType for void")
				}
			} else if md.ReturnType == nil {
				t.Error("expected non-nil ReturnType")
			} else if md.ReturnType.BaseType != tt.returnType && md.ReturnType.ClassName != tt.returnType {
				t.Errorf("ReturnType = %+v, want %q", md.ReturnType, tt.returnType)
			}
		})
	}
}

func TestAnnotatedClassAttributes(t *testing.T) {
	cf := newClassFile("testdata/AnnotatedClass", "java/lang/Object")

	annotationType := cf.AddClass("com/example/MyAnnotation")
	annotationBody := (&bb{}).u2(1). // one annotation
						u2(annotationType).u2(0). // type index, 0 element-value pairs
						bytes()
	cf.Attributes = append(cf.Attributes,
		attr(cf, "RuntimeVisibleAnnotations", annotationBody),
		attr(cf, "RuntimeInvisibleAnnotations", annotationBody),
	)

	code := []byte{0x2A, 0xB0} // aload_0, areturn
	lineNumberTable := (&bb{}).u2(1).u2(0).u2(10).bytes()
	localVariableTable := (&bb{}).u2(1).u2(0).u2(2).u2(cf.AddUtf8("this")).u2(cf.AddUtf8("Ltestdata/AnnotatedClass;")).u2(0).bytes()

	fullCodeBody := (&bb{}).u2(1).u2(1).u4(uint32(len(code))).bytes()
	fullCodeBody = append(fullCodeBody, code...)
	fullCodeBody = append(fullCodeBody, (&bb{}).u2(0).bytes()...) // exception table
	fullCodeBody = append(fullCodeBody, (&bb{}).u2(2).bytes()...) // 2 code-level attributes
	fullCodeBody = append(fullCodeBody, attrBytes(cf, "LineNumberTable", lineNumberTable)...)
	fullCodeBody = append(fullCodeBody, attrBytes(cf, "LocalVariableTable", localVariableTable)...)

	cf.Methods = []MethodInfo{
		{
			AccessFlags:     0x0001,
			NameIndex:       cf.AddUtf8("getValue"),
			DescriptorIndex: cf.AddUtf8("()Ljava/lang/Comparable;"),
			Attributes:      []AttributeInfo{attr(cf, "Code", fullCodeBody)},
		},
	}

	cf = roundTrip(t, cf)

	t.Run("RuntimeVisibleAnnotations", func(t *testing.T) {
		a := cf.GetAttribute("RuntimeVisibleAnnotations")
		if a == nil || a.AsRuntimeVisibleAnnotations() == nil || len(a.AsRuntimeVisibleAnnotations().Annotations) == 0 {
			t.Error("expected a runtime visible annotation")
		}
	})

	t.Run("RuntimeInvisibleAnnotations", func(t *testing.T) {
		a := cf.GetAttribute("RuntimeInvisibleAnnotations")
		if a == nil || a.AsRuntimeInvisibleAnnotations() == nil || len(a.AsRuntimeInvisibleAnnotations().Annotations) == 0 {
			t.Error("expected a runtime invisible annotation")
		}
	})

	t.Run("Method LineNumberTable", func(t *testing.T) {
		m := cf.GetMethod("getValue", "()Ljava/lang/Comparable;")
		code := m.GetCodeAttribute(cf.ConstantPool)
		lnt := findSubAttribute(cf, code.Attributes, "LineNumberTable")
		if lnt == nil || lnt.AsLineNumberTable() == nil || len(lnt.AsLineNumberTable().LineNumberTable) == 0 {
			t.Error("expected non-empty LineNumberTable")
		}
	})

	t.Run("Method LocalVariableTable", func(t *testing.T) {
		m := cf.GetMethod("getValue", "()Ljava/lang/Comparable;")
		code := m.GetCodeAttribute(cf.ConstantPool)
		lvt := findSubAttribute(cf, code.Attributes, "LocalVariableTable")
		if lvt == nil || lvt.AsLocalVariableTable() == nil || len(lvt.AsLocalVariableTable().LocalVariableTable) == 0 {
			t.Error("expected non-empty LocalVariableTable")
		}
	})
}

func findSubAttribute(cf *ClassFile, attrs []AttributeInfo, name string) *AttributeInfo {
	for i := range attrs {
		if cf.ConstantPool.GetUtf8(attrs[i].NameIndex) == name {
			return &attrs[i]
		}
	}
	return nil
}

func attrBytes(cf *ClassFile, name string, info []byte) []byte {
	b := (&bb{}).u2(cf.AddUtf8(name)).u4(uint32(len(info)))
	b.buf = append(b.buf, info...)
	return b.bytes()
}

func TestConstantPoolAdvanced(t *testing.T) {
	cf := newClassFile("testdata/ConstantPoolTest", "java/lang/Object")

	longIdx := cf.AddLong(9223372036854775807)
	doubleIdx := cf.AddDouble(1.7976931348623157e308)
	floatIdx := cf.AddFloat(3.4028235e38)
	intIdx := cf.AddInteger(2147483647)
	cf.AddMethodref("java/lang/Object", "toString", "()Ljava/lang/String;")

	cf = roundTrip(t, cf)

	t.Run("Long constant", func(t *testing.T) {
		val, ok := cf.ConstantPool.GetLong(longIdx)
		if !ok || val != 9223372036854775807 {
			t.Errorf("Long value = %d, ok=%v", val, ok)
		}
	})

	t.Run("Double constant", func(t *testing.T) {
		val, ok := cf.ConstantPool.GetDouble(doubleIdx)
		if !ok || val < 1.0e308 {
			t.Errorf("Double value = %e, ok=%v", val, ok)
		}
	})

	t.Run("Float constant", func(t *testing.T) {
		val, ok := cf.ConstantPool.GetFloat(floatIdx)
		if !ok || val < 3.0e38 {
			t.Errorf("Float value = %e, ok=%v", val, ok)
		}
	})

	t.Run("Integer constant", func(t *testing.T) {
		val, ok := cf.ConstantPool.GetInteger(intIdx)
		if !ok || val != 2147483647 {
			t.Errorf("Integer value = %d, ok=%v", val, ok)
		}
	})

	t.Run("Constant pool entry types", func(t *testing.T) {
		tagCounts := make(map[ConstantTag]int)
		for _, entry := range cf.ConstantPool {
			if entry != nil {
				tagCounts[entry.Tag()]++
			}
		}
		for _, tag := range []ConstantTag{ConstantUtf8, ConstantClass, ConstantMethodref, ConstantNameAndType} {
			if tagCounts[tag] == 0 {
				t.Errorf("expected at least one entry with tag %d", tag)
			}
		}
	})
}

func TestConstantPoolAccessorBoundaryConditions(t *testing.T) {
	cf := roundTrip(t, newClassFile("testdata/TestClass", "java/lang/Object"))

	if got := cf.ConstantPool.GetUtf8(0); got != "" {
		t.Error("expected empty string for index 0")
	}
	if got := cf.ConstantPool.GetUtf8(65535); got != "" {
		t.Error("expected empty string for out-of-bounds index")
	}
	if got := cf.ConstantPool.GetClassName(0); got != "" {
		t.Error("expected empty string for index 0")
	}
	if name, desc := cf.ConstantPool.GetNameAndType(0); name != "" || desc != "" {
		t.Error("expected empty strings for index 0")
	}
	if got := cf.ConstantPool.GetString(0); got != "" {
		t.Error("expected empty string for index 0")
	}
	if _, ok := cf.ConstantPool.GetInteger(0); ok {
		t.Error("expected false for index 0")
	}
	if _, ok := cf.ConstantPool.GetLong(0); ok {
		t.Error("expected false for index 0")
	}
	if _, ok := cf.ConstantPool.GetFloat(0); ok {
		t.Error("expected false for index 0")
	}
	if _, ok := cf.ConstantPool.GetDouble(0); ok {
		t.Error("expected false for index 0")
	}
	if cn, n, d := cf.ConstantPool.GetFieldref(0); cn != "" || n != "" || d != "" {
		t.Error("expected empty strings for index 0")
	}
	if cn, n, d := cf.ConstantPool.GetMethodref(0); cn != "" || n != "" || d != "" {
		t.Error("expected empty strings for index 0")
	}
	if cn, n, d := cf.ConstantPool.GetInterfaceMethodref(0); cn != "" || n != "" || d != "" {
		t.Error("expected empty strings for index 0")
	}
	if cf.ConstantPool.GetMethodHandle(0) != nil {
		t.Error("expected nil for index 0")
	}
	if got := cf.ConstantPool.GetMethodType(0); got != "" {
		t.Error("expected empty string for index 0")
	}
	if cf.ConstantPool.GetDynamic(0) != nil {
		t.Error("expected nil for index 0")
	}
	if cf.ConstantPool.GetInvokeDynamic(0) != nil {
		t.Error("expected nil for index 0")
	}
	if got := cf.ConstantPool.GetModuleName(0); got != "" {
		t.Error("expected empty string for index 0")
	}
	if got := cf.ConstantPool.GetPackageName(0); got != "" {
		t.Error("expected empty string for index 0")
	}
}

func TestAttributeAsMethodsReturnNil(t *testing.T) {
	cf := newClassFile("testdata/TestClass", "java/lang/Object")
	cf.Attributes = []AttributeInfo{attr(cf, "SourceFile", (&bb{}).u2(cf.AddUtf8("TestClass.java")).bytes())}
	cf = roundTrip(t, cf)

	a := cf.GetAttribute("SourceFile")
	if a == nil {
		t.Fatal("expected SourceFile attribute")
	}

	checks := []struct {
		name  string
		isNil bool
	}{
		{"AsCode", a.AsCode() != nil},
		{"AsLineNumberTable", a.AsLineNumberTable() != nil},
		{"AsLocalVariableTable", a.AsLocalVariableTable() != nil},
		{"AsStackMapTable", a.AsStackMapTable() != nil},
		{"AsRuntimeVisibleAnnotations", a.AsRuntimeVisibleAnnotations() != nil},
		{"AsRuntimeInvisibleAnnotations", a.AsRuntimeInvisibleAnnotations() != nil},
	}
	for _, c := range checks {
		if c.isNil {
			t.Errorf("%s should return nil for a SourceFile attribute", c.name)
		}
	}
}

func TestConstantPoolTagMethods(t *testing.T) {
	tests := []struct {
		entry ConstantPoolEntry
		tag   ConstantTag
	}{
		{&ConstantUtf8Info{Value: "test"}, ConstantUtf8},
		{&ConstantIntegerInfo{Value: 42}, ConstantInteger},
		{&ConstantFloatInfo{Value: 3.14}, ConstantFloat},
		{&ConstantLongInfo{Value: 12345}, ConstantLong},
		{&ConstantDoubleInfo{Value: 2.718}, ConstantDouble},
		{&ConstantClassInfo{NameIndex: 1}, ConstantClass},
		{&ConstantStringInfo{StringIndex: 1}, ConstantString},
		{&ConstantFieldrefInfo{ClassIndex: 1, NameAndTypeIndex: 2}, ConstantFieldref},
		{&ConstantMethodrefInfo{ClassIndex: 1, NameAndTypeIndex: 2}, ConstantMethodref},
		{&ConstantInterfaceMethodrefInfo{ClassIndex: 1, NameAndTypeIndex: 2}, ConstantInterfaceMethodref},
		{&ConstantNameAndTypeInfo{NameIndex: 1, DescriptorIndex: 2}, ConstantNameAndType},
		{&ConstantMethodHandleInfo{ReferenceKind: RefInvokeVirtual, ReferenceIndex: 1}, ConstantMethodHandle},
		{&ConstantMethodTypeInfo{DescriptorIndex: 1}, ConstantMethodType},
		{&ConstantDynamicInfo{BootstrapMethodAttrIndex: 0, NameAndTypeIndex: 1}, ConstantDynamic},
		{&ConstantInvokeDynamicInfo{BootstrapMethodAttrIndex: 0, NameAndTypeIndex: 1}, ConstantInvokeDynamic},
		{&ConstantModuleInfo{NameIndex: 1}, ConstantModule},
		{&ConstantPackageInfo{NameIndex: 1}, ConstantPackage},
	}

	for _, tt := range tests {
		if got := tt.entry.Tag(); got != tt.tag {
			t.Errorf("Tag() = %d, want %d for %T", got, tt.tag, tt.entry)
		}
	}
}

func TestSyntheticAndBridgeMethods(t *testing.T) {
	cf := newClassFile("testdata/AnnotatedClass", "java/lang/Object")
	cf.Methods = []MethodInfo{
		{AccessFlags: 0x1041, NameIndex: cf.AddUtf8("bridgeMethod"), DescriptorIndex: cf.AddUtf8("()V")}, // SYNTHETIC | BRIDGE | PUBLIC
	}
	cf = roundTrip(t, cf)

	m := cf.GetMethod("bridgeMethod", "()V")
	if m == nil || !m.AccessFlags.IsSynthetic() || !m.AccessFlags.IsBridge() {
		t.Error("expected a synthetic bridge method")
	}
}
