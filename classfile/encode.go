package classfile

import (
	"encoding/binary"
	"math"
)

// writer is the write-side mirror of reader: it accumulates bytes into a
// growing buffer and, like reader, goes sticky on the first error so
// every caller can check it once at the end instead of after every field.
type writer struct {
	buf []byte
	err error
}

func (w *writer) writeU1(v uint8) {
	if w.err != nil {
		return
	}
	w.buf = append(w.buf, v)
}

func (w *writer) writeU2(v uint16) {
	if w.err != nil {
		return
	}
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
}

func (w *writer) writeU4(v uint32) {
	if w.err != nil {
		return
	}
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

func (w *writer) writeBytes(b []byte) {
	if w.err != nil {
		return
	}
	w.buf = append(w.buf, b...)
}

// Encode serializes cf back into a class file, the symmetric counterpart
// to Parse/ParseFile.
func Encode(cf *ClassFile) ([]byte, error) {
	w := &writer{}

	w.writeU4(Magic)
	w.writeU2(cf.MinorVersion)
	w.writeU2(cf.MajorVersion)

	w.writeU2(uint16(len(cf.ConstantPool) + 1))
	for _, entry := range cf.ConstantPool {
		if entry == nil {
			continue // the slot following a Long/Double entry; the count above already accounts for it
		}
		writeConstantPoolEntry(w, entry)
	}

	w.writeU2(uint16(cf.AccessFlags))
	w.writeU2(cf.ThisClass)
	w.writeU2(cf.SuperClass)

	w.writeU2(uint16(len(cf.Interfaces)))
	for _, idx := range cf.Interfaces {
		w.writeU2(idx)
	}

	w.writeU2(uint16(len(cf.Fields)))
	for i := range cf.Fields {
		writeFieldInfo(w, &cf.Fields[i])
	}

	w.writeU2(uint16(len(cf.Methods)))
	for i := range cf.Methods {
		writeMethodInfo(w, &cf.Methods[i])
	}

	w.writeU2(uint16(len(cf.Attributes)))
	for i := range cf.Attributes {
		writeAttributeInfo(w, &cf.Attributes[i])
	}

	if w.err != nil {
		return nil, w.err
	}
	return w.buf, nil
}

func writeConstantPoolEntry(w *writer, entry ConstantPoolEntry) {
	w.writeU1(uint8(entry.Tag()))
	switch e := entry.(type) {
	case *ConstantUtf8Info:
		encoded := encodeModifiedUtf8(e.Value)
		w.writeU2(uint16(len(encoded)))
		w.writeBytes(encoded)
	case *ConstantIntegerInfo:
		w.writeU4(uint32(e.Value))
	case *ConstantFloatInfo:
		w.writeU4(math.Float32bits(e.Value))
	case *ConstantLongInfo:
		w.writeU4(uint32(e.Value >> 32))
		w.writeU4(uint32(e.Value))
	case *ConstantDoubleInfo:
		bits := math.Float64bits(e.Value)
		w.writeU4(uint32(bits >> 32))
		w.writeU4(uint32(bits))
	case *ConstantClassInfo:
		w.writeU2(e.NameIndex)
	case *ConstantStringInfo:
		w.writeU2(e.StringIndex)
	case *ConstantFieldrefInfo:
		w.writeU2(e.ClassIndex)
		w.writeU2(e.NameAndTypeIndex)
	case *ConstantMethodrefInfo:
		w.writeU2(e.ClassIndex)
		w.writeU2(e.NameAndTypeIndex)
	case *ConstantInterfaceMethodrefInfo:
		w.writeU2(e.ClassIndex)
		w.writeU2(e.NameAndTypeIndex)
	case *ConstantNameAndTypeInfo:
		w.writeU2(e.NameIndex)
		w.writeU2(e.DescriptorIndex)
	case *ConstantMethodHandleInfo:
		w.writeU1(uint8(e.ReferenceKind))
		w.writeU2(e.ReferenceIndex)
	case *ConstantMethodTypeInfo:
		w.writeU2(e.DescriptorIndex)
	case *ConstantDynamicInfo:
		w.writeU2(e.BootstrapMethodAttrIndex)
		w.writeU2(e.NameAndTypeIndex)
	case *ConstantInvokeDynamicInfo:
		w.writeU2(e.BootstrapMethodAttrIndex)
		w.writeU2(e.NameAndTypeIndex)
	case *ConstantModuleInfo:
		w.writeU2(e.NameIndex)
	case *ConstantPackageInfo:
		w.writeU2(e.NameIndex)
	default:
		w.err = errUnknownConstantType
	}
}

func writeFieldInfo(w *writer, f *FieldInfo) {
	w.writeU2(uint16(f.AccessFlags))
	w.writeU2(f.NameIndex)
	w.writeU2(f.DescriptorIndex)
	w.writeU2(uint16(len(f.Attributes)))
	for i := range f.Attributes {
		writeAttributeInfo(w, &f.Attributes[i])
	}
}

func writeMethodInfo(w *writer, m *MethodInfo) {
	w.writeU2(uint16(m.AccessFlags))
	w.writeU2(m.NameIndex)
	w.writeU2(m.DescriptorIndex)
	w.writeU2(uint16(len(m.Attributes)))
	for i := range m.Attributes {
		writeAttributeInfo(w, &m.Attributes[i])
	}
}

// writeAttributeInfo emits NameIndex, length, and body. For the handful of
// attribute kinds the instrumentation engine can mutate (Code,
// LineNumberTable, LocalVariableTable, StackMapTable), the body is
// regenerated from Parsed so edits made through DecodedCode are reflected
// on disk. Every other attribute kind is passed through verbatim from
// Info, which Parse always retains unchanged alongside the convenience
// Parsed view.
func writeAttributeInfo(w *writer, a *AttributeInfo) {
	body := attributeBody(a)
	w.writeU2(a.NameIndex)
	w.writeU4(uint32(len(body)))
	w.writeBytes(body)
}

func attributeBody(a *AttributeInfo) []byte {
	switch parsed := a.Parsed.(type) {
	case *CodeAttribute:
		return encodeCodeAttributeBody(parsed)
	case *LineNumberTableAttribute:
		return encodeLineNumberTableBody(parsed)
	case *LocalVariableTableAttribute:
		return encodeLocalVariableTableBody(parsed)
	case *StackMapTableAttribute:
		return encodeStackMapTableBody(parsed)
	default:
		return a.Info
	}
}

func encodeCodeAttributeBody(c *CodeAttribute) []byte {
	w := &writer{}
	w.writeU2(c.MaxStack)
	w.writeU2(c.MaxLocals)
	w.writeU4(uint32(len(c.Code)))
	w.writeBytes(c.Code)
	w.writeU2(uint16(len(c.ExceptionTable)))
	for _, ex := range c.ExceptionTable {
		w.writeU2(ex.StartPC)
		w.writeU2(ex.EndPC)
		w.writeU2(ex.HandlerPC)
		w.writeU2(ex.CatchType)
	}
	w.writeU2(uint16(len(c.Attributes)))
	for i := range c.Attributes {
		writeAttributeInfo(w, &c.Attributes[i])
	}
	return w.buf
}

func encodeLineNumberTableBody(l *LineNumberTableAttribute) []byte {
	w := &writer{}
	w.writeU2(uint16(len(l.LineNumberTable)))
	for _, e := range l.LineNumberTable {
		w.writeU2(e.StartPC)
		w.writeU2(e.LineNumber)
	}
	return w.buf
}

func encodeLocalVariableTableBody(l *LocalVariableTableAttribute) []byte {
	w := &writer{}
	w.writeU2(uint16(len(l.LocalVariableTable)))
	for _, e := range l.LocalVariableTable {
		w.writeU2(e.StartPC)
		w.writeU2(e.Length)
		w.writeU2(e.NameIndex)
		w.writeU2(e.DescriptorIndex)
		w.writeU2(e.Index)
	}
	return w.buf
}

func encodeStackMapTableBody(s *StackMapTableAttribute) []byte {
	w := &writer{}
	w.writeU2(uint16(len(s.Entries)))
	for _, f := range s.Entries {
		w.writeU1(f.FrameType)
		w.writeBytes(f.Data)
	}
	return w.buf
}
