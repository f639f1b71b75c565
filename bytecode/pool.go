package bytecode

// ConstPool is the read side of a class file's constant pool that the
// decoder and encoder need to turn raw operand indices into structured
// instruction fields (owner/name/descriptor triples, type names, literal
// values) and back. classfile.ConstantPool satisfies this interface
// structurally: bytecode never imports classfile (only classfile imports
// bytecode), so the two packages form no import cycle.
type ConstPool interface {
	GetUtf8(index uint16) string
	GetClassName(index uint16) string
	GetNameAndType(index uint16) (name, descriptor string)
	GetFieldref(index uint16) (className, name, descriptor string)
	GetMethodref(index uint16) (className, name, descriptor string)
	GetInterfaceMethodref(index uint16) (className, name, descriptor string)
}

// PoolWriter is the write side: the encoder resolves structured instruction
// fields back to constant-pool indices, interning entries as needed, via
// the owning class file's mutators (classfile.ClassFile.PoolWriter adapts
// them to this interface). It is kept
// separate from ConstPool because decode only ever reads.
type PoolWriter interface {
	ConstPool
	InternUtf8(s string) uint16
	InternClass(internalName string) uint16
	InternNameAndType(name, descriptor string) uint16
	InternFieldref(className, name, descriptor string) uint16
	InternMethodref(className, name, descriptor string) uint16
	InternInterfaceMethodref(className, name, descriptor string) uint16
	InternInteger(v int32) uint16
	InternLong(v int64) uint16
	InternFloat(v float32) uint16
	InternDouble(v float64) uint16
	InternString(s string) uint16
}
