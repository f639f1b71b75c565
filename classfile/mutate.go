package classfile

// Constant pool mutators used by the instrumentation engine to reference
// symbols it synthesizes: the handler interface type, a spawner's
// owner+name+descriptor, a dispatch wrapper's own descriptor. Each probes
// for an existing equal entry first; a constant pool never benefits from
// carrying the same Utf8/Class/NameAndType/*ref entry twice, and reusing
// an index keeps a rewritten class file close in size to its input.

func (cf *ClassFile) AddUtf8(value string) uint16 {
	for i, entry := range cf.ConstantPool {
		if u, ok := entry.(*ConstantUtf8Info); ok && u.Value == value {
			return uint16(i + 1)
		}
	}
	cf.ConstantPool = append(cf.ConstantPool, &ConstantUtf8Info{Value: value})
	return uint16(len(cf.ConstantPool))
}

func (cf *ClassFile) AddClass(internalName string) uint16 {
	nameIdx := cf.AddUtf8(internalName)
	for i, entry := range cf.ConstantPool {
		if c, ok := entry.(*ConstantClassInfo); ok && c.NameIndex == nameIdx {
			return uint16(i + 1)
		}
	}
	cf.ConstantPool = append(cf.ConstantPool, &ConstantClassInfo{NameIndex: nameIdx})
	return uint16(len(cf.ConstantPool))
}

func (cf *ClassFile) AddNameAndType(name, descriptor string) uint16 {
	nameIdx := cf.AddUtf8(name)
	descIdx := cf.AddUtf8(descriptor)
	for i, entry := range cf.ConstantPool {
		if nt, ok := entry.(*ConstantNameAndTypeInfo); ok && nt.NameIndex == nameIdx && nt.DescriptorIndex == descIdx {
			return uint16(i + 1)
		}
	}
	cf.ConstantPool = append(cf.ConstantPool, &ConstantNameAndTypeInfo{NameIndex: nameIdx, DescriptorIndex: descIdx})
	return uint16(len(cf.ConstantPool))
}

func (cf *ClassFile) AddFieldref(className, name, descriptor string) uint16 {
	classIdx := cf.AddClass(className)
	natIdx := cf.AddNameAndType(name, descriptor)
	for i, entry := range cf.ConstantPool {
		if f, ok := entry.(*ConstantFieldrefInfo); ok && f.ClassIndex == classIdx && f.NameAndTypeIndex == natIdx {
			return uint16(i + 1)
		}
	}
	cf.ConstantPool = append(cf.ConstantPool, &ConstantFieldrefInfo{ClassIndex: classIdx, NameAndTypeIndex: natIdx})
	return uint16(len(cf.ConstantPool))
}

func (cf *ClassFile) AddMethodref(className, name, descriptor string) uint16 {
	classIdx := cf.AddClass(className)
	natIdx := cf.AddNameAndType(name, descriptor)
	for i, entry := range cf.ConstantPool {
		if m, ok := entry.(*ConstantMethodrefInfo); ok && m.ClassIndex == classIdx && m.NameAndTypeIndex == natIdx {
			return uint16(i + 1)
		}
	}
	cf.ConstantPool = append(cf.ConstantPool, &ConstantMethodrefInfo{ClassIndex: classIdx, NameAndTypeIndex: natIdx})
	return uint16(len(cf.ConstantPool))
}

func (cf *ClassFile) AddInterfaceMethodref(className, name, descriptor string) uint16 {
	classIdx := cf.AddClass(className)
	natIdx := cf.AddNameAndType(name, descriptor)
	for i, entry := range cf.ConstantPool {
		if m, ok := entry.(*ConstantInterfaceMethodrefInfo); ok && m.ClassIndex == classIdx && m.NameAndTypeIndex == natIdx {
			return uint16(i + 1)
		}
	}
	cf.ConstantPool = append(cf.ConstantPool, &ConstantInterfaceMethodrefInfo{ClassIndex: classIdx, NameAndTypeIndex: natIdx})
	return uint16(len(cf.ConstantPool))
}

func (cf *ClassFile) AddInteger(v int32) uint16 {
	for i, entry := range cf.ConstantPool {
		if n, ok := entry.(*ConstantIntegerInfo); ok && n.Value == v {
			return uint16(i + 1)
		}
	}
	cf.ConstantPool = append(cf.ConstantPool, &ConstantIntegerInfo{Value: v})
	return uint16(len(cf.ConstantPool))
}

func (cf *ClassFile) AddLong(v int64) uint16 {
	for i, entry := range cf.ConstantPool {
		if n, ok := entry.(*ConstantLongInfo); ok && n.Value == v {
			return uint16(i + 1)
		}
	}
	cf.ConstantPool = append(cf.ConstantPool, &ConstantLongInfo{Value: v}, nil)
	return uint16(len(cf.ConstantPool) - 1)
}

func (cf *ClassFile) AddFloat(v float32) uint16 {
	for i, entry := range cf.ConstantPool {
		if n, ok := entry.(*ConstantFloatInfo); ok && n.Value == v {
			return uint16(i + 1)
		}
	}
	cf.ConstantPool = append(cf.ConstantPool, &ConstantFloatInfo{Value: v})
	return uint16(len(cf.ConstantPool))
}

func (cf *ClassFile) AddDouble(v float64) uint16 {
	for i, entry := range cf.ConstantPool {
		if n, ok := entry.(*ConstantDoubleInfo); ok && n.Value == v {
			return uint16(i + 1)
		}
	}
	cf.ConstantPool = append(cf.ConstantPool, &ConstantDoubleInfo{Value: v}, nil)
	return uint16(len(cf.ConstantPool) - 1)
}

func (cf *ClassFile) AddString(value string) uint16 {
	strIdx := cf.AddUtf8(value)
	for i, entry := range cf.ConstantPool {
		if s, ok := entry.(*ConstantStringInfo); ok && s.StringIndex == strIdx {
			return uint16(i + 1)
		}
	}
	cf.ConstantPool = append(cf.ConstantPool, &ConstantStringInfo{StringIndex: strIdx})
	return uint16(len(cf.ConstantPool))
}

// bytecodeWriter adapts *ClassFile to bytecode.PoolWriter: the engine hands
// the instrumented method's owning ClassFile to bytecode.Encode so that
// new getfield/invokevirtual/... operands resolve through these same
// mutators.
type bytecodeWriter struct {
	cf *ClassFile
}

func (w bytecodeWriter) GetUtf8(index uint16) string { return w.cf.ConstantPool.GetUtf8(index) }
func (w bytecodeWriter) GetClassName(index uint16) string {
	return w.cf.ConstantPool.GetClassName(index)
}
func (w bytecodeWriter) GetNameAndType(index uint16) (string, string) {
	return w.cf.ConstantPool.GetNameAndType(index)
}
func (w bytecodeWriter) GetFieldref(index uint16) (string, string, string) {
	return w.cf.ConstantPool.GetFieldref(index)
}
func (w bytecodeWriter) GetMethodref(index uint16) (string, string, string) {
	return w.cf.ConstantPool.GetMethodref(index)
}
func (w bytecodeWriter) GetInterfaceMethodref(index uint16) (string, string, string) {
	return w.cf.ConstantPool.GetInterfaceMethodref(index)
}
func (w bytecodeWriter) InternUtf8(s string) uint16                      { return w.cf.AddUtf8(s) }
func (w bytecodeWriter) InternClass(name string) uint16                  { return w.cf.AddClass(name) }
func (w bytecodeWriter) InternNameAndType(n, d string) uint16             { return w.cf.AddNameAndType(n, d) }
func (w bytecodeWriter) InternFieldref(c, n, d string) uint16             { return w.cf.AddFieldref(c, n, d) }
func (w bytecodeWriter) InternMethodref(c, n, d string) uint16            { return w.cf.AddMethodref(c, n, d) }
func (w bytecodeWriter) InternInterfaceMethodref(c, n, d string) uint16   { return w.cf.AddInterfaceMethodref(c, n, d) }
func (w bytecodeWriter) InternInteger(v int32) uint16                     { return w.cf.AddInteger(v) }
func (w bytecodeWriter) InternLong(v int64) uint16                       { return w.cf.AddLong(v) }
func (w bytecodeWriter) InternFloat(v float32) uint16                    { return w.cf.AddFloat(v) }
func (w bytecodeWriter) InternDouble(v float64) uint16                   { return w.cf.AddDouble(v) }
func (w bytecodeWriter) InternString(s string) uint16                    { return w.cf.AddString(s) }

// PoolWriter exposes cf as a bytecode.PoolWriter: bytecode declares the
// interface, and bytecodeWriter implements it on top of cf's own
// constant-pool mutators.
func (cf *ClassFile) PoolWriter() bytecodeWriter {
	return bytecodeWriter{cf: cf}
}
