package instrument

import (
	"fmt"

	"github.com/dhamidi/handlerforge/bytecode"
	"github.com/dhamidi/handlerforge/classfile"
)

// wrapNative renames the native method at cf.Methods[idx] to
// "<prefix><originalName>", keeping its native flag and original
// descriptor intact so the runtime's native-prefix mechanism can still
// resolve it, and appends a non-native, public, final wrapper under the
// original name and descriptor that forwards straight through to the
// renamed copy. The wrapper does not itself perform handler dispatch: this
// engine has no way to splice behavior into a native method body, so
// interception of a native-backed call is left to whatever native-level
// rebinding the runtime offers once it observes the prefixed name. That
// rebinding is out of scope for this engine, which only guarantees the
// prefixed name exists for it to find.
//
// idx must not be held as a pointer across this call: cf.Methods grows by
// one element, which can relocate the backing array.
func wrapNative(cf *classfile.ClassFile, idx int, prefix string) error {
	cp := cf.ConstantPool
	name := cf.Methods[idx].Name(cp)
	desc := cf.Methods[idx].Descriptor(cp)
	isStatic := cf.Methods[idx].IsStatic()

	movedAttrs := append([]classfile.AttributeInfo{}, cf.Methods[idx].Attributes...)
	cf.Methods[idx].Attributes = nil
	cf.Methods[idx].NameIndex = cf.AddUtf8(prefix + name)

	dc, err := buildNativeForwarder(cf, prefix+name, desc, isStatic)
	if err != nil {
		return fmt.Errorf("%s: build native wrapper: %w", name, err)
	}
	wrapperAttr, err := dc.Encode(cf)
	if err != nil {
		return fmt.Errorf("%s: encode native wrapper: %w", name, err)
	}

	wrapper := classfile.MethodInfo{
		AccessFlags:     (cf.Methods[idx].AccessFlags | classfile.AccPublic | classfile.AccFinal) &^ (classfile.AccNative | classfile.AccProtected | classfile.AccPrivate),
		NameIndex:       cf.AddUtf8(name),
		DescriptorIndex: cf.AddUtf8(desc),
		Attributes:      append(movedAttrs, classfile.AttributeInfo{NameIndex: cf.AddUtf8("Code"), Parsed: wrapperAttr}),
	}
	cf.Methods = append(cf.Methods, wrapper)
	return nil
}

// buildNativeForwarder emits "return target(this, args...)" (or
// "target(args...)" for a static method) under the unchanged descriptor
// desc.
func buildNativeForwarder(cf *classfile.ClassFile, targetName, desc string, isStatic bool) (*classfile.DecodedCode, error) {
	md := classfile.ParseMethodDescriptor(desc)
	if md == nil {
		return nil, fmt.Errorf("cannot parse descriptor %s", desc)
	}

	list := bytecode.NewInsnList()
	slot := 0
	if !isStatic {
		list.PushBack(&bytecode.VarInsn{Op: bytecode.OpAload, Index: 0})
		slot = 1
	}

	argWidth := 0
	for i := range md.Parameters {
		list.PushBack(&bytecode.VarInsn{Op: loadOpFor(&md.Parameters[i]), Index: slot})
		w := slotWidth(&md.Parameters[i])
		slot += w
		argWidth += w
	}

	op := bytecode.OpInvokestatic
	if !isStatic {
		op = bytecode.OpInvokevirtual
	}
	list.PushBack(&bytecode.MethodInsn{Op: op, Owner: cf.ClassName(), Name: targetName, Descriptor: desc})
	list.PushBack(&bytecode.Insn{Op: returnOpFor(md.ReturnType)})

	maxStack := argWidth
	if !isStatic {
		maxStack++
	}
	if maxStack < 1 {
		maxStack = 1
	}

	return &classfile.DecodedCode{
		MaxStack:     uint16(maxStack),
		MaxLocals:    uint16(slot),
		Instructions: list,
	}, nil
}
