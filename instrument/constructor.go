package instrument

import (
	"fmt"

	"github.com/dhamidi/handlerforge/bytecode"
	"github.com/dhamidi/handlerforge/classfile"
	"github.com/dhamidi/handlerforge/handlerspec"
)

// patchConstructors injects a handler-slot assignment into every
// constructor of cf that does not merely delegate to another constructor
// of the same class. CheckBeforeCall needs no such patch: its dispatch
// method already tolerates a nil slot.
func patchConstructors(cf *classfile.ClassFile, spec *handlerspec.Spec, fieldName string) error {
	if spec.NullGuard == handlerspec.CheckBeforeCall {
		return nil
	}
	className := cf.ClassName()
	for idx := range cf.Methods {
		if !cf.Methods[idx].IsConstructor(cf.ConstantPool) {
			continue
		}
		if err := patchConstructor(cf, idx, spec, fieldName, className); err != nil {
			return err
		}
	}
	return nil
}

// patchConstructor locates the constructor's single super- or
// this-constructor invocation. A this-constructor call means this
// constructor delegates within the same class, which some other
// constructor will itself patch, so it is left untouched. Otherwise the
// field assignment is injected before or after that call, per
// spec.NullGuard.
func patchConstructor(cf *classfile.ClassFile, idx int, spec *handlerspec.Spec, fieldName, className string) error {
	cp := cf.ConstantPool
	codeInfo := cf.Methods[idx].GetAttribute(cp, "Code")
	if codeInfo == nil {
		return nil
	}
	dc, err := classfile.DecodeCode(codeInfo.AsCode(), cp)
	if err != nil {
		return fmt.Errorf("<init>: decode: %w", err)
	}

	var superCall *bytecode.Element
	delegates := false
	dc.Instructions.Each(func(e *bytecode.Element) {
		if superCall != nil || delegates {
			return
		}
		mi, ok := e.Value.(*bytecode.MethodInsn)
		if !ok || mi.Op != bytecode.OpInvokespecial || mi.Name != "<init>" {
			return
		}
		if mi.Owner == className {
			delegates = true
			return
		}
		superCall = e
	})
	if delegates || superCall == nil {
		return nil
	}

	switch spec.NullGuard {
	case handlerspec.AssignBeforeSuper:
		insertBeforeSuper(dc, superCall, fieldName, spec, className)
	case handlerspec.AssignAfterSuper:
		insertAfterSuper(dc, superCall, fieldName, spec, className)
	}

	extra := uint16(1)
	if spec.Spawner != nil {
		extra = 2
	}
	dc.MaxStack += extra

	encoded, err := dc.Encode(cf)
	if err != nil {
		return fmt.Errorf("<init>: encode: %w", err)
	}
	cf.Methods[idx].Attributes = replaceAttribute(cf.Methods[idx].Attributes, cp, "Code", classfile.AttributeInfo{NameIndex: cf.AddUtf8("Code"), Parsed: encoded})
	return nil
}

// insertBeforeSuper emits "this.field = this;" immediately before the
// super-constructor call, and, if a spawner is configured, additionally
// emits "this.field = spawner(this);" immediately after it.
func insertBeforeSuper(dc *classfile.DecodedCode, super *bytecode.Element, fieldName string, spec *handlerspec.Spec, className string) {
	list := dc.Instructions
	list.InsertBefore(&bytecode.VarInsn{Op: bytecode.OpAload, Index: 0}, super)
	list.InsertBefore(&bytecode.VarInsn{Op: bytecode.OpAload, Index: 0}, super)
	list.InsertBefore(&bytecode.FieldInsn{Op: bytecode.OpPutfield, Owner: className, Name: fieldName, Descriptor: spec.HandlerDescriptor}, super)

	if spec.Spawner == nil {
		return
	}
	last := super
	last = list.InsertAfter(&bytecode.VarInsn{Op: bytecode.OpAload, Index: 0}, last)
	last = list.InsertAfter(&bytecode.VarInsn{Op: bytecode.OpAload, Index: 0}, last)
	last = list.InsertAfter(&bytecode.MethodInsn{Op: bytecode.OpInvokestatic, Owner: spec.Spawner.Owner, Name: spec.Spawner.Name, Descriptor: spec.Spawner.Descriptor}, last)
	list.InsertAfter(&bytecode.FieldInsn{Op: bytecode.OpPutfield, Owner: className, Name: fieldName, Descriptor: spec.HandlerDescriptor}, last)
}

// insertAfterSuper emits, immediately after the super-constructor call,
// "this.field = spawner(this);" when a spawner is configured, else
// "this.field = this;".
func insertAfterSuper(dc *classfile.DecodedCode, super *bytecode.Element, fieldName string, spec *handlerspec.Spec, className string) {
	list := dc.Instructions
	last := list.InsertAfter(&bytecode.VarInsn{Op: bytecode.OpAload, Index: 0}, super)
	if spec.Spawner != nil {
		last = list.InsertAfter(&bytecode.VarInsn{Op: bytecode.OpAload, Index: 0}, last)
		last = list.InsertAfter(&bytecode.MethodInsn{Op: bytecode.OpInvokestatic, Owner: spec.Spawner.Owner, Name: spec.Spawner.Name, Descriptor: spec.Spawner.Descriptor}, last)
	} else {
		last = list.InsertAfter(&bytecode.VarInsn{Op: bytecode.OpAload, Index: 0}, last)
	}
	list.InsertAfter(&bytecode.FieldInsn{Op: bytecode.OpPutfield, Owner: className, Name: fieldName, Descriptor: spec.HandlerDescriptor}, last)
}

// replaceAttribute returns attrs with the named attribute replaced by
// replacement, appending it if absent.
func replaceAttribute(attrs []classfile.AttributeInfo, cp classfile.ConstantPool, name string, replacement classfile.AttributeInfo) []classfile.AttributeInfo {
	for i := range attrs {
		if cp.GetUtf8(attrs[i].NameIndex) == name {
			attrs[i] = replacement
			return attrs
		}
	}
	return append(attrs, replacement)
}
