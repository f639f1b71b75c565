package instrument

import (
	"fmt"

	"github.com/dhamidi/handlerforge/bytecode"
	"github.com/dhamidi/handlerforge/classfile"
	"github.com/dhamidi/handlerforge/handlerspec"
	"github.com/dhamidi/handlerforge/names"
)

// rewriteMethod turns the intercepted method at cf.Methods[idx] into a
// pair: the same MethodInfo entry re-roled in place as the body (its
// descriptor now takes the handler type as a leading argument, its locals
// shifted up by one slot to make room), plus a freshly appended dispatch
// method carrying the original name and descriptor, which loads the
// handler and forwards the call to it.
//
// idx must not be held as a pointer across this call: cf.Methods grows by
// one element, which can relocate the backing array.
func rewriteMethod(cf *classfile.ClassFile, idx int, spec *handlerspec.Spec, fieldName string) error {
	cp := cf.ConstantPool
	name := cf.Methods[idx].Name(cp)
	origDesc := cf.Methods[idx].Descriptor(cp)
	md := classfile.ParseMethodDescriptor(origDesc)
	if md == nil {
		return fmt.Errorf("%s: cannot parse descriptor %s", name, origDesc)
	}

	codeInfo := cf.Methods[idx].GetAttribute(cp, "Code")
	if codeInfo == nil {
		return fmt.Errorf("%s: intercepted method has no Code attribute", name)
	}
	dc, err := classfile.DecodeCode(codeInfo.AsCode(), cp)
	if err != nil {
		return fmt.Errorf("%s: decode: %w", name, err)
	}
	shiftLocals(dc, spec.HandlerType)
	bodyAttr, err := dc.Encode(cf)
	if err != nil {
		return fmt.Errorf("%s: encode body: %w", name, err)
	}

	dispatchDC, err := buildDispatchBody(cf, spec, name, md, origDesc, fieldName)
	if err != nil {
		return fmt.Errorf("%s: build dispatch: %w", name, err)
	}
	dispatchAttr, err := dispatchDC.Encode(cf)
	if err != nil {
		return fmt.Errorf("%s: encode dispatch: %w", name, err)
	}

	movedAttrs := nonCodeAttributes(cf.Methods[idx].Attributes, cp)
	publicAccess := (cf.Methods[idx].AccessFlags | classfile.AccPublic) &^ (classfile.AccProtected | classfile.AccPrivate)

	dispatch := classfile.MethodInfo{
		AccessFlags:     publicAccess,
		NameIndex:       cf.Methods[idx].NameIndex,
		DescriptorIndex: cf.Methods[idx].DescriptorIndex,
		Attributes:      append(movedAttrs, classfile.AttributeInfo{NameIndex: cf.AddUtf8("Code"), Parsed: dispatchAttr}),
	}

	expandedDesc := names.PrependArg(origDesc, spec.HandlerDescriptor)
	cf.Methods[idx].DescriptorIndex = cf.AddUtf8(expandedDesc)
	cf.Methods[idx].AccessFlags = publicAccess
	cf.Methods[idx].Attributes = []classfile.AttributeInfo{{NameIndex: cf.AddUtf8("Code"), Parsed: bodyAttr}}

	cf.Methods = append(cf.Methods, dispatch)
	return nil
}

// nonCodeAttributes returns every attribute of attrs except Code: the
// generic signature, exception list, and annotations move from the
// original method onto the dispatch method it is replaced by, since those
// describe the method's public contract, which the dispatch method now
// carries.
func nonCodeAttributes(attrs []classfile.AttributeInfo, cp classfile.ConstantPool) []classfile.AttributeInfo {
	out := make([]classfile.AttributeInfo, 0, len(attrs))
	for _, a := range attrs {
		if cp.GetUtf8(a.NameIndex) == "Code" {
			continue
		}
		out = append(out, a)
	}
	return out
}

// shiftLocals makes room for the handler argument the body method gains
// at slot 1: every var-load/store/increment referencing slot >= 1 moves up
// by one, every full-frame local list gains a handlerType entry right
// after the receiver, and every local-variable-table range shifts to
// match. The receiver itself, slot 0, is left untouched.
func shiftLocals(dc *classfile.DecodedCode, handlerType string) {
	dc.MaxLocals++

	dc.Instructions.Each(func(e *bytecode.Element) {
		switch v := e.Value.(type) {
		case *bytecode.VarInsn:
			if v.Index >= 1 {
				v.Index++
			}
		case *bytecode.IincInsn:
			if v.Index >= 1 {
				v.Index++
			}
		case *bytecode.Frame:
			v.Locals = insertHandlerLocal(v.Locals, handlerType)
		}
	})

	for i := range dc.LocalVariables {
		if dc.LocalVariables[i].Index >= 1 {
			dc.LocalVariables[i].Index++
		}
	}
}

// insertHandlerLocal inserts a handlerType verification entry right after
// the receiver (index 0) of a full-frame local list, so the receiver
// itself never shifts position.
func insertHandlerLocal(locals []bytecode.VerificationType, handlerType string) []bytecode.VerificationType {
	handlerEntry := bytecode.VerificationType{Kind: bytecode.VObject, ClassName: handlerType}
	if len(locals) == 0 {
		return []bytecode.VerificationType{handlerEntry}
	}
	out := make([]bytecode.VerificationType, 0, len(locals)+1)
	out = append(out, locals[0], handlerEntry)
	out = append(out, locals[1:]...)
	return out
}

// buildDispatchBody constructs the dispatch method's code: load the
// handler field into a temporary slot, apply the null-guard policy's
// fallback when it is CheckBeforeCall, then invoke the handler interface
// method with this plus the original arguments and return whatever it
// returns.
func buildDispatchBody(cf *classfile.ClassFile, spec *handlerspec.Spec, methodName string, md *classfile.MethodDescriptor, origDesc, fieldName string) (*classfile.DecodedCode, error) {
	className := cf.ClassName()
	list := bytecode.NewInsnList()

	paramSlots := make([]int, len(md.Parameters))
	slot := 1
	argWidth := 0
	for i := range md.Parameters {
		paramSlots[i] = slot
		w := slotWidth(&md.Parameters[i])
		slot += w
		argWidth += w
	}
	tempSlot := slot

	list.PushBack(&bytecode.VarInsn{Op: bytecode.OpAload, Index: 0})
	list.PushBack(&bytecode.FieldInsn{Op: bytecode.OpGetfield, Owner: className, Name: fieldName, Descriptor: spec.HandlerDescriptor})
	list.PushBack(&bytecode.VarInsn{Op: bytecode.OpAstore, Index: tempSlot})

	if spec.NullGuard == handlerspec.CheckBeforeCall {
		list.PushBack(&bytecode.VarInsn{Op: bytecode.OpAload, Index: tempSlot})
		ji := &bytecode.JumpInsn{Op: bytecode.OpIfnonnull}
		list.PushBack(ji)

		if spec.Spawner != nil {
			list.PushBack(&bytecode.VarInsn{Op: bytecode.OpAload, Index: 0})
			list.PushBack(&bytecode.MethodInsn{Op: bytecode.OpInvokestatic, Owner: spec.Spawner.Owner, Name: spec.Spawner.Name, Descriptor: spec.Spawner.Descriptor})
		} else {
			list.PushBack(&bytecode.VarInsn{Op: bytecode.OpAload, Index: 0})
		}
		list.PushBack(&bytecode.VarInsn{Op: bytecode.OpAstore, Index: tempSlot})

		skip := list.NewLabel("handlerReady")
		ji.Target = skip

		locals := make([]bytecode.VerificationType, 0, len(md.Parameters)+2)
		locals = append(locals, bytecode.VerificationType{Kind: bytecode.VObject, ClassName: className})
		for i := range md.Parameters {
			locals = append(locals, verificationTypeFor(&md.Parameters[i]))
		}
		locals = append(locals, bytecode.VerificationType{Kind: bytecode.VObject, ClassName: spec.HandlerType})
		list.PushBack(&bytecode.Frame{Locals: locals})
	}

	list.PushBack(&bytecode.VarInsn{Op: bytecode.OpAload, Index: tempSlot})
	list.PushBack(&bytecode.VarInsn{Op: bytecode.OpAload, Index: 0})
	for i := range md.Parameters {
		list.PushBack(&bytecode.VarInsn{Op: loadOpFor(&md.Parameters[i]), Index: paramSlots[i]})
	}

	expandedDesc := names.PrependArg(origDesc, spec.HandlerDescriptor)
	list.PushBack(&bytecode.MethodInsn{Op: bytecode.OpInvokeinterface, Owner: spec.HandlerType, Name: methodName, Descriptor: expandedDesc, IsInterface: true})
	list.PushBack(&bytecode.Insn{Op: returnOpFor(md.ReturnType)})

	maxStack := 2 + argWidth
	if maxStack < 2 {
		maxStack = 2
	}

	return &classfile.DecodedCode{
		MaxStack:     uint16(maxStack),
		MaxLocals:    uint16(tempSlot + 1),
		Instructions: list,
	}, nil
}
