package instrument

import (
	"strings"

	"github.com/dhamidi/handlerforge/bytecode"
	"github.com/dhamidi/handlerforge/classfile"
	"github.com/dhamidi/handlerforge/handlerspec"
	"github.com/dhamidi/handlerforge/names"
)

// installInterface adds spec's handler type to cf's implemented-interface
// list if it is not already there.
func installInterface(cf *classfile.ClassFile, handlerType string) {
	for _, n := range cf.InterfaceNames() {
		if n == handlerType {
			return
		}
	}
	cf.Interfaces = append(cf.Interfaces, cf.AddClass(handlerType))
}

// deriveFieldName picks a name for the handler slot: the accessor- or
// mutator-derived name when the spec names exactly one of either, the
// synthetic $HandlerType$ form otherwise, with an underscore appended for
// as many rounds as it takes to clear an existing field of the same name.
func deriveFieldName(cf *classfile.ClassFile, spec *handlerspec.Spec) string {
	simple := names.Simple(spec.HandlerType)

	var base string
	switch {
	case len(spec.Mutators) == 1:
		base = names.FieldNameFromAccessor(spec.Mutators[0], simple)
	case len(spec.Accessors) == 1:
		base = names.FieldNameFromAccessor(spec.Accessors[0], simple)
	default:
		base = "$" + strings.NewReplacer(".", "_", "/", "_").Replace(spec.HandlerType) + "$"
	}

	name := base
	for cf.GetField(name) != nil {
		name += "_"
	}
	return name
}

// ensureField appends the handler slot itself: public, transient,
// volatile, synthetic, so serialization and reflection-based frameworks
// skip it and concurrent dispatch sees a consistent value.
func ensureField(cf *classfile.ClassFile, spec *handlerspec.Spec, fieldName string) {
	cf.AddField(fieldName, spec.HandlerDescriptor, classfile.AccHandlerSlot)
}

// ensureAccessorsAndMutators synthesizes every accessor/mutator method the
// spec names and the handlee does not already declare under the expected
// descriptor.
func ensureAccessorsAndMutators(cf *classfile.ClassFile, spec *handlerspec.Spec, fieldName string) error {
	accessorDesc := "()" + spec.HandlerDescriptor
	for _, name := range spec.Accessors {
		if cf.GetMethod(name, accessorDesc) != nil {
			continue
		}
		m, err := synthesizeAccessor(cf, spec, name, fieldName)
		if err != nil {
			return err
		}
		cf.Methods = append(cf.Methods, m)
	}

	mutatorDesc := "(" + spec.HandlerDescriptor + ")V"
	for _, name := range spec.Mutators {
		if cf.GetMethod(name, mutatorDesc) != nil {
			continue
		}
		m, err := synthesizeMutator(cf, spec, name, fieldName)
		if err != nil {
			return err
		}
		cf.Methods = append(cf.Methods, m)
	}
	return nil
}

// synthesizeAccessor builds "public HandlerType name() { return
// this.fieldName; }".
func synthesizeAccessor(cf *classfile.ClassFile, spec *handlerspec.Spec, methodName, fieldName string) (classfile.MethodInfo, error) {
	list := bytecode.NewInsnList()
	list.PushBack(&bytecode.VarInsn{Op: bytecode.OpAload, Index: 0})
	list.PushBack(&bytecode.FieldInsn{Op: bytecode.OpGetfield, Owner: cf.ClassName(), Name: fieldName, Descriptor: spec.HandlerDescriptor})
	list.PushBack(&bytecode.Insn{Op: bytecode.OpAreturn})

	dc := &classfile.DecodedCode{MaxStack: 1, MaxLocals: 1, Instructions: list}
	codeAttr, err := dc.Encode(cf)
	if err != nil {
		return classfile.MethodInfo{}, err
	}
	return classfile.MethodInfo{
		AccessFlags:     classfile.AccPublic | classfile.AccSynthetic,
		NameIndex:       cf.AddUtf8(methodName),
		DescriptorIndex: cf.AddUtf8("()" + spec.HandlerDescriptor),
		Attributes:      []classfile.AttributeInfo{{NameIndex: cf.AddUtf8("Code"), Parsed: codeAttr}},
	}, nil
}

// synthesizeMutator builds "public void name(HandlerType arg) { if (arg ==
// null) arg = this; this.fieldName = arg; }", the null-as-receiver
// fallback every synthesized mutator carries.
func synthesizeMutator(cf *classfile.ClassFile, spec *handlerspec.Spec, methodName, fieldName string) (classfile.MethodInfo, error) {
	className := cf.ClassName()
	list := bytecode.NewInsnList()

	list.PushBack(&bytecode.VarInsn{Op: bytecode.OpAload, Index: 1})
	ji := &bytecode.JumpInsn{Op: bytecode.OpIfnonnull}
	list.PushBack(ji)
	list.PushBack(&bytecode.VarInsn{Op: bytecode.OpAload, Index: 0})
	list.PushBack(&bytecode.VarInsn{Op: bytecode.OpAstore, Index: 1})
	notNull := list.NewLabel("notNull")
	ji.Target = notNull
	list.PushBack(&bytecode.Frame{
		Locals: []bytecode.VerificationType{
			{Kind: bytecode.VObject, ClassName: className},
			{Kind: bytecode.VObject, ClassName: spec.HandlerType},
		},
	})
	list.PushBack(&bytecode.VarInsn{Op: bytecode.OpAload, Index: 0})
	list.PushBack(&bytecode.VarInsn{Op: bytecode.OpAload, Index: 1})
	list.PushBack(&bytecode.FieldInsn{Op: bytecode.OpPutfield, Owner: className, Name: fieldName, Descriptor: spec.HandlerDescriptor})
	list.PushBack(&bytecode.Insn{Op: bytecode.OpReturn})

	dc := &classfile.DecodedCode{MaxStack: 2, MaxLocals: 2, Instructions: list}
	codeAttr, err := dc.Encode(cf)
	if err != nil {
		return classfile.MethodInfo{}, err
	}
	return classfile.MethodInfo{
		AccessFlags:     classfile.AccPublic | classfile.AccSynthetic,
		NameIndex:       cf.AddUtf8(methodName),
		DescriptorIndex: cf.AddUtf8("(" + spec.HandlerDescriptor + ")V"),
		Attributes:      []classfile.AttributeInfo{{NameIndex: cf.AddUtf8("Code"), Parsed: codeAttr}},
	}, nil
}
