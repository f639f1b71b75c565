package instrument

import (
	"strings"

	"github.com/dhamidi/handlerforge/bytecode"
	"github.com/dhamidi/handlerforge/classfile"
)

// slotWidth returns the number of local-variable slots a value of type ft
// occupies: 2 for long/double, 1 for everything else.
func slotWidth(ft *classfile.FieldType) int {
	if ft != nil && ft.IsPrimitive() && (ft.BaseType == "long" || ft.BaseType == "double") {
		return 2
	}
	return 1
}

// loadOpFor returns the family-correct load opcode for ft; VarInsn's
// encoder picks the short indexed form on its own.
func loadOpFor(ft *classfile.FieldType) bytecode.Op {
	if ft != nil && ft.IsPrimitive() {
		switch ft.BaseType {
		case "long":
			return bytecode.OpLload
		case "float":
			return bytecode.OpFload
		case "double":
			return bytecode.OpDload
		default:
			return bytecode.OpIload
		}
	}
	return bytecode.OpAload
}

// returnOpFor returns the return opcode matching ft, or OpReturn for void.
func returnOpFor(ft *classfile.FieldType) bytecode.Op {
	if ft == nil {
		return bytecode.OpReturn
	}
	if ft.IsPrimitive() {
		switch ft.BaseType {
		case "long":
			return bytecode.OpLreturn
		case "float":
			return bytecode.OpFreturn
		case "double":
			return bytecode.OpDreturn
		default:
			return bytecode.OpIreturn
		}
	}
	return bytecode.OpAreturn
}

// fieldDescriptorOf rebuilds the field-descriptor form of ft, the same
// notation a constant-pool class entry for an array type uses.
func fieldDescriptorOf(ft *classfile.FieldType) string {
	var sb strings.Builder
	for i := 0; i < ft.ArrayDepth; i++ {
		sb.WriteByte('[')
	}
	switch ft.BaseType {
	case "byte":
		sb.WriteByte('B')
	case "char":
		sb.WriteByte('C')
	case "double":
		sb.WriteByte('D')
	case "float":
		sb.WriteByte('F')
	case "int":
		sb.WriteByte('I')
	case "long":
		sb.WriteByte('J')
	case "short":
		sb.WriteByte('S')
	case "boolean":
		sb.WriteByte('Z')
	default:
		sb.WriteByte('L')
		sb.WriteString(ft.ClassName)
		sb.WriteByte(';')
	}
	return sb.String()
}

// verificationTypeFor returns the StackMapTable verification-type entry
// for a local or stack slot holding a value of type ft.
func verificationTypeFor(ft *classfile.FieldType) bytecode.VerificationType {
	if ft.IsArray() {
		return bytecode.VerificationType{Kind: bytecode.VObject, ClassName: fieldDescriptorOf(ft)}
	}
	if ft.IsPrimitive() {
		switch ft.BaseType {
		case "long":
			return bytecode.VerificationType{Kind: bytecode.VLong}
		case "float":
			return bytecode.VerificationType{Kind: bytecode.VFloat}
		case "double":
			return bytecode.VerificationType{Kind: bytecode.VDouble}
		default:
			return bytecode.VerificationType{Kind: bytecode.VInteger}
		}
	}
	return bytecode.VerificationType{Kind: bytecode.VObject, ClassName: ft.ClassName}
}
