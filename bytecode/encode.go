package bytecode

import (
	"encoding/binary"
	"fmt"
)

// Encode serializes list back into a Code attribute body, resolving every
// structured instruction's constant-pool references through pw and every
// jump/switch target through the list's own element identities.
//
// Unlike a general-purpose assembler, Encode never needs a fixed-point
// iteration over instruction widths: jump and branch instructions keep
// whatever wide/narrow opcode they were decoded with or explicitly given
// (the engine is responsible for choosing goto_w over goto when it knows a
// delta will not fit in 16 bits), so every element's width is a pure
// function of its own fields plus, for tableswitch/lookupswitch, its own
// start offset. That lets a single forward pass fix every offset, followed
// by one emission pass that resolves deltas against already-known offsets.
//
// The returned map carries an entry for every element, including Label,
// Frame, and LineMarker pseudo-nodes, at the byte offset of the real
// instruction immediately following them (or len(code) for a run of
// trailing pseudo-nodes at the end of the method).
func Encode(list *InsnList, pw PoolWriter) ([]byte, map[*Element]int, error) {
	offsets := make(map[*Element]int, list.Len())

	pos := 0
	for e := list.Front(); e != nil; e = e.Next() {
		offsets[e] = pos
		w, err := width(e.Value, pos)
		if err != nil {
			return nil, nil, err
		}
		pos += w
	}
	total := pos

	code := make([]byte, total)
	pos = 0
	for e := list.Front(); e != nil; e = e.Next() {
		n, err := emit(code[pos:], e, offsets, pw)
		if err != nil {
			return nil, nil, err
		}
		pos += n
	}
	if pos != total {
		return nil, nil, fmt.Errorf("bytecode: encode: width/emit mismatch: reserved %d, wrote %d", total, pos)
	}
	return code, offsets, nil
}

func width(instr Instr, selfOffset int) (int, error) {
	switch v := instr.(type) {
	case *Label, *Frame, *LineMarker:
		return 0, nil
	case *Insn:
		return 1, nil
	case *IntInsn:
		switch v.Op {
		case OpBipush, OpNewarray:
			return 2, nil
		case OpSipush:
			return 3, nil
		}
		return 0, fmt.Errorf("bytecode: encode: IntInsn with unsupported opcode 0x%02X", byte(v.Op))
	case *LdcInsn:
		if v.Wide || v.Index > 0xFF {
			return 3, nil
		}
		return 2, nil
	case *VarInsn:
		return varWidth(v), nil
	case *IincInsn:
		if v.Index > 0xFF || v.Increment < -128 || v.Increment > 127 {
			return 6, nil
		}
		return 3, nil
	case *TypeInsn:
		return 3, nil
	case *FieldInsn:
		return 3, nil
	case *MethodInsn:
		if v.IsInterface {
			return 5, nil
		}
		return 3, nil
	case *MultiANewArrayInsn:
		return 4, nil
	case *JumpInsn:
		if v.Op == OpGotoW || v.Op == OpJsrW {
			return 5, nil
		}
		return 3, nil
	case *SwitchInsn:
		return switchWidth(v, selfOffset), nil
	case *RawInsn:
		return 1 + len(v.Data), nil
	default:
		return 0, fmt.Errorf("bytecode: encode: unknown instruction type %T", instr)
	}
}

func varWidth(v *VarInsn) int {
	if v.Op != OpRet && v.Index >= 0 && v.Index <= 3 {
		if hasZeroToThreeForm(v.Op, v.Index) {
			return 1
		}
	}
	if v.Index <= 0xFF {
		return 2
	}
	return 4
}

func hasZeroToThreeForm(family Op, index int) bool {
	for _, f := range zeroToThreeForms {
		if f.family == family && f.index == index {
			return true
		}
	}
	return false
}

func switchWidth(v *SwitchInsn, selfOffset int) int {
	pad := (4 - (selfOffset+1)%4) % 4
	if v.Lookup {
		return 1 + pad + 4 + 4 + 8*len(v.Keys)
	}
	n := len(v.Targets)
	return 1 + pad + 4 + 4 + 4 + 4*n
}

func emit(dst []byte, e *Element, offsets map[*Element]int, pw PoolWriter) (int, error) {
	switch v := e.Value.(type) {
	case *Label, *Frame, *LineMarker:
		return 0, nil

	case *Insn:
		dst[0] = byte(v.Op)
		return 1, nil

	case *IntInsn:
		dst[0] = byte(v.Op)
		switch v.Op {
		case OpBipush, OpNewarray:
			dst[1] = byte(int8(v.Operand))
			return 2, nil
		case OpSipush:
			binary.BigEndian.PutUint16(dst[1:], uint16(int16(v.Operand)))
			return 3, nil
		}
		return 0, fmt.Errorf("bytecode: emit: IntInsn with unsupported opcode 0x%02X", byte(v.Op))

	case *LdcInsn:
		if v.Wide {
			dst[0] = byte(OpLdc2W)
			binary.BigEndian.PutUint16(dst[1:], v.Index)
			return 3, nil
		}
		if v.Index > 0xFF {
			dst[0] = byte(OpLdcW)
			binary.BigEndian.PutUint16(dst[1:], v.Index)
			return 3, nil
		}
		dst[0] = byte(OpLdc)
		dst[1] = byte(v.Index)
		return 2, nil

	case *VarInsn:
		return emitVar(dst, v), nil

	case *IincInsn:
		if v.Index > 0xFF || v.Increment < -128 || v.Increment > 127 {
			dst[0] = byte(OpWide)
			dst[1] = byte(OpIinc)
			binary.BigEndian.PutUint16(dst[2:], uint16(v.Index))
			binary.BigEndian.PutUint16(dst[4:], uint16(int16(v.Increment)))
			return 6, nil
		}
		dst[0] = byte(OpIinc)
		dst[1] = byte(v.Index)
		dst[2] = byte(int8(v.Increment))
		return 3, nil

	case *TypeInsn:
		dst[0] = byte(v.Op)
		binary.BigEndian.PutUint16(dst[1:], pw.InternClass(v.Type))
		return 3, nil

	case *FieldInsn:
		dst[0] = byte(v.Op)
		binary.BigEndian.PutUint16(dst[1:], pw.InternFieldref(v.Owner, v.Name, v.Descriptor))
		return 3, nil

	case *MethodInsn:
		dst[0] = byte(v.Op)
		var idx uint16
		if v.IsInterface {
			idx = pw.InternInterfaceMethodref(v.Owner, v.Name, v.Descriptor)
		} else {
			idx = pw.InternMethodref(v.Owner, v.Name, v.Descriptor)
		}
		binary.BigEndian.PutUint16(dst[1:], idx)
		if v.IsInterface {
			count := descriptorArgSlots(v.Descriptor) + 1
			dst[3] = byte(count)
			dst[4] = 0
			return 5, nil
		}
		return 3, nil

	case *MultiANewArrayInsn:
		dst[0] = byte(OpMultianewarray)
		binary.BigEndian.PutUint16(dst[1:], pw.InternClass(v.Type))
		dst[3] = v.Dimensions
		return 4, nil

	case *JumpInsn:
		self := offsets[e]
		target, ok := offsets[v.Target]
		if !ok {
			return 0, fmt.Errorf("bytecode: emit: jump target not part of this list")
		}
		delta := target - self
		dst[0] = byte(v.Op)
		if v.Op == OpGotoW || v.Op == OpJsrW {
			binary.BigEndian.PutUint32(dst[1:], uint32(int32(delta)))
			return 5, nil
		}
		if delta < -32768 || delta > 32767 {
			return 0, fmt.Errorf("bytecode: emit: branch delta %d out of range for opcode 0x%02X", delta, byte(v.Op))
		}
		binary.BigEndian.PutUint16(dst[1:], uint16(int16(delta)))
		return 3, nil

	case *SwitchInsn:
		return emitSwitch(dst, e, v, offsets)

	case *RawInsn:
		dst[0] = byte(v.Op)
		copy(dst[1:], v.Data)
		return 1 + len(v.Data), nil

	default:
		return 0, fmt.Errorf("bytecode: emit: unknown instruction type %T", e.Value)
	}
}

func emitVar(dst []byte, v *VarInsn) int {
	if v.Op != OpRet && v.Index >= 0 && v.Index <= 3 && hasZeroToThreeForm(v.Op, v.Index) {
		dst[0] = byte(compactVarOp(v.Op, v.Index))
		return 1
	}
	if v.Index <= 0xFF {
		dst[0] = byte(v.Op)
		dst[1] = byte(v.Index)
		return 2
	}
	dst[0] = byte(OpWide)
	dst[1] = byte(v.Op)
	binary.BigEndian.PutUint16(dst[2:], uint16(v.Index))
	return 4
}

func compactVarOp(family Op, index int) Op {
	for op, f := range zeroToThreeForms {
		if f.family == family && f.index == index {
			return op
		}
	}
	return family
}

func emitSwitch(dst []byte, e *Element, v *SwitchInsn, offsets map[*Element]int) (int, error) {
	self := offsets[e]
	pad := (4 - (self+1)%4) % 4
	dst[0] = byte(v.Opcode())
	p := 1 + pad
	defTarget, ok := offsets[v.Default]
	if !ok {
		return 0, fmt.Errorf("bytecode: emit: switch default not part of this list")
	}
	binary.BigEndian.PutUint32(dst[p:], uint32(int32(defTarget-self)))
	p += 4

	if v.Lookup {
		binary.BigEndian.PutUint32(dst[p:], uint32(int32(len(v.Keys))))
		p += 4
		for i, k := range v.Keys {
			t, ok := offsets[v.Targets[i]]
			if !ok {
				return 0, fmt.Errorf("bytecode: emit: lookupswitch target not part of this list")
			}
			binary.BigEndian.PutUint32(dst[p:], uint32(k))
			p += 4
			binary.BigEndian.PutUint32(dst[p:], uint32(int32(t-self)))
			p += 4
		}
		return p, nil
	}

	high := v.Low + int32(len(v.Targets)) - 1
	binary.BigEndian.PutUint32(dst[p:], uint32(v.Low))
	p += 4
	binary.BigEndian.PutUint32(dst[p:], uint32(high))
	p += 4
	for _, target := range v.Targets {
		t, ok := offsets[target]
		if !ok {
			return 0, fmt.Errorf("bytecode: emit: tableswitch target not part of this list")
		}
		binary.BigEndian.PutUint32(dst[p:], uint32(int32(t-self)))
		p += 4
	}
	return p, nil
}

// descriptorArgSlots sums the local-variable slot width of every parameter
// in a method descriptor, used to fill invokeinterface's redundant count
// byte.
func descriptorArgSlots(descriptor string) int {
	slots := 0
	i := 1 // skip '('
	for i < len(descriptor) && descriptor[i] != ')' {
		switch descriptor[i] {
		case 'L':
			for i < len(descriptor) && descriptor[i] != ';' {
				i++
			}
			slots++
		case '[':
			for i < len(descriptor) && descriptor[i] == '[' {
				i++
			}
			if i < len(descriptor) && descriptor[i] == 'L' {
				for i < len(descriptor) && descriptor[i] != ';' {
					i++
				}
			}
			slots++
		case 'J', 'D':
			slots += 2
		default:
			slots++
		}
		i++
	}
	return slots
}
