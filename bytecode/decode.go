package bytecode

import (
	"encoding/binary"
	"fmt"
)

// varForm describes one of the opcodes in the iload_0..astore_3 family: the
// canonical indexed opcode it stands for, and the fixed slot index it
// carries implicitly in its own opcode byte.
type varForm struct {
	family Op
	index  int
}

var zeroToThreeForms = map[Op]varForm{
	OpIload0: {OpIload, 0}, OpIload1: {OpIload, 1}, OpIload2: {OpIload, 2}, OpIload3: {OpIload, 3},
	OpLload0: {OpLload, 0}, OpLload1: {OpLload, 1}, OpLload2: {OpLload, 2}, OpLload3: {OpLload, 3},
	OpFload0: {OpFload, 0}, OpFload1: {OpFload, 1}, OpFload2: {OpFload, 2}, OpFload3: {OpFload, 3},
	OpDload0: {OpDload, 0}, OpDload1: {OpDload, 1}, OpDload2: {OpDload, 2}, OpDload3: {OpDload, 3},
	OpAload0: {OpAload, 0}, OpAload1: {OpAload, 1}, OpAload2: {OpAload, 2}, OpAload3: {OpAload, 3},
	OpIstore0: {OpIstore, 0}, OpIstore1: {OpIstore, 1}, OpIstore2: {OpIstore, 2}, OpIstore3: {OpIstore, 3},
	OpLstore0: {OpLstore, 0}, OpLstore1: {OpLstore, 1}, OpLstore2: {OpLstore, 2}, OpLstore3: {OpLstore, 3},
	OpFstore0: {OpFstore, 0}, OpFstore1: {OpFstore, 1}, OpFstore2: {OpFstore, 2}, OpFstore3: {OpFstore, 3},
	OpDstore0: {OpDstore, 0}, OpDstore1: {OpDstore, 1}, OpDstore2: {OpDstore, 2}, OpDstore3: {OpDstore, 3},
	OpAstore0: {OpAstore, 0}, OpAstore1: {OpAstore, 1}, OpAstore2: {OpAstore, 2}, OpAstore3: {OpAstore, 3},
}

// isVarFamily reports whether op is one of the generic indexed load/store
// opcodes (iload, astore, ret, ...) that take a single local-slot index.
func isVarFamily(op Op) bool {
	switch op {
	case OpIload, OpLload, OpFload, OpDload, OpAload,
		OpIstore, OpLstore, OpFstore, OpDstore, OpAstore, OpRet:
		return true
	}
	return false
}

// pendingJump records a jump/switch instruction decoded in pass one whose
// target is still a raw byte offset, to be resolved to an *Element once
// every instruction's position is known.
type pendingJump struct {
	elem    *Element
	targets []int // absolute byte offsets; element 0 is Default for SwitchInsn
}

// Decode turns a method's raw Code attribute bytes into an InsnList. It
// returns the list together with a map from original byte offset to the
// Element occupying that position, so that callers (the classfile package,
// rebuilding exception/line-number/local-variable tables) can translate
// numeric PC references into label pointers. The map also carries one
// sentinel entry at len(code), an empty Label marking the position just
// past the last instruction, for exclusive end-of-range references.
func Decode(code []byte, cp ConstPool) (*InsnList, map[int]*Element, error) {
	list := NewInsnList()
	offsetToElement := make(map[int]*Element)
	var pending []pendingJump

	pos := 0
	for pos < len(code) {
		start := pos
		op := Op(code[pos])
		var elem *Element

		switch {
		case zeroToThreeFormOp(op):
			f := zeroToThreeForms[op]
			elem = list.PushBack(&VarInsn{Op: f.family, Index: f.index})
			pos++

		case isVarFamily(op):
			idx := int(code[pos+1])
			elem = list.PushBack(&VarInsn{Op: op, Index: idx})
			pos += 2

		case op == OpIinc:
			idx := int(code[pos+1])
			inc := int32(int8(code[pos+2]))
			elem = list.PushBack(&IincInsn{Index: idx, Increment: inc})
			pos += 3

		case op == OpBipush:
			v := int32(int8(code[pos+1]))
			elem = list.PushBack(&IntInsn{Op: op, Operand: v})
			pos += 2

		case op == OpSipush:
			v := int32(int16(binary.BigEndian.Uint16(code[pos+1:])))
			elem = list.PushBack(&IntInsn{Op: op, Operand: v})
			pos += 3

		case op == OpNewarray:
			elem = list.PushBack(&IntInsn{Op: op, Operand: int32(code[pos+1])})
			pos += 2

		case op == OpLdc:
			elem = list.PushBack(&LdcInsn{Index: uint16(code[pos+1])})
			pos += 2

		case op == OpLdcW:
			elem = list.PushBack(&LdcInsn{Index: binary.BigEndian.Uint16(code[pos+1:])})
			pos += 3

		case op == OpLdc2W:
			elem = list.PushBack(&LdcInsn{Wide: true, Index: binary.BigEndian.Uint16(code[pos+1:])})
			pos += 3

		case op == OpNew || op == OpAnewarray || op == OpCheckcast || op == OpInstanceof:
			idx := binary.BigEndian.Uint16(code[pos+1:])
			elem = list.PushBack(&TypeInsn{Op: op, Type: cp.GetClassName(idx)})
			pos += 3

		case op == OpGetstatic || op == OpPutstatic || op == OpGetfield || op == OpPutfield:
			idx := binary.BigEndian.Uint16(code[pos+1:])
			owner, name, desc := cp.GetFieldref(idx)
			elem = list.PushBack(&FieldInsn{Op: op, Owner: owner, Name: name, Descriptor: desc})
			pos += 3

		case op == OpInvokevirtual || op == OpInvokespecial || op == OpInvokestatic:
			idx := binary.BigEndian.Uint16(code[pos+1:])
			owner, name, desc := cp.GetMethodref(idx)
			elem = list.PushBack(&MethodInsn{Op: op, Owner: owner, Name: name, Descriptor: desc})
			pos += 3

		case op == OpInvokeinterface:
			idx := binary.BigEndian.Uint16(code[pos+1:])
			owner, name, desc := cp.GetInterfaceMethodref(idx)
			elem = list.PushBack(&MethodInsn{Op: op, Owner: owner, Name: name, Descriptor: desc, IsInterface: true})
			pos += 5

		case op == OpInvokedynamic:
			elem = list.PushBack(&RawInsn{Op: op, Data: append([]byte(nil), code[pos+1:pos+5]...)})
			pos += 5

		case op == OpMultianewarray:
			idx := binary.BigEndian.Uint16(code[pos+1:])
			dims := code[pos+3]
			elem = list.PushBack(&MultiANewArrayInsn{Type: cp.GetClassName(idx), Dimensions: dims})
			pos += 4

		case op == OpIfeq || op == OpIfne || op == OpIflt || op == OpIfge || op == OpIfgt || op == OpIfle ||
			op == OpIfIcmpeq || op == OpIfIcmpne || op == OpIfIcmplt || op == OpIfIcmpge || op == OpIfIcmpgt || op == OpIfIcmple ||
			op == OpIfAcmpeq || op == OpIfAcmpne || op == OpGoto || op == OpJsr || op == OpIfnull || op == OpIfnonnull:
			delta := int32(int16(binary.BigEndian.Uint16(code[pos+1:])))
			elem = list.PushBack(&JumpInsn{Op: op})
			pending = append(pending, pendingJump{elem: elem, targets: []int{start + int(delta)}})
			pos += 3

		case op == OpGotoW || op == OpJsrW:
			delta := int32(binary.BigEndian.Uint32(code[pos+1:]))
			elem = list.PushBack(&JumpInsn{Op: op})
			pending = append(pending, pendingJump{elem: elem, targets: []int{start + int(delta)}})
			pos += 5

		case op == OpRet:
			elem = list.PushBack(&VarInsn{Op: op, Index: int(code[pos+1])})
			pos += 2

		case op == OpWide:
			e, n, err := decodeWide(code, pos, list)
			if err != nil {
				return nil, nil, err
			}
			elem = e
			pos += n

		case op == OpTableswitch || op == OpLookupswitch:
			e, n, pj, err := decodeSwitch(code, start, list)
			if err != nil {
				return nil, nil, err
			}
			elem = e
			pos += n
			pending = append(pending, pj)

		case op.IsReturn() || op == OpAthrow || op == OpArraylength ||
			(op >= OpIaload && op <= OpSaload) || (op >= OpIastore && op <= OpSastore) ||
			(op >= OpPop && op <= OpDmul) || (op >= OpIdiv && op <= OpLxor) ||
			op == OpMonitorenter || op == OpMonitorexit ||
			(op >= OpI2l && op <= OpDcmpg):
			elem = list.PushBack(&Insn{Op: op})
			pos++

		default:
			elem = list.PushBack(&Insn{Op: op})
			pos++
		}

		if elem == nil {
			return nil, nil, fmt.Errorf("bytecode: decode: unhandled opcode 0x%02X at offset %d", byte(op), start)
		}
		offsetToElement[start] = elem
	}
	offsetToElement[len(code)] = list.PushBack(&Label{Name: "end"})

	for _, pj := range pending {
		switch v := pj.elem.Value.(type) {
		case *JumpInsn:
			target, ok := offsetToElement[pj.targets[0]]
			if !ok {
				return nil, nil, fmt.Errorf("bytecode: decode: jump target %d has no instruction boundary", pj.targets[0])
			}
			v.Target = target
		case *SwitchInsn:
			def, ok := offsetToElement[pj.targets[0]]
			if !ok {
				return nil, nil, fmt.Errorf("bytecode: decode: switch default %d has no instruction boundary", pj.targets[0])
			}
			v.Default = def
			v.Targets = make([]*Element, len(pj.targets)-1)
			for i, off := range pj.targets[1:] {
				t, ok := offsetToElement[off]
				if !ok {
					return nil, nil, fmt.Errorf("bytecode: decode: switch target %d has no instruction boundary", off)
				}
				v.Targets[i] = t
			}
		}
	}

	return list, offsetToElement, nil
}

func zeroToThreeFormOp(op Op) bool {
	_, ok := zeroToThreeForms[op]
	return ok
}

// decodeWide handles the wide-prefixed forms of iload/istore/.../ret/iinc,
// which carry a 2-byte index (and, for iinc, a 2-byte signed increment)
// instead of the normal 1-byte operand.
func decodeWide(code []byte, pos int, list *InsnList) (*Element, int, error) {
	sub := Op(code[pos+1])
	idx := int(binary.BigEndian.Uint16(code[pos+2:]))
	if sub == OpIinc {
		inc := int32(int16(binary.BigEndian.Uint16(code[pos+4:])))
		return list.PushBack(&IincInsn{Index: idx, Increment: inc}), 6, nil
	}
	if isVarFamily(sub) {
		return list.PushBack(&VarInsn{Op: sub, Index: idx}), 4, nil
	}
	return nil, 0, fmt.Errorf("bytecode: decode: wide prefix on unsupported opcode 0x%02X", byte(sub))
}

// decodeSwitch handles tableswitch and lookupswitch, including the
// variable-length padding that aligns the case table to a 4-byte boundary
// relative to the start of the method's bytecode.
func decodeSwitch(code []byte, start int, list *InsnList) (*Element, int, pendingJump, error) {
	op := Op(code[start])
	p := start + 1
	for (p % 4) != 0 {
		p++
	}
	defOff := int32(binary.BigEndian.Uint32(code[p:]))
	p += 4

	sw := &SwitchInsn{Lookup: op == OpLookupswitch}
	targets := []int{start + int(defOff)}

	if op == OpTableswitch {
		low := int32(binary.BigEndian.Uint32(code[p:]))
		p += 4
		high := int32(binary.BigEndian.Uint32(code[p:]))
		p += 4
		sw.Low = low
		n := int(high - low + 1)
		sw.Targets = make([]*Element, n)
		for i := 0; i < n; i++ {
			off := int32(binary.BigEndian.Uint32(code[p:]))
			p += 4
			targets = append(targets, start+int(off))
		}
	} else {
		npairs := int(binary.BigEndian.Uint32(code[p:]))
		p += 4
		sw.Keys = make([]int32, npairs)
		sw.Targets = make([]*Element, npairs)
		for i := 0; i < npairs; i++ {
			sw.Keys[i] = int32(binary.BigEndian.Uint32(code[p:]))
			p += 4
			off := int32(binary.BigEndian.Uint32(code[p:]))
			p += 4
			targets = append(targets, start+int(off))
		}
	}

	elem := list.PushBack(sw)
	return elem, p - start, pendingJump{elem: elem, targets: targets}, nil
}
