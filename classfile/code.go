package classfile

import (
	"encoding/binary"
	"fmt"

	"github.com/dhamidi/handlerforge/bytecode"
)

// DecodedCode is the structured, editable view of a method's Code
// attribute: its instruction stream as a *bytecode.InsnList plus the
// exception, line-number, and local-variable tables rewritten to point at
// list elements instead of raw program counters. The instrumentation
// engine works exclusively against this type; CodeAttribute.Code remains
// the on-disk byte representation, regenerated by Encode once editing is
// done.
type DecodedCode struct {
	MaxStack       uint16
	MaxLocals      uint16
	Instructions   *bytecode.InsnList
	TryCatch       []TryCatchRange
	LineNumbers    []LineEntry
	LocalVariables []LocalVarRange
	OtherAttrs     []AttributeInfo // attributes on the Code attribute itself other than the three above
}

type TryCatchRange struct {
	Start, End, Handler *bytecode.Element
	CatchType           uint16
}

type LineEntry struct {
	Start *bytecode.Element
	Line  uint16
}

type LocalVarRange struct {
	Start, End *bytecode.Element
	Name       string
	Descriptor string
	Index      uint16
}

// DecodeCode turns a method's raw CodeAttribute into a DecodedCode, using
// cp to resolve constant-pool operands into owner/name/descriptor form.
func DecodeCode(attr *CodeAttribute, cp ConstantPool) (*DecodedCode, error) {
	insns, offsetToElement, err := bytecode.Decode(attr.Code, cp)
	if err != nil {
		return nil, fmt.Errorf("classfile: decode code: %w", err)
	}

	lookup := func(pc uint16) (*bytecode.Element, error) {
		e, ok := offsetToElement[int(pc)]
		if !ok {
			return nil, fmt.Errorf("classfile: decode code: pc %d is not an instruction boundary", pc)
		}
		return e, nil
	}

	dc := &DecodedCode{
		MaxStack:     attr.MaxStack,
		MaxLocals:    attr.MaxLocals,
		Instructions: insns,
	}

	for _, ex := range attr.ExceptionTable {
		start, err := lookup(ex.StartPC)
		if err != nil {
			return nil, err
		}
		end, err := lookup(ex.EndPC)
		if err != nil {
			return nil, err
		}
		handler, err := lookup(ex.HandlerPC)
		if err != nil {
			return nil, err
		}
		dc.TryCatch = append(dc.TryCatch, TryCatchRange{Start: start, End: end, Handler: handler, CatchType: ex.CatchType})
	}

	for _, a := range attr.Attributes {
		name := cp.GetUtf8(a.NameIndex)
		switch name {
		case "LineNumberTable":
			lnt := a.AsLineNumberTable()
			if lnt == nil {
				continue
			}
			for _, e := range lnt.LineNumberTable {
				start, err := lookup(e.StartPC)
				if err != nil {
					return nil, err
				}
				dc.LineNumbers = append(dc.LineNumbers, LineEntry{Start: start, Line: e.LineNumber})
			}
		case "LocalVariableTable":
			lvt := a.AsLocalVariableTable()
			if lvt == nil {
				continue
			}
			for _, e := range lvt.LocalVariableTable {
				start, err := lookup(e.StartPC)
				if err != nil {
					return nil, err
				}
				end, err := lookup(e.StartPC + e.Length)
				if err != nil {
					return nil, err
				}
				dc.LocalVariables = append(dc.LocalVariables, LocalVarRange{
					Start:      start,
					End:        end,
					Name:       cp.GetUtf8(e.NameIndex),
					Descriptor: cp.GetUtf8(e.DescriptorIndex),
					Index:      e.Index,
				})
			}
		default:
			dc.OtherAttrs = append(dc.OtherAttrs, a)
		}
	}

	return dc, nil
}

// Encode regenerates a CodeAttribute from dc, resolving every structured
// instruction and label reference against cf's constant pool, interning
// new entries as needed.
func (dc *DecodedCode) Encode(cf *ClassFile) (*CodeAttribute, error) {
	code, offsets, err := bytecode.Encode(dc.Instructions, cf.PoolWriter())
	if err != nil {
		return nil, fmt.Errorf("classfile: encode code: %w", err)
	}

	attr := &CodeAttribute{
		MaxStack:  dc.MaxStack,
		MaxLocals: dc.MaxLocals,
		Code:      code,
	}

	for _, tc := range dc.TryCatch {
		startPC, okS := offsets[tc.Start]
		endPC, okE := offsets[tc.End]
		handlerPC, okH := offsets[tc.Handler]
		if !okS || !okE || !okH {
			return nil, fmt.Errorf("classfile: encode code: try/catch range references an element outside this method")
		}
		attr.ExceptionTable = append(attr.ExceptionTable, ExceptionTableEntry{
			StartPC:   uint16(startPC),
			EndPC:     uint16(endPC),
			HandlerPC: uint16(handlerPC),
			CatchType: tc.CatchType,
		})
	}

	if len(dc.LineNumbers) > 0 {
		lnt := &LineNumberTableAttribute{}
		for _, ln := range dc.LineNumbers {
			pc, ok := offsets[ln.Start]
			if !ok {
				return nil, fmt.Errorf("classfile: encode code: line number entry references an element outside this method")
			}
			lnt.LineNumberTable = append(lnt.LineNumberTable, LineNumberEntry{StartPC: uint16(pc), LineNumber: ln.Line})
		}
		attr.Attributes = append(attr.Attributes, encodedAttribute(cf, "LineNumberTable", lnt))
	}

	if len(dc.LocalVariables) > 0 {
		lvt := &LocalVariableTableAttribute{}
		for _, lv := range dc.LocalVariables {
			startPC, okS := offsets[lv.Start]
			endPC, okE := offsets[lv.End]
			if !okS || !okE {
				return nil, fmt.Errorf("classfile: encode code: local variable entry references an element outside this method")
			}
			lvt.LocalVariableTable = append(lvt.LocalVariableTable, LocalVariableEntry{
				StartPC:         uint16(startPC),
				Length:          uint16(endPC - startPC),
				NameIndex:       cf.AddUtf8(lv.Name),
				DescriptorIndex: cf.AddUtf8(lv.Descriptor),
				Index:           lv.Index,
			})
		}
		attr.Attributes = append(attr.Attributes, encodedAttribute(cf, "LocalVariableTable", lvt))
	}

	if frames := collectFrames(cf, dc.Instructions, offsets); len(frames) > 0 {
		attr.Attributes = append(attr.Attributes, encodedAttribute(cf, "StackMapTable", &StackMapTableAttribute{Entries: frames}))
	}

	attr.Attributes = append(attr.Attributes, dc.OtherAttrs...)
	return attr, nil
}

// encodedAttribute wraps a parsed attribute value in an AttributeInfo with
// its NameIndex resolved; Info is left empty because this package's
// Encode regenerates attribute bodies from Parsed rather than from Info
// for every attribute type it knows how to serialize (see encode.go).
func encodedAttribute(cf *ClassFile, name string, parsed interface{}) AttributeInfo {
	return AttributeInfo{NameIndex: cf.AddUtf8(name), Parsed: parsed}
}

// collectFrames walks the instruction list in order, turning every
// engine-placed *bytecode.Frame into a full_frame (tag 255) StackMapFrame
// entry. Only control-flow joins the instrumentation engine itself
// introduced carry a Frame node, so this never needs to reconstruct
// frames for the method's original, already-verified control flow.
func collectFrames(cf *ClassFile, list *bytecode.InsnList, offsets map[*bytecode.Element]int) []StackMapFrame {
	var frames []StackMapFrame
	prevPC := -1
	for e := list.Front(); e != nil; e = e.Next() {
		frame, ok := e.Value.(*bytecode.Frame)
		if !ok {
			continue
		}
		pc, ok := offsets[e]
		if !ok {
			continue
		}
		offsetDelta := pc
		if prevPC >= 0 {
			offsetDelta = pc - prevPC - 1
		}
		prevPC = pc

		var body []byte
		body = binary.BigEndian.AppendUint16(body, uint16(offsetDelta))
		body = appendVerificationTypes(cf, body, frame.Locals)
		body = appendVerificationTypes(cf, body, frame.Stack)
		frames = append(frames, StackMapFrame{FrameType: 255, Data: body})
	}
	return frames
}

// appendVerificationTypes encodes a count followed by each
// verification_type_info entry, per JVMS 4.7.4. Object entries carry a
// constant-pool class index, interned here rather than at Frame-creation
// time so the engine can name types by internal name alone.
func appendVerificationTypes(cf *ClassFile, body []byte, types []bytecode.VerificationType) []byte {
	body = binary.BigEndian.AppendUint16(body, uint16(len(types)))
	for _, v := range types {
		body = append(body, byte(v.Kind))
		switch v.Kind {
		case bytecode.VObject:
			body = binary.BigEndian.AppendUint16(body, cf.AddClass(v.ClassName))
		case bytecode.VUninitialized:
			body = binary.BigEndian.AppendUint16(body, 0)
		}
	}
	return body
}
