package classfile

import (
	"encoding/binary"
)

type AttributeInfo struct {
	NameIndex uint16
	Info      []byte
	Parsed    interface{}
}

type CodeAttribute struct {
	MaxStack       uint16
	MaxLocals      uint16
	Code           []byte
	ExceptionTable []ExceptionTableEntry
	Attributes     []AttributeInfo
}

type ExceptionTableEntry struct {
	StartPC   uint16
	EndPC     uint16
	HandlerPC uint16
	CatchType uint16
}

type LineNumberTableAttribute struct {
	LineNumberTable []LineNumberEntry
}

type LineNumberEntry struct {
	StartPC    uint16
	LineNumber uint16
}

type LocalVariableTableAttribute struct {
	LocalVariableTable []LocalVariableEntry
}

type LocalVariableEntry struct {
	StartPC         uint16
	Length          uint16
	NameIndex       uint16
	DescriptorIndex uint16
	Index           uint16
}

type StackMapTableAttribute struct {
	Entries []StackMapFrame
}

type StackMapFrame struct {
	FrameType uint8
	Data      []byte
}

// Annotation, ElementValuePair and ElementValue model a single
// @Intercepts/@Spawns-style annotation the way the Handler Pattern's
// method-matching logic in handlerspec needs to read it: enough of the
// JVM's annotation encoding to walk element/value pairs, no more.
type Annotation struct {
	TypeIndex         uint16
	ElementValuePairs []ElementValuePair
}

type ElementValuePair struct {
	ElementNameIndex uint16
	Value            ElementValue
}

type ElementValue struct {
	Tag   byte
	Value interface{}
}

type EnumConstValue struct {
	TypeNameIndex  uint16
	ConstNameIndex uint16
}

type ArrayValue struct {
	Values []ElementValue
}

type RuntimeVisibleAnnotationsAttribute struct {
	Annotations []Annotation
}

type RuntimeInvisibleAnnotationsAttribute struct {
	Annotations []Annotation
}

func (a *AttributeInfo) AsCode() *CodeAttribute {
	if a.Parsed != nil {
		if code, ok := a.Parsed.(*CodeAttribute); ok {
			return code
		}
	}
	return nil
}

func (a *AttributeInfo) AsLineNumberTable() *LineNumberTableAttribute {
	if a.Parsed != nil {
		if lnt, ok := a.Parsed.(*LineNumberTableAttribute); ok {
			return lnt
		}
	}
	return nil
}

func (a *AttributeInfo) AsLocalVariableTable() *LocalVariableTableAttribute {
	if a.Parsed != nil {
		if lvt, ok := a.Parsed.(*LocalVariableTableAttribute); ok {
			return lvt
		}
	}
	return nil
}

func (a *AttributeInfo) AsStackMapTable() *StackMapTableAttribute {
	if a.Parsed != nil {
		if smt, ok := a.Parsed.(*StackMapTableAttribute); ok {
			return smt
		}
	}
	return nil
}

func (a *AttributeInfo) AsRuntimeVisibleAnnotations() *RuntimeVisibleAnnotationsAttribute {
	if a.Parsed != nil {
		if rva, ok := a.Parsed.(*RuntimeVisibleAnnotationsAttribute); ok {
			return rva
		}
	}
	return nil
}

func (a *AttributeInfo) AsRuntimeInvisibleAnnotations() *RuntimeInvisibleAnnotationsAttribute {
	if a.Parsed != nil {
		if ria, ok := a.Parsed.(*RuntimeInvisibleAnnotationsAttribute); ok {
			return ria
		}
	}
	return nil
}

func parseCodeAttribute(info []byte, cp ConstantPool) *CodeAttribute {
	if len(info) < 8 {
		return nil
	}

	code := &CodeAttribute{
		MaxStack:  binary.BigEndian.Uint16(info[0:2]),
		MaxLocals: binary.BigEndian.Uint16(info[2:4]),
	}

	codeLength := binary.BigEndian.Uint32(info[4:8])
	if len(info) < 8+int(codeLength) {
		return nil
	}
	code.Code = info[8 : 8+codeLength]

	offset := 8 + int(codeLength)
	if len(info) < offset+2 {
		return nil
	}

	exceptionTableLength := binary.BigEndian.Uint16(info[offset : offset+2])
	offset += 2

	code.ExceptionTable = make([]ExceptionTableEntry, exceptionTableLength)
	for i := uint16(0); i < exceptionTableLength; i++ {
		if len(info) < offset+8 {
			return nil
		}
		code.ExceptionTable[i] = ExceptionTableEntry{
			StartPC:   binary.BigEndian.Uint16(info[offset : offset+2]),
			EndPC:     binary.BigEndian.Uint16(info[offset+2 : offset+4]),
			HandlerPC: binary.BigEndian.Uint16(info[offset+4 : offset+6]),
			CatchType: binary.BigEndian.Uint16(info[offset+6 : offset+8]),
		}
		offset += 8
	}

	if len(info) < offset+2 {
		return nil
	}
	attributesCount := binary.BigEndian.Uint16(info[offset : offset+2])
	offset += 2

	code.Attributes = make([]AttributeInfo, 0, attributesCount)
	for i := uint16(0); i < attributesCount; i++ {
		if len(info) < offset+6 {
			return nil
		}
		nameIndex := binary.BigEndian.Uint16(info[offset : offset+2])
		attrLength := binary.BigEndian.Uint32(info[offset+2 : offset+6])
		offset += 6

		if len(info) < offset+int(attrLength) {
			return nil
		}
		attrInfo := info[offset : offset+int(attrLength)]
		offset += int(attrLength)

		attr := AttributeInfo{
			NameIndex: nameIndex,
			Info:      attrInfo,
		}

		attrName := cp.GetUtf8(nameIndex)
		switch attrName {
		case "LineNumberTable":
			attr.Parsed = parseLineNumberTableAttribute(attrInfo)
		case "LocalVariableTable":
			attr.Parsed = parseLocalVariableTableAttribute(attrInfo)
		case "StackMapTable":
			attr.Parsed = parseStackMapTableAttribute(attrInfo)
		}

		code.Attributes = append(code.Attributes, attr)
	}

	return code
}

func parseLineNumberTableAttribute(info []byte) *LineNumberTableAttribute {
	if len(info) < 2 {
		return nil
	}

	count := binary.BigEndian.Uint16(info[0:2])
	if len(info) < 2+int(count)*4 {
		return nil
	}

	lnt := &LineNumberTableAttribute{
		LineNumberTable: make([]LineNumberEntry, count),
	}

	offset := 2
	for i := uint16(0); i < count; i++ {
		lnt.LineNumberTable[i] = LineNumberEntry{
			StartPC:    binary.BigEndian.Uint16(info[offset : offset+2]),
			LineNumber: binary.BigEndian.Uint16(info[offset+2 : offset+4]),
		}
		offset += 4
	}

	return lnt
}

func parseLocalVariableTableAttribute(info []byte) *LocalVariableTableAttribute {
	if len(info) < 2 {
		return nil
	}

	count := binary.BigEndian.Uint16(info[0:2])
	if len(info) < 2+int(count)*10 {
		return nil
	}

	lvt := &LocalVariableTableAttribute{
		LocalVariableTable: make([]LocalVariableEntry, count),
	}

	offset := 2
	for i := uint16(0); i < count; i++ {
		lvt.LocalVariableTable[i] = LocalVariableEntry{
			StartPC:         binary.BigEndian.Uint16(info[offset : offset+2]),
			Length:          binary.BigEndian.Uint16(info[offset+2 : offset+4]),
			NameIndex:       binary.BigEndian.Uint16(info[offset+4 : offset+6]),
			DescriptorIndex: binary.BigEndian.Uint16(info[offset+6 : offset+8]),
			Index:           binary.BigEndian.Uint16(info[offset+8 : offset+10]),
		}
		offset += 10
	}

	return lvt
}

func parseStackMapTableAttribute(info []byte) *StackMapTableAttribute {
	if len(info) < 2 {
		return nil
	}

	count := binary.BigEndian.Uint16(info[0:2])
	smt := &StackMapTableAttribute{
		Entries: make([]StackMapFrame, 0, count),
	}

	offset := 2
	for i := uint16(0); i < count; i++ {
		if len(info) <= offset {
			return nil
		}
		frameType := info[offset]
		frameStart := offset
		offset++

		switch {
		case frameType <= 63:
			// same_frame
		case frameType <= 127:
			// same_locals_1_stack_item_frame
			offset += verificationTypeInfoSize(info, offset)
		case frameType == 247:
			// same_locals_1_stack_item_frame_extended
			offset += 2 // offset_delta
			offset += verificationTypeInfoSize(info, offset)
		case frameType >= 248 && frameType <= 250:
			// chop_frame
			offset += 2 // offset_delta
		case frameType == 251:
			// same_frame_extended
			offset += 2 // offset_delta
		case frameType >= 252 && frameType <= 254:
			// append_frame
			offset += 2 // offset_delta
			numLocals := int(frameType) - 251
			for k := 0; k < numLocals; k++ {
				offset += verificationTypeInfoSize(info, offset)
			}
		case frameType == 255:
			// full_frame
			if len(info) < offset+2 {
				return nil
			}
			offset += 2 // offset_delta
			numLocals := int(binary.BigEndian.Uint16(info[offset : offset+2]))
			offset += 2
			for k := 0; k < numLocals; k++ {
				offset += verificationTypeInfoSize(info, offset)
			}
			if len(info) < offset+2 {
				return nil
			}
			numStack := int(binary.BigEndian.Uint16(info[offset : offset+2]))
			offset += 2
			for k := 0; k < numStack; k++ {
				offset += verificationTypeInfoSize(info, offset)
			}
		}

		smt.Entries = append(smt.Entries, StackMapFrame{
			FrameType: frameType,
			Data:      info[frameStart:offset],
		})
	}

	return smt
}

func verificationTypeInfoSize(info []byte, offset int) int {
	if len(info) <= offset {
		return 1
	}
	tag := info[offset]
	switch tag {
	case 0, 1, 2, 3, 4, 5, 6:
		return 1
	case 7, 8:
		return 3
	default:
		return 1
	}
}

func parseElementValue(info []byte, offset int) (ElementValue, int) {
	if len(info) <= offset {
		return ElementValue{}, offset
	}

	tag := info[offset]
	offset++

	ev := ElementValue{Tag: tag}

	switch tag {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z', 's':
		if len(info) < offset+2 {
			return ev, offset
		}
		ev.Value = binary.BigEndian.Uint16(info[offset : offset+2])
		offset += 2

	case 'e':
		if len(info) < offset+4 {
			return ev, offset
		}
		ev.Value = EnumConstValue{
			TypeNameIndex:  binary.BigEndian.Uint16(info[offset : offset+2]),
			ConstNameIndex: binary.BigEndian.Uint16(info[offset+2 : offset+4]),
		}
		offset += 4

	case 'c':
		if len(info) < offset+2 {
			return ev, offset
		}
		ev.Value = binary.BigEndian.Uint16(info[offset : offset+2])
		offset += 2

	case '@':
		var ann Annotation
		ann, offset = parseAnnotation(info, offset)
		ev.Value = ann

	case '[':
		if len(info) < offset+2 {
			return ev, offset
		}
		numValues := binary.BigEndian.Uint16(info[offset : offset+2])
		offset += 2
		values := make([]ElementValue, numValues)
		for i := uint16(0); i < numValues; i++ {
			values[i], offset = parseElementValue(info, offset)
		}
		ev.Value = ArrayValue{Values: values}
	}

	return ev, offset
}

func parseAnnotation(info []byte, offset int) (Annotation, int) {
	ann := Annotation{}
	if len(info) < offset+4 {
		return ann, offset
	}

	ann.TypeIndex = binary.BigEndian.Uint16(info[offset : offset+2])
	numPairs := binary.BigEndian.Uint16(info[offset+2 : offset+4])
	offset += 4

	ann.ElementValuePairs = make([]ElementValuePair, numPairs)
	for i := uint16(0); i < numPairs; i++ {
		if len(info) < offset+2 {
			return ann, offset
		}
		pair := ElementValuePair{
			ElementNameIndex: binary.BigEndian.Uint16(info[offset : offset+2]),
		}
		offset += 2
		pair.Value, offset = parseElementValue(info, offset)
		ann.ElementValuePairs[i] = pair
	}

	return ann, offset
}

func parseRuntimeVisibleAnnotationsAttribute(info []byte) *RuntimeVisibleAnnotationsAttribute {
	if len(info) < 2 {
		return nil
	}

	numAnnotations := binary.BigEndian.Uint16(info[0:2])
	rva := &RuntimeVisibleAnnotationsAttribute{
		Annotations: make([]Annotation, numAnnotations),
	}

	offset := 2
	for i := uint16(0); i < numAnnotations; i++ {
		rva.Annotations[i], offset = parseAnnotation(info, offset)
	}

	return rva
}

func parseRuntimeInvisibleAnnotationsAttribute(info []byte) *RuntimeInvisibleAnnotationsAttribute {
	if len(info) < 2 {
		return nil
	}

	numAnnotations := binary.BigEndian.Uint16(info[0:2])
	ria := &RuntimeInvisibleAnnotationsAttribute{
		Annotations: make([]Annotation, numAnnotations),
	}

	offset := 2
	for i := uint16(0); i < numAnnotations; i++ {
		ria.Annotations[i], offset = parseAnnotation(info, offset)
	}

	return ria
}
