package classfile

import (
	"fmt"
)

// AttributeInfo keeps the raw bytes of every attribute. Parsed is set for the
// attributes the decompiler understands; everything else is skipped by length.
type AttributeInfo struct {
	Name   string
	Info   []byte
	Parsed any
}

type CodeAttribute struct {
	MaxStack       uint16
	MaxLocals      uint16
	Code           []byte
	ExceptionTable []ExceptionTableEntry
	Attributes     []AttributeInfo
}

// ExceptionTableEntry protects [StartPC, EndPC). CatchType 0 catches anything.
type ExceptionTableEntry struct {
	StartPC   uint16
	EndPC     uint16
	HandlerPC uint16
	CatchType uint16
}

type LineNumberEntry struct {
	StartPC    uint16
	LineNumber uint16
}

type LocalVariableEntry struct {
	StartPC    uint16
	Length     uint16
	Name       string
	Descriptor string
	Index      uint16
}

type InnerClassEntry struct {
	InnerClassInfoIndex   uint16
	OuterClassInfoIndex   uint16
	InnerNameIndex        uint16
	InnerClassAccessFlags AccessFlags
}

type EnclosingMethodAttribute struct {
	ClassIndex  uint16
	MethodIndex uint16
}

type BootstrapMethod struct {
	BootstrapMethodRef uint16
	BootstrapArguments []uint16
}

// Attributes whose length is fixed by the format.
var fixedAttributeLengths = map[string]uint32{
	"ConstantValue":   2,
	"SourceFile":      2,
	"Signature":       2,
	"NestHost":        2,
	"ModuleMainClass": 2,
	"EnclosingMethod": 4,
	"Synthetic":       0,
	"Deprecated":      0,
}

func (a *AttributeInfo) AsCode() *CodeAttribute {
	code, _ := a.Parsed.(*CodeAttribute)
	return code
}

// LineNumbers returns the merged LineNumberTable entries of the code attribute.
func (c *CodeAttribute) LineNumbers() []LineNumberEntry {
	var out []LineNumberEntry
	for _, attr := range c.Attributes {
		if lines, ok := attr.Parsed.([]LineNumberEntry); ok {
			out = append(out, lines...)
		}
	}
	return out
}

// LocalVariables returns the merged LocalVariableTable entries.
func (c *CodeAttribute) LocalVariables() []LocalVariableEntry {
	var out []LocalVariableEntry
	for _, attr := range c.Attributes {
		if vars, ok := attr.Parsed.([]LocalVariableEntry); ok {
			out = append(out, vars...)
		}
	}
	return out
}

// LocalName returns the debug name of slot at pc, if the table has one.
func (c *CodeAttribute) LocalName(slot, pc int) string {
	for _, v := range c.LocalVariables() {
		if int(v.Index) == slot && pc >= int(v.StartPC) && pc <= int(v.StartPC)+int(v.Length) {
			return v.Name
		}
	}
	return ""
}

func readAttributeInfo(r *reader, cp ConstantPool) (*AttributeInfo, error) {
	nameIndex := r.readU2()
	length := r.readU4()
	if r.err != nil {
		return nil, r.err
	}
	name, err := cp.Utf8(nameIndex)
	if err != nil {
		return nil, fmt.Errorf("attribute name: %w", err)
	}
	if want, ok := fixedAttributeLengths[name]; ok && length != want {
		return nil, malformed("%s attribute has length %d, want %d", name, length, want)
	}
	info := r.readBytes(int(length))
	if r.err != nil {
		return nil, r.err
	}

	attr := &AttributeInfo{Name: name, Info: info}
	ar := &reader{data: info}
	switch name {
	case "Code":
		attr.Parsed, err = parseCodeAttribute(ar, cp)
	case "LineNumberTable":
		attr.Parsed, err = parseLineNumberTable(ar)
	case "LocalVariableTable":
		attr.Parsed, err = parseLocalVariableTable(ar, cp)
	case "SourceFile", "Signature":
		index := ar.readU2()
		_, err = cp.Utf8(index)
		attr.Parsed = index
	case "ConstantValue":
		index := ar.readU2()
		_, err = cp.Loadable(index)
		attr.Parsed = index
	case "NestHost", "ModuleMainClass":
		index := ar.readU2()
		_, err = cp.Class(index)
		attr.Parsed = index
	case "Exceptions":
		attr.Parsed, err = parseClassList(ar, cp)
	case "InnerClasses":
		attr.Parsed, err = parseInnerClasses(ar, cp)
	case "EnclosingMethod":
		attr.Parsed, err = parseEnclosingMethod(ar, cp)
	case "BootstrapMethods":
		attr.Parsed, err = parseBootstrapMethods(ar)
	case "Synthetic", "Deprecated":
		attr.Parsed = true
	}
	if err == nil {
		err = ar.err
	}
	if err != nil {
		return nil, fmt.Errorf("%s attribute: %w", name, err)
	}
	return attr, nil
}

func parseCodeAttribute(r *reader, cp ConstantPool) (*CodeAttribute, error) {
	code := &CodeAttribute{
		MaxStack:  r.readU2(),
		MaxLocals: r.readU2(),
	}
	codeLength := r.readU4()
	if r.err != nil {
		return nil, r.err
	}
	if codeLength == 0 || codeLength > 0xFFFF {
		return nil, malformed("code length %d", codeLength)
	}
	code.Code = r.readBytes(int(codeLength))

	count := r.readU2()
	code.ExceptionTable = make([]ExceptionTableEntry, count)
	for i := range code.ExceptionTable {
		e := ExceptionTableEntry{
			StartPC:   r.readU2(),
			EndPC:     r.readU2(),
			HandlerPC: r.readU2(),
			CatchType: r.readU2(),
		}
		if r.err != nil {
			return nil, r.err
		}
		if e.StartPC >= e.EndPC || uint32(e.EndPC) > codeLength || uint32(e.HandlerPC) >= codeLength {
			return nil, malformed("exception table entry %d: range [%d, %d) handler %d", i, e.StartPC, e.EndPC, e.HandlerPC)
		}
		if e.CatchType != 0 {
			if _, err := cp.Class(e.CatchType); err != nil {
				return nil, fmt.Errorf("exception table entry %d: %w", i, err)
			}
		}
		code.ExceptionTable[i] = e
	}

	attrCount := r.readU2()
	if r.err != nil {
		return nil, r.err
	}
	code.Attributes = make([]AttributeInfo, attrCount)
	for i := range code.Attributes {
		attr, err := readAttributeInfo(r, cp)
		if err != nil {
			return nil, err
		}
		code.Attributes[i] = *attr
	}
	return code, r.err
}

func parseLineNumberTable(r *reader) ([]LineNumberEntry, error) {
	count := r.readU2()
	lines := make([]LineNumberEntry, count)
	for i := range lines {
		lines[i] = LineNumberEntry{StartPC: r.readU2(), LineNumber: r.readU2()}
	}
	return lines, r.err
}

func parseLocalVariableTable(r *reader, cp ConstantPool) ([]LocalVariableEntry, error) {
	count := r.readU2()
	vars := make([]LocalVariableEntry, count)
	for i := range vars {
		startPC, length := r.readU2(), r.readU2()
		nameIndex, descIndex := r.readU2(), r.readU2()
		index := r.readU2()
		if r.err != nil {
			return nil, r.err
		}
		name, err := cp.Utf8(nameIndex)
		if err != nil {
			return nil, err
		}
		desc, err := cp.Utf8(descIndex)
		if err != nil {
			return nil, err
		}
		vars[i] = LocalVariableEntry{StartPC: startPC, Length: length, Name: name, Descriptor: desc, Index: index}
	}
	return vars, nil
}

func parseClassList(r *reader, cp ConstantPool) ([]uint16, error) {
	count := r.readU2()
	classes := make([]uint16, count)
	for i := range classes {
		classes[i] = r.readU2()
		if r.err != nil {
			return nil, r.err
		}
		if _, err := cp.Class(classes[i]); err != nil {
			return nil, err
		}
	}
	return classes, nil
}

func parseInnerClasses(r *reader, cp ConstantPool) ([]InnerClassEntry, error) {
	count := r.readU2()
	entries := make([]InnerClassEntry, count)
	for i := range entries {
		e := InnerClassEntry{
			InnerClassInfoIndex:   r.readU2(),
			OuterClassInfoIndex:   r.readU2(),
			InnerNameIndex:        r.readU2(),
			InnerClassAccessFlags: AccessFlags(r.readU2()),
		}
		if r.err != nil {
			return nil, r.err
		}
		if _, err := cp.Class(e.InnerClassInfoIndex); err != nil {
			return nil, err
		}
		if e.OuterClassInfoIndex != 0 {
			if _, err := cp.Class(e.OuterClassInfoIndex); err != nil {
				return nil, err
			}
		}
		if e.InnerNameIndex != 0 {
			if _, err := cp.Utf8(e.InnerNameIndex); err != nil {
				return nil, err
			}
		}
		entries[i] = e
	}
	return entries, nil
}

func parseEnclosingMethod(r *reader, cp ConstantPool) (*EnclosingMethodAttribute, error) {
	em := &EnclosingMethodAttribute{ClassIndex: r.readU2(), MethodIndex: r.readU2()}
	if r.err != nil {
		return nil, r.err
	}
	if _, err := cp.Class(em.ClassIndex); err != nil {
		return nil, err
	}
	if em.MethodIndex != 0 {
		if _, _, err := cp.NameAndType(em.MethodIndex); err != nil {
			return nil, err
		}
	}
	return em, nil
}

func parseBootstrapMethods(r *reader) ([]BootstrapMethod, error) {
	count := r.readU2()
	methods := make([]BootstrapMethod, count)
	for i := range methods {
		methods[i].BootstrapMethodRef = r.readU2()
		args := make([]uint16, r.readU2())
		for j := range args {
			args[j] = r.readU2()
		}
		methods[i].BootstrapArguments = args
	}
	return methods, r.err
}
