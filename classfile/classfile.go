package classfile

import "strings"

type ClassFile struct {
	MinorVersion uint16
	MajorVersion uint16
	ConstantPool ConstantPool
	AccessFlags  AccessFlags
	ThisClass    uint16
	SuperClass   uint16
	Interfaces   []uint16
	Fields       []FieldInfo
	Methods      []MethodInfo
	Attributes   []AttributeInfo
}

func (cf *ClassFile) ClassName() string {
	return cf.ConstantPool.GetClassName(cf.ThisClass)
}

func (cf *ClassFile) SuperClassName() string {
	if cf.SuperClass == 0 {
		return ""
	}
	return cf.ConstantPool.GetClassName(cf.SuperClass)
}

func (cf *ClassFile) InterfaceNames() []string {
	names := make([]string, len(cf.Interfaces))
	for i, idx := range cf.Interfaces {
		names[i] = cf.ConstantPool.GetClassName(idx)
	}
	return names
}

func (cf *ClassFile) IsInterface() bool {
	return cf.AccessFlags.IsInterface() && !cf.AccessFlags.IsAnnotation()
}

func (cf *ClassFile) IsEnum() bool {
	return cf.AccessFlags.IsEnum()
}

func (cf *ClassFile) GetField(name string) *FieldInfo {
	for i := range cf.Fields {
		if cf.Fields[i].Name(cf.ConstantPool) == name {
			return &cf.Fields[i]
		}
	}
	return nil
}

// FieldsWithPrefix returns the fields whose name starts with prefix, in
// declaration order.
func (cf *ClassFile) FieldsWithPrefix(prefix string) []*FieldInfo {
	var out []*FieldInfo
	for i := range cf.Fields {
		if strings.HasPrefix(cf.Fields[i].Name(cf.ConstantPool), prefix) {
			out = append(out, &cf.Fields[i])
		}
	}
	return out
}

func (cf *ClassFile) GetMethod(name, descriptor string) *MethodInfo {
	for i := range cf.Methods {
		if cf.Methods[i].Name(cf.ConstantPool) == name {
			if descriptor == "" || cf.Methods[i].Descriptor(cf.ConstantPool) == descriptor {
				return &cf.Methods[i]
			}
		}
	}
	return nil
}

func (cf *ClassFile) GetAttribute(name string) *AttributeInfo {
	return findAttribute(cf.Attributes, name)
}

func (cf *ClassFile) SourceFile() string {
	if attr := cf.GetAttribute("SourceFile"); attr != nil {
		return cf.ConstantPool.GetUtf8(attr.Parsed.(uint16))
	}
	return ""
}

// InnerClass describes one row of the InnerClasses table with names resolved.
type InnerClass struct {
	Name       string
	Outer      string
	SimpleName string
	Flags      AccessFlags
}

// IsAnonymous reports whether the row describes an anonymous class.
func (ic InnerClass) IsAnonymous() bool {
	return ic.SimpleName == ""
}

func (cf *ClassFile) InnerClasses() []InnerClass {
	attr := cf.GetAttribute("InnerClasses")
	if attr == nil {
		return nil
	}
	entries, _ := attr.Parsed.([]InnerClassEntry)
	out := make([]InnerClass, 0, len(entries))
	for _, e := range entries {
		ic := InnerClass{
			Name:  cf.ConstantPool.GetClassName(e.InnerClassInfoIndex),
			Flags: e.InnerClassAccessFlags,
		}
		if e.OuterClassInfoIndex != 0 {
			ic.Outer = cf.ConstantPool.GetClassName(e.OuterClassInfoIndex)
		}
		if e.InnerNameIndex != 0 {
			ic.SimpleName = cf.ConstantPool.GetUtf8(e.InnerNameIndex)
		}
		out = append(out, ic)
	}
	return out
}

// InnerClass looks up name in the InnerClasses table.
func (cf *ClassFile) InnerClass(name string) (InnerClass, bool) {
	for _, ic := range cf.InnerClasses() {
		if ic.Name == name {
			return ic, true
		}
	}
	return InnerClass{}, false
}

func findAttribute(attrs []AttributeInfo, name string) *AttributeInfo {
	for i := range attrs {
		if attrs[i].Name == name {
			return &attrs[i]
		}
	}
	return nil
}
