package classfile

// member is the layout fields and methods share.
type member struct {
	AccessFlags     AccessFlags
	NameIndex       uint16
	DescriptorIndex uint16
	Attributes      []AttributeInfo
}

func (m *member) Name(cp ConstantPool) string {
	return cp.GetUtf8(m.NameIndex)
}

func (m *member) Descriptor(cp ConstantPool) string {
	return cp.GetUtf8(m.DescriptorIndex)
}

func (m *member) GetAttribute(name string) *AttributeInfo {
	return findAttribute(m.Attributes, name)
}

func (m *member) IsStatic() bool { return m.AccessFlags.IsStatic() }

// IsSynthetic also honours the Synthetic attribute older compilers emit
// instead of the flag.
func (m *member) IsSynthetic() bool {
	return m.AccessFlags.IsSynthetic() || m.GetAttribute("Synthetic") != nil
}

type FieldInfo struct {
	member
}

type MethodInfo struct {
	member
}

// Code returns the method body, or nil for abstract and native methods.
func (m *MethodInfo) Code() *CodeAttribute {
	attr := m.GetAttribute("Code")
	if attr == nil {
		return nil
	}
	return attr.AsCode()
}

func (m *MethodInfo) ParsedDescriptor(cp ConstantPool) *MethodDescriptor {
	return ParseMethodDescriptor(m.Descriptor(cp))
}

// FirstLine is the smallest source line recorded for the body, or 0 when
// the method has no code or no line table.
func (m *MethodInfo) FirstLine() int {
	code := m.Code()
	if code == nil {
		return 0
	}
	first := 0
	for _, e := range code.LineNumbers() {
		if l := int(e.LineNumber); l > 0 && (first == 0 || l < first) {
			first = l
		}
	}
	return first
}
