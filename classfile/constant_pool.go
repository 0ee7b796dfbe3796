package classfile

import (
	"errors"
	"fmt"
)

// ErrMalformedInput reports a violation of the class-file grammar. Nothing in
// a class that fails with it can be decoded.
var ErrMalformedInput = errors.New("malformed class file")

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedInput, fmt.Sprintf(format, args...))
}

type ConstantPoolEntry interface {
	Tag() ConstantTag
}

type ConstantUtf8Info struct {
	Value string
}

func (c *ConstantUtf8Info) Tag() ConstantTag { return ConstantUtf8 }

type ConstantIntegerInfo struct {
	Value int32
}

func (c *ConstantIntegerInfo) Tag() ConstantTag { return ConstantInteger }

type ConstantFloatInfo struct {
	Value float32
}

func (c *ConstantFloatInfo) Tag() ConstantTag { return ConstantFloat }

type ConstantLongInfo struct {
	Value int64
}

func (c *ConstantLongInfo) Tag() ConstantTag { return ConstantLong }

type ConstantDoubleInfo struct {
	Value float64
}

func (c *ConstantDoubleInfo) Tag() ConstantTag { return ConstantDouble }

type ConstantClassInfo struct {
	NameIndex uint16
}

func (c *ConstantClassInfo) Tag() ConstantTag { return ConstantClass }

type ConstantStringInfo struct {
	StringIndex uint16
}

func (c *ConstantStringInfo) Tag() ConstantTag { return ConstantString }

// ConstantRefInfo covers Fieldref, Methodref and InterfaceMethodref, which
// share a layout.
type ConstantRefInfo struct {
	Kind             ConstantTag
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

func (c *ConstantRefInfo) Tag() ConstantTag { return c.Kind }

type ConstantNameAndTypeInfo struct {
	NameIndex       uint16
	DescriptorIndex uint16
}

func (c *ConstantNameAndTypeInfo) Tag() ConstantTag { return ConstantNameAndType }

type ConstantMethodHandleInfo struct {
	ReferenceKind  MethodHandleKind
	ReferenceIndex uint16
}

func (c *ConstantMethodHandleInfo) Tag() ConstantTag { return ConstantMethodHandle }

type ConstantMethodTypeInfo struct {
	DescriptorIndex uint16
}

func (c *ConstantMethodTypeInfo) Tag() ConstantTag { return ConstantMethodType }

// ConstantDynamicInfo covers both Dynamic and InvokeDynamic.
type ConstantDynamicInfo struct {
	Kind                     ConstantTag
	BootstrapMethodAttrIndex uint16
	NameAndTypeIndex         uint16
}

func (c *ConstantDynamicInfo) Tag() ConstantTag { return c.Kind }

type ConstantModuleInfo struct {
	NameIndex uint16
}

func (c *ConstantModuleInfo) Tag() ConstantTag { return ConstantModule }

type ConstantPackageInfo struct {
	NameIndex uint16
}

func (c *ConstantPackageInfo) Tag() ConstantTag { return ConstantPackage }

// ConstantPool holds entry i at position i-1. The second slot of a long or
// double entry is nil.
type ConstantPool []ConstantPoolEntry

// Entry returns the entry at the 1-based index.
func (cp ConstantPool) Entry(index uint16) (ConstantPoolEntry, error) {
	if index == 0 || int(index) > len(cp) || cp[index-1] == nil {
		return nil, malformed("constant pool index %d out of range (size %d)", index, len(cp)+1)
	}
	return cp[index-1], nil
}

func (cp ConstantPool) expect(index uint16, tags ...ConstantTag) (ConstantPoolEntry, error) {
	entry, err := cp.Entry(index)
	if err != nil {
		return nil, err
	}
	for _, tag := range tags {
		if entry.Tag() == tag {
			return entry, nil
		}
	}
	return nil, malformed("constant pool index %d is %s, want %v", index, entry.Tag(), tags)
}

func (cp ConstantPool) Utf8(index uint16) (string, error) {
	entry, err := cp.expect(index, ConstantUtf8)
	if err != nil {
		return "", err
	}
	return entry.(*ConstantUtf8Info).Value, nil
}

// Class resolves a Class entry to its internal name.
func (cp ConstantPool) Class(index uint16) (string, error) {
	entry, err := cp.expect(index, ConstantClass)
	if err != nil {
		return "", err
	}
	return cp.Utf8(entry.(*ConstantClassInfo).NameIndex)
}

func (cp ConstantPool) NameAndType(index uint16) (name, descriptor string, err error) {
	entry, err := cp.expect(index, ConstantNameAndType)
	if err != nil {
		return "", "", err
	}
	nt := entry.(*ConstantNameAndTypeInfo)
	if name, err = cp.Utf8(nt.NameIndex); err != nil {
		return "", "", err
	}
	if descriptor, err = cp.Utf8(nt.DescriptorIndex); err != nil {
		return "", "", err
	}
	return name, descriptor, nil
}

// MemberRef is a resolved field or method reference.
type MemberRef struct {
	Kind       ConstantTag
	Owner      string
	Name       string
	Descriptor string
}

// Field resolves a Fieldref entry.
func (cp ConstantPool) Field(index uint16) (MemberRef, error) {
	return cp.member(index, ConstantFieldref)
}

// Method resolves a Methodref or InterfaceMethodref entry.
func (cp ConstantPool) Method(index uint16) (MemberRef, error) {
	return cp.member(index, ConstantMethodref, ConstantInterfaceMethodref)
}

func (cp ConstantPool) member(index uint16, tags ...ConstantTag) (MemberRef, error) {
	entry, err := cp.expect(index, tags...)
	if err != nil {
		return MemberRef{}, err
	}
	ref := entry.(*ConstantRefInfo)
	owner, err := cp.Class(ref.ClassIndex)
	if err != nil {
		return MemberRef{}, err
	}
	name, desc, err := cp.NameAndType(ref.NameAndTypeIndex)
	if err != nil {
		return MemberRef{}, err
	}
	return MemberRef{Kind: ref.Kind, Owner: owner, Name: name, Descriptor: desc}, nil
}

// Loadable returns an entry usable as an ldc operand.
func (cp ConstantPool) Loadable(index uint16) (ConstantPoolEntry, error) {
	return cp.expect(index,
		ConstantInteger, ConstantFloat, ConstantLong, ConstantDouble,
		ConstantString, ConstantClass, ConstantMethodType, ConstantMethodHandle,
		ConstantDynamic)
}

// InvokeDynamic resolves the call-site name and descriptor of an
// InvokeDynamic entry.
func (cp ConstantPool) InvokeDynamic(index uint16) (name, descriptor string, err error) {
	entry, err := cp.expect(index, ConstantInvokeDynamic)
	if err != nil {
		return "", "", err
	}
	return cp.NameAndType(entry.(*ConstantDynamicInfo).NameAndTypeIndex)
}

// GetUtf8 is the lenient form of Utf8 for indices already checked by Parse.
func (cp ConstantPool) GetUtf8(index uint16) string {
	s, _ := cp.Utf8(index)
	return s
}

// GetClassName is the lenient form of Class.
func (cp ConstantPool) GetClassName(index uint16) string {
	s, _ := cp.Class(index)
	return s
}

// validate checks that every reference inside the pool resolves to an entry
// of the expected kind.
func (cp ConstantPool) validate() error {
	for i, entry := range cp {
		index := uint16(i + 1)
		var err error
		switch e := entry.(type) {
		case nil:
		case *ConstantClassInfo:
			_, err = cp.Utf8(e.NameIndex)
		case *ConstantStringInfo:
			_, err = cp.Utf8(e.StringIndex)
		case *ConstantRefInfo:
			if _, err = cp.expect(e.ClassIndex, ConstantClass); err == nil {
				_, err = cp.expect(e.NameAndTypeIndex, ConstantNameAndType)
			}
		case *ConstantNameAndTypeInfo:
			if _, err = cp.Utf8(e.NameIndex); err == nil {
				_, err = cp.Utf8(e.DescriptorIndex)
			}
		case *ConstantMethodHandleInfo:
			switch {
			case e.ReferenceKind >= RefGetField && e.ReferenceKind <= RefPutStatic:
				_, err = cp.expect(e.ReferenceIndex, ConstantFieldref)
			case e.ReferenceKind >= RefInvokeVirtual && e.ReferenceKind <= RefInvokeInterface:
				_, err = cp.expect(e.ReferenceIndex, ConstantMethodref, ConstantInterfaceMethodref)
			default:
				err = malformed("method handle kind %d", e.ReferenceKind)
			}
		case *ConstantMethodTypeInfo:
			_, err = cp.Utf8(e.DescriptorIndex)
		case *ConstantDynamicInfo:
			_, err = cp.expect(e.NameAndTypeIndex, ConstantNameAndType)
		case *ConstantModuleInfo:
			_, err = cp.Utf8(e.NameIndex)
		case *ConstantPackageInfo:
			_, err = cp.Utf8(e.NameIndex)
		}
		if err != nil {
			return fmt.Errorf("constant pool entry %d: %w", index, err)
		}
	}
	return nil
}
