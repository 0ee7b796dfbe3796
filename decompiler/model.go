package decompiler

import (
	"strings"

	"github.com/dhamidi/jdec/classfile"
)

type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityProtected Visibility = "protected"
	VisibilityPrivate   Visibility = "private"
	VisibilityPackage   Visibility = "package"
)

type ClassKind string

const (
	ClassKindClass      ClassKind = "class"
	ClassKindInterface  ClassKind = "interface"
	ClassKindEnum       ClassKind = "enum"
	ClassKindAnnotation ClassKind = "annotation"
	ClassKindModule     ClassKind = "module"
)

// ClassModel is the declaration-level summary of a class: what a dump shows
// besides the method bodies.
type ClassModel struct {
	Name         string        `json:"name" yaml:"name"`
	SimpleName   string        `json:"simpleName" yaml:"simple_name"`
	Package      string        `json:"package" yaml:"package"`
	SuperClass   string        `json:"superClass,omitempty" yaml:"super_class,omitempty"`
	Interfaces   []string      `json:"interfaces,omitempty" yaml:"interfaces,omitempty"`
	Visibility   Visibility    `json:"visibility" yaml:"visibility"`
	Kind         ClassKind     `json:"kind" yaml:"kind"`
	Modifiers    []string      `json:"modifiers,omitempty" yaml:"modifiers,omitempty"`
	MajorVersion uint16        `json:"majorVersion" yaml:"major_version"`
	MinorVersion uint16        `json:"minorVersion" yaml:"minor_version"`
	SourceFile   string        `json:"sourceFile,omitempty" yaml:"source_file,omitempty"`
	Fields       []FieldModel  `json:"fields,omitempty" yaml:"fields,omitempty"`
	Methods      []MethodModel `json:"methods,omitempty" yaml:"methods,omitempty"`
}

type FieldModel struct {
	Name       string     `json:"name" yaml:"name"`
	Type       string     `json:"type" yaml:"type"`
	Visibility Visibility `json:"visibility" yaml:"visibility"`
	Modifiers  []string   `json:"modifiers,omitempty" yaml:"modifiers,omitempty"`
}

type MethodModel struct {
	Name       string     `json:"name" yaml:"name"`
	Descriptor string     `json:"descriptor" yaml:"descriptor"`
	ReturnType string     `json:"returnType" yaml:"return_type"`
	Parameters []string   `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Visibility Visibility `json:"visibility" yaml:"visibility"`
	Modifiers  []string   `json:"modifiers,omitempty" yaml:"modifiers,omitempty"`
}

// NewClassModel summarises cf. Members in hidden (synthetic helpers an idiom
// folded away) are left out.
func NewClassModel(cf *classfile.ClassFile, hidden []string) *ClassModel {
	skip := make(map[string]bool, len(hidden))
	for _, h := range hidden {
		skip[h] = true
	}
	cp := cf.ConstantPool
	name := classfile.InternalToSourceName(cf.ClassName())
	pkg, simple := splitClassName(name)
	model := &ClassModel{
		Name:         name,
		SimpleName:   simple,
		Package:      pkg,
		MajorVersion: cf.MajorVersion,
		MinorVersion: cf.MinorVersion,
		Visibility:   visibility(cf.AccessFlags),
		Kind:         classKind(cf),
		SourceFile:   cf.SourceFile(),
		Modifiers:    modifiers(cf.AccessFlags, classFlags),
	}
	if cf.SuperClass != 0 {
		model.SuperClass = classfile.InternalToSourceName(cf.SuperClassName())
	}
	for _, iface := range cf.InterfaceNames() {
		model.Interfaces = append(model.Interfaces, classfile.InternalToSourceName(iface))
	}
	for i := range cf.Fields {
		f := &cf.Fields[i]
		if skip[f.Name(cp)] {
			continue
		}
		model.Fields = append(model.Fields, FieldModel{
			Name:       f.Name(cp),
			Type:       typeName(classfile.ParseFieldDescriptor(f.Descriptor(cp))),
			Visibility: visibility(f.AccessFlags),
			Modifiers:  modifiers(f.AccessFlags, fieldFlags),
		})
	}
	for i := range cf.Methods {
		m := &cf.Methods[i]
		if skip[m.Name(cp)] {
			continue
		}
		mm := MethodModel{
			Name:       m.Name(cp),
			Descriptor: m.Descriptor(cp),
			Visibility: visibility(m.AccessFlags),
			Modifiers:  modifiers(m.AccessFlags, methodFlags),
			ReturnType: "void",
		}
		if desc := m.ParsedDescriptor(cp); desc != nil {
			if desc.ReturnType != nil {
				mm.ReturnType = typeName(desc.ReturnType)
			}
			for i := range desc.Parameters {
				mm.Parameters = append(mm.Parameters, typeName(&desc.Parameters[i]))
			}
		}
		model.Methods = append(model.Methods, mm)
	}
	return model
}

func splitClassName(fullName string) (pkg, simpleName string) {
	lastDot := strings.LastIndex(fullName, ".")
	if lastDot == -1 {
		return "", fullName
	}
	return fullName[:lastDot], fullName[lastDot+1:]
}

func visibility(flags classfile.AccessFlags) Visibility {
	switch {
	case flags.IsPublic():
		return VisibilityPublic
	case flags.IsProtected():
		return VisibilityProtected
	case flags.IsPrivate():
		return VisibilityPrivate
	}
	return VisibilityPackage
}

func classKind(cf *classfile.ClassFile) ClassKind {
	switch {
	case cf.AccessFlags.IsModule():
		return ClassKindModule
	case cf.AccessFlags.IsAnnotation():
		return ClassKindAnnotation
	case cf.IsEnum():
		return ClassKindEnum
	case cf.IsInterface():
		return ClassKindInterface
	}
	return ClassKindClass
}

type flagName struct {
	flag classfile.AccessFlags
	name string
}

var classFlags = []flagName{
	{classfile.AccFinal, "final"},
	{classfile.AccAbstract, "abstract"},
	{classfile.AccSynthetic, "synthetic"},
}

var fieldFlags = []flagName{
	{classfile.AccStatic, "static"},
	{classfile.AccFinal, "final"},
	{classfile.AccVolatile, "volatile"},
	{classfile.AccTransient, "transient"},
	{classfile.AccSynthetic, "synthetic"},
	{classfile.AccEnum, "enum"},
}

var methodFlags = []flagName{
	{classfile.AccStatic, "static"},
	{classfile.AccFinal, "final"},
	{classfile.AccAbstract, "abstract"},
	{classfile.AccSynchronized, "synchronized"},
	{classfile.AccNative, "native"},
	{classfile.AccBridge, "bridge"},
	{classfile.AccVarargs, "varargs"},
	{classfile.AccSynthetic, "synthetic"},
}

func modifiers(flags classfile.AccessFlags, names []flagName) []string {
	var out []string
	for _, n := range names {
		if flags&n.flag != 0 {
			out = append(out, n.name)
		}
	}
	return out
}

func typeName(ft *classfile.FieldType) string {
	if ft == nil {
		return "void"
	}
	return ft.String()
}
