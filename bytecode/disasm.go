package bytecode

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dhamidi/jdec/classfile"
)

// Line is one disassembled instruction.
type Line struct {
	Offset int    `json:"offset"`
	Text   string `json:"text"`
}

func (l Line) String() string {
	return fmt.Sprintf("%5d: %s", l.Offset, l.Text)
}

var newarrayTypes = map[int32]string{
	4: "boolean", 5: "char", 6: "float", 7: "double",
	8: "byte", 9: "short", 10: "int", 11: "long",
}

// Disassemble renders code as text, resolving constant pool operands through
// cp. It stops at the first undecodable instruction and returns what it has
// together with the error.
func Disassemble(code []byte, cp classfile.ConstantPool) ([]Line, error) {
	var lines []Line
	for pc := 0; pc < len(code); {
		op, err := Decode(code, pc)
		if err != nil {
			return lines, err
		}
		lines = append(lines, Line{Offset: op.Offset, Text: formatOperation(op, cp)})
		pc = op.Next()
	}
	return lines, nil
}

func formatOperation(op Operation, cp classfile.ConstantPool) string {
	var sb strings.Builder
	if op.Wide {
		sb.WriteString("wide ")
	}
	sb.WriteString(op.Name())

	c := op.Opcode
	switch {
	case c == Bipush || c == Sipush:
		fmt.Fprintf(&sb, " %d", op.Value)
	case c == Iinc:
		fmt.Fprintf(&sb, " %d, %d", op.Local, op.Value)
	case (c >= Iload && c <= Aload) || (c >= Istore && c <= Astore) || c == Ret:
		fmt.Fprintf(&sb, " %d", op.Local)
	case IsBranch(c):
		fmt.Fprintf(&sb, " %d", op.Target)
	case c == Newarray:
		fmt.Fprintf(&sb, " %s", newarrayTypes[op.Value])
	case c == Multianewarray:
		fmt.Fprintf(&sb, " %s, %d", describeConstant(cp, op.Index), op.Value)
	case c == Tableswitch || c == Lookupswitch:
		sb.WriteString(" {")
		for i, k := range op.Keys {
			fmt.Fprintf(&sb, " %d: %d;", k, op.Targets[i])
		}
		fmt.Fprintf(&sb, " default: %d }", op.Default)
	case c == Ldc || c == LdcW || c == Ldc2W || (c >= Getstatic && c <= Invokedynamic) ||
		c == New || c == Anewarray || c == Checkcast || c == Instanceof:
		fmt.Fprintf(&sb, " %s", describeConstant(cp, op.Index))
	}
	return sb.String()
}

func describeConstant(cp classfile.ConstantPool, index uint16) string {
	entry, err := cp.Entry(index)
	if err != nil {
		return fmt.Sprintf("#%d <invalid>", index)
	}
	switch e := entry.(type) {
	case *classfile.ConstantIntegerInfo:
		return strconv.Itoa(int(e.Value))
	case *classfile.ConstantLongInfo:
		return strconv.FormatInt(e.Value, 10) + "L"
	case *classfile.ConstantFloatInfo:
		return strconv.FormatFloat(float64(e.Value), 'g', -1, 32) + "f"
	case *classfile.ConstantDoubleInfo:
		return strconv.FormatFloat(e.Value, 'g', -1, 64)
	case *classfile.ConstantStringInfo:
		return strconv.Quote(cp.GetUtf8(e.StringIndex))
	case *classfile.ConstantClassInfo:
		return cp.GetUtf8(e.NameIndex)
	case *classfile.ConstantRefInfo:
		ref, _ := cp.Method(index)
		if e.Kind == classfile.ConstantFieldref {
			ref, _ = cp.Field(index)
		}
		return ref.Owner + "." + ref.Name + ":" + ref.Descriptor
	case *classfile.ConstantDynamicInfo:
		name, desc, _ := cp.NameAndType(e.NameAndTypeIndex)
		return fmt.Sprintf("#%d:%s%s", e.BootstrapMethodAttrIndex, name, desc)
	case *classfile.ConstantMethodTypeInfo:
		return cp.GetUtf8(e.DescriptorIndex)
	}
	return fmt.Sprintf("#%d", index)
}
