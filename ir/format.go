package ir

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dhamidi/jdec/bytecode"
	"github.com/dhamidi/jdec/classfile"
)

// Format renders the tree under id as Java-like text. It is a debugging
// and diagnostics rendering, not a source printer.
func (m *Method) Format(id ID) string {
	var sb strings.Builder
	m.format(&sb, id)
	return sb.String()
}

// VarName is the display name of a variable slot at offset.
func (m *Method) VarName(slot, offset int) string {
	if name := m.LocalName(slot, offset); name != "" {
		return name
	}
	if slot == 0 && !m.Static {
		return "this"
	}
	return "v" + strconv.Itoa(slot)
}

func typeName(desc string) string {
	if ft := classfile.ParseFieldDescriptor(desc); ft != nil {
		return ft.String()
	}
	return classfile.InternalToSourceName(desc)
}

func needsParens(in *Instruction) bool {
	switch in.Op {
	case OpBinary, OpTernary, OpLogical, OpCond, OpAssign, OpInstanceOf, OpCheckCast, OpConvert, OpNeg:
		return true
	}
	return false
}

func (m *Method) operand(sb *strings.Builder, id ID) {
	if needsParens(m.At(id)) {
		sb.WriteByte('(')
		m.format(sb, id)
		sb.WriteByte(')')
		return
	}
	m.format(sb, id)
}

func (m *Method) list(sb *strings.Builder, ids []ID) {
	sb.WriteByte('(')
	for i, a := range ids {
		if i > 0 {
			sb.WriteString(", ")
		}
		m.format(sb, a)
	}
	sb.WriteByte(')')
}

func formatConst(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case int32:
		return strconv.Itoa(int(v))
	case int64:
		return strconv.FormatInt(v, 10) + "L"
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32) + "F"
	case float64:
		s := strconv.FormatFloat(v, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eIN") {
			s += ".0"
		}
		return s
	case string:
		return strconv.Quote(v)
	case Symbol:
		return string(v)
	}
	return fmt.Sprint(v)
}

func (m *Method) format(sb *strings.Builder, id ID) {
	in := m.At(id)
	switch in.Op {
	case OpConst:
		sb.WriteString(formatConst(in.Value))
	case OpLoad:
		sb.WriteString(m.VarName(in.Local, in.Offset))
	case OpStore:
		sb.WriteString(m.VarName(in.Local, in.End))
		sb.WriteString(" = ")
		m.format(sb, in.Args[0])
	case OpInc, OpPostInc:
		name := m.VarName(in.Local, in.Offset)
		d, _ := in.Value.(int32)
		switch {
		case d == 1:
			sb.WriteString(name + "++")
		case d == -1:
			sb.WriteString(name + "--")
		case d < 0:
			fmt.Fprintf(sb, "%s -= %d", name, -d)
		default:
			fmt.Fprintf(sb, "%s += %d", name, d)
		}
	case OpArrayLoad:
		m.operand(sb, in.Args[0])
		sb.WriteByte('[')
		m.format(sb, in.Args[1])
		sb.WriteByte(']')
	case OpArrayStore:
		m.operand(sb, in.Args[0])
		sb.WriteByte('[')
		m.format(sb, in.Args[1])
		sb.WriteString("] = ")
		m.format(sb, in.Args[2])
	case OpGetField:
		m.operand(sb, in.Args[0])
		sb.WriteString("." + in.Name)
	case OpGetStatic:
		sb.WriteString(classfile.InternalToSourceName(in.Owner) + "." + in.Name)
	case OpPutField:
		m.operand(sb, in.Args[0])
		sb.WriteString("." + in.Name + " = ")
		m.format(sb, in.Args[1])
	case OpPutStatic:
		sb.WriteString(classfile.InternalToSourceName(in.Owner) + "." + in.Name + " = ")
		m.format(sb, in.Args[0])
	case OpInvoke:
		m.formatInvoke(sb, in)
	case OpNew:
		sb.WriteString("new " + classfile.InternalToSourceName(in.Owner))
	case OpNewInit:
		sb.WriteString("new " + classfile.InternalToSourceName(in.Owner))
		m.list(sb, in.Args)
	case OpAnonNew:
		args := in.Args
		if anon, ok := in.Value.(*AnonClass); ok {
			if anon.OuterThis && len(args) > 0 {
				args = args[1:]
			}
			if n := len(anon.Captured); n <= len(args) {
				args = args[:len(args)-n]
			}
		}
		sb.WriteString("new " + classfile.InternalToSourceName(in.Owner))
		m.list(sb, args)
		sb.WriteString(" {...}")
	case OpNewArray:
		ft := classfile.ParseFieldDescriptor(in.Type)
		if ft == nil {
			sb.WriteString("new " + in.Type)
			m.list(sb, in.Args)
			break
		}
		base := *ft
		base.ArrayDepth = 0
		sb.WriteString("new " + base.String())
		for _, a := range in.Args {
			sb.WriteByte('[')
			m.format(sb, a)
			sb.WriteByte(']')
		}
		for i := len(in.Args); i < ft.ArrayDepth; i++ {
			sb.WriteString("[]")
		}
	case OpArrayLiteral:
		sb.WriteString("new " + typeName(in.Type) + " {")
		for i, a := range in.Args {
			if i > 0 {
				sb.WriteString(", ")
			}
			m.format(sb, a)
		}
		sb.WriteByte('}')
	case OpArrayLength:
		m.operand(sb, in.Args[0])
		sb.WriteString(".length")
	case OpCheckCast:
		sb.WriteString("(" + typeName(in.Type) + ") ")
		m.operand(sb, in.Args[0])
	case OpInstanceOf:
		m.operand(sb, in.Args[0])
		sb.WriteString(" instanceof " + typeName(descriptorOf(in.Owner)))
	case OpBinary, OpLogical:
		m.operand(sb, in.Args[0])
		sb.WriteString(" " + in.Oper.String() + " ")
		m.operand(sb, in.Args[1])
	case OpNeg:
		sb.WriteByte('-')
		m.operand(sb, in.Args[0])
	case OpConvert:
		sb.WriteString("(" + typeName(in.Type) + ") ")
		m.operand(sb, in.Args[0])
	case OpCompare:
		sb.WriteString("compare")
		m.list(sb, in.Args)
	case OpCond:
		m.operand(sb, in.Args[0])
		sb.WriteString(" " + in.Oper.String() + " ")
		switch {
		case len(in.Args) > 1:
			m.operand(sb, in.Args[1])
		case in.IsNullTest():
			sb.WriteString("null")
		default:
			sb.WriteString("0")
		}
	case OpNot:
		sb.WriteByte('!')
		m.operand(sb, in.Args[0])
	case OpIf:
		sb.WriteString("if (")
		m.format(sb, in.Args[0])
		fmt.Fprintf(sb, ") goto %d", in.Target)
	case OpGoto:
		fmt.Fprintf(sb, "goto %d", in.Target)
	case OpSwitch:
		sb.WriteString("switch (")
		m.format(sb, in.Args[0])
		sb.WriteByte(')')
	case OpReturn:
		sb.WriteString("return")
		if len(in.Args) > 0 {
			sb.WriteByte(' ')
			m.format(sb, in.Args[0])
		}
	case OpThrow:
		sb.WriteString("throw ")
		m.format(sb, in.Args[0])
	case OpMonitorEnter, OpMonitorExit:
		sb.WriteString(strings.ToLower(in.Op.String()))
		m.list(sb, in.Args)
	case OpPop:
		m.format(sb, in.Args[0])
	case OpJsr:
		fmt.Fprintf(sb, "jsr %d", in.Target)
	case OpRet:
		sb.WriteString("ret " + m.VarName(in.Local, in.Offset))
	case OpCatch:
		sb.WriteString("$exception")
	case OpStackStore:
		fmt.Fprintf(sb, "s%d = ", in.Local)
		m.format(sb, in.Args[0])
	case OpStackLoad:
		fmt.Fprintf(sb, "s%d", in.Local)
	case OpTernary:
		m.format(sb, in.Args[0])
		sb.WriteString(" ? ")
		m.operand(sb, in.Args[1])
		sb.WriteString(" : ")
		m.operand(sb, in.Args[2])
	case OpClassLiteral:
		sb.WriteString(typeName(descriptorOf(in.Owner)) + ".class")
	case OpAssign:
		m.format(sb, in.Args[0])
	default:
		sb.WriteString(in.Op.String())
	}
}

func (m *Method) formatInvoke(sb *strings.Builder, in *Instruction) {
	args := in.Args
	switch {
	case in.Owner == "":
		sb.WriteString("dynamic:" + in.Name)
	case in.Opcode == bytecode.Invokestatic:
		sb.WriteString(classfile.InternalToSourceName(in.Owner) + "." + in.Name)
	case in.Name == "<init>":
		sb.WriteString("super")
		args = args[1:]
	default:
		m.operand(sb, args[0])
		sb.WriteString("." + in.Name)
		args = args[1:]
	}
	m.list(sb, args)
}
