package ir

import "github.com/dhamidi/jdec/bytecode"

var negated = map[Operator]Operator{
	Eq: Ne, Ne: Eq, Lt: Ge, Ge: Lt, Gt: Le, Le: Gt,
}

// Negate returns a condition that holds exactly when cond does not.
// Relational conditions flip their operator, logical ones are rewritten by
// De Morgan, and a Not is unwrapped.
func (m *Method) Negate(cond ID) ID {
	in := m.At(cond)
	switch in.Op {
	case OpCond:
		if op, ok := negated[in.Oper]; ok {
			return m.Derive(cond, &Instruction{Op: OpCond, Oper: op, Args: in.Args, Opcode: in.Opcode, Type: "Z"})
		}
	case OpNot:
		return in.Args[0]
	case OpLogical:
		oper := OrOr
		if in.Oper == OrOr {
			oper = AndAnd
		}
		return m.Derive(cond, &Instruction{
			Op:   OpLogical,
			Oper: oper,
			Args: []ID{m.Negate(in.Args[0]), m.Negate(in.Args[1])},
			Type: "Z",
		})
	}
	return m.Derive(cond, &Instruction{Op: OpNot, Args: []ID{cond}, Type: "Z"})
}

// Logical joins two conditions with && or ||.
func (m *Method) Logical(oper Operator, a, b ID) ID {
	return m.Derive(b, &Instruction{Op: OpLogical, Oper: oper, Args: []ID{a, b}, Type: "Z"})
}

// IsNullTest reports whether a one-operand condition compares against null
// rather than zero.
func (in *Instruction) IsNullTest() bool {
	return in.Op == OpCond && len(in.Args) == 1 && (in.Opcode == bytecode.Ifnull || in.Opcode == bytecode.Ifnonnull)
}
