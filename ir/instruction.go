// Package ir holds the per-method instruction arena produced by simulating
// the operand stack over a method's bytecode.
package ir

import "sort"

// ID addresses an Instruction inside its Method's arena.
type ID int32

const NoID ID = -1

type Op uint8

const (
	OpConst Op = iota
	OpLoad
	OpStore
	OpInc
	OpArrayLoad
	OpArrayStore
	OpGetField
	OpPutField
	OpGetStatic
	OpPutStatic
	OpInvoke
	OpNew
	OpNewInit
	OpNewArray
	OpArrayLength
	OpCheckCast
	OpInstanceOf
	OpBinary
	OpNeg
	OpConvert
	OpCompare
	OpCond
	OpLogical
	OpNot
	OpIf
	OpGoto
	OpSwitch
	OpReturn
	OpThrow
	OpMonitorEnter
	OpMonitorExit
	OpPop
	OpJsr
	OpRet
	OpCatch
	OpStackStore
	OpStackLoad
	OpTernary
	OpArrayLiteral
	OpClassLiteral
	OpAnonNew
	OpAssign
	OpPostInc
)

var opNames = map[Op]string{
	OpConst:        "Const",
	OpLoad:         "Load",
	OpStore:        "Store",
	OpInc:          "Inc",
	OpArrayLoad:    "ArrayLoad",
	OpArrayStore:   "ArrayStore",
	OpGetField:     "GetField",
	OpPutField:     "PutField",
	OpGetStatic:    "GetStatic",
	OpPutStatic:    "PutStatic",
	OpInvoke:       "Invoke",
	OpNew:          "New",
	OpNewInit:      "NewInit",
	OpNewArray:     "NewArray",
	OpArrayLength:  "ArrayLength",
	OpCheckCast:    "CheckCast",
	OpInstanceOf:   "InstanceOf",
	OpBinary:       "Binary",
	OpNeg:          "Neg",
	OpConvert:      "Convert",
	OpCompare:      "Compare",
	OpCond:         "Cond",
	OpLogical:      "Logical",
	OpNot:          "Not",
	OpIf:           "If",
	OpGoto:         "Goto",
	OpSwitch:       "Switch",
	OpReturn:       "Return",
	OpThrow:        "Throw",
	OpMonitorEnter: "MonitorEnter",
	OpMonitorExit:  "MonitorExit",
	OpPop:          "Pop",
	OpJsr:          "Jsr",
	OpRet:          "Ret",
	OpCatch:        "Catch",
	OpStackStore:   "StackStore",
	OpStackLoad:    "StackLoad",
	OpTernary:      "Ternary",
	OpArrayLiteral: "ArrayLiteral",
	OpClassLiteral: "ClassLiteral",
	OpAnonNew:      "AnonNew",
	OpAssign:       "Assign",
	OpPostInc:      "PostInc",
}

func (op Op) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return "Unknown"
}

// Operator qualifies Binary, Cond and Logical instructions.
type Operator uint8

const (
	NoOperator Operator = iota
	Add
	Sub
	Mul
	Div
	Rem
	Shl
	Shr
	Ushr
	And
	Or
	Xor
	Eq
	Ne
	Lt
	Ge
	Gt
	Le
	AndAnd
	OrOr
)

var operatorSymbols = [...]string{
	NoOperator: "?", Add: "+", Sub: "-", Mul: "*", Div: "/", Rem: "%",
	Shl: "<<", Shr: ">>", Ushr: ">>>", And: "&", Or: "|", Xor: "^",
	Eq: "==", Ne: "!=", Lt: "<", Ge: ">=", Gt: ">", Le: "<=",
	AndAnd: "&&", OrOr: "||",
}

func (o Operator) String() string {
	if int(o) < len(operatorSymbols) {
		return operatorSymbols[o]
	}
	return "?"
}

// Instruction is one node of the expression DAG or one statement.
type Instruction struct {
	ID     ID
	Op     Op
	Offset int
	// End is the offset following the originating operation.
	End    int
	Opcode byte
	Line   int
	Args   []ID

	// Local is the variable slot of Load, Store, Inc and PostInc, and the
	// stack slot of StackStore and StackLoad.
	Local int
	// Value is the literal of a Const, the delta of Inc and PostInc, and
	// *AnonClass for AnonNew.
	Value any
	// Type is the descriptor of the produced value.
	Type string

	Owner string
	Name  string
	Desc  string
	Oper  Operator

	Target  int
	Keys    []int32
	Targets []int
	Default int
}

// AnonClass describes how an anonymous class instantiation splits its
// constructor arguments.
type AnonClass struct {
	OuterThis bool
	Captured  []string
}

// Handler is an exception table row with offsets and the catch type resolved.
type Handler struct {
	Start     int
	End       int
	Handler   int
	CatchType string
}

// Covers reports whether offset lies in the protected range.
func (h Handler) Covers(offset int) bool {
	return offset >= h.Start && offset < h.End
}

// LocalVar is a debug name for a variable slot over [Start, End).
type LocalVar struct {
	Slot       int
	Start, End int
	Name       string
	Descriptor string
}

// Method is the arena and statement list of one method body.
type Method struct {
	Insts    []*Instruction
	List     []ID
	Handlers []Handler
	CodeLen  int
	Static   bool

	// EntryDepth records the operand stack depth at block entries that
	// carry values across the boundary.
	EntryDepth map[int]int
	// Synthetic names the class members an idiom folded away.
	Synthetic []string
	Locals    []LocalVar
}

func (m *Method) At(id ID) *Instruction {
	return m.Insts[id]
}

// Add appends in to the arena and returns its ID.
func (m *Method) Add(in *Instruction) ID {
	in.ID = ID(len(m.Insts))
	m.Insts = append(m.Insts, in)
	return in.ID
}

// Derive adds a synthetic instruction positioned at the origin instruction.
func (m *Method) Derive(origin ID, in *Instruction) ID {
	o := m.At(origin)
	in.Offset, in.End, in.Line = o.Offset, o.End, o.Line
	return m.Add(in)
}

// Walk visits id and its operands depth-first, stopping descent where fn
// returns false.
func (m *Method) Walk(id ID, fn func(*Instruction) bool) {
	if id == NoID {
		return
	}
	in := m.At(id)
	if !fn(in) {
		return
	}
	for _, a := range in.Args {
		m.Walk(a, fn)
	}
}

// Contains reports whether any node under id satisfies pred.
func (m *Method) Contains(id ID, pred func(*Instruction) bool) bool {
	found := false
	m.Walk(id, func(in *Instruction) bool {
		if found {
			return false
		}
		if pred(in) {
			found = true
			return false
		}
		return true
	})
	return found
}

// Count returns how many times target is referenced under root, counting
// root itself.
func (m *Method) Count(root, target ID) int {
	n := 0
	m.Walk(root, func(in *Instruction) bool {
		if in.ID == target {
			n++
		}
		return true
	})
	return n
}

// ReadsSlot reports whether the tree under id loads stack slot s.
func (m *Method) ReadsSlot(id ID, s int) bool {
	return m.Contains(id, func(in *Instruction) bool {
		return in.Op == OpStackLoad && in.Local == s
	})
}

// Replace rewrites every reference to from under root into to, copying
// the nodes on the path so shared subtrees elsewhere stay intact.
func (m *Method) Replace(root, from, to ID) ID {
	if root == from {
		return to
	}
	in := m.At(root)
	var args []ID
	for i, a := range in.Args {
		na := m.Replace(a, from, to)
		if na != a && args == nil {
			args = append([]ID(nil), in.Args...)
		}
		if args != nil {
			args[i] = na
		}
	}
	if args == nil {
		return root
	}
	cp := *in
	cp.Args = args
	return m.Add(&cp)
}

// Equal compares two trees structurally, ignoring positions.
func (m *Method) Equal(a, b ID) bool {
	if a == b {
		return true
	}
	if a == NoID || b == NoID {
		return false
	}
	x, y := m.At(a), m.At(b)
	if x.Op != y.Op || x.Local != y.Local || x.Type != y.Type || x.Owner != y.Owner ||
		x.Name != y.Name || x.Desc != y.Desc || x.Oper != y.Oper || len(x.Args) != len(y.Args) {
		return false
	}
	if x.Op == OpConst || x.Op == OpInc || x.Op == OpPostInc {
		if x.Value != y.Value {
			return false
		}
	}
	if x.IsNullTest() != y.IsNullTest() {
		return false
	}
	for i := range x.Args {
		if !m.Equal(x.Args[i], y.Args[i]) {
			return false
		}
	}
	return true
}

// IsBranch reports whether the statement transfers control by offset.
func (in *Instruction) IsBranch() bool {
	switch in.Op {
	case OpIf, OpGoto, OpSwitch, OpJsr:
		return true
	}
	return false
}

// IsTerminal reports whether control never continues after the statement.
func (in *Instruction) IsTerminal() bool {
	switch in.Op {
	case OpGoto, OpSwitch, OpReturn, OpThrow, OpRet:
		return true
	}
	return false
}

// BranchTargets lists the offsets a branch statement refers to.
func (in *Instruction) BranchTargets() []int {
	switch in.Op {
	case OpIf, OpGoto, OpJsr:
		return []int{in.Target}
	case OpSwitch:
		return append([]int{in.Default}, in.Targets...)
	}
	return nil
}

// TargetRefs counts branch references to each offset from list.
func (m *Method) TargetRefs(list []ID) map[int]int {
	refs := make(map[int]int)
	for _, id := range list {
		for _, t := range m.At(id).BranchTargets() {
			refs[t]++
		}
	}
	return refs
}

// Boundaries returns the sorted offsets where control can enter other than
// by falling through: branch targets of list plus every exception table
// offset.
func (m *Method) Boundaries(list []ID) []int {
	set := make(map[int]bool)
	for t := range m.TargetRefs(list) {
		set[t] = true
	}
	for _, h := range m.Handlers {
		set[h.Start], set[h.End], set[h.Handler] = true, true, true
	}
	out := make([]int, 0, len(set))
	for off := range set {
		out = append(out, off)
	}
	sort.Ints(out)
	return out
}

// LocalName returns the debug name of slot at offset, or "".
func (m *Method) LocalName(slot, offset int) string {
	for _, v := range m.Locals {
		if v.Slot == slot && offset >= v.Start && offset <= v.End {
			return v.Name
		}
	}
	return ""
}

// StatementLine is the displayed line of a statement: the largest line
// among the nodes of its tree.
func (m *Method) StatementLine(id ID) int {
	line := 0
	m.Walk(id, func(in *Instruction) bool {
		if in.Line > line {
			line = in.Line
		}
		return true
	})
	return line
}
