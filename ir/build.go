package ir

import (
	"errors"
	"sort"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/tliron/commonlog"

	"github.com/dhamidi/jdec/bytecode"
	"github.com/dhamidi/jdec/classfile"
)

var log = commonlog.GetLogger("jdec.ir")

// Symbol is a Const value rendered verbatim, used for method handles,
// method types and dynamic constants.
type Symbol string

var slotTypes = [...]string{"I", "J", "F", "D", "Ljava/lang/Object;"}

var arrayElementTypes = [...]string{"I", "J", "F", "D", "Ljava/lang/Object;", "B", "C", "S"}

var newarrayTypes = map[int32]string{
	4: "Z", 5: "C", 6: "F", 7: "D", 8: "B", 9: "S", 10: "I", 11: "J",
}

var arithmetic = [...]Operator{Add, Sub, Mul, Div, Rem}

var numericTypes = [...]string{"I", "J", "F", "D"}

var conversions = map[byte]string{
	bytecode.I2l: "J", bytecode.I2f: "F", bytecode.I2d: "D",
	bytecode.L2i: "I", bytecode.L2f: "F", bytecode.L2d: "D",
	bytecode.F2i: "I", bytecode.F2l: "J", bytecode.F2d: "D",
	bytecode.D2i: "I", bytecode.D2l: "J", bytecode.D2f: "F",
	bytecode.I2b: "B", bytecode.I2c: "C", bytecode.I2s: "S",
}

var relations = [...]Operator{Eq, Ne, Lt, Ge, Gt, Le}

type builder struct {
	m        *Method
	cp       classfile.ConstantPool
	ops      []bytecode.Operation
	starts   *roaring.Bitmap
	leaders  *roaring.Bitmap
	handlers map[int]string
	entry    map[int][]string
	lines    []classfile.LineNumberEntry

	stack  []ID
	op     bytecode.Operation
	line   int
	closed bool
}

// Build simulates the operand stack over code and returns the method's
// statement list. Constant pool failures wrap classfile.ErrMalformedInput;
// bytecode the simulation cannot model yields an *UnsupportedError.
func Build(code *classfile.CodeAttribute, cp classfile.ConstantPool, static bool) (*Method, error) {
	ops, err := bytecode.DecodeAll(code.Code)
	if err != nil {
		var de *bytecode.DecodeError
		if errors.As(err, &de) {
			return nil, &UnsupportedError{Offset: de.Offset, Opcode: de.Opcode, Reason: de.Err.Error()}
		}
		return nil, err
	}

	b := &builder{
		m: &Method{
			CodeLen:    len(code.Code),
			Static:     static,
			EntryDepth: make(map[int]int),
		},
		cp:       cp,
		ops:      ops,
		starts:   roaring.New(),
		leaders:  roaring.New(),
		handlers: make(map[int]string),
		entry:    make(map[int][]string),
		lines:    append([]classfile.LineNumberEntry(nil), code.LineNumbers()...),
		closed:   true,
	}
	sort.SliceStable(b.lines, func(i, j int) bool { return b.lines[i].StartPC < b.lines[j].StartPC })
	for _, v := range code.LocalVariables() {
		b.m.Locals = append(b.m.Locals, LocalVar{
			Slot:       int(v.Index),
			Start:      int(v.StartPC),
			End:        int(v.StartPC) + int(v.Length),
			Name:       v.Name,
			Descriptor: v.Descriptor,
		})
	}

	if err := b.scan(code.ExceptionTable); err != nil {
		return nil, err
	}
	for i := range ops {
		if err := b.step(ops[i]); err != nil {
			return nil, err
		}
	}
	if !b.closed {
		return nil, unsupported(b.op, "execution falls off the end of the code")
	}
	log.Debugf("built %d statements from %d operations", len(b.m.List), len(ops))
	return b.m, nil
}

func (b *builder) scan(table []classfile.ExceptionTableEntry) error {
	for _, op := range b.ops {
		b.starts.Add(uint32(op.Offset))
	}
	b.leaders.Add(0)
	for _, op := range b.ops {
		for _, t := range op.Branches() {
			if !b.starts.Contains(uint32(t)) {
				return unsupported(op, "branch target %d is not an instruction boundary", t)
			}
			b.leaders.Add(uint32(t))
		}
		if len(op.Branches()) > 0 || bytecode.EndsBlock(op.Opcode) {
			if op.Next() < b.m.CodeLen {
				b.leaders.Add(uint32(op.Next()))
			}
		}
	}

	for _, e := range table {
		h := Handler{Start: int(e.StartPC), End: int(e.EndPC), Handler: int(e.HandlerPC)}
		if !b.starts.Contains(uint32(h.Start)) || !b.starts.Contains(uint32(h.Handler)) ||
			(h.End != b.m.CodeLen && !b.starts.Contains(uint32(h.End))) {
			return &UnsupportedError{Offset: h.Handler, Reason: "exception range does not align with instructions"}
		}
		if h.Handler == 0 {
			return &UnsupportedError{Offset: 0, Reason: "exception handler at method entry"}
		}
		if e.CatchType != 0 {
			name, err := b.cp.Class(e.CatchType)
			if err != nil {
				return err
			}
			h.CatchType = name
		}
		b.m.Handlers = append(b.m.Handlers, h)
		if prev, ok := b.handlers[h.Handler]; ok && prev != h.CatchType {
			b.handlers[h.Handler] = "java/lang/Throwable"
		} else {
			b.handlers[h.Handler] = h.CatchType
		}
		b.leaders.Add(uint32(h.Start))
		b.leaders.Add(uint32(h.Handler))
		if h.End < b.m.CodeLen {
			b.leaders.Add(uint32(h.End))
		}
	}
	return nil
}

func (b *builder) lineAt(pc int) int {
	i := sort.Search(len(b.lines), func(i int) bool { return int(b.lines[i].StartPC) > pc })
	if i == 0 {
		return 0
	}
	return int(b.lines[i-1].LineNumber)
}

func (b *builder) step(op bytecode.Operation) error {
	if b.leaders.Contains(uint32(op.Offset)) {
		if !b.closed {
			if err := b.endBlock([]int{op.Offset}, nil); err != nil {
				return err
			}
		}
		b.op, b.line = op, b.lineAt(op.Offset)
		if err := b.enter(op.Offset); err != nil {
			return err
		}
	} else {
		b.op, b.line = op, b.lineAt(op.Offset)
	}
	b.closed = false
	return b.exec(op)
}

// enter starts a block at pc with the stack shape recorded by the branches
// and fallthroughs seen so far. Unrecorded entries start empty.
func (b *builder) enter(pc int) error {
	types, known := b.entry[pc]
	b.stack = b.stack[:0]
	if catchType, ok := b.handlers[pc]; ok {
		if known && len(types) != 1 {
			return unsupported(b.op, "handler entered with stack depth %d", len(types))
		}
		t := "Ljava/lang/Throwable;"
		if catchType != "" {
			t = "L" + catchType + ";"
		}
		b.entry[pc] = []string{t}
		b.push(&Instruction{Op: OpCatch, Type: t, Owner: catchType})
		return nil
	}
	if !known {
		b.entry[pc] = nil
		return nil
	}
	for s, t := range types {
		b.push(&Instruction{Op: OpStackLoad, Local: s, Type: t})
	}
	return nil
}

func category(t string) int {
	if t == "J" || t == "D" {
		return 2
	}
	return 1
}

func (b *builder) record(pc int, types []string) error {
	old, ok := b.entry[pc]
	if !ok {
		b.entry[pc] = types
		if len(types) > 0 {
			b.m.EntryDepth[pc] = len(types)
		}
		return nil
	}
	if len(old) != len(types) {
		return unsupported(b.op, "stack depth %d reaching %d, previously %d", len(types), pc, len(old))
	}
	for i := range old {
		if category(old[i]) != category(types[i]) {
			return unsupported(b.op, "stack shape mismatch reaching %d", pc)
		}
	}
	return nil
}

// endBlock spills the whole stack into stack slots and records its shape at
// every successor. extra are the operands of the terminating statement,
// which are evaluated after the spill; spilled nodes in them are rewritten
// in place to loads.
func (b *builder) endBlock(succs []int, extra []ID) error {
	types := make([]string, len(b.stack))
	positions := make([]int, len(b.stack))
	for i, v := range b.stack {
		types[i] = b.m.At(v).Type
		positions[i] = i
	}
	subst, err := b.spill(positions, extra)
	if err != nil {
		return err
	}
	for from, to := range subst {
		for i := range extra {
			extra[i] = b.m.Replace(extra[i], from, to)
		}
	}
	b.stack = b.stack[:0]
	for _, s := range succs {
		if err := b.record(s, types); err != nil {
			return err
		}
	}
	b.closed = true
	return nil
}

type spillGroup struct {
	value   ID
	slots   []int
	primary int
	store   bool
	writes  []int
	reads   []int
}

// spill stores the values at positions into their stack slots, ordering the
// stores so no slot is overwritten before every pending read of its old
// value. Positions holding one shared node are stored once and copied. The
// returned map sends each spilled node to a load of its primary slot.
func (b *builder) spill(positions []int, extra []ID) (map[ID]ID, error) {
	var groups []*spillGroup
	byValue := make(map[ID]*spillGroup)
	for _, p := range positions {
		v := b.stack[p]
		g := byValue[v]
		if g == nil {
			g = &spillGroup{value: v, primary: -1}
			byValue[v] = g
			groups = append(groups, g)
		}
		g.slots = append(g.slots, p)
	}

	written := make(map[int]bool)
	for _, g := range groups {
		in := b.m.At(g.value)
		for _, s := range g.slots {
			if in.Op == OpStackLoad && in.Local == s {
				g.primary = s
			}
		}
		if g.primary < 0 {
			g.primary, g.store = g.slots[0], true
			g.writes = append(g.writes, g.primary)
		}
		for _, s := range g.slots {
			if s != g.primary {
				g.writes = append(g.writes, s)
			}
		}
		for _, s := range g.writes {
			written[s] = true
		}
		b.m.Walk(g.value, func(x *Instruction) bool {
			if x.Op == OpStackLoad {
				g.reads = append(g.reads, x.Local)
			}
			return true
		})
	}

	spilled := make(map[int]bool, len(positions))
	for _, p := range positions {
		spilled[p] = true
	}
	for p, v := range b.stack {
		if spilled[p] {
			continue
		}
		for s := range written {
			if b.m.ReadsSlot(v, s) {
				return nil, unsupported(b.op, "stack slot %d overwritten while still referenced", s)
			}
		}
	}
	for _, e := range extra {
		for s := range written {
			if b.m.ReadsSlot(e, s) {
				return nil, unsupported(b.op, "stack slot %d overwritten before its use", s)
			}
		}
	}

	subst := make(map[ID]ID, len(groups))
	done := make([]bool, len(groups))
	for n := 0; n < len(groups); n++ {
		next := -1
		for i, g := range groups {
			if done[i] {
				continue
			}
			blocked := false
			for j, h := range groups {
				if j == i || done[j] {
					continue
				}
				for _, r := range h.reads {
					for _, w := range g.writes {
						if r == w {
							blocked = true
						}
					}
				}
			}
			if !blocked {
				next = i
				break
			}
		}
		if next < 0 {
			return nil, unsupported(b.op, "cyclic stack shuffle across a block boundary")
		}
		done[next] = true
		g := groups[next]
		t := b.m.At(g.value).Type
		if g.store {
			b.append(&Instruction{Op: OpStackStore, Local: g.primary, Args: []ID{g.value}, Type: t})
		}
		for _, s := range g.writes {
			if s == g.primary {
				continue
			}
			load := b.value(&Instruction{Op: OpStackLoad, Local: g.primary, Type: t})
			b.append(&Instruction{Op: OpStackStore, Local: s, Args: []ID{load}, Type: t})
		}
		subst[g.value] = b.value(&Instruction{Op: OpStackLoad, Local: g.primary, Type: t})
		for _, s := range g.slots {
			b.stack[s] = b.value(&Instruction{Op: OpStackLoad, Local: s, Type: t})
		}
	}
	return subst, nil
}

// value adds an expression node at the current operation without pushing it.
func (b *builder) value(in *Instruction) ID {
	in.Offset, in.End, in.Opcode, in.Line = b.op.Offset, b.op.Next(), b.op.Opcode, b.line
	return b.m.Add(in)
}

func (b *builder) push(in *Instruction) ID {
	id := b.value(in)
	b.stack = append(b.stack, id)
	return id
}

// append adds a statement without hazard checks.
func (b *builder) append(in *Instruction) ID {
	id := b.value(in)
	b.m.List = append(b.m.List, id)
	return id
}

// emit adds a statement after spilling every pending stack value whose
// evaluation would be reordered across the statement's side effects.
func (b *builder) emit(in *Instruction) error {
	eff := b.access(in)
	for _, a := range in.Args {
		eff.merge(b.accessTree(a))
	}
	var positions []int
	for p, v := range b.stack {
		if conflicts(b.accessTree(v), eff) {
			positions = append(positions, p)
		}
	}
	if len(positions) > 0 {
		subst, err := b.spill(positions, in.Args)
		if err != nil {
			return err
		}
		for from, to := range subst {
			for i := range in.Args {
				in.Args[i] = b.m.Replace(in.Args[i], from, to)
			}
		}
	}
	b.append(in)
	return nil
}

type access struct {
	readLocals  map[int]bool
	writeLocals map[int]bool
	readFields  map[string]bool
	writeFields map[string]bool
	readArrays  bool
	writeArrays bool
	calls       bool
}

func (a *access) merge(o access) {
	for k := range o.readLocals {
		a.addLocal(&a.readLocals, k)
	}
	for k := range o.writeLocals {
		a.addLocal(&a.writeLocals, k)
	}
	for k := range o.readFields {
		a.addField(&a.readFields, k)
	}
	for k := range o.writeFields {
		a.addField(&a.writeFields, k)
	}
	a.readArrays = a.readArrays || o.readArrays
	a.writeArrays = a.writeArrays || o.writeArrays
	a.calls = a.calls || o.calls
}

func (a *access) addLocal(m *map[int]bool, k int) {
	if *m == nil {
		*m = make(map[int]bool)
	}
	(*m)[k] = true
}

func (a *access) addField(m *map[string]bool, k string) {
	if *m == nil {
		*m = make(map[string]bool)
	}
	(*m)[k] = true
}

func (a access) readsHeap() bool  { return len(a.readFields) > 0 || a.readArrays }
func (a access) writesHeap() bool { return len(a.writeFields) > 0 || a.writeArrays }

func fieldKey(in *Instruction) string {
	if in.Op == OpGetStatic || in.Op == OpPutStatic {
		return "static " + in.Owner + "." + in.Name
	}
	return in.Name + ":" + in.Desc
}

// access describes the node itself, without its operands.
func (b *builder) access(in *Instruction) access {
	var a access
	switch in.Op {
	case OpLoad:
		a.addLocal(&a.readLocals, in.Local)
	case OpStore, OpInc:
		a.addLocal(&a.writeLocals, in.Local)
	case OpGetField, OpGetStatic:
		a.addField(&a.readFields, fieldKey(in))
	case OpPutField, OpPutStatic:
		a.addField(&a.writeFields, fieldKey(in))
	case OpArrayLoad:
		a.readArrays = true
	case OpArrayStore:
		a.writeArrays = true
	case OpInvoke, OpNewInit, OpMonitorEnter, OpMonitorExit:
		a.calls = true
	}
	return a
}

func (b *builder) accessTree(id ID) access {
	var a access
	b.m.Walk(id, func(in *Instruction) bool {
		a.merge(b.access(in))
		return true
	})
	return a
}

// conflicts reports whether a pending value e must be evaluated before the
// statement s to keep its result.
func conflicts(e, s access) bool {
	for k := range s.writeLocals {
		if e.readLocals[k] {
			return true
		}
	}
	for k := range s.writeFields {
		if e.readFields[k] {
			return true
		}
	}
	if s.writeArrays && e.readArrays {
		return true
	}
	if e.calls && (s.calls || s.readsHeap() || s.writesHeap()) {
		return true
	}
	return s.calls && e.readsHeap()
}

func (b *builder) pop(n int) ([]ID, error) {
	if len(b.stack) < n {
		return nil, unsupported(b.op, "operand stack underflow")
	}
	out := append([]ID(nil), b.stack[len(b.stack)-n:]...)
	b.stack = b.stack[:len(b.stack)-n]
	return out, nil
}

func (b *builder) pop1() (ID, error) {
	args, err := b.pop(1)
	if err != nil {
		return NoID, err
	}
	return args[0], nil
}

func (b *builder) cat(id ID) int {
	return category(b.m.At(id).Type)
}

func (b *builder) pushConst(v any, t string) {
	b.push(&Instruction{Op: OpConst, Value: v, Type: t})
}

func (b *builder) exec(op bytecode.Operation) error {
	c := op.Opcode
	switch {
	case c == bytecode.Nop:
	case c == bytecode.AconstNull:
		b.pushConst(nil, "null")
	case c >= bytecode.IconstM1 && c <= bytecode.Iconst5:
		b.pushConst(int32(int(c)-int(bytecode.Iconst0)), "I")
	case c == bytecode.Lconst0 || c == bytecode.Lconst1:
		b.pushConst(int64(c-bytecode.Lconst0), "J")
	case c >= bytecode.Fconst0 && c <= bytecode.Fconst2:
		b.pushConst(float32(c-bytecode.Fconst0), "F")
	case c == bytecode.Dconst0 || c == bytecode.Dconst1:
		b.pushConst(float64(c-bytecode.Dconst0), "D")
	case c == bytecode.Bipush || c == bytecode.Sipush:
		b.pushConst(op.Value, "I")
	case c == bytecode.Ldc || c == bytecode.LdcW || c == bytecode.Ldc2W:
		return b.ldc(op)

	case c >= bytecode.Iload && c <= bytecode.Aload:
		b.push(&Instruction{Op: OpLoad, Local: op.Local, Type: slotTypes[c-bytecode.Iload]})
	case c >= bytecode.Iload0 && c <= bytecode.Aload3:
		b.push(&Instruction{Op: OpLoad, Local: op.Local, Type: slotTypes[(c-bytecode.Iload0)/4]})
	case c >= bytecode.Iaload && c <= bytecode.Saload:
		args, err := b.pop(2)
		if err != nil {
			return err
		}
		t := arrayElementTypes[c-bytecode.Iaload]
		if at := b.m.At(args[0]).Type; strings.HasPrefix(at, "[") && (c == bytecode.Aaload || c == bytecode.Baload) {
			t = at[1:]
		}
		b.push(&Instruction{Op: OpArrayLoad, Args: args, Type: t})

	case c >= bytecode.Istore && c <= bytecode.Astore:
		return b.store(op.Local)
	case c >= bytecode.Istore0 && c <= bytecode.Astore3:
		return b.store(op.Local)
	case c >= bytecode.Iastore && c <= bytecode.Sastore:
		args, err := b.pop(3)
		if err != nil {
			return err
		}
		return b.emit(&Instruction{Op: OpArrayStore, Args: args})

	case c >= bytecode.Pop && c <= bytecode.Swap:
		return b.stackOp(c)

	case c >= bytecode.Iadd && c <= bytecode.Drem:
		return b.binary(arithmetic[(c-bytecode.Iadd)/4], numericTypes[(c-bytecode.Iadd)%4])
	case c >= bytecode.Ineg && c <= bytecode.Dneg:
		v, err := b.pop1()
		if err != nil {
			return err
		}
		b.push(&Instruction{Op: OpNeg, Args: []ID{v}, Type: numericTypes[c-bytecode.Ineg]})
	case c >= bytecode.Ishl && c <= bytecode.Lushr:
		return b.binary([...]Operator{Shl, Shr, Ushr}[(c-bytecode.Ishl)/2], numericTypes[(c-bytecode.Ishl)%2])
	case c >= bytecode.Iand && c <= bytecode.Lxor:
		return b.binary([...]Operator{And, Or, Xor}[(c-bytecode.Iand)/2], numericTypes[(c-bytecode.Iand)%2])
	case c == bytecode.Iinc:
		return b.emit(&Instruction{Op: OpInc, Local: op.Local, Value: op.Value})
	case c >= bytecode.I2l && c <= bytecode.I2s:
		v, err := b.pop1()
		if err != nil {
			return err
		}
		b.push(&Instruction{Op: OpConvert, Args: []ID{v}, Type: conversions[c]})
	case c >= bytecode.Lcmp && c <= bytecode.Dcmpg:
		args, err := b.pop(2)
		if err != nil {
			return err
		}
		b.push(&Instruction{Op: OpCompare, Args: args, Type: "I"})

	case c >= bytecode.Ifeq && c <= bytecode.IfAcmpne, c == bytecode.Ifnull || c == bytecode.Ifnonnull:
		return b.branch(op)
	case c == bytecode.Goto || c == bytecode.GotoW:
		goTo := &Instruction{Op: OpGoto, Target: op.Target}
		if err := b.endBlock([]int{op.Target}, nil); err != nil {
			return err
		}
		b.append(goTo)
	case c == bytecode.Jsr || c == bytecode.JsrW:
		types := make([]string, 0, len(b.stack)+1)
		for _, v := range b.stack {
			types = append(types, b.m.At(v).Type)
		}
		if err := b.endBlock([]int{op.Next()}, nil); err != nil {
			return err
		}
		if err := b.record(op.Target, append(types, "R")); err != nil {
			return err
		}
		b.append(&Instruction{Op: OpJsr, Target: op.Target})
	case c == bytecode.Ret:
		if len(b.stack) > 0 {
			return unsupported(op, "ret with a non-empty stack")
		}
		b.append(&Instruction{Op: OpRet, Local: op.Local})
		b.closed = true
	case c == bytecode.Tableswitch || c == bytecode.Lookupswitch:
		key, err := b.pop1()
		if err != nil {
			return err
		}
		sw := &Instruction{Op: OpSwitch, Args: []ID{key}, Keys: op.Keys, Targets: op.Targets, Default: op.Default}
		if err := b.endBlock(op.Branches(), sw.Args); err != nil {
			return err
		}
		b.append(sw)
	case c >= bytecode.Ireturn && c <= bytecode.Areturn:
		v, err := b.pop1()
		if err != nil {
			return err
		}
		return b.terminate(&Instruction{Op: OpReturn, Args: []ID{v}})
	case c == bytecode.Return:
		return b.terminate(&Instruction{Op: OpReturn})
	case c == bytecode.Athrow:
		v, err := b.pop1()
		if err != nil {
			return err
		}
		return b.terminate(&Instruction{Op: OpThrow, Args: []ID{v}})

	case c >= bytecode.Getstatic && c <= bytecode.Putfield:
		return b.field(op)
	case c >= bytecode.Invokevirtual && c <= bytecode.Invokeinterface:
		return b.invoke(op)
	case c == bytecode.Invokedynamic:
		return b.invokeDynamic(op)

	case c == bytecode.New:
		name, err := b.cp.Class(op.Index)
		if err != nil {
			return err
		}
		b.push(&Instruction{Op: OpNew, Owner: name, Type: "L" + name + ";"})
	case c == bytecode.Newarray:
		n, err := b.pop1()
		if err != nil {
			return err
		}
		t, ok := newarrayTypes[op.Value]
		if !ok {
			return unsupported(op, "newarray type code %d", op.Value)
		}
		b.push(&Instruction{Op: OpNewArray, Args: []ID{n}, Type: "[" + t})
	case c == bytecode.Anewarray:
		n, err := b.pop1()
		if err != nil {
			return err
		}
		name, err := b.cp.Class(op.Index)
		if err != nil {
			return err
		}
		b.push(&Instruction{Op: OpNewArray, Args: []ID{n}, Type: "[" + descriptorOf(name)})
	case c == bytecode.Multianewarray:
		dims, err := b.pop(int(op.Value))
		if err != nil {
			return err
		}
		name, err := b.cp.Class(op.Index)
		if err != nil {
			return err
		}
		b.push(&Instruction{Op: OpNewArray, Args: dims, Type: name})
	case c == bytecode.Arraylength:
		v, err := b.pop1()
		if err != nil {
			return err
		}
		b.push(&Instruction{Op: OpArrayLength, Args: []ID{v}, Type: "I"})
	case c == bytecode.Checkcast || c == bytecode.Instanceof:
		v, err := b.pop1()
		if err != nil {
			return err
		}
		name, err := b.cp.Class(op.Index)
		if err != nil {
			return err
		}
		if c == bytecode.Checkcast {
			b.push(&Instruction{Op: OpCheckCast, Args: []ID{v}, Owner: name, Type: descriptorOf(name)})
		} else {
			b.push(&Instruction{Op: OpInstanceOf, Args: []ID{v}, Owner: name, Type: "Z"})
		}
	case c == bytecode.Monitorenter || c == bytecode.Monitorexit:
		v, err := b.pop1()
		if err != nil {
			return err
		}
		kind := OpMonitorEnter
		if c == bytecode.Monitorexit {
			kind = OpMonitorExit
		}
		return b.emit(&Instruction{Op: kind, Args: []ID{v}})
	default:
		return unsupported(op, "opcode not modelled")
	}
	return nil
}

// descriptorOf turns a Class constant name into a field descriptor. Array
// classes are already named by descriptor.
func descriptorOf(name string) string {
	if strings.HasPrefix(name, "[") {
		return name
	}
	return "L" + name + ";"
}

func (b *builder) ldc(op bytecode.Operation) error {
	entry, err := b.cp.Loadable(op.Index)
	if err != nil {
		return err
	}
	switch e := entry.(type) {
	case *classfile.ConstantIntegerInfo:
		b.pushConst(e.Value, "I")
	case *classfile.ConstantFloatInfo:
		b.pushConst(e.Value, "F")
	case *classfile.ConstantLongInfo:
		b.pushConst(e.Value, "J")
	case *classfile.ConstantDoubleInfo:
		b.pushConst(e.Value, "D")
	case *classfile.ConstantStringInfo:
		s, err := b.cp.Utf8(e.StringIndex)
		if err != nil {
			return err
		}
		b.pushConst(s, "Ljava/lang/String;")
	case *classfile.ConstantClassInfo:
		name, err := b.cp.Class(op.Index)
		if err != nil {
			return err
		}
		b.push(&Instruction{Op: OpClassLiteral, Owner: name, Type: "Ljava/lang/Class;"})
	case *classfile.ConstantMethodTypeInfo:
		desc, err := b.cp.Utf8(e.DescriptorIndex)
		if err != nil {
			return err
		}
		b.pushConst(Symbol("MethodType"+desc), "Ljava/lang/invoke/MethodType;")
	case *classfile.ConstantMethodHandleInfo:
		ref, err := b.cp.Method(e.ReferenceIndex)
		if err != nil {
			if ref, err = b.cp.Field(e.ReferenceIndex); err != nil {
				return err
			}
		}
		b.pushConst(Symbol(ref.Owner+"::"+ref.Name), "Ljava/lang/invoke/MethodHandle;")
	case *classfile.ConstantDynamicInfo:
		name, desc, err := b.cp.NameAndType(e.NameAndTypeIndex)
		if err != nil {
			return err
		}
		b.pushConst(Symbol("dynamic "+name), desc)
	default:
		return unsupported(op, "ldc of %T", entry)
	}
	return nil
}

func (b *builder) store(local int) error {
	v, err := b.pop1()
	if err != nil {
		return err
	}
	return b.emit(&Instruction{Op: OpStore, Local: local, Args: []ID{v}, Type: b.m.At(v).Type})
}

func (b *builder) binary(oper Operator, t string) error {
	args, err := b.pop(2)
	if err != nil {
		return err
	}
	b.push(&Instruction{Op: OpBinary, Oper: oper, Args: args, Type: t})
	return nil
}

func (b *builder) terminate(in *Instruction) error {
	if err := b.emit(in); err != nil {
		return err
	}
	b.stack = b.stack[:0]
	b.closed = true
	return nil
}

func (b *builder) branch(op bytecode.Operation) error {
	c := op.Opcode
	var cond *Instruction
	switch {
	case c >= bytecode.Ifeq && c <= bytecode.Ifle:
		v, err := b.pop1()
		if err != nil {
			return err
		}
		oper := relations[c-bytecode.Ifeq]
		if cmp := b.m.At(v); cmp.Op == OpCompare {
			cond = &Instruction{Op: OpCond, Oper: oper, Args: cmp.Args, Type: "Z"}
		} else {
			cond = &Instruction{Op: OpCond, Oper: oper, Args: []ID{v}, Type: "Z"}
		}
	case c >= bytecode.IfIcmpeq && c <= bytecode.IfIcmple:
		args, err := b.pop(2)
		if err != nil {
			return err
		}
		cond = &Instruction{Op: OpCond, Oper: relations[c-bytecode.IfIcmpeq], Args: args, Type: "Z"}
	case c == bytecode.IfAcmpeq || c == bytecode.IfAcmpne:
		args, err := b.pop(2)
		if err != nil {
			return err
		}
		cond = &Instruction{Op: OpCond, Oper: relations[c-bytecode.IfAcmpeq], Args: args, Type: "Z"}
	default:
		v, err := b.pop1()
		if err != nil {
			return err
		}
		oper := Eq
		if c == bytecode.Ifnonnull {
			oper = Ne
		}
		cond = &Instruction{Op: OpCond, Oper: oper, Args: []ID{v}, Type: "Z"}
	}
	args := []ID{b.value(cond)}
	if err := b.endBlock([]int{op.Target, op.Next()}, args); err != nil {
		return err
	}
	b.append(&Instruction{Op: OpIf, Args: args, Target: op.Target})
	return nil
}

func (b *builder) field(op bytecode.Operation) error {
	ref, err := b.cp.Field(op.Index)
	if err != nil {
		return err
	}
	in := &Instruction{Owner: ref.Owner, Name: ref.Name, Desc: ref.Descriptor}
	switch op.Opcode {
	case bytecode.Getstatic:
		in.Op, in.Type = OpGetStatic, ref.Descriptor
		b.push(in)
		return nil
	case bytecode.Getfield:
		obj, err := b.pop1()
		if err != nil {
			return err
		}
		in.Op, in.Type, in.Args = OpGetField, ref.Descriptor, []ID{obj}
		b.push(in)
		return nil
	case bytecode.Putstatic:
		v, err := b.pop1()
		if err != nil {
			return err
		}
		in.Op, in.Args = OpPutStatic, []ID{v}
	default:
		args, err := b.pop(2)
		if err != nil {
			return err
		}
		in.Op, in.Args = OpPutField, args
	}
	return b.emit(in)
}

func (b *builder) invoke(op bytecode.Operation) error {
	ref, err := b.cp.Method(op.Index)
	if err != nil {
		return err
	}
	md := classfile.ParseMethodDescriptor(ref.Descriptor)
	if md == nil {
		return unsupported(op, "bad method descriptor %q", ref.Descriptor)
	}
	n := len(md.Parameters)
	if op.Opcode != bytecode.Invokestatic {
		n++
	}
	args, err := b.pop(n)
	if err != nil {
		return err
	}
	ret := ""
	if md.ReturnType != nil {
		ret = md.ReturnType.Raw
	}

	if op.Opcode == bytecode.Invokespecial && ref.Name == "<init>" {
		if recv := b.m.At(args[0]); recv.Op == OpNew {
			return b.construct(recv, args[1:], ref)
		}
	}

	in := &Instruction{Op: OpInvoke, Args: args, Owner: ref.Owner, Name: ref.Name, Desc: ref.Descriptor, Type: ret}
	if ret == "" {
		return b.emit(in)
	}
	b.push(in)
	return nil
}

// construct collapses new/dup/invokespecial into one NewInit. The
// uninitialized reference may have been duplicated any number of times.
func (b *builder) construct(recv *Instruction, args []ID, ref classfile.MemberRef) error {
	in := &Instruction{Op: OpNewInit, Args: args, Owner: recv.Owner, Desc: ref.Descriptor, Type: recv.Type}
	uses := 0
	for _, v := range b.stack {
		if v == recv.ID {
			uses++
		}
	}
	if uses == 0 {
		return b.emit(in)
	}
	id := b.value(in)
	for i, v := range b.stack {
		if v == recv.ID {
			b.stack[i] = id
		}
	}
	return nil
}

func (b *builder) invokeDynamic(op bytecode.Operation) error {
	name, desc, err := b.cp.InvokeDynamic(op.Index)
	if err != nil {
		return err
	}
	md := classfile.ParseMethodDescriptor(desc)
	if md == nil {
		return unsupported(op, "bad call site descriptor %q", desc)
	}
	args, err := b.pop(len(md.Parameters))
	if err != nil {
		return err
	}
	in := &Instruction{Op: OpInvoke, Args: args, Name: name, Desc: desc}
	if md.ReturnType == nil {
		return b.emit(in)
	}
	in.Type = md.ReturnType.Raw
	b.push(in)
	return nil
}

// stackOp handles the pop, dup and swap family, which act on category-1
// and category-2 values differently.
func (b *builder) stackOp(c byte) error {
	s := b.stack
	n := len(s)
	need := func(k int) error {
		if n < k {
			return unsupported(b.op, "operand stack underflow")
		}
		return nil
	}
	cat := func(i int) int { return b.cat(s[n-i]) }

	switch c {
	case bytecode.Pop:
		v, err := b.pop1()
		if err != nil {
			return err
		}
		return b.discard(v)
	case bytecode.Pop2:
		if err := need(1); err != nil {
			return err
		}
		if cat(1) == 2 {
			v, _ := b.pop1()
			return b.discard(v)
		}
		args, err := b.pop(2)
		if err != nil {
			return err
		}
		if err := b.discard(args[0]); err != nil {
			return err
		}
		return b.discard(args[1])
	case bytecode.Dup:
		if err := need(1); err != nil {
			return err
		}
		b.stack = append(b.stack, s[n-1])
	case bytecode.DupX1:
		if err := need(2); err != nil {
			return err
		}
		b.shuffle(2, 1, 2, 1)
	case bytecode.DupX2:
		if err := need(2); err != nil {
			return err
		}
		if cat(2) == 2 {
			b.shuffle(2, 1, 2, 1)
		} else {
			if err := need(3); err != nil {
				return err
			}
			b.shuffle(3, 1, 3, 2, 1)
		}
	case bytecode.Dup2:
		if err := need(1); err != nil {
			return err
		}
		if cat(1) == 2 {
			b.stack = append(b.stack, s[n-1])
		} else {
			if err := need(2); err != nil {
				return err
			}
			b.shuffle(2, 2, 1, 2, 1)
		}
	case bytecode.Dup2X1:
		if err := need(2); err != nil {
			return err
		}
		if cat(1) == 2 {
			b.shuffle(2, 1, 2, 1)
		} else {
			if err := need(3); err != nil {
				return err
			}
			b.shuffle(3, 2, 1, 3, 2, 1)
		}
	case bytecode.Dup2X2:
		if err := need(2); err != nil {
			return err
		}
		switch {
		case cat(1) == 2 && cat(2) == 2:
			b.shuffle(2, 1, 2, 1)
		case cat(1) == 2:
			if err := need(3); err != nil {
				return err
			}
			b.shuffle(3, 1, 3, 2, 1)
		case n >= 3 && cat(3) == 2:
			b.shuffle(3, 2, 1, 3, 2, 1)
		default:
			if err := need(4); err != nil {
				return err
			}
			b.shuffle(4, 2, 1, 4, 3, 2, 1)
		}
	case bytecode.Swap:
		if err := need(2); err != nil {
			return err
		}
		b.shuffle(2, 1, 2)
	}
	return nil
}

// shuffle replaces the top depth entries with the entries named by from,
// counted from the top (1 is the top of stack), listed bottom to top.
func (b *builder) shuffle(depth int, from ...int) {
	n := len(b.stack)
	top := append([]ID(nil), b.stack[n-depth:]...)
	b.stack = b.stack[:n-depth]
	for _, f := range from {
		b.stack = append(b.stack, top[depth-f])
	}
}

// discard emits an expression statement for a popped value. Pure values
// still become statements so no instruction disappears.
func (b *builder) discard(v ID) error {
	return b.emit(&Instruction{Op: OpPop, Args: []ID{v}})
}
