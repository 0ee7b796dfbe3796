package assemble

import (
	"strings"
	"testing"

	"github.com/dhamidi/jdec/ast"
	"github.com/dhamidi/jdec/bytecode"
	"github.com/dhamidi/jdec/cfg"
	"github.com/dhamidi/jdec/classfile"
	"github.com/dhamidi/jdec/classfile/classtest"
	"github.com/dhamidi/jdec/ir"
)

func lines(s ...string) string {
	return strings.Join(s, "\n") + "\n"
}

// arena is a small helper for building instructions by hand.
type arena struct{ m *ir.Method }

func newArena() *arena { return &arena{m: &ir.Method{Static: true}} }

func (a *arena) add(in ir.Instruction) ir.ID { return a.m.Add(&in) }

func (a *arena) load(slot int) ir.ID {
	return a.add(ir.Instruction{Op: ir.OpLoad, Local: slot, Type: "Ljava/lang/Object;"})
}

func (a *arena) call(name string, args ...ir.ID) ir.ID {
	return a.add(ir.Instruction{Op: ir.OpInvoke, Opcode: bytecode.Invokestatic, Owner: "A", Name: name, Desc: "()V", Args: args})
}

func (a *arena) method(owner, name string, recv ir.ID) ir.ID {
	return a.add(ir.Instruction{Op: ir.OpInvoke, Opcode: bytecode.Invokeinterface, Owner: owner, Name: name, Args: []ir.ID{recv}})
}

func (a *arena) store(slot int, v ir.ID) ir.ID {
	return a.add(ir.Instruction{Op: ir.OpStore, Local: slot, Args: []ir.ID{v}})
}

func (a *arena) ret() ir.ID { return a.add(ir.Instruction{Op: ir.OpReturn}) }

func block(children ...*ast.Node) *ast.Node { return ast.New(ast.KindBlock, children...) }

func stmts(ids ...ir.ID) []*ast.Node {
	out := make([]*ast.Node, len(ids))
	for i, id := range ids {
		out[i] = ast.Stmt(id)
	}
	return out
}

func catchAny(store ir.ID, body ...*ast.Node) *ast.Node {
	c := ast.New(ast.KindCatch, block(body...))
	c.Types = []string{""}
	c.Inst = store
	return c
}

func TestSynchronized(t *testing.T) {
	tests := []struct {
		name  string
		enter func(a *arena) []ir.ID
	}{
		{
			name: "store then enter",
			enter: func(a *arena) []ir.ID {
				st := a.store(1, a.load(0))
				enter := a.add(ir.Instruction{Op: ir.OpMonitorEnter, Args: []ir.ID{a.load(1)}})
				return []ir.ID{st, enter}
			},
		},
		{
			name: "nested assignment",
			enter: func(a *arena) []ir.ID {
				st := a.store(1, a.load(0))
				asg := a.add(ir.Instruction{Op: ir.OpAssign, Args: []ir.ID{st}})
				return []ir.ID{a.add(ir.Instruction{Op: ir.OpMonitorEnter, Args: []ir.ID{asg}})}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newArena()
			enter := tt.enter(a)
			work := a.call("work")
			exit1 := a.add(ir.Instruction{Op: ir.OpMonitorExit, Args: []ir.ID{a.load(1)}})
			caught := a.store(2, a.add(ir.Instruction{Op: ir.OpCatch}))
			exit2 := a.add(ir.Instruction{Op: ir.OpMonitorExit, Args: []ir.ID{a.load(1)}})
			throw := a.add(ir.Instruction{Op: ir.OpThrow, Args: []ir.ID{a.load(2)}})
			ret := a.ret()

			try := ast.New(ast.KindTry, block(stmts(work, exit1)...), catchAny(caught, stmts(exit2, throw)...))
			tree := block(append(append(stmts(enter...), try), ast.Stmt(ret))...)

			got, complete := Tree(a.m, tree, true)
			want := lines(
				"Block",
				"  Synchronized (v0)",
				"    Block",
				"      Statement A.work()",
			)
			if s := got.Dump(a.m); s != want {
				t.Errorf("Tree() =\n%s\nwant\n%s", s, want)
			}
			if !complete {
				t.Error("Tree() incomplete")
			}
			all := append(append([]ir.ID(nil), enter...), work, exit1, caught, exit2, throw, ret)
			if err := Check(got, all); err != nil {
				t.Errorf("Check() error = %v", err)
			}
		})
	}
}

func TestFinally(t *testing.T) {
	a := newArena()
	work := a.call("work")
	caught := a.store(1, a.add(ir.Instruction{Op: ir.OpCatch}))
	done1 := a.call("done")
	throw := a.add(ir.Instruction{Op: ir.OpThrow, Args: []ir.ID{a.load(1)}})
	done2 := a.call("done")
	after := a.call("after")
	ret := a.ret()

	try := ast.New(ast.KindTry, block(ast.Stmt(work)), catchAny(caught, stmts(done1, throw)...))
	tree := block(try, ast.Stmt(done2), ast.Stmt(after), ast.Stmt(ret))

	got, _ := Tree(a.m, tree, true)
	want := lines(
		"Block",
		"  Try",
		"    Block",
		"      Statement A.work()",
		"    Finally",
		"      Block",
		"        Statement A.done()",
		"  Statement A.after()",
	)
	if s := got.Dump(a.m); s != want {
		t.Errorf("Tree() =\n%s\nwant\n%s", s, want)
	}
	if err := Check(got, []ir.ID{work, caught, done1, throw, done2, after, ret}); err != nil {
		t.Errorf("Check() error = %v", err)
	}
}

func TestFinallyBeforeReturn(t *testing.T) {
	a := newArena()
	val := a.store(2, a.call("compute"))
	caught := a.store(1, a.add(ir.Instruction{Op: ir.OpCatch}))
	done1 := a.call("done")
	throw := a.add(ir.Instruction{Op: ir.OpThrow, Args: []ir.ID{a.load(1)}})
	done2 := a.call("done")
	ret := a.add(ir.Instruction{Op: ir.OpReturn, Args: []ir.ID{a.load(2)}})

	try := ast.New(ast.KindTry, block(ast.Stmt(val), ast.Stmt(done2), ast.Stmt(ret)), catchAny(caught, stmts(done1, throw)...))
	got, _ := Tree(a.m, block(try), true)
	fin := got.Children[0].FirstChildOfKind(ast.KindFinally)
	if fin == nil {
		t.Fatalf("no finally in\n%s", got.Dump(a.m))
	}
	if n := len(got.Children[0].Children[0].Children); n != 2 {
		t.Errorf("try body has %d statements, want 2", n)
	}
	if err := Check(got, []ir.ID{val, caught, done1, throw, done2, ret}); err != nil {
		t.Errorf("Check() error = %v", err)
	}
}

func TestFinallyNeedsCopy(t *testing.T) {
	a := newArena()
	work := a.call("work")
	caught := a.store(1, a.add(ir.Instruction{Op: ir.OpCatch}))
	done := a.call("done")
	throw := a.add(ir.Instruction{Op: ir.OpThrow, Args: []ir.ID{a.load(1)}})
	other := a.call("other")

	try := ast.New(ast.KindTry, block(ast.Stmt(work)), catchAny(caught, stmts(done, throw)...))
	got, _ := Tree(a.m, block(try, ast.Stmt(other)), true)
	if got.Children[0].FirstChildOfKind(ast.KindFinally) != nil {
		t.Errorf("finally recovered without an inline copy:\n%s", got.Dump(a.m))
	}
}

func TestForEach(t *testing.T) {
	t.Run("iterator", func(t *testing.T) {
		a := newArena()
		coll := a.load(1)
		it := a.store(2, a.method("java/util/List", "iterator", coll))
		has := a.method("java/util/Iterator", "hasNext", a.load(2))
		cond := a.add(ir.Instruction{Op: ir.OpCond, Oper: ir.Ne, Args: []ir.ID{has}, Type: "Z"})
		next := a.method("java/util/Iterator", "next", a.load(2))
		cast := a.add(ir.Instruction{Op: ir.OpCheckCast, Owner: "java/lang/String", Args: []ir.ID{next}, Type: "Ljava/lang/String;"})
		elem := a.store(3, cast)
		use := a.call("use", a.load(3))

		loop := ast.New(ast.KindWhile, block(ast.Stmt(elem), ast.Stmt(use)))
		loop.Cond = cond
		got, _ := Tree(a.m, block(ast.Stmt(it), loop), true)

		if len(got.Children) != 1 || got.Children[0].Kind != ast.KindForEach {
			t.Fatalf("Tree() =\n%s\nwant one ForEach", got.Dump(a.m))
		}
		fe := got.Children[0]
		if fe.Inst != elem || fe.Cond != coll {
			t.Errorf("ForEach Inst, Cond = %d, %d; want %d, %d", fe.Inst, fe.Cond, elem, coll)
		}
		if err := Check(got, []ir.ID{it, elem, use}); err != nil {
			t.Errorf("Check() error = %v", err)
		}
	})

	t.Run("array", func(t *testing.T) {
		a := newArena()
		src := a.load(0)
		arr := a.store(1, src)
		length := a.store(2, a.add(ir.Instruction{Op: ir.OpArrayLength, Args: []ir.ID{a.load(1)}, Type: "I"}))
		index := a.store(3, a.add(ir.Instruction{Op: ir.OpConst, Value: int32(0), Type: "I"}))
		cond := a.add(ir.Instruction{Op: ir.OpCond, Oper: ir.Lt, Args: []ir.ID{a.load(3), a.load(2)}, Type: "Z"})
		inc := a.add(ir.Instruction{Op: ir.OpInc, Local: 3, Value: int32(1)})
		elem := a.store(4, a.add(ir.Instruction{Op: ir.OpArrayLoad, Args: []ir.ID{a.load(1), a.load(3)}}))
		use := a.call("use", a.load(4))

		loop := ast.New(ast.KindFor, block(), block(ast.Stmt(inc)), block(ast.Stmt(elem), ast.Stmt(use)))
		loop.Cond = cond
		got, _ := Tree(a.m, block(ast.Stmt(arr), ast.Stmt(length), ast.Stmt(index), loop), true)

		if len(got.Children) != 1 || got.Children[0].Kind != ast.KindForEach {
			t.Fatalf("Tree() =\n%s\nwant one ForEach", got.Dump(a.m))
		}
		if fe := got.Children[0]; fe.Cond != src {
			t.Errorf("ForEach Cond = %d, want %d", fe.Cond, src)
		}
		if err := Check(got, []ir.ID{arr, length, index, inc, elem, use}); err != nil {
			t.Errorf("Check() error = %v", err)
		}
	})
}

func TestForInit(t *testing.T) {
	a := newArena()
	init := a.store(1, a.add(ir.Instruction{Op: ir.OpConst, Value: int32(0), Type: "I"}))
	cond := a.add(ir.Instruction{Op: ir.OpCond, Oper: ir.Lt, Args: []ir.ID{a.load(1), a.load(0)}, Type: "Z"})
	inc := a.add(ir.Instruction{Op: ir.OpInc, Local: 1, Value: int32(1)})
	use := a.call("use", a.load(1))

	loop := ast.New(ast.KindFor, block(), block(ast.Stmt(inc)), block(ast.Stmt(use)))
	loop.Cond = cond
	got, _ := Tree(a.m, block(ast.Stmt(init), loop), true)
	want := lines(
		"Block",
		"  For (v1 < v0)",
		"    Block",
		"      Statement v1 = 0",
		"    Block",
		"      Statement v1++",
		"    Block",
		"      Statement A.use(v1)",
	)
	if s := got.Dump(a.m); s != want {
		t.Errorf("Tree() =\n%s\nwant\n%s", s, want)
	}
}

func loopAt(offset, follow int, children ...*ast.Node) *ast.Node {
	n := ast.New(ast.KindWhile, block(children...))
	n.Offset, n.Follow = offset, follow
	return n
}

func TestJumps(t *testing.T) {
	a := newArena()
	c := a.add(ir.Instruction{Op: ir.OpCond, Oper: ir.Eq, Args: []ir.ID{a.load(0)}, Type: "Z"})
	guard := func(body ...*ast.Node) *ast.Node {
		n := ast.New(ast.KindIf, block(body...))
		n.Cond = c
		return n
	}
	inner := loopAt(5, 15,
		guard(ast.Jump(20)),
		guard(ast.Jump(0)),
		guard(ast.Jump(15)),
		ast.Jump(5),
	)
	outer := loopAt(0, 20, inner)

	got, complete := Tree(a.m, block(outer), true)
	want := lines(
		"Block",
		"  While label1",
		"    Block",
		"      While",
		"        Block",
		"          If (v0 == 0)",
		"            Block",
		"              Break label1",
		"          If (v0 == 0)",
		"            Block",
		"              Continue label1",
		"          If (v0 == 0)",
		"            Block",
		"              Break",
	)
	if s := got.Dump(a.m); s != want {
		t.Errorf("Tree() =\n%s\nwant\n%s", s, want)
	}
	if !complete {
		t.Error("Tree() incomplete")
	}
}

func TestSwitchBreakInsideLoop(t *testing.T) {
	a := newArena()
	key := a.load(0)
	sw := a.add(ir.Instruction{Op: ir.OpSwitch, Args: []ir.ID{key}})
	cs := ast.New(ast.KindCase, ast.Jump(30), ast.Jump(2))
	cs.Values = []int32{1}
	node := ast.New(ast.KindSwitch, cs)
	node.Inst, node.Offset, node.Follow = sw, 4, 30

	got, _ := Tree(a.m, block(loopAt(2, 40, node)), true)
	kinds := got.Children[0].Children[0].Children[0].Children[0].Children
	if kinds[0].Kind != ast.KindBreak || kinds[0].Label != "" {
		t.Errorf("first jump = %s %q, want unlabeled Break", kinds[0].Kind, kinds[0].Label)
	}
	if kinds[1].Kind != ast.KindContinue || kinds[1].Label != "" {
		t.Errorf("second jump = %s %q, want unlabeled Continue", kinds[1].Kind, kinds[1].Label)
	}
}

func TestUnresolvedJump(t *testing.T) {
	a := newArena()
	_, complete := Tree(a.m, block(loopAt(0, 10, ast.Jump(99))), true)
	if complete {
		t.Error("Tree() complete with a jump out of nowhere")
	}
}

func TestCheck(t *testing.T) {
	a := newArena()
	x, y := a.call("x"), a.call("y")
	tests := []struct {
		name    string
		tree    *ast.Node
		wantErr string
	}{
		{"ok", block(ast.Stmt(x), ast.Stmt(y)), ""},
		{"missing", block(ast.Stmt(x)), "missing"},
		{"duplicate", block(ast.Stmt(x), ast.Stmt(y), ast.Stmt(y)), "2 times"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.tree, []ir.ID{x, y})
			switch {
			case tt.wantErr == "" && err != nil:
				t.Errorf("Check() error = %v", err)
			case tt.wantErr != "" && (err == nil || !strings.Contains(err.Error(), tt.wantErr)):
				t.Errorf("Check() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func buildGraph(t *testing.T, desc string, code func(b *classtest.Builder) *classtest.Code) *cfg.Graph {
	t.Helper()
	b := classtest.New("A")
	b.AddMethod(classtest.Method{Access: 0x0009, Name: "m", Desc: desc, Code: code(b)})
	cf, err := classfile.ParseBytes(b.Bytes())
	if err != nil {
		t.Fatalf("ParseBytes() error = %v", err)
	}
	mi := cf.GetMethod("m", desc)
	m, err := ir.Build(mi.Code(), cf.ConstantPool, mi.IsStatic())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return cfg.Reduce(m, m.List, cfg.StageFull, cfg.Options{})
}

func TestAssemble(t *testing.T) {
	tests := []struct {
		name string
		code func(b *classtest.Builder) *classtest.Code
		want string
	}{
		{
			name: "counted loop",
			code: func(b *classtest.Builder) *classtest.Code {
				use := b.Method("A", "use", "(I)V")
				return classtest.NewCode().
					Op(bytecode.Iconst0, bytecode.Istore1).
					Jump(bytecode.Goto, "cond").
					Label("body").Op(bytecode.Iload1, bytecode.Invokestatic).U2(use).
					Op(bytecode.Iinc, 1, 1).
					Label("cond").Op(bytecode.Iload1, bytecode.Iload0).
					Jump(bytecode.IfIcmplt, "body").
					Op(bytecode.Return)
			},
			want: lines(
				"Block",
				"  For (v1 < v0)",
				"    Block",
				"      Statement v1 = 0",
				"    Block",
				"      Statement v1++",
				"    Block",
				"      Statement A.use(v1)",
			),
		},
		{
			name: "loop with break",
			code: func(b *classtest.Builder) *classtest.Code {
				run := b.Method("A", "run", "()V")
				step := b.Method("A", "step", "()V")
				return classtest.NewCode().
					Label("top").Op(bytecode.Invokestatic).U2(run).
					Op(bytecode.Iload0).Jump(bytecode.Ifeq, "out").
					Op(bytecode.Invokestatic).U2(step).
					Jump(bytecode.Goto, "top").
					Label("out").Op(bytecode.Return)
			},
			want: lines(
				"Block",
				"  While",
				"    Block",
				"      Statement A.run()",
				"      If (v0 == 0)",
				"        Block",
				"          Break",
				"      Statement A.step()",
			),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := buildGraph(t, "(I)V", tt.code)
			got, complete := Assemble(g)
			if s := got.Dump(g.Method); s != tt.want {
				t.Errorf("Assemble() =\n%s\nwant\n%s", s, tt.want)
			}
			if !complete {
				t.Error("Assemble() incomplete")
			}
			if err := Check(got, g.Statements()); err != nil {
				t.Errorf("Check() error = %v", err)
			}
		})
	}
}
