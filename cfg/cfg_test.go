package cfg

import (
	"strings"
	"testing"

	"github.com/dhamidi/jdec/ast"
	"github.com/dhamidi/jdec/bytecode"
	"github.com/dhamidi/jdec/classfile"
	"github.com/dhamidi/jdec/classfile/classtest"
	"github.com/dhamidi/jdec/ir"
)

func buildMethod(t *testing.T, desc string, code func(b *classtest.Builder) *classtest.Code, handlers ...classtest.Handler) *ir.Method {
	t.Helper()
	b := classtest.New("A")
	b.AddMethod(classtest.Method{Access: 0x0009, Name: "m", Desc: desc, Code: code(b), Handlers: handlers})
	cf, err := classfile.ParseBytes(b.Bytes())
	if err != nil {
		t.Fatalf("ParseBytes() error = %v", err)
	}
	mi := cf.GetMethod("m", desc)
	m, err := ir.Build(mi.Code(), cf.ConstantPool, mi.IsStatic())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return m
}

func lines(s ...string) string {
	return strings.Join(s, "\n") + "\n"
}

var methods = []struct {
	name     string
	desc     string
	code     func(b *classtest.Builder) *classtest.Code
	handlers []classtest.Handler
	want     string
}{
	{
		name: "counted loop",
		desc: "(I)V",
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
			"  Statement v1 = 0",
			"  For (v1 < v0)",
			"    Block",
			"    Block",
			"      Statement v1++",
			"    Block",
			"      Statement A.use(v1)",
			"  Statement return",
		),
	},
	{
		name: "post-tested loop",
		desc: "(I)V",
		code: func(b *classtest.Builder) *classtest.Code {
			return classtest.NewCode().
				Label("top").Op(bytecode.Iinc, 0, 0xff).
				Op(bytecode.Iload0).Jump(bytecode.Ifgt, "top").
				Op(bytecode.Return)
		},
		want: lines(
			"Block",
			"  DoWhile (v0 > 0)",
			"    Block",
			"      Statement v0--",
			"  Statement return",
		),
	},
	{
		name: "infinite loop with break",
		desc: "(I)V",
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
			"          Goto L13",
			"      Statement A.step()",
			"  Statement return",
		),
	},
	{
		name: "if else",
		desc: "(I)I",
		code: func(b *classtest.Builder) *classtest.Code {
			return classtest.NewCode().
				Op(bytecode.Iload0).Jump(bytecode.Ifle, "else").
				Op(bytecode.Iconst1, bytecode.Istore1).Jump(bytecode.Goto, "join").
				Label("else").Op(bytecode.Iload0, bytecode.Iload0, bytecode.Iadd, bytecode.Istore1).
				Op(bytecode.Iload0, bytecode.Istore2).
				Label("join").Op(bytecode.Iload1, bytecode.Ireturn)
		},
		want: lines(
			"Block",
			"  If (v0 > 0)",
			"    Block",
			"      Statement v1 = 1",
			"    Block",
			"      Statement v1 = v0 + v0",
			"      Statement v2 = v0",
			"  Statement return v1",
		),
	},
	{
		name: "switch with default",
		desc: "(I)I",
		code: func(b *classtest.Builder) *classtest.Code {
			return classtest.NewCode().
				Op(bytecode.Iload0).TableSwitch(0, "dflt", "c0", "c1").
				Label("c0").Op(bytecode.Iconst1, bytecode.Istore1).Jump(bytecode.Goto, "end").
				Label("c1").Op(bytecode.Iconst2, bytecode.Istore1).Jump(bytecode.Goto, "end").
				Label("dflt").Op(bytecode.Iconst3, bytecode.Istore1).
				Label("end").Op(bytecode.Iload1, bytecode.Ireturn)
		},
		want: "",
	},
	{
		name: "try catch",
		desc: "()V",
		code: func(b *classtest.Builder) *classtest.Code {
			run := b.Method("A", "run", "()V")
			fail := b.Method("A", "fail", "()V")
			return classtest.NewCode().
				Label("try").Op(bytecode.Invokestatic).U2(run).
				Label("tryEnd").Jump(bytecode.Goto, "end").
				Label("handler").Op(bytecode.Astore1, bytecode.Invokestatic).U2(fail).
				Label("end").Op(bytecode.Return)
		},
		handlers: []classtest.Handler{{Start: "try", End: "tryEnd", Handler: "handler", CatchType: "java/io/IOException"}},
		want: lines(
			"Block",
			"  Try",
			"    Block",
			"      Statement A.run()",
			"    Catch java/io/IOException v1 = $exception",
			"      Block",
			"        Statement A.fail()",
			"  Statement return",
		),
	},
	{
		name: "short circuit",
		desc: "(II)V",
		code: func(b *classtest.Builder) *classtest.Code {
			run := b.Method("A", "run", "()V")
			return classtest.NewCode().
				Op(bytecode.Iload0).Jump(bytecode.Ifeq, "skip").
				Op(bytecode.Iload1).Jump(bytecode.Ifeq, "skip").
				Op(bytecode.Invokestatic).U2(run).
				Label("skip").Op(bytecode.Return)
		},
		want: lines(
			"Block",
			"  If ((v0 != 0) && (v1 != 0))",
			"    Block",
			"      Statement A.run()",
			"  Statement return",
		),
	},
}

func TestReduce(t *testing.T) {
	for _, tt := range methods {
		t.Run(tt.name, func(t *testing.T) {
			m := buildMethod(t, tt.desc, tt.code, tt.handlers...)
			g := Reduce(m, m.List, StageFull, Options{})
			if !g.Reduced() {
				t.Fatalf("graph did not reduce, %d blocks left:\n%s", len(g.Blocks), g.Tree().Dump(m))
			}
			if tt.want == "" {
				return
			}
			if got := g.Tree().Dump(m); got != tt.want {
				t.Errorf("Tree() =\n%s\nwant\n%s", got, tt.want)
			}
		})
	}
}

func TestReduceIsIdempotent(t *testing.T) {
	for _, tt := range methods {
		t.Run(tt.name, func(t *testing.T) {
			m := buildMethod(t, tt.desc, tt.code, tt.handlers...)
			g := Reduce(m, m.List, StageFull, Options{})
			before := g.Tree().Dump(m)
			if g.reduce(append(gotoRules, structureRules...), 0) || g.structureLoops() {
				t.Error("a rule fired on a reduced graph")
			}
			if after := g.Tree().Dump(m); after != before {
				t.Errorf("tree changed:\n%s\nwant\n%s", after, before)
			}
		})
	}
}

func TestBuildCoversCode(t *testing.T) {
	for _, tt := range methods {
		t.Run(tt.name, func(t *testing.T) {
			m := buildMethod(t, tt.desc, tt.code, tt.handlers...)
			g := Build(m, m.List)
			if g.Blocks[0].Start != 0 {
				t.Errorf("first block starts at %d", g.Blocks[0].Start)
			}
			for i := 1; i < len(g.Blocks); i++ {
				if g.Blocks[i-1].End != g.Blocks[i].Start {
					t.Errorf("%v and %v are not adjacent", g.Blocks[i-1], g.Blocks[i])
				}
			}
			if last := g.Blocks[len(g.Blocks)-1]; last.End != m.CodeLen {
				t.Errorf("last block ends at %d, code length %d", last.End, m.CodeLen)
			}
			seen := 0
			for _, b := range g.Blocks {
				if len(b.Body) == 0 && b.Term == ir.NoID {
					t.Errorf("%v holds no statement", b)
				}
				seen += len(b.Body)
				if b.Term != ir.NoID {
					seen++
				}
			}
			if seen != len(m.List) {
				t.Errorf("blocks hold %d statements, list has %d", seen, len(m.List))
			}
		})
	}
}

func TestBuildSplitsAfterBranch(t *testing.T) {
	// The block after a branch starts at the next instruction, which is
	// where the operands of the following statement begin.
	m := buildMethod(t, methods[0].desc, methods[0].code)
	g := Build(m, m.List)
	want := [][2]int{{0, 5}, {5, 12}, {12, 17}, {17, 18}}
	if len(g.Blocks) != len(want) {
		t.Fatalf("got %d blocks, want %d", len(g.Blocks), len(want))
	}
	for i, b := range g.Blocks {
		if b.Start != want[i][0] || b.End != want[i][1] {
			t.Errorf("block %d = [%d,%d), want [%d,%d)", i, b.Start, b.End, want[i][0], want[i][1])
		}
	}
}

func TestLoopClassification(t *testing.T) {
	tests := []struct {
		name string
		desc string
		code func(b *classtest.Builder) *classtest.Code
		want string
	}{
		{
			name: "while with condition at the bottom",
			desc: "(II)V",
			code: func(b *classtest.Builder) *classtest.Code {
				run := b.Method("A", "run", "()V")
				return classtest.NewCode().
					Jump(bytecode.Goto, "cond").
					Label("body").Op(bytecode.Invokestatic).U2(run).
					Label("cond").Op(bytecode.Iload1, bytecode.Iload0).
					Jump(bytecode.IfIcmplt, "body").
					Op(bytecode.Return)
			},
			want: "While (v1 < v0)",
		},
		{
			name: "while with condition at the top",
			desc: "(II)V",
			code: func(b *classtest.Builder) *classtest.Code {
				run := b.Method("A", "run", "()V")
				return classtest.NewCode().
					Label("top").Op(bytecode.Iload1, bytecode.Iload0).
					Jump(bytecode.IfIcmpge, "out").
					Op(bytecode.Invokestatic).U2(run).
					Jump(bytecode.Goto, "top").
					Label("out").Op(bytecode.Return)
			},
			want: "While (v1 < v0)",
		},
		{
			name: "counter incremented",
			desc: methods[0].desc,
			code: methods[0].code,
			want: "For (v1 < v0)",
		},
		{
			name: "other variable incremented",
			desc: "(III)V",
			code: func(b *classtest.Builder) *classtest.Code {
				run := b.Method("A", "run", "()V")
				return classtest.NewCode().
					Jump(bytecode.Goto, "cond").
					Label("body").Op(bytecode.Invokestatic).U2(run).
					Op(bytecode.Iinc, 2, 1).
					Label("cond").Op(bytecode.Iload1, bytecode.Iload0).
					Jump(bytecode.IfIcmplt, "body").
					Op(bytecode.Return)
			},
			want: "While (v1 < v0)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := buildMethod(t, tt.desc, tt.code)
			g := Reduce(m, m.List, StageFull, Options{})
			tree := g.Tree()
			var loop *ast.Node
			tree.Walk(func(n *ast.Node) bool {
				switch n.Kind {
				case ast.KindWhile, ast.KindDoWhile, ast.KindFor:
					if loop == nil {
						loop = n
					}
				}
				return loop == nil
			})
			if loop == nil {
				t.Fatalf("no loop in\n%s", tree.Dump(m))
			}
			if got := loop.Kind.String() + " " + loop.Detail(m); got != tt.want {
				t.Errorf("loop = %q, want %q\n%s", got, tt.want, tree.Dump(m))
			}
		})
	}
}

func TestSwitchCases(t *testing.T) {
	m := buildMethod(t, methods[4].desc, methods[4].code)
	g := Reduce(m, m.List, StageFull, Options{})
	sw := g.Tree().Children[0]
	if sw.Flavor != "index" || len(sw.Children) != 3 {
		t.Fatalf("switch = %s", sw.Dump(m))
	}
	want := []struct {
		values []int32
		def    bool
	}{{[]int32{0}, false}, {[]int32{1}, false}, {nil, true}}
	for i, w := range want {
		c := sw.Children[i]
		if len(c.Values) != len(w.values) || c.Default != w.def {
			t.Errorf("case %d = %v default %v, want %v default %v", i, c.Values, c.Default, w.values, w.def)
		}
		if len(c.Values) == 1 && c.Values[0] != w.values[0] {
			t.Errorf("case %d key = %d, want %d", i, c.Values[0], w.values[0])
		}
		if last := c.Children[len(c.Children)-1]; !isJump(last, sw.Follow) {
			t.Errorf("case %d does not end in a break to %d", i, sw.Follow)
		}
	}
}

func TestStages(t *testing.T) {
	m := buildMethod(t, methods[0].desc, methods[0].code)
	raw := Snapshot(m, StageRaw)
	if len(raw.Blocks) != 4 {
		t.Errorf("raw graph has %d blocks, want 4", len(raw.Blocks))
	}
	if g := Snapshot(m, StageGoto); len(g.Blocks) != 4 {
		t.Errorf("goto stage has %d blocks, want 4", len(g.Blocks))
	}
	if g := Snapshot(m, StageLoop); !g.Reduced() {
		t.Errorf("loop stage left %d blocks", len(g.Blocks))
	}
	for _, name := range []string{"raw", "goto", "loop", "pre", "full"} {
		s, err := ParseStage(name)
		if err != nil || s.String() != name {
			t.Errorf("ParseStage(%q) = %v, %v", name, s, err)
		}
	}
	if _, err := ParseStage("bogus"); err == nil {
		t.Error("ParseStage(bogus) succeeded")
	}
}

func TestIrreducibleLoopStaysResidual(t *testing.T) {
	// Two blocks jump into each other and both are entered from the top.
	m := buildMethod(t, "(I)V", func(b *classtest.Builder) *classtest.Code {
		run := b.Method("A", "run", "()V")
		return classtest.NewCode().
			Op(bytecode.Iload0).Jump(bytecode.Ifeq, "second").
			Label("first").Op(bytecode.Invokestatic).U2(run).
			Label("second").Op(bytecode.Iinc, 0, 0xff).
			Op(bytecode.Iload0).Jump(bytecode.Ifgt, "first").
			Op(bytecode.Return)
	})
	g := Reduce(m, m.List, StageFull, Options{})
	if g.Reduced() {
		t.Fatalf("irreducible graph reduced:\n%s", g.Tree().Dump(m))
	}
	tree := g.Tree()
	if len(tree.ChildrenOfKind(ast.KindLabel)) == 0 {
		t.Errorf("residual tree has no labels:\n%s", tree.Dump(m))
	}
}

func TestDominators(t *testing.T) {
	m := buildMethod(t, methods[3].desc, methods[3].code)
	g := Build(m, m.List)
	dom := g.Dominators()
	entry := g.Entry
	for _, b := range g.Blocks {
		if !dom.Dominates(entry, b) {
			t.Errorf("entry does not dominate %v", b)
		}
	}
	join := g.Blocks[len(g.Blocks)-1]
	for _, b := range g.Blocks[1 : len(g.Blocks)-1] {
		if dom.Dominates(b, join) {
			t.Errorf("%v dominates the join", b)
		}
	}
}

func TestDOT(t *testing.T) {
	m := buildMethod(t, methods[2].desc, methods[2].code)
	g := Snapshot(m, StageRaw)
	fn := g.Lattice("A.m")
	if len(fn.Blocks) != len(g.Blocks) {
		t.Fatalf("lattice has %d blocks, want %d", len(fn.Blocks), len(g.Blocks))
	}
	calls := 0
	for _, b := range fn.Blocks {
		calls += len(b.Calls)
	}
	if calls != 2 {
		t.Errorf("lattice lists %d calls, want 2", calls)
	}
	if dot := g.DOT("A.m"); dot == "" {
		t.Error("DOT() is empty")
	}
	cg := CallGraph(map[string]*Graph{"A.m": g})
	if len(cg.Edges) != 2 {
		t.Errorf("call graph has %d edges, want 2", len(cg.Edges))
	}
}
