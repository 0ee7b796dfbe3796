package idiom

import (
	"reflect"
	"testing"

	"github.com/dhamidi/jdec/bytecode"
	"github.com/dhamidi/jdec/classfile"
	"github.com/dhamidi/jdec/classfile/classtest"
	"github.com/dhamidi/jdec/ir"
)

func konst(m *ir.Method, v int32, offset int) ir.ID {
	return m.Add(&ir.Instruction{Op: ir.OpConst, Value: v, Type: "I", Offset: offset})
}

func format(m *ir.Method, list []ir.ID) []string {
	var out []string
	for _, id := range list {
		out = append(out, m.Format(id))
	}
	return out
}

// arrayStores builds "v1 = new int[length]" filled at the given indices.
func arrayStores(length int32, indices []int32, values []int32) (*ir.Method, []ir.ID) {
	m := &ir.Method{Static: true}
	arr := m.Add(&ir.Instruction{Op: ir.OpNewArray, Args: []ir.ID{konst(m, length, 0)}, Type: "[I", Offset: 1})
	var list []ir.ID
	for k, idx := range indices {
		off := 3 + 4*k
		list = append(list, m.Add(&ir.Instruction{
			Op:     ir.OpArrayStore,
			Args:   []ir.ID{arr, konst(m, idx, off), konst(m, values[k], off+1)},
			Offset: off + 2,
		}))
	}
	list = append(list, m.Add(&ir.Instruction{Op: ir.OpStore, Local: 1, Args: []ir.ID{arr}, Offset: 40}))
	return m, list
}

func TestArrayInit(t *testing.T) {
	tests := []struct {
		name    string
		length  int32
		indices []int32
		values  []int32
		want    []string
	}{
		{
			name:    "consecutive indices",
			length:  3,
			indices: []int32{0, 1, 2},
			values:  []int32{10, 20, 30},
			want:    []string{"v1 = new int[] {10, 20, 30}"},
		},
		{
			name:    "leading default elements",
			length:  3,
			indices: []int32{1, 2},
			values:  []int32{20, 30},
			want:    []string{"v1 = new int[] {0, 20, 30}"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, list := arrayStores(tt.length, tt.indices, tt.values)
			out, ok := ArrayInit{}.Apply(m, list)
			if !ok {
				t.Fatal("Apply() did not match")
			}
			if got := format(m, out); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("statements = %q, want %q", got, tt.want)
			}
		})
	}

	t.Run("literal holds the values in order", func(t *testing.T) {
		m, list := arrayStores(3, []int32{0, 1, 2}, []int32{10, 20, 30})
		out, _ := ArrayInit{}.Apply(m, list)
		lit := m.At(m.At(out[0]).Args[0])
		if lit.Op != ir.OpArrayLiteral {
			t.Fatalf("value op = %v, want ArrayLiteral", lit.Op)
		}
		var got []int32
		for _, a := range lit.Args {
			got = append(got, m.At(a).Value.(int32))
		}
		if !reflect.DeepEqual(got, []int32{10, 20, 30}) {
			t.Errorf("elements = %v, want [10 20 30]", got)
		}
	})
}

func TestArrayInitNoMatch(t *testing.T) {
	tests := []struct {
		name    string
		length  int32
		indices []int32
	}{
		{"gap", 3, []int32{0, 2}},
		{"out of order", 3, []int32{1, 0}},
		{"index beyond length", 2, []int32{0, 1, 2}},
		{"trailing default elements", 4, []int32{0}},
		{"more defaults than stores", 5, []int32{3, 4}},
		{"huge length", 2000000, []int32{0}},
		{"huge length ending at last index", 2000000, []int32{1999999}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := make([]int32, len(tt.indices))
			m, list := arrayStores(tt.length, tt.indices, values)
			out, ok := ArrayInit{}.Apply(m, list)
			if ok {
				t.Fatalf("Apply() matched: %q", format(m, out))
			}
			if !reflect.DeepEqual(out, list) {
				t.Errorf("list changed: %v, want %v", out, list)
			}
		})
	}
}

// diamond builds: if (v0 != 0) goto 10; d1 = 1; goto 14; 10: d2 = 2; 14: use(s0)
func diamond(op ir.Op, d1, d2 int) (*ir.Method, []ir.ID) {
	m := &ir.Method{Static: true}
	v := m.Add(&ir.Instruction{Op: ir.OpLoad, Local: 0, Type: "I"})
	cond := m.Add(&ir.Instruction{Op: ir.OpCond, Oper: ir.Ne, Args: []ir.ID{v}, Type: "Z", Offset: 1})
	list := []ir.ID{
		m.Add(&ir.Instruction{Op: ir.OpIf, Args: []ir.ID{cond}, Target: 10, Offset: 1, End: 4}),
		m.Add(&ir.Instruction{Op: op, Local: d1, Args: []ir.ID{konst(m, 1, 4)}, Type: "I", Offset: 5}),
		m.Add(&ir.Instruction{Op: ir.OpGoto, Target: 14, Offset: 6}),
		m.Add(&ir.Instruction{Op: op, Local: d2, Args: []ir.ID{konst(m, 2, 10)}, Type: "I", Offset: 11}),
	}
	arg := m.Add(&ir.Instruction{Op: ir.OpStackLoad, Local: 0, Type: "I", Offset: 14})
	if op == ir.OpStore {
		arg = m.Add(&ir.Instruction{Op: ir.OpLoad, Local: d1, Type: "I", Offset: 14})
	}
	list = append(list, m.Add(&ir.Instruction{
		Op:     ir.OpInvoke,
		Opcode: bytecode.Invokestatic,
		Owner:  "A",
		Name:   "use",
		Desc:   "(I)V",
		Args:   []ir.ID{arg},
		Offset: 15,
	}))
	return m, list
}

func TestTernary(t *testing.T) {
	t.Run("stack stores fold into the consumer", func(t *testing.T) {
		m, list := diamond(ir.OpStackStore, 0, 0)
		out := New(nil).Run(m, list)
		want := []string{"A.use(v0 == 0 ? 1 : 2)"}
		if got := format(m, out); !reflect.DeepEqual(got, want) {
			t.Errorf("statements = %q, want %q", got, want)
		}
	})
	t.Run("local stores", func(t *testing.T) {
		m, list := diamond(ir.OpStore, 1, 1)
		out, ok := Ternary{}.Apply(m, list)
		if !ok {
			t.Fatal("Apply() did not match")
		}
		want := []string{"v1 = v0 == 0 ? 1 : 2", "A.use(v1)"}
		if got := format(m, out); !reflect.DeepEqual(got, want) {
			t.Errorf("statements = %q, want %q", got, want)
		}
	})
	t.Run("different destinations", func(t *testing.T) {
		for _, op := range []ir.Op{ir.OpStore, ir.OpStackStore} {
			m, list := diamond(op, 1, 2)
			if out, ok := (Ternary{}).Apply(m, list); ok {
				t.Errorf("%v: Apply() matched: %q", op, format(m, out))
			}
		}
	})
	t.Run("else target shared", func(t *testing.T) {
		m, list := diamond(ir.OpStackStore, 0, 0)
		extra := m.Add(&ir.Instruction{Op: ir.OpGoto, Target: 10, Offset: 20})
		list = append(list, extra)
		if _, ok := (Ternary{}).Apply(m, list); ok {
			t.Error("Apply() matched with a second reference to the else arm")
		}
	})
	t.Run("branch into the then arm", func(t *testing.T) {
		m, list := diamond(ir.OpStore, 1, 1)
		back := m.Add(&ir.Instruction{Op: ir.OpGoto, Target: 5, Offset: 20})
		list = append(list, back)
		if out, ok := (Ternary{}).Apply(m, list); ok {
			t.Errorf("Apply() matched: %q", format(m, out))
		}
	})
	t.Run("handler inside an arm", func(t *testing.T) {
		m, list := diamond(ir.OpStore, 1, 1)
		m.Handlers = []ir.Handler{{Start: 20, End: 24, Handler: 10}}
		if out, ok := (Ternary{}).Apply(m, list); ok {
			t.Errorf("Apply() matched: %q", format(m, out))
		}
	})
}

func buildMethod(t *testing.T, b *classtest.Builder, method classtest.Method) (*ir.Method, *classfile.ClassFile) {
	t.Helper()
	b.AddMethod(method)
	cf, err := classfile.ParseBytes(b.Bytes())
	if err != nil {
		t.Fatalf("ParseBytes() error = %v", err)
	}
	mi := cf.GetMethod(method.Name, method.Desc)
	m, err := ir.Build(mi.Code(), cf.ConstantPool, mi.IsStatic())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return m, cf
}

func TestPipeline(t *testing.T) {
	tests := []struct {
		name      string
		desc      string
		static    bool
		code      func(b *classtest.Builder) *classtest.Code
		handlers  []classtest.Handler
		want      []string
		synthetic []string
	}{
		{
			name:   "post increment",
			desc:   "(I)I",
			static: true,
			code: func(b *classtest.Builder) *classtest.Code {
				return classtest.NewCode().Op(bytecode.Iload0, bytecode.Iinc, 0, 1, bytecode.Ireturn)
			},
			want: []string{"return v0++"},
		},
		{
			name:   "chained assignment",
			desc:   "()V",
			static: true,
			code: func(b *classtest.Builder) *classtest.Code {
				return classtest.NewCode().Op(bytecode.Iconst5, bytecode.Dup, bytecode.Istore1, bytecode.Istore2, bytecode.Return)
			},
			want: []string{"v2 = v1 = 5", "return"},
		},
		{
			name:   "array initializer",
			desc:   "()[I",
			static: true,
			code: func(b *classtest.Builder) *classtest.Code {
				c := classtest.NewCode().Op(bytecode.Iconst3, bytecode.Newarray, 10)
				for i, v := range []byte{10, 20, 30} {
					c.Op(bytecode.Dup, bytecode.Iconst0+byte(i), bytecode.Bipush, v, bytecode.Iastore)
				}
				return c.Op(bytecode.Areturn)
			},
			want: []string{"return new int[] {10, 20, 30}"},
		},
		{
			name:   "conditional argument",
			desc:   "(I)V",
			static: true,
			code: func(b *classtest.Builder) *classtest.Code {
				use := b.Method("A", "use", "(I)V")
				return classtest.NewCode().
					Op(bytecode.Iload0).Jump(bytecode.Ifeq, "else").
					Op(bytecode.Iconst1).Jump(bytecode.Goto, "join").
					Label("else").Op(bytecode.Iconst2).
					Label("join").Op(bytecode.Invokestatic).U2(use).
					Op(bytecode.Return)
			},
			want: []string{"A.use(v0 != 0 ? 1 : 2)", "return"},
		},
		{
			name:   "class literal through class$",
			desc:   "()Ljava/lang/Class;",
			static: true,
			code: func(b *classtest.Builder) *classtest.Code {
				f := b.Field("A", "class$Foo", "Ljava/lang/Class;")
				helper := b.Method("A", "class$", "(Ljava/lang/String;)Ljava/lang/Class;")
				name := b.String("Foo")
				return classtest.NewCode().
					Op(bytecode.Getstatic).U2(f).Jump(bytecode.Ifnonnull, "cached").
					Op(bytecode.Ldc, byte(name)).
					Op(bytecode.Invokestatic).U2(helper).
					Op(bytecode.Dup, bytecode.Putstatic).U2(f).
					Jump(bytecode.Goto, "done").
					Label("cached").Op(bytecode.Getstatic).U2(f).
					Label("done").Op(bytecode.Areturn)
			},
			want:      []string{"return Foo.class"},
			synthetic: []string{"class$Foo", "class$"},
		},
		{
			name:   "class literal with inline lookup",
			desc:   "()Ljava/lang/Class;",
			static: true,
			code: func(b *classtest.Builder) *classtest.Code {
				f := b.Field("A", "class$0", "Ljava/lang/Class;")
				forName := b.Method("java/lang/Class", "forName", "(Ljava/lang/String;)Ljava/lang/Class;")
				message := b.Method("java/lang/Throwable", "getMessage", "()Ljava/lang/String;")
				errInit := b.Method("java/lang/NoClassDefFoundError", "<init>", "(Ljava/lang/String;)V")
				name := b.String("Foo")
				return classtest.NewCode().
					Op(bytecode.Getstatic).U2(f).
					Op(bytecode.Dup).Jump(bytecode.Ifnonnull, "done").
					Op(bytecode.Pop).
					Label("try").Op(bytecode.Ldc, byte(name)).
					Op(bytecode.Invokestatic).U2(forName).
					Label("tryEnd").Op(bytecode.Dup, bytecode.Putstatic).U2(f).
					Jump(bytecode.Goto, "done").
					Label("handler").Op(bytecode.New).U2(b.Class("java/lang/NoClassDefFoundError")).
					Op(bytecode.DupX1, bytecode.Swap).
					Op(bytecode.Invokevirtual).U2(message).
					Op(bytecode.Invokespecial).U2(errInit).
					Op(bytecode.Athrow).
					Label("done").Op(bytecode.Areturn)
			},
			handlers:  []classtest.Handler{{Start: "try", End: "tryEnd", Handler: "handler", CatchType: "java/lang/ClassNotFoundException"}},
			want:      []string{"return Foo.class"},
			synthetic: []string{"class$0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := classtest.New("A")
			access := uint16(0x0001)
			if tt.static {
				access = 0x0009
			}
			m, cf := buildMethod(t, b, classtest.Method{Access: access, Name: "m", Desc: tt.desc, Code: tt.code(b), Handlers: tt.handlers})
			out := New(&Context{Class: cf}).Run(m, m.List)
			if got := format(m, out); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("statements = %q, want %q", got, tt.want)
			}
			if !reflect.DeepEqual(m.Synthetic, tt.synthetic) {
				t.Errorf("Synthetic = %q, want %q", m.Synthetic, tt.synthetic)
			}
		})
	}
}

func TestPipelineWithout(t *testing.T) {
	b := classtest.New("A")
	m, _ := buildMethod(t, b, classtest.Method{
		Access: 0x0009,
		Name:   "m",
		Desc:   "(I)I",
		Code:   classtest.NewCode().Op(bytecode.Iload0, bytecode.Iinc, 0, 1, bytecode.Ireturn),
	})
	out := New(nil).Without("post-increment").Run(m, m.List)
	want := []string{"s0 = v0", "v0++", "return s0"}
	if got := format(m, out); !reflect.DeepEqual(got, want) {
		t.Errorf("statements = %q, want %q", got, want)
	}
}

func TestAnonymousNew(t *testing.T) {
	b := classtest.New("A")
	b.AddInnerClass("A$1", "", "", 0)
	init := b.Method("A$1", "<init>", "(LA;)V")
	code := classtest.NewCode().
		Op(bytecode.New).U2(b.Class("A$1")).
		Op(bytecode.Dup, bytecode.Aload0, bytecode.Invokespecial).U2(init).
		Op(bytecode.Areturn)
	m, cf := buildMethod(t, b, classtest.Method{Access: 0x0001, Name: "m", Desc: "()Ljava/lang/Object;", Code: code})

	out := New(&Context{Class: cf}).Run(m, m.List)
	if len(out) != 1 {
		t.Fatalf("statements = %q, want one", format(m, out))
	}
	v := m.At(m.At(out[0]).Args[0])
	if v.Op != ir.OpAnonNew {
		t.Fatalf("returned op = %v, want AnonNew", v.Op)
	}
	anon, ok := v.Value.(*ir.AnonClass)
	if !ok || !anon.OuterThis {
		t.Errorf("AnonClass = %+v, want outer instance", v.Value)
	}
	if got, want := m.Format(out[0]), "return new A.1() {...}"; got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}
}

func TestStackCollapseRespectsBoundaries(t *testing.T) {
	m := &ir.Method{Static: true}
	ss := m.Add(&ir.Instruction{Op: ir.OpStackStore, Local: 0, Args: []ir.ID{konst(m, 1, 0)}, Type: "I", Offset: 0})
	load := m.Add(&ir.Instruction{Op: ir.OpStackLoad, Local: 0, Type: "I", Offset: 4})
	ret := m.Add(&ir.Instruction{Op: ir.OpReturn, Args: []ir.ID{load}, Offset: 4})
	jump := m.Add(&ir.Instruction{Op: ir.OpGoto, Target: 4, Offset: 8})
	list := []ir.ID{ss, ret, jump}

	if _, ok := (StackCollapse{}).Apply(m, list); ok {
		t.Error("Apply() collapsed into a jump target")
	}
	if out, ok := (StackCollapse{}).Apply(m, list[:2]); !ok || m.Format(out[0]) != "return 1" {
		t.Errorf("Apply() = %q, %v; want return 1", format(m, out), ok)
	}
}

func TestStackCollapseKeepsCallOrder(t *testing.T) {
	m := &ir.Method{Static: true}
	call := func(name string) ir.ID {
		return m.Add(&ir.Instruction{Op: ir.OpInvoke, Opcode: bytecode.Invokestatic, Owner: "A", Name: name, Desc: "()I", Type: "I"})
	}
	ss := m.Add(&ir.Instruction{Op: ir.OpStackStore, Local: 0, Args: []ir.ID{call("first")}, Type: "I"})
	load := m.Add(&ir.Instruction{Op: ir.OpStackLoad, Local: 0, Type: "I"})
	sum := m.Add(&ir.Instruction{Op: ir.OpBinary, Oper: ir.Add, Args: []ir.ID{call("second"), load}, Type: "I"})
	ret := m.Add(&ir.Instruction{Op: ir.OpReturn, Args: []ir.ID{sum}})

	if out, ok := (StackCollapse{}).Apply(m, []ir.ID{ss, ret}); ok {
		t.Errorf("Apply() reordered calls: %q", format(m, out))
	}
}

func TestClassLiteralEnteredFromOutside(t *testing.T) {
	b := classtest.New("A")
	f := b.Field("A", "class$Foo", "Ljava/lang/Class;")
	helper := b.Method("A", "class$", "(Ljava/lang/String;)Ljava/lang/Class;")
	name := b.String("Foo")
	code := classtest.NewCode().
		Op(bytecode.Iload0).Jump(bytecode.Ifne, "load").
		Op(bytecode.Getstatic).U2(f).Jump(bytecode.Ifnonnull, "cached").
		Label("load").Op(bytecode.Ldc, byte(name)).
		Op(bytecode.Invokestatic).U2(helper).
		Op(bytecode.Dup, bytecode.Putstatic).U2(f).
		Jump(bytecode.Goto, "done").
		Label("cached").Op(bytecode.Getstatic).U2(f).
		Label("done").Op(bytecode.Areturn)
	m, cf := buildMethod(t, b, classtest.Method{Access: 0x0009, Name: "m", Desc: "(I)Ljava/lang/Class;", Code: code})

	if out, ok := (&ClassLiteral{ctx: &Context{Class: cf}}).Apply(m, m.List); ok {
		t.Errorf("Apply() matched: %q", format(m, out))
	}
	if len(m.Synthetic) != 0 {
		t.Errorf("Synthetic = %q, want none", m.Synthetic)
	}
}
