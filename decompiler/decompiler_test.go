package decompiler

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/zeebo/blake3"

	"github.com/dhamidi/jdec/ast"
	"github.com/dhamidi/jdec/bytecode"
	"github.com/dhamidi/jdec/cfg"
	"github.com/dhamidi/jdec/classfile"
	"github.com/dhamidi/jdec/classfile/classtest"
	"github.com/dhamidi/jdec/ir"
)

func sampleClass() []byte {
	b := classtest.New("p/A")
	run := b.Method("p/A", "run", "()V")
	use := b.Method("p/A", "use", "(I)V")
	b.AddMethod(classtest.Method{Access: 0x0009, Name: "good", Desc: "()V",
		Code: classtest.NewCode().Op(bytecode.Invokestatic).U2(run).Op(bytecode.Return)})
	b.AddMethod(classtest.Method{Access: 0x0009, Name: "bad", Desc: "()V",
		Code: classtest.NewCode().Op(bytecode.Pop, bytecode.Return)})
	b.AddMethod(classtest.Method{Access: 0x0401, Name: "abs", Desc: "()V"})
	b.AddMethod(classtest.Method{Access: 0x0009, Name: "loop", Desc: "(I)V",
		Code: classtest.NewCode().
			Op(bytecode.Iconst0, bytecode.Istore1).
			Jump(bytecode.Goto, "cond").
			Label("body").Op(bytecode.Iload1, bytecode.Invokestatic).U2(use).
			Op(bytecode.Iinc, 1, 1).
			Label("cond").Op(bytecode.Iload1, bytecode.Iload0).
			Jump(bytecode.IfIcmplt, "body").
			Op(bytecode.Return)})
	return b.Bytes()
}

func TestDecompile(t *testing.T) {
	data := sampleClass()
	for _, workers := range []int{1, 4} {
		t.Run(map[int]string{1: "sequential", 4: "parallel"}[workers], func(t *testing.T) {
			res, err := Decompile(data, Options{Workers: workers})
			if err != nil {
				t.Fatalf("Decompile() error = %v", err)
			}
			if res.Class != "p/A" {
				t.Errorf("Class = %q, want p/A", res.Class)
			}
			if res.Digest != blake3.Sum256(data) {
				t.Errorf("Digest = %s, want the BLAKE3 of the input", res.DigestHex())
			}
			if len(res.Methods) != 4 {
				t.Fatalf("got %d methods, want 4", len(res.Methods))
			}

			tests := []struct {
				name   string
				status Status
				tree   bool
			}{
				{"good", StatusOK, true},
				{"bad", StatusFailed, false},
				{"abs", StatusOK, false},
				{"loop", StatusOK, true},
			}
			for _, tt := range tests {
				m := res.Method(tt.name, "")
				if m == nil {
					t.Fatalf("method %s missing", tt.name)
				}
				if m.Status != tt.status {
					t.Errorf("%s: Status = %s, want %s", tt.name, m.Status, tt.status)
				}
				if (m.Tree != nil) != tt.tree {
					t.Errorf("%s: Tree = %v, want present=%v", tt.name, m.Tree, tt.tree)
				}
			}
			if res.Status() != StatusFailed {
				t.Errorf("Result.Status() = %s, want failed", res.Status())
			}
		})
	}
}

func TestFailureIsScopedToMethod(t *testing.T) {
	res, err := Decompile(sampleClass(), Options{})
	if err != nil {
		t.Fatalf("Decompile() error = %v", err)
	}
	bad := res.Method("bad", "()V")
	if bad.Failure == nil {
		t.Fatal("bad: no Failure")
	}
	if bad.Failure.Offset != 0 || bad.Failure.Opcode != bytecode.Pop {
		t.Errorf("Failure = %s, want offset 0 at pop", bad.Failure)
	}
	if len(bad.Disassembly) != 2 {
		t.Errorf("Disassembly has %d lines, want 2", len(bad.Disassembly))
	}
	loop := res.Method("loop", "(I)V")
	if loop.Tree.FirstChildOfKind(ast.KindFor) == nil {
		t.Errorf("loop: no for statement in\n%s", loop.Tree.Dump(loop.IR))
	}
}

func TestDecompileMalformed(t *testing.T) {
	data := sampleClass()
	tests := map[string][]byte{
		"truncated": data[:12],
		"bad magic": append([]byte{0xca, 0xfe, 0xba, 0xbf}, data[4:]...),
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decompile(input, Options{})
			if !errors.Is(err, classfile.ErrMalformedInput) {
				t.Errorf("Decompile() error = %v, want ErrMalformedInput", err)
			}
		})
	}
}

func TestDecompileCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := DecompileContext(ctx, sampleClass(), Options{Workers: 2})
	if err != nil {
		t.Fatalf("DecompileContext() error = %v", err)
	}
	for _, m := range res.Methods {
		if m.Status != StatusFailed {
			t.Errorf("%s: Status = %s, want failed", m.Name, m.Status)
		}
	}
}

func TestModel(t *testing.T) {
	res, err := Decompile(sampleClass(), Options{})
	if err != nil {
		t.Fatalf("Decompile() error = %v", err)
	}
	m := res.Model
	if m.Name != "p.A" || m.SimpleName != "A" || m.Package != "p" {
		t.Errorf("Name, SimpleName, Package = %q, %q, %q", m.Name, m.SimpleName, m.Package)
	}
	if len(m.Methods) != 4 {
		t.Fatalf("got %d methods, want 4", len(m.Methods))
	}
	loop := m.Methods[3]
	if loop.ReturnType != "void" || len(loop.Parameters) != 1 || loop.Parameters[0] != "int" {
		t.Errorf("loop = %+v", loop)
	}
	abs := m.Methods[2]
	if len(abs.Modifiers) != 1 || abs.Modifiers[0] != "abstract" {
		t.Errorf("abs modifiers = %v, want [abstract]", abs.Modifiers)
	}
}

func TestGraph(t *testing.T) {
	data := sampleClass()
	raw, err := Graph(data, "loop", "(I)V", cfg.StageRaw)
	if err != nil {
		t.Fatalf("Graph() error = %v", err)
	}
	if len(raw.Blocks) < 3 {
		t.Errorf("raw graph has %d blocks, want at least 3", len(raw.Blocks))
	}
	full, err := Graph(data, "loop", "", cfg.StageFull)
	if err != nil {
		t.Fatalf("Graph() error = %v", err)
	}
	if !full.Reduced() {
		t.Errorf("full graph has %d blocks, want 1", len(full.Blocks))
	}
	if _, err := Graph(data, "missing", "", cfg.StageRaw); err == nil {
		t.Error("Graph() of a missing method succeeded")
	}
	graphs, err := Graphs(data, cfg.StageFull)
	if err != nil {
		t.Fatalf("Graphs() error = %v", err)
	}
	if _, ok := graphs["p/A.good()V"]; !ok || len(graphs) != 2 {
		t.Errorf("Graphs() keys = %v, want good and loop", keys(graphs))
	}
}

func keys(m map[string]*cfg.Graph) []string {
	var out []string
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestLoaders(t *testing.T) {
	data := sampleClass()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "p"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "p", "A.class"), data, 0o644); err != nil {
		t.Fatal(err)
	}
	jar := filepath.Join(t.TempDir(), "lib.jar")
	f, err := os.Create(jar)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	w, err := zw.Create("q/B.class")
	if err != nil {
		t.Fatal(err)
	}
	w.Write(data)
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()

	zl := NewZipLoader(jar)
	defer zl.Close()
	tests := []struct {
		name   string
		loader Loader
		class  string
		found  bool
	}{
		{"map hit", MapLoader{"p/A": data}, "p/A", true},
		{"map miss", MapLoader{}, "p/A", false},
		{"dir hit", DirLoader{Root: dir}, "p/A", true},
		{"dir miss", DirLoader{Root: dir}, "p/Z", false},
		{"zip hit", zl, "q/B", true},
		{"zip miss", zl, "p/A", false},
		{"multi", MultiLoader{MapLoader{}, zl}, "q/B", true},
		{"classpath", ClasspathLoader([]string{dir, jar}), "q/B", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.loader.Load(tt.class)
			if !tt.found {
				if !errors.Is(err, ErrNotFound) {
					t.Errorf("Load() error = %v, want ErrNotFound", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if len(got) != len(data) {
				t.Errorf("Load() returned %d bytes, want %d", len(got), len(data))
			}
		})
	}
	names, err := zl.Names()
	if err != nil || len(names) != 1 || names[0] != "q/B" {
		t.Errorf("Names() = %v, %v", names, err)
	}
}

func TestBatch(t *testing.T) {
	data := sampleClass()
	inputs := []Input{
		{Name: "a", Data: data},
		{Name: "b", Data: data[:8]},
		{Name: "c", Data: data},
	}
	out := Batch(context.Background(), inputs, Options{Workers: 2})
	if len(out) != 3 {
		t.Fatalf("got %d outputs, want 3", len(out))
	}
	if out[0].Err != nil || out[0].Result == nil {
		t.Errorf("a: %v", out[0].Err)
	}
	if !errors.Is(out[1].Err, classfile.ErrMalformedInput) {
		t.Errorf("b: error = %v, want ErrMalformedInput", out[1].Err)
	}
	if !out[2].Duplicate || out[2].Result != out[0].Result {
		t.Errorf("c: Duplicate = %v, shared result = %v", out[2].Duplicate, out[2].Result == out[0].Result)
	}
}

func TestBranchIntoConditionalArm(t *testing.T) {
	// The loop re-enters the then arm, so the diamond is not a conditional
	// expression.
	b := classtest.New("p/A")
	use := b.Method("p/A", "use", "(I)V")
	b.AddMethod(classtest.Method{Access: 0x0009, Name: "m", Desc: "(II)V",
		Code: classtest.NewCode().
			Op(bytecode.Iload0).Jump(bytecode.Ifeq, "else").
			Label("then").Op(bytecode.Iconst1, bytecode.Istore2).Jump(bytecode.Goto, "join").
			Label("else").Op(bytecode.Iconst2, bytecode.Istore2).
			Label("join").Op(bytecode.Iload2, bytecode.Invokestatic).U2(use).
			Op(bytecode.Iinc, 1, 0xff).
			Op(bytecode.Iload1).Jump(bytecode.Ifgt, "then").
			Op(bytecode.Return)})
	res, err := Decompile(b.Bytes(), Options{})
	if err != nil {
		t.Fatalf("Decompile() error = %v", err)
	}
	m := res.Method("m", "(II)V")
	if m.Status != StatusIncomplete {
		t.Fatalf("Status = %s, want incomplete", m.Status)
	}
	dump := m.Tree.Dump(m.IR)
	for _, want := range []string{"v2 = 1", "v2 = 2"} {
		if !strings.Contains(dump, want) {
			t.Errorf("tree lacks %q:\n%s", want, dump)
		}
	}
	if strings.Contains(dump, "?") {
		t.Errorf("tree holds a conditional expression:\n%s", dump)
	}
}

func TestSyntheticSkipsFailedMethods(t *testing.T) {
	methods := []*Method{
		{Status: StatusFailed, IR: &ir.Method{Synthetic: []string{"class$Lost"}}},
		{Status: StatusOK, IR: &ir.Method{Synthetic: []string{"class$Kept", "class$"}}},
		{Status: StatusIncomplete, IR: &ir.Method{Synthetic: []string{"class$Kept"}}},
		{Status: StatusOK},
	}
	want := []string{"class$", "class$Kept"}
	if got := synthetic(methods); !reflect.DeepEqual(got, want) {
		t.Errorf("synthetic() = %v, want %v", got, want)
	}
}

func TestGraphRecoversPanic(t *testing.T) {
	snapshot = func(*ir.Method, cfg.Stage) *cfg.Graph { panic("boom") }
	t.Cleanup(func() { snapshot = cfg.Snapshot })

	data := sampleClass()
	_, err := Graph(data, "loop", "(I)V", cfg.StageFull)
	if !errors.Is(err, ir.ErrUnsupportedConstruct) {
		t.Errorf("Graph() error = %v, want ErrUnsupportedConstruct", err)
	}
	graphs, err := Graphs(data, cfg.StageFull)
	if err != nil || len(graphs) != 0 {
		t.Errorf("Graphs() = %v, %v, want no graphs and no error", keys(graphs), err)
	}
}
