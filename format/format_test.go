package format

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/dhamidi/jdec/bytecode"
	"github.com/dhamidi/jdec/classfile/classtest"
	"github.com/dhamidi/jdec/decompiler"
)

func sampleResult(t *testing.T) *decompiler.Result {
	t.Helper()
	b := classtest.New("p/A")
	run := b.Method("p/A", "run", "()V")
	b.AddMethod(classtest.Method{Access: 0x0009, Name: "good", Desc: "()V",
		Code: classtest.NewCode().Op(bytecode.Invokestatic).U2(run).Op(bytecode.Return)})
	b.AddMethod(classtest.Method{Access: 0x0009, Name: "bad", Desc: "()V",
		Code: classtest.NewCode().Op(bytecode.Pop, bytecode.Return)})
	res, err := decompiler.Decompile(b.Bytes(), decompiler.Options{Workers: 1})
	if err != nil {
		t.Fatalf("Decompile() error = %v", err)
	}
	return res
}

func TestNew(t *testing.T) {
	for _, name := range Names {
		if _, err := New(name, &bytes.Buffer{}); err != nil {
			t.Errorf("New(%q) error = %v", name, err)
		}
	}
	if _, err := New("java", &bytes.Buffer{}); err == nil {
		t.Error("New(java) succeeded")
	}
}

func TestJSONEncoder(t *testing.T) {
	var buf bytes.Buffer
	if err := NewJSONEncoder(&buf).Encode(sampleResult(t)); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	var got jsonClass
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if got.Name != "p.A" || got.Status != "failed" || len(got.Digest) != 64 {
		t.Errorf("class = %q status %q digest %q", got.Name, got.Status, got.Digest)
	}
	if len(got.Methods) != 2 {
		t.Fatalf("got %d methods, want 2", len(got.Methods))
	}
	good, bad := got.Methods[0], got.Methods[1]
	if good.Status != "ok" || good.Body == nil || good.Failure != nil {
		t.Errorf("good = %+v", good)
	}
	if good.ReturnType != "void" || good.Visibility != "public" {
		t.Errorf("good declaration = %q %q", good.ReturnType, good.Visibility)
	}
	if bad.Status != "failed" || bad.Body != nil || bad.Failure == nil || bad.Failure.Opcode != "pop" {
		t.Errorf("bad = %+v", bad)
	}
	if len(bad.Disassembly) != 2 {
		t.Errorf("bad disassembly = %v", bad.Disassembly)
	}
}

func TestLineEncoder(t *testing.T) {
	var buf bytes.Buffer
	if err := NewLineEncoder(&buf).Encode(sampleResult(t)); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	tests := []struct {
		line   int
		prefix string
	}{
		{0, "class\tp.A\tpublic\tfailed\t"},
		{1, "method\tgood\tvoid\t-\tpublic\tstatic\tok"},
		{2, "method\tbad\tvoid\t-\tpublic\tstatic\tfailed"},
		{3, "failure\tbad()V\t0\t"},
	}
	if len(lines) != len(tests) {
		t.Fatalf("got %d lines, want %d:\n%s", len(lines), len(tests), buf.String())
	}
	for _, tt := range tests {
		if !strings.HasPrefix(lines[tt.line], tt.prefix) {
			t.Errorf("line %d = %q, want prefix %q", tt.line, lines[tt.line], tt.prefix)
		}
	}
}

func TestTreeEncoder(t *testing.T) {
	var buf bytes.Buffer
	if err := NewTreeEncoder(&buf).Encode(sampleResult(t)); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"class p.A (failed)",
		"good()V [ok]",
		"Statement p.A.run()",
		"bad()V [failed]",
		"! offset 0 (pop)",
		"    0: pop",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
}
