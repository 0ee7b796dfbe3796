package ast

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/dhamidi/jdec/ir"
)

func TestNodeKindString(t *testing.T) {
	tests := []struct {
		kind NodeKind
		want string
	}{
		{KindBlock, "Block"},
		{KindStatement, "Statement"},
		{KindWhile, "While"},
		{KindDoWhile, "DoWhile"},
		{KindFor, "For"},
		{KindSwitch, "Switch"},
		{KindSynchronized, "Synchronized"},
		{KindLabel, "Label"},
		{NodeKind(9999), "Unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.want {
				t.Errorf("NodeKind(%d).String() = %q, want %q", tt.kind, got, tt.want)
			}
		})
	}
}

func sample() (*ir.Method, *Node) {
	m := &ir.Method{Static: true}
	v := m.Add(&ir.Instruction{Op: ir.OpLoad, Local: 0, Type: "I"})
	cond := m.Add(&ir.Instruction{Op: ir.OpCond, Oper: ir.Gt, Args: []ir.ID{v}, Type: "Z"})
	inc := m.Add(&ir.Instruction{Op: ir.OpInc, Local: 0, Value: int32(-1)})
	ret := m.Add(&ir.Instruction{Op: ir.OpReturn})

	loop := New(KindWhile, New(KindBlock, Stmt(inc)))
	loop.Cond = cond
	return m, New(KindBlock, loop, Stmt(ret))
}

func TestDump(t *testing.T) {
	m, tree := sample()
	want := strings.Join([]string{
		"Block",
		"  While (v0 > 0)",
		"    Block",
		"      Statement v0--",
		"  Statement return",
		"",
	}, "\n")
	if got := tree.Dump(m); got != want {
		t.Errorf("Dump() =\n%s\nwant\n%s", got, want)
	}
	if got := tree.String(); !strings.Contains(got, "While (#1)") {
		t.Errorf("String() = %q, want instruction IDs", got)
	}
}

func TestInstructions(t *testing.T) {
	_, tree := sample()
	got := tree.Instructions()
	want := []ir.ID{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("Instructions() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Instructions()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	_, tree := sample()
	cp := tree.Clone()
	cp.Children[0].Children = nil
	if len(tree.Children[0].Children) != 1 {
		t.Error("Clone() shares children with the original")
	}
}

func TestToJSON(t *testing.T) {
	m, tree := sample()
	data, err := json.Marshal(tree.ToJSON(m))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var got JSONNode
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got.Kind != "Block" || len(got.Children) != 2 {
		t.Fatalf("root = %+v", got)
	}
	if loop := got.Children[0]; loop.Kind != "While" || loop.Cond != "v0 > 0" {
		t.Errorf("loop = %+v, want While with cond v0 > 0", loop)
	}
	if ret := got.Children[1]; ret.Text != "return" {
		t.Errorf("return text = %q", ret.Text)
	}
}
