// Package ast is the structured statement tree produced for a method body.
// Leaves refer back to the method's instruction arena by ID.
package ast

import (
	"fmt"
	"strings"

	"github.com/dhamidi/jdec/ir"
)

type NodeKind int

const (
	KindBlock NodeKind = iota
	KindStatement
	KindIf
	KindWhile
	KindDoWhile
	KindFor
	KindForEach
	KindSwitch
	KindCase
	KindTry
	KindCatch
	KindFinally
	KindSynchronized
	KindBreak
	KindContinue
	KindGoto
	KindLabeled
	KindLabel
)

var nodeKindNames = map[NodeKind]string{
	KindBlock:        "Block",
	KindStatement:    "Statement",
	KindIf:           "If",
	KindWhile:        "While",
	KindDoWhile:      "DoWhile",
	KindFor:          "For",
	KindForEach:      "ForEach",
	KindSwitch:       "Switch",
	KindCase:         "Case",
	KindTry:          "Try",
	KindCatch:        "Catch",
	KindFinally:      "Finally",
	KindSynchronized: "Synchronized",
	KindBreak:        "Break",
	KindContinue:     "Continue",
	KindGoto:         "Goto",
	KindLabeled:      "Labeled",
	KindLabel:        "Label",
}

func (k NodeKind) String() string {
	if name, ok := nodeKindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// Node is one structured construct. Which fields are used depends on Kind:
//
//	Statement     Inst
//	If            Cond; Children then [, else]
//	While         Cond (NoID for an infinite loop); Children body
//	DoWhile       Cond; Children body
//	For           Cond; Children init, update, body
//	ForEach       Inst element store, Cond iterated expression; Children body
//	Switch        Inst switch statement, Flavor; Children cases
//	Case          Values, Default; Children statements
//	Try           Children body, catches... [, finally]
//	Catch         Types, Inst exception store; Children body
//	Synchronized  Cond lock; Children body
//	Break, Continue, Labeled, Label use Label; Goto uses Offset.
//
// Loops carry the offset a continue jumps to and switches the offset they
// start at; both carry the offset of their follow (-1 when control never
// leaves normally). Hidden
// lists statements a construct absorbed, such as the monitor exits of a
// synchronized block.
type Node struct {
	Kind     NodeKind
	Label    string
	Inst     ir.ID
	Cond     ir.ID
	Values   []int32
	Default  bool
	Types    []string
	Flavor   string
	Offset   int
	Follow   int
	Hidden   []ir.ID
	Children []*Node
}

// New returns a node of kind with no instruction references.
func New(kind NodeKind, children ...*Node) *Node {
	n := &Node{Kind: kind, Inst: ir.NoID, Cond: ir.NoID, Follow: -1}
	for _, c := range children {
		n.AddChild(c)
	}
	return n
}

// Jump is a goto to offset, resolved into break or continue later.
func Jump(offset int) *Node {
	n := New(KindGoto)
	n.Offset = offset
	return n
}

// Stmt wraps one statement instruction.
func Stmt(id ir.ID) *Node {
	n := New(KindStatement)
	n.Inst = id
	return n
}

func (n *Node) AddChild(child *Node) {
	if child != nil {
		n.Children = append(n.Children, child)
	}
}

func (n *Node) FirstChildOfKind(kind NodeKind) *Node {
	for _, child := range n.Children {
		if child.Kind == kind {
			return child
		}
	}
	return nil
}

func (n *Node) ChildrenOfKind(kind NodeKind) []*Node {
	var result []*Node
	for _, child := range n.Children {
		if child.Kind == kind {
			result = append(result, child)
		}
	}
	return result
}

// Walk visits n and its descendants in preorder until fn returns false for
// a node, which skips that node's children.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Instructions lists the instruction IDs the tree refers to, in preorder.
func (n *Node) Instructions() []ir.ID {
	var out []ir.ID
	n.Walk(func(x *Node) bool {
		if x.Cond != ir.NoID {
			out = append(out, x.Cond)
		}
		if x.Inst != ir.NoID {
			out = append(out, x.Inst)
		}
		out = append(out, x.Hidden...)
		return true
	})
	return out
}

// Clone copies the tree. Instruction IDs are shared.
func (n *Node) Clone() *Node {
	cp := *n
	cp.Values = append([]int32(nil), n.Values...)
	cp.Types = append([]string(nil), n.Types...)
	cp.Hidden = append([]ir.ID(nil), n.Hidden...)
	cp.Children = make([]*Node, len(n.Children))
	for i, c := range n.Children {
		cp.Children[i] = c.Clone()
	}
	return &cp
}

func (n *Node) String() string {
	return n.stringIndent(0, nil)
}

// Dump renders the tree with the text of each referenced instruction.
func (n *Node) Dump(m *ir.Method) string {
	return n.stringIndent(0, m)
}

func (n *Node) stringIndent(indent int, m *ir.Method) string {
	var sb strings.Builder
	n.write(&sb, indent, m)
	return sb.String()
}

func (n *Node) write(sb *strings.Builder, indent int, m *ir.Method) {
	sb.WriteString(strings.Repeat("  ", indent))
	sb.WriteString(n.Kind.String())
	if d := n.Detail(m); d != "" {
		sb.WriteString(" " + d)
	}
	sb.WriteByte('\n')
	for _, c := range n.Children {
		c.write(sb, indent+1, m)
	}
}

// Detail is the one-line description of the node itself. Without a method,
// instructions are shown by ID.
func (n *Node) Detail(m *ir.Method) string {
	text := func(id ir.ID) string {
		if m == nil {
			return fmt.Sprintf("#%d", id)
		}
		return m.Format(id)
	}
	var parts []string
	if n.Label != "" {
		parts = append(parts, n.Label)
	}
	if n.Kind == KindGoto {
		parts = append(parts, fmt.Sprintf("L%d", n.Offset))
	}
	if n.Flavor != "" {
		parts = append(parts, n.Flavor)
	}
	if n.Default {
		parts = append(parts, "default")
	}
	for _, v := range n.Values {
		parts = append(parts, fmt.Sprint(v))
	}
	for _, t := range n.Types {
		if t == "" {
			t = "any"
		}
		parts = append(parts, t)
	}
	if n.Inst != ir.NoID {
		parts = append(parts, text(n.Inst))
	}
	if n.Cond != ir.NoID {
		parts = append(parts, "("+text(n.Cond)+")")
	}
	return strings.Join(parts, " ")
}
