// Package assemble turns a reduced control flow graph into the statement
// tree of a method and recovers the source constructs that javac lowers
// into plain control flow: synchronized blocks, finally clauses, enhanced
// for loops, loop initializers, breaks and continues.
package assemble

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/dhamidi/jdec/ast"
	"github.com/dhamidi/jdec/cfg"
	"github.com/dhamidi/jdec/ir"
)

var log = commonlog.GetLogger("jdec.assemble")

// Assemble returns the method body of g as one block node. complete is
// false when the graph did not fully reduce or a jump could not be
// expressed as a break or continue; the tree then still holds every
// statement, with labels and gotos where structure is missing.
func Assemble(g *cfg.Graph) (root *ast.Node, complete bool) {
	return Tree(g.Method, g.Tree(), g.Reduced())
}

// Tree runs the recovery passes over a copy of tree. reduced tells whether
// tree came from a fully reduced graph.
func Tree(m *ir.Method, tree *ast.Node, reduced bool) (*ast.Node, bool) {
	root := tree.Clone()
	a := &assembler{m: m}
	a.sequences(root, a.synchronized)
	a.sequences(root, a.finally)
	a.sequences(root, a.forEach)
	a.sequences(root, a.forInit)
	resolved := a.resolve(root)
	a.trimContinues(root)
	a.trimReturn(root)
	if !resolved {
		log.Debugf("%d jumps left unresolved", a.unresolved)
	}
	return root, reduced && resolved
}

type assembler struct {
	m          *ir.Method
	labels     int
	unresolved int
}

// sequences applies fn to every statement list of the tree, innermost
// first. fn returns the rewritten list.
func (a *assembler) sequences(n *ast.Node, fn func([]*ast.Node) []*ast.Node) {
	for _, c := range n.Children {
		a.sequences(c, fn)
	}
	if n.Kind == ast.KindBlock || n.Kind == ast.KindCase {
		n.Children = fn(n.Children)
	}
}

// op returns the operation of a statement node, or false for any other
// kind of node.
func (a *assembler) op(n *ast.Node) (*ir.Instruction, bool) {
	if n == nil || n.Kind != ast.KindStatement || n.Inst == ir.NoID {
		return nil, false
	}
	return a.m.At(n.Inst), true
}

// body is the statement list of a construct's block child.
func body(n *ast.Node, i int) []*ast.Node {
	if i >= len(n.Children) {
		return nil
	}
	return n.Children[i].Children
}

func isLoop(n *ast.Node) bool {
	switch n.Kind {
	case ast.KindWhile, ast.KindDoWhile, ast.KindFor, ast.KindForEach:
		return true
	}
	return false
}

// loopBody is the block holding the statements a loop repeats.
func loopBody(n *ast.Node) *ast.Node {
	if len(n.Children) == 0 {
		return nil
	}
	return n.Children[len(n.Children)-1]
}

// trimReturn drops a bare return closing the method body.
func (a *assembler) trimReturn(root *ast.Node) {
	n := len(root.Children)
	if n == 0 {
		return
	}
	in, ok := a.op(root.Children[n-1])
	if !ok || in.Op != ir.OpReturn || len(in.Args) != 0 {
		return
	}
	root.Hidden = append(root.Hidden, in.ID)
	root.Children = root.Children[:n-1]
}

// trimContinues drops an unlabeled continue that ends a loop body, looking
// through trailing conditionals.
func (a *assembler) trimContinues(n *ast.Node) {
	for _, c := range n.Children {
		a.trimContinues(c)
	}
	if !isLoop(n) || n.Kind == ast.KindDoWhile {
		return
	}
	trimTail(loopBody(n))
}

func trimTail(b *ast.Node) {
	if b == nil || len(b.Children) == 0 {
		return
	}
	last := b.Children[len(b.Children)-1]
	switch {
	case last.Kind == ast.KindContinue && last.Label == "":
		b.Children = b.Children[:len(b.Children)-1]
	case last.Kind == ast.KindIf:
		for _, arm := range last.Children {
			trimTail(arm)
		}
	}
}

// Check verifies that every statement appears exactly once in tree, either
// as a node's own instruction or among those a construct absorbed.
func Check(tree *ast.Node, stmts []ir.ID) error {
	want := make(map[ir.ID]bool, len(stmts))
	for _, id := range stmts {
		want[id] = true
	}
	seen := make(map[ir.ID]int, len(stmts))
	for _, id := range tree.Instructions() {
		if want[id] {
			seen[id]++
		}
	}
	for _, id := range stmts {
		switch seen[id] {
		case 1:
		case 0:
			return fmt.Errorf("statement #%d is missing from the tree", id)
		default:
			return fmt.Errorf("statement #%d appears %d times", id, seen[id])
		}
	}
	return nil
}
