package assemble

import (
	"github.com/dhamidi/jdec/ast"
	"github.com/dhamidi/jdec/ir"
)

// forEach recovers enhanced for loops from the two shapes javac lowers
// them to: an iterator driven while loop and a counted loop over a copy
// of an array.
func (a *assembler) forEach(list []*ast.Node) []*ast.Node {
	for i := 0; i < len(list); i++ {
		if n, j, ok := a.iteratorLoop(list, i); ok {
			list = splice(list, i, j, n)
			continue
		}
		if n, j, ok := a.arrayLoop(list, i); ok {
			list = splice(list, i, j, n)
		}
	}
	return list
}

func splice(list []*ast.Node, i, j int, n *ast.Node) []*ast.Node {
	out := append([]*ast.Node(nil), list[:i]...)
	out = append(out, n)
	return append(out, list[j:]...)
}

// iteratorLoop matches
//
//	it = c.iterator()
//	while (it.hasNext()) { x = (T) it.next(); ... }
func (a *assembler) iteratorLoop(list []*ast.Node, i int) (*ast.Node, int, bool) {
	m := a.m
	if i+1 >= len(list) || list[i+1].Kind != ast.KindWhile || list[i+1].Cond == ir.NoID {
		return nil, 0, false
	}
	st, ok := a.op(list[i])
	if !ok || st.Op != ir.OpStore {
		return nil, 0, false
	}
	src := m.At(st.Args[0])
	if src.Op != ir.OpInvoke || src.Name != "iterator" || len(src.Args) != 1 {
		return nil, 0, false
	}
	it := st.Local
	loop := list[i+1]
	cond := m.At(loop.Cond)
	if cond.Op != ir.OpCond || cond.Oper != ir.Ne || len(cond.Args) != 1 || !a.calls(cond.Args[0], "hasNext", it) {
		return nil, 0, false
	}
	stmts := body(loop, 0)
	if len(stmts) == 0 {
		return nil, 0, false
	}
	elem, ok := a.op(stmts[0])
	if !ok || elem.Op != ir.OpStore {
		return nil, 0, false
	}
	v := elem.Args[0]
	if m.At(v).Op == ir.OpCheckCast {
		v = m.At(v).Args[0]
	}
	if !a.calls(v, "next", it) || a.reads(stmts[1:], it) {
		return nil, 0, false
	}
	n := ast.New(ast.KindForEach, ast.New(ast.KindBlock, stmts[1:]...))
	n.Inst = elem.ID
	n.Cond = src.Args[0]
	n.Offset, n.Follow, n.Label = loop.Offset, loop.Follow, loop.Label
	n.Hidden = []ir.ID{st.ID}
	return n, i + 2, true
}

// arrayLoop matches
//
//	a = expr; n = a.length; i = 0
//	for (; i < n; i++) { x = a[i]; ... }
func (a *assembler) arrayLoop(list []*ast.Node, i int) (*ast.Node, int, bool) {
	m := a.m
	if i+3 >= len(list) || list[i+3].Kind != ast.KindFor || len(list[i+3].Children) != 3 {
		return nil, 0, false
	}
	var st [3]*ir.Instruction
	for k := range st {
		in, ok := a.op(list[i+k])
		if !ok || in.Op != ir.OpStore {
			return nil, 0, false
		}
		st[k] = in
	}
	arr, length, index := st[0].Local, st[1].Local, st[2].Local
	if l := m.At(st[1].Args[0]); l.Op != ir.OpArrayLength || !a.isLoad(l.Args[0], arr) {
		return nil, 0, false
	}
	if zero := m.At(st[2].Args[0]); zero.Op != ir.OpConst || zero.Value != int32(0) {
		return nil, 0, false
	}
	loop := list[i+3]
	cond := m.At(loop.Cond)
	if cond.Op != ir.OpCond || cond.Oper != ir.Lt || len(cond.Args) != 2 ||
		!a.isLoad(cond.Args[0], index) || !a.isLoad(cond.Args[1], length) {
		return nil, 0, false
	}
	if len(body(loop, 0)) != 0 || len(body(loop, 1)) != 1 {
		return nil, 0, false
	}
	inc, ok := a.op(body(loop, 1)[0])
	if !ok || inc.Op != ir.OpInc || inc.Local != index || inc.Value != int32(1) {
		return nil, 0, false
	}
	stmts := body(loop, 2)
	if len(stmts) == 0 {
		return nil, 0, false
	}
	elem, ok := a.op(stmts[0])
	if !ok || elem.Op != ir.OpStore {
		return nil, 0, false
	}
	if ld := m.At(elem.Args[0]); ld.Op != ir.OpArrayLoad || !a.isLoad(ld.Args[0], arr) || !a.isLoad(ld.Args[1], index) {
		return nil, 0, false
	}
	if a.reads(stmts[1:], index) || a.reads(stmts[1:], arr) {
		return nil, 0, false
	}
	n := ast.New(ast.KindForEach, ast.New(ast.KindBlock, stmts[1:]...))
	n.Inst = elem.ID
	n.Cond = st[0].Args[0]
	n.Offset, n.Follow, n.Label = loop.Offset, loop.Follow, loop.Label
	n.Hidden = []ir.ID{st[0].ID, st[1].ID, st[2].ID, inc.ID}
	return n, i + 4, true
}

// calls reports whether id invokes name on the local in slot.
func (a *assembler) calls(id ir.ID, name string, slot int) bool {
	in := a.m.At(id)
	return in.Op == ir.OpInvoke && in.Name == name && len(in.Args) == 1 && a.isLoad(in.Args[0], slot)
}

func (a *assembler) isLoad(id ir.ID, slot int) bool {
	in := a.m.At(id)
	return in.Op == ir.OpLoad && in.Local == slot
}

// reads reports whether any instruction under nodes touches slot.
func (a *assembler) reads(nodes []*ast.Node, slot int) bool {
	for _, n := range nodes {
		for _, id := range n.Instructions() {
			if a.m.Contains(id, func(in *ir.Instruction) bool {
				switch in.Op {
				case ir.OpLoad, ir.OpStore, ir.OpInc, ir.OpPostInc:
					return in.Local == slot
				}
				return false
			}) {
				return true
			}
		}
	}
	return false
}

// forInit moves the store that initialises a counted loop's variable into
// the loop header.
func (a *assembler) forInit(list []*ast.Node) []*ast.Node {
	for i := 1; i < len(list); i++ {
		loop := list[i]
		if loop.Kind != ast.KindFor || len(loop.Children) != 3 || len(body(loop, 0)) != 0 {
			continue
		}
		st, ok := a.op(list[i-1])
		if !ok || st.Op != ir.OpStore {
			continue
		}
		update := body(loop, 1)
		if len(update) != 1 || a.stepped(update[0]) != st.Local {
			continue
		}
		loop.Children[0].AddChild(list[i-1])
		list = append(list[:i-1:i-1], list[i:]...)
		i--
	}
	return list
}

// stepped returns the local an update statement steps, or -1.
func (a *assembler) stepped(n *ast.Node) int {
	in, ok := a.op(n)
	if !ok {
		return -1
	}
	switch in.Op {
	case ir.OpInc, ir.OpStore:
		return in.Local
	case ir.OpStackStore, ir.OpPop:
		if v := a.m.At(in.Args[0]); v.Op == ir.OpPostInc {
			return v.Local
		}
	}
	return -1
}
