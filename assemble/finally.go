package assemble

import (
	"github.com/dhamidi/jdec/ast"
	"github.com/dhamidi/jdec/ir"
)

// finally recognises a try whose last handler catches anything, runs a
// block F and rethrows, when the normal exits of the try run a copy of F
// too. The handler becomes a finally clause and the inlined copies are
// removed from the tree.
func (a *assembler) finally(list []*ast.Node) []*ast.Node {
	for i, n := range list {
		if n.Kind != ast.KindTry || n.FirstChildOfKind(ast.KindFinally) != nil || len(n.Children) < 2 {
			continue
		}
		last := n.Children[len(n.Children)-1]
		f, hidden, ok := a.finallyHandler(last)
		if !ok {
			continue
		}

		var removed []*ast.Node
		found := false
		rest := list[i+1:]
		if hasPrefix(a.m, rest, f) {
			removed = append(removed, rest[:len(f)]...)
			rest = rest[len(f):]
			found = true
		}
		tryBody := n.Children[0]
		if cut, ok := a.stripExits(tryBody, f); ok {
			removed = append(removed, cut...)
			found = true
		}
		if !found && !a.leaves(tryBody) {
			continue
		}
		for _, c := range n.Children[1 : len(n.Children)-1] {
			if c.Kind != ast.KindCatch {
				continue
			}
			cb := c.Children[0]
			cut, _ := a.stripExits(cb, f)
			removed = append(removed, cut...)
			if k := len(cb.Children) - len(f); k >= 0 && hasPrefix(a.m, cb.Children[k:], f) {
				removed = append(removed, cb.Children[k:]...)
				cb.Children = cb.Children[:k]
			}
		}
		for _, r := range removed {
			hidden = append(hidden, r.Instructions()...)
		}

		fin := ast.New(ast.KindFinally, ast.New(ast.KindBlock, f...))
		fin.Hidden = hidden
		n.Children = append(n.Children[:len(n.Children)-1], fin)
		out := append(append([]*ast.Node(nil), list[:i+1]...), rest...)
		return a.finally(out)
	}
	return list
}

// finallyHandler matches catch (any t) { F; throw t } and returns F.
func (a *assembler) finallyHandler(c *ast.Node) ([]*ast.Node, []ir.ID, bool) {
	if c.Kind != ast.KindCatch || !catchesAny(c) || c.Inst == ir.NoID {
		return nil, nil, false
	}
	st := a.m.At(c.Inst)
	if st.Op != ir.OpStore {
		return nil, nil, false
	}
	stmts := body(c, 0)
	if len(stmts) < 2 {
		return nil, nil, false
	}
	th, ok := a.op(stmts[len(stmts)-1])
	if !ok || th.Op != ir.OpThrow {
		return nil, nil, false
	}
	if v := a.m.At(th.Args[0]); v.Op != ir.OpLoad || v.Local != st.Local {
		return nil, nil, false
	}
	return stmts[:len(stmts)-1], []ir.ID{c.Inst, th.ID}, true
}

// stripExits removes copies of f that run right before a return anywhere
// inside n. A throw gets no copy; the handler runs F for it.
func (a *assembler) stripExits(n *ast.Node, f []*ast.Node) ([]*ast.Node, bool) {
	var removed []*ast.Node
	if n.Kind == ast.KindBlock || n.Kind == ast.KindCase {
		var kept []*ast.Node
		for j := 0; j < len(n.Children); j++ {
			c := n.Children[j]
			if in, ok := a.op(c); ok && in.Op == ir.OpReturn && len(kept) >= len(f) && hasPrefix(a.m, kept[len(kept)-len(f):], f) {
				removed = append(removed, kept[len(kept)-len(f):]...)
				kept = kept[:len(kept)-len(f)]
			}
			kept = append(kept, c)
		}
		n.Children = kept
	}
	for _, c := range n.Children {
		if c.Kind == ast.KindTry || isLoop(c) {
			// Their own exits belong to a different protected range.
			continue
		}
		cut, _ := a.stripExits(c, f)
		removed = append(removed, cut...)
	}
	return removed, len(removed) > 0
}

func (a *assembler) exits(n *ast.Node) bool {
	in, ok := a.op(n)
	return ok && (in.Op == ir.OpReturn || in.Op == ir.OpThrow)
}

// leaves reports whether a block never completes normally.
func (a *assembler) leaves(n *ast.Node) bool {
	if len(n.Children) == 0 {
		return false
	}
	return a.exits(n.Children[len(n.Children)-1])
}

func hasPrefix(m *ir.Method, list, prefix []*ast.Node) bool {
	if len(prefix) == 0 || len(list) < len(prefix) {
		return false
	}
	for i := range prefix {
		if !equalNodes(m, list[i], prefix[i]) {
			return false
		}
	}
	return true
}

// equalNodes compares two trees by structure and by the shape of the
// instructions they refer to, ignoring positions.
func equalNodes(m *ir.Method, a, b *ast.Node) bool {
	if a.Kind != b.Kind || a.Label != b.Label || a.Default != b.Default || a.Flavor != b.Flavor {
		return false
	}
	if a.Kind == ast.KindGoto && a.Offset != b.Offset {
		return false
	}
	if len(a.Values) != len(b.Values) || len(a.Types) != len(b.Types) || len(a.Children) != len(b.Children) {
		return false
	}
	for i := range a.Values {
		if a.Values[i] != b.Values[i] {
			return false
		}
	}
	for i := range a.Types {
		if a.Types[i] != b.Types[i] {
			return false
		}
	}
	if !m.Equal(a.Inst, b.Inst) || !m.Equal(a.Cond, b.Cond) {
		return false
	}
	for i := range a.Children {
		if !equalNodes(m, a.Children[i], b.Children[i]) {
			return false
		}
	}
	return true
}
