package assemble

import (
	"github.com/dhamidi/jdec/ast"
	"github.com/dhamidi/jdec/ir"
)

// synchronized folds the monitor protocol javac emits for a synchronized
// statement:
//
//	t = lock; monitorenter(t)
//	try { ...; monitorexit(t) } catch (any e) { monitorexit(t); throw e }
//
// into one node. The monitor statements are kept as hidden instructions.
func (a *assembler) synchronized(list []*ast.Node) []*ast.Node {
	for i := 0; i < len(list); i++ {
		lock, slot, hidden, next, ok := a.monitorEnter(list, i)
		if !ok || next >= len(list) || list[next].Kind != ast.KindTry {
			continue
		}
		try := list[next]
		extra, ok := a.monitorHandler(try, slot)
		if !ok {
			continue
		}
		hidden = append(hidden, extra...)
		inner := try.Children[0]
		hidden = append(hidden, a.dropExits(inner, slot)...)

		sync := ast.New(ast.KindSynchronized, inner)
		sync.Cond = lock
		sync.Hidden = hidden
		log.Debugf("synchronized block at %d", a.m.At(hidden[0]).Offset)

		out := append([]*ast.Node(nil), list[:i]...)
		out = append(out, sync)
		list = append(out, list[next+1:]...)
	}
	return list
}

// monitorEnter matches the start of a synchronized statement at list[i],
// either as one nested assignment or as a store followed by the enter.
func (a *assembler) monitorEnter(list []*ast.Node, i int) (lock ir.ID, slot int, hidden []ir.ID, next int, ok bool) {
	m := a.m
	first, ok := a.op(list[i])
	if !ok {
		return ir.NoID, 0, nil, 0, false
	}
	if first.Op == ir.OpMonitorEnter && len(first.Args) == 1 {
		asg := m.At(first.Args[0])
		if asg.Op != ir.OpAssign {
			return ir.NoID, 0, nil, 0, false
		}
		st := m.At(asg.Args[0])
		if st.Op != ir.OpStore {
			return ir.NoID, 0, nil, 0, false
		}
		return st.Args[0], st.Local, []ir.ID{first.ID}, i + 1, true
	}
	if first.Op != ir.OpStore || i+1 >= len(list) {
		return ir.NoID, 0, nil, 0, false
	}
	enter, ok := a.op(list[i+1])
	if !ok || enter.Op != ir.OpMonitorEnter || len(enter.Args) != 1 {
		return ir.NoID, 0, nil, 0, false
	}
	arg := m.At(enter.Args[0])
	if !(arg.Op == ir.OpLoad && arg.Local == first.Local) && !m.Equal(enter.Args[0], first.Args[0]) {
		return ir.NoID, 0, nil, 0, false
	}
	return first.Args[0], first.Local, []ir.ID{first.ID, enter.ID}, i + 2, true
}

// monitorHandler checks that try has exactly one catch, a catch-all that
// releases the monitor in slot and rethrows.
func (a *assembler) monitorHandler(try *ast.Node, slot int) ([]ir.ID, bool) {
	if len(try.Children) != 2 || try.Children[1].Kind != ast.KindCatch {
		return nil, false
	}
	c := try.Children[1]
	if !catchesAny(c) {
		return nil, false
	}
	stmts := body(c, 0)
	if len(stmts) != 2 || !a.isExit(stmts[0], slot) {
		return nil, false
	}
	th, ok := a.op(stmts[1])
	if !ok || th.Op != ir.OpThrow {
		return nil, false
	}
	hidden := []ir.ID{stmts[0].Inst, th.ID}
	if c.Inst != ir.NoID {
		hidden = append([]ir.ID{c.Inst}, hidden...)
	}
	return hidden, true
}

func catchesAny(c *ast.Node) bool {
	return len(c.Types) == 1 && c.Types[0] == ""
}

func (a *assembler) isExit(n *ast.Node, slot int) bool {
	in, ok := a.op(n)
	if !ok || in.Op != ir.OpMonitorExit || len(in.Args) != 1 {
		return false
	}
	arg := a.m.At(in.Args[0])
	return arg.Op == ir.OpLoad && arg.Local == slot
}

// dropExits removes every release of the monitor in slot below n and
// returns the removed statements.
func (a *assembler) dropExits(n *ast.Node, slot int) []ir.ID {
	var out []ir.ID
	kept := n.Children[:0]
	for _, c := range n.Children {
		if a.isExit(c, slot) {
			out = append(out, c.Inst)
			continue
		}
		out = append(out, a.dropExits(c, slot)...)
		kept = append(kept, c)
	}
	n.Children = kept
	return out
}
