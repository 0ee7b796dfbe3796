package idiom

import (
	"sort"

	"github.com/dhamidi/jdec/ir"
)

// StackCollapse inlines a stack store into the statement right after it
// when that statement is the store's only reader. Control must not be able
// to enter between the two, and nothing the reader evaluates before the
// load may interfere with the stored value.
type StackCollapse struct{}

func (StackCollapse) Name() string { return "stack-collapse" }

func (StackCollapse) Apply(m *ir.Method, list []ir.ID) ([]ir.ID, bool) {
	bounds := m.Boundaries(list)
	changed := false
	for i := len(list) - 2; i >= 0; i-- {
		ss := m.At(list[i])
		if ss.Op != ir.OpStackStore {
			continue
		}
		x := m.At(list[i+1])
		if loads(m, x.ID, ss.Local) != 1 || entered(bounds, ss.Offset, x.Offset) {
			continue
		}
		if readLater(m, list[i+2:], ss.Local) {
			continue
		}
		before, ok := evaluatedBefore(m, x.ID, ss.Local)
		if !ok || treeEffects(m, ss.Args[0]).interferes(before) {
			continue
		}
		load := ir.NoID
		m.Walk(x.ID, func(in *ir.Instruction) bool {
			if in.Op == ir.OpStackLoad && in.Local == ss.Local {
				load = in.ID
			}
			return load == ir.NoID
		})
		list = splice(list, i, i+2, m.Replace(x.ID, load, ss.Args[0]))
		changed = true
	}
	return list, changed
}

func loads(m *ir.Method, root ir.ID, slot int) int {
	n := 0
	m.Walk(root, func(in *ir.Instruction) bool {
		if in.Op == ir.OpStackLoad && in.Local == slot {
			n++
		}
		return true
	})
	return n
}

// entered reports whether a boundary lies in (from, to].
func entered(bounds []int, from, to int) bool {
	k := sort.SearchInts(bounds, from+1)
	return k < len(bounds) && bounds[k] <= to
}

// readLater reports whether slot is read again before it is next stored.
func readLater(m *ir.Method, rest []ir.ID, slot int) bool {
	for _, id := range rest {
		in := m.At(id)
		if m.ReadsSlot(id, slot) {
			return true
		}
		if in.Op == ir.OpStackStore && in.Local == slot {
			return false
		}
	}
	return false
}

// evaluatedBefore collects the effects of the nodes of root that complete
// before the load of slot, in evaluation order.
func evaluatedBefore(m *ir.Method, root ir.ID, slot int) (effects, bool) {
	var e effects
	var visit func(id ir.ID) bool
	visit = func(id ir.ID) bool {
		in := m.At(id)
		if in.Op == ir.OpStackLoad && in.Local == slot {
			return true
		}
		for _, a := range in.Args {
			if visit(a) {
				return true
			}
		}
		e.add(in)
		return false
	}
	return e, visit(root)
}

type effects struct {
	calls  bool
	heap   bool
	reads  map[int]bool
	writes map[int]bool
}

func mark(set *map[int]bool, slot int) {
	if *set == nil {
		*set = make(map[int]bool)
	}
	(*set)[slot] = true
}

func (e *effects) add(in *ir.Instruction) {
	switch in.Op {
	case ir.OpInvoke, ir.OpNewInit, ir.OpAnonNew, ir.OpPutField, ir.OpPutStatic, ir.OpArrayStore:
		e.calls = true
	case ir.OpGetField, ir.OpGetStatic, ir.OpArrayLoad, ir.OpArrayLength:
		e.heap = true
	case ir.OpLoad:
		mark(&e.reads, in.Local)
	case ir.OpStore:
		mark(&e.writes, in.Local)
	case ir.OpPostInc, ir.OpInc:
		mark(&e.reads, in.Local)
		mark(&e.writes, in.Local)
	}
}

func treeEffects(m *ir.Method, root ir.ID) effects {
	var e effects
	m.Walk(root, func(in *ir.Instruction) bool {
		e.add(in)
		return true
	})
	return e
}

// interferes reports whether moving e across o can change either result.
func (e effects) interferes(o effects) bool {
	if e.calls && (o.calls || o.heap || len(o.writes) > 0) {
		return true
	}
	if o.calls && (e.heap || len(e.writes) > 0) {
		return true
	}
	for l := range e.writes {
		if o.reads[l] || o.writes[l] {
			return true
		}
	}
	for l := range o.writes {
		if e.reads[l] {
			return true
		}
	}
	return false
}
