package idiom

import "github.com/dhamidi/jdec/ir"

// Assignment nests a store into the following statement when the stored
// value was duplicated for it, as in x = y = 0 or foo(x = bar()).
type Assignment struct{}

func (Assignment) Name() string { return "assignment" }

func (Assignment) Apply(m *ir.Method, list []ir.ID) ([]ir.ID, bool) {
	changed := false
	for i := 0; i+1 < len(list); i++ {
		v := storedValue(m.At(list[i]))
		if v == ir.NoID {
			continue
		}
		next := list[i+1]
		if m.Count(list[i], v) != 1 || m.Count(next, v) != 1 || references(m, list, v) != 2 {
			continue
		}
		assign := m.Derive(list[i], &ir.Instruction{Op: ir.OpAssign, Args: []ir.ID{list[i]}, Type: m.At(v).Type})
		list = splice(list, i, i+2, m.Replace(next, v, assign))
		changed = true
	}
	return list, changed
}

func storedValue(in *ir.Instruction) ir.ID {
	switch in.Op {
	case ir.OpStore, ir.OpPutStatic:
		return in.Args[0]
	case ir.OpPutField:
		return in.Args[1]
	case ir.OpArrayStore:
		return in.Args[2]
	}
	return ir.NoID
}

// PostIncrement folds a spilled read of a local followed by a unit
// increment of the same local into v++ or v--.
type PostIncrement struct{}

func (PostIncrement) Name() string { return "post-increment" }

func (PostIncrement) Apply(m *ir.Method, list []ir.ID) ([]ir.ID, bool) {
	changed := false
	for i := 0; i+1 < len(list); i++ {
		ss, inc := m.At(list[i]), m.At(list[i+1])
		if ss.Op != ir.OpStackStore || inc.Op != ir.OpInc {
			continue
		}
		load := m.At(ss.Args[0])
		if load.Op != ir.OpLoad || load.Local != inc.Local {
			continue
		}
		if d, _ := inc.Value.(int32); d != 1 && d != -1 {
			continue
		}
		post := m.Derive(list[i+1], &ir.Instruction{Op: ir.OpPostInc, Local: inc.Local, Value: inc.Value, Type: load.Type})
		store := m.Derive(list[i], &ir.Instruction{Op: ir.OpStackStore, Local: ss.Local, Args: []ir.ID{post}, Type: load.Type})
		list = splice(list, i, i+2, store)
		changed = true
	}
	return list, changed
}
