package idiom

import "github.com/dhamidi/jdec/ir"

// Ternary folds
//
//	if (c) goto L1; d = A; goto L2; L1: d = B; L2: ...
//
// into d = !c ? A : B. The else arm may end in its own goto L2, which is
// kept.
type Ternary struct{}

func (Ternary) Name() string { return "ternary" }

func (Ternary) Apply(m *ir.Method, list []ir.ID) ([]ir.ID, bool) {
	changed := false
	refs := m.TargetRefs(list)
	for i := 0; i+4 < len(list); i++ {
		store, ok := MatchTernary(m, list[i:i+4], refs)
		if !ok {
			continue
		}
		join := m.At(list[i+2]).Target
		alt := m.At(list[i+3])
		next := m.At(list[i+4])
		switch {
		case next.Op == ir.OpGoto && next.Target == join:
		case alt.Offset < join && next.Offset >= join:
		default:
			continue
		}
		if crossesHandler(m, m.At(list[i]).Offset, alt.Offset) {
			continue
		}
		list = splice(list, i, i+4, store)
		refs = m.TargetRefs(list)
		changed = true
	}
	return list, changed
}

// MatchTernary checks the four statements If, store A, Goto, store B at the
// start of stmts and returns the merged store. refs counts branch
// references per offset over the enclosing list; the else target must be
// referenced only by the If, and nothing else may branch into either arm.
func MatchTernary(m *ir.Method, stmts []ir.ID, refs map[int]int) (ir.ID, bool) {
	if len(stmts) < 4 {
		return ir.NoID, false
	}
	cond, a, jump, b := m.At(stmts[0]), m.At(stmts[1]), m.At(stmts[2]), m.At(stmts[3])
	if cond.Op != ir.OpIf || jump.Op != ir.OpGoto {
		return ir.NoID, false
	}
	if jump.Offset >= cond.Target || b.Offset < cond.Target || refs[cond.Target] != 1 {
		return ir.NoID, false
	}
	if jump.Target <= cond.Target || armEntered(m, refs, cond.End, jump.Target, cond.Target) {
		return ir.NoID, false
	}
	if !sameDestination(a, b) {
		return ir.NoID, false
	}

	va, vb := m.At(a.Args[0]), m.At(b.Args[0])
	typ := va.Type
	if typ == "" || (va.Op == ir.OpConst && va.Value == nil) {
		typ = vb.Type
	}
	tern := m.Derive(stmts[0], &ir.Instruction{
		Op:   ir.OpTernary,
		Args: []ir.ID{m.Negate(cond.Args[0]), va.ID, vb.ID},
		Type: typ,
	})
	return m.Derive(stmts[0], &ir.Instruction{Op: a.Op, Local: a.Local, Args: []ir.ID{tern}, Type: typ}), true
}

func sameDestination(a, b *ir.Instruction) bool {
	if a.Op != b.Op || a.Local != b.Local {
		return false
	}
	return a.Op == ir.OpStore || a.Op == ir.OpStackStore
}
