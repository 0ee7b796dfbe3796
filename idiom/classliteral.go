package idiom

import (
	"strings"

	"github.com/dhamidi/jdec/ir"
)

// ClassLiteral recovers Foo.class from the lazily cached forms older
// compilers emit for class literals. Two layouts are recognized, both
// guarded by a null test of a synthetic static cache field:
//
//	javac:   if (f != null) goto L1; s = class$("Foo"); f = s; goto L2; L1: s = f
//	inline:  s = f; if (s != null) goto L; s; s = Class.forName("Foo"); f = s; goto L; <handler>
//
// The cache field and the class$ helper are recorded as synthetic members.
type ClassLiteral struct {
	ctx *Context
}

func (*ClassLiteral) Name() string { return "class-literal" }

func (p *ClassLiteral) Apply(m *ir.Method, list []ir.ID) ([]ir.ID, bool) {
	changed := false
	refs := m.TargetRefs(list)
	for i := 0; i < len(list); i++ {
		if repl, n, ok := p.helperForm(m, list[i:], refs); ok {
			list = splice(list, i, i+n, repl)
			changed = true
		} else if repl, n, ok := p.inlineForm(m, list[i:]); ok {
			list = splice(list, i, i+n, repl)
			changed = true
		} else {
			continue
		}
		refs = m.TargetRefs(list)
	}
	return list, changed
}

func (p *ClassLiteral) helperForm(m *ir.Method, s []ir.ID, refs map[int]int) (ir.ID, int, bool) {
	if len(s) < 6 {
		return ir.NoID, 0, false
	}
	test, call, put, jump, load, next := m.At(s[0]), m.At(s[1]), m.At(s[2]), m.At(s[3]), m.At(s[4]), m.At(s[5])
	if test.Op != ir.OpIf || jump.Op != ir.OpGoto || refs[test.Target] != 1 {
		return ir.NoID, 0, false
	}
	field, ok := p.guard(m, test)
	if !ok {
		return ir.NoID, 0, false
	}
	if call.Op != ir.OpStackStore || put.Op != ir.OpPutStatic || load.Op != ir.OpStackStore {
		return ir.NoID, 0, false
	}
	slot := call.Local
	inv := m.At(call.Args[0])
	if inv.Op != ir.OpInvoke || inv.Name != "class$" || inv.Desc != "(Ljava/lang/String;)Ljava/lang/Class;" || len(inv.Args) != 1 {
		return ir.NoID, 0, false
	}
	name, ok := constString(m, inv.Args[0])
	if !ok || !sameField(put, field) || !isLoad(m, put.Args[0], slot) {
		return ir.NoID, 0, false
	}
	if load.Local != slot || load.Offset < test.Target || jump.Offset >= test.Target {
		return ir.NoID, 0, false
	}
	if armEntered(m, refs, test.End, jump.Target, test.Target) {
		return ir.NoID, 0, false
	}
	if !sameField(m.At(load.Args[0]), field) || next.Offset < jump.Target || load.Offset >= jump.Target {
		return ir.NoID, 0, false
	}
	repl := p.literal(m, s[0], slot, name)
	markSynthetic(m, field.Name, "class$")
	return repl, 5, true
}

func (p *ClassLiteral) inlineForm(m *ir.Method, s []ir.ID) (ir.ID, int, bool) {
	if len(s) < 8 {
		return ir.NoID, 0, false
	}
	first, test, pop, call, put, jump := m.At(s[0]), m.At(s[1]), m.At(s[2]), m.At(s[3]), m.At(s[4]), m.At(s[5])
	if first.Op != ir.OpStackStore || test.Op != ir.OpIf || jump.Op != ir.OpGoto || test.Target != jump.Target {
		return ir.NoID, 0, false
	}
	slot := first.Local
	field := m.At(first.Args[0])
	if !p.cacheField(field) || !isNullGuard(m, test, slot) {
		return ir.NoID, 0, false
	}
	if pop.Op != ir.OpPop || !isLoad(m, pop.Args[0], slot) {
		return ir.NoID, 0, false
	}
	if call.Op != ir.OpStackStore || call.Local != slot || put.Op != ir.OpPutStatic {
		return ir.NoID, 0, false
	}
	inv := m.At(call.Args[0])
	if inv.Op != ir.OpInvoke || inv.Owner != "java/lang/Class" || inv.Name != "forName" || len(inv.Args) != 1 {
		return ir.NoID, 0, false
	}
	name, ok := constString(m, inv.Args[0])
	if !ok || !sameField(put, field) || !isLoad(m, put.Args[0], slot) {
		return ir.NoID, 0, false
	}

	h := -1
	for k, hd := range m.Handlers {
		if hd.Covers(inv.Offset) && hd.Handler > jump.Offset && hd.Handler < jump.Target {
			h = k
			break
		}
	}
	if h < 0 {
		return ir.NoID, 0, false
	}
	end := -1
	for k := 6; k < len(s); k++ {
		st := m.At(s[k])
		if st.Offset < m.Handlers[h].Handler || st.Offset >= jump.Target {
			break
		}
		if st.Op == ir.OpThrow {
			end = k
			break
		}
	}
	if end < 0 || end+1 >= len(s) || m.At(s[end+1]).Offset < jump.Target {
		return ir.NoID, 0, false
	}

	m.Handlers = append(m.Handlers[:h:h], m.Handlers[h+1:]...)
	markSynthetic(m, field.Name, "")
	return p.literal(m, s[0], slot, name), end + 1, true
}

// guard returns the cache field tested by an "if (f != null)" statement.
func (p *ClassLiteral) guard(m *ir.Method, test *ir.Instruction) (*ir.Instruction, bool) {
	c := m.At(test.Args[0])
	if !c.IsNullTest() || c.Oper != ir.Ne {
		return nil, false
	}
	f := m.At(c.Args[0])
	return f, p.cacheField(f)
}

func isNullGuard(m *ir.Method, test *ir.Instruction, slot int) bool {
	c := m.At(test.Args[0])
	return c.IsNullTest() && c.Oper == ir.Ne && isLoad(m, c.Args[0], slot)
}

func (p *ClassLiteral) cacheField(f *ir.Instruction) bool {
	if f.Op != ir.OpGetStatic || f.Desc != "Ljava/lang/Class;" {
		return false
	}
	if !strings.HasPrefix(f.Name, "class$") && !strings.HasPrefix(f.Name, "array$") {
		return false
	}
	return p.ctx.Class == nil || f.Owner == p.ctx.Class.ClassName()
}

func (p *ClassLiteral) literal(m *ir.Method, at ir.ID, slot int, name string) ir.ID {
	lit := m.Derive(at, &ir.Instruction{
		Op:    ir.OpClassLiteral,
		Owner: strings.ReplaceAll(name, ".", "/"),
		Type:  "Ljava/lang/Class;",
	})
	return m.Derive(at, &ir.Instruction{Op: ir.OpStackStore, Local: slot, Args: []ir.ID{lit}, Type: "Ljava/lang/Class;"})
}

func sameField(a, b *ir.Instruction) bool {
	return a.Owner == b.Owner && a.Name == b.Name && a.Desc == b.Desc
}

func isLoad(m *ir.Method, id ir.ID, slot int) bool {
	in := m.At(id)
	return in.Op == ir.OpStackLoad && in.Local == slot
}

func constString(m *ir.Method, id ir.ID) (string, bool) {
	in := m.At(id)
	if in.Op != ir.OpConst {
		return "", false
	}
	s, ok := in.Value.(string)
	return s, ok
}

func markSynthetic(m *ir.Method, names ...string) {
	for _, n := range names {
		if n == "" {
			continue
		}
		seen := false
		for _, s := range m.Synthetic {
			seen = seen || s == n
		}
		if !seen {
			m.Synthetic = append(m.Synthetic, n)
		}
	}
}
