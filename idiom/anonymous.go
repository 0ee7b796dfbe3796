package idiom

import (
	"strings"

	"github.com/dhamidi/jdec/ir"
)

// AnonymousNew marks constructions of anonymous classes. The inner class,
// when it can be loaded, tells which constructor arguments are the outer
// instance and which are captured variables.
type AnonymousNew struct {
	ctx *Context
}

func (*AnonymousNew) Name() string { return "anonymous-new" }

func (p *AnonymousNew) Apply(m *ir.Method, list []ir.ID) ([]ir.ID, bool) {
	if p.ctx.Class == nil && p.ctx.Lookup == nil {
		return list, false
	}
	var out []ir.ID
	for i, id := range list {
		var found []ir.ID
		m.Walk(id, func(in *ir.Instruction) bool {
			if in.Op == ir.OpNewInit && p.anonymous(in.Owner) {
				found = append(found, in.ID)
			}
			return true
		})
		if len(found) == 0 {
			continue
		}
		if out == nil {
			out = append([]ir.ID(nil), list...)
		}
		for _, n := range found {
			id = m.Replace(id, n, p.rewrite(m, n))
		}
		out[i] = id
	}
	if out == nil {
		return list, false
	}
	return out, true
}

func (p *AnonymousNew) anonymous(name string) bool {
	if p.ctx.Class != nil {
		if ic, ok := p.ctx.Class.InnerClass(name); ok {
			return ic.IsAnonymous()
		}
	}
	if p.ctx.Lookup == nil {
		return false
	}
	cf, err := p.ctx.Lookup(name)
	if err != nil {
		return false
	}
	ic, ok := cf.InnerClass(name)
	return ok && ic.IsAnonymous()
}

func (p *AnonymousNew) rewrite(m *ir.Method, id ir.ID) ir.ID {
	in := m.At(id)
	anon := &ir.AnonClass{}
	var inner bool
	if p.ctx.Lookup != nil {
		if cf, err := p.ctx.Lookup(in.Owner); err == nil {
			inner = true
			anon.OuterThis = cf.GetField("this$0") != nil
			for _, f := range cf.FieldsWithPrefix("val$") {
				anon.Captured = append(anon.Captured, strings.TrimPrefix(f.Name(cf.ConstantPool), "val$"))
			}
		}
	}
	if !inner && !m.Static && len(in.Args) > 0 {
		first := m.At(in.Args[0])
		anon.OuterThis = first.Op == ir.OpLoad && first.Local == 0
	}
	cp := *in
	cp.Op = ir.OpAnonNew
	cp.Value = anon
	return m.Add(&cp)
}
