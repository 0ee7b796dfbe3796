package cfg

import (
	"sort"

	"github.com/dhamidi/jdec/ast"
	"github.com/dhamidi/jdec/idiom"
	"github.com/dhamidi/jdec/ir"
)

// rule folds one pattern somewhere in the graph and reports whether it did.
type rule struct {
	name  string
	apply func(g *Graph) bool
}

var (
	gotoRules = []rule{
		{"sequence", (*Graph).sequence},
		{"ternary", (*Graph).diamond},
		{"short-circuit", (*Graph).shortCircuit},
	}
	structureRules = []rule{
		{"if-then", (*Graph).ifThen},
		{"if-else", (*Graph).ifElse},
		{"switch", (*Graph).switchCases},
		{"try", (*Graph).tryCatch},
	}
)

// single reports whether b is entered only from p and never as a handler.
func single(b, p *Block, preds, hpreds map[*Block][]*Block) bool {
	ps := preds[b]
	return len(ps) == 1 && ps[0] == p && len(hpreds[b]) == 0
}

// sequence merges a block into its only predecessor when that predecessor
// has no other successor.
func (g *Graph) sequence() bool {
	preds, hpreds := g.preds(), g.handlerPreds()
	for _, a := range g.Blocks {
		b := a.next()
		if b == nil || b == a || b == g.Entry || !single(b, a, preds, hpreds) {
			continue
		}
		if !sameHandlers(a, b) && !b.quiet() && !a.quiet() {
			continue
		}
		if a.quiet() && !sameHandlers(a, b) {
			a.Exc = b.Exc
		}
		a.Body = g.rerun(append(a.Body, b.Body...))
		a.Term, a.Succs = b.Term, b.Succs
		if b.End > a.End {
			a.End = b.End
		}
		g.remove(b)
		return true
	}
	return false
}

// diamond folds two single-store arms that write the same destination
// into one conditional store.
func (g *Graph) diamond() bool {
	m := g.Method
	preds, hpreds := g.preds(), g.handlerPreds()
	for _, a := range g.Blocks {
		_, t, f, ok := a.branch(m)
		if !ok || t == f || !single(t, a, preds, hpreds) || !single(f, a, preds, hpreds) {
			continue
		}
		if len(t.Body) != 1 || len(f.Body) != 1 || t.Body[0].Kind != ast.KindStatement || f.Body[0].Kind != ast.KindStatement {
			continue
		}
		if f.Term == ir.NoID || m.At(f.Term).Op != ir.OpGoto {
			continue
		}
		join := f.next()
		if join == nil || t.next() != join || !sameHandlers(a, t) || !sameHandlers(a, f) {
			continue
		}
		cond := m.At(a.Term)
		stmts := []ir.ID{a.Term, f.Body[0].Inst, f.Term, t.Body[0].Inst}
		store, ok := idiom.MatchTernary(m, stmts, map[int]int{cond.Target: 1})
		if !ok {
			continue
		}
		g.absorb(stmts[1:2], nil)
		g.absorb(stmts[3:], []ir.ID{store})
		a.Body = g.rerun(append(a.Body, ast.Stmt(store)))
		a.Term = ir.NoID
		a.Succs = []Edge{{To: join, Kind: Fallthrough}}
		g.remove(t, f)
		return true
	}
	return false
}

// shortCircuit joins a condition block with an empty condition block that
// shares one of its arms into a single && or || condition.
func (g *Graph) shortCircuit() bool {
	m := g.Method
	preds, hpreds := g.preds(), g.handlerPreds()
	for _, a := range g.Blocks {
		c, at, af, ok := a.branch(m)
		if !ok {
			continue
		}
		for _, x := range []*Block{af, at} {
			if x == a || len(x.Body) > 0 || !single(x, a, preds, hpreds) {
				continue
			}
			d, xt, xf, ok := x.branch(m)
			if !ok || !sameHandlers(a, x) {
				continue
			}
			var cond ir.ID
			switch {
			case x == af && at == xt:
				cond = m.Logical(ir.OrOr, c, d)
			case x == af && at == xf:
				cond = m.Logical(ir.AndAnd, m.Negate(c), d)
			case x == at && af == xf:
				cond = m.Logical(ir.AndAnd, c, d)
			case x == at && af == xt:
				cond = m.Logical(ir.OrOr, m.Negate(c), d)
			default:
				continue
			}
			a.Term = m.Derive(x.Term, &ir.Instruction{Op: ir.OpIf, Args: []ir.ID{cond}, Target: xt.Start})
			a.Succs = []Edge{{To: xt, Kind: True}, {To: xf, Kind: False}}
			g.remove(x)
			return true
		}
	}
	return false
}

func block(body []*ast.Node) *ast.Node {
	return ast.New(ast.KindBlock, body...)
}

func ifNode(cond ir.ID, then []*ast.Node, alt []*ast.Node) *ast.Node {
	n := ast.New(ast.KindIf, block(then))
	if alt != nil {
		n.AddChild(block(alt))
	}
	n.Cond = cond
	return n
}

// ifThen folds a conditional arm that is entered only from the condition
// and either rejoins the other arm or leaves the method.
func (g *Graph) ifThen() bool {
	m := g.Method
	preds, hpreds := g.preds(), g.handlerPreds()
	for _, a := range g.Blocks {
		c, t, f, ok := a.branch(m)
		if !ok || t == f {
			continue
		}
		if t == a || f == a {
			continue
		}
		fits := func(arm, other *Block) bool {
			return single(arm, a, preds, hpreds) && arm.sequential() &&
				(arm.Terminal() || arm.next() == other) && armHandlers(a, arm)
		}
		var node *ast.Node
		var arm, rest *Block
		switch {
		case fits(t, f) && (jumpOnly(t) || !fits(f, t)):
			node, arm, rest = ifNode(c, t.Body, nil), t, f
		case fits(f, t):
			node, arm, rest = ifNode(m.Negate(c), f.Body, nil), f, t
		default:
			continue
		}
		a.Body = append(a.Body, node)
		a.Term = ir.NoID
		a.Succs = []Edge{{To: rest, Kind: Fallthrough}}
		g.remove(arm)
		return true
	}
	return false
}

// jumpOnly reports whether b is nothing but a pending break or continue.
func jumpOnly(b *Block) bool {
	return b.Terminal() && len(b.Body) == 1 && b.Body[0].Kind == ast.KindGoto
}

func armHandlers(a, arm *Block) bool {
	return sameHandlers(a, arm) || arm.quiet()
}

// ifElse folds two arms entered only from the condition that meet again at
// one block or both leave the method.
func (g *Graph) ifElse() bool {
	m := g.Method
	preds, hpreds := g.preds(), g.handlerPreds()
	for _, a := range g.Blocks {
		c, t, f, ok := a.branch(m)
		if !ok || t == f || t == a || f == a {
			continue
		}
		if !single(t, a, preds, hpreds) || !single(f, a, preds, hpreds) || !t.sequential() || !f.sequential() {
			continue
		}
		if t.next() != f.next() || !armHandlers(a, t) || !armHandlers(a, f) {
			continue
		}
		a.Body = append(a.Body, ifNode(m.Negate(c), f.Body, t.Body))
		a.Term = ir.NoID
		a.Succs = nil
		if join := t.next(); join != nil {
			a.Succs = []Edge{{To: join, Kind: Fallthrough}}
		}
		g.remove(t, f)
		return true
	}
	return false
}

// switchCases folds a switch whose case bodies are single blocks that end
// at a common follow, fall into the next case, or leave the method.
func (g *Graph) switchCases() bool {
	m := g.Method
	preds, hpreds := g.preds(), g.handlerPreds()
	for _, a := range g.Blocks {
		if a.Term == ir.NoID || m.At(a.Term).Op != ir.OpSwitch {
			continue
		}
		if node, follow, cases, ok := g.matchSwitch(a, preds, hpreds); ok {
			a.Body = append(a.Body, node)
			a.Term = ir.NoID
			a.Succs = nil
			if follow != nil {
				a.Succs = []Edge{{To: follow, Kind: Fallthrough}}
			}
			g.remove(cases...)
			return true
		}
	}
	return false
}

func (g *Graph) matchSwitch(a *Block, preds, hpreds map[*Block][]*Block) (*ast.Node, *Block, []*Block, bool) {
	var targets []*Block
	keys := make(map[*Block][]int32)
	isDefault := make(map[*Block]bool)
	for _, e := range a.Succs {
		if e.To == nil || e.To == a {
			return nil, nil, nil, false
		}
		if _, seen := keys[e.To]; !seen {
			targets = append(targets, e.To)
			keys[e.To] = nil
		}
		keys[e.To] = append(keys[e.To], e.Keys...)
		if e.Kind == Default {
			isDefault[e.To] = true
		}
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].Start < targets[j].Start })
	inSwitch := make(map[*Block]bool, len(targets))
	for _, t := range targets {
		inSwitch[t] = true
	}

	// The follow is where case bodies go when they break: a block outside
	// the targets, or a target entered by a case that is not its neighbour.
	candidates := make(map[*Block]bool)
	for i, t := range targets {
		if n := t.next(); n != nil && !inSwitch[n] {
			candidates[n] = true
		}
		for _, p := range preds[t] {
			if p != a && (i == 0 || p != targets[i-1]) && inSwitch[p] {
				candidates[t] = true
			}
		}
	}
	if len(candidates) > 1 {
		return nil, nil, nil, false
	}
	var follow *Block
	for b := range candidates {
		follow = b
	}

	var cases []*Block
	for _, t := range targets {
		if t != follow {
			cases = append(cases, t)
		}
	}
	sw := ast.New(ast.KindSwitch)
	sw.Inst = a.Term
	sw.Flavor = switchFlavor(g.Method, a.Term)
	sw.Offset = a.Start
	if follow != nil {
		sw.Follow = follow.Start
	}
	if follow != nil && len(keys[follow]) > 0 {
		// Keys that jump straight to the follow are empty cases.
		cs := caseNode(keys[follow], false, []*ast.Node{ast.Jump(follow.Start)})
		sw.AddChild(cs)
	}
	for i, c := range cases {
		var prev, next *Block
		if i > 0 {
			prev = cases[i-1]
		}
		if i+1 < len(cases) {
			next = cases[i+1]
		}
		for _, p := range preds[c] {
			if p != a && p != prev {
				return nil, nil, nil, false
			}
		}
		if len(hpreds[c]) > 0 || !c.sequential() || !armHandlers(a, c) {
			return nil, nil, nil, false
		}
		body := append([]*ast.Node(nil), c.Body...)
		switch n := c.next(); {
		case n == nil:
		case n == next:
		case n == follow:
			body = append(body, ast.Jump(follow.Start))
		default:
			return nil, nil, nil, false
		}
		sw.AddChild(caseNode(keys[c], isDefault[c], body))
	}
	if follow != nil && follow == a {
		return nil, nil, nil, false
	}
	return sw, follow, cases, true
}

func caseNode(keys []int32, def bool, body []*ast.Node) *ast.Node {
	sorted := append([]int32(nil), keys...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	n := ast.New(ast.KindCase, body...)
	n.Values = sorted
	n.Default = def
	return n
}

// switchFlavor names the source form a switch key suggests: a lookup in a
// synthetic $SwitchMap$ array for enums, a hashCode call for strings.
func switchFlavor(m *ir.Method, sw ir.ID) string {
	in := m.At(sw)
	if len(in.Args) == 0 {
		return "index"
	}
	key := m.At(in.Args[0])
	switch {
	case key.Op == ir.OpArrayLoad && m.Contains(key.Args[0], func(x *ir.Instruction) bool {
		return x.Op == ir.OpGetStatic && len(x.Name) > 11 && x.Name[:11] == "$SwitchMap$"
	}):
		return "enum"
	case key.Op == ir.OpInvoke && key.Name == "hashCode" && key.Owner == "java/lang/String":
		return "string"
	}
	return "index"
}

// tryCatch folds a protected block together with the handlers of its
// innermost exception table range.
func (g *Graph) tryCatch() bool {
	preds, hpreds := g.preds(), g.handlerPreds()
	for _, t := range g.Blocks {
		if len(outerHandlers(t)) == 0 || !t.sequential() {
			continue
		}
		if g.matchTry(t, preds, hpreds) {
			return true
		}
	}
	return false
}

func (g *Graph) matchTry(t *Block, preds, hpreds map[*Block][]*Block) bool {
	// Innermost range first: the smallest one protecting t.
	exc := outerHandlers(t)
	best := exc[0]
	for _, h := range exc[1:] {
		if h.End-h.Start < best.End-best.Start {
			best = h
		}
	}
	var handlers []*Block
	types := make(map[*Block][]string)
	group := make(map[*Block]bool)
	for _, h := range exc {
		if h.Start != best.Start || h.End != best.End {
			continue
		}
		if !group[h.To] {
			group[h.To] = true
			handlers = append(handlers, h.To)
		}
		types[h.To] = append(types[h.To], h.CatchType)
	}
	for _, h := range handlers {
		if h == t || !g.contains(h) || len(preds[h]) > 0 || !h.sequential() {
			return false
		}
		for _, p := range hpreds[h] {
			if p != t && !group[p] {
				return false
			}
		}
	}
	rest := func(b *Block) []Handler {
		var out []Handler
		for _, h := range outerHandlers(b) {
			if !group[h.To] {
				out = append(out, h)
			}
		}
		return out
	}
	outer := rest(t)
	for _, h := range handlers {
		if !sameRows(rest(h), outer) {
			return false
		}
	}

	// Every arm must reach the same join. An arm whose successor is a
	// private tail outside the range takes the tail along.
	tails := make(map[*Block]*Block)
	join, ok := commonJoin(t, handlers, nil)
	if !ok {
		for _, b := range append([]*Block{t}, handlers...) {
			n := b.next()
			if n == nil || group[n] || n == t || !single(n, b, preds, hpreds) || !n.sequential() || !sameRows(outerHandlers(n), outer) {
				continue
			}
			tails[b] = n
		}
		if join, ok = commonJoin(t, handlers, tails); !ok {
			return false
		}
	}

	try := ast.New(ast.KindTry, block(t.Body))
	try.Offset = best.Start
	for _, h := range handlers {
		body := h.Body
		if tail := tails[h]; tail != nil {
			body = append(append([]*ast.Node(nil), body...), tail.Body...)
		}
		try.AddChild(g.catchNode(types[h], body))
	}
	if join != nil {
		try.Follow = join.Start
	}
	t.Body = []*ast.Node{try}
	var dead []*Block
	if tail := tails[t]; tail != nil {
		t.Body = append(t.Body, tail.Body...)
		dead = append(dead, tail)
	}
	t.Term = ir.NoID
	t.Exc = outer
	t.Succs = nil
	if join != nil {
		t.Succs = []Edge{{To: join, Kind: Fallthrough}}
	}
	for _, h := range handlers {
		dead = append(dead, h)
		if tail := tails[h]; tail != nil {
			dead = append(dead, tail)
		}
	}
	g.remove(dead...)
	return true
}

func sameRows(a, b []Handler) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].To != b[i].To || a[i].CatchType != b[i].CatchType {
			return false
		}
	}
	return true
}

// commonJoin returns the one block every non-terminal arm continues to.
func commonJoin(t *Block, handlers []*Block, tails map[*Block]*Block) (*Block, bool) {
	var join *Block
	for _, b := range append([]*Block{t}, handlers...) {
		if tail := tails[b]; tail != nil {
			b = tail
		}
		if b.Terminal() {
			continue
		}
		n := b.next()
		if join != nil && n != join {
			return nil, false
		}
		join = n
	}
	return join, true
}

// catchNode builds a catch clause. A leading store of the caught exception
// becomes the clause's variable.
func (g *Graph) catchNode(types []string, body []*ast.Node) *ast.Node {
	m := g.Method
	c := ast.New(ast.KindCatch)
	seen := make(map[string]bool)
	for _, t := range types {
		if !seen[t] {
			seen[t] = true
			c.Types = append(c.Types, t)
		}
	}
	if len(body) > 0 && body[0].Kind == ast.KindStatement {
		in := m.At(body[0].Inst)
		if (in.Op == ir.OpStore || in.Op == ir.OpPop) && len(in.Args) == 1 && m.At(in.Args[0]).Op == ir.OpCatch {
			c.Inst = in.ID
			body = body[1:]
		}
	}
	c.AddChild(block(body))
	return c
}
