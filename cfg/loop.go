package cfg

import (
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/dhamidi/jdec/ast"
	"github.com/dhamidi/jdec/ir"
)

// loop is a natural loop: the header, the blocks that reach a back edge
// without passing the header, and where control continues after it.
type loop struct {
	header *Block
	body   *roaring.Bitmap
	follow *Block
}

func (g *Graph) reachable() map[*Block]bool {
	seen := map[*Block]bool{g.Entry: true}
	stack := []*Block{g.Entry}
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		var next []*Block
		for _, e := range b.Succs {
			next = append(next, e.To)
		}
		for _, h := range b.Exc {
			next = append(next, h.To)
		}
		for _, n := range next {
			if n != nil && !seen[n] {
				seen[n] = true
				stack = append(stack, n)
			}
		}
	}
	return seen
}

// loops finds the natural loops of the graph, smallest first, so inner
// loops are structured before the loops around them.
func (g *Graph) loops() []*loop {
	dom := g.Dominators()
	live := g.reachable()
	allPreds := make(map[*Block][]*Block)
	for _, b := range g.Blocks {
		for _, e := range b.Succs {
			if e.To != nil {
				allPreds[e.To] = append(allPreds[e.To], b)
			}
		}
		for _, h := range b.Exc {
			allPreds[h.To] = append(allPreds[h.To], b)
		}
	}
	byHeader := make(map[*Block]*loop)
	var out []*loop
	for _, s := range g.Blocks {
		if !live[s] {
			continue
		}
		for _, e := range s.Succs {
			h := e.To
			if h == nil || !dom.Dominates(h, s) || g.failed[h.ID] {
				continue
			}
			l := byHeader[h]
			if l == nil {
				l = &loop{header: h, body: roaring.BitmapOf(uint32(h.ID))}
				byHeader[h] = l
				out = append(out, l)
			}
			stack := []*Block{s}
			for len(stack) > 0 {
				b := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				if l.body.Contains(uint32(b.ID)) {
					continue
				}
				l.body.Add(uint32(b.ID))
				stack = append(stack, allPreds[b]...)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].body.GetCardinality() < out[j].body.GetCardinality()
	})
	return out
}

// structureLoops folds the innermost loop it can. A loop whose body does
// not reduce is rolled back and left for the residual output.
func (g *Graph) structureLoops() bool {
	for _, l := range g.loops() {
		body := l.body.Clone()
		for _, latch := range []bool{false, true} {
			saved := g.clone()
			l.body = body.Clone()
			if g.structure(l, latch) {
				return true
			}
			*g = *saved
		}
		log.Debugf("loop at %d did not reduce", l.header.Start)
		g.failed[l.header.ID] = true
	}
	return false
}

// structure folds l into its header. With latch set, a shared update block
// in front of the back edge is split off first and becomes the update of a
// counted loop, so continues that jump to it keep their meaning.
func (g *Graph) structure(l *loop, latch bool) bool {
	// Blocks of the saved graph keep their IDs, so membership survives a
	// rollback.
	in := func(b *Block) bool { return b != nil && l.body.Contains(uint32(b.ID)) }
	preds, hpreds := g.preds(), g.handlerPreds()
	h := g.Block(l.header.ID)
	if h == nil {
		return false
	}

	// Entered only through the header.
	for _, b := range g.Blocks {
		if !in(b) || b == h {
			continue
		}
		for _, p := range preds[b] {
			if !in(p) {
				return false
			}
		}
		for _, p := range hpreds[b] {
			if !in(p) {
				return false
			}
		}
	}

	l.follow = g.chooseFollow(l, h, in)
	g.pullIn(l, in, preds, hpreds)

	var update *Block
	if latch {
		if update = g.latch(l, h, in, preds); update == nil {
			return false
		}
	}

	// Cut the back edges and exits into jumps; what is left is acyclic and
	// entered at the header.
	var blocks, jumps []*Block
	for _, b := range g.Blocks {
		if !in(b) || b == update {
			continue
		}
		blocks = append(blocks, b)
		for i, e := range b.Succs {
			if e.To == nil || (e.To != h && e.To != update && in(e.To)) {
				continue
			}
			j := g.newBlock(b.End, b.End)
			j.Body = []*ast.Node{ast.Jump(e.To.Start)}
			j.Exc = b.Exc
			b.Succs[i].To = j
			jumps = append(jumps, j)
		}
	}
	sub := &Graph{
		Method: g.Method,
		Blocks: append(blocks, jumps...),
		Entry:  h,
		idioms: g.idioms,
		live:   g.live,
		failed: g.failed,
		nextID: g.nextID,
	}
	sub.reduce(append(gotoRules, structureRules...), 0)
	g.nextID = sub.nextID
	if len(sub.Blocks) != 1 || !sub.Blocks[0].Terminal() {
		return false
	}

	var node *ast.Node
	if update != nil {
		if node = g.counted(h.Body, update, l.follow); node == nil {
			return false
		}
		blocks = append(blocks, update)
	} else {
		node = g.classify(h.Body, h.Start, l.follow)
	}
	h.Body = []*ast.Node{node}
	h.Term = ir.NoID
	h.Succs = nil
	if l.follow != nil {
		h.Succs = []Edge{{To: l.follow, Kind: Fallthrough}}
	}
	var exc []Handler
	for _, x := range h.Exc {
		if !in(x.To) {
			exc = append(exc, x)
		}
	}
	h.Exc = exc
	var dead []*Block
	for _, b := range blocks {
		if b != h {
			dead = append(dead, b)
		}
	}
	g.remove(dead...)
	return true
}

// chooseFollow picks the exit of a loop: the header's exit for a pre-tested
// loop, a latch's exit for a post-tested one, else the most used exit.
func (g *Graph) chooseFollow(l *loop, h *Block, in func(*Block) bool) *Block {
	for _, e := range h.Succs {
		if e.To != nil && !in(e.To) {
			return e.To
		}
	}
	counts := make(map[*Block]int)
	var latchExit *Block
	for _, b := range g.Blocks {
		if !in(b) {
			continue
		}
		latch := false
		for _, e := range b.Succs {
			if e.To == h {
				latch = true
			}
		}
		for _, e := range b.Succs {
			if e.To != nil && !in(e.To) {
				counts[e.To]++
				if latch && latchExit == nil {
					latchExit = e.To
				}
			}
		}
	}
	if latchExit != nil {
		return latchExit
	}
	var best *Block
	for b, n := range counts {
		if best == nil || n > counts[best] || (n == counts[best] && b.Start < best.Start) {
			best = b
		}
	}
	return best
}

// pullIn adds exit blocks reachable only from inside the loop that either
// leave the method or continue to the follow, so early exits stay inside
// the loop body.
func (g *Graph) pullIn(l *loop, in func(*Block) bool, preds, hpreds map[*Block][]*Block) {
	for changed := true; changed; {
		changed = false
		for _, b := range g.Blocks {
			if in(b) || b == l.follow || b == g.Entry {
				continue
			}
			ps := append(append([]*Block(nil), preds[b]...), hpreds[b]...)
			if len(ps) == 0 {
				continue
			}
			inside := true
			for _, p := range ps {
				inside = inside && in(p)
			}
			if !inside {
				continue
			}
			exits := true
			for _, e := range b.Succs {
				exits = exits && (e.To == nil || in(e.To) || e.To == l.follow)
			}
			if exits {
				l.body.Add(uint32(b.ID))
				changed = true
			}
		}
	}
}

func isJump(n *ast.Node, offset int) bool {
	return n.Kind == ast.KindGoto && n.Offset == offset
}

// jumpIf matches if (c) goto offset with nothing else in the branch.
func jumpIf(n *ast.Node, offset int) (ir.ID, bool) {
	if n.Kind != ast.KindIf || len(n.Children) != 1 {
		return ir.NoID, false
	}
	then := n.Children[0].Children
	if len(then) != 1 || !isJump(then[0], offset) {
		return ir.NoID, false
	}
	return n.Cond, true
}

func jumpsTo(nodes []*ast.Node, offset int) bool {
	found := false
	for _, n := range nodes {
		n.Walk(func(x *ast.Node) bool {
			if isJump(x, offset) {
				found = true
			}
			return !found
		})
	}
	return found
}

// classify picks the loop form for a reduced loop body. Jumps back to the
// header are continues and jumps to the follow are breaks; a form is only
// chosen when it keeps their meaning.
func (g *Graph) classify(body []*ast.Node, header int, follow *Block) *ast.Node {
	m := g.Method
	fs := -1
	if follow != nil {
		fs = follow.Start
	}
	trimmed := body
	if n := len(trimmed); n > 0 && isJump(trimmed[n-1], header) {
		trimmed = trimmed[:n-1]
	}
	wrap := func(kind ast.NodeKind, cond ir.ID, children ...*ast.Node) *ast.Node {
		n := ast.New(kind, children...)
		n.Cond = cond
		n.Offset = header
		n.Follow = fs
		return n
	}

	if fs >= 0 && len(trimmed) > 0 {
		if c, ok := jumpIf(trimmed[0], fs); ok {
			cond := m.Negate(c)
			rest := trimmed[1:]
			if update, ok := g.counter(rest, cond, header); ok {
				init := block(nil)
				return wrap(ast.KindFor, cond, init, block([]*ast.Node{update}), block(rest[:len(rest)-1]))
			}
			return wrap(ast.KindWhile, cond, block(rest))
		}
	}
	if n := len(body); n >= 2 && fs >= 0 {
		prefix := body[:n-2]
		if !jumpsTo(prefix, header) {
			if c, ok := jumpIf(body[n-2], header); ok && isJump(body[n-1], fs) {
				return wrap(ast.KindDoWhile, c, block(prefix))
			}
			if c, ok := jumpIf(body[n-2], fs); ok && isJump(body[n-1], header) {
				return wrap(ast.KindDoWhile, m.Negate(c), block(prefix))
			}
		}
	}
	return wrap(ast.KindWhile, ir.NoID, block(trimmed))
}

// stepped returns the local a statement steps, or -1: an increment, or a
// store of an arithmetic result computed from the same local.
func stepped(m *ir.Method, id ir.ID) int {
	in := m.At(id)
	switch in.Op {
	case ir.OpInc:
		return in.Local
	case ir.OpStore:
		v := m.At(in.Args[0])
		if v.Op == ir.OpBinary && len(v.Args) == 2 {
			if x := m.At(v.Args[0]); x.Op == ir.OpLoad && x.Local == in.Local {
				return in.Local
			}
		}
	}
	return -1
}

func readsLocal(m *ir.Method, cond ir.ID, local int) bool {
	return local >= 0 && m.Contains(cond, func(x *ir.Instruction) bool {
		return x.Op == ir.OpLoad && x.Local == local
	})
}

// counter returns the trailing update of a pre-tested loop body when it
// steps a local the condition reads and no continue would skip it.
func (g *Graph) counter(rest []*ast.Node, cond ir.ID, header int) (*ast.Node, bool) {
	if len(rest) < 2 || jumpsTo(rest, header) {
		return nil, false
	}
	last := rest[len(rest)-1]
	if last.Kind != ast.KindStatement {
		return nil, false
	}
	return last, readsLocal(g.Method, cond, stepped(g.Method, last.Inst))
}

// latch returns the block holding a counted loop's update when several
// paths inside the loop reach it.
func (g *Graph) latch(l *loop, h *Block, in func(*Block) bool, preds map[*Block][]*Block) *Block {
	var u *Block
	for _, b := range g.Blocks {
		for _, e := range b.Succs {
			if in(b) && e.To == h {
				if u != nil && u != b {
					return nil
				}
				u = b
			}
		}
	}
	if u == nil || u == h || u.next() != h || len(preds[u]) < 2 || len(u.Body) != 1 {
		return nil
	}
	if u.Body[0].Kind != ast.KindStatement || stepped(g.Method, u.Body[0].Inst) < 0 {
		return nil
	}
	return u
}

// counted builds the for loop around a body whose continues jump to the
// split-off update block.
func (g *Graph) counted(body []*ast.Node, update *Block, follow *Block) *ast.Node {
	m := g.Method
	if follow == nil || len(body) == 0 {
		return nil
	}
	if n := len(body); isJump(body[n-1], update.Start) {
		body = body[:n-1]
	}
	if len(body) == 0 {
		return nil
	}
	c, ok := jumpIf(body[0], follow.Start)
	if !ok {
		return nil
	}
	cond := m.Negate(c)
	step := update.Body[0]
	if !readsLocal(m, cond, stepped(m, step.Inst)) {
		return nil
	}
	n := ast.New(ast.KindFor, block(nil), block([]*ast.Node{step}), block(body[1:]))
	n.Cond = cond
	n.Offset = update.Start
	n.Follow = follow.Start
	return n
}
