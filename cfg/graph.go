// Package cfg builds the basic block graph of a method from its statement
// list and reduces it, rule by rule, into a structured ast tree.
package cfg

import (
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/tliron/commonlog"

	"github.com/dhamidi/jdec/ast"
	"github.com/dhamidi/jdec/idiom"
	"github.com/dhamidi/jdec/ir"
)

var log = commonlog.GetLogger("jdec.cfg")

type EdgeKind int

const (
	Fallthrough EdgeKind = iota
	Jump
	True
	False
	Case
	Default
	Jsr
)

var edgeKindNames = map[EdgeKind]string{
	Fallthrough: "fallthrough",
	Jump:        "jump",
	True:        "true",
	False:       "false",
	Case:        "case",
	Default:     "default",
	Jsr:         "jsr",
}

func (k EdgeKind) String() string {
	if name, ok := edgeKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Edge is a normal control transfer. Case edges carry the keys that select
// them.
type Edge struct {
	To   *Block
	Kind EdgeKind
	Keys []int32
}

// Handler is an exception edge: the handler block and the table row that
// protects the source block.
type Handler struct {
	To         *Block
	CatchType  string
	Start, End int
}

// Block is a maximal run of statements entered only at its start. Once the
// reducer folds structure into a block, Body holds the resulting ast nodes.
// Term is the If, Goto, Switch or Jsr that ends the block, or NoID when the
// block falls through or ends in a return or throw.
type Block struct {
	ID    int
	Start int
	End   int
	Body  []*ast.Node
	Term  ir.ID
	Succs []Edge
	Exc   []Handler
}

func (b *Block) String() string {
	return fmt.Sprintf("B%d[%d,%d)", b.ID, b.Start, b.End)
}

// Terminal reports whether control never leaves the block normally.
func (b *Block) Terminal() bool {
	return len(b.Succs) == 0
}

// next returns the only successor of a block that ends without a decision.
func (b *Block) next() *Block {
	if len(b.Succs) != 1 || b.Succs[0].Kind == Jsr {
		return nil
	}
	return b.Succs[0].To
}

// sequential reports whether the block ends without a decision: it falls
// through, jumps, or leaves the method.
func (b *Block) sequential() bool {
	return b.Terminal() || b.next() != nil
}

// branch returns the condition and arms of a block ending in an If.
func (b *Block) branch(m *ir.Method) (cond ir.ID, t, f *Block, ok bool) {
	if b.Term == ir.NoID || m.At(b.Term).Op != ir.OpIf || len(b.Succs) != 2 {
		return ir.NoID, nil, nil, false
	}
	return m.At(b.Term).Args[0], b.Succs[0].To, b.Succs[1].To, true
}

// quiet reports whether the block can neither throw nor do anything but
// pass control on.
func (b *Block) quiet() bool {
	if len(b.Body) > 0 || len(b.Succs) != 1 {
		return false
	}
	return b.Succs[0].Kind == Fallthrough || b.Succs[0].Kind == Jump
}

// Graph is the block graph of one method. Blocks holds the live blocks in
// start order; the reducer removes blocks as it folds them.
type Graph struct {
	Method *ir.Method
	Blocks []*Block
	Entry  *Block

	idioms *idiom.Pipeline
	// live tracks the statements the tree must account for; idiom re-runs
	// on merged blocks replace some of them.
	live   map[ir.ID]bool
	failed map[int]bool
	nextID int
}

// Build splits list into blocks. Every offset of the method belongs to
// exactly one block.
func Build(m *ir.Method, list []ir.ID) *Graph {
	leaders := roaring.New()
	leaders.Add(0)
	for _, id := range list {
		in := m.At(id)
		for _, t := range in.BranchTargets() {
			leaders.Add(uint32(t))
		}
		if (in.IsBranch() || in.IsTerminal()) && in.End < m.CodeLen {
			leaders.Add(uint32(in.End))
		}
	}
	for _, h := range m.Handlers {
		leaders.AddMany([]uint32{uint32(h.Start), uint32(h.End), uint32(h.Handler)})
	}

	g := &Graph{Method: m, live: make(map[ir.ID]bool), failed: make(map[int]bool)}
	starts := leaders.ToArray()
	byStart := make(map[int]*Block, len(starts))
	for i, s := range starts {
		if int(s) >= m.CodeLen && m.CodeLen > 0 {
			break
		}
		end := m.CodeLen
		if i+1 < len(starts) && int(starts[i+1]) < end {
			end = int(starts[i+1])
		}
		b := g.newBlock(int(s), end)
		g.Blocks = append(g.Blocks, b)
		byStart[b.Start] = b
	}
	if len(g.Blocks) == 0 {
		g.Blocks = append(g.Blocks, g.newBlock(0, m.CodeLen))
		byStart[0] = g.Blocks[0]
	}
	g.Entry = g.Blocks[0]

	owner := func(offset int) *Block {
		k := sort.Search(len(g.Blocks), func(i int) bool { return g.Blocks[i].Start > offset })
		if k == 0 {
			return g.Blocks[0]
		}
		return g.Blocks[k-1]
	}
	for _, id := range list {
		in := m.At(id)
		b := owner(in.Offset)
		switch in.Op {
		case ir.OpIf, ir.OpGoto, ir.OpSwitch, ir.OpJsr:
			b.Term = id
		default:
			b.Body = append(b.Body, ast.Stmt(id))
			g.live[id] = true
		}
	}

	for i, b := range g.Blocks {
		var follow *Block
		if i+1 < len(g.Blocks) {
			follow = g.Blocks[i+1]
		}
		b.Succs = g.successors(b, follow, byStart)
		for _, h := range m.Handlers {
			if h.Start < b.End && b.Start < h.End {
				if to := byStart[h.Handler]; to != nil {
					b.Exc = append(b.Exc, Handler{To: to, CatchType: h.CatchType, Start: h.Start, End: h.End})
				}
			}
		}
	}
	log.Debugf("built %d blocks from %d statements", len(g.Blocks), len(list))
	return g
}

func (g *Graph) successors(b, follow *Block, byStart map[int]*Block) []Edge {
	m := g.Method
	edge := func(off int, kind EdgeKind) Edge {
		return Edge{To: byStart[off], Kind: kind}
	}
	if b.Term != ir.NoID {
		in := m.At(b.Term)
		switch in.Op {
		case ir.OpIf:
			return []Edge{edge(in.Target, True), {To: follow, Kind: False}}
		case ir.OpGoto:
			return []Edge{edge(in.Target, Jump)}
		case ir.OpJsr:
			return []Edge{edge(in.Target, Jsr), {To: follow, Kind: Fallthrough}}
		case ir.OpSwitch:
			var out []Edge
			index := make(map[int]int)
			for i, t := range in.Targets {
				if k, ok := index[t]; ok {
					out[k].Keys = append(out[k].Keys, in.Keys[i])
					continue
				}
				index[t] = len(out)
				out = append(out, Edge{To: byStart[t], Kind: Case, Keys: []int32{in.Keys[i]}})
			}
			return append(out, edge(in.Default, Default))
		}
	}
	if n := len(b.Body); n > 0 && m.At(b.Body[n-1].Inst).IsTerminal() {
		return nil
	}
	if follow == nil {
		return nil
	}
	return []Edge{{To: follow, Kind: Fallthrough}}
}

func (g *Graph) newBlock(start, end int) *Block {
	b := &Block{ID: g.nextID, Start: start, End: end, Term: ir.NoID}
	g.nextID++
	return b
}

// Reduced reports whether the whole method folded into one block.
func (g *Graph) Reduced() bool {
	return len(g.Blocks) == 1 && g.Blocks[0].Terminal()
}

// Statements returns the statements the final tree has to contain, in
// arena order.
func (g *Graph) Statements() []ir.ID {
	out := make([]ir.ID, 0, len(g.live))
	for id := range g.live {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (g *Graph) Block(id int) *Block {
	for _, b := range g.Blocks {
		if b.ID == id {
			return b
		}
	}
	return nil
}

// preds maps each block to its distinct normal predecessors.
func (g *Graph) preds() map[*Block][]*Block {
	out := make(map[*Block][]*Block, len(g.Blocks))
	for _, b := range g.Blocks {
		seen := make(map[*Block]bool)
		for _, e := range b.Succs {
			if e.To != nil && !seen[e.To] {
				seen[e.To] = true
				out[e.To] = append(out[e.To], b)
			}
		}
	}
	return out
}

// handlerPreds maps each handler block to the blocks it protects.
func (g *Graph) handlerPreds() map[*Block][]*Block {
	out := make(map[*Block][]*Block)
	for _, b := range g.Blocks {
		seen := make(map[*Block]bool)
		for _, h := range b.Exc {
			if !seen[h.To] {
				seen[h.To] = true
				out[h.To] = append(out[h.To], b)
			}
		}
	}
	return out
}

func (g *Graph) contains(b *Block) bool {
	for _, x := range g.Blocks {
		if x == b {
			return true
		}
	}
	return false
}

func (g *Graph) remove(dead ...*Block) {
	drop := make(map[*Block]bool, len(dead))
	for _, b := range dead {
		drop[b] = true
	}
	kept := g.Blocks[:0]
	for _, b := range g.Blocks {
		if !drop[b] {
			kept = append(kept, b)
		}
	}
	g.Blocks = kept
}

// sameHandlers compares the exception edges of two blocks, ignoring edges
// from a handler into itself.
func sameHandlers(a, b *Block) bool {
	x, y := outerHandlers(a), outerHandlers(b)
	if len(x) != len(y) {
		return false
	}
	for i := range x {
		if x[i].To != y[i].To || x[i].CatchType != y[i].CatchType {
			return false
		}
	}
	return true
}

func outerHandlers(b *Block) []Handler {
	var out []Handler
	for _, h := range b.Exc {
		if h.To != b {
			out = append(out, h)
		}
	}
	return out
}

// absorb records that a rewrite replaced the statements in old by those in
// repl.
func (g *Graph) absorb(old, repl []ir.ID) {
	for _, id := range old {
		delete(g.live, id)
	}
	for _, id := range repl {
		g.live[id] = true
	}
}

// rerun applies the idiom pipeline to each run of plain statements in
// body.
func (g *Graph) rerun(body []*ast.Node) []*ast.Node {
	if g.idioms == nil {
		return body
	}
	var out []*ast.Node
	var run []ir.ID
	flush := func() {
		if len(run) > 1 {
			rewritten := g.idioms.Run(g.Method, run)
			g.absorb(run, rewritten)
			run = rewritten
		}
		for _, id := range run {
			out = append(out, ast.Stmt(id))
		}
		run = nil
	}
	for _, n := range body {
		if n.Kind == ast.KindStatement {
			run = append(run, n.Inst)
			continue
		}
		flush()
		out = append(out, n)
	}
	flush()
	return out
}

// clone copies the graph so a failed reduction can be rolled back. Nodes
// are shared; rules never mutate a node once built.
func (g *Graph) clone() *Graph {
	remap := make(map[*Block]*Block, len(g.Blocks))
	for _, b := range g.Blocks {
		cp := *b
		cp.Body = append([]*ast.Node(nil), b.Body...)
		remap[b] = &cp
	}
	to := func(b *Block) *Block {
		if nb, ok := remap[b]; ok {
			return nb
		}
		return b
	}
	ng := *g
	ng.Blocks = make([]*Block, len(g.Blocks))
	for i, b := range g.Blocks {
		nb := remap[b]
		nb.Succs = make([]Edge, len(b.Succs))
		for k, e := range b.Succs {
			e.To = to(e.To)
			nb.Succs[k] = e
		}
		nb.Exc = make([]Handler, len(b.Exc))
		for k, h := range b.Exc {
			h.To = to(h.To)
			nb.Exc[k] = h
		}
		ng.Blocks[i] = nb
	}
	ng.Entry = to(g.Entry)
	ng.live = make(map[ir.ID]bool, len(g.live))
	for id := range g.live {
		ng.live[id] = true
	}
	ng.failed = make(map[int]bool, len(g.failed))
	for id := range g.failed {
		ng.failed[id] = true
	}
	return &ng
}
