package cfg

import (
	"fmt"
	"sort"

	"github.com/dhamidi/jdec/ast"
	"github.com/dhamidi/jdec/idiom"
	"github.com/dhamidi/jdec/ir"
)

// Stage selects how far Snapshot reduces a graph.
type Stage int

const (
	// StageRaw is the graph as built.
	StageRaw Stage = iota
	// StageGoto merges sequences and folds ternaries and short circuits.
	StageGoto
	// StageLoop additionally structures loops.
	StageLoop
	// StagePre runs the pre-reduction heuristics before StageLoop.
	StagePre
	// StageFull applies every rule.
	StageFull
)

var stageNames = map[Stage]string{
	StageRaw:  "raw",
	StageGoto: "goto",
	StageLoop: "loop",
	StagePre:  "pre",
	StageFull: "full",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "unknown"
}

func ParseStage(name string) (Stage, error) {
	for s, n := range stageNames {
		if n == name {
			return s, nil
		}
	}
	return StageRaw, fmt.Errorf("unknown stage %q", name)
}

// Options tune the reducer.
type Options struct {
	// MaxRounds bounds the outer fixed point; 0 means 64.
	MaxRounds int
	// PreReduce enables the pre-reduction heuristics at StageFull.
	PreReduce bool
	// Idioms re-runs on statement runs joined by a merge; nil disables it.
	Idioms *idiom.Pipeline
}

const defaultRounds = 64

// Reduce builds the graph of list and reduces it as far as stage allows.
// The graph is returned even when it did not reduce to a single block.
func Reduce(m *ir.Method, list []ir.ID, stage Stage, opts Options) *Graph {
	g := Build(m, list)
	g.idioms = opts.Idioms
	rounds := opts.MaxRounds
	if rounds <= 0 {
		rounds = defaultRounds
	}
	if stage == StageRaw {
		return g
	}
	pre := stage == StagePre || (stage == StageFull && opts.PreReduce)
	all := append(append([]rule(nil), gotoRules...), structureRules...)
	for round := 0; round < rounds; round++ {
		changed := false
		if pre && g.preReduce() {
			changed = true
		}
		if g.reduce(gotoRules, rounds) {
			changed = true
		}
		// Loops go before the conditional rules so that a loop exit is not
		// folded into an if at the top level.
		for stage >= StageLoop && g.structureLoops() {
			changed = true
			g.reduce(gotoRules, rounds)
		}
		if stage == StageFull && g.reduce(all, rounds) {
			changed = true
		}
		if !changed {
			break
		}
	}
	log.Debugf("%s: %d blocks left", stage, len(g.Blocks))
	return g
}

// Snapshot reduces the method's own statement list up to stage, without
// re-running idioms.
func Snapshot(m *ir.Method, stage Stage) *Graph {
	return Reduce(m, m.List, stage, Options{})
}

// reduce applies rules until none fires. Each application removes a block
// or a decision, so the loop terminates; limit guards against a rule that
// misreports progress.
func (g *Graph) reduce(rules []rule, limit int) bool {
	if limit <= 0 {
		limit = defaultRounds
	}
	budget := limit * (len(g.Blocks) + 1)
	progress := false
	for budget > 0 {
		fired := false
		for _, r := range rules {
			if r.apply(g) {
				log.Debugf("rule %s fired, %d blocks", r.name, len(g.Blocks))
				fired, progress = true, true
				budget--
				break
			}
		}
		if !fired {
			return progress
		}
	}
	log.Warningf("reduction stopped after its step budget")
	return progress
}

// preReduce forwards empty jump blocks to their target and folds a
// condition whose arms coincide.
func (g *Graph) preReduce() bool {
	m := g.Method
	changed := false
	hpreds := g.handlerPreds()
	for _, b := range g.Blocks {
		if b == g.Entry || !b.quiet() || len(hpreds[b]) > 0 {
			continue
		}
		to := b.next()
		if to == b {
			continue
		}
		for _, p := range g.Blocks {
			for i, e := range p.Succs {
				if e.To == b && p != b {
					p.Succs[i].To = to
					changed = true
				}
			}
		}
	}
	for _, b := range g.Blocks {
		c, t, f, ok := b.branch(m)
		if ok && t == f {
			b.Body = append(b.Body, ifNode(c, nil, nil))
			b.Term = ir.NoID
			b.Succs = []Edge{{To: t, Kind: Fallthrough}}
			changed = true
		}
	}
	if changed {
		g.prune()
	}
	return changed
}

// prune drops empty blocks nothing reaches any more.
func (g *Graph) prune() {
	live := g.reachable()
	var dead []*Block
	for _, b := range g.Blocks {
		if !live[b] && len(b.Body) == 0 {
			dead = append(dead, b)
		}
	}
	g.remove(dead...)
}

// Tree renders the graph as one block node. A fully reduced graph yields
// its structured body; otherwise every block is emitted in start order
// behind a label, with its branches as gotos.
func (g *Graph) Tree() *ast.Node {
	m := g.Method
	if g.Reduced() {
		return block(g.Blocks[0].Body)
	}
	root := ast.New(ast.KindBlock)
	order := append([]*Block(nil), g.Blocks...)
	sort.SliceStable(order, func(i, j int) bool { return order[i].Start < order[j].Start })
	for i, b := range order {
		label := ast.New(ast.KindLabel)
		label.Label = fmt.Sprintf("L%d", b.Start)
		label.Offset = b.Start
		root.AddChild(label)
		for _, n := range b.Body {
			root.AddChild(n)
		}
		var next *Block
		if i+1 < len(order) {
			next = order[i+1]
		}
		if b.Term != ir.NoID && m.At(b.Term).Op == ir.OpSwitch {
			sw := ast.New(ast.KindSwitch)
			sw.Inst = b.Term
			sw.Flavor = switchFlavor(m, b.Term)
			for _, e := range b.Succs {
				sw.AddChild(caseNode(e.Keys, e.Kind == Default, []*ast.Node{ast.Jump(e.To.Start)}))
			}
			root.AddChild(sw)
			continue
		}
		if c, t, f, ok := b.branch(m); ok {
			root.AddChild(ifNode(c, []*ast.Node{ast.Jump(t.Start)}, nil))
			if f != nil && f != next {
				root.AddChild(ast.Jump(f.Start))
			}
			continue
		}
		if b.Term != ir.NoID && m.At(b.Term).Op == ir.OpJsr {
			root.AddChild(ast.Stmt(b.Term))
			g.live[b.Term] = true
		}
		for _, e := range b.Succs {
			if e.Kind != Jsr && e.To != nil && e.To != next {
				root.AddChild(ast.Jump(e.To.Start))
			}
		}
	}
	return root
}
