package cfg

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zboralski/lattice"
	"github.com/zboralski/lattice/render"

	"github.com/dhamidi/jdec/ast"
	"github.com/dhamidi/jdec/ir"
)

// Lattice converts the graph for rendering. Block Start and End are
// bytecode offsets; calls list the methods each block invokes, and
// exception edges appear as successors labelled with the caught type.
func (g *Graph) Lattice(name string) *lattice.FuncCFG {
	m := g.Method
	fn := &lattice.FuncCFG{Name: name}
	for _, b := range g.Blocks {
		lb := &lattice.BasicBlock{
			ID:    b.ID,
			Start: b.Start,
			End:   b.End,
			Term:  b.Terminal(),
		}
		for _, e := range b.Succs {
			if e.To == nil {
				continue
			}
			lb.Succs = append(lb.Succs, lattice.Successor{BlockID: e.To.ID, Cond: edgeLabel(e)})
		}
		for _, h := range outerHandlers(b) {
			catch := h.CatchType
			if catch == "" {
				catch = "any"
			}
			lb.Succs = append(lb.Succs, lattice.Successor{BlockID: h.To.ID, Cond: "catch " + catch})
		}
		for _, id := range g.blockInstructions(b) {
			m.Walk(id, func(in *ir.Instruction) bool {
				if in.Op == ir.OpInvoke || in.Op == ir.OpNewInit {
					lb.Calls = append(lb.Calls, lattice.CallSite{
						Offset: in.Offset,
						Callee: in.Owner + "." + in.Name,
					})
				}
				return true
			})
		}
		fn.Blocks = append(fn.Blocks, lb)
	}
	return fn
}

func edgeLabel(e Edge) string {
	if e.Kind != Case {
		return e.Kind.String()
	}
	keys := make([]string, len(e.Keys))
	for i, k := range e.Keys {
		keys[i] = fmt.Sprint(k)
	}
	return "case " + strings.Join(keys, ",")
}

func (g *Graph) blockInstructions(b *Block) []ir.ID {
	var out []ir.ID
	for _, n := range b.Body {
		n.Walk(func(x *ast.Node) bool {
			if x.Cond != ir.NoID {
				out = append(out, x.Cond)
			}
			if x.Inst != ir.NoID {
				out = append(out, x.Inst)
			}
			return true
		})
	}
	if b.Term != ir.NoID {
		out = append(out, b.Term)
	}
	return out
}

// DOT renders the graph in Graphviz form.
func (g *Graph) DOT(name string) string {
	cg := &lattice.CFGGraph{Funcs: []*lattice.FuncCFG{g.Lattice(name)}}
	return render.DOTCFG(cg, name)
}

// CallGraph collects caller to callee edges for a set of reduced methods,
// keyed by the caller's display name.
func CallGraph(graphs map[string]*Graph) *lattice.Graph {
	names := make([]string, 0, len(graphs))
	for name := range graphs {
		names = append(names, name)
	}
	sort.Strings(names)
	out := &lattice.Graph{}
	for _, caller := range names {
		out.Nodes = append(out.Nodes, caller)
		for _, b := range graphs[caller].Lattice(caller).Blocks {
			for _, c := range b.Calls {
				out.Edges = append(out.Edges, lattice.Edge{Caller: caller, Callee: c.Callee})
			}
		}
	}
	out.Dedup()
	return out
}

// CallGraphDOT renders CallGraph in Graphviz form.
func CallGraphDOT(graphs map[string]*Graph, title string) string {
	return render.DOT(CallGraph(graphs), title)
}
