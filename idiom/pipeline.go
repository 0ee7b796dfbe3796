// Package idiom rewrites compiler-emitted instruction sequences into single
// synthetic nodes. Passes run in a fixed order over a statement list and
// never fire on a partial or ambiguous match.
package idiom

import (
	"github.com/tliron/commonlog"

	"github.com/dhamidi/jdec/classfile"
	"github.com/dhamidi/jdec/ir"
)

var log = commonlog.GetLogger("jdec.idiom")

// Pass is one rewrite. Apply returns the rewritten list and whether anything
// changed; on no match the input list is returned as is.
type Pass interface {
	Name() string
	Apply(m *ir.Method, list []ir.ID) ([]ir.ID, bool)
}

// Context is what passes may consult besides the method itself. Both fields
// are optional.
type Context struct {
	Class *classfile.ClassFile
	// Lookup resolves another class by internal name.
	Lookup func(name string) (*classfile.ClassFile, error)
}

// Pipeline is an ordered list of passes run to a fixed point.
type Pipeline struct {
	Passes []Pass
	// MaxRounds bounds the fixed point; 0 means the list length plus two.
	MaxRounds int
}

// Names lists the default passes in the order they run.
var Names = []string{
	"class-literal",
	"ternary",
	"post-increment",
	"array-init",
	"assignment",
	"anonymous-new",
	"stack-collapse",
}

// New returns the default pipeline. Array initializers run before
// assignments; ternaries expect goto chains to be flattened already.
func New(ctx *Context) *Pipeline {
	if ctx == nil {
		ctx = &Context{}
	}
	return &Pipeline{Passes: []Pass{
		&ClassLiteral{ctx: ctx},
		Ternary{},
		PostIncrement{},
		ArrayInit{},
		Assignment{},
		&AnonymousNew{ctx: ctx},
		StackCollapse{},
	}}
}

// Without returns a copy of p lacking the named passes.
func (p *Pipeline) Without(names ...string) *Pipeline {
	skip := make(map[string]bool, len(names))
	for _, n := range names {
		skip[n] = true
	}
	out := &Pipeline{MaxRounds: p.MaxRounds}
	for _, pass := range p.Passes {
		if !skip[pass.Name()] {
			out.Passes = append(out.Passes, pass)
		}
	}
	return out
}

// Run applies every pass in order until a full sweep changes nothing.
func (p *Pipeline) Run(m *ir.Method, list []ir.ID) []ir.ID {
	max := p.MaxRounds
	if max <= 0 {
		max = len(list) + 2
	}
	for round := 0; round < max; round++ {
		changed := false
		for _, pass := range p.Passes {
			out, ok := pass.Apply(m, list)
			if ok {
				log.Debugf("%s: %d -> %d statements", pass.Name(), len(list), len(out))
				list, changed = out, true
			}
		}
		if !changed {
			return list
		}
	}
	log.Debugf("idiom pipeline stopped after %d rounds", max)
	return list
}

// splice returns a copy of list with list[i:j] replaced by repl.
func splice(list []ir.ID, i, j int, repl ...ir.ID) []ir.ID {
	out := make([]ir.ID, 0, len(list)-(j-i)+len(repl))
	out = append(out, list[:i]...)
	out = append(out, repl...)
	return append(out, list[j:]...)
}

// references counts how often target occurs across the statement trees.
func references(m *ir.Method, list []ir.ID, target ir.ID) int {
	n := 0
	for _, id := range list {
		n += m.Count(id, target)
	}
	return n
}

// crossesHandler reports whether an exception table offset lies in (from, to].
func crossesHandler(m *ir.Method, from, to int) bool {
	for _, h := range m.Handlers {
		for _, off := range [...]int{h.Start, h.End, h.Handler} {
			if off > from && off <= to {
				return true
			}
		}
	}
	return false
}

// armEntered reports whether control can reach [from, to) other than by
// falling in at from or by a branch to except. refs counts branch
// references per offset.
func armEntered(m *ir.Method, refs map[int]int, from, to, except int) bool {
	for off := range refs {
		if off >= from && off < to && off != except {
			return true
		}
	}
	for _, h := range m.Handlers {
		if h.Handler >= from && h.Handler < to {
			return true
		}
	}
	return false
}
