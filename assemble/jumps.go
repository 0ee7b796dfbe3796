package assemble

import (
	"fmt"

	"github.com/dhamidi/jdec/ast"
)

// frame is an enclosing construct a jump can leave or repeat.
type frame struct {
	node *ast.Node
	cont int // -1 for a switch
	brk  int
}

// resolve rewrites gotos into break and continue statements against the
// enclosing loops and switches, labelling the target construct when it is
// not the innermost one of its kind. It reports whether every goto inside
// a structured construct was resolved; gotos between the labels of a
// residual tree are left alone.
func (a *assembler) resolve(root *ast.Node) bool {
	a.unresolved = 0
	a.walk(root, nil)
	return a.unresolved == 0 && root.FirstChildOfKind(ast.KindLabel) == nil
}

func (a *assembler) walk(n *ast.Node, frames []frame) {
	switch {
	case isLoop(n):
		frames = append(frames, frame{node: n, cont: n.Offset, brk: n.Follow})
	case n.Kind == ast.KindSwitch:
		frames = append(frames, frame{node: n, cont: -1, brk: n.Follow})
	}
	for _, c := range n.Children {
		if c.Kind == ast.KindGoto {
			if !a.jump(c, frames) && len(frames) > 0 {
				a.unresolved++
			}
			continue
		}
		a.walk(c, frames)
	}
}

// jump turns n into a break or continue when a frame matches its target.
func (a *assembler) jump(n *ast.Node, frames []frame) bool {
	innerLoop, innerBreak := true, true
	for i := len(frames) - 1; i >= 0; i-- {
		f := frames[i]
		if f.cont >= 0 && n.Offset == f.cont {
			a.retarget(n, ast.KindContinue, f.node, innerLoop)
			return true
		}
		if f.brk >= 0 && n.Offset == f.brk {
			a.retarget(n, ast.KindBreak, f.node, innerBreak)
			return true
		}
		if f.cont >= 0 {
			innerLoop = false
		}
		innerBreak = false
	}
	return false
}

func (a *assembler) retarget(n *ast.Node, kind ast.NodeKind, target *ast.Node, innermost bool) {
	n.Kind = kind
	n.Offset = 0
	if innermost {
		return
	}
	if target.Label == "" {
		a.labels++
		target.Label = fmt.Sprintf("label%d", a.labels)
	}
	n.Label = target.Label
}
