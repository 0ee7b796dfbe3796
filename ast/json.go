package ast

import (
	"encoding/json"

	"github.com/dhamidi/jdec/ir"
)

type JSONNode struct {
	Kind     string      `json:"kind"`
	Label    string      `json:"label,omitempty"`
	Flavor   string      `json:"flavor,omitempty"`
	Text     string      `json:"text,omitempty"`
	Cond     string      `json:"cond,omitempty"`
	Line     int         `json:"line,omitempty"`
	Keys     []int32     `json:"keys,omitempty"`
	Default  bool        `json:"default,omitempty"`
	Types    []string    `json:"types,omitempty"`
	Children []*JSONNode `json:"children,omitempty"`
}

func (n *Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.ToJSON(nil))
}

// ToJSON converts the tree for encoding. Instruction text is filled in when
// m is not nil.
func (n *Node) ToJSON(m *ir.Method) *JSONNode {
	jn := &JSONNode{
		Kind:    n.Kind.String(),
		Label:   n.Label,
		Flavor:  n.Flavor,
		Keys:    n.Values,
		Default: n.Default,
		Types:   n.Types,
	}
	if m != nil {
		if n.Inst != ir.NoID {
			jn.Text = m.Format(n.Inst)
			jn.Line = m.StatementLine(n.Inst)
		}
		if n.Cond != ir.NoID {
			jn.Cond = m.Format(n.Cond)
		}
	}
	if len(n.Children) > 0 {
		jn.Children = make([]*JSONNode, len(n.Children))
		for i, child := range n.Children {
			jn.Children[i] = child.ToJSON(m)
		}
	}
	return jn
}
