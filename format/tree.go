package format

import (
	"fmt"
	"io"
	"strings"

	"github.com/dhamidi/jdec/decompiler"
)

// TreeEncoder writes each method's statement tree indented, and the
// disassembly of methods that failed.
type TreeEncoder struct {
	w      io.Writer
	result *decompiler.Result
}

func NewTreeEncoder(w io.Writer) *TreeEncoder {
	return &TreeEncoder{w: w}
}

func (e *TreeEncoder) Encode(result *decompiler.Result) error {
	e.result = result
	return encode(e.w, e)
}

func (e *TreeEncoder) MarshalText() ([]byte, error) {
	var sb strings.Builder
	r := e.result

	name := r.Class
	if r.Model != nil {
		name = r.Model.Name
	}
	fmt.Fprintf(&sb, "class %s (%s)\n", name, r.Status())
	for _, m := range r.Methods {
		fmt.Fprintf(&sb, "\n%s [%s]\n", m.Key(), m.Status)
		switch {
		case m.Failure != nil:
			fmt.Fprintf(&sb, "  ! %s\n", m.Failure)
			for _, l := range m.Disassembly {
				fmt.Fprintf(&sb, "  %s\n", l)
			}
		case m.Tree != nil:
			for _, line := range strings.Split(strings.TrimSuffix(m.Tree.Dump(m.IR), "\n"), "\n") {
				sb.WriteString("  " + line + "\n")
			}
		default:
			sb.WriteString("  (no code)\n")
		}
	}
	return []byte(sb.String()), nil
}
