package format

import (
	"fmt"
	"io"
	"strings"

	"github.com/dhamidi/jdec/decompiler"
)

// LineEncoder writes one tab separated record per class, field and method,
// for grep and cut.
type LineEncoder struct {
	w      io.Writer
	result *decompiler.Result
}

func NewLineEncoder(w io.Writer) *LineEncoder {
	return &LineEncoder{w: w}
}

func (e *LineEncoder) Encode(result *decompiler.Result) error {
	e.result = result
	return encode(e.w, e)
}

func (e *LineEncoder) MarshalText() ([]byte, error) {
	var sb strings.Builder
	r := e.result

	kind, name, mods := "class", r.Class, "-"
	if c := r.Model; c != nil {
		kind, name = string(c.Kind), c.Name
		mods = joinOrDash(append([]string{string(c.Visibility)}, c.Modifiers...))
	}
	fmt.Fprintf(&sb, "%s\t%s\t%s\t%s\t%s\n", kind, name, mods, r.Status(), r.DigestHex())

	if r.Model != nil {
		for _, f := range r.Model.Fields {
			fmt.Fprintf(&sb, "field\t%s\t%s\t%s\t%s\n",
				f.Name,
				f.Type,
				f.Visibility,
				joinOrDash(f.Modifiers),
			)
		}
	}

	for _, m := range r.Methods {
		ret, params, vis, mmods := "-", "-", "-", "-"
		if mm := modelOf(r, m); mm != nil {
			ret, params = mm.ReturnType, joinOrDash(mm.Parameters)
			vis, mmods = string(mm.Visibility), joinOrDash(mm.Modifiers)
		}
		fmt.Fprintf(&sb, "method\t%s\t%s\t%s\t%s\t%s\t%s\n",
			m.Name,
			ret,
			params,
			vis,
			mmods,
			m.Status,
		)
		if m.Failure != nil {
			fmt.Fprintf(&sb, "failure\t%s\t%d\t%s\n", m.Key(), m.Failure.Offset, m.Failure.Reason)
		}
	}

	for _, s := range r.Synthetic {
		fmt.Fprintf(&sb, "synthetic\t%s\n", s)
	}
	return []byte(sb.String()), nil
}

func joinOrDash(parts []string) string {
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ",")
}
