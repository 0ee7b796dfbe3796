// Package format renders decompilation results for people and tools.
package format

import (
	"encoding"
	"fmt"
	"io"

	"github.com/dhamidi/jdec/decompiler"
)

type Encoder interface {
	encoding.TextMarshaler
	Encode(result *decompiler.Result) error
}

// Names lists the encoders New accepts.
var Names = []string{"tree", "json", "line"}

func New(name string, w io.Writer) (Encoder, error) {
	switch name {
	case "", "tree":
		return NewTreeEncoder(w), nil
	case "json":
		return NewJSONEncoder(w), nil
	case "line":
		return NewLineEncoder(w), nil
	}
	return nil, fmt.Errorf("unknown format %q", name)
}

func encode(w io.Writer, m encoding.TextMarshaler) error {
	text, err := m.MarshalText()
	if err != nil {
		return err
	}
	_, err = w.Write(text)
	return err
}

// modelOf returns the declaration summary of a method, or nil for members
// the model leaves out.
func modelOf(r *decompiler.Result, m *decompiler.Method) *decompiler.MethodModel {
	if r.Model == nil {
		return nil
	}
	for i := range r.Model.Methods {
		mm := &r.Model.Methods[i]
		if mm.Name == m.Name && mm.Descriptor == m.Descriptor {
			return mm
		}
	}
	return nil
}
