package format

import (
	"encoding/json"
	"io"

	"github.com/dhamidi/jdec/ast"
	"github.com/dhamidi/jdec/bytecode"
	"github.com/dhamidi/jdec/decompiler"
)

type JSONEncoder struct {
	w      io.Writer
	result *decompiler.Result
}

func NewJSONEncoder(w io.Writer) *JSONEncoder {
	return &JSONEncoder{w: w}
}

func (e *JSONEncoder) Encode(result *decompiler.Result) error {
	e.result = result
	return encode(e.w, e)
}

func (e *JSONEncoder) MarshalText() ([]byte, error) {
	data, err := json.MarshalIndent(e.buildClassData(), "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

type jsonClass struct {
	Name       string       `json:"name"`
	SimpleName string       `json:"simpleName"`
	Package    string       `json:"package"`
	SuperClass string       `json:"superClass,omitempty"`
	Interfaces []string     `json:"interfaces,omitempty"`
	Visibility string       `json:"visibility"`
	Kind       string       `json:"kind"`
	Modifiers  []string     `json:"modifiers,omitempty"`
	SourceFile string       `json:"sourceFile,omitempty"`
	Digest     string       `json:"digest"`
	Status     string       `json:"status"`
	Version    jsonVersion  `json:"version"`
	Synthetic  []string     `json:"synthetic,omitempty"`
	Fields     []jsonField  `json:"fields,omitempty"`
	Methods    []jsonMethod `json:"methods,omitempty"`
}

type jsonVersion struct {
	Major uint16 `json:"major"`
	Minor uint16 `json:"minor"`
}

type jsonField struct {
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	Visibility string   `json:"visibility"`
	Modifiers  []string `json:"modifiers,omitempty"`
}

type jsonMethod struct {
	Name        string          `json:"name"`
	Descriptor  string          `json:"descriptor"`
	ReturnType  string          `json:"returnType,omitempty"`
	Parameters  []string        `json:"parameters,omitempty"`
	Visibility  string          `json:"visibility,omitempty"`
	Modifiers   []string        `json:"modifiers,omitempty"`
	Status      string          `json:"status"`
	Failure     *jsonFailure    `json:"failure,omitempty"`
	Body        *ast.JSONNode   `json:"body,omitempty"`
	Disassembly []bytecode.Line `json:"disassembly,omitempty"`
}

type jsonFailure struct {
	Offset int    `json:"offset"`
	Opcode string `json:"opcode"`
	Reason string `json:"reason"`
}

func (e *JSONEncoder) buildClassData() jsonClass {
	r := e.result
	data := jsonClass{
		Name:      r.Class,
		Digest:    r.DigestHex(),
		Status:    r.Status().String(),
		Synthetic: r.Synthetic,
		Methods:   e.buildMethods(),
	}
	if c := r.Model; c != nil {
		data.Name = c.Name
		data.SimpleName = c.SimpleName
		data.Package = c.Package
		data.SuperClass = c.SuperClass
		data.Interfaces = c.Interfaces
		data.Visibility = string(c.Visibility)
		data.Kind = string(c.Kind)
		data.Modifiers = c.Modifiers
		data.SourceFile = c.SourceFile
		data.Version = jsonVersion{Major: c.MajorVersion, Minor: c.MinorVersion}
		data.Fields = buildFields(c.Fields)
	}
	return data
}

func buildFields(fields []decompiler.FieldModel) []jsonField {
	result := make([]jsonField, len(fields))
	for i, f := range fields {
		result[i] = jsonField{
			Name:       f.Name,
			Type:       f.Type,
			Visibility: string(f.Visibility),
			Modifiers:  f.Modifiers,
		}
	}
	return result
}

func (e *JSONEncoder) buildMethods() []jsonMethod {
	r := e.result
	result := make([]jsonMethod, 0, len(r.Methods))
	for _, m := range r.Methods {
		jm := jsonMethod{
			Name:       m.Name,
			Descriptor: m.Descriptor,
			Status:     m.Status.String(),
		}
		if mm := modelOf(r, m); mm != nil {
			jm.ReturnType = mm.ReturnType
			jm.Parameters = mm.Parameters
			jm.Visibility = string(mm.Visibility)
			jm.Modifiers = mm.Modifiers
		}
		if m.Tree != nil {
			jm.Body = m.Tree.ToJSON(m.IR)
		}
		if f := m.Failure; f != nil {
			jm.Failure = &jsonFailure{Offset: f.Offset, Opcode: bytecode.Name(f.Opcode), Reason: f.Reason}
			jm.Disassembly = m.Disassembly
		}
		result = append(result, jm)
	}
	return result
}
