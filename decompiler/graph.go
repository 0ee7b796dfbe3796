package decompiler

import (
	"fmt"

	"github.com/dhamidi/jdec/cfg"
	"github.com/dhamidi/jdec/classfile"
	"github.com/dhamidi/jdec/ir"
)

// Graph returns the control flow graph of one method reduced up to stage,
// for inspection. An empty descriptor picks the first method named method.
func Graph(data []byte, method, descriptor string, stage cfg.Stage) (*cfg.Graph, error) {
	cf, err := classfile.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parse class: %w", err)
	}
	mi := cf.GetMethod(method, descriptor)
	if mi == nil {
		return nil, fmt.Errorf("%s.%s%s: no such method", cf.ClassName(), method, descriptor)
	}
	return graph(cf, mi, stage)
}

// Graphs returns the graph of every method with code, keyed by
// Class.name(descriptor) as used for call graphs. Methods that cannot be
// modelled are left out.
func Graphs(data []byte, stage cfg.Stage) (map[string]*cfg.Graph, error) {
	cf, err := classfile.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parse class: %w", err)
	}
	out := make(map[string]*cfg.Graph)
	for i := range cf.Methods {
		mi := &cf.Methods[i]
		if mi.Code() == nil {
			continue
		}
		g, err := graph(cf, mi, stage)
		if err != nil {
			log.Debugf("%s: %v", mi.Name(cf.ConstantPool), err)
			continue
		}
		out[cf.ClassName()+"."+mi.Name(cf.ConstantPool)+mi.Descriptor(cf.ConstantPool)] = g
	}
	return out, nil
}

var snapshot = cfg.Snapshot

func graph(cf *classfile.ClassFile, mi *classfile.MethodInfo, stage cfg.Stage) (g *cfg.Graph, err error) {
	code := mi.Code()
	if code == nil {
		return nil, fmt.Errorf("%s has no code", mi.Name(cf.ConstantPool))
	}
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("%s: recovered: %v", mi.Name(cf.ConstantPool), r)
			g, err = nil, &ir.UnsupportedError{Reason: fmt.Sprintf("internal error: %v", r)}
		}
	}()
	m, err := ir.Build(code, cf.ConstantPool, mi.IsStatic())
	if err != nil {
		return nil, err
	}
	return snapshot(m, stage), nil
}
