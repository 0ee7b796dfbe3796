// Package classtest assembles class files in memory for tests.
package classtest

import (
	"encoding/binary"
	"fmt"
	"math"
)

type Handler struct {
	Start, End, Handler string
	// CatchType is an internal class name, or "" for catch-any.
	CatchType string
}

type Method struct {
	Access    uint16
	Name      string
	Desc      string
	MaxStack  uint16
	MaxLocals uint16
	Code      *Code
	Handlers  []Handler
	// Lines maps a label to a source line.
	Lines map[string]uint16
}

type member struct {
	access     uint16
	name, desc uint16
	attrs      [][]byte
}

type Builder struct {
	Access       uint16
	MajorVersion uint16

	pool    [][]byte
	slots   int
	index   map[string]uint16
	this    uint16
	super   uint16
	fields  []member
	methods []member
	attrs   [][]byte
	inner   [][4]uint16
}

func New(name string) *Builder {
	b := &Builder{Access: 0x0021, MajorVersion: 52, index: make(map[string]uint16)}
	b.this = b.Class(name)
	b.super = b.Class("java/lang/Object")
	return b
}

func (b *Builder) add(key string, wide bool, data []byte) uint16 {
	if i, ok := b.index[key]; ok {
		return i
	}
	b.slots++
	i := uint16(b.slots)
	b.pool = append(b.pool, data)
	b.index[key] = i
	if wide {
		b.slots++
	}
	return i
}

func (b *Builder) Utf8(s string) uint16 {
	data := []byte{1}
	data = binary.BigEndian.AppendUint16(data, uint16(len(s)))
	return b.add("utf8:"+s, false, append(data, s...))
}

func (b *Builder) Class(name string) uint16 {
	n := b.Utf8(name)
	return b.add("class:"+name, false, u2(7, n))
}

func (b *Builder) String(s string) uint16 {
	n := b.Utf8(s)
	return b.add("string:"+s, false, u2(8, n))
}

func (b *Builder) Int(v int32) uint16 {
	return b.add(fmt.Sprintf("int:%d", v), false, binary.BigEndian.AppendUint32([]byte{3}, uint32(v)))
}

func (b *Builder) Float(v float32) uint16 {
	return b.add(fmt.Sprintf("float:%v", v), false, binary.BigEndian.AppendUint32([]byte{4}, math.Float32bits(v)))
}

func (b *Builder) Long(v int64) uint16 {
	return b.add(fmt.Sprintf("long:%d", v), true, binary.BigEndian.AppendUint64([]byte{5}, uint64(v)))
}

func (b *Builder) NameAndType(name, desc string) uint16 {
	n, d := b.Utf8(name), b.Utf8(desc)
	return b.add("nat:"+name+":"+desc, false, u2(12, n, d))
}

func (b *Builder) Field(owner, name, desc string) uint16 {
	c, nt := b.Class(owner), b.NameAndType(name, desc)
	return b.add("field:"+owner+"."+name+":"+desc, false, u2(9, c, nt))
}

func (b *Builder) Method(owner, name, desc string) uint16 {
	c, nt := b.Class(owner), b.NameAndType(name, desc)
	return b.add("method:"+owner+"."+name+desc, false, u2(10, c, nt))
}

func (b *Builder) InterfaceMethod(owner, name, desc string) uint16 {
	c, nt := b.Class(owner), b.NameAndType(name, desc)
	return b.add("imethod:"+owner+"."+name+desc, false, u2(11, c, nt))
}

// Raw appends an arbitrary pool entry and returns its index.
func (b *Builder) Raw(data []byte) uint16 {
	return b.add(fmt.Sprintf("raw:%d", len(b.pool)), false, data)
}

func (b *Builder) AddField(access uint16, name, desc string) {
	b.fields = append(b.fields, member{access: access, name: b.Utf8(name), desc: b.Utf8(desc)})
}

func (b *Builder) AddMethod(m Method) {
	mem := member{access: m.Access, name: b.Utf8(m.Name), desc: b.Utf8(m.Desc)}
	if m.Code != nil {
		mem.attrs = append(mem.attrs, b.codeAttribute(m))
	}
	b.methods = append(b.methods, mem)
}

// AddInnerClass records an InnerClasses row. An empty simple name marks the
// class anonymous.
func (b *Builder) AddInnerClass(inner, outer, simple string, flags uint16) {
	row := [4]uint16{b.Class(inner), 0, 0, flags}
	if outer != "" {
		row[1] = b.Class(outer)
	}
	if simple != "" {
		row[2] = b.Utf8(simple)
	}
	b.inner = append(b.inner, row)
}

// AddAttribute appends a class-level attribute with the given body.
func (b *Builder) AddAttribute(name string, body []byte) {
	b.attrs = append(b.attrs, b.attribute(name, body))
}

func (b *Builder) attribute(name string, body []byte) []byte {
	out := binary.BigEndian.AppendUint16(nil, b.Utf8(name))
	out = binary.BigEndian.AppendUint32(out, uint32(len(body)))
	return append(out, body...)
}

func (b *Builder) codeAttribute(m Method) []byte {
	code := m.Code.Bytes()
	maxStack, maxLocals := m.MaxStack, m.MaxLocals
	if maxStack == 0 {
		maxStack = 16
	}
	if maxLocals == 0 {
		maxLocals = 16
	}
	body := u2append(nil, maxStack, maxLocals)
	body = binary.BigEndian.AppendUint32(body, uint32(len(code)))
	body = append(body, code...)
	body = binary.BigEndian.AppendUint16(body, uint16(len(m.Handlers)))
	for _, h := range m.Handlers {
		var catch uint16
		if h.CatchType != "" {
			catch = b.Class(h.CatchType)
		}
		body = u2append(body, m.Code.Offset(h.Start), m.Code.Offset(h.End), m.Code.Offset(h.Handler), catch)
	}
	var attrs [][]byte
	if len(m.Lines) > 0 {
		lines := binary.BigEndian.AppendUint16(nil, uint16(len(m.Lines)))
		for label, line := range m.Lines {
			lines = u2append(lines, m.Code.Offset(label), line)
		}
		attrs = append(attrs, b.attribute("LineNumberTable", lines))
	}
	body = binary.BigEndian.AppendUint16(body, uint16(len(attrs)))
	for _, a := range attrs {
		body = append(body, a...)
	}
	return b.attribute("Code", body)
}

// Bytes serializes the class file.
func (b *Builder) Bytes() []byte {
	if len(b.inner) > 0 {
		body := binary.BigEndian.AppendUint16(nil, uint16(len(b.inner)))
		for _, row := range b.inner {
			body = u2append(body, row[:]...)
		}
		b.attrs = append(b.attrs, b.attribute("InnerClasses", body))
		b.inner = nil
	}

	out := binary.BigEndian.AppendUint32(nil, 0xCAFEBABE)
	out = u2append(out, 0, b.MajorVersion, uint16(b.slots+1))
	for _, e := range b.pool {
		out = append(out, e...)
	}
	out = u2append(out, b.Access, b.this, b.super, 0)
	out = writeMembers(out, b.fields)
	out = writeMembers(out, b.methods)
	out = binary.BigEndian.AppendUint16(out, uint16(len(b.attrs)))
	for _, a := range b.attrs {
		out = append(out, a...)
	}
	return out
}

func writeMembers(out []byte, members []member) []byte {
	out = binary.BigEndian.AppendUint16(out, uint16(len(members)))
	for _, m := range members {
		out = u2append(out, m.access, m.name, m.desc, uint16(len(m.attrs)))
		for _, a := range m.attrs {
			out = append(out, a...)
		}
	}
	return out
}

func u2(tag byte, vs ...uint16) []byte {
	return u2append([]byte{tag}, vs...)
}

func u2append(out []byte, vs ...uint16) []byte {
	for _, v := range vs {
		out = binary.BigEndian.AppendUint16(out, v)
	}
	return out
}
