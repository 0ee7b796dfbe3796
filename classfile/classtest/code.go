package classtest

import (
	"encoding/binary"
	"fmt"
)

// Code assembles a bytecode array with symbolic branch labels.
type Code struct {
	buf    []byte
	labels map[string]int
	fixups []fixup
}

type fixup struct {
	at, base int
	label    string
	wide     bool
}

func NewCode() *Code {
	return &Code{labels: make(map[string]int)}
}

// Op appends raw bytes: opcodes and their immediate operands.
func (c *Code) Op(bs ...byte) *Code {
	c.buf = append(c.buf, bs...)
	return c
}

// U2 appends a two-byte operand, typically a constant pool index.
func (c *Code) U2(v uint16) *Code {
	c.buf = binary.BigEndian.AppendUint16(c.buf, v)
	return c
}

// Label marks the current offset.
func (c *Code) Label(name string) *Code {
	c.labels[name] = len(c.buf)
	return c
}

// Jump appends a branch opcode with a two-byte offset to label.
func (c *Code) Jump(op byte, label string) *Code {
	base := len(c.buf)
	c.buf = append(c.buf, op, 0, 0)
	c.fixups = append(c.fixups, fixup{at: base + 1, base: base, label: label})
	return c
}

// TableSwitch appends a tableswitch with keys low..low+len(cases)-1.
func (c *Code) TableSwitch(low int32, def string, cases ...string) *Code {
	base := len(c.buf)
	c.buf = append(c.buf, 0xaa)
	c.pad()
	c.target(base, def)
	c.buf = binary.BigEndian.AppendUint32(c.buf, uint32(low))
	c.buf = binary.BigEndian.AppendUint32(c.buf, uint32(low+int32(len(cases))-1))
	for _, l := range cases {
		c.target(base, l)
	}
	return c
}

// LookupSwitch appends a lookupswitch; keys and labels pair up in order.
func (c *Code) LookupSwitch(def string, keys []int32, labels ...string) *Code {
	base := len(c.buf)
	c.buf = append(c.buf, 0xab)
	c.pad()
	c.target(base, def)
	c.buf = binary.BigEndian.AppendUint32(c.buf, uint32(len(keys)))
	for i, k := range keys {
		c.buf = binary.BigEndian.AppendUint32(c.buf, uint32(k))
		c.target(base, labels[i])
	}
	return c
}

func (c *Code) pad() {
	for len(c.buf)%4 != 0 {
		c.buf = append(c.buf, 0)
	}
}

func (c *Code) target(base int, label string) {
	c.fixups = append(c.fixups, fixup{at: len(c.buf), base: base, label: label, wide: true})
	c.buf = append(c.buf, 0, 0, 0, 0)
}

// Offset returns the offset of label. An undefined "end" is the code length.
func (c *Code) Offset(label string) uint16 {
	off, ok := c.labels[label]
	if !ok {
		if label == "end" {
			return uint16(len(c.buf))
		}
		panic(fmt.Sprintf("classtest: undefined label %q", label))
	}
	return uint16(off)
}

func (c *Code) Bytes() []byte {
	for _, f := range c.fixups {
		rel := int(c.Offset(f.label)) - f.base
		if f.wide {
			binary.BigEndian.PutUint32(c.buf[f.at:], uint32(int32(rel)))
		} else {
			binary.BigEndian.PutUint16(c.buf[f.at:], uint16(int16(rel)))
		}
	}
	return c.buf
}
