package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrTruncated     = errors.New("truncated instruction")
	ErrUnknownOpcode = errors.New("unknown opcode")
)

// DecodeError locates a decoding failure.
type DecodeError struct {
	Offset int
	Opcode byte
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("offset %d (opcode 0x%02x): %v", e.Offset, e.Opcode, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Operation is one decoded instruction.
type Operation struct {
	Offset int
	Opcode byte
	Wide   bool
	Length int

	// Index is the constant pool operand of ldc, field, invoke, new,
	// anewarray, checkcast, instanceof and multianewarray.
	Index uint16
	// Local is the variable slot of load, store, iinc and ret.
	Local int
	// Value holds the bipush/sipush immediate, the iinc delta, the newarray
	// type code or the multianewarray dimension count.
	Value int32
	// Target is the absolute offset of a branch.
	Target int

	Default int
	Keys    []int32
	Targets []int
}

func (op Operation) Name() string {
	return Name(op.Opcode)
}

// Next is the offset of the following instruction.
func (op Operation) Next() int {
	return op.Offset + op.Length
}

type codeReader struct {
	code []byte
	pc   int
}

func (r *codeReader) need(n int) error {
	if r.pc+n > len(r.code) {
		return ErrTruncated
	}
	return nil
}

func (r *codeReader) u1() byte {
	b := r.code[r.pc]
	r.pc++
	return b
}

func (r *codeReader) u2() uint16 {
	v := binary.BigEndian.Uint16(r.code[r.pc:])
	r.pc += 2
	return v
}

func (r *codeReader) s4() int32 {
	v := int32(binary.BigEndian.Uint32(r.code[r.pc:]))
	r.pc += 4
	return v
}

// Decode decodes the instruction at pc. Switch padding is relative to offset
// 0 of code.
func Decode(code []byte, pc int) (Operation, error) {
	if pc < 0 || pc >= len(code) {
		return Operation{}, &DecodeError{Offset: pc, Err: ErrTruncated}
	}
	op := Operation{Offset: pc, Opcode: code[pc]}
	if err := decode(&codeReader{code: code, pc: pc + 1}, &op); err != nil {
		return op, &DecodeError{Offset: pc, Opcode: op.Opcode, Err: err}
	}
	return op, nil
}

// DecodeAll decodes a whole code array.
func DecodeAll(code []byte) ([]Operation, error) {
	var out []Operation
	for pc := 0; pc < len(code); {
		op, err := Decode(code, pc)
		if err != nil {
			return out, err
		}
		out = append(out, op)
		pc = op.Next()
	}
	return out, nil
}

func decode(r *codeReader, op *Operation) error {
	info := ops[op.Opcode]
	if info.name == "" {
		return ErrUnknownOpcode
	}
	if info.length > 0 {
		if err := r.need(info.length - 1); err != nil {
			return err
		}
	}

	switch c := op.Opcode; {
	case c == Bipush:
		op.Value = int32(int8(r.u1()))
	case c == Sipush:
		op.Value = int32(int16(r.u2()))
	case c == Ldc:
		op.Index = uint16(r.u1())
	case c == LdcW || c == Ldc2W:
		op.Index = r.u2()
	case c >= Iload && c <= Aload, c >= Istore && c <= Astore, c == Ret:
		op.Local = int(r.u1())
	case c >= Iload0 && c <= Aload3:
		op.Local = int(c-Iload0) % 4
	case c >= Istore0 && c <= Astore3:
		op.Local = int(c-Istore0) % 4
	case c == Iinc:
		op.Local = int(r.u1())
		op.Value = int32(int8(r.u1()))
	case c >= Ifeq && c <= Jsr, c == Ifnull || c == Ifnonnull:
		op.Target = op.Offset + int(int16(r.u2()))
	case c == GotoW || c == JsrW:
		op.Target = op.Offset + int(r.s4())
	case c >= Getstatic && c <= Invokestatic, c == New, c == Anewarray, c == Checkcast, c == Instanceof:
		op.Index = r.u2()
	case c == Invokeinterface || c == Invokedynamic:
		op.Index = r.u2()
		r.pc += 2
	case c == Newarray:
		op.Value = int32(r.u1())
	case c == Multianewarray:
		op.Index = r.u2()
		op.Value = int32(r.u1())
	case c == Tableswitch:
		if err := decodeTableSwitch(r, op); err != nil {
			return err
		}
	case c == Lookupswitch:
		if err := decodeLookupSwitch(r, op); err != nil {
			return err
		}
	case c == Wide:
		if err := decodeWide(r, op); err != nil {
			return err
		}
	}
	op.Length = r.pc - op.Offset
	return nil
}

func decodeWide(r *codeReader, op *Operation) error {
	if err := r.need(3); err != nil {
		return err
	}
	op.Wide = true
	op.Opcode = r.u1()
	switch c := op.Opcode; {
	case c >= Iload && c <= Aload, c >= Istore && c <= Astore, c == Ret:
		op.Local = int(r.u2())
	case c == Iinc:
		if err := r.need(4); err != nil {
			return err
		}
		op.Local = int(r.u2())
		op.Value = int32(int16(r.u2()))
	default:
		return ErrUnknownOpcode
	}
	return nil
}

func skipPadding(r *codeReader) {
	for r.pc%4 != 0 {
		r.pc++
	}
}

func decodeTableSwitch(r *codeReader, op *Operation) error {
	skipPadding(r)
	if err := r.need(12); err != nil {
		return err
	}
	op.Default = op.Offset + int(r.s4())
	low, high := r.s4(), r.s4()
	if high < low {
		return fmt.Errorf("tableswitch low %d > high %d", low, high)
	}
	n := int64(high) - int64(low) + 1
	if err := r.need(int(n) * 4); n > 65536 || err != nil {
		return ErrTruncated
	}
	for i := int64(0); i < n; i++ {
		op.Keys = append(op.Keys, int32(int64(low)+i))
		op.Targets = append(op.Targets, op.Offset+int(r.s4()))
	}
	return nil
}

func decodeLookupSwitch(r *codeReader, op *Operation) error {
	skipPadding(r)
	if err := r.need(8); err != nil {
		return err
	}
	op.Default = op.Offset + int(r.s4())
	n := r.s4()
	if n < 0 || n > 65536 {
		return fmt.Errorf("lookupswitch with %d pairs", n)
	}
	if err := r.need(int(n) * 8); err != nil {
		return err
	}
	for i := int32(0); i < n; i++ {
		op.Keys = append(op.Keys, r.s4())
		op.Targets = append(op.Targets, op.Offset+int(r.s4()))
	}
	return nil
}

// Branches returns every offset control can transfer to from op, excluding
// fallthrough.
func (op Operation) Branches() []int {
	switch {
	case op.Opcode == Tableswitch || op.Opcode == Lookupswitch:
		out := append([]int{op.Default}, op.Targets...)
		return out
	case IsBranch(op.Opcode):
		return []int{op.Target}
	}
	return nil
}

// IsBranch reports whether op carries a single branch target.
func IsBranch(op byte) bool {
	return (op >= Ifeq && op <= Jsr) || op == Ifnull || op == Ifnonnull || op == GotoW || op == JsrW
}

// IsConditional reports whether op is a two-way conditional branch.
func IsConditional(op byte) bool {
	return (op >= Ifeq && op <= IfAcmpne) || op == Ifnull || op == Ifnonnull
}

// EndsBlock reports whether control never falls through op unconditionally:
// jumps, switches, returns, throws and ret.
func EndsBlock(op byte) bool {
	switch {
	case IsBranch(op), op == Tableswitch, op == Lookupswitch, op == Athrow, op == Ret:
		return true
	case op >= Ireturn && op <= Return:
		return true
	}
	return false
}

// FallsThrough reports whether execution may continue at the next
// instruction after op.
func FallsThrough(op byte) bool {
	if IsConditional(op) || op == Jsr || op == JsrW {
		return true
	}
	return !EndsBlock(op)
}
