package bytecode

import (
	"errors"
	"reflect"
	"testing"

	"github.com/dhamidi/jdec/classfile"
	"github.com/dhamidi/jdec/classfile/classtest"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		pc   int
		want Operation
	}{
		{
			name: "bipush negative",
			code: []byte{Bipush, 0xfe},
			want: Operation{Opcode: Bipush, Length: 2, Value: -2},
		},
		{
			name: "implicit local",
			code: []byte{Nop, Astore2},
			pc:   1,
			want: Operation{Offset: 1, Opcode: Astore2, Length: 1, Local: 2},
		},
		{
			name: "backward goto",
			code: []byte{Nop, Nop, Goto, 0xff, 0xfe},
			pc:   2,
			want: Operation{Offset: 2, Opcode: Goto, Length: 3, Target: 0},
		},
		{
			name: "wide iinc",
			code: []byte{Wide, Iinc, 0x01, 0x00, 0xff, 0x9c},
			want: Operation{Opcode: Iinc, Wide: true, Length: 6, Local: 256, Value: -100},
		},
		{
			name: "invokeinterface skips count",
			code: []byte{Invokeinterface, 0x00, 0x07, 0x02, 0x00},
			want: Operation{Opcode: Invokeinterface, Length: 5, Index: 7},
		},
		{
			name: "tableswitch padded from offset one",
			code: []byte{
				Nop, Tableswitch, 0, 0,
				0, 0, 0, 20, // default
				0, 0, 0, 1, // low
				0, 0, 0, 2, // high
				0, 0, 0, 23,
				0, 0, 0, 24,
			},
			pc: 1,
			want: Operation{
				Offset: 1, Opcode: Tableswitch, Length: 23,
				Default: 21, Keys: []int32{1, 2}, Targets: []int{24, 25},
			},
		},
		{
			name: "lookupswitch",
			code: []byte{
				Lookupswitch, 0, 0, 0,
				0, 0, 0, 16, // default
				0, 0, 0, 1, // npairs
				0xff, 0xff, 0xff, 0xff, 0, 0, 0, 20,
			},
			want: Operation{
				Opcode: Lookupswitch, Length: 20,
				Default: 16, Keys: []int32{-1}, Targets: []int{20},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.code, tt.pc)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Decode() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		want error
	}{
		{"undefined opcode", []byte{0xcb}, ErrUnknownOpcode},
		{"truncated sipush", []byte{Sipush, 1}, ErrTruncated},
		{"wide of non-local op", []byte{Wide, Iadd, 0, 0}, ErrUnknownOpcode},
		{"truncated lookupswitch", []byte{Lookupswitch, 0, 0, 0, 0, 0, 0, 8, 0, 0, 0, 4}, ErrTruncated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.code, 0)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Decode() error = %v, want %v", err, tt.want)
			}
			var de *DecodeError
			if !errors.As(err, &de) || de.Offset != 0 {
				t.Errorf("error %v does not locate offset 0", err)
			}
		})
	}
}

func TestDisassemble(t *testing.T) {
	b := classtest.New("A")
	field := b.Field("A", "count", "I")
	str := b.String("hi")
	cf, err := classfile.ParseBytes(b.Bytes())
	if err != nil {
		t.Fatal(err)
	}

	code := classtest.NewCode().
		Op(Aload0).Op(Getfield).U2(field).
		Op(Ldc, byte(str)).
		Label("loop").Op(Iinc, 1, 0xff).
		Jump(Goto, "loop").
		Bytes()

	lines, err := Disassemble(code, cf.ConstantPool)
	if err != nil {
		t.Fatalf("Disassemble() error = %v", err)
	}
	want := []string{
		"    0: aload_0",
		"    1: getfield A.count:I",
		"    4: ldc \"hi\"",
		"    6: iinc 1, -1",
		"    9: goto 6",
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d: %v", len(lines), len(want), lines)
	}
	for i, l := range lines {
		if l.String() != want[i] {
			t.Errorf("line %d = %q, want %q", i, l.String(), want[i])
		}
	}
}
