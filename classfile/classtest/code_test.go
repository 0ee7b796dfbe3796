package classtest

import (
	"encoding/binary"
	"testing"
)

func TestOffset(t *testing.T) {
	tests := []struct {
		name  string
		code  func() *Code
		label string
		want  uint16
	}{
		{
			name:  "defined label",
			code:  func() *Code { return NewCode().Op(0x00).Label("x").Op(0xb1) },
			label: "x",
			want:  1,
		},
		{
			name:  "implicit end",
			code:  func() *Code { return NewCode().Op(0x00, 0x00, 0xb1) },
			label: "end",
			want:  3,
		},
		{
			name:  "defined end",
			code:  func() *Code { return NewCode().Op(0x00).Label("end").Op(0x15, 0x01, 0xac) },
			label: "end",
			want:  1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.code().Offset(tt.label); got != tt.want {
				t.Errorf("Offset(%q) = %d, want %d", tt.label, got, tt.want)
			}
		})
	}
}

func TestJumpToDefinedEnd(t *testing.T) {
	// goto end; nop; end: return
	code := NewCode().Jump(0xa7, "end").Op(0x00).Label("end").Op(0xb1).Bytes()
	if got := int16(binary.BigEndian.Uint16(code[1:])); got != 4 {
		t.Errorf("branch offset = %d, want 4", got)
	}
}

func TestUndefinedLabelPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Offset of an undefined label did not panic")
		}
	}()
	NewCode().Offset("missing")
}
