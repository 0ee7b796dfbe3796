package ir

import (
	"errors"
	"fmt"

	"github.com/dhamidi/jdec/bytecode"
)

// ErrUnsupportedConstruct marks a method body the builder cannot model. It is
// scoped to one method; sibling methods are unaffected.
var ErrUnsupportedConstruct = errors.New("unsupported construct")

// UnsupportedError locates an ErrUnsupportedConstruct.
type UnsupportedError struct {
	Offset int
	Opcode byte
	Reason string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("unsupported construct at offset %d (%s): %s", e.Offset, bytecode.Name(e.Opcode), e.Reason)
}

func (e *UnsupportedError) Is(target error) bool {
	return target == ErrUnsupportedConstruct
}

func unsupported(op bytecode.Operation, format string, args ...any) error {
	return &UnsupportedError{Offset: op.Offset, Opcode: op.Opcode, Reason: fmt.Sprintf(format, args...)}
}
