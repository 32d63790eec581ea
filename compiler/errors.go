package compiler

import (
	"errors"
	"fmt"
)

// Compile-time failures. Emission returns them wrapped in a
// *CompileError and leaves the function untouched.
var (
	ErrSplatMapMismatch   = errors.New("splat map does not match arity")
	ErrSuperOutsideMethod = errors.New("super called outside of method")
	ErrOperandMismatch    = errors.New("operands do not match call descriptor")
	ErrBadFastPath        = errors.New("fast path requires exactly one literal argument")
	ErrMissingName        = errors.New("call has no method name")
	ErrTooManyOperands    = errors.New("operand index out of range")

	// Lowering failures.
	ErrUndefinedVariable = errors.New("undefined variable")
	ErrBadInstruction    = errors.New("malformed instruction")
)

// CompileError attributes a compile-time failure to a source position.
type CompileError struct {
	Location Location
	Err      error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Location, e.Err)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// errorAt wraps err with a location and an optional detail message.
func errorAt(loc Location, err error, format string, args ...any) *CompileError {
	if format != "" {
		err = fmt.Errorf("%w: %s", err, fmt.Sprintf(format, args...))
	}
	return &CompileError{Location: loc, Err: err}
}
