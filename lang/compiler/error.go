package compiler

import "fmt"

// Error is the single abstract error kind returned by the compiler: arity
// and shape violations, num_rets mismatches, and register/constant
// overflow. No source position is attached (see lang/ast: positions are
// not tracked).
type Error struct {
	msg string
}

func (e *Error) Error() string { return e.msg }

func newError(format string, args ...interface{}) *Error {
	return &Error{msg: fmt.Sprintf(format, args...)}
}
