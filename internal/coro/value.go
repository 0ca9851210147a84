// internal/coro/value.go

package coro

import "fmt"

// Kind tags a suspension value.
type Kind uint8

const (
	KindEmit     Kind = iota // ordinary value handed to whoever drives the routine
	KindDelegate             // nested routine to run inline
	KindReturn               // final result of the current frame
	KindLiteral              // wrapped value exposed without interpretation
	KindSyscall              // privileged request for the driver
)

func (k Kind) String() string {
	switch k {
	case KindEmit:
		return "Emit"
	case KindDelegate:
		return "Delegate"
	case KindReturn:
		return "Return"
	case KindLiteral:
		return "Literal"
	case KindSyscall:
		return "Syscall"
	default:
		return "Unknown"
	}
}

// Syscall is a privileged request. The coro package never interprets it;
// the driver of the routine (the scheduler) does.
type Syscall interface {
	SyscallName() string
}

// Value is what a routine produces at a suspension point.
// The zero Value is an Emit of nil.
type Value struct {
	kind    Kind
	payload any
	routine Routine
	syscall Syscall
	inner   *Value
}

// Emit hands v to the driver.
func Emit(v any) Value { return Value{kind: KindEmit, payload: v} }

// Delegate runs r as a nested frame; its return value is what the caller resumes with.
func Delegate(r Routine) Value { return Value{kind: KindDelegate, routine: r} }

// Return ends the current frame with v.
func Return(v any) Value { return Value{kind: KindReturn, payload: v} }

// Literal makes the trampoline expose v as-is, even if v is a Delegate or Return.
func Literal(v Value) Value { return Value{kind: KindLiteral, inner: &v} }

// Sys requests a privileged operation from the driver.
func Sys(s Syscall) Value { return Value{kind: KindSyscall, syscall: s} }

func (v Value) Kind() Kind { return v.kind }

// Payload returns the value carried by an Emit or Return.
func (v Value) Payload() any { return v.payload }

// Routine returns the nested routine of a Delegate.
func (v Value) Routine() Routine { return v.routine }

// Syscall returns the request carried by a Sys value.
func (v Value) Syscall() Syscall { return v.syscall }

// Unwrap returns the value wrapped by Literal. Other kinds return themselves.
func (v Value) Unwrap() Value {
	if v.kind != KindLiteral || v.inner == nil {
		return v
	}
	return *v.inner
}

func (v Value) String() string {
	switch v.kind {
	case KindDelegate:
		return fmt.Sprintf("Delegate(%T)", v.routine)
	case KindSyscall:
		if v.syscall == nil {
			return "Syscall(<nil>)"
		}
		return "Syscall(" + v.syscall.SyscallName() + ")"
	case KindLiteral:
		return "Literal(" + v.Unwrap().String() + ")"
	default:
		return fmt.Sprintf("%s(%v)", v.kind, v.payload)
	}
}
