package errors

import "errors"

// TrapCode identifies a trap raised by compiled code or a runtime routine.
type TrapCode uint8

const (
	TrapNullReference TrapCode = iota + 1
	TrapNullStructReference
	TrapNullArrayReference
	TrapNullI31Reference
	TrapArrayOutOfBounds
	TrapMemoryOutOfBounds
	TrapTableOutOfBounds
	TrapAllocationTooLarge
	TrapCastFailure
	TrapBadSignature
	TrapUninitializedElement
	TrapHeapOutOfMemory
	TrapDanglingReference
)

// Messages are part of the contract: test suites match on them.
var trapMessages = [...]string{
	TrapNullReference:        "null reference",
	TrapNullStructReference:  "null structure reference",
	TrapNullArrayReference:   "null array reference",
	TrapNullI31Reference:     "null i31 reference",
	TrapArrayOutOfBounds:     "out of bounds array access",
	TrapMemoryOutOfBounds:    "out of bounds memory access",
	TrapTableOutOfBounds:     "out of bounds table access",
	TrapAllocationTooLarge:   "allocation size too large",
	TrapCastFailure:          "cast failure",
	TrapBadSignature:         "indirect call type mismatch",
	TrapUninitializedElement: "uninitialized element",
	TrapHeapOutOfMemory:      "GC heap out of memory",
	TrapDanglingReference:    "dangling GC reference",
}

// String returns the stable trap message.
func (c TrapCode) String() string {
	if int(c) < len(trapMessages) && trapMessages[c] != "" {
		return trapMessages[c]
	}
	return "unknown trap"
}

// Trap is a synchronous, non-recoverable failure of a GC operation. It
// unwinds to the nearest host boundary unchanged.
type Trap struct {
	// Op names the operation that trapped, e.g. "struct.get". Not part of
	// the message.
	Op   string
	Code TrapCode
}

// Error returns the stable trap message.
func (t *Trap) Error() string {
	return t.Code.String()
}

// Is reports whether target is a trap with the same code.
func (t *Trap) Is(target error) bool {
	if o, ok := target.(*Trap); ok {
		return t.Code == o.Code
	}
	return false
}

// NewTrap creates a trap raised by op.
func NewTrap(code TrapCode, op string) *Trap {
	return &Trap{Code: code, Op: op}
}

// Sentinels for errors.Is comparisons.
var (
	ErrNullReference        = &Trap{Code: TrapNullReference}
	ErrNullStructReference  = &Trap{Code: TrapNullStructReference}
	ErrNullArrayReference   = &Trap{Code: TrapNullArrayReference}
	ErrNullI31Reference     = &Trap{Code: TrapNullI31Reference}
	ErrArrayOutOfBounds     = &Trap{Code: TrapArrayOutOfBounds}
	ErrMemoryOutOfBounds    = &Trap{Code: TrapMemoryOutOfBounds}
	ErrTableOutOfBounds     = &Trap{Code: TrapTableOutOfBounds}
	ErrAllocationTooLarge   = &Trap{Code: TrapAllocationTooLarge}
	ErrCastFailure          = &Trap{Code: TrapCastFailure}
	ErrBadSignature         = &Trap{Code: TrapBadSignature}
	ErrUninitializedElement = &Trap{Code: TrapUninitializedElement}
	ErrHeapOutOfMemory      = &Trap{Code: TrapHeapOutOfMemory}
	ErrDanglingReference    = &Trap{Code: TrapDanglingReference}
)

// AsTrap extracts the trap code from err, looking through wrapping.
func AsTrap(err error) (TrapCode, bool) {
	var t *Trap
	if errors.As(err, &t) {
		return t.Code, true
	}
	return 0, false
}

// Is reports whether any error in err's chain matches target. It mirrors
// the standard library so callers need a single errors import.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool { return errors.As(err, target) }
