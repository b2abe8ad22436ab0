// Package errors provides structured error types for the GC core.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: location path, GC type name, and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseType, errors.KindTypeMismatch).
//		Path("point", "1").
//		Type("(ref $point)").
//		Detail("supertype field is mutable").
//		Build()
//
// Failures of compiled-code operations are traps instead. A Trap carries a
// TrapCode whose message is stable ("null structure reference",
// "out of bounds array access", "cast failure", ...):
//
//	if errors.Is(err, errors.ErrCastFailure) { ... }
//	code, ok := errors.AsTrap(err)
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
