// Package errors provides structured error types for muddy.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the class and member being processed, a location path,
// and the cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseRewrite, errors.KindLimit).
//		Class("com/app/Secret").
//		Member("<clinit>").
//		Detail("code length %d exceeds 65535", n).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Overflow(errors.PhaseEncode, path, off, "int16")
//	err := errors.OutOfBounds(errors.PhaseParse, path, 10, 5)
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
