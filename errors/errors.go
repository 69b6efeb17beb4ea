package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseParse   Phase = "parse"   // class file to model
	PhaseEncode  Phase = "encode"  // model to class file
	PhaseRewrite Phase = "rewrite" // instruction rewriting
	PhaseCodec   Phase = "codec"   // literal encoding
	PhaseConfig  Phase = "config"  // configuration loading
	PhaseIO      Phase = "io"      // pipeline input and output
	PhaseVerify  Phase = "verify"  // round-trip verification
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidData  Kind = "invalid_data"
	KindOutOfBounds  Kind = "out_of_bounds"
	KindOverflow     Kind = "overflow"
	KindUnsupported  Kind = "unsupported"
	KindNotFound     Kind = "not_found"
	KindInvalidInput Kind = "invalid_input"
	KindLimit        Kind = "limit"
	KindMismatch     Kind = "mismatch"
)

// Error is the structured error type used across muddy packages
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Class  string
	Member string
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Class != "" {
		b.WriteString(" in ")
		b.WriteString(e.Class)
		if e.Member != "" {
			b.WriteByte('.')
			b.WriteString(e.Member)
		}
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the location path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Class sets the class the error refers to
func (b *Builder) Class(name string) *Builder {
	b.err.Class = name
	return b
}

// Member sets the field or method the error refers to
func (b *Builder) Member(name string) *Builder {
	b.err.Member = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets a formatted detail message
func (b *Builder) Detail(format string, args ...any) *Builder {
	b.err.Detail = fmt.Sprintf(format, args...)
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	e := b.err
	return &e
}

// Unsupported creates an error for a construct muddy cannot handle
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what + " not supported",
	}
}

// OutOfBounds creates an index out of range error
func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Value:  index,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
	}
}

// Overflow creates an error for a value that exceeds an encoding width
func Overflow(phase Phase, path []string, value any, limit string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOverflow,
		Path:   path,
		Value:  value,
		Detail: fmt.Sprintf("value %v exceeds %s", value, limit),
	}
}

// Limit creates an error for input larger than a hard limit
func Limit(phase Phase, what string, size, max int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindLimit,
		Value:  size,
		Detail: fmt.Sprintf("%s of %d exceeds limit %d", what, size, max),
	}
}

// InvalidData creates a malformed input error
func InvalidData(phase Phase, detail string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Mismatch creates an error for a verification difference
func Mismatch(class, member string, want, got any) *Error {
	return &Error{
		Phase:  PhaseVerify,
		Kind:   KindMismatch,
		Class:  class,
		Member: member,
		Value:  got,
		Detail: fmt.Sprintf("want %q, got %q", want, got),
	}
}

// ParseFailed creates a class parsing error
func ParseFailed(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindInvalidData,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
	}
}

// Wrap attaches phase and kind to an arbitrary error
func Wrap(phase Phase, kind Kind, detail string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
