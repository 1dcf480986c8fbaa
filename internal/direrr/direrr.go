// Package direrr provides standardized error messaging for the DWARF indexer.
package direrr

import (
	"errors"
	"fmt"
	"runtime"
)

// Kind categorizes the failure modes a caller can usefully distinguish.
type Kind string

const (
	KindEof            Kind = "EOF"
	KindElfFormat      Kind = "ELF_FORMAT"
	KindDwarfFormat    Kind = "DWARF_FORMAT"
	KindNotImplemented Kind = "NOT_IMPLEMENTED"
	KindNotFound       Kind = "NOT_FOUND"
	KindOutOfMemory    Kind = "OUT_OF_MEMORY"
)

// Error is the standard error shape returned by the binary, elfobj and
// dwarfindex packages.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Path    string
	Caller  string
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("[%s:%s] %s (%s, caller: %s)", e.Kind, e.Code, e.Message, e.Path, e.Caller)
	}

	return fmt.Sprintf("[%s:%s] %s (caller: %s)", e.Kind, e.Code, e.Message, e.Caller)
}

// Is lets callers use errors.Is(err, direrr.ErrNotFound) and friends against
// sentinel values carrying only a Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}

	return e.Kind == t.Kind
}

// New creates a standardized error, capturing the immediate caller for
// diagnostics the way the original error type did.
func New(kind Kind, code, message string) *Error {
	return newAt(2, kind, code, message, "")
}

// WithPath is New plus an offending file path, for file-scoped failures.
func WithPath(kind Kind, code, message, path string) *Error {
	return newAt(2, kind, code, message, path)
}

func newAt(skip int, kind Kind, code, message, path string) *Error {
	pc, _, _, ok := runtime.Caller(skip)
	caller := "unknown"

	if ok {
		if fn := runtime.FuncForPC(pc); fn != nil {
			caller = fn.Name()
		}
	}

	return &Error{Kind: kind, Code: code, Message: message, Path: path, Caller: caller}
}

// Sentinel values for errors.Is checks against a bare Kind.
var (
	ErrEof            = &Error{Kind: KindEof}
	ErrElfFormat      = &Error{Kind: KindElfFormat}
	ErrDwarfFormat    = &Error{Kind: KindDwarfFormat}
	ErrNotImplemented = &Error{Kind: KindNotImplemented}
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrOutOfMemory    = &Error{Kind: KindOutOfMemory}
)

// Eof reports a read past the end of a buffer or section.
func Eof(context string) *Error {
	return newAt(2, KindEof, "EOF", fmt.Sprintf("unexpected end of data in %s", context), "")
}

// ElfFormat reports malformed or unsupported ELF structure.
func ElfFormat(path, detail string) *Error {
	return newAt(2, KindElfFormat, "ELF_FORMAT", detail, path)
}

// DwarfFormat reports malformed or unsupported DWARF structure.
func DwarfFormat(detail string) *Error {
	return newAt(2, KindDwarfFormat, "DWARF_FORMAT", detail, "")
}

// NotImplemented reports a structurally valid but unsupported input shape.
func NotImplemented(detail string) *Error {
	return newAt(2, KindNotImplemented, "NOT_IMPLEMENTED", detail, "")
}

// NotFound reports an empty query result.
func NotFound(name string) *Error {
	return newAt(2, KindNotFound, "NOT_FOUND", fmt.Sprintf("no entry named %q", name), "")
}

// OutOfMemory reports a structurally full, fixed-capacity table.
func OutOfMemory(detail string) *Error {
	return newAt(2, KindOutOfMemory, "OUT_OF_MEMORY", detail, "")
}
