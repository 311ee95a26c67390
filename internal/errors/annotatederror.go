// Package errors decorates errors with slog attributes and the source location where they were created or wrapped.
//
// It is a drop-in replacement for the standard library errors package in process-level code. Use
// [SlogError] to log an error with all of its annotations.
package errors

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"strings"
)

const maxStackDepth = 32

type annotatedError struct {
	err   error
	msg   string
	attrs []slog.Attr
	pcs   []uintptr
}

func (e *annotatedError) Error() string {
	switch {
	case e.err == nil:
		return e.msg
	case e.msg == "":
		return e.err.Error()
	default:
		return e.msg + ": " + e.err.Error()
	}
}

func (e *annotatedError) Unwrap() error {
	return e.err
}

// NewSentinel creates a plain error without stack information. Use it for package level sentinel values.
func NewSentinel(msg string) error {
	return stderrors.New(msg) //nolint:err113 // this is the sentinel constructor.
}

// New creates an error annotated with the call site and given attributes.
func New(msg string, attrs ...slog.Attr) error {
	return &annotatedError{err: nil, msg: msg, attrs: attrs, pcs: callers(3)} //nolint:mnd // skip New and callers.
}

// Wrap annotates err with a message, attributes, and the call site.
//
// Wrapping a nil error yields an error containing only the message so that the annotations are not lost.
func Wrap(err error, msg string, attrs ...slog.Attr) error {
	return &annotatedError{err: err, msg: msg, attrs: attrs, pcs: callers(3)} //nolint:mnd // skip Wrap and callers.
}

// DecoratePanic converts a recovered panic value into an error pointing at the panicking line.
func DecoratePanic(recovered any) error {
	if recovered == nil {
		return nil
	}
	var cause error
	if err, ok := recovered.(error); ok {
		cause = err
	} else {
		cause = NewSentinel(fmt.Sprint(recovered))
	}
	pcs := callersAfterPanic(callers(3)) //nolint:mnd // skip DecoratePanic and callers.
	return &annotatedError{err: cause, msg: "panic", attrs: nil, pcs: pcs}
}

// callersAfterPanic drops the frames of the deferred recover function so that the stack starts at the panicking line.
func callersAfterPanic(pcs []uintptr) []uintptr {
	for i, pc := range pcs {
		fn := runtime.FuncForPC(pc - 1)
		if fn != nil && fn.Name() == "runtime.gopanic" && i+1 < len(pcs) {
			return pcs[i+1:]
		}
	}
	return pcs
}

func callers(skip int) []uintptr {
	pcs := make([]uintptr, maxStackDepth)
	n := runtime.Callers(skip, pcs)
	return pcs[:n]
}

// SlogError returns a slog attribute group describing err.
//
// The group contains the error message, all annotations found in the error chain, and the source location of the
// innermost annotated error.
func SlogError(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}

	var (
		annotations []any
		source      string
	)
	walk(err, func(ae *annotatedError) {
		for _, attr := range ae.attrs {
			annotations = append(annotations, attr)
		}
		if loc := location(ae.pcs); loc != "" {
			source = loc
		}
	})

	attrs := []any{slog.String("message", err.Error())}
	if len(annotations) > 0 {
		attrs = append(attrs, slog.Group("annotations", annotations...))
	}
	if source != "" {
		attrs = append(attrs, slog.String("source", source))
	}
	return slog.Group("error", attrs...)
}

// walk visits annotated errors from the outermost to the innermost, following joined errors as well.
func walk(err error, visit func(*annotatedError)) {
	if err == nil {
		return
	}
	if ae, ok := err.(*annotatedError); ok { //nolint:errorlint // we walk the chain ourselves.
		visit(ae)
	}
	switch e := err.(type) { //nolint:errorlint // we walk the chain ourselves.
	case interface{ Unwrap() []error }:
		for _, inner := range e.Unwrap() {
			walk(inner, visit)
		}
	case interface{ Unwrap() error }:
		walk(e.Unwrap(), visit)
	}
}

func location(pcs []uintptr) string {
	if len(pcs) == 0 {
		return ""
	}
	frames := runtime.CallersFrames(pcs)
	for {
		frame, more := frames.Next()
		if !strings.HasPrefix(frame.Function, "runtime.") && frame.File != "" {
			return frame.File + ":" + strconv.Itoa(frame.Line)
		}
		if !more {
			return ""
		}
	}
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Unwrap returns the result of calling the Unwrap method on err.
func Unwrap(err error) error {
	return stderrors.Unwrap(err)
}

// Join returns an error that wraps the given errors.
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}
