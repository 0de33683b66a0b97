// Package checkpoint decorates errors with caller information, producing
// something similar to a stacktrace while staying compatible with
// errors.Is and errors.As.
package checkpoint

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"
)

// From wraps an error in a new checkpoint carrying the caller's file and line.
// It returns nil if err is nil.
func From(err error) error {
	// io.EOF must be returned as io.EOF directly
	// https://github.com/golang/go/issues/39155
	if err == io.EOF {
		return io.EOF
	}
	if err == io.ErrUnexpectedEOF {
		return io.ErrUnexpectedEOF
	}

	if err == nil {
		return nil
	}

	return newCheckpoint(nil, err)
}

// Wrap adds a checkpoint around prev and attaches err as an additional
// description. Returns nil if prev is nil.
// This allows predefining sentinel errors and attaching them on the way out:
//
//	var ErrSomethingWentWrong = errors.New("a very bad error")
//
//	func someFunction() error {
//		err := somethingThatMayFail()
//		return checkpoint.Wrap(err, ErrSomethingWentWrong)
//	}
//
// Both the sentinel and the original error stay visible to errors.Is.
func Wrap(prev, err error) error {
	// io.EOF must be returned as io.EOF directly
	// https://github.com/golang/go/issues/39155
	if prev == io.EOF {
		return io.EOF
	}

	if prev == nil {
		return nil
	}

	return newCheckpoint(prev, err)
}

func newCheckpoint(prev, err error) *checkpoint {
	// Skip newCheckpoint and From/Wrap itself.
	_, file, line, ok := runtime.Caller(2)

	return &checkpoint{
		err:  err,
		prev: prev,

		callerOk: ok,
		file:     filepath.Base(file),
		line:     line,
	}
}

type checkpoint struct {
	err  error
	prev error

	callerOk bool
	file     string
	line     int
}

func (e *checkpoint) Error() string {
	caller := "unknown"
	if e.callerOk {
		caller = fmt.Sprintf("%s:%d", e.file, e.line)
	}

	if e.prev == nil {
		return fmt.Sprintf("File: %s\n\t%v", caller, e.err)
	}

	// Indent non-checkpoint causes so that nested errors stay readable.
	prevErrString := e.prev.Error()
	if _, ok := e.prev.(*checkpoint); !ok {
		prevErrString = "File: unknown\n\t" + strings.ReplaceAll(prevErrString, "\n", "\n\t")
	}

	return fmt.Sprintf("File: %s\n\t%v\n%v", caller, e.err, prevErrString)
}

func (e *checkpoint) Unwrap() error {
	return e.prev
}

func (e *checkpoint) Is(target error) bool {
	return errors.Is(e.err, target)
}

func (e *checkpoint) As(target interface{}) bool {
	return errors.As(e.err, target)
}
