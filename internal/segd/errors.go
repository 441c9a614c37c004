package segd

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrOutOfBounds             = errors.New("read out of bounds")
	ErrInvalidBCD              = errors.New("invalid BCD digit")
	ErrMalformedHeader         = errors.New("malformed header")
	ErrUnsupportedRevision     = errors.New("unsupported revision")
	ErrUnsupportedSampleFormat = errors.New("unsupported sample format")
	ErrStructuralMismatch      = errors.New("structural mismatch")
)

// DecodeError describes a decode failure. Kind is one of the package
// sentinels, so errors.Is(err, ErrInvalidBCD) and friends work through it.
type DecodeError struct {
	Kind      error
	Header    string
	Field     string
	Offset    int
	Revision  int
	Trace     int
	Truncated bool
	Detail    string
	Err       error
}

func newError(kind error, offset int, format string, args ...any) *DecodeError {
	return &DecodeError{
		Kind:     kind,
		Offset:   offset,
		Revision: NotSet,
		Trace:    NotSet,
		Detail:   fmt.Sprintf(format, args...),
	}
}

func (e *DecodeError) Error() string {
	var b strings.Builder
	b.WriteString("segd: ")
	b.WriteString(e.Kind.Error())
	if e.Header != "" {
		b.WriteString(" in ")
		b.WriteString(e.Header)
		if e.Field != "" {
			b.WriteString(".")
			b.WriteString(e.Field)
		}
	}
	fmt.Fprintf(&b, " at offset %d", e.Offset)
	if e.Revision >= 0 {
		fmt.Fprintf(&b, " (rev %d)", e.Revision)
	}
	if e.Trace >= 0 {
		fmt.Fprintf(&b, " trace %d", e.Trace)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsRecoverable reports whether err only invalidates a single trace.
// Only the Kind counts: a structural error wrapping
// ErrUnsupportedSampleFormat stays fatal.
func IsRecoverable(err error) bool {
	var de *DecodeError
	if !errors.As(err, &de) {
		return false
	}
	return de.Truncated || de.Kind == ErrUnsupportedSampleFormat
}

// KindOf returns the sentinel behind err, or nil when err is not a decode error.
func KindOf(err error) error {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.Kind
	}
	return nil
}

// rebase shifts a block-relative offset to an absolute one.
func rebase(err error, base int) error {
	var de *DecodeError
	if !errors.As(err, &de) {
		return err
	}
	cp := *de
	cp.Offset += base
	return &cp
}

func annotate(err error, header, field string, rev int) error {
	var de *DecodeError
	if !errors.As(err, &de) {
		return err
	}
	cp := *de
	if cp.Header == "" {
		cp.Header = header
	}
	if cp.Field == "" {
		cp.Field = field
	}
	if cp.Revision < 0 {
		cp.Revision = rev
	}
	return &cp
}

func atTrace(err error, index int) error {
	var de *DecodeError
	if !errors.As(err, &de) {
		return err
	}
	cp := *de
	cp.Trace = index
	return &cp
}
