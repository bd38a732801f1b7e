// Package apperr defines the error taxonomy shared by every vault component.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

// Error kinds.
const (
	KindNotFound          Kind = "not_found"
	KindAlreadyExists     Kind = "already_exists"
	KindPathEscape        Kind = "path_escape"
	KindInvalidPath       Kind = "invalid_path"
	KindMalformedHeader   Kind = "malformed_header"
	KindInvalidMetadata   Kind = "invalid_metadata"
	KindWriteFailed       Kind = "write_failed"
	KindLinkRewriteFailed Kind = "link_rewrite_failed"
	KindConflict          Kind = "conflict"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrPathEscape        = errors.New("path escapes vault root")
	ErrInvalidPath       = errors.New("invalid path")
	ErrMalformedHeader   = errors.New("malformed header")
	ErrInvalidMetadata   = errors.New("invalid metadata")
	ErrWriteFailed       = errors.New("write failed")
	ErrLinkRewriteFailed = errors.New("link rewrite failed")
	ErrConflict          = errors.New("conflict")
)

var sentinels = map[Kind]error{
	KindNotFound:          ErrNotFound,
	KindAlreadyExists:     ErrAlreadyExists,
	KindPathEscape:        ErrPathEscape,
	KindInvalidPath:       ErrInvalidPath,
	KindMalformedHeader:   ErrMalformedHeader,
	KindInvalidMetadata:   ErrInvalidMetadata,
	KindWriteFailed:       ErrWriteFailed,
	KindLinkRewriteFailed: ErrLinkRewriteFailed,
	KindConflict:          ErrConflict,
}

// Error is a caller-visible failure carrying its kind and the offending path.
type Error struct {
	Kind Kind
	Path string
	Err  error
}

// New returns an *Error of the given kind. err may be nil.
func New(kind Kind, path string, err error) *Error {
	return &Error{Kind: kind, Path: path, Err: err}
}

// Newf is like New with a formatted cause.
func Newf(kind Kind, path, format string, args ...any) *Error {
	return &Error{Kind: kind, Path: path, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if s, ok := sentinels[e.Kind]; ok {
		msg = s.Error()
	}
	if e.Path != "" {
		msg += ": " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, apperr.ErrNotFound) work for typed errors.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// KindOf returns the kind of the first *Error or sentinel in err's chain,
// or the empty Kind.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	for k, s := range sentinels {
		if errors.Is(err, s) {
			return k
		}
	}
	return ""
}

// PathOf returns the offending path recorded in err, if any.
func PathOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Path
	}
	return ""
}
