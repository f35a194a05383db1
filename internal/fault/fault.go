// Package fault defines the error kinds a page-collection session can fail with.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so the transport can decide whether to drop
// just the message or the whole connection.
type Kind byte

const (
	KindInternal Kind = iota
	KindProtocol
	KindIndexOutOfRange
	KindStagingNotFound
	KindDecode
	KindUnsupportedFormat
	KindUpstream
)

var KindMap = map[Kind]string{
	KindInternal:          "Internal",
	KindProtocol:          "ProtocolError",
	KindIndexOutOfRange:   "IndexOutOfRange",
	KindStagingNotFound:   "StagingNotFound",
	KindDecode:            "DecodeError",
	KindUnsupportedFormat: "UnsupportedFormat",
	KindUpstream:          "UpstreamError",
}

func (k Kind) String() string {
	if s, ok := KindMap[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", byte(k))
}

// Rejects reports whether a failure of this kind only rejects the
// triggering message and leaves the connection usable.
func (k Kind) Rejects() bool {
	return k != KindInternal
}

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, &Error{Kind: k}) match on kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

func New(kind Kind, op string, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost *Error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
