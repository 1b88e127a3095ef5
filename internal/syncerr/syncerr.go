package syncerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by how the sync loop should react to it.
type Kind int

const (
	KindUnknown Kind = iota
	// transport failure or non-success status from an external service
	KindNetwork
	// response shape violated the expected contract
	KindProtocol
	// the token authority refused a refresh; operator must re-authorize
	KindAuthRejected
	// byte count mismatch between what was promised and what arrived
	KindIntegrity
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindProtocol:
		return "protocol"
	case KindAuthRejected:
		return "auth_rejected"
	case KindIntegrity:
		return "integrity"
	default:
		return "unknown"
	}
}

// Error is the tagged error carried across component boundaries.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "UploadPart"
	Key  string // object key or item path, if any
	Err  error
}

func (e *Error) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s %s %s: %v", e.Kind, e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op, key string, err error) *Error {
	if err == nil {
		err = errors.New(kind.String())
	}
	return &Error{Kind: kind, Op: op, Key: key, Err: err}
}

func Network(op, key string, err error) *Error {
	return newError(KindNetwork, op, key, err)
}

func Protocol(op, key string, err error) *Error {
	return newError(KindProtocol, op, key, err)
}

func AuthRejected(op string, err error) *Error {
	return newError(KindAuthRejected, op, "", err)
}

func Integrity(op, key string, err error) *Error {
	return newError(KindIntegrity, op, key, err)
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
