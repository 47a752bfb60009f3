package domain

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyMessage      = errors.New("message is empty")
	ErrEmptyContent      = errors.New("message content is empty")
	ErrInvalidRole       = errors.New("invalid message role")
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionRetired    = errors.New("session was wiped and cannot be reused")
	ErrEmptyReply        = errors.New("completion returned an empty reply")
	ErrMessageBlocked    = errors.New("message blocked by chat policy")
	ErrBackupUnsupported = errors.New("backup is not supported by this storage backend")
)

// ErrorKind classifies failures so transports can map them without string matching.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindRetired    ErrorKind = "retired"
	KindGateway    ErrorKind = "gateway"
	KindStorage    ErrorKind = "storage"
	KindInternal   ErrorKind = "internal"
)

// Error is returned by conversation operations.
type Error struct {
	Kind      ErrorKind
	Op        string
	SessionID string
	Err       error
}

func (e *Error) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("%s [%s]: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s [%s, session=%s]: %v", e.Op, e.Kind, e.SessionID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new Error.
func NewError(kind ErrorKind, op, sessionID string, err error) *Error {
	return &Error{Kind: kind, Op: op, SessionID: sessionID, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
