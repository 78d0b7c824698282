package model

import "errors"

// ErrorKind categorizes protocol failures so the HTTP layer can map each to a
// stable status. None of these are retried internally.
type ErrorKind int

const (
	// KindNotFound means a contract, sign record, or referenced user does
	// not exist.
	KindNotFound ErrorKind = iota
	// KindForbidden means the caller is not authorized for the action
	// (not the author, not a participant).
	KindForbidden
	// KindConflict means the operation violates a state invariant: the
	// contract is already proceeding, or the caller already signed.
	KindConflict
	// KindInvalidState means the contract's current state does not permit
	// the operation (e.g. breaking a draft).
	KindInvalidState
)

// Error is the domain error carried out of the signing engine.
type Error struct {
	Kind ErrorKind
	msg  string
}

func (e *Error) Error() string { return e.msg }

func NewNotFound(msg string) *Error     { return &Error{Kind: KindNotFound, msg: msg} }
func NewForbidden(msg string) *Error    { return &Error{Kind: KindForbidden, msg: msg} }
func NewConflict(msg string) *Error     { return &Error{Kind: KindConflict, msg: msg} }
func NewInvalidState(msg string) *Error { return &Error{Kind: KindInvalidState, msg: msg} }

// IsKind reports whether err is a domain Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == kind
}
