// Package dberrors implements the domain-tagged error taxonomy of spec.md
// §7: a small set of Kinds, each attributable to one of the four error
// Domains, wrapping an underlying cause where one exists.
package dberrors

import (
	"errors"
	"fmt"
)

// Domain identifies which layer classified the error.
type Domain string

const (
	DomainCore       Domain = "core"
	DomainPOSIX      Domain = "posix"
	DomainBackendA   Domain = "backendA"
	DomainBackendSQL Domain = "backendSQL"
)

// Kind enumerates the error kinds of spec.md §7.
type Kind int

const (
	UnexpectedError Kind = iota
	NotOpen
	NotFound
	Conflict
	BadRevisionID
	BadVersionVector
	CorruptRevisionData
	CorruptIndexData
	CantOpenFile
	NotADatabaseFile
	CommitFailed
	NotWriteable
	UnsupportedEncryption
	NoSequences
	NoTransaction
	InvalidParameter
	IOError
	MemoryError
	Busy
	AssertionFailure
	InTransaction
)

var kindNames = map[Kind]string{
	UnexpectedError:       "UnexpectedError",
	NotOpen:               "NotOpen",
	NotFound:              "NotFound",
	Conflict:              "Conflict",
	BadRevisionID:         "BadRevisionID",
	BadVersionVector:      "BadVersionVector",
	CorruptRevisionData:   "CorruptRevisionData",
	CorruptIndexData:      "CorruptIndexData",
	CantOpenFile:          "CantOpenFile",
	NotADatabaseFile:      "NotADatabaseFile",
	CommitFailed:          "CommitFailed",
	NotWriteable:          "NotWriteable",
	UnsupportedEncryption: "UnsupportedEncryption",
	NoSequences:           "NoSequences",
	NoTransaction:         "NoTransaction",
	InvalidParameter:      "InvalidParameter",
	IOError:               "IOError",
	MemoryError:           "MemoryError",
	Busy:                  "Busy",
	AssertionFailure:      "AssertionFailure",
	InTransaction:         "InTransaction",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "UnknownKind"
}

// Error is the concrete error type returned throughout docstore.
type Error struct {
	Kind   Kind
	Domain Domain
	Msg    string
	Cause  error
}

func (e *Error) Error() string {
	if e.Msg == "" && e.Cause != nil {
		return fmt.Sprintf("docstore: %s (%s): %v", e.Kind, e.Domain, e.Cause)
	}
	if e.Cause != nil {
		return fmt.Sprintf("docstore: %s (%s): %s: %v", e.Kind, e.Domain, e.Msg, e.Cause)
	}
	return fmt.Sprintf("docstore: %s (%s): %s", e.Kind, e.Domain, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is match two *Error values by Kind alone, the way callers
// typically want to compare ("is this a NotFound?").
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs a Core-domain error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Domain: DomainCore, Msg: msg}
}

// Wrap attributes cause to kind/domain, preserving it via Unwrap.
func Wrap(kind Kind, domain Domain, msg string, cause error) *Error {
	return &Error{Kind: kind, Domain: domain, Msg: msg, Cause: cause}
}

// Is reports whether err is a docstore error of the given kind, at any
// wrapping depth.
func Is(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == kind {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// KindOf returns the Kind of err if it is (or wraps) a *Error, else
// UnexpectedError.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return UnexpectedError
}
