package core

import (
	"errors"
	"fmt"
)

// Kind classifies an error across every component boundary in the node so
// that the gateway can map it to an HTTP status and clients can branch on a
// stable, language-independent tag.
type Kind int

const (
	KindFind Kind = iota
	KindRepetition
	KindMintability
	KindMath
	KindType
	KindInvariantViolation
	KindAccessDenied
	KindMetadata
	KindWasmExecution
	KindSignatureMismatch
	KindTransactionExpired
	KindTransactionLimitExceeded
	KindBadChainId
	KindConsensus
	KindStorage
	KindConfig
	KindCrypto
)

func (k Kind) String() string {
	switch k {
	case KindFind:
		return "Find"
	case KindRepetition:
		return "Repetition"
	case KindMintability:
		return "Mintability"
	case KindMath:
		return "Math"
	case KindType:
		return "Type"
	case KindInvariantViolation:
		return "InvariantViolation"
	case KindAccessDenied:
		return "AccessDenied"
	case KindMetadata:
		return "Metadata"
	case KindWasmExecution:
		return "WasmExecution"
	case KindSignatureMismatch:
		return "SignatureMismatch"
	case KindTransactionExpired:
		return "TransactionExpired"
	case KindTransactionLimitExceeded:
		return "TransactionLimitExceeded"
	case KindBadChainId:
		return "BadChainId"
	case KindConsensus:
		return "Consensus"
	case KindStorage:
		return "Storage"
	case KindConfig:
		return "Config"
	case KindCrypto:
		return "Crypto"
	default:
		return "Unknown"
	}
}

// Error is the error type returned across instruction, executor, queue and
// consensus boundaries. It carries a stable Kind alongside the wrapped cause
// so callers can both branch on taxonomy and print/Unwrap the detail.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Newf builds a *Error of the given kind with a formatted message.
func Newf(k Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Err: fmt.Errorf(format, args...)}
}

// WrapErr tags an existing error with a Kind, preserving it for Unwrap.
func WrapErr(k Kind, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: k, Err: err}
}

// KindOf extracts the Kind of err if it (or something it wraps) is an
// *Error, and ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
