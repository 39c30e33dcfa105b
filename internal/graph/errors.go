package graph

import (
	"errors"
	"fmt"
)

// Kind classifies every failure the graph core can surface. Callers branch
// on kinds rather than on message text.
type Kind int

// Failure kinds.
const (
	KindUnknown       Kind = iota
	KindType               // wrong argument kind (non-Layer to Add, Sequential where functional expected)
	KindConfig             // structurally invalid configuration (empty model, bad nesting)
	KindShape              // multi-output layer in Sequential, weight shape mismatch
	KindCardinality        // wrong tensor-list length
	KindUnsupported        // disallowed clone injection point, missing backward rule
	KindPrecondition       // operation requires prior compile/build
	KindDependency         // required archive codec absent
	KindValidation         // archive missing required record, unknown registry tag
	KindSerialization      // value not representable in the topology encoding
	KindAssertion          // internal invariant violated
	KindEmpty              // pop on an empty container
)

// String returns the kind's name.
func (k Kind) String() string {
	switch k {
	case KindType:
		return "type"
	case KindConfig:
		return "config"
	case KindShape:
		return "shape"
	case KindCardinality:
		return "cardinality"
	case KindUnsupported:
		return "unsupported"
	case KindPrecondition:
		return "precondition"
	case KindDependency:
		return "dependency"
	case KindValidation:
		return "validation"
	case KindSerialization:
		return "serialization"
	case KindAssertion:
		return "assertion"
	case KindEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

// Error carries a failure kind, the operation that produced it, and a
// message. It wraps an underlying cause when one exists.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Msg != "":
		return fmt.Sprintf("%s: %s: %s: %v", e.Op, e.Kind, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Msg)
	}
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf builds an Error with a formatted message.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// WrapErr builds an Error around an underlying cause.
func WrapErr(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the Kind from err, or KindUnknown if err does not carry one.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
