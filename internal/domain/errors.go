package domain

import (
	"errors"
	"fmt"
)

// ErrUnknownSource is returned when a source name is not configured.
var ErrUnknownSource = errors.New("unknown source")

// Kind classifies failures at component boundaries so callers branch on
// the kind instead of on error text.
type Kind int

const (
	KindUnknown Kind = iota
	// KindConfig is a configuration error, such as an unknown source name.
	KindConfig
	// KindTransient is a network, parse or upstream failure while fetching.
	KindTransient
	// KindGeneration is a failure calling the text-generation endpoint.
	KindGeneration
	// KindIndex is a failure of the vector index.
	KindIndex
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindTransient:
		return "transient"
	case KindGeneration:
		return "generation"
	case KindIndex:
		return "index"
	default:
		return "unknown"
	}
}

// Error carries a Kind and the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// Errorf builds an *Error wrapping a formatted cause.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}
