package directory

import (
	"errors"
	"fmt"
)

// ErrNoSources is returned by Refresh when the fallback source list is empty.
var ErrNoSources = errors.New("no directory sources available")

// FetchError reports a network-level failure talking to a directory source:
// connection, read/write, timeout, or a non-200 HTTP status.
type FetchError struct {
	Source string // address of the source, or "tunnel" for anonymized fetches
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch from %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError reports a malformed primary document. Secondary-document parse
// failures are non-fatal and never surface as a ParseError.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse consensus: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
