package tree

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every error returned by the engine wraps exactly one of these.
var (
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrValidation       = errors.New("validation failed")
	ErrImmutableRoot    = errors.New("the root page cannot be renamed or removed")
	ErrHasChildren      = errors.New("page has children")
	ErrStore            = errors.New("store failure")
	ErrConflict         = errors.New("address already in use")
)

var kinds = []error{ErrNotFound, ErrPermissionDenied, ErrValidation, ErrImmutableRoot, ErrHasChildren, ErrStore, ErrConflict}

type Error struct {
	Kind error
	Op   string
	Slug string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Slug != "" {
		b.WriteString(" ")
		b.WriteString(e.Slug)
	}
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf returns the error kind carried by err, or nil.
func KindOf(err error) error {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

func newError(kind error, op, slug string, err error) *Error {
	return &Error{Kind: kind, Op: op, Slug: slug, Err: err}
}

// CascadeError reports a rename whose descendant rewrites stopped part way.
// Writes listed in Applied have landed and are not rolled back.
type CascadeError struct {
	From    string
	To      string
	Applied []string
	Failed  string
	Err     error
}

func (e *CascadeError) Error() string {
	return fmt.Sprintf("cascade %s -> %s stopped at %s after %d writes: %v", e.From, e.To, e.Failed, len(e.Applied), e.Err)
}

func (e *CascadeError) Unwrap() error {
	return e.Err
}
