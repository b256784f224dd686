package models

import (
	"errors"
	"fmt"
)

var (
	ErrValidation  = errors.New("validation failed")
	ErrNotFound    = errors.New("not found")
	ErrForbidden   = errors.New("forbidden")
	ErrConsistency = errors.New("closure consistency violated")
)

// Lexicon keys returned to clients instead of raw error text.
const (
	KeyAccessDenied = "access_denied"
	KeyNoSelection  = "comment_err_ns"
	KeyNotFound     = "comment_err_nf"
	KeyBody         = "comment_err_body"
	KeyThread       = "comment_err_thread"
	KeyParent       = "comment_err_parent"
	KeyName         = "comment_err_name"
	KeySave         = "comment_err_save"
	KeyRemove       = "comment_err_remove"
	KeySearch       = "comment_err_search"
	KeyParams       = "comment_err_params"
	KeyAction       = "comment_err_action"
	KeyGuest        = "comment_err_guest"
)

// Error carries the taxonomy kind, the lexicon key and an optional cause.
type Error struct {
	Kind error
	Key  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %v", e.Kind, e.Key, e.Err)
	}
	return fmt.Sprintf("%s (%s)", e.Kind, e.Key)
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func Validation(key string) error {
	return &Error{Kind: ErrValidation, Key: key}
}

func NotFound(key string) error {
	return &Error{Kind: ErrNotFound, Key: key}
}

func Forbidden() error {
	return &Error{Kind: ErrForbidden, Key: KeyAccessDenied}
}

func Consistency(err error) error {
	return &Error{Kind: ErrConsistency, Key: KeySave, Err: err}
}

// KeyOf returns the lexicon key for err, falling back to the generic save
// failure so storage errors never leak verbatim.
func KeyOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Key != "" {
		return e.Key
	}
	return KeySave
}
