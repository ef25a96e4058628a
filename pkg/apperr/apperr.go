// Package apperr defines the error taxonomy shared by the feed core and the HTTP layer.
package apperr

import (
	"context"
	"errors"
	"fmt"
)

// Kind 错误类别
type Kind int

const (
	KindUnknown Kind = iota
	KindUnauthorized
	KindForbidden
	KindValidation
	KindConflict
	KindNotFound
	KindPersistence
	KindRepository
	KindTimeout
	KindBusy
)

var kindNames = map[Kind]string{
	KindUnknown:      "unknown",
	KindUnauthorized: "unauthorized",
	KindForbidden:    "forbidden",
	KindValidation:   "validation",
	KindConflict:     "conflict",
	KindNotFound:     "not_found",
	KindPersistence:  "persistence",
	KindRepository:   "repository",
	KindTimeout:      "timeout",
	KindBusy:         "busy",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error 带类别的业务错误
type Error struct {
	Kind    Kind
	Op      string // 出错的操作，例如 "review.create"
	Message string // 面向用户的提示
	Err     error  // 底层原因
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, msg, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, apperr.ErrForbidden) works
// regardless of Op and Message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Message == "" && t.Err == nil
}

// Sentinels for errors.Is.
var (
	ErrUnauthorized = &Error{Kind: KindUnauthorized}
	ErrForbidden    = &Error{Kind: KindForbidden}
	ErrValidation   = &Error{Kind: KindValidation}
	ErrConflict     = &Error{Kind: KindConflict}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrPersistence  = &Error{Kind: KindPersistence}
	ErrRepository   = &Error{Kind: KindRepository}
	ErrTimeout      = &Error{Kind: KindTimeout}
	ErrBusy         = &Error{Kind: KindBusy}
)

// New 创建错误
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap 包装底层错误
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Remote 包装远程调用的错误：超时归为 KindTimeout，已带类别的错误原样返回
func Remote(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Op: op, Message: "remote call timed out", Err: err}
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// committedError 写入已经提交，但后续步骤 (例如刷新) 失败
type committedError struct {
	err error
}

func (e *committedError) Error() string { return e.err.Error() }
func (e *committedError) Unwrap() error { return e.err }

// Committed marks err as happening after the write was committed. Nil stays nil.
func Committed(err error) error {
	if err == nil || IsCommitted(err) {
		return err
	}
	return &committedError{err: err}
}

// IsCommitted reports whether err was returned after a committed write.
func IsCommitted(err error) bool {
	var c *committedError
	return errors.As(err, &c)
}

// Failed reports whether err means the operation did not take effect.
func Failed(err error) bool {
	return err != nil && !IsCommitted(err)
}

// KindOf returns the kind of the outermost *Error in the chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// MessageOf returns the first non-empty user facing message in the chain.
func MessageOf(err error) string {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			break
		}
		if e.Message != "" {
			return e.Message
		}
		err = e.Err
	}
	return ""
}
