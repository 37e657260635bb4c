package libsys

import (
	"errors"
	"fmt"
)

// Code is the closed outcome taxonomy every public operation answers with.
// The numeric values are the wire contract toward callers.
type Code int

const (
	CodeFailure          Code = 998
	CodeUnexpected       Code = 999
	CodeSuccess          Code = 1000
	CodeChallengeIssued  Code = 1001
	CodeBadCredentials   Code = 1002
	CodeTimeout          Code = 1003
	CodeBadCaptcha       Code = 1004
	CodeEmpty            Code = 1005
	CodeSessionExpired   Code = 1006
	CodeIdentityRequired Code = 1011
	CodeConnection       Code = 2333
)

// CarriesData reports whether a result with this code has a payload.
//
// CodeIdentityRequired carries the pending session, the identity step cannot
// be completed without its cookies.
func (c Code) CarriesData() bool {
	switch c {
	case CodeSuccess, CodeChallengeIssued, CodeIdentityRequired:
		return true
	}
	return false
}

func (c Code) String() string {
	switch c {
	case CodeFailure:
		return "failure"
	case CodeUnexpected:
		return "unexpected"
	case CodeSuccess:
		return "success"
	case CodeChallengeIssued:
		return "challenge_issued"
	case CodeBadCredentials:
		return "bad_credentials"
	case CodeTimeout:
		return "timeout"
	case CodeBadCaptcha:
		return "bad_captcha"
	case CodeEmpty:
		return "empty"
	case CodeSessionExpired:
		return "session_expired"
	case CodeIdentityRequired:
		return "identity_required"
	case CodeConnection:
		return "connection"
	}
	return fmt.Sprintf("code(%d)", int(c))
}

const connectionMessage = "连接错误：图书馆系统可能无法正常访问"

// Failure is the error type every internal step returns once a condition has
// been classified.
type Failure struct {
	Code    Code
	Message string
	// Unclassified marks the last-resort catch-all, Cause then holds the
	// original diagnostic.
	Unclassified bool
	Cause        error
}

func (f *Failure) Error() string {
	if f.Cause != nil {
		return fmt.Sprintf("%d %s: %v", f.Code, f.Message, f.Cause)
	}
	return fmt.Sprintf("%d %s", f.Code, f.Message)
}

func (f *Failure) Unwrap() error {
	return f.Cause
}

func fail(code Code, message string) *Failure {
	return &Failure{Code: code, Message: message}
}

func failf(code Code, format string, args ...any) *Failure {
	return &Failure{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsFailure extracts the Failure in err's chain.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	ok := errors.As(err, &f)
	return f, ok
}

// Result is the uniform envelope of every public operation.
type Result[T any] struct {
	Code    Code   `json:"code"`
	Message string `json:"msg"`
	Data    *T     `json:"data,omitempty"`

	Unclassified bool  `json:"-"`
	Cause        error `json:"-"`
}

// OK reports whether the result carries a payload.
func (r Result[T]) OK() bool {
	return r.Data != nil
}

func succeed[T any](code Code, message string, data T) Result[T] {
	return Result[T]{Code: code, Message: message, Data: &data}
}

func failed[T any](f *Failure) Result[T] {
	return Result[T]{
		Code:         f.Code,
		Message:      f.Message,
		Unclassified: f.Unclassified,
		Cause:        f.Cause,
	}
}
