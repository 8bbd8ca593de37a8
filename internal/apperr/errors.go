// Package apperr holds the error taxonomy shared by the session engine, the service clients
// and the CLI.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error by what the operator has to do about it.
type Kind int

const (
	KindUnknown Kind = iota
	// KindConfiguration is a missing template, header or credential.
	KindConfiguration
	// KindTransport is a connection, TLS or DNS failure.
	KindTransport
	// KindProtocol is an unexpected HTTP status or a response the server marked as failed.
	KindProtocol
	// KindAuth is a missing or rejected session.
	KindAuth
	// KindEncoding is an unsupported content type or a (de)serialization failure.
	KindEncoding
	// KindNotFound is an unknown record or a missing local snapshot.
	KindNotFound
	// KindUserAborted is the operator declining to continue.
	KindUserAborted
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindAuth:
		return "auth"
	case KindEncoding:
		return "encoding"
	case KindNotFound:
		return "not_found"
	case KindUserAborted:
		return "user_aborted"
	}
	return "unknown"
}

// Error attaches a Kind and the failing operation to an underlying error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err.Error())
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with a kind and an operation name.
func New(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf is New with a formatted message, %w verbs are honored.
func Newf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost *Error in the chain, or the kind implied by a
// known sentinel.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Kind != KindUnknown {
		return appErr.Kind
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return KindProtocol
	}
	for sentinel, kind := range sentinelKinds {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindUnknown
}

// StatusError is returned for any response whose status is neither 200 nor 302.
type StatusError struct {
	Code   int
	Status string
	Url    string
}

func (e *StatusError) Error() string {
	status := e.Status
	if status == "" {
		status = fmt.Sprint(e.Code)
	}
	return fmt.Sprintf("unexpected response status %s from %s", status, e.Url)
}

var (
	ErrTemplateNotFound       = errors.New("request template not found")
	ErrMissingHeaders         = errors.New("request template is missing headers")
	ErrUnsupportedContentType = errors.New("unsupported content type")
	ErrSessionClosed          = errors.New("session is closed")

	ErrNotLoggedIn        = errors.New("not logged in")
	ErrLoginNoSetCookie   = errors.New("login response did not set any cookie, frequent logins may have been blacklisted")
	ErrLoginMissingCookie = errors.New("login response did not set the session cookie")

	ErrCountMismatch      = errors.New("fetched record count does not match the reported total")
	ErrSubmissionRejected = errors.New("submission rejected")

	ErrRecordNotFound   = errors.New("record not found")
	ErrSnapshotNotFound = errors.New("local snapshot not found")
	ErrUserAborted      = errors.New("aborted by user")
)

var sentinelKinds = map[error]Kind{
	ErrTemplateNotFound:       KindConfiguration,
	ErrMissingHeaders:         KindConfiguration,
	ErrUnsupportedContentType: KindEncoding,
	ErrSessionClosed:          KindConfiguration,
	ErrNotLoggedIn:            KindAuth,
	ErrLoginNoSetCookie:       KindAuth,
	ErrLoginMissingCookie:     KindAuth,
	ErrCountMismatch:          KindProtocol,
	ErrSubmissionRejected:     KindProtocol,
	ErrRecordNotFound:         KindNotFound,
	ErrSnapshotNotFound:       KindNotFound,
	ErrUserAborted:            KindUserAborted,
}
