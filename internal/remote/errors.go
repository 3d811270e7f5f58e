package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a remote failure.
type Kind int

const (
	// Transient failures (offline, timeouts, throttling, 5xx) may succeed on a later attempt.
	Transient Kind = iota + 1
	// Permanent failures (validation, permission, quota) will not succeed unchanged.
	Permanent
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	}
	return "unknown"
}

var (
	ErrTransient = errors.New("remote: transient failure")
	ErrPermanent = errors.New("remote: permanent failure")
)

// Failure is the error every adapter returns.
type Failure struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (f *Failure) Error() string {
	msg := fmt.Sprintf("remote %s %s: %s", f.Op, f.Path, f.Kind)
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}
	return msg
}

func (f *Failure) Unwrap() error { return f.Err }

// Is lets errors.Is(err, ErrTransient) and errors.Is(err, ErrPermanent) match by kind.
func (f *Failure) Is(target error) bool {
	switch target {
	case ErrTransient:
		return f.Kind == Transient
	case ErrPermanent:
		return f.Kind == Permanent
	}
	return false
}

func NewTransient(op, path string, err error) *Failure {
	return &Failure{Kind: Transient, Op: op, Path: path, Err: err}
}

func NewPermanent(op, path string, err error) *Failure {
	return &Failure{Kind: Permanent, Op: op, Path: path, Err: err}
}

// IsTransient reports whether err is a retryable remote failure. Context
// expiry and network errors count as transient even when not wrapped.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}
	if errors.Is(err, ErrPermanent) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsPermanent reports whether err should stop retries of the same payload.
func IsPermanent(err error) bool {
	return err != nil && !IsTransient(err)
}
