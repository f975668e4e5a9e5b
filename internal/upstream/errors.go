// Package upstream classifies failures of calls to external providers.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"
)

// Kind is the failure class of an upstream call.
type Kind int

const (
	KindOther Kind = iota
	KindConfiguration
	KindAuth
	KindRateLimited
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindAuth:
		return "auth"
	case KindRateLimited:
		return "rate_limited"
	case KindTimeout:
		return "timeout"
	default:
		return "other"
	}
}

// Error is a failed call to an external provider.
type Error struct {
	Kind       Kind
	Service    string
	Status     int           // upstream HTTP status, 0 when no response was received
	RetryAfter time.Duration // from Retry-After on 429, when present
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s failure", e.Service, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind, so errors.Is(err, &Error{Kind: KindAuth}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Service == "" || t.Service == e.Service)
}

// Configuration reports missing or unusable local configuration for a service.
func Configuration(service, what string) *Error {
	return &Error{Kind: KindConfiguration, Service: service, Err: errors.New(what)}
}

// FromResponse classifies a non-2xx response.
func FromResponse(service string, resp *http.Response) *Error {
	e := &Error{Service: service, Status: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		e.Kind = KindAuth
	case http.StatusTooManyRequests:
		e.Kind = KindRateLimited
		e.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		e.Kind = KindTimeout
	default:
		e.Kind = KindOther
	}
	return e
}

// FromTransport classifies an error returned by http.Client.Do or by reading the body.
func FromTransport(service string, err error) *Error {
	var existing *Error
	if errors.As(err, &existing) {
		return existing
	}
	e := &Error{Kind: KindOther, Service: service, Err: err}
	if IsTimeout(err) {
		e.Kind = KindTimeout
	}
	return e
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// KindOf returns the kind of an upstream error, or KindOther for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindOther
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
