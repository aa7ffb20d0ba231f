package telemetry

import (
	"errors"
	"fmt"
	"net/url"
)

var (
	// ErrMissingToken is the configuration error returned when no provider
	// token is configured. No request is sent.
	ErrMissingToken = errors.New("telemetry: provider token not configured")
	// ErrEmptyService rejects a call without a service name.
	ErrEmptyService = errors.New("telemetry: service name is required")
	// ErrMissingParams rejects a non-login call without parameters.
	ErrMissingParams = errors.New("telemetry: params are required")
	// ErrRenewalExhausted is matched by RenewalExhaustedError.
	ErrRenewalExhausted = errors.New("telemetry: session renewal exhausted")
)

// AuthError reports a login rejected by the provider.
type AuthError struct {
	Code   ErrorCode
	Reason string
}

func (e *AuthError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("telemetry: login rejected (error %d)", e.Code)
	}
	return fmt.Sprintf("telemetry: login rejected (error %d): %s", e.Code, e.Reason)
}

// ProtocolError reports a provider answer with an unexpected shape.
type ProtocolError struct {
	Service string
	Msg     string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("telemetry: unexpected %s response: %s", e.Service, e.Msg)
}

// TransportError wraps a failure to reach the provider or read its answer.
type TransportError struct {
	Service string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("telemetry: %s: communication failure: %v", e.Service, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a timeout.
func (e *TransportError) Timeout() bool {
	var ue *url.Error
	return errors.As(e.Err, &ue) && ue.Timeout()
}

// SessionExpiredError is returned for a response classified as
// ClassSessionExpired. It carries the response so it can be surfaced once
// renewals are exhausted.
type SessionExpiredError struct {
	Service  string
	Code     ErrorCode
	Response Response
}

func (e *SessionExpiredError) Error() string {
	return fmt.Sprintf("telemetry: %s: session expired (error %d)", e.Service, e.Code)
}

// RenewalExhaustedError is returned, alongside the last provider response,
// when the session stayed invalid after every allowed renewal.
type RenewalExhaustedError struct {
	Service  string
	Renewals int
	Code     ErrorCode
}

func (e *RenewalExhaustedError) Error() string {
	return fmt.Sprintf("%v: %s still failing with error %d after %d renewal(s)",
		ErrRenewalExhausted, e.Service, e.Code, e.Renewals)
}

func (e *RenewalExhaustedError) Unwrap() error { return ErrRenewalExhausted }

// IsSessionExpired reports whether err is, or wraps, a SessionExpiredError.
func IsSessionExpired(err error) bool {
	var se *SessionExpiredError
	return errors.As(err, &se)
}
