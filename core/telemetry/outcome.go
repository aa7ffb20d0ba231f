package telemetry

import (
	"context"
	"errors"
)

// Outcome labels how a proxied call ended. It is used for metrics and audit
// records.
type Outcome string

const (
	OutcomeOK               Outcome = "ok"
	OutcomeBusinessError    Outcome = "business_error"
	OutcomeRenewalExhausted Outcome = "renewal_exhausted"
	OutcomeInvalidRequest   Outcome = "invalid_request"
	OutcomeConfigError      Outcome = "config_error"
	OutcomeAuthError        Outcome = "auth_error"
	OutcomeProtocolError    Outcome = "protocol_error"
	OutcomeTransportError   Outcome = "transport_error"
	OutcomeCanceled         Outcome = "canceled"
	OutcomeUnknownError     Outcome = "error"
)

// OutcomeOf derives the outcome of a call from its result.
func OutcomeOf(resp Response, err error) Outcome {
	var (
		auth  *AuthError
		proto *ProtocolError
		trans *TransportError
	)
	switch {
	case err == nil:
		if resp.Class() == ClassBusiness {
			return OutcomeBusinessError
		}
		return OutcomeOK
	case errors.Is(err, ErrRenewalExhausted):
		return OutcomeRenewalExhausted
	case errors.Is(err, ErrEmptyService), errors.Is(err, ErrMissingParams):
		return OutcomeInvalidRequest
	case errors.Is(err, ErrMissingToken):
		return OutcomeConfigError
	case errors.As(err, &auth):
		return OutcomeAuthError
	case errors.As(err, &proto):
		return OutcomeProtocolError
	case errors.Is(err, context.Canceled):
		return OutcomeCanceled
	case errors.As(err, &trans):
		return OutcomeTransportError
	default:
		return OutcomeUnknownError
	}
}
