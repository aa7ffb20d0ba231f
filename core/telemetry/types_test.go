package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		code ErrorCode
		want Class
	}{
		{0, ClassNone},
		{1, ClassSessionExpired},
		{4, ClassSessionExpired},
		{8, ClassSessionExpired},
		{2, ClassBusiness},
		{7, ClassBusiness},
		{77, ClassBusiness},
		{-1, ClassBusiness},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Classify(c.code), "code %d", c.code)
	}
}

func TestResponseInspection(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		code   ErrorCode
		has    bool
		class  Class
		reason string
	}{
		{"success", `{"items":[]}`, 0, false, ClassNone, ""},
		{"expired", `{"error":4}`, 4, true, ClassSessionExpired, ""},
		{"business", `{"error":77,"reason":"unit not found"}`, 77, true, ClassBusiness, "unit not found"},
		{"zero", `{"error":0}`, 0, true, ClassNone, ""},
		{"null error", `{"error":null}`, 0, false, ClassNone, ""},
		{"string error", `{"error":"boom"}`, -1, true, ClassBusiness, ""},
		{"array", `[{"error":1}]`, 0, false, ClassNone, ""},
		{"empty", ``, 0, false, ClassNone, ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := Response(c.body)
			code, has := r.ErrorCode()
			assert.Equal(t, c.code, code)
			assert.Equal(t, c.has, has)
			assert.Equal(t, c.class, r.Class())
			assert.Equal(t, c.reason, r.Reason())
		})
	}
}

func TestResponseEIDAndMarshal(t *testing.T) {
	r := Response(`{"eid":"abc123","user":{"nm":"fleet"}}`)
	assert.Equal(t, "abc123", r.EID())

	out, err := json.Marshal(struct {
		R Response `json:"r"`
	}{R: r})
	require.NoError(t, err)
	assert.JSONEq(t, `{"r":{"eid":"abc123","user":{"nm":"fleet"}}}`, string(out))

	out, err = json.Marshal(Response(nil))
	require.NoError(t, err)
	assert.Equal(t, "null", string(out))
}

func TestRequestHasParams(t *testing.T) {
	assert.False(t, Request{}.HasParams())
	assert.False(t, Request{Params: json.RawMessage(" null ")}.HasParams())
	assert.True(t, Request{Params: json.RawMessage(`{}`)}.HasParams())
}

func TestErrors(t *testing.T) {
	var err error = &RenewalExhaustedError{Service: "core/search_items", Renewals: 1, Code: 4}
	assert.True(t, errors.Is(err, ErrRenewalExhausted))
	assert.Contains(t, err.Error(), "core/search_items")

	expired := &SessionExpiredError{Service: "x", Code: 1}
	assert.True(t, IsSessionExpired(expired))
	assert.False(t, IsSessionExpired(errors.New("x")))

	te := &TransportError{Service: "x", Err: context.DeadlineExceeded}
	assert.ErrorIs(t, te, context.DeadlineExceeded)
	assert.False(t, te.Timeout())

	assert.Contains(t, (&AuthError{Code: 7, Reason: "invalid token"}).Error(), "invalid token")
}

func TestRequestIDContext(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	assert.Equal(t, "req-1", RequestID(ctx))
	assert.Equal(t, "", RequestID(context.Background()))
}

func TestOutcomeOf(t *testing.T) {
	cases := []struct {
		name string
		resp Response
		err  error
		want Outcome
	}{
		{"ok", Response(`{"items":[]}`), nil, OutcomeOK},
		{"business", Response(`{"error":77}`), nil, OutcomeBusinessError},
		{"exhausted", Response(`{"error":4}`), &RenewalExhaustedError{Code: 4}, OutcomeRenewalExhausted},
		{"invalid", nil, ErrMissingParams, OutcomeInvalidRequest},
		{"config", nil, ErrMissingToken, OutcomeConfigError},
		{"auth", nil, &AuthError{Code: 8}, OutcomeAuthError},
		{"protocol", nil, &ProtocolError{Service: "x"}, OutcomeProtocolError},
		{"transport", nil, &TransportError{Service: "x", Err: errors.New("refused")}, OutcomeTransportError},
		{"canceled", nil, &TransportError{Service: "x", Err: context.Canceled}, OutcomeCanceled},
		{"other", nil, errors.New("x"), OutcomeUnknownError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, OutcomeOf(c.resp, c.err), c.name)
	}
}
