package telemetry

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// LoginService is the provider service exchanging a token for a SID.
const LoginService = "token/login"

// Request is one proxied telemetry call.
type Request struct {
	Service string          `json:"service"`
	Params  json.RawMessage `json:"params"`
	// SID is a session identifier cached by the caller. Empty means the
	// proxy's own session is used.
	SID string `json:"sid,omitempty"`
}

// HasParams reports whether the request carries a parameter object.
func (r Request) HasParams() bool { return hasParams(r.Params) }

func hasParams(p json.RawMessage) bool {
	trimmed := bytes.TrimSpace(p)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// ErrorCode is the integer carried in a provider "error" member.
type ErrorCode int

// Class groups provider error codes by how the proxy reacts to them.
type Class int

const (
	// ClassNone means the response carries no error.
	ClassNone Class = iota
	// ClassSessionExpired means the SID must be renewed before retrying.
	ClassSessionExpired
	// ClassBusiness covers every other provider error. These are passed to
	// the caller untouched.
	ClassBusiness
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassSessionExpired:
		return "session_expired"
	case ClassBusiness:
		return "business"
	default:
		return "class(" + strconv.Itoa(int(c)) + ")"
	}
}

// Classify maps a provider error code to its Class.
func Classify(code ErrorCode) Class {
	switch code {
	case 0:
		return ClassNone
	case 1, 4, 8:
		return ClassSessionExpired
	default:
		return ClassBusiness
	}
}

// Response is a raw provider JSON document.
type Response json.RawMessage

// MarshalJSON writes the response verbatim.
func (r Response) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

type envelope struct {
	Error  json.RawMessage `json:"error"`
	Reason string          `json:"reason"`
	EID    string          `json:"eid"`
}

// envelope decodes the interpreted members. Non-object documents (arrays
// returned by batch services, scalars) decode to the zero envelope.
func (r Response) envelope() envelope {
	var env envelope
	trimmed := bytes.TrimSpace(r)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return env
	}
	_ = json.Unmarshal(trimmed, &env)
	return env
}

// ErrorCode returns the provider error code and whether one was present.
// A present but non-integer error member is reported as -1.
func (r Response) ErrorCode() (ErrorCode, bool) {
	raw := bytes.TrimSpace(r.envelope().Error)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return -1, true
	}
	return ErrorCode(n), true
}

// Class classifies the response by its error member.
func (r Response) Class() Class {
	code, ok := r.ErrorCode()
	if !ok {
		return ClassNone
	}
	return Classify(code)
}

// Reason returns the provider's human readable error reason, if any.
func (r Response) Reason() string { return r.envelope().Reason }

// EID returns the session identifier issued by a login response.
func (r Response) EID() string { return r.envelope().EID }
