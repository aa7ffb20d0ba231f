// Package telemetry exposes the session proxy over HTTP.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/kilianp07/fleettrack/core/monitoring"
	"github.com/kilianp07/fleettrack/core/telemetry"
	"github.com/kilianp07/fleettrack/infra/logger"
)

// RequestIDHeader carries the request identifier in and out.
const RequestIDHeader = "X-Request-ID"

// DefaultMaxBodyBytes bounds an inbound request body.
const DefaultMaxBodyBytes int64 = 1 << 20

// Executor runs one telemetry request.
type Executor interface {
	Execute(ctx context.Context, req telemetry.Request) (telemetry.Response, error)
}

// errorBody is the JSON document returned on 4xx/5xx answers.
type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

// Handler serves POST /api/telemetry.
type Handler struct {
	exec     Executor
	maxBytes int64
	log      logger.Logger
}

// NewHandler returns a handler relaying requests to exec. maxBytes <= 0 uses
// DefaultMaxBodyBytes.
func NewHandler(exec Executor, maxBytes int64, log logger.Logger) *Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Handler{exec: exec, maxBytes: maxBytes, log: log}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, id)

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", r.Method+" is not supported")
		return
	}

	var req telemetry.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.Service == "" {
		writeError(w, http.StatusBadRequest, "invalid request", "service is required")
		return
	}
	if req.Service != telemetry.LoginService && !req.HasParams() {
		writeError(w, http.StatusBadRequest, "invalid request", "params are required")
		return
	}

	ctx := telemetry.WithRequestID(r.Context(), id)
	log := h.log.With(map[string]any{"request_id": id, "service": req.Service})
	resp, err := h.exec.Execute(ctx, req)

	var exhausted *telemetry.RenewalExhaustedError
	switch {
	case err == nil:
		writeResponse(w, resp)
	case errors.As(err, &exhausted) && resp != nil:
		log.Warnf("returning provider answer after %d renewal(s)", exhausted.Renewals)
		writeResponse(w, resp)
	case errors.Is(err, telemetry.ErrEmptyService), errors.Is(err, telemetry.ErrMissingParams):
		writeError(w, http.StatusBadRequest, "invalid request", err.Error())
	case errors.Is(err, context.Canceled):
		log.Debugf("client went away: %v", err)
	default:
		outcome := telemetry.OutcomeOf(resp, err)
		log.Errorf("telemetry call failed (%s): %v", outcome, err)
		monitoring.CaptureException(err, map[string]string{
			"service":    req.Service,
			"outcome":    string(outcome),
			"request_id": id,
		})
		writeError(w, http.StatusInternalServerError, failureMessage(err), err.Error())
	}
}

func failureMessage(err error) string {
	var (
		auth  *telemetry.AuthError
		proto *telemetry.ProtocolError
		trans *telemetry.TransportError
	)
	switch {
	case errors.Is(err, telemetry.ErrMissingToken):
		return "proxy misconfigured"
	case errors.As(err, &auth):
		return "provider login failed"
	case errors.As(err, &proto):
		return "unexpected provider response"
	case errors.As(err, &trans):
		return "provider unreachable"
	default:
		return "telemetry call failed"
	}
}

func writeResponse(w http.ResponseWriter, resp telemetry.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if len(resp) == 0 {
		_, _ = w.Write([]byte("{}"))
		return
	}
	_, _ = w.Write(resp)
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorBody{Error: msg, Details: details}); err != nil {
		_, _ = fmt.Fprintf(w, `{"error":%q}`, msg)
	}
}
