// Package telemetry defines the request, response and error types shared by
// the telemetry session proxy, its provider client and its HTTP front end.
//
// The provider speaks a form-encoded RPC protocol: every call names a service
// ("core/search_items", "token/login", ...), carries JSON parameters and,
// except for login, a session identifier (SID). Responses are arbitrary JSON.
// Only the "error", "reason" and "eid" members are interpreted here; error
// codes are classified exhaustively by Classify.
package telemetry
