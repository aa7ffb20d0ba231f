// Package proxy implements the telemetry session proxy: it logs in to the
// provider with the server-held token, caches the resulting session, and
// transparently renews it when the provider reports it expired.
//
// A call is attempted with the cached session. When the answer carries an
// expired-session code (see telemetry.Classify) the session is renewed and the
// identical call is re-issued, at most MaxRenewals times. Every other provider
// error is returned to the caller untouched.
//
// Callers may supply their own session identifier. It is used verbatim for the
// first attempt; a transport failure or an expired-session answer falls back
// to the cached-session path.
package proxy
