package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/kilianp07/fleettrack/core/events"
	"github.com/kilianp07/fleettrack/core/session"
	"github.com/kilianp07/fleettrack/core/telemetry"
	"github.com/kilianp07/fleettrack/infra/logger"
	"github.com/kilianp07/fleettrack/internal/eventbus"
)

// DefaultMaxRenewals matches the provider's observed behavior: one renewal,
// then give up.
const DefaultMaxRenewals = 1

// Transport sends one RPC call to the provider.
type Transport interface {
	Do(ctx context.Context, service string, params json.RawMessage, sid string) (telemetry.Response, error)
}

// Options configures a Proxy. Zero values fall back to defaults.
type Options struct {
	// Token is the server-held secret exchanged for a session.
	Token       string
	MaxRenewals int
	Bus         eventbus.Publisher[events.Event]
	Logger      logger.Logger
}

// Proxy mediates every call to the telemetry provider.
type Proxy struct {
	transport   Transport
	token       string
	maxRenewals int
	sessions    *session.Cache
	bus         eventbus.Publisher[events.Event]
	log         logger.Logger
}

// New creates a Proxy sending calls through t.
func New(t Transport, opts Options) *Proxy {
	if opts.MaxRenewals <= 0 {
		opts.MaxRenewals = DefaultMaxRenewals
	}
	if opts.Logger == nil {
		opts.Logger = logger.New("telemetry-proxy")
	}
	p := &Proxy{
		transport:   t,
		token:       opts.Token,
		maxRenewals: opts.MaxRenewals,
		bus:         opts.Bus,
		log:         opts.Logger,
	}
	p.sessions = session.NewCache(p.login)
	return p
}

// Session returns the cached session identifier, if any.
func (p *Proxy) Session() (string, bool) { return p.sessions.Current() }

// Login exchanges the server token for a new session and caches it.
func (p *Proxy) Login(ctx context.Context) (string, error) {
	sid, err := p.login(ctx)
	if err != nil {
		return "", err
	}
	p.sessions.Store(sid)
	return sid, nil
}

// login performs the provider round trip without touching the cache; the
// session cache stores the result.
func (p *Proxy) login(ctx context.Context) (sid string, err error) {
	start := time.Now()
	defer func() {
		p.publish(events.LoginEvent{Success: err == nil, Err: err, Duration: time.Since(start), Time: time.Now()})
	}()
	if p.token == "" {
		p.log.Errorf("login refused: %v", telemetry.ErrMissingToken)
		return "", telemetry.ErrMissingToken
	}
	params, err := json.Marshal(struct {
		Token string `json:"token"`
	}{Token: p.token})
	if err != nil {
		return "", fmt.Errorf("encode login params: %w", err)
	}
	resp, err := p.transport.Do(ctx, telemetry.LoginService, params, "")
	if err != nil {
		return "", err
	}
	if code, ok := resp.ErrorCode(); ok && telemetry.Classify(code) != telemetry.ClassNone {
		return "", &telemetry.AuthError{Code: code, Reason: resp.Reason()}
	}
	sid = resp.EID()
	if sid == "" {
		return "", &telemetry.ProtocolError{Service: telemetry.LoginService, Msg: "missing eid"}
	}
	p.log.Infof("provider session established")
	return sid, nil
}

// callStats accumulates per-request counters for the CallEvent.
type callStats struct {
	attempts atomic.Int32
	logins   atomic.Int32
}

// Call issues service with params on the cached session, logging in first
// when no session is cached and renewing it on an expired-session answer.
// When renewals are exhausted the last response is returned together with a
// *telemetry.RenewalExhaustedError.
func (p *Proxy) Call(ctx context.Context, service string, params json.RawMessage) (telemetry.Response, error) {
	return p.Execute(ctx, telemetry.Request{Service: service, Params: params})
}

// Execute runs req, honoring a caller-supplied session identifier.
func (p *Proxy) Execute(ctx context.Context, req telemetry.Request) (resp telemetry.Response, err error) {
	start := time.Now()
	stats := &callStats{}
	defer func() {
		p.publishCall(ctx, req, stats, resp, err, time.Since(start))
	}()

	if req.Service == "" {
		return nil, telemetry.ErrEmptyService
	}
	if req.Service == telemetry.LoginService {
		// Logins with caller credentials are relayed once, without a session.
		stats.attempts.Add(1)
		return p.transport.Do(ctx, req.Service, req.Params, "")
	}
	if !req.HasParams() {
		return nil, telemetry.ErrMissingParams
	}

	if req.SID != "" {
		resp, err = p.attempt(ctx, req.Service, req.Params, req.SID, stats)
		switch {
		case err == nil:
			return resp, nil
		case telemetry.IsSessionExpired(err):
			p.log.Debugf("%s: caller session expired, falling back to server session", req.Service)
		default:
			var te *telemetry.TransportError
			if !errors.As(err, &te) || ctx.Err() != nil {
				return nil, err
			}
			p.log.Warnf("%s: caller session attempt failed, falling back: %v", req.Service, err)
		}
	}
	return p.callCached(ctx, req.Service, req.Params, stats)
}

func (p *Proxy) callCached(ctx context.Context, service string, params json.RawMessage, stats *callStats) (telemetry.Response, error) {
	var (
		renewals int
		stale    string
	)
	resp, err := retry.DoWithData(
		func() (telemetry.Response, error) {
			var (
				sid string
				err error
			)
			if stale == "" {
				sid, err = p.currentOrLogin(ctx, stats)
			} else {
				renewals++
				sid, err = p.renew(ctx, stale, stats)
			}
			if err != nil {
				return nil, retry.Unrecoverable(err)
			}
			resp, err := p.attempt(ctx, service, params, sid, stats)
			if telemetry.IsSessionExpired(err) {
				stale = sid
			}
			return resp, err
		},
		retry.Context(ctx),
		retry.Attempts(uint(p.maxRenewals+1)),
		retry.RetryIf(telemetry.IsSessionExpired),
		retry.DelayType(retry.FixedDelay),
		retry.Delay(0),
		retry.LastErrorOnly(true),
	)
	if err == nil {
		return resp, nil
	}
	var se *telemetry.SessionExpiredError
	if errors.As(err, &se) {
		p.log.Warnf("%s: session still expired after %d renewal(s)", service, renewals)
		return se.Response, &telemetry.RenewalExhaustedError{Service: service, Renewals: renewals, Code: se.Code}
	}
	return nil, err
}

func (p *Proxy) currentOrLogin(ctx context.Context, stats *callStats) (string, error) {
	if sid, ok := p.sessions.Current(); ok {
		return sid, nil
	}
	stats.logins.Add(1)
	return p.sessions.GetOrLogin(ctx)
}

func (p *Proxy) renew(ctx context.Context, stale string, stats *callStats) (string, error) {
	stats.logins.Add(1)
	return p.sessions.Renew(ctx, stale)
}

// attempt sends one call and turns an expired-session answer into a
// *telemetry.SessionExpiredError.
func (p *Proxy) attempt(ctx context.Context, service string, params json.RawMessage, sid string, stats *callStats) (telemetry.Response, error) {
	stats.attempts.Add(1)
	resp, err := p.transport.Do(ctx, service, params, sid)
	if err != nil {
		return nil, err
	}
	if code, ok := resp.ErrorCode(); ok && telemetry.Classify(code) == telemetry.ClassSessionExpired {
		return nil, &telemetry.SessionExpiredError{Service: service, Code: code, Response: resp}
	}
	return resp, nil
}

func (p *Proxy) publish(ev events.Event) {
	if p.bus != nil {
		p.bus.Publish(ev)
	}
}

func (p *Proxy) publishCall(ctx context.Context, req telemetry.Request, stats *callStats, resp telemetry.Response, err error, d time.Duration) {
	ev := events.CallEvent{
		RequestID: telemetry.RequestID(ctx),
		Service:   req.Service,
		Outcome:   telemetry.OutcomeOf(resp, err),
		Attempts:  int(stats.attempts.Load()),
		Logins:    int(stats.logins.Load()),
		CallerSID: req.SID != "",
		Err:       err,
		Duration:  d,
		Time:      time.Now(),
	}
	if code, ok := resp.ErrorCode(); ok {
		ev.ProviderCode = &code
	}
	p.publish(ev)
}
