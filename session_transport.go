package xgraph

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	stealth "github.com/anatolykoptev/go-stealth"
	"github.com/anatolykoptev/go-stealth/pool"
	"github.com/anatolykoptev/go-stealth/ratelimit"
)

const maxRetries = 3

// SessionTransport is the default Transport. It sends requests through a
// TLS-fingerprinted browser client on behalf of a pool of logged-in accounts,
// keeping their sessions healthy: ct0 rotation, relogin, rate-limit and proxy
// backoff, and deactivation of banned or suspended accounts.
type SessionTransport struct {
	client   *stealth.BrowserClient
	pool     *pool.Pool[*Account]
	sessions *sessionStore
	cfg      ClientConfig
}

// NewSessionTransport builds the transport and logs in every configured account.
// Accounts that fail to log in are kept but start inactive.
func NewSessionTransport(cfg ClientConfig) (*SessionTransport, error) {
	cfg.defaults()

	opts := []stealth.ClientOption{
		stealth.WithHeaderOrder(headerOrder),
	}
	if cfg.DefaultProxy != "" {
		opts = append(opts, stealth.WithProxy(cfg.DefaultProxy))
	}
	bc, err := stealth.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("stealth client: %w", err)
	}

	for _, acc := range cfg.Accounts {
		acc.rateLimiter = ratelimit.NewLimiter(cfg.RateLimit)
		acc.HealthTracker = pool.DefaultHealthTracker()
	}

	t := &SessionTransport{
		client:   bc,
		sessions: newSessionStore(cfg.SessionDir, cfg.SessionTTL),
		cfg:      cfg,
		pool: pool.New(cfg.Accounts, pool.Config{
			AlertHook: func(topic string, payload any) {
				slog.Warn("pool alert", slog.String("topic", topic), slog.Any("payload", payload))
			},
			ProxyBackoff: pool.BackoffConfig{
				InitialWait: cfg.ProxyBackoffInitial,
				MaxWait:     cfg.ProxyBackoffMax,
				Multiplier:  2.0,
				JitterPct:   0.3,
			},
		}),
	}

	ctx := context.Background()
	for _, acc := range cfg.Accounts {
		if acc.Proxy != "" {
			accClient, err := stealth.NewClient(
				stealth.WithProxy(acc.Proxy),
				stealth.WithProfile(acc.Profile.TLSProfile),
				stealth.WithHeaderOrder(headerOrder),
			)
			if err != nil {
				slog.Warn("per-account client failed", slog.String("user", acc.Username), slog.Any("error", err))
			} else {
				acc.client = accClient
			}
		}
		if err := t.loadOrLogin(ctx, acc); err != nil {
			slog.Warn("account login failed", slog.String("user", acc.Username), slog.Any("error", err))
			acc.SetActive(false)
		}
	}
	return t, nil
}

// Pool returns the underlying account pool.
func (t *SessionTransport) Pool() *pool.Pool[*Account] {
	return t.pool
}

// Send implements Transport. Session-level failures (429, CSRF, expired auth,
// banned/locked/suspended accounts, network errors) are retried on the next
// usable account up to maxRetries times. A bare 401 or 403 is retried the same
// way unless the request is pinned to one account. Any other non-2xx status is
// returned at once as *APIError.
func (t *SessionTransport) Send(ctx context.Context, req *Request, out any) (map[string]string, error) {
	var payload []byte
	var contentType string
	if req.Body != nil {
		var err error
		if payload, contentType, err = req.Body.encode(); err != nil {
			return nil, fmt.Errorf("%s: %w", req.Endpoint, err)
		}
	}

	// Anti-fingerprint jitter
	if err := stealth.DefaultJitter.Sleep(ctx); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := range maxRetries {
		if attempt > 0 {
			select {
			case <-time.After(stealth.DefaultBackoff.Duration(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		acc, err := t.pool.NextWithWait(ctx, t.accountFilter(req), t.cfg.AccountWait)
		if err != nil {
			return nil, fmt.Errorf("%s: no usable account: %w", req.Endpoint, errors.Join(err, lastErr))
		}

		if acc.CT0Age() > ct0MaxAge {
			acc.RotateCT0()
			slog.Info("ct0 rotated (proactive)", slog.String("user", acc.Username))
			t.sessions.persist(acc)
		}

		body, respHdrs, status, err := t.roundTrip(acc, req, payload, contentType)
		if err != nil {
			if acc.Proxy != "" && isProxyError(err) {
				t.markProxyDown(acc)
			} else {
				acc.RecordFailure()
			}
			lastErr = err
			continue
		}
		acc.proxyRecovered()

		if status == 429 {
			t.record(req.Endpoint, false, true)
			acc.MarkEndpointRateLimited(req.Endpoint, parseRateLimitReset(respHdrs["x-rate-limit-reset"]))
			lastErr = &APIError{Endpoint: req.Endpoint, Status: status, Body: truncateBytes(body, 200)}
			continue
		}

		if class := classifyError(body); class.affectsSession() {
			t.record(req.Endpoint, false, false)
			t.recoverSession(ctx, acc, class)
			lastErr = failure(req.Endpoint, status, body)
			continue
		}

		if !isSuccess(status) {
			t.record(req.Endpoint, false, false)
			slog.Warn("non-2xx response", slog.String("endpoint", req.Endpoint), slog.Int("status", status), slog.String("body", truncateBytes(body, 500)))
			t.recordAccountFailure(acc)
			lastErr = failure(req.Endpoint, status, body)
			// A pinned account has no other account to fall back to.
			if (status == 401 || status == 403) && req.Account == "" {
				continue
			}
			return nil, lastErr
		}

		if newCT0 := extractCT0FromHeaders(respHdrs); newCT0 != "" {
			if _, current, _ := acc.Credentials(); newCT0 != current {
				acc.SetCT0(newCT0)
				t.sessions.persist(acc)
			}
		}
		t.record(req.Endpoint, true, false)
		acc.RecordSuccess()
		return respHdrs, decodePayload(req.Endpoint, body, out)
	}

	return nil, fmt.Errorf("%s failed after %d attempts: %w", req.Endpoint, maxRetries, lastErr)
}

// accountFilter selects accounts that may serve req right now.
func (t *SessionTransport) accountFilter(req *Request) func(*Account) bool {
	return func(a *Account) bool {
		if req.Account != "" && a.Username != req.Account {
			return false
		}
		return a.AllowRequest(req.Endpoint) && a.proxyReady()
	}
}

// roundTrip sends req as acc and returns the raw response.
func (t *SessionTransport) roundTrip(acc *Account, req *Request, payload []byte, contentType string) ([]byte, map[string]string, int, error) {
	authToken, ct0, ua := acc.Credentials()
	headers := sessionHeaders(authToken, ct0, ua)
	if contentType != "" {
		headers["content-type"] = contentType
	}
	mergeHeaders(headers, req.Headers)

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	return t.clientFor(acc).DoWithHeaderOrder(req.Method, req.URL, headers, body, headerOrder)
}

// recoverSession reacts to an account-level error code.
func (t *SessionTransport) recoverSession(ctx context.Context, acc *Account, class errorClass) {
	switch class {
	case errCSRF:
		slog.Warn("CSRF error 353, rotating ct0", slog.String("user", acc.Username))
		acc.RotateCT0()
		t.sessions.persist(acc)

	case errAuthExpired:
		slog.Warn("auth expired (code 32), attempting relogin", slog.String("user", acc.Username))
		if err := t.relogin(ctx, acc); err != nil {
			slog.Warn("relogin failed, soft-deactivating", slog.String("user", acc.Username), slog.Any("error", err))
			t.pool.SoftDeactivate(acc, t.cfg.AuthCooldown)
		}

	case errLocked:
		slog.Warn("account locked (code 326, captcha needed)", slog.String("user", acc.Username))
		if t.cfg.CaptchaSolver != nil {
			if err := t.relogin(ctx, acc); err == nil {
				slog.Info("CAPTCHA unlock succeeded", slog.String("user", acc.Username))
				return
			}
		}
		t.pool.SoftDeactivate(acc, t.cfg.BanCooldown)

	case errBanned:
		slog.Warn("account banned (code 88)", slog.String("user", acc.Username))
		t.pool.SoftDeactivate(acc, t.cfg.BanCooldown)

	case errSuspended:
		slog.Warn("account suspended (code 64), permanently deactivating", slog.String("user", acc.Username))
		t.pool.DeactivateItem(acc)
	}
}

// recordAccountFailure counts a failed response and drops accounts that turned unhealthy.
func (t *SessionTransport) recordAccountFailure(acc *Account) {
	if shouldDeactivate := acc.RecordFailure(); !shouldDeactivate {
		return
	}
	total, failed, consec := acc.Stats()
	slog.Warn("account unhealthy, deactivating",
		slog.String("user", acc.Username),
		slog.Int("total", total),
		slog.Int("failed", failed),
		slog.Int("consec", consec))
	t.pool.DeactivateItem(acc)
}

// markProxyDown applies exponential backoff for proxy failures.
func (t *SessionTransport) markProxyDown(acc *Account) {
	fails := acc.proxyFailed()
	duration := stealth.BackoffConfig{
		InitialWait: t.cfg.ProxyBackoffInitial,
		MaxWait:     t.cfg.ProxyBackoffMax,
		Multiplier:  2.0,
		JitterPct:   0.3,
	}.Duration(fails - 1)
	acc.backOffProxy(duration)

	slog.Warn("proxy down, backing off",
		slog.String("user", acc.Username),
		slog.String("proxy", stealth.MaskProxy(acc.Proxy)),
		slog.Int("consec_fails", fails),
		slog.Duration("backoff", duration))
}

// clientFor returns the per-account client if available, otherwise the shared one.
func (t *SessionTransport) clientFor(acc *Account) *stealth.BrowserClient {
	if acc.client != nil {
		return acc.client
	}
	return t.client
}

func (t *SessionTransport) record(endpoint string, success, rateLimited bool) {
	if t.cfg.MetricsHook != nil {
		t.cfg.MetricsHook(endpoint, success, rateLimited)
	}
}

// failure builds the error for an unusable response: *APIError for non-2xx,
// *ResponseError for an error payload in a 2xx body.
func failure(endpoint string, status int, body []byte) error {
	if isSuccess(status) {
		if err := responseError(endpoint, body); err != nil {
			return err
		}
	}
	return &APIError{Endpoint: endpoint, Status: status, Body: truncateBytes(body, 200)}
}

// isProxyError returns true if the error looks like a proxy connectivity failure.
func isProxyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range []string{"proxy", "SOCKS", "tunnel", "connection refused", "no such host"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
