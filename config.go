package xgraph

import (
	"time"

	"github.com/anatolykoptev/go-stealth/ratelimit"
	"github.com/anatolykoptev/go-xgraph/captcha"
)

// ClientConfig holds all configuration for the client and its session transport.
type ClientConfig struct {
	// Transport replaces the built-in session transport. When set, the
	// account, proxy, session and login settings below are unused.
	Transport Transport

	// Lookup resolves handles for Follow/Unfollow. Defaults to the
	// UserByScreenName query.
	Lookup UserLookup

	// Accounts is the pool of authenticated accounts.
	Accounts []*Account

	// Actor pins Follow/Unfollow to this account username.
	// Empty means any available account.
	Actor string

	// DefaultProxy is the proxy URL for accounts without per-account proxies.
	DefaultProxy string

	// SessionDir overrides the session persistence directory.
	// Default: ~/.go-xgraph/sessions
	SessionDir string

	// SessionTTL controls how long saved sessions are considered valid.
	SessionTTL time.Duration

	// AuthCooldown is the soft-deactivation duration after auth errors.
	AuthCooldown time.Duration

	// BanCooldown is the soft-deactivation duration for banned/locked accounts.
	BanCooldown time.Duration

	// AccountWait bounds how long a request waits for a usable account.
	AccountWait time.Duration

	// CaptchaSolver is the optional CAPTCHA solver used during login.
	CaptchaSolver captcha.Solver

	// RateLimit configures per-account per-endpoint rate limiting.
	RateLimit ratelimit.Config

	// MetricsHook is called once per HTTP response with the operation name.
	MetricsHook func(endpoint string, success, rateLimited bool)

	// ProxyBackoffInitial is the initial backoff for proxy failures.
	ProxyBackoffInitial time.Duration

	// ProxyBackoffMax is the maximum backoff for proxy failures.
	ProxyBackoffMax time.Duration

	// SeparateFollowersTimeline sends Followers requests to the Followers
	// query. By default both relationship calls read the Following timeline.
	SeparateFollowersTimeline bool

	// StrictMutations makes Follow/Unfollow fail when a 2xx response body
	// carries an errors payload.
	StrictMutations bool
}

// defaults fills in zero-value config fields.
func (cfg *ClientConfig) defaults() {
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.AuthCooldown == 0 {
		cfg.AuthCooldown = 1 * time.Hour
	}
	if cfg.BanCooldown == 0 {
		cfg.BanCooldown = 6 * time.Hour
	}
	if cfg.AccountWait == 0 {
		cfg.AccountWait = 5 * time.Minute
	}
	if cfg.RateLimit.RequestsPerWindow == 0 {
		cfg.RateLimit = ratelimit.DefaultConfig
	}
	if cfg.ProxyBackoffInitial == 0 {
		cfg.ProxyBackoffInitial = 30 * time.Second
	}
	if cfg.ProxyBackoffMax == 0 {
		cfg.ProxyBackoffMax = 30 * time.Minute
	}
}
