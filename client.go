// Package xgraph reads and edits the X (Twitter) follow graph: paginated
// Following/Followers timelines, follow/unfollow, and handle lookup.
//
// Requests go through a Transport. The default SessionTransport drives a pool
// of logged-in accounts over a TLS-fingerprinted browser client.
package xgraph

import (
	"log/slog"
)

// Client exposes the follow-graph operations.
type Client struct {
	transport Transport
	lookup    UserLookup
	cfg       ClientConfig
}

// NewClient creates a client. Without cfg.Transport it builds a SessionTransport
// and logs in the configured accounts.
func NewClient(cfg ClientConfig) (*Client, error) {
	cfg.defaults()

	c := &Client{transport: cfg.Transport, lookup: cfg.Lookup, cfg: cfg}
	if c.transport == nil {
		st, err := NewSessionTransport(cfg)
		if err != nil {
			return nil, err
		}
		c.transport = st
		slog.Debug("session transport ready", slog.Int("accounts", len(cfg.Accounts)))
	}
	if c.lookup == nil {
		c.lookup = c
	}
	return c, nil
}

// Transport returns the transport requests are sent through.
func (c *Client) Transport() Transport {
	return c.transport
}
