package vcontrold

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Client talks to one vcontrold endpoint. It holds no open connection:
// every call dials, performs one exchange and disconnects, on success and
// on error alike.
//
// A Client may be shared between goroutines, but the daemon serves one
// request at a time; callers are expected to serialize their polling so
// that one call per endpoint runs at a time.
type Client struct {
	endpoint Endpoint
	cfg      *clientConfig
	logger   *slog.Logger
	cache    *CatalogCache
}

// NewClient creates a client for the daemon at host.
// Options can be provided to configure the client behavior.
func NewClient(host string, opts ...ClientOption) (*Client, error) {
	if host == "" {
		return nil, errors.New("host must not be empty")
	}
	cfg, err := buildConfig(opts)
	if err != nil {
		return nil, fmt.Errorf("invalid option: %w", err)
	}

	return &Client{
		endpoint: Endpoint{Host: host, Port: cfg.port},
		cfg:      cfg,
		logger:   cfg.logger,
		cache:    newCatalogCache(cfg),
	}, nil
}

// Endpoint returns the daemon address the client talks to.
func (c *Client) Endpoint() Endpoint { return c.endpoint }

// Catalog returns the command catalog of the endpoint, discovering it on
// first use.
func (c *Client) Catalog(ctx context.Context) (*Catalog, error) {
	return c.cache.Get(ctx, c.endpoint)
}

// GetValue reads command name. Unknown commands fail without connecting.
func (c *Client) GetValue(ctx context.Context, catalog *Catalog, name string) (Value, error) {
	if _, err := lookupGetter(catalog, name); err != nil {
		return Value{}, err
	}

	var v Value
	err := c.withConn(ctx, func(conn *Conn) error {
		var err error
		v, err = GetValue(ctx, catalog, conn, name)
		return err
	})
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("get failed", "command", name, "error", err)
		}
		return Value{}, err
	}

	if c.logger != nil {
		c.logger.Debug("get", "command", name, "value", v.String())
	}
	return v, nil
}

// SetValue writes v to command name. Unknown commands and values of the
// wrong kind fail without connecting.
func (c *Client) SetValue(ctx context.Context, catalog *Catalog, name string, v Value) error {
	meta, err := lookupSetter(catalog, name)
	if err != nil {
		return err
	}
	if _, err := EncodeValue(meta, v); err != nil {
		return err
	}

	err = c.withConn(ctx, func(conn *Conn) error {
		return SetValue(ctx, catalog, conn, name, v)
	})
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("set failed", "command", name, "error", err)
		}
		return err
	}

	if c.logger != nil {
		c.logger.Info("set", "command", name, "value", v.String())
	}
	return nil
}

// Raw sends line as is and returns the payload of the single reply line.
func (c *Client) Raw(ctx context.Context, line string) (string, error) {
	var payload string
	err := c.withConn(ctx, func(conn *Conn) error {
		if err := conn.SendLine(ctx, line); err != nil {
			return err
		}
		reply, err := conn.ReadLine(ctx)
		if err != nil {
			return err
		}
		payload, err = stripPrompt(reply, conn.Prompt())
		return err
	})
	return payload, err
}

// RawBlock sends line as is and returns the lines of the block reply.
func (c *Client) RawBlock(ctx context.Context, line string) ([]string, error) {
	var lines []string
	err := c.withConn(ctx, func(conn *Conn) error {
		var err error
		lines, err = request(ctx, conn, line)
		return err
	})
	return lines, err
}

// withConn runs fn on a fresh connection and always closes it.
func (c *Client) withConn(ctx context.Context, fn func(*Conn) error) error {
	conn, err := dial(ctx, c.endpoint, c.cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	return fn(conn)
}
