package vcontrold

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"time"
)

// DefaultPort is the TCP port vcontrold listens on unless configured otherwise.
const DefaultPort = 3002

// DefaultPrompt is the token vcontrold prefixes to every reply line.
const DefaultPrompt = "vctrld>"

// DialFunc opens the network connection to the daemon.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// ClientOption configures a Client.
type ClientOption func(*clientConfig) error

// clientConfig holds the configuration for a Client.
type clientConfig struct {
	port           int
	connectTimeout time.Duration
	requestTimeout time.Duration
	prompt         string
	retry          RetryPolicy
	logger         *slog.Logger
	dial           DialFunc
}

// defaultConfig returns the default client configuration.
func defaultConfig() *clientConfig {
	var d net.Dialer
	return &clientConfig{
		port:           DefaultPort,
		connectTimeout: 5 * time.Second,
		requestTimeout: 5 * time.Second,
		prompt:         DefaultPrompt,
		retry:          DefaultRetryPolicy(),
		logger:         nil,
		dial:           d.DialContext,
	}
}

// buildConfig applies opts on top of the defaults.
func buildConfig(opts []ClientOption) (*clientConfig, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// WithPort sets the TCP port to connect to.
// Default is 3002.
func WithPort(port int) ClientOption {
	return func(c *clientConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		c.port = port
		return nil
	}
}

// WithConnectTimeout sets the timeout for establishing a connection.
// Default is 5 seconds.
func WithConnectTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) error {
		if d <= 0 {
			return errors.New("connect timeout must be positive")
		}
		c.connectTimeout = d
		return nil
	}
}

// WithRequestTimeout sets the deadline for one send/receive exchange when
// the caller's context carries none. Default is 5 seconds.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) error {
		if d <= 0 {
			return errors.New("request timeout must be positive")
		}
		c.requestTimeout = d
		return nil
	}
}

// WithPrompt sets the prompt token the daemon prefixes to reply lines.
// Default is "vctrld>".
func WithPrompt(prompt string) ClientOption {
	return func(c *clientConfig) error {
		if prompt == "" {
			return errors.New("prompt must not be empty")
		}
		if strings.ContainsAny(prompt, "\r\n") {
			return errors.New("prompt must not contain line breaks")
		}
		c.prompt = prompt
		return nil
	}
}

// WithRetryPolicy sets how often catalog discovery is attempted before the
// client gives up. Default is DefaultRetryPolicy().
func WithRetryPolicy(p RetryPolicy) ClientOption {
	return func(c *clientConfig) error {
		if err := p.validate(); err != nil {
			return err
		}
		c.retry = p
		return nil
	}
}

// WithLogger sets a structured logger for debug and error logging.
// By default, no logging is performed.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *clientConfig) error {
		c.logger = logger
		return nil
	}
}

// WithDialer replaces the function used to open TCP connections.
func WithDialer(dial DialFunc) ClientOption {
	return func(c *clientConfig) error {
		if dial == nil {
			return errors.New("dialer must not be nil")
		}
		c.dial = dial
		return nil
	}
}
